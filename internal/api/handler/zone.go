// Package handler provides HTTP handlers for the zone AQI API.
package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/breatheroute/zoneaqi/internal/airquality"
	"github.com/breatheroute/zoneaqi/internal/api/models"
	"github.com/breatheroute/zoneaqi/internal/api/response"
)

// ZoneService is the subset of airquality.Service used by ZoneHandler.
type ZoneService interface {
	Zones() []airquality.Zone
	Get(ctx context.Context, zoneID string, forceRefresh bool) (*airquality.Entry, airquality.Outcome, error)
}

// ZoneHandler handles zone endpoints.
type ZoneHandler struct {
	service ZoneService
}

// NewZoneHandler creates a new ZoneHandler.
func NewZoneHandler(service ZoneService) *ZoneHandler {
	return &ZoneHandler{service: service}
}

// ListZones handles GET /zones.
func (h *ZoneHandler) ListZones(w http.ResponseWriter, r *http.Request) {
	zones := h.service.Zones()
	list := models.ZoneList{Zones: make([]models.ZoneSummary, 0, len(zones))}
	for _, z := range zones {
		list.Zones = append(list.Zones, models.NewZoneSummary(z))
	}
	response.JSON(w, r, http.StatusOK, list)
}

// GetZoneAQI handles GET /aqi/{zoneId} and GET /aqi/zone/{zoneId}.
// ?refresh=true bypasses the cache.
func (h *ZoneHandler) GetZoneAQI(w http.ResponseWriter, r *http.Request) {
	zoneID := chi.URLParam(r, "zoneId")
	force := r.URL.Query().Get("refresh") == "true"

	entry, outcome, err := h.service.Get(r.Context(), zoneID, force)
	if err != nil {
		response.ZoneError(w, r, err)
		return
	}

	w.Header().Set("X-Cache", cacheHeader(outcome))
	response.JSON(w, r, http.StatusOK, models.NewZoneAQI(entry))
}

func cacheHeader(o airquality.Outcome) string {
	switch o {
	case airquality.OutcomeHit:
		return "HIT"
	case airquality.OutcomeStale:
		return "STALE"
	default:
		return "MISS"
	}
}
