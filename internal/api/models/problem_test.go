package models_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/breatheroute/zoneaqi/internal/api/models"
)

func TestProblem_NewProblem(t *testing.T) {
	p := models.NewProblem(
		models.ProblemTypeNotFound,
		"Not found",
		http.StatusNotFound,
		"req_test123",
	)

	assert.Equal(t, models.ProblemTypeNotFound, p.Type)
	assert.Equal(t, "Not found", p.Title)
	assert.Equal(t, http.StatusNotFound, p.Status)
	assert.Equal(t, "req_test123", p.TraceID)
	assert.Empty(t, p.Detail)
	assert.Empty(t, p.Instance)
	assert.Empty(t, p.ZoneID)
	assert.Empty(t, p.Route)
}

func TestProblem_Builders(t *testing.T) {
	p := models.NewProblem(models.ProblemTypeInternal, "Internal server error", http.StatusInternalServerError, "req_1").
		WithDetail("boom").
		WithInstance("/aqi/srinagar").
		WithZone("srinagar", "/aqi/{zoneId}")

	assert.Equal(t, "boom", p.Detail)
	assert.Equal(t, "/aqi/srinagar", p.Instance)
	assert.Equal(t, "srinagar", p.ZoneID)
	assert.Equal(t, "/aqi/{zoneId}", p.Route)
}

func TestProblem_Write(t *testing.T) {
	p := models.NewUpstreamUnavailable("req_test123", "openmeteo: timeout")
	p.Instance = "/aqi/gulmarg"

	w := httptest.NewRecorder()
	p.Write(w)

	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))
	assert.Equal(t, "req_test123", w.Header().Get("X-Request-Id"))

	var result models.Problem
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))

	assert.Equal(t, models.ProblemTypeUpstreamUnavailable, result.Type)
	assert.Equal(t, "Upstream unavailable", result.Title)
	assert.Equal(t, http.StatusBadGateway, result.Status)
	assert.Equal(t, "openmeteo: timeout", result.Detail)
	assert.Equal(t, "/aqi/gulmarg", result.Instance)
	assert.Equal(t, "req_test123", result.TraceID)
}

func TestProblemConstructors(t *testing.T) {
	tests := []struct {
		name    string
		problem *models.Problem
		typ     string
		title   string
		status  int
	}{
		{"not found", models.NewNotFound("r", "d"), models.ProblemTypeNotFound, "Not found", http.StatusNotFound},
		{"no data", models.NewNoData("r", "d"), models.ProblemTypeNoData, "No data", http.StatusNotFound},
		{"provider configuration", models.NewProviderConfiguration("r", "d"), models.ProblemTypeProviderConfiguration, "Provider configuration error", http.StatusInternalServerError},
		{"upstream unavailable", models.NewUpstreamUnavailable("r", "d"), models.ProblemTypeUpstreamUnavailable, "Upstream unavailable", http.StatusBadGateway},
		{"too many requests", models.NewTooManyRequests("r", "d"), models.ProblemTypeTooManyRequests, "Too many requests", http.StatusTooManyRequests},
		{"internal", models.NewInternalError("r", "d"), models.ProblemTypeInternal, "Internal server error", http.StatusInternalServerError},
		{"unavailable", models.NewServiceUnavailable("r", "d"), models.ProblemTypeUnavailable, "Service unavailable", http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.typ, tt.problem.Type)
			assert.Equal(t, tt.title, tt.problem.Title)
			assert.Equal(t, tt.status, tt.problem.Status)
			assert.Equal(t, "d", tt.problem.Detail)
			assert.Equal(t, "r", tt.problem.TraceID)
		})
	}
}

func TestNewTLSRequired(t *testing.T) {
	p := models.NewTLSRequired("req_1")

	assert.Equal(t, models.ProblemTypeTLSRequired, p.Type)
	assert.Equal(t, http.StatusForbidden, p.Status)
	assert.Equal(t, "This endpoint requires HTTPS", p.Detail)
}
