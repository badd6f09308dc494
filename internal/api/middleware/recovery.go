package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/breatheroute/zoneaqi/internal/api/models"
)

// Recovery turns a panic in a zone or ops handler into a 500 problem that
// names the zone and route pattern, and logs the stack once.
// http.ErrAbortHandler is re-raised so the server can drop the connection.
func Recovery(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				requestID := GetRequestID(r.Context())
				zoneID := chi.URLParam(r, "zoneId")
				route := routePattern(r)

				log.Error().
					Str("request_id", requestID).
					Str("zone_id", zoneID).
					Str("route", route).
					Str("panic", fmt.Sprint(rec)).
					Bytes("stack", debug.Stack()).
					Msg("panic recovered")

				problem := models.NewInternalError(requestID, "an unexpected error occurred").
					WithInstance(r.URL.Path)
				if route != "unmatched" {
					problem.WithZone(zoneID, route)
				}
				problem.Write(w)
			}()

			next.ServeHTTP(w, r)
		})
	}
}
