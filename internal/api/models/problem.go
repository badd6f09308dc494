package models

import (
	"encoding/json"
	"net/http"
)

// Problem represents an RFC7807 error response.
// This is used for all API error responses with Content-Type: application/problem+json.
type Problem struct {
	// Type is a URI reference that identifies the problem type.
	Type string `json:"type"`

	// Title is a short, human-readable summary of the problem type.
	Title string `json:"title"`

	// Status is the HTTP status code for this occurrence of the problem.
	Status int `json:"status"`

	// Detail is a human-readable explanation specific to this occurrence.
	Detail string `json:"detail,omitempty"`

	// Instance is a URI reference that identifies the specific occurrence.
	Instance string `json:"instance,omitempty"`

	// TraceID is the request trace identifier for debugging.
	TraceID string `json:"traceId"`

	// ZoneID is the zone the failed request addressed, if any.
	ZoneID string `json:"zoneId,omitempty"`

	// Route is the matched route pattern, e.g. /aqi/{zoneId}.
	Route string `json:"route,omitempty"`
}

// ProblemType constants for standard error types.
const (
	ProblemTypeNotFound              = "https://zoneaqi.breatheroute.dev/problems/not-found"
	ProblemTypeNoData                = "https://zoneaqi.breatheroute.dev/problems/no-data"
	ProblemTypeProviderConfiguration = "https://zoneaqi.breatheroute.dev/problems/provider-configuration"
	ProblemTypeUpstreamUnavailable   = "https://zoneaqi.breatheroute.dev/problems/upstream-unavailable"
	ProblemTypeTLSRequired           = "https://zoneaqi.breatheroute.dev/problems/tls-required"
	ProblemTypeTooManyRequests       = "https://zoneaqi.breatheroute.dev/problems/too-many-requests"
	ProblemTypeInternal              = "https://zoneaqi.breatheroute.dev/problems/internal-error"
	ProblemTypeUnavailable           = "https://zoneaqi.breatheroute.dev/problems/service-unavailable"
)

// NewProblem creates a new Problem with the given parameters.
func NewProblem(problemType, title string, status int, traceID string) *Problem {
	return &Problem{
		Type:    problemType,
		Title:   title,
		Status:  status,
		TraceID: traceID,
	}
}

// WithDetail adds a detail message to the Problem.
func (p *Problem) WithDetail(detail string) *Problem {
	p.Detail = detail
	return p
}

// WithInstance adds the request instance URI to the Problem.
func (p *Problem) WithInstance(instance string) *Problem {
	p.Instance = instance
	return p
}

// WithZone records the zone and route pattern the request matched.
func (p *Problem) WithZone(zoneID, route string) *Problem {
	p.ZoneID = zoneID
	p.Route = route
	return p
}

// Write writes the Problem as JSON to the ResponseWriter.
func (p *Problem) Write(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.Header().Set("X-Request-Id", p.TraceID)
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

// NewNotFound creates a 404 Not Found problem.
func NewNotFound(traceID, detail string) *Problem {
	p := NewProblem(ProblemTypeNotFound, "Not found", http.StatusNotFound, traceID)
	p.Detail = detail
	return p
}

// NewTooManyRequests creates a 429 Too Many Requests problem.
func NewTooManyRequests(traceID, detail string) *Problem {
	p := NewProblem(ProblemTypeTooManyRequests, "Too many requests", http.StatusTooManyRequests, traceID)
	p.Detail = detail
	return p
}

// NewInternalError creates a 500 Internal Server Error problem.
func NewInternalError(traceID, detail string) *Problem {
	p := NewProblem(ProblemTypeInternal, "Internal server error", http.StatusInternalServerError, traceID)
	p.Detail = detail
	return p
}

// NewServiceUnavailable creates a 503 Service Unavailable problem.
func NewServiceUnavailable(traceID, detail string) *Problem {
	p := NewProblem(ProblemTypeUnavailable, "Service unavailable", http.StatusServiceUnavailable, traceID)
	p.Detail = detail
	return p
}

// NewNoData creates a 404 problem for a zone whose provider had nothing to report.
func NewNoData(traceID, detail string) *Problem {
	p := NewProblem(ProblemTypeNoData, "No data", http.StatusNotFound, traceID)
	p.Detail = detail
	return p
}

// NewProviderConfiguration creates a 500 problem for a misconfigured provider.
func NewProviderConfiguration(traceID, detail string) *Problem {
	p := NewProblem(ProblemTypeProviderConfiguration, "Provider configuration error", http.StatusInternalServerError, traceID)
	p.Detail = detail
	return p
}

// NewUpstreamUnavailable creates a 502 problem for a failing provider.
func NewUpstreamUnavailable(traceID, detail string) *Problem {
	p := NewProblem(ProblemTypeUpstreamUnavailable, "Upstream unavailable", http.StatusBadGateway, traceID)
	p.Detail = detail
	return p
}

// NewTLSRequired creates a 403 problem for plain HTTP requests.
func NewTLSRequired(traceID string) *Problem {
	p := NewProblem(ProblemTypeTLSRequired, "TLS required", http.StatusForbidden, traceID)
	p.Detail = "This endpoint requires HTTPS"
	return p
}
