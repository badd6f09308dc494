// Package openmeteo provides a client for the Open-Meteo air quality API.
package openmeteo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/breatheroute/zoneaqi/internal/airquality"
	"github.com/breatheroute/zoneaqi/internal/aqi"
	"github.com/breatheroute/zoneaqi/internal/provider/resilience"
)

const (
	// DefaultBaseURL is the base URL for the Open-Meteo air quality API.
	DefaultBaseURL = "https://air-quality-api.open-meteo.com/v1"

	// ProviderName identifies this provider.
	ProviderName = "openmeteo"
)

// DefaultFields are the hourly variables requested from the API.
var DefaultFields = []string{
	"pm10",
	"pm2_5",
	"carbon_monoxide",
	"nitrogen_dioxide",
	"sulphur_dioxide",
	"ozone",
}

// ClientConfig holds configuration for the Open-Meteo client.
type ClientConfig struct {
	// BaseURL is the API base URL (defaults to DefaultBaseURL).
	BaseURL string

	// HTTPClient is the HTTP client to use (must implement HTTPDoer).
	// If nil, a default resilient client will be created.
	HTTPClient HTTPDoer

	// Timeout for individual API requests (default: 15s).
	Timeout time.Duration

	// PastDays is how many days of past hourly data to request (default: 1).
	PastDays int

	// Fields overrides DefaultFields.
	Fields []string

	// Now returns the current time (default: time.Now).
	Now func() time.Time
}

// HTTPDoer abstracts HTTP request execution.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client is an Open-Meteo air quality client. It implements
// airquality.Source without an API key.
type Client struct {
	baseURL    string
	httpClient HTTPDoer
	pastDays   int
	fields     []string
	now        func() time.Time

	// group collapses the current and history calls of one refresh into
	// a single upstream request.
	group singleflight.Group
}

// NewClient creates a new Open-Meteo client.
func NewClient(cfg ClientConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 15 * time.Second
		}
		httpClient = resilience.NewClient(resilience.ClientConfig{
			Name:            ProviderName,
			Timeout:         timeout,
			MaxRetries:      2,
			InitialInterval: 200 * time.Millisecond,
			MaxInterval:     5 * time.Second,
		})
	}

	pastDays := cfg.PastDays
	if pastDays <= 0 {
		pastDays = 1
	}

	fields := cfg.Fields
	if len(fields) == 0 {
		fields = DefaultFields
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: httpClient,
		pastDays:   pastDays,
		fields:     fields,
		now:        now,
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

// API response types (from the Open-Meteo air quality API).

type errorResponse struct {
	Error  bool   `json:"error"`
	Reason string `json:"reason"`
}

type airQualityResponse struct {
	Latitude         float64                    `json:"latitude"`
	Longitude        float64                    `json:"longitude"`
	UTCOffsetSeconds int                        `json:"utc_offset_seconds"`
	Hourly           map[string]json.RawMessage `json:"hourly"`
}

// hourlyData is the decoded hourly block: unix timestamps plus one
// nullable value column per variable.
type hourlyData struct {
	times  []int64
	values map[string][]*float64
}

// FetchCurrent returns the hourly slot closest to now.
func (c *Client) FetchCurrent(ctx context.Context, zone airquality.Zone) (*airquality.Reading, error) {
	data, err := c.hourly(ctx, zone.Lat, zone.Lon)
	if err != nil {
		return nil, err
	}
	if len(data.times) == 0 {
		return nil, fmt.Errorf("%w: empty hourly series", airquality.ErrNoData)
	}

	idx := closestIndex(data.times, c.now().Unix())
	values := make(map[string]float64, len(data.values))
	for field, column := range data.values {
		if idx < len(column) && column[idx] != nil {
			values[field] = *column[idx]
		}
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("%w: no values at closest hour", airquality.ErrNoData)
	}

	return &airquality.Reading{
		Values:     values,
		ObservedAt: time.Unix(data.times[idx], 0).UTC(),
	}, nil
}

// FetchHistory returns every non-null hourly value inside window.
func (c *Client) FetchHistory(ctx context.Context, zone airquality.Zone, window time.Duration) ([]aqi.Series, error) {
	data, err := c.hourly(ctx, zone.Lat, zone.Lon)
	if err != nil {
		return nil, err
	}

	now := c.now()
	oldest := now.Add(-window).Unix()
	newest := now.Add(time.Hour).Unix()

	series := aqi.Series{Source: ProviderName}
	for i, ts := range data.times {
		if ts < oldest || ts > newest {
			continue
		}
		for field, column := range data.values {
			if i < len(column) && column[i] != nil {
				series.Samples = append(series.Samples, aqi.Sample{
					Time:      time.Unix(ts, 0).UTC(),
					Pollutant: field,
					Value:     *column[i],
				})
			}
		}
	}

	return []aqi.Series{series}, nil
}

// hourly fetches the hourly block for a coordinate, sharing in-flight
// requests for the same coordinate.
func (c *Client) hourly(ctx context.Context, lat, lon float64) (*hourlyData, error) {
	key := fmt.Sprintf("%.4f,%.4f", lat, lon)
	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		return c.fetchHourly(ctx, lat, lon)
	})
	if err != nil {
		return nil, err
	}
	return v.(*hourlyData), nil
}

func (c *Client) fetchHourly(ctx context.Context, lat, lon float64) (*hourlyData, error) {
	params := url.Values{}
	params.Set("latitude", strconv.FormatFloat(lat, 'f', 4, 64))
	params.Set("longitude", strconv.FormatFloat(lon, 'f', 4, 64))
	params.Set("hourly", strings.Join(c.fields, ","))
	params.Set("past_days", strconv.Itoa(c.pastDays))
	params.Set("timezone", "auto")
	params.Set("timeformat", "unixtime")

	reqURL := fmt.Sprintf("%s/air-quality?%s", c.baseURL, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch air quality: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr errorResponse
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Reason != "" {
			return nil, fmt.Errorf("%w: status %d from air-quality endpoint: %s", airquality.ErrUpstream, resp.StatusCode, apiErr.Reason)
		}
		return nil, fmt.Errorf("%w: unexpected status %d from air-quality endpoint", airquality.ErrUpstream, resp.StatusCode)
	}

	var result airQualityResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("%w: decode air-quality response: %v", airquality.ErrUpstream, err)
	}

	return toHourlyData(&result)
}

// toHourlyData splits the hourly block into the time column and the
// value columns.
func toHourlyData(r *airQualityResponse) (*hourlyData, error) {
	data := &hourlyData{values: make(map[string][]*float64, len(r.Hourly))}

	for field, raw := range r.Hourly {
		if field == "time" {
			if err := json.Unmarshal(raw, &data.times); err != nil {
				return nil, fmt.Errorf("%w: decode hourly time: %v", airquality.ErrUpstream, err)
			}
			continue
		}
		var column []*float64
		if err := json.Unmarshal(raw, &column); err != nil {
			// Non-numeric columns are not pollutants.
			continue
		}
		data.values[field] = column
	}

	return data, nil
}

// closestIndex returns the index of the timestamp nearest to target.
func closestIndex(times []int64, target int64) int {
	best := 0
	bestDiff := absDiff(times[0], target)
	for i, ts := range times[1:] {
		if d := absDiff(ts, target); d < bestDiff {
			best, bestDiff = i+1, d
		}
	}
	return best
}

func absDiff(a, b int64) int64 {
	if a > b {
		return a - b
	}
	return b - a
}
