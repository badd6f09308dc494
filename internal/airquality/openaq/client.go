// Package openaq provides a client for the OpenAQ v3 API.
package openaq

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/breatheroute/zoneaqi/internal/airquality"
	"github.com/breatheroute/zoneaqi/internal/aqi"
	"github.com/breatheroute/zoneaqi/internal/provider/resilience"
)

const (
	// DefaultBaseURL is the base URL for the OpenAQ v3 API.
	DefaultBaseURL = "https://api.openaq.org/v3"

	// ProviderName identifies this provider.
	ProviderName = "openaq"
)

// ClientConfig holds configuration for the OpenAQ client.
type ClientConfig struct {
	// BaseURL is the API base URL (defaults to DefaultBaseURL).
	BaseURL string

	// APIKey is sent as X-API-Key. Required.
	APIKey string

	// HTTPClient is the HTTP client to use.
	// If nil, a default resilient client will be created.
	HTTPClient HTTPDoer

	// Timeout for individual API requests (default: 15s).
	Timeout time.Duration

	// Supplement fills pollutants the station does not measure, typically
	// a weather-model source for ozone. Optional; its failures are logged
	// and ignored.
	Supplement airquality.Source

	// HistoryConcurrency bounds parallel per-sensor history calls (default: 4).
	HistoryConcurrency int

	// SensorTTL is how long a location's sensor list is reused for
	// history calls (default: 1h).
	SensorTTL time.Duration

	// MaxReadingAge drops latest values older than this (default: 6h).
	MaxReadingAge time.Duration

	// Logger for client operations.
	Logger zerolog.Logger

	// Now returns the current time (default: time.Now).
	Now func() time.Time
}

// HTTPDoer abstracts HTTP request execution.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client is an OpenAQ v3 client implementing airquality.Source.
// Zone.StationID is the OpenAQ location id.
type Client struct {
	baseURL            string
	apiKey             string
	httpClient         HTTPDoer
	supplement         airquality.Source
	historyConcurrency int
	sensorTTL          time.Duration
	maxReadingAge      time.Duration
	logger             zerolog.Logger
	now                func() time.Time

	group   singleflight.Group
	mu      sync.Mutex
	sensors map[string]sensorList
}

type sensorList struct {
	sensors   []sensorData
	fetchedAt time.Time
}

// NewClient creates a new OpenAQ client.
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
			Name:    ProviderName,
			Timeout: timeout,
			Logger:  cfg.Logger,
		})
	}

	historyConcurrency := cfg.HistoryConcurrency
	if historyConcurrency <= 0 {
		historyConcurrency = 4
	}

	sensorTTL := cfg.SensorTTL
	if sensorTTL <= 0 {
		sensorTTL = time.Hour
	}

	maxReadingAge := cfg.MaxReadingAge
	if maxReadingAge <= 0 {
		maxReadingAge = 6 * time.Hour
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Client{
		baseURL:            strings.TrimSuffix(baseURL, "/"),
		apiKey:             cfg.APIKey,
		httpClient:         httpClient,
		supplement:         cfg.Supplement,
		historyConcurrency: historyConcurrency,
		sensorTTL:          sensorTTL,
		maxReadingAge:      maxReadingAge,
		logger:             cfg.Logger.With().Str("provider", ProviderName).Logger(),
		now:                now,
		sensors:            make(map[string]sensorList),
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

// API response types (from the OpenAQ v3 API).

type dateTime struct {
	UTC   string `json:"utc"`
	Local string `json:"local"`
}

type parameter struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Units       string `json:"units"`
	DisplayName string `json:"displayName"`
}

type latestValue struct {
	Datetime dateTime `json:"datetime"`
	Value    float64  `json:"value"`
}

type sensorData struct {
	ID        int          `json:"id"`
	Name      string       `json:"name"`
	Parameter parameter    `json:"parameter"`
	Latest    *latestValue `json:"latest"`
}

type sensorsResponse struct {
	Results []sensorData `json:"results"`
}

type period struct {
	Label        string   `json:"label"`
	DatetimeFrom dateTime `json:"datetimeFrom"`
	DatetimeTo   dateTime `json:"datetimeTo"`
}

type hourData struct {
	Value  *float64 `json:"value"`
	Period period   `json:"period"`
}

type hoursResponse struct {
	Results []hourData `json:"results"`
}

// FetchCurrent reads the latest value of every sensor at the location.
// The sensors call is required; the supplement is best effort.
func (c *Client) FetchCurrent(ctx context.Context, zone airquality.Zone) (*airquality.Reading, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("%s: %w", ProviderName, airquality.ErrMissingCredential)
	}

	var (
		sensors    []sensorData
		supplement *airquality.Reading
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s, err := c.loadSensors(gctx, zone.StationID, true)
		if err != nil {
			return err
		}
		sensors = s
		return nil
	})
	if c.supplement != nil {
		g.Go(func() error {
			r, err := c.supplement.FetchCurrent(gctx, zone)
			if err != nil {
				c.logger.Warn().Err(err).Str("zone_id", zone.ID).Msg("supplement current unavailable")
				return nil
			}
			supplement = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	now := c.now()
	values := make(map[string]float64)
	var observedAt time.Time
	for _, s := range sensors {
		if s.Latest == nil {
			continue
		}
		at, err := time.Parse(time.RFC3339, s.Latest.Datetime.UTC)
		if err != nil || now.Sub(at) > c.maxReadingAge {
			continue
		}
		p, v, ok := toMicrograms(s.Parameter, s.Latest.Value)
		if !ok {
			continue
		}
		values[string(p)] = v
		if at.After(observedAt) {
			observedAt = at
		}
	}

	if supplement != nil {
		for key, v := range supplement.Values {
			p, ok := aqi.ParsePollutant(key)
			if !ok {
				continue
			}
			if _, have := values[string(p)]; !have {
				values[string(p)] = v
			}
		}
	}

	if len(values) == 0 {
		return nil, fmt.Errorf("%w: location %s has no recent values", airquality.ErrNoData, zone.StationID)
	}

	return &airquality.Reading{Values: values, ObservedAt: observedAt}, nil
}

// FetchHistory returns the supplement's history followed by the station's
// hourly averages, so station values win where both exist. Individual
// sensor failures leave gaps rather than failing the call.
func (c *Client) FetchHistory(ctx context.Context, zone airquality.Zone, window time.Duration) ([]aqi.Series, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("%s: %w", ProviderName, airquality.ErrMissingCredential)
	}

	sensors, err := c.loadSensors(ctx, zone.StationID, false)
	if err != nil {
		return nil, err
	}

	now := c.now()
	from := now.Add(-window)

	perSensor := make([][]aqi.Sample, len(sensors))
	var model []aqi.Series

	g := new(errgroup.Group)
	g.SetLimit(c.historyConcurrency)

	for i, s := range sensors {
		p, ok := aqi.ParsePollutant(s.Parameter.Name)
		if !ok || p.IsAncillary() {
			continue
		}
		g.Go(func() error {
			samples, err := c.sensorHours(ctx, s, from, now)
			if err != nil {
				c.logger.Warn().Err(err).
					Str("zone_id", zone.ID).
					Int("sensor_id", s.ID).
					Msg("sensor history unavailable")
				return nil
			}
			perSensor[i] = samples
			return nil
		})
	}
	if c.supplement != nil {
		g.Go(func() error {
			h, err := c.supplement.FetchHistory(ctx, zone, window)
			if err != nil {
				c.logger.Warn().Err(err).Str("zone_id", zone.ID).Msg("supplement history unavailable")
				return nil
			}
			model = h
			return nil
		})
	}
	_ = g.Wait()

	station := aqi.Series{Source: ProviderName}
	for _, samples := range perSensor {
		station.Samples = append(station.Samples, samples...)
	}

	return append(model, station), nil
}

// loadSensors returns the sensor list of a location. With refresh unset a
// list younger than SensorTTL is reused.
func (c *Client) loadSensors(ctx context.Context, locationID string, refresh bool) ([]sensorData, error) {
	if !refresh {
		c.mu.Lock()
		cached, ok := c.sensors[locationID]
		c.mu.Unlock()
		if ok && c.now().Sub(cached.fetchedAt) < c.sensorTTL {
			return cached.sensors, nil
		}
	}

	v, err, _ := c.group.Do(locationID, func() (interface{}, error) {
		sensors, err := c.fetchSensors(ctx, locationID)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.sensors[locationID] = sensorList{sensors: sensors, fetchedAt: c.now()}
		c.mu.Unlock()
		return sensors, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]sensorData), nil
}

func (c *Client) fetchSensors(ctx context.Context, locationID string) ([]sensorData, error) {
	endpoint := fmt.Sprintf("%s/locations/%s/sensors", c.baseURL, url.PathEscape(locationID))

	var result sensorsResponse
	if err := c.get(ctx, endpoint, "sensors endpoint", &result); err != nil {
		return nil, err
	}
	return result.Results, nil
}

func (c *Client) sensorHours(ctx context.Context, s sensorData, from, to time.Time) ([]aqi.Sample, error) {
	params := url.Values{}
	params.Set("datetime_from", from.UTC().Format(time.RFC3339))
	params.Set("datetime_to", to.UTC().Format(time.RFC3339))
	params.Set("limit", "100")
	endpoint := fmt.Sprintf("%s/sensors/%d/hours?%s", c.baseURL, s.ID, params.Encode())

	var result hoursResponse
	if err := c.get(ctx, endpoint, "sensor hours endpoint", &result); err != nil {
		return nil, err
	}

	samples := make([]aqi.Sample, 0, len(result.Results))
	for _, h := range result.Results {
		if h.Value == nil {
			continue
		}
		at, err := time.Parse(time.RFC3339, h.Period.DatetimeFrom.UTC)
		if err != nil {
			continue
		}
		p, v, ok := toMicrograms(s.Parameter, *h.Value)
		if !ok {
			continue
		}
		samples = append(samples, aqi.Sample{Time: at, Pollutant: string(p), Value: v})
	}
	return samples, nil
}

func (c *Client) get(ctx context.Context, endpoint, name string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("X-API-Key", c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return airquality.StatusError(name, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s response: %v", airquality.ErrUpstream, name, err)
	}
	return nil
}

// toMicrograms converts a sensor value into µg/m³ under its canonical
// key. Negative values are OpenAQ fill values and are rejected.
// Ancillary parameters pass through unchanged.
func toMicrograms(param parameter, value float64) (aqi.Pollutant, float64, bool) {
	p, ok := aqi.ParsePollutant(param.Name)
	if !ok {
		return "", 0, false
	}
	if p.IsAncillary() {
		return p, value, true
	}
	if value < 0 {
		return "", 0, false
	}
	v, ok := aqi.ToMicrograms(p, value, param.Units)
	return p, v, ok
}
