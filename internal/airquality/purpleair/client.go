// Package purpleair provides a client for the PurpleAir sensor API.
//
// PurpleAir only reports current values, so every successful reading is
// appended to a rolling reading log and history is served from that log.
package purpleair

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/breatheroute/zoneaqi/internal/airquality"
	"github.com/breatheroute/zoneaqi/internal/aqi"
	"github.com/breatheroute/zoneaqi/internal/provider/resilience"
	"github.com/breatheroute/zoneaqi/internal/readinglog"
)

const (
	// DefaultBaseURL is the base URL for the PurpleAir API.
	DefaultBaseURL = "https://api.purpleair.com"

	// ProviderName identifies this provider.
	ProviderName = "purpleair"
)

// sensorFields are the fields requested for every sensor.
var sensorFields = []string{"last_seen", "pm2.5_atm", "pm10.0_atm", "temperature", "humidity"}

// ClientConfig holds configuration for the PurpleAir client.
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

	// Log receives every successful reading. Optional; without it
	// FetchHistory returns nothing.
	Log readinglog.Store

	// Logger for client operations.
	Logger zerolog.Logger

	// Now returns the current time (default: time.Now).
	Now func() time.Time
}

// HTTPDoer abstracts HTTP request execution.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client is a PurpleAir client implementing airquality.Source.
// Zone.StationID is the sensor index.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient HTTPDoer
	log        readinglog.Store
	logger     zerolog.Logger
	now        func() time.Time
}

// NewClient creates a new PurpleAir client.
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

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: httpClient,
		log:        cfg.Log,
		logger:     cfg.Logger.With().Str("provider", ProviderName).Logger(),
		now:        now,
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

type sensorData struct {
	SensorIndex int      `json:"sensor_index"`
	LastSeen    int64    `json:"last_seen"`
	PM25        *float64 `json:"pm2.5_atm"`
	PM10        *float64 `json:"pm10.0_atm"`
	Temperature *float64 `json:"temperature"`
	Humidity    *float64 `json:"humidity"`
}

type sensorResponse struct {
	DataTimeStamp int64      `json:"data_time_stamp"`
	Sensor        sensorData `json:"sensor"`
}

// FetchCurrent reads the sensor and logs the particulate values.
func (c *Client) FetchCurrent(ctx context.Context, zone airquality.Zone) (*airquality.Reading, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("%s: %w", ProviderName, airquality.ErrMissingCredential)
	}

	resp, err := c.fetchSensor(ctx, zone.StationID)
	if err != nil {
		return nil, err
	}
	sensor := resp.Sensor

	values := make(map[string]float64)
	if sensor.PM25 != nil && *sensor.PM25 >= 0 {
		values[string(aqi.PM25)] = *sensor.PM25
	}
	if sensor.PM10 != nil && *sensor.PM10 >= 0 {
		values[string(aqi.PM10)] = *sensor.PM10
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("%w: sensor %s reported no particulate values", airquality.ErrNoData, zone.StationID)
	}
	if sensor.Temperature != nil {
		values[string(aqi.Temperature)] = fahrenheitToCelsius(*sensor.Temperature)
	}
	if sensor.Humidity != nil {
		values[string(aqi.Humidity)] = *sensor.Humidity
	}

	observedAt := observedTime(resp, c.now())

	c.record(ctx, zone.ID, observedAt, values)

	return &airquality.Reading{Values: values, ObservedAt: observedAt}, nil
}

// observedTime prefers the sensor's last report, then the time the API
// assembled the data, then the local clock.
func observedTime(resp *sensorResponse, now time.Time) time.Time {
	switch {
	case resp.Sensor.LastSeen > 0:
		return time.Unix(resp.Sensor.LastSeen, 0).UTC()
	case resp.DataTimeStamp > 0:
		return time.Unix(resp.DataTimeStamp, 0).UTC()
	default:
		return now.UTC()
	}
}

// FetchHistory returns the logged readings as a single series.
func (c *Client) FetchHistory(ctx context.Context, zone airquality.Zone, window time.Duration) ([]aqi.Series, error) {
	if c.log == nil {
		return nil, nil
	}

	records, err := c.log.Load(ctx, zone.ID)
	if err != nil {
		return nil, fmt.Errorf("load reading log: %w", err)
	}

	from := c.now().Add(-window)
	series := aqi.Series{Source: ProviderName}
	for _, r := range records {
		at := r.Time()
		if at.Before(from) {
			continue
		}
		if r.PM25 != nil {
			series.Samples = append(series.Samples, aqi.Sample{Time: at, Pollutant: string(aqi.PM25), Value: *r.PM25})
		}
		if r.PM10 != nil {
			series.Samples = append(series.Samples, aqi.Sample{Time: at, Pollutant: string(aqi.PM10), Value: *r.PM10})
		}
	}
	return []aqi.Series{series}, nil
}

// record appends a reading to the log. Failures only cost history.
func (c *Client) record(ctx context.Context, zoneID string, at time.Time, values map[string]float64) {
	if c.log == nil {
		return
	}
	rec := readinglog.Record{Timestamp: at.Unix()}
	if v, ok := values[string(aqi.PM25)]; ok {
		rec.PM25 = &v
	}
	if v, ok := values[string(aqi.PM10)]; ok {
		rec.PM10 = &v
	}
	if err := c.log.Append(ctx, zoneID, rec); err != nil {
		c.logger.Warn().Err(err).Str("zone_id", zoneID).Msg("failed to append reading log")
	}
}

func (c *Client) fetchSensor(ctx context.Context, sensorIndex string) (*sensorResponse, error) {
	params := url.Values{}
	params.Set("fields", strings.Join(sensorFields, ","))
	endpoint := fmt.Sprintf("%s/v1/sensors/%s?%s", c.baseURL, url.PathEscape(sensorIndex), params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("X-API-Key", c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch sensor: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, airquality.StatusError("sensor endpoint", resp.StatusCode)
	}

	var result sensorResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("%w: decode sensor response: %v", airquality.ErrUpstream, err)
	}
	return &result, nil
}

func fahrenheitToCelsius(f float64) float64 {
	return (f - 32) * 5 / 9
}
