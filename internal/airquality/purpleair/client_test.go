package purpleair_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/breatheroute/zoneaqi/internal/airquality"
	"github.com/breatheroute/zoneaqi/internal/airquality/purpleair"
	"github.com/breatheroute/zoneaqi/internal/aqi"
	"github.com/breatheroute/zoneaqi/internal/readinglog"
)

var (
	testNow  = time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	testZone = airquality.Zone{ID: "gulmarg", Name: "Gulmarg", Lat: 34.05, Lon: 74.38, Provider: purpleair.ProviderName, StationID: "131075"}
)

const sensorBody = `{
	"api_version": "V1.0.11",
	"time_stamp": 1792238400,
	"data_time_stamp": 1792238400,
	"sensor": {
		"sensor_index": 131075,
		"last_seen": 1792238340,
		"pm2.5_atm": 18.4,
		"pm10.0_atm": 31.2,
		"temperature": 77,
		"humidity": 42
	}
}`

type failingLog struct{}

func (failingLog) Append(context.Context, string, readinglog.Record) error {
	return errors.New("disk full")
}

func (failingLog) Load(context.Context, string) ([]readinglog.Record, error) {
	return nil, errors.New("disk full")
}

func (failingLog) Close() error { return nil }

func newServer(t *testing.T, status int, body string, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/v1/sensors/131075", r.URL.Path)
		assert.Equal(t, "last_seen,pm2.5_atm,pm10.0_atm,temperature,humidity", r.URL.Query().Get("fields"))
		assert.Equal(t, "secret", r.Header.Get("X-API-Key"))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newLog(t *testing.T) readinglog.Store {
	t.Helper()
	store, err := readinglog.NewLocalStore(t.TempDir(), 0, func() time.Time { return testNow })
	require.NoError(t, err)
	return store
}

func newClient(baseURL string, log readinglog.Store) *purpleair.Client {
	return purpleair.NewClient(purpleair.ClientConfig{
		BaseURL:    baseURL,
		APIKey:     "secret",
		HTTPClient: http.DefaultClient,
		Log:        log,
		Logger:     zerolog.Nop(),
		Now:        func() time.Time { return testNow },
	})
}

func TestClient_FetchCurrent(t *testing.T) {
	var calls atomic.Int32
	srv := newServer(t, http.StatusOK, sensorBody, &calls)
	client := newClient(srv.URL, newLog(t))

	reading, err := client.FetchCurrent(context.Background(), testZone)
	require.NoError(t, err)

	assert.Equal(t, 18.4, reading.Values["pm2_5"])
	assert.Equal(t, 31.2, reading.Values["pm10"])
	assert.InDelta(t, 25.0, reading.Values["temp"], 0.001)
	assert.Equal(t, 42.0, reading.Values["humidity"])
	assert.Equal(t, time.Unix(1792238340, 0).UTC(), reading.ObservedAt)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_FetchCurrentObservedAtFallbacks(t *testing.T) {
	cases := map[string]struct {
		body string
		want time.Time
	}{
		"data timestamp": {
			body: `{"data_time_stamp": 1792238400, "sensor": {"pm2.5_atm": 9}}`,
			want: time.Unix(1792238400, 0).UTC(),
		},
		"local clock": {
			body: `{"sensor": {"pm2.5_atm": 9}}`,
			want: testNow,
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			var calls atomic.Int32
			srv := newServer(t, http.StatusOK, tc.body, &calls)
			client := newClient(srv.URL, nil)

			reading, err := client.FetchCurrent(context.Background(), testZone)
			require.NoError(t, err)
			assert.Equal(t, tc.want, reading.ObservedAt)
		})
	}
}

func TestClient_FetchCurrentAppendsToLog(t *testing.T) {
	var calls atomic.Int32
	srv := newServer(t, http.StatusOK, sensorBody, &calls)
	log := newLog(t)
	client := newClient(srv.URL, log)

	_, err := client.FetchCurrent(context.Background(), testZone)
	require.NoError(t, err)

	records, err := log.Load(context.Background(), testZone.ID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, int64(1792238340), records[0].Timestamp)
	assert.Equal(t, 18.4, *records[0].PM25)
	assert.Equal(t, 31.2, *records[0].PM10)
}

func TestClient_LogFailureDoesNotFailReading(t *testing.T) {
	var calls atomic.Int32
	srv := newServer(t, http.StatusOK, sensorBody, &calls)
	client := newClient(srv.URL, failingLog{})

	reading, err := client.FetchCurrent(context.Background(), testZone)
	require.NoError(t, err)
	assert.Equal(t, 18.4, reading.Values["pm2_5"])
}

func TestClient_MissingAPIKey(t *testing.T) {
	client := purpleair.NewClient(purpleair.ClientConfig{BaseURL: "http://127.0.0.1:1", HTTPClient: http.DefaultClient})

	_, err := client.FetchCurrent(context.Background(), testZone)
	assert.ErrorIs(t, err, airquality.ErrMissingCredential)
	assert.Equal(t, airquality.KindConfig, airquality.Classify(err))
}

func TestClient_StatusErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
		kind   airquality.ErrorKind
	}{
		{"forbidden", http.StatusForbidden, airquality.ErrCredentialRejected, airquality.KindConfig},
		{"not found", http.StatusNotFound, airquality.ErrNoData, airquality.KindNoData},
		{"server error", http.StatusInternalServerError, airquality.ErrUpstream, airquality.KindUpstream},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			srv := newServer(t, tt.status, `{"error":"x"}`, &calls)
			client := newClient(srv.URL, nil)

			_, err := client.FetchCurrent(context.Background(), testZone)
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, tt.kind, airquality.Classify(err))
		})
	}
}

func TestClient_NoParticulates(t *testing.T) {
	var calls atomic.Int32
	srv := newServer(t, http.StatusOK, `{"sensor":{"sensor_index":131075,"temperature":70}}`, &calls)
	client := newClient(srv.URL, newLog(t))

	_, err := client.FetchCurrent(context.Background(), testZone)
	assert.ErrorIs(t, err, airquality.ErrNoData)
}

func TestClient_FetchHistoryFromLog(t *testing.T) {
	log := newLog(t)
	ctx := context.Background()
	pm25 := 10.0
	pm10 := 20.0
	require.NoError(t, log.Append(ctx, testZone.ID, readinglog.Record{Timestamp: testNow.Add(-25 * time.Hour).Unix(), PM25: &pm25}))
	require.NoError(t, log.Append(ctx, testZone.ID, readinglog.Record{Timestamp: testNow.Add(-2 * time.Hour).Unix(), PM25: &pm25, PM10: &pm10}))

	client := newClient("http://127.0.0.1:1", log)

	series, err := client.FetchHistory(ctx, testZone, 24*time.Hour)
	require.NoError(t, err)
	require.Len(t, series, 1)
	assert.Equal(t, purpleair.ProviderName, series[0].Source)
	require.Len(t, series[0].Samples, 2)
	assert.Equal(t, aqi.Sample{Time: testNow.Add(-2 * time.Hour), Pollutant: "pm2_5", Value: 10}, series[0].Samples[0])
	assert.Equal(t, "pm10", series[0].Samples[1].Pollutant)
}

func TestClient_FetchHistoryWithoutLog(t *testing.T) {
	client := newClient("http://127.0.0.1:1", nil)

	series, err := client.FetchHistory(context.Background(), testZone, 24*time.Hour)
	require.NoError(t, err)
	assert.Empty(t, series)
}

func TestClient_FetchHistoryLogError(t *testing.T) {
	client := newClient("http://127.0.0.1:1", failingLog{})

	_, err := client.FetchHistory(context.Background(), testZone, 24*time.Hour)
	assert.Error(t, err)
}
