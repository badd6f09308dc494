package worker_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/breatheroute/zoneaqi/internal/airquality"
	"github.com/breatheroute/zoneaqi/internal/worker"
)

func TestHandle_MalformedMessages(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"invalid json", `{"job_type":`},
		{"unknown job", `{"job_type":"provider_refresh"}`},
		{"zone refresh without ids", `{"job_type":"zone_refresh"}`},
		{"unknown zone", `{"job_type":"zone_refresh","zone_ids":["a","atlantis"]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newFakeRefresher("a")
			s := newScheduler(r, worker.SchedulerConfig{})

			err := worker.Handle(context.Background(), s, []byte(tt.data))
			assert.ErrorIs(t, err, worker.ErrMalformedMessage)
			assert.Empty(t, r.Calls())
		})
	}
}

func TestHandle_ZoneRefresh(t *testing.T) {
	r := newFakeRefresher("a", "b", "c")
	s := newScheduler(r, worker.SchedulerConfig{})

	err := worker.Handle(context.Background(), s, []byte(`{"job_type":"zone_refresh","zone_ids":["b"]}`))
	assert.NoError(t, err)
	assert.Equal(t, []call{{"b", true}}, r.Calls())
}

func TestHandle_RefreshAll(t *testing.T) {
	r := newFakeRefresher("a", "b", "c")
	s := newScheduler(r, worker.SchedulerConfig{})

	err := worker.Handle(context.Background(), s, []byte(`{"job_type":"refresh_all"}`))
	assert.NoError(t, err)
	assert.Len(t, r.Calls(), 3)
	assert.Zero(t, s.Metrics().Cycles, "on-demand passes stay out of scheduler stats")
}

func TestHandle_MostlyFailedIsRetryable(t *testing.T) {
	r := newFakeRefresher("a", "b", "c")
	r.errs["a"] = errors.New("down")
	r.outcomes["b"] = airquality.OutcomeStale

	s := newScheduler(r, worker.SchedulerConfig{})

	err := worker.Handle(context.Background(), s, []byte(`{"job_type":"refresh_all"}`))
	assert.Error(t, err)
	assert.NotErrorIs(t, err, worker.ErrMalformedMessage)
}
