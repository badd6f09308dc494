package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"
)

// Job types accepted on the refresh subscription.
const (
	JobZoneRefresh = "zone_refresh"
	JobRefreshAll  = "refresh_all"
)

// ErrMalformedMessage marks messages that can never succeed; they are
// acked and dropped instead of redelivered.
var ErrMalformedMessage = errors.New("malformed refresh message")

// RefreshMessage represents an on-demand refresh request.
type RefreshMessage struct {
	JobType string   `json:"job_type"`
	ZoneIDs []string `json:"zone_ids,omitempty"`
}

// PubSubHandler force-refreshes zones on request.
type PubSubHandler struct {
	client           *pubsub.Client
	subscriber       *pubsub.Subscriber
	subscriptionName string
	scheduler        *Scheduler
	logger           zerolog.Logger
}

// PubSubConfig holds configuration for the Pub/Sub handler.
type PubSubConfig struct {
	ProjectID        string
	SubscriptionName string
	Scheduler        *Scheduler
	Logger           zerolog.Logger
}

// NewPubSubHandler creates a new Pub/Sub handler.
func NewPubSubHandler(ctx context.Context, cfg PubSubConfig) (*PubSubHandler, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	subscriber := client.Subscriber(cfg.SubscriptionName)

	// Refreshes are serialised per zone; a few outstanding messages suffice.
	subscriber.ReceiveSettings.MaxOutstandingMessages = 4
	subscriber.ReceiveSettings.MaxExtension = 10 * time.Minute

	return &PubSubHandler{
		client:           client,
		subscriber:       subscriber,
		subscriptionName: cfg.SubscriptionName,
		scheduler:        cfg.Scheduler,
		logger:           cfg.Logger.With().Str("component", "pubsub").Logger(),
	}, nil
}

// Start blocks processing messages until ctx is cancelled.
func (h *PubSubHandler) Start(ctx context.Context) error {
	h.logger.Info().
		Str("subscription", h.subscriptionName).
		Msg("starting pubsub handler")

	return h.subscriber.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		h.handleMessage(ctx, msg)
	})
}

// Close closes the Pub/Sub client.
func (h *PubSubHandler) Close() error {
	return h.client.Close()
}

func (h *PubSubHandler) handleMessage(ctx context.Context, msg *pubsub.Message) {
	startTime := time.Now()

	logger := h.logger.With().
		Str("message_id", msg.ID).
		Str("publish_time", msg.PublishTime.Format(time.RFC3339)).
		Logger()

	err := Handle(ctx, h.scheduler, msg.Data)
	switch {
	case errors.Is(err, ErrMalformedMessage):
		logger.Warn().Err(err).Msg("dropping refresh message")
		msg.Ack()
	case err != nil:
		logger.Error().Err(err).Msg("refresh job failed")
		msg.Nack()
	default:
		logger.Info().
			Dur("duration", time.Since(startTime)).
			Msg("refresh job completed")
		msg.Ack()
	}
}

// Handle decodes and runs one refresh message. It returns
// ErrMalformedMessage for payloads that should be dropped and a plain
// error when most refreshes failed and a retry may help.
func Handle(ctx context.Context, s *Scheduler, data []byte) error {
	var msg RefreshMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	var result *CycleResult
	switch msg.JobType {
	case JobRefreshAll:
		result = s.RefreshAll(ctx)
	case JobZoneRefresh:
		if len(msg.ZoneIDs) == 0 {
			return fmt.Errorf("%w: zone_refresh without zone_ids", ErrMalformedMessage)
		}
		if unknown := s.unknownZones(msg.ZoneIDs); len(unknown) > 0 {
			return fmt.Errorf("%w: unknown zones %v", ErrMalformedMessage, unknown)
		}
		result = s.RefreshZones(ctx, msg.ZoneIDs)
	default:
		return fmt.Errorf("%w: unknown job type %q", ErrMalformedMessage, msg.JobType)
	}

	if unsuccessful := result.Failed + result.Stale; unsuccessful > result.Refreshed {
		return fmt.Errorf("too many refresh failures: %d/%d", unsuccessful, result.Zones)
	}
	return nil
}
