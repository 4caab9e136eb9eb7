package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"

	"duelpool/internal/event"
	"duelpool/internal/observability"
)

// OutboundPublisher publishes round notifications to NATS for downstream
// consumers (indexers, UIs). Fire-and-forget: a failed publish is logged
// and dropped; consumers needing completeness read the event log.
// Subjects follow the pattern duel.ledger.events.{type}.
type OutboundPublisher struct {
	js        jetstream.JetStream
	inputChan <-chan event.Notification
	logger    zerolog.Logger
}

func NewOutboundPublisher(js jetstream.JetStream, inputChan <-chan event.Notification) *OutboundPublisher {
	return &OutboundPublisher{
		js:        js,
		inputChan: inputChan,
		logger:    observability.NewLogger("publisher"),
	}
}

// Run starts the outbound publisher loop.
func (op *OutboundPublisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case note, ok := <-op.inputChan:
			if !ok {
				return nil
			}

			if err := op.publish(ctx, note); err != nil {
				op.logger.Warn().
					Int64("round_id", note.RoundID).
					Str("type", note.Type.String()).
					Err(err).
					Msg("outbound publish failed")
			}
		}
	}
}

func (op *OutboundPublisher) publish(ctx context.Context, note event.Notification) error {
	data, err := json.Marshal(note)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	subject := fmt.Sprintf("duel.ledger.events.%s", note.Type.String())
	_, err = op.js.Publish(ctx, subject, data)
	return err
}

// EnsureOutboundStream creates the outbound events stream.
func EnsureOutboundStream(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      "DUEL_LEDGER_EVENTS",
		Subjects:  []string{"duel.ledger.events.>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    72 * time.Hour,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create outbound stream: %w", err)
	}
	return nil
}
