// Package notify delivers completion and failure events to downstream
// listeners. Delivery is best-effort: the pipeline logs and swallows
// notifier errors, and a completed request stays completed even when
// its event never arrives.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/rich1edwards/vividly-mvp-sub007/internal/backend"
)

// EventPublisher is the transport slice the notifier needs. Satisfied
// by *queue.Client.
type EventPublisher interface {
	PublishEvent(subject string, data []byte) error
}

// event is the wire format of a notification.
type event struct {
	RequestID     string    `json:"request_id"`
	Status        string    `json:"status"`
	ErrorCode     string    `json:"error_code,omitempty"`
	ErrorMessage  string    `json:"error_message,omitempty"`
	FinalVideoURL string    `json:"final_video_url,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// EventNotifier publishes request outcomes to a NATS subject.
type EventNotifier struct {
	publisher EventPublisher
	subject   string
	logger    *slog.Logger
}

var _ backend.Notifier = (*EventNotifier)(nil)

// NewEventNotifier builds a notifier that publishes to the given
// subject.
func NewEventNotifier(publisher EventPublisher, subject string, logger *slog.Logger) *EventNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventNotifier{
		publisher: publisher,
		subject:   subject,
		logger:    logger.With(slog.String("component", "notifier")),
	}
}

// Notify publishes one outcome event.
func (n *EventNotifier) Notify(ctx context.Context, requestID uuid.UUID, outcome backend.Outcome) error {
	data, err := json.Marshal(event{
		RequestID:     requestID.String(),
		Status:        string(outcome.Status),
		ErrorCode:     outcome.ErrorCode,
		ErrorMessage:  outcome.ErrorMessage,
		FinalVideoURL: outcome.FinalVideoURL,
		OccurredAt:    time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	if err := n.publisher.PublishEvent(n.subject, data); err != nil {
		return err
	}

	n.logger.Debug("notification published",
		slog.String("request_id", requestID.String()),
		slog.String("status", string(outcome.Status)))
	return nil
}

// NoopNotifier discards all events. Used in tests and local runs
// without a listener.
type NoopNotifier struct{}

var _ backend.Notifier = (*NoopNotifier)(nil)

// Notify implements backend.Notifier by doing nothing.
func (NoopNotifier) Notify(ctx context.Context, requestID uuid.UUID, outcome backend.Outcome) error {
	return nil
}
