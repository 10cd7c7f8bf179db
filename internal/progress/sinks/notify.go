package sinks

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/progress-poller/internal/progress"
)

// Publisher delivers a payload to a topic and returns the broker message ID.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// OutcomeNotification is the JSON document published once per finished session.
type OutcomeNotification struct {
	SessionID      string    `json:"session_id"`
	JobID          string    `json:"job_id"`
	Result         string    `json:"result"`
	Ticks          int       `json:"ticks"`
	Progress       float64   `json:"progress"`
	Message        string    `json:"message,omitempty"`
	Error          string    `json:"error,omitempty"`
	RuntimeSeconds float64   `json:"runtime_seconds"`
	FinishedAt     time.Time `json:"finished_at"`
}

// NotifySink publishes an OutcomeNotification for every terminal event.
type NotifySink struct {
	pub    Publisher
	topic  string
	logger *zap.Logger
}

// NewNotifySink constructs a NotifySink publishing to topic.
func NewNotifySink(pub Publisher, topic string, logger *zap.Logger) *NotifySink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotifySink{pub: pub, topic: topic, logger: logger}
}

// Consume ignores non-terminal events and returns the first publish error.
func (s *NotifySink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.pub == nil {
		return nil
	}
	for _, evt := range batch {
		if !evt.Stage.Terminal() {
			continue
		}
		n := NewOutcomeNotification(evt)
		id, err := s.pub.Publish(ctx, s.topic, n)
		if err != nil {
			return fmt.Errorf("publish outcome for session %s: %w", n.SessionID, err)
		}
		s.logger.Debug("published poll outcome",
			zap.String("session_id", n.SessionID),
			zap.String("result", n.Result),
			zap.String("message_id", id),
		)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *NotifySink) Close(context.Context) error {
	return nil
}

// NewOutcomeNotification summarizes a terminal event.
func NewOutcomeNotification(evt progress.Event) OutcomeNotification {
	return OutcomeNotification{
		SessionID:      uuid.UUID(evt.SessionID).String(),
		JobID:          evt.JobID,
		Result:         evt.Stage.Result(),
		Ticks:          evt.Tick,
		Progress:       evt.Progress,
		Message:        evt.Message,
		Error:          evt.Note,
		RuntimeSeconds: evt.Dur.Seconds(),
		FinishedAt:     evt.TS,
	}
}
