package sinks

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/progress-poller/internal/progress"
	"github.com/JakeFAU/progress-poller/internal/store"
)

// StoreSink persists poll history via a store.HistoryRepository.
type StoreSink struct {
	repo   store.HistoryRepository
	logger *zap.Logger
}

// NewStoreSink constructs a StoreSink for the provided repository.
func NewStoreSink(repo store.HistoryRepository, logger *zap.Logger) *StoreSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreSink{repo: repo, logger: logger}
}

// Consume writes events in order. It respects ctx deadlines and stops at the
// first repository error.
func (s *StoreSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.repo == nil {
		return nil
	}
	for _, evt := range batch {
		if err := s.consumeEvent(ctx, evt); err != nil {
			return err
		}
	}
	return nil
}

func (s *StoreSink) consumeEvent(ctx context.Context, evt progress.Event) error {
	sessionID := evt.SessionUUID()
	if evt.Stage == progress.StageSessionStart {
		if err := s.repo.StartSession(ctx, sessionID, evt.JobID, evt.TS); err != nil {
			return fmt.Errorf("start session: %w", err)
		}
		return nil
	}

	if tick, ok := tickFromEvent(evt); ok {
		if err := s.repo.RecordTick(ctx, tick); err != nil {
			return fmt.Errorf("record tick: %w", err)
		}
	}

	if !evt.Stage.Terminal() {
		return nil
	}
	var note *string
	if evt.Note != "" {
		note = &evt.Note
	}
	result := store.SessionResult(evt.Stage.Result())
	if err := s.repo.FinishSession(ctx, sessionID, evt.TS, result, note); err != nil {
		return fmt.Errorf("finish session: %w", err)
	}
	return nil
}

// tickFromEvent maps events that describe a request to a tick row. Ready and
// error events carry session runtime in Dur, so their duration is left unset.
func tickFromEvent(evt progress.Event) (store.Tick, bool) {
	tick := store.Tick{
		SessionID:  evt.SessionUUID(),
		Seq:        evt.Tick,
		At:         evt.TS,
		Progress:   evt.Progress,
		Message:    evt.Message,
		StatusCode: evt.StatusCode,
		Note:       evt.Note,
	}
	switch evt.Stage {
	case progress.StageTickUpdate:
		tick.Duration = evt.Dur
	case progress.StageTickFailure:
		tick.Failed = true
		tick.Duration = evt.Dur
	case progress.StageSessionReady, progress.StageSessionError:
	default:
		return store.Tick{}, false
	}
	return tick, true
}

// Close implements the Sink interface; it performs no action.
func (s *StoreSink) Close(context.Context) error {
	return nil
}
