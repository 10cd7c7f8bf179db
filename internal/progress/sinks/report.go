package sinks

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/progress-poller/internal/progress"
	"github.com/JakeFAU/progress-poller/internal/storage"
)

// Report is the JSON document written for each finished session.
type Report struct {
	SessionID  string        `json:"session_id"`
	JobID      string        `json:"job_id"`
	Result     string        `json:"result"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Error      string        `json:"error,omitempty"`
	Timeline   []ReportEntry `json:"timeline"`
}

// ReportEntry is one observed event within a Report.
type ReportEntry struct {
	At         time.Time `json:"at"`
	Stage      string    `json:"stage"`
	Tick       int       `json:"tick,omitempty"`
	Progress   float64   `json:"progress"`
	Message    string    `json:"message,omitempty"`
	StatusCode int       `json:"status_code,omitempty"`
	DurationMS int64     `json:"duration_ms"`
	Note       string    `json:"note,omitempty"`
}

// ReportSink accumulates a timeline per session and saves it through a
// storage.Provider when the session ends.
type ReportSink struct {
	provider storage.Provider
	prefix   string
	logger   *zap.Logger

	mu       sync.Mutex
	sessions map[[16]byte]*Report
}

// NewReportSink constructs a ReportSink writing objects under prefix
// (default "reports").
func NewReportSink(provider storage.Provider, prefix string, logger *zap.Logger) *ReportSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	if prefix == "" {
		prefix = "reports"
	}
	return &ReportSink{
		provider: provider,
		prefix:   prefix,
		logger:   logger,
		sessions: make(map[[16]byte]*Report),
	}
}

// ObjectName returns the storage key for a session report.
func (s *ReportSink) ObjectName(jobID string, sessionID [16]byte) string {
	return fmt.Sprintf("%s/%s/%s.json", s.prefix, url.PathEscape(jobID), uuid.UUID(sessionID))
}

// Consume appends events to their session timeline and saves the report on a
// terminal event. A failed save keeps the report so Close can retry it.
func (s *ReportSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.provider == nil {
		return nil
	}
	for _, evt := range batch {
		rep := s.record(evt)
		if !evt.Stage.Terminal() {
			continue
		}
		if err := s.save(ctx, evt.SessionID, rep); err != nil {
			return err
		}
	}
	return nil
}

func (s *ReportSink) record(evt progress.Event) *Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	rep, ok := s.sessions[evt.SessionID]
	if !ok {
		rep = &Report{
			SessionID: uuid.UUID(evt.SessionID).String(),
			JobID:     evt.JobID,
			Result:    progress.StageSessionStart.Result(),
			StartedAt: evt.TS,
		}
		s.sessions[evt.SessionID] = rep
	}
	rep.Timeline = append(rep.Timeline, ReportEntry{
		At:         evt.TS,
		Stage:      string(evt.Stage),
		Tick:       evt.Tick,
		Progress:   evt.Progress,
		Message:    evt.Message,
		StatusCode: evt.StatusCode,
		DurationMS: evt.Dur.Milliseconds(),
		Note:       evt.Note,
	})
	if evt.Stage.Terminal() {
		rep.Result = evt.Stage.Result()
		rep.FinishedAt = evt.TS
		rep.Error = evt.Note
	}
	return rep
}

func (s *ReportSink) save(ctx context.Context, id [16]byte, rep *Report) error {
	s.mu.Lock()
	data, err := json.MarshalIndent(rep, "", "  ")
	name := s.ObjectName(rep.JobID, id)
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	if err := s.provider.Save(ctx, name, data); err != nil {
		return fmt.Errorf("save report %s: %w", name, err)
	}
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
	s.logger.Info("saved poll report", zap.String("object", name), zap.String("result", rep.Result))
	return nil
}

// Close writes any reports still held, including sessions that never reached
// a terminal event.
func (s *ReportSink) Close(ctx context.Context) error {
	if s == nil || s.provider == nil {
		return nil
	}
	s.mu.Lock()
	pending := make(map[[16]byte]*Report, len(s.sessions))
	for id, rep := range s.sessions {
		pending[id] = rep
	}
	s.mu.Unlock()

	var firstErr error
	for id, rep := range pending {
		if err := s.save(ctx, id, rep); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
