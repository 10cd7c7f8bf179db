package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound signals that the requested record does not exist.
var ErrNotFound = errors.New("poll session not found")

// SessionResult mirrors the poll_sessions.result column.
type SessionResult string

// Session results persisted in poll_sessions.result.
const (
	ResultRunning   SessionResult = "running"
	ResultReady     SessionResult = "ready"
	ResultFailed    SessionResult = "failed"
	ResultCanceled  SessionResult = "canceled"
	ResultAbandoned SessionResult = "abandoned"
)

// Session models one row of poll_sessions.
type Session struct {
	ID         uuid.UUID
	JobID      string
	StartedAt  time.Time
	FinishedAt *time.Time
	Result     SessionResult
	// ErrorMessage holds the job error or the last transport failure.
	ErrorMessage *string
}

// Tick models one row of poll_ticks.
type Tick struct {
	SessionID  uuid.UUID
	Seq        int
	At         time.Time
	Progress   float64
	Message    string
	StatusCode int
	// Failed is true when the tick produced no usable response.
	Failed   bool
	Note     string
	Duration time.Duration
}

// HistoryRepository persists poll sessions and their ticks.
type HistoryRepository interface {
	// StartSession inserts the session row, ignoring duplicates.
	StartSession(ctx context.Context, sessionID uuid.UUID, jobID string, startedAt time.Time) error
	// RecordTick appends one tick; re-recording the same seq overwrites it.
	RecordTick(ctx context.Context, tick Tick) error
	// FinishSession stamps the result. Returns ErrNotFound for unknown sessions.
	FinishSession(ctx context.Context, sessionID uuid.UUID, finishedAt time.Time, result SessionResult, errMsg *string) error
	// ListTicks returns ticks for a session ordered by seq.
	ListTicks(ctx context.Context, sessionID uuid.UUID, limit int) ([]Tick, error)
}
