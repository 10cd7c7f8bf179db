package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage denotes the type of observation represented by an Event.
type Stage string

// Supported poll stages.
const (
	StageSessionStart     Stage = "SESSION_START"
	StageTickUpdate       Stage = "TICK_UPDATE"
	StageTickFailure      Stage = "TICK_FAILURE"
	StageSessionReady     Stage = "SESSION_READY"
	StageSessionError     Stage = "SESSION_ERROR"
	StageSessionCanceled  Stage = "SESSION_CANCELED"
	StageSessionAbandoned Stage = "SESSION_ABANDONED"
)

// Terminal reports whether the stage ends a session.
func (s Stage) Terminal() bool {
	switch s {
	case StageSessionReady, StageSessionError, StageSessionCanceled, StageSessionAbandoned:
		return true
	default:
		return false
	}
}

// Result maps a terminal stage to the short label used by metrics and storage.
// Non-terminal stages map to "running".
func (s Stage) Result() string {
	switch s {
	case StageSessionReady:
		return "ready"
	case StageSessionError:
		return "failed"
	case StageSessionCanceled:
		return "canceled"
	case StageSessionAbandoned:
		return "abandoned"
	default:
		return "running"
	}
}

// Event captures a single observation made by a poll session.
type Event struct {
	// SessionID identifies one poll loop using the 16-byte UUID form.
	SessionID [16]byte
	// JobID is the opaque job identifier being polled.
	JobID string
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which lifecycle or tick milestone occurred.
	Stage Stage
	// Tick is the 1-based request number within the session.
	Tick int
	// Progress is the percentage reported on the tick.
	Progress float64
	// Message is the status line reported on the tick.
	Message string
	// StatusCode is the HTTP status of the response, 0 when no response arrived.
	StatusCode int
	// Dur is the request latency for tick stages and the session runtime for
	// terminal stages.
	Dur time.Duration
	// Note carries error text for failures.
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.SessionID == [16]byte{} {
		return errors.New("session id is required")
	}
	if e.JobID == "" {
		return errors.New("job id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageSessionStart, StageSessionCanceled, StageSessionAbandoned:
	case StageTickUpdate, StageTickFailure, StageSessionReady, StageSessionError:
		if e.Tick < 1 {
			return fmt.Errorf("%s requires tick >= 1", e.Stage)
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// SessionUUID converts the binary session ID to uuid.UUID for repositories.
func (e Event) SessionUUID() uuid.UUID {
	return uuid.UUID(e.SessionID)
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}
