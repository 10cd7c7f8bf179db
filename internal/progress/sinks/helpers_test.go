package sinks

import (
	"time"

	"github.com/google/uuid"

	"github.com/JakeFAU/progress-poller/internal/progress"
)

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// readySession returns a start, two updates, a failure and a ready event.
func readySession(id uuid.UUID) []progress.Event {
	sid := progress.UUIDToBytes(id)
	return []progress.Event{
		{SessionID: sid, JobID: "job-1", TS: base, Stage: progress.StageSessionStart},
		{
			SessionID: sid, JobID: "job-1", TS: base.Add(time.Second), Stage: progress.StageTickUpdate,
			Tick: 1, Progress: 10, Message: "starting", StatusCode: 200, Dur: 20 * time.Millisecond,
		},
		{
			SessionID: sid, JobID: "job-1", TS: base.Add(2 * time.Second), Stage: progress.StageTickFailure,
			Tick: 2, Dur: 5 * time.Millisecond, Note: "connection refused",
		},
		{
			SessionID: sid, JobID: "job-1", TS: base.Add(3 * time.Second), Stage: progress.StageTickUpdate,
			Tick: 3, Progress: 55, Message: "working", StatusCode: 200, Dur: 30 * time.Millisecond,
		},
		{
			SessionID: sid, JobID: "job-1", TS: base.Add(4 * time.Second), Stage: progress.StageSessionReady,
			Tick: 4, StatusCode: 200, Dur: 4 * time.Second,
		},
	}
}

type assertErr string

func (e assertErr) Error() string { return string(e) }
