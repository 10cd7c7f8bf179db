package sinks

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/progress-poller/internal/progress"
	"github.com/JakeFAU/progress-poller/internal/publisher/memory"
)

func TestNotifySinkPublishesTerminalOnly(t *testing.T) {
	t.Parallel()

	pub := memory.New()
	sink := NewNotifySink(pub, "poll-outcomes", nil)
	id := uuid.New()

	require.NoError(t, sink.Consume(context.Background(), readySession(id)))

	msgs := pub.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, "poll-outcomes", msgs[0].Topic)
	n, ok := msgs[0].Payload.(OutcomeNotification)
	require.True(t, ok)
	require.Equal(t, id.String(), n.SessionID)
	require.Equal(t, "job-1", n.JobID)
	require.Equal(t, "ready", n.Result)
	require.Equal(t, 4, n.Ticks)
	require.InDelta(t, 4.0, n.RuntimeSeconds, 1e-9)
}

func TestNotifySinkPublishError(t *testing.T) {
	t.Parallel()

	pub := memory.New()
	pub.FailWith(assertErr("unavailable"))
	sink := NewNotifySink(pub, "poll-outcomes", nil)

	err := sink.Consume(context.Background(), readySession(uuid.New()))
	require.ErrorContains(t, err, "unavailable")
}

func TestNewOutcomeNotificationCarriesError(t *testing.T) {
	t.Parallel()

	n := NewOutcomeNotification(progress.Event{
		SessionID: progress.UUIDToBytes(uuid.New()),
		JobID:     "job-9",
		TS:        base,
		Stage:     progress.StageSessionError,
		Tick:      1,
		Note:      "job failed",
	})
	require.Equal(t, "failed", n.Result)
	require.Equal(t, "job failed", n.Error)
	require.Equal(t, base, n.FinishedAt)
}
