package sinks

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/progress-poller/internal/progress"
	"github.com/JakeFAU/progress-poller/internal/storage"
)

func TestReportSinkSavesOnTerminal(t *testing.T) {
	t.Parallel()

	provider := &storage.MockProvider{}
	sink := NewReportSink(provider, "", nil)
	id := uuid.New()
	name := "reports/job-1/" + id.String() + ".json"

	var saved []byte
	provider.On("Save", mock.Anything, name, mock.Anything).
		Run(func(args mock.Arguments) { saved = args.Get(2).([]byte) }).
		Return(nil).Once()

	events := readySession(id)
	require.NoError(t, sink.Consume(context.Background(), events[:3]))
	provider.AssertNotCalled(t, "Save", mock.Anything, mock.Anything, mock.Anything)

	require.NoError(t, sink.Consume(context.Background(), events[3:]))
	provider.AssertExpectations(t)

	var rep Report
	require.NoError(t, json.Unmarshal(saved, &rep))
	require.Equal(t, "ready", rep.Result)
	require.Equal(t, "job-1", rep.JobID)
	require.Equal(t, base, rep.StartedAt)
	require.Len(t, rep.Timeline, 5)
	require.Equal(t, "TICK_FAILURE", rep.Timeline[2].Stage)

	// Nothing left for Close to flush.
	require.NoError(t, sink.Close(context.Background()))
	provider.AssertNumberOfCalls(t, "Save", 1)
}

func TestReportSinkCloseFlushesUnfinished(t *testing.T) {
	t.Parallel()

	provider := &storage.MockProvider{}
	sink := NewReportSink(provider, "runs", nil)
	id := uuid.New()
	provider.On("Save", mock.Anything, "runs/job-1/"+id.String()+".json", mock.Anything).Return(nil).Once()

	require.NoError(t, sink.Consume(context.Background(), readySession(id)[:2]))
	require.NoError(t, sink.Close(context.Background()))
	provider.AssertExpectations(t)
}

func TestReportSinkRetriesAfterSaveFailure(t *testing.T) {
	t.Parallel()

	provider := &storage.MockProvider{}
	sink := NewReportSink(provider, "", nil)
	provider.On("Save", mock.Anything, mock.Anything, mock.Anything).Return(assertErr("bucket offline")).Once()
	provider.On("Save", mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()

	err := sink.Consume(context.Background(), readySession(uuid.New()))
	require.ErrorContains(t, err, "bucket offline")
	require.NoError(t, sink.Close(context.Background()))
	provider.AssertNumberOfCalls(t, "Save", 2)
}

func TestReportSinkObjectNameEscapesJobID(t *testing.T) {
	t.Parallel()

	sink := NewReportSink(&storage.NoOpProvider{}, "", nil)
	id := uuid.MustParse("01890a5d-ac96-774b-bcce-b302099a8057")
	got := sink.ObjectName("../etc/passwd", progress.UUIDToBytes(id))
	require.Equal(t, "reports/..%2Fetc%2Fpasswd/01890a5d-ac96-774b-bcce-b302099a8057.json", got)
}
