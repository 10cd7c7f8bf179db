package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/progress-poller/internal/store"
)

var sessionID = uuid.MustParse("01890a5d-ac96-774b-bcce-b302099a8057")

func newMockStore(t *testing.T) (*HistoryStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	s, err := NewHistoryStoreWithPool(mock)
	require.NoError(t, err)
	return s, mock
}

func TestNewHistoryStoreRequiresDSN(t *testing.T) {
	t.Parallel()

	_, err := NewHistoryStore(context.Background(), HistoryStoreConfig{})
	require.ErrorContains(t, err, "db.dsn")
}

func TestNewHistoryStoreWithPoolRequiresPool(t *testing.T) {
	t.Parallel()

	_, err := NewHistoryStoreWithPool(nil)
	require.Error(t, err)
}

func TestEnsureSchemaAppliesEveryStatement(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS poll_sessions").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS poll_ticks").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec("CREATE INDEX IF NOT EXISTS").WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureSchemaStopsOnError(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS poll_sessions").WillReturnError(errors.New("permission denied"))

	err := s.EnsureSchema(context.Background())
	require.ErrorContains(t, err, "permission denied")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStartSessionInsertsRunningRow(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	started := time.Unix(1700000000, 0).UTC()
	mock.ExpectExec("INSERT INTO poll_sessions").
		WithArgs(sessionID, "job-1", started, "running").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.StartSession(context.Background(), sessionID, "job-1", started))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordTickWritesMilliseconds(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	at := time.Unix(1700000001, 0).UTC()
	tick := store.Tick{
		SessionID:  sessionID,
		Seq:        2,
		At:         at,
		Progress:   55,
		Message:    "working",
		StatusCode: 200,
		Duration:   1500 * time.Millisecond,
	}
	mock.ExpectExec("INSERT INTO poll_ticks").
		WithArgs(sessionID, 2, at, float64(55), "working", 200, false, "", int64(1500)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.RecordTick(context.Background(), tick))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordTickRejectsZeroSeq(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	require.Error(t, s.RecordTick(context.Background(), store.Tick{SessionID: sessionID}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFinishSession(t *testing.T) {
	t.Parallel()

	finished := time.Unix(1700000010, 0).UTC()
	msg := "job failed"

	t.Run("updates row", func(t *testing.T) {
		t.Parallel()
		s, mock := newMockStore(t)
		mock.ExpectExec("UPDATE poll_sessions").
			WithArgs(finished, "failed", &msg, sessionID).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		require.NoError(t, s.FinishSession(context.Background(), sessionID, finished, store.ResultFailed, &msg))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown session", func(t *testing.T) {
		t.Parallel()
		s, mock := newMockStore(t)
		mock.ExpectExec("UPDATE poll_sessions").
			WithArgs(finished, "ready", (*string)(nil), sessionID).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		err := s.FinishSession(context.Background(), sessionID, finished, store.ResultReady, nil)
		require.ErrorIs(t, err, store.ErrNotFound)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestListTicksScansRows(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	at := time.Unix(1700000001, 0).UTC()
	rows := pgxmock.NewRows([]string{
		"session_id", "seq", "at", "progress", "message", "status_code", "failed", "note", "duration_ms",
	}).
		AddRow(sessionID, 1, at, float64(10), "starting", 200, false, "", int64(20)).
		AddRow(sessionID, 2, at.Add(time.Second), float64(0), "", 0, true, "connection refused", int64(5))
	mock.ExpectQuery("SELECT session_id, seq").
		WithArgs(sessionID, 50).
		WillReturnRows(rows)

	ticks, err := s.ListTicks(context.Background(), sessionID, 50)
	require.NoError(t, err)
	require.Len(t, ticks, 2)
	require.Equal(t, "starting", ticks[0].Message)
	require.Equal(t, 20*time.Millisecond, ticks[0].Duration)
	require.True(t, ticks[1].Failed)
	require.Equal(t, "connection refused", ticks[1].Note)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListTicksWithoutLimit(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	mock.ExpectQuery("SELECT session_id, seq").
		WithArgs(sessionID).
		WillReturnRows(pgxmock.NewRows([]string{
			"session_id", "seq", "at", "progress", "message", "status_code", "failed", "note", "duration_ms",
		}))

	ticks, err := s.ListTicks(context.Background(), sessionID, 0)
	require.NoError(t, err)
	require.Empty(t, ticks)
	require.NoError(t, mock.ExpectationsWereMet())
}
