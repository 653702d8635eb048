package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/kabuki/internal/value"
)

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		if err != nil {
			t.Fatalf("Open() iteration %d failed: %v", i, err)
		}
		s.Close()
	}
}

func TestOpen_Pragmas(t *testing.T) {
	s := createTestStore(t)

	assert.NoError(t, s.verifyPragma("journal_mode", "wal"))
	assert.NoError(t, s.verifyPragma("foreign_keys", "1"))
	assert.NoError(t, s.verifyPragma("busy_timeout", "5000"))
	assert.NoError(t, s.verifyPragma("user_version", "1"))
}

func TestOpen_RejectsNewerSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	require.NoError(t, err)
	_, err = s.db.Exec("PRAGMA user_version = 99")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = Open(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "newer than supported")
}

func TestClose_Nil(t *testing.T) {
	s := &Store{}
	assert.NoError(t, s.Close())
}

func TestWriteSession_Idempotent(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	sess := Session{ID: "s1", Pipeline: "rover", StartedSeq: 1}
	require.NoError(t, s.WriteSession(ctx, sess))
	require.NoError(t, s.WriteSession(ctx, sess))

	sessions, err := s.Sessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []Session{sess}, sessions)
}

func TestWriteDelivery_DuplicateIgnored(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	require.NoError(t, s.WriteSession(ctx, Session{ID: "s1", Pipeline: "p", StartedSeq: 1}))

	d := Delivery{SessionID: "s1", Cycle: 1, Output: "servo", Value: value.Number(1500), Seq: 2}
	inserted, err := s.WriteDelivery(ctx, d)
	require.NoError(t, err)
	assert.True(t, inserted)

	d.Value = value.Number(1600)
	d.Seq = 3
	inserted, err = s.WriteDelivery(ctx, d)
	require.NoError(t, err)
	assert.False(t, inserted)

	got, err := s.ReadDeliveries(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, value.Number(1500), got[0].Value)
}

func TestWriteDelivery_RequiresSession(t *testing.T) {
	s := createTestStore(t)
	_, err := s.WriteDelivery(context.Background(), Delivery{
		SessionID: "missing", Cycle: 1, Output: "x", Value: value.Number(1), Seq: 1,
	})
	assert.Error(t, err)
}

func TestWriteDelivery_RejectsNonFinite(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	require.NoError(t, s.WriteSession(ctx, Session{ID: "s1", Pipeline: "p", StartedSeq: 1}))

	_, err := s.WriteDelivery(ctx, Delivery{SessionID: "s1", Cycle: 1, Output: "x", Value: value.Number(posInf()), Seq: 2})
	assert.ErrorContains(t, err, "marshal value")
}

func TestReadDeliveries_OrderedBySeq(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	require.NoError(t, s.WriteSession(ctx, Session{ID: "s1", Pipeline: "p", StartedSeq: 1}))

	for _, d := range []Delivery{
		{SessionID: "s1", Cycle: 2, Output: "a", Value: value.String("late"), Seq: 9},
		{SessionID: "s1", Cycle: 1, Output: "a", Value: value.Object{"k": value.Bool(true)}, Seq: 3},
		{SessionID: "s1", Cycle: 1, Output: "b", Value: value.Null{}, Seq: 4},
	} {
		_, err := s.WriteDelivery(ctx, d)
		require.NoError(t, err)
	}

	got, err := s.ReadDeliveries(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []int64{3, 4, 9}, []int64{got[0].Seq, got[1].Seq, got[2].Seq})
	assert.Equal(t, value.Object{"k": value.Bool(true)}, got[0].Value)
	assert.Equal(t, value.Null{}, got[1].Value)
	assert.Equal(t, value.String("late"), got[2].Value)
}

func TestReadDeliveries_EmptyNotNil(t *testing.T) {
	s := createTestStore(t)
	got, err := s.ReadDeliveries(context.Background(), "none")
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestReadSession_NotFound(t *testing.T) {
	s := createTestStore(t)
	_, err := s.ReadSession(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	_, err = s.LatestSession(context.Background())
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestLastSeq(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	seq, err := s.LastSeq(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), seq)

	require.NoError(t, s.WriteSession(ctx, Session{ID: "s1", Pipeline: "p", StartedSeq: 5}))
	seq, err = s.LastSeq(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(5), seq)

	_, err = s.WriteDelivery(ctx, Delivery{SessionID: "s1", Cycle: 1, Output: "a", Value: value.Number(1), Seq: 7})
	require.NoError(t, err)
	seq, err = s.LastSeq(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(7), seq)
}

func TestClock(t *testing.T) {
	c := NewClockAt(10)
	assert.Equal(t, int64(11), c.Next())
	assert.Equal(t, int64(11), c.Current())
	assert.Equal(t, int64(1), NewClock().Next())
}
