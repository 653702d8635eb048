package store

import (
	"context"
	"math"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/kabuki/internal/controller"
	"github.com/roach88/kabuki/internal/graph"
	"github.com/roach88/kabuki/internal/testutil"
	"github.com/roach88/kabuki/internal/value"
)

func posInf() float64 { return math.Inf(1) }

func TestRecorder_WiredToController(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	rec, err := s.NewRecorder(ctx, "rover", testutil.NewFixedSessionGenerator("run-1"), nil)
	require.NoError(t, err)
	assert.Equal(t, "run-1", rec.Session().ID)
	assert.Equal(t, int64(1), rec.Session().StartedSeq)

	leaf := graph.MustOperand(1)
	doubled, err := graph.From(leaf).Mul(2).Node()
	require.NoError(t, err)

	c := controller.New()
	require.NoError(t, c.RegisterPollInput(rec))
	require.NoError(t, c.WireOutput(leaf, rec.Output("raw")))
	require.NoError(t, c.WireOutput(doubled, rec.Output("doubled")))

	require.NoError(t, c.Update())
	leaf.SetValue(value.Number(4))
	require.NoError(t, c.Update())
	assert.Equal(t, int64(2), rec.Cycle())

	got, err := s.ReadDeliveries(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, got, 4)

	type row struct {
		Cycle  int64
		Output string
		Value  value.Value
		Seq    int64
	}
	var rows []row
	for _, d := range got {
		rows = append(rows, row{d.Cycle, d.Output, d.Value, d.Seq})
	}
	assert.Equal(t, []row{
		{1, "raw", value.Number(1), 2},
		{1, "doubled", value.Number(2), 3},
		{2, "raw", value.Number(4), 4},
		{2, "doubled", value.Number(8), 5},
	}, rows)

	sum, err := s.Summarize(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), sum.Cycles)
	assert.Equal(t, int64(4), sum.Deliveries)
	assert.Equal(t, []string{"doubled", "raw"}, sum.Outputs)
	assert.Equal(t, int64(5), sum.LastSeq)
}

func TestRecorder_ResumesSeqAcrossSessions(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	first, err := s.NewRecorder(ctx, "p", testutil.NewFixedSessionGenerator("a"), nil)
	require.NoError(t, err)
	require.NoError(t, first.Poll())
	require.NoError(t, first.Output("x").Consume(value.Number(1)))

	second, err := s.NewRecorder(ctx, "p", testutil.NewFixedSessionGenerator("b"), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(3), second.Session().StartedSeq)

	latest, err := s.LatestSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, "b", latest.ID)

	sessions, err := s.Sessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, "a", sessions[0].ID)
}

func TestUUIDv7Generator(t *testing.T) {
	id, err := uuid.Parse(UUIDv7Generator{}.Generate())
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), id.Version())
}

func TestSummarize_EmptySession(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	require.NoError(t, s.WriteSession(ctx, Session{ID: "s", Pipeline: "p", StartedSeq: 4}))

	sum, err := s.Summarize(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, int64(0), sum.Cycles)
	assert.Equal(t, int64(4), sum.LastSeq)
	assert.Empty(t, sum.Outputs)
}
