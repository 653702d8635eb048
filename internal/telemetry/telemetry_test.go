package telemetry

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/kabuki/internal/controller"
	"github.com/roach88/kabuki/internal/graph"
	kt "github.com/roach88/kabuki/internal/testutil"
	"github.com/roach88/kabuki/internal/value"
)

func TestProfiler_PublishesRatePerWindow(t *testing.T) {
	m := NewMetrics()
	clock := kt.NewManualClock(0)
	p := m.NewProfiler(WithClock(clock))

	for i := 0; i < 50; i++ {
		p.Tick()
		clock.Advance(10)
	}
	assert.Equal(t, 0.0, p.Rate(), "window not closed yet")
	assert.Equal(t, 50.0, testutil.ToFloat64(m.cyclesTotal))

	// 51st tick lands at t=500, still inside the window
	p.Tick()
	clock.Advance(500)
	p.Tick()

	// the tick at t=0 opened the window: 51 cycles in 1000ms
	assert.InDelta(t, 51.0, p.Rate(), 1e-9)
	assert.InDelta(t, 51.0, testutil.ToFloat64(m.cyclesPerSecond), 1e-9)
	assert.Equal(t, 52.0, testutil.ToFloat64(m.cyclesTotal))
}

func TestProfiler_WindowsCountTheSameWay(t *testing.T) {
	m := NewMetrics()
	clock := kt.NewManualClock(0)
	p := m.NewProfiler(WithClock(clock), WithWindow(100))

	// ten cycles every 10ms per window, in the first window and the next
	p.Tick()
	for i := 0; i < 10; i++ {
		clock.Advance(10)
		p.Tick()
	}
	assert.InDelta(t, 100.0, p.Rate(), 1e-9)

	for i := 0; i < 10; i++ {
		clock.Advance(10)
		p.Tick()
	}
	assert.InDelta(t, 100.0, p.Rate(), 1e-9)
}

func TestProfiler_AsControllerHook(t *testing.T) {
	m := NewMetrics()
	p := m.NewProfiler(WithClock(kt.NewManualClock(0)))
	c := controller.New(controller.WithProfiler(p.Tick))

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, c.WireOutput(graph.MustOperand(1), controller.ConsumerFunc(func(value.Value) error {
		if testutil.ToFloat64(m.cyclesTotal) >= 3 {
			cancel()
		}
		return nil
	})))

	err := c.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.GreaterOrEqual(t, testutil.ToFloat64(m.cyclesTotal), 3.0)
}

func TestOutputGauge(t *testing.T) {
	m := NewMetrics()
	g := m.OutputGauge("servo")

	require.NoError(t, g.Consume(value.Number(1500)))
	assert.Equal(t, 1500.0, testutil.ToFloat64(m.outputValue.WithLabelValues("servo")))

	require.NoError(t, g.Consume(value.String("ignored")))
	assert.Equal(t, 1500.0, testutil.ToFloat64(m.outputValue.WithLabelValues("servo")))

	require.NoError(t, g.Consume(value.Bool(true)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.outputValue.WithLabelValues("servo")))
}

func TestMetricsHandler(t *testing.T) {
	m := NewMetrics()
	m.NewProfiler().Tick()
	require.NoError(t, m.OutputGauge("led").Consume(value.Number(2)))

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	text := string(body)
	assert.Contains(t, text, "kabuki_cycles_total 1")
	assert.Contains(t, text, `kabuki_output_value{output="led"} 2`)
	assert.True(t, strings.Contains(text, "go_goroutines"))
}

func TestMetricsRegistryGather(t *testing.T) {
	m := NewMetrics()
	require.NoError(t, m.OutputGauge("servo").Consume(value.Number(1800)))
	require.NoError(t, m.OutputGauge("led").Consume(value.Bool(false)))

	families, err := m.Registry().Gather()
	require.NoError(t, err)

	var outputs *dto.MetricFamily
	for _, mf := range families {
		if mf.GetName() == "kabuki_output_value" {
			outputs = mf
		}
	}
	require.NotNil(t, outputs)
	assert.Equal(t, dto.MetricType_GAUGE, outputs.GetType())

	got := map[string]float64{}
	for _, metric := range outputs.GetMetric() {
		require.Len(t, metric.GetLabel(), 1)
		got[metric.GetLabel()[0].GetValue()] = metric.GetGauge().GetValue()
	}
	assert.Equal(t, map[string]float64{"servo": 1800, "led": 0}, got)
}

type mockWriteAPI struct {
	points []*write.Point
	err    error
}

func (m *mockWriteAPI) WritePoint(ctx context.Context, point ...*write.Point) error {
	m.points = append(m.points, point...)
	return m.err
}

func (m *mockWriteAPI) WriteRecord(ctx context.Context, line ...string) error { return nil }
func (m *mockWriteAPI) EnableBatching()                                      {}
func (m *mockWriteAPI) Flush(ctx context.Context) error                      { return nil }

func TestInfluxSink_WritesPoint(t *testing.T) {
	w := &mockWriteAPI{}
	sink := NewInfluxSink(w, "servo")
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	sink.now = func() time.Time { return at }

	require.NoError(t, sink.Consume(value.Number(1250)))
	require.NoError(t, sink.Consume(value.Null{}))
	require.NoError(t, sink.Consume(value.Bool(true)))

	require.Len(t, w.points, 2)
	p := w.points[0]
	assert.Equal(t, "kabuki_output", p.Name())
	require.Len(t, p.TagList(), 1)
	assert.Equal(t, "output", p.TagList()[0].Key)
	assert.Equal(t, "servo", p.TagList()[0].Value)
	require.Len(t, p.FieldList(), 1)
	assert.Equal(t, "value", p.FieldList()[0].Key)
	assert.Equal(t, 1250.0, p.FieldList()[0].Value)
	assert.Equal(t, at, p.Time())
	assert.Equal(t, 1.0, w.points[1].FieldList()[0].Value)
}

func TestInfluxSink_WrapsError(t *testing.T) {
	sink := NewInfluxSink(&mockWriteAPI{err: assert.AnError}, "servo")
	err := sink.Consume(value.Number(1))
	assert.ErrorIs(t, err, assert.AnError)
	assert.Contains(t, err.Error(), "influx write servo")
}
