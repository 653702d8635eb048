package telemetry

import (
	"context"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/roach88/kabuki/internal/value"
)

// DefaultInfluxTimeout bounds each blocking write.
const DefaultInfluxTimeout = 2 * time.Second

// Influx is a connection to an InfluxDB v2 bucket.
type Influx struct {
	client influxdb2.Client
	write  api.WriteAPIBlocking
}

// NewInflux connects to url and writes into org/bucket.
func NewInflux(url, token, org, bucket string) *Influx {
	client := influxdb2.NewClient(url, token)
	return &Influx{
		client: client,
		write:  client.WriteAPIBlocking(org, bucket),
	}
}

// Sink returns a consumer writing the named output.
func (i *Influx) Sink(output string) *InfluxSink {
	return NewInfluxSink(i.write, output)
}

// Close releases the client.
func (i *Influx) Close() {
	i.client.Close()
}

// InfluxSink writes every numeric or boolean delivery as a point
// kabuki_output,output=<name> value=<v>.
type InfluxSink struct {
	write   api.WriteAPIBlocking
	output  string
	timeout time.Duration
	now     func() time.Time
}

// NewInfluxSink creates a sink on an existing write API.
func NewInfluxSink(w api.WriteAPIBlocking, output string) *InfluxSink {
	return &InfluxSink{
		write:   w,
		output:  output,
		timeout: DefaultInfluxTimeout,
		now:     time.Now,
	}
}

// Consume implements controller.Consumer. Strings, objects and nulls are
// skipped.
func (s *InfluxSink) Consume(v value.Value) error {
	var field float64
	switch x := v.(type) {
	case value.Number:
		field = float64(x)
	case value.Bool:
		if x {
			field = 1
		}
	default:
		return nil
	}

	p := influxdb2.NewPoint(
		"kabuki_output",
		map[string]string{"output": s.output},
		map[string]interface{}{"value": field},
		s.now(),
	)
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if err := s.write.WritePoint(ctx, p); err != nil {
		return fmt.Errorf("influx write %s: %w", s.output, err)
	}
	return nil
}
