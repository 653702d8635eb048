package remote

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sync"
)

// streamWriter writes lines to an io.Writer, one at a time.
type streamWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (sw *streamWriter) WriteLine(line string) error {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	_, err := io.WriteString(sw.w, line+"\n")
	return err
}

// ServeLines feeds lines read from r into s, sending replies to w.
// Used for serial devices and stdin. Blocks until r is exhausted or ctx is
// cancelled; cancellation is observed between lines.
func ServeLines(ctx context.Context, s *Serial, r io.Reader, w io.Writer) error {
	writer := &streamWriter{w: w}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.Submit(scanner.Text(), writer)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read remote lines: %w", err)
	}
	return nil
}
