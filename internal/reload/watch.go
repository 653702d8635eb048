package reload

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watch requests a reload whenever .cue files in dir change. Bursts of
// events (editors often write, chmod and rename in quick succession) are
// collapsed into one request once the debounce period passes quietly.
// Blocks until ctx is cancelled.
func (s *Supervisor) Watch(ctx context.Context, dir string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	s.logger.Info("watching pipeline definitions", "dir", dir)

	var (
		timer   *time.Timer
		timerC  <-chan time.Time
		changed []string
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !isDefinitionEvent(event) {
				continue
			}
			changed = append(changed, filepath.Base(event.Name))
			if timer == nil {
				timer = time.NewTimer(s.debounce)
				timerC = timer.C
			} else {
				timer.Reset(s.debounce)
			}

		case <-timerC:
			timer, timerC = nil, nil
			reason := fmt.Sprintf("changed: %v", dedupe(changed))
			changed = changed[:0]
			if !s.Request(reason) {
				s.logger.Debug("reload already pending", "reason", reason)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("watcher error", "error", err)
		}
	}
}

// isDefinitionEvent reports whether event touches a .cue file in a way that
// can change its content.
func isDefinitionEvent(event fsnotify.Event) bool {
	if filepath.Ext(event.Name) != ".cue" {
		return false
	}
	return event.Has(fsnotify.Write) ||
		event.Has(fsnotify.Create) ||
		event.Has(fsnotify.Remove) ||
		event.Has(fsnotify.Rename)
}

// dedupe keeps the first occurrence of each name.
func dedupe(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	return out
}
