package gpio

import (
	"context"
	"log/slog"
	"time"
)

// LevelReader samples an input, e.g. a GP pin of a USB bridge.
type LevelReader interface {
	ReadLine(ctx context.Context, offset int) (bool, error)
}

// PollWatcher detects edges by sampling a LevelReader. Pulses shorter than
// Interval may be missed; interrupt mode outputs stay latched until cleared so
// they are always seen.
type PollWatcher struct {
	Reader   LevelReader
	Interval time.Duration
}

func (w *PollWatcher) Watch(ctx context.Context, line Line, edge Edge, debounce time.Duration, callback func()) (func() error, error) {
	level, err := w.Reader.ReadLine(ctx, line.Offset)
	if err != nil {
		return nil, err
	}
	interval := w.Interval
	if interval <= 0 {
		interval = 20 * time.Millisecond
	}
	d := NewDebouncer(debounce, callback)
	pollCtx, cancel := context.WithCancel(ctx)
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-pollCtx.Done():
				return
			case <-ticker.C:
			}
			next, err := w.Reader.ReadLine(pollCtx, line.Offset)
			if pollCtx.Err() != nil {
				return
			}
			if err != nil {
				slog.Debug("could not sample line", "line", line.String(), "error", err)
				continue
			}
			if next != level && edge.matches(next) {
				d.Trigger()
			}
			level = next
		}
	}()
	return stopper(ctx, func() error {
		cancel()
		return nil
	}), nil
}
