package gpio

import (
	"context"
	"fmt"
	"time"

	"github.com/warthog618/go-gpiocdev"
)

// CdevWatcher requests lines through the Linux GPIO character device.
type CdevWatcher struct {
	// Consumer is the label shown by gpioinfo.
	Consumer string
	// Settle enables kernel debouncing: an edge is reported only after the
	// line has been stable for this long. Zero disables it.
	Settle time.Duration
}

func (w *CdevWatcher) Watch(ctx context.Context, line Line, edge Edge, debounce time.Duration, callback func()) (func() error, error) {
	d := NewDebouncer(debounce, callback)
	opts := []gpiocdev.LineReqOption{
		cdevEdge(edge),
		cdevBias(line.Pull),
		gpiocdev.WithEventHandler(func(evt gpiocdev.LineEvent) {
			d.Trigger()
		}),
	}
	if w.Consumer != "" {
		opts = append(opts, gpiocdev.WithConsumer(w.Consumer))
	}
	if w.Settle > 0 {
		opts = append(opts, gpiocdev.WithDebounce(w.Settle))
	}
	l, err := gpiocdev.RequestLine(line.Chip, line.Offset, opts...)
	if err != nil {
		return nil, fmt.Errorf("could not request line %s: %w", line, err)
	}
	return stopper(ctx, l.Close), nil
}

func cdevEdge(e Edge) gpiocdev.LineReqOption {
	switch e {
	case EdgeRising:
		return gpiocdev.WithRisingEdge
	case EdgeBoth:
		return gpiocdev.WithBothEdges
	default:
		return gpiocdev.WithFallingEdge
	}
}

func cdevBias(p Pull) gpiocdev.LineReqOption {
	switch p {
	case PullUp:
		return gpiocdev.WithPullUp
	case PullDown:
		return gpiocdev.WithPullDown
	default:
		return gpiocdev.WithBiasDisabled
	}
}
