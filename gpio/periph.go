package gpio

import (
	"context"
	"fmt"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// PeriphWatcher looks lines up by name in the periph.io registry, e.g.
// "GPIO25" on a Raspberry Pi.
type PeriphWatcher struct {
	// Poll bounds a single WaitForEdge call so that stop is noticed.
	Poll time.Duration
}

func (w *PeriphWatcher) Watch(ctx context.Context, line Line, edge Edge, debounce time.Duration, callback func()) (func() error, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("could not initialize periph host: %w", err)
	}
	pin := gpioreg.ByName(line.Name)
	if pin == nil {
		return nil, fmt.Errorf("unknown line %s", line)
	}
	if err := pin.In(periphPull(line.Pull), periphEdge(edge)); err != nil {
		return nil, fmt.Errorf("could not configure line %s: %w", line, err)
	}
	poll := w.Poll
	if poll <= 0 {
		poll = 100 * time.Millisecond
	}
	d := NewDebouncer(debounce, callback)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			default:
			}
			if pin.WaitForEdge(poll) {
				d.Trigger()
			}
		}
	}()
	return stopper(ctx, func() error {
		close(done)
		return pin.Halt()
	}), nil
}

func periphEdge(e Edge) gpio.Edge {
	switch e {
	case EdgeRising:
		return gpio.RisingEdge
	case EdgeBoth:
		return gpio.BothEdges
	default:
		return gpio.FallingEdge
	}
}

func periphPull(p Pull) gpio.Pull {
	switch p {
	case PullUp:
		return gpio.PullUp
	case PullDown:
		return gpio.PullDown
	default:
		return gpio.Float
	}
}
