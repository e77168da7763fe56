// Package gpio delivers edges of the sensor's ALERT line to a callback.
package gpio

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mklimuk/tempalert"
	"github.com/mklimuk/tempalert/alert"
)

type Edge int

const (
	EdgeFalling Edge = iota
	EdgeRising
	EdgeBoth
)

func (e Edge) String() string {
	switch e {
	case EdgeFalling:
		return "falling"
	case EdgeRising:
		return "rising"
	case EdgeBoth:
		return "both"
	default:
		return "unknown"
	}
}

func ParseEdge(s string) (Edge, error) {
	switch strings.ToLower(s) {
	case "falling", "fall":
		return EdgeFalling, nil
	case "rising", "rise":
		return EdgeRising, nil
	case "both":
		return EdgeBoth, nil
	}
	return 0, tempalert.NewError("parse_edge", tempalert.ErrParameter, "unknown edge %q", s)
}

// EdgeFor returns the edge at which an alert output of polarity p asserts.
func EdgeFor(p alert.Polarity) Edge {
	if p == alert.ActiveHigh {
		return EdgeRising
	}
	return EdgeFalling
}

func (e Edge) matches(rising bool) bool {
	switch e {
	case EdgeBoth:
		return true
	case EdgeRising:
		return rising
	default:
		return !rising
	}
}

type Pull int

const (
	PullNone Pull = iota
	PullUp
	PullDown
)

func (p Pull) String() string {
	switch p {
	case PullNone:
		return "none"
	case PullUp:
		return "up"
	case PullDown:
		return "down"
	default:
		return "unknown"
	}
}

func ParsePull(s string) (Pull, error) {
	switch strings.ToLower(s) {
	case "", "none", "float":
		return PullNone, nil
	case "up":
		return PullUp, nil
	case "down":
		return PullDown, nil
	}
	return 0, tempalert.NewError("parse_pull", tempalert.ErrParameter, "unknown pull %q", s)
}

// PullFor returns the bias that keeps an alert output of polarity p inactive
// when the open-drain output is released.
func PullFor(p alert.Polarity) Pull {
	if p == alert.ActiveHigh {
		return PullDown
	}
	return PullUp
}

// Line identifies an input. Name is used by name based backends (periph,
// simulator), Chip and Offset by the character device backend.
type Line struct {
	Name   string
	Chip   string
	Offset int
	Pull   Pull
}

func (l Line) String() string {
	if l.Name != "" {
		return l.Name
	}
	return fmt.Sprintf("%s:%d", l.Chip, l.Offset)
}

// Watcher invokes callback on the selected edges of line. Edges closer than
// debounce to the last delivered one are dropped. Watching ends when stop is
// called or ctx is done.
type Watcher interface {
	Watch(ctx context.Context, line Line, edge Edge, debounce time.Duration, callback func()) (stop func() error, err error)
}

// call runs the callback without letting a panic reach the event goroutine.
func call(callback func()) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("gpio callback failed", "panic", r)
		}
	}()
	callback()
}
