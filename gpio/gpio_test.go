package gpio

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mklimuk/tempalert"
	"github.com/mklimuk/tempalert/alert"
)

func TestDebouncer(t *testing.T) {
	var calls int
	d := NewDebouncer(500*time.Millisecond, func() { calls++ })
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return now }

	tests := []struct {
		offset time.Duration
		fired  bool
	}{
		{0, true},
		{10 * time.Millisecond, false},
		{499 * time.Millisecond, false},
		{500 * time.Millisecond, true},
		{900 * time.Millisecond, false},
		{2 * time.Second, true},
	}
	start := now
	for _, tt := range tests {
		now = start.Add(tt.offset)
		assert.Equal(t, tt.fired, d.Trigger(), "edge at %s", tt.offset)
	}
	assert.Equal(t, 3, calls)
}

func TestDebouncer_CallbackPanicIsContained(t *testing.T) {
	d := NewDebouncer(0, func() { panic("boom") })
	assert.NotPanics(t, func() {
		assert.True(t, d.Trigger())
	})
}

func TestEdgeAndPullForPolarity(t *testing.T) {
	assert.Equal(t, EdgeFalling, EdgeFor(alert.ActiveLow))
	assert.Equal(t, EdgeRising, EdgeFor(alert.ActiveHigh))
	assert.Equal(t, PullUp, PullFor(alert.ActiveLow))
	assert.Equal(t, PullDown, PullFor(alert.ActiveHigh))

	e, err := ParseEdge("Falling")
	require.NoError(t, err)
	assert.Equal(t, EdgeFalling, e)
	_, err = ParseEdge("sideways")
	assert.ErrorIs(t, err, tempalert.ErrParameter)

	p, err := ParsePull("up")
	require.NoError(t, err)
	assert.Equal(t, PullUp, p)
}

func TestSoftWatcher(t *testing.T) {
	pin := NewSoftPin("ALERT", true)
	w := NewSoftWatcher(pin)

	var calls atomic.Int32
	stop, err := w.Watch(context.Background(), Line{Name: "ALERT"}, EdgeFalling, 0, func() {
		calls.Add(1)
	})
	require.NoError(t, err)

	pin.Set(true) // no change
	pin.Set(false)
	pin.Set(true) // rising edge is filtered
	pin.Set(false)
	assert.Equal(t, int32(2), calls.Load())

	require.NoError(t, stop())
	require.NoError(t, stop())
	pin.Set(true)
	pin.Set(false)
	assert.Equal(t, int32(2), calls.Load())
}

func TestSoftWatcher_StopsWithContext(t *testing.T) {
	pin := NewSoftPin("ALERT", false)
	w := NewSoftWatcher(pin)
	ctx, cancel := context.WithCancel(context.Background())

	var calls atomic.Int32
	_, err := w.Watch(ctx, Line{Name: "ALERT"}, EdgeBoth, 0, func() {
		calls.Add(1)
	})
	require.NoError(t, err)
	pin.Set(true)
	cancel()

	assert.Equal(t, int32(1), calls.Load())

	// the watch is released asynchronously once ctx is done
	assert.Eventually(t, func() bool {
		before := calls.Load()
		pin.Set(!pin.Read())
		return calls.Load() == before
	}, time.Second, 5*time.Millisecond)
	before := calls.Load()
	pin.Set(!pin.Read())
	assert.Equal(t, before, calls.Load())
}

func TestSoftWatcher_UnknownLine(t *testing.T) {
	w := NewSoftWatcher()
	_, err := w.Watch(context.Background(), Line{Name: "GPIO25"}, EdgeFalling, 0, func() {})
	assert.ErrorContains(t, err, "unknown line GPIO25")
}
