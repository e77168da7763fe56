package gpio

import (
	"sync"
	"time"
)

// Debouncer forwards a trigger to its callback unless the previous forwarded
// trigger happened less than window ago.
type Debouncer struct {
	mx       sync.Mutex
	window   time.Duration
	callback func()
	now      func() time.Time
	last     time.Time
	fired    bool
}

func NewDebouncer(window time.Duration, callback func()) *Debouncer {
	return &Debouncer{window: window, callback: callback, now: time.Now}
}

// Trigger reports whether the callback was invoked.
func (d *Debouncer) Trigger() bool {
	d.mx.Lock()
	now := d.now()
	if d.fired && now.Sub(d.last) < d.window {
		d.mx.Unlock()
		return false
	}
	d.last, d.fired = now, true
	d.mx.Unlock()
	call(d.callback)
	return true
}
