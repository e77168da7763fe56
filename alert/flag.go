package alert

import "sync/atomic"

// Flag is the single-slot handoff between the edge callback and the consumer
// loop. Set may be called from any goroutine; only the consumer calls Take.
// A set flag stays set until taken, so an edge arriving while the consumer is
// busy is seen on its next pass.
type Flag struct {
	set atomic.Bool
}

func (f *Flag) Set() {
	f.set.Store(true)
}

// Take clears the flag and reports whether it was set.
func (f *Flag) Take() bool {
	return f.set.CompareAndSwap(true, false)
}

func (f *Flag) Pending() bool {
	return f.set.Load()
}
