package gpio

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// SoftPin is a line driven from software, used to wire a simulated sensor to a
// Watcher.
type SoftPin struct {
	mx     sync.Mutex
	name   string
	level  bool
	nextID int
	subs   map[int]func(rising bool)
}

func NewSoftPin(name string, level bool) *SoftPin {
	return &SoftPin{name: name, level: level, subs: make(map[int]func(bool))}
}

func (p *SoftPin) Name() string {
	return p.name
}

func (p *SoftPin) Read() bool {
	p.mx.Lock()
	defer p.mx.Unlock()
	return p.level
}

// Set drives the line. Subscribers are notified synchronously when the level
// changes.
func (p *SoftPin) Set(level bool) {
	p.mx.Lock()
	if p.level == level {
		p.mx.Unlock()
		return
	}
	p.level = level
	subs := make([]func(bool), 0, len(p.subs))
	for _, fn := range p.subs {
		subs = append(subs, fn)
	}
	p.mx.Unlock()
	for _, fn := range subs {
		fn(level)
	}
}

func (p *SoftPin) subscribe(fn func(rising bool)) func() {
	p.mx.Lock()
	defer p.mx.Unlock()
	id := p.nextID
	p.nextID++
	p.subs[id] = fn
	return func() {
		p.mx.Lock()
		defer p.mx.Unlock()
		delete(p.subs, id)
	}
}

// SoftWatcher watches SoftPins by name.
type SoftWatcher struct {
	mx   sync.Mutex
	pins map[string]*SoftPin
}

func NewSoftWatcher(pins ...*SoftPin) *SoftWatcher {
	w := &SoftWatcher{pins: make(map[string]*SoftPin)}
	for _, p := range pins {
		w.pins[p.Name()] = p
	}
	return w
}

func (w *SoftWatcher) Add(p *SoftPin) {
	w.mx.Lock()
	defer w.mx.Unlock()
	w.pins[p.Name()] = p
}

func (w *SoftWatcher) Watch(ctx context.Context, line Line, edge Edge, debounce time.Duration, callback func()) (func() error, error) {
	w.mx.Lock()
	pin, ok := w.pins[line.Name]
	w.mx.Unlock()
	if !ok {
		return nil, fmt.Errorf("unknown line %s", line)
	}
	d := NewDebouncer(debounce, callback)
	unsubscribe := pin.subscribe(func(rising bool) {
		if edge.matches(rising) {
			d.Trigger()
		}
	})
	return stopper(ctx, func() error {
		unsubscribe()
		return nil
	}), nil
}

// stopper returns an idempotent stop function that is also invoked when ctx
// is done.
func stopper(ctx context.Context, release func() error) func() error {
	var once sync.Once
	var err error
	done := make(chan struct{})
	stop := func() error {
		once.Do(func() {
			close(done)
			err = release()
		})
		return err
	}
	go func() {
		select {
		case <-ctx.Done():
			_ = stop()
		case <-done:
		}
	}()
	return stop
}
