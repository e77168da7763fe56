package alert

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
)

// Sensor is the device side of the consumer loop.
type Sensor interface {
	GetTemperature(ctx context.Context) (float64, error)
	ClearInterrupt(ctx context.Context) error
}

// Reporter receives the loop's telemetry.
type Reporter interface {
	ReportTemperature(celsius float64)
	ReportAlertChange()
}

type LoopOpts struct {
	Interval time.Duration
	Reporter Reporter
	Logger   *slog.Logger
}

type LoopOpt func(*LoopOpts)

func WithInterval(interval time.Duration) LoopOpt {
	return func(o *LoopOpts) {
		o.Interval = interval
	}
}

func WithReporter(r Reporter) LoopOpt {
	return func(o *LoopOpts) {
		o.Reporter = r
	}
}

func WithLogger(l *slog.Logger) LoopOpt {
	return func(o *LoopOpts) {
		o.Logger = l
	}
}

// Loop samples the sensor at a fixed cadence and acknowledges alert
// interrupts signalled through Notify.
//
// Typical usage:
//
//	loop := alert.NewLoop(sensor)
//	stop, err := watcher.Watch(ctx, line, gpio.EdgeFalling, 500*time.Millisecond, loop.Notify)
//	err = loop.Run(ctx)
type Loop struct {
	sensor  Sensor
	config  LoopOpts
	flag    Flag
	handled atomic.Uint64
}

func NewLoop(sensor Sensor, opts ...LoopOpt) *Loop {
	config := LoopOpts{
		Interval: time.Second,
		Logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(&config)
	}
	if config.Reporter == nil {
		config.Reporter = &logReporter{logger: config.Logger}
	}
	return &Loop{sensor: sensor, config: config}
}

// Notify is the edge callback. It only raises the flag: no bus traffic and no
// blocking, and it never lets a fault escape into the interrupt subsystem.
func (l *Loop) Notify() {
	defer func() {
		if r := recover(); r != nil {
			l.config.Logger.Error("alert callback failed", "panic", r)
		}
	}()
	l.flag.Set()
}

// Pending reports whether an alert interrupt is waiting to be acknowledged.
func (l *Loop) Pending() bool {
	return l.flag.Pending()
}

// Handled returns the number of acknowledged alert interrupts.
func (l *Loop) Handled() uint64 {
	return l.handled.Load()
}

// Run executes sample, wait, acknowledge until ctx is cancelled. Sampling and
// clearing failures are logged and the loop carries on.
func (l *Loop) Run(ctx context.Context) error {
	timer := time.NewTimer(l.config.Interval)
	defer timer.Stop()
	for {
		if err := l.Sample(ctx); err != nil {
			l.config.Logger.Warn("could not sample temperature", "error", err)
		}
		timer.Reset(l.config.Interval)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
		if _, err := l.Acknowledge(ctx); err != nil {
			l.config.Logger.Warn("could not acknowledge alert", "error", err)
		}
	}
}

// Step runs one iteration without waiting: acknowledge a pending alert, then
// sample. Errors of both halves are returned joined.
func (l *Loop) Step(ctx context.Context) error {
	_, ackErr := l.Acknowledge(ctx)
	return errors.Join(ackErr, l.Sample(ctx))
}

// Sample reads and reports the current temperature.
func (l *Loop) Sample(ctx context.Context) error {
	t, err := l.sensor.GetTemperature(ctx)
	if err != nil {
		return fmt.Errorf("could not read temperature: %w", err)
	}
	l.config.Reporter.ReportTemperature(t)
	return nil
}

// Acknowledge takes a pending flag, clears the device interrupt and reports
// the alert change. The flag is taken before the device is cleared so an edge
// arriving in between is kept for the next pass. If the clear fails the flag
// is raised again.
func (l *Loop) Acknowledge(ctx context.Context) (bool, error) {
	if !l.flag.Take() {
		return false, nil
	}
	if err := l.sensor.ClearInterrupt(ctx); err != nil {
		l.flag.Set()
		return false, fmt.Errorf("could not clear interrupt: %w", err)
	}
	l.handled.Add(1)
	l.config.Reporter.ReportAlertChange()
	return true, nil
}

type logReporter struct {
	logger *slog.Logger
}

func (r *logReporter) ReportTemperature(celsius float64) {
	r.logger.Info("temperature", "celsius", fmt.Sprintf("%.2f", celsius))
}

func (r *logReporter) ReportAlertChange() {
	r.logger.Info("the temperature state has changed")
}
