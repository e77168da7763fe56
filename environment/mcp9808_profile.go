package environment

import (
	"context"
	"math"
	"time"
)

// TemperatureProfile returns the ambient temperature for the n-th step of a
// simulation run.
type TemperatureProfile func(n int) float64

// Triangle ramps from low to high and back in increments of step.
func Triangle(low, high, step float64) TemperatureProfile {
	steps := int(math.Round((high - low) / step))
	if steps < 1 {
		return func(int) float64 { return low }
	}
	return func(n int) float64 {
		i := n % (2 * steps)
		if i > steps {
			i = 2*steps - i
		}
		return low + float64(i)*step
	}
}

// Constant keeps the temperature at t.
func Constant(t float64) TemperatureProfile {
	return func(int) float64 { return t }
}

// Play applies profile every period until ctx is done. A non-positive period
// defaults to one second.
func (d *SimulatedMCP9808) Play(ctx context.Context, period time.Duration, profile TemperatureProfile) {
	if period <= 0 {
		period = time.Second
	}
	d.SetTemperature(profile(0))
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for n := 1; ; n++ {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		d.SetTemperature(profile(n))
	}
}
