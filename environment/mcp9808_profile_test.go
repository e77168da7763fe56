package environment

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTriangle(t *testing.T) {
	p := Triangle(18, 20, 0.5)
	var got []float64
	for n := range 10 {
		got = append(got, p(n))
	}
	assert.Equal(t, []float64{18, 18.5, 19, 19.5, 20, 19.5, 19, 18.5, 18, 18.5}, got)

	flat := Triangle(21, 21, 0.5)
	assert.Equal(t, 21.0, flat(7))
	assert.Equal(t, 30.0, Constant(30)(3))
}

func TestSimulatedMCP9808_Play(t *testing.T) {
	sim := NewSimulatedMCP9808()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sim.Play(ctx, time.Millisecond, Triangle(18, 38, 0.5))
		close(done)
	}()
	assert.Eventually(t, func() bool {
		return sim.Temperature() >= 30
	}, time.Second, time.Millisecond)
	cancel()
	<-done
	assert.GreaterOrEqual(t, sim.Temperature(), 18.0)
	assert.LessOrEqual(t, sim.Temperature(), 38.0)
}
