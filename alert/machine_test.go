package alert

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mklimuk/tempalert"
)

func demoConfig(mode OutputMode) Config {
	return Config{
		Mode:       mode,
		Polarity:   ActiveLow,
		Response:   UpperLowerCrit,
		Hysteresis: Hysteresis1_5,
		Enabled:    true,
		Lower:      20.5,
		Upper:      32.5,
		Crit:       35.5,
	}
}

func ramp(from, to, step float64) []float64 {
	var out []float64
	if from <= to {
		for t := from; t <= to; t += step {
			out = append(out, t)
		}
		return out
	}
	for t := from; t >= to; t -= step {
		out = append(out, t)
	}
	return out
}

func formatTemp(t float64) string {
	return strconv.FormatFloat(t, 'f', 2, 64)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		temp     float64
		expected Region
	}{
		{-40, BelowLower},
		{20.25, BelowLower},
		{20.5, Between},
		{32.25, Between},
		{32.5, AboveUpper},
		{35.25, AboveUpper},
		{35.5, AboveCrit},
		{125, AboveCrit},
	}
	for _, tt := range tests {
		t.Run(formatTemp(tt.temp), func(t *testing.T) {
			assert.Equal(t, tt.expected, Classify(tt.temp, 20.5, 32.5, 35.5))
		})
	}
}

func TestMachine_ComparatorIsStatelessOutsideHysteresisBand(t *testing.T) {
	m := NewMachine(demoConfig(Comparator))

	tests := []struct {
		temp   float64
		active bool
	}{
		{18, true},    // below lower
		{20.5, false}, // lower boundary releases without hysteresis
		{25, false},
		{32.5, true},  // activation is never delayed
		{31.5, true},  // inside hysteresis band
		{31.25, true}, // still inside
		{30.75, false},
		{36, true},
		{34.25, true}, // crit - hysteresis is 34.0
		{33.75, true}, // back in upper region
		{20.25, true}, // cooling below lower activates at once
	}
	for _, tt := range tests {
		tr := m.Observe(tt.temp)
		assert.Equal(t, tt.active, tr.Active, "temperature %.2f", tt.temp)
		// repeated reads at the same temperature are idempotent
		again := m.Observe(tt.temp)
		assert.Equal(t, tr.Active, again.Active)
		assert.False(t, again.Crossed())
	}
}

func TestMachine_ComparatorOnlyCrit(t *testing.T) {
	cfg := demoConfig(Comparator)
	cfg.Response = OnlyCrit
	m := NewMachine(cfg)

	assert.False(t, m.Observe(10).Active)
	assert.False(t, m.Observe(33).Active)
	assert.True(t, m.Observe(35.5).Active)
	assert.True(t, m.Observe(34.5).Active)
	assert.False(t, m.Observe(33.5).Active)
}

func TestMachine_ComparatorClearHasNoEffect(t *testing.T) {
	m := NewMachine(demoConfig(Comparator))
	m.Observe(33)
	require.True(t, m.Active())

	assert.False(t, m.Clear())
	assert.True(t, m.Active())
}

func TestMachine_InterruptOneEdgePerCrossing(t *testing.T) {
	m := NewMachine(demoConfig(Interrupt))

	m.Observe(25)
	assert.False(t, m.Active(), "first sample only establishes the region")

	edges := 0
	for _, temp := range ramp(25, 31, 0.25) {
		if m.Observe(temp).Asserted() {
			edges++
		}
	}
	assert.Zero(t, edges, "staying in one region produces no interrupt")

	for _, temp := range ramp(31, 34, 0.25) {
		if m.Observe(temp).Asserted() {
			edges++
		}
	}
	assert.Equal(t, 1, edges)
	assert.True(t, m.Active())
	assert.True(t, m.Pending())

	// remaining above upper keeps alerting without new interrupts
	require.True(t, m.Clear())
	for _, temp := range ramp(34, 33, 0.25) {
		assert.False(t, m.Observe(temp).Asserted())
	}
	assert.False(t, m.Active())
}

func TestMachine_InterruptCoolingCrossingLatches(t *testing.T) {
	m := NewMachine(demoConfig(Interrupt))
	m.Observe(34)
	m.Clear()

	// upper - hysteresis is 31.0
	assert.False(t, m.Observe(31).Asserted())
	tr := m.Observe(30.75)
	assert.True(t, tr.Crossed())
	assert.True(t, tr.Asserted())
	assert.Equal(t, Between, tr.To)
}

func TestMachine_InterruptLowerCrossings(t *testing.T) {
	m := NewMachine(demoConfig(Interrupt))
	m.Observe(25)

	tr := m.Observe(20.25)
	assert.True(t, tr.Asserted(), "cooling below lower is never delayed")
	assert.Equal(t, BelowLower, tr.To)
	m.Clear()

	tr = m.Observe(20.5)
	assert.True(t, tr.Asserted())
	assert.Equal(t, Between, tr.To)
}

func TestMachine_ClearIsIdempotent(t *testing.T) {
	m := NewMachine(demoConfig(Interrupt))
	m.Observe(30)
	m.Observe(33)
	require.True(t, m.Active())

	assert.True(t, m.Clear())
	assert.True(t, m.Clear())
	assert.False(t, m.Active())
	assert.False(t, m.Pending())
}

func TestMachine_CritOverride(t *testing.T) {
	m := NewMachine(demoConfig(Interrupt))
	m.Observe(30)

	tr := m.Observe(36)
	assert.True(t, tr.Asserted())
	assert.Equal(t, AboveCrit, tr.To)
	assert.False(t, m.Clear(), "clear must not release the pin above crit")
	assert.True(t, m.Active())

	m.Observe(34)
	assert.Equal(t, AboveCrit, m.Region(), "still inside crit hysteresis band")
	assert.False(t, m.Clear())

	m.Observe(33.75)
	assert.Equal(t, AboveUpper, m.Region())
	assert.True(t, m.Active())
	assert.True(t, m.Clear())
}

// lower=20.5 upper=32.5 crit=35.5 hysteresis=1.5, interrupt mode
func TestMachine_RampWithCritExcursion(t *testing.T) {
	m := NewMachine(demoConfig(Interrupt))

	edges := 0
	for _, temp := range ramp(18, 34, 0.5) {
		if m.Observe(temp).Asserted() {
			edges++
		}
	}
	assert.Equal(t, 1, edges)
	assert.True(t, m.Active())

	assert.True(t, m.Clear(), "crit not exceeded yet, clearing at 34 releases the pin")
	assert.False(t, m.Active())

	tr := m.Observe(36)
	assert.True(t, tr.Asserted())
	assert.False(t, m.Clear(), "clearing at 36 cannot release the pin")
	assert.True(t, m.Active())

	m.Observe(33.9)
	assert.True(t, m.Clear())
	assert.False(t, m.Active())
}

func TestMachine_DisabledNeverAsserts(t *testing.T) {
	cfg := demoConfig(Interrupt)
	cfg.Enabled = false
	m := NewMachine(cfg)

	for _, temp := range ramp(18, 40, 1) {
		assert.False(t, m.Observe(temp).Active)
	}
	assert.False(t, m.Pending())
	assert.Equal(t, AboveCrit, m.Region())
}

func TestMachine_Level(t *testing.T) {
	cfg := demoConfig(Comparator)
	m := NewMachine(cfg)
	m.Observe(25)
	assert.True(t, m.Level(), "active low output idles high")
	m.Observe(33)
	assert.False(t, m.Level())

	cfg.Polarity = ActiveHigh
	m.Configure(cfg)
	assert.True(t, m.Level())
}

func TestMachine_OnlyCritInInterruptMode(t *testing.T) {
	cfg := demoConfig(Interrupt)
	cfg.Response = OnlyCrit
	m := NewMachine(cfg)
	m.Observe(25)

	assert.False(t, m.Observe(33).Active)
	assert.True(t, m.Observe(36).Active)
	assert.False(t, m.Observe(33.5).Active)
}

func TestParseEnums(t *testing.T) {
	mode, err := ParseOutputMode("INTERRUPT")
	require.NoError(t, err)
	assert.Equal(t, Interrupt, mode)

	pol, err := ParsePolarity("low")
	require.NoError(t, err)
	assert.Equal(t, ActiveLow, pol)

	resp, err := ParseResponseMode("only-crit")
	require.NoError(t, err)
	assert.Equal(t, OnlyCrit, resp)

	h, err := HysteresisFromCelsius(3)
	require.NoError(t, err)
	assert.Equal(t, Hysteresis3, h)
	assert.Equal(t, "3°C", h.String())
	assert.Equal(t, "1.5°C", Hysteresis1_5.String())

	_, err = ParseOutputMode("latched")
	assert.ErrorIs(t, err, tempalert.ErrParameter)
	_, err = HysteresisFromCelsius(2)
	assert.ErrorIs(t, err, tempalert.ErrParameter)
}
