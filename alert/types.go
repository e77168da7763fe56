// Package alert models the ALERT output of an MCP9808-class sensor and the
// host side protocol for consuming its interrupts.
package alert

import (
	"strconv"
	"strings"

	"github.com/mklimuk/tempalert"
)

// OutputMode selects how the alert output follows temperature.
type OutputMode byte

const (
	// Comparator keeps the output asserted for as long as the temperature
	// stays in an alerting region.
	Comparator OutputMode = 0
	// Interrupt latches one event per boundary crossing until cleared.
	Interrupt OutputMode = 1
)

func (m OutputMode) String() string {
	switch m {
	case Comparator:
		return "comparator"
	case Interrupt:
		return "interrupt"
	default:
		return "unknown"
	}
}

func (m OutputMode) Valid() bool {
	return m == Comparator || m == Interrupt
}

func ParseOutputMode(s string) (OutputMode, error) {
	switch strings.ToLower(s) {
	case "comparator", "comp":
		return Comparator, nil
	case "interrupt", "int":
		return Interrupt, nil
	}
	return 0, tempalert.NewError("parse_output_mode", tempalert.ErrParameter, "unknown output mode %q", s)
}

// Polarity defines which electrical level signals an active alert.
type Polarity byte

const (
	ActiveLow  Polarity = 0
	ActiveHigh Polarity = 1
)

func (p Polarity) String() string {
	switch p {
	case ActiveLow:
		return "active-low"
	case ActiveHigh:
		return "active-high"
	default:
		return "unknown"
	}
}

func (p Polarity) Valid() bool {
	return p == ActiveLow || p == ActiveHigh
}

func ParsePolarity(s string) (Polarity, error) {
	switch strings.ToLower(s) {
	case "low", "active-low", "active_low":
		return ActiveLow, nil
	case "high", "active-high", "active_high":
		return ActiveHigh, nil
	}
	return 0, tempalert.NewError("parse_polarity", tempalert.ErrParameter, "unknown polarity %q", s)
}

// ResponseMode selects which thresholds drive the output.
type ResponseMode byte

const (
	UpperLowerCrit ResponseMode = 0
	OnlyCrit       ResponseMode = 1
)

func (r ResponseMode) String() string {
	switch r {
	case UpperLowerCrit:
		return "upper-lower-crit"
	case OnlyCrit:
		return "only-crit"
	default:
		return "unknown"
	}
}

func (r ResponseMode) Valid() bool {
	return r == UpperLowerCrit || r == OnlyCrit
}

func ParseResponseMode(s string) (ResponseMode, error) {
	switch strings.ToLower(s) {
	case "upper-lower-crit", "upper_lower_crit", "all":
		return UpperLowerCrit, nil
	case "only-crit", "only_crit", "crit":
		return OnlyCrit, nil
	}
	return 0, tempalert.NewError("parse_response_mode", tempalert.ErrParameter, "unknown response mode %q", s)
}

// Hysteresis is the cooling margin applied before an alert condition reverts.
// The numeric value is the 2-bit register encoding.
type Hysteresis byte

const (
	Hysteresis0   Hysteresis = 0
	Hysteresis1_5 Hysteresis = 1
	Hysteresis3   Hysteresis = 2
	Hysteresis6   Hysteresis = 3
)

var hysteresisCelsius = [...]float64{0, 1.5, 3, 6}

func (h Hysteresis) Valid() bool {
	return h <= Hysteresis6
}

// Celsius returns the margin in degrees.
func (h Hysteresis) Celsius() float64 {
	if !h.Valid() {
		return 0
	}
	return hysteresisCelsius[h]
}

func (h Hysteresis) String() string {
	if !h.Valid() {
		return "unknown"
	}
	return strconv.FormatFloat(h.Celsius(), 'f', -1, 64) + "°C"
}

// HysteresisFromCelsius maps 0, 1.5, 3 and 6 to their encodings.
func HysteresisFromCelsius(c float64) (Hysteresis, error) {
	for i, v := range hysteresisCelsius {
		if v == c {
			return Hysteresis(i), nil
		}
	}
	return 0, tempalert.NewError("parse_hysteresis", tempalert.ErrParameter, "hysteresis %.2f is not one of 0, 1.5, 3, 6", c)
}

// Region classifies a temperature against the alert window.
type Region int

const (
	BelowLower Region = iota
	Between
	AboveUpper
	AboveCrit
)

func (r Region) String() string {
	switch r {
	case BelowLower:
		return "below-lower"
	case Between:
		return "between"
	case AboveUpper:
		return "above-upper"
	case AboveCrit:
		return "above-crit"
	default:
		return "unknown"
	}
}

// Classify returns the region of t without any hysteresis applied.
func Classify(t, lower, upper, crit float64) Region {
	switch {
	case t >= crit:
		return AboveCrit
	case t >= upper:
		return AboveUpper
	case t < lower:
		return BelowLower
	default:
		return Between
	}
}
