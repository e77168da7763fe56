package environment

import (
	"context"
	"math"

	"github.com/mklimuk/tempalert"
)

// Threshold limits and step of the T_UPPER, T_LOWER and T_CRIT registers.
const (
	ThresholdMin  = -40.0
	ThresholdMax  = 125.0
	ThresholdStep = 0.25
	// MinWindow is the smallest allowed distance between upper and lower.
	MinWindow = 2.0
)

// Quantize rounds v to the nearest threshold step and clamps it to the
// supported range.
func Quantize(v float64) float64 {
	q := math.Round(v/ThresholdStep) * ThresholdStep
	return math.Max(ThresholdMin, math.Min(ThresholdMax, q))
}

func encodeThreshold(v float64) uint16 {
	q := int16(math.Round(Quantize(v) / ThresholdStep))
	return uint16(q<<2) & 0x1FFC
}

func decodeThreshold(w uint16) float64 {
	raw := int(w & 0x1FFC)
	if raw&0x1000 != 0 {
		raw -= 0x2000
	}
	return float64(raw) / 16
}

// Thresholds holds the alert boundaries in Celsius.
type Thresholds struct {
	Lower float64
	Upper float64
	Crit  float64
}

// GetThresholds reads back the three alert boundaries.
func (s *MCP9808) GetThresholds(ctx context.Context) (Thresholds, error) {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.readThresholds(ctx, "get_thresholds")
}

func (s *MCP9808) readThresholds(ctx context.Context, op string) (Thresholds, error) {
	var th Thresholds
	for _, r := range []struct {
		reg byte
		dst *float64
	}{
		{regLower, &th.Lower},
		{regUpper, &th.Upper},
		{regCrit, &th.Crit},
	} {
		w, err := s.readWord(ctx, op, r.reg)
		if err != nil {
			return Thresholds{}, err
		}
		*r.dst = decodeThreshold(w)
	}
	return th, nil
}

// SetUpperLower sets the alert window. Both values are quantized first. The
// call is rejected without touching the device when the window is locked,
// when upper is not at least MinWindow above lower or when it does not stay
// below a critical threshold set through this driver.
func (s *MCP9808) SetUpperLower(ctx context.Context, upper, lower float64) error {
	const op = "set_upper_lower"
	if math.IsNaN(upper) || math.IsNaN(lower) {
		return tempalert.NewError(op, tempalert.ErrParameter, "threshold is not a number")
	}
	s.mx.Lock()
	defer s.mx.Unlock()

	cfg, err := s.readConfig(ctx, op)
	if err != nil {
		return err
	}
	if lock := LockState(cfg[1] & cfgLockMask); lock.windowLocked() {
		return tempalert.NewError(op, tempalert.ErrRegisterLocked, "alert window is locked (%s)", lock)
	}
	upper, lower = Quantize(upper), Quantize(lower)
	if upper <= lower {
		return tempalert.NewError(op, tempalert.ErrInvalidRange, "upper %.2f must be above lower %.2f", upper, lower)
	}
	if upper-lower < MinWindow {
		return tempalert.NewError(op, tempalert.ErrInvalidRange, "window %.2f-%.2f is narrower than %.0f°C", lower, upper, MinWindow)
	}
	if s.critKnown && upper >= s.crit {
		return tempalert.NewError(op, tempalert.ErrInvalidRange, "upper %.2f must be below crit %.2f", upper, s.crit)
	}

	previous, err := s.readWord(ctx, op, regUpper)
	if err != nil {
		return err
	}
	if err := s.writeWord(ctx, op, regUpper, encodeThreshold(upper)); err != nil {
		return err
	}
	if err := s.writeWord(ctx, op, regLower, encodeThreshold(lower)); err != nil {
		if rerr := s.writeWord(ctx, op, regUpper, previous); rerr != nil {
			s.config.Logger.Error("could not restore upper threshold", "error", rerr)
		}
		return err
	}
	return nil
}

// SetCrit sets the critical threshold. It has to be above the current upper
// threshold.
func (s *MCP9808) SetCrit(ctx context.Context, value float64) error {
	const op = "set_crit"
	if math.IsNaN(value) {
		return tempalert.NewError(op, tempalert.ErrParameter, "threshold is not a number")
	}
	s.mx.Lock()
	defer s.mx.Unlock()

	cfg, err := s.readConfig(ctx, op)
	if err != nil {
		return err
	}
	if lock := LockState(cfg[1] & cfgLockMask); lock.critLocked() {
		return tempalert.NewError(op, tempalert.ErrRegisterLocked, "critical threshold is locked (%s)", lock)
	}
	value = Quantize(value)
	w, err := s.readWord(ctx, op, regUpper)
	if err != nil {
		return err
	}
	if upper := decodeThreshold(w); value <= upper {
		return tempalert.NewError(op, tempalert.ErrInvalidRange, "crit %.2f must be above upper %.2f", value, upper)
	}
	if err := s.writeWord(ctx, op, regCrit, encodeThreshold(value)); err != nil {
		return err
	}
	s.crit, s.critKnown = value, true
	return nil
}
