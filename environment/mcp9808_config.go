package environment

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/mklimuk/tempalert"
	"github.com/mklimuk/tempalert/alert"
)

// Resolution is the conversion step of the ambient temperature.
type Resolution byte

const (
	Resolution0_5    Resolution = 0x00
	Resolution0_25   Resolution = 0x01
	Resolution0_125  Resolution = 0x02
	Resolution0_0625 Resolution = 0x03
)

var resolutionSteps = [...]float64{0.5, 0.25, 0.125, 0.0625}

func (r Resolution) Valid() bool {
	return r <= Resolution0_0625
}

// Step returns the resolution in Celsius.
func (r Resolution) Step() float64 {
	if !r.Valid() {
		return 0
	}
	return resolutionSteps[r]
}

func (r Resolution) String() string {
	if !r.Valid() {
		return "unknown"
	}
	return strconv.FormatFloat(r.Step(), 'f', -1, 64) + "°C"
}

func ResolutionFromStep(step float64) (Resolution, error) {
	for i, s := range resolutionSteps {
		if s == step {
			return Resolution(i), nil
		}
	}
	return 0, tempalert.NewError("parse_resolution", tempalert.ErrParameter, "unsupported resolution %v", step)
}

type PowerMode byte

const (
	PowerUp  PowerMode = 0
	LowPower PowerMode = 1
)

func (p PowerMode) Valid() bool {
	return p == PowerUp || p == LowPower
}

func (p PowerMode) String() string {
	switch p {
	case PowerUp:
		return "power-up"
	case LowPower:
		return "low-power"
	default:
		return "unknown"
	}
}

func ParsePowerMode(s string) (PowerMode, error) {
	switch strings.ToLower(s) {
	case "power-up", "power_up", "up", "continuous":
		return PowerUp, nil
	case "low-power", "low_power", "shutdown":
		return LowPower, nil
	}
	return 0, tempalert.NewError("parse_power_mode", tempalert.ErrParameter, "unknown power mode %q", s)
}

// LockState mirrors the lock bits of the CONFIG register. Locks survive until
// the device is power cycled.
type LockState byte

const (
	NoLock      LockState = 0x00
	WinLock     LockState = 0x40
	CritLock    LockState = 0x80
	CritWinLock LockState = 0xC0
)

func (l LockState) Valid() bool {
	return l&^CritWinLock == 0
}

func (l LockState) critLocked() bool {
	return l&CritLock != 0
}

func (l LockState) windowLocked() bool {
	return l&WinLock != 0
}

func (l LockState) String() string {
	switch l {
	case NoLock:
		return "no-lock"
	case CritLock:
		return "crit-lock"
	case WinLock:
		return "win-lock"
	case CritWinLock:
		return "crit-win-lock"
	default:
		return "unknown"
	}
}

func ParseLockState(s string) (LockState, error) {
	switch strings.ToLower(strings.ReplaceAll(s, "_", "-")) {
	case "", "no-lock", "none":
		return NoLock, nil
	case "crit-lock", "crit":
		return CritLock, nil
	case "win-lock", "win", "window":
		return WinLock, nil
	case "crit-win-lock", "all":
		return CritWinLock, nil
	}
	return 0, tempalert.NewError("parse_lock_state", tempalert.ErrParameter, "unknown lock state %q", s)
}

// DeviceConfig is the complete configuration of the sensor.
type DeviceConfig struct {
	Resolution   Resolution
	PowerMode    PowerMode
	OutputMode   alert.OutputMode
	Polarity     alert.Polarity
	Response     alert.ResponseMode
	Hysteresis   alert.Hysteresis
	AlertEnabled bool
	Lock         LockState
	Thresholds
}

// DefaultDeviceConfig returns the interrupt mode profile used by the monitor.
func DefaultDeviceConfig() DeviceConfig {
	return DeviceConfig{
		Resolution:   Resolution0_25,
		PowerMode:    PowerUp,
		OutputMode:   alert.Interrupt,
		Polarity:     alert.ActiveLow,
		Response:     alert.UpperLowerCrit,
		Hysteresis:   alert.Hysteresis1_5,
		AlertEnabled: true,
		Lock:         NoLock,
		Thresholds:   Thresholds{Lower: 20.5, Upper: 32.5, Crit: 35.5},
	}
}

// Alert returns the part of the configuration that drives the alert output.
func (c DeviceConfig) Alert() alert.Config {
	return alert.Config{
		Mode:       c.OutputMode,
		Polarity:   c.Polarity,
		Response:   c.Response,
		Hysteresis: c.Hysteresis,
		Enabled:    c.AlertEnabled,
		Lower:      c.Lower,
		Upper:      c.Upper,
		Crit:       c.Crit,
	}
}

func (s *MCP9808) SetResolution(ctx context.Context, r Resolution) error {
	const op = "set_resolution"
	if !r.Valid() {
		return tempalert.NewError(op, tempalert.ErrParameter, "unknown resolution %d", r)
	}
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.writeRegister(ctx, op, regResolution, byte(r))
}

func (s *MCP9808) GetResolution(ctx context.Context) (Resolution, error) {
	s.mx.Lock()
	defer s.mx.Unlock()
	buf := make([]byte, 1)
	if err := s.readRegister(ctx, "get_resolution", regResolution, buf); err != nil {
		return 0, err
	}
	return Resolution(buf[0] & 0x03), nil
}

// SetPowerMode switches between continuous conversion and shutdown. Shutdown
// is refused while any lock is set.
func (s *MCP9808) SetPowerMode(ctx context.Context, p PowerMode) error {
	const op = "set_power_mode"
	if !p.Valid() {
		return tempalert.NewError(op, tempalert.ErrParameter, "unknown power mode %d", p)
	}
	return s.updateConfig(ctx, op, func(l LockState) bool {
		return p == LowPower && l != NoLock
	}, func(cfg *[2]byte) {
		cfg[0] = cfg[0]&^cfgShutdown | byte(p)
	})
}

func (s *MCP9808) SetHysteresis(ctx context.Context, h alert.Hysteresis) error {
	const op = "set_hysteresis"
	if !h.Valid() {
		return tempalert.NewError(op, tempalert.ErrParameter, "unknown hysteresis %d", h)
	}
	return s.updateConfig(ctx, op, anyLock, func(cfg *[2]byte) {
		cfg[0] = cfg[0]&^cfgHystMask | byte(h)<<1
	})
}

// SetOutputMode selects comparator or interrupt output. The interrupt should
// be cleared afterwards.
func (s *MCP9808) SetOutputMode(ctx context.Context, m alert.OutputMode) error {
	const op = "set_output_mode"
	if !m.Valid() {
		return tempalert.NewError(op, tempalert.ErrParameter, "unknown output mode %d", m)
	}
	return s.updateConfig(ctx, op, anyLock, func(cfg *[2]byte) {
		cfg[1] = setBit(cfg[1], cfgMode, m == alert.Interrupt)
	})
}

func (s *MCP9808) SetPolarity(ctx context.Context, p alert.Polarity) error {
	const op = "set_polarity"
	if !p.Valid() {
		return tempalert.NewError(op, tempalert.ErrParameter, "unknown polarity %d", p)
	}
	return s.updateConfig(ctx, op, anyLock, func(cfg *[2]byte) {
		cfg[1] = setBit(cfg[1], cfgPolarity, p == alert.ActiveHigh)
	})
}

func (s *MCP9808) SetResponseMode(ctx context.Context, r alert.ResponseMode) error {
	const op = "set_response_mode"
	if !r.Valid() {
		return tempalert.NewError(op, tempalert.ErrParameter, "unknown response mode %d", r)
	}
	return s.updateConfig(ctx, op, LockState.windowLocked, func(cfg *[2]byte) {
		cfg[1] = setBit(cfg[1], cfgCritOnly, r == alert.OnlyCrit)
	})
}

// SetAlertEnabled turns the alert output on or off. The interrupt should be
// cleared afterwards.
func (s *MCP9808) SetAlertEnabled(ctx context.Context, enabled bool) error {
	return s.updateConfig(ctx, "set_alert_enabled", anyLock, func(cfg *[2]byte) {
		cfg[1] = setBit(cfg[1], cfgEnable, enabled)
	})
}

// SetLockState locks or unlocks configuration fields. NoLock is always
// accepted; any other state has to keep every currently locked field locked.
func (s *MCP9808) SetLockState(ctx context.Context, l LockState) error {
	const op = "set_lock_state"
	if !l.Valid() {
		return tempalert.NewError(op, tempalert.ErrParameter, "unknown lock state %#x", byte(l))
	}
	return s.updateConfig(ctx, op, func(current LockState) bool {
		return l != NoLock && l&current != current
	}, func(cfg *[2]byte) {
		cfg[1] = cfg[1]&^cfgLockMask | byte(l)
	})
}

// ClearInterrupt releases a latched interrupt. It is accepted in any lock
// state and has no effect in comparator mode or above the critical threshold.
func (s *MCP9808) ClearInterrupt(ctx context.Context) error {
	return s.updateConfig(ctx, "clear_interrupt", noLock, func(cfg *[2]byte) {
		cfg[1] |= cfgIntClear
	})
}

// GetConfiguration reads the complete device configuration.
func (s *MCP9808) GetConfiguration(ctx context.Context) (DeviceConfig, error) {
	const op = "get_configuration"
	s.mx.Lock()
	defer s.mx.Unlock()
	cfg, err := s.readConfig(ctx, op)
	if err != nil {
		return DeviceConfig{}, err
	}
	res := make([]byte, 1)
	if err := s.readRegister(ctx, op, regResolution, res); err != nil {
		return DeviceConfig{}, err
	}
	th, err := s.readThresholds(ctx, op)
	if err != nil {
		return DeviceConfig{}, err
	}
	return parseConfig(cfg, res[0], th), nil
}

func parseConfig(cfg [2]byte, res byte, th Thresholds) DeviceConfig {
	c := DeviceConfig{
		Resolution:   Resolution(res & 0x03),
		PowerMode:    PowerMode(cfg[0] & cfgShutdown),
		Hysteresis:   alert.Hysteresis(cfg[0] & cfgHystMask >> 1),
		OutputMode:   alert.Comparator,
		Polarity:     alert.ActiveLow,
		Response:     alert.UpperLowerCrit,
		AlertEnabled: cfg[1]&cfgEnable != 0,
		Lock:         LockState(cfg[1] & cfgLockMask),
		Thresholds:   th,
	}
	if cfg[1]&cfgMode != 0 {
		c.OutputMode = alert.Interrupt
	}
	if cfg[1]&cfgPolarity != 0 {
		c.Polarity = alert.ActiveHigh
	}
	if cfg[1]&cfgCritOnly != 0 {
		c.Response = alert.OnlyCrit
	}
	return c
}

// Setup applies a whole configuration in the order the device expects:
// resolution, power, output mode, polarity, response, window, crit,
// hysteresis, enable and lock. Every failing field is logged and the
// remaining fields are still applied. The interrupt is cleared at the end.
func (s *MCP9808) Setup(ctx context.Context, c DeviceConfig) error {
	steps := []struct {
		name  string
		apply func() error
	}{
		{"resolution", func() error { return s.SetResolution(ctx, c.Resolution) }},
		{"power mode", func() error { return s.SetPowerMode(ctx, c.PowerMode) }},
		{"output mode", func() error { return s.SetOutputMode(ctx, c.OutputMode) }},
		{"polarity", func() error { return s.SetPolarity(ctx, c.Polarity) }},
		{"response mode", func() error { return s.SetResponseMode(ctx, c.Response) }},
		{"upper/lower thresholds", func() error { return s.SetUpperLower(ctx, c.Upper, c.Lower) }},
		{"critical threshold", func() error { return s.SetCrit(ctx, c.Crit) }},
		{"hysteresis", func() error { return s.SetHysteresis(ctx, c.Hysteresis) }},
		{"alert enable", func() error { return s.SetAlertEnabled(ctx, c.AlertEnabled) }},
		{"lock state", func() error { return s.SetLockState(ctx, c.Lock) }},
		{"interrupt clear", func() error { return s.ClearInterrupt(ctx) }},
	}
	var errs []error
	for _, step := range steps {
		if err := step.apply(); err != nil {
			s.config.Logger.Warn("could not apply sensor setting", "setting", step.name, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", step.name, err))
		}
	}
	return errors.Join(errs...)
}

func (s *MCP9808) updateConfig(ctx context.Context, op string, locked func(LockState) bool, apply func(cfg *[2]byte)) error {
	s.mx.Lock()
	defer s.mx.Unlock()
	cfg, err := s.readConfig(ctx, op)
	if err != nil {
		return err
	}
	if lock := LockState(cfg[1] & cfgLockMask); locked(lock) {
		return tempalert.NewError(op, tempalert.ErrRegisterLocked, "configuration is locked (%s)", lock)
	}
	// status is read only and clear is a one-shot command
	cfg[1] &^= cfgStatus | cfgIntClear
	apply(&cfg)
	return s.writeConfig(ctx, op, cfg)
}

func anyLock(l LockState) bool {
	return l != NoLock
}

func noLock(LockState) bool {
	return false
}

func setBit(b, mask byte, on bool) byte {
	if on {
		return b | mask
	}
	return b &^ mask
}
