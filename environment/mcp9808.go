package environment

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mklimuk/tempalert"
	"github.com/mklimuk/tempalert/snsctx"
)

// MCP9808 bus addresses are 0x18 + A2A1A0.
const (
	MCP9808BaseAddress    = 0x18
	MCP9808DefaultAddress = 0x1F
)

// Register map, see page 16 of the datasheet.
const (
	regConfig       byte = 0x01
	regUpper        byte = 0x02
	regLower        byte = 0x03
	regCrit         byte = 0x04
	regAmbient      byte = 0x05
	regManufacturer byte = 0x06
	regDeviceID     byte = 0x07
	regResolution   byte = 0x08
)

const (
	mcp9808ManufacturerID uint16 = 0x0054
	mcp9808DeviceID       byte   = 0x04
)

// CONFIG register bits. Index 0 is the MSB on the wire.
const (
	cfgShutdown  byte = 0x01 // MSB
	cfgHystMask  byte = 0x06 // MSB
	cfgMode      byte = 0x01
	cfgPolarity  byte = 0x02
	cfgCritOnly  byte = 0x04
	cfgEnable    byte = 0x08
	cfgStatus    byte = 0x10
	cfgIntClear  byte = 0x20
	cfgLockMask  byte = 0xC0
	ambientCrit  byte = 0x80
	ambientUpper byte = 0x40
	ambientLower byte = 0x20
)

type MCP9808Opts struct {
	Address      byte
	RetryLimit   int
	InitAttempts int
	InitBackoff  time.Duration
	MaxBackoff   time.Duration
	Logger       *slog.Logger
}

type MCP9808Opt func(*MCP9808Opts)

func WithAddress(address byte) MCP9808Opt {
	return func(o *MCP9808Opts) {
		o.Address = address
	}
}

// WithRetryLimit sets how many times a transfer is attempted when the bus
// reports ErrBusBusy.
func WithRetryLimit(limit int) MCP9808Opt {
	return func(o *MCP9808Opts) {
		o.RetryLimit = limit
	}
}

func WithInitAttempts(attempts int) MCP9808Opt {
	return func(o *MCP9808Opts) {
		o.InitAttempts = attempts
	}
}

// WithInitBackoff sets the first delay between Init attempts. The delay doubles
// after each failure up to max.
func WithInitBackoff(initial, max time.Duration) MCP9808Opt {
	return func(o *MCP9808Opts) {
		o.InitBackoff = initial
		o.MaxBackoff = max
	}
}

func WithLogger(logger *slog.Logger) MCP9808Opt {
	return func(o *MCP9808Opts) {
		o.Logger = logger
	}
}

// MCP9808 represents a Microchip MCP9808 digital temperature sensor with its
// ALERT output.
// See: https://ww1.microchip.com/downloads/en/DeviceDoc/25095A.pdf
//
// Typical usage:
//
//	s := NewMCP9808(bus, WithAddress(0x1F))
//	err := s.Init(ctx)
//	err = s.Setup(ctx, DefaultDeviceConfig())
//	t, err := s.GetTemperature(ctx)
type MCP9808 struct {
	mx        sync.Mutex
	transport tempalert.I2CBus
	config    MCP9808Opts

	// last critical threshold written through this driver
	crit      float64
	critKnown bool
}

func NewMCP9808(transport tempalert.I2CBus, opts ...MCP9808Opt) *MCP9808 {
	config := MCP9808Opts{
		Address:      MCP9808DefaultAddress,
		RetryLimit:   3,
		InitAttempts: 5,
		InitBackoff:  100 * time.Millisecond,
		MaxBackoff:   2 * time.Second,
		Logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(&config)
	}
	if config.RetryLimit < 1 {
		config.RetryLimit = 1
	}
	if config.InitAttempts < 1 {
		config.InitAttempts = 1
	}
	return &MCP9808{transport: transport, config: config}
}

func (s *MCP9808) Address() byte {
	return s.config.Address
}

// AddressFromPins returns the bus address selected by the A2, A1 and A0 inputs.
func AddressFromPins(a2, a1, a0 bool) byte {
	addr := byte(MCP9808BaseAddress)
	if a2 {
		addr |= 0x04
	}
	if a1 {
		addr |= 0x02
	}
	if a0 {
		addr |= 0x01
	}
	return addr
}

func ValidateAddress(addr int) error {
	if addr < MCP9808BaseAddress || addr > MCP9808BaseAddress+7 {
		return tempalert.NewError("validate_address", tempalert.ErrParameter, "address %#x outside 0x18-0x1f", addr)
	}
	return nil
}

// Init checks the manufacturer and device identifiers. A missing or wrong
// device is retried with exponential backoff up to the configured number of
// attempts, after which an ErrDeviceInit error is returned.
func (s *MCP9808) Init(ctx context.Context) error {
	const op = "init"
	backoff := s.config.InitBackoff
	var err error
	for attempt := 1; attempt <= s.config.InitAttempts; attempt++ {
		err = s.probe(ctx)
		if err == nil {
			s.config.Logger.Debug("mcp9808 detected", "addr", fmt.Sprintf("%#x", s.config.Address), "attempt", attempt)
			return nil
		}
		s.config.Logger.Warn("sensor init failed, check wiring, address or device id", "attempt", attempt, "error", err)
		if attempt == s.config.InitAttempts {
			break
		}
		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return &tempalert.Error{Op: op, Kind: tempalert.ErrDeviceInit, Msg: "interrupted", Err: ctx.Err()}
		case <-timer.C:
		}
		backoff *= 2
		if s.config.MaxBackoff > 0 && backoff > s.config.MaxBackoff {
			backoff = s.config.MaxBackoff
		}
	}
	return &tempalert.Error{
		Op:   op,
		Kind: tempalert.ErrDeviceInit,
		Msg:  fmt.Sprintf("sensor not detected after %d attempts", s.config.InitAttempts),
		Err:  err,
	}
}

func (s *MCP9808) probe(ctx context.Context) error {
	s.mx.Lock()
	defer s.mx.Unlock()
	manufacturer, err := s.readWord(ctx, "probe", regManufacturer)
	if err != nil {
		return err
	}
	if manufacturer != mcp9808ManufacturerID {
		return fmt.Errorf("unexpected manufacturer id %#04x", manufacturer)
	}
	device, err := s.readWord(ctx, "probe", regDeviceID)
	if err != nil {
		return err
	}
	if byte(device>>8) != mcp9808DeviceID {
		return fmt.Errorf("unexpected device id %#04x", device)
	}
	return nil
}

// GetTemperature reads the ambient temperature in Celsius.
func (s *MCP9808) GetTemperature(ctx context.Context) (float64, error) {
	s.mx.Lock()
	defer s.mx.Unlock()
	w, err := s.readWord(ctx, "get_temperature", regAmbient)
	if err != nil {
		return 0, err
	}
	return decodeAmbient(w), nil
}

// AlertFlags reports how the last conversion compares to the thresholds.
type AlertFlags struct {
	AboveCrit  bool
	AboveUpper bool
	BelowLower bool
}

// GetAlertFlags reads the comparison bits of the ambient temperature register.
func (s *MCP9808) GetAlertFlags(ctx context.Context) (AlertFlags, error) {
	s.mx.Lock()
	defer s.mx.Unlock()
	w, err := s.readWord(ctx, "get_alert_flags", regAmbient)
	if err != nil {
		return AlertFlags{}, err
	}
	msb := byte(w >> 8)
	return AlertFlags{
		AboveCrit:  msb&ambientCrit != 0,
		AboveUpper: msb&ambientUpper != 0,
		BelowLower: msb&ambientLower != 0,
	}, nil
}

// AlertAsserted reads the alert output status bit.
func (s *MCP9808) AlertAsserted(ctx context.Context) (bool, error) {
	s.mx.Lock()
	defer s.mx.Unlock()
	cfg, err := s.readConfig(ctx, "alert_status")
	if err != nil {
		return false, err
	}
	return cfg[1]&cfgStatus != 0, nil
}

func decodeAmbient(w uint16) float64 {
	raw := int(w & 0x1FFF)
	if raw&0x1000 != 0 {
		raw -= 0x2000
	}
	return float64(raw) / 16
}

func (s *MCP9808) readWord(ctx context.Context, op string, reg byte) (uint16, error) {
	buf := make([]byte, 2)
	if err := s.readRegister(ctx, op, reg, buf); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(buf), nil
}

func (s *MCP9808) writeWord(ctx context.Context, op string, reg byte, value uint16) error {
	var out [2]byte
	binary.BigEndian.PutUint16(out[:], value)
	return s.writeRegister(ctx, op, reg, out[:]...)
}

func (s *MCP9808) readConfig(ctx context.Context, op string) ([2]byte, error) {
	var cfg [2]byte
	err := s.readRegister(ctx, op, regConfig, cfg[:])
	return cfg, err
}

func (s *MCP9808) writeConfig(ctx context.Context, op string, cfg [2]byte) error {
	return s.writeRegister(ctx, op, regConfig, cfg[0], cfg[1])
}

// readRegister sets the register pointer and reads len(buf) bytes.
func (s *MCP9808) readRegister(ctx context.Context, op string, reg byte, buf []byte) error {
	var err error
	for i := s.config.RetryLimit; i > 0; i-- {
		err = s.transport.WriteToAddr(ctx, s.config.Address, []byte{reg})
		if err == nil {
			err = s.transport.ReadFromAddr(ctx, s.config.Address, buf)
		}
		if err == nil {
			snsctx.Dump(ctx, "mcp9808 read", s.config.Address, append([]byte{reg}, buf...))
			return nil
		}
		if !errors.Is(err, tempalert.ErrBusBusy) {
			return tempalert.WrapBus(op, fmt.Errorf("could not read register %#x: %w", reg, err))
		}
		// try to release the bus
		_ = s.transport.Release(ctx)
	}
	return tempalert.WrapBus(op, fmt.Errorf("could not read register %#x (retry limit reached): %w", reg, err))
}

func (s *MCP9808) writeRegister(ctx context.Context, op string, reg byte, data ...byte) error {
	frame := append([]byte{reg}, data...)
	var err error
	for i := s.config.RetryLimit; i > 0; i-- {
		err = s.transport.WriteToAddr(ctx, s.config.Address, frame)
		if err == nil {
			snsctx.Dump(ctx, "mcp9808 write", s.config.Address, frame)
			return nil
		}
		if !errors.Is(err, tempalert.ErrBusBusy) {
			return tempalert.WrapBus(op, fmt.Errorf("could not write register %#x: %w", reg, err))
		}
		// try to release the bus
		_ = s.transport.Release(ctx)
	}
	return tempalert.WrapBus(op, fmt.Errorf("could not write register %#x (retry limit reached): %w", reg, err))
}
