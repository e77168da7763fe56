package environment

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"github.com/mklimuk/tempalert/alert"
	"github.com/mklimuk/tempalert/gpio"
)

type SimOpts struct {
	Address     byte
	Temperature float64
	PinName     string
}

type SimOpt func(*SimOpts)

func WithSimAddress(address byte) SimOpt {
	return func(o *SimOpts) {
		o.Address = address
	}
}

func WithSimTemperature(t float64) SimOpt {
	return func(o *SimOpts) {
		o.Temperature = t
	}
}

func WithSimPin(name string) SimOpt {
	return func(o *SimOpts) {
		o.PinName = name
	}
}

// SimulatedMCP9808 is an in-memory MCP9808 on its own I2C bus. It implements
// tempalert.I2CBus and drives a gpio.SoftPin the way the device drives its
// ALERT output.
type SimulatedMCP9808 struct {
	mx         sync.Mutex
	address    byte
	pointer    byte
	config     [2]byte
	upper      uint16
	lower      uint16
	crit       uint16
	resolution byte
	ambient    float64
	converted  float64
	machine    *alert.Machine
	pin        *gpio.SoftPin
	clears     int
}

func NewSimulatedMCP9808(opts ...SimOpt) *SimulatedMCP9808 {
	o := SimOpts{
		Address:     MCP9808DefaultAddress,
		Temperature: 25,
		PinName:     "ALERT",
	}
	for _, opt := range opts {
		opt(&o)
	}
	d := &SimulatedMCP9808{
		address:    o.Address,
		resolution: byte(Resolution0_0625),
		ambient:    o.Temperature,
	}
	d.machine = alert.NewMachine(d.alertConfig())
	d.convert()
	d.pin = gpio.NewSoftPin(o.PinName, d.machine.Level())
	return d
}

// AlertPin returns the line driven by the ALERT output.
func (d *SimulatedMCP9808) AlertPin() *gpio.SoftPin {
	return d.pin
}

// SetTemperature changes the ambient temperature. A new conversion happens at
// once unless the device is shut down.
func (d *SimulatedMCP9808) SetTemperature(t float64) alert.Transition {
	d.mx.Lock()
	d.ambient = t
	tr := alert.Transition{Temperature: d.converted, From: d.machine.Region(), To: d.machine.Region()}
	if d.config[0]&cfgShutdown == 0 {
		tr = d.convert()
	}
	level := d.machine.Level()
	d.mx.Unlock()
	d.pin.Set(level)
	return tr
}

// Temperature returns the last converted temperature.
func (d *SimulatedMCP9808) Temperature() float64 {
	d.mx.Lock()
	defer d.mx.Unlock()
	return d.converted
}

// Active reports the logical state of the ALERT output.
func (d *SimulatedMCP9808) Active() bool {
	d.mx.Lock()
	defer d.mx.Unlock()
	return d.machine.Active()
}

// Clears returns how many interrupt clear commands were received.
func (d *SimulatedMCP9808) Clears() int {
	d.mx.Lock()
	defer d.mx.Unlock()
	return d.clears
}

func (d *SimulatedMCP9808) WriteToAddr(ctx context.Context, address byte, buffer []byte) error {
	if err := d.selected(address); err != nil {
		return err
	}
	if len(buffer) == 0 {
		return nil
	}
	d.mx.Lock()
	d.pointer = buffer[0]
	if len(buffer) > 1 {
		d.write(d.pointer, buffer[1:])
	}
	level := d.machine.Level()
	d.mx.Unlock()
	d.pin.Set(level)
	return nil
}

func (d *SimulatedMCP9808) ReadFromAddr(ctx context.Context, address byte, buffer []byte) error {
	if err := d.selected(address); err != nil {
		return err
	}
	d.mx.Lock()
	defer d.mx.Unlock()
	var out []byte
	switch d.pointer {
	case regResolution:
		out = []byte{d.resolution}
	default:
		out = binary.BigEndian.AppendUint16(nil, d.read(d.pointer))
	}
	copy(buffer, out)
	return nil
}

func (d *SimulatedMCP9808) Release(ctx context.Context) error {
	return nil
}

func (d *SimulatedMCP9808) selected(address byte) error {
	if address != d.address {
		return fmt.Errorf("no device acknowledged address %#x", address)
	}
	return nil
}

func (d *SimulatedMCP9808) read(reg byte) uint16 {
	switch reg {
	case regConfig:
		cfg := d.config
		if d.machine.Active() {
			cfg[1] |= cfgStatus
		}
		return binary.BigEndian.Uint16(cfg[:])
	case regUpper:
		return d.upper
	case regLower:
		return d.lower
	case regCrit:
		return d.crit
	case regAmbient:
		return d.ambientWord()
	case regManufacturer:
		return mcp9808ManufacturerID
	case regDeviceID:
		return uint16(mcp9808DeviceID)<<8 | 0x00
	}
	return 0
}

func (d *SimulatedMCP9808) write(reg byte, data []byte) {
	if reg == regResolution {
		d.resolution = data[0] & 0x03
		return
	}
	if len(data) < 2 {
		return
	}
	w := binary.BigEndian.Uint16(data)
	lock := LockState(d.config[1] & cfgLockMask)
	switch reg {
	case regConfig:
		d.writeConfig([2]byte{data[0], data[1]}, lock)
	case regUpper:
		if !lock.windowLocked() {
			d.upper = w & 0x1FFC
		}
	case regLower:
		if !lock.windowLocked() {
			d.lower = w & 0x1FFC
		}
	case regCrit:
		if !lock.critLocked() {
			d.crit = w & 0x1FFC
		}
	}
	d.machine.Configure(d.alertConfig())
	// the device converts continuously, so new settings apply at once
	if d.config[0]&cfgShutdown == 0 {
		d.convert()
	}
}

func (d *SimulatedMCP9808) writeConfig(next [2]byte, lock LockState) {
	prev := d.config
	cfg := next
	cfg[1] &^= cfgStatus | cfgIntClear
	if lock != NoLock {
		keep := cfgMode | cfgPolarity | cfgEnable
		cfg[1] = cfg[1]&^keep | prev[1]&keep
		cfg[0] = cfg[0]&^cfgHystMask | prev[0]&cfgHystMask
		if prev[0]&cfgShutdown == 0 {
			cfg[0] &^= cfgShutdown
		}
	}
	if lock.windowLocked() {
		cfg[1] = cfg[1]&^cfgCritOnly | prev[1]&cfgCritOnly
	}
	d.config = cfg
	d.machine.Configure(d.alertConfig())
	if next[1]&cfgIntClear != 0 {
		d.clears++
		d.machine.Clear()
	}
}

func (d *SimulatedMCP9808) alertConfig() alert.Config {
	c := parseConfig(d.config, d.resolution, Thresholds{
		Lower: decodeThreshold(d.lower),
		Upper: decodeThreshold(d.upper),
		Crit:  decodeThreshold(d.crit),
	})
	return c.Alert()
}

// convert quantizes the ambient temperature to the current resolution and
// feeds it to the alert logic.
func (d *SimulatedMCP9808) convert() alert.Transition {
	step := Resolution(d.resolution).Step()
	d.converted = math.Floor(d.ambient/step) * step
	d.converted = math.Max(-256, math.Min(255.9375, d.converted))
	return d.machine.Observe(d.converted)
}

func (d *SimulatedMCP9808) ambientWord() uint16 {
	raw := int16(math.Round(d.converted * 16))
	w := uint16(raw) & 0x1FFF
	cfg := d.machine.Config()
	if d.converted >= cfg.Crit {
		w |= uint16(ambientCrit) << 8
	}
	if d.converted > cfg.Upper {
		w |= uint16(ambientUpper) << 8
	}
	if d.converted < cfg.Lower {
		w |= uint16(ambientLower) << 8
	}
	return w
}
