package gpio

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/mklimuk/tempalert"
	"github.com/mklimuk/tempalert/snsctx"
)

type register byte

const DefaultMCP23017Address = 0x20

// Register addresses with IOCON.BANK = 0, the power-on layout.
const (
	IODIRA register = 0x00
	IODIRB register = 0x01
	GPPUA  register = 0x0C
	GPPUB  register = 0x0D
	GPIOA  register = 0x12
	GPIOB  register = 0x13
)

// MCP23017 is a 16 bit I2C GPIO expander. Lines 0-7 are port A, 8-15 port B.
// It implements LevelReader so an ALERT output wired to one of its inputs can
// be watched with a PollWatcher.
type MCP23017 struct {
	mx         sync.Mutex
	transport  tempalert.I2CBus
	address    byte
	retryLimit int
}

func NewMCP23017(bus tempalert.I2CBus, address byte) *MCP23017 {
	return &MCP23017{retryLimit: 3, transport: bus, address: address}
}

// ConfigureInput makes line an input, optionally with the 100k pull-up.
func (m *MCP23017) ConfigureInput(ctx context.Context, line int, pullUp bool) error {
	port, bit, err := split(line)
	if err != nil {
		return err
	}
	m.mx.Lock()
	defer m.mx.Unlock()
	dir, pull := IODIRA, GPPUA
	if port == 1 {
		dir, pull = IODIRB, GPPUB
	}
	if err := m.update(ctx, dir, bit, true); err != nil {
		return fmt.Errorf("could not set line %d direction: %w", line, err)
	}
	if err := m.update(ctx, pull, bit, pullUp); err != nil {
		return fmt.Errorf("could not set line %d pull-up: %w", line, err)
	}
	return nil
}

// ReadLine returns the level of line, true meaning high.
func (m *MCP23017) ReadLine(ctx context.Context, line int) (bool, error) {
	port, bit, err := split(line)
	if err != nil {
		return false, err
	}
	m.mx.Lock()
	defer m.mx.Unlock()
	reg := GPIOA
	if port == 1 {
		reg = GPIOB
	}
	v, err := m.readRegister(ctx, reg)
	if err != nil {
		return false, fmt.Errorf("could not read line %d: %w", line, err)
	}
	return v&bit != 0, nil
}

func split(line int) (int, byte, error) {
	if line < 0 || line > 15 {
		return 0, 0, tempalert.NewError("mcp23017_line", tempalert.ErrParameter, "no line %d", line)
	}
	return line / 8, 1 << (line % 8), nil
}

func (m *MCP23017) update(ctx context.Context, addr register, bit byte, set bool) error {
	v, err := m.readRegister(ctx, addr)
	if err != nil {
		return err
	}
	next := v &^ bit
	if set {
		next |= bit
	}
	if next == v {
		return nil
	}
	return m.writeRegister(ctx, addr, next)
}

func (m *MCP23017) readRegister(ctx context.Context, addr register) (byte, error) {
	buf := make([]byte, 1)
	var err error
	for i := m.retryLimit; i > 0; i-- {
		err = m.transport.WriteToAddr(ctx, m.address, []byte{byte(addr)})
		if err == nil {
			err = m.transport.ReadFromAddr(ctx, m.address, buf)
		}
		if err == nil {
			snsctx.Dump(ctx, "mcp23017 read", m.address, []byte{byte(addr), buf[0]})
			return buf[0], nil
		}
		if !errors.Is(err, tempalert.ErrBusBusy) {
			return 0, tempalert.WrapBus("mcp23017_read", err)
		}
		// try to release the bus
		_ = m.transport.Release(ctx)
	}
	return 0, tempalert.WrapBus("mcp23017_read", fmt.Errorf("retry limit reached: %w", err))
}

func (m *MCP23017) writeRegister(ctx context.Context, addr register, value byte) error {
	var err error
	for i := m.retryLimit; i > 0; i-- {
		err = m.transport.WriteToAddr(ctx, m.address, []byte{byte(addr), value})
		if err == nil {
			snsctx.Dump(ctx, "mcp23017 write", m.address, []byte{byte(addr), value})
			return nil
		}
		if !errors.Is(err, tempalert.ErrBusBusy) {
			return tempalert.WrapBus("mcp23017_write", err)
		}
		// try to release the bus
		_ = m.transport.Release(ctx)
	}
	return tempalert.WrapBus("mcp23017_write", fmt.Errorf("retry limit reached: %w", err))
}
