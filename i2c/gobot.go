package i2c

import (
	"context"
	"fmt"
	"io"
	"sync"

	gobi2c "gobot.io/x/gobot/v2/drivers/i2c"
	"gobot.io/x/gobot/v2/platforms/friendlyelec/nanopi"
	"gobot.io/x/gobot/v2/platforms/raspi"

	"github.com/mklimuk/tempalert"
	"github.com/mklimuk/tempalert/snsctx"
)

var _ tempalert.I2CBus = &GobotBus{}

// GobotAdaptor is the part of a gobot platform adaptor used for I2C access.
type GobotAdaptor interface {
	gobi2c.Connector
	Connect() error
	Finalize() error
}

// GobotBus talks to I2C devices through a gobot platform adaptor. One
// connection per device address is opened lazily and reused.
type GobotBus struct {
	mx      sync.Mutex
	adaptor GobotAdaptor
	busNr   int
	conns   map[byte]gobi2c.Connection
}

// NewRaspiBus opens I2C bus busNr of a Raspberry Pi. A negative busNr selects
// the platform default.
func NewRaspiBus(busNr int) (*GobotBus, error) {
	return NewGobotBus(raspi.NewAdaptor(), busNr)
}

// NewNanoPiBus opens I2C bus busNr of a NanoPi NEO.
func NewNanoPiBus(busNr int) (*GobotBus, error) {
	return NewGobotBus(nanopi.NewNeoAdaptor(), busNr)
}

func NewGobotBus(adaptor GobotAdaptor, busNr int) (*GobotBus, error) {
	if err := adaptor.Connect(); err != nil {
		return nil, fmt.Errorf("could not connect platform adaptor: %w", err)
	}
	if busNr < 0 {
		busNr = adaptor.DefaultI2cBus()
	}
	return &GobotBus{
		adaptor: adaptor,
		busNr:   busNr,
		conns:   make(map[byte]gobi2c.Connection),
	}, nil
}

func (b *GobotBus) connection(address byte) (gobi2c.Connection, error) {
	b.mx.Lock()
	defer b.mx.Unlock()
	if conn, ok := b.conns[address]; ok {
		return conn, nil
	}
	conn, err := b.adaptor.GetI2cConnection(int(address), b.busNr)
	if err != nil {
		return nil, fmt.Errorf("could not open connection to %x on bus %d: %w", address, b.busNr, err)
	}
	b.conns[address] = conn
	return conn, nil
}

func (b *GobotBus) ReadFromAddr(ctx context.Context, address byte, buffer []byte) error {
	conn, err := b.connection(address)
	if err != nil {
		return err
	}
	n, err := conn.Read(buffer)
	if err != nil {
		return fmt.Errorf("could not read from i2c bus %x: %w", address, err)
	}
	if n != len(buffer) {
		return fmt.Errorf("short read from %x: %w", address, io.ErrUnexpectedEOF)
	}
	snsctx.Dump(ctx, "i2c read", address, buffer)
	return nil
}

func (b *GobotBus) WriteToAddr(ctx context.Context, address byte, buffer []byte) error {
	conn, err := b.connection(address)
	if err != nil {
		return err
	}
	snsctx.Dump(ctx, "i2c write", address, buffer)
	if _, err := conn.Write(buffer); err != nil {
		return fmt.Errorf("could not write to i2c bus %x: %w", address, err)
	}
	return nil
}

func (b *GobotBus) Release(ctx context.Context) error {
	return nil
}

// Close closes the device connections and finalizes the adaptor.
func (b *GobotBus) Close() error {
	b.mx.Lock()
	defer b.mx.Unlock()
	for addr, conn := range b.conns {
		_ = conn.Close()
		delete(b.conns, addr)
	}
	return b.adaptor.Finalize()
}
