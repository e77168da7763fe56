package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/urfave/cli/v2"
	"periph.io/x/conn/v3/physic"

	"github.com/mklimuk/tempalert"
	"github.com/mklimuk/tempalert/adapter"
	"github.com/mklimuk/tempalert/alert"
	"github.com/mklimuk/tempalert/config"
	"github.com/mklimuk/tempalert/environment"
	"github.com/mklimuk/tempalert/gpio"
	"github.com/mklimuk/tempalert/i2c"
	"github.com/mklimuk/tempalert/snsctx"
)

var busFlags = []cli.Flag{
	&cli.StringFlag{
		Name:    "adapter",
		Aliases: []string{"a"},
		Usage:   "bus adapter: periph, raspi, nanopi, mcp2221 or sim",
	},
	&cli.StringFlag{
		Name:    "device",
		Aliases: []string{"d"},
		Usage:   "bus name (periph), bus number (raspi, nanopi) or bridge index (mcp2221)",
	},
	&cli.IntFlag{
		Name:  "address",
		Usage: "sensor address, 0x18 to 0x1F",
	},
}

// session is an opened bus with the sensor behind it.
type session struct {
	cfg     config.Config
	bus     tempalert.I2CBus
	sensor  *environment.MCP9808
	sim     *environment.SimulatedMCP9808
	mcp2221 *adapter.MCP2221
	closers []func() error
}

func loadConfig(c *cli.Context) (config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return config.Config{}, err
	}
	if c.IsSet("adapter") {
		cfg.Bus.Adapter = c.String("adapter")
	}
	if c.IsSet("device") {
		cfg.Bus.Device = c.String("device")
	}
	if c.IsSet("address") {
		cfg.Bus.Address = c.Int("address")
	}
	if c.IsSet("watcher") {
		cfg.Alert.Watcher = c.String("watcher")
	}
	if c.IsSet("interval") {
		cfg.Loop.Interval = c.Duration("interval")
	}
	if c.IsSet("debounce") {
		cfg.Alert.Debounce = c.Duration("debounce")
	}
	// the simulated sensor drives a soft pin only
	if cfg.Bus.Adapter == "sim" && cfg.Alert.Watcher != "none" {
		cfg.Alert.Watcher = "sim"
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func commandContext(c *cli.Context) context.Context {
	ctx := snsctx.SetVerbose(c.Context, c.Bool("verbose"))
	return snsctx.SetTrace(ctx, c.Bool("trace"))
}

func openSession(ctx context.Context, cfg config.Config) (*session, error) {
	s := &session{cfg: cfg}
	if err := s.openBus(ctx); err != nil {
		return nil, err
	}
	s.sensor = environment.NewMCP9808(s.bus,
		environment.WithAddress(byte(cfg.Bus.Address)),
		environment.WithInitAttempts(cfg.Init.Attempts),
		environment.WithInitBackoff(cfg.Init.Backoff, 2*time.Second),
	)
	return s, nil
}

func (s *session) openBus(ctx context.Context) error {
	cfg := s.cfg.Bus
	switch cfg.Adapter {
	case "periph":
		b, err := i2c.NewGenericBus(cfg.Device)
		if err != nil {
			return err
		}
		s.closers = append(s.closers, b.Close)
		if cfg.SpeedHz > 0 {
			if err := b.SetSpeed(physic.Frequency(cfg.SpeedHz) * physic.Hertz); err != nil {
				slog.Warn("keeping current bus speed", "error", err)
			}
		}
		s.bus = b
	case "raspi", "nanopi":
		busNr := -1
		if cfg.Device != "" {
			n, err := strconv.Atoi(cfg.Device)
			if err != nil {
				return fmt.Errorf("invalid bus number %q: %w", cfg.Device, err)
			}
			busNr = n
		}
		open := i2c.NewRaspiBus
		if cfg.Adapter == "nanopi" {
			open = i2c.NewNanoPiBus
		}
		b, err := open(busNr)
		if err != nil {
			return err
		}
		s.closers = append(s.closers, b.Close)
		s.bus = b
	case "mcp2221":
		var opts []adapter.MCP2221Opt
		if cfg.Device != "" {
			n, err := strconv.Atoi(cfg.Device)
			if err != nil {
				return fmt.Errorf("invalid bridge index %q: %w", cfg.Device, err)
			}
			opts = append(opts, adapter.WithDeviceIndex(n))
		}
		m := adapter.NewMCP2221(opts...)
		if cfg.SpeedHz > 0 {
			if err := m.SetSpeed(ctx, cfg.SpeedHz); err != nil {
				slog.Warn("keeping current bus speed", "error", err)
			}
		}
		s.mcp2221 = m
		s.bus = m
	case "sim":
		s.sim = environment.NewSimulatedMCP9808(environment.WithSimAddress(byte(cfg.Address)))
		s.bus = s.sim
	default:
		return fmt.Errorf("unknown bus adapter %q", cfg.Adapter)
	}
	return nil
}

// watcher returns the edge source configured for the ALERT line, nil when
// edges are not watched.
func (s *session) watcher(ctx context.Context, p alert.Polarity) (gpio.Watcher, gpio.Line, error) {
	line, err := s.cfg.Alert.GPIOLine(p)
	if err != nil {
		return nil, line, err
	}
	switch s.cfg.Alert.Watcher {
	case "cdev":
		return &gpio.CdevWatcher{Consumer: "tempalert"}, line, nil
	case "periph":
		return &gpio.PeriphWatcher{}, line, nil
	case "mcp2221":
		if s.mcp2221 == nil {
			return nil, line, errors.New("the mcp2221 watcher needs the mcp2221 adapter")
		}
		return &gpio.PollWatcher{Reader: s.mcp2221, Interval: 20 * time.Millisecond}, line, nil
	case "mcp23017":
		expander := gpio.NewMCP23017(s.bus, byte(s.cfg.Alert.Expander))
		if err := expander.ConfigureInput(ctx, line.Offset, line.Pull == gpio.PullUp); err != nil {
			return nil, line, err
		}
		return &gpio.PollWatcher{Reader: expander, Interval: 20 * time.Millisecond}, line, nil
	case "sim":
		if s.sim == nil {
			return nil, line, errors.New("the sim watcher needs the sim adapter")
		}
		line.Name = s.sim.AlertPin().Name()
		return gpio.NewSoftWatcher(s.sim.AlertPin()), line, nil
	default:
		return nil, line, nil
	}
}

func (s *session) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i]())
	}
	return errors.Join(errs...)
}
