// Package config loads the tempalert YAML configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mklimuk/tempalert/alert"
	"github.com/mklimuk/tempalert/environment"
	"github.com/mklimuk/tempalert/gpio"
)

type Config struct {
	Bus    Bus    `yaml:"bus"`
	Alert  Alert  `yaml:"alert"`
	Sensor Sensor `yaml:"sensor"`
	Loop   Loop   `yaml:"loop"`
	Init   Init   `yaml:"init"`
}

type Bus struct {
	// Adapter is one of periph, raspi, nanopi, mcp2221 or sim.
	Adapter string `yaml:"adapter"`
	// Device is the periph bus name or the gobot bus number.
	Device  string `yaml:"device"`
	Address int    `yaml:"address"`
	// SpeedHz is applied to buses that support it, 0 keeps the current clock.
	SpeedHz int `yaml:"speed_hz"`
}

type Alert struct {
	// Watcher is one of cdev, periph, mcp2221, mcp23017, sim or none.
	Watcher string `yaml:"watcher"`
	// Expander is the I2C address of the MCP23017 used by the mcp23017
	// watcher, on the sensor's bus.
	Expander int           `yaml:"expander"`
	Pin      string        `yaml:"pin"`
	Chip     string        `yaml:"chip"`
	Line     int           `yaml:"line"`
	Edge     string        `yaml:"edge"`
	Pull     string        `yaml:"pull"`
	Debounce time.Duration `yaml:"debounce"`
}

type Sensor struct {
	Resolution   float64 `yaml:"resolution"`
	PowerMode    string  `yaml:"power_mode"`
	OutputMode   string  `yaml:"output_mode"`
	Polarity     string  `yaml:"polarity"`
	ResponseMode string  `yaml:"response_mode"`
	Hysteresis   float64 `yaml:"hysteresis"`
	Lower        float64 `yaml:"lower"`
	Upper        float64 `yaml:"upper"`
	Crit         float64 `yaml:"crit"`
	Enabled      bool    `yaml:"enabled"`
	Lock         string  `yaml:"lock"`
}

type Loop struct {
	Interval time.Duration `yaml:"interval"`
}

type Init struct {
	Attempts int           `yaml:"attempts"`
	Backoff  time.Duration `yaml:"backoff"`
}

// Default returns the configuration of an MCP9808 at 0x1F whose ALERT output
// is wired to BCM 25 with a pull-up.
func Default() Config {
	return Config{
		Bus: Bus{
			Adapter: "periph",
			Device:  "",
			Address: environment.MCP9808DefaultAddress,
		},
		Alert: Alert{
			Watcher:  "cdev",
			Expander: gpio.DefaultMCP23017Address,
			Pin:      "GPIO25",
			Chip:     "gpiochip0",
			Line:     25,
			Edge:     "auto",
			Pull:     "auto",
			Debounce: 500 * time.Millisecond,
		},
		Sensor: Sensor{
			Resolution:   0.25,
			PowerMode:    "power-up",
			OutputMode:   "interrupt",
			Polarity:     "active-low",
			ResponseMode: "upper-lower-crit",
			Hysteresis:   1.5,
			Lower:        20.5,
			Upper:        32.5,
			Crit:         35.5,
			Enabled:      true,
			Lock:         "no-lock",
		},
		Loop: Loop{Interval: time.Second},
		Init: Init{Attempts: 5, Backoff: 100 * time.Millisecond},
	}
}

// Load reads path on top of the defaults. An empty path returns the defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("could not read config file: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("could not parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	switch c.Bus.Adapter {
	case "periph", "raspi", "nanopi", "mcp2221", "sim":
	default:
		errs = append(errs, fmt.Errorf("unknown bus adapter %q", c.Bus.Adapter))
	}
	if err := environment.ValidateAddress(c.Bus.Address); err != nil {
		errs = append(errs, err)
	}
	switch c.Alert.Watcher {
	case "cdev", "periph", "mcp2221", "mcp23017", "sim", "none":
	default:
		errs = append(errs, fmt.Errorf("unknown alert watcher %q", c.Alert.Watcher))
	}
	if _, err := c.Alert.EdgeFor(alert.ActiveLow); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Alert.GPIOLine(alert.ActiveLow); err != nil {
		errs = append(errs, err)
	}
	if c.Alert.Watcher == "mcp23017" && (c.Alert.Expander < 0x20 || c.Alert.Expander > 0x27) {
		errs = append(errs, fmt.Errorf("expander address %#x outside 0x20-0x27", c.Alert.Expander))
	}
	if c.Alert.Debounce < 0 {
		errs = append(errs, fmt.Errorf("negative debounce %s", c.Alert.Debounce))
	}
	if c.Loop.Interval <= 0 {
		errs = append(errs, fmt.Errorf("loop interval must be positive, got %s", c.Loop.Interval))
	}
	if _, err := c.Sensor.DeviceConfig(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// DeviceConfig converts the sensor section to a device configuration.
func (s Sensor) DeviceConfig() (environment.DeviceConfig, error) {
	var dc environment.DeviceConfig
	var errs []error
	var err error
	if dc.Resolution, err = environment.ResolutionFromStep(s.Resolution); err != nil {
		errs = append(errs, err)
	}
	if dc.PowerMode, err = environment.ParsePowerMode(s.PowerMode); err != nil {
		errs = append(errs, err)
	}
	if dc.OutputMode, err = alert.ParseOutputMode(s.OutputMode); err != nil {
		errs = append(errs, err)
	}
	if dc.Polarity, err = alert.ParsePolarity(s.Polarity); err != nil {
		errs = append(errs, err)
	}
	if dc.Response, err = alert.ParseResponseMode(s.ResponseMode); err != nil {
		errs = append(errs, err)
	}
	if dc.Hysteresis, err = alert.HysteresisFromCelsius(s.Hysteresis); err != nil {
		errs = append(errs, err)
	}
	if dc.Lock, err = environment.ParseLockState(s.Lock); err != nil {
		errs = append(errs, err)
	}
	dc.AlertEnabled = s.Enabled
	dc.Thresholds = environment.Thresholds{Lower: s.Lower, Upper: s.Upper, Crit: s.Crit}
	return dc, errors.Join(errs...)
}

// GPIOLine returns the GPIO line the ALERT output is wired to. Pull "auto"
// biases the line to the inactive level of polarity p.
func (a Alert) GPIOLine(p alert.Polarity) (gpio.Line, error) {
	pull := gpio.PullFor(p)
	if a.Pull != "auto" {
		var err error
		if pull, err = gpio.ParsePull(a.Pull); err != nil {
			return gpio.Line{}, err
		}
	}
	return gpio.Line{Name: a.Pin, Chip: a.Chip, Offset: a.Line, Pull: pull}, nil
}

// EdgeFor returns the edge to watch. Edge "auto" selects the asserting edge
// of polarity p.
func (a Alert) EdgeFor(p alert.Polarity) (gpio.Edge, error) {
	if a.Edge == "auto" {
		return gpio.EdgeFor(p), nil
	}
	return gpio.ParseEdge(a.Edge)
}

// SensorFrom describes a device configuration with the file's vocabulary.
func SensorFrom(dc environment.DeviceConfig) Sensor {
	return Sensor{
		Resolution:   dc.Resolution.Step(),
		PowerMode:    dc.PowerMode.String(),
		OutputMode:   dc.OutputMode.String(),
		Polarity:     dc.Polarity.String(),
		ResponseMode: dc.Response.String(),
		Hysteresis:   dc.Hysteresis.Celsius(),
		Lower:        dc.Lower,
		Upper:        dc.Upper,
		Crit:         dc.Crit,
		Enabled:      dc.AlertEnabled,
		Lock:         dc.Lock.String(),
	}
}
