package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/mklimuk/tempalert/cmd/tempalert/console"
	"github.com/mklimuk/tempalert/config"
	"github.com/mklimuk/tempalert/environment"
)

var readCmd = cli.Command{
	Name:    "read",
	Aliases: []string{"temp"},
	Usage:   "read the ambient temperature and the alert flags",
	Flags:   busFlags,
	Action: func(c *cli.Context) error {
		return withSensor(c, func(ctx context.Context, s *session) error {
			temp, err := s.sensor.GetTemperature(ctx)
			if err != nil {
				return console.Exit(1, "error getting temperature read: %s", console.Red(err))
			}
			flags, err := s.sensor.GetAlertFlags(ctx)
			if err != nil {
				return console.Exit(1, "error getting alert flags: %s", console.Red(err))
			}
			console.Printf("%s %s °C\n", console.PictoThermometer, console.White(fmt.Sprintf("%.4f", temp)))
			console.Printf("crit %s upper %s lower %s\n", flagText(flags.AboveCrit), flagText(flags.AboveUpper), flagText(flags.BelowLower))
			return nil
		})
	},
}

var configureCmd = cli.Command{
	Name:  "configure",
	Usage: "write the sensor configuration, command line flags override the file",
	Flags: append([]cli.Flag{
		&cli.Float64Flag{Name: "lower", Usage: "lower threshold in °C"},
		&cli.Float64Flag{Name: "upper", Usage: "upper threshold in °C"},
		&cli.Float64Flag{Name: "crit", Usage: "critical threshold in °C"},
		&cli.Float64Flag{Name: "hysteresis", Usage: "0, 1.5, 3 or 6 °C"},
		&cli.Float64Flag{Name: "resolution", Usage: "0.5, 0.25, 0.125 or 0.0625 °C"},
		&cli.StringFlag{Name: "output-mode", Usage: "comparator or interrupt"},
		&cli.StringFlag{Name: "polarity", Usage: "active-low or active-high"},
		&cli.StringFlag{Name: "response-mode", Usage: "upper-lower-crit or crit-only"},
		&cli.StringFlag{Name: "power-mode", Usage: "power-up or low-power"},
		&cli.StringFlag{Name: "lock", Usage: "no-lock, win-lock, crit-lock or crit-win-lock"},
		&cli.BoolFlag{Name: "enabled", Usage: "enable the ALERT output"},
		&cli.BoolFlag{Name: "yes", Aliases: []string{"y"}, Usage: "do not ask before locking"},
	}, busFlags...),
	Action: func(c *cli.Context) error {
		cfg, err := loadConfig(c)
		if err != nil {
			return console.Exit(1, "%s", console.Red(err))
		}
		sensor := overrideSensor(c, cfg.Sensor)
		dc, err := sensor.DeviceConfig()
		if err != nil {
			return console.Exit(1, "invalid sensor configuration: %s", console.Red(err))
		}
		if dc.Lock != environment.NoLock && !c.Bool("yes") {
			answer, err := console.NoOrYes(fmt.Sprintf("%s %s stays until the next power cycle. Continue?", console.PictoKey, dc.Lock))
			if err != nil {
				return console.Exit(1, "%s", console.Red(err))
			}
			if answer != console.Yes {
				console.PInfof(console.PictoStop, "configuration not written")
				return nil
			}
		}
		cfg.Sensor = sensor
		return withConfig(c, cfg, func(ctx context.Context, s *session) error {
			if err := s.sensor.Setup(ctx, dc); err != nil {
				console.Errorf("%s", err)
				return console.Exit(2, "sensor configuration incomplete")
			}
			return printStatus(ctx, s)
		})
	},
}

var statusCmd = cli.Command{
	Name:  "status",
	Usage: "print the configuration stored in the sensor",
	Flags: busFlags,
	Action: func(c *cli.Context) error {
		return withSensor(c, printStatus)
	},
}

var clearCmd = cli.Command{
	Name:  "clear",
	Usage: "clear a latched interrupt",
	Flags: busFlags,
	Action: func(c *cli.Context) error {
		return withSensor(c, func(ctx context.Context, s *session) error {
			if err := s.sensor.ClearInterrupt(ctx); err != nil {
				return console.Exit(1, "could not clear interrupt: %s", console.Red(err))
			}
			console.Infof("interrupt cleared")
			return nil
		})
	},
}

type sensorStatus struct {
	Address     string        `yaml:"address"`
	Temperature float64       `yaml:"temperature"`
	AboveCrit   bool          `yaml:"above_crit"`
	AboveUpper  bool          `yaml:"above_upper"`
	BelowLower  bool          `yaml:"below_lower"`
	Sensor      config.Sensor `yaml:"sensor"`
}

func printStatus(ctx context.Context, s *session) error {
	dc, err := s.sensor.GetConfiguration(ctx)
	if err != nil {
		return console.Exit(1, "could not read configuration: %s", console.Red(err))
	}
	temp, err := s.sensor.GetTemperature(ctx)
	if err != nil {
		return console.Exit(1, "error getting temperature read: %s", console.Red(err))
	}
	flags, err := s.sensor.GetAlertFlags(ctx)
	if err != nil {
		return console.Exit(1, "error getting alert flags: %s", console.Red(err))
	}
	status := sensorStatus{
		Address:     fmt.Sprintf("%#x", s.sensor.Address()),
		Temperature: temp,
		AboveCrit:   flags.AboveCrit,
		AboveUpper:  flags.AboveUpper,
		BelowLower:  flags.BelowLower,
		Sensor:      config.SensorFrom(dc),
	}
	return encode(status)
}

func overrideSensor(c *cli.Context, s config.Sensor) config.Sensor {
	for name, dst := range map[string]*float64{
		"lower":      &s.Lower,
		"upper":      &s.Upper,
		"crit":       &s.Crit,
		"hysteresis": &s.Hysteresis,
		"resolution": &s.Resolution,
	} {
		if c.IsSet(name) {
			*dst = c.Float64(name)
		}
	}
	for name, dst := range map[string]*string{
		"output-mode":   &s.OutputMode,
		"polarity":      &s.Polarity,
		"response-mode": &s.ResponseMode,
		"power-mode":    &s.PowerMode,
		"lock":          &s.Lock,
	} {
		if c.IsSet(name) {
			*dst = c.String(name)
		}
	}
	if c.IsSet("enabled") {
		s.Enabled = c.Bool("enabled")
	}
	return s
}

func withSensor(c *cli.Context, fn func(ctx context.Context, s *session) error) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return console.Exit(1, "%s", console.Red(err))
	}
	return withConfig(c, cfg, fn)
}

func withConfig(c *cli.Context, cfg config.Config, fn func(ctx context.Context, s *session) error) error {
	ctx := commandContext(c)
	s, err := openSession(ctx, cfg)
	if err != nil {
		return console.Exit(1, "could not open bus: %s", console.Red(err))
	}
	defer func() { _ = s.Close() }()
	if err := s.sensor.Init(ctx); err != nil {
		return console.Exit(1, "sensor initialization error: %s", console.Red(err))
	}
	return fn(ctx, s)
}

func flagText(set bool) string {
	if set {
		return console.Red("yes")
	}
	return console.Green("no")
}
