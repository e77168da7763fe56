package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/mklimuk/tempalert/alert"
	"github.com/mklimuk/tempalert/cmd/tempalert/console"
	"github.com/mklimuk/tempalert/environment"
)

var monitorCmd = cli.Command{
	Name:  "monitor",
	Usage: "configure the sensor and report temperature and alert changes until interrupted",
	Flags: append([]cli.Flag{
		&cli.StringFlag{
			Name:  "watcher",
			Usage: "ALERT edge source: cdev, periph, mcp2221, mcp23017, sim or none",
		},
		&cli.DurationFlag{
			Name:  "interval",
			Usage: "sampling interval",
		},
		&cli.DurationFlag{
			Name:  "debounce",
			Usage: "minimum time between two reported edges",
		},
		&cli.BoolFlag{
			Name:  "skip-setup",
			Usage: "keep the configuration stored in the sensor",
		},
		&cli.DurationFlag{
			Name:  "sweep",
			Usage: "sim adapter only: period of a 0.5 °C temperature step",
			Value: 500 * time.Millisecond,
		},
	}, busFlags...),
	Action: func(c *cli.Context) error {
		cfg, err := loadConfig(c)
		if err != nil {
			return console.Exit(1, "%s", console.Red(err))
		}
		ctx, stop := signal.NotifyContext(commandContext(c), os.Interrupt, syscall.SIGTERM)
		defer stop()

		s, err := openSession(ctx, cfg)
		if err != nil {
			return console.Exit(1, "could not open bus: %s", console.Red(err))
		}
		defer func() { _ = s.Close() }()

		if err := s.sensor.Init(ctx); err != nil {
			return console.Exit(1, "sensor initialization error: %s", console.Red(err))
		}
		dc, err := cfg.Sensor.DeviceConfig()
		if err != nil {
			return console.Exit(1, "%s", console.Red(err))
		}
		if !c.Bool("skip-setup") {
			if err := s.sensor.Setup(ctx, dc); err != nil {
				console.Warnf("sensor setup incomplete: %s", err)
			}
		}
		if current, err := s.sensor.GetConfiguration(ctx); err == nil {
			dc = current
			console.PInfof(console.PictoPin, "lower %.2f °C, upper %.2f °C, crit %.2f °C, %s, %s",
				dc.Lower, dc.Upper, dc.Crit, dc.OutputMode, dc.Polarity)
		}

		reporter := console.NewReporter()
		loop := alert.NewLoop(s.sensor,
			alert.WithInterval(cfg.Loop.Interval),
			alert.WithReporter(reporter),
		)

		w, line, err := s.watcher(ctx, dc.Polarity)
		if err != nil {
			return console.Exit(1, "%s", console.Red(err))
		}
		if w != nil {
			edge, err := cfg.Alert.EdgeFor(dc.Polarity)
			if err != nil {
				return console.Exit(1, "%s", console.Red(err))
			}
			unwatch, err := w.Watch(ctx, line, edge, cfg.Alert.Debounce, loop.Notify)
			if err != nil {
				return console.Exit(1, "could not watch alert line: %s", console.Red(err))
			}
			defer func() { _ = unwatch() }()
			console.Infof("watching %s edges on %s", edge, line)
		} else {
			console.Warnf("alert line is not watched, only sampling")
		}

		if s.sim != nil {
			// move across the default thresholds
			go s.sim.Play(ctx, c.Duration("sweep"), environment.Triangle(18, 38, 0.5))
		}

		err = loop.Run(ctx)
		if ctx.Err() != nil {
			console.PInfof(console.PictoFinish, "stopped after %d alert changes", loop.Handled())
			return nil
		}
		return err
	},
}
