package main

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/karalabe/hid"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/mklimuk/tempalert/adapter"
	"github.com/mklimuk/tempalert/cmd/tempalert/console"
)

var usbCmd = cli.Command{
	Name:  "usb",
	Usage: "inspect USB to I2C bridges",
	Subcommands: cli.Commands{
		&usbLsCmd,
		&usbDetectCmd,
		&usbStatusCmd,
		&usbReleaseCmd,
		&usbGPIOCmd,
		&usbInputCmd,
	},
}

var bridgeFlags = []cli.Flag{
	&cli.IntFlag{
		Name:  "index",
		Usage: "bridge index when several are attached",
		Value: -1,
	},
}

func bridge(c *cli.Context) *adapter.MCP2221 {
	if c.Int("index") >= 0 {
		return adapter.NewMCP2221(adapter.WithDeviceIndex(c.Int("index")))
	}
	return adapter.NewMCP2221()
}

var usbLsCmd = cli.Command{
	Name: "ls",
	Action: func(c *cli.Context) error {
		// List all HID devices
		devices := hid.Enumerate(0, 0)

		w := tabwriter.NewWriter(console.Output(), 24, 0, 1, ' ', 0)
		_, _ = fmt.Fprintf(w, "PATH\tSERIAL\tVENDOR\tPRODUCT ID\tMANUFACTURER\tPRODUCT\n")

		for _, dev := range devices {
			_, _ = fmt.Fprintf(w, "%s\t%s\t%#x\t%#x\t%s\t%s\n",
				dev.Path, dev.Serial, dev.VendorID, dev.ProductID, dev.Manufacturer, dev.Product)
		}
		_ = w.Flush()
		return nil
	},
}

var usbDetectCmd = cli.Command{
	Name: "detect",
	Action: func(c *cli.Context) error {
		w := tabwriter.NewWriter(console.Output(), 24, 0, 1, ' ', 0)
		_, _ = fmt.Fprintf(w, "INDEX\tVENDOR\tPRODUCT\tDEVICE\tSERIAL\n")
		for i, dev := range adapter.Devices() {
			_, _ = fmt.Fprintf(w, "%d\t%#x\t%#x\t%s\t%s\n", i, dev.VendorID, dev.ProductID, "MCP2221", dev.Serial)
		}
		_ = w.Flush()
		return nil
	},
}

var usbStatusCmd = cli.Command{
	Name:  "status",
	Flags: bridgeFlags,
	Action: func(c *cli.Context) error {
		status, err := bridge(c).Status(commandContext(c))
		if err != nil {
			return console.Exit(1, "adapter communication error: %s", console.Red(err))
		}
		return encode(status)
	},
}

var usbReleaseCmd = cli.Command{
	Name:  "release",
	Usage: "cancel a stuck I2C transfer",
	Flags: bridgeFlags,
	Action: func(c *cli.Context) error {
		status, err := bridge(c).ReleaseBus(commandContext(c))
		if err != nil {
			return console.Exit(1, "adapter communication error: %s", console.Red(err))
		}
		return encode(status)
	},
}

var usbGPIOCmd = cli.Command{
	Name:  "gpio",
	Usage: "print GP pin settings and levels",
	Flags: bridgeFlags,
	Action: func(c *cli.Context) error {
		ctx := commandContext(c)
		d := bridge(c)
		params, err := d.GetGPIOParameters(ctx)
		if err != nil {
			return console.Exit(1, "could not read GP settings: %s", console.Red(err))
		}
		values, err := d.ReadGPIO(ctx)
		if err != nil {
			return console.Exit(1, "could not read GP values: %s", console.Red(err))
		}
		return encode(map[string]any{"settings": params, "values": values})
	},
}

var usbInputCmd = cli.Command{
	Name:      "input",
	Usage:     "store a GP pin as GPIO input for the ALERT line, applies after reset",
	ArgsUsage: "<pin>",
	Flags:     bridgeFlags,
	Action: func(c *cli.Context) error {
		if c.NArg() != 1 {
			return console.Exit(1, "expected 1 argument, got %d", c.NArg())
		}
		pin, err := strconv.Atoi(c.Args().Get(0))
		if err != nil {
			return console.Exit(1, "could not parse pin: %v", err)
		}
		if err := bridge(c).ConfigureInput(commandContext(c), pin); err != nil {
			return console.Exit(1, "could not configure GP%d: %s", pin, console.Red(err))
		}
		console.PInfof(console.PictoPin, "GP%d stored as input, reset the bridge to apply", pin)
		return nil
	},
}

func encode(v any) error {
	enc := yaml.NewEncoder(console.Output())
	defer enc.Close()
	if err := enc.Encode(v); err != nil {
		return console.Exit(1, "encoding error: %s", console.Red(err))
	}
	return nil
}
