package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"

	"github.com/spf13/cobra"
)

// DemoCmd runs the monitor against the simulated sensor, no hardware needed.
func DemoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run the monitor against the simulated sensor",
		RunE: func(cmd *cobra.Command, args []string) error {
			sweep, err := cmd.Flags().GetDuration("sweep")
			if err != nil {
				return fmt.Errorf("could not get sweep flag: %w", err)
			}
			run := exec.CommandContext(cmd.Context(), "go", "run", "./cmd/tempalert", "monitor",
				"--adapter", "sim", "--debounce", "0s", "--sweep", sweep.String())
			run.Stdout = os.Stdout
			run.Stderr = os.Stderr
			slog.Info("starting demo", "cmd", run.String())
			if err := run.Run(); err != nil {
				return fmt.Errorf("demo failed: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().Duration("sweep", 0, "temperature step period, 0 keeps the monitor default")
	return cmd
}
