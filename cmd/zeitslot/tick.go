package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"zeitslot/internal/app"
)

func newTickCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "tick",
		Short: "Evaluate every entry once, send what is due and exit",
		Long: `tick runs a single evaluation pass with the same checks, audit
records and admin alerts as the daemon. Use it from an external scheduler
(systemd timer, cron) instead of "run".`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := app.New(configPath(v), app.WithLogLevel(v.GetString("log-level")))
			if err != nil {
				return err
			}
			defer a.Close()

			rep, err := a.RunOnce(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "tick %s: %s entries, %d sent, %d blocked, %d errors in %s\n",
				rep.TickID, humanize.Comma(int64(rep.Entries)), rep.Sent, rep.Blocked, rep.Errors, rep.Duration.Round(time.Millisecond))
			return nil
		},
	}
}
