package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"zeitslot/internal/app"
	"zeitslot/internal/rowsource"
)

func newImportCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.yaml>",
		Short: "Upsert entries from a YAML file into storage",
		Long: `import reads a YAML document of the form

  entries:
    - id: morning
      scheduled_at: 2026-05-01 09:00
      message: Guten Morgen
      repeat: täglich
      enabled: ja

and upserts every entry. Existing fire states are kept unless the file sets
last_state. No Telegram token is needed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig(v)
			if err != nil {
				return err
			}
			store, err := app.OpenStore(cfg, log)
			if err != nil {
				return err
			}
			defer store.Close()

			res, err := rowsource.ImportFile(cmd.Context(), store, args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "imported %d entries\n", res.Upserted)
			if len(res.Skipped) > 0 {
				fmt.Fprintf(out, "skipped: %s\n", strings.Join(res.Skipped, ", "))
			}
			return nil
		},
	}
}
