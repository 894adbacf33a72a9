package main

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"zeitslot/internal/config"
	logx "zeitslot/pkg/logx"
)

const defaultConfigPath = "./config.yaml"

func newRootCmd() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("ZEITSLOT")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	root := &cobra.Command{
		Use:   "zeitslot",
		Short: "Scheduled Telegram messages with content, duplicate and rate checks",
		Long: `zeitslot posts stored messages to a Telegram chat on their schedule.

Every tick each entry is checked in order: is it due, was the same text sent
recently, does the content pass the policy, is the rate budget left. Blocked
entries are reported to the admin chat.

Run the daemon:
  zeitslot run --config ./config.yaml

Evaluate every entry once and exit:
  zeitslot tick`,
		SilenceUsage: true,
	}
	root.PersistentFlags().String("config", defaultConfigPath, "config file (YAML or JSON); env ZEITSLOT_CONFIG")
	root.PersistentFlags().String("log-level", "", "override logging.level; env ZEITSLOT_LOG_LEVEL")
	_ = v.BindPFlag("config", root.PersistentFlags().Lookup("config"))
	_ = v.BindPFlag("log-level", root.PersistentFlags().Lookup("log-level"))

	root.AddCommand(
		newRunCmd(v),
		newTickCmd(v),
		newImportCmd(v),
		newAuditCmd(v),
		newCheckCmd(v),
	)
	return root
}

func configPath(v *viper.Viper) string {
	if p := strings.TrimSpace(v.GetString("config")); p != "" {
		return p
	}
	return defaultConfigPath
}

// loadConfig reads the config for commands that do not build the whole app.
func loadConfig(v *viper.Viper) (*config.Config, logx.Logger, error) {
	cfg, err := config.NewConfigManager(configPath(v)).Load()
	if err != nil {
		return nil, logx.Logger{}, err
	}
	level := cfg.Logging.Level
	if l := strings.TrimSpace(v.GetString("log-level")); l != "" {
		level = l
	}
	return cfg, logx.NewConsole(level), nil
}
