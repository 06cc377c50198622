// Package cli holds the sentinel command tree.
package cli

import (
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"

	"PatternSentinel/internal/config"
)

var RootCmd = &cobra.Command{
	Use:   "sentinel",
	Short: "A/B/C pattern verifier",
	Long:  "Drives the pattern analysis backend: universe scans, single-symbol checks, the quote board and chart annotation.",

	// SilenceUsage is an option to silence usage when an error occurs.
	SilenceUsage: true,

	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		log.SetFormatter(&prefixed.TextFormatter{FullTimestamp: true})
		if viper.GetBool("debug") {
			log.SetLevel(log.DebugLevel)
		}
		return nil
	},
}

func init() {
	RootCmd.PersistentFlags().Bool("debug", false, "debug flag")
	RootCmd.PersistentFlags().String("config", "configs/config.yaml", "config file")
}

// Execute runs the command tree.
func Execute() {
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	// Enable environment variable binding, the env vars are not overloaded yet.
	viper.AutomaticEnv()

	if err := viper.BindPFlags(RootCmd.PersistentFlags()); err != nil {
		log.WithError(err).Errorf("failed to bind persistent flags. please check the flag settings.")
	}
	// CONFIG_PATH is what the container images set
	if err := viper.BindEnv("config", "CONFIG_PATH"); err != nil {
		log.WithError(err).Errorf("failed to bind CONFIG_PATH")
	}

	if err := RootCmd.Execute(); err != nil {
		log.WithError(err).Fatalf("cannot execute command")
	}
}

// bindLocalFlags makes a subcommand's flags visible through viper, so they can
// also be set from the environment.
func bindLocalFlags(fs *flag.FlagSet) {
	if err := viper.BindPFlags(fs); err != nil {
		log.WithError(err).Errorf("failed to bind local flags. please check the flag settings.")
	}
}

// loadConfig loads and validates the config named by --config.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(viper.GetString("config"))
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
