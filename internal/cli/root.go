// Package cli wires the grandbridge commands.
package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"grandbridge/internal/config"
	"grandbridge/internal/logging"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	EnvFiles []string
	LogLevel string
}

func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "grandbridge",
		Short:         "GrandBridge family support web app",
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringSliceVar(&opts.EnvFiles, "env", nil, "dotenv file(s) to load (default .env)")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "log level, overrides LOG_LEVEL")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewSeedCommand(opts))
	cmd.AddCommand(NewHealthcheckCommand(opts))

	return cmd
}

// load reads configuration and builds the logger. A missing JWT secret is
// only an error when needSecret is set.
func (o *RootOptions) load(needSecret bool) (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(o.EnvFiles...)
	if err != nil && (needSecret || !errors.Is(err, config.ErrNoSecret)) {
		return nil, nil, err
	}
	level := cfg.LogLevel
	if o.LogLevel != "" {
		level = o.LogLevel
	}
	log, err := logging.New(level)
	if err != nil {
		return nil, nil, fmt.Errorf("logger: %w", err)
	}
	return cfg, log, nil
}
