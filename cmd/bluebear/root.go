package main

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"bluebear.game/internal/config"
	"bluebear.game/internal/infrastructure"
	"bluebear.game/internal/lot"
	"bluebear.game/internal/lot/schema"
)

type rootOptions struct {
	configPath     string
	logLevel       string
	infrastructure string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:          "bluebear",
		Short:        "Lot simulation and tooling",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to bluebear.yaml (defaults when empty)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level override (trace, debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&opts.infrastructure, "infrastructure", "", "infrastructure.yaml override")

	cmd.AddCommand(newRunCmd(opts), newInspectCmd(opts), newValidateCmd(opts), newConvertCmd(opts))
	return cmd
}

// load resolves the config file and flag overrides.
func (o *rootOptions) load() (config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return cfg, err
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
	if o.infrastructure != "" {
		cfg.Infrastructure = o.infrastructure
	}
	cfg.Normalize()
	return cfg, cfg.Validate()
}

func newLogger(cmd *cobra.Command, cfg config.Config) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(cmd.ErrOrStderr())
	logger.SetLevel(cfg.Level())
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return logger
}

func newBuilder(cfg config.Config, logger logrus.FieldLogger) (*lot.Builder, error) {
	reg, err := infrastructure.Load(cfg.Infrastructure)
	if err != nil {
		return nil, err
	}
	v, err := schema.New()
	if err != nil {
		return nil, err
	}
	return lot.NewBuilder(lot.BuilderConfig{Factory: reg, Logger: logger, Validator: v}), nil
}
