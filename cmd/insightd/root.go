package main

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/davidleathers/barangay-insights/internal/infrastructure/config"
	"github.com/davidleathers/barangay-insights/internal/infrastructure/llm"
	"github.com/davidleathers/barangay-insights/internal/infrastructure/telemetry"
)

// app carries what every subcommand shares once the config is loaded.
type app struct {
	configPath string
	cfg        *config.Config
	logger     *slog.Logger
	zap        *zap.Logger

	newModel func(ctx context.Context, cfg config.LLMConfig, logger *zap.Logger) (llm.Model, error)
}

func newApp() *app {
	return &app{newModel: llm.New}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "insightd",
		Short:         "Dashboard analytics and predictive insights for the barangay records portal",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load()
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.zap != nil {
				_ = a.zap.Sync()
			}
		},
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "",
		"path to the YAML config file (default "+config.DefaultPath+" when present)")

	root.AddCommand(
		newServeCmd(a),
		newMigrateCmd(a),
		newAnalyzeCmd(a),
		newImportCmd(a),
	)
	return root
}

func (a *app) load() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	zl, err := telemetry.NewZapLogger(cfg.LogLevel, cfg.Environment)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = telemetry.SetupLogger(cfg.LogLevel)
	a.zap = zl
	return nil
}
