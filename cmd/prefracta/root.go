package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xela07ax/prefracta-audit/internal/infra"
)

var Version = "0.0.0"

const configFileFlag = "config"

var configFilePath string

// app: то, что нужно каждой подкоманде: конфиг и логгер.
type app struct {
	cfg    *infra.Config
	logger *zap.Logger
}

var rootCmd = &cobra.Command{
	Use:           "prefracta",
	Short:         "Pre-production audit of a web service and its repository",
	Long:          `Runs load, browser and repository probes against a target, derives business-impact estimates and asks a reasoning model for a go/no-go verdict.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() error {
	rootCmd.PersistentFlags().StringVar(&configFilePath, configFileFlag, "", "Path to the config file (default ./config.yaml or ./configs/config.yaml)")
	cobra.CheckErr(rootCmd.MarkPersistentFlagFilename(configFileFlag, "yaml", "yml"))

	rootCmd.AddCommand(serveCmd(), auditCmd(), migrateCmd(), ledgerCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(rootCmd.ErrOrStderr(), "Error:", err)
		return err
	}
	return nil
}

// bootstrap загружает конфиг и собирает логгер.
func bootstrap() (*app, error) {
	cfg, err := infra.LoadConfig(configFilePath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := infra.NewLogger(cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return &app{cfg: cfg, logger: logger}, nil
}
