package main

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/maxviazov/storegate/internal/config"
	"github.com/maxviazov/storegate/internal/logger"
)

// bootstrap loads config and builds the root logger shared by every command.
func bootstrap(cmd *cobra.Command) (*config.Config, zerolog.Logger, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, zerolog.Logger{}, err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, zerolog.Logger{}, fmt.Errorf("config loading failed: %w", err)
	}
	log, err := logger.New(&cfg.Logger)
	if err != nil {
		return nil, zerolog.Logger{}, fmt.Errorf("logger initialization failed: %w", err)
	}
	return cfg, log, nil
}
