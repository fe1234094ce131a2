package main

import (
	"github.com/spf13/cobra"

	"github.com/maxviazov/storegate/internal/app"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply postgres migrations and prepare every enabled store",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := bootstrap(cmd)
			if err != nil {
				return err
			}
			stores, err := app.Open(cmd.Context(), cfg, log, nil)
			if err != nil {
				return err
			}
			defer stores.Close()

			if err := stores.Migrate(cmd.Context(), log); err != nil {
				return err
			}
			log.Info().Msg("migrations applied")
			return nil
		},
	}
}
