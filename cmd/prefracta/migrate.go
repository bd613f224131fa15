package main

import (
	"github.com/spf13/cobra"

	"github.com/xela07ax/prefracta-audit/internal/infra"
	"github.com/xela07ax/prefracta-audit/internal/repository/sqldb"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the session store schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap()
			if err != nil {
				return err
			}
			defer func() { _ = a.logger.Sync() }()

			db, err := infra.OpenDatabase(cmd.Context(), a.cfg.Database, a.logger)
			if err != nil {
				return err
			}
			defer db.Close()

			return sqldb.NewStore(db, sqldb.DialectFor(a.cfg.Database.Driver), a.logger).Migrate(cmd.Context())
		},
	}
}
