package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ahrav/go-hydra/infrastructure/storage"
)

func newMigrateCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			db, err := storage.Open(cmd.Context(), storage.Dialect(cfg.Database.Driver), cfg.Database.DSN)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := db.Migrate(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s schema is up to date (%s)\n", green("ok"), cfg.Database.Driver)
			return nil
		},
	}
}
