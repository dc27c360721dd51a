package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"ring-simulator/internal/db"
)

func (a *app) newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "performs database migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			dsn, _ := cmd.Flags().GetString("db")
			if dsn == "" {
				return fmt.Errorf("migrate needs a database, set --db or DATABASE_URL")
			}
			if err := db.Migrate(dsn); err != nil {
				return err
			}
			a.logger.Info("schema up to date")
			return nil
		},
	}
}
