package main

import (
	"errors"
	"fmt"

	"github.com/kamilpajak/nourish/internal/database"
	"github.com/spf13/cobra"
)

func (c *cli) migrateCmd() *cobra.Command {
	var down bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply PostgreSQL schema migrations",
		Long: `Apply the embedded migrations to the database named by --database-url or
NOURISH_DATABASE_URL. The SQLite store creates its schema on open.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db := c.config().Database
			if !db.Postgres() {
				return errors.New("migrations apply to PostgreSQL only; set --database-url")
			}
			if down {
				if err := database.MigrateDown(db.URL); err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}
				fmt.Fprintln(c.errOut, "Migrations rolled back")
				return nil
			}
			if err := database.Migrate(db.URL); err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			version, _, err := database.SchemaVersion(db.URL)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.errOut, "Migrations complete (schema version %d)\n", version)
			return nil
		},
	}

	cmd.Flags().BoolVar(&down, "down", false, "Roll back all migrations")
	return cmd
}
