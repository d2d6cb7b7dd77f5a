package storectl

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"Storefront/internal/storage/postgres"
)

func newMigrateCmd(a *app) *cobra.Command {
	var dsn string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back the storefront database schema",
	}
	cmd.PersistentFlags().StringVar(&dsn, "database-url", "", "postgres DSN (defaults to config database_url or DATABASE_URL)")

	open := func(ctx context.Context) (*sql.DB, error) {
		if dsn == "" {
			dsn = a.cfg.DatabaseURL
		}
		if dsn == "" {
			dsn = os.Getenv("DATABASE_URL")
		}
		if dsn == "" {
			return nil, errors.New("no database: set --database-url, database_url or DATABASE_URL")
		}
		return postgres.Open(ctx, dsn)
	}

	var upSteps, downSteps int
	up := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()
			if err := postgres.MigrateUp(cmd.Context(), db, upSteps); err != nil {
				return err
			}
			return printStatus(cmd.Context(), a, db)
		},
	}
	up.Flags().IntVar(&upSteps, "steps", 0, "number of migrations to apply (0 = all)")

	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back applied migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()
			if err := postgres.MigrateDown(cmd.Context(), db, downSteps); err != nil {
				return err
			}
			return printStatus(cmd.Context(), a, db)
		},
	}
	down.Flags().IntVar(&downSteps, "steps", 1, "number of migrations to roll back")

	status := &cobra.Command{
		Use:   "status",
		Short: "Show the current schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()
			return printStatus(cmd.Context(), a, db)
		},
	}

	cmd.AddCommand(up, down, status)
	return cmd
}

func printStatus(ctx context.Context, a *app, db *sql.DB) error {
	version, applied, err := postgres.MigrationStatus(ctx, db)
	if err != nil {
		return err
	}
	all, err := postgres.Migrations()
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "schema version %d, %d of %d migrations applied\n", version, applied, len(all))
	return nil
}
