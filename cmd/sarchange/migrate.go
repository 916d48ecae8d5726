package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/banshee-data/sarchange/internal/db"
)

func newMigrateCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the run database schema",
	}

	// withDB opens the database without migrating it.
	withDB := func(fn func(cmd *cobra.Command, args []string, database *db.DB) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			database, err := db.NewDB(g.dbPath)
			if err != nil {
				return err
			}
			defer database.Close()
			return fn(cmd, args, database)
		}
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: withDB(func(cmd *cobra.Command, args []string, database *db.DB) error {
				migrations, err := db.MigrationsFS()
				if err != nil {
					return err
				}
				if err := database.MigrateUp(migrations); err != nil {
					return err
				}
				return printStatus(cmd, database)
			}),
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the most recent migration",
			Args:  cobra.NoArgs,
			RunE: withDB(func(cmd *cobra.Command, args []string, database *db.DB) error {
				migrations, err := db.MigrationsFS()
				if err != nil {
					return err
				}
				if err := database.MigrateDown(migrations); err != nil {
					return err
				}
				return printStatus(cmd, database)
			}),
		},
		&cobra.Command{
			Use:   "status",
			Short: "Show the applied and latest schema versions",
			Args:  cobra.NoArgs,
			RunE: withDB(func(cmd *cobra.Command, args []string, database *db.DB) error {
				return printStatus(cmd, database)
			}),
		},
		&cobra.Command{
			Use:   "to <version>",
			Short: "Migrate up or down to a specific version",
			Args:  cobra.ExactArgs(1),
			RunE: withDB(func(cmd *cobra.Command, args []string, database *db.DB) error {
				v, err := strconv.ParseUint(args[0], 10, 32)
				if err != nil {
					return fmt.Errorf("invalid version %q: %w", args[0], err)
				}
				migrations, err := db.MigrationsFS()
				if err != nil {
					return err
				}
				if err := database.MigrateTo(migrations, uint(v)); err != nil {
					return err
				}
				return printStatus(cmd, database)
			}),
		},
		&cobra.Command{
			Use:   "force <version>",
			Short: "Set the schema version without running migrations (recovers a dirty state)",
			Args:  cobra.ExactArgs(1),
			RunE: withDB(func(cmd *cobra.Command, args []string, database *db.DB) error {
				v, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("invalid version %q: %w", args[0], err)
				}
				migrations, err := db.MigrationsFS()
				if err != nil {
					return err
				}
				if err := database.MigrateForce(migrations, v); err != nil {
					return err
				}
				return printStatus(cmd, database)
			}),
		},
	)
	return cmd
}

func printStatus(cmd *cobra.Command, database *db.DB) error {
	migrations, err := db.MigrationsFS()
	if err != nil {
		return err
	}
	status, err := database.GetMigrationStatus(migrations)
	if err != nil {
		return err
	}
	return printJSON(cmd, status)
}

func newBackupCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "backup <path>",
		Short: "Write a consistent copy of the run database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			database, err := db.OpenMigrated(g.dbPath)
			if err != nil {
				return err
			}
			defer database.Close()

			if err := database.Backup(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "backed up %s to %s\n", g.dbPath, args[0])
			return nil
		},
	}
}
