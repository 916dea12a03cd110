package main

import (
	"fmt"

	"weldflow-api/internal/config"
	"weldflow-api/internal/database"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations",
	Long:  `Apply all pending database migrations, or roll back with --down`,
	RunE:  runMigrate,
}

var migrateDownSteps int

var migrateVersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the applied schema version",
	RunE:  runMigrateVersion,
}

func init() {
	migrateCmd.Flags().IntVar(&migrateDownSteps, "down", 0, "roll back this many migrations instead of applying")
	migrateCmd.AddCommand(migrateVersionCmd)
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	out := cmd.OutOrStdout()

	if migrateDownSteps > 0 {
		fmt.Fprintf(out, "Rolling back %d migration(s)...\n", migrateDownSteps)
		if err := database.RollbackMigrations(cfg.DatabaseURL, migrateDownSteps); err != nil {
			return err
		}
		fmt.Fprintln(out, "✓ Rollback completed successfully")
		return nil
	}

	fmt.Fprintln(out, "Running database migrations...")
	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	fmt.Fprintln(out, "✓ Migrations completed successfully")
	return nil
}

func runMigrateVersion(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	version, dirty, err := database.MigrationVersion(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "schema version %d (dirty=%t)\n", version, dirty)
	return nil
}
