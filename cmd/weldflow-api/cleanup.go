package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"weldflow-api/internal/config"
	"weldflow-api/internal/database"
	"weldflow-api/internal/observability/logger"
	"weldflow-api/internal/repo"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove expired idempotency keys, old soft-deleted records and old audit rows",
	Long: `Remove idempotency keys past their expiry. With --records-retention,
also hard-delete business records soft-deleted longer ago than the retention,
skipping records that went through approval. With --audit-retention, delete
audit log rows older than the retention.`,
	RunE: runCleanup,
}

var (
	recordsRetention time.Duration
	auditRetention   time.Duration
)

func init() {
	cleanupCmd.Flags().DurationVar(&recordsRetention, "records-retention", 0, "purge records soft-deleted longer ago than this (0 disables)")
	cleanupCmd.Flags().DurationVar(&auditRetention, "audit-retention", 0, "delete audit rows older than this (0 disables)")
	rootCmd.AddCommand(cleanupCmd)
}

// sweep is one cleanup step; run returns the number of rows removed.
type sweep struct {
	name string
	run  func(ctx context.Context) (int64, error)
}

func runCleanup(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.New(cfg.OTELServiceName, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	pool, err := database.NewPool(ctx, cfg.DatabaseURL, poolOptions(cfg, log))
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	sweeps := []sweep{{
		name: "idempotency keys",
		run:  repo.NewIdempotencyRepo(pool, idempotencyTTL).CleanupExpired,
	}}
	if recordsRetention > 0 {
		records := repo.NewRecordRepository(pool)
		sweeps = append(sweeps, sweep{
			name: "deleted records",
			run: func(ctx context.Context) (int64, error) {
				return records.PurgeDeleted(ctx, time.Now().Add(-recordsRetention))
			},
		})
	}

	if auditRetention > 0 {
		audit := repo.NewAuditRepo(pool)
		sweeps = append(sweeps, sweep{
			name: "audit rows",
			run: func(ctx context.Context) (int64, error) {
				return audit.PurgeBefore(ctx, time.Now().Add(-auditRetention))
			},
		})
	}

	return runSweeps(ctx, log, sweeps, cmd.OutOrStdout())
}

// runSweeps runs every sweep in order and stops at the first failure.
func runSweeps(ctx context.Context, log *logger.Logger, sweeps []sweep, out io.Writer) error {
	for _, s := range sweeps {
		fields := []zap.Field{logger.Module("cleanup"), logger.Action("sweep"), zap.String("sweep", s.name)}

		removed, err := s.run(ctx)
		if err != nil {
			log.Error(ctx, "cleanup failed", append(fields, zap.Error(err))...)
			return fmt.Errorf("cleanup %s: %w", s.name, err)
		}

		log.Info(ctx, "cleanup completed", append(fields, zap.Int64("rows_deleted", removed))...)
		fmt.Fprintf(out, "✓ %s: %d removed\n", s.name, removed)
	}
	return nil
}
