package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"weldflow-api/internal/config"
	"weldflow-api/internal/database"
	"weldflow-api/internal/observability/logger"
	"weldflow-api/internal/repo"
	"weldflow-api/internal/service"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var approvalsCmd = &cobra.Command{
	Use:   "approvals",
	Short: "Approval workflow maintenance",
}

var overdueCmd = &cobra.Command{
	Use:   "overdue",
	Short: "List in-flight approvals past their step deadline",
	Long:  `Report approval instances whose current step has a time limit that has already elapsed`,
	RunE:  runOverdue,
}

var (
	overdueCompany string
	overdueJSON    bool
)

func init() {
	overdueCmd.Flags().StringVar(&overdueCompany, "company", "", "only report this company id")
	overdueCmd.Flags().BoolVar(&overdueJSON, "json", false, "print JSON instead of a table")
	approvalsCmd.AddCommand(overdueCmd)
	rootCmd.AddCommand(approvalsCmd)
}

// overdueLister is satisfied by *service.ApprovalService.
type overdueLister interface {
	ListOverdue(ctx context.Context, companyID *string) ([]service.OverdueApproval, error)
}

func runOverdue(cmd *cobra.Command, args []string) error {
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

	recordRepo := repo.NewRecordRepository(pool)
	companyRepo := repo.NewCompanyRepository(pool)
	employeeRepo := repo.NewEmployeeRepository(pool)
	roleRepo := repo.NewRoleRepository(pool)
	permissions := service.NewPermissionChecker(companyRepo, employeeRepo, roleRepo, log)
	approvals := service.NewApprovalService(
		repo.NewApprovalRepository(pool),
		repo.NewWorkflowRepository(pool),
		recordRepo,
		permissions,
		nil,
		nil,
		log,
	)

	var companyID *string
	if overdueCompany != "" {
		companyID = &overdueCompany
	}

	n, err := reportOverdue(ctx, approvals, companyID, overdueJSON, cmd.OutOrStdout())
	if err != nil {
		log.Error(ctx, "overdue report failed", logger.Module("approval"), logger.Action("overdue"), zap.Error(err))
		return err
	}
	log.Info(ctx, "overdue report completed", logger.Module("approval"), logger.Action("overdue"), zap.Int("count", n))
	return nil
}

func reportOverdue(ctx context.Context, lister overdueLister, companyID *string, asJSON bool, out io.Writer) (int, error) {
	overdue, err := lister.ListOverdue(ctx, companyID)
	if err != nil {
		return 0, fmt.Errorf("failed to list overdue approvals: %w", err)
	}

	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return len(overdue), enc.Encode(overdue)
	}

	if len(overdue) == 0 {
		fmt.Fprintln(out, "No overdue approvals")
		return 0, nil
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "INSTANCE\tCOMPANY\tDOCUMENT\tSTEP\tDEADLINE\tOVERDUE BY")
	for _, o := range overdue {
		fmt.Fprintf(tw, "%s\t%s\t%s/%s\t%d %s\t%s\t%s\n",
			o.InstanceID, o.CompanyID, o.DocumentType, o.DocumentID,
			o.CurrentStep, o.StepName,
			o.Deadline.UTC().Format(time.RFC3339),
			o.OverdueBy.Truncate(time.Minute),
		)
	}
	return len(overdue), tw.Flush()
}
