package service

import (
	"context"
	"fmt"

	"weldflow-api/internal/access"
	"weldflow-api/internal/domain"
	"weldflow-api/internal/observability/logger"
	"weldflow-api/internal/telemetry"

	"go.uber.org/zap"
)

// QuotaService enforces membership-tier limits. Usage is counted live from
// business_records on every check.
type QuotaService struct {
	records   RecordStore
	users     UserStore
	companies CompanyStore
	metrics   *telemetry.DomainMetrics
	log       *logger.Logger
}

func NewQuotaService(records RecordStore, users UserStore, companies CompanyStore, metrics *telemetry.DomainMetrics, log *logger.Logger) *QuotaService {
	return &QuotaService{records: records, users: users, companies: companies, metrics: metrics, log: log}
}

// Tier returns the tier that governs the workspace: the user tier for
// personal workspaces, the company tier for enterprise ones.
func (s *QuotaService) Tier(ctx context.Context, wctx domain.WorkspaceContext) (string, error) {
	if wctx.IsEnterprise() {
		company, err := s.companies.Get(ctx, wctx.Company())
		if err != nil {
			return "", fmt.Errorf("get company: %w", err)
		}
		return company.MembershipTier, nil
	}

	user, err := s.users.Get(ctx, wctx.UserID)
	if err != nil {
		return "", fmt.Errorf("get user: %w", err)
	}
	return user.MemberTier, nil
}

// Check returns ErrQuotaExceeded when adding delta units of res would pass the
// tier limit. Resources without a quota always pass.
func (s *QuotaService) Check(ctx context.Context, f access.Filter, res domain.QuotaResource, delta int64) error {
	if res == "" || delta <= 0 {
		return nil
	}

	tier, err := s.Tier(ctx, f.Context())
	if err != nil {
		return err
	}

	limit := domain.QuotaLimits(tier).For(res)
	if limit == domain.Unlimited {
		return nil
	}

	used, err := s.usage(ctx, f, res)
	if err != nil {
		return err
	}

	if !domain.Allows(limit, used, delta, res) {
		s.metrics.QuotaRejected(string(res), tier)
		s.log.Warn(ctx, "quota exceeded",
			logger.Module("quota"),
			logger.Action("check"),
			zap.String("resource", string(res)),
			logger.Tier(tier),
			zap.Int("limit", limit),
			zap.Int64("used", used),
		)
		return fmt.Errorf("%w: %s limit of %d reached on tier %s", domain.ErrQuotaExceeded, res, limit, tier)
	}
	return nil
}

// Usage reports quota consumption of the workspace in wctx.
func (s *QuotaService) Usage(ctx context.Context, wctx domain.WorkspaceContext) (*domain.QuotaReport, error) {
	f, err := access.NewFilter(wctx)
	if err != nil {
		return nil, err
	}
	return s.Report(ctx, f)
}

// Report lists usage and limits for every resource.
func (s *QuotaService) Report(ctx context.Context, f access.Filter) (*domain.QuotaReport, error) {
	tier, err := s.Tier(ctx, f.Context())
	if err != nil {
		return nil, err
	}
	limits := domain.QuotaLimits(tier)
	if !domain.IsKnownTier(tier) {
		tier = domain.TierFree
	}

	report := &domain.QuotaReport{
		WorkspaceID: f.Context().ID(),
		Tier:        tier,
		Usage:       make([]domain.QuotaUsage, 0, len(domain.QuotaResources)),
	}
	for _, res := range domain.QuotaResources {
		used, err := s.usage(ctx, f, res)
		if err != nil {
			return nil, err
		}
		limit := limits.For(res)
		report.Usage = append(report.Usage, domain.QuotaUsage{
			Resource:  res,
			Used:      used,
			Limit:     limit,
			Unlimited: limit == domain.Unlimited,
		})
	}
	return report, nil
}

func (s *QuotaService) usage(ctx context.Context, f access.Filter, res domain.QuotaResource) (int64, error) {
	if res == domain.ResourceStorage {
		n, err := s.records.SumAttachments(ctx, f)
		if err != nil {
			return 0, fmt.Errorf("sum attachments: %w", err)
		}
		return n, nil
	}
	n, err := s.records.CountOwned(ctx, f, domain.KindsFor(res))
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", res, err)
	}
	return n, nil
}
