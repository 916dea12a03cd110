package service

import (
	"context"
	"errors"
	"fmt"

	"weldflow-api/internal/domain"
	"weldflow-api/internal/observability/logger"
	"weldflow-api/internal/repo"

	"go.uber.org/zap"
)

// WorkspaceService turns an authenticated user and an optional workspace id
// into a validated WorkspaceContext.
type WorkspaceService struct {
	users       UserStore
	companies   CompanyStore
	employees   EmployeeStore
	defaultTier string
	log         *logger.Logger
}

func NewWorkspaceService(users UserStore, companies CompanyStore, employees EmployeeStore, defaultTier string, log *logger.Logger) *WorkspaceService {
	if defaultTier == "" {
		defaultTier = domain.TierFree
	}
	return &WorkspaceService{
		users:       users,
		companies:   companies,
		employees:   employees,
		defaultTier: defaultTier,
		log:         log,
	}
}

// Resolve returns the workspace context of a request.
//
// With an explicit workspaceID the caller must own the personal workspace or
// hold an active membership in the company. Without one, enterprise members
// land in their earliest-joined company and everyone else in personal.
func (s *WorkspaceService) Resolve(ctx context.Context, userID, workspaceID string) (domain.WorkspaceContext, error) {
	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return domain.WorkspaceContext{}, err
	}

	var wctx domain.WorkspaceContext
	if workspaceID != "" {
		wctx, err = s.resolveExplicit(ctx, user, workspaceID)
	} else {
		wctx, err = s.resolveDefault(ctx, user)
	}
	if err != nil {
		return domain.WorkspaceContext{}, err
	}

	if err := wctx.Validate(); err != nil {
		return domain.WorkspaceContext{}, err
	}
	return wctx, nil
}

func (s *WorkspaceService) resolveExplicit(ctx context.Context, user *domain.User, workspaceID string) (domain.WorkspaceContext, error) {
	typ, ownerID, err := domain.ParseWorkspaceID(workspaceID)
	if err != nil {
		return domain.WorkspaceContext{}, err
	}

	if typ == domain.WorkspacePersonal {
		if ownerID != user.ID {
			s.log.Warn(ctx, "workspace access denied",
				logger.Module("workspace"),
				logger.Action("resolve"),
				zap.String("requested_workspace_id", workspaceID),
			)
			return domain.WorkspaceContext{}, ErrWorkspaceAccessDenied
		}
		return domain.NewPersonalContext(user.ID), nil
	}

	emp, err := s.employees.GetActive(ctx, ownerID, user.ID)
	if err != nil {
		if errors.Is(err, repo.ErrEmployeeNotFound) {
			s.log.Warn(ctx, "workspace access denied",
				logger.Module("workspace"),
				logger.Action("resolve"),
				zap.String("requested_workspace_id", workspaceID),
				zap.String("reason", "no active membership"),
			)
			return domain.WorkspaceContext{}, ErrWorkspaceAccessDenied
		}
		return domain.WorkspaceContext{}, fmt.Errorf("get membership: %w", err)
	}
	return domain.NewEnterpriseContext(user.ID, emp.CompanyID, emp.FactoryID), nil
}

func (s *WorkspaceService) resolveDefault(ctx context.Context, user *domain.User) (domain.WorkspaceContext, error) {
	if user.MembershipType != domain.MembershipEnterprise {
		return domain.NewPersonalContext(user.ID), nil
	}

	memberships, err := s.employees.ListActiveByUser(ctx, user.ID)
	if err != nil {
		return domain.WorkspaceContext{}, fmt.Errorf("list memberships: %w", err)
	}
	if len(memberships) == 0 {
		return domain.NewPersonalContext(user.ID), nil
	}

	first := memberships[0].Employee
	return domain.NewEnterpriseContext(user.ID, first.CompanyID, first.FactoryID), nil
}

// ListWorkspaces returns every workspace the user can switch to. The one
// Resolve picks without a header is flagged as default.
func (s *WorkspaceService) ListWorkspaces(ctx context.Context, userID string) ([]domain.WorkspaceSummary, error) {
	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	memberships, err := s.employees.ListActiveByUser(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("list memberships: %w", err)
	}

	enterpriseDefault := user.MembershipType == domain.MembershipEnterprise && len(memberships) > 0

	personal := domain.NewPersonalContext(user.ID)
	name := user.DisplayName
	if name == "" {
		name = "Personal"
	}
	out := []domain.WorkspaceSummary{{
		ID:            personal.ID(),
		WorkspaceType: domain.WorkspacePersonal,
		Name:          name,
		IsDefault:     !enterpriseDefault,
	}}

	for i, m := range memberships {
		e := m.Employee
		role := e.Role
		companyID := e.CompanyID
		out = append(out, domain.WorkspaceSummary{
			ID:            domain.NewEnterpriseContext(user.ID, e.CompanyID, nil).ID(),
			WorkspaceType: domain.WorkspaceEnterprise,
			Name:          m.CompanyName,
			CompanyID:     &companyID,
			FactoryID:     e.FactoryID,
			Role:          &role,
			IsDefault:     enterpriseDefault && i == 0,
		})
	}
	return out, nil
}

// loadUser fetches the user, creating the row on first sight.
func (s *WorkspaceService) loadUser(ctx context.Context, userID string) (*domain.User, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user_id is required", domain.ErrInvalidWorkspaceContext)
	}

	user, err := s.users.Get(ctx, userID)
	if errors.Is(err, repo.ErrUserNotFound) {
		user, err = s.users.Ensure(ctx, userID, s.defaultTier)
		if err == nil {
			s.log.Info(ctx, "user provisioned",
				logger.Module("workspace"),
				logger.Action("provision_user"),
				logger.Tier(s.defaultTier),
			)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}

	if !user.IsActive() {
		return nil, ErrUserDisabled
	}
	return user, nil
}
