package service

import (
	"context"

	"weldflow-api/internal/access"
	"weldflow-api/internal/domain"
	"weldflow-api/internal/repo"
)

// Store interfaces are declared on the consumer side so services can be
// tested with in-memory fakes. The pgx repositories satisfy them.

type RecordStore interface {
	Create(ctx context.Context, rec *domain.Record) error
	Get(ctx context.Context, f access.Filter, kind domain.RecordKind, id string) (*domain.Record, error)
	List(ctx context.Context, f access.Filter, params domain.ListRecordsParams) ([]domain.Record, string, error)
	Update(ctx context.Context, rec *domain.Record) error
	SoftDelete(ctx context.Context, id string) error
	CountOwned(ctx context.Context, f access.Filter, kinds []domain.RecordKind) (int64, error)
	SumAttachments(ctx context.Context, f access.Filter) (int64, error)
}

type UserStore interface {
	Get(ctx context.Context, userID string) (*domain.User, error)
	Ensure(ctx context.Context, userID, tier string) (*domain.User, error)
}

type CompanyStore interface {
	Get(ctx context.Context, companyID string) (*domain.Company, error)
	UpdateSettings(ctx context.Context, companyID string, req *domain.UpdateCompanySettingsRequest) (*domain.Company, error)
	ListFactories(ctx context.Context, companyID string) ([]domain.Factory, error)
	GetFactory(ctx context.Context, companyID, factoryID string) (*domain.Factory, error)
	CreateFactory(ctx context.Context, f *domain.Factory) error
}

type EmployeeStore interface {
	GetActive(ctx context.Context, companyID, userID string) (*domain.CompanyEmployee, error)
	ListActiveByUser(ctx context.Context, userID string) ([]repo.ActiveMembership, error)
	List(ctx context.Context, companyID string) ([]domain.CompanyEmployee, error)
	Get(ctx context.Context, companyID, employeeID string) (*domain.CompanyEmployee, error)
	Create(ctx context.Context, e *domain.CompanyEmployee) error
	Update(ctx context.Context, e *domain.CompanyEmployee) error
	Delete(ctx context.Context, companyID, employeeID string) error
}

type RoleStore interface {
	Get(ctx context.Context, companyID, roleID string) (*domain.CompanyRole, error)
	List(ctx context.Context, companyID string) ([]domain.CompanyRole, error)
	Create(ctx context.Context, role *domain.CompanyRole) error
	Update(ctx context.Context, role *domain.CompanyRole) error
	Delete(ctx context.Context, companyID, roleID string) error
}

type WorkflowStore interface {
	Get(ctx context.Context, companyID, workflowID string) (*domain.ApprovalWorkflow, error)
	FindDefault(ctx context.Context, companyID string, docType domain.RecordKind) (*domain.ApprovalWorkflow, error)
	List(ctx context.Context, companyID string, docType *domain.RecordKind) ([]domain.ApprovalWorkflow, error)
	Create(ctx context.Context, wf *domain.ApprovalWorkflow) error
	Update(ctx context.Context, wf *domain.ApprovalWorkflow) error
	Deactivate(ctx context.Context, companyID, workflowID string) error
}

type ApprovalStore interface {
	Create(ctx context.Context, inst *domain.ApprovalInstance, hist *domain.ApprovalHistory) error
	Get(ctx context.Context, companyID, instanceID string) (*domain.ApprovalInstance, error)
	GetActiveByDocument(ctx context.Context, documentID string) (*domain.ApprovalInstance, error)
	Transition(ctx context.Context, companyID, instanceID string, fn repo.TransitionFunc) (*domain.ApprovalInstance, *domain.ApprovalHistory, error)
	ListActiveByCompany(ctx context.Context, companyID string, limit int) ([]domain.ApprovalInstance, error)
	ListBySubmitter(ctx context.Context, companyID, submitterID string, status *domain.ApprovalStatus, limit int) ([]domain.ApprovalInstance, error)
	ListInFlight(ctx context.Context, companyID *string) ([]domain.ApprovalInstance, error)
	History(ctx context.Context, instanceID string) ([]domain.ApprovalHistory, error)
}

type AuditLogger interface {
	LogAction(ctx context.Context, e repo.AuditEntry) error
}

var (
	_ RecordStore   = (*repo.RecordRepository)(nil)
	_ UserStore     = (*repo.UserRepository)(nil)
	_ CompanyStore  = (*repo.CompanyRepository)(nil)
	_ EmployeeStore = (*repo.EmployeeRepository)(nil)
	_ RoleStore     = (*repo.RoleRepository)(nil)
	_ WorkflowStore = (*repo.WorkflowRepository)(nil)
	_ ApprovalStore = (*repo.ApprovalRepository)(nil)
	_ AuditLogger   = (*repo.AuditRepo)(nil)
)
