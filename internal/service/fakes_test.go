package service

import (
	"context"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"weldflow-api/internal/access"
	"weldflow-api/internal/domain"
	"weldflow-api/internal/observability/logger"
	"weldflow-api/internal/repo"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// In-memory stores mirroring the pgx repositories closely enough for service tests.

type fakeRecords struct {
	mu   sync.Mutex
	rows map[string]*domain.Record
	seq  int
}

func newFakeRecords() *fakeRecords {
	return &fakeRecords{rows: map[string]*domain.Record{}}
}

func (s *fakeRecords) Create(_ context.Context, rec *domain.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	now := time.Date(2026, 1, 1, 0, 0, s.seq, 0, time.UTC)
	rec.CreatedAt, rec.UpdatedAt = now, now
	cp := *rec
	s.rows[rec.ID] = &cp
	return nil
}

func (s *fakeRecords) Get(_ context.Context, f access.Filter, kind domain.RecordKind, id string) (*domain.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.rows[id]
	if !ok || rec.Kind != kind || !f.Matches(rec) {
		return nil, repo.ErrRecordNotFound
	}
	cp := *rec
	return &cp, nil
}

func (s *fakeRecords) List(_ context.Context, f access.Filter, params domain.ListRecordsParams) ([]domain.Record, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []domain.Record{}
	for _, rec := range s.rows {
		if rec.Kind != params.Kind || !f.Matches(rec) {
			continue
		}
		if params.Status != nil && rec.Status != *params.Status {
			continue
		}
		if params.Query != nil && !strings.Contains(strings.ToLower(rec.Title+rec.Code), strings.ToLower(*params.Query)) {
			continue
		}
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > params.Limit {
		return out[:params.Limit], "next", nil
	}
	return out, "", nil
}

func (s *fakeRecords) Update(_ context.Context, rec *domain.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[rec.ID]; !ok {
		return repo.ErrRecordNotFound
	}
	cp := *rec
	s.rows[rec.ID] = &cp
	return nil
}

func (s *fakeRecords) SoftDelete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.rows[id]
	if !ok {
		return repo.ErrRecordNotFound
	}
	now := time.Now()
	rec.DeletedAt = &now
	return nil
}

func (s *fakeRecords) CountOwned(_ context.Context, f access.Filter, kinds []domain.RecordKind) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, rec := range s.rows {
		if rec.DeletedAt != nil || !f.Owns(rec) {
			continue
		}
		for _, k := range kinds {
			if rec.Kind == k {
				n++
			}
		}
	}
	return n, nil
}

func (s *fakeRecords) SumAttachments(_ context.Context, f access.Filter) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, rec := range s.rows {
		if rec.DeletedAt == nil && f.Owns(rec) {
			n += rec.AttachmentsSize
		}
	}
	return n, nil
}

func (s *fakeRecords) status(id string) domain.RecordStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rows[id].Status
}

func (s *fakeRecords) setStatus(id string, status domain.RecordStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.rows[id]; ok {
		rec.Status = status
	}
}

type fakeUsers struct {
	users map[string]*domain.User
}

func (s *fakeUsers) Get(_ context.Context, id string) (*domain.User, error) {
	u, ok := s.users[id]
	if !ok {
		return nil, repo.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *fakeUsers) Ensure(ctx context.Context, id, tier string) (*domain.User, error) {
	if _, ok := s.users[id]; !ok {
		s.users[id] = &domain.User{
			ID:             id,
			MembershipType: domain.MembershipPersonal,
			MemberTier:     tier,
			Status:         domain.UserActive,
		}
	}
	return s.Get(ctx, id)
}

type fakeCompanies struct {
	companies map[string]*domain.Company
	factories map[string]*domain.Factory
}

func (s *fakeCompanies) Get(_ context.Context, id string) (*domain.Company, error) {
	c, ok := s.companies[id]
	if !ok {
		return nil, repo.ErrCompanyNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *fakeCompanies) UpdateSettings(ctx context.Context, id string, req *domain.UpdateCompanySettingsRequest) (*domain.Company, error) {
	c, ok := s.companies[id]
	if !ok {
		return nil, repo.ErrCompanyNotFound
	}
	if req.RequireCompanyRole != nil {
		c.RequireCompanyRole = *req.RequireCompanyRole
	}
	return s.Get(ctx, id)
}

func (s *fakeCompanies) ListFactories(_ context.Context, companyID string) ([]domain.Factory, error) {
	out := []domain.Factory{}
	for _, f := range s.factories {
		if f.CompanyID == companyID {
			out = append(out, *f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *fakeCompanies) GetFactory(_ context.Context, companyID, id string) (*domain.Factory, error) {
	f, ok := s.factories[id]
	if !ok || f.CompanyID != companyID {
		return nil, repo.ErrFactoryNotFound
	}
	cp := *f
	return &cp, nil
}

func (s *fakeCompanies) CreateFactory(_ context.Context, f *domain.Factory) error {
	for _, existing := range s.factories {
		if existing.CompanyID == f.CompanyID && existing.Name == f.Name {
			return repo.ErrFactoryNameConflict
		}
	}
	cp := *f
	s.factories[f.ID] = &cp
	return nil
}

type fakeEmployees struct {
	rows []*domain.CompanyEmployee
	seq  int
}

func (s *fakeEmployees) GetActive(_ context.Context, companyID, userID string) (*domain.CompanyEmployee, error) {
	for _, e := range s.rows {
		if e.CompanyID == companyID && e.UserID == userID && e.IsActive() {
			cp := *e
			return &cp, nil
		}
	}
	return nil, repo.ErrEmployeeNotFound
}

func (s *fakeEmployees) ListActiveByUser(_ context.Context, userID string) ([]repo.ActiveMembership, error) {
	out := []repo.ActiveMembership{}
	for _, e := range s.rows {
		if e.UserID == userID && e.IsActive() {
			out = append(out, repo.ActiveMembership{Employee: *e, CompanyName: "Company " + e.CompanyID})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Employee.JoinedAt.Before(out[j].Employee.JoinedAt) })
	return out, nil
}

func (s *fakeEmployees) List(_ context.Context, companyID string) ([]domain.CompanyEmployee, error) {
	out := []domain.CompanyEmployee{}
	for _, e := range s.rows {
		if e.CompanyID == companyID {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (s *fakeEmployees) Get(_ context.Context, companyID, id string) (*domain.CompanyEmployee, error) {
	for _, e := range s.rows {
		if e.ID == id && e.CompanyID == companyID {
			cp := *e
			return &cp, nil
		}
	}
	return nil, repo.ErrEmployeeNotFound
}

func (s *fakeEmployees) Create(_ context.Context, e *domain.CompanyEmployee) error {
	for _, existing := range s.rows {
		if existing.CompanyID == e.CompanyID && existing.UserID == e.UserID {
			return repo.ErrEmployeeConflict
		}
	}
	s.seq++
	if e.JoinedAt.IsZero() {
		e.JoinedAt = time.Date(2026, 1, 1, 0, s.seq, 0, 0, time.UTC)
	}
	cp := *e
	s.rows = append(s.rows, &cp)
	return nil
}

func (s *fakeEmployees) Update(_ context.Context, e *domain.CompanyEmployee) error {
	for i, existing := range s.rows {
		if existing.ID == e.ID && existing.CompanyID == e.CompanyID {
			cp := *e
			s.rows[i] = &cp
			return nil
		}
	}
	return repo.ErrEmployeeNotFound
}

func (s *fakeEmployees) Delete(_ context.Context, companyID, id string) error {
	for i, existing := range s.rows {
		if existing.ID == id && existing.CompanyID == companyID {
			s.rows = append(s.rows[:i], s.rows[i+1:]...)
			return nil
		}
	}
	return repo.ErrEmployeeNotFound
}

type fakeRoles struct {
	roles map[string]*domain.CompanyRole
}

func (s *fakeRoles) Get(_ context.Context, companyID, id string) (*domain.CompanyRole, error) {
	r, ok := s.roles[id]
	if !ok || r.CompanyID != companyID {
		return nil, repo.ErrRoleNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *fakeRoles) List(_ context.Context, companyID string) ([]domain.CompanyRole, error) {
	out := []domain.CompanyRole{}
	for _, r := range s.roles {
		if r.CompanyID == companyID {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (s *fakeRoles) Create(_ context.Context, role *domain.CompanyRole) error {
	for _, r := range s.roles {
		if r.CompanyID == role.CompanyID && r.Name == role.Name {
			return repo.ErrRoleNameConflict
		}
	}
	cp := *role
	s.roles[role.ID] = &cp
	return nil
}

func (s *fakeRoles) Update(_ context.Context, role *domain.CompanyRole) error {
	if _, ok := s.roles[role.ID]; !ok {
		return repo.ErrRoleNotFound
	}
	cp := *role
	s.roles[role.ID] = &cp
	return nil
}

func (s *fakeRoles) Delete(_ context.Context, companyID, id string) error {
	r, ok := s.roles[id]
	if !ok || r.CompanyID != companyID {
		return repo.ErrRoleNotFound
	}
	delete(s.roles, id)
	return nil
}

type fakeWorkflows struct {
	rows map[string]*domain.ApprovalWorkflow
}

func (s *fakeWorkflows) visible(wf *domain.ApprovalWorkflow, companyID string) bool {
	return wf.CompanyID == nil || *wf.CompanyID == companyID
}

func (s *fakeWorkflows) Get(_ context.Context, companyID, id string) (*domain.ApprovalWorkflow, error) {
	wf, ok := s.rows[id]
	if !ok || !s.visible(wf, companyID) {
		return nil, repo.ErrWorkflowNotFound
	}
	cp := *wf
	return &cp, nil
}

func (s *fakeWorkflows) FindDefault(_ context.Context, companyID string, docType domain.RecordKind) (*domain.ApprovalWorkflow, error) {
	var system *domain.ApprovalWorkflow
	for _, wf := range s.rows {
		if wf.DocumentType != docType || !wf.IsDefault || !wf.IsActive || !s.visible(wf, companyID) {
			continue
		}
		if wf.CompanyID != nil {
			cp := *wf
			return &cp, nil
		}
		system = wf
	}
	if system == nil {
		return nil, repo.ErrWorkflowNotFound
	}
	cp := *system
	return &cp, nil
}

func (s *fakeWorkflows) List(_ context.Context, companyID string, docType *domain.RecordKind) ([]domain.ApprovalWorkflow, error) {
	out := []domain.ApprovalWorkflow{}
	for _, wf := range s.rows {
		if !s.visible(wf, companyID) || (docType != nil && wf.DocumentType != *docType) {
			continue
		}
		out = append(out, *wf)
	}
	return out, nil
}

func (s *fakeWorkflows) Create(_ context.Context, wf *domain.ApprovalWorkflow) error {
	s.clearDefault(wf)
	cp := *wf
	s.rows[wf.ID] = &cp
	return nil
}

func (s *fakeWorkflows) Update(_ context.Context, wf *domain.ApprovalWorkflow) error {
	if _, ok := s.rows[wf.ID]; !ok {
		return repo.ErrWorkflowNotFound
	}
	s.clearDefault(wf)
	cp := *wf
	s.rows[wf.ID] = &cp
	return nil
}

func (s *fakeWorkflows) clearDefault(wf *domain.ApprovalWorkflow) {
	if !wf.IsDefault {
		return
	}
	for _, other := range s.rows {
		if other.ID != wf.ID && other.DocumentType == wf.DocumentType && other.CompanyID != nil &&
			wf.CompanyID != nil && *other.CompanyID == *wf.CompanyID {
			other.IsDefault = false
		}
	}
}

func (s *fakeWorkflows) Deactivate(_ context.Context, companyID, id string) error {
	wf, ok := s.rows[id]
	if !ok || wf.CompanyID == nil || *wf.CompanyID != companyID {
		return repo.ErrWorkflowNotFound
	}
	wf.IsActive = false
	wf.IsDefault = false
	return nil
}

type fakeApprovals struct {
	records   *fakeRecords
	instances map[string]*domain.ApprovalInstance
	history   []domain.ApprovalHistory
}

func cloneInstance(inst *domain.ApprovalInstance) *domain.ApprovalInstance {
	cp := *inst
	cp.Steps = append([]domain.WorkflowStep(nil), inst.Steps...)
	cp.StepApprovals = append([]domain.StepApproval(nil), inst.StepApprovals...)
	return &cp
}

func (s *fakeApprovals) Create(_ context.Context, inst *domain.ApprovalInstance, hist *domain.ApprovalHistory) error {
	for _, existing := range s.instances {
		if existing.DocumentID == inst.DocumentID && existing.Status.IsActive() {
			return repo.ErrActiveApprovalExists
		}
	}
	s.instances[inst.ID] = cloneInstance(inst)
	s.history = append(s.history, *hist)
	s.records.setStatus(inst.DocumentID, domain.RecordPendingApproval)
	return nil
}

func (s *fakeApprovals) Get(_ context.Context, companyID, id string) (*domain.ApprovalInstance, error) {
	inst, ok := s.instances[id]
	if !ok || inst.CompanyID != companyID {
		return nil, repo.ErrApprovalNotFound
	}
	return cloneInstance(inst), nil
}

func (s *fakeApprovals) GetActiveByDocument(_ context.Context, documentID string) (*domain.ApprovalInstance, error) {
	for _, inst := range s.instances {
		if inst.DocumentID == documentID && inst.Status.IsActive() {
			return cloneInstance(inst), nil
		}
	}
	return nil, repo.ErrApprovalNotFound
}

func (s *fakeApprovals) Transition(ctx context.Context, companyID, id string, fn repo.TransitionFunc) (*domain.ApprovalInstance, *domain.ApprovalHistory, error) {
	inst, err := s.Get(ctx, companyID, id)
	if err != nil {
		return nil, nil, err
	}
	before := inst.Status

	hist, err := fn(inst)
	if err != nil {
		return nil, nil, err
	}

	s.instances[inst.ID] = cloneInstance(inst)
	s.history = append(s.history, *hist)
	if inst.Status != before {
		if status, ok := domain.RecordStatusFor(inst.Status); ok {
			s.records.setStatus(inst.DocumentID, status)
		}
	}
	return inst, hist, nil
}

func (s *fakeApprovals) list(match func(*domain.ApprovalInstance) bool, limit int) []domain.ApprovalInstance {
	out := []domain.ApprovalInstance{}
	for _, inst := range s.instances {
		if match(inst) {
			out = append(out, *cloneInstance(inst))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAt.Before(out[j].SubmittedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (s *fakeApprovals) ListActiveByCompany(_ context.Context, companyID string, limit int) ([]domain.ApprovalInstance, error) {
	return s.list(func(i *domain.ApprovalInstance) bool {
		return i.CompanyID == companyID && (i.Status == domain.ApprovalPending || i.Status == domain.ApprovalInProgress)
	}, limit), nil
}

func (s *fakeApprovals) ListBySubmitter(_ context.Context, companyID, submitterID string, status *domain.ApprovalStatus, limit int) ([]domain.ApprovalInstance, error) {
	return s.list(func(i *domain.ApprovalInstance) bool {
		return i.CompanyID == companyID && i.SubmitterID == submitterID && (status == nil || i.Status == *status)
	}, limit), nil
}

func (s *fakeApprovals) ListInFlight(_ context.Context, companyID *string) ([]domain.ApprovalInstance, error) {
	return s.list(func(i *domain.ApprovalInstance) bool {
		return (companyID == nil || i.CompanyID == *companyID) &&
			(i.Status == domain.ApprovalPending || i.Status == domain.ApprovalInProgress)
	}, 0), nil
}

func (s *fakeApprovals) History(_ context.Context, instanceID string) ([]domain.ApprovalHistory, error) {
	out := []domain.ApprovalHistory{}
	for _, h := range s.history {
		if h.InstanceID == instanceID {
			out = append(out, h)
		}
	}
	return out, nil
}

type mockAudit struct {
	mock.Mock
}

func (m *mockAudit) LogAction(ctx context.Context, e repo.AuditEntry) error {
	args := m.Called(ctx, e)
	return args.Error(0)
}

func auditAction(action string) interface{} {
	return mock.MatchedBy(func(e repo.AuditEntry) bool { return e.Action == action })
}

// =====================================================
// Test environment
// =====================================================

type testEnv struct {
	records   *fakeRecords
	users     *fakeUsers
	companies *fakeCompanies
	employees *fakeEmployees
	roles     *fakeRoles
	workflows *fakeWorkflows
	approvals *fakeApprovals
	audit     *mockAudit

	workspaces *WorkspaceService
	perms      *PermissionChecker
	quota      *QuotaService
	recordSvc  *RecordService
	approval   *ApprovalService
	workflow   *WorkflowService
	enterprise *EnterpriseService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	records := newFakeRecords()
	env := &testEnv{
		records:   records,
		users:     &fakeUsers{users: map[string]*domain.User{}},
		companies: &fakeCompanies{companies: map[string]*domain.Company{}, factories: map[string]*domain.Factory{}},
		employees: &fakeEmployees{},
		roles:     &fakeRoles{roles: map[string]*domain.CompanyRole{}},
		workflows: &fakeWorkflows{rows: map[string]*domain.ApprovalWorkflow{}},
		approvals: &fakeApprovals{records: records, instances: map[string]*domain.ApprovalInstance{}},
		audit:     &mockAudit{},
	}
	env.audit.On("LogAction", mock.Anything, mock.Anything).Return(nil)

	log := logger.Nop()
	env.workspaces = NewWorkspaceService(env.users, env.companies, env.employees, domain.TierFree, log)
	env.perms = NewPermissionChecker(env.companies, env.employees, env.roles, log)
	env.quota = NewQuotaService(env.records, env.users, env.companies, nil, log)
	env.recordSvc = NewRecordService(env.records, env.approvals, env.quota, env.perms, env.audit, nil, log)
	env.approval = NewApprovalService(env.approvals, env.workflows, env.records, env.perms, env.audit, nil, log)
	env.workflow = NewWorkflowService(env.workflows, env.roles, env.perms, env.audit, log)
	env.enterprise = NewEnterpriseService(env.companies, env.employees, env.roles, env.users, env.perms, env.audit, domain.TierFree, log)
	return env
}

func (e *testEnv) addUser(id string, membership domain.MembershipType, tier string) {
	e.users.users[id] = &domain.User{
		ID:             id,
		DisplayName:    strings.ToUpper(id),
		MembershipType: membership,
		MemberTier:     tier,
		Status:         domain.UserActive,
	}
}

func (e *testEnv) addCompany(id, tier string, requireRole bool) {
	e.companies.companies[id] = &domain.Company{
		ID:                 id,
		Name:               "Company " + id,
		OwnerID:            "owner-" + id,
		MembershipTier:     tier,
		RequireCompanyRole: requireRole,
	}
}

func (e *testEnv) addEmployee(t *testing.T, companyID, userID string, role domain.EmployeeRole, companyRoleID *string) *domain.CompanyEmployee {
	t.Helper()
	if _, ok := e.users.users[userID]; !ok {
		e.addUser(userID, domain.MembershipEnterprise, domain.TierFree)
	}
	emp := &domain.CompanyEmployee{
		ID:              "emp-" + companyID + "-" + userID,
		CompanyID:       companyID,
		UserID:          userID,
		Role:            role,
		CompanyRoleID:   companyRoleID,
		Status:          domain.EmployeeActive,
		DataAccessScope: domain.ScopeCompany,
	}
	require.NoError(t, e.employees.Create(context.Background(), emp))
	return emp
}

func (e *testEnv) addRole(companyID, id string, perms map[string]domain.ModulePermission) {
	e.roles.roles[id] = &domain.CompanyRole{
		ID:              id,
		CompanyID:       companyID,
		Name:            id,
		Permissions:     perms,
		DataAccessScope: domain.ScopeCompany,
		IsActive:        true,
	}
}

func (e *testEnv) addWorkflow(companyID *string, id string, kind domain.RecordKind, isDefault bool, steps ...domain.WorkflowStep) *domain.ApprovalWorkflow {
	wf := &domain.ApprovalWorkflow{
		ID:           id,
		Name:         id,
		DocumentType: kind,
		CompanyID:    companyID,
		Steps:        steps,
		IsDefault:    isDefault,
		IsActive:     true,
	}
	e.workflows.rows[id] = wf
	return wf
}

func (e *testEnv) addSystemRecord(t *testing.T, kind domain.RecordKind, id string) *domain.Record {
	t.Helper()
	rec := &domain.Record{
		ID:            id,
		Kind:          kind,
		UserID:        "system",
		WorkspaceType: domain.WorkspaceSystem,
		AccessLevel:   domain.AccessPublic,
		Code:          strings.ToUpper(id),
		Title:         id,
		Status:        domain.RecordApproved,
		Data:          map[string]interface{}{},
	}
	require.NoError(t, e.records.Create(context.Background(), rec))
	return rec
}

func userStep(n int, mode domain.ApprovalMode, ids ...string) domain.WorkflowStep {
	return domain.WorkflowStep{
		StepNumber:   n,
		StepName:     "step",
		ApproverType: domain.ApproverUser,
		ApproverIDs:  ids,
		ApprovalMode: mode,
		IsRequired:   true,
	}
}

func newRecordRequest(code string) *domain.CreateRecordRequest {
	return &domain.CreateRecordRequest{Code: code, Title: "Record " + code}
}

func enterpriseCtx(userID, companyID string) domain.WorkspaceContext {
	return domain.NewEnterpriseContext(userID, companyID, nil)
}
