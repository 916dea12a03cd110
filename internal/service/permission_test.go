package service

import (
	"context"
	"testing"

	"weldflow-api/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEffectivePermission(t *testing.T) {
	roleID := "inspector"
	role := &domain.CompanyRole{
		ID:       roleID,
		IsActive: true,
		Permissions: map[string]domain.ModulePermission{
			string(domain.KindQuality): {View: true, Create: true, Edit: true},
		},
	}
	inactiveRole := &domain.CompanyRole{ID: "old", Permissions: role.Permissions}

	tests := []struct {
		name    string
		emp     domain.CompanyEmployee
		role    *domain.CompanyRole
		company *domain.Company
		module  string
		want    domain.ModulePermission
		wantErr error
	}{
		{name: "owner gets everything", emp: domain.CompanyEmployee{Role: domain.EmployeeOwner}, module: "wps", want: domain.FullPermission},
		{name: "admin gets everything", emp: domain.CompanyEmployee{Role: domain.EmployeeAdmin}, module: domain.ModuleEnterprise, want: domain.FullPermission},
		{name: "role grants its module", emp: domain.CompanyEmployee{Role: domain.EmployeeEmployee, CompanyRoleID: &roleID}, role: role, module: "quality", want: domain.ModulePermission{View: true, Create: true, Edit: true}},
		{name: "role without module grants nothing", emp: domain.CompanyEmployee{Role: domain.EmployeeEmployee, CompanyRoleID: &roleID}, role: role, module: "wps", want: domain.ModulePermission{}},
		{name: "inactive role grants nothing", emp: domain.CompanyEmployee{Role: domain.EmployeeEmployee}, role: inactiveRole, module: "quality", want: domain.ModulePermission{}},
		{name: "no role uses member default", emp: domain.CompanyEmployee{Role: domain.EmployeeEmployee}, company: &domain.Company{}, module: "wps", want: domain.DefaultMemberPermission},
		{name: "no role when company requires one", emp: domain.CompanyEmployee{Role: domain.EmployeeEmployee}, company: &domain.Company{RequireCompanyRole: true}, module: "wps", wantErr: ErrRoleRequired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := effectivePermission(&tt.emp, tt.role, tt.company, tt.module)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPermissionChecker_RoleRequiredDeniesEveryModule(t *testing.T) {
	env := newTestEnv(t)
	env.addCompany("c1", domain.TierEnterprise, true)
	env.addEmployee(t, "c1", "u1", domain.EmployeeEmployee, nil)
	wctx := enterpriseCtx("u1", "c1")

	modules := []string{domain.ModuleApproval, domain.ModuleEnterprise}
	for _, kind := range domain.AllRecordKinds {
		modules = append(modules, kind.Module())
	}
	actions := []domain.ModuleAction{domain.ActionView, domain.ActionCreate, domain.ActionEdit, domain.ActionDelete}

	for _, module := range modules {
		for _, action := range actions {
			err := env.perms.Check(context.Background(), wctx, module, action)
			assert.ErrorIs(t, err, ErrRoleRequired, "%s/%s", module, action)
		}
	}
}

func TestPermissionChecker_Check(t *testing.T) {
	env := newTestEnv(t)
	env.addCompany("c1", domain.TierEnterprise, false)
	roleID := "welding-engineer"
	env.addRole("c1", roleID, map[string]domain.ModulePermission{
		"wps": {View: true, Create: true, Edit: true, Delete: true},
	})
	env.addEmployee(t, "c1", "engineer", domain.EmployeeEmployee, &roleID)
	env.addEmployee(t, "c1", "member", domain.EmployeeEmployee, nil)
	env.addEmployee(t, "c1", "boss", domain.EmployeeOwner, nil)

	ctx := context.Background()

	assert.NoError(t, env.perms.Check(ctx, enterpriseCtx("engineer", "c1"), "wps", domain.ActionDelete))
	assert.ErrorIs(t, env.perms.Check(ctx, enterpriseCtx("engineer", "c1"), "pqr", domain.ActionView), ErrPermissionDenied)

	assert.NoError(t, env.perms.Check(ctx, enterpriseCtx("member", "c1"), "pqr", domain.ActionCreate))
	assert.ErrorIs(t, env.perms.Check(ctx, enterpriseCtx("member", "c1"), "pqr", domain.ActionEdit), ErrPermissionDenied)

	assert.NoError(t, env.perms.Check(ctx, enterpriseCtx("boss", "c1"), domain.ModuleEnterprise, domain.ActionDelete))

	assert.ErrorIs(t, env.perms.Check(ctx, enterpriseCtx("stranger", "c1"), "wps", domain.ActionView), ErrWorkspaceAccessDenied)
	assert.NoError(t, env.perms.Check(ctx, domain.NewPersonalContext("stranger"), "wps", domain.ActionDelete))
}

func TestPermissionChecker_RequireManager(t *testing.T) {
	env := newTestEnv(t)
	env.addCompany("c1", domain.TierEnterprise, false)
	env.addEmployee(t, "c1", "admin", domain.EmployeeAdmin, nil)
	env.addEmployee(t, "c1", "member", domain.EmployeeEmployee, nil)

	_, err := env.perms.RequireManager(context.Background(), enterpriseCtx("admin", "c1"))
	assert.NoError(t, err)

	_, err = env.perms.RequireManager(context.Background(), enterpriseCtx("member", "c1"))
	assert.ErrorIs(t, err, ErrPermissionDenied)

	_, err = env.perms.RequireManager(context.Background(), domain.NewPersonalContext("admin"))
	assert.ErrorIs(t, err, ErrEnterpriseOnly)
}
