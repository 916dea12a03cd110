package service

import (
	"context"
	"testing"

	"weldflow-api/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkspaceService_Resolve(t *testing.T) {
	env := newTestEnv(t)
	env.addUser("solo", domain.MembershipPersonal, domain.TierFree)
	env.addUser("worker", domain.MembershipEnterprise, domain.TierFree)
	env.addCompany("c1", domain.TierEnterprise, false)
	env.addCompany("c2", domain.TierEnterprise, false)

	factory := "f1"
	env.addEmployee(t, "c1", "worker", domain.EmployeeEmployee, nil)
	env.employees.rows[0].FactoryID = &factory
	env.addEmployee(t, "c2", "worker", domain.EmployeeEmployee, nil)

	leaver := env.addEmployee(t, "c2", "solo", domain.EmployeeEmployee, nil)
	for _, row := range env.employees.rows {
		if row.ID == leaver.ID {
			row.Status = domain.EmployeeInactive
		}
	}

	tests := []struct {
		name        string
		userID      string
		workspaceID string
		wantType    domain.WorkspaceType
		wantCompany string
		wantFactory *string
		wantErr     error
	}{
		{name: "default personal user", userID: "solo", wantType: domain.WorkspacePersonal},
		{name: "default enterprise user takes earliest membership", userID: "worker", wantType: domain.WorkspaceEnterprise, wantCompany: "c1", wantFactory: &factory},
		{name: "explicit own personal", userID: "worker", workspaceID: "personal_worker", wantType: domain.WorkspacePersonal},
		{name: "explicit other personal", userID: "worker", workspaceID: "personal_solo", wantErr: ErrWorkspaceAccessDenied},
		{name: "explicit enterprise member", userID: "worker", workspaceID: "enterprise_c2", wantType: domain.WorkspaceEnterprise, wantCompany: "c2"},
		{name: "explicit enterprise non member", userID: "solo", workspaceID: "enterprise_c1", wantErr: ErrWorkspaceAccessDenied},
		{name: "inactive membership", userID: "solo", workspaceID: "enterprise_c2", wantErr: ErrWorkspaceAccessDenied},
		{name: "malformed id", userID: "solo", workspaceID: "team_c1", wantErr: domain.ErrInvalidWorkspaceID},
		{name: "empty enterprise id", userID: "solo", workspaceID: "enterprise_", wantErr: domain.ErrInvalidWorkspaceID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wctx, err := env.workspaces.Resolve(context.Background(), tt.userID, tt.workspaceID)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.userID, wctx.UserID)
			assert.Equal(t, tt.wantType, wctx.WorkspaceType)
			assert.Equal(t, tt.wantCompany, wctx.Company())
			assert.Equal(t, tt.wantFactory, wctx.FactoryID)
			assert.NoError(t, wctx.Validate())
		})
	}
}

func TestWorkspaceService_Resolve_ProvisionsUnknownUser(t *testing.T) {
	env := newTestEnv(t)

	wctx, err := env.workspaces.Resolve(context.Background(), "newcomer", "")
	require.NoError(t, err)
	assert.True(t, wctx.IsPersonal())

	user, err := env.users.Get(context.Background(), "newcomer")
	require.NoError(t, err)
	assert.Equal(t, domain.TierFree, user.MemberTier)
}

func TestWorkspaceService_Resolve_DisabledUser(t *testing.T) {
	env := newTestEnv(t)
	env.addUser("banned", domain.MembershipPersonal, domain.TierFree)
	env.users.users["banned"].Status = domain.UserDisabled

	_, err := env.workspaces.Resolve(context.Background(), "banned", "")
	assert.ErrorIs(t, err, ErrUserDisabled)
}

func TestWorkspaceService_ListWorkspaces(t *testing.T) {
	env := newTestEnv(t)
	env.addUser("worker", domain.MembershipEnterprise, domain.TierFree)
	env.addCompany("c1", domain.TierEnterprise, false)
	env.addEmployee(t, "c1", "worker", domain.EmployeeAdmin, nil)

	list, err := env.workspaces.ListWorkspaces(context.Background(), "worker")
	require.NoError(t, err)
	require.Len(t, list, 2)

	assert.Equal(t, "personal_worker", list[0].ID)
	assert.False(t, list[0].IsDefault)

	assert.Equal(t, "enterprise_c1", list[1].ID)
	assert.True(t, list[1].IsDefault)
	require.NotNil(t, list[1].Role)
	assert.Equal(t, domain.EmployeeAdmin, *list[1].Role)
}
