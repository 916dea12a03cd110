package domain

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkspaceContext_Validate(t *testing.T) {
	company := "company-a"
	factory := "factory-1"

	tests := []struct {
		name    string
		ctx     WorkspaceContext
		wantErr bool
	}{
		{name: "personal ok", ctx: NewPersonalContext("u1")},
		{name: "enterprise ok", ctx: NewEnterpriseContext("u1", company, nil)},
		{name: "enterprise with factory ok", ctx: NewEnterpriseContext("u1", company, &factory)},
		{
			name:    "enterprise without company",
			ctx:     WorkspaceContext{UserID: "u1", WorkspaceType: WorkspaceEnterprise},
			wantErr: true,
		},
		{
			name:    "enterprise with empty company",
			ctx:     NewEnterpriseContext("u1", "", nil),
			wantErr: true,
		},
		{
			name:    "personal with company",
			ctx:     WorkspaceContext{UserID: "u1", WorkspaceType: WorkspacePersonal, CompanyID: &company},
			wantErr: true,
		},
		{
			name:    "personal with factory",
			ctx:     WorkspaceContext{UserID: "u1", WorkspaceType: WorkspacePersonal, FactoryID: &factory},
			wantErr: true,
		},
		{
			name:    "system is never a request context",
			ctx:     WorkspaceContext{UserID: "u1", WorkspaceType: WorkspaceSystem},
			wantErr: true,
		},
		{
			name:    "missing user",
			ctx:     WorkspaceContext{WorkspaceType: WorkspacePersonal},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.ctx.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidWorkspaceContext)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestParseWorkspaceID(t *testing.T) {
	tests := []struct {
		input    string
		wantType WorkspaceType
		wantID   string
		wantErr  bool
	}{
		{input: "personal_u1", wantType: WorkspacePersonal, wantID: "u1"},
		{input: "enterprise_c9", wantType: WorkspaceEnterprise, wantID: "c9"},
		{input: "enterprise_", wantErr: true},
		{input: "personal_", wantErr: true},
		{input: "team_c9", wantErr: true},
		{input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			typ, id, err := ParseWorkspaceID(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidWorkspaceID)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantType, typ)
			assert.Equal(t, tt.wantID, id)
		})
	}
}

func TestWorkspaceContext_IDRoundTrip(t *testing.T) {
	for _, ctx := range []WorkspaceContext{
		NewPersonalContext("u1"),
		NewEnterpriseContext("u1", "c1", nil),
	} {
		typ, id, err := ParseWorkspaceID(ctx.ID())
		require.NoError(t, err)
		assert.Equal(t, ctx.WorkspaceType, typ)
		if ctx.IsEnterprise() {
			assert.Equal(t, ctx.Company(), id)
		} else {
			assert.Equal(t, ctx.UserID, id)
		}
	}
}

func TestQuotaLimits(t *testing.T) {
	assert.Equal(t, 10, QuotaLimits(TierFree).WPS)
	assert.Equal(t, 2000, QuotaLimits(TierEnterprise).Materials)
	assert.Equal(t, 1024, QuotaLimits(TierPersonalPro).StorageMB)
	assert.Equal(t, Unlimited, QuotaLimits(TierEnterpriseProMax).For(ResourceWelders))
	assert.Equal(t, QuotaLimits(TierFree), QuotaLimits("platinum"), "unknown tier falls back to free")

	assert.True(t, Allows(10, 9, 1, ResourceWPS))
	assert.False(t, Allows(10, 10, 1, ResourceWPS))
	assert.True(t, Allows(Unlimited, 1_000_000, 1, ResourceWPS))
	assert.True(t, Allows(100, 100*1024*1024-10, 10, ResourceStorage))
	assert.False(t, Allows(100, 100*1024*1024, 1, ResourceStorage))

	// used+delta would wrap negative
	assert.False(t, Allows(QuotaLimits(TierFree).StorageMB, 1024, math.MaxInt64, ResourceStorage))
	assert.False(t, Allows(10, 1, math.MaxInt64, ResourceWPS))
	assert.False(t, Allows(100, 200*1024*1024, 1, ResourceStorage), "already over the ceiling")
}

func TestRecordKind_QuotaResource(t *testing.T) {
	assert.Equal(t, ResourceWPS, KindWPS.QuotaResource())
	assert.Equal(t, ResourceMaterials, KindMaterial.QuotaResource())
	assert.Equal(t, QuotaResource(""), KindProduction.QuotaResource())
	for _, res := range QuotaResources {
		for _, k := range KindsFor(res) {
			assert.Equal(t, res, k.QuotaResource())
		}
	}
}
