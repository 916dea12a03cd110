package repo_test

import (
	"context"
	"os"
	"testing"
	"time"

	"weldflow-api/internal/access"
	"weldflow-api/internal/database"
	"weldflow-api/internal/domain"
	"weldflow-api/internal/repo"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// integrationPool connects to DATABASE_URL and applies migrations.
//
// Run with: DATABASE_URL=postgres://... go test -v ./internal/repo
func integrationPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}

	require.NoError(t, database.RunMigrations(databaseURL))

	pool, err := database.NewPool(context.Background(), databaseURL, database.DefaultPoolOptions())
	require.NoError(t, err, "failed to connect to database")
	t.Cleanup(pool.Close)
	return pool
}

// tenantFixture creates two users and two companies with unique ids.
type tenantFixture struct {
	userA, userB       string
	companyA, companyB string
}

func seedTenants(t *testing.T, pool *pgxpool.Pool) tenantFixture {
	t.Helper()
	ctx := context.Background()
	suffix := uuid.NewString()[:8]
	f := tenantFixture{
		userA:    "it-user-a-" + suffix,
		userB:    "it-user-b-" + suffix,
		companyA: "it-company-a-" + suffix,
		companyB: "it-company-b-" + suffix,
	}

	for _, u := range []string{f.userA, f.userB} {
		_, err := pool.Exec(ctx, `INSERT INTO users (id, membership_type, member_tier) VALUES ($1, 'enterprise', 'free')`, u)
		require.NoError(t, err)
	}
	_, err := pool.Exec(ctx, `INSERT INTO companies (id, name, owner_id) VALUES ($1, 'A', $2), ($3, 'B', $4)`,
		f.companyA, f.userA, f.companyB, f.userB)
	require.NoError(t, err)

	t.Cleanup(func() {
		_, _ = pool.Exec(ctx, `DELETE FROM approval_history WHERE instance_id IN (SELECT id FROM approval_instances WHERE company_id IN ($1, $2))`, f.companyA, f.companyB)
		_, _ = pool.Exec(ctx, `DELETE FROM approval_instances WHERE company_id IN ($1, $2)`, f.companyA, f.companyB)
		_, _ = pool.Exec(ctx, `DELETE FROM approval_workflows WHERE company_id IN ($1, $2)`, f.companyA, f.companyB)
		_, _ = pool.Exec(ctx, `DELETE FROM business_records WHERE user_id IN ($1, $2)`, f.userA, f.userB)
		_, _ = pool.Exec(ctx, `DELETE FROM companies WHERE id IN ($1, $2)`, f.companyA, f.companyB)
		_, _ = pool.Exec(ctx, `DELETE FROM users WHERE id IN ($1, $2)`, f.userA, f.userB)
	})
	return f
}

func createRecord(t *testing.T, records *repo.RecordRepository, f access.Filter, kind domain.RecordKind, code string) *domain.Record {
	t.Helper()
	rec := &domain.Record{
		ID:          uuid.NewString(),
		Kind:        kind,
		Code:        code,
		Title:       code,
		Status:      domain.RecordDraft,
		AccessLevel: domain.AccessPrivate,
		Data:        map[string]interface{}{"process": "GMAW"},
	}
	f.Stamp(rec)
	require.NoError(t, records.Create(context.Background(), rec))
	return rec
}

func TestRecordRepository_Isolation_Integration(t *testing.T) {
	pool := integrationPool(t)
	ctx := context.Background()
	fx := seedTenants(t, pool)
	records := repo.NewRecordRepository(pool)

	inA, err := access.NewFilter(domain.NewEnterpriseContext(fx.userA, fx.companyA, nil))
	require.NoError(t, err)
	inB, err := access.NewFilter(domain.NewEnterpriseContext(fx.userB, fx.companyB, nil))
	require.NoError(t, err)
	personalA, err := access.NewFilter(domain.NewPersonalContext(fx.userA))
	require.NoError(t, err)

	recA := createRecord(t, records, inA, domain.KindWPS, "WPS-A-1")
	recB := createRecord(t, records, inB, domain.KindWPS, "WPS-B-1")
	recP := createRecord(t, records, personalA, domain.KindWPS, "WPS-P-1")

	listA, _, err := records.List(ctx, inA, domain.ListRecordsParams{Kind: domain.KindWPS, Limit: 100})
	require.NoError(t, err)

	ids := map[string]bool{}
	for _, r := range listA {
		row := r
		assert.True(t, inA.Matches(&row), "SQL returned a row Matches rejects: %s", r.ID)
		ids[r.ID] = true
	}
	assert.True(t, ids[recA.ID])
	assert.False(t, ids[recB.ID], "company B row leaked into company A")
	assert.False(t, ids[recP.ID], "personal row leaked into enterprise context")

	_, err = records.Get(ctx, inA, domain.KindWPS, recB.ID)
	assert.ErrorIs(t, err, repo.ErrRecordNotFound)

	n, err := records.CountOwned(ctx, inA, []domain.RecordKind{domain.KindWPS})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	require.NoError(t, records.SoftDelete(ctx, recA.ID))
	n, err = records.CountOwned(ctx, inA, []domain.RecordKind{domain.KindWPS})
	require.NoError(t, err)
	assert.Zero(t, n, "soft-deleted rows do not count")

	// Seeded system materials are visible from both tenants.
	matA, _, err := records.List(ctx, inA, domain.ListRecordsParams{Kind: domain.KindMaterial, Limit: 100})
	require.NoError(t, err)
	matB, _, err := records.List(ctx, inB, domain.ListRecordsParams{Kind: domain.KindMaterial, Limit: 100})
	require.NoError(t, err)
	assert.NotEmpty(t, matA)
	assert.Equal(t, len(matA), len(matB))
}

func TestRecordRepository_ListPagination_Integration(t *testing.T) {
	pool := integrationPool(t)
	ctx := context.Background()
	fx := seedTenants(t, pool)
	records := repo.NewRecordRepository(pool)

	f, err := access.NewFilter(domain.NewPersonalContext(fx.userB))
	require.NoError(t, err)
	for _, code := range []string{"W1", "W2", "W3"} {
		createRecord(t, records, f, domain.KindWelder, code)
		time.Sleep(2 * time.Millisecond)
	}

	page1, cursor, err := records.List(ctx, f, domain.ListRecordsParams{Kind: domain.KindWelder, Limit: 2})
	require.NoError(t, err)
	require.Len(t, page1, 2)
	require.NotEmpty(t, cursor)

	page2, cursor, err := records.List(ctx, f, domain.ListRecordsParams{Kind: domain.KindWelder, Limit: 2, Cursor: &cursor})
	require.NoError(t, err)
	assert.Len(t, page2, 1)
	assert.Empty(t, cursor)

	bad := "not-a-time"
	_, _, err = records.List(ctx, f, domain.ListRecordsParams{Kind: domain.KindWelder, Limit: 2, Cursor: &bad})
	assert.ErrorIs(t, err, repo.ErrInvalidCursor)
}

func TestApprovalRepository_Transition_Integration(t *testing.T) {
	pool := integrationPool(t)
	ctx := context.Background()
	fx := seedTenants(t, pool)
	records := repo.NewRecordRepository(pool)
	workflows := repo.NewWorkflowRepository(pool)
	approvals := repo.NewApprovalRepository(pool)

	f, err := access.NewFilter(domain.NewEnterpriseContext(fx.userA, fx.companyA, nil))
	require.NoError(t, err)
	doc := createRecord(t, records, f, domain.KindWPS, "WPS-APPROVAL")

	wf := &domain.ApprovalWorkflow{
		ID:           uuid.NewString(),
		Name:         "single",
		DocumentType: domain.KindWPS,
		CompanyID:    &fx.companyA,
		IsDefault:    true,
		IsActive:     true,
		Steps: []domain.WorkflowStep{{
			StepNumber: 1, StepName: "QA", ApproverType: domain.ApproverUser,
			ApproverIDs: []string{fx.userB}, ApprovalMode: domain.ModeAny, IsRequired: true,
		}},
	}
	require.NoError(t, workflows.Create(ctx, wf))

	found, err := workflows.FindDefault(ctx, fx.companyA, domain.KindWPS)
	require.NoError(t, err)
	assert.Equal(t, wf.ID, found.ID)

	now := time.Now().UTC()
	inst, hist, err := domain.NewApprovalInstance(uuid.NewString(), wf, doc, fx.userA, now)
	require.NoError(t, err)
	require.NoError(t, approvals.Create(ctx, inst, hist))

	second, hist2, err := domain.NewApprovalInstance(uuid.NewString(), wf, doc, fx.userA, now)
	require.NoError(t, err)
	assert.ErrorIs(t, approvals.Create(ctx, second, hist2), repo.ErrActiveApprovalExists)

	locked, err := records.Get(ctx, f, domain.KindWPS, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RecordPendingApproval, locked.Status)

	// A failing transition writes nothing.
	_, _, err = approvals.Transition(ctx, fx.companyA, inst.ID, func(i *domain.ApprovalInstance) (*domain.ApprovalHistory, error) {
		return i.Approve(domain.Actor{UserID: fx.userA}, nil, time.Now().UTC())
	})
	assert.ErrorIs(t, err, domain.ErrNotApprover)

	done, _, err := approvals.Transition(ctx, fx.companyA, inst.ID, func(i *domain.ApprovalInstance) (*domain.ApprovalHistory, error) {
		return i.Approve(domain.Actor{UserID: fx.userB}, nil, time.Now().UTC())
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ApprovalApproved, done.Status)

	approved, err := records.Get(ctx, f, domain.KindWPS, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RecordApproved, approved.Status)

	history, err := approvals.History(ctx, inst.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, domain.ActionSubmit, history[0].Action)
	assert.Equal(t, domain.ActionApprove, history[1].Action)

	_, err = approvals.Get(ctx, fx.companyB, inst.ID)
	assert.ErrorIs(t, err, repo.ErrApprovalNotFound, "instances are scoped to their company")
}
