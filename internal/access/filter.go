// Package access turns a workspace context into row visibility and write rules
// for business_records. The SQL predicate and the in-memory Matches must agree.
package access

import (
	"errors"
	"fmt"

	"weldflow-api/internal/domain"
)

var (
	// ErrRecordNotFound is returned for rows that do not exist or are not visible.
	ErrRecordNotFound = errors.New("record not found")

	// ErrSystemRecordReadOnly is returned when writing a system row.
	ErrSystemRecordReadOnly = errors.New("system records are read-only")

	// ErrNotRecordOwner is returned when someone other than the creator writes a row.
	ErrNotRecordOwner = errors.New("only the record creator can modify it")
)

// Filter is the access predicate of one workspace context.
type Filter struct {
	ctx domain.WorkspaceContext
}

// NewFilter builds a filter. The context must be valid.
func NewFilter(ctx domain.WorkspaceContext) (Filter, error) {
	if err := ctx.Validate(); err != nil {
		return Filter{}, err
	}
	return Filter{ctx: ctx}, nil
}

// Context returns the workspace context the filter was built from.
func (f Filter) Context() domain.WorkspaceContext {
	return f.ctx
}

// SQL renders the visibility predicate for table alias with positional
// arguments starting at $firstArg:
//
//	workspace_type = 'system'
//	OR (personal AND user_id = me)          -- personal context
//	OR (enterprise AND company_id = mine)   -- enterprise context
func (f Filter) SQL(alias string, firstArg int) (string, []any) {
	col := column(alias)
	owned, args := f.OwnedSQL(alias, firstArg)
	return fmt.Sprintf("(%s = 'system' OR %s)", col("workspace_type"), owned), args
}

// OwnedSQL renders the predicate of rows owned by the tenant (system rows
// excluded). Quota counting uses it.
func (f Filter) OwnedSQL(alias string, firstArg int) (string, []any) {
	col := column(alias)
	if f.ctx.IsEnterprise() {
		return fmt.Sprintf("(%s = 'enterprise' AND %s = $%d)", col("workspace_type"), col("company_id"), firstArg),
			[]any{f.ctx.Company()}
	}
	return fmt.Sprintf("(%s = 'personal' AND %s = $%d)", col("workspace_type"), col("user_id"), firstArg),
		[]any{f.ctx.UserID}
}

// Matches evaluates the SQL predicate in memory.
func (f Filter) Matches(row *domain.Record) bool {
	if row == nil || row.DeletedAt != nil {
		return false
	}
	return row.IsSystem() || f.Owns(row)
}

// Owns reports whether the row belongs to the tenant of the context.
func (f Filter) Owns(row *domain.Record) bool {
	switch row.WorkspaceType {
	case domain.WorkspacePersonal:
		return f.ctx.IsPersonal() && row.UserID == f.ctx.UserID
	case domain.WorkspaceEnterprise:
		return f.ctx.IsEnterprise() && row.CompanyID != nil && *row.CompanyID == f.ctx.Company()
	}
	return false
}

// CanWrite checks update/delete rights on a row.
func (f Filter) CanWrite(row *domain.Record) error {
	if row == nil {
		return ErrRecordNotFound
	}
	if row.IsSystem() {
		if row.DeletedAt != nil {
			return ErrRecordNotFound
		}
		return ErrSystemRecordReadOnly
	}
	if !f.Matches(row) {
		return ErrRecordNotFound
	}
	if row.UserID != f.ctx.UserID {
		return ErrNotRecordOwner
	}
	return nil
}

// Stamp sets the scope columns of a new row from the context.
// Personal rows carry no company or factory.
func (f Filter) Stamp(row *domain.Record) {
	row.UserID = f.ctx.UserID
	row.WorkspaceType = f.ctx.WorkspaceType
	if f.ctx.IsEnterprise() {
		company := f.ctx.Company()
		row.CompanyID = &company
		row.FactoryID = f.ctx.FactoryID
		return
	}
	row.CompanyID = nil
	row.FactoryID = nil
}

func column(alias string) func(string) string {
	return func(name string) string {
		if alias == "" {
			return name
		}
		return alias + "." + name
	}
}
