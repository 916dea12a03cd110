package domain

import (
	"errors"
	"time"
)

// =====================================================
// Record kinds
// =====================================================

// RecordKind discriminates the business entities stored in business_records.
type RecordKind string

const (
	KindWPS        RecordKind = "wps"
	KindPQR        RecordKind = "pqr"
	KindPPQR       RecordKind = "ppqr"
	KindMaterial   RecordKind = "material"
	KindWelder     RecordKind = "welder"
	KindEquipment  RecordKind = "equipment"
	KindProduction RecordKind = "production"
	KindQuality    RecordKind = "quality"
)

// AllRecordKinds lists every kind in a stable order.
var AllRecordKinds = []RecordKind{
	KindWPS, KindPQR, KindPPQR, KindMaterial, KindWelder,
	KindEquipment, KindProduction, KindQuality,
}

// IsValid checks if the kind is one of the defined constants
func (k RecordKind) IsValid() bool {
	for _, known := range AllRecordKinds {
		if k == known {
			return true
		}
	}
	return false
}

// Module returns the permission module guarding the kind.
func (k RecordKind) Module() string {
	return string(k)
}

// Approvable reports whether documents of this kind go through approval workflows.
func (k RecordKind) Approvable() bool {
	switch k {
	case KindWPS, KindPQR, KindPPQR, KindProduction, KindQuality:
		return true
	}
	return false
}

// QuotaResource returns the quota counter a kind consumes, or "" when the
// kind is not limited per count.
func (k RecordKind) QuotaResource() QuotaResource {
	switch k {
	case KindWPS:
		return ResourceWPS
	case KindPQR:
		return ResourcePQR
	case KindPPQR:
		return ResourcePPQR
	case KindMaterial:
		return ResourceMaterials
	case KindWelder:
		return ResourceWelders
	case KindEquipment:
		return ResourceEquipment
	}
	return ""
}

// =====================================================
// Record status / access level
// =====================================================

// RecordStatus is the document lifecycle status.
type RecordStatus string

const (
	RecordDraft           RecordStatus = "draft"
	RecordPendingApproval RecordStatus = "pending_approval"
	RecordApproved        RecordStatus = "approved"
	RecordRejected        RecordStatus = "rejected"
	RecordArchived        RecordStatus = "archived"
)

// IsValid checks if the status is one of the defined constants
func (s RecordStatus) IsValid() bool {
	switch s {
	case RecordDraft, RecordPendingApproval, RecordApproved, RecordRejected, RecordArchived:
		return true
	}
	return false
}

// IsSettableByUser reports whether a client may set the status directly.
// pending_approval, approved and rejected are driven by the approval engine.
func (s RecordStatus) IsSettableByUser() bool {
	return s == RecordDraft || s == RecordArchived
}

// AccessLevel is informational visibility metadata carried by each row.
type AccessLevel string

const (
	AccessPrivate AccessLevel = "private"
	AccessFactory AccessLevel = "factory"
	AccessCompany AccessLevel = "company"
	AccessPublic  AccessLevel = "public"
)

// IsValid checks if the access level is one of the defined constants
func (a AccessLevel) IsValid() bool {
	switch a {
	case AccessPrivate, AccessFactory, AccessCompany, AccessPublic:
		return true
	}
	return false
}

// =====================================================
// Record
// =====================================================

// ErrRecordLocked is returned when a record under approval is edited.
var ErrRecordLocked = errors.New("record is locked by an active approval")

// Record is one row of business_records.
type Record struct {
	ID              string                 `json:"id" db:"id"`
	Kind            RecordKind             `json:"kind" db:"kind"`
	UserID          string                 `json:"userId" db:"user_id"`
	WorkspaceType   WorkspaceType          `json:"workspaceType" db:"workspace_type"`
	CompanyID       *string                `json:"companyId,omitempty" db:"company_id"`
	FactoryID       *string                `json:"factoryId,omitempty" db:"factory_id"`
	IsShared        bool                   `json:"isShared" db:"is_shared"`
	AccessLevel     AccessLevel            `json:"accessLevel" db:"access_level"`
	Code            string                 `json:"code" db:"code"`
	Title           string                 `json:"title" db:"title"`
	Status          RecordStatus           `json:"status" db:"status"`
	Data            map[string]interface{} `json:"data" db:"data"`
	AttachmentsSize int64                  `json:"attachmentsSize" db:"attachments_size"`
	CreatedAt       time.Time              `json:"createdAt" db:"created_at"`
	UpdatedAt       time.Time              `json:"updatedAt" db:"updated_at"`
	DeletedAt       *time.Time             `json:"-" db:"deleted_at"`
}

// IsSystem reports whether the row is a global read-only asset.
func (r *Record) IsSystem() bool {
	return r.WorkspaceType == WorkspaceSystem
}

// Company returns the company id or "".
func (r *Record) Company() string {
	if r.CompanyID == nil {
		return ""
	}
	return *r.CompanyID
}

// IsLocked reports whether content edits are blocked by an approval in flight.
func (r *Record) IsLocked() bool {
	return r.Status == RecordPendingApproval
}

// CreateRecordRequest DTO para criação de registro.
type CreateRecordRequest struct {
	Code            string                 `json:"code" validate:"required,min=1,max=100"`
	Title           string                 `json:"title" validate:"required,min=1,max=255"`
	AccessLevel     *AccessLevel           `json:"accessLevel,omitempty" validate:"omitempty,oneof=private factory company public"`
	IsShared        *bool                  `json:"isShared,omitempty"`
	Data            map[string]interface{} `json:"data,omitempty"`
	AttachmentsSize int64                  `json:"attachmentsSize,omitempty" validate:"gte=0,lte=1099511627776"`
}

// UpdateRecordRequest DTO para atualização parcial (PATCH).
// Scope columns (workspace_type, company_id, user_id) cannot be changed.
type UpdateRecordRequest struct {
	Code            *string                `json:"code,omitempty" validate:"omitempty,min=1,max=100"`
	Title           *string                `json:"title,omitempty" validate:"omitempty,min=1,max=255"`
	Status          *RecordStatus          `json:"status,omitempty" validate:"omitempty,oneof=draft archived"`
	AccessLevel     *AccessLevel           `json:"accessLevel,omitempty" validate:"omitempty,oneof=private factory company public"`
	IsShared        *bool                  `json:"isShared,omitempty"`
	Data            map[string]interface{} `json:"data,omitempty"`
	AttachmentsSize *int64                 `json:"attachmentsSize,omitempty" validate:"omitempty,gte=0,lte=1099511627776"`
}

// ListRecordsParams holds list filters. Scope always comes from the workspace context.
type ListRecordsParams struct {
	Kind      RecordKind
	Status    *RecordStatus
	FactoryID *string
	Query     *string
	Limit     int
	Cursor    *string
}

// RecordListResponse is the paginated list envelope.
type RecordListResponse struct {
	Data []Record `json:"data"`
	Meta struct {
		NextCursor  *string `json:"nextCursor,omitempty"`
		HasNextPage bool    `json:"hasNextPage"`
	} `json:"meta"`
}
