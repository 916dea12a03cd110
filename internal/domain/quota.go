package domain

import "errors"

// QuotaResource names a limited counter.
type QuotaResource string

const (
	ResourceWPS       QuotaResource = "wps"
	ResourcePQR       QuotaResource = "pqr"
	ResourcePPQR      QuotaResource = "ppqr"
	ResourceMaterials QuotaResource = "materials"
	ResourceWelders   QuotaResource = "welders"
	ResourceEquipment QuotaResource = "equipment"
	ResourceStorage   QuotaResource = "storage"
)

// Unlimited marks a limit without ceiling.
const Unlimited = -1

// Member tiers.
const (
	TierFree             = "free"
	TierPersonalPro      = "personal_pro"
	TierPersonalAdvanced = "personal_advanced"
	TierPersonalFlagship = "personal_flagship"
	TierEnterprise       = "enterprise"
	TierEnterprisePro    = "enterprise_pro"
	TierEnterpriseProMax = "enterprise_pro_max"
)

// ErrQuotaExceeded is returned when a create would exceed the tier limit.
var ErrQuotaExceeded = errors.New("quota exceeded, upgrade required")

// Limits is the per-tier ceiling of every resource. StorageMB is in megabytes.
type Limits struct {
	WPS       int `json:"wps"`
	PQR       int `json:"pqr"`
	PPQR      int `json:"ppqr"`
	Materials int `json:"materials"`
	Welders   int `json:"welders"`
	Equipment int `json:"equipment"`
	StorageMB int `json:"storageMb"`
}

var tierLimits = map[string]Limits{
	TierFree:             {WPS: 10, PQR: 10, PPQR: 10, Materials: 50, Welders: 20, Equipment: 20, StorageMB: 100},
	TierPersonalPro:      {WPS: 30, PQR: 30, PPQR: 30, Materials: 200, Welders: 50, Equipment: 50, StorageMB: 1024},
	TierPersonalAdvanced: {WPS: 50, PQR: 50, PPQR: 50, Materials: 500, Welders: 100, Equipment: 100, StorageMB: 5120},
	TierPersonalFlagship: {WPS: 100, PQR: 100, PPQR: 100, Materials: 1000, Welders: 200, Equipment: 200, StorageMB: 10240},
	TierEnterprise:       {WPS: 200, PQR: 200, PPQR: 200, Materials: 2000, Welders: 500, Equipment: 500, StorageMB: 51200},
	TierEnterprisePro:    {WPS: 500, PQR: 500, PPQR: 500, Materials: 5000, Welders: 1000, Equipment: 1000, StorageMB: 102400},
	TierEnterpriseProMax: {
		WPS: Unlimited, PQR: Unlimited, PPQR: Unlimited, Materials: Unlimited,
		Welders: Unlimited, Equipment: Unlimited, StorageMB: Unlimited,
	},
}

// IsKnownTier reports whether tier has an entry in the limits table.
func IsKnownTier(tier string) bool {
	_, ok := tierLimits[tier]
	return ok
}

// QuotaLimits returns the limits of a tier. Unknown tiers fall back to free.
func QuotaLimits(tier string) Limits {
	if l, ok := tierLimits[tier]; ok {
		return l
	}
	return tierLimits[TierFree]
}

// For returns the limit of one resource.
func (l Limits) For(res QuotaResource) int {
	switch res {
	case ResourceWPS:
		return l.WPS
	case ResourcePQR:
		return l.PQR
	case ResourcePPQR:
		return l.PPQR
	case ResourceMaterials:
		return l.Materials
	case ResourceWelders:
		return l.Welders
	case ResourceEquipment:
		return l.Equipment
	case ResourceStorage:
		return l.StorageMB
	}
	return Unlimited
}

// MaxAttachmentsSize caps the attachment bytes a single record may declare.
const MaxAttachmentsSize int64 = 1 << 40

// Allows reports whether used+delta stays within limit. For storage, used and
// delta are bytes and the limit is converted from MB. The comparison never
// computes used+delta, so huge deltas cannot wrap around.
func Allows(limit int, used, delta int64, res QuotaResource) bool {
	if limit == Unlimited {
		return true
	}
	ceiling := int64(limit)
	if res == ResourceStorage {
		ceiling = ceiling * 1024 * 1024
	}
	if delta < 0 {
		return true
	}
	if used > ceiling {
		return false
	}
	return delta <= ceiling-used
}

// QuotaUsage is one line of the quota report.
type QuotaUsage struct {
	Resource  QuotaResource `json:"resource"`
	Used      int64         `json:"used"`
	Limit     int           `json:"limit"`
	Unlimited bool          `json:"unlimited"`
}

// QuotaReport is the body of GET /quota.
type QuotaReport struct {
	WorkspaceID string       `json:"workspaceId"`
	Tier        string       `json:"tier"`
	Usage       []QuotaUsage `json:"usage"`
}

// QuotaResources lists every resource in report order.
var QuotaResources = []QuotaResource{
	ResourceWPS, ResourcePQR, ResourcePPQR, ResourceMaterials,
	ResourceWelders, ResourceEquipment, ResourceStorage,
}

// KindsFor returns the record kinds counted by a resource.
func KindsFor(res QuotaResource) []RecordKind {
	switch res {
	case ResourceWPS:
		return []RecordKind{KindWPS}
	case ResourcePQR:
		return []RecordKind{KindPQR}
	case ResourcePPQR:
		return []RecordKind{KindPPQR}
	case ResourceMaterials:
		return []RecordKind{KindMaterial}
	case ResourceWelders:
		return []RecordKind{KindWelder}
	case ResourceEquipment:
		return []RecordKind{KindEquipment}
	}
	return nil
}
