package entity

import (
	"strings"
	"time"

	"github.com/uptrace/bun"
)

// AssetCheck is the audit flag recorded against a device during a stock audit.
type AssetCheck string

const (
	AssetMatched   AssetCheck = "Matched"
	AssetUnmatched AssetCheck = "Unmatched"

	foundInPrefix = "Found in "
)

// FoundIn is the asset check recorded when a unit turns up outside the
// warehouses the operator expected.
func FoundIn(warehouse string) AssetCheck {
	return AssetCheck(foundInPrefix + warehouse)
}

// Effective treats an absent flag as Unmatched.
func (a AssetCheck) Effective() AssetCheck {
	if a == "" {
		return AssetUnmatched
	}
	return a
}

// IsFoundElsewhere reports whether a carries a "Found in <warehouse>" flag.
func (a AssetCheck) IsFoundElsewhere() bool {
	return strings.HasPrefix(string(a), foundInPrefix)
}

// Device is a realized physical unit, optionally linked to the order that produced it.
type Device struct {
	bun.BaseModel `bun:"table:devices"`

	ID           int64        `bun:",pk,autoincrement" json:"id"`
	SerialNumber string       `bun:"serial_number" json:"serial_number"`
	OrderID      *int64       `bun:"order_id" json:"order_id,omitempty"`
	MaterialType MaterialType `bun:"material_type,nullzero" json:"material_type,omitempty"`
	AssetType    string       `bun:"asset_type" json:"asset_type"`
	Model        string       `bun:"model" json:"model"`
	Warehouse    string       `bun:"warehouse" json:"warehouse"`
	AssetCheck   AssetCheck   `bun:"asset_check,nullzero" json:"asset_check,omitempty"`
	IsDeleted    bool         `bun:"is_deleted,notnull" json:"is_deleted"`
	CreatedAt    time.Time    `bun:"created_at,nullzero,notnull,default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt    time.Time    `bun:"updated_at,nullzero" json:"updated_at"`
	UpdatedBy    string       `bun:"updated_by,nullzero" json:"updated_by,omitempty"`
}

// AuditUpdate carries the only fields the audit engine is allowed to write.
type AuditUpdate struct {
	AssetCheck AssetCheck
	UpdatedBy  string
	UpdatedAt  time.Time
}
