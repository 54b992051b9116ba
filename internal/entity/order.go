package entity

import (
	"time"

	"github.com/uptrace/bun"
)

// MaterialType is the movement direction of an order.
type MaterialType string

const (
	MaterialInward  MaterialType = "Inward"
	MaterialOutward MaterialType = "Outward"
)

// Order is a requested movement of Quantity units of one asset type and model
// between a warehouse and the system.
type Order struct {
	bun.BaseModel `bun:"table:orders"`

	ID            int64        `bun:",pk,autoincrement" json:"id"`
	SalesOrder    string       `bun:"sales_order,nullzero" json:"sales_order,omitempty"`
	AssetType     string       `bun:"asset_type,notnull" json:"asset_type"`
	Model         string       `bun:"model,notnull" json:"model"`
	Warehouse     string       `bun:"warehouse,notnull" json:"warehouse"`
	Quantity      int          `bun:"quantity,notnull" json:"quantity"`
	MaterialType  MaterialType `bun:"material_type,notnull" json:"material_type"`
	SerialNumbers []string     `bun:"serial_numbers" json:"serial_numbers"`
	IsDeleted     bool         `bun:"is_deleted,notnull" json:"is_deleted"`
	CreatedAt     time.Time    `bun:"created_at,nullzero,notnull,default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt     time.Time    `bun:"updated_at,nullzero" json:"updated_at"`
}

// GroupKey identifies the logical sales transaction an order belongs to.
type GroupKey struct {
	SalesOrder string `json:"sales_order"`
	AssetType  string `json:"asset_type"`
	Model      string `json:"model"`
	Warehouse  string `json:"warehouse"`
}

// Key returns the grouping key of o.
func (o Order) Key() GroupKey {
	return GroupKey{
		SalesOrder: o.SalesOrder,
		AssetType:  o.AssetType,
		Model:      o.Model,
		Warehouse:  o.Warehouse,
	}
}
