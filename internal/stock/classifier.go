// Package stock derives the effective lifecycle state of device records.
package stock

import (
	"strconv"
	"strings"

	"github.com/Additional-Code/tally/internal/entity"
	"github.com/Additional-Code/tally/internal/serial"
)

// Status is the derived stock state of a device. It is never persisted.
type Status string

const (
	Stock    Status = "Stock"
	Assigned Status = "Assigned"
)

// IdentityKey names the physical unit behind a device row: its normalised
// serial number, or its row id when the serial is blank.
func IdentityKey(d entity.Device) string {
	if s := serial.Normalize(d.SerialNumber); s != "" {
		return "sn:" + s
	}
	return "id:" + strconv.FormatInt(d.ID, 10)
}

// DedupeLatest keeps the most recently created row per identity key.
// Rows with equal created_at resolve to the first one seen.
func DedupeLatest(devices []entity.Device) map[string]entity.Device {
	latest := Latest(devices)
	out := make(map[string]entity.Device, len(latest))
	for _, d := range latest {
		out[IdentityKey(d)] = d
	}
	return out
}

// Latest is DedupeLatest in slice form, ordered by the first appearance of
// each identity key in devices.
func Latest(devices []entity.Device) []entity.Device {
	pos := make(map[string]int, len(devices))
	out := make([]entity.Device, 0, len(devices))
	for _, d := range devices {
		key := IdentityKey(d)
		i, seen := pos[key]
		if !seen {
			pos[key] = len(out)
			out = append(out, d)
			continue
		}
		// A zero created_at sorts as the earliest possible timestamp.
		if d.CreatedAt.After(out[i].CreatedAt) {
			out[i] = d
		}
	}
	return out
}

// IndexOrders maps orders by id.
func IndexOrders(orders []entity.Order) map[int64]entity.Order {
	out := make(map[int64]entity.Order, len(orders))
	for _, o := range orders {
		out[o.ID] = o
	}
	return out
}

// EffectiveStatus is Assigned iff the device is linked to an Outward order.
// When the linked order is not in ordersByID the device's mirrored material
// type stands in for it.
func EffectiveStatus(d entity.Device, ordersByID map[int64]entity.Order) Status {
	if d.OrderID == nil {
		return Stock
	}
	material := d.MaterialType
	if o, ok := ordersByID[*d.OrderID]; ok {
		material = o.MaterialType
	}
	if material == entity.MaterialOutward {
		return Assigned
	}
	return Stock
}

// Exclusions lists asset types and models left out of a physical audit.
type Exclusions struct {
	AssetTypes []string
	Models     []string
}

func (e Exclusions) excludes(d entity.Device) bool {
	return containsFold(e.AssetTypes, d.AssetType) || containsFold(e.Models, d.Model)
}

func containsFold(values []string, v string) bool {
	v = strings.TrimSpace(v)
	for _, candidate := range values {
		if strings.EqualFold(strings.TrimSpace(candidate), v) {
			return true
		}
	}
	return false
}

// InAuditScope reports whether d belongs in the expected audit working set.
func InAuditScope(d entity.Device, ordersByID map[int64]entity.Order, excl Exclusions) bool {
	return EffectiveStatus(d, ordersByID) == Stock && !d.IsDeleted && !excl.excludes(d)
}

// Classifier binds an order snapshot and exclusion lists so callers can
// classify many devices against the same state.
type Classifier struct {
	orders map[int64]entity.Order
	excl   Exclusions
}

// NewClassifier snapshots orders for classification.
func NewClassifier(orders []entity.Order, excl Exclusions) *Classifier {
	return &Classifier{orders: IndexOrders(orders), excl: excl}
}

// Status returns the effective status of d.
func (c *Classifier) Status(d entity.Device) Status {
	return EffectiveStatus(d, c.orders)
}

// InAuditScope reports whether d is part of the audit working set.
func (c *Classifier) InAuditScope(d entity.Device) bool {
	return InAuditScope(d, c.orders, c.excl)
}

// AuditWorkingSet dedupes devices and keeps only in-scope rows, preserving
// first-seen order.
func (c *Classifier) AuditWorkingSet(devices []entity.Device) []entity.Device {
	latest := Latest(devices)
	out := latest[:0]
	for _, d := range latest {
		if c.InAuditScope(d) {
			out = append(out, d)
		}
	}
	return out
}
