// Package reconcile decides whether an order's declared serial numbers were
// materialised as device records.
//
// Verdicts are recomputed from the current order and device snapshot on every
// call and never cached or persisted. Validation problems are reported as
// Failed or Pending verdicts with a readable explanation; nothing in this
// package returns an error.
package reconcile

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/Additional-Code/tally/internal/entity"
	"github.com/Additional-Code/tally/internal/serial"
)

// Status is the reconciliation verdict of a single order.
type Status string

const (
	Success Status = "Success"
	Failed  Status = "Failed"
	Pending Status = "Pending"
)

// severity orders statuses from best to worst for group roll-ups.
func (s Status) severity() int {
	switch s {
	case Failed:
		return 2
	case Pending:
		return 1
	default:
		return 0
	}
}

// Verdict is a status with the reason behind it.
type Verdict struct {
	Status  Status `json:"status"`
	Details string `json:"details"`
}

// Result attaches a verdict to the order it was computed for. The order is a
// copy; it is never modified.
type Result struct {
	Order   entity.Order `json:"order"`
	Verdict Verdict      `json:"verdict"`
}

// Options tunes a reconciliation run.
type Options struct {
	// CrossOrderDuplicates fails orders whose declared serials also appear on
	// another non-deleted order with the same material type.
	CrossOrderDuplicates bool
}

// Reconcile computes one verdict per order, in input order.
func Reconcile(orders []entity.Order, devices []entity.Device, opts Options) []Result {
	realized := RealizedSerials(devices)

	var declaredBy map[string][]orderRef
	if opts.CrossOrderDuplicates {
		declaredBy = indexDeclared(orders)
	}

	results := make([]Result, 0, len(orders))
	for _, o := range orders {
		v := ReconcileOrder(o, realized[o.ID])
		if declaredBy != nil && v.Status != Pending && !isDuplicateVerdict(v) {
			if details, ok := crossOrderDetails(o, declaredBy); ok {
				v = Verdict{Status: Failed, Details: details}
			}
		}
		results = append(results, Result{Order: o, Verdict: v})
	}
	return results
}

// RealizedSerials collects the normalised, non-blank serial numbers of
// devices per linked order id.
func RealizedSerials(devices []entity.Device) map[int64][]string {
	out := make(map[int64][]string)
	for _, d := range devices {
		if d.OrderID == nil {
			continue
		}
		s := serial.Normalize(d.SerialNumber)
		if s == "" {
			continue
		}
		out[*d.OrderID] = append(out[*d.OrderID], s)
	}
	return out
}

// ReconcileOrder applies the verdict rules to one order. realized holds the
// normalised serials of the devices linked to o. The first failing rule wins:
// blank declarations, duplicates, declared count, device count, then content.
func ReconcileOrder(o entity.Order, realized []string) Verdict {
	declared := serial.NormalizeAll(o.SerialNumbers)
	present := nonBlank(declared)

	if len(present) == 0 {
		return Verdict{Status: Pending, Details: "No serial numbers provided"}
	}

	if dups := duplicates(present); len(dups) > 0 {
		return Verdict{Status: Failed, Details: duplicatePrefix + strings.Join(dups, ", ")}
	}

	if len(present) != o.Quantity {
		return Verdict{Status: Failed, Details: countDetails(declared, len(present), o.Quantity)}
	}

	if len(realized) != o.Quantity {
		return Verdict{
			Status:  Failed,
			Details: fmt.Sprintf("Device count mismatch: Expected %d, got %d", o.Quantity, len(realized)),
		}
	}

	have := make(map[string]struct{}, len(realized))
	for _, s := range realized {
		have[s] = struct{}{}
	}
	var missing []string
	for _, s := range present {
		if _, ok := have[s]; !ok {
			missing = append(missing, s)
		}
	}
	if len(missing) > 0 {
		return Verdict{
			Status:  Failed,
			Details: "Serial numbers without matching devices: " + strings.Join(missing, ", "),
		}
	}

	return Verdict{
		Status:  Success,
		Details: fmt.Sprintf("All %d serial numbers present and valid", o.Quantity),
	}
}

const duplicatePrefix = "Duplicate serial numbers: "

func isDuplicateVerdict(v Verdict) bool {
	return v.Status == Failed && strings.HasPrefix(v.Details, duplicatePrefix)
}

func nonBlank(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

// duplicates lists each repeated value once, in the order its second
// occurrence appears.
func duplicates(values []string) []string {
	seen := make(map[string]int, len(values))
	var out []string
	for _, v := range values {
		seen[v]++
		if seen[v] == 2 {
			out = append(out, v)
		}
	}
	return out
}

func countDetails(declared []string, got, expected int) string {
	if got > expected {
		return fmt.Sprintf("Too many serial numbers (Expected %d, got %d)", expected, got)
	}

	missing := expected - got
	var positions []string
	for i, v := range declared {
		if v == "" {
			positions = append(positions, strconv.Itoa(i+1))
		}
	}
	for i := len(declared); i < expected; i++ {
		positions = append(positions, strconv.Itoa(i+1))
	}

	noun := "serial number"
	if missing != 1 {
		noun += "s"
	}
	if len(positions) == 0 {
		return fmt.Sprintf("Missing %d %s (Expected %d, got %d)", missing, noun, expected, got)
	}
	label := "position"
	if len(positions) > 1 {
		label = "positions"
	}
	return fmt.Sprintf("Missing %d %s at %s %s (Expected %d, got %d)",
		missing, noun, label, strings.Join(positions, ", "), expected, got)
}

type orderRef struct {
	id       int64
	material entity.MaterialType
}

func indexDeclared(orders []entity.Order) map[string][]orderRef {
	out := make(map[string][]orderRef)
	for _, o := range orders {
		if o.IsDeleted {
			continue
		}
		seen := make(map[string]struct{}, len(o.SerialNumbers))
		for _, raw := range o.SerialNumbers {
			s := serial.Normalize(raw)
			if s == "" {
				continue
			}
			if _, dup := seen[s]; dup {
				continue
			}
			seen[s] = struct{}{}
			out[s] = append(out[s], orderRef{id: o.ID, material: o.MaterialType})
		}
	}
	return out
}

func crossOrderDetails(o entity.Order, declaredBy map[string][]orderRef) (string, bool) {
	var parts []string
	seen := make(map[string]struct{})
	for _, s := range nonBlank(serial.NormalizeAll(o.SerialNumbers)) {
		if _, done := seen[s]; done {
			continue
		}
		seen[s] = struct{}{}

		var others []int64
		for _, ref := range declaredBy[s] {
			if ref.id != o.ID && ref.material == o.MaterialType {
				others = append(others, ref.id)
			}
		}
		if len(others) == 0 {
			continue
		}
		sort.Slice(others, func(i, j int) bool { return others[i] < others[j] })
		ids := make([]string, len(others))
		for i, id := range others {
			ids[i] = strconv.FormatInt(id, 10)
		}
		label := "order"
		if len(ids) > 1 {
			label = "orders"
		}
		parts = append(parts, fmt.Sprintf("%s (%s %s)", s, label, strings.Join(ids, ", ")))
	}
	if len(parts) == 0 {
		return "", false
	}
	return "Serial numbers declared on other orders: " + strings.Join(parts, ", "), true
}

// Count tallies results by status.
func Count(results []Result) map[Status]int {
	out := map[Status]int{Success: 0, Failed: 0, Pending: 0}
	for _, r := range results {
		out[r.Verdict.Status]++
	}
	return out
}
