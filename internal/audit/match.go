// Package audit drives the physical stock audit: resolving scanned tokens
// against the operator's working set and clearing audit flags in bulk.
package audit

import (
	"strconv"
	"strings"

	"github.com/Additional-Code/tally/internal/entity"
	"github.com/Additional-Code/tally/internal/serial"
)

// OutcomeKind classifies a scan.
type OutcomeKind string

const (
	OutcomeMatched        OutcomeKind = "Matched"
	OutcomeFoundElsewhere OutcomeKind = "Found"
	OutcomeNotFound       OutcomeKind = "Not Found"
)

// Outcome is the result of resolving one scanned token.
type Outcome struct {
	Kind OutcomeKind
	// Warehouse is the matched device's warehouse for OutcomeFoundElsewhere.
	Warehouse string
}

// String renders the outcome as shown to operators: "Matched",
// "Found in <warehouse>" or "Not Found".
func (o Outcome) String() string {
	switch o.Kind {
	case OutcomeMatched:
		return string(OutcomeMatched)
	case OutcomeFoundElsewhere:
		return string(entity.FoundIn(o.Warehouse))
	default:
		return string(OutcomeNotFound)
	}
}

// AssetCheck is the flag to persist for the outcome. Not Found has none.
func (o Outcome) AssetCheck() (entity.AssetCheck, bool) {
	switch o.Kind {
	case OutcomeMatched:
		return entity.AssetMatched, true
	case OutcomeFoundElsewhere:
		return entity.FoundIn(o.Warehouse), true
	default:
		return "", false
	}
}

// Match is a resolved scan. Device is nil when nothing matched.
type Match struct {
	Outcome Outcome
	Device  *entity.Device
}

// Resolve looks token up among candidates by normalised serial number or by
// raw device id; the first candidate that matches wins. A match inside one of
// the expected warehouses, or any match when expected is empty, is Matched.
func Resolve(token string, candidates []entity.Device, expected []string) Match {
	t := serial.Normalize(token)
	if t == "" {
		return Match{Outcome: Outcome{Kind: OutcomeNotFound}}
	}

	for i := range candidates {
		d := candidates[i]
		if !tokenMatches(t, d) {
			continue
		}
		if len(expected) == 0 || anyEqualFold(expected, d.Warehouse) {
			return Match{Outcome: Outcome{Kind: OutcomeMatched}, Device: &d}
		}
		return Match{Outcome: Outcome{Kind: OutcomeFoundElsewhere, Warehouse: d.Warehouse}, Device: &d}
	}
	return Match{Outcome: Outcome{Kind: OutcomeNotFound}}
}

func tokenMatches(token string, d entity.Device) bool {
	if s := serial.Normalize(d.SerialNumber); s != "" && s == token {
		return true
	}
	return strings.TrimSpace(token) == strconv.FormatInt(d.ID, 10)
}
