package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/Additional-Code/tally"

// Metrics holds the audit and reconciliation counters. A nil *Metrics records
// nothing.
type Metrics struct {
	scans          metric.Int64Counter
	clearedDevices metric.Int64Counter
	failedBatches  metric.Int64Counter
	verdicts       metric.Int64Counter
}

// NewMetrics registers the counters on the manager's meter.
func NewMetrics(m *Manager) (*Metrics, error) {
	meter := m.Meter(meterName)

	scans, err := meter.Int64Counter("tally.audit.scans",
		metric.WithDescription("Scans resolved, by outcome."))
	if err != nil {
		return nil, err
	}
	cleared, err := meter.Int64Counter("tally.audit.cleared_devices",
		metric.WithDescription("Devices whose asset check was reset to Unmatched."))
	if err != nil {
		return nil, err
	}
	failed, err := meter.Int64Counter("tally.audit.failed_batches",
		metric.WithDescription("Clear batches that were not written."))
	if err != nil {
		return nil, err
	}
	verdicts, err := meter.Int64Counter("tally.reconcile.verdicts",
		metric.WithDescription("Order reconciliation verdicts, by status."))
	if err != nil {
		return nil, err
	}

	return &Metrics{
		scans:          scans,
		clearedDevices: cleared,
		failedBatches:  failed,
		verdicts:       verdicts,
	}, nil
}

// RecordScan counts one scan with its operator-facing status.
func (m *Metrics) RecordScan(ctx context.Context, status string) {
	if m == nil {
		return
	}
	m.scans.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", status)))
}

// RecordClear counts cleared devices and failed batches of one run.
func (m *Metrics) RecordClear(ctx context.Context, cleared, failedBatches int) {
	if m == nil {
		return
	}
	if cleared > 0 {
		m.clearedDevices.Add(ctx, int64(cleared))
	}
	if failedBatches > 0 {
		m.failedBatches.Add(ctx, int64(failedBatches))
	}
}

// RecordVerdicts adds per-status verdict counts.
func (m *Metrics) RecordVerdicts(ctx context.Context, counts map[string]int) {
	if m == nil {
		return
	}
	for status, n := range counts {
		if n > 0 {
			m.verdicts.Add(ctx, int64(n), metric.WithAttributes(attribute.String("status", status)))
		}
	}
}
