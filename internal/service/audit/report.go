package audit

import (
	"context"
	"errors"
	"time"

	"github.com/Additional-Code/tally/internal/audit"
	"github.com/Additional-Code/tally/internal/cache"
	"github.com/Additional-Code/tally/pkg/errorbank"
)

// BatchReport is a failed batch as kept in a clear report.
type BatchReport struct {
	IDs      []int64        `json:"ids"`
	Attempts int            `json:"attempts"`
	Kind     errorbank.Kind `json:"kind"`
	Error    string         `json:"error"`
}

// ClearReport is the stored outcome of one clear run. Failed ids can be
// retried by run id until the report expires.
type ClearReport struct {
	RunID         string             `json:"run_id"`
	ParentRunID   string             `json:"parent_run_id,omitempty"`
	Outcome       audit.ClearOutcome `json:"outcome"`
	Requested     int                `json:"requested"`
	Updated       []int64            `json:"updated_ids"`
	FailedBatches []BatchReport      `json:"failed_batches"`
	Message       string             `json:"message"`
	CreatedBy     string             `json:"created_by,omitempty"`
	CreatedAt     time.Time          `json:"created_at"`
}

// FailedIDs flattens the failed batches.
func (r ClearReport) FailedIDs() []int64 {
	var out []int64
	for _, b := range r.FailedBatches {
		out = append(out, b.IDs...)
	}
	return out
}

func newReport(runID string, res audit.ClearResult, createdBy string, at time.Time) ClearReport {
	rep := ClearReport{
		RunID:         runID,
		Outcome:       res.Outcome,
		Requested:     res.Requested,
		Updated:       res.Updated,
		FailedBatches: make([]BatchReport, 0, len(res.FailedBatches)),
		Message:       res.Message,
		CreatedBy:     createdBy,
		CreatedAt:     at,
	}
	if rep.Updated == nil {
		rep.Updated = []int64{}
	}
	for _, b := range res.FailedBatches {
		appErr := errorbank.From(b.Err)
		br := BatchReport{IDs: b.IDs, Attempts: b.Attempts, Kind: errorbank.KindInternal, Error: "unknown error"}
		if appErr != nil {
			br.Kind = appErr.Kind()
			br.Error = appErr.Error()
		}
		rep.FailedBatches = append(rep.FailedBatches, br)
	}
	return rep
}

func reportKey(runID string) string {
	return "tally:audit:clear:" + runID
}

func (s *Service) saveReport(ctx context.Context, rep ClearReport) error {
	return cache.SetJSON(ctx, s.reports, reportKey(rep.RunID), rep, s.reportTTL)
}

// Report loads a stored clear report.
func (s *Service) Report(ctx context.Context, runID string) (ClearReport, error) {
	if runID == "" {
		return ClearReport{}, errorbank.BadRequest("run id is required")
	}
	var rep ClearReport
	err := cache.GetJSON(ctx, s.reports, reportKey(runID), &rep)
	if errors.Is(err, cache.ErrCacheMiss) {
		return ClearReport{}, errorbank.NotFound("clear run not found or expired", errorbank.WithDetail("run_id", runID))
	}
	if err != nil {
		return ClearReport{}, errorbank.Unavailable("load clear report", errorbank.WithCause(err))
	}
	return rep, nil
}
