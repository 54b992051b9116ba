package audit

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Additional-Code/tally/internal/entity"
	"github.com/Additional-Code/tally/internal/identity"
	"github.com/Additional-Code/tally/internal/inflight"
	"github.com/Additional-Code/tally/internal/retry"
	"github.com/Additional-Code/tally/pkg/errorbank"
)

// DefaultChunkSize is the number of devices written per bulk update.
const DefaultChunkSize = 50

// ClearOutcome summarises a ClearAll run.
type ClearOutcome string

const (
	ClearNoop      ClearOutcome = "noop"
	ClearSucceeded ClearOutcome = "succeeded"
	ClearPartial   ClearOutcome = "partial"
	ClearFailed    ClearOutcome = "failed"
)

// FailedBatch is a group of ids whose update did not go through.
type FailedBatch struct {
	IDs []int64
	// Attempts is how many writes were tried; zero when the ids were busy.
	Attempts int
	Err      error
}

// ClearResult reports which ids were reset to Unmatched. Ids in failed
// batches keep their previous asset check.
type ClearResult struct {
	Outcome       ClearOutcome
	Requested     int
	Updated       []int64
	FailedBatches []FailedBatch
	Message       string
}

// FailedIDs flattens the failed batches.
func (r ClearResult) FailedIDs() []int64 {
	var out []int64
	for _, b := range r.FailedBatches {
		out = append(out, b.IDs...)
	}
	return out
}

// Clearer resets audit flags in chunks with bounded retries per chunk.
type Clearer struct {
	writer    DeviceWriter
	guard     inflight.Guard
	policy    retry.Policy
	chunkSize int
	logger    *zap.Logger
	now       func() time.Time
}

// ClearerOption customises a Clearer.
type ClearerOption func(*Clearer)

// WithChunkSize overrides DefaultChunkSize.
func WithChunkSize(n int) ClearerOption {
	return func(c *Clearer) {
		if n > 0 {
			c.chunkSize = n
		}
	}
}

// WithPolicy overrides the per-chunk retry policy.
func WithPolicy(p retry.Policy) ClearerOption {
	return func(c *Clearer) {
		c.policy = p
	}
}

// WithClock overrides the timestamp source for updated_at.
func WithClock(now func() time.Time) ClearerOption {
	return func(c *Clearer) {
		c.now = now
	}
}

// NewClearer builds a Clearer with 50-id chunks and the default retry policy.
func NewClearer(writer DeviceWriter, guard inflight.Guard, logger *zap.Logger, opts ...ClearerOption) *Clearer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if guard == nil {
		guard = inflight.NewLocal()
	}
	c := &Clearer{
		writer:    writer,
		guard:     guard,
		policy:    retry.Default(),
		chunkSize: DefaultChunkSize,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ClearAll resets the asset check of every id to Unmatched. Chunks run in
// order and a chunk that exhausts its retries does not stop the rest. The
// returned error is reserved for permission failures, raised before any write.
func (c *Clearer) ClearAll(ctx context.Context, ids []int64) (ClearResult, error) {
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return ClearResult{Outcome: ClearNoop, Message: "nothing to clear"}, nil
	}

	principal, err := identity.RequireMutator(ctx)
	if err != nil {
		return ClearResult{}, err
	}

	update := entity.AuditUpdate{
		AssetCheck: entity.AssetUnmatched,
		UpdatedBy:  principal.Email,
		UpdatedAt:  c.now(),
	}
	res := ClearResult{Requested: len(ids)}

	if len(ids) == 1 {
		c.clearOne(ctx, ids[0], update, &res)
	} else {
		for i, chunk := range chunkIDs(ids, c.chunkSize) {
			c.clearChunk(ctx, i, chunk, update, &res)
		}
	}

	res.Outcome, res.Message = summarise(res)
	c.logger.Info("audit clear finished",
		zap.String("outcome", string(res.Outcome)),
		zap.Int("requested", res.Requested),
		zap.Int("updated", len(res.Updated)),
		zap.Int("failed_batches", len(res.FailedBatches)),
	)
	return res, nil
}

func (c *Clearer) clearOne(ctx context.Context, id int64, update entity.AuditUpdate, res *ClearResult) {
	release, err := c.guard.Acquire(ctx, id)
	if err != nil {
		res.FailedBatches = append(res.FailedBatches, FailedBatch{IDs: []int64{id}, Err: err})
		return
	}
	defer release()

	if _, err := c.writer.UpdateDevice(ctx, id, update); err != nil {
		res.FailedBatches = append(res.FailedBatches, FailedBatch{IDs: []int64{id}, Attempts: 1, Err: err})
		return
	}
	res.Updated = append(res.Updated, id)
}

func (c *Clearer) clearChunk(ctx context.Context, index int, chunk []int64, update entity.AuditUpdate, res *ClearResult) {
	held, busyIDs, release, err := inflight.AcquireAll(ctx, c.guard, chunk)
	defer release()
	if err != nil {
		res.FailedBatches = append(res.FailedBatches, FailedBatch{IDs: chunk, Err: err})
		return
	}
	if len(busyIDs) > 0 {
		res.FailedBatches = append(res.FailedBatches, FailedBatch{
			IDs: busyIDs,
			Err: errorbank.Conflict("device update already in flight", errorbank.WithCause(inflight.ErrBusy)),
		})
	}
	if len(held) == 0 {
		return
	}

	var confirmed []int64
	attempts, err := c.policy.Run(ctx, func(ctx context.Context) error {
		var werr error
		confirmed, werr = c.writer.UpdateDevices(ctx, held, update)
		if werr != nil {
			c.logger.Debug("audit clear chunk attempt failed",
				zap.Int("chunk", index), zap.Int("size", len(held)), zap.Error(werr))
		}
		return werr
	})
	if err != nil {
		c.logger.Warn("audit clear chunk exhausted",
			zap.Int("chunk", index),
			zap.Int("size", len(held)),
			zap.Int("attempts", attempts),
			zap.Error(err),
		)
		res.FailedBatches = append(res.FailedBatches, FailedBatch{IDs: held, Attempts: attempts, Err: err})
		return
	}

	ok := make(map[int64]struct{}, len(confirmed))
	for _, id := range confirmed {
		ok[id] = struct{}{}
	}
	var unconfirmed []int64
	for _, id := range held {
		if _, done := ok[id]; done {
			res.Updated = append(res.Updated, id)
		} else {
			unconfirmed = append(unconfirmed, id)
		}
	}
	if len(unconfirmed) > 0 {
		res.FailedBatches = append(res.FailedBatches, FailedBatch{
			IDs:      unconfirmed,
			Attempts: attempts,
			Err:      errorbank.NotFound("devices not found or deleted"),
		})
	}
}

func summarise(res ClearResult) (ClearOutcome, string) {
	failed := res.Requested - len(res.Updated)
	switch {
	case failed == 0:
		return ClearSucceeded, fmt.Sprintf("cleared %d devices", len(res.Updated))
	case len(res.Updated) == 0:
		return ClearFailed, fmt.Sprintf("failed to clear %d devices in %d batches", failed, len(res.FailedBatches))
	default:
		return ClearPartial, fmt.Sprintf("cleared %d of %d devices; %d failed in %d batches",
			len(res.Updated), res.Requested, failed, len(res.FailedBatches))
	}
}

func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func chunkIDs(ids []int64, size int) [][]int64 {
	if size <= 0 {
		size = DefaultChunkSize
	}
	out := make([][]int64, 0, (len(ids)+size-1)/size)
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		out = append(out, ids[start:end])
	}
	return out
}
