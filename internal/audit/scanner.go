package audit

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/Additional-Code/tally/internal/entity"
	"github.com/Additional-Code/tally/internal/identity"
	"github.com/Additional-Code/tally/internal/inflight"
	"github.com/Additional-Code/tally/internal/retry"
	"github.com/Additional-Code/tally/pkg/errorbank"
)

// DeviceWriter persists audit flag changes.
type DeviceWriter interface {
	// UpdateDevice writes u to one device and returns the stored row.
	UpdateDevice(ctx context.Context, id int64, u entity.AuditUpdate) (*entity.Device, error)
	// UpdateDevices writes u to every id and returns the ids confirmed updated.
	UpdateDevices(ctx context.Context, ids []int64, u entity.AuditUpdate) ([]int64, error)
}

// StatusError is the scan status shown when persisting a match failed.
const StatusError = "Error"

// ScanResult is a resolved scan plus the fate of its persistence call.
type ScanResult struct {
	Token   string
	Outcome Outcome
	// Device is the stored row after a successful write, or the matched
	// candidate when the write failed.
	Device    *entity.Device
	Persisted bool
	// Err is the persistence failure. It never changes Outcome.
	Err error
}

// Status is Outcome rendered for operators, or "Error" when the write failed.
func (r ScanResult) Status() string {
	if r.Err != nil {
		return StatusError
	}
	return r.Outcome.String()
}

// Scanner resolves scans and records the resulting asset check.
type Scanner struct {
	writer DeviceWriter
	guard  inflight.Guard
	policy retry.Policy
	logger *zap.Logger
	now    func() time.Time
}

// NewScanner builds a Scanner. Each confirmed match issues exactly one write.
func NewScanner(writer DeviceWriter, guard inflight.Guard, logger *zap.Logger) *Scanner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if guard == nil {
		guard = inflight.NewLocal()
	}
	return &Scanner{
		writer: writer,
		guard:  guard,
		policy: retry.Single(),
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Scan resolves token against candidates and persists the outcome for a
// matched device. It returns an error only when the caller may not mutate
// devices; write failures are reported in ScanResult.Err.
func (s *Scanner) Scan(ctx context.Context, token string, candidates []entity.Device, expected []string) (ScanResult, error) {
	principal, err := identity.RequireMutator(ctx)
	if err != nil {
		return ScanResult{}, err
	}

	m := Resolve(token, candidates, expected)
	res := ScanResult{Token: token, Outcome: m.Outcome, Device: m.Device}

	check, ok := m.Outcome.AssetCheck()
	if !ok {
		return res, nil
	}

	release, err := s.guard.Acquire(ctx, m.Device.ID)
	if err != nil {
		res.Err = err
		return res, nil
	}
	defer release()

	update := entity.AuditUpdate{AssetCheck: check, UpdatedBy: principal.Email, UpdatedAt: s.now()}
	var stored *entity.Device
	_, err = s.policy.Run(ctx, func(ctx context.Context) error {
		var werr error
		stored, werr = s.writer.UpdateDevice(ctx, m.Device.ID, update)
		return werr
	})
	if err != nil {
		s.logger.Warn("persist asset check failed",
			zap.Int64("device_id", m.Device.ID),
			zap.String("outcome", m.Outcome.String()),
			zap.Error(err),
		)
		res.Err = errorbank.From(err)
		return res, nil
	}

	if stored != nil {
		res.Device = stored
	}
	res.Persisted = true
	return res, nil
}
