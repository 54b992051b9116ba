package audit

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/tally/internal/audit"
	"github.com/Additional-Code/tally/internal/cache"
	"github.com/Additional-Code/tally/internal/config"
	"github.com/Additional-Code/tally/internal/entity"
	"github.com/Additional-Code/tally/internal/identity"
	"github.com/Additional-Code/tally/internal/inflight"
	"github.com/Additional-Code/tally/internal/messaging"
	"github.com/Additional-Code/tally/internal/observability"
	devicerepo "github.com/Additional-Code/tally/internal/repository/device"
	orderrepo "github.com/Additional-Code/tally/internal/repository/order"
	"github.com/Additional-Code/tally/internal/retry"
	"github.com/Additional-Code/tally/internal/serial"
	"github.com/Additional-Code/tally/internal/stock"
	"github.com/Additional-Code/tally/pkg/errorbank"
)

var serviceTracer = otel.Tracer("github.com/Additional-Code/tally/service/audit")

// DeviceStore reads devices and writes their audit flags.
type DeviceStore interface {
	audit.DeviceWriter
	ListDevices(ctx context.Context, q devicerepo.Query) ([]entity.Device, error)
}

// OrderReader lists orders.
type OrderReader interface {
	ListOrders(ctx context.Context, q orderrepo.Query) ([]entity.Order, error)
}

// ScanRequest is one scanned token and the audit session it belongs to.
type ScanRequest struct {
	Token string
	// ExpectedWarehouses are the warehouses being audited; empty accepts any.
	ExpectedWarehouses []string
	// Filter narrows the working set the token is looked up in.
	Filter audit.Filter
}

// Service runs audit sessions against stored devices.
type Service struct {
	devices   DeviceStore
	orders    OrderReader
	scanner   *audit.Scanner
	clearer   *audit.Clearer
	debouncer *audit.Debouncer
	reports   cache.Store
	reportTTL time.Duration
	publisher messaging.Client
	metrics   *observability.Metrics
	excl      stock.Exclusions
	logger    *zap.Logger
	newRunID  func() string
	now       func() time.Time
}

// Params defines dependencies for constructing Service.
type Params struct {
	fx.In

	Devices   *devicerepo.Repository
	Orders    *orderrepo.Repository
	Guard     inflight.Guard
	Cache     cache.Store
	Publisher messaging.Client
	Metrics   *observability.Metrics `optional:"true"`
	Config    config.Config
	Logger    *zap.Logger
}

// NewService wires a new Service instance.
func NewService(p Params) *Service {
	return New(Deps{
		Devices:   p.Devices,
		Orders:    p.Orders,
		Guard:     p.Guard,
		Reports:   p.Cache,
		Publisher: p.Publisher,
		Metrics:   p.Metrics,
		Audit:     p.Config.Audit,
		Logger:    p.Logger,
	})
}

// Deps are the collaborators of New. Publisher and Metrics may be nil.
type Deps struct {
	Devices   DeviceStore
	Orders    OrderReader
	Guard     inflight.Guard
	Reports   cache.Store
	Publisher messaging.Client
	Metrics   *observability.Metrics
	Audit     config.Audit
	Logger    *zap.Logger
}

// New builds a Service.
func New(d Deps) *Service {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	guard := d.Guard
	if guard == nil {
		guard = inflight.NewLocal()
	}
	policy := retry.Default()
	if d.Audit.MaxAttempts > 0 {
		policy.Attempts = d.Audit.MaxAttempts
	}
	if d.Audit.RetryBackoff > 0 {
		policy.Backoff = d.Audit.RetryBackoff
	}

	return &Service{
		devices:   d.Devices,
		orders:    d.Orders,
		scanner:   audit.NewScanner(d.Devices, guard, logger),
		clearer:   audit.NewClearer(d.Devices, guard, logger, audit.WithChunkSize(d.Audit.ChunkSize), audit.WithPolicy(policy)),
		debouncer: audit.NewDebouncer(d.Audit.ScanDebounce),
		reports:   d.Reports,
		reportTTL: d.Audit.ReportTTL,
		publisher: d.Publisher,
		metrics:   d.Metrics,
		excl:      stock.Exclusions{AssetTypes: d.Audit.ExcludedAssetTypes, Models: d.Audit.ExcludedModels},
		logger:    logger,
		newRunID:  func() string { return uuid.NewString() },
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WorkingSet returns the in-stock, non-excluded devices that pass filter,
// one row per physical device.
func (s *Service) WorkingSet(ctx context.Context, filter audit.Filter) ([]entity.Device, error) {
	ctx, span := serviceTracer.Start(ctx, "AuditService.WorkingSet", trace.WithAttributes(
		attribute.Int("filter.fields", len(filter)),
	))
	defer span.End()

	orders, err := s.orders.ListOrders(ctx, orderrepo.Query{})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list orders failed")
		return nil, errorbank.From(err)
	}
	// deleted rows must take part in dedup so a deleted newest row hides
	// older live copies of the same unit
	devices, err := s.devices.ListDevices(ctx, devicerepo.Query{IncludeDeleted: true})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list devices failed")
		return nil, errorbank.From(err)
	}

	set := stock.NewClassifier(orders, s.excl).AuditWorkingSet(devices)
	set = filter.Apply(set)
	span.SetAttributes(attribute.Int("devices.count", len(set)))
	return set, nil
}

// Scan resolves a scanned token against the current working set and records
// the outcome. Repeats of the same scan inside the debounce window return
// the first result without another write.
func (s *Service) Scan(ctx context.Context, req ScanRequest) (audit.ScanResult, error) {
	principal, err := identity.RequireMutator(ctx)
	if err != nil {
		return audit.ScanResult{}, err
	}

	ctx, span := serviceTracer.Start(ctx, "AuditService.Scan", trace.WithAttributes(
		attribute.String("scan.token", req.Token),
	))
	defer span.End()

	// the write outlives a client that hangs up mid-scan
	ctx = context.WithoutCancel(ctx)

	res, shared, err := s.debouncer.Do(scanKey(principal.Email, req), func() (audit.ScanResult, error) {
		candidates, err := s.WorkingSet(ctx, req.Filter)
		if err != nil {
			return audit.ScanResult{}, err
		}
		res, err := s.scanner.Scan(ctx, req.Token, candidates, req.ExpectedWarehouses)
		if err != nil {
			return res, err
		}
		s.metrics.RecordScan(ctx, res.Status())
		if res.Persisted {
			s.publish(ctx, scanEvent(res))
		}
		return res, nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "scan failed")
		return audit.ScanResult{}, err
	}

	span.SetAttributes(
		attribute.String("scan.status", res.Status()),
		attribute.Bool("scan.persisted", res.Persisted),
		attribute.Bool("scan.debounced", shared),
	)
	s.logger.Debug("scan resolved",
		zap.String("token", req.Token),
		zap.String("status", res.Status()),
		zap.Bool("debounced", shared),
	)
	return res, nil
}

// ClearAll resets the asset check of ids and stores the run report.
func (s *Service) ClearAll(ctx context.Context, ids []int64) (ClearReport, error) {
	return s.clear(ctx, ids, "")
}

// ClearMatched clears every device in the filtered working set whose asset
// check is currently set.
func (s *Service) ClearMatched(ctx context.Context, filter audit.Filter) (ClearReport, error) {
	if _, err := identity.RequireMutator(ctx); err != nil {
		return ClearReport{}, err
	}
	set, err := s.WorkingSet(ctx, filter)
	if err != nil {
		return ClearReport{}, err
	}
	return s.clear(ctx, audit.MatchedIDs(set), "")
}

// RetryClear clears the failed ids of an earlier run.
func (s *Service) RetryClear(ctx context.Context, runID string) (ClearReport, error) {
	if _, err := identity.RequireMutator(ctx); err != nil {
		return ClearReport{}, err
	}
	prev, err := s.Report(ctx, runID)
	if err != nil {
		return ClearReport{}, err
	}
	return s.clear(ctx, prev.FailedIDs(), prev.RunID)
}

func (s *Service) clear(ctx context.Context, ids []int64, parent string) (ClearReport, error) {
	ctx, span := serviceTracer.Start(ctx, "AuditService.Clear", trace.WithAttributes(
		attribute.Int("clear.requested", len(ids)),
		attribute.String("clear.parent_run_id", parent),
	))
	defer span.End()

	ctx = context.WithoutCancel(ctx)
	res, err := s.clearer.ClearAll(ctx, ids)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "clear rejected")
		return ClearReport{}, err
	}

	email, _ := identity.CurrentUserEmail(ctx)
	rep := newReport(s.newRunID(), res, email, s.now())
	rep.ParentRunID = parent

	s.metrics.RecordClear(ctx, len(res.Updated), len(res.FailedBatches))
	span.SetAttributes(
		attribute.String("clear.run_id", rep.RunID),
		attribute.String("clear.outcome", string(rep.Outcome)),
		attribute.Int("clear.updated", len(rep.Updated)),
	)

	if res.Outcome == audit.ClearNoop {
		rep.RunID = ""
		return rep, nil
	}
	if err := s.saveReport(ctx, rep); err != nil {
		s.logger.Warn("store clear report failed", zap.String("run_id", rep.RunID), zap.Error(err))
	}
	s.publish(ctx, clearEvents(rep)...)
	return rep, nil
}

func (s *Service) publish(ctx context.Context, events ...messaging.AssetCheckChanged) {
	if s.publisher == nil || len(events) == 0 {
		return
	}
	if err := messaging.PublishAssetChecks(ctx, s.publisher, events...); err != nil {
		s.logger.Warn("publish asset check events failed", zap.Int("events", len(events)), zap.Error(err))
	}
}

func scanEvent(res audit.ScanResult) messaging.AssetCheckChanged {
	d := res.Device
	return messaging.AssetCheckChanged{
		DeviceID:     d.ID,
		SerialNumber: d.SerialNumber,
		Warehouse:    d.Warehouse,
		AssetCheck:   string(d.AssetCheck),
		UpdatedBy:    d.UpdatedBy,
		UpdatedAt:    d.UpdatedAt,
		Source:       messaging.SourceScan,
	}
}

func clearEvents(rep ClearReport) []messaging.AssetCheckChanged {
	out := make([]messaging.AssetCheckChanged, 0, len(rep.Updated))
	for _, id := range rep.Updated {
		out = append(out, messaging.AssetCheckChanged{
			DeviceID:   id,
			AssetCheck: string(entity.AssetUnmatched),
			UpdatedBy:  rep.CreatedBy,
			UpdatedAt:  rep.CreatedAt,
			Source:     messaging.SourceClear,
		})
	}
	return out
}

func scanKey(email string, req ScanRequest) string {
	var b strings.Builder
	b.WriteString(strings.ToLower(email))
	b.WriteByte('|')
	b.WriteString(serial.Normalize(req.Token))
	b.WriteByte('|')
	b.WriteString(strings.ToUpper(strings.Join(req.ExpectedWarehouses, ",")))
	for _, f := range audit.Fields() {
		if values := req.Filter[f]; len(values) > 0 {
			b.WriteString("|" + string(f) + "=" + strings.ToUpper(strings.Join(values, ",")))
		}
	}
	return b.String()
}
