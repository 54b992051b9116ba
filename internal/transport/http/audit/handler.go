package audit

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Additional-Code/tally/internal/audit"
	"github.com/Additional-Code/tally/internal/dto"
	"github.com/Additional-Code/tally/internal/entity"
	"github.com/Additional-Code/tally/internal/presentation/http/response"
	service "github.com/Additional-Code/tally/internal/service/audit"
	"github.com/Additional-Code/tally/pkg/errorbank"
)

var httpTracer = otel.Tracer("github.com/Additional-Code/tally/transport/http/audit")

// AuditService runs audit sessions.
type AuditService interface {
	WorkingSet(ctx context.Context, filter audit.Filter) ([]entity.Device, error)
	Scan(ctx context.Context, req service.ScanRequest) (audit.ScanResult, error)
	ClearAll(ctx context.Context, ids []int64) (service.ClearReport, error)
	ClearMatched(ctx context.Context, filter audit.Filter) (service.ClearReport, error)
	RetryClear(ctx context.Context, runID string) (service.ClearReport, error)
	Report(ctx context.Context, runID string) (service.ClearReport, error)
}

// Handler exposes audit endpoints over HTTP.
type Handler struct {
	svc AuditService
}

// NewHandler constructs an audit Handler.
func NewHandler(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

// Register routes with provided Echo group.
func Register(e *echo.Echo, h *Handler) {
	g := e.Group("/audit")
	g.GET("/devices", h.devices)
	g.POST("/scan", h.scan)
	g.POST("/clear", h.clear)
	g.POST("/clear-matched", h.clearMatched)
	g.GET("/clear/:run", h.report)
	g.POST("/clear/:run/retry", h.retry)
}

func (h *Handler) devices(c echo.Context) error {
	b := response.New(c)

	filter, err := audit.ParseFilter(c.QueryParams())
	if err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "audit.devices")
	defer span.End()

	devices, err := h.svc.WorkingSet(ctx, filter)
	if err != nil {
		return b.WithError(err).Build()
	}

	out := make([]dto.DeviceResponse, len(devices))
	for i := range devices {
		out[i] = toDeviceDTO(devices[i])
	}
	return b.WithData(out).WithMeta("total", len(out)).WithMeta("matched", len(audit.MatchedIDs(devices))).Build()
}

func (h *Handler) scan(c echo.Context) error {
	b := response.New(c)

	var payload dto.ScanRequest
	if err := bindAndValidate(c, &payload); err != nil {
		return b.WithError(err).Build()
	}
	filter, err := audit.ParseFilter(payload.Filter)
	if err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "audit.scan", trace.WithAttributes(
		attribute.String("scan.token", payload.Token),
	))
	defer span.End()

	res, err := h.svc.Scan(ctx, service.ScanRequest{
		Token:              payload.Token,
		ExpectedWarehouses: payload.ExpectedWarehouses,
		Filter:             filter,
	})
	if err != nil {
		return b.WithError(err).Build()
	}

	out := dto.ScanResponse{
		Token:     res.Token,
		Outcome:   res.Outcome.String(),
		Status:    res.Status(),
		Persisted: res.Persisted,
	}
	if res.Device != nil {
		d := toDeviceDTO(*res.Device)
		out.Device = &d
	}
	if res.Err != nil {
		out.Error = errorbank.From(res.Err).Message()
	}
	return b.WithData(out).Build()
}

func (h *Handler) clear(c echo.Context) error {
	b := response.New(c)

	var payload dto.ClearRequest
	if err := bindAndValidate(c, &payload); err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "audit.clear", trace.WithAttributes(
		attribute.Int("clear.requested", len(payload.IDs)),
	))
	defer span.End()

	rep, err := h.svc.ClearAll(ctx, payload.IDs)
	return renderReport(b, rep, err)
}

func (h *Handler) clearMatched(c echo.Context) error {
	b := response.New(c)

	var payload dto.ClearMatchedRequest
	if err := bindAndValidate(c, &payload); err != nil {
		return b.WithError(err).Build()
	}
	filter, err := audit.ParseFilter(payload.Filter)
	if err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "audit.clearMatched")
	defer span.End()

	rep, err := h.svc.ClearMatched(ctx, filter)
	return renderReport(b, rep, err)
}

func (h *Handler) retry(c echo.Context) error {
	b := response.New(c)

	ctx, span := httpTracer.Start(c.Request().Context(), "audit.retryClear", trace.WithAttributes(
		attribute.String("clear.run_id", c.Param("run")),
	))
	defer span.End()

	rep, err := h.svc.RetryClear(ctx, c.Param("run"))
	return renderReport(b, rep, err)
}

func (h *Handler) report(c echo.Context) error {
	b := response.New(c)

	rep, err := h.svc.Report(c.Request().Context(), c.Param("run"))
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(toClearDTO(rep)).Build()
}

func bindAndValidate(c echo.Context, payload any) error {
	if err := c.Bind(payload); err != nil {
		return errorbank.BadRequest("invalid payload", errorbank.WithCause(err))
	}
	if c.Echo().Validator == nil {
		return nil
	}
	return c.Validate(payload)
}

// renderReport maps the run outcome onto the status code: a partial run is
// 207 and a run where nothing was written is 502.
func renderReport(b *response.Builder, rep service.ClearReport, err error) error {
	if err != nil {
		return b.WithError(err).Build()
	}
	status := http.StatusOK
	switch rep.Outcome {
	case audit.ClearPartial:
		status = http.StatusMultiStatus
	case audit.ClearFailed:
		status = http.StatusBadGateway
	}
	return b.WithStatus(status).WithData(toClearDTO(rep)).Build()
}

func toDeviceDTO(d entity.Device) dto.DeviceResponse {
	out := dto.DeviceResponse{
		ID:           d.ID,
		SerialNumber: strings.TrimSpace(d.SerialNumber),
		OrderID:      d.OrderID,
		MaterialType: string(d.MaterialType),
		AssetType:    d.AssetType,
		Model:        d.Model,
		Warehouse:    d.Warehouse,
		AssetCheck:   string(d.AssetCheck.Effective()),
		UpdatedBy:    d.UpdatedBy,
	}
	if !d.UpdatedAt.IsZero() {
		at := d.UpdatedAt.UTC().Truncate(time.Millisecond)
		out.UpdatedAt = &at
	}
	return out
}

func toClearDTO(rep service.ClearReport) dto.ClearResponse {
	out := dto.ClearResponse{
		RunID:         rep.RunID,
		ParentRunID:   rep.ParentRunID,
		Outcome:       string(rep.Outcome),
		Requested:     rep.Requested,
		UpdatedIDs:    rep.Updated,
		FailedBatches: make([]dto.FailedBatchResponse, len(rep.FailedBatches)),
		Message:       rep.Message,
	}
	if out.UpdatedIDs == nil {
		out.UpdatedIDs = []int64{}
	}
	for i, fb := range rep.FailedBatches {
		out.FailedBatches[i] = dto.FailedBatchResponse{
			IDs:      fb.IDs,
			Attempts: fb.Attempts,
			Kind:     string(fb.Kind),
			Error:    fb.Error,
		}
	}
	return out
}
