package order

import (
	"context"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Additional-Code/tally/internal/dto"
	"github.com/Additional-Code/tally/internal/presentation/http/response"
	"github.com/Additional-Code/tally/internal/reconcile"
	service "github.com/Additional-Code/tally/internal/service/order"
	"github.com/Additional-Code/tally/pkg/errorbank"
)

var httpTracer = otel.Tracer("github.com/Additional-Code/tally/transport/http/order")

// StatusService computes order verdicts.
type StatusService interface {
	Statuses(ctx context.Context, q service.StatusQuery) ([]reconcile.Result, error)
	Groups(ctx context.Context, q service.StatusQuery) ([]reconcile.GroupResult, error)
}

// Handler exposes order status endpoints over HTTP.
type Handler struct {
	svc StatusService
}

// NewHandler constructs an order Handler.
func NewHandler(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

// Register routes with provided Echo group.
func Register(e *echo.Echo, h *Handler) {
	g := e.Group("/orders")
	g.GET("/status", h.statuses)
	g.GET("/groups", h.groups)
}

func (h *Handler) statuses(c echo.Context) error {
	b := response.New(c)

	q, err := parseQuery(c)
	if err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.statuses", trace.WithAttributes(
		attribute.String("order.sales_order", q.SalesOrder),
	))
	defer span.End()

	results, err := h.svc.Statuses(ctx, q)
	if err != nil {
		return b.WithError(err).Build()
	}

	out := make([]dto.OrderStatusResponse, len(results))
	for i, r := range results {
		out[i] = toStatusDTO(r)
	}
	return b.WithData(out).WithMeta("counts", countsMeta(reconcile.Count(results))).Build()
}

func (h *Handler) groups(c echo.Context) error {
	b := response.New(c)

	q, err := parseQuery(c)
	if err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.groups")
	defer span.End()

	groups, err := h.svc.Groups(ctx, q)
	if err != nil {
		return b.WithError(err).Build()
	}

	out := make([]dto.OrderGroupResponse, len(groups))
	for i, g := range groups {
		out[i] = toGroupDTO(g)
	}
	return b.WithData(out).Build()
}

func parseQuery(c echo.Context) (service.StatusQuery, error) {
	q := service.StatusQuery{SalesOrder: c.QueryParam("sales_order")}
	var err error
	if q.IncludeDeleted, err = boolParam(c, "include_deleted"); err != nil {
		return q, err
	}
	if q.CrossOrder, err = boolParam(c, "cross_order"); err != nil {
		return q, err
	}
	return q, nil
}

func boolParam(c echo.Context, name string) (bool, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, errorbank.BadRequest("invalid "+name, errorbank.WithCause(err))
	}
	return v, nil
}

func toStatusDTO(r reconcile.Result) dto.OrderStatusResponse {
	o := r.Order
	serials := o.SerialNumbers
	if serials == nil {
		serials = []string{}
	}
	return dto.OrderStatusResponse{
		ID:            o.ID,
		SalesOrder:    o.SalesOrder,
		AssetType:     o.AssetType,
		Model:         o.Model,
		Warehouse:     o.Warehouse,
		Quantity:      o.Quantity,
		MaterialType:  string(o.MaterialType),
		SerialNumbers: serials,
		IsDeleted:     o.IsDeleted,
		Status:        string(r.Verdict.Status),
		Details:       r.Verdict.Details,
	}
}

func toGroupDTO(g reconcile.GroupResult) dto.OrderGroupResponse {
	orders := make([]dto.OrderStatusResponse, len(g.Results))
	for i, r := range g.Results {
		orders[i] = toStatusDTO(r)
	}
	return dto.OrderGroupResponse{
		SalesOrder: g.Key.SalesOrder,
		AssetType:  g.Key.AssetType,
		Model:      g.Key.Model,
		Warehouse:  g.Key.Warehouse,
		Status:     string(g.Status),
		Quantity:   g.Quantity,
		Succeeded:  g.Succeeded,
		Failed:     g.Failed,
		Pending:    g.Pending,
		Orders:     orders,
	}
}

func countsMeta(counts map[reconcile.Status]int) map[string]int {
	out := make(map[string]int, len(counts))
	for status, n := range counts {
		out[string(status)] = n
	}
	return out
}
