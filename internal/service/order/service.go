package order

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/tally/internal/entity"
	"github.com/Additional-Code/tally/internal/observability"
	"github.com/Additional-Code/tally/internal/reconcile"
	devicerepo "github.com/Additional-Code/tally/internal/repository/device"
	orderrepo "github.com/Additional-Code/tally/internal/repository/order"
	"github.com/Additional-Code/tally/pkg/errorbank"
)

var serviceTracer = otel.Tracer("github.com/Additional-Code/tally/service/order")

// OrderReader lists orders.
type OrderReader interface {
	ListOrders(ctx context.Context, q orderrepo.Query) ([]entity.Order, error)
}

// DeviceReader lists devices.
type DeviceReader interface {
	ListDevices(ctx context.Context, q devicerepo.Query) ([]entity.Device, error)
}

// StatusQuery selects the orders to reconcile.
type StatusQuery struct {
	SalesOrder     string
	IncludeDeleted bool
	// CrossOrder also fails orders whose serials are declared elsewhere.
	CrossOrder bool
}

// Service computes order status verdicts from stored orders and devices.
type Service struct {
	orders  OrderReader
	devices DeviceReader
	metrics *observability.Metrics
	logger  *zap.Logger
}

// Params defines dependencies for constructing Service.
type Params struct {
	fx.In

	Orders  *orderrepo.Repository
	Devices *devicerepo.Repository
	Metrics *observability.Metrics `optional:"true"`
	Logger  *zap.Logger
}

// NewService wires a new Service instance.
func NewService(p Params) *Service {
	return New(p.Orders, p.Devices, p.Metrics, p.Logger)
}

// New builds a Service from its readers. metrics may be nil.
func New(orders OrderReader, devices DeviceReader, metrics *observability.Metrics, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{orders: orders, devices: devices, metrics: metrics, logger: logger}
}

// Statuses returns one verdict per selected order, by ascending order id.
func (s *Service) Statuses(ctx context.Context, q StatusQuery) ([]reconcile.Result, error) {
	ctx, span := serviceTracer.Start(ctx, "OrderService.Statuses", trace.WithAttributes(
		attribute.String("order.sales_order", q.SalesOrder),
		attribute.Bool("include_deleted", q.IncludeDeleted),
		attribute.Bool("cross_order", q.CrossOrder),
	))
	defer span.End()

	// cross-order checks need every order, so the sales order filter is
	// applied after reconciling
	listQuery := orderrepo.Query{IncludeDeleted: q.IncludeDeleted}
	if !q.CrossOrder {
		listQuery.SalesOrder = q.SalesOrder
	}
	orders, err := s.orders.ListOrders(ctx, listQuery)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list orders failed")
		return nil, errorbank.From(err)
	}

	deviceQuery := devicerepo.Query{}
	if listQuery.SalesOrder != "" {
		if len(orders) == 0 {
			return []reconcile.Result{}, nil
		}
		deviceQuery.OrderIDs = orderIDs(orders)
	}
	devices, err := s.devices.ListDevices(ctx, deviceQuery)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list devices failed")
		return nil, errorbank.From(err)
	}

	results := reconcile.Reconcile(orders, devices, reconcile.Options{CrossOrderDuplicates: q.CrossOrder})
	if q.SalesOrder != "" && q.CrossOrder {
		results = bySalesOrder(results, q.SalesOrder)
	}

	counts := reconcile.Count(results)
	s.metrics.RecordVerdicts(ctx, statusCounts(counts))
	span.SetAttributes(
		attribute.Int("orders.count", len(results)),
		attribute.Int("orders.failed", counts[reconcile.Failed]),
	)
	s.logger.Debug("orders reconciled",
		zap.Int("orders", len(results)),
		zap.Int("success", counts[reconcile.Success]),
		zap.Int("failed", counts[reconcile.Failed]),
		zap.Int("pending", counts[reconcile.Pending]),
	)
	return results, nil
}

// Groups reconciles the selected orders and rolls them up by sales order,
// asset type, model and warehouse.
func (s *Service) Groups(ctx context.Context, q StatusQuery) ([]reconcile.GroupResult, error) {
	results, err := s.Statuses(ctx, q)
	if err != nil {
		return nil, err
	}
	return reconcile.ReconcileGroups(results), nil
}

func orderIDs(orders []entity.Order) []int64 {
	out := make([]int64, len(orders))
	for i, o := range orders {
		out[i] = o.ID
	}
	return out
}

func bySalesOrder(results []reconcile.Result, salesOrder string) []reconcile.Result {
	out := make([]reconcile.Result, 0, len(results))
	for _, r := range results {
		if r.Order.SalesOrder == salesOrder {
			out = append(out, r)
		}
	}
	return out
}

func statusCounts(counts map[reconcile.Status]int) map[string]int {
	out := make(map[string]int, len(counts))
	for status, n := range counts {
		out[string(status)] = n
	}
	return out
}
