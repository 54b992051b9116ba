package order

import (
	"context"
	"errors"

	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Additional-Code/tally/internal/database"
	"github.com/Additional-Code/tally/internal/entity"
)

var repoTracer = otel.Tracer("github.com/Additional-Code/tally/repository/order")

// Query narrows ListOrders.
type Query struct {
	// SalesOrder limits the result to one sales order when set.
	SalesOrder     string
	IncludeDeleted bool
}

// Repository encapsulates read/write access for orders.
type Repository struct {
	writer *bun.DB
	reader *bun.DB
}

// NewRepository wires a repository backed by configured database connections.
func NewRepository(conns *database.Connections) *Repository {
	return &Repository{
		writer: conns.Writer,
		reader: conns.Reader,
	}
}

// Create persists new orders using the write connection.
func (r *Repository) Create(ctx context.Context, orders ...*entity.Order) error {
	if len(orders) == 0 {
		return errors.New("no orders to create")
	}
	ctx, span := repoTracer.Start(ctx, "OrderRepository.Create", trace.WithAttributes(attribute.Int("orders.count", len(orders))))
	defer span.End()

	for _, o := range orders {
		if o == nil {
			return errors.New("nil order")
		}
		if _, err := r.writer.NewInsert().Model(o).Exec(ctx); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "insert failed")
			return database.Classify(err, "create order")
		}
	}
	return nil
}

// ListOrders returns orders by ascending id using the read replica when available.
func (r *Repository) ListOrders(ctx context.Context, q Query) ([]entity.Order, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.ListOrders", trace.WithAttributes(
		attribute.String("order.sales_order", q.SalesOrder),
		attribute.Bool("include_deleted", q.IncludeDeleted),
	))
	defer span.End()

	var orders []entity.Order
	sel := r.reader.NewSelect().Model(&orders).OrderExpr("id ASC")
	if !q.IncludeDeleted {
		sel = sel.Where("is_deleted = ?", false)
	}
	if q.SalesOrder != "" {
		sel = sel.Where("sales_order = ?", q.SalesOrder)
	}
	if err := sel.Scan(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, database.Classify(err, "list orders")
	}
	span.SetAttributes(attribute.Int("orders.count", len(orders)))
	return orders, nil
}
