package device

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
	"github.com/Additional-Code/tally/pkg/errorbank"
)

var repoTracer = otel.Tracer("github.com/Additional-Code/tally/repository/device")

// Query narrows ListDevices.
type Query struct {
	IncludeDeleted bool
	// OrderIDs limits the result to devices linked to these orders when set.
	OrderIDs []int64
}

// Repository reads devices and writes their audit flags.
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

// Create persists new devices.
func (r *Repository) Create(ctx context.Context, devices ...*entity.Device) error {
	if len(devices) == 0 {
		return errors.New("no devices to create")
	}
	ctx, span := repoTracer.Start(ctx, "DeviceRepository.Create", trace.WithAttributes(attribute.Int("devices.count", len(devices))))
	defer span.End()

	for _, d := range devices {
		if d == nil {
			return errors.New("nil device")
		}
		if _, err := r.writer.NewInsert().Model(d).Exec(ctx); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "insert failed")
			return database.Classify(err, "create device")
		}
	}
	return nil
}

// ListDevices returns devices by ascending id.
func (r *Repository) ListDevices(ctx context.Context, q Query) ([]entity.Device, error) {
	ctx, span := repoTracer.Start(ctx, "DeviceRepository.ListDevices", trace.WithAttributes(
		attribute.Bool("include_deleted", q.IncludeDeleted),
	))
	defer span.End()

	var devices []entity.Device
	sel := r.reader.NewSelect().Model(&devices).OrderExpr("id ASC")
	if !q.IncludeDeleted {
		sel = sel.Where("is_deleted = ?", false)
	}
	if len(q.OrderIDs) > 0 {
		sel = sel.Where("order_id IN (?)", bun.In(q.OrderIDs))
	}
	if err := sel.Scan(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, database.Classify(err, "list devices")
	}
	span.SetAttributes(attribute.Int("devices.count", len(devices)))
	return devices, nil
}

// UpdateDevice writes u to one live device and returns the stored row.
func (r *Repository) UpdateDevice(ctx context.Context, id int64, u entity.AuditUpdate) (*entity.Device, error) {
	ctx, span := repoTracer.Start(ctx, "DeviceRepository.UpdateDevice", trace.WithAttributes(
		attribute.Int64("device.id", id),
		attribute.String("device.asset_check", string(u.AssetCheck)),
	))
	defer span.End()

	stored := new(entity.Device)
	err := r.writer.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		res, err := r.updateQuery(tx, u).Where("id = ?", id).Exec(ctx)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return errorbank.NotFound("device not found", errorbank.WithDetail("device_id", id))
		}
		return tx.NewSelect().Model(stored).Where("id = ?", id).Scan(ctx)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "update failed")
		return nil, database.Classify(err, "update device")
	}
	return stored, nil
}

// UpdateDevices writes u to every live device in ids within one transaction
// and returns the ids that were updated. Missing or deleted ids are skipped.
func (r *Repository) UpdateDevices(ctx context.Context, ids []int64, u entity.AuditUpdate) ([]int64, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	ctx, span := repoTracer.Start(ctx, "DeviceRepository.UpdateDevices", trace.WithAttributes(
		attribute.Int("devices.requested", len(ids)),
		attribute.String("device.asset_check", string(u.AssetCheck)),
	))
	defer span.End()

	var found []int64
	err := r.writer.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		found = found[:0]
		err := tx.NewSelect().
			Model((*entity.Device)(nil)).
			Column("id").
			Where("id IN (?)", bun.In(ids)).
			Where("is_deleted = ?", false).
			OrderExpr("id ASC").
			Scan(ctx, &found)
		if err != nil || len(found) == 0 {
			return err
		}
		_, err = r.updateQuery(tx, u).Where("id IN (?)", bun.In(found)).Exec(ctx)
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "update failed")
		return nil, database.Classify(err, "update devices")
	}
	span.SetAttributes(attribute.Int("devices.updated", len(found)))
	return found, nil
}

func (r *Repository) updateQuery(tx bun.Tx, u entity.AuditUpdate) *bun.UpdateQuery {
	return tx.NewUpdate().
		Model((*entity.Device)(nil)).
		Set("asset_check = ?", string(u.AssetCheck)).
		Set("updated_by = ?", u.UpdatedBy).
		Set("updated_at = ?", u.UpdatedAt).
		Where("is_deleted = ?", false)
}
