package seeder

import (
	"context"
	"time"

	"github.com/uptrace/bun"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/tally/internal/database"
	"github.com/Additional-Code/tally/internal/entity"
)

// Module exposes the seeder to Fx.
var Module = fx.Provide(New)

// Seeder performs database seeding for local/dev setups.
type Seeder struct {
	db     *bun.DB
	logger *zap.Logger
	now    func() time.Time
}

// New constructs a Seeder backed by the primary database connection.
func New(conns *database.Connections, logger *zap.Logger) *Seeder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Seeder{db: conns.Writer, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

type sample struct {
	order   entity.Order
	devices []string
}

// samples covers each reconciliation verdict once.
func samples() []sample {
	return []sample{
		{
			order:   entity.Order{SalesOrder: "SO-1000", AssetType: "Laptop", Model: "Latitude 5440", Warehouse: "Trichy", Quantity: 2, MaterialType: entity.MaterialInward, SerialNumbers: []string{"LT-1001", "LT-1002"}},
			devices: []string{"LT-1001", "LT-1002"},
		},
		{
			order:   entity.Order{SalesOrder: "SO-1000", AssetType: "Laptop", Model: "Latitude 5440", Warehouse: "Trichy", Quantity: 3, MaterialType: entity.MaterialInward, SerialNumbers: []string{"LT-1003", "", "LT-1005"}},
			devices: []string{"LT-1003", "LT-1005"},
		},
		{
			order: entity.Order{SalesOrder: "SO-1001", AssetType: "Monitor", Model: "P2422H", Warehouse: "Bangalore", Quantity: 1, MaterialType: entity.MaterialOutward},
		},
		{
			order:   entity.Order{SalesOrder: "SO-1002", AssetType: "Monitor", Model: "P2422H", Warehouse: "Bangalore", Quantity: 2, MaterialType: entity.MaterialInward, SerialNumbers: []string{"MN-2001", "mn-2001 "}},
			devices: []string{"MN-2001"},
		},
	}
}

// Inventory seeds example orders and their devices when the orders table is
// empty. It reports how many orders were written.
func (s *Seeder) Inventory(ctx context.Context) (int, error) {
	existing, err := s.db.NewSelect().Model((*entity.Order)(nil)).Count(ctx)
	if err != nil {
		return 0, err
	}
	if existing > 0 {
		s.logger.Info("orders already present; skipping seed", zap.Int("count", existing))
		return 0, nil
	}

	now := s.now()
	list := samples()
	err = s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		for _, smp := range list {
			order := smp.order
			order.CreatedAt, order.UpdatedAt = now, now
			if _, err := tx.NewInsert().Model(&order).Exec(ctx); err != nil {
				return err
			}
			for _, sn := range smp.devices {
				d := entity.Device{
					SerialNumber: sn,
					OrderID:      &order.ID,
					MaterialType: order.MaterialType,
					AssetType:    order.AssetType,
					Model:        order.Model,
					Warehouse:    order.Warehouse,
					CreatedAt:    now,
					UpdatedAt:    now,
				}
				if _, err := tx.NewInsert().Model(&d).Exec(ctx); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.logger.Info("seeded inventory", zap.Int("orders", len(list)))
	return len(list), nil
}
