package order

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Additional-Code/tally/internal/config"
	"github.com/Additional-Code/tally/internal/database"
	"github.com/Additional-Code/tally/internal/entity"
	"github.com/Additional-Code/tally/internal/migration"
)

func newTestRepository(t *testing.T) *Repository {
	t.Helper()
	conns, err := database.Open(config.Database{Driver: "sqlite", WriterDSN: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conns.Close() })

	m, err := migration.NewForDB(conns.Writer.DB, "sqlite", nil)
	require.NoError(t, err)
	require.NoError(t, m.Up(context.Background()))
	return NewRepository(conns)
}

func TestListOrders(t *testing.T) {
	r := newTestRepository(t)
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, r.Create(context.Background(),
		&entity.Order{SalesOrder: "SO-1", AssetType: "Laptop", Model: "X1", Warehouse: "Trichy", Quantity: 2,
			MaterialType: entity.MaterialInward, SerialNumbers: []string{"A1", "A2"}, CreatedAt: now, UpdatedAt: now},
		&entity.Order{SalesOrder: "SO-2", AssetType: "Laptop", Model: "X1", Warehouse: "Trichy", Quantity: 1,
			MaterialType: entity.MaterialOutward, SerialNumbers: []string{"B1"}, CreatedAt: now, UpdatedAt: now},
		&entity.Order{SalesOrder: "SO-1", AssetType: "Laptop", Model: "X1", Warehouse: "Trichy", Quantity: 1,
			MaterialType: entity.MaterialInward, IsDeleted: true, CreatedAt: now, UpdatedAt: now},
	))

	live, err := r.ListOrders(context.Background(), Query{})
	require.NoError(t, err)
	require.Len(t, live, 2)
	assert.Equal(t, []string{"A1", "A2"}, live[0].SerialNumbers)
	assert.Equal(t, entity.MaterialOutward, live[1].MaterialType)

	so1, err := r.ListOrders(context.Background(), Query{SalesOrder: "SO-1", IncludeDeleted: true})
	require.NoError(t, err)
	assert.Len(t, so1, 2)
}
