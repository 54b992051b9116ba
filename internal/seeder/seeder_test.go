package seeder

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Additional-Code/tally/internal/config"
	"github.com/Additional-Code/tally/internal/database"
	"github.com/Additional-Code/tally/internal/entity"
	"github.com/Additional-Code/tally/internal/migration"
)

func TestInventoryIsIdempotent(t *testing.T) {
	ctx := context.Background()
	conns, err := database.Open(config.Database{Driver: "sqlite", WriterDSN: ":memory:"})
	require.NoError(t, err)
	defer conns.Close()

	m, err := migration.NewForDB(conns.Writer.DB, "sqlite", nil)
	require.NoError(t, err)
	require.NoError(t, m.Up(ctx))

	s := New(conns, nil)
	n, err := s.Inventory(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(samples()), n)

	n, err = s.Inventory(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	var devices []entity.Device
	require.NoError(t, conns.Reader.NewSelect().Model(&devices).Scan(ctx))
	assert.Len(t, devices, 5)
	for _, d := range devices {
		require.NotNil(t, d.OrderID)
	}
}
