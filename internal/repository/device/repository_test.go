package device

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
	"github.com/Additional-Code/tally/pkg/errorbank"
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

func seedDevices(t *testing.T, r *Repository) []*entity.Device {
	t.Helper()
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	devices := []*entity.Device{
		{SerialNumber: "A1", AssetType: "Laptop", Model: "X1", Warehouse: "Trichy", AssetCheck: entity.AssetMatched, CreatedAt: now, UpdatedAt: now},
		{SerialNumber: "A2", AssetType: "Laptop", Model: "X1", Warehouse: "Trichy", CreatedAt: now, UpdatedAt: now},
		{SerialNumber: "A3", AssetType: "Laptop", Model: "X1", Warehouse: "Trichy", IsDeleted: true, CreatedAt: now, UpdatedAt: now},
	}
	require.NoError(t, r.Create(context.Background(), devices...))
	return devices
}

func TestListDevices(t *testing.T) {
	r := newTestRepository(t)
	seedDevices(t, r)

	live, err := r.ListDevices(context.Background(), Query{})
	require.NoError(t, err)
	require.Len(t, live, 2)
	assert.Equal(t, "A1", live[0].SerialNumber)
	assert.Equal(t, entity.AssetMatched, live[0].AssetCheck)

	all, err := r.ListDevices(context.Background(), Query{IncludeDeleted: true})
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestUpdateDevice(t *testing.T) {
	r := newTestRepository(t)
	devices := seedDevices(t, r)
	at := time.Date(2024, 5, 2, 10, 0, 0, 0, time.UTC)

	stored, err := r.UpdateDevice(context.Background(), devices[1].ID, entity.AuditUpdate{
		AssetCheck: entity.FoundIn("Bangalore"),
		UpdatedBy:  "auditor@example.com",
		UpdatedAt:  at,
	})
	require.NoError(t, err)
	assert.Equal(t, entity.FoundIn("Bangalore"), stored.AssetCheck)
	assert.Equal(t, "auditor@example.com", stored.UpdatedBy)
	assert.True(t, at.Equal(stored.UpdatedAt))

	_, err = r.UpdateDevice(context.Background(), devices[2].ID, entity.AuditUpdate{AssetCheck: entity.AssetMatched})
	require.Error(t, err)
	assert.Equal(t, errorbank.KindNotFound, errorbank.From(err).Kind())
}

func TestUpdateDevicesSkipsMissingAndDeleted(t *testing.T) {
	r := newTestRepository(t)
	devices := seedDevices(t, r)

	ids := []int64{devices[0].ID, devices[1].ID, devices[2].ID, 999}
	updated, err := r.UpdateDevices(context.Background(), ids, entity.AuditUpdate{
		AssetCheck: entity.AssetUnmatched,
		UpdatedBy:  "auditor@example.com",
		UpdatedAt:  time.Now().UTC(),
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{devices[0].ID, devices[1].ID}, updated)

	live, err := r.ListDevices(context.Background(), Query{})
	require.NoError(t, err)
	for _, d := range live {
		assert.Equal(t, entity.AssetUnmatched, d.AssetCheck)
	}
}
