package audit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Additional-Code/tally/internal/audit"
	"github.com/Additional-Code/tally/internal/cache"
	"github.com/Additional-Code/tally/internal/config"
	"github.com/Additional-Code/tally/internal/entity"
	"github.com/Additional-Code/tally/internal/identity"
	"github.com/Additional-Code/tally/internal/messaging"
	devicerepo "github.com/Additional-Code/tally/internal/repository/device"
	orderrepo "github.com/Additional-Code/tally/internal/repository/order"
	"github.com/Additional-Code/tally/pkg/errorbank"
)

type memoryDevices struct {
	mu      sync.Mutex
	devices []entity.Device
	writes  int
	// failIDs makes UpdateDevices fail for any chunk containing one of them.
	failIDs map[int64]bool
}

func (m *memoryDevices) ListDevices(_ context.Context, q devicerepo.Query) ([]entity.Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []entity.Device
	for _, d := range m.devices {
		if q.IncludeDeleted || !d.IsDeleted {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *memoryDevices) UpdateDevice(_ context.Context, id int64, u entity.AuditUpdate) (*entity.Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	for i := range m.devices {
		if m.devices[i].ID == id {
			m.devices[i].AssetCheck = u.AssetCheck
			m.devices[i].UpdatedBy = u.UpdatedBy
			m.devices[i].UpdatedAt = u.UpdatedAt
			d := m.devices[i]
			return &d, nil
		}
	}
	return nil, errorbank.NotFound("device not found")
}

func (m *memoryDevices) UpdateDevices(_ context.Context, ids []int64, u entity.AuditUpdate) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	for _, id := range ids {
		if m.failIDs[id] {
			return nil, errorbank.Unavailable("connection reset")
		}
	}
	var out []int64
	for _, id := range ids {
		for i := range m.devices {
			if m.devices[i].ID == id {
				m.devices[i].AssetCheck = u.AssetCheck
				out = append(out, id)
			}
		}
	}
	return out, nil
}

func (m *memoryDevices) check(id int64) entity.AssetCheck {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.devices {
		if d.ID == id {
			return d.AssetCheck
		}
	}
	return ""
}

type staticOrders []entity.Order

func (s staticOrders) ListOrders(context.Context, orderrepo.Query) ([]entity.Order, error) {
	return s, nil
}

type memoryCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (c *memoryCache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	return v, nil
}

func (c *memoryCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	return nil
}

func (c *memoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

type recordingPublisher struct {
	mu   sync.Mutex
	msgs []messaging.Message
}

func (p *recordingPublisher) Publish(_ context.Context, msgs ...messaging.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, msgs...)
	return nil
}

func (p *recordingPublisher) Consume(ctx context.Context, _ messaging.Handler) error {
	<-ctx.Done()
	return ctx.Err()
}

func (p *recordingPublisher) Topic() string { return "devices.asset-check" }

func ptr(v int64) *int64 { return &v }

type harness struct {
	svc     *Service
	devices *memoryDevices
	pub     *recordingPublisher
}

func newHarness(t *testing.T, devices []entity.Device) harness {
	t.Helper()
	orders := staticOrders{
		{ID: 1, MaterialType: entity.MaterialInward},
		{ID: 2, MaterialType: entity.MaterialOutward},
	}
	store := &memoryDevices{devices: devices}
	pub := &recordingPublisher{}
	svc := New(Deps{
		Devices:   store,
		Orders:    orders,
		Reports:   &memoryCache{data: map[string][]byte{}},
		Publisher: pub,
		Audit: config.Audit{
			ChunkSize:      2,
			MaxAttempts:    2,
			RetryBackoff:   time.Millisecond,
			ScanDebounce:   time.Minute,
			ExcludedModels: []string{"Dongle"},
		},
	})
	return harness{svc: svc, devices: store, pub: pub}
}

func inventory() []entity.Device {
	return []entity.Device{
		{ID: 10, SerialNumber: "A1", OrderID: ptr(1), Warehouse: "Trichy", Model: "X1"},
		{ID: 11, SerialNumber: "D9", OrderID: ptr(1), Warehouse: "Bangalore", Model: "X1"},
		{ID: 12, SerialNumber: "B1", OrderID: ptr(2), Warehouse: "Trichy", Model: "X1"},
		{ID: 13, SerialNumber: "C1", OrderID: ptr(1), Warehouse: "Trichy", Model: "Dongle"},
		{ID: 14, SerialNumber: "E1", OrderID: ptr(1), Warehouse: "Trichy", Model: "X1", AssetCheck: entity.AssetMatched},
	}
}

func operatorCtx() context.Context {
	return identity.WithPrincipal(context.Background(), identity.Principal{Email: "auditor@example.com", Role: identity.RoleAdmin})
}

func TestWorkingSet(t *testing.T) {
	h := newHarness(t, inventory())

	set, err := h.svc.WorkingSet(context.Background(), nil)
	require.NoError(t, err)
	ids := make([]int64, len(set))
	for i, d := range set {
		ids[i] = d.ID
	}
	assert.Equal(t, []int64{10, 11, 14}, ids, "outward and excluded devices are out of scope")

	trichy, err := h.svc.WorkingSet(context.Background(), audit.Filter{audit.FieldWarehouse: {"trichy"}})
	require.NoError(t, err)
	assert.Len(t, trichy, 2)
}

func TestScanFoundElsewhereAndDebounce(t *testing.T) {
	h := newHarness(t, inventory())
	req := ScanRequest{Token: "d9", ExpectedWarehouses: []string{"Trichy"}}

	res, err := h.svc.Scan(operatorCtx(), req)
	require.NoError(t, err)
	assert.Equal(t, "Found in Bangalore", res.Status())
	assert.True(t, res.Persisted)
	assert.Equal(t, entity.FoundIn("Bangalore"), h.devices.check(11))

	again, err := h.svc.Scan(operatorCtx(), ScanRequest{Token: " D9 ", ExpectedWarehouses: []string{"trichy"}})
	require.NoError(t, err)
	assert.Equal(t, res.Status(), again.Status())
	assert.Equal(t, 1, h.devices.writes, "debounced scan does not write again")

	require.Len(t, h.pub.msgs, 1)
	event, err := messaging.DecodeAssetCheckChanged(h.pub.msgs[0])
	require.NoError(t, err)
	assert.Equal(t, int64(11), event.DeviceID)
	assert.Equal(t, "Found in Bangalore", event.AssetCheck)
	assert.Equal(t, messaging.SourceScan, event.Source)
}

func TestScanOutOfScopeIsNotFound(t *testing.T) {
	h := newHarness(t, inventory())

	res, err := h.svc.Scan(operatorCtx(), ScanRequest{Token: "B1"})
	require.NoError(t, err)
	assert.Equal(t, "Not Found", res.Status())
	assert.Zero(t, h.devices.writes)
	assert.Empty(t, h.pub.msgs)
}

func TestScanRequiresRole(t *testing.T) {
	h := newHarness(t, inventory())
	_, err := h.svc.Scan(context.Background(), ScanRequest{Token: "A1"})
	require.Error(t, err)
	assert.Equal(t, errorbank.KindForbidden, errorbank.From(err).Kind())
}

func TestClearAllStoresReportAndRetry(t *testing.T) {
	devices := inventory()
	for i := range devices {
		devices[i].AssetCheck = entity.AssetMatched
	}
	h := newHarness(t, devices)
	h.devices.failIDs = map[int64]bool{12: true}

	rep, err := h.svc.ClearAll(operatorCtx(), []int64{10, 11, 12, 13})
	require.NoError(t, err)
	assert.Equal(t, audit.ClearPartial, rep.Outcome)
	assert.Equal(t, []int64{10, 11}, rep.Updated)
	require.Len(t, rep.FailedBatches, 1)
	assert.Equal(t, []int64{12, 13}, rep.FailedBatches[0].IDs)
	assert.Equal(t, 2, rep.FailedBatches[0].Attempts)
	assert.Equal(t, errorbank.KindUnavailable, rep.FailedBatches[0].Kind)
	assert.Equal(t, entity.AssetMatched, h.devices.check(12), "failed ids keep their flag")
	assert.NotEmpty(t, rep.RunID)
	assert.Len(t, h.pub.msgs, 2)

	stored, err := h.svc.Report(context.Background(), rep.RunID)
	require.NoError(t, err)
	assert.Equal(t, rep.FailedIDs(), stored.FailedIDs())

	h.devices.failIDs = nil
	retried, err := h.svc.RetryClear(operatorCtx(), rep.RunID)
	require.NoError(t, err)
	assert.Equal(t, audit.ClearSucceeded, retried.Outcome)
	assert.Equal(t, rep.RunID, retried.ParentRunID)
	assert.Equal(t, []int64{12, 13}, retried.Updated)
	assert.Equal(t, entity.AssetUnmatched, h.devices.check(12))
}

func TestRetryClearUnknownRun(t *testing.T) {
	h := newHarness(t, inventory())
	_, err := h.svc.RetryClear(operatorCtx(), "missing")
	require.Error(t, err)
	assert.Equal(t, errorbank.KindNotFound, errorbank.From(err).Kind())
}

func TestClearMatched(t *testing.T) {
	devices := inventory()
	devices[1].AssetCheck = entity.FoundIn("Bangalore")
	h := newHarness(t, devices)

	rep, err := h.svc.ClearMatched(operatorCtx(), audit.Filter{audit.FieldWarehouse: {"Trichy", "Bangalore"}})
	require.NoError(t, err)
	assert.Equal(t, audit.ClearSucceeded, rep.Outcome)
	assert.ElementsMatch(t, []int64{11, 14}, rep.Updated)
	assert.Equal(t, entity.AssetUnmatched, h.devices.check(14))
}

func supersededInventory() []entity.Device {
	older := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	return []entity.Device{
		{ID: 20, SerialNumber: "S1", OrderID: ptr(1), Warehouse: "Trichy", Model: "X1", AssetCheck: entity.AssetMatched, CreatedAt: older},
		{ID: 21, SerialNumber: "s1 ", OrderID: ptr(1), Warehouse: "Trichy", Model: "X1", AssetCheck: entity.AssetMatched, IsDeleted: true, CreatedAt: newer},
		{ID: 22, SerialNumber: "S2", OrderID: ptr(1), Warehouse: "Trichy", Model: "X1", AssetCheck: entity.AssetMatched, CreatedAt: older},
	}
}

func TestWorkingSetDropsUnitWhoseLatestRowIsDeleted(t *testing.T) {
	h := newHarness(t, supersededInventory())

	set, err := h.svc.WorkingSet(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, set, 1)
	assert.Equal(t, int64(22), set[0].ID)

	res, err := h.svc.Scan(operatorCtx(), ScanRequest{Token: "S1"})
	require.NoError(t, err)
	assert.Equal(t, "Not Found", res.Status())
	assert.Zero(t, h.devices.writes)
}

func TestClearMatchedSkipsSupersededRows(t *testing.T) {
	h := newHarness(t, supersededInventory())

	rep, err := h.svc.ClearMatched(operatorCtx(), nil)
	require.NoError(t, err)
	assert.Equal(t, []int64{22}, rep.Updated)
	assert.Equal(t, entity.AssetMatched, h.devices.check(20), "stale live copy is left alone")
}

func TestClearAllEmpty(t *testing.T) {
	h := newHarness(t, inventory())
	rep, err := h.svc.ClearAll(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, audit.ClearNoop, rep.Outcome)
	assert.Empty(t, rep.RunID)
	assert.Zero(t, h.devices.writes)
}
