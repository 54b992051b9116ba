package audit

import (
	"context"
	"sync"

	"github.com/Additional-Code/tally/internal/entity"
	"github.com/Additional-Code/tally/internal/identity"
)

type call struct {
	ids    []int64
	update entity.AuditUpdate
}

// fakeWriter records writes and fails chunks on demand.
type fakeWriter struct {
	mu      sync.Mutex
	calls   []call
	devices map[int64]entity.Device
	// failFor returns the error a call touching ids should fail with.
	failFor func(ids []int64, attempt int) error
	// missing ids are silently skipped by UpdateDevices.
	missing map[int64]bool
	perKey  map[int64]int
}

func newFakeWriter() *fakeWriter {
	return &fakeWriter{devices: make(map[int64]entity.Device), perKey: make(map[int64]int)}
}

func (f *fakeWriter) record(ids []int64, u entity.AuditUpdate) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{ids: append([]int64(nil), ids...), update: u})
	f.perKey[ids[0]]++
	return f.perKey[ids[0]]
}

func (f *fakeWriter) UpdateDevice(_ context.Context, id int64, u entity.AuditUpdate) (*entity.Device, error) {
	attempt := f.record([]int64{id}, u)
	if f.failFor != nil {
		if err := f.failFor([]int64{id}, attempt); err != nil {
			return nil, err
		}
	}
	d := f.devices[id]
	d.ID = id
	d.AssetCheck = u.AssetCheck
	d.UpdatedBy = u.UpdatedBy
	d.UpdatedAt = u.UpdatedAt
	return &d, nil
}

func (f *fakeWriter) UpdateDevices(_ context.Context, ids []int64, u entity.AuditUpdate) ([]int64, error) {
	attempt := f.record(ids, u)
	if f.failFor != nil {
		if err := f.failFor(ids, attempt); err != nil {
			return nil, err
		}
	}
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if !f.missing[id] {
			out = append(out, id)
		}
	}
	return out, nil
}

func (f *fakeWriter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func operatorCtx() context.Context {
	return identity.WithPrincipal(context.Background(), identity.Principal{
		Email: "auditor@example.com",
		Role:  identity.RoleOperator,
	})
}
