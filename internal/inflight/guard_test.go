package inflight

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Additional-Code/tally/pkg/errorbank"
)

func TestLocalRejectsSecondWriter(t *testing.T) {
	g := NewLocal()
	ctx := context.Background()

	release, err := g.Acquire(ctx, 7)
	require.NoError(t, err)
	assert.True(t, g.InFlight(7))

	_, err = g.Acquire(ctx, 7)
	require.ErrorIs(t, err, ErrBusy)
	assert.Equal(t, errorbank.KindConflict, errorbank.From(err).Kind())

	release()
	release()
	assert.False(t, g.InFlight(7))

	again, err := g.Acquire(ctx, 7)
	require.NoError(t, err)
	again()
}

func TestLocalConcurrentAcquireHasOneWinner(t *testing.T) {
	g := NewLocal()
	var winners int32
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if _, err := g.Acquire(context.Background(), 1); err == nil {
				atomic.AddInt32(&winners, 1)
			}
		}()
	}
	close(start)
	wg.Wait()
	assert.Equal(t, int32(1), winners)
}

func TestAcquireAllSplitsBusyIDs(t *testing.T) {
	g := NewLocal()
	ctx := context.Background()
	hold, err := g.Acquire(ctx, 2)
	require.NoError(t, err)
	defer hold()

	held, busyIDs, release, err := AcquireAll(ctx, g, []int64{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 3}, held)
	assert.Equal(t, []int64{2}, busyIDs)
	assert.True(t, g.InFlight(1))

	release()
	assert.False(t, g.InFlight(1))
	assert.False(t, g.InFlight(3))
	assert.True(t, g.InFlight(2))
}

type stubLock struct {
	calls int
	err   error
}

func (l *stubLock) Release(context.Context) error {
	l.calls++
	return l.err
}

func TestReleaseFailureIsLogged(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	lock := &stubLock{err: errors.New("connection refused")}

	release := releaseOnce(lock, 42, 30*time.Second, zap.New(core))
	release()
	release()

	assert.Equal(t, 1, lock.calls)
	entries := logs.FilterMessage("release device lock failed").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, int64(42), fields["device_id"])
	assert.Equal(t, "connection refused", fields["error"])
}

func TestReleaseSuccessIsQuiet(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	lock := &stubLock{}

	releaseOnce(lock, 7, time.Second, zap.New(core))()

	assert.Equal(t, 1, lock.calls)
	assert.Zero(t, logs.Len())
}
