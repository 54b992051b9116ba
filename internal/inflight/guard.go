// Package inflight keeps two writers from updating the same device at once.
package inflight

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/bsm/redislock"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/tally/internal/config"
	"github.com/Additional-Code/tally/pkg/errorbank"
)

// ErrBusy is returned when another update for the device is still running.
var ErrBusy = errors.New("device update already in flight")

// Release frees a device acquired from a Guard. It is safe to call once.
type Release func()

// Guard marks device ids as in flight for the duration of an update.
type Guard interface {
	// Acquire marks id as in flight. It fails with ErrBusy, wrapped in a
	// conflict AppError, when id is already held.
	Acquire(ctx context.Context, id int64) (Release, error)
}

// Module provides the configured Guard to Fx.
var Module = fx.Provide(NewGuard)

// NewGuard selects the in-process or redis-backed guard.
func NewGuard(cfg config.Config, client *goredis.Client, logger *zap.Logger) (Guard, error) {
	switch cfg.Audit.LockDriver {
	case "local":
		return NewLocal(), nil
	case "redis":
		if client == nil {
			return nil, fmt.Errorf("redis lock driver requires the redis cache driver")
		}
		logger.Info("using redis in-flight guard", zap.Duration("ttl", cfg.Audit.LockTTL))
		return NewRedis(client, cfg.Audit.LockTTL, logger), nil
	default:
		return nil, fmt.Errorf("unsupported lock driver: %s", cfg.Audit.LockDriver)
	}
}

func busy(id int64) error {
	return errorbank.Conflict("device update already in flight",
		errorbank.WithCause(ErrBusy),
		errorbank.WithDetail("device_id", id),
	)
}

// Local guards devices within a single process.
type Local struct {
	mu   sync.Mutex
	held map[int64]struct{}
}

// NewLocal returns an empty in-process guard.
func NewLocal() *Local {
	return &Local{held: make(map[int64]struct{})}
}

// Acquire implements Guard.
func (l *Local) Acquire(_ context.Context, id int64) (Release, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[id]; ok {
		return nil, busy(id)
	}
	l.held[id] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, id)
			l.mu.Unlock()
		})
	}, nil
}

// InFlight reports whether id is currently held.
func (l *Local) InFlight(id int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.held[id]
	return ok
}

// Redis guards devices across instances with short-lived redis locks.
type Redis struct {
	locker *redislock.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedis builds a guard whose locks expire after ttl if never released.
func NewRedis(client redislock.RedisClient, ttl time.Duration, logger *zap.Logger) *Redis {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Redis{locker: redislock.New(client), ttl: ttl, logger: logger.Named("inflight")}
}

func lockKey(id int64) string {
	return "tally:inflight:device:" + strconv.FormatInt(id, 10)
}

// Acquire implements Guard.
func (r *Redis) Acquire(ctx context.Context, id int64) (Release, error) {
	lock, err := r.locker.Obtain(ctx, lockKey(id), r.ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, busy(id)
	}
	if err != nil {
		return nil, errorbank.Unavailable("obtain device lock", errorbank.WithCause(err))
	}

	return releaseOnce(lock, id, r.ttl, r.logger), nil
}

type releaser interface {
	Release(ctx context.Context) error
}

// releaseOnce frees lock at most once. A failed release leaves the device
// held until the lock expires, so it is logged.
func releaseOnce(lock releaser, id int64, ttl time.Duration, logger *zap.Logger) Release {
	var once sync.Once
	return func() {
		once.Do(func() {
			err := lock.Release(context.Background())
			if err == nil {
				return
			}
			logger.Warn("release device lock failed",
				zap.Int64("device_id", id),
				zap.Duration("expires_in", ttl),
				zap.Error(err),
			)
		})
	}
}

// AcquireAll acquires every id it can. Ids already in flight are returned in
// busy; the returned Release frees everything that was acquired.
func AcquireAll(ctx context.Context, g Guard, ids []int64) (held, busyIDs []int64, release Release, err error) {
	releases := make([]Release, 0, len(ids))
	release = func() {
		for _, r := range releases {
			r()
		}
	}
	for _, id := range ids {
		r, acqErr := g.Acquire(ctx, id)
		if acqErr != nil {
			if errors.Is(acqErr, ErrBusy) {
				busyIDs = append(busyIDs, id)
				continue
			}
			release()
			return nil, nil, func() {}, acqErr
		}
		releases = append(releases, r)
		held = append(held, id)
	}
	return held, busyIDs, release, nil
}
