package audit

import (
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// DefaultDebounceWindow is how long an identical scan keeps returning the
// first evaluation.
const DefaultDebounceWindow = 300 * time.Millisecond

// Debouncer collapses rapid repeats of the same scan into one evaluation.
// Concurrent repeats share the in-progress call; repeats inside the window
// get the stored result. Failed evaluations are not stored.
type Debouncer struct {
	window time.Duration
	now    func() time.Time
	group  singleflight.Group

	mu     sync.Mutex
	recent map[string]debounced
}

type debounced struct {
	at     time.Time
	result ScanResult
}

// NewDebouncer creates a debouncer with the given window.
func NewDebouncer(window time.Duration) *Debouncer {
	if window <= 0 {
		window = DefaultDebounceWindow
	}
	return &Debouncer{
		window: window,
		now:    time.Now,
		recent: make(map[string]debounced),
	}
}

// Do runs fn unless key was evaluated within the window. The boolean reports
// whether the result came from an earlier evaluation.
func (d *Debouncer) Do(key string, fn func() (ScanResult, error)) (ScanResult, bool, error) {
	d.mu.Lock()
	if e, ok := d.recent[key]; ok && d.now().Sub(e.at) < d.window {
		d.mu.Unlock()
		return e.result, true, nil
	}
	d.mu.Unlock()

	v, err, shared := d.group.Do(key, func() (any, error) {
		res, err := fn()
		if err != nil {
			return res, err
		}
		d.store(key, res)
		return res, nil
	})
	return v.(ScanResult), shared, err
}

func (d *Debouncer) store(key string, res ScanResult) {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.now()
	for k, e := range d.recent {
		if now.Sub(e.at) >= d.window {
			delete(d.recent, k)
		}
	}
	d.recent[key] = debounced{at: now, result: res}
}
