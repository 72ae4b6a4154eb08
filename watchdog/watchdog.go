// Package watchdog periodically sweeps the browser handles a batch has
// launched and reclaims any that died without their owning monitor noticing
// - a crashed renderer, a killed process, a driver that silently gave up.
//
// The sweep loop uses the ticker + stopCh + sync.Once shutdown shape of a
// session keep-alive goroutine, generalized from "refresh a token on a
// timer" to "probe process liveness on a timer".
package watchdog

import (
	"context"
	"sync"
	"time"

	"github.com/firasghr/goantidetect/driver"
)

// Reclaimer is notified when Watchdog finds a dead handle whose monitor has
// not already fired for it. Implementations release the session's egress,
// mark the task for retry or failure, and record the out-of-band close -
// the batch executor satisfies this interface.
type Reclaimer interface {
	ReclaimSession(sessionID string, reason driver.CloseReason)
}

// entry tracks one live handle under watch.
type entry struct {
	sessionID string
	handle    driver.Handle
	fired     bool // true once a normal WaitClose/Stop has already handled it
}

// Watchdog probes a set of registered handles on a fixed interval and
// reports any that died outside their normal completion path.
type Watchdog struct {
	drv      driver.Driver
	reclaim  Reclaimer
	interval time.Duration

	mu      sync.Mutex
	entries map[string]*entry // keyed by sessionID

	stopCh chan struct{}
	once   sync.Once

	sweepCount int
	sweepMu    sync.Mutex
}

// DefaultInterval is a 5 second sweep period, frequent enough to catch a
// crashed handle well within a typical task timeout.
const DefaultInterval = 5 * time.Second

// New creates a Watchdog that probes drv's handles every interval and
// reports dead ones to reclaim. A non-positive interval falls back to
// DefaultInterval.
func New(drv driver.Driver, reclaim Reclaimer, interval time.Duration) *Watchdog {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Watchdog{
		drv:      drv,
		reclaim:  reclaim,
		interval: interval,
		entries:  make(map[string]*entry),
		stopCh:   make(chan struct{}),
	}
}

// Watch registers a handle for liveness sweeps under sessionID. Call Forget
// once the session completes through its normal path so the watchdog stops
// tracking it.
func (w *Watchdog) Watch(sessionID string, h driver.Handle) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.entries[sessionID] = &entry{sessionID: sessionID, handle: h}
}

// Forget marks sessionID's monitor as having already handled completion, so
// a subsequent sweep that finds it dead does not double-reclaim it. It also
// removes the entry from tracking.
func (w *Watchdog) Forget(sessionID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.entries, sessionID)
}

// Start launches the background sweep goroutine. Idempotent.
func (w *Watchdog) Start(ctx context.Context) {
	w.once.Do(func() {
		go w.loop(ctx)
	})
}

// Stop signals the sweep goroutine to exit. Idempotent.
func (w *Watchdog) Stop() {
	select {
	case <-w.stopCh:
	default:
		close(w.stopCh)
	}
}

// SweepCount returns how many sweep passes have run, for test assertions and
// dashboard metrics.
func (w *Watchdog) SweepCount() int {
	w.sweepMu.Lock()
	defer w.sweepMu.Unlock()
	return w.sweepCount
}

func (w *Watchdog) loop(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.sweep()
		}
	}
}

// sweep probes every tracked handle once. Handles found dead are reported
// to the Reclaimer and dropped from tracking so they are not reported twice.
func (w *Watchdog) sweep() {
	w.mu.Lock()
	dead := make([]*entry, 0)
	for id, e := range w.entries {
		if e.fired {
			continue
		}
		if !w.drv.IsAlive(e.handle) {
			e.fired = true
			dead = append(dead, e)
			delete(w.entries, id)
		}
	}
	w.mu.Unlock()

	w.sweepMu.Lock()
	w.sweepCount++
	w.sweepMu.Unlock()

	for _, e := range dead {
		if w.reclaim != nil {
			w.reclaim.ReclaimSession(e.sessionID, driver.CloseCrashed)
		}
	}
}
