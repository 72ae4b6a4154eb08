package watchdog_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/firasghr/goantidetect/driver"
	"github.com/firasghr/goantidetect/watchdog"
)

type recordingReclaimer struct {
	mu      sync.Mutex
	calls   []string
	reasons map[string]driver.CloseReason
}

func newRecordingReclaimer() *recordingReclaimer {
	return &recordingReclaimer{reasons: make(map[string]driver.CloseReason)}
}

func (r *recordingReclaimer) ReclaimSession(sessionID string, reason driver.CloseReason) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, sessionID)
	r.reasons[sessionID] = reason
}

func (r *recordingReclaimer) called(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.calls {
		if c == id {
			return true
		}
	}
	return false
}

func TestWatchdog_ReclaimsDeadHandle(t *testing.T) {
	d := driver.NewFakeDriver()
	h, _, err := d.Launch(context.Background(), nil, driver.Options{})
	if err != nil {
		t.Fatalf("Launch: %v", err)
	}

	reclaimer := newRecordingReclaimer()
	w := watchdog.New(d, reclaimer, 20*time.Millisecond)
	w.Watch("sess-1", h)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)
	defer w.Stop()

	d.Kill(h)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if reclaimer.called("sess-1") {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("watchdog did not reclaim the dead session in time")
}

func TestWatchdog_ForgetStopsTracking(t *testing.T) {
	d := driver.NewFakeDriver()
	h, _, err := d.Launch(context.Background(), nil, driver.Options{})
	if err != nil {
		t.Fatalf("Launch: %v", err)
	}

	reclaimer := newRecordingReclaimer()
	w := watchdog.New(d, reclaimer, 20*time.Millisecond)
	w.Watch("sess-2", h)
	w.Forget("sess-2")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)
	defer w.Stop()

	d.Kill(h)
	time.Sleep(200 * time.Millisecond)

	if reclaimer.called("sess-2") {
		t.Error("forgotten session must not be reclaimed")
	}
}

func TestWatchdog_SweepCountAdvances(t *testing.T) {
	d := driver.NewFakeDriver()
	w := watchdog.New(d, newRecordingReclaimer(), 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)
	defer w.Stop()

	deadline := time.Now().Add(1 * time.Second)
	for time.Now().Before(deadline) {
		if w.SweepCount() >= 2 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("expected at least two sweeps to have run")
}
