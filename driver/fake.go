package driver

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/firasghr/goantidetect/model"
)

// FakeDriver is an in-memory Driver used by batch/session/watchdog tests so
// they can exercise the full launch/probe/stop lifecycle without a real
// browser process.
type FakeDriver struct {
	mu      sync.Mutex
	handles map[string]*fakeHandle
	nextID  int

	// LaunchErr, if set, is returned by every Launch call instead of
	// succeeding.
	LaunchErr error
}

type fakeHandle struct {
	id    string
	alive bool
	done  chan CloseReason
}

func (h *fakeHandle) ID() string { return h.id }

// NewFakeDriver returns an empty FakeDriver.
func NewFakeDriver() *FakeDriver {
	return &FakeDriver{handles: make(map[string]*fakeHandle)}
}

func (d *FakeDriver) Launch(ctx context.Context, profile *model.BrowserProfile, opts Options) (Handle, Page, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.LaunchErr != nil {
		return nil, nil, d.LaunchErr
	}
	d.nextID++
	h := &fakeHandle{id: fmt.Sprintf("fake-%d", d.nextID), alive: true, done: make(chan CloseReason, 1)}
	d.handles[h.id] = h
	return h, &fakePage{}, nil
}

func (d *FakeDriver) WaitClose(ctx context.Context, h Handle) (CloseReason, error) {
	fh, ok := h.(*fakeHandle)
	if !ok {
		return "", fmt.Errorf("driver: fake: handle not owned by this driver")
	}
	select {
	case reason := <-fh.done:
		return reason, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (d *FakeDriver) Stop(ctx context.Context, h Handle, grace time.Duration) error {
	fh, ok := h.(*fakeHandle)
	if !ok {
		return fmt.Errorf("driver: fake: handle not owned by this driver")
	}
	d.mu.Lock()
	fh.alive = false
	d.mu.Unlock()
	select {
	case fh.done <- CloseRequested:
	default:
	}
	return nil
}

func (d *FakeDriver) IsAlive(h Handle) bool {
	fh, ok := h.(*fakeHandle)
	if !ok {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return fh.alive
}

// Kill simulates an out-of-band crash: the handle dies without Stop being
// called, so a Watchdog sweep is the only thing that will notice.
func (d *FakeDriver) Kill(h Handle) {
	fh, ok := h.(*fakeHandle)
	if !ok {
		return
	}
	d.mu.Lock()
	fh.alive = false
	d.mu.Unlock()
	select {
	case fh.done <- CloseCrashed:
	default:
	}
}

type fakePage struct {
	mu      sync.Mutex
	url     string
	cookies []model.Cookie
}

func (p *fakePage) Goto(ctx context.Context, url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.url = url
	return nil
}

func (p *fakePage) Screenshot(ctx context.Context) ([]byte, error) {
	return []byte("fake-png"), nil
}

func (p *fakePage) Cookies(ctx context.Context) ([]model.Cookie, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]model.Cookie(nil), p.cookies...), nil
}
