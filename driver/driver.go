// Package driver defines the browser driver port: the boundary the core
// orchestrator calls through to launch, control, and tear down an actual
// browser process. The core ships no driver implementation of its own — a
// real one (CDP, WebDriver, or an embedding host's own automation layer) is
// an external collaborator that satisfies this interface. Driver mirrors the
// shape of the Solver interface in jschallenge: a small method set the core
// depends on, with the concrete implementation supplied by the caller.
package driver

import (
	"context"
	"time"

	"github.com/firasghr/goantidetect/model"
)

// Options configures one browser launch.
type Options struct {
	// Headless requests a windowless browser process.
	Headless bool
	// Bootstrap is the stealth JS bundle injected at document-start, as
	// produced by stealth.Build.
	Bootstrap string
	// StorageDir is the per-profile user-data directory; cookies and local
	// storage persist here between launches of the same profile.
	StorageDir string
	// OSHint asks the driver to present itself under a given platform family
	// (e.g. window chrome, default fonts) even when run on a different host
	// OS. Drivers that cannot honor it may ignore it.
	OSHint model.PlatformFamily
	// ExcludeDimensionKeys lists window/screen size keys the driver must not
	// pin to fixed constants, so the fingerprint's screen dimensions are the
	// only source of truth for viewport size.
	ExcludeDimensionKeys []string
	// BlockWebRTC asks the driver to disable WebRTC entirely rather than
	// relying solely on the stealth bootstrap's data-channel refusal.
	BlockWebRTC bool
	// HumanizeFactor scales synthetic mouse-path jitter fed to the page
	// before the user script runs; 0 disables humanization.
	HumanizeFactor float64
}

// CloseReason describes why a browser process stopped.
type CloseReason string

const (
	CloseRequested CloseReason = "requested" // Stop was called
	CloseCrashed   CloseReason = "crashed"   // the process died unexpectedly
	CloseTimeout   CloseReason = "timeout"   // wait_close exceeded its deadline
)

// Handle identifies one launched browser process.
type Handle interface {
	// ID returns a driver-assigned identifier, stable for the process's
	// lifetime, suitable for logging and for Watchdog bookkeeping.
	ID() string
}

// Page is the single active tab/page a launch hands back alongside its
// Handle.
type Page interface {
	// Goto navigates the page to url, blocking until the load event fires or
	// ctx is cancelled.
	Goto(ctx context.Context, url string) error
	// Screenshot captures the current viewport and returns PNG bytes.
	Screenshot(ctx context.Context) ([]byte, error)
	// Cookies returns the page's current cookie jar contents.
	Cookies(ctx context.Context) ([]model.Cookie, error)
}

// Driver launches and supervises browser processes bound to a profile.
type Driver interface {
	// Launch starts a browser process for profile under opts and returns a
	// handle plus its initial page.
	Launch(ctx context.Context, profile *model.BrowserProfile, opts Options) (Handle, Page, error)
	// WaitClose blocks until the browser process behind handle exits, then
	// reports why.
	WaitClose(ctx context.Context, h Handle) (CloseReason, error)
	// Stop requests the process behind handle exit, waiting up to grace
	// before forcing termination.
	Stop(ctx context.Context, h Handle, grace time.Duration) error
	// IsAlive reports whether the process behind handle is still running.
	// Never blocks on network or page state; a driver implementation should
	// answer this from local process-table state only.
	IsAlive(h Handle) bool
}
