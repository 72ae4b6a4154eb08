// Package model defines the data types shared across the orchestrator:
// fingerprints, egress routing configs, sessions, tasks, and persisted
// profiles. Types here carry no behavior beyond small invariant checks;
// the packages that own a type's lifecycle (fingerprint, egress, session,
// batch, profile) operate on these values.
package model

import (
	"strconv"
	"time"
)

// Platform is one of a closed set of navigator.platform-style tags.
type Platform string

const (
	PlatformWin32     Platform = "Win32"
	PlatformWin11     Platform = "Win32" // win11 shares the Win32 platform tag; distinguished by UA only
	PlatformMacIntel  Platform = "MacIntel"
	PlatformMacARM    Platform = "MacIntel" // Apple Silicon also reports MacIntel under Rosetta-era Safari/Chrome
	PlatformLinuxX8664 Platform = "Linux x86_64"
)

// PlatformFamily is the internal generation-table key, finer-grained than the
// navigator.platform string (which collapses win32/win11 and macos/macos_arm).
type PlatformFamily string

const (
	FamilyWin32   PlatformFamily = "win32"
	FamilyWin11   PlatformFamily = "win11"
	FamilyMacOS   PlatformFamily = "macos"
	FamilyMacARM  PlatformFamily = "macos_arm"
	FamilyLinux   PlatformFamily = "linux"
)

// Navigator mirrors the subset of window.navigator a fingerprint controls.
type Navigator struct {
	UserAgent           string   `json:"user_agent"`
	Platform            string   `json:"platform"`
	Language            string   `json:"language"`
	Languages           []string `json:"languages"`
	HardwareConcurrency int      `json:"hardware_concurrency"`
	DeviceMemory        int      `json:"device_memory"`
	MaxTouchPoints      int      `json:"max_touch_points"`
	Vendor              string   `json:"vendor"`
	AppVersion          string   `json:"app_version"`
	Webdriver           bool     `json:"webdriver"`
}

// Screen mirrors window.screen plus devicePixelRatio.
type Screen struct {
	Width            int     `json:"width"`
	Height           int     `json:"height"`
	AvailWidth       int     `json:"avail_width"`
	AvailHeight      int     `json:"avail_height"`
	ColorDepth       int     `json:"color_depth"`
	DevicePixelRatio float64 `json:"device_pixel_ratio"`
}

// WebGL holds the public and unmasked vendor/renderer pairs a page can read
// via WEBGL_debug_renderer_info.
type WebGL struct {
	Vendor            string `json:"vendor"`
	Renderer          string `json:"renderer"`
	UnmaskedVendor    string `json:"unmasked_vendor"`
	UnmaskedRenderer  string `json:"unmasked_renderer"`
}

// Canvas holds the per-channel noise coefficients applied to canvas readback.
type Canvas struct {
	NoiseR float64 `json:"noise_r"`
	NoiseG float64 `json:"noise_g"`
	NoiseB float64 `json:"noise_b"`
	NoiseA float64 `json:"noise_a"`
}

// Audio holds the sample rate and noise factor applied to audio readback.
type Audio struct {
	SampleRate int     `json:"sample_rate"`
	NoiseFactor float64 `json:"noise_factor"`
}

// Timezone pairs an IANA zone id with its UTC offset in minutes, using the
// JS Date.getTimezoneOffset() sign convention (positive = west of UTC).
type Timezone struct {
	ID            string `json:"id"`
	OffsetMinutes int    `json:"offset_minutes"`
}

// Fingerprint is the full, immutable-once-constructed browser signature.
type Fingerprint struct {
	ID        string    `json:"id"`
	Navigator Navigator `json:"navigator"`
	Screen    Screen    `json:"screen"`
	WebGL     WebGL     `json:"webgl"`
	Canvas    Canvas    `json:"canvas"`
	Audio     Audio     `json:"audio"`
	Timezone  Timezone  `json:"timezone"`
	Fonts     []string  `json:"fonts"`
	Plugins   []string  `json:"plugins"`
	Hash      string    `json:"hash"`
}

// EgressProtocol is one of the transports an Egress routes through.
type EgressProtocol string

const (
	ProtocolHTTP   EgressProtocol = "http"
	ProtocolHTTPS  EgressProtocol = "https"
	ProtocolSOCKS4 EgressProtocol = "socks4"
	ProtocolSOCKS5 EgressProtocol = "socks5"
)

// EgressHealth is the health state of an Egress within the pool's state
// machine: unknown -> valid <-> slow, -> invalid (terminal), -> banned (terminal).
type EgressHealth string

const (
	HealthUnknown EgressHealth = "unknown"
	HealthValid   EgressHealth = "valid"
	HealthInvalid EgressHealth = "invalid"
	HealthSlow    EgressHealth = "slow"
	HealthBanned  EgressHealth = "banned"
)

// Egress is a single routing configuration a session can be bound to.
type Egress struct {
	Protocol EgressProtocol `json:"protocol"`
	Host     string         `json:"host"`
	Port     int            `json:"port"`
	Username string         `json:"username,omitempty"`
	Password string         `json:"password,omitempty"`

	Health   EgressHealth `json:"health"`
	InUse    bool         `json:"in_use"`
	UseCount int64        `json:"use_count"`
}

// Key returns the uniqueness key for e: its full URL.
func (e *Egress) Key() string {
	if e == nil {
		return ""
	}
	cred := ""
	if e.Username != "" {
		cred = e.Username
		if e.Password != "" {
			cred += ":" + e.Password
		}
		cred += "@"
	}
	return string(e.Protocol) + "://" + cred + e.Host + ":" + strconv.Itoa(e.Port)
}

// TaskStatus is the closed set of lifecycle states for a Task.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskQueued    TaskStatus = "queued"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
	TaskCancelled TaskStatus = "cancelled"
	TaskRetrying  TaskStatus = "retrying"
)

// Task describes one unit of batch work.
type Task struct {
	ID          string
	ScriptRef   string
	ProfileID   string
	Priority    int
	RetryCount  int
	MaxRetries  int
	Timeout     time.Duration
	Status      TaskStatus
	CreatedAt   time.Time
	StartedAt   time.Time
	CompletedAt time.Time
	Error       string
	Data        map[string]any
}

// ResultStatus is the closed set of terminal outcomes a task attempt reaches.
type ResultStatus string

const (
	StatusSuccess      ResultStatus = "success"
	StatusFailed       ResultStatus = "failed"
	StatusCaptchaFailed ResultStatus = "captcha_failed"
	StatusProxyError   ResultStatus = "proxy_error"
	StatusTimeout      ResultStatus = "timeout"
	StatusBanned       ResultStatus = "banned"
	StatusCancelled    ResultStatus = "cancelled"
)

// Terminal reports whether s must never be retried.
func (s ResultStatus) Terminal() bool {
	switch s {
	case StatusBanned, StatusCaptchaFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// ErrorKind is the closed taxonomy of why a task attempt failed: a short
// code carried on a failed TaskResult instead of a stack trace or free-text
// message alone.
type ErrorKind string

const (
	// KindConfiguration covers setup failures: a malformed launch option, a
	// fingerprint or bootstrap script that failed to build.
	KindConfiguration ErrorKind = "configuration"
	// KindExhaustion covers a retry budget running out on a last attempt
	// that carried no kind of its own, or a uniqueness pool running out
	// (no fresh fingerprint/egress/session combination left to try).
	KindExhaustion ErrorKind = "exhaustion"
	// KindDriver covers the browser process itself: a failed launch, or a
	// handle that died mid-task and was caught by the watchdog.
	KindDriver ErrorKind = "driver"
	// KindScript covers the user-supplied task script: it returned an
	// error, panicked, or ran past the task timeout.
	KindScript ErrorKind = "script"
	// KindTerminal covers outcomes the target site itself decided: banned,
	// failed a CAPTCHA, or otherwise reached a state no retry can fix.
	KindTerminal ErrorKind = "terminal"
	// KindPersistence covers failures writing a profile's accumulated
	// cookies/storage back to the profile store.
	KindPersistence ErrorKind = "persistence"
)

// KindError pairs an ErrorKind with the underlying error, so callers can
// errors.As into *KindError to branch on kind rather than parsing message
// text, while errors.Is/errors.Unwrap still reach the wrapped cause.
type KindError struct {
	Kind ErrorKind
	Err  error
}

func (e *KindError) Error() string { return string(e.Kind) + ": " + e.Err.Error() }
func (e *KindError) Unwrap() error { return e.Err }

// NewKindError wraps err with kind.
func NewKindError(kind ErrorKind, err error) *KindError {
	return &KindError{Kind: kind, Err: err}
}

// Cookie is one name/value/domain/path/expires/flags record.
type Cookie struct {
	Name     string    `json:"name"`
	Value    string    `json:"value"`
	Domain   string    `json:"domain"`
	Path     string    `json:"path"`
	Expires  time.Time `json:"expires"`
	Secure   bool      `json:"secure"`
	HTTPOnly bool      `json:"http_only"`
}

// TaskResult is the outcome of one task attempt.
type TaskResult struct {
	TaskID      string         `json:"task_id"`
	SessionID   string         `json:"session_id"`
	Status      ResultStatus   `json:"status"`
	Kind        ErrorKind      `json:"kind,omitempty"`
	Duration    time.Duration  `json:"duration"`
	Data        map[string]any `json:"data,omitempty"`
	ErrorText   string         `json:"error,omitempty"`
	Screenshots []string       `json:"screenshots,omitempty"`
	LogLines    []string       `json:"log_lines,omitempty"`
	Cookies     []Cookie       `json:"cookies,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// BrowserProfile is the persisted form of a session: its fingerprint, egress
// reference, storage location and accumulated browser state.
type BrowserProfile struct {
	ID            string     `json:"id"`
	Fingerprint   Fingerprint `json:"fingerprint"`
	Egress        *Egress     `json:"egress,omitempty"`
	StoragePath   string      `json:"storage_path"`
	CreatedAt     time.Time   `json:"created_at"`
	LastUsedAt    time.Time   `json:"last_used_at,omitempty"`
	Cookies       []Cookie             `json:"cookies,omitempty"`
	LocalStorage  map[string]string    `json:"local_storage,omitempty"`
	SessionStorage map[string]string   `json:"session_storage,omitempty"`
}

// UniqueSession is the (fingerprint, egress, storage) triple issued per task.
type UniqueSession struct {
	ID        string
	Profile   BrowserProfile
	CreatedAt time.Time
	Seed      string
	Metadata  map[string]any
}
