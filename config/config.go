// Package config provides production-grade configuration management for
// goantidetect. It supports JSON-based configuration loading with safe
// defaults optimized for running many concurrent browser sessions.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/firasghr/goantidetect/egress"
)

// Config holds all tunable parameters for the orchestrator. The struct is
// designed to be loaded once at startup and then shared across goroutines as
// a read-only value, making it inherently thread-safe after initialization.
type Config struct {
	// DataDir is the root directory under which profiles/, results/, and
	// screenshots/ are created.
	DataDir string `json:"data_dir"`

	// MaxConcurrent bounds how many tasks the batch executor runs at once.
	MaxConcurrent int `json:"max_concurrent"`

	// TaskTimeout bounds one task attempt end-to-end, including browser
	// launch, user script execution, and teardown.
	TaskTimeout time.Duration `json:"task_timeout"`

	// RetryOnFailure enables the per-task retry loop for non-terminal
	// failures (everything except Banned/CaptchaFailed/Cancelled).
	RetryOnFailure bool `json:"retry_on_failure"`

	// MaxRetries caps how many retry attempts a single task gets beyond its
	// first run.
	MaxRetries int `json:"max_retries"`

	// DelayBetweenStarts staggers task launches so a burst of N tasks does
	// not spike CPU/egress usage all at once.
	DelayBetweenStarts time.Duration `json:"delay_between_starts"`

	// ScreenshotOnError/ScreenshotOnSuccess control whether the driver is
	// asked to capture a screenshot when a task reaches that outcome.
	ScreenshotOnError   bool `json:"screenshot_on_error"`
	ScreenshotOnSuccess bool `json:"screenshot_on_success"`

	// WatchdogInterval is how often the watchdog sweeps live handles for
	// liveness. Non-positive falls back to watchdog.DefaultInterval.
	WatchdogInterval time.Duration `json:"watchdog_interval"`

	// EgressSourceFile is a newline-delimited file of egress entries
	// ("host:port" or "host:port:user:pass" or a full scheme://... URL).
	// Leave empty to run every session direct.
	EgressSourceFile string `json:"egress_source_file"`

	// EgressStrategy picks how the egress pool selects among qualifying
	// entries on Lease: "round_robin" (default), "random", or
	// "first_available". An unrecognized or empty value falls back to
	// round-robin.
	EgressStrategy egress.Strategy `json:"egress_strategy"`

	// PlatformWeights overrides the fingerprint generator's default platform
	// family sampling weights, keyed by model.PlatformFamily string value.
	// A nil or empty map keeps the generator's built-in weights.
	PlatformWeights map[string]int `json:"platform_weights,omitempty"`

	// RequestTimeout is a per-request HTTP timeout, independent of
	// TaskTimeout. No other package reads it: egress probes take their
	// timeout from egress.ValidateConfig.
	RequestTimeout time.Duration `json:"request_timeout"`

	// MaxIdleConns is a total cap on idle (keep-alive) connections across
	// all hosts. No other package reads it: the HTTP transports built by
	// client and egress use their own fixed pool sizes.
	MaxIdleConns int `json:"max_idle_conns"`

	// MaxIdleConnsPerHost caps idle connections to a single host.
	MaxIdleConnsPerHost int `json:"max_idle_conns_per_host"`

	// MaxConnsPerHost limits total connections (idle + active) to a single
	// host, preventing a runaway host from exhausting file descriptors.
	MaxConnsPerHost int `json:"max_conns_per_host"`

	// Headless asks the driver for a windowless browser process.
	Headless bool `json:"headless"`

	// BlockWebRTC asks the driver to disable WebRTC entirely rather than
	// rely on fingerprint-level IP masking alone.
	BlockWebRTC bool `json:"block_webrtc"`

	// HumanizeFactor scales synthetic mouse-path jitter the driver feeds
	// into page interactions. 0 disables humanization.
	HumanizeFactor float64 `json:"humanize_factor"`
}

// LoadConfig reads a JSON file at filename and deserialises it into a
// Config. It returns an error if the file cannot be opened or if the JSON is
// malformed. The returned *Config is ready to use; zero-value fields retain
// Go's zero values, so callers should validate required fields after
// loading.
func LoadConfig(filename string) (*Config, error) {
	f, err := os.Open(filename) // #nosec G304 – filename is caller-provided config path
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", filename, err)
	}
	defer f.Close()

	var cfg Config
	dec := json.NewDecoder(f)
	dec.DisallowUnknownFields() // catch typos in config files early
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode %q: %w", filename, err)
	}
	return &cfg, nil
}

// DefaultConfig returns a *Config pre-filled with sane batch defaults for a
// single operator running on one machine. Callers are free to mutate the
// returned struct before passing it to other components; each call returns a
// fresh independent copy.
func DefaultConfig() *Config {
	return &Config{
		DataDir:             "./data",
		MaxConcurrent:       100,
		TaskTimeout:         300 * time.Second,
		RetryOnFailure:      true,
		MaxRetries:          2,
		DelayBetweenStarts:  500 * time.Millisecond,
		ScreenshotOnError:   true,
		ScreenshotOnSuccess: false,
		WatchdogInterval:    5 * time.Second,
		EgressStrategy:      egress.StrategyRoundRobin,
		RequestTimeout:      30 * time.Second,
		MaxIdleConns:        500,
		MaxIdleConnsPerHost: 100,
		MaxConnsPerHost:     200,
		Headless:            true,
		BlockWebRTC:         true,
		HumanizeFactor:      0.5,
	}
}
