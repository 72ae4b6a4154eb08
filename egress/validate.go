package egress

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/firasghr/goantidetect/client"
	"github.com/firasghr/goantidetect/fingerprint"
	"github.com/firasghr/goantidetect/model"
)

// ValidateConfig controls Validate's probe behaviour.
type ValidateConfig struct {
	// ProbeURL is fetched through the egress to confirm it reaches the
	// open internet. Defaults to a lightweight, widely-mirrored endpoint.
	ProbeURL string
	// Timeout bounds the whole probe request.
	Timeout time.Duration
	// SlowThreshold marks an otherwise-reachable egress as HealthSlow when
	// the probe exceeds it.
	SlowThreshold time.Duration
}

// DefaultValidateConfig mirrors the defaults a hands-off caller gets.
func DefaultValidateConfig() ValidateConfig {
	return ValidateConfig{
		ProbeURL:      "https://www.gstatic.com/generate_204",
		Timeout:       10 * time.Second,
		SlowThreshold: 3 * time.Second,
	}
}

// Validate issues a GET through e using profile's TLS/header fingerprint so
// the probe itself doesn't look like automation, and returns the health
// state e should transition to: HealthValid, HealthSlow, or HealthInvalid.
//
// The transport built here is single-use and discarded after the probe;
// sessions build their own long-lived transport from the same egress once
// leased, following the per-session-own-transport pattern in
// client.NewHTTPClient.
func Validate(ctx context.Context, e *model.Egress, profile *fingerprint.NetProfile, cfg ValidateConfig) (model.EgressHealth, error) {
	if cfg.ProbeURL == "" {
		cfg = DefaultValidateConfig()
	}

	transport, err := buildTransport(e)
	if err != nil {
		return model.HealthInvalid, fmt.Errorf("egress: build transport for %s: %w", e.Key(), err)
	}
	if profile != nil {
		profile.ApplyToTransport(transport)
	}

	httpClient := &http.Client{Transport: transport, Timeout: cfg.Timeout}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.ProbeURL, nil)
	if err != nil {
		return model.HealthInvalid, fmt.Errorf("egress: build probe request: %w", err)
	}
	if profile != nil {
		headers := map[string]string{}
		profile.ApplyHeaders(headers)
		for k, v := range headers {
			req.Header.Set(k, v)
		}
	}

	start := time.Now()
	resp, err := httpClient.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		if isTimeout(err) {
			return model.HealthSlow, fmt.Errorf("egress: probe %s via %s: %w", cfg.ProbeURL, e.Key(), err)
		}
		return model.HealthInvalid, fmt.Errorf("egress: probe %s via %s: %w", cfg.ProbeURL, e.Key(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return model.HealthInvalid, nil
	}
	if elapsed > cfg.SlowThreshold {
		return model.HealthSlow, nil
	}
	return model.HealthValid, nil
}

// ValidateAll probes every egress currently tracked by pool concurrently,
// writes each one's resulting health back into the pool via Mark, and
// returns a histogram counting how many entries landed in each health state.
// A single slow or unreachable egress cannot block the sweep of the rest:
// every probe runs on its own goroutine and reports independently.
func ValidateAll(ctx context.Context, pool *Pool, cfg ValidateConfig) map[model.EgressHealth]int {
	entries := pool.Entries()

	var (
		mu        sync.Mutex
		histogram = make(map[model.EgressHealth]int, len(entries))
		wg        sync.WaitGroup
	)
	for _, e := range entries {
		wg.Add(1)
		go func(e *model.Egress) {
			defer wg.Done()
			health, _ := Validate(ctx, e, nil, cfg)
			_ = pool.Mark(e.Key(), health)
			mu.Lock()
			histogram[health]++
			mu.Unlock()
		}(e)
	}
	wg.Wait()
	return histogram
}

// isTimeout reports whether err represents the probe's deadline or dial
// timeout expiring, as opposed to a connection being actively refused or
// reset - the two cases Validate must tell apart to choose HealthSlow over
// HealthInvalid.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}

// probeTransportPool sizes the transport BuildTransport produces for a
// single probe: small and short-lived compared to the per-session pool
// client.NewHTTPClient builds, since a probe makes one request and is
// discarded.
var probeTransportPool = client.TransportPoolSize{
	MaxIdleConns:        10,
	MaxIdleConnsPerHost: 5,
	IdleConnTimeout:     30 * time.Second,
}

// buildTransport constructs an *http.Transport that routes through e via
// client.BuildTransport, the same transport constructor a leased session's
// own long-lived http.Client is built from.
func buildTransport(e *model.Egress) (*http.Transport, error) {
	if e == nil || e.Host == "" {
		return client.BuildTransport("", probeTransportPool)
	}
	return client.BuildTransport(e.Key(), probeTransportPool)
}
