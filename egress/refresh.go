package egress

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// CredentialRefresher maintains a bearer credential for an authenticated
// egress provider (a proxy gateway that issues short-lived access tokens
// rather than a static username/password), refreshing it automatically
// before expiry.
//
// Most egress entries never need this - static username/password proxies
// set Egress.Username/Password directly. CredentialRefresher exists for the
// optional case where the egress source is itself a gateway API that hands
// out JWT-style session tokens; one refresher is scoped to one egress.
type CredentialRefresher struct {
	token      string
	refreshURL string
	client     *http.Client
	mu         sync.RWMutex
	stopCh     chan struct{}
	once       sync.Once
}

// NewCredentialRefresher creates a refresher that fetches new bearer
// credentials from refreshURL. A nil client defaults to http.DefaultClient.
func NewCredentialRefresher(refreshURL string, client *http.Client) *CredentialRefresher {
	if client == nil {
		client = http.DefaultClient
	}
	return &CredentialRefresher{
		refreshURL: refreshURL,
		client:     client,
		stopCh:     make(chan struct{}),
	}
}

// Token returns the current bearer credential.
func (r *CredentialRefresher) Token() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.token
}

// setToken stores a newly fetched credential.
func (r *CredentialRefresher) setToken(tok string) {
	r.mu.Lock()
	r.token = tok
	r.mu.Unlock()
}

// parseExpiry decodes the unverified payload segment of a JWT-shaped
// credential and returns its "exp" claim, if present. Signature verification
// is intentionally skipped: the gateway is trusted, and the only thing this
// reads is when to proactively refresh.
func parseExpiry(token string) (time.Time, bool) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return time.Time{}, false
	}
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return time.Time{}, false
	}
	var claims map[string]interface{}
	if err := json.Unmarshal(payload, &claims); err != nil {
		return time.Time{}, false
	}
	exp, ok := claims["exp"].(float64)
	if !ok {
		return time.Time{}, false
	}
	return time.Unix(int64(exp), 0), true
}

// Refresh performs an HTTP GET to refreshURL and stores the raw credential
// string returned in the body.
func (r *CredentialRefresher) Refresh() error {
	if r.refreshURL == "" {
		return fmt.Errorf("egress: credential refresh URL is not configured")
	}

	resp, err := r.client.Get(r.refreshURL) // #nosec G107 – URL is operator-supplied
	if err != nil {
		return fmt.Errorf("egress: credential refresh request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("egress: credential refresh returned HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8192))
	if err != nil {
		return fmt.Errorf("egress: read credential refresh response: %w", err)
	}

	tok := strings.TrimSpace(string(body))
	if tok == "" {
		return fmt.Errorf("egress: credential refresh returned an empty token")
	}
	r.setToken(tok)
	return nil
}

// StartAutoRefresh launches a background goroutine that checks the current
// credential every checkInterval and calls Refresh when it is missing or
// will expire within refreshBefore. A credential whose expiry cannot be read
// is left as it is. Non-blocking; call Stop to terminate it.
func (r *CredentialRefresher) StartAutoRefresh(checkInterval, refreshBefore time.Duration) {
	go func() {
		ticker := time.NewTicker(checkInterval)
		defer ticker.Stop()
		for {
			select {
			case <-r.stopCh:
				return
			case <-ticker.C:
				tok := r.Token()
				if tok == "" {
					_ = r.Refresh()
					continue
				}
				exp, ok := parseExpiry(tok)
				if !ok {
					continue
				}
				if time.Now().After(exp.Add(-refreshBefore)) {
					_ = r.Refresh()
				}
			}
		}
	}()
}

// Stop signals the background refresh goroutine to exit. Idempotent.
func (r *CredentialRefresher) Stop() {
	r.once.Do(func() {
		close(r.stopCh)
	})
}
