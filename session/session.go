package session

import (
	"fmt"
	"net/http"
	"time"

	"github.com/firasghr/goantidetect/client"
	"github.com/firasghr/goantidetect/fingerprint"
	"github.com/firasghr/goantidetect/model"
)

// NewHTTPClient builds an *http.Client for sess's own use: a user script
// that needs to make plain HTTP calls alongside the browser (e.g. hitting an
// API the page itself doesn't call) gets a client routed through the
// session's own egress and stamped with its fingerprint's TLS/header
// profile, rather than sharing one client - and one connection pool, one
// cookie jar - across every session in the batch. This is client.NewHTTPClient's
// per-session-own-transport rule, parameterized by a model.UniqueSession
// instead of a bare proxy string.
func NewHTTPClient(sess *model.UniqueSession, timeout time.Duration) (*http.Client, error) {
	if sess == nil {
		return nil, fmt.Errorf("session: build HTTP client: session must not be nil")
	}

	proxyURL := ""
	if sess.Profile.Egress != nil {
		proxyURL = sess.Profile.Egress.Key()
	}

	c, err := client.NewHTTPClient(proxyURL, timeout)
	if err != nil {
		return nil, fmt.Errorf("session %s: build HTTP client: %w", sess.ID, err)
	}

	profile := fingerprint.ProfileFor(&sess.Profile.Fingerprint)
	if t, ok := c.Transport.(*http.Transport); ok {
		profile.ApplyToTransport(t)
	}
	return c, nil
}
