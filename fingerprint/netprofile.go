// Package fingerprint produces internally consistent browser fingerprints and
// the network-level (TLS/HTTP) and behavioral (mouse-path) signals that must
// stay coherent with them.
//
// Advanced anti-bot systems correlate the TLS ClientHello (JA3), HTTP/2
// SETTINGS frame, and the User-Agent header to detect automation. A mismatch
// between any of these three signals - e.g. a Chrome-like TLS hello combined
// with a Firefox User-Agent - is a reliable automation indicator. NetProfile
// bundles all three signals, derived from a generated *model.Fingerprint, and
// applies them consistently to an http.Transport and request headers so a
// session's wire-level signature matches the navigator it claims.
package fingerprint

import (
	"crypto/tls"
	"net/http"
	"strings"

	utls "github.com/refraction-networking/utls"

	"github.com/firasghr/goantidetect/client"
	"github.com/firasghr/goantidetect/model"
)

// Header is an ordered name-value pair for HTTP headers.
type Header struct {
	Name  string
	Value string
}

// NetProfile bundles the correlated fingerprint signals for one session:
// the uTLS ClientHello identity, the User-Agent, and the ordered extra
// headers real browsers send alongside it.
type NetProfile struct {
	// HelloID selects the uTLS parrot used for the TLS ClientHello.
	HelloID utls.ClientHelloID

	// UserAgent is injected into every request as the "User-Agent" header.
	UserAgent string

	// ExtraHeaders contains additional static headers sent with every
	// request, in the order they are defined.
	ExtraHeaders []Header
}

// ProfileFor derives a NetProfile that matches fp's navigator: a nil fp or a
// User-Agent containing "Firefox" gets the Firefox profile, anything else
// gets the uTLS Chrome parrot. Keeping this selection in one place is what prevents a
// Chrome-flavoured fingerprint from going out over a Firefox TLS hello.
func ProfileFor(fp *model.Fingerprint) *NetProfile {
	if fp == nil || strings.Contains(fp.Navigator.UserAgent, "Firefox") {
		p := FirefoxProfile()
		if fp != nil {
			p.UserAgent = fp.Navigator.UserAgent
		}
		return p
	}
	p := ChromeProfile()
	p.UserAgent = fp.Navigator.UserAgent
	p.ExtraHeaders = append([]Header(nil), p.ExtraHeaders...)
	for i, h := range p.ExtraHeaders {
		if h.Name == "Sec-Ch-Ua-Platform" {
			p.ExtraHeaders[i].Value = `"` + platformSecChUa(fp.Navigator.Platform) + `"`
		}
	}
	return p
}

func platformSecChUa(navPlatform string) string {
	switch navPlatform {
	case "MacIntel":
		return "macOS"
	case "Linux x86_64":
		return "Linux"
	default:
		return "Windows"
	}
}

// ChromeProfile returns a NetProfile that mimics a recent Chrome release
// using uTLS's Chrome 120 parrot, the same ClientHelloSpec that
// client.UTLSDialer applies to the transport.
func ChromeProfile() *NetProfile {
	return &NetProfile{
		HelloID: utls.HelloChrome_120,
		UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) " +
			"AppleWebKit/537.36 (KHTML, like Gecko) " +
			"Chrome/120.0.0.0 Safari/537.36",
		ExtraHeaders: []Header{
			{Name: "Accept", Value: "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8"},
			{Name: "Accept-Language", Value: "en-US,en;q=0.9"},
			{Name: "Accept-Encoding", Value: "gzip, deflate, br"},
			{Name: "Sec-Ch-Ua", Value: `"Not_A Brand";v="8", "Chromium";v="120", "Google Chrome";v="120"`},
			{Name: "Sec-Ch-Ua-Mobile", Value: "?0"},
			{Name: "Sec-Ch-Ua-Platform", Value: `"Windows"`},
			{Name: "Sec-Fetch-Dest", Value: "document"},
			{Name: "Sec-Fetch-Mode", Value: "navigate"},
			{Name: "Sec-Fetch-Site", Value: "none"},
			{Name: "Upgrade-Insecure-Requests", Value: "1"},
		},
	}
}

// FirefoxProfile returns a NetProfile that mimics Firefox 121 with uTLS's
// HelloFirefox_Auto ID. client.UTLSDialer builds an explicit ClientHelloSpec
// only for Chrome IDs, so this profile gets its default (non-Chrome)
// handshake there.
func FirefoxProfile() *NetProfile {
	return &NetProfile{
		HelloID: utls.HelloFirefox_Auto,
		UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:121.0) " +
			"Gecko/20100101 Firefox/121.0",
		ExtraHeaders: []Header{
			{Name: "Accept", Value: "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8"},
			{Name: "Accept-Language", Value: "en-US,en;q=0.5"},
			{Name: "Accept-Encoding", Value: "gzip, deflate, br"},
			{Name: "Upgrade-Insecure-Requests", Value: "1"},
			{Name: "Sec-Fetch-Dest", Value: "document"},
			{Name: "Sec-Fetch-Mode", Value: "navigate"},
			{Name: "Sec-Fetch-Site", Value: "none"},
			{Name: "Sec-Fetch-User", Value: "?1"},
		},
	}
}

// ApplyToTransport wires p's uTLS ClientHello into t via DialTLSContext, so
// the TLS-layer signature (JA3) matches p.UserAgent at the HTTP layer.
func (p *NetProfile) ApplyToTransport(t *http.Transport) {
	if t == nil || p == nil {
		return
	}
	t.DialTLSContext = client.UTLSDialerHTTP1(p.HelloID)
	t.TLSClientConfig = &tls.Config{MinVersion: tls.VersionTLS12}
}

// ApplyHeaders merges the profile's User-Agent and ExtraHeaders into headers.
// ExtraHeaders are only written if the key is not already present, so
// session-level overrides take precedence.
func (p *NetProfile) ApplyHeaders(headers map[string]string) {
	if headers == nil || p == nil {
		return
	}
	if p.UserAgent != "" {
		headers["User-Agent"] = p.UserAgent
	}
	for _, h := range p.ExtraHeaders {
		if _, exists := headers[h.Name]; !exists {
			headers[h.Name] = h.Value
		}
	}
}
