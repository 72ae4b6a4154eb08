// Package proxy parses a file of proxy addresses into model.Egress values for
// egress.Pool.Load, feeding the richer egress.Pool (which owns rotation,
// health tracking, and lease/release) rather than a flat round-robin string
// rotation. Line-format parsing is grounded on
// original_source/.../domain/models/proxy.py's ProxyConfig.from_line and
// from_url.
package proxy

import (
	"bufio"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/firasghr/goantidetect/model"
)

// LoadFile reads a newline-delimited proxy list from filename and parses
// each line into a model.Egress. Lines that are blank or start with '#' are
// skipped. Each line is either:
//
//	host:port                    (defaultProtocol, no auth)
//	host:port:username:password  (defaultProtocol, with auth)
//	protocol://[user:pass@]host:port  (full URL form)
//
// A malformed line aborts the whole load with an error identifying the line
// number, so a typo in a 10,000-line proxy file is caught immediately rather
// than silently dropping one entry.
func LoadFile(filename string, defaultProtocol model.EgressProtocol) ([]*model.Egress, error) {
	f, err := os.Open(filename) // #nosec G304 -- filename is an operator-supplied config path
	if err != nil {
		return nil, fmt.Errorf("proxy: open %q: %w", filename, err)
	}
	defer f.Close()

	var out []*model.Egress
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		eg, err := ParseLine(line, defaultProtocol)
		if err != nil {
			return nil, fmt.Errorf("proxy: %s line %d: %w", filename, lineNo, err)
		}
		out = append(out, eg)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("proxy: read %q: %w", filename, err)
	}
	return out, nil
}

// ParseLine parses one proxy entry. See LoadFile for the accepted formats.
func ParseLine(line string, defaultProtocol model.EgressProtocol) (*model.Egress, error) {
	if strings.Contains(line, "://") {
		return parseURL(line)
	}

	parts := strings.Split(line, ":")
	switch len(parts) {
	case 2:
		port, err := strconv.Atoi(parts[1])
		if err != nil {
			return nil, fmt.Errorf("invalid port %q: %w", parts[1], err)
		}
		return &model.Egress{Protocol: defaultProtocol, Host: parts[0], Port: port}, nil

	case 4:
		port, err := strconv.Atoi(parts[1])
		if err != nil {
			return nil, fmt.Errorf("invalid port %q: %w", parts[1], err)
		}
		return &model.Egress{
			Protocol: defaultProtocol,
			Host:     parts[0],
			Port:     port,
			Username: parts[2],
			Password: parts[3],
		}, nil

	default:
		return nil, fmt.Errorf("invalid proxy line format %q", line)
	}
}

func parseURL(raw string) (*model.Egress, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy URL %q: %w", raw, err)
	}

	protocol := model.EgressProtocol(u.Scheme)
	switch protocol {
	case model.ProtocolHTTP, model.ProtocolHTTPS, model.ProtocolSOCKS4, model.ProtocolSOCKS5:
	default:
		return nil, fmt.Errorf("unsupported proxy protocol %q", u.Scheme)
	}

	if u.Hostname() == "" || u.Port() == "" {
		return nil, fmt.Errorf("proxy URL %q missing host or port", raw)
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil {
		return nil, fmt.Errorf("invalid port in %q: %w", raw, err)
	}

	eg := &model.Egress{Protocol: protocol, Host: u.Hostname(), Port: port}
	if u.User != nil {
		eg.Username = u.User.Username()
		eg.Password, _ = u.User.Password()
	}
	return eg, nil
}
