package discovery

import (
	"fmt"
	"net"
	"strings"
)

const (
	defaultHTTPPort = "80"
	versionPath     = "/cp/version.json"
)

// NormalizeHost turns "10.0.0.5", "10.0.0.5:8080" or "http://cpy.local/"
// into host:port form, defaulting the port to 80.
func NormalizeHost(host string) (string, error) {
	h := strings.TrimSpace(host)
	h = strings.TrimPrefix(h, "http://")
	h = strings.TrimPrefix(h, "https://")
	h = strings.TrimSuffix(h, "/")
	if h == "" || strings.ContainsAny(h, "/?# ") {
		return "", fmt.Errorf("%w: %q", ErrInvalidHost, host)
	}

	if hostname, port, err := net.SplitHostPort(h); err == nil {
		if hostname == "" || port == "" {
			return "", fmt.Errorf("%w: %q", ErrInvalidHost, host)
		}
		return h, nil
	}
	return net.JoinHostPort(strings.Trim(h, "[]"), defaultHTTPPort), nil
}

// VersionURL returns the version.json URL for a normalized host:port.
func VersionURL(hostPort string) string {
	return "http://" + hostPort + versionPath
}

// hostOnly strips the port from a normalized host:port.
func hostOnly(hostPort string) string {
	if h, _, err := net.SplitHostPort(hostPort); err == nil {
		return h
	}
	return hostPort
}
