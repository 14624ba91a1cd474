package transport

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

var ErrInvalidURI = errors.New("transport: invalid uri")

// Endpoint is a parsed connection URI.
type Endpoint struct {
	Network string
	Address string
}

func (e Endpoint) String() string {
	return e.Network + "://" + e.Address
}

// ParseURI accepts unix:///path, unix:path, tcp://host:port, or a bare
// filesystem path, which is treated as a unix socket.
func ParseURI(raw string) (Endpoint, error) {
	uri := strings.TrimSpace(raw)
	if uri == "" {
		return Endpoint{}, fmt.Errorf("%w: empty", ErrInvalidURI)
	}
	scheme, rest, ok := strings.Cut(uri, ":")
	if !ok || strings.ContainsAny(scheme, "/.") {
		return Endpoint{Network: "unix", Address: uri}, nil
	}
	rest = strings.TrimPrefix(rest, "//")
	switch scheme {
	case "unix":
		if rest == "" {
			return Endpoint{}, fmt.Errorf("%w: %q has no path", ErrInvalidURI, raw)
		}
		return Endpoint{Network: "unix", Address: rest}, nil
	case "tcp", "tcp4", "tcp6":
		host, port, err := net.SplitHostPort(rest)
		if err != nil {
			return Endpoint{}, fmt.Errorf("%w: %q: %v", ErrInvalidURI, raw, err)
		}
		if port == "" {
			return Endpoint{}, fmt.Errorf("%w: %q has no port", ErrInvalidURI, raw)
		}
		return Endpoint{Network: scheme, Address: net.JoinHostPort(host, port)}, nil
	default:
		return Endpoint{}, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURI, scheme)
	}
}
