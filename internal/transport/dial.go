package transport

import (
	"context"
	"fmt"
	"math/rand"
	"net"
	"os"
	"time"

	"github.com/rs/zerolog/log"
)

// Dial connects to uri, retrying with backoff up to cfg.MaxAttempts.
func Dial(ctx context.Context, uri string, cfg Config) (*Conn, error) {
	ep, err := ParseURI(uri)
	if err != nil {
		return nil, err
	}
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	d := net.Dialer{Timeout: cfg.DialTimeout}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		raw, err := d.DialContext(ctx, ep.Network, ep.Address)
		if err == nil {
			log.Debug().Str("uri", ep.String()).Int("attempt", attempt).Msg("transport.Dial connected")
			return NewConn(raw, uri, cfg), nil
		}
		lastErr = err
		if attempt == attempts {
			break
		}
		delay := cfg.Backoff.Delay(attempt, rng)
		log.Debug().Str("uri", ep.String()).Int("attempt", attempt).Dur("retry_in", delay).Err(err).Msg("transport.Dial retry")
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	return nil, fmt.Errorf("transport: dial %s after %d attempts: %w", ep, attempts, lastErr)
}

// Listen opens a listener for uri. A stale unix socket file is removed
// first.
func Listen(uri string) (net.Listener, error) {
	ep, err := ParseURI(uri)
	if err != nil {
		return nil, err
	}
	if ep.Network == "unix" {
		if fi, err := os.Stat(ep.Address); err == nil && fi.Mode()&os.ModeSocket != 0 {
			if err := os.Remove(ep.Address); err != nil {
				return nil, fmt.Errorf("transport: remove stale socket %s: %w", ep.Address, err)
			}
		}
	}
	ln, err := net.Listen(ep.Network, ep.Address)
	if err != nil {
		return nil, fmt.Errorf("transport: listen %s: %w", ep, err)
	}
	return ln, nil
}
