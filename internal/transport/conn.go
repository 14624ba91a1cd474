package transport

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync/atomic"
	"time"

	"github.com/danmuck/meshd/internal/transport/frame"
	"github.com/rs/zerolog/log"
)

var (
	ErrClosed         = errors.New("transport: connection closed")
	ErrCapacity       = errors.New("transport: response exceeds receive capacity")
	ErrUnexpectedID   = errors.New("transport: response id does not match request")
	ErrNotResponse    = errors.New("transport: expected response frame")
	ErrRemoteRejected = errors.New("transport: peer rejected frame")
)

// Conn is a framed, ordered byte stream. Send and Receive form the client
// half of a request/response exchange; ReadFrame and WriteFrame serve the
// accepting side. A Conn is not safe for concurrent Send or Receive calls.
//
// A failed frame read or write leaves the stream position unknown, so the
// Conn closes itself and later calls report ErrClosed.
type Conn struct {
	raw    net.Conn
	cfg    Config
	uri    string
	nextID uint64
	waitID uint64
	closed atomic.Bool
}

// NewConn wraps an established net.Conn.
func NewConn(raw net.Conn, uri string, cfg Config) *Conn {
	if cfg.Limits.MaxPayloadBytes == 0 {
		cfg.Limits = frame.DefaultLimits()
	}
	return &Conn{raw: raw, cfg: cfg, uri: uri}
}

func (c *Conn) URI() string {
	return c.uri
}

func (c *Conn) RemoteAddr() net.Addr {
	return c.raw.RemoteAddr()
}

// Send writes b as one request frame and returns the payload length.
func (c *Conn) Send(b []byte) (int, error) {
	if c.closed.Load() {
		return 0, ErrClosed
	}
	c.nextID++
	c.waitID = c.nextID
	if err := c.WriteFrame(frame.New(c.waitID, 0, b)); err != nil {
		return 0, err
	}
	return len(b), nil
}

// Receive reads the response to the last Send. Payloads larger than
// capacity are rejected.
func (c *Conn) Receive(capacity int) ([]byte, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	limits := c.cfg.Limits
	if capacity > 0 && uint64(capacity) < uint64(limits.MaxPayloadBytes) {
		limits.MaxPayloadBytes = uint32(capacity)
	}
	f, err := c.readFrame(limits)
	if err != nil {
		if errors.Is(err, frame.ErrPayloadTooLarge) {
			return nil, fmt.Errorf("%w: %v", ErrCapacity, err)
		}
		return nil, err
	}
	if !f.IsResponse() {
		return nil, ErrNotResponse
	}
	if f.Header.MessageID != c.waitID {
		return nil, fmt.Errorf("%w: got %d want %d", ErrUnexpectedID, f.Header.MessageID, c.waitID)
	}
	if f.Header.Flags&frame.FlagIsError != 0 {
		return f.Payload, fmt.Errorf("%w: %s", ErrRemoteRejected, f.Payload)
	}
	return f.Payload, nil
}

// ReadFrame reads the next frame under the configured limits.
func (c *Conn) ReadFrame() (frame.Frame, error) {
	return c.readFrame(c.cfg.Limits)
}

func (c *Conn) readFrame(limits frame.Limits) (frame.Frame, error) {
	if c.closed.Load() {
		return frame.Frame{}, ErrClosed
	}
	if c.cfg.ReadTimeout > 0 {
		_ = c.raw.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
	}
	f, err := frame.ReadFrame(c.raw, limits)
	if err != nil {
		c.broken("read", err)
		return frame.Frame{}, err
	}
	return f, nil
}

// WriteFrame writes f under the configured limits and write timeout.
func (c *Conn) WriteFrame(f frame.Frame) error {
	if c.closed.Load() {
		return ErrClosed
	}
	if c.cfg.WriteTimeout > 0 {
		_ = c.raw.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	}
	if err := frame.WriteFrame(c.raw, f, c.cfg.Limits); err != nil {
		// an oversized frame is rejected before any byte is written
		if !errors.Is(err, frame.ErrPayloadTooLarge) {
			c.broken("write", err)
		}
		return err
	}
	return nil
}

func (c *Conn) broken(op string, err error) {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	_ = c.raw.Close()
	if !errors.Is(err, io.EOF) {
		log.Debug().Str("uri", c.uri).Str("op", op).Err(err).Msg("transport.Conn.broken closed after frame error")
	}
}

// SetReadTimeout changes the per-read deadline. Zero disables it.
func (c *Conn) SetReadTimeout(d time.Duration) {
	c.cfg.ReadTimeout = d
}

func (c *Conn) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	return c.raw.Close()
}
