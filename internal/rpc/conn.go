// Package rpc is the client side of meshd calls: it builds request
// envelopes, moves them over a Connection and decodes typed responses.
package rpc

import (
	"context"
	"errors"
	"fmt"

	"github.com/danmuck/meshd/internal/object"
	"github.com/danmuck/meshd/internal/observability"
	"github.com/danmuck/meshd/internal/transport"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// DefaultCapacity bounds a single response payload.
const DefaultCapacity = 1 << 20

var ErrShortWrite = errors.New("rpc: short write")

// Connection is an ordered byte stream to a daemon.
type Connection interface {
	Send(b []byte) (int, error)
	Receive(capacity int) ([]byte, error)
	Close() error
}

// Dialer opens a Connection for uri.
type Dialer func(ctx context.Context, uri string) (Connection, error)

// TransportDialer dials framed sockets with cfg.
func TransportDialer(cfg transport.Config) Dialer {
	return func(ctx context.Context, uri string) (Connection, error) {
		return transport.Dial(ctx, uri, cfg)
	}
}

// Conn is one tracked connection. Calls on a Conn must not overlap.
type Conn struct {
	ID       uuid.UUID
	URI      string
	Capacity int
	Limits   object.Limits

	conn Connection
}

func NewConn(uri string, c Connection) *Conn {
	return &Conn{
		ID:       uuid.New(),
		URI:      uri,
		Capacity: DefaultCapacity,
		Limits:   object.DefaultLimits(),
		conn:     c,
	}
}

// Call sends method with req's parameters and waits for the reply. A nil
// req sends no parameters. Transport and decode failures return only an
// error; a reply with status false returns the Response together with a
// *CommandError.
func (c *Conn) Call(method string, req *Request) (*Response, error) {
	var params *object.List
	if req != nil {
		params = req.params
	}
	payload, err := EncodeRequest(method, params)
	if err != nil {
		observability.RecordRPC(method, observability.OutcomeError)
		return nil, err
	}
	n, err := c.conn.Send(payload)
	if err != nil {
		observability.RecordRPC(method, observability.OutcomeError)
		return nil, fmt.Errorf("rpc: send %s: %w", method, err)
	}
	if n != len(payload) {
		observability.RecordRPC(method, observability.OutcomeError)
		return nil, fmt.Errorf("%w: %d of %d bytes", ErrShortWrite, n, len(payload))
	}
	raw, err := c.conn.Receive(c.Capacity)
	if err != nil {
		observability.RecordRPC(method, observability.OutcomeError)
		return nil, fmt.Errorf("rpc: receive %s: %w", method, err)
	}
	resp, err := DecodeResponse(raw, c.Limits)
	if err != nil {
		observability.RecordRPC(method, observability.OutcomeError)
		return nil, fmt.Errorf("rpc: decode %s: %w", method, err)
	}
	if !resp.Status {
		observability.RecordRPC(method, observability.OutcomeFailed)
		log.Debug().Str("method", method).Strs("errors", resp.Errors()).Msg("rpc.Conn.Call failed")
		return resp, &CommandError{Method: method, Messages: resp.Errors()}
	}
	observability.RecordRPC(method, observability.OutcomeOK)
	return resp, nil
}

func (c *Conn) Close() error {
	return c.conn.Close()
}
