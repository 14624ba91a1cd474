package rpc

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/danmuck/meshd/internal/transport"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var ErrUnknownConn = errors.New("rpc: connection not tracked by client")

// Client owns a set of connections and tears them all down on Shutdown.
type Client struct {
	dial Dialer

	mu    sync.Mutex
	conns map[uuid.UUID]*Conn
	order []uuid.UUID
}

// NewClient returns a client using dial, or framed sockets with default
// settings when dial is nil.
func NewClient(dial Dialer) *Client {
	if dial == nil {
		dial = TransportDialer(transport.DefaultConfig())
	}
	return &Client{dial: dial, conns: make(map[uuid.UUID]*Conn)}
}

func (c *Client) Connect(ctx context.Context, uri string) (*Conn, error) {
	raw, err := c.dial(ctx, uri)
	if err != nil {
		return nil, fmt.Errorf("rpc: connect %s: %w", uri, err)
	}
	conn := NewConn(uri, raw)

	c.mu.Lock()
	c.conns[conn.ID] = conn
	c.order = append(c.order, conn.ID)
	c.mu.Unlock()

	log.Debug().Str("uri", uri).Str("conn_id", conn.ID.String()).Msg("rpc.Client.Connect")
	return conn, nil
}

// Disconnect closes conn and stops tracking it.
func (c *Client) Disconnect(conn *Conn) error {
	c.mu.Lock()
	if _, ok := c.conns[conn.ID]; !ok {
		c.mu.Unlock()
		return ErrUnknownConn
	}
	c.forget(conn.ID)
	c.mu.Unlock()
	return conn.Close()
}

// Conns returns tracked connections in connect order.
func (c *Client) Conns() []*Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Conn, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.conns[id])
	}
	return out
}

// Shutdown closes every tracked connection.
func (c *Client) Shutdown() error {
	c.mu.Lock()
	conns := make([]*Conn, 0, len(c.order))
	for _, id := range c.order {
		conns = append(conns, c.conns[id])
	}
	c.conns = make(map[uuid.UUID]*Conn)
	c.order = nil
	c.mu.Unlock()

	var errs []error
	for _, conn := range conns {
		if err := conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", conn.URI, err))
		}
	}
	return errors.Join(errs...)
}

func (c *Client) forget(id uuid.UUID) {
	delete(c.conns, id)
	for i, v := range c.order {
		if v == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			return
		}
	}
}
