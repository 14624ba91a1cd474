package transport

import (
	"context"
	"errors"
	"math/rand"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/danmuck/meshd/internal/testutil/testlog"
	"github.com/danmuck/meshd/internal/transport/frame"
)

func TestParseURI(t *testing.T) {
	cases := []struct {
		in      string
		network string
		address string
	}{
		{"unix:///run/meshd.sock", "unix", "/run/meshd.sock"},
		{"unix:relative.sock", "unix", "relative.sock"},
		{"/tmp/meshd.sock", "unix", "/tmp/meshd.sock"},
		{"./meshd.sock", "unix", "./meshd.sock"},
		{"tcp://127.0.0.1:7400", "tcp", "127.0.0.1:7400"},
		{"tcp://[::1]:7400", "tcp", "[::1]:7400"},
	}
	for _, tc := range cases {
		ep, err := ParseURI(tc.in)
		if err != nil {
			t.Fatalf("parse %q: %v", tc.in, err)
		}
		if ep.Network != tc.network || ep.Address != tc.address {
			t.Fatalf("parse %q = %+v", tc.in, ep)
		}
	}
	for _, bad := range []string{"", "unix://", "tcp://nohost", "http://x:1"} {
		if _, err := ParseURI(bad); !errors.Is(err, ErrInvalidURI) {
			t.Fatalf("parse %q: expected ErrInvalidURI, got %v", bad, err)
		}
	}
}

func TestBackoffDelay(t *testing.T) {
	cfg := BackoffConfig{InitialDelay: 100 * time.Millisecond, Multiplier: 2, MaxDelay: 300 * time.Millisecond}
	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 300 * time.Millisecond, 300 * time.Millisecond}
	for i, w := range want {
		if got := cfg.Delay(i+1, nil); got != w {
			t.Fatalf("attempt %d: got %s want %s", i+1, got, w)
		}
	}
	cfg.Jitter = true
	rng := rand.New(rand.NewSource(1))
	for i := 1; i <= 10; i++ {
		d := cfg.Delay(1, rng)
		if d < 50*time.Millisecond || d >= 150*time.Millisecond {
			t.Fatalf("jittered delay out of range: %s", d)
		}
	}
	if (BackoffConfig{}).Delay(3, nil) != 0 {
		t.Fatalf("zero config should not wait")
	}
}

func pipeConns(t *testing.T) (*Conn, *Conn) {
	t.Helper()
	a, b := net.Pipe()
	cfg := DefaultConfig()
	cfg.ReadTimeout = 2 * time.Second
	cfg.WriteTimeout = 2 * time.Second
	client, server := NewConn(a, "pipe", cfg), NewConn(b, "pipe", cfg)
	t.Cleanup(func() {
		_ = client.Close()
		_ = server.Close()
	})
	return client, server
}

func TestSendReceiveEchoesMessageID(t *testing.T) {
	testlog.Start(t)
	client, server := pipeConns(t)

	go func() {
		for i := 0; i < 2; i++ {
			f, err := server.ReadFrame()
			if err != nil {
				return
			}
			_ = server.WriteFrame(frame.New(f.Header.MessageID, frame.FlagIsResponse, append([]byte("re:"), f.Payload...)))
		}
	}()

	for _, msg := range []string{"one", "two"} {
		n, err := client.Send([]byte(msg))
		if err != nil || n != len(msg) {
			t.Fatalf("send: n=%d err=%v", n, err)
		}
		got, err := client.Receive(1024)
		if err != nil {
			t.Fatalf("receive: %v", err)
		}
		if string(got) != "re:"+msg {
			t.Fatalf("got %q", got)
		}
	}
}

func TestReceiveRejectsMismatchAndCapacity(t *testing.T) {
	testlog.Start(t)
	client, server := pipeConns(t)

	go func() {
		f, err := server.ReadFrame()
		if err != nil {
			return
		}
		_ = server.WriteFrame(frame.New(f.Header.MessageID+7, frame.FlagIsResponse, []byte("x")))
		f, err = server.ReadFrame()
		if err != nil {
			return
		}
		_ = server.WriteFrame(frame.New(f.Header.MessageID, frame.FlagIsResponse, make([]byte, 64)))
	}()

	_, _ = client.Send([]byte("a"))
	if _, err := client.Receive(1024); !errors.Is(err, ErrUnexpectedID) {
		t.Fatalf("expected ErrUnexpectedID, got %v", err)
	}
	_, _ = client.Send([]byte("b"))
	if _, err := client.Receive(16); !errors.Is(err, ErrCapacity) {
		t.Fatalf("expected ErrCapacity, got %v", err)
	}
}

func TestOversizedReplyClosesConn(t *testing.T) {
	testlog.Start(t)
	client, server := pipeConns(t)

	go func() {
		for _, size := range []int{100, 10} {
			f, err := server.ReadFrame()
			if err != nil {
				return
			}
			payload := make([]byte, size)
			for i := range payload {
				payload[i] = 'z'
			}
			if err := server.WriteFrame(frame.New(f.Header.MessageID, frame.FlagIsResponse, payload)); err != nil {
				return
			}
		}
	}()

	if _, err := client.Send([]byte("one")); err != nil {
		t.Fatalf("send: %v", err)
	}
	if _, err := client.Receive(50); !errors.Is(err, ErrCapacity) {
		t.Fatalf("expected ErrCapacity, got %v", err)
	}
	// the unread payload would otherwise be parsed as the next header
	if _, err := client.Send([]byte("two")); !errors.Is(err, ErrClosed) {
		t.Fatalf("send after desync: expected ErrClosed, got %v", err)
	}
	if _, err := client.Receive(0); !errors.Is(err, ErrClosed) {
		t.Fatalf("receive after desync: expected ErrClosed, got %v", err)
	}
}

func TestMalformedHeaderClosesConn(t *testing.T) {
	a, b := net.Pipe()
	client := NewConn(a, "pipe", DefaultConfig())
	t.Cleanup(func() {
		_ = client.Close()
		_ = b.Close()
	})
	go func() {
		_, _ = b.Write(make([]byte, frame.FixedHeaderLen))
	}()
	if _, err := client.ReadFrame(); !errors.Is(err, frame.ErrInvalidMagic) {
		t.Fatalf("expected ErrInvalidMagic, got %v", err)
	}
	if _, err := client.ReadFrame(); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed after bad header, got %v", err)
	}
}

func TestClosedConn(t *testing.T) {
	client, _ := pipeConns(t)
	if err := client.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := client.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if _, err := client.Send([]byte("x")); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if _, err := client.Receive(1); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestDialListenUnixSocket(t *testing.T) {
	testlog.Start(t)
	uri := "unix://" + filepath.Join(t.TempDir(), "meshd.sock")
	ln, err := Listen(uri)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	go func() {
		raw, err := ln.Accept()
		if err != nil {
			return
		}
		c := NewConn(raw, uri, DefaultConfig())
		defer c.Close()
		f, err := c.ReadFrame()
		if err != nil {
			return
		}
		_ = c.WriteFrame(frame.New(f.Header.MessageID, frame.FlagIsResponse, f.Payload))
	}()

	conn, err := Dial(context.Background(), uri, DefaultConfig())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	if _, err := conn.Send([]byte("ping")); err != nil {
		t.Fatalf("send: %v", err)
	}
	got, err := conn.Receive(64)
	if err != nil || string(got) != "ping" {
		t.Fatalf("receive: %q %v", got, err)
	}
}

func TestDialGivesUpAfterMaxAttempts(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxAttempts = 2
	cfg.Backoff = BackoffConfig{InitialDelay: time.Millisecond}
	uri := "unix://" + filepath.Join(t.TempDir(), "missing.sock")
	if _, err := Dial(context.Background(), uri, cfg); err == nil {
		t.Fatalf("expected dial failure")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	cfg.Backoff.InitialDelay = time.Hour
	if _, err := Dial(ctx, uri, cfg); err == nil {
		t.Fatalf("expected cancelled dial to fail")
	}
}
