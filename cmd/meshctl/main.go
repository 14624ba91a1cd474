package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/danmuck/meshd/internal/logging"
	"github.com/danmuck/meshd/internal/object"
	"github.com/danmuck/meshd/internal/rpc"
	"github.com/danmuck/meshd/internal/transport"
	"github.com/spf13/pflag"
)

type result struct {
	Status bool `json:"status"`
	Output any  `json:"output"`
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(argv []string, stdout, stderr io.Writer) int {
	logging.ConfigureRuntime()

	flags := pflag.NewFlagSet("meshctl", pflag.ContinueOnError)
	flags.SetOutput(stderr)
	socket := flags.StringP("socket", "s", "unix:///tmp/meshd.sock", "daemon socket uri")
	timeout := flags.DurationP("timeout", "t", 10*time.Second, "dial and call timeout")
	level := flags.String("log-level", "warn", "log level")
	flags.Usage = func() {
		fmt.Fprintln(stderr, "usage: meshctl [--socket uri] [--timeout d] method [args...]")
		fmt.Fprintln(stderr, "args take an optional type prefix: s: i: u: b: x:(hex)")
		flags.PrintDefaults()
	}
	if err := flags.Parse(argv); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		return 2
	}
	logging.SetLevel(*level)
	if flags.NArg() < 1 {
		flags.Usage()
		return 2
	}

	req, err := buildRequest(flags.Args()[1:])
	if err != nil {
		fmt.Fprintf(stderr, "meshctl: %v\n", err)
		return 2
	}
	defer req.Free()

	cfg := transport.DefaultConfig()
	cfg.DialTimeout = *timeout
	cfg.ReadTimeout = *timeout
	cfg.WriteTimeout = *timeout
	client := rpc.NewClient(rpc.TransportDialer(cfg))
	defer client.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	conn, err := client.Connect(ctx, *socket)
	if err != nil {
		fmt.Fprintf(stderr, "meshctl: %v\n", err)
		return 1
	}

	resp, callErr := conn.Call(flags.Arg(0), req)
	if resp == nil {
		fmt.Fprintf(stderr, "meshctl: %v\n", callErr)
		return 1
	}
	defer resp.Free()
	if err := printResponse(stdout, resp); err != nil {
		fmt.Fprintf(stderr, "meshctl: %v\n", err)
		return 1
	}
	if callErr != nil {
		return 1
	}
	return 0
}

func printResponse(w io.Writer, resp *rpc.Response) error {
	var out any
	if resp.Output != nil {
		out = object.Native(resp.Output.Object())
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(result{Status: resp.Status, Output: out})
}
