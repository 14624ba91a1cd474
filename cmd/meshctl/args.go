package main

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/danmuck/meshd/internal/rpc"
)

// appendArg adds one command-line argument to req. A type prefix selects
// the variant: s: string, i: signed, u: unsigned, b: bool, x: hex binary.
// Anything else is sent as a string.
func appendArg(req *rpc.Request, arg string) error {
	prefix, rest, ok := strings.Cut(arg, ":")
	if !ok || len(prefix) != 1 {
		return req.AppendString(arg)
	}
	switch prefix {
	case "s":
		return req.AppendString(rest)
	case "i":
		v, err := strconv.ParseInt(rest, 0, 64)
		if err != nil {
			return fmt.Errorf("arg %q: %w", arg, err)
		}
		return req.AppendInt(v)
	case "u":
		v, err := strconv.ParseUint(rest, 0, 64)
		if err != nil {
			return fmt.Errorf("arg %q: %w", arg, err)
		}
		return req.AppendUint(v)
	case "b":
		v, err := strconv.ParseBool(rest)
		if err != nil {
			return fmt.Errorf("arg %q: %w", arg, err)
		}
		return req.AppendBool(v)
	case "x":
		v, err := hex.DecodeString(rest)
		if err != nil {
			return fmt.Errorf("arg %q: %w", arg, err)
		}
		return req.AppendBinary(v)
	default:
		return req.AppendString(arg)
	}
}

func buildRequest(args []string) (*rpc.Request, error) {
	req := rpc.NewRequest()
	for _, a := range args {
		if err := appendArg(req, a); err != nil {
			req.Free()
			return nil, err
		}
	}
	return req, nil
}
