package rpc

import (
	"errors"
	"fmt"
	"strings"

	"github.com/danmuck/meshd/internal/object"
	"github.com/danmuck/meshd/internal/registry"
)

var ErrBadEnvelope = errors.New("rpc: malformed envelope")

// CommandError reports a call that reached the daemon and came back with
// status false. Messages holds the "errors" entry of the output.
type CommandError struct {
	Method   string
	Messages []string
}

func (e *CommandError) Error() string {
	if len(e.Messages) == 0 {
		return fmt.Sprintf("rpc: %s failed", e.Method)
	}
	return fmt.Sprintf("rpc: %s failed: %s", e.Method, strings.Join(e.Messages, "; "))
}

// Request collects call parameters. Appended values are owned by the
// request until it is freed.
type Request struct {
	params *object.List
}

func NewRequest() *Request {
	return &Request{params: object.NewList()}
}

func (r *Request) Params() *object.List {
	return r.params
}

func (r *Request) Len() int {
	return r.params.Len()
}

func (r *Request) AppendString(s string) error {
	return r.params.AppendString(s)
}

func (r *Request) AppendBinary(b []byte) error {
	v, err := object.NewBinary(b)
	if err != nil {
		return err
	}
	return r.params.Append(v, object.Adopt)
}

func (r *Request) AppendInt(v int64) error {
	return r.params.Append(object.NewInt(v), object.Adopt)
}

func (r *Request) AppendUint(v uint64) error {
	return r.params.Append(object.NewUint(v), object.Adopt)
}

func (r *Request) AppendBool(v bool) error {
	return r.params.Append(object.Bool(v), object.Adopt)
}

// AppendObject adopts o into the request.
func (r *Request) AppendObject(o *object.Object) error {
	return r.params.Append(o, object.Adopt)
}

func (r *Request) Free() {
	r.params.Free()
}

// EncodeRequest produces the request envelope [method, params]. params is
// borrowed and left untouched.
func EncodeRequest(method string, params *object.List) ([]byte, error) {
	env := object.NewList()
	defer env.Free()
	if err := env.AppendString(method); err != nil {
		return nil, err
	}
	if params == nil {
		params = object.NewList()
		defer params.Free()
	}
	if err := env.Append(params.Object(), object.Borrow); err != nil {
		return nil, err
	}
	return env.MarshalBinary()
}

// DecodeRequest splits a request envelope. The returned params list is a
// root owned by the caller.
func DecodeRequest(b []byte, limits object.Limits) (string, *object.List, error) {
	o, err := object.NewDecoder(limits).Unmarshal(b)
	if err != nil {
		return "", nil, err
	}
	env, err := o.AsList()
	if err != nil {
		o.Free()
		return "", nil, fmt.Errorf("%w: %v", ErrBadEnvelope, err)
	}
	defer env.Free()
	if env.Len() != 2 {
		return "", nil, fmt.Errorf("%w: request has %d fields", ErrBadEnvelope, env.Len())
	}
	head, _ := env.Element(0)
	method, err := head.AsString()
	if err != nil {
		return "", nil, fmt.Errorf("%w: method: %v", ErrBadEnvelope, err)
	}
	tail, _ := env.Element(1)
	params, err := tail.AsList()
	if err != nil {
		return "", nil, fmt.Errorf("%w: params: %v", ErrBadEnvelope, err)
	}
	if _, err := env.Delete(tail); err != nil {
		return "", nil, err
	}
	return method, params, nil
}

// Response is a decoded reply. Output owns everything it holds.
type Response struct {
	Status bool
	Output *object.Tree
}

// EncodeResponse produces the response envelope [status, output]. out is
// borrowed; nil encodes an empty tree.
func EncodeResponse(status bool, out *object.Tree) ([]byte, error) {
	env := object.NewList()
	defer env.Free()
	if err := env.Append(object.Bool(status), object.Adopt); err != nil {
		return nil, err
	}
	if out == nil {
		out = object.NewTree()
		defer out.Free()
	}
	if err := env.Append(out.Object(), object.Borrow); err != nil {
		return nil, err
	}
	return env.MarshalBinary()
}

func DecodeResponse(b []byte, limits object.Limits) (*Response, error) {
	o, err := object.NewDecoder(limits).Unmarshal(b)
	if err != nil {
		return nil, err
	}
	env, err := o.AsList()
	if err != nil {
		o.Free()
		return nil, fmt.Errorf("%w: %v", ErrBadEnvelope, err)
	}
	defer env.Free()
	if env.Len() != 2 {
		return nil, fmt.Errorf("%w: response has %d fields", ErrBadEnvelope, env.Len())
	}
	head, _ := env.Element(0)
	status, err := head.AsBool()
	if err != nil {
		return nil, fmt.Errorf("%w: status: %v", ErrBadEnvelope, err)
	}
	tail, _ := env.Element(1)
	out, err := tail.AsTree()
	if err != nil {
		return nil, fmt.Errorf("%w: output: %v", ErrBadEnvelope, err)
	}
	if _, err := env.Delete(tail); err != nil {
		return nil, err
	}
	return &Response{Status: status, Output: out}, nil
}

func (r *Response) Free() {
	if r.Output != nil {
		r.Output.Free()
	}
}

// Errors returns the messages the command reported.
func (r *Response) Errors() []string {
	return registry.Errors(r.Output)
}

// Result returns the "result" entry, or nil when absent.
func (r *Response) Result() *object.Object {
	v, err := r.Output.FindString(registry.KeyResult)
	if err != nil {
		return nil
	}
	return v
}

// lookup resolves key in the result tree when "result" is a tree, otherwise
// in the output itself.
func (r *Response) lookup(key string) (*object.Object, error) {
	scope := r.Output
	if res := r.Result(); res != nil {
		if t, err := res.AsTree(); err == nil {
			scope = t
		}
	}
	return scope.FindString(key)
}

func (r *Response) GetObject(key string) (*object.Object, error) {
	return r.lookup(key)
}

func (r *Response) GetString(key string) (string, error) {
	v, err := r.lookup(key)
	if err != nil {
		return "", err
	}
	return v.AsString()
}

func (r *Response) GetBinary(key string) ([]byte, error) {
	v, err := r.lookup(key)
	if err != nil {
		return nil, err
	}
	return v.AsBinary()
}

func (r *Response) GetInt(key string) (int64, error) {
	v, err := r.lookup(key)
	if err != nil {
		return 0, err
	}
	return v.AsInt()
}

func (r *Response) GetUint(key string) (uint64, error) {
	v, err := r.lookup(key)
	if err != nil {
		return 0, err
	}
	return v.AsUint()
}

func (r *Response) GetBool(key string) (bool, error) {
	v, err := r.lookup(key)
	if err != nil {
		return false, err
	}
	return v.AsBool()
}
