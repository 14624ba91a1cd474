// Package registry maps command names to handlers. A Registry is an explicit
// context object with an Init/Shutdown lifecycle and is not safe for
// concurrent use; callers serialize access.
package registry

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/danmuck/meshd/internal/object"
	"github.com/danmuck/meshd/internal/observability"
	"github.com/rs/zerolog/log"
)

var (
	ErrNotInitialized = errors.New("registry: not initialized")
	ErrInvalidName    = errors.New("registry: invalid command name")
	ErrNilHandler     = errors.New("registry: handler is nil")
)

// Handler runs a command. It writes its output into out, conventionally
// under "result" on success and "errors" on failure.
type Handler func(cmd *Command, out *object.Tree, params *object.List) error

// Command is the runtime record behind an ExtCommand object.
type Command struct {
	name    string
	usage   string
	desc    string
	handler Handler
	obj     *object.Object
}

func (c *Command) Name() string           { return c.name }
func (c *Command) Usage() string          { return c.usage }
func (c *Command) Desc() string           { return c.desc }
func (c *Command) Object() *object.Object { return c.obj }

// CommandInfo is the handler-free description of a command.
type CommandInfo struct {
	Name  string `json:"name"`
	Usage string `json:"usage"`
	Desc  string `json:"desc"`
}

func (c *Command) Info() CommandInfo {
	return CommandInfo{Name: c.name, Usage: c.usage, Desc: c.desc}
}

// HandlerError reports a command that ran and failed. Messages mirrors the
// "errors" entry of the output tree.
type HandlerError struct {
	Command  string
	Messages []string
	Err      error
}

func (e *HandlerError) Error() string {
	if len(e.Messages) == 0 {
		return fmt.Sprintf("registry: %s failed", e.Command)
	}
	return fmt.Sprintf("registry: %s failed: %s", e.Command, strings.Join(e.Messages, "; "))
}

func (e *HandlerError) Unwrap() error {
	return e.Err
}

type Registry struct {
	cmds *object.Tree
}

func New() *Registry {
	return &Registry{}
}

// Init allocates the command tree. A second call is a no-op.
func (r *Registry) Init(width object.Width) error {
	if r.cmds != nil {
		return nil
	}
	cmds, err := object.NewTreeWidth(width)
	if err != nil {
		return fmt.Errorf("registry: init: %w", err)
	}
	r.cmds = cmds
	log.Debug().Str("width", width.String()).Msg("registry.Registry.Init ready")
	return nil
}

// Initialized reports whether Init has run since the last Shutdown.
func (r *Registry) Initialized() bool {
	return r.cmds != nil
}

// Shutdown frees every command. The registry must be initialized again
// before further use.
func (r *Registry) Shutdown() {
	if r.cmds == nil {
		return
	}
	n := r.cmds.Len()
	r.cmds.Free()
	r.cmds = nil
	log.Debug().Int("commands", n).Msg("registry.Registry.Shutdown done")
}

// Register stores a command, replacing any previous one with that name.
func (r *Registry) Register(name, usage, desc string, h Handler) error {
	if r.cmds == nil {
		return ErrNotInitialized
	}
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if h == nil {
		return fmt.Errorf("%w: %s", ErrNilHandler, name)
	}
	cmd := &Command{name: name, usage: usage, desc: desc, handler: h}
	data, err := encodeCommand(name, usage, desc)
	if err != nil {
		return err
	}
	cmd.obj, err = object.NewExtRef(object.ExtCommand, data, cmd)
	if err != nil {
		return err
	}
	if err := r.cmds.InsertForce([]byte(name), cmd.obj, object.Adopt); err != nil {
		return err
	}
	log.Debug().Str("command", name).Msg("registry.Registry.Register")
	return nil
}

// Lookup returns the command registered under name.
func (r *Registry) Lookup(name string) (*Command, error) {
	if r.cmds == nil {
		return nil, ErrNotInitialized
	}
	o, err := r.cmds.FindString(name)
	if err != nil {
		return nil, fmt.Errorf("%w: command %q", object.ErrKeyNotFound, name)
	}
	cmd, ok := o.Ref().(*Command)
	if !ok {
		return nil, fmt.Errorf("%w: %q is not a command", object.ErrTypeMismatch, name)
	}
	return cmd, nil
}

// Exec runs the named command. An unknown name fails with
// object.ErrKeyNotFound and invokes nothing. A failing handler yields the
// populated output together with a *HandlerError.
func (r *Registry) Exec(name string, params *object.List) (*object.Tree, error) {
	cmd, err := r.Lookup(name)
	if err != nil {
		if errors.Is(err, object.ErrKeyNotFound) {
			observability.RecordExec(observability.UnknownCommand, observability.OutcomeNotFound, 0)
		}
		return nil, err
	}
	if params == nil {
		params = object.NewList()
		defer params.Free()
	}

	out := object.NewTree()
	start := time.Now()
	herr := cmd.handler(cmd, out, params)
	elapsed := time.Since(start)

	msgs := Errors(out)
	if herr == nil && len(msgs) == 0 {
		observability.RecordExec(name, observability.OutcomeOK, elapsed)
		log.Debug().Str("command", name).Dur("duration", elapsed).Msg("registry.Registry.Exec ok")
		return out, nil
	}
	if herr != nil && len(msgs) == 0 {
		_ = AppendError(out, herr.Error())
		msgs = Errors(out)
	}
	observability.RecordExec(name, observability.OutcomeFailed, elapsed)
	log.Debug().Str("command", name).Strs("errors", msgs).Msg("registry.Registry.Exec failed")
	return out, &HandlerError{Command: name, Messages: msgs, Err: herr}
}

func (r *Registry) Usage(name string) (string, error) {
	cmd, err := r.Lookup(name)
	if err != nil {
		return "", err
	}
	return cmd.usage, nil
}

func (r *Registry) Desc(name string) (string, error) {
	cmd, err := r.Lookup(name)
	if err != nil {
		return "", err
	}
	return cmd.desc, nil
}

// Names returns registered names in ascending byte order.
func (r *Registry) Names() []string {
	if r.cmds == nil {
		return nil
	}
	out := make([]string, 0, r.cmds.Len())
	k, _, ok := r.cmds.First()
	for ok {
		out = append(out, string(k))
		k, _, ok = r.cmds.Next(k)
	}
	return out
}

// Commands returns the registered command records in name order.
func (r *Registry) Commands() []*Command {
	if r.cmds == nil {
		return nil
	}
	out := make([]*Command, 0, r.cmds.Len())
	for _, o := range r.cmds.All() {
		if cmd, ok := o.Ref().(*Command); ok {
			out = append(out, cmd)
		}
	}
	return out
}

func (r *Registry) Len() int {
	if r.cmds == nil {
		return 0
	}
	return r.cmds.Len()
}
