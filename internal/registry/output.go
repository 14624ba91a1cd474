package registry

import (
	"fmt"

	"github.com/danmuck/meshd/internal/object"
)

const (
	KeyResult = "result"
	KeyErrors = "errors"
)

// SetResult stores v under "result", adopting it.
func SetResult(out *object.Tree, v *object.Object) error {
	return out.Put(KeyResult, v)
}

// AppendError adds msg to the "errors" list, creating it when absent.
func AppendError(out *object.Tree, msg string) error {
	errs, err := errorList(out, true)
	if err != nil {
		return err
	}
	return errs.AppendString(msg)
}

// Errorf is AppendError with formatting.
func Errorf(out *object.Tree, format string, args ...any) error {
	return AppendError(out, fmt.Sprintf(format, args...))
}

// Errors returns the messages in the "errors" list. Non-string entries are
// rendered with their debug form.
func Errors(out *object.Tree) []string {
	if out == nil {
		return nil
	}
	errs, err := errorList(out, false)
	if err != nil || errs == nil {
		return nil
	}
	msgs := make([]string, 0, errs.Len())
	for _, v := range errs.All() {
		if s, err := v.AsString(); err == nil {
			msgs = append(msgs, s)
			continue
		}
		msgs = append(msgs, v.String())
	}
	return msgs
}

func errorList(out *object.Tree, create bool) (*object.List, error) {
	v, err := out.FindString(KeyErrors)
	if err != nil {
		if !create {
			return nil, nil
		}
		l := object.NewList()
		if err := out.Put(KeyErrors, l.Object()); err != nil {
			l.Free()
			return nil, err
		}
		return l, nil
	}
	return v.AsList()
}

func encodeCommand(name, usage, desc string) ([]byte, error) {
	l := object.NewList()
	defer l.Free()
	for _, s := range []string{name, usage, desc} {
		if err := l.AppendString(s); err != nil {
			return nil, err
		}
	}
	return l.MarshalBinary()
}

// DecodeCommand reads name, usage and description back out of an ExtCommand
// object, for commands that crossed the wire without their handler.
func DecodeCommand(o *object.Object) (name, usage, desc string, err error) {
	sub, data, err := o.AsExt()
	if err != nil {
		return "", "", "", err
	}
	if sub != object.ExtCommand {
		return "", "", "", fmt.Errorf("%w: ext subtype %d is not a command", object.ErrTypeMismatch, sub)
	}
	l, err := object.DecodeList(data)
	if err != nil {
		return "", "", "", err
	}
	defer l.Free()
	if l.Len() != 3 {
		return "", "", "", fmt.Errorf("%w: command record has %d fields", object.ErrMalformed, l.Len())
	}
	fields := make([]string, 3)
	for i, v := range l.All() {
		if fields[i], err = v.AsString(); err != nil {
			return "", "", "", err
		}
	}
	return fields[0], fields[1], fields[2], nil
}
