package object

import (
	"errors"
	"fmt"
	"testing"

	"github.com/danmuck/meshd/internal/testutil/testlog"
)

func mustStr(t *testing.T, s string) *Object {
	t.Helper()
	o, err := NewString(s)
	if err != nil {
		t.Fatalf("new string %q: %v", s, err)
	}
	return o
}

func checkListLinks(t *testing.T, l *List) {
	t.Helper()
	visited := 0
	l.Parse(func(v *Object) any {
		got, err := l.Element(visited)
		if err != nil || got != v {
			t.Fatalf("element(%d) mismatch err=%v", visited, err)
		}
		visited++
		return nil
	})
	if visited != l.Len() {
		t.Fatalf("length %d but traversal visited %d", l.Len(), visited)
	}
}

func TestListMixedInsertOrdering(t *testing.T) {
	testlog.Start(t)
	l := NewList()
	s1, s2, s3 := mustStr(t, "s1"), mustStr(t, "s2"), mustStr(t, "s3")
	s4, s5, s6 := mustStr(t, "s4"), mustStr(t, "s5"), mustStr(t, "s6")

	steps := []error{
		l.Append(s1, Adopt),
		l.Append(s2, Adopt),
		l.InsertBefore(s3, s1, Adopt),
		l.InsertAfter(s4, s1, Adopt),
		l.Append(s5, Adopt),
		l.Prepend(s6, Adopt),
	}
	for i, err := range steps {
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}
	if l.First() != s6 {
		t.Fatalf("expected s6 first, got %s", l.First())
	}
	if l.Last() != s5 {
		t.Fatalf("expected s5 last, got %s", l.Last())
	}
	if !l.Contains(s4) {
		t.Fatalf("expected s4 member")
	}
	want := []*Object{s6, s3, s1, s4, s2, s5}
	for i, v := range l.Values() {
		if v != want[i] {
			t.Fatalf("position %d: got %s want %s", i, v, want[i])
		}
	}
	checkListLinks(t, l)
}

func TestListInsertErrors(t *testing.T) {
	l := NewList()
	a, b, stray := mustStr(t, "a"), mustStr(t, "b"), mustStr(t, "stray")
	_ = l.Append(a, Adopt)

	if err := l.InsertBefore(b, stray, Adopt); !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("expected ErrKeyNotFound, got %v", err)
	}
	if b.Owner() != nil {
		t.Fatalf("failed insert must not adopt")
	}
	if err := l.InsertAfter(a, a, Adopt); !errors.Is(err, ErrDuplicateMember) {
		t.Fatalf("expected ErrDuplicateMember, got %v", err)
	}
	if err := l.Append(a, Borrow); !errors.Is(err, ErrDuplicateMember) {
		t.Fatalf("expected ErrDuplicateMember on append, got %v", err)
	}
	if _, err := l.Element(1); !errors.Is(err, ErrIndexOutOfBounds) {
		t.Fatalf("expected ErrIndexOutOfBounds, got %v", err)
	}
	if _, err := l.Element(-1); !errors.Is(err, ErrIndexOutOfBounds) {
		t.Fatalf("expected ErrIndexOutOfBounds for negative, got %v", err)
	}
	if err := l.Append(l.Object(), Borrow); err == nil {
		t.Fatalf("expected self insert rejected")
	}
}

func TestListDeleteReturnsOwnership(t *testing.T) {
	l := NewList()
	vals := make([]*Object, 5)
	for i := range vals {
		vals[i] = mustStr(t, fmt.Sprintf("v%d", i))
		_ = l.Append(vals[i], Adopt)
	}
	got, err := l.Delete(vals[2])
	if err != nil || got != vals[2] {
		t.Fatalf("delete: got=%v err=%v", got, err)
	}
	if l.Contains(vals[2]) {
		t.Fatalf("deleted value still a member")
	}
	if got.Owner() != nil {
		t.Fatalf("deleted value still owned by list")
	}
	if _, err := l.Delete(vals[2]); !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("expected ErrKeyNotFound on second delete, got %v", err)
	}
	_, _ = l.Delete(vals[0])
	_, _ = l.Delete(vals[4])
	checkListLinks(t, l)
	if l.First() != vals[1] || l.Last() != vals[3] || l.Len() != 2 {
		t.Fatalf("unexpected ends after deletes")
	}

	l.Free()
	if got.Freed() || vals[0].Freed() {
		t.Fatalf("deleted values freed with list")
	}
	if !vals[1].Freed() || !vals[3].Freed() {
		t.Fatalf("owned values survived list free")
	}
}

func TestListBorrowKeepsCallerOwnership(t *testing.T) {
	l := NewList()
	v := mustStr(t, "borrowed")
	if err := l.Append(v, Borrow); err != nil {
		t.Fatalf("append: %v", err)
	}
	if v.Owner() != nil {
		t.Fatalf("borrowed value adopted")
	}
	l.Free()
	if v.Freed() {
		t.Fatalf("borrowed value freed with list")
	}
}

func TestListParseShortCircuitAndMutationGuard(t *testing.T) {
	l := NewList()
	for i := 0; i < 4; i++ {
		_ = l.Append(NewInt(int64(i)), Adopt)
	}
	visits := 0
	got := l.Parse(func(v *Object) any {
		visits++
		if n, _ := v.AsInt(); n == 1 {
			return v
		}
		return nil
	})
	if visits != 2 || got == nil {
		t.Fatalf("expected stop at second element, visits=%d", visits)
	}

	var mutErr error
	for range l.All() {
		mutErr = l.Append(NewInt(9), Adopt)
		break
	}
	if !errors.Is(mutErr, ErrConcurrentMutation) {
		t.Fatalf("expected ErrConcurrentMutation, got %v", mutErr)
	}
	if err := l.Append(NewInt(9), Adopt); err != nil {
		t.Fatalf("append after walk: %v", err)
	}
}
