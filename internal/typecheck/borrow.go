// SPDX-License-Identifier: Apache-2.0

package typecheck

import (
	"fmt"

	"github.com/omnilang/omnilang/internal/typesys"
)

// borrowTracker maintains a flat map of symbol name to BorrowState,
// applying the Owned/Moved/Borrowed transition table exactly. It is not
// scope-aware: scope exit does not restore borrows, left to callers to
// handle if needed.
type borrowTracker struct {
	states map[string]typesys.BorrowState
}

func newBorrowTracker() *borrowTracker {
	return &borrowTracker{states: map[string]typesys.BorrowState{}}
}

func (b *borrowTracker) declare(name string) {
	b.states[name] = typesys.Owned
}

func (b *borrowTracker) state(name string) (typesys.BorrowState, bool) {
	s, ok := b.states[name]
	return s, ok
}

// move transitions name from Owned to Moved. Moving an already-Moved or
// borrowed value is an error.
func (b *borrowTracker) move(name string) error {
	state, ok := b.states[name]
	if !ok {
		return fmt.Errorf("variable %q not found", name)
	}
	switch state {
	case typesys.Owned:
		b.states[name] = typesys.Moved
		return nil
	case typesys.Moved:
		return fmt.Errorf("use of moved value: %q", name)
	default:
		return fmt.Errorf("cannot move %q because it is borrowed", name)
	}
}

// borrow transitions name to BorrowedImmutable or BorrowedMutable,
// rejecting conflicting borrows of an already-borrowed or moved value.
func (b *borrowTracker) borrow(name string, mutable bool) error {
	state, ok := b.states[name]
	if !ok {
		return fmt.Errorf("variable %q not found", name)
	}
	switch state {
	case typesys.Moved:
		return fmt.Errorf("cannot borrow moved value: %q", name)
	case typesys.BorrowedMutable:
		return fmt.Errorf("cannot borrow %q again because it is already borrowed as mutable", name)
	case typesys.BorrowedImmutable:
		if mutable {
			return fmt.Errorf("cannot borrow %q as mutable because it is also borrowed as immutable", name)
		}
		return nil
	case typesys.Owned:
		if mutable {
			b.states[name] = typesys.BorrowedMutable
		} else {
			b.states[name] = typesys.BorrowedImmutable
		}
		return nil
	}
	return nil
}
