// Package safety is the transactional safety layer: undo-logged
// transactions, the blast-radius policy table, SafeKernel's mutating-op
// wrapping, and shadow-mode execution accounting.
package safety

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/selfgene/sg/internal/engerr"
)

// UndoThunk reverses one mutating operation.
type UndoThunk func(ctx context.Context) error

type undoEntry struct {
	Label string
	Undo  UndoThunk
}

// state is a transaction's lifecycle position. Terminal after commit or
// rollback; never both.
type state int

const (
	stateOpen state = iota
	stateCommitted
	stateRolledBack
)

// Transaction holds an append-only stack of labeled undo thunks for one
// locus execution.
type Transaction struct {
	mu sync.Mutex

	ID    string
	Locus string
	Risk  string

	entries []undoEntry
	state   state
}

// NewTransaction opens a transaction for a locus execution at the given
// risk level.
func NewTransaction(locus, risk string) *Transaction {
	return &Transaction{
		ID:    uuid.NewString(),
		Locus: locus,
		Risk:  risk,
		state: stateOpen,
	}
}

// Append adds a labeled undo thunk to the top of the stack. Only valid
// while the transaction is open.
func (t *Transaction) Append(label string, undo UndoThunk) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != stateOpen {
		return
	}
	t.entries = append(t.entries, undoEntry{Label: label, Undo: undo})
}

// Commit discards the undo log and marks the transaction committed.
// Mutually exclusive with Rollback.
func (t *Transaction) Commit() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != stateOpen {
		return engerr.New(engerr.CodeInternal, "transaction already finalized", 500)
	}
	t.entries = nil
	t.state = stateCommitted
	return nil
}

// Rollback pops undo thunks in LIFO order, invoking each. Thunk errors
// are tolerated: rollback continues through the remaining stack and
// reports which undos succeeded.
func (t *Transaction) Rollback(ctx context.Context) []string {
	t.mu.Lock()
	if t.state != stateOpen {
		t.mu.Unlock()
		return nil
	}
	entries := t.entries
	t.entries = nil
	t.state = stateRolledBack
	t.mu.Unlock()

	succeeded := make([]string, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		entry := entries[i]
		if err := entry.Undo(ctx); err == nil {
			succeeded = append(succeeded, entry.Label)
		}
	}
	return succeeded
}

// IsOpen reports whether the transaction is still accepting undo entries.
func (t *Transaction) IsOpen() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state == stateOpen
}
