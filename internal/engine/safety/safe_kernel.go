package safety

import (
	"context"

	"github.com/selfgene/sg/internal/kernelapi"
)

// SafeKernel wraps a Kernel so that every mutating operation routed
// through Call is snapshotted (if the operation declares a snapshot
// function) before it runs, and its undo thunk is pushed onto the
// transaction's stack only after the operation succeeds. Read-only
// operations pass straight through. If txn is nil, SafeKernel behaves as
// a transparent pass-through (used for the "none" risk tier, which never
// opens a transaction).
type SafeKernel struct {
	kernel kernelapi.Kernel
	txn    *Transaction
}

// NewSafeKernel wraps kernel so its mutating calls are logged to txn.
func NewSafeKernel(kernel kernelapi.Kernel, txn *Transaction) *SafeKernel {
	return &SafeKernel{kernel: kernel, txn: txn}
}

// Call dispatches operation against the wrapped kernel. When operation is
// declared mutating, a pre-state snapshot is captured first (if the
// declaration has one), and on success an undo thunk invoking the
// declared Undo function against that snapshot and the original args is
// pushed onto the transaction. If the underlying call fails, no undo
// entry is appended — that attempt never happened in the log.
func (s *SafeKernel) Call(ctx context.Context, operation string, args map[string]interface{}) (interface{}, error) {
	op, mutating := s.kernel.MutatingOps()[operation]
	if !mutating || s.txn == nil {
		return s.kernel.Call(ctx, operation, args)
	}

	var snapshot interface{}
	if op.Snapshot != nil {
		snap, err := op.Snapshot(ctx, args)
		if err != nil {
			return nil, err
		}
		snapshot = snap
	}

	result, err := s.kernel.Call(ctx, operation, args)
	if err != nil {
		return nil, err
	}

	if op.Undo != nil {
		s.txn.Append(op.Label, func(ctx context.Context) error {
			return op.Undo(ctx, snapshot, args)
		})
	}

	return result, nil
}

// Underlying returns the wrapped kernel, for callers that need the full
// Kernel surface (resource tracking, describe_operations, and so on).
func (s *SafeKernel) Underlying() kernelapi.Kernel {
	return s.kernel
}
