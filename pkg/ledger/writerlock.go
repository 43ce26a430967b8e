// Copyright 2025 Ledgercore Contributors
//
// writerLock is the process-wide, non-reentrant mutex that serializes every
// append/rollback/import/clear (spec.md §4.1, §5). Grounded on
// pkg/execution/nonce_tracker.go's `mu sync.Mutex` guarding mutable
// sequence state, generalized from one counter to the whole write path:
// every mutating Engine method acquires it for its entire duration and
// releases it exactly once, so concurrent appenders observe a strict total
// order equal to acquisition order (spec.md §4.1's "ordering guarantees").

package ledger

import "sync"

type writerLock struct {
	mu sync.Mutex
}

func (w *writerLock) Lock() {
	w.mu.Lock()
}

func (w *writerLock) Unlock() {
	w.mu.Unlock()
}
