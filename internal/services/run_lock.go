package services

import "sync/atomic"

// RunLock is a process-wide non-blocking guard allowing one ingestion run at a time.
type RunLock struct {
	held atomic.Bool
}

// TryAcquire takes the lock when it is free and reports whether it did.
func (l *RunLock) TryAcquire() bool {
	return l.held.CompareAndSwap(false, true)
}

// Release frees the lock.
func (l *RunLock) Release() {
	l.held.Store(false)
}

// Held reports whether a run currently owns the lock.
func (l *RunLock) Held() bool {
	return l.held.Load()
}
