package session

import (
	"math"
	"sync"
)

// TransferProgress is what callers of SaveMap and LoadMap observe about a map transfer.
type TransferProgress struct {
	Completed  bool
	Faulted    bool
	Percentage float64
}

// transferTracker enforces the caller-facing transfer contract: percentages stay in [0, 1] and
// never decrease, exactly one terminal report is made, and nothing is reported after it.
type transferTracker struct {
	cb func(TransferProgress)

	mu   sync.Mutex
	last float64
	done bool
}

func newTransferTracker(cb func(TransferProgress)) *transferTracker {
	if cb == nil {
		cb = func(TransferProgress) {}
	}
	return &transferTracker{cb: cb}
}

func (t *transferTracker) progress(fraction float64) {
	if math.IsNaN(fraction) {
		return
	}
	t.mu.Lock()
	if t.done {
		t.mu.Unlock()
		return
	}
	t.last = math.Max(t.last, math.Min(1, math.Max(0, fraction)))
	report := TransferProgress{Percentage: t.last}
	t.mu.Unlock()
	t.cb(report)
}

func (t *transferTracker) complete() {
	t.finish(TransferProgress{Completed: true, Percentage: 1})
}

func (t *transferTracker) fault() {
	t.mu.Lock()
	last := t.last
	t.mu.Unlock()
	t.finish(TransferProgress{Faulted: true, Percentage: last})
}

func (t *transferTracker) finish(report TransferProgress) {
	t.mu.Lock()
	if t.done {
		t.mu.Unlock()
		return
	}
	t.done = true
	t.mu.Unlock()
	t.cb(report)
}

func (t *transferTracker) finished() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.done
}
