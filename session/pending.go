package session

import (
	"sync"

	"go.viam.com/arsession/engine"
	"go.viam.com/arsession/logging"
)

// pendingOp is the host-side context of one asynchronous engine operation.
type pendingOp struct {
	name string
	// generation is the session generation the operation was issued in, or 0 when the operation
	// does not belong to a session.
	generation uint64
	onResult   func(engine.CallbackResult)
	onTransfer func(engine.TransferStatus)
}

// pendingTable maps engine handles to the context of their operation. Handles come from a
// monotonic counter and are never reused. A record is removed exactly once, by its terminal
// callback.
type pendingTable struct {
	logger logging.Logger

	mu      sync.Mutex
	next    engine.Handle
	records map[engine.Handle]*pendingOp
}

func newPendingTable(logger logging.Logger) *pendingTable {
	return &pendingTable{logger: logger, records: make(map[engine.Handle]*pendingOp)}
}

func (p *pendingTable) add(op *pendingOp) engine.Handle {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.next++
	p.records[p.next] = op
	return p.next
}

// take removes and returns the record for h. Unknown handles, including ones already taken, are
// logged and reported as missing.
func (p *pendingTable) take(h engine.Handle) (*pendingOp, bool) {
	p.mu.Lock()
	op, ok := p.records[h]
	delete(p.records, h)
	p.mu.Unlock()
	if !ok {
		p.logger.Warnw("ignoring callback for unknown or completed operation", "handle", h)
	}
	return op, ok
}

// peek returns the record for h without removing it, for non-terminal progress callbacks.
func (p *pendingTable) peek(h engine.Handle) (*pendingOp, bool) {
	p.mu.Lock()
	op, ok := p.records[h]
	p.mu.Unlock()
	if !ok {
		p.logger.Warnw("ignoring progress for unknown or completed operation", "handle", h)
	}
	return op, ok
}

func (p *pendingTable) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.records)
}

// discard forgets h without logging, for operations the engine rejected synchronously.
func (p *pendingTable) discard(h engine.Handle) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.records, h)
}
