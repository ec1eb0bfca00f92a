package session

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"go.viam.com/arsession/logging"
	"go.viam.com/arsession/utils"
)

var errLoopClosed = errors.New("session loop is closed")

// serialLoop runs posted functions one at a time, in posting order, on a single worker
// goroutine. Posting never blocks, so engine goroutines and listeners running on the loop can
// both post safely.
type serialLoop struct {
	logger  logging.Logger
	workers utils.StoppableWorkers
	wake    chan struct{}

	mu      sync.Mutex
	pending []func()
	closed  bool
}

func newSerialLoop(logger logging.Logger) *serialLoop {
	l := &serialLoop{logger: logger, wake: make(chan struct{}, 1)}
	l.workers = utils.NewStoppableWorkers(l.run)
	return l
}

func (l *serialLoop) post(fn func()) bool {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return false
	}
	l.pending = append(l.pending, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

func (l *serialLoop) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-l.wake:
		}
		for {
			l.mu.Lock()
			if len(l.pending) == 0 {
				l.mu.Unlock()
				break
			}
			fn := l.pending[0]
			l.pending[0] = nil
			l.pending = l.pending[1:]
			l.mu.Unlock()

			utils.CallSafely(l.logger, "session loop task", fn)
			if ctx.Err() != nil {
				return
			}
		}
	}
}

// drain blocks until everything posted before the call has run.
func (l *serialLoop) drain(ctx context.Context) error {
	done := make(chan struct{})
	if !l.post(func() { close(done) }) {
		return errLoopClosed
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// close stops accepting work and waits for the worker to exit. Work still queued is dropped.
func (l *serialLoop) close() {
	l.mu.Lock()
	l.closed = true
	l.pending = nil
	l.mu.Unlock()
	l.workers.Stop()
}
