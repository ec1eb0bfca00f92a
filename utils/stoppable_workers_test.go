package utils

import (
	"context"
	"sync/atomic"
	"testing"

	"go.viam.com/test"
)

func TestStoppableWorkers(t *testing.T) {
	var started atomic.Int32
	ready := make(chan struct{}, 2)
	worker := func(ctx context.Context) {
		started.Add(1)
		ready <- struct{}{}
		<-ctx.Done()
	}

	sw := NewStoppableWorkers(worker)
	sw.AddWorkers(worker)
	<-ready
	<-ready
	test.That(t, started.Load(), test.ShouldEqual, 2)

	sw.Stop()
	test.That(t, sw.Context().Err(), test.ShouldNotBeNil)

	// Workers added after Stop never run.
	sw.AddWorkers(worker)
	test.That(t, started.Load(), test.ShouldEqual, 2)
}

func TestStoppableWorkersParentContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	sw := NewStoppableWorkersWithContext(ctx, func(ctx context.Context) {
		<-ctx.Done()
		close(done)
	})
	cancel()
	<-done
	sw.Stop()
}
