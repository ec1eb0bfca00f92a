package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.viam.com/test"

	"go.viam.com/arsession/logging"
)

func TestSerialLoopOrder(t *testing.T) {
	l := newSerialLoop(logging.NewTestLogger(t))
	defer l.close()

	var mu sync.Mutex
	var got []int
	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				n := g*1000 + i
				l.post(func() {
					mu.Lock()
					got = append(got, n)
					mu.Unlock()
				})
			}
		}(g)
	}
	wg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	test.That(t, l.drain(ctx), test.ShouldBeNil)

	mu.Lock()
	defer mu.Unlock()
	test.That(t, got, test.ShouldHaveLength, 200)
	// each poster's functions run in the order they were posted
	last := map[int]int{}
	for _, n := range got {
		g := n / 1000
		if prev, ok := last[g]; ok {
			test.That(t, n, test.ShouldBeGreaterThan, prev)
		}
		last[g] = n
	}
}

func TestSerialLoopPostFromTask(t *testing.T) {
	l := newSerialLoop(logging.NewTestLogger(t))
	defer l.close()

	gate := make(chan struct{})
	var got []string
	l.post(func() { <-gate })
	l.post(func() {
		got = append(got, "outer")
		l.post(func() { got = append(got, "inner") })
	})
	l.post(func() { got = append(got, "next") })
	close(gate)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	test.That(t, l.drain(ctx), test.ShouldBeNil)
	test.That(t, l.drain(ctx), test.ShouldBeNil)
	test.That(t, got, test.ShouldResemble, []string{"outer", "next", "inner"})
}

func TestSerialLoopPanic(t *testing.T) {
	logger, logs := logging.NewObservedTestLogger(t)
	l := newSerialLoop(logger)
	defer l.close()

	ran := false
	l.post(func() { panic("boom") })
	l.post(func() { ran = true })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	test.That(t, l.drain(ctx), test.ShouldBeNil)
	test.That(t, ran, test.ShouldBeTrue)
	test.That(t, logs.FilterMessage("recovered from panic").Len(), test.ShouldEqual, 1)
}

func TestSerialLoopClose(t *testing.T) {
	l := newSerialLoop(logging.NewTestLogger(t))
	l.close()
	test.That(t, l.post(func() {}), test.ShouldBeFalse)
	test.That(t, l.drain(context.Background()), test.ShouldBeError, errLoopClosed)
}
