package sync

import (
	"runtime"
	"sync"
	"testing"
	"time"
)

func TestSpinlock(t *testing.T) {
	// Substitute relaxFn with runtime.Gosched to avoid starving the
	// goroutine that holds the lock while testing
	defer func(origRelaxFn func()) { relaxFn = origRelaxFn }(relaxFn)
	relaxFn = runtime.Gosched

	var (
		sl         Spinlock
		wg         sync.WaitGroup
		numWorkers = 10
		counter    int
	)

	sl.Acquire()

	if sl.TryToAcquire() != false {
		t.Error("expected TryToAcquire to return false when lock is held")
	}

	if !sl.Held() {
		t.Error("expected Held to return true while the lock is acquired")
	}

	wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go func(worker int) {
			sl.Acquire()
			counter++
			sl.Release()
			wg.Done()
		}(i)
	}

	<-time.After(100 * time.Millisecond)
	if counter != 0 {
		t.Errorf("expected workers to block while the lock is held; counter is %d", counter)
	}

	sl.Release()
	wg.Wait()

	if counter != numWorkers {
		t.Errorf("expected counter to be %d; got %d", numWorkers, counter)
	}

	if sl.Held() {
		t.Error("expected lock to be free after all workers released it")
	}
}

func TestSpinlockTryToAcquire(t *testing.T) {
	var sl Spinlock

	if !sl.TryToAcquire() {
		t.Fatal("expected TryToAcquire to succeed on a free lock")
	}

	sl.Release()
	sl.Release()

	if !sl.TryToAcquire() {
		t.Fatal("expected TryToAcquire to succeed after a redundant Release")
	}
}
