package arm

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestArbiterTryAcquire(t *testing.T) {
	a := NewArbiter()
	if !a.TryAcquire() {
		t.Fatal("fresh arbiter should be acquirable")
	}
	if a.TryAcquire() {
		t.Error("held arbiter should not be acquirable")
	}
	a.Release()
	if !a.TryAcquire() {
		t.Error("released arbiter should be acquirable")
	}
	a.Release()
}

func TestArbiterAcquireTimeout(t *testing.T) {
	a := NewArbiter()
	a.TryAcquire()

	start := time.Now()
	if a.AcquireTimeout(30 * time.Millisecond) {
		t.Fatal("acquired a held arbiter")
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Errorf("timed out too early: %v", elapsed)
	}

	// A release while a waiter is parked should hand it over.
	done := make(chan bool, 1)
	go func() {
		done <- a.AcquireTimeout(time.Second)
	}()
	time.Sleep(10 * time.Millisecond)
	a.Release()
	if !<-done {
		t.Error("waiter did not acquire after release")
	}
	a.Release()
}

func TestArbiterAcquireContext(t *testing.T) {
	a := NewArbiter()
	a.TryAcquire()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if a.Acquire(ctx) {
		t.Error("acquired with cancelled context")
	}
	a.Release()

	if !a.Acquire(context.Background()) {
		t.Error("failed to acquire free arbiter")
	}
	a.Release()
}

func TestArbiterReleaseUnheldPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("release of unheld arbiter did not panic")
		}
	}()
	NewArbiter().Release()
}

// Exercises the single-holder guarantee under contention: no two
// goroutines may be inside the critical section at once.
func TestArbiterMutualExclusion(t *testing.T) {
	a := NewArbiter()
	var inside, overlaps atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				if !a.AcquireTimeout(time.Second) {
					t.Error("acquire timed out under contention")
					return
				}
				if inside.Add(1) > 1 {
					overlaps.Add(1)
				}
				inside.Add(-1)
				a.Release()
			}
		}()
	}
	wg.Wait()

	if n := overlaps.Load(); n > 0 {
		t.Errorf("critical section overlapped %d times", n)
	}
}
