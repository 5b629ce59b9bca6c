package arm

import (
	"context"
	"time"
)

// Arbiter is the single exclusive-access gate for the servo bus. Writers
// and forced telemetry snapshots acquire with a timeout; opportunistic
// readers use TryAcquire so background sampling never stalls a writer.
type Arbiter struct {
	slot chan struct{}
}

// NewArbiter returns an unheld arbiter.
func NewArbiter() *Arbiter {
	return &Arbiter{slot: make(chan struct{}, 1)}
}

// Acquire blocks until the arbiter is held or ctx is done. Reports
// whether it was acquired.
func (a *Arbiter) Acquire(ctx context.Context) bool {
	select {
	case a.slot <- struct{}{}:
		return true
	case <-ctx.Done():
		return false
	}
}

// AcquireTimeout blocks up to d. Reports whether it was acquired.
func (a *Arbiter) AcquireTimeout(d time.Duration) bool {
	if a.TryAcquire() {
		return true
	}
	if d <= 0 {
		return false
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case a.slot <- struct{}{}:
		return true
	case <-t.C:
		return false
	}
}

// TryAcquire acquires without blocking. Reports whether it was acquired.
func (a *Arbiter) TryAcquire() bool {
	select {
	case a.slot <- struct{}{}:
		return true
	default:
		return false
	}
}

// Release frees the arbiter. Releasing an unheld arbiter is a caller bug.
func (a *Arbiter) Release() {
	select {
	case <-a.slot:
	default:
		panic("arm: release of unheld arbiter")
	}
}
