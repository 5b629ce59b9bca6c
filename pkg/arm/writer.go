package arm

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// writeLockTimeout bounds how long a manual write waits for the bus
// before giving up with ErrBusy.
const writeLockTimeout = 500 * time.Millisecond

// Writer performs direct joint-level writes for manual control. Every
// successful operation stamps the last-manual-activity time consumed by
// the telemetry sampler's active/idle switch.
type Writer struct {
	drv Driver
	arb *Arbiter

	mu         sync.Mutex
	lastManual time.Time
}

// NewWriter returns a Writer sharing the given driver and arbiter.
func NewWriter(drv Driver, arb *Arbiter) *Writer {
	return &Writer{drv: drv, arb: arb}
}

// SetJoint moves one joint to an absolute angle.
func (w *Writer) SetJoint(ctx context.Context, id, angle int, move time.Duration) error {
	if !ValidID(id) {
		return ErrInvalidServoID
	}
	angle = ClampAngle(angle)
	move = ClampMove(move)

	if !w.arb.AcquireTimeout(writeLockTimeout) {
		return ErrBusy
	}
	err := w.drv.WriteJoint(ctx, id, angle, move)
	w.arb.Release()
	if err != nil {
		return fmt.Errorf("set joint %d: %w", id, err)
	}
	w.markActivity()
	return nil
}

// SetJoints moves all six joints in one batch. The vector must have
// exactly six elements.
func (w *Writer) SetJoints(ctx context.Context, angles []int, move time.Duration) error {
	if len(angles) != NumJoints {
		return ErrInvalidAngles
	}
	var clamped [NumJoints]int
	for i, a := range angles {
		clamped[i] = ClampAngle(a)
	}
	move = ClampMove(move)

	if !w.arb.AcquireTimeout(writeLockTimeout) {
		return ErrBusy
	}
	err := w.drv.WriteAllJoints(ctx, clamped, move)
	w.arb.Release()
	if err != nil {
		return fmt.Errorf("set joints: %w", err)
	}
	w.markActivity()
	return nil
}

// NudgeJoint moves one joint relative to its current angle. The current
// angle is read first; if it cannot be read, no write happens.
func (w *Writer) NudgeJoint(ctx context.Context, id, delta int, move time.Duration) error {
	if !ValidID(id) {
		return ErrInvalidServoID
	}
	move = ClampMove(move)

	if !w.arb.AcquireTimeout(writeLockTimeout) {
		return ErrBusy
	}
	current, err := w.drv.ReadJoint(ctx, id)
	w.arb.Release()
	if err != nil {
		return fmt.Errorf("nudge joint %d: %w: %v", id, ErrReadFailed, err)
	}

	target := ClampAngle(current + delta)
	if !w.arb.AcquireTimeout(writeLockTimeout) {
		return ErrBusy
	}
	err = w.drv.WriteJoint(ctx, id, target, move)
	w.arb.Release()
	if err != nil {
		return fmt.Errorf("nudge joint %d: %w", id, err)
	}
	w.markActivity()
	return nil
}

// LastManual returns when the most recent manual write succeeded.
func (w *Writer) LastManual() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastManual
}

func (w *Writer) markActivity() {
	w.mu.Lock()
	w.lastManual = time.Now()
	w.mu.Unlock()
}
