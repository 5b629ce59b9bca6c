package gesture

import (
	"context"
	"log/slog"
	"time"

	"github.com/carebotlabs/go-carebot/internal/log"
	"github.com/carebotlabs/go-carebot/pkg/arm"
)

// Arbiter acquisition bounds for gesture pose writes. The resend pair
// implements a best-effort duplicate send for a bus that confirms
// nothing: one write, a short gap, one more write if the bus is free.
const (
	poseLockTimeout   = 500 * time.Millisecond
	resendDelay       = 30 * time.Millisecond
	resendLockTimeout = 50 * time.Millisecond
)

// Engine plays gesture specs against the arm. Cancellation is
// cooperative: every hold watches the context, so a cancel is observed
// well inside 50ms. Write faults are swallowed; a gesture always runs to
// a terminal status.
type Engine struct {
	drv      arm.Driver
	arb      *arm.Arbiter
	mirrored bool
	log      *slog.Logger
}

// NewEngine returns an engine sharing the arm driver and arbiter.
// mirrored selects the flipped pose table for right-mounted arms.
func NewEngine(drv arm.Driver, arb *arm.Arbiter, mirrored bool) *Engine {
	return &Engine{
		drv:      drv,
		arb:      arb,
		mirrored: mirrored,
		log:      log.Component("gesture"),
	}
}

// Run executes spec to completion or cancellation and returns
// "<name>_completed" or "<name>_cancelled".
func (e *Engine) Run(ctx context.Context, spec Spec) string {
	e.log.Info("gesture started", "name", spec.Name, "steps", len(spec.Steps))
	for i, st := range spec.Steps {
		e.writePose(ctx, e.oriented(spec, st.Pose), st.Move)
		if !hold(ctx, st.Move) {
			return e.cancelled(spec)
		}
		if i < len(spec.Steps)-1 && st.HoldAfter > 0 {
			if !hold(ctx, st.HoldAfter) {
				return e.cancelled(spec)
			}
		}
	}

	if !hold(ctx, spec.SettleHold) {
		return e.cancelled(spec)
	}
	e.writePose(ctx, e.oriented(spec, NeutralPose), spec.NeutralMove)
	if !hold(ctx, spec.NeutralMove) {
		return e.cancelled(spec)
	}

	e.log.Info("gesture completed", "name", spec.Name)
	return spec.Name + "_completed"
}

// Park moves the arm to the neutral pose and waits out the motion. Used
// at startup and shutdown.
func (e *Engine) Park(ctx context.Context) {
	e.writePose(ctx, NeutralPose, arm.ReadyPoseMove)
	hold(ctx, arm.ReadyPoseMove)
}

func (e *Engine) cancelled(spec Spec) string {
	e.log.Info("gesture cancelled", "name", spec.Name)
	return spec.Name + "_cancelled"
}

func (e *Engine) oriented(spec Spec, p Pose) Pose {
	if e.mirrored && spec.Mirrorable {
		return Mirror(p)
	}
	return p
}

// writePose sends a pose under the arbiter, then once more after a short
// gap if the bus is free. Both sends are best-effort: faults and a busy
// bus are logged and skipped, never fatal to the sequence.
func (e *Engine) writePose(ctx context.Context, pose Pose, move time.Duration) {
	var angles [arm.NumJoints]int
	for i, a := range pose {
		angles[i] = arm.ClampAngle(a)
	}

	if !e.arb.AcquireTimeout(poseLockTimeout) {
		e.log.Warn("pose write skipped, bus busy", "pose", angles)
		return
	}
	if err := e.drv.WriteAllJoints(ctx, angles, move); err != nil {
		e.log.Debug("pose write failed", "err", err)
	}
	e.arb.Release()

	time.Sleep(resendDelay)
	if !e.arb.AcquireTimeout(resendLockTimeout) {
		return
	}
	if err := e.drv.WriteAllJoints(ctx, angles, move); err != nil {
		e.log.Debug("pose resend failed", "err", err)
	}
	e.arb.Release()
}

// hold sleeps d unless the context is cancelled first. Reports whether
// the full hold ran.
func hold(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
