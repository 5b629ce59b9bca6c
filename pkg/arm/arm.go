// Package arm provides low-level control of the carebot's 6-joint arm.
//
// All bus access goes through a Driver guarded by the shared Arbiter; no
// component talks to the serial bus directly. Joint angles are degrees in
// [0, 180], servo IDs are 1..6.
package arm

import (
	"context"
	"time"
)

// Joint space.
const (
	NumJoints = 6
	MinAngle  = 0
	MaxAngle  = 180
)

// Move-time defaults used by command handlers when time_ms is absent.
const (
	DefaultWriteMove = 500 * time.Millisecond
	DefaultNudgeMove = 300 * time.Millisecond
	ReadyPoseMove    = 1500 * time.Millisecond
)

// Driver is the device-facing joint interface. Implementations are not
// required to be goroutine-safe; callers serialize through the Arbiter.
type Driver interface {
	// WriteJoint moves one joint to angle over the given move time.
	WriteJoint(ctx context.Context, id, angle int, move time.Duration) error

	// WriteAllJoints moves all six joints in one batch.
	WriteAllJoints(ctx context.Context, angles [NumJoints]int, move time.Duration) error

	// ReadJoint returns the current angle of one joint.
	ReadJoint(ctx context.Context, id int) (int, error)

	Close() error
}

// ValidID reports whether id addresses a physical joint.
func ValidID(id int) bool {
	return id >= 1 && id <= NumJoints
}

// ClampAngle restricts a to the writable range.
func ClampAngle(a int) int {
	if a < MinAngle {
		return MinAngle
	}
	if a > MaxAngle {
		return MaxAngle
	}
	return a
}

// ClampMove restricts a move time to non-negative.
func ClampMove(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}
