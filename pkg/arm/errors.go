package arm

import "errors"

var (
	// ErrInvalidServoID is returned when a joint id is outside 1..6.
	ErrInvalidServoID = errors.New("servo id out of range")

	// ErrInvalidAngles is returned when a joint vector is not exactly 6 elements.
	ErrInvalidAngles = errors.New("angles must have 6 elements")

	// ErrReadFailed is returned when the current joint angle cannot be read.
	ErrReadFailed = errors.New("joint read failed")

	// ErrBusy is returned when the arbiter cannot be acquired within the
	// write timeout.
	ErrBusy = errors.New("arm bus busy")

	// ErrNoArm is returned by discovery when no arm responds on any
	// candidate port.
	ErrNoArm = errors.New("no arm detected")
)
