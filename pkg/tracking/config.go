package tracking

import "time"

// Working resolution every captured frame is scaled to before detection.
// All pixel geometry below is expressed in this space.
const (
	FrameWidth  = 640
	FrameHeight = 480

	centerX = FrameWidth / 2
	centerY = FrameHeight / 2
)

// Deadzone band around the frame center. A centroid inside the band leaves
// the axis target untouched for that tick.
const (
	deadzoneXLo = centerX - 60
	deadzoneXHi = centerX + 60
	deadzoneYLo = centerY - 60
	deadzoneYHi = centerY + 60
)

// tiltRawMax bounds the raw tilt target. The raw value is halved across the
// two elbow axes before it reaches hardware, so raw 360 is the point where
// the written axes saturate at 180.
const tiltRawMax = 360

// Config holds all tunable parameters for the visual servo loop.
type Config struct {
	// Timing
	StatusInterval  time.Duration // status event cadence
	CommandInterval time.Duration // floor between consecutive servo writes
	LoopDelay       time.Duration // pacing between frames
	ReadRetryDelay  time.Duration // wait after a failed capture before retrying

	// PID gains, one controller per axis
	Kp float64
	Ki float64
	Kd float64

	// Write shaping
	MinAngleDelta int           // ignore commanded changes smaller than this (degrees)
	MoveDuration  time.Duration // move time handed to the bus per write
	WriteTimeout  time.Duration // arbiter wait before skipping a write
}

// DefaultConfig returns the loop tuning the arm ships with.
func DefaultConfig() Config {
	return Config{
		// Timing
		StatusInterval:  200 * time.Millisecond,
		CommandInterval: 150 * time.Millisecond, // avoid actuator jitter and bus saturation
		LoopDelay:       10 * time.Millisecond,
		ReadRetryDelay:  20 * time.Millisecond,

		// PID - tuned for the stock pan/tilt response
		Kp: 0.25,
		Ki: 0.1,
		Kd: 0.05,

		// Write shaping
		MinAngleDelta: 1,
		MoveDuration:  500 * time.Millisecond,
		WriteTimeout:  150 * time.Millisecond,
	}
}
