// Package gesture defines the carebot's scripted arm gestures and the
// engine that plays them as cancellable timed pose sequences.
package gesture

import (
	"time"

	"github.com/carebotlabs/go-carebot/pkg/arm"
)

// Pose is a target joint vector, servo IDs 1..6 at indices 0..5.
type Pose [arm.NumJoints]int

// NeutralPose is the ready position every gesture parks at. It is
// mirror-invariant (axes 1 and 5 sit at 90).
var NeutralPose = Pose{90, 150, 20, 20, 90, 30}

// Step is one pose of a gesture: move there over Move, then (between
// non-final steps) hold an extra HoldAfter.
type Step struct {
	Pose      Pose
	Move      time.Duration
	HoldAfter time.Duration
}

// Spec is a named gesture. After the last step the engine holds
// SettleHold, then writes NeutralPose over NeutralMove and holds that
// long. Mirrorable specs are flipped for right-mounted arms.
type Spec struct {
	Name        string
	Steps       []Step
	SettleHold  time.Duration
	NeutralMove time.Duration
	Mirrorable  bool
}

// Mirror flips a pose across the arm's vertical plane: the base pan and
// wrist roll axes invert, the lift axes are symmetric already.
func Mirror(p Pose) Pose {
	p[0] = 180 - p[0]
	p[4] = 180 - p[4]
	return p
}

// Heart raises the arm into a heart-like shape, then returns to neutral.
func Heart() Spec {
	return Spec{
		Name: "heart",
		Steps: []Step{
			{Pose: Pose{0, 48, 45, -20, 0, 180}, Move: 2000 * time.Millisecond},
		},
		NeutralMove: 2000 * time.Millisecond,
		Mirrorable:  true,
	}
}

// Hug opens the arm outward, draws it in as if embracing, holds, then
// returns to neutral.
func Hug() Spec {
	return Spec{
		Name: "hug",
		Steps: []Step{
			{Pose: Pose{90, 120, 20, 20, 70, 20}, Move: 1200 * time.Millisecond},
			{Pose: Pose{90, 160, 35, 35, 100, 40}, Move: 1500 * time.Millisecond},
		},
		SettleHold:  800 * time.Millisecond,
		NeutralMove: 1200 * time.Millisecond,
		Mirrorable:  true,
	}
}

// Init straightens every joint to 90, settles, then parks at neutral.
// Never mirrored: the flat pose is orientation-independent.
func Init() Spec {
	return Spec{
		Name: "init",
		Steps: []Step{
			{Pose: Pose{90, 90, 90, 90, 90, 90}, Move: 1200 * time.Millisecond},
		},
		SettleHold:  300 * time.Millisecond,
		NeutralMove: 1200 * time.Millisecond,
	}
}
