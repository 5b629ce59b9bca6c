// Package tracking drives the arm's pan and tilt axes toward a detected
// face. A dedicated loop captures frames, runs one PID controller per axis
// on the face centroid, and writes rate-limited pose commands through the
// hardware arbiter until stopped.
package tracking

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/carebotlabs/go-carebot/internal/log"
	"github.com/carebotlabs/go-carebot/pkg/arm"
	"github.com/carebotlabs/go-carebot/pkg/protocol"
)

// stopJoinTimeout bounds how long Stop waits for the loop to exit before
// abandoning it.
const stopJoinTimeout = 2 * time.Second

// Fixed axes of the tracking pose: shoulder, wrist roll, gripper.
const (
	shoulderHold = 135
	wristHold    = 90
	gripperHold  = 30
)

// Tracker owns the visual servo loop. Servo targets and PID state persist
// across sessions so a restarted tracker resumes from where it left off
// rather than snapping back to center.
type Tracker struct {
	cfg    Config
	source Source
	drv    arm.Driver
	arb    *arm.Arbiter
	sink   protocol.Sink
	log    *slog.Logger

	mu     sync.Mutex
	stopCh chan struct{}
	doneCh chan struct{}

	pan     int // pan axis target, degrees
	tiltRaw int // tilt target on the pre-halving 0..360 scale
	pidX    *PID
	pidY    *PID
}

// New creates a tracker. The loop is not started until Start is called.
func New(cfg Config, source Source, drv arm.Driver, arb *arm.Arbiter, sink protocol.Sink) *Tracker {
	return &Tracker{
		cfg:     cfg,
		source:  source,
		drv:     drv,
		arb:     arb,
		sink:    sink,
		log:     log.Component("tracking"),
		pan:     90,
		tiltRaw: 45,
		pidX:    NewPID(cfg.Kp, cfg.Ki, cfg.Kd),
		pidY:    NewPID(cfg.Kp, cfg.Ki, cfg.Kd),
	}
}

// Start launches the tracking loop. It reports false if a session is
// already running.
func (t *Tracker) Start() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.doneCh != nil {
		select {
		case <-t.doneCh:
			// Previous loop exited on its own; a new session may begin.
		default:
			return false
		}
	}
	t.stopCh = make(chan struct{})
	t.doneCh = make(chan struct{})
	t.log.Info("tracking started")
	go t.run(t.stopCh, t.doneCh)
	return true
}

// Stop requests the loop to exit and waits for it, bounded by
// stopJoinTimeout. It reports false when no session existed.
func (t *Tracker) Stop() bool {
	t.mu.Lock()
	stop, done := t.stopCh, t.doneCh
	t.stopCh, t.doneCh = nil, nil
	t.mu.Unlock()

	if done == nil {
		return false
	}
	close(stop)
	select {
	case <-done:
	case <-time.After(stopJoinTimeout):
		t.log.Warn("tracking loop did not exit in time")
	}
	t.log.Info("tracking stopped")
	return true
}

// Running reports whether a tracking loop is currently live.
func (t *Tracker) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.doneCh == nil {
		return false
	}
	select {
	case <-t.doneCh:
		return false
	default:
		return true
	}
}

func (t *Tracker) run(stop, done chan struct{}) {
	defer close(done)

	if err := t.source.Open(); err != nil {
		t.log.Error("camera open failed", "err", err)
		t.sink.Publish(protocol.NewTrackingError(protocol.CodeCameraOpenFailed))
		return
	}
	defer t.source.Close()

	ctx := context.Background()
	var (
		lastEmit   time.Time
		lastCmd    time.Time
		sentPan    int
		sentTilt   int // written elbow axis value, tiltRaw/2
		haveSent   bool
		lastJoints []int // last pose actually written this session
	)

	for {
		select {
		case <-stop:
			return
		default:
		}

		face, found, err := t.source.NextFace()
		if err != nil {
			if !t.sleep(stop, t.cfg.ReadRetryDelay) {
				return
			}
			continue
		}

		var bbox *protocol.BBox
		if found {
			bbox = &protocol.BBox{X: face.X, Y: face.Y, W: face.W, H: face.H}
			t.steer(face)

			pose := t.pose()
			tilt := pose[2]
			changed := !haveSent ||
				abs(pose[0]-sentPan) >= t.cfg.MinAngleDelta ||
				abs(tilt-sentTilt) >= t.cfg.MinAngleDelta
			if changed && time.Since(lastCmd) >= t.cfg.CommandInterval {
				if t.command(ctx, pose) {
					lastCmd = time.Now()
					sentPan, sentTilt = pose[0], tilt
					haveSent = true
					lastJoints = pose[:]
				}
			}
		}

		if time.Since(lastEmit) >= t.cfg.StatusInterval {
			t.sink.Publish(protocol.NewTrackingStatus(found, bbox, lastJoints))
			lastEmit = time.Now()
		}

		if !t.sleep(stop, t.cfg.LoopDelay) {
			return
		}
	}
}

// steer updates the axis targets from a face centroid. An axis already
// saturated in the direction the face implies is left alone, as is an axis
// whose centroid sits inside the deadzone band.
func (t *Tracker) steer(face Face) {
	cx, cy := face.Center()

	if !((t.pan >= arm.MaxAngle && cx <= centerX) || (t.pan <= arm.MinAngle && cx >= centerX)) {
		if cx < deadzoneXLo || cx > deadzoneXHi {
			out := t.pidX.Step(centerX, cx)
			tv := int(1500 + out)
			t.pan = arm.ClampAngle((tv - 500) / 10)
		}
	}
	if !((t.tiltRaw >= tiltRawMax && cy <= centerY) || (t.tiltRaw <= 0 && cy >= centerY)) {
		if cy < deadzoneYLo || cy > deadzoneYHi {
			out := t.pidY.Step(centerY, cy)
			tv := int(1500 + out)
			t.tiltRaw = clampInt((tv-500)/10-45, 0, tiltRawMax)
		}
	}
}

// pose assembles the 6-axis command for the current targets. The tilt
// target spreads evenly across the two elbow axes; the remaining axes hold
// a fixed carrying posture.
func (t *Tracker) pose() [arm.NumJoints]int {
	half := t.tiltRaw / 2
	return [arm.NumJoints]int{t.pan, shoulderHold, half, half, wristHold, gripperHold}
}

// command writes a pose through the arbiter. It reports whether the bus was
// acquired; write faults are swallowed so a flaky bus does not kill the
// loop.
func (t *Tracker) command(ctx context.Context, pose [arm.NumJoints]int) bool {
	if !t.arb.AcquireTimeout(t.cfg.WriteTimeout) {
		return false
	}
	defer t.arb.Release()
	if err := t.drv.WriteAllJoints(ctx, pose, t.cfg.MoveDuration); err != nil {
		t.log.Debug("tracking write failed", "err", err)
	}
	return true
}

func (t *Tracker) sleep(stop <-chan struct{}, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-stop:
		return false
	case <-timer.C:
		return true
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
