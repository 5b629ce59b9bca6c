// Package carebot ties the agent together: it routes inbound commands,
// preempts whatever is currently driving the arm, and dispatches to the
// gesture engine, the manual joint writer, or the face tracker. At most
// one activity drives the hardware at any instant; admission is
// serialized so commands preempt and start strictly in arrival order.
package carebot

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/carebotlabs/go-carebot/internal/log"
	"github.com/carebotlabs/go-carebot/pkg/arm"
	"github.com/carebotlabs/go-carebot/pkg/gesture"
	"github.com/carebotlabs/go-carebot/pkg/protocol"
	"github.com/carebotlabs/go-carebot/pkg/telemetry"
	"github.com/carebotlabs/go-carebot/pkg/tracking"
)

// gestureJoinTimeout bounds how long preemption waits for a cancelled
// gesture to finish before abandoning it.
const gestureJoinTimeout = 2 * time.Second

// Options wires an App together. Hardware-dependent fields may be nil;
// the affected commands then fail with an unavailability tag instead of
// crashing the agent.
type Options struct {
	RobotID string
	Writer  *arm.Writer        // nil: no arm
	Engine  *gesture.Engine    // nil: no arm
	Tracker *tracking.Tracker  // nil: no camera or no arm
	Sampler *telemetry.Sampler // nil: no arm
	Sink    protocol.Sink
}

// App is the agent aggregate: one per process, shared by the transport
// read loop and the background sampler.
type App struct {
	robotID string
	writer  *arm.Writer
	engine  *gesture.Engine
	tracker *tracking.Tracker
	sampler *telemetry.Sampler
	sink    protocol.Sink
	log     *slog.Logger

	// admit serializes ack, preemption, and dispatch.
	admit sync.Mutex

	mu       sync.Mutex
	activity *activity
}

// activity is a live gesture run: cancelled by preemption, cleared by
// its own goroutine.
type activity struct {
	id     string
	name   string
	cancel context.CancelFunc
	done   chan struct{}
}

// New builds the App. A nil Sink discards all outbound events.
func New(opts Options) *App {
	if opts.Sink == nil {
		opts.Sink = protocol.Discard
	}
	return &App{
		robotID: opts.RobotID,
		writer:  opts.Writer,
		engine:  opts.Engine,
		tracker: opts.Tracker,
		sampler: opts.Sampler,
		sink:    opts.Sink,
		log:     log.Component("app"),
	}
}

// Capabilities lists the command surface available with the given
// hardware present. The transport announces it in every hello.
func Capabilities(hasArm, hasTracker bool) []string {
	caps := []string{}
	if hasTracker {
		caps = append(caps, "face_tracking")
	}
	if hasArm {
		caps = append(caps, "make_heart", "hug", "init_pose", "manual_control")
	}
	return caps
}

// Capabilities reports what this agent can do, gated on the hardware
// that actually came up.
func (a *App) Capabilities() []string {
	return Capabilities(a.writer != nil, a.tracker != nil)
}

// Run drives the background telemetry sampler until ctx ends.
func (a *App) Run(ctx context.Context) {
	if a.sampler != nil {
		a.sampler.Run(ctx)
		return
	}
	<-ctx.Done()
}

// HandleRaw is the transport entry point: one inbound frame in, events
// out through the sink.
func (a *App) HandleRaw(raw []byte) {
	env, err := protocol.DecodeEnvelope(raw)
	if err != nil {
		a.log.Warn("unparsable frame", "err", err)
		a.sink.Publish(protocol.NewError(protocol.CodeInvalidJSON))
		return
	}
	if !env.IsCommand() {
		switch env.Type {
		case protocol.TypeError:
			a.log.Warn("error payload from backend", "raw", string(raw))
		case protocol.TypeServerDispatch:
			a.log.Debug("ignoring server dispatch")
		}
		return
	}
	if !env.ForRobot(a.robotID) {
		a.log.Debug("frame addressed elsewhere", "robot_id", env.RobotID)
		return
	}
	a.Handle(env)
}

// Handle routes one decoded command envelope. Validation failures never
// reach the hardware; a valid command acks, preempts whatever is
// running, then dispatches.
func (a *App) Handle(env *protocol.Envelope) {
	if env.Command == "" {
		a.sink.Publish(protocol.NewError(protocol.CodeMissingCommand))
		return
	}
	kind, ok := ParseCommand(env.Command)
	if !ok {
		a.log.Warn("unknown command", "command", env.Command)
		a.sink.Publish(protocol.NewCommandError(protocol.CodeUnknownCommand, env.Command))
		return
	}

	a.admit.Lock()
	defer a.admit.Unlock()

	a.sink.Publish(protocol.NewAck(env.Command))
	a.log.Info("preempt then dispatch", "command", env.Command)
	stoppedTracker := a.preempt()

	switch kind {
	case KindStartTracking:
		a.startTracking(env.Command)
	case KindStopTracking:
		a.stopTracking(env.Command, stoppedTracker)
	case KindHeart:
		a.startGesture(env.Command, gesture.Heart())
	case KindHug:
		a.startGesture(env.Command, gesture.Hug())
	case KindInit:
		a.startGesture(env.Command, gesture.Init())
	case KindSetJoint:
		a.setJoint(env)
	case KindSetJoints:
		a.setJoints(env)
	case KindNudgeJoint:
		a.nudgeJoint(env)
	}
}

// preempt stops whatever is driving the arm: a running tracker is
// stopped and joined; a live gesture is cancelled and joined with a
// 2s bound, after which it is abandoned (its remaining writes are
// best-effort and its handle clears itself when it finally exits).
// Reports whether a running tracker was stopped.
func (a *App) preempt() bool {
	stopped := false
	if a.tracker != nil && a.tracker.Running() {
		a.log.Info("stopping face tracking for preemption")
		stopped = a.tracker.Stop()
	}

	a.mu.Lock()
	act := a.activity
	a.activity = nil
	a.mu.Unlock()
	if act == nil {
		return stopped
	}

	a.log.Info("cancelling running action", "command", act.name, "activity", act.id)
	act.cancel()
	select {
	case <-act.done:
	case <-time.After(gestureJoinTimeout):
		a.log.Warn("action did not stop in time, abandoning",
			"command", act.name, "activity", act.id)
	}
	return stopped
}

// Shutdown preempts any running activity and parks the arm. Called once
// at process exit, before the transport says goodbye.
func (a *App) Shutdown(ctx context.Context) {
	a.admit.Lock()
	defer a.admit.Unlock()
	a.preempt()
	if a.engine != nil {
		a.engine.Park(ctx)
	}
}

// ============================================================
// Dispatch
// ============================================================

func (a *App) startTracking(cmd string) {
	if a.tracker == nil {
		a.log.Warn("face tracking unavailable")
		a.sink.Publish(protocol.NewResultError(cmd, protocol.CodeTrackerUnavailable))
		return
	}
	a.log.Info("starting face tracking")
	started := a.tracker.Start()
	status := protocol.StatusAlreadyRunning
	if started || a.tracker.Running() {
		status = protocol.StatusRunning
	}
	a.sink.Publish(protocol.NewResult(cmd, status))
}

// stopTracking reports stopped when this command's preemption took a
// running tracker down, not_running when there was nothing to stop.
func (a *App) stopTracking(cmd string, stoppedInPreempt bool) {
	if a.tracker == nil {
		a.log.Warn("stop requested but tracker unavailable")
		a.sink.Publish(protocol.NewResultError(cmd, protocol.CodeTrackerUnavailable))
		return
	}
	stopped := stoppedInPreempt || a.tracker.Stop()
	status := protocol.StatusNotRunning
	if stopped {
		status = protocol.StatusStopped
	}
	a.sink.Publish(protocol.NewResult(cmd, status))
}

func (a *App) startGesture(cmd string, spec gesture.Spec) {
	if a.engine == nil {
		a.sink.Publish(protocol.NewResultError(cmd, protocol.CodeArmUnavailable))
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	act := &activity{
		id:     uuid.NewString(),
		name:   cmd,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	a.mu.Lock()
	a.activity = act
	a.mu.Unlock()

	a.sink.Publish(protocol.NewProgress(cmd))
	a.log.Info("action start", "command", cmd, "activity", act.id)
	go a.runGesture(ctx, act, spec)
}

// runGesture plays the gesture and reports the terminal result. The done
// channel closes before the handle clears, so preemption never waits on
// a finished run.
func (a *App) runGesture(ctx context.Context, act *activity, spec gesture.Spec) {
	defer act.cancel()

	outcome := a.engine.Run(ctx, spec)
	status := protocol.StatusCompleted
	if ctx.Err() != nil {
		status = protocol.StatusCancelled
	}
	a.sink.Publish(protocol.NewResultOutcome(act.name, status, outcome))
	a.log.Info("action result", "command", act.name, "status", status, "outcome", outcome)
	close(act.done)

	a.mu.Lock()
	if a.activity == act {
		a.activity = nil
	}
	a.mu.Unlock()
}

func (a *App) setJoint(env *protocol.Envelope) {
	cmd := env.Command
	if a.writer == nil {
		a.sink.Publish(protocol.NewResultError(cmd, protocol.CodeArmUnavailable))
		return
	}
	sid, ok := env.FirstInt("id", "sid")
	if !ok || !arm.ValidID(sid) {
		a.sink.Publish(protocol.NewResultError(cmd, protocol.CodeInvalidSID))
		return
	}
	if !env.Has("angle") {
		a.sink.Publish(protocol.NewResultError(cmd, protocol.CodeMissingAngle))
		return
	}
	angle, ok := env.Int("angle")
	if !ok {
		a.sink.Publish(protocol.NewResultError(cmd, protocol.CodeInvalidAngles))
		return
	}
	move := a.moveTime(env, arm.DefaultWriteMove)
	a.log.Info("set_joint request", "sid", sid, "angle", angle, "move", move)
	a.finishManual(cmd, a.writer.SetJoint(context.Background(), sid, angle, move))
}

func (a *App) setJoints(env *protocol.Envelope) {
	cmd := env.Command
	if a.writer == nil {
		a.sink.Publish(protocol.NewResultError(cmd, protocol.CodeArmUnavailable))
		return
	}
	angles, ok := env.Ints("angles", arm.NumJoints)
	if !ok {
		a.sink.Publish(protocol.NewResultError(cmd, protocol.CodeInvalidAngles))
		return
	}
	move := a.moveTime(env, arm.DefaultWriteMove)
	a.log.Info("set_joints request", "angles", angles, "move", move)
	a.finishManual(cmd, a.writer.SetJoints(context.Background(), angles, move))
}

func (a *App) nudgeJoint(env *protocol.Envelope) {
	cmd := env.Command
	if a.writer == nil {
		a.sink.Publish(protocol.NewResultError(cmd, protocol.CodeArmUnavailable))
		return
	}
	sid, ok := env.FirstInt("id", "sid")
	if !ok || !arm.ValidID(sid) {
		a.sink.Publish(protocol.NewResultError(cmd, protocol.CodeInvalidSID))
		return
	}
	delta, ok := env.IntDefault("delta", 0)
	if !ok {
		a.sink.Publish(protocol.NewResultError(cmd, protocol.CodeInvalidDelta))
		return
	}
	move := a.moveTime(env, arm.DefaultNudgeMove)
	a.log.Info("nudge_joint request", "sid", sid, "delta", delta, "move", move)
	a.finishManual(cmd, a.writer.NudgeJoint(context.Background(), sid, delta, move))
}

// finishManual publishes the result of a synchronous manual write.
func (a *App) finishManual(cmd string, err error) {
	outcome := manualOutcome(err)
	status := protocol.StatusOK
	if outcome != protocol.StatusOK {
		status = protocol.StatusError
	}
	a.sink.Publish(protocol.NewResultOutcome(cmd, status, outcome))
	a.log.Info("manual outcome", "command", cmd, "outcome", outcome)
}

// manualOutcome renders a writer error as the wire outcome string.
func manualOutcome(err error) string {
	switch {
	case err == nil:
		return protocol.StatusOK
	case errors.Is(err, arm.ErrInvalidServoID):
		return "error:" + protocol.CodeInvalidSID
	case errors.Is(err, arm.ErrInvalidAngles):
		return "error:" + protocol.CodeInvalidAngles
	case errors.Is(err, arm.ErrReadFailed):
		return "error:" + protocol.CodeReadFailed
	case errors.Is(err, arm.ErrBusy):
		return "error:" + protocol.CodeBusy
	default:
		return "error:" + err.Error()
	}
}

// moveTime extracts time_ms, falling back to def when the field is
// absent or malformed.
func (a *App) moveTime(env *protocol.Envelope, def time.Duration) time.Duration {
	ms, ok := env.IntDefault("time_ms", int(def/time.Millisecond))
	if !ok {
		a.log.Debug("malformed time_ms, using default", "default", def)
		return def
	}
	return time.Duration(ms) * time.Millisecond
}
