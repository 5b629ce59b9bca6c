// Package protocol defines the JSON frames exchanged between the carebot
// agent and its backends over WebSocket or MQTT.
//
// Outbound events are flat objects carrying a "type" discriminator plus a
// small shared head (ts, who, robot_id). Constructors set the type and
// timestamp; the transport stamps sender identity on every frame just before
// it leaves the process, so core components never need to know which robot
// they are.
package protocol

import "time"

// =============================================================================
// Frame types
// =============================================================================

// Inbound frame types. Frames with no "type" at all are treated as commands.
const (
	TypeCommand        = "command"
	TypeServerDispatch = "server_dispatch"
)

// Outbound event types.
const (
	TypeHello        = "hello"
	TypeAck          = "ack"
	TypeProgress     = "progress"
	TypeResult       = "result"
	TypeError        = "error"
	TypeJointState   = "joint_state"
	TypeFaceTracking = "face_tracking"
	TypeBye          = "bye"
)

// WhoCarebot identifies the agent in the "who" field of outbound frames.
const WhoCarebot = "carebot"

// RobotAll addresses a command to every robot listening on the bus.
const RobotAll = "all"

// Statuses carried by ack, progress and result events.
const (
	StatusAccepted       = "accepted"
	StatusStarted        = "started"
	StatusCompleted      = "completed"
	StatusCancelled      = "cancelled"
	StatusRunning        = "running"
	StatusAlreadyRunning = "already_running"
	StatusStopped        = "stopped"
	StatusNotRunning     = "not_running"
	StatusOK             = "ok"
	StatusError          = "error"
)

// Error codes surfaced in error events and error results.
const (
	CodeInvalidJSON        = "invalid_json"
	CodeMissingCommand     = "missing_command"
	CodeUnknownCommand     = "unknown_command"
	CodeInvalidSID         = "invalid_sid"
	CodeMissingAngle       = "missing_angle"
	CodeInvalidDelta       = "invalid_delta"
	CodeInvalidAngles      = "invalid_angles"
	CodeArmUnavailable     = "arm_unavailable"
	CodeTrackerUnavailable = "tracker_unavailable"
	CodeCameraOpenFailed   = "camera_open_failed"
	CodeReadFailed         = "read_failed"
	CodeBusy               = "busy"
)

// NowISO returns the wall clock in the RFC 3339 form used by the ts field.
func NowISO() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// =============================================================================
// Delivery
// =============================================================================

// Sink accepts outbound events for delivery to a backend. Publish must not
// block the caller: implementations queue or drop.
type Sink interface {
	Publish(v any)
}

// Discard is a Sink that drops every event, used while no transport is up.
var Discard Sink = discardSink{}

type discardSink struct{}

func (discardSink) Publish(any) {}

// Stamper is implemented by every outbound event. Transports call it once
// per frame before marshalling.
type Stamper interface {
	Stamp(robotID string)
}

// =============================================================================
// Outbound events
// =============================================================================

// Head carries the fields shared by every outbound frame.
type Head struct {
	Type    string `json:"type"`
	TS      string `json:"ts,omitempty"`
	Who     string `json:"who,omitempty"`
	RobotID string `json:"robot_id,omitempty"`
}

// Stamp fills in the sender identity, and a timestamp if the event does not
// already carry one. The robot id is always overwritten so frontends can
// attribute every frame even when a component forgot to set it.
func (h *Head) Stamp(robotID string) {
	if h.TS == "" {
		h.TS = NowISO()
	}
	if h.Who == "" {
		h.Who = WhoCarebot
	}
	h.RobotID = robotID
}

// Hello announces the agent and its capabilities after every (re)connect.
type Hello struct {
	Head
	Agent        string   `json:"agent"`
	Capabilities []string `json:"capabilities"`
}

// NewHello creates a hello event listing the currently usable capabilities.
func NewHello(capabilities []string) *Hello {
	return &Hello{
		Head:         Head{Type: TypeHello, TS: NowISO()},
		Agent:        WhoCarebot,
		Capabilities: capabilities,
	}
}

// Ack acknowledges receipt of a command before it is dispatched.
type Ack struct {
	Head
	Command string `json:"command"`
	Status  string `json:"status"`
}

// NewAck creates an accepted ack for the named command.
func NewAck(command string) *Ack {
	return &Ack{
		Head:    Head{Type: TypeAck, TS: NowISO()},
		Command: command,
		Status:  StatusAccepted,
	}
}

// Progress reports that a long-running command has started.
type Progress struct {
	Head
	Command string `json:"command"`
	Status  string `json:"status"`
}

// NewProgress creates a started progress event for the named command.
func NewProgress(command string) *Progress {
	return &Progress{
		Head:    Head{Type: TypeProgress, TS: NowISO()},
		Command: command,
		Status:  StatusStarted,
	}
}

// Result reports the terminal status of a dispatched command. Outcome carries
// the activity's own summary string when it has one; Error carries an error
// code when the command was rejected or failed.
type Result struct {
	Head
	Command string `json:"command"`
	Status  string `json:"status"`
	Outcome string `json:"outcome,omitempty"`
	Error   string `json:"error,omitempty"`
}

// NewResult creates a result with just a status.
func NewResult(command, status string) *Result {
	return &Result{
		Head:    Head{Type: TypeResult, TS: NowISO()},
		Command: command,
		Status:  status,
	}
}

// NewResultOutcome creates a result carrying an activity outcome string.
func NewResultOutcome(command, status, outcome string) *Result {
	r := NewResult(command, status)
	r.Outcome = outcome
	return r
}

// NewResultError creates an error result carrying an error code.
func NewResultError(command, code string) *Result {
	r := NewResult(command, StatusError)
	r.Error = code
	return r
}

// ErrorEvent reports a fault that is not the result of a dispatched command,
// such as an unparsable inbound frame.
type ErrorEvent struct {
	Head
	Error   string `json:"error"`
	Command string `json:"command,omitempty"`
}

// NewError creates an error event for the given code.
func NewError(code string) *ErrorEvent {
	return &ErrorEvent{
		Head:  Head{Type: TypeError, TS: NowISO()},
		Error: code,
	}
}

// NewCommandError creates an error event tied to a command name.
func NewCommandError(code, command string) *ErrorEvent {
	e := NewError(code)
	e.Command = command
	return e
}

// JointState is a telemetry snapshot of all six joints, in degrees. Entries
// are nil for joints whose read failed, so consumers can tell "unknown" from
// zero.
type JointState struct {
	Head
	Angles []*int `json:"angles"`
	Seq    uint64 `json:"seq"`
}

// NewJointState creates a joint_state event.
func NewJointState(angles []*int, seq uint64) *JointState {
	return &JointState{
		Head:   Head{Type: TypeJointState, TS: NowISO()},
		Angles: angles,
		Seq:    seq,
	}
}

// BBox is a face bounding box in capture-frame pixels.
type BBox struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// FaceTracking is the tracker's periodic status event.
type FaceTracking struct {
	Head
	Status   string `json:"status"`
	Detected *bool  `json:"detected,omitempty"`
	BBox     *BBox  `json:"bbox,omitempty"`
	Joints   []int  `json:"joints,omitempty"`
	Error    string `json:"error,omitempty"`
}

// NewTrackingStatus creates a running tracker status. BBox and joints may be
// nil when no face is in view or no write has happened yet.
func NewTrackingStatus(detected bool, bbox *BBox, joints []int) *FaceTracking {
	return &FaceTracking{
		Head:     Head{Type: TypeFaceTracking, TS: NowISO()},
		Status:   StatusRunning,
		Detected: &detected,
		BBox:     bbox,
		Joints:   joints,
	}
}

// NewTrackingError creates a tracker error status, e.g. when the camera
// cannot be opened.
func NewTrackingError(code string) *FaceTracking {
	return &FaceTracking{
		Head:   Head{Type: TypeFaceTracking, TS: NowISO()},
		Status: StatusError,
		Error:  code,
	}
}

// Bye tells the backend the agent is going away.
type Bye struct {
	Head
	Code int    `json:"code,omitempty"`
	Msg  string `json:"msg,omitempty"`
}

// NewBye creates a bye event.
func NewBye(code int, msg string) *Bye {
	return &Bye{
		Head: Head{Type: TypeBye, TS: NowISO()},
		Code: code,
		Msg:  msg,
	}
}
