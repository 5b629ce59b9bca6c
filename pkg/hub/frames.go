package hub

import "github.com/carebotlabs/go-carebot/pkg/protocol"

// Client roles, taken from the "agent" field of the identifying hello.
const (
	RoleRobot    = protocol.WhoCarebot
	RoleFrontend = "frontend"
)

// Frame types and markers minted by the hub itself.
const (
	typeHelloAck = "hello_ack"
	typeStatus   = "status"
	viaHub       = "hub"

	eventRobotOnline  = "robot_online"
	eventRobotOffline = "robot_offline"
)

// Relay-level error tags sent back to frontends.
const (
	errInvalidJSON       = "invalid_json"
	errRobotNotConnected = "robot_not_connected"
	errHelloRequired     = "hello_required"
)

// helloFrame is the first frame every client must send.
type helloFrame struct {
	Type    string `json:"type"`
	Agent   string `json:"agent"`
	RobotID string `json:"robot_id"`
}

// helloAck confirms admission, carrying the assigned connection id and
// the robots currently online.
type helloAck struct {
	Type   string   `json:"type"`
	ID     string   `json:"id"`
	Robots []string `json:"robots"`
	Via    string   `json:"via"`
	TS     string   `json:"ts"`
}

func newHelloAck(id string, robots []string) helloAck {
	return helloAck{
		Type:   typeHelloAck,
		ID:     id,
		Robots: robots,
		Via:    viaHub,
		TS:     protocol.NowISO(),
	}
}

// statusFrame announces robot presence changes to frontends.
type statusFrame struct {
	Type    string `json:"type"`
	Event   string `json:"event"`
	RobotID string `json:"robot_id"`
	Via     string `json:"via"`
	TS      string `json:"ts"`
}

func newStatusFrame(event, robotID string) statusFrame {
	return statusFrame{
		Type:    typeStatus,
		Event:   event,
		RobotID: robotID,
		Via:     viaHub,
		TS:      protocol.NowISO(),
	}
}

// errorFrame reports a relay-level fault to the client that caused it.
type errorFrame struct {
	Type    string `json:"type"`
	Error   string `json:"error"`
	RobotID string `json:"robot_id,omitempty"`
	Via     string `json:"via"`
	TS      string `json:"ts"`
}

func newErrorFrame(tag, robotID string) errorFrame {
	return errorFrame{
		Type:    protocol.TypeError,
		Error:   tag,
		RobotID: robotID,
		Via:     viaHub,
		TS:      protocol.NowISO(),
	}
}
