package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ErrBadEnvelope reports an inbound frame that is not a JSON object.
var ErrBadEnvelope = errors.New("protocol: frame is not a JSON object")

// Envelope is a decoded inbound frame. Params holds the raw object so
// command handlers can pull whatever keys they need beyond the lifted
// header fields.
type Envelope struct {
	Type       string
	Command    string
	RobotID    string
	Params     map[string]any
	ReceivedAt time.Time

	hasType    bool
	badRobotID bool
}

// DecodeEnvelope parses an inbound frame. The frame must be a JSON object;
// type, command and robot_id are lifted out when present with string values.
func DecodeEnvelope(raw []byte) (*Envelope, error) {
	var params map[string]any
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadEnvelope, err)
	}
	if params == nil {
		return nil, ErrBadEnvelope
	}
	env := &Envelope{Params: params, ReceivedAt: time.Now()}
	if v, ok := params["type"]; ok && v != nil {
		env.hasType = true
		if s, ok := v.(string); ok {
			env.Type = s
		}
	}
	if s, ok := params["command"].(string); ok {
		env.Command = strings.TrimSpace(s)
	}
	if v, ok := params["robot_id"]; ok && v != nil {
		s, isStr := v.(string)
		env.RobotID = s
		env.badRobotID = !isStr
	}
	return env, nil
}

// IsCommand reports whether the frame should be dispatched as a command.
// Untyped frames count as commands; frames typed anything else do not.
func (e *Envelope) IsCommand() bool {
	return !e.hasType || e.Type == TypeCommand
}

// ForRobot reports whether the frame is addressed to the given robot. Frames
// with no robot_id, an empty one, or the "all" broadcast address match every
// robot.
func (e *Envelope) ForRobot(robotID string) bool {
	if e.badRobotID {
		return false
	}
	return e.RobotID == "" || e.RobotID == robotID || e.RobotID == RobotAll
}

// Has reports whether key is present with a non-null value.
func (e *Envelope) Has(key string) bool {
	v, ok := e.Params[key]
	return ok && v != nil
}

// Int extracts an integral numeric parameter. JSON numbers with a fractional
// part are rejected; numeric strings are accepted for frontend convenience.
func (e *Envelope) Int(key string) (int, bool) {
	v, ok := e.Params[key]
	if !ok || v == nil {
		return 0, false
	}
	return toInt(v)
}

// IntDefault is Int with a fallback for absent or null keys. A key that is
// present but not integral still fails.
func (e *Envelope) IntDefault(key string, def int) (int, bool) {
	v, ok := e.Params[key]
	if !ok || v == nil {
		return def, true
	}
	return toInt(v)
}

// FirstInt extracts an integral value from the first of keys that is present
// with a non-null value. Later keys are not consulted once one is found, even
// if its value is malformed.
func (e *Envelope) FirstInt(keys ...string) (int, bool) {
	for _, k := range keys {
		if v, ok := e.Params[k]; ok && v != nil {
			return toInt(v)
		}
	}
	return 0, false
}

// Ints extracts a parameter that must be an array of exactly want integral
// values.
func (e *Envelope) Ints(key string, want int) ([]int, bool) {
	v, ok := e.Params[key]
	if !ok || v == nil {
		return nil, false
	}
	arr, ok := v.([]any)
	if !ok || len(arr) != want {
		return nil, false
	}
	out := make([]int, len(arr))
	for i, el := range arr {
		n, ok := toInt(el)
		if !ok {
			return nil, false
		}
		out[i] = n
	}
	return out, true
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		if n != math.Trunc(n) || n < math.MinInt32 || n > math.MaxInt32 {
			return 0, false
		}
		return int(n), true
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0, false
		}
		return i, true
	default:
		return 0, false
	}
}
