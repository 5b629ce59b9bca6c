package carebot

import "strings"

// Kind identifies a routed command family.
type Kind int

const (
	KindUnknown Kind = iota
	KindStartTracking
	KindStopTracking
	KindHeart
	KindHug
	KindInit
	KindSetJoint
	KindSetJoints
	KindNudgeJoint
)

// ParseCommand maps a wire command name onto its kind. Matching is
// case-insensitive and synonyms collapse here; acks and results echo
// the name as it arrived.
func ParseCommand(cmd string) (Kind, bool) {
	switch strings.ToLower(cmd) {
	case "face_tracking", "face_tracking_mode":
		return KindStartTracking, true
	case "stop_face_tracking", "stop_face_tracking_mode":
		return KindStopTracking, true
	case "make_heart":
		return KindHeart, true
	case "hug", "make_hug":
		return KindHug, true
	case "init_pose", "init", "ready_pose":
		return KindInit, true
	case "set_joint":
		return KindSetJoint, true
	case "set_joints":
		return KindSetJoints, true
	case "nudge_joint":
		return KindNudgeJoint, true
	}
	return KindUnknown, false
}
