// Package transport moves protocol events between the agent and its
// backend. Two clients are provided: a WebSocket client for direct
// backend links and an MQTT client for broker deployments. Both
// implement protocol.Sink; Publish never blocks the caller, and frames
// that cannot be delivered are dropped rather than stalling control.
package transport

import (
	"context"
	"encoding/json"

	"github.com/carebotlabs/go-carebot/pkg/protocol"
)

// Handler consumes one raw inbound frame. Handlers run on the client's
// read loop, so frames are processed in arrival order.
type Handler func(raw []byte)

// Client is a running backend link.
type Client interface {
	protocol.Sink

	// Run serves the link until ctx is cancelled, reconnecting as
	// needed. It blocks.
	Run(ctx context.Context)
}

// encode stamps identity defaults onto the event and marshals it.
func encode(v any, robotID string) ([]byte, error) {
	if s, ok := v.(protocol.Stamper); ok {
		s.Stamp(robotID)
	}
	return json.Marshal(v)
}
