// Package hub implements the relay that bridges carebot agents and
// operator frontends over WebSocket.
//
// Every connection identifies itself with a hello frame. Command frames
// from frontends are forwarded verbatim to the addressed robot (or all
// robots); every frame a robot sends is fanned out to all frontends,
// annotated via:"hub". Slow consumers lose frames, never stall the relay.
package hub

import (
	"encoding/json"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/carebotlabs/go-carebot/internal/log"
	"github.com/carebotlabs/go-carebot/pkg/protocol"
)

// Hub is the connection registry and frame router.
type Hub struct {
	log *slog.Logger

	mu        sync.RWMutex
	robots    map[string]*client // keyed by robot id
	frontends map[string]*client // keyed by connection id

	received  atomic.Uint64
	delivered atomic.Uint64
	dropped   atomic.Uint64
}

// New creates an empty hub.
func New() *Hub {
	return &Hub{
		log:       log.Component("hub"),
		robots:    make(map[string]*client),
		frontends: make(map[string]*client),
	}
}

// =============================================================================
// Routes
// =============================================================================

// RegisterRoutes mounts the WebSocket endpoint on a Fiber app.
func (h *Hub) RegisterRoutes(app *fiber.App) {
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", websocket.New(h.handle))
}

// RegisterAPIRoutes mounts the REST status endpoints on a router group.
func (h *Hub) RegisterAPIRoutes(api fiber.Router) {
	api.Get("/status", func(c *fiber.Ctx) error {
		return c.JSON(h.Status())
	})
	api.Get("/robots", func(c *fiber.Ctx) error {
		ids := h.RobotIDs()
		return c.JSON(fiber.Map{"robots": ids, "count": len(ids)})
	})
}

// =============================================================================
// Connection lifecycle
// =============================================================================

// handle runs one WebSocket connection from admission to teardown.
func (h *Hub) handle(conn *websocket.Conn) {
	c, ok := h.admit(conn)
	if !ok {
		conn.Close()
		return
	}

	h.register(c)
	defer h.drop(c)

	go c.writePump()
	c.readPump(h)
}

// admit performs the hello handshake: the first frame must identify the
// client as a carebot or a frontend. The hello_ack is written directly,
// before the write pump exists, so it is always the first frame out.
func (h *Hub) admit(conn *websocket.Conn) (*client, bool) {
	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(helloWait))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		h.log.Debug("connection dropped before hello", "err", err)
		return nil, false
	}

	var hello helloFrame
	if err := json.Unmarshal(raw, &hello); err != nil || hello.Type != protocol.TypeHello {
		h.refuse(conn, errHelloRequired)
		return nil, false
	}

	c := &client{
		id:        uuid.NewString(),
		conn:      conn,
		send:      make(chan []byte, sendQueueSize),
		connected: time.Now(),
		lastSeen:  time.Now(),
	}
	switch hello.Agent {
	case RoleRobot:
		c.role = RoleRobot
		c.robotID = hello.RobotID
		if c.robotID == "" {
			c.robotID = c.id
		}
	case RoleFrontend:
		c.role = RoleFrontend
	default:
		h.refuse(conn, errHelloRequired)
		return nil, false
	}

	ack, err := json.Marshal(newHelloAck(c.id, h.RobotIDs()))
	if err != nil {
		return nil, false
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, ack); err != nil {
		return nil, false
	}
	return c, true
}

func (h *Hub) refuse(conn *websocket.Conn, tag string) {
	if data, err := json.Marshal(newErrorFrame(tag, "")); err == nil {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		conn.WriteMessage(websocket.TextMessage, data)
	}
}

// register adds a client to the registry. A robot reconnecting under an
// id that is still registered replaces the stale connection.
func (h *Hub) register(c *client) {
	var stale *client
	h.mu.Lock()
	switch c.role {
	case RoleRobot:
		if old, ok := h.robots[c.robotID]; ok {
			stale = old
			close(old.send)
		}
		h.robots[c.robotID] = c
	case RoleFrontend:
		h.frontends[c.id] = c
	}
	robots, frontends := len(h.robots), len(h.frontends)
	h.mu.Unlock()

	if stale != nil {
		h.log.Warn("robot reconnected, replacing stale connection", "robot_id", c.robotID)
	}
	h.log.Info("client connected",
		"role", c.role, "id", c.id, "robot_id", c.robotID,
		"robots", robots, "frontends", frontends)

	if c.role == RoleRobot {
		h.broadcastStatus(eventRobotOnline, c.robotID)
	}
}

// drop removes a client. Only the goroutine that actually removes the
// entry closes the send channel; a replaced robot was already closed by
// register.
func (h *Hub) drop(c *client) {
	removed := false
	h.mu.Lock()
	switch c.role {
	case RoleRobot:
		if h.robots[c.robotID] == c {
			delete(h.robots, c.robotID)
			close(c.send)
			removed = true
		}
	case RoleFrontend:
		if h.frontends[c.id] == c {
			delete(h.frontends, c.id)
			close(c.send)
			removed = true
		}
	}
	robots, frontends := len(h.robots), len(h.frontends)
	h.mu.Unlock()

	if !removed {
		return
	}
	h.log.Info("client disconnected",
		"role", c.role, "id", c.id, "robot_id", c.robotID,
		"robots", robots, "frontends", frontends)

	if c.role == RoleRobot {
		h.broadcastStatus(eventRobotOffline, c.robotID)
	}
}

// =============================================================================
// Routing
// =============================================================================

// route dispatches one inbound frame by sender role.
func (h *Hub) route(c *client, raw []byte) {
	h.received.Add(1)

	env, err := protocol.DecodeEnvelope(raw)
	if err != nil {
		if c.role == RoleFrontend {
			h.reply(c, newErrorFrame(errInvalidJSON, ""))
		} else {
			h.log.Debug("unparsable robot frame dropped", "robot_id", c.robotID)
		}
		return
	}

	switch c.role {
	case RoleRobot:
		h.toFrontends(env)
	case RoleFrontend:
		if !env.IsCommand() {
			h.log.Debug("non-command frontend frame ignored", "type", env.Type)
			return
		}
		h.toRobots(c, env, raw)
	}
}

// toRobots forwards a command frame, verbatim, to the addressed robot.
// No robot_id or "all" fans out to every robot.
func (h *Hub) toRobots(from *client, env *protocol.Envelope, raw []byte) {
	target := env.RobotID

	h.mu.RLock()
	if target == "" || target == protocol.RobotAll {
		for _, r := range h.robots {
			h.deliver(r, raw)
		}
		h.mu.RUnlock()
		return
	}
	r, ok := h.robots[target]
	if ok {
		h.deliver(r, raw)
	}
	h.mu.RUnlock()

	if !ok {
		h.reply(from, newErrorFrame(errRobotNotConnected, target))
	}
}

// toFrontends fans a robot frame out to every frontend, annotated so
// consumers can tell relayed frames from direct ones.
func (h *Hub) toFrontends(env *protocol.Envelope) {
	env.Params["via"] = viaHub
	data, err := json.Marshal(env.Params)
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, f := range h.frontends {
		h.deliver(f, data)
	}
}

// broadcastStatus tells every frontend about a robot presence change.
func (h *Hub) broadcastStatus(event, robotID string) {
	data, err := json.Marshal(newStatusFrame(event, robotID))
	if err != nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, f := range h.frontends {
		h.deliver(f, data)
	}
}

// reply sends a hub-minted frame back to the client whose read pump is
// currently executing, so its send channel cannot be closed underneath.
func (h *Hub) reply(c *client, frame any) {
	data, err := json.Marshal(frame)
	if err != nil {
		return
	}
	h.deliver(c, data)
}

func (h *Hub) deliver(c *client, data []byte) {
	if c.enqueue(data) {
		h.delivered.Add(1)
		return
	}
	h.dropped.Add(1)
	h.log.Debug("slow client, frame dropped", "role", c.role, "id", c.id)
}

// =============================================================================
// Introspection
// =============================================================================

// ClientInfo describes one connection for the status API.
type ClientInfo struct {
	ID        string    `json:"id"`
	RobotID   string    `json:"robot_id,omitempty"`
	Connected time.Time `json:"connected"`
	LastSeen  time.Time `json:"last_seen"`
}

// Status is the hub state reported by GET /api/status.
type Status struct {
	Robots    []ClientInfo `json:"robots"`
	Frontends []ClientInfo `json:"frontends"`
	Received  uint64       `json:"received"`
	Delivered uint64       `json:"delivered"`
	Dropped   uint64       `json:"dropped"`
}

// Status snapshots the registry and counters.
func (h *Hub) Status() Status {
	h.mu.RLock()
	defer h.mu.RUnlock()

	s := Status{
		Robots:    make([]ClientInfo, 0, len(h.robots)),
		Frontends: make([]ClientInfo, 0, len(h.frontends)),
		Received:  h.received.Load(),
		Delivered: h.delivered.Load(),
		Dropped:   h.dropped.Load(),
	}
	for _, r := range h.robots {
		s.Robots = append(s.Robots, ClientInfo{
			ID: r.id, RobotID: r.robotID, Connected: r.connected, LastSeen: r.seen(),
		})
	}
	for _, f := range h.frontends {
		s.Frontends = append(s.Frontends, ClientInfo{
			ID: f.id, Connected: f.connected, LastSeen: f.seen(),
		})
	}
	sort.Slice(s.Robots, func(i, j int) bool { return s.Robots[i].RobotID < s.Robots[j].RobotID })
	return s
}

// RobotIDs returns the ids of the robots currently online, sorted.
func (h *Hub) RobotIDs() []string {
	h.mu.RLock()
	ids := make([]string, 0, len(h.robots))
	for id := range h.robots {
		ids = append(ids, id)
	}
	h.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// RobotCount returns the number of robots currently online.
func (h *Hub) RobotCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.robots)
}
