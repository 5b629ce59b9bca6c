package hub

import (
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
)

const (
	// writeWait is how long to wait for a write to complete.
	writeWait = 10 * time.Second

	// helloWait bounds how long a new connection gets to identify itself.
	helloWait = 10 * time.Second

	// pongWait is how long to wait for a pong response.
	pongWait = 60 * time.Second

	// pingPeriod must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize is the maximum inbound frame size.
	maxMessageSize = 512 * 1024

	// sendQueueSize is the per-client outbound buffer. A full buffer
	// drops the frame rather than stalling the relay.
	sendQueueSize = 256
)

// client is one identified websocket connection, robot or frontend.
type client struct {
	id        string
	role      string
	robotID   string // set for robots
	conn      *websocket.Conn
	send      chan []byte
	connected time.Time

	mu       sync.Mutex
	lastSeen time.Time
}

// enqueue queues a frame for the write pump. It reports false when the
// client's buffer is full.
func (c *client) enqueue(data []byte) bool {
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *client) touch() {
	c.mu.Lock()
	c.lastSeen = time.Now()
	c.mu.Unlock()
}

func (c *client) seen() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSeen
}

// readPump reads frames until the connection drops, feeding each one to
// the hub router. It also keeps the read deadline fed from pongs.
func (c *client) readPump(h *Hub) {
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		c.touch()
		h.route(c, raw)
	}
}

// writePump owns all writes to the connection: queued frames and the
// ping keepalive. A closed send channel ends the connection with a close
// frame.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
