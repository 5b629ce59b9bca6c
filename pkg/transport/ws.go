package transport

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	"github.com/gorilla/websocket"

	"github.com/carebotlabs/go-carebot/internal/log"
	"github.com/carebotlabs/go-carebot/pkg/protocol"
)

const (
	// Time allowed to write a frame to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong from the peer.
	pongWait = 60 * time.Second

	// Send pings with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum inbound frame size.
	maxMessageSize = 512 * 1024

	// Outbound queue depth. Frames queued beyond this are dropped.
	sendQueueSize = 256

	handshakeTimeout = 10 * time.Second
)

// WSConfig configures the WebSocket client.
type WSConfig struct {
	URL          string
	RobotID      string
	Capabilities []string
	Backoff      Backoff
}

// WS is a reconnecting WebSocket link to the backend. Events published
// while disconnected queue up and flush on the next connect.
type WS struct {
	cfg     WSConfig
	handler Handler
	dialer  *websocket.Dialer
	send    chan []byte
	log     *slog.Logger
}

var _ Client = (*WS)(nil)

// NewWS creates a WebSocket client. handler may be nil when inbound
// frames are not of interest.
func NewWS(cfg WSConfig, handler Handler) *WS {
	if cfg.Backoff == (Backoff{}) {
		cfg.Backoff = DefaultBackoff()
	}
	if handler == nil {
		handler = func([]byte) {}
	}
	return &WS{
		cfg:     cfg,
		handler: handler,
		dialer:  &websocket.Dialer{HandshakeTimeout: handshakeTimeout},
		send:    make(chan []byte, sendQueueSize),
		log:     log.Component("transport"),
	}
}

// Publish stamps, marshals, and queues one event. When the queue is
// full the event is dropped.
func (w *WS) Publish(v any) {
	data, err := encode(v, w.cfg.RobotID)
	if err != nil {
		w.log.Error("event marshal failed", "err", err)
		return
	}
	select {
	case w.send <- data:
	default:
		w.log.Debug("send queue full, event dropped")
	}
}

// Run dials and serves until ctx is cancelled, reconnecting with
// backoff after every connection loss.
func (w *WS) Run(ctx context.Context) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	attempt := 0
	for ctx.Err() == nil {
		attempt++
		w.log.Info("connecting", "url", w.cfg.URL)
		conn, _, err := w.dialer.DialContext(ctx, w.cfg.URL, nil)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			delay := w.cfg.Backoff.Delay(attempt, rng)
			w.log.Warn("connect failed", "err", err, "retry_in", delay)
			if !sleepCtx(ctx, delay) {
				return
			}
			continue
		}
		attempt = 0
		w.log.Info("connected", "url", w.cfg.URL)
		w.serve(ctx, conn)
	}
}

// serve runs one connection: hello first, then the read loop, with the
// write pump as the sole writer. Returns when the connection dies or
// ctx is cancelled.
func (w *WS) serve(ctx context.Context, conn *websocket.Conn) {
	// hello announces identity before any queued event flows.
	hello, err := encode(protocol.NewHello(w.cfg.Capabilities), w.cfg.RobotID)
	if err == nil {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		err = conn.WriteMessage(websocket.TextMessage, hello)
	}
	if err != nil {
		w.log.Warn("hello failed", "err", err)
		conn.Close()
		return
	}

	stop := make(chan struct{}) // read loop exited
	done := make(chan struct{}) // write pump exited
	go w.writePump(ctx, conn, stop, done)

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				w.log.Warn("connection lost", "err", err)
			}
			break
		}
		w.handler(raw)
	}
	close(stop)
	<-done
}

// writePump is the sole writer on conn. It drains the send queue and
// keeps the connection alive with pings. On shutdown it flushes what
// remains and says goodbye; closing conn unblocks the read loop.
func (w *WS) writePump(ctx context.Context, conn *websocket.Conn, stop, done chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
		close(done)
	}()
	for {
		select {
		case data := <-w.send:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-ctx.Done():
			w.flush(conn)
			return
		case <-stop:
			return
		}
	}
}

// flush drains queued frames and sends a close frame. Best-effort.
func (w *WS) flush(conn *websocket.Conn) {
	for {
		select {
		case data := <-w.send:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if conn.WriteMessage(websocket.TextMessage, data) != nil {
				return
			}
		default:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
