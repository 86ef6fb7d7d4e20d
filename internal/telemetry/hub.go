// Package telemetry exposes a control loop over HTTP, a websocket feed and
// an optional MQTT bridge. Nothing here runs on the loop's goroutine except
// the observer callbacks, which never block.
package telemetry

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/san-kum/seesaw/internal/diag"
	"github.com/san-kum/seesaw/internal/experiment"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Hub fans status snapshots out to websocket clients. While a run is in
// progress only phase changes are recorded and forwarded.
//
// OnStep only touches lastMu, which no network write ever holds. Client
// writes happen on the Run goroutine with a deadline, outside mu.
type Hub struct {
	broadcast    chan experiment.Status
	log          diag.Sink
	writeTimeout time.Duration
	dropped      atomic.Int64

	lastMu  sync.Mutex
	last    experiment.Status
	hasLast bool

	mu      sync.Mutex
	clients map[*websocket.Conn]bool
}

func NewHub(buffer int, log diag.Sink) *Hub {
	if log == nil {
		log = diag.Discard
	}
	return &Hub{
		broadcast:    make(chan experiment.Status, buffer),
		clients:      make(map[*websocket.Conn]bool),
		log:          log,
		writeTimeout: DefaultWriteTimeout,
	}
}

// DefaultWriteTimeout bounds a single websocket write. A client that cannot
// take a message in time is dropped.
const DefaultWriteTimeout = time.Second

func (h *Hub) SetWriteTimeout(d time.Duration) { h.writeTimeout = d }

func (h *Hub) OnStep(st experiment.Status) {
	h.lastMu.Lock()
	changed := !h.hasLast || h.last.Phase != st.Phase
	if experiment.Running(st) && !changed {
		h.lastMu.Unlock()
		return
	}
	h.last = st
	h.hasLast = true
	h.lastMu.Unlock()

	select {
	case h.broadcast <- st:
	default:
		h.dropped.Add(1)
	}
}

// Last returns the most recent recorded snapshot.
func (h *Hub) Last() (experiment.Status, bool) {
	h.lastMu.Lock()
	defer h.lastMu.Unlock()
	return h.last, h.hasLast
}

// Dropped counts snapshots discarded because the broadcast queue was full.
func (h *Hub) Dropped() int64 { return h.dropped.Load() }

func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) snapshot() []*websocket.Conn {
	h.mu.Lock()
	defer h.mu.Unlock()
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for c := range h.clients {
		conns = append(conns, c)
	}
	return conns
}

func (h *Hub) remove(c *websocket.Conn) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	c.Close()
}

func (h *Hub) write(c *websocket.Conn, st experiment.Status) error {
	if err := c.SetWriteDeadline(time.Now().Add(h.writeTimeout)); err != nil {
		return err
	}
	return c.WriteJSON(st)
}

// Run writes queued snapshots to every client until ctx is done. It is the
// only writer on a registered connection.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for _, c := range h.snapshot() {
				h.remove(c)
			}
			return
		case st := <-h.broadcast:
			for _, c := range h.snapshot() {
				if err := h.write(c, st); err != nil {
					h.log.Logf("telemetry: websocket write: %v", err)
					h.remove(c)
				}
			}
		}
	}
}

// ServeWS upgrades the request and registers the connection. The first
// message a client sees is the last recorded snapshot.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Logf("telemetry: websocket upgrade: %v", err)
		return
	}
	defer ws.Close()

	if last, ok := h.Last(); ok {
		if err := h.write(ws, last); err != nil {
			return
		}
	}
	h.mu.Lock()
	h.clients[ws] = true
	h.mu.Unlock()

	for {
		// Inbound messages are ignored; reading detects the close.
		if _, _, err := ws.ReadMessage(); err != nil {
			h.mu.Lock()
			delete(h.clients, ws)
			h.mu.Unlock()
			return
		}
	}
}
