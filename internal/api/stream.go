package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/talgya/gridtransit/internal/engine"
)

// catchUpEvents is how many recent events a new stream client receives.
const catchUpEvents = 50

var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

// Hub fans game events out to websocket clients.
type Hub struct {
	clients *xsync.MapOf[string, *client]
}

type client struct {
	id    string
	conn  *websocket.Conn
	send  chan []byte
	done  chan struct{}
	once  sync.Once
	admin bool
}

func (c *client) close() {
	c.once.Do(func() { close(c.done) })
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{clients: xsync.NewMapOf[string, *client]()}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	return h.clients.Size()
}

// Publish queues an event for every client without blocking. Clients
// whose queue is full are disconnected.
func (h *Hub) Publish(e engine.Event) {
	data, err := json.Marshal(e)
	if err != nil {
		slog.Error("encode event", "kind", e.Kind, "error", err)
		return
	}
	h.clients.Range(func(id string, c *client) bool {
		select {
		case c.send <- data:
		case <-c.done:
		default:
			slog.Warn("stream client too slow, dropping", "client", id)
			h.drop(id)
		}
		return true
	})
}

func (h *Hub) drop(id string) {
	if c, ok := h.clients.LoadAndDelete(id); ok {
		c.close()
	}
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.clients.Range(func(id string, _ *client) bool {
		h.drop(id)
		return true
	})
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("stream upgrade failed", "error", err)
		return
	}
	c := &client{
		id:    uuid.NewString(),
		conn:  conn,
		send:  make(chan []byte, 256),
		done:  make(chan struct{}),
		admin: s.AdminKey == "" || s.checkBearerToken(r),
	}

	// Events are published under the simulation's write lock, so taking the
	// catch-up copy and registering under the read lock loses none and
	// repeats none.
	var events []engine.Event
	s.Sim.Read(func(sim *engine.Simulation) {
		events = slices.Clone(sim.Events[max(0, len(sim.Events)-catchUpEvents):])
		s.hub.clients.Store(c.id, c)
	})
	slog.Info("stream client connected", "client", c.id, "clients", s.hub.Clients())

	for _, e := range events {
		if err := conn.WriteJSON(e); err != nil {
			s.hub.drop(c.id)
			conn.Close()
			return
		}
	}

	go s.hub.writePump(c)
	s.readPump(c)
}

// command is a client message on the stream. Payload carries the same
// fields as the matching POST endpoint.
type command struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// commandResult answers a command on the sender's stream only.
type commandResult struct {
	Type    string `json:"type"`
	Command string `json:"command"`
	OK      bool   `json:"ok"`
	Error   string `json:"error,omitempty"`
	Result  any    `json:"result,omitempty"`
}

// readPump executes client commands until the connection drops.
func (s *Server) readPump(c *client) {
	defer s.hub.drop(c.id)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var cmd command
		if err := json.Unmarshal(data, &cmd); err != nil {
			s.reply(c, commandResult{Type: "command_result", Error: "invalid json"})
			continue
		}
		s.reply(c, s.execute(c, cmd))
	}
}

func (s *Server) execute(c *client, cmd command) commandResult {
	res := commandResult{Type: "command_result", Command: cmd.Type}
	if !c.admin {
		res.Error = "unauthorized"
		return res
	}

	var req editRequest
	switch cmd.Type {
	case "place_segment", "remove_segment", "rotate_segment":
		if len(cmd.Payload) == 0 || json.Unmarshal(cmd.Payload, &req) != nil {
			res.Error = "invalid payload"
			return res
		}
		if !s.edits.Allow(c.id) {
			res.Error = "rate limited"
			return res
		}
	}

	var (
		p   any
		err error
	)
	switch cmd.Type {
	case "place_segment":
		p, err = s.Sim.PlaceSegment(req.pos(), req.Type, req.Rotation)
	case "remove_segment":
		p, err = s.Sim.RemoveSegment(req.pos())
	case "rotate_segment":
		p, err = s.Sim.RotateSegment(req.pos())
	case "pause":
		p = s.Sim.Pause()
	case "resume":
		p = s.Sim.Resume()
	case "restart":
		if err = s.Sim.Restart(); err == nil {
			st := s.Sim.Status()
			s.startSession(st)
			p = st
		}
	default:
		res.Error = "unknown command"
		return res
	}
	if err != nil {
		res.Error = err.Error()
		return res
	}
	res.OK = true
	res.Result = p
	return res
}

func (s *Server) reply(c *client, res commandResult) {
	data, err := json.Marshal(res)
	if err != nil {
		slog.Error("encode command result", "command", res.Command, "error", err)
		return
	}
	select {
	case c.send <- data:
	case <-c.done:
	default:
		slog.Warn("stream client too slow, dropping", "client", c.id)
		s.hub.drop(c.id)
	}
}

func (h *Hub) writePump(c *client) {
	heartbeat := time.NewTicker(15 * time.Second)
	defer func() {
		heartbeat.Stop()
		c.conn.Close()
		slog.Info("stream client disconnected", "client", c.id)
	}()
	for {
		select {
		case msg := <-c.send:
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.drop(c.id)
				return
			}
		case <-heartbeat.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				h.drop(c.id)
				return
			}
		case <-c.done:
			return
		}
	}
}
