// Package api provides the HTTP API for observing and playing a level.
// GET endpoints are read-only. POST endpoints edit the board or control
// the game and require a bearer token when an admin key is configured.
package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/talgya/gridtransit/internal/board"
	"github.com/talgya/gridtransit/internal/engine"
	"github.com/talgya/gridtransit/internal/level"
	"github.com/talgya/gridtransit/internal/persistence"
	"github.com/talgya/gridtransit/internal/segment"
	"github.com/talgya/gridtransit/internal/world"
)

// Server serves the game state over HTTP.
type Server struct {
	Sim      *engine.Simulation
	Eng      *engine.Engine      // Optional; enables the speed endpoint
	DB       *persistence.DB     // Optional; enables progress and sessions
	Addr     string
	AdminKey string // Bearer token for POST endpoints. Empty = open.

	hub   *Hub
	edits *RateLimiter
}

// NewServer creates a server and subscribes its event stream to sim.
func NewServer(sim *engine.Simulation, eng *engine.Engine, db *persistence.DB, addr, adminKey string) *Server {
	s := &Server{
		Sim:      sim,
		Eng:      eng,
		DB:       db,
		Addr:     addr,
		AdminKey: adminKey,
		hub:      NewHub(),
		edits:    NewRateLimiter(20, time.Second),
	}
	sim.Subscribe(s.hub.Publish)
	return s
}

// Handler returns the API routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Observation.
	mux.HandleFunc("GET /api/v1/status", s.handleStatus)
	mux.HandleFunc("GET /api/v1/level", s.handleLevel)
	mux.HandleFunc("GET /api/v1/board", s.handleBoard)
	mux.HandleFunc("GET /api/v1/graph", s.handleGraph)
	mux.HandleFunc("GET /api/v1/routes", s.handleRoutes)
	mux.HandleFunc("GET /api/v1/passengers", s.handlePassengers)
	mux.HandleFunc("GET /api/v1/buses", s.handleBuses)
	mux.HandleFunc("GET /api/v1/events", s.handleEvents)
	mux.HandleFunc("GET /api/v1/progress", s.handleProgress)
	mux.HandleFunc("GET /api/v1/stream", s.handleStream)

	// Board edits.
	mux.HandleFunc("POST /api/v1/place", s.adminOnly(RateLimitMiddleware(s.edits, s.handlePlace)))
	mux.HandleFunc("POST /api/v1/remove", s.adminOnly(RateLimitMiddleware(s.edits, s.handleRemove)))
	mux.HandleFunc("POST /api/v1/rotate", s.adminOnly(RateLimitMiddleware(s.edits, s.handleRotate)))

	// Game control.
	mux.HandleFunc("POST /api/v1/pause", s.adminOnly(s.handlePause))
	mux.HandleFunc("POST /api/v1/resume", s.adminOnly(s.handleResume))
	mux.HandleFunc("POST /api/v1/restart", s.adminOnly(s.handleRestart))
	mux.HandleFunc("/api/v1/speed", s.adminOnly(s.handleSpeed))

	return corsMiddleware(mux)
}

// Start serves the API until ctx is cancelled.
func (s *Server) Start(ctx context.Context) {
	srv := &http.Server{
		Addr:              s.Addr,
		Handler:           h2c.NewHandler(s.Handler(), &http2.Server{}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	slog.Info("HTTP API starting", "addr", s.Addr, "admin_auth", s.AdminKey != "")

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.hub.Close()
		if err := srv.Shutdown(shutdown); err != nil {
			slog.Warn("HTTP shutdown", "error", err)
		}
	}()
}

// corsMiddleware adds CORS headers for allowed frontend origins.
// Set CORS_ORIGINS to a comma-separated list of extra allowed origins.
// Localhost dev servers are always allowed.
func corsMiddleware(next http.Handler) http.Handler {
	allowedOrigins := map[string]bool{
		"http://localhost:5173": true,
		"http://localhost:4173": true,
		"http://localhost:3000": true,
	}
	if env := os.Getenv("CORS_ORIGINS"); env != "" {
		for _, origin := range strings.Split(env, ",") {
			origin = strings.TrimSpace(origin)
			if origin != "" {
				allowedOrigins[origin] = true
			}
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// checkBearerToken returns true if the request carries the admin token.
func (s *Server) checkBearerToken(r *http.Request) bool {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	return ok && subtle.ConstantTimeCompare([]byte(token), []byte(s.AdminKey)) == 1
}

// adminOnly wraps a handler to require bearer token auth on POST requests
// when an admin key is set.
func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && s.AdminKey != "" && !s.checkBearerToken(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Sim.Status())
}

func (s *Server) handleLevel(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Sim.Level)
}

type boardView struct {
	Width     int                  `json:"width"`
	Height    int                  `json:"height"`
	Terrain   []terrainView        `json:"terrain"`
	Stations  []*world.Station     `json:"stations"`
	Segments  []*board.Placed      `json:"segments"`
	Inventory map[segment.Type]int `json:"inventory"`
	TotalCost int                  `json:"total_cost"`
}

type terrainView struct {
	Pos  world.GridPos `json:"pos"`
	Type world.Terrain `json:"type"`
}

func (s *Server) handleBoard(w http.ResponseWriter, r *http.Request) {
	s.writeSnapshot(w, func(sim *engine.Simulation) any {
		m := sim.Board.Map
		view := boardView{
			Width:     m.Width,
			Height:    m.Height,
			Stations:  m.Stations,
			Segments:  sim.Board.Segments(),
			Inventory: sim.Board.InventorySnapshot(),
			TotalCost: sim.Board.TotalCost(),
		}
		for y := range m.Height {
			for x := range m.Width {
				p := world.GridPos{X: x, Y: y}
				if t := m.TerrainAt(p); t != world.TerrainEmpty {
					view.Terrain = append(view.Terrain, terrainView{Pos: p, Type: t})
				}
			}
		}
		return view
	})
}

func (s *Server) handleGraph(w http.ResponseWriter, r *http.Request) {
	s.writeSnapshot(w, func(sim *engine.Simulation) any { return newGraphView(sim.Graph) })
}

func (s *Server) handleRoutes(w http.ResponseWriter, r *http.Request) {
	s.writeSnapshot(w, func(sim *engine.Simulation) any { return sim.Routes })
}

func (s *Server) handlePassengers(w http.ResponseWriter, r *http.Request) {
	s.writeSnapshot(w, func(sim *engine.Simulation) any { return sim.Passengers })
}

func (s *Server) handleBuses(w http.ResponseWriter, r *http.Request) {
	s.writeSnapshot(w, func(sim *engine.Simulation) any { return sim.Buses })
}

// writeSnapshot encodes state under the read lock and writes it after
// releasing it, so slow clients never hold up the game.
func (s *Server) writeSnapshot(w http.ResponseWriter, pick func(*engine.Simulation) any) {
	var data []byte
	var err error
	s.Sim.Read(func(sim *engine.Simulation) {
		data, err = json.MarshalIndent(pick(sim), "", "  ")
	})
	if err != nil {
		slog.Error("encode snapshot", "error", err)
		http.Error(w, "encode failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(append(data, '\n'))
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	since := 0.0
	if v := r.URL.Query().Get("since"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			http.Error(w, "invalid since", http.StatusBadRequest)
			return
		}
		since = f
	}
	events := s.Sim.EventsSince(since)
	if events == nil {
		events = []engine.Event{}
	}
	writeJSON(w, events)
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	if s.DB == nil {
		http.Error(w, "progress storage disabled", http.StatusNotFound)
		return
	}
	unlocked, err := s.DB.Unlocked()
	if err != nil {
		slog.Error("load progress", "error", err)
		http.Error(w, "load progress failed", http.StatusInternalServerError)
		return
	}
	best, err := s.DB.BestScores()
	if err != nil {
		slog.Error("load best scores", "error", err)
		http.Error(w, "load best scores failed", http.StatusInternalServerError)
		return
	}
	type levelProgress struct {
		ID       string                 `json:"id"`
		Unlocked bool                   `json:"unlocked"`
		Best     *persistence.BestScore `json:"best,omitempty"`
	}
	out := make([]levelProgress, len(level.Order))
	for i, id := range level.Order {
		out[i] = levelProgress{ID: id, Unlocked: i < len(unlocked) && unlocked[i]}
		for j := range best {
			if best[j].LevelID == id {
				out[i].Best = &best[j]
			}
		}
	}
	writeJSON(w, out)
}

type editRequest struct {
	X        int          `json:"x"`
	Y        int          `json:"y"`
	Type     segment.Type `json:"type"`
	Rotation int          `json:"rotation"`
}

func (r editRequest) pos() world.GridPos {
	return world.GridPos{X: r.X, Y: r.Y}
}

func decodeEdit(w http.ResponseWriter, r *http.Request) (editRequest, bool) {
	var req editRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return req, false
	}
	return req, true
}

// writeEdit answers a board edit. Rule violations are conflicts.
func writeEdit(w http.ResponseWriter, p *board.Placed, err error) {
	if err != nil {
		var pe *board.PlacementError
		if errors.As(err, &pe) || errors.Is(err, engine.ErrNotPlaying) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusConflict)
			json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, p)
}

func (s *Server) handlePlace(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeEdit(w, r)
	if !ok {
		return
	}
	p, err := s.Sim.PlaceSegment(req.pos(), req.Type, req.Rotation)
	writeEdit(w, p, err)
}

func (s *Server) handleRemove(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeEdit(w, r)
	if !ok {
		return
	}
	p, err := s.Sim.RemoveSegment(req.pos())
	writeEdit(w, p, err)
}

func (s *Server) handleRotate(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeEdit(w, r)
	if !ok {
		return
	}
	p, err := s.Sim.RotateSegment(req.pos())
	writeEdit(w, p, err)
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]bool{"changed": s.Sim.Pause()})
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]bool{"changed": s.Sim.Resume()})
}

func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	if err := s.Sim.Restart(); err != nil {
		slog.Error("restart failed", "error", err)
		http.Error(w, "restart failed", http.StatusInternalServerError)
		return
	}
	st := s.Sim.Status()
	s.startSession(st)
	writeJSON(w, st)
}

func (s *Server) startSession(st engine.Status) {
	if s.DB == nil {
		return
	}
	if err := s.DB.StartSession(st.RunID, st.Level); err != nil {
		slog.Warn("start session", "error", err)
	}
}

func (s *Server) handleSpeed(w http.ResponseWriter, r *http.Request) {
	if s.Eng == nil {
		http.Error(w, "no engine", http.StatusNotFound)
		return
	}
	if r.Method == http.MethodPost {
		var req struct {
			Speed float64 `json:"speed"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		if req.Speed < 0 || req.Speed > 16 {
			http.Error(w, "speed must be 0-16", http.StatusBadRequest)
			return
		}
		s.Eng.SetSpeed(req.Speed)
		slog.Info("speed changed", "speed", req.Speed)
	}

	writeJSON(w, map[string]float64{"speed": s.Eng.Speed()})
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}
