package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/gridtransit/internal/engine"
	"github.com/talgya/gridtransit/internal/entropy"
	"github.com/talgya/gridtransit/internal/level"
	"github.com/talgya/gridtransit/internal/persistence"
	"github.com/talgya/gridtransit/internal/routing"
	"github.com/talgya/gridtransit/internal/segment"
	"github.com/talgya/gridtransit/internal/world"
)

func newTestServer(t *testing.T, adminKey string) *Server {
	t.Helper()
	l, err := level.Builtin("tutorial_01")
	require.NoError(t, err)
	sim, err := engine.New(l, engine.DefaultTuning(), entropy.Fixed(0))
	require.NoError(t, err)
	return NewServer(sim, engine.NewEngine(1.0/30), nil, ":0", adminKey)
}

func do(t *testing.T, h http.Handler, method, path, body string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestStatus(t *testing.T) {
	h := newTestServer(t, "").Handler()
	rec := do(t, h, http.MethodGet, "/api/v1/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	st := decode[map[string]any](t, rec)
	assert.Equal(t, "playing", st["phase"])
	assert.Equal(t, "tutorial_01", st["level"])

	typed := decode[engine.Status](t, rec)
	assert.Equal(t, engine.Playing, typed.Phase)
	require.Len(t, typed.Objectives, 2)
	assert.Equal(t, level.ConnectAllPassengers, typed.Objectives[0].Kind)
	assert.Equal(t, 8, typed.Inventory[segment.Straight])
}

func TestPlaceAndReject(t *testing.T) {
	s := newTestServer(t, "")
	h := s.Handler()

	rec := do(t, h, http.MethodPost, "/api/v1/place", `{"x":2,"y":4,"type":"straight","rotation":0}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	placed := decode[map[string]any](t, rec)
	assert.Equal(t, "straight", placed["type"])

	rec = do(t, h, http.MethodPost, "/api/v1/place", `{"x":1,"y":4,"type":"curve"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, decode[map[string]string](t, rec)["error"], "occupied")

	rec = do(t, h, http.MethodPost, "/api/v1/place", `{"x":3,"y":4,"type":"wormhole"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/v1/rotate", `{"x":2,"y":4}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 90.0, decode[map[string]any](t, rec)["rotation"])

	rec = do(t, h, http.MethodGet, "/api/v1/board", "")
	require.Equal(t, http.StatusOK, rec.Code)
	board := decode[boardView](t, rec)
	assert.Len(t, board.Segments, 1)
	assert.Len(t, board.Stations, 2)
	assert.Equal(t, world.Terminal, board.Stations[0].Kind)
	assert.Equal(t, 1, board.TotalCost)

	rec = do(t, h, http.MethodPost, "/api/v1/remove", `{"x":2,"y":4}`)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = do(t, h, http.MethodPost, "/api/v1/remove", `{"x":2,"y":4}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestGraphAndRoutes(t *testing.T) {
	s := newTestServer(t, "")
	h := s.Handler()
	for _, x := range []string{"2", "3", "4", "5", "6", "7"} {
		rec := do(t, h, http.MethodPost, "/api/v1/place", `{"x":`+x+`,"y":4,"type":"straight"}`)
		require.Equal(t, http.StatusOK, rec.Code)
	}
	require.NoError(t, s.Sim.Tick(1.0/30))

	g := decode[graphView](t, do(t, h, http.MethodGet, "/api/v1/graph", ""))
	assert.Len(t, g.Nodes, 8)
	assert.Len(t, g.Edges, 14)
	assert.Equal(t, 1, g.Nodes[0].Pos.X)
	assert.Equal(t, routing.NodeStation, g.Nodes[0].Kind)
	assert.Equal(t, routing.EdgeWalk, g.Edges[0].Kind)

	routes := decode[[]map[string]any](t, do(t, h, http.MethodGet, "/api/v1/routes", ""))
	require.Len(t, routes, 1)
	assert.Equal(t, []any{"A", "B"}, routes[0]["stations"])

	buses := decode[[]map[string]any](t, do(t, h, http.MethodGet, "/api/v1/buses", ""))
	require.Len(t, buses, 1)
	assert.Equal(t, "at_station", buses[0]["state"])
}

func TestEventsSince(t *testing.T) {
	s := newTestServer(t, "")
	h := s.Handler()
	rec := do(t, h, http.MethodGet, "/api/v1/events", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]engine.Event](t, rec))

	do(t, h, http.MethodPost, "/api/v1/place", `{"x":2,"y":4,"type":"straight"}`)
	events := decode[[]engine.Event](t, do(t, h, http.MethodGet, "/api/v1/events?since=0", ""))
	require.Len(t, events, 2)
	assert.Equal(t, engine.EventSegmentPlaced, events[0].Kind)
	assert.Equal(t, engine.EventInventoryUpdated, events[1].Kind)

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/api/v1/events?since=soon", "").Code)
}

func TestAdminKey(t *testing.T) {
	h := newTestServer(t, "secret").Handler()

	assert.Equal(t, http.StatusUnauthorized, do(t, h, http.MethodPost, "/api/v1/pause", "").Code)
	assert.Equal(t, http.StatusUnauthorized,
		do(t, h, http.MethodPost, "/api/v1/pause", "", "Authorization", "Bearer wrong").Code)
	assert.Equal(t, http.StatusUnauthorized,
		do(t, h, http.MethodPost, "/api/v1/pause", "", "Authorization", "Bearer secretx").Code)
	assert.Equal(t, http.StatusUnauthorized,
		do(t, h, http.MethodPost, "/api/v1/pause", "", "Authorization", "secret").Code)

	rec := do(t, h, http.MethodPost, "/api/v1/pause", "", "Authorization", "Bearer secret")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[map[string]bool](t, rec)["changed"])

	// Reads stay public.
	st := decode[map[string]any](t, do(t, h, http.MethodGet, "/api/v1/status", ""))
	assert.Equal(t, "paused", st["phase"])

	rec = do(t, h, http.MethodPost, "/api/v1/resume", "", "Authorization", "Bearer secret")
	assert.True(t, decode[map[string]bool](t, rec)["changed"])
}

func TestRestart(t *testing.T) {
	s := newTestServer(t, "")
	h := s.Handler()
	before := s.Sim.Status().RunID
	do(t, h, http.MethodPost, "/api/v1/place", `{"x":2,"y":4,"type":"straight"}`)

	rec := do(t, h, http.MethodPost, "/api/v1/restart", "")
	require.Equal(t, http.StatusOK, rec.Code)
	st := s.Sim.Status()
	assert.NotEqual(t, before, st.RunID)
	assert.Zero(t, st.Segments)
}

func TestSpeed(t *testing.T) {
	s := newTestServer(t, "")
	h := s.Handler()

	rec := do(t, h, http.MethodPost, "/api/v1/speed", `{"speed":4}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 4.0, s.Eng.Speed())

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/api/v1/speed", `{"speed":100}`).Code)
	assert.Equal(t, 4.0, decode[map[string]float64](t, do(t, h, http.MethodGet, "/api/v1/speed", ""))["speed"])
}

func TestProgress(t *testing.T) {
	s := newTestServer(t, "")
	assert.Equal(t, http.StatusNotFound, do(t, s.Handler(), http.MethodGet, "/api/v1/progress", "").Code)

	db, err := persistence.Open(filepath.Join(t.TempDir(), "progress.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	s.DB = db

	rec := do(t, s.Handler(), http.MethodGet, "/api/v1/progress", "")
	require.Equal(t, http.StatusOK, rec.Code)
	progress := decode[[]map[string]any](t, rec)
	require.Len(t, progress, len(level.Order))
	assert.Equal(t, true, progress[0]["unlocked"])
	assert.Equal(t, false, progress[1]["unlocked"])
}

func TestCORS(t *testing.T) {
	h := newTestServer(t, "").Handler()
	rec := do(t, h, http.MethodOptions, "/api/v1/status", "", "Origin", "http://localhost:5173")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = do(t, h, http.MethodGet, "/api/v1/status", "", "Origin", "http://evil.example")
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestStream(t *testing.T) {
	s := newTestServer(t, "")
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()
	defer s.hub.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return s.hub.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	_, err = s.Sim.PlaceSegment(world.GridPos{X: 2, Y: 4}, segment.Straight, 0)
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var e engine.Event
	require.NoError(t, conn.ReadJSON(&e))
	assert.Equal(t, engine.EventSegmentPlaced, e.Kind)
	assert.Equal(t, "board", e.Category)
}

func readResult(t *testing.T, conn *websocket.Conn) commandResult {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		var res commandResult
		require.NoError(t, json.Unmarshal(data, &res))
		if res.Type == "command_result" {
			return res
		}
	}
}

func TestStreamCommands(t *testing.T) {
	s := newTestServer(t, "")
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()
	defer s.hub.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(map[string]any{
		"type":    "place_segment",
		"payload": map[string]any{"x": 2, "y": 4, "type": "straight", "rotation": 0},
	}))
	res := readResult(t, conn)
	assert.True(t, res.OK, res.Error)
	assert.Equal(t, "place_segment", res.Command)
	assert.Equal(t, 1, s.Sim.Status().Segments)

	require.NoError(t, conn.WriteJSON(map[string]any{
		"type":    "place_segment",
		"payload": map[string]any{"x": 2, "y": 4, "type": "straight", "rotation": 0},
	}))
	res = readResult(t, conn)
	assert.False(t, res.OK)
	assert.NotEmpty(t, res.Error)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "pause"}))
	res = readResult(t, conn)
	assert.True(t, res.OK)
	assert.Equal(t, engine.Paused, s.Sim.Status().Phase)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "teleport"}))
	res = readResult(t, conn)
	assert.Equal(t, "unknown command", res.Error)
}

func TestStreamCommandsNeedAdminKey(t *testing.T) {
	s := newTestServer(t, "secret")
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()
	defer s.hub.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "pause"}))
	res := readResult(t, conn)
	assert.False(t, res.OK)
	assert.Equal(t, "unauthorized", res.Error)
	assert.Equal(t, engine.Playing, s.Sim.Status().Phase)

	authed, _, err := websocket.DefaultDialer.Dial(url, http.Header{"Authorization": []string{"Bearer secret"}})
	require.NoError(t, err)
	defer authed.Close()
	require.NoError(t, authed.WriteJSON(map[string]any{"type": "pause"}))
	res = readResult(t, authed)
	assert.True(t, res.OK)
}

func TestStreamCatchUpThenLive(t *testing.T) {
	s := newTestServer(t, "")
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()
	defer s.hub.Close()

	_, err := s.Sim.PlaceSegment(world.GridPos{X: 2, Y: 4}, segment.Straight, 0)
	require.NoError(t, err)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return s.hub.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	_, err = s.Sim.PlaceSegment(world.GridPos{X: 3, Y: 4}, segment.Straight, 0)
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var got []engine.EventKind
	for range 4 {
		var e engine.Event
		require.NoError(t, conn.ReadJSON(&e))
		got = append(got, e.Kind)
	}
	assert.Equal(t, []engine.EventKind{
		engine.EventSegmentPlaced, engine.EventInventoryUpdated,
		engine.EventSegmentPlaced, engine.EventInventoryUpdated,
	}, got)
}
