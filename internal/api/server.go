// Package api exposes the dashboard's HTTP surface: the playback control
// and query endpoints the map view polls, entity and command endpoints, and
// the live feed.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sudotools/fleetwatch/internal/config"
	"github.com/sudotools/fleetwatch/internal/db"
	"github.com/sudotools/fleetwatch/internal/fleetapi"
	"github.com/sudotools/fleetwatch/internal/live"
	"github.com/sudotools/fleetwatch/internal/playback"
	"github.com/sudotools/fleetwatch/internal/version"
)

// ANSI escape codes for request logging
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// Backend is the slice of the fleet client the server needs; the concrete
// implementation is fleetapi.Client.
type Backend interface {
	playback.PositionFetcher
	FetchEntityList(ctx context.Context) ([]fleetapi.EntityInfo, error)
	SendCommand(ctx context.Context, cmd fleetapi.Command) (*fleetapi.CommandResult, error)
}

type Server struct {
	session *playback.Session
	backend Backend
	db      *db.DB
	poller  *live.Poller
	hub     *live.Hub
	cfg     *config.Config
}

func NewServer(session *playback.Session, backend Backend, database *db.DB, poller *live.Poller, hub *live.Hub, cfg *config.Config) *Server {
	if cfg == nil {
		cfg = config.EmptyConfig()
	}
	return &Server{
		session: session,
		backend: backend,
		db:      database,
		poller:  poller,
		hub:     hub,
		cfg:     cfg,
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/entities", s.listEntities)
	mux.HandleFunc("POST /api/selection", s.setSelection)
	mux.HandleFunc("GET /api/bounds", s.showBounds)
	mux.HandleFunc("GET /api/playback", s.showPlayback)
	mux.HandleFunc("POST /api/playback/play", s.play)
	mux.HandleFunc("POST /api/playback/pause", s.pause)
	mux.HandleFunc("POST /api/playback/seek", s.seek)
	mux.HandleFunc("POST /api/playback/speed", s.setSpeed)
	mux.HandleFunc("GET /api/positions", s.resolvePositions)
	mux.HandleFunc("GET /api/tracks/{id}/summary", s.trackSummary)
	mux.HandleFunc("GET /api/tracks/{id}/chart", s.trackChart)
	mux.HandleFunc("POST /api/command", s.sendCommand)
	mux.HandleFunc("GET /api/commands", s.listCommands)
	mux.HandleFunc("GET /api/live", s.showLive)
	mux.HandleFunc("GET /ws/live", s.liveSocket)
	mux.HandleFunc("GET /api/config", s.showConfig)
	mux.HandleFunc("GET /api/version", s.showVersion)
	return mux
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("JSON encoding error: %v", err)
	}
}

func (s *Server) writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// listEntities serves the cached entity set, refreshing the cache from the
// backend first. Backend failures fall back to the cache so the dashboard
// stays usable when the game server is briefly down.
func (s *Server) listEntities(w http.ResponseWriter, r *http.Request) {
	entities, err := s.backend.FetchEntityList(r.Context())
	if err != nil {
		log.Printf("entity list refresh failed, serving cache: %v", err)
	} else {
		for _, e := range entities {
			lastSeen := int64(0)
			if ns, ok := (playback.PositionSample{Timestamp: e.LastSeenAt}).Instant(); ok {
				lastSeen = ns
			}
			rec := db.EntityRecord{
				EntityID:          e.EntityID,
				Kind:              string(e.Kind),
				DisplayName:       e.DisplayName,
				LastSeenUnixNanos: lastSeen,
			}
			if err := s.db.UpsertEntity(rec); err != nil {
				log.Printf("entity cache update failed for %s: %v", e.EntityID, err)
			}
		}
	}

	cached, err := s.db.ListEntities()
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to list entities: %v", err))
		return
	}
	s.writeJSON(w, http.StatusOK, cached)
}

type selectionRequest struct {
	EntityIDs []string `json:"entity_ids"`
	Start     string   `json:"start,omitempty"` // RFC3339; defaults to now-history_window
	End       string   `json:"end,omitempty"`   // RFC3339; defaults to now
}

// setSelection replaces the selected entity set and loads all tracks for
// the requested range concurrently. The response reports per-entity load
// state via the resulting bounds.
func (s *Server) setSelection(w http.ResponseWriter, r *http.Request) {
	var req selectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, "invalid selection payload: "+err.Error())
		return
	}

	end := time.Now().UTC()
	if req.End != "" {
		t, err := time.Parse(time.RFC3339, req.End)
		if err != nil {
			s.writeJSONError(w, http.StatusBadRequest, "invalid end time: "+err.Error())
			return
		}
		end = t
	}
	start := end.Add(-s.cfg.GetHistoryWindow())
	if req.Start != "" {
		t, err := time.Parse(time.RFC3339, req.Start)
		if err != nil {
			s.writeJSONError(w, http.StatusBadRequest, "invalid start time: "+err.Error())
			return
		}
		start = t
	}

	s.session.Registry.SetSelection(req.EntityIDs)
	s.session.Registry.LoadSelection(r.Context(), start, end)

	s.writeJSON(w, http.StatusOK, s.boundsPayload())
}

type boundsPayload struct {
	Start *string `json:"start,omitempty"`
	End   *string `json:"end,omitempty"`
}

func (s *Server) boundsPayload() boundsPayload {
	b, ok := s.session.Bounds()
	if !ok {
		return boundsPayload{}
	}
	start := time.Unix(0, b.Start).UTC().Format(time.RFC3339Nano)
	end := time.Unix(0, b.End).UTC().Format(time.RFC3339Nano)
	return boundsPayload{Start: &start, End: &end}
}

func (s *Server) showBounds(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.boundsPayload())
}

type playbackPayload struct {
	Cursor  *string   `json:"cursor,omitempty"`
	Playing bool      `json:"playing"`
	Speed   float64   `json:"speed"`
	Presets []float64 `json:"presets"`
}

func (s *Server) playbackPayload() playbackPayload {
	st := s.session.Clock.State()
	p := playbackPayload{
		Playing: st.Playing,
		Speed:   st.Speed,
		Presets: s.cfg.GetSpeedPresets(),
	}
	if st.Cursor != nil {
		cur := time.Unix(0, *st.Cursor).UTC().Format(time.RFC3339Nano)
		p.Cursor = &cur
	}
	return p
}

func (s *Server) showPlayback(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.playbackPayload())
}

func (s *Server) play(w http.ResponseWriter, r *http.Request) {
	s.session.Clock.Play()
	s.writeJSON(w, http.StatusOK, s.playbackPayload())
}

func (s *Server) pause(w http.ResponseWriter, r *http.Request) {
	s.session.Clock.Pause()
	s.writeJSON(w, http.StatusOK, s.playbackPayload())
}

func (s *Server) seek(w http.ResponseWriter, r *http.Request) {
	var req struct {
		T string `json:"t"` // RFC3339
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, "invalid seek payload: "+err.Error())
		return
	}
	t, err := time.Parse(time.RFC3339, req.T)
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, "invalid seek time: "+err.Error())
		return
	}
	s.session.Clock.Seek(t.UnixNano())
	s.writeJSON(w, http.StatusOK, s.playbackPayload())
}

func (s *Server) setSpeed(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Factor float64 `json:"factor"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, "invalid speed payload: "+err.Error())
		return
	}
	if err := s.session.Clock.SetSpeed(req.Factor); err != nil {
		if errors.Is(err, playback.ErrInvalidSpeed) {
			s.writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, s.playbackPayload())
}

// resolvePositions serves the per-entity positions at the current cursor,
// or latest known when playback has never started. The map view polls this
// once per render frame.
func (s *Server) resolvePositions(w http.ResponseWriter, r *http.Request) {
	ids := s.session.Registry.Selected()
	positions := s.session.ResolvePositions(ids)
	s.writeJSON(w, http.StatusOK, positions)
}

func (s *Server) trackSummary(w http.ResponseWriter, r *http.Request) {
	entityID := r.PathValue("id")
	track := s.session.Registry.GetTrack(entityID)
	if track == nil {
		s.writeJSONError(w, http.StatusNotFound, "no track loaded for "+entityID)
		return
	}
	sum, ok := playback.Summarize(track)
	if !ok {
		s.writeJSONError(w, http.StatusUnprocessableEntity, "track too short to summarise")
		return
	}
	s.writeJSON(w, http.StatusOK, sum)
}

// sendCommand forwards an admin command to the backend and records it in
// the audit log whatever the outcome.
func (s *Server) sendCommand(w http.ResponseWriter, r *http.Request) {
	var cmd fleetapi.Command
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, "invalid command payload: "+err.Error())
		return
	}
	switch cmd.CommandType {
	case "heal", "teleport", "message", "broadcast":
	default:
		s.writeJSONError(w, http.StatusBadRequest, "unknown command type "+cmd.CommandType)
		return
	}

	result, err := s.backend.SendCommand(r.Context(), cmd)

	payload, _ := json.Marshal(cmd)
	rec := db.CommandRecord{
		RequestID:   cmd.RequestID,
		EntityID:    cmd.PlayerID,
		CommandType: cmd.CommandType,
		Payload:     string(payload),
		Status:      "failed",
	}
	if err != nil {
		rec.Result = err.Error()
		if rec.RequestID == "" {
			// The client generates IDs on send; a transport failure before
			// that leaves none, so audit under a local one.
			rec.RequestID = "local-" + strconv.FormatInt(time.Now().UnixNano(), 10)
		}
		if dbErr := s.db.RecordCommand(rec); dbErr != nil {
			log.Printf("failed to audit command: %v", dbErr)
		}
		s.writeJSONError(w, http.StatusBadGateway, fmt.Sprintf("failed to send command: %v", err))
		return
	}

	rec.RequestID = result.RequestID
	rec.Status = result.Status
	rec.Result = result.Result
	if dbErr := s.db.RecordCommand(rec); dbErr != nil {
		log.Printf("failed to audit command: %v", dbErr)
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) listCommands(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	cmds, err := s.db.ListCommands(limit)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to list commands: %v", err))
		return
	}
	s.writeJSON(w, http.StatusOK, cmds)
}

func (s *Server) showLive(w http.ResponseWriter, r *http.Request) {
	if s.poller == nil {
		s.writeJSONError(w, http.StatusServiceUnavailable, "live feed not running")
		return
	}
	s.writeJSON(w, http.StatusOK, s.poller.Snapshot())
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// liveSocket upgrades the connection and streams live frames until the
// client goes away. The read loop exists only to observe the close.
func (s *Server) liveSocket(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		s.writeJSONError(w, http.StatusServiceUnavailable, "live feed not running")
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade failed: %v", err)
		return
	}

	id := s.hub.Subscribe(conn)
	defer s.hub.Unsubscribe(id)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) showConfig(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"backend_url":          s.cfg.GetBackendURL(),
		"max_points_per_track": s.cfg.GetMaxPointsPerTrack(),
		"tick_interval":        s.cfg.GetTickInterval().String(),
		"speed_presets":        s.cfg.GetSpeedPresets(),
		"history_window":       s.cfg.GetHistoryWindow().String(),
		"live_poll_interval":   s.cfg.GetLivePollInterval().String(),
	})
}

func (s *Server) showVersion(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"version":    version.Version,
		"git_sha":    version.GitSHA,
		"build_time": version.BuildTime,
	})
}
