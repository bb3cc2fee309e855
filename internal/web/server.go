package web

import (
	"context"
	"crypto/subtle"
	"embed"
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"schedcal/internal/busy"
	"schedcal/internal/config"
	appLog "schedcal/internal/log"
	"schedcal/internal/recommend"
	"schedcal/internal/session"
	"schedcal/internal/syncer"
)

// Server provides the availability/recommendation APIs, the WebSocket
// calendar sessions, and the embedded week-grid UI.
type Server struct {
	cfg         *config.Config
	state       *busy.State
	recommender *recommend.Service
	debug       bool
	mux         *http.ServeMux

	loc        *time.Location
	syncClient *syncer.Client
	upgrader   websocket.Upgrader
}

// embeddedStatic contains the week-grid UI served at /.
//
//go:embed all:static
var embeddedStatic embed.FS

// NewServer constructs a new Server.
func NewServer(cfg *config.Config, state *busy.State, recommender *recommend.Service, debug bool) *Server {
	base := cfg.BackendBaseURL
	if base == "" {
		base = "http://" + cfg.Listen
	}

	s := &Server{
		cfg:         cfg,
		state:       state,
		recommender: recommender,
		debug:       debug,
		mux:         http.NewServeMux(),
		loc:         busy.Location(cfg.Timezone),
		syncClient:  syncer.NewClient(base),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Sessions carry no credentials; the UI and API share an origin.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// Treat empty username or password as disabled.
	if s.cfg.BasicAuth.Username == "" || s.cfg.BasicAuth.Password == "" {
		return false
	}
	return true
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// /health is always exposed without auth.
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="schedcal", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// StartServer starts an HTTP server bound to cfg.Listen.
func StartServer(_ context.Context, cfg *config.Config, state *busy.State, recommender *recommend.Service, debug bool) error {
	s := NewServer(cfg, state, recommender, debug)
	appLog.Info("starting HTTP server", "listen", "http://"+cfg.Listen, "debug", debug)
	return http.ListenAndServe(cfg.Listen, s.Handler())
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/api/availability/busy", s.handleBusy)
	s.mux.HandleFunc("/api/availability/busy.ics", s.handleBusyICS)
	s.mux.HandleFunc("/api/recommendations", s.handleRecommendations)
	s.mux.HandleFunc("/ws", s.handleWS)
	s.mux.HandleFunc("/preview.png", s.handlePreview)

	// Embedded static UI. All non-/api/* paths fall back to this handler.
	s.mux.Handle("/", s.staticFileServer())
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleBusy implements the availability busy endpoints:
//
//	POST:   normalize slot events into ISO intervals and store the snapshot
//	GET:    return the latest snapshot (404 when none submitted)
//	DELETE: clear the stored snapshot
func (s *Server) handleBusy(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var payload busy.Payload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			writeError(w, http.StatusBadRequest, "invalid busy payload")
			return
		}
		appLog.Info("received busy payload", "events", len(payload.Events))
		normalized := busy.Normalize(payload)
		s.state.Set(normalized)
		writeJSON(w, http.StatusOK, normalized)

	case http.MethodGet:
		resp, ok := s.state.Get()
		if !ok {
			writeError(w, http.StatusNotFound, "No busy availability has been submitted yet.")
			return
		}
		appLog.Info("serving latest busy response", "intervals", len(resp.Intervals))
		writeJSON(w, http.StatusOK, resp)

	case http.MethodDelete:
		s.state.Clear()
		w.WriteHeader(http.StatusNoContent)

	default:
		w.Header().Set("Allow", "GET, POST, DELETE")
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleRecommendations asks the recommendation service for two meeting
// options based on the stored busy snapshot.
func (s *Server) handleRecommendations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req recommend.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid recommendation request")
		return
	}
	if strings.TrimSpace(req.Scenario) == "" {
		writeError(w, http.StatusBadRequest, "scenario must not be empty")
		return
	}

	snapshot, ok := s.state.Get()
	if !ok {
		writeError(w, http.StatusConflict,
			"No busy availability submitted. Please mark busy slots in the calendar first.")
		return
	}

	resp, err := s.recommender.Generate(r.Context(), req, snapshot)
	if err != nil {
		if errors.Is(err, recommend.ErrInvalid) {
			appLog.Error("unable to generate recommendations", err)
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		appLog.Error("gemini recommendation request failed", err)
		writeError(w, http.StatusBadGateway, "Gemini service failed to return recommendations.")
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleWS upgrades the connection and runs a calendar session on it.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		appLog.Error("websocket upgrade failed", err)
		return
	}

	debounce := time.Duration(s.cfg.DebounceMs) * time.Millisecond
	sess := session.New(conn, s.syncClient, s.cfg.Timezone, s.loc, debounce)

	appLog.Info("calendar session started", "remote", r.RemoteAddr)
	sess.Run()
	appLog.Info("calendar session closed", "remote", r.RemoteAddr)
}

// handlePreview serves the last captured PNG preview from disk.
// Path rules mirror the capture pipeline in cmd/schedcal:
//   - default: cfg.Preview.Path
//   - debug:   ./cache/preview.png
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	previewPath := s.cfg.Preview.Path
	if s.debug {
		previewPath = "./cache/preview.png"
	}

	// http.ServeFile returns appropriate status codes for missing files
	// (404) and other errors.
	http.ServeFile(w, r, previewPath)
}

// staticFileServer returns an http.Handler serving the embedded UI from
// internal/web/static.
func (s *Server) staticFileServer() http.Handler {
	sub, err := fs.Sub(embeddedStatic, "static")
	if err != nil {
		appLog.Error("failed to initialize embedded static filesystem", err)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "static UI not available", http.StatusServiceUnavailable)
		})
	}

	fileServer := http.FileServer(http.FS(sub))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path

		// Never serve HTML for /api/* paths; missing API handlers should
		// 404 as JSON-ish endpoints, not fall back to the UI.
		if path == "/api" || strings.HasPrefix(path, "/api/") {
			http.NotFound(w, r)
			return
		}

		fileServer.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
