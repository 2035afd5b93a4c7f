package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/bryanchriswhite/MatrixOverlay/internal/config"
	"github.com/bryanchriswhite/MatrixOverlay/internal/display"
	"github.com/bryanchriswhite/MatrixOverlay/internal/layout"
	"github.com/bryanchriswhite/MatrixOverlay/internal/logger"
	"github.com/bryanchriswhite/MatrixOverlay/internal/metrics"
	"github.com/bryanchriswhite/MatrixOverlay/internal/output"
	"github.com/bryanchriswhite/MatrixOverlay/internal/overlay"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

// Version is reported by /api/health
const Version = "0.1.0"

// State is the live overlay state the server exposes
type State interface {
	Monitors() []display.Monitor
	Layout(monitor int) (layout.Layout, bool)
	ItemStates(monitor int) ([]overlay.ItemState, bool)
	Preview(monitor int) (*output.MJPEGOutput, bool)
	Visible() bool
	SetVisible(visible bool)
}

// Server represents the local preview/introspection HTTP server
type Server struct {
	router    *mux.Router
	state     State
	configMgr *config.Manager
	store     *metrics.Store
	upgrader  websocket.Upgrader
	http      *http.Server
}

// NewServer creates a new API server
func NewServer(state State, configMgr *config.Manager, store *metrics.Store) *Server {
	s := &Server{
		router:    mux.NewRouter(),
		state:     state,
		configMgr: configMgr,
		store:     store,
		upgrader: websocket.Upgrader{
			// Bound to localhost; any local page may watch
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}

	s.setupRoutes()
	return s
}

// Handler returns the routed handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/health", s.handleHealth).Methods("GET")

	// Monitors and what is drawn on them
	api.HandleFunc("/monitors", s.handleMonitors).Methods("GET")
	api.HandleFunc("/monitors/{monitor:[0-9]+}/layout", s.handleLayout).Methods("GET")
	api.HandleFunc("/monitors/{monitor:[0-9]+}/items", s.handleItems).Methods("GET")
	api.HandleFunc("/monitors/{monitor:[0-9]+}/items/stream", s.handleItemStream)
	api.HandleFunc("/monitors/{monitor:[0-9]+}/frame.jpg", s.handleFrame).Methods("GET")
	api.HandleFunc("/monitors/{monitor:[0-9]+}/stream", s.handleStream).Methods("GET")
	api.HandleFunc("/monitors/{monitor:[0-9]+}/stats", s.handleStats).Methods("GET")

	api.HandleFunc("/metrics", s.handleMetrics).Methods("GET")

	api.HandleFunc("/config", s.handleGetConfig).Methods("GET")
	api.HandleFunc("/config", s.handleUpdateConfig).Methods("PUT")
	api.HandleFunc("/layout/conflicts", s.handleConflicts).Methods("GET")

	api.HandleFunc("/visibility", s.handleGetVisibility).Methods("GET")
	api.HandleFunc("/visibility", s.handleSetVisibility).Methods("POST")
}

// Start serves on localhost:port until ctx is cancelled
func (s *Server) Start(ctx context.Context, port int) error {
	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(port))
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		s.http.Shutdown(shutdownCtx)
	}()

	logger.WithComponent("api").Info().
		Str("addr", "http://"+addr).
		Msg("Preview server listening")

	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("preview server failed: %w", err)
	}
	return nil
}

// HTTP Handlers

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.WithComponent("api").Debug().Err(err).Msg("Failed to write response")
	}
}

func monitorIndex(r *http.Request) int {
	// The route pattern guarantees digits
	i, _ := strconv.Atoi(mux.Vars(r)["monitor"])
	return i
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]interface{}{
		"status":   "healthy",
		"version":  Version,
		"monitors": len(s.state.Monitors()),
		"visible":  s.state.Visible(),
	})
}

func (s *Server) handleMonitors(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.state.Monitors())
}

func (s *Server) handleLayout(w http.ResponseWriter, r *http.Request) {
	l, ok := s.state.Layout(monitorIndex(r))
	if !ok {
		http.Error(w, "unknown monitor", http.StatusNotFound)
		return
	}
	writeJSON(w, l)
}

func (s *Server) handleItems(w http.ResponseWriter, r *http.Request) {
	items, ok := s.state.ItemStates(monitorIndex(r))
	if !ok {
		http.Error(w, "unknown monitor", http.StatusNotFound)
		return
	}
	writeJSON(w, items)
}

// handleItemStream pushes the monitor's item states once per update interval
func (s *Server) handleItemStream(w http.ResponseWriter, r *http.Request) {
	monitor := monitorIndex(r)
	if _, ok := s.state.ItemStates(monitor); !ok {
		http.Error(w, "unknown monitor", http.StatusNotFound)
		return
	}

	log := logger.WithComponent("api")
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	// The client never sends anything meaningful; a read error means it left
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(s.configMgr.Get().UpdateInterval())
	defer ticker.Stop()

	for {
		items, _ := s.state.ItemStates(monitor)
		if err := conn.WriteJSON(items); err != nil {
			log.Debug().Err(err).Msg("WebSocket write failed")
			return
		}
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Server) handleFrame(w http.ResponseWriter, r *http.Request) {
	preview, ok := s.state.Preview(monitorIndex(r))
	if !ok {
		http.Error(w, "preview disabled or unknown monitor", http.StatusNotFound)
		return
	}
	frame := preview.LastFrame()
	if frame == nil {
		http.Error(w, "no frame yet", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-cache")
	w.Write(frame)
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	preview, ok := s.state.Preview(monitorIndex(r))
	if !ok {
		http.Error(w, "preview disabled or unknown monitor", http.StatusNotFound)
		return
	}
	preview.GetHTTPHandler()(w, r)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	preview, ok := s.state.Preview(monitorIndex(r))
	if !ok {
		http.Error(w, "preview disabled or unknown monitor", http.StatusNotFound)
		return
	}
	writeJSON(w, preview.Stats())
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	snapshot := s.store.Snapshot()
	formatted := make(map[string]string, len(snapshot))
	for id, v := range snapshot {
		formatted[id] = metrics.Format(v)
	}
	writeJSON(w, formatted)
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.configMgr.Get())
}

// handleUpdateConfig validates and saves a new config. The file watcher picks
// up the write and applies it like any other edit.
func (s *Server) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	cfg := config.Defaults()
	if err := json.NewDecoder(r.Body).Decode(cfg); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if len(cfg.General.GlowPasses) == 0 {
		cfg.General.GlowPasses = config.DefaultGlowPasses()
	}
	if err := cfg.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.configMgr.Update(cfg); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]string{"status": "success"})
}

func (s *Server) handleConflicts(w http.ResponseWriter, r *http.Request) {
	conflicts := layout.ValidateUniqueness(s.configMgr.Get().Screens)
	if conflicts == nil {
		conflicts = []layout.Conflict{}
	}
	writeJSON(w, conflicts)
}

func (s *Server) handleGetVisibility(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]bool{"visible": s.state.Visible()})
}

func (s *Server) handleSetVisibility(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Visible *bool `json:"visible"`
	}
	// An empty body toggles
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	visible := !s.state.Visible()
	if req.Visible != nil {
		visible = *req.Visible
	}
	s.state.SetVisible(visible)
	writeJSON(w, map[string]bool{"visible": visible})
}
