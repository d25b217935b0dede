// Package web provides the dispenser's HTTP status page and the user-action
// endpoints that stand in for the touch screen.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net"
	"net/http"
	"strconv"

	"github.com/sweeney/dose-dispenser/internal/schedule"
	"github.com/sweeney/dose-dispenser/internal/status"
)

// ErrNoSession is reported when an alert action arrives with no alert on
// screen.
var ErrNoSession = errors.New("no active alert")

// Controls are the user actions reachable over HTTP.
type Controls interface {
	Pick() bool
	Skip() bool
	Dismiss() bool
	OpenCategory(cat schedule.Category)
	CloseCategory()
	RequestSync()
	Refill(slot int) error
	ConnectWiFi(ctx context.Context, ssid, password string) error
	Profile() (json.RawMessage, bool)
}

// Server serves the status page over HTTP.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
	controls   Controls
}

// New creates a Server that reads state from the given tracker. With nil
// controls only the read-only pages are served.
func New(addr string, tracker *status.Tracker, controls Controls) *Server {
	s := &Server{tracker: tracker, controls: controls}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/index.html", s.handleIndex)
	mux.HandleFunc("/index.json", s.handleJSON)
	if controls != nil {
		mux.HandleFunc("GET /profile.json", s.handleProfile)
		mux.HandleFunc("POST /alert/pick", s.alertAction(controls.Pick))
		mux.HandleFunc("POST /alert/skip", s.alertAction(controls.Skip))
		mux.HandleFunc("POST /alert/dismiss", s.alertAction(controls.Dismiss))
		mux.HandleFunc("POST /view/close", s.handleViewClose)
		mux.HandleFunc("POST /view/{category}", s.handleView)
		mux.HandleFunc("POST /sync", s.handleSync)
		mux.HandleFunc("POST /refill/{slot}", s.handleRefill)
		mux.HandleFunc("POST /wifi/connect", s.handleWiFi)
	}

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	return s
}

// Handler returns the server's request router.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" && r.URL.Path != "/index.html" {
		http.NotFound(w, r)
		return
	}
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	renderHTML(w, snap, s.controls != nil)
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	raw, ok := s.controls.Profile()
	if !ok {
		writeError(w, http.StatusNotFound, "no cached profile")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(raw)
}

func (s *Server) alertAction(action func() bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !action() {
			writeError(w, http.StatusConflict, ErrNoSession.Error())
			return
		}
		s.done(w, r)
	}
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	cat := schedule.Category(r.PathValue("category"))
	if !cat.Valid() {
		writeError(w, http.StatusNotFound, "unknown category")
		return
	}
	s.controls.OpenCategory(cat)
	s.done(w, r)
}

func (s *Server) handleViewClose(w http.ResponseWriter, r *http.Request) {
	s.controls.CloseCategory()
	s.done(w, r)
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	s.controls.RequestSync()
	s.done(w, r)
}

func (s *Server) handleRefill(w http.ResponseWriter, r *http.Request) {
	slot, err := strconv.Atoi(r.PathValue("slot"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "slot must be a number")
		return
	}
	if err := s.controls.Refill(slot); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.done(w, r)
}

type wifiRequest struct {
	SSID     string `json:"ssid"`
	Password string `json:"password"`
}

func (s *Server) handleWiFi(w http.ResponseWriter, r *http.Request) {
	var req wifiRequest
	if r.Header.Get("Content-Type") == "application/json" {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	} else {
		req.SSID = r.FormValue("ssid")
		req.Password = r.FormValue("password")
	}
	if req.SSID == "" {
		writeError(w, http.StatusBadRequest, "ssid is required")
		return
	}
	if err := s.controls.ConnectWiFi(r.Context(), req.SSID, req.Password); err != nil {
		log.Printf("web: wifi connect %q: %v", req.SSID, err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	s.done(w, r)
}

// done answers a successful action. Browser form posts go back to the page.
func (s *Server) done(w http.ResponseWriter, r *http.Request) {
	if r.FormValue("redirect") != "" {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"ok":true}`))
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
