package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image/png"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aposazhennikov/local-audio-player/browse"
	"github.com/aposazhennikov/local-audio-player/catalog"
	"github.com/aposazhennikov/local-audio-player/logger"
	"github.com/aposazhennikov/local-audio-player/mediaid"
	sentryhelper "github.com/aposazhennikov/local-audio-player/sentry_helper"
	"github.com/aposazhennikov/local-audio-player/sequence"
	"github.com/aposazhennikov/local-audio-player/session"
)

var (
	requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by route and status code",
		},
		[]string{"route", "code"},
	)

	requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency by route",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
)

func init() {
	prometheus.MustRegister(requestsTotal)
	prometheus.MustRegister(requestDuration)
}

// DefaultBrowseTimeout bounds how long a browse request waits for the
// catalog to load.
const DefaultBrowseTimeout = 30 * time.Second

// Player is the session the control endpoints drive.
type Player interface {
	Do(ctx context.Context, req session.Request) error
	Status(ctx context.Context) (session.Status, error)
}

// NoisyTrigger simulates the output becoming noisy.
type NoisyTrigger interface {
	Trigger() bool
}

// Interrupter takes the output away from the player for a while.
type Interrupter interface {
	Begin(mayDuck bool) bool
	End() bool
	Active() bool
}

// Options configures a Server.
type Options struct {
	Catalog       *catalog.Catalog
	Browse        *browse.Builder
	Player        Player
	Noisy         NoisyTrigger
	Interruption  Interrupter
	BrowseTimeout time.Duration
	Logger        *slog.Logger
	Sentry        *sentryhelper.SentryHelper
}

// Server exposes browsing and playback control over HTTP.
type Server struct {
	router        *mux.Router
	catalog       *catalog.Catalog
	browse        *browse.Builder
	player        Player
	noisy         NoisyTrigger
	interruption  Interrupter
	browseTimeout time.Duration
	logger        *slog.Logger
	sentry        *sentryhelper.SentryHelper
}

// NewServer creates a server and sets up its routes.
func NewServer(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.BrowseTimeout <= 0 {
		opts.BrowseTimeout = DefaultBrowseTimeout
	}
	s := &Server{
		router:        mux.NewRouter(),
		catalog:       opts.Catalog,
		browse:        opts.Browse,
		player:        opts.Player,
		noisy:         opts.Noisy,
		interruption:  opts.Interruption,
		browseTimeout: opts.BrowseTimeout,
		logger:        logger.WithComponent(opts.Logger, "http"),
		sentry:        opts.Sentry,
	}
	s.setupRoutes()
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	s.router.Use(s.observe)

	// Monitoring.
	s.router.HandleFunc("/healthz", s.healthzHandler).Methods(http.MethodGet)
	s.router.HandleFunc("/readyz", s.readyzHandler).Methods(http.MethodGet)
	s.router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	api := s.router.PathPrefix("/api").Subrouter()

	// Library.
	api.HandleFunc("/browse", s.browseHandler).Methods(http.MethodGet)
	api.HandleFunc("/search", s.searchHandler).Methods(http.MethodGet)
	api.HandleFunc("/rescan", s.rescanHandler).Methods(http.MethodPost)
	api.HandleFunc("/artwork/{id:[0-9]+}", s.artworkHandler).Methods(http.MethodGet)
	api.HandleFunc("/tracks/{id:[0-9]+}/sort-key", s.sortKeyHandler).Methods(http.MethodPut)

	// Playback.
	api.HandleFunc("/status", s.statusHandler).Methods(http.MethodGet)
	api.HandleFunc("/play", s.playHandler).Methods(http.MethodPost)
	api.HandleFunc("/pause", s.command(session.CmdPause)).Methods(http.MethodPost)
	api.HandleFunc("/stop", s.command(session.CmdStop)).Methods(http.MethodPost)
	api.HandleFunc("/next", s.command(session.CmdSkipNext)).Methods(http.MethodPost)
	api.HandleFunc("/prev", s.command(session.CmdSkipPrev)).Methods(http.MethodPost)
	api.HandleFunc("/seek", s.seekHandler).Methods(http.MethodPost)
	api.HandleFunc("/shuffle", s.shuffleHandler).Methods(http.MethodPost)
	api.HandleFunc("/repeat", s.repeatHandler).Methods(http.MethodPost)

	// Output events.
	api.HandleFunc("/output/noisy", s.noisyHandler).Methods(http.MethodPost)
	api.HandleFunc("/output/interrupt", s.interruptHandler).Methods(http.MethodPost)
	api.HandleFunc("/output/release", s.releaseHandler).Methods(http.MethodPost)

	s.router.NotFoundHandler = http.HandlerFunc(s.notFoundHandler)
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

// observe logs each request and records its metrics.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.URL.Path
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		elapsed := time.Since(start)
		requestsTotal.WithLabelValues(route, strconv.Itoa(rec.code)).Inc()
		requestDuration.WithLabelValues(route).Observe(elapsed.Seconds())

		level := slog.LevelDebug
		if rec.code >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		s.logger.Log(r.Context(), level, "HTTP request",
			slog.String("method", r.Method),
			slog.String("route", route),
			slog.Int("code", rec.code),
			slog.Duration("elapsed", elapsed),
			slog.String("remote", r.RemoteAddr))
	})
}

func (s *Server) healthzHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// readyzHandler reports whether the catalog has been loaded.
func (s *Server) readyzHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	state := s.catalog.State()
	if state != catalog.Initialized {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprintf(w, "Catalog %s", state)
		return
	}
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "Ready - %d tracks", len(s.catalog.AllTracks()))
}

type browseResponse struct {
	Parent   string        `json:"parent"`
	Children []browse.Node `json:"children"`
}

func (s *Server) browseHandler(w http.ResponseWriter, r *http.Request) {
	parent := r.URL.Query().Get("id")
	if parent == "" {
		parent = mediaid.Root
	}
	s.writeChildren(w, r, parent)
}

func (s *Server) searchHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeError(w, http.StatusBadRequest, "missing query parameter q")
		return
	}
	s.writeChildren(w, r, mediaid.BrowseCategory(mediaid.BySearch, q))
}

func (s *Server) writeChildren(w http.ResponseWriter, r *http.Request, parent string) {
	ctx, cancel := context.WithTimeout(r.Context(), s.browseTimeout)
	defer cancel()

	nodes, err := s.browse.Children(ctx, parent)
	if err != nil {
		s.logger.Warn("Browse request not answered", slog.String("parent", parent), slog.String("error", err.Error()))
		writeError(w, http.StatusGatewayTimeout, "catalog is still loading")
		return
	}
	writeJSON(w, http.StatusOK, browseResponse{Parent: parent, Children: nodes})
}

func (s *Server) rescanHandler(w http.ResponseWriter, r *http.Request) {
	s.catalog.Refresh(func(ok bool) {
		logger.LogScanEvent(s.logger, slog.LevelInfo, "Rescan requested over HTTP finished", s.catalog.Root(),
			slog.Bool("success", ok))
	})
	writeJSON(w, http.StatusAccepted, map[string]string{"state": s.catalog.State().String()})
}

func (s *Server) artworkHandler(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid track id")
		return
	}
	t, ok := s.catalog.Track(id)
	if !ok || t.Artwork == nil {
		writeError(w, http.StatusNotFound, "no artwork")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	if err := png.Encode(w, t.Artwork); err != nil {
		s.logger.Warn("Failed to encode artwork", slog.Int64("track_id", id), slog.String("error", err.Error()))
	}
}

type sortKeyRequest struct {
	SortKey *int64 `json:"sort_key"`
}

// sortKeyHandler sets the ordering key of a track. A null key clears it.
func (s *Server) sortKeyHandler(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid track id")
		return
	}
	var req sortKeyRequest
	if !decode(w, r, &req) {
		return
	}

	if req.SortKey == nil {
		t, ok := s.catalog.Track(id)
		if !ok {
			writeError(w, http.StatusNotFound, catalog.ErrUnknownTrack.Error())
			return
		}
		t.ClearSortKey()
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err := s.catalog.SetSortKey(id, *req.SortKey); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	st, err := s.player.Status(r.Context())
	if err != nil {
		s.fail(w, "status", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

type playRequest struct {
	MediaID string `json:"media_id"`
}

// playHandler plays media_id, or resumes the queue when none is given.
func (s *Server) playHandler(w http.ResponseWriter, r *http.Request) {
	var req playRequest
	if r.ContentLength != 0 && !decode(w, r, &req) {
		return
	}
	if req.MediaID == "" {
		s.run(w, r, session.Request{Command: session.CmdPlay})
		return
	}
	s.run(w, r, session.Request{Command: session.CmdPlayFromMediaID, MediaID: req.MediaID})
}

func (s *Server) command(cmd session.Command) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.run(w, r, session.Request{Command: cmd})
	}
}

type seekRequest struct {
	PositionMs *int `json:"position_ms"`
}

func (s *Server) seekHandler(w http.ResponseWriter, r *http.Request) {
	var req seekRequest
	if !decode(w, r, &req) {
		return
	}
	if req.PositionMs == nil {
		writeError(w, http.StatusBadRequest, "missing position_ms")
		return
	}
	s.run(w, r, session.Request{Command: session.CmdSeek, PositionMs: *req.PositionMs})
}

type shuffleRequest struct {
	Enabled bool `json:"enabled"`
}

func (s *Server) shuffleHandler(w http.ResponseWriter, r *http.Request) {
	var req shuffleRequest
	if !decode(w, r, &req) {
		return
	}
	s.run(w, r, session.Request{Command: session.CmdShuffle, Enabled: req.Enabled})
}

type repeatRequest struct {
	Mode string `json:"mode"`
}

func (s *Server) repeatHandler(w http.ResponseWriter, r *http.Request) {
	var req repeatRequest
	if !decode(w, r, &req) {
		return
	}
	mode, err := session.ParseRepeatMode(req.Mode)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.run(w, r, session.Request{Command: session.CmdRepeat, Repeat: mode})
}

// run executes req and answers with the resulting status.
func (s *Server) run(w http.ResponseWriter, r *http.Request, req session.Request) {
	if err := s.player.Do(r.Context(), req); err != nil {
		s.fail(w, req.Command.String(), err)
		return
	}
	st, err := s.player.Status(r.Context())
	if err != nil {
		s.fail(w, "status", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) noisyHandler(w http.ResponseWriter, r *http.Request) {
	if s.noisy == nil {
		writeError(w, http.StatusNotImplemented, "no noisy source configured")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"handled": s.noisy.Trigger()})
}

type interruptRequest struct {
	Duck bool `json:"duck"`
}

func (s *Server) interruptHandler(w http.ResponseWriter, r *http.Request) {
	if s.interruption == nil {
		writeError(w, http.StatusNotImplemented, "no interruption client configured")
		return
	}
	var req interruptRequest
	if r.ContentLength != 0 && !decode(w, r, &req) {
		return
	}
	s.interruption.Begin(req.Duck)
	writeJSON(w, http.StatusOK, map[string]bool{"active": s.interruption.Active()})
}

func (s *Server) releaseHandler(w http.ResponseWriter, r *http.Request) {
	if s.interruption == nil {
		writeError(w, http.StatusNotImplemented, "no interruption client configured")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"released": s.interruption.End()})
}

func (s *Server) notFoundHandler(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, "not found: "+r.URL.Path)
}

// fail maps a session error to a response. Unexpected errors go to Sentry.
func (s *Server) fail(w http.ResponseWriter, operation string, err error) {
	code := statusCode(err)
	if code == http.StatusInternalServerError {
		s.logger.Error("Command failed", slog.String("operation", operation), slog.String("error", err.Error()))
		s.sentry.CaptureError(err, "http", operation)
	}
	writeError(w, code, err.Error())
}

func statusCode(err error) int {
	switch {
	case errors.Is(err, session.ErrInvalidArgument), errors.Is(err, session.ErrNotPlayable):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrUnknownMedia):
		return http.StatusNotFound
	case errors.Is(err, session.ErrNothingQueued),
		errors.Is(err, sequence.ErrNoNextPosition),
		errors.Is(err, sequence.ErrNoPreviousPosition):
		return http.StatusConflict
	case errors.Is(err, session.ErrCatalogUnavailable), errors.Is(err, session.ErrClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
