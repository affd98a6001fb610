// Package server exposes the favicon pipeline over HTTP: the fallback
// processing endpoint used by dispatch.Remote, batch processing, usage
// tracking and a websocket progress stream.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/toolchest/favikit/internal/cache"
	"github.com/toolchest/favikit/internal/favicon"
	"github.com/toolchest/favikit/internal/pipeline"
	"github.com/toolchest/favikit/internal/usage"
)

// Config holds listener and request limits.
type Config struct {
	Addr          string
	MaxUploadSize int64 // per request body, bytes
	MaxBatchFiles int
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	IdleTimeout   time.Duration
	Defaults      favicon.Options
}

// DefaultConfig returns the limits used by `favikit serve`.
func DefaultConfig() Config {
	return Config{
		Addr:          ":8080",
		MaxUploadSize: favicon.DefaultMaxFileSize + 1<<20,
		MaxBatchFiles: 20,
		ReadTimeout:   60 * time.Second,
		WriteTimeout:  120 * time.Second,
		IdleTimeout:   120 * time.Second,
		Defaults:      favicon.DefaultOptions(),
	}
}

// Deps are the collaborators a Server is built from. Nil fields get
// fresh defaults.
type Deps struct {
	Runner  pipeline.Runner
	Results *cache.TTL[*favicon.Result]
	Usage   *usage.Store
}

// APIResponse is the JSON envelope of every endpoint.
type APIResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// Server is the favikit HTTP server.
type Server struct {
	cfg        Config
	log        *logrus.Logger
	router     *mux.Router
	httpServer *http.Server
	runner     pipeline.Runner
	batch      *pipeline.Batch
	results    *cache.TTL[*favicon.Result]
	usage      *usage.Store
	hub        *Hub
}

// NewServer wires the routes.
func NewServer(cfg Config, log *logrus.Logger, deps Deps) *Server {
	if deps.Runner == nil {
		deps.Runner = pipeline.NewGenerator(
			pipeline.WithLogger(log),
			pipeline.WithProcessedBy(favicon.ProcessedByServer),
		)
	}
	if deps.Results == nil {
		deps.Results = cache.New[*favicon.Result](10*time.Minute, 64)
	}
	if deps.Usage == nil {
		deps.Usage = usage.NewStore()
	}
	s := &Server{
		cfg:     cfg,
		log:     log,
		router:  mux.NewRouter(),
		runner:  deps.Runner,
		batch:   pipeline.NewBatch(deps.Runner, log),
		results: deps.Results,
		usage:   deps.Usage,
		hub:     NewHub(log),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/favicon").Subrouter()
	api.HandleFunc("/generate", s.handleGenerate).Methods("POST")
	api.HandleFunc("/batch", s.handleBatch).Methods("POST")
	api.HandleFunc("/usage", s.handleUsage).Methods("POST")
	api.HandleFunc("/usage/summary", s.handleUsageSummary).Methods("GET")
	api.HandleFunc("/sizes", s.handleSizes).Methods("GET")

	s.router.HandleFunc("/ws", s.hub.ServeHTTP)
	s.router.HandleFunc("/healthz", s.handleHealth).Methods("GET")
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on cfg.Addr and blocks until the server stops.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
	}

	s.log.Infof("Starting favikit server on %s", s.cfg.Addr)
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop shuts the listener down and disconnects websocket clients.
func (s *Server) Stop(ctx context.Context) error {
	s.hub.Close()
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, resp APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.log.WithError(err).Warn("write response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, message string, status int) {
	s.writeJSON(w, status, APIResponse{Success: false, Error: message})
}
