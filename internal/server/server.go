// Package server handles the HTTP API for the movie store.
package server

import (
	"net/http"
	"time"

	"github.com/ASHISH26940/moviedb/internal/movie"
	"github.com/hashicorp/raft"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// MovieStore is the interface our server needs to interact with the storage layer.
// By depending on an interface, we can easily mock the store in our tests.
type MovieStore interface {
	Get(key uint64) (movie.Movie, error)
	Insert(key uint64, m movie.Movie) error
}

// RaftNode is the subset of *raft.Raft the server uses to replicate writes.
type RaftNode interface {
	State() raft.RaftState
	Leader() raft.ServerAddress
	Apply(cmd []byte, timeout time.Duration) raft.ApplyFuture
	AddVoter(id raft.ServerID, address raft.ServerAddress, prevIndex uint64, timeout time.Duration) raft.IndexFuture
}

// Server is the HTTP server for the movie store.
// When a Raft node is attached, creates are committed through the Raft log
// instead of going straight to the store.
type Server struct {
	store        MovieStore
	raft         RaftNode
	applyTimeout time.Duration
	logger       *zap.Logger
	limiter      *rate.Limiter
	gatherer     prometheus.Gatherer
	router       *http.ServeMux
	handler      http.Handler
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger used for request and handler logs.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithRaft routes creates through node, waiting up to applyTimeout for commit.
func WithRaft(node RaftNode, applyTimeout time.Duration) Option {
	return func(s *Server) {
		s.raft = node
		s.applyTimeout = applyTimeout
	}
}

// WithRateLimit rejects requests beyond the limiter's budget with 429.
func WithRateLimit(limiter *rate.Limiter) Option {
	return func(s *Server) { s.limiter = limiter }
}

// WithMetrics exposes g on GET /metrics.
func WithMetrics(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// New creates a new Server instance around the given store.
func New(store MovieStore, opts ...Option) *Server {
	s := &Server{
		store:        store,
		applyTimeout: 5 * time.Second,
		logger:       zap.NewNop(),
		router:       http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerRoutes()

	var h http.Handler = s.router
	h = RateLimit(s.limiter, time.Second)(h)
	h = RequestLogger(s.logger)(h)
	s.handler = h
	return s
}

// ServeHTTP makes our Server a standard http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// registerRoutes sets up the HTTP routing for the server.
func (s *Server) registerRoutes() {
	s.router.HandleFunc("GET /movie/{id}", s.handleGet)
	s.router.HandleFunc("POST /movie/{$}", s.handleCreate)
	s.router.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte("ok\n"))
	})
	if s.raft != nil {
		s.router.HandleFunc("POST /join", s.handleJoin)
	}
	if s.gatherer != nil {
		s.router.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
}
