// Package main is the entry point for the moviedb server application.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ASHISH26940/moviedb/internal/config"
	"github.com/ASHISH26940/moviedb/internal/replication"
	"github.com/ASHISH26940/moviedb/internal/server"
	"github.com/ASHISH26940/moviedb/internal/store"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

func main() {
	// --- Configuration and Flags ---
	configFile := flag.String("config", "", "Path to config file (.toml, .yaml or .yml)")
	bootstrap := flag.Bool("bootstrap", false, "Bootstrap the raft cluster (run on the first node only)")
	flag.Parse()

	cfg := config.New()
	var err error
	if *configFile != "" {
		err = cfg.Load(*configFile)
	} else {
		err = cfg.ApplyEnv()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *bootstrap {
		cfg.Raft.Bootstrap = true
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	// --- Store and metrics ---
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	st, err := store.NewInstrumentedStore(store.New(), reg)
	if err != nil {
		logger.Fatal("failed to instrument store", zap.Error(err))
	}

	opts := []server.Option{
		server.WithLogger(logger),
		server.WithMetrics(reg),
	}
	if cfg.RateLimit.RPS > 0 {
		opts = append(opts, server.WithRateLimit(rate.NewLimiter(rate.Limit(cfg.RateLimit.RPS), cfg.RateLimit.Burst)))
	}

	// --- Optional Raft replication ---
	raftAddr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Raft.Port)
	if cfg.Raft.Enabled {
		node, err := replication.NewNode(replication.NodeConfig{
			NodeID:    cfg.NodeID,
			BindAddr:  raftAddr,
			Bootstrap: cfg.Raft.Bootstrap,
			LogOutput: zap.NewStdLog(logger.Named("raft")).Writer(),
		}, replication.NewFSM(st, logger.Named("fsm")))
		if err != nil {
			logger.Fatal("failed to start raft", zap.Error(err))
		}
		defer node.Shutdown()
		opts = append(opts, server.WithRaft(node, cfg.Raft.ApplyTimeout))
		logger.Info("raft started", zap.String("node_id", cfg.NodeID), zap.String("addr", raftAddr), zap.Bool("bootstrap", cfg.Raft.Bootstrap))
	}

	// --- Start the HTTP Server ---
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	httpAddr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	srv := &http.Server{
		Addr:              httpAddr,
		Handler:           server.New(st, opts...),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http shutdown", zap.Error(err))
		}
	}()

	if cfg.Raft.Enabled && cfg.Raft.JoinAddr != "" {
		go joinCluster(ctx, logger, cfg.Raft.JoinAddr, replication.JoinRequest{NodeID: cfg.NodeID, Addr: raftAddr})
	}

	logger.Info("moviedb listening", zap.String("addr", httpAddr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("http server failed", zap.Error(err))
	}
	logger.Info("moviedb stopped")
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, err
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = lvl
	return zcfg.Build()
}

// joinCluster retries until the leader accepts this node or ctx is cancelled.
func joinCluster(ctx context.Context, logger *zap.Logger, leaderAddr string, req replication.JoinRequest) {
	client := &http.Client{Timeout: 5 * time.Second}
	for attempt := 1; ; attempt++ {
		err := replication.Join(ctx, client, leaderAddr, req)
		if err == nil {
			logger.Info("joined cluster", zap.String("via", leaderAddr))
			return
		}
		logger.Warn("join attempt failed", zap.Int("attempt", attempt), zap.Error(err))

		select {
		case <-ctx.Done():
			return
		case <-time.After(2 * time.Second):
		}
	}
}
