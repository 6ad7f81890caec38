package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/Harshitk-cp/sketchhive/internal/config"
	"github.com/Harshitk-cp/sketchhive/internal/eventlog"
	"github.com/Harshitk-cp/sketchhive/internal/handler"
	"github.com/Harshitk-cp/sketchhive/internal/health"
	"github.com/Harshitk-cp/sketchhive/internal/hub"
	"github.com/Harshitk-cp/sketchhive/internal/identity"
	"github.com/Harshitk-cp/sketchhive/internal/metrics"
	"github.com/Harshitk-cp/sketchhive/internal/ratelimit"
	"github.com/Harshitk-cp/sketchhive/internal/registry"
	"github.com/Harshitk-cp/sketchhive/internal/transport"
	"github.com/Harshitk-cp/sketchhive/pkg/middleware"
	"github.com/gorilla/mux"
	"github.com/mama165/sdk-go/logs"
	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the YAML configuration file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	// Configuration & logger
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(cfg.Log.Level)
	log.Info("Starting sketchhive",
		"version", cfg.Service.Version,
		"environment", cfg.Service.Environment,
		"http_address", cfg.HTTP.Address,
	)

	policy, err := identity.ParseNamePolicy(cfg.Canvas.NamePolicy)
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Canvas state
	collector := metrics.NewPrometheusCollector()
	events := eventlog.New(cfg.Canvas.MaxEvents)
	h := hub.New(
		log,
		collector,
		identity.NewAssigner(policy, cfg.Canvas.ColorAttempts),
		registry.New(),
		events,
		hub.Options{PurgeOnDisconnect: cfg.Canvas.PurgeOnDisconnect},
	)

	// The hub outlives the listeners so sessions can leave cleanly
	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	hubDone := make(chan error, 1)
	go func() { hubDone <- h.Run(hubCtx) }()

	limiter := ratelimit.New(cfg.RateLimit)
	defer limiter.Stop()

	// Health
	checker := health.NewChecker(cfg.Health.CheckInterval)
	checker.RegisterComponent("hub", func(ctx context.Context) (health.Status, error) {
		if !h.Running() {
			return health.StatusDown, hub.ErrStopped
		}
		if _, err := h.Stats(ctx); err != nil {
			return health.StatusDown, err
		}
		return health.StatusUp, nil
	})
	checker.RegisterComponent("event_log", func(ctx context.Context) (health.Status, error) {
		stats, err := h.Stats(ctx)
		if err != nil {
			return health.StatusDown, err
		}
		if stats.Events >= stats.MaxEvents {
			return health.StatusDegraded, nil
		}
		return health.StatusUp, nil
	})

	// HTTP
	wsHandler := handler.NewWebSocketHandler(hubCtx, log, cfg, h, limiter, collector)
	router := mux.NewRouter()
	router.Use(middleware.Recovery(log))
	router.Use(middleware.NewHTTPMetrics(collector.Registerer()).Handler)
	handler.NewHTTPHandler(h, checker, collector, wsHandler).SetupRoutes(router)

	httpServer := transport.NewHTTPServer(log, cfg.HTTP, router)
	httpServer.Use(middleware.Logging(log))

	// Operational gRPC health
	var grpcServer *transport.GRPCServer
	var grpcListener net.Listener
	if cfg.GRPC.Enabled {
		grpcListener, err = net.Listen("tcp", cfg.GRPC.Address)
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", cfg.GRPC.Address, err)
		}
		grpcServer = transport.NewGRPCServer(log, cfg.GRPC)
		grpcServer.Use(middleware.UnaryLogging(log))
		checker.Subscribe(grpcServer.SetStatus)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := httpServer.Start(); err != nil {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	if grpcServer != nil {
		g.Go(func() error {
			if err := grpcServer.Serve(grpcListener); err != nil {
				return fmt.Errorf("gRPC server error: %w", err)
			}
			return nil
		})
	}

	checker.Start(gctx)
	defer checker.Stop()

	// Wait for a signal or a server failure
	<-gctx.Done()
	log.Info("Shutting down servers...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", "error", err)
	}
	if grpcServer != nil {
		grpcServer.GracefulStop()
	}

	// Closing the hub disconnects every remaining peer
	stopHub()
	if err := <-hubDone; err != nil {
		log.Error("Hub stopped with error", "error", err)
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	log.Info("Servers shutdown complete")
	return nil
}
