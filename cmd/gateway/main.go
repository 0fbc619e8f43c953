package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"

	"github.com/facegate/realtime-gateway/internal/api"
	"github.com/facegate/realtime-gateway/internal/auth"
	"github.com/facegate/realtime-gateway/internal/backplane"
	"github.com/facegate/realtime-gateway/internal/config"
	"github.com/facegate/realtime-gateway/internal/events"
	"github.com/facegate/realtime-gateway/internal/hub"
)

func main() {
	addr := flag.String("addr", "", "HTTP listen address (overrides ADDR)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if *addr != "" {
		cfg.Addr = *addr
	}

	logger := config.NewLogger(cfg.Environment)
	slog.SetDefault(logger)

	instanceID := uuid.NewString()
	verifier := auth.NewVerifier([]byte(cfg.JWTSecret))
	registry := hub.NewRegistry(logger)
	subs := hub.NewSubscriptions(registry)

	// Broadcaster first without a relay; the backplane needs the local
	// delivery path at construction, and the broadcaster needs the
	// backplane for publishing. The narrow deliver func breaks the cycle.
	broadcaster := hub.NewBroadcaster(registry, subs, nil, logger)

	bp, err := backplane.Connect(cfg.NatsURL, cfg.BackplaneSubject, instanceID,
		func(env events.Envelope) {
			broadcaster.DeliverLocal(env, hub.All())
		}, logger)
	if err != nil {
		logger.Warn("backplane unavailable, running single-instance", "error", err)
	} else {
		if err := bp.Start(); err != nil {
			logger.Error("failed to start backplane subscriber", "error", err)
		} else {
			broadcaster.SetRelay(bp)
		}
	}

	bus := events.NewBus()
	bus.Subscribe(func(env events.Envelope) {
		broadcaster.Dispatch(env, hub.All())
	})
	emitter := events.NewEmitter(bus, logger)

	heartbeat := hub.NewHeartbeat(registry, cfg.HeartbeatInterval, logger)
	heartbeat.Start(context.Background())

	handler := api.NewHandler(api.HandlerConfig{
		Verifier:       verifier,
		Registry:       registry,
		Subscriptions:  subs,
		Heartbeat:      heartbeat,
		Emitter:        emitter,
		AuthDeadline:   cfg.AuthDeadline,
		AllowedOrigins: cfg.AllowedOrigins,
		Logger:         logger,
	})

	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	server := &http.Server{
		Addr:    cfg.Addr,
		Handler: api.CORSMiddleware(cfg.AllowedOrigins, api.LogRequests(mux)),
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		logger.Info("shutting down")
		heartbeat.Stop()
		if bp != nil {
			bp.Close()
		}
		server.Close()
	}()

	logger.Info("gateway listening", "addr", cfg.Addr, "instance_id", instanceID)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("server stopped: %v", err)
	}
}
