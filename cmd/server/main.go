package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap/zapcore"

	"listenify.dev/syncengine/internal/api"
	"listenify.dev/syncengine/internal/auth"
	"listenify.dev/syncengine/internal/config"
	"listenify.dev/syncengine/internal/ds"
	"listenify.dev/syncengine/internal/ess"
	"listenify.dev/syncengine/internal/hub"
	"listenify.dev/syncengine/internal/models"
	"listenify.dev/syncengine/internal/readiness"
	"listenify.dev/syncengine/internal/rpc"
	"listenify.dev/syncengine/internal/rpc/methods"
	"listenify.dev/syncengine/internal/roommgr"
	"listenify.dev/syncengine/internal/services/system"
	"listenify.dev/syncengine/internal/utils"
)

// convert logger level to zapcore.Level
func hLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	case "fatal":
		return zapcore.FatalLevel
	case "panic":
		return zapcore.PanicLevel
	default:
		return zapcore.InfoLevel
	}
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("Received shutdown signal")
		cancel()
	}()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	loggerOptions := utils.LoggerOptions{
		Development: cfg.Environment == "development",
		Level:       hLevel(cfg.Logging.Level),
		OutputPaths: cfg.Logging.OutputPaths,
	}
	logger := utils.NewLogger(loggerOptions)
	logger.Info("starting room synchronization engine", "environment", cfg.Environment)

	// Durable Store (C3)
	dsClient, err := ds.NewClient(cfg, logger)
	if err != nil {
		logger.Fatal("failed to connect to durable store", err)
	}
	if err := ds.EnsureIndexes(ctx, dsClient); err != nil {
		logger.Error("failed to ensure durable store indexes", err)
	}
	defer func() {
		if err := dsClient.Disconnect(context.Background()); err != nil {
			logger.Error("failed to disconnect durable store", err)
		}
	}()

	// Ephemeral State Store (C2)
	essClient, err := ess.NewClient(cfg, logger)
	if err != nil {
		logger.Fatal("failed to connect to ephemeral state store", err)
	}
	defer essClient.Close()

	roomRepo := ds.NewRoomRepository(dsClient, logger)

	// System services
	metricsService := system.NewMetricsService(logger)
	healthService := system.NewHealthService(dsClient, essClient, logger, system.HealthServiceConfig{
		Version:     "1.0.0",
		Environment: cfg.Environment,
	})
	maintenanceService := system.NewMaintenanceService(system.DefaultMaintenanceConfig(), dsClient, logger)

	// Room Manager (C4) with its per-room serialization/grace-timer
	// coordinator
	coordinator := roommgr.NewCoordinator(logger)
	roomManager := roommgr.NewManager(roomRepo, essClient, coordinator, metricsService, cfg, logger)

	// Authentication
	authVerifier := auth.NewJWTVerifier(auth.JWTConfig{Secret: cfg.Auth.JWTSecret}, logger)

	// Stream Hub (C5): one hub + ESS subscription pump per room with
	// attached subscribers
	hubRegistry := hub.NewRegistry(essClient, rpc.EncodeRoomEventNotification, cfg.Room.OutboundQueueCapacity, metricsService, logger)

	readinessTracker := readiness.NewTracker()

	// JSON-RPC transport (Host Command Pipeline C6 / Member Sync Pipeline C7)
	rpcRouter := rpc.NewRouter(logger)
	rpcServer := rpc.NewServer(rpcRouter, authVerifier, hubRegistry, metricsService, cfg, logger)

	roomHandler := methods.RegisterAllMethods(rpcRouter, roomManager, essClient, readinessTracker, metricsService, cfg, logger)
	rpcServer.OnDisconnect(func(client *rpc.Client) {
		roomHandler.HandleDisconnect(context.Background(), client)
	})

	// Operator-facing HTTP surface: health + metrics
	apiRouter := api.NewRouter(healthService, metricsService, cfg, logger)

	if err := maintenanceService.Start(ctx); err != nil {
		logger.Error("failed to start maintenance service", err)
	}
	healthService.Start(ctx)
	metricsService.Start(ctx)
	startRoomCountSampler(ctx, roomManager, metricsService, logger)

	apiAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	httpServer := &http.Server{
		Addr:         apiAddr,
		Handler:      apiRouter,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// WebSocket upgrades are served on their own port so the health/metrics
	// middleware chain never sits in front of the upgrade handshake.
	wsPort := cfg.Server.Port + 1
	wsAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, wsPort)
	wsServer := &http.Server{
		Addr:    wsAddr,
		Handler: http.HandlerFunc(rpcServer.HandleWebSocket),
	}

	go func() {
		logger.Info("starting http server", "address", apiAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("http server error", err)
		}
	}()

	go func() {
		logger.Info("starting websocket server", "address", wsAddr)
		if err := wsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("websocket server error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Shutdown.DrainGrace)
	defer shutdownCancel()

	// Tell every connected client the server is going away, then drain
	// rooms before tearing down the transport.
	rpcServer.BroadcastShutdownNotice(rpc.NotificationServerShutdown, map[string]string{"reason": "server_shutdown"})
	roomManager.BroadcastShutdown(shutdownCtx)

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", err)
	}
	if err := wsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("websocket server shutdown error", err)
	}
	if err := rpcServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("rpc server shutdown error", err)
	}

	hubRegistry.Shutdown()
	roomManager.Shutdown(shutdownCtx)
	maintenanceService.Stop()

	logger.Info("server shutdown complete")
}

// startRoomCountSampler periodically counts ACTIVE rooms and records the
// gauge, since the Room Manager itself has no reason to track a running
// total outside of what callers request a page at a time.
func startRoomCountSampler(ctx context.Context, rooms *roommgr.Manager, metrics *system.MetricsService, logger *utils.Logger) {
	ticker := time.NewTicker(30 * time.Second)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				count := 0
				filter := models.ListRoomsFilter{PageSize: 200}
				for {
					page, err := rooms.ListRooms(ctx, filter)
					if err != nil {
						logger.Warn("failed to sample active room count", "error", err)
						break
					}
					count += len(page)
					if len(page) < filter.PageSize {
						break
					}
					last := page[len(page)-1].ID
					filter.ContinuationID = &last
				}
				metrics.SetRoomsActive(count)
			}
		}
	}()
}
