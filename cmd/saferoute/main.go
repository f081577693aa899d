package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/mr1hm/go-safe-routes/internal/api"
	"github.com/mr1hm/go-safe-routes/internal/config"
	internalgrpc "github.com/mr1hm/go-safe-routes/internal/grpc"
	"github.com/mr1hm/go-safe-routes/internal/hazardindex"
	"github.com/mr1hm/go-safe-routes/internal/logging"
	"github.com/mr1hm/go-safe-routes/internal/provider"
	"github.com/mr1hm/go-safe-routes/internal/repository"
	"github.com/mr1hm/go-safe-routes/internal/routing"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatalf("Fatal while loading config: %v", err)
	}
	logging.Setup(cfg.Logging.Level)

	slog.Info("Server starting", "host", cfg.Server.Host, "port", cfg.Server.Port, "db_driver", cfg.DB.Driver)

	store, err := repository.NewStore(cfg.DB)
	if err != nil {
		logging.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Create broadcaster for gRPC snapshot streaming
	broadcaster := internalgrpc.NewBroadcaster()

	// Hazard index: initial load happens inside Start, then on a ticker
	index := hazardindex.New(cfg.Index)
	refresher := hazardindex.NewRefresher(cfg.Index, store, index, broadcaster)
	refresher.Start(ctx)

	osrm := provider.NewOSRMClient(cfg.Routing)
	defer osrm.Close()

	engine := routing.NewService(cfg, osrm, index)
	engine.Start(ctx)

	// Start gRPC server
	grpcServer := internalgrpc.NewServer(engine, broadcaster)
	go func() {
		grpcAddr := fmt.Sprintf(":%d", cfg.GRPC.Port)
		if err := grpcServer.Start(grpcAddr); err != nil {
			logging.Fatalf("gRPC server error: %v", err)
		}
	}()

	// Gin router
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(api.RequestLogger())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length", "Retry-After"},
		AllowCredentials: false, // Set to false when using wildcard origins
	}))
	router.Use(api.RateLimitMiddleware(cfg.Server.RateLimitRPS))

	handler := api.NewHandler(engine, store, refresher, osrm)
	handler.RegisterRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: router,
	}

	go func() {
		slog.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	// Drain request surfaces and the scoring pool before the background
	// context goes away.
	broadcaster.Close() // Close all streams gracefully
	grpcServer.Stop()
	engine.Stop()

	cancel()
	refresher.Stop()

	slog.Info("shutdown complete")
}
