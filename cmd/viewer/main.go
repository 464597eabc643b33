package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"platewatch/internal/core/domain"
	"platewatch/internal/core/services"
	httphandlers "platewatch/internal/handlers/http"
	"platewatch/internal/infrastructure/middleware"
	"platewatch/internal/infrastructure/monitor"
	"platewatch/internal/infrastructure/monitoring"
	"platewatch/pkg/cache"
	"platewatch/pkg/config"
	"platewatch/pkg/logger"

	"github.com/gin-gonic/gin"
)

func main() {
	// Try multiple config paths
	configPaths := []string{
		"configs/config.yaml",
		"./configs/config.yaml",
		"/etc/platewatch/config.yaml",
		"config.yaml",
	}

	var cfg *config.Config
	var err error

	for _, path := range configPaths {
		cfg, err = config.Load(path)
		if err == nil {
			log.Printf("Loaded config from: %s", path)
			break
		}
	}

	if err != nil {
		log.Printf("Could not load config from any path, using defaults")
		cfg = config.DefaultConfig()
	}

	zlog := logger.New(cfg.Logging.Level)
	defer zlog.Sync()
	sugar := zlog.Sugar()

	metrics := monitoring.NewPrometheusCollector()
	plates := cache.New(5 * time.Minute)
	defer plates.Stop()

	statusURL := strings.TrimSuffix(cfg.Backend.BaseURL, "/") + "/status"
	connectivity := monitor.New(statusURL, zlog,
		monitor.WithInterval(cfg.Monitor.PollInterval),
		monitor.WithTimeout(cfg.Monitor.ProbeTimeout),
		monitor.WithMetrics(metrics),
	)

	views := services.NewViewManager(func(endpoint domain.CameraEndpoint) services.View {
		return services.NewCameraViewController(endpoint, services.ViewDeps{
			Logger:       zlog,
			Metrics:      metrics,
			Connectivity: connectivity,
			Plates:       plates,
			Config:       cfg,
		})
	}, zlog)

	cameras := services.NewCameraListService(cfg, views, connectivity, metrics, zlog)
	cameras.Start()
	defer cameras.Close()

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(middleware.RecoveryMiddleware(sugar))
	router.Use(middleware.ErrorHandlerMiddleware(sugar))
	router.Use(middleware.NewRateLimitMiddleware(cfg))

	statusHandler := httphandlers.NewStatusHandler(connectivity, cameras, views, plates, metrics)
	statusHandler.SetupRoutes(router)

	server := &http.Server{
		Addr:    cfg.Status.Address,
		Handler: router,
	}

	go func() {
		sugar.Infow("status API listening", "address", cfg.Status.Address)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			sugar.Fatalw("status API failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	sugar.Infow("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		sugar.Warnw("status API shutdown failed", "error", err)
	}
}
