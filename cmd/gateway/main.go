package main

import (
	"context"
	"flag"
	stdlog "log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"aimon/internal/core/ports"
	"aimon/internal/core/services"
	httphandlers "aimon/internal/handlers/http"
	"aimon/internal/handlers/ws"
	"aimon/internal/infrastructure/monitoring"
	"aimon/internal/infrastructure/relay"
	"aimon/internal/infrastructure/signaling"
	"aimon/pkg/config"
	"aimon/pkg/logger"
	"aimon/pkg/tracing"

	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		stdlog.Fatalf("invalid configuration: %v", err)
	}

	log := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer log.Sync()

	tp, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: "aimon-gateway",
		JaegerURL:   cfg.Tracing.JaegerURL,
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		log.Fatal("failed to init tracing", zap.Error(err))
	}

	signalingFactory, err := signaling.NewFactory(cfg, log)
	if err != nil {
		log.Fatal("failed to create signaling factory", zap.Error(err))
	}
	defer signalingFactory.Close()

	channel := signalingFactory.CreateChannel()
	tokenStore := signalingFactory.CreateTokenStore()

	authService := services.NewAuthService(
		cfg.Auth.JWTSecret,
		cfg.Auth.AccessTokenTTL,
		cfg.Auth.RefreshTokenTTL,
	)

	var relayTrigger ports.RelayTrigger
	if cfg.Relay.Enabled {
		relayTrigger = relay.NewClient(cfg, log)
	}

	var metrics ports.SignalMetrics
	var registry *prometheus.Registry
	if cfg.Monitoring.PrometheusEnabled {
		collector := monitoring.NewPrometheusCollector()
		metrics = collector
		registry = collector.Registry()
	}

	checker := monitoring.NewHealthChecker()
	checker.AddCheck("signaling", signalingFactory.HealthCheck, 2*time.Second)

	notifyService := services.NewNotificationService(tokenStore, log)

	sessionHandler := httphandlers.NewSessionHandler(channel, nil, relayTrigger, metrics, notifyService, log)
	healthHandler := httphandlers.NewHealthHandler(checker, registry)

	router := httphandlers.NewRouter(httphandlers.RouterDeps{
		Config:  cfg,
		Logger:  log,
		Auth:    authService,
		AuthH:   httphandlers.NewAuthHandler(authService, cfg.Auth.AccessTokenTTL),
		Session: sessionHandler,
		Push:    httphandlers.NewPushHandler(tokenStore),
		Health:  healthHandler,
	})

	bridge := ws.NewBridge(channel, authService, log)
	router.GET("/ws/sessions/:id", func(c *gin.Context) {
		bridge.ServeSession(c.Writer, c.Request, c.Param("id"))
	})

	feed := ws.NewFeed(notifyService, authService, log)
	router.GET("/ws/notifications", func(c *gin.Context) {
		feed.ServeFeed(c.Writer, c.Request)
	})

	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("starting gateway", zap.String("address", cfg.Server.Address))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		log.Fatal("server failed", zap.Error(err))
	case sig := <-sigChan:
		log.Info("received shutdown signal", zap.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown error", zap.Error(err))
		_ = srv.Close()
	}
	if err := tp.Shutdown(shutdownCtx); err != nil {
		log.Error("tracer shutdown error", zap.Error(err))
	}

	log.Info("gateway stopped")
}
