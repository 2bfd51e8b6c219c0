package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp/fasthttpadaptor"
	"go.uber.org/zap"

	"github.com/kursadbilgin/push-dispatch/internal/config"
	"github.com/kursadbilgin/push-dispatch/internal/gateway"
	"github.com/kursadbilgin/push-dispatch/internal/gateway/fcm"
	"github.com/kursadbilgin/push-dispatch/internal/gateway/webhook"
	"github.com/kursadbilgin/push-dispatch/internal/handler"
	infraredis "github.com/kursadbilgin/push-dispatch/internal/infra/redis"
	"github.com/kursadbilgin/push-dispatch/internal/observability"
	"github.com/kursadbilgin/push-dispatch/internal/service"
	"github.com/kursadbilgin/push-dispatch/internal/store"
	"github.com/kursadbilgin/push-dispatch/internal/transport"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config", zap.Error(err))
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatal("failed to initialize logger", zap.Error(err))
	}
	defer logger.Sync() //nolint:errcheck

	rdb, err := infraredis.NewRedis(cfg.RedisURL)
	if err != nil {
		logger.Fatal("redis initialization failed", zap.Error(err))
	}
	defer rdb.Close()

	statusStore, err := store.NewRedisStore(rdb)
	if err != nil {
		logger.Fatal("status store initialization failed", zap.Error(err))
	}

	limiter, err := infraredis.NewRedisRateLimiter(rdb, cfg.RateLimitPerSec)
	if err != nil {
		logger.Fatal("rate limiter initialization failed", zap.Error(err))
	}

	gw, err := buildGateway(context.Background(), cfg)
	if err != nil {
		logger.Fatal("gateway initialization failed", zap.Error(err))
	}

	metrics := observability.NewMetrics()

	dispatcher, err := service.NewDispatchService(gw, statusStore, statusStore, limiter, logger, metrics, service.DispatchConfig{
		Timeout:          cfg.NotificationTimeout(),
		StatusTTL:        cfg.StatusTTL(),
		MaxTokens:        cfg.MaxTokensPerRequest,
		MaxBatchSize:     cfg.MaxBatchSize,
		BatchConcurrency: cfg.BatchConcurrency,
	})
	if err != nil {
		logger.Fatal("dispatch service initialization failed", zap.Error(err))
	}

	app := fiber.New(fiber.Config{
		ErrorHandler: transport.ErrorHandler(logger),
	})
	app.Use(metrics.HTTPMiddleware())

	handler.RegisterHealthRoutes(app, rdb)
	if err := handler.RegisterNotificationRoutes(app, dispatcher); err != nil {
		logger.Fatal("route registration failed", zap.Error(err))
	}

	metricsHandler := fasthttpadaptor.NewFastHTTPHandler(metrics.Handler())
	app.Get("/metrics", func(c *fiber.Ctx) error {
		metricsHandler(c.Context())
		return nil
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listen(fmt.Sprintf(":%d", cfg.APIPort))
	}()

	logger.Info("push-dispatch api started",
		zap.Int("port", cfg.APIPort),
		zap.Bool("fcm", cfg.FCMProjectID != ""),
	)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-stop:
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))
	case err := <-errCh:
		logger.Error("server stopped unexpectedly", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
	}

	logger.Info("push-dispatch api stopped")
}

// buildGateway prefers FCM when a project is configured and falls back to the
// generic webhook gateway otherwise.
func buildGateway(ctx context.Context, cfg *config.Config) (gateway.Gateway, error) {
	if cfg.FCMProjectID != "" {
		return fcm.New(ctx, cfg.FCMProjectID, []byte(cfg.FCMCredentialsJSON))
	}
	return webhook.New(cfg.WebhookGatewayURL)
}
