package main

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"telecare-signaling/internal/config"
	"telecare-signaling/internal/coordinator"
	"telecare-signaling/internal/database"
	presenceHandler "telecare-signaling/internal/handler/http/presence"
	wsHandler "telecare-signaling/internal/handler/ws"
	"telecare-signaling/internal/middleware"
	redisRepo "telecare-signaling/internal/repository/redis"
	"telecare-signaling/pkg/jwt"
	"telecare-signaling/pkg/logger"
	"telecare-signaling/pkg/metrics"
)

func main() {
	ctx := context.Background()

	// 1. Logger and configuration
	logger.InitDefault()
	defer logger.Sync()

	cfg := config.Load()

	// 2. JWT manager
	if cfg.JWTSecret == "" {
		logger.Fatal("JWT_SECRET environment variable is required")
	}
	if len(cfg.JWTSecret) < 32 {
		logger.Fatal("JWT_SECRET must be at least 32 characters")
	}
	jwtManager := jwt.NewJWTManager(cfg.JWTSecret, 15*time.Minute, 30*24*time.Hour)

	// 3. Redis with degraded mode support, retried with exponential backoff.
	// The service signals fine without Redis; only the status write-through
	// for other platform services is lost.
	redisConfig := &database.RedisConfig{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		PoolSize: cfg.RedisPoolSize,
		Timeout:  cfg.RedisTimeout,
	}

	redisDB, err := database.NewRedisDB(redisConfig)
	if err != nil {
		logger.Fatal("failed to construct redis client", zap.Error(err))
	}
	defer redisDB.Close()

	maxRetries := 5
	baseDelay := 1 * time.Second
	maxDelay := 30 * time.Second

	err = redisDB.HealthCheck(ctx)
	for attempt := 2; err != nil && attempt <= maxRetries; attempt++ {
		delay := time.Duration(float64(baseDelay) * math.Pow(2, float64(attempt-1)))
		if delay > maxDelay {
			delay = maxDelay
		}
		logger.Warn("redis connection attempt failed, retrying",
			zap.Int("attempt", attempt-1),
			zap.Duration("retry_in", delay),
			zap.Error(err))
		time.Sleep(delay)
		err = redisDB.HealthCheck(ctx)
	}
	if err != nil {
		logger.Warn("redis unreachable, starting in degraded mode", zap.Error(err))
	} else {
		logger.Info("connected to redis",
			zap.String("host", cfg.RedisHost),
			zap.Int("port", cfg.RedisPort))
	}
	redisDB.StartHealthCheck(ctx, 10*time.Second)

	statusRepo := redisRepo.NewStatusRepository(redisDB)

	// 4. Metrics
	appMetrics := metrics.NewMetrics("signaling-service")
	prometheusMiddleware := middleware.NewPrometheusMiddleware(appMetrics)

	// 5. Coordinator and handlers
	coord := coordinator.New(coordinator.Options{
		StatusStore:  statusRepo,
		RoomCapacity: cfg.RoomCapacity,
	}, appMetrics, logger.Log)

	wsHdlr := wsHandler.NewHandler(coord, appMetrics, cfg.MaxConnections)
	presenceHdlr := presenceHandler.NewHandler(coord.Presence)

	// 6. Gin router
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	trustedProxies := []string{}
	if cfg.IsProduction() {
		trustedProxies = []string{
			"10.0.0.0/8",
			"172.16.0.0/12",
		}
	} else {
		trustedProxies = []string{
			"127.0.0.1",
			"::1",
		}
	}
	router.SetTrustedProxies(trustedProxies)

	router.Use(middleware.Recovery())
	router.Use(middleware.RequestLogger())
	router.Use(middleware.CORSMiddleware())
	router.Use(prometheusMiddleware.Handler())

	// Health check
	router.GET("/health", func(c *gin.Context) {
		status := "healthy"
		if redisDB.IsDegraded() {
			status = "degraded"
		}
		c.JSON(200, gin.H{
			"status":      status,
			"service":     "signaling-service",
			"connections": coord.Registry.Count(),
			"time":        time.Now().UTC(),
		})
	})

	// Metrics endpoint (for Prometheus scraping)
	router.GET("/metrics", middleware.MetricsHandler(appMetrics))

	// Signaling routes (all require authentication)
	v1 := router.Group("/v1")
	v1.Use(middleware.AuthMiddleware(jwtManager))
	{
		v1.GET("/signaling/ws", wsHdlr.HandleWebSocket)
		v1.GET("/presence/doctors", presenceHdlr.ListDoctors)
	}

	// 7. Start server
	addr := fmt.Sprintf(":%s", cfg.Port)
	logger.Info("signaling service starting",
		zap.String("port", cfg.Port),
		zap.String("ws_endpoint", "/v1/signaling/ws"))
	if err := router.Run(addr); err != nil {
		logger.Fatal("failed to start server", zap.Error(err))
	}
}
