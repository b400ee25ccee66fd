// Package main runs the live polling HTTP server with WebSocket fan-out and
// graceful shutdown. PostgreSQL and Redis are best-effort collaborators: the
// server starts and serves from memory when either is unreachable, with
// reduced history and single-instance broadcast.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/manishrander/Live-Polling-System/config"
	"github.com/manishrander/Live-Polling-System/internal/chat"
	"github.com/manishrander/Live-Polling-System/internal/middleware"
	"github.com/manishrander/Live-Polling-System/internal/poll"
	"github.com/manishrander/Live-Polling-System/internal/presence"
	"github.com/manishrander/Live-Polling-System/internal/realtime"
	"github.com/manishrander/Live-Polling-System/internal/worker"
	"github.com/manishrander/Live-Polling-System/pkg/database"
	"github.com/manishrander/Live-Polling-System/pkg/queue"
	"github.com/manishrander/Live-Polling-System/pkg/redis"
	"github.com/manishrander/Live-Polling-System/pkg/response"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()

	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Warn("database unavailable, running without durable history", zap.Error(err))
		pool = nil
	}
	if pool != nil {
		defer pool.Close()
		if err := database.Migrate(ctx, pool); err != nil {
			logger.Warn("migrate failed, running without durable history", zap.Error(err))
			pool.Close()
			pool = nil
		}
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Warn("redis unavailable, broadcast is local-only and persistence is synchronous-skip", zap.Error(err))
		rdb = nil
	}
	if rdb != nil {
		defer rdb.Close()
	}

	store := poll.New()
	registry := presence.NewRegistry()

	var chatRepo *chat.Repository
	var pollRepo *poll.Repository
	if pool != nil {
		chatRepo = chat.NewRepository(pool)
		pollRepo = poll.NewRepository(pool)
	}

	var pubsub *realtime.RedisPubSub
	var jobQueue *queue.Queue
	if rdb != nil {
		pubsub = realtime.NewRedisPubSub(rdb.Client, logger)
		jobQueue = queue.NewQueue(rdb.Client, logger)
	}

	var hub *realtime.Hub
	if pubsub != nil {
		hub = realtime.NewHub(logger, pubsub, pubsub)
	} else {
		hub = realtime.NewHub(logger, nil, nil)
	}
	if err := hub.Start(); err != nil {
		logger.Warn("cross-instance subscription failed, broadcast is local-only", zap.Error(err))
	}
	defer hub.Stop()

	coordinator := realtime.NewCoordinator(hub, store, registry, chatRepo, jobQueue,
		cfg.Chat.HistoryWindow, cfg.Chat.MaxMessageLen, logger)
	coordinator.Start()
	defer coordinator.Stop()

	pollHandler := poll.NewHandler(store, pollRepo, cfg.Poll.DefaultDurationSec)
	chatHandler := chat.NewHandler(chatRepo, registry)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")
	{
		// Teacher control surface; gating is left to the caller.
		api.POST("/questions", pollHandler.Create)
		api.POST("/questions/stop", pollHandler.Stop)
		api.POST("/students", pollHandler.RegisterStudent)
		api.POST("/students/:id/kick", pollHandler.Kick)
		api.POST("/reset", pollHandler.Reset)

		// Student write surface.
		api.POST("/answers", pollHandler.Submit)

		// Read surface.
		api.GET("/question", pollHandler.Question)
		api.GET("/results", pollHandler.Results)
		api.GET("/time-remaining", pollHandler.TimeRemaining)
		api.GET("/eligibility", pollHandler.Eligibility)
		api.GET("/history", pollHandler.History)
		api.GET("/students", pollHandler.Students)
		api.GET("/messages", chatHandler.Messages)
		api.GET("/participants", chatHandler.Participants)
	}

	router.GET("/ws", realtime.ServeWs(hub, coordinator, logger))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// In-process persistence worker when both collaborators are up.
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	if jobQueue != nil && pool != nil {
		processor := worker.NewProcessor(chatRepo, pollRepo, jobQueue, logger)
		go processor.Run(workerCtx)
		logger.Info("persistence worker started")
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	workerCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
