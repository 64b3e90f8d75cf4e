package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/example/order-event-pipeline/internal/config"
	"github.com/example/order-event-pipeline/internal/consumer"
	"github.com/example/order-event-pipeline/internal/deadletter"
	"github.com/example/order-event-pipeline/internal/idempotency"
	"github.com/example/order-event-pipeline/internal/metrics"
	"github.com/example/order-event-pipeline/internal/orders"
	"github.com/example/order-event-pipeline/internal/queue"
	"github.com/example/order-event-pipeline/internal/store"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.With().Str("service", "consumer").Logger()

	cfg, err := config.Load(".")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	db, err := store.New(store.Config{
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		User:     cfg.DBUser,
		Password: cfg.DBPassword,
		Name:     cfg.DBName,
		SSLMode:  cfg.DBSSLMode,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()
	if err := db.Init(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("failed to init database schema")
	}

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer redisClient.Close()

	dedup := idempotency.NewStore(redisClient, "idemp", cfg.IdempotencyTTL())
	sink := deadletter.NewSink(redisClient, cfg.DeadLetterList)
	verifier := queue.NewVerifier(cfg.SigningKeyCurrent, cfg.SigningKeyNext, cfg.DevMode())
	if cfg.DevMode() {
		log.Warn().Msg("running in development mode; unverified webhooks may be accepted")
	}

	publisher := queue.NewClient(
		&http.Client{Timeout: 10 * time.Second},
		cfg.QueueURL, cfg.QueueBatchURL, cfg.QueueToken, cfg.DefaultRetries,
	)
	targets := queue.TargetsFromBase(cfg.TargetBaseURL)
	opts := queue.Options{Retries: cfg.DefaultRetries, Delay: cfg.PublishDelay()}
	processor := orders.NewProcessor(db, publisher, targets, cfg.AppName, opts)

	router := setupRouter(verifier, dedup, processor, db, sink)

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: router,
		// Webhook invocations have a bounded wall-clock budget; a kill
		// mid-flight is equivalent to a crash and safely retried.
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("webhook consumer listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.ShutdownTimeout)*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("shutdown error")
	}
}

func setupRouter(verifier *queue.Verifier, dedup consumer.Dedup, processor *orders.Processor, db *store.DB, sink *deadletter.Sink) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", metrics.Handler())

	// Read-only lookups for operators polling on asynchronous outcomes.
	r.GET("/orders/:id", func(c *gin.Context) {
		o, err := db.GetOrder(c.Request.Context(), c.Param("id"))
		if err != nil {
			log.Error().Err(err).Str("orderId", c.Param("id")).Msg("order lookup failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
			return
		}
		if o == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
			return
		}
		c.JSON(http.StatusOK, o)
	})
	r.GET("/stock/:productId", func(c *gin.Context) {
		id, err := strconv.ParseInt(c.Param("productId"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid product id"})
			return
		}
		stock, err := db.GetStock(c.Request.Context(), id)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "product not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"productId": id, "stock": stock})
	})

	hooks := r.Group("/webhooks")
	hooks.POST("/commands", consumer.NewCommandsConsumer(verifier, dedup, processor).HandleRequest)
	hooks.POST("/orders", consumer.NewOrdersConsumer(verifier, dedup, db).HandleRequest)
	hooks.POST("/notifications", consumer.NewNotificationsConsumer(verifier, dedup).HandleRequest)
	hooks.POST("/inventory", consumer.NewInventoryConsumer(verifier, dedup, db).HandleRequest)
	hooks.POST("/analytics", consumer.NewAnalyticsConsumer(verifier, dedup, sink).HandleRequest)

	return r
}
