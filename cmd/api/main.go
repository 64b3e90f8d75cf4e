// The api command is the checkout intake edge: it accepts a checkout
// request whose payment has already been taken, wraps it into a durable
// command.checkout envelope, and hands it to the queue. The client only
// ever learns that the order is being created; the asynchronous outcome is
// not surfaced synchronously.
package main

import (
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/example/order-event-pipeline/internal/config"
	"github.com/example/order-event-pipeline/internal/event"
	"github.com/example/order-event-pipeline/internal/queue"
	"github.com/example/order-event-pipeline/internal/validation"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.With().Str("service", "api").Logger()

	cfg, err := config.Load(".")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	publisher := queue.NewClient(
		&http.Client{Timeout: 10 * time.Second},
		cfg.QueueURL, cfg.QueueBatchURL, cfg.QueueToken, cfg.DefaultRetries,
	)
	targets := queue.TargetsFromBase(cfg.TargetBaseURL)

	r := setupRouter(cfg, publisher, targets)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: r}
	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("checkout api listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down")
}

func setupRouter(cfg config.Config, publisher *queue.Client, targets queue.Targets) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	v := validation.New()
	opts := queue.Options{Retries: cfg.DefaultRetries, Delay: cfg.PublishDelay()}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.POST("/checkout", func(c *gin.Context) {
		ctx := c.Request.Context()

		var req validation.CheckoutRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			// BindAndValidate already wrote a 400
			return
		}

		cmd := event.CheckoutCommand{
			UserID:          req.UserID,
			CustomerName:    req.CustomerName,
			CustomerEmail:   req.CustomerEmail,
			ShippingAddress: req.ShippingAddress,
			Total:           req.Total,
			PaymentToken:    req.PaymentToken,
		}
		for _, it := range req.Items {
			cmd.Items = append(cmd.Items, event.LineItem{
				ProductID:   it.ProductID,
				VariationID: it.VariationID,
				Quantity:    it.Quantity,
				UnitPrice:   it.UnitPrice,
			})
		}

		env, err := event.Wrap(event.TypeCheckoutCommand, cmd, cfg.AppName, req.CorrelationID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "wrap_failed"})
			return
		}
		if env.CorrelationID == "" {
			env.CorrelationID = env.ID
		}

		if err := publisher.Publish(ctx, targets.For(env), env, opts); err != nil {
			log.Error().Err(err).Str("eventId", env.ID).Msg("failed to enqueue checkout command")
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "enqueue_failed"})
			return
		}

		c.JSON(http.StatusAccepted, gin.H{
			"status":        "accepted",
			"eventId":       env.ID,
			"correlationId": env.CorrelationID,
		})
	})

	return r
}
