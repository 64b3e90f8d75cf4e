// Package consumer implements the webhook endpoints the queue delivers to,
// one per logical topic. Every delivery walks the same gates: capture raw
// body, verify signature, parse envelope, dedup check, dispatch, mark seen.
//
// The response code is the contract with the queue's retry logic. Permanent
// failures (bad signature, malformed body) get a 4xx so the queue stops;
// transient failures get a 5xx so the queue retries with backoff; everything
// else — success, duplicates, unknown event types, dead-lettered business
// failures — is acknowledged with a 200 because a retry would never help.
package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/example/order-event-pipeline/internal/event"
	"github.com/example/order-event-pipeline/internal/metrics"
	"github.com/example/order-event-pipeline/internal/queue"
)

// ErrMalformedPayload marks a payload that fails to decode or fails schema
// checks. Deterministic, so never retried.
var ErrMalformedPayload = errors.New("malformed payload")

// Dedup is the idempotency gate.
type Dedup interface {
	Seen(ctx context.Context, eventID string) bool
	MarkSeen(ctx context.Context, eventID string)
}

// Handler processes one verified, de-duplicated envelope.
type Handler func(ctx context.Context, env event.Envelope) error

// Consumer is one topic's webhook endpoint.
type Consumer struct {
	topic    event.Topic
	verifier *queue.Verifier
	dedup    Dedup
	handlers map[string]Handler
}

// New returns a Consumer for topic with no handlers registered yet.
func New(topic event.Topic, verifier *queue.Verifier, dedup Dedup) *Consumer {
	return &Consumer{
		topic:    topic,
		verifier: verifier,
		dedup:    dedup,
		handlers: map[string]Handler{},
	}
}

// Handle registers h for envelopes of eventType. Types without a handler
// are acknowledged as no-ops for forward compatibility.
func (c *Consumer) Handle(eventType string, h Handler) *Consumer {
	c.handlers[eventType] = h
	return c
}

type response struct {
	Success   bool   `json:"success"`
	EventID   string `json:"eventId,omitempty"`
	EventType string `json:"eventType,omitempty"`
	Duplicate bool   `json:"duplicate,omitempty"`
	Error     string `json:"error,omitempty"`
}

// HandleRequest is the gin endpoint for this topic.
func (c *Consumer) HandleRequest(gc *gin.Context) {
	ctx := gc.Request.Context()

	// The signature is computed over bytes, so the body must be captured
	// raw before any JSON parsing touches it.
	raw, err := gc.GetRawData()
	if err != nil {
		metrics.Rejected.WithLabelValues(c.topic.String()).Inc()
		gc.JSON(http.StatusBadRequest, response{Error: "unreadable body"})
		return
	}

	if err := c.verifier.Verify(raw, gc.GetHeader(queue.SignatureHeader)); err != nil {
		metrics.Rejected.WithLabelValues(c.topic.String()).Inc()
		log.Warn().Err(err).Str("topic", c.topic.String()).Msg("webhook signature rejected")
		gc.JSON(http.StatusUnauthorized, response{Error: err.Error()})
		return
	}

	var env event.Envelope
	if err := json.Unmarshal(raw, &env); err != nil || env.ID == "" || env.Type == "" {
		metrics.Rejected.WithLabelValues(c.topic.String()).Inc()
		gc.JSON(http.StatusBadRequest, response{Error: "malformed envelope"})
		return
	}

	logger := log.With().
		Str("topic", c.topic.String()).
		Str("eventId", env.ID).
		Str("eventType", env.Type).
		Str("correlationId", env.CorrelationID).
		Logger()
	ctx = logger.WithContext(ctx)

	if c.dedup.Seen(ctx, env.ID) {
		metrics.Duplicates.WithLabelValues(c.topic.String()).Inc()
		logger.Info().Msg("duplicate delivery acknowledged")
		gc.JSON(http.StatusOK, response{Success: true, EventID: env.ID, EventType: env.Type, Duplicate: true})
		return
	}

	handler, ok := c.handlers[env.Type]
	if !ok {
		// Unknown within this topic: acknowledged as a no-op, not retried.
		logger.Warn().Msg("unrecognized event type for topic, acknowledging")
		gc.JSON(http.StatusOK, response{Success: true, EventID: env.ID, EventType: env.Type})
		return
	}

	if err := handler(ctx, env); err != nil {
		switch {
		case errors.Is(err, ErrMalformedPayload):
			metrics.Rejected.WithLabelValues(c.topic.String()).Inc()
			logger.Warn().Err(err).Msg("malformed payload rejected")
			gc.JSON(http.StatusBadRequest, response{EventID: env.ID, EventType: env.Type, Error: err.Error()})
		case queue.IsPermanent(err):
			// Already dead-lettered by the handler. Acknowledge so the
			// queue stops redelivering; mark seen so a redelivery that
			// races the ack cannot dead-letter twice.
			c.dedup.MarkSeen(ctx, env.ID)
			logger.Error().Err(err).Msg("permanent processing failure acknowledged")
			gc.JSON(http.StatusOK, response{EventID: env.ID, EventType: env.Type, Error: err.Error()})
		default:
			logger.Error().Err(err).Msg("transient processing failure, requesting retry")
			gc.JSON(http.StatusInternalServerError, response{EventID: env.ID, EventType: env.Type, Error: err.Error()})
		}
		return
	}

	c.dedup.MarkSeen(ctx, env.ID)
	metrics.Processed.WithLabelValues(c.topic.String()).Inc()
	gc.JSON(http.StatusOK, response{Success: true, EventID: env.ID, EventType: env.Type})
}
