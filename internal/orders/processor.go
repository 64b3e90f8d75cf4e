// Package orders holds the order transaction processor: the business core
// of the pipeline. Every topic-specific consumer that needs checkout
// processing shares this one implementation.
package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/example/order-event-pipeline/internal/event"
	"github.com/example/order-event-pipeline/internal/metrics"
	"github.com/example/order-event-pipeline/internal/queue"
	"github.com/example/order-event-pipeline/internal/store"
)

// OrderStore is the persistence surface the processor needs.
type OrderStore interface {
	CreateOrderTx(ctx context.Context, order *store.Order, items []store.OrderItem) ([]store.StockDelta, error)
}

// Publisher hands envelopes to the queue for at-least-once delivery.
type Publisher interface {
	Publish(ctx context.Context, target string, env event.Envelope, opts queue.Options) error
}

// Processor turns a verified, de-duplicated checkout command into an order.
type Processor struct {
	store     OrderStore
	publisher Publisher
	targets   queue.Targets
	source    string
	opts      queue.Options
}

// NewProcessor wires a Processor. source names this component in outgoing
// envelopes.
func NewProcessor(st OrderStore, pub Publisher, targets queue.Targets, source string, opts queue.Options) *Processor {
	return &Processor{store: st, publisher: pub, targets: targets, source: source, opts: opts}
}

// ProcessCheckout creates the order and its line items and decrements stock
// atomically, then fans out the derived events. The fan-out runs strictly
// after commit: a publish failure is logged and isolated per event, never
// mistaken for a transaction failure (retrying the transaction would
// double-create the order).
//
// Insufficient stock is permanent for this delivery; the event is
// dead-lettered to the analytics topic with its payload intact and the
// error is marked so the consumer acknowledges instead of retrying.
func (p *Processor) ProcessCheckout(ctx context.Context, env event.Envelope, cmd event.CheckoutCommand) (*store.Order, error) {
	order := store.Order{
		// Deterministic from the command id: a duplicate delivery that
		// slips past the dedup cache collides on the primary key instead
		// of creating a second order.
		ID:              event.DerivedID(env.ID, "order"),
		UserID:          cmd.UserID,
		CustomerName:    cmd.CustomerName,
		CustomerEmail:   cmd.CustomerEmail,
		ShippingAddress: cmd.ShippingAddress,
		Total:           cmd.Total,
		Status:          store.StatusPending,
	}
	items := make([]store.OrderItem, 0, len(cmd.Items))
	for _, it := range cmd.Items {
		items = append(items, store.OrderItem{
			OrderID:     order.ID,
			ProductID:   it.ProductID,
			VariationID: it.VariationID,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
		})
	}

	timer := metrics.TxTimer()
	deltas, err := p.store.CreateOrderTx(ctx, &order, items)
	timer.ObserveDuration()
	if err != nil {
		if errors.Is(err, store.ErrInsufficientStock) {
			p.deadLetter(ctx, env, err)
			return nil, fmt.Errorf("checkout %s: %v: %w", env.ID, err, queue.ErrPermanentFailure)
		}
		return nil, fmt.Errorf("checkout %s: %w", env.ID, err)
	}

	p.fanOut(ctx, env, cmd, order, deltas)
	return &order, nil
}

// fanOut publishes the derived events for a committed order. Each publish
// failure is isolated: siblings are still attempted and the order stands.
// Derived ids are deterministic, so an independent re-publish of a failed
// event cannot double-count downstream.
func (p *Processor) fanOut(ctx context.Context, env event.Envelope, cmd event.CheckoutCommand, order store.Order, deltas []store.StockDelta) {
	type derived struct {
		eventType string
		suffix    string
		payload   interface{}
	}

	out := []derived{
		{event.TypeOrderCreated, "order-created", event.OrderCreated{
			OrderID:       order.ID,
			UserID:        order.UserID,
			CustomerEmail: order.CustomerEmail,
			Total:         order.Total,
			Status:        order.Status,
			ItemCount:     len(cmd.Items),
			CreatedAt:     order.CreatedAt,
		}},
		{event.TypeEmail, "email", event.EmailNotification{
			Recipient: order.CustomerEmail,
			Template:  "order-confirmation",
			OrderID:   order.ID,
			Total:     order.Total,
		}},
	}
	for i, d := range deltas {
		out = append(out, derived{event.TypeStockUpdated, fmt.Sprintf("stock-%d", i), event.StockUpdated{
			ProductID:     d.ProductID,
			VariationID:   d.VariationID,
			OrderID:       order.ID,
			QuantityDelta: -d.Quantity,
			PreviousStock: d.PreviousStock,
			NewStock:      d.NewStock,
		}})
	}
	out = append(out, derived{event.TypeAudit, "audit", event.AuditRecord{
		Action:  "order.created",
		OrderID: order.ID,
		Detail:  env.Payload,
	}})

	for _, d := range out {
		child, err := event.Wrap(d.eventType, d.payload, p.source, p.correlationID(env))
		if err != nil {
			log.Ctx(ctx).Error().Err(err).Str("type", d.eventType).Msg("failed to build derived event")
			continue
		}
		child.ID = event.DerivedID(env.ID, d.suffix)
		target := p.targets.For(child)
		if err := p.publisher.Publish(ctx, target, child, p.opts); err != nil {
			metrics.PublishFailures.Inc()
			log.Ctx(ctx).Error().Err(err).
				Str("type", d.eventType).
				Str("eventId", child.ID).
				Str("orderId", order.ID).
				Msg("post-commit publish failed; order stands, event can be re-published independently")
		}
	}
}

// deadLetter re-emits a permanently failed command to the analytics topic
// once, carrying the original payload for manual or automated follow-up.
func (p *Processor) deadLetter(ctx context.Context, env event.Envelope, cause error) {
	dl := event.DeadLetter{
		OriginalID:      env.ID,
		OriginalType:    env.Type,
		OriginalPayload: env.Payload,
		Error:           cause.Error(),
		Attempts:        1,
	}
	child, err := event.Wrap(event.TypeDeadLetter, dl, p.source, p.correlationID(env))
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str("eventId", env.ID).Msg("failed to build dead-letter event")
		return
	}
	child.ID = event.DerivedID(env.ID, "deadletter")
	metrics.DeadLettered.Inc()
	if err := p.publisher.Publish(ctx, p.targets[event.TopicAnalytics], child, p.opts); err != nil {
		metrics.PublishFailures.Inc()
		log.Ctx(ctx).Error().Err(err).Str("eventId", env.ID).Msg("failed to publish dead-letter event")
	}
}

// correlationID keeps the whole causal chain of an order under the id of
// its originating command.
func (p *Processor) correlationID(env event.Envelope) string {
	if env.CorrelationID != "" {
		return env.CorrelationID
	}
	return env.ID
}
