package consumer

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/example/order-event-pipeline/internal/event"
	"github.com/example/order-event-pipeline/internal/queue"
	"github.com/example/order-event-pipeline/internal/store"
)

// lowStockThreshold triggers a warning from the inventory consumer when a
// product drops to or below it.
const lowStockThreshold = 5

// CheckoutProcessor is the shared order transaction processor.
type CheckoutProcessor interface {
	ProcessCheckout(ctx context.Context, env event.Envelope, cmd event.CheckoutCommand) (*store.Order, error)
}

// OrderStatusStore advances order lifecycle status.
type OrderStatusStore interface {
	UpdateOrderStatus(ctx context.Context, orderID, expected, next string) error
}

// MovementStore persists stock movement audit rows.
type MovementStore interface {
	RecordStockMovement(ctx context.Context, m store.StockMovement) (bool, error)
}

// DeadLetterSink keeps permanently failed events for inspection.
type DeadLetterSink interface {
	Push(ctx context.Context, env event.Envelope, dl event.DeadLetter) error
}

// NewCommandsConsumer handles command.checkout by running the order
// transaction processor.
func NewCommandsConsumer(verifier *queue.Verifier, dedup Dedup, processor CheckoutProcessor) *Consumer {
	return New(event.TopicCommands, verifier, dedup).
		Handle(event.TypeCheckoutCommand, func(ctx context.Context, env event.Envelope) error {
			var cmd event.CheckoutCommand
			if err := env.Decode(&cmd); err != nil {
				return fmt.Errorf("%v: %w", err, ErrMalformedPayload)
			}
			if len(cmd.Items) == 0 {
				return fmt.Errorf("checkout command without line items: %w", ErrMalformedPayload)
			}
			order, err := processor.ProcessCheckout(ctx, env, cmd)
			if err != nil {
				return err
			}
			log.Ctx(ctx).Info().Str("orderId", order.ID).Float64("total", order.Total).Msg("order created")
			return nil
		})
}

// NewOrdersConsumer handles order.created by moving the order from PENDING
// to PROCESSING. A redelivery finds the order already advanced and is
// acknowledged as a no-op.
func NewOrdersConsumer(verifier *queue.Verifier, dedup Dedup, st OrderStatusStore) *Consumer {
	return New(event.TopicOrders, verifier, dedup).
		Handle(event.TypeOrderCreated, func(ctx context.Context, env event.Envelope) error {
			var payload event.OrderCreated
			if err := env.Decode(&payload); err != nil {
				return fmt.Errorf("%v: %w", err, ErrMalformedPayload)
			}
			err := st.UpdateOrderStatus(ctx, payload.OrderID, store.StatusPending, store.StatusProcessing)
			if err == store.ErrStatusMismatch {
				log.Ctx(ctx).Info().Str("orderId", payload.OrderID).Msg("order already past PENDING, nothing to do")
				return nil
			}
			if err != nil {
				return err
			}
			log.Ctx(ctx).Info().Str("orderId", payload.OrderID).Msg("order moved to PROCESSING")
			return nil
		})
}

// NewNotificationsConsumer handles notification.email. Delivery to an
// actual mail provider sits behind this log line; the pipeline contract is
// only that the notification was accepted exactly once.
func NewNotificationsConsumer(verifier *queue.Verifier, dedup Dedup) *Consumer {
	return New(event.TopicNotifications, verifier, dedup).
		Handle(event.TypeEmail, func(ctx context.Context, env event.Envelope) error {
			var payload event.EmailNotification
			if err := env.Decode(&payload); err != nil {
				return fmt.Errorf("%v: %w", err, ErrMalformedPayload)
			}
			log.Ctx(ctx).Info().
				Str("recipient", payload.Recipient).
				Str("template", payload.Template).
				Str("orderId", payload.OrderID).
				Msg("email notification dispatched")
			return nil
		})
}

// NewInventoryConsumer handles inventory.stock.updated by recording a stock
// movement audit row keyed by the envelope id, so the write is idempotent
// even when the dedup cache is degraded.
func NewInventoryConsumer(verifier *queue.Verifier, dedup Dedup, st MovementStore) *Consumer {
	return New(event.TopicInventory, verifier, dedup).
		Handle(event.TypeStockUpdated, func(ctx context.Context, env event.Envelope) error {
			var payload event.StockUpdated
			if err := env.Decode(&payload); err != nil {
				return fmt.Errorf("%v: %w", err, ErrMalformedPayload)
			}
			inserted, err := st.RecordStockMovement(ctx, store.StockMovement{
				EventID:       env.ID,
				OrderID:       payload.OrderID,
				ProductID:     payload.ProductID,
				VariationID:   payload.VariationID,
				QuantityDelta: payload.QuantityDelta,
				NewStock:      payload.NewStock,
			})
			if err != nil {
				return err
			}
			if !inserted {
				log.Ctx(ctx).Info().Str("orderId", payload.OrderID).Msg("stock movement already recorded")
				return nil
			}
			if payload.NewStock <= lowStockThreshold {
				log.Ctx(ctx).Warn().
					Int64("productId", payload.ProductID).
					Int("stock", payload.NewStock).
					Msg("product stock low")
			}
			return nil
		})
}

// NewAnalyticsConsumer handles analytics.audit and analytics.deadletter.
// Dead letters go to the inspection sink; audit events are logged. The
// analytics topic is also the router's catch-all, so anything else landing
// here is acknowledged by the unknown-type no-op path.
func NewAnalyticsConsumer(verifier *queue.Verifier, dedup Dedup, sink DeadLetterSink) *Consumer {
	return New(event.TopicAnalytics, verifier, dedup).
		Handle(event.TypeAudit, func(ctx context.Context, env event.Envelope) error {
			var payload event.AuditRecord
			if err := env.Decode(&payload); err != nil {
				return fmt.Errorf("%v: %w", err, ErrMalformedPayload)
			}
			log.Ctx(ctx).Info().
				Str("action", payload.Action).
				Str("orderId", payload.OrderID).
				Msg("audit event recorded")
			return nil
		}).
		Handle(event.TypeDeadLetter, func(ctx context.Context, env event.Envelope) error {
			var payload event.DeadLetter
			if err := env.Decode(&payload); err != nil {
				return fmt.Errorf("%v: %w", err, ErrMalformedPayload)
			}
			if err := sink.Push(ctx, env, payload); err != nil {
				return err
			}
			log.Ctx(ctx).Warn().
				Str("originalId", payload.OriginalID).
				Str("originalType", payload.OriginalType).
				Str("cause", payload.Error).
				Msg("dead-lettered event stored for follow-up")
			return nil
		})
}
