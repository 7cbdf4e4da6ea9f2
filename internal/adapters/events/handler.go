package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"fulfillment-engine/internal/app"
	"fulfillment-engine/internal/core"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Envelope is the wire shape of every lifecycle event: a type tag, an
// optional event id for dedupe, and the type-specific payload.
type Envelope struct {
	Type    string          `json:"type"`
	EventID string          `json:"event_id,omitempty"`
	Payload json.RawMessage `json:"payload"`
}

// Event type tags accepted on the intake topic.
const (
	TypeOrderCreated      = "order.created"
	TypeOrderConfirmed    = "order.confirmed"
	TypeOrderCancelled    = "order.cancelled"
	TypeStockReceived     = "stock.received"
	TypePickingStarted    = "picking.started"
	TypeShipmentConfirmed = "shipment.confirmed"
)

// errMissingEventID rejects a stock.received message that carries no dedupe
// key. Receipts mutate physical stock, so redelivering one without a key
// would double-book it; the message is dropped instead.
var errMissingEventID = errors.New("stock.received event carries no event_id")

// MessageHandler dispatches intake messages to the orchestration layer.
type MessageHandler interface {
	HandleMessage(ctx context.Context, msg kafkago.Message) error
}

type messageHandler struct {
	svc    app.ApplicationService
	logger *zap.Logger
}

func NewMessageHandler(svc app.ApplicationService, logger *zap.Logger) MessageHandler {
	return &messageHandler{svc: svc, logger: logger}
}

// HandleMessage decodes the envelope and routes it. Returning an error means
// the message should redeliver; business-rule and state failures are logged
// and swallowed instead, because redelivering them cannot change the outcome
// (the dedupe claim has already been released for genuine retries).
func (h *messageHandler) HandleMessage(ctx context.Context, msg kafkago.Message) error {
	var env Envelope
	if err := json.Unmarshal(msg.Value, &env); err != nil {
		h.logger.Error("invalid event envelope, dropping",
			zap.Error(err),
			zap.Int64("offset", msg.Offset),
		)
		return nil // malformed forever; redelivery is pointless
	}

	err := h.dispatch(ctx, env)
	if err == nil {
		return nil
	}

	if isTerminalFailure(err) {
		h.logger.Warn("event rejected by engine",
			zap.String("type", env.Type),
			zap.String("event_id", env.EventID),
			zap.Error(err),
		)
		return nil
	}

	h.logger.Error("event handling failed, will redeliver",
		zap.String("type", env.Type),
		zap.String("event_id", env.EventID),
		zap.Error(err),
	)
	return err
}

func (h *messageHandler) dispatch(ctx context.Context, env Envelope) error {
	switch env.Type {
	case TypeOrderCreated:
		var evt core.OrderCreatedEvent
		if err := json.Unmarshal(env.Payload, &evt); err != nil {
			return fmt.Errorf("bad %s payload: %w", env.Type, err)
		}
		return h.svc.HandleOrderCreated(ctx, evt)
	case TypeOrderConfirmed:
		var evt core.OrderConfirmedEvent
		if err := json.Unmarshal(env.Payload, &evt); err != nil {
			return fmt.Errorf("bad %s payload: %w", env.Type, err)
		}
		return h.svc.HandleOrderConfirmed(ctx, evt)
	case TypeOrderCancelled:
		var evt core.OrderCancelledEvent
		if err := json.Unmarshal(env.Payload, &evt); err != nil {
			return fmt.Errorf("bad %s payload: %w", env.Type, err)
		}
		return h.svc.HandleOrderCancelled(ctx, evt)
	case TypeStockReceived:
		var evt core.StockReceivedEvent
		if err := json.Unmarshal(env.Payload, &evt); err != nil {
			return fmt.Errorf("bad %s payload: %w", env.Type, err)
		}
		if evt.EventID == "" {
			evt.EventID = env.EventID
		}
		if evt.EventID == "" {
			return errMissingEventID
		}
		return h.svc.HandleStockReceived(ctx, evt)
	case TypePickingStarted:
		var evt core.PickingStartedEvent
		if err := json.Unmarshal(env.Payload, &evt); err != nil {
			return fmt.Errorf("bad %s payload: %w", env.Type, err)
		}
		return h.svc.HandlePickingStarted(ctx, evt)
	case TypeShipmentConfirmed:
		var evt core.ShipmentConfirmedEvent
		if err := json.Unmarshal(env.Payload, &evt); err != nil {
			return fmt.Errorf("bad %s payload: %w", env.Type, err)
		}
		return h.svc.HandleShipmentConfirmed(ctx, evt)
	default:
		return fmt.Errorf("unknown event type %q", env.Type)
	}
}

// isTerminalFailure reports whether redelivery cannot change the outcome:
// business-rule rejections, state-machine rejections, and validation-shaped
// payload errors.
func isTerminalFailure(err error) bool {
	var insufficient *core.InsufficientStockError
	var capacity *core.CapacityExceededError
	var transition *core.InvalidTransitionError
	var resState *core.InvalidReservationStateError
	return errors.As(err, &insufficient) ||
		errors.As(err, &capacity) ||
		errors.As(err, &transition) ||
		errors.As(err, &resState) ||
		errors.Is(err, core.ErrCurrencyMismatch) ||
		errors.Is(err, errMissingEventID)
}
