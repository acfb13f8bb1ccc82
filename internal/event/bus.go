package event

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// Publisher is what pipeline stages use to emit audit events.
type Publisher interface {
	Publish(ctx context.Context, source string, data any) error
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, string, any) error { return nil }

type PubSub interface {
	message.Publisher
	message.Subscriber
}

// EventBus manages event publishing and subscription
type EventBus struct {
	pubSub PubSub
	router *message.Router
	logger watermill.LoggerAdapter
}

// Handler receives decoded event messages. Errors are logged, not redelivered.
type Handler func(ctx context.Context, msg *EventMessage) error

// NewEventBus creates a new event bus. Publish blocks until every subscriber
// has handled the message, so a short-lived command never exits with events
// in flight.
func NewEventBus() (*EventBus, error) {
	logger := watermill.NopLogger{}

	pubSub := gochannel.NewGoChannel(
		gochannel.Config{
			OutputChannelBuffer:            256,
			BlockPublishUntilSubscriberAck: true,
		},
		logger,
	)

	router, err := message.NewRouter(message.RouterConfig{}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create router: %w", err)
	}

	return &EventBus{
		pubSub: pubSub,
		router: router,
		logger: logger,
	}, nil
}

// Start runs the router in the background and returns once it is running.
// Subscriptions must be registered before Start.
func (eb *EventBus) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- eb.router.Run(ctx)
	}()
	select {
	case <-eb.router.Running():
		return nil
	case err := <-errCh:
		return fmt.Errorf("event router stopped: %w", err)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop stops the event bus
func (eb *EventBus) Stop() error {
	if err := eb.router.Close(); err != nil {
		return err
	}
	return eb.pubSub.Close()
}

// Publish publishes an event
func (eb *EventBus) Publish(ctx context.Context, source string, data any) error {
	eventMsg, err := NewEvent(source, data).ToMessage()
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}

	payload, err := json.Marshal(eventMsg)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(context.WithoutCancel(ctx))

	if err := eb.pubSub.Publish(string(eventMsg.Type), msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// Subscribe registers handler for eventType under a unique handlerName.
func (eb *EventBus) Subscribe(eventType EventType, handlerName string, handler Handler) {
	eb.router.AddNoPublisherHandler(
		handlerName,
		string(eventType),
		eb.pubSub,
		func(msg *message.Message) error {
			var eventMsg EventMessage
			if err := json.Unmarshal(msg.Payload, &eventMsg); err != nil {
				slog.Error("dropping undecodable event", "handler", handlerName, "error", err)
				return nil
			}
			if err := handler(msg.Context(), &eventMsg); err != nil {
				slog.Warn("event handler failed", "handler", handlerName, "event", eventMsg.ID, "type", eventMsg.Type, "error", err)
			}
			return nil
		},
	)
}

// SubscribeTyped subscribes to typed events (helper function)
func SubscribeTyped[T any](eb *EventBus, eventType EventType, handlerName string, handler func(ctx context.Context, event *Event[T]) error) {
	eb.Subscribe(eventType, handlerName, func(ctx context.Context, msg *EventMessage) error {
		event, err := FromMessage[T](msg)
		if err != nil {
			return fmt.Errorf("failed to convert message to event: %w", err)
		}
		return handler(ctx, event)
	})
}
