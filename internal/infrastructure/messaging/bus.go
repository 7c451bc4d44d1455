// Package messaging carries contest events over watermill, in process with
// gochannel or across services with NATS.
package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmnats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	nc "github.com/nats-io/nats.go"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIG
// ══════════════════════════════════════════════════════════════════════════════

// Drivers.
const (
	DriverGoChannel = "gochannel"
	DriverNATS      = "nats"
)

// ErrUnknownDriver is returned for an unsupported driver name.
var ErrUnknownDriver = errors.New("messaging: unknown driver")

// Config selects and configures the transport.
type Config struct {
	Driver string

	// NATS only.
	NATSURL    string
	QueueGroup string

	// Handler retries before a message is given up on.
	MaxRetries      int
	InitialInterval time.Duration
}

// DefaultConfig returns an in-process bus.
func DefaultConfig() Config {
	return Config{
		Driver:          DriverGoChannel,
		MaxRetries:      3,
		InitialInterval: 200 * time.Millisecond,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// BUS
// ══════════════════════════════════════════════════════════════════════════════

// Bus publishes JSON events and routes incoming ones to handlers.
type Bus struct {
	publisher  message.Publisher
	subscriber message.Subscriber
	router     *message.Router
	logger     *slog.Logger

	// gochannel is both publisher and subscriber.
	sharedPubSub bool
}

// NewBus creates the transport and a router with recovery and retry
// middleware.
func NewBus(cfg Config, logger *slog.Logger) (*Bus, error) {
	if logger == nil {
		logger = slog.Default()
	}
	wmLogger := watermill.NewSlogLogger(logger)

	var (
		pub    message.Publisher
		sub    message.Subscriber
		shared bool
	)
	switch cfg.Driver {
	case "", DriverGoChannel:
		ch := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 64}, wmLogger)
		pub, sub, shared = ch, ch, true
	case DriverNATS:
		var err error
		pub, sub, err = newNATS(cfg, wmLogger)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}

	router, err := message.NewRouter(message.RouterConfig{CloseTimeout: 10 * time.Second}, wmLogger)
	if err != nil {
		_ = pub.Close()
		if !shared {
			_ = sub.Close()
		}
		return nil, fmt.Errorf("messaging: failed to create router: %w", err)
	}

	retries := cfg.MaxRetries
	if retries <= 0 {
		retries = DefaultConfig().MaxRetries
	}
	interval := cfg.InitialInterval
	if interval <= 0 {
		interval = DefaultConfig().InitialInterval
	}
	router.AddMiddleware(
		middleware.Recoverer,
		middleware.Retry{
			MaxRetries:      retries,
			InitialInterval: interval,
			Multiplier:      2,
			Logger:          wmLogger,
		}.Middleware,
	)

	return &Bus{
		publisher:    pub,
		subscriber:   sub,
		router:       router,
		logger:       logger,
		sharedPubSub: shared,
	}, nil
}

func newNATS(cfg Config, wmLogger watermill.LoggerAdapter) (message.Publisher, message.Subscriber, error) {
	if cfg.NATSURL == "" {
		return nil, nil, errors.New("messaging: nats url is required")
	}
	marshaler := &wmnats.NATSMarshaler{}
	options := []nc.Option{
		nc.RetryOnFailedConnect(true),
		nc.Name("contest-hub"),
	}

	pub, err := wmnats.NewPublisher(wmnats.PublisherConfig{
		URL:         cfg.NATSURL,
		Marshaler:   marshaler,
		NatsOptions: options,
		JetStream:   wmnats.JetStreamConfig{Disabled: true},
	}, wmLogger)
	if err != nil {
		return nil, nil, fmt.Errorf("messaging: failed to create nats publisher: %w", err)
	}

	sub, err := wmnats.NewSubscriber(wmnats.SubscriberConfig{
		URL:              cfg.NATSURL,
		QueueGroupPrefix: cfg.QueueGroup,
		Unmarshaler:      marshaler,
		NatsOptions:      options,
		JetStream:        wmnats.JetStreamConfig{Disabled: true},
	}, wmLogger)
	if err != nil {
		_ = pub.Close()
		return nil, nil, fmt.Errorf("messaging: failed to create nats subscriber: %w", err)
	}
	return pub, sub, nil
}

// Publish marshals payload as JSON and publishes it on topic.
func (b *Bus) Publish(ctx context.Context, topic string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("messaging: failed to marshal %s payload: %w", topic, err)
	}

	msg := message.NewMessage(watermill.NewUUID(), body)
	msg.SetContext(ctx)
	msg.Metadata.Set("published_at", time.Now().UTC().Format(time.RFC3339Nano))

	if err := b.publisher.Publish(topic, msg); err != nil {
		b.logger.ErrorContext(ctx, "failed to publish event", slog.String("topic", topic), slog.Any("error", err))
		return fmt.Errorf("messaging: publish %s: %w", topic, err)
	}
	b.logger.DebugContext(ctx, "event published", slog.String("topic", topic), slog.String("message_id", msg.UUID))
	return nil
}

// Handle registers a consumer for topic. It must be called before Run.
func (b *Bus) Handle(name, topic string, handler message.NoPublishHandlerFunc) {
	b.router.AddNoPublisherHandler(name, topic, b.subscriber, handler)
}

// Run starts routing and blocks until ctx is canceled or the bus is closed.
func (b *Bus) Run(ctx context.Context) error {
	return b.router.Run(ctx)
}

// Running is closed once every handler is subscribed.
func (b *Bus) Running() chan struct{} {
	return b.router.Running()
}

// Close stops the router and releases the transport.
func (b *Bus) Close() error {
	err := b.router.Close()
	if perr := b.publisher.Close(); perr != nil && err == nil {
		err = perr
	}
	if !b.sharedPubSub {
		if serr := b.subscriber.Close(); serr != nil && err == nil {
			err = serr
		}
	}
	return err
}
