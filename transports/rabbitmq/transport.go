package rabbitmq

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/glimte/amqpkit/internal/rabbitmq"
	"github.com/glimte/amqpkit/internal/reliability"
	"github.com/glimte/amqpkit/messaging"
	"github.com/glimte/amqpkit/routing"
)

// RetryPolicy decides how often and after what delay a message whose handler returned
// contracts.Retry is redelivered
type RetryPolicy = reliability.RetryPolicy

// NewExponentialBackoff creates a retry policy whose delay grows by multiplier per attempt
func NewExponentialBackoff(initial, max time.Duration, multiplier float64, maxRetries int) RetryPolicy {
	return reliability.NewExponentialBackoff(initial, max, multiplier, maxRetries)
}

// NewFixedDelay creates a retry policy with a constant delay
func NewFixedDelay(delay time.Duration, maxRetries int) RetryPolicy {
	return reliability.NewFixedDelay(delay, maxRetries)
}

// Transport bundles a RabbitMQ connection with the topology operator, producer and consumer
// that run on it
type Transport struct {
	manager      *rabbitmq.ConnectionManager
	operator     *rabbitmq.TopologyOperator
	configurator *routing.Configurator
	publisher    *rabbitmq.Publisher
	consumer     *rabbitmq.Consumer
}

// TransportConfig holds configuration for the transport
type TransportConfig struct {
	Logger            *slog.Logger
	ConnectionOptions []rabbitmq.ConnectionOption
	PublisherOptions  []rabbitmq.PublisherOption
	ConsumerOptions   []rabbitmq.ConsumerOption

	breaker []reliability.CircuitBreakerOption
}

// TransportOption configures the transport
type TransportOption func(*TransportConfig)

// WithLogger sets the logger of every component
func WithLogger(logger *slog.Logger) TransportOption {
	return func(cfg *TransportConfig) {
		cfg.Logger = logger
	}
}

// WithDialTimeout bounds how long NewTransport waits for the broker
func WithDialTimeout(timeout time.Duration) TransportOption {
	return func(cfg *TransportConfig) {
		cfg.ConnectionOptions = append(cfg.ConnectionOptions, rabbitmq.WithDialTimeout(timeout))
	}
}

// WithConfirms makes ProduceOne wait for publisher confirms
func WithConfirms(enabled bool) TransportOption {
	return func(cfg *TransportConfig) {
		cfg.PublisherOptions = append(cfg.PublisherOptions, rabbitmq.WithConfirmMode(enabled))
	}
}

// WithCircuitBreaker stops publishing for cooldown after threshold consecutive failures
func WithCircuitBreaker(threshold int, cooldown time.Duration) TransportOption {
	return func(cfg *TransportConfig) {
		cfg.breaker = []reliability.CircuitBreakerOption{
			reliability.WithFailureThreshold(threshold),
			reliability.WithCooldown(cooldown),
		}
	}
}

// WithPrefetch sets the consumer prefetch count
func WithPrefetch(count int) TransportOption {
	return func(cfg *TransportConfig) {
		cfg.ConsumerOptions = append(cfg.ConsumerOptions, rabbitmq.WithPrefetchCount(count))
	}
}

// WithConcurrency sets how many handlers a consumer runs at once
func WithConcurrency(n int) TransportOption {
	return func(cfg *TransportConfig) {
		cfg.ConsumerOptions = append(cfg.ConsumerOptions, rabbitmq.WithConcurrency(n))
	}
}

// WithRetryPolicy sets the policy applied to contracts.Retry
func WithRetryPolicy(policy RetryPolicy) TransportOption {
	return func(cfg *TransportConfig) {
		cfg.ConsumerOptions = append(cfg.ConsumerOptions, rabbitmq.WithRetryPolicy(policy))
	}
}

// NewTransport connects to the broker at url and builds the transport components on the
// connection
func NewTransport(ctx context.Context, url string, options ...TransportOption) (*Transport, error) {
	cfg := &TransportConfig{
		Logger: slog.Default(),
	}

	for _, opt := range options {
		opt(cfg)
	}

	connOpts := append([]rabbitmq.ConnectionOption{rabbitmq.WithLogger(cfg.Logger)}, cfg.ConnectionOptions...)
	manager := rabbitmq.NewConnectionManager(url, connOpts...)

	if err := manager.Connect(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	t := newTransport(manager, cfg)
	t.manager = manager
	return t, nil
}

// newTransport builds the components on opener
func newTransport(opener rabbitmq.ChannelOpener, cfg *TransportConfig) *Transport {
	operator := rabbitmq.NewTopologyOperator(opener, rabbitmq.WithTopologyLogger(cfg.Logger))

	pubOpts := append([]rabbitmq.PublisherOption{rabbitmq.WithPublisherLogger(cfg.Logger)}, cfg.PublisherOptions...)
	if cfg.breaker != nil {
		breakerOpts := append([]reliability.CircuitBreakerOption{reliability.WithBreakerLogger(cfg.Logger)}, cfg.breaker...)
		pubOpts = append(pubOpts, rabbitmq.WithCircuitBreaker(reliability.NewCircuitBreaker(breakerOpts...)))
	}
	scheduler := rabbitmq.NewRetryScheduler(operator, rabbitmq.WithSchedulerLogger(cfg.Logger))
	consOpts := append([]rabbitmq.ConsumerOption{
		rabbitmq.WithConsumerLogger(cfg.Logger),
		rabbitmq.WithRetryScheduler(scheduler),
	}, cfg.ConsumerOptions...)

	return &Transport{
		operator:     operator,
		configurator: routing.NewConfigurator(operator, routing.WithLogger(cfg.Logger)),
		publisher:    rabbitmq.NewPublisher(opener, pubOpts...),
		consumer:     rabbitmq.NewConsumer(opener, consOpts...),
	}
}

// Configurator returns a configurator driving this transport's operator
func (t *Transport) Configurator() *routing.Configurator {
	return t.configurator
}

// Operator returns the topology operator
func (t *Transport) Operator() routing.Operator {
	return t.operator
}

// Producer returns the message producer
func (t *Transport) Producer() messaging.Producer {
	return t.publisher
}

// Consumer returns the message consumer
func (t *Transport) Consumer() messaging.Consumer {
	return t.consumer
}

// IsConnected returns connection status
func (t *Transport) IsConnected() bool {
	return t.manager != nil && t.manager.IsConnected()
}

// Close closes the connection. Components obtained from the transport stop working.
func (t *Transport) Close() error {
	if t.manager == nil {
		return nil
	}
	return t.manager.Close()
}
