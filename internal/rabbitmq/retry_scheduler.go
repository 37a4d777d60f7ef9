package rabbitmq

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/glimte/amqpkit/contracts"
	"github.com/glimte/amqpkit/routing"
	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	// DefaultDelayExchange routes retries into their delay queue
	DefaultDelayExchange = "amqpkit.retry.delay"

	// delayGranularity bounds how many delay queues jittered delays can create
	delayGranularity = 100 * time.Millisecond

	// delayQueueGrace keeps an idle delay queue alive past its TTL
	delayQueueGrace = 5 * time.Minute

	// redeclareAfter is well inside delayQueueGrace, so a cached delay queue has not
	// expired when a retry is routed to it
	redeclareAfter = time.Minute
)

// RetryScheduler delays redeliveries on the broker. A retried message waits in a delay
// queue whose x-message-ttl is the delay; on expiry it is dead-lettered through the
// default exchange back to the queue it came from. The consuming worker is never held.
type RetryScheduler struct {
	configurator *routing.Configurator
	exchange     contracts.Exchange
	logger       *slog.Logger
	now          func() time.Time

	mu       sync.Mutex
	declared map[string]time.Time
}

// RetrySchedulerOption configures the RetryScheduler
type RetrySchedulerOption func(*RetryScheduler)

// WithDelayExchange sets the exchange delay queues are bound to
func WithDelayExchange(name string) RetrySchedulerOption {
	return func(s *RetryScheduler) {
		s.exchange = contracts.NewExchange(name, contracts.DirectExchange{})
	}
}

// WithSchedulerLogger sets the logger
func WithSchedulerLogger(logger *slog.Logger) RetrySchedulerOption {
	return func(s *RetryScheduler) {
		s.logger = logger
	}
}

// NewRetryScheduler creates a scheduler that declares its delay topology through operator
func NewRetryScheduler(operator routing.Operator, options ...RetrySchedulerOption) *RetryScheduler {
	s := &RetryScheduler{
		exchange: contracts.NewExchange(DefaultDelayExchange, contracts.DirectExchange{}),
		logger:   slog.Default(),
		now:      time.Now,
		declared: make(map[string]time.Time),
	}

	for _, opt := range options {
		opt(s)
	}
	s.configurator = routing.NewConfigurator(operator, routing.WithLogger(s.logger))

	return s
}

// Schedule publishes msg on ch so that it reaches queue again after delay. A delay below
// the scheduler's granularity republishes straight to queue.
func (s *RetryScheduler) Schedule(ctx context.Context, ch Channel, queue string, delay time.Duration, msg amqp.Publishing) error {
	delay = delay.Round(delayGranularity)
	if delay <= 0 {
		return ch.PublishWithContext(ctx, "", queue, false, false, msg)
	}

	name := DelayQueueName(queue, delay)
	if err := s.ensureDelayQueue(ctx, name, queue, delay); err != nil {
		return fmt.Errorf("failed to declare delay queue %s: %w", name, err)
	}

	if err := ch.PublishWithContext(ctx, s.exchange.Name, name, false, false, msg); err != nil {
		return err
	}

	s.logger.Debug("retry scheduled", "queue", queue, "delayQueue", name, "delay", delay)
	return nil
}

func (s *RetryScheduler) ensureDelayQueue(ctx context.Context, name, target string, delay time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if at, ok := s.declared[name]; ok && s.now().Sub(at) < redeclareAfter {
		return nil
	}

	ttl := delay.Milliseconds()
	queue := contracts.NewQueue(name)
	queue.Arguments["x-message-ttl"] = strconv.FormatInt(ttl, 10)
	queue.Arguments["x-expires"] = strconv.FormatInt(ttl+delayQueueGrace.Milliseconds(), 10)
	queue.Arguments["x-dead-letter-exchange"] = ""
	queue.Arguments["x-dead-letter-routing-key"] = target

	bindings := []contracts.QueueBind{contracts.NewQueueBind(s.exchange, name)}
	if err := s.configurator.BindQueue(ctx, queue, bindings); err != nil {
		return err
	}

	s.declared[name] = s.now()
	return nil
}

// DelayQueueName names the delay queue holding retries of queue for delay
func DelayQueueName(queue string, delay time.Duration) string {
	return fmt.Sprintf("amqpkit.retry.%s.%dms", queue, delay.Milliseconds())
}
