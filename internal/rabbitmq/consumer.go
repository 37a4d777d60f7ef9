package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/glimte/amqpkit/contracts"
	"github.com/glimte/amqpkit/internal/reliability"
	"github.com/glimte/amqpkit/messaging"
	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	amqp "github.com/rabbitmq/amqp091-go"
)

// RetryCountHeader counts the redeliveries a message has been through
const RetryCountHeader = "x-retry-count"

// Consumer implements messaging.Consumer on RabbitMQ
type Consumer struct {
	opener         ChannelOpener
	prefetchCount  int
	concurrency    int
	consumerTag    string
	retryPolicy    reliability.RetryPolicy
	scheduler      *RetryScheduler
	handlerTimeout time.Duration
	logger         *slog.Logger
}

// ConsumerOption configures the consumer
type ConsumerOption func(*Consumer)

// WithPrefetchCount sets the prefetch count
func WithPrefetchCount(count int) ConsumerOption {
	return func(c *Consumer) {
		c.prefetchCount = count
	}
}

// WithConcurrency sets how many handlers run at once. The default of 1 keeps queue order.
func WithConcurrency(n int) ConsumerOption {
	return func(c *Consumer) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

// WithConsumerTag sets the consumer tag
func WithConsumerTag(tag string) ConsumerOption {
	return func(c *Consumer) {
		c.consumerTag = tag
	}
}

// WithRetryPolicy sets the policy applied when a handler asks for a retry
func WithRetryPolicy(policy reliability.RetryPolicy) ConsumerOption {
	return func(c *Consumer) {
		c.retryPolicy = policy
	}
}

// WithRetryScheduler sets the scheduler that delays retried messages. By default one is
// built on the consumer's own channel opener.
func WithRetryScheduler(scheduler *RetryScheduler) ConsumerOption {
	return func(c *Consumer) {
		c.scheduler = scheduler
	}
}

// WithHandlerTimeout bounds a single handler invocation
func WithHandlerTimeout(timeout time.Duration) ConsumerOption {
	return func(c *Consumer) {
		c.handlerTimeout = timeout
	}
}

// WithConsumerLogger sets the logger
func WithConsumerLogger(logger *slog.Logger) ConsumerOption {
	return func(c *Consumer) {
		c.logger = logger
	}
}

// NewConsumer creates a new consumer
func NewConsumer(opener ChannelOpener, options ...ConsumerOption) *Consumer {
	c := &Consumer{
		opener:         opener,
		prefetchCount:  10,
		concurrency:    1,
		retryPolicy:    reliability.DefaultRetryPolicy(),
		handlerTimeout: 30 * time.Second,
		logger:         slog.Default(),
	}

	for _, opt := range options {
		opt(c)
	}

	if c.scheduler == nil {
		operator := NewTopologyOperator(opener, WithTopologyLogger(c.logger))
		c.scheduler = NewRetryScheduler(operator, WithSchedulerLogger(c.logger))
	}

	return c
}

var _ messaging.Consumer = (*Consumer)(nil)

// Get fetches one message from queue without waiting. An empty queue yields ok == false and
// no error. The channel stays open until the returned package is settled.
func (c *Consumer) Get(ctx context.Context, queue string) (contracts.InboundPackage, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	ch, err := c.opener.Channel()
	if err != nil {
		return nil, false, c.consumerError(queue, "", "get", err)
	}

	delivery, ok, err := ch.Get(queue, false)
	if err != nil {
		ch.Close()
		return nil, false, c.consumerError(queue, "", "get", err)
	}
	if !ok {
		ch.Close()
		return nil, false, nil
	}

	release := func() {
		if err := ch.Close(); err != nil {
			c.logger.Debug("failed to close channel", "queue", queue, "error", err)
		}
	}
	return newInboundDelivery(delivery, c.logger, release), true, nil
}

// Consume delivers messages from queue to handler until ctx is done, which returns nil. If the
// broker closes the delivery stream first, ErrDeliveriesClosed is returned.
func (c *Consumer) Consume(ctx context.Context, queue string, handler messaging.Handler) error {
	ch, err := c.opener.Channel()
	if err != nil {
		return c.consumerError(queue, "", "consume", err)
	}
	defer ch.Close()

	if err := ch.Qos(c.prefetchCount, 0, false); err != nil {
		return c.consumerError(queue, "", "qos", fmt.Errorf("failed to set QoS: %w", err))
	}

	tag := c.consumerTag
	if tag == "" {
		tag = "amqpkit-" + uuid.New().String()
	}

	deliveries, err := ch.ConsumeWithContext(ctx, queue, tag, false, false, false, false, nil)
	if err != nil {
		return c.consumerError(queue, tag, "consume", fmt.Errorf("failed to start consuming: %w", err))
	}

	pool, err := ants.NewPool(c.concurrency, ants.WithPreAlloc(true))
	if err != nil {
		return c.consumerError(queue, tag, "consume", err)
	}
	defer pool.Release()

	var wg sync.WaitGroup
	defer wg.Wait()

	c.logger.Info("consuming from queue",
		"queue", queue,
		"consumerTag", tag,
		"prefetchCount", c.prefetchCount,
		"concurrency", c.concurrency,
	)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("consumer stopped", "queue", queue)
			return nil

		case delivery, ok := <-deliveries:
			if !ok {
				if ctx.Err() != nil {
					c.logger.Info("consumer stopped", "queue", queue)
					return nil
				}
				c.logger.Warn("delivery channel closed", "queue", queue)
				return c.consumerError(queue, tag, "consume", ErrDeliveriesClosed)
			}

			wg.Add(1)
			err := pool.Submit(func() {
				defer wg.Done()
				c.handle(ctx, ch, queue, delivery, handler)
			})
			if err != nil {
				wg.Done()
				c.logger.Error("failed to dispatch message", "queue", queue, "error", err)
				if nackErr := delivery.Nack(false, true); nackErr != nil {
					c.logger.Error("failed to nack message", "error", nackErr)
				}
			}
		}
	}
}

// handle runs handler for one delivery and settles it exactly once
func (c *Consumer) handle(ctx context.Context, ch Channel, queue string, delivery amqp.Delivery, handler messaging.Handler) {
	pkg := newInboundDelivery(delivery, c.logger, nil)
	mode := c.invoke(ctx, pkg, handler)

	retry := func(p contracts.InboundPackage) error {
		return c.retry(ctx, ch, queue, delivery, p)
	}

	err := messaging.Settle(pkg, mode, retry)
	if errors.Is(err, messaging.ErrUnknownAckMode) {
		c.logger.Error("handler returned no acknowledgment", "queue", queue, "messageId", pkg.ID())
		err = pkg.Nack(contracts.Requeue())
	}
	if err != nil {
		c.logger.Error("failed to settle message",
			"error", err,
			"queue", queue,
			"messageId", pkg.ID(),
			"mode", fmt.Sprint(mode),
		)
	}
}

func (c *Consumer) invoke(ctx context.Context, pkg contracts.InboundPackage, handler messaging.Handler) (mode contracts.AckMode) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("handler panicked", "messageId", pkg.ID(), "panic", r)
			mode = contracts.Nack{Policy: contracts.DontRequeue().WithReason("handler panic")}
		}
	}()

	handlerCtx, cancel := context.WithTimeout(ctx, c.handlerTimeout)
	defer cancel()

	return handler(handlerCtx, pkg)
}

// retry hands the message to the scheduler with its retry count incremented, then acks
// the original. The delay is spent on the broker. Once the policy is exhausted the message
// is nacked without requeue so the queue's dead-letter settings apply.
func (c *Consumer) retry(ctx context.Context, ch Channel, queue string, delivery amqp.Delivery, pkg contracts.InboundPackage) error {
	attempt := retryCount(delivery.Headers)

	ok, delay := c.retryPolicy.ShouldRetry(attempt)
	if !ok {
		c.logger.Warn("retries exhausted",
			"queue", queue,
			"messageId", pkg.ID(),
			"attempts", attempt,
		)
		return pkg.Nack(contracts.DontRequeue().WithReason(reliability.ErrMaxRetriesExceeded.Error()))
	}

	headers := amqp.Table{}
	for k, v := range delivery.Headers {
		headers[k] = v
	}
	headers[RetryCountHeader] = int64(attempt + 1)

	publishing := amqp.Publishing{
		Headers:         headers,
		ContentType:     delivery.ContentType,
		ContentEncoding: delivery.ContentEncoding,
		DeliveryMode:    delivery.DeliveryMode,
		CorrelationId:   delivery.CorrelationId,
		MessageId:       delivery.MessageId,
		Timestamp:       delivery.Timestamp,
		Body:            delivery.Body,
	}

	if err := c.scheduler.Schedule(ctx, ch, queue, delay, publishing); err != nil {
		if nackErr := pkg.Nack(contracts.Requeue()); nackErr != nil {
			c.logger.Error("failed to nack message", "error", nackErr)
		}
		return fmt.Errorf("failed to schedule retry: %w", err)
	}

	c.logger.Debug("message scheduled for retry",
		"queue", queue,
		"messageId", pkg.ID(),
		"attempt", attempt+1,
		"delay", delay,
	)
	return pkg.Ack()
}

func (c *Consumer) consumerError(queue, tag, op string, err error) error {
	return &ConsumerError{
		Queue:       queue,
		ConsumerTag: tag,
		Op:          op,
		Err:         err,
		Timestamp:   time.Now(),
	}
}

// retryCount reads RetryCountHeader, treating a missing or malformed value as zero
func retryCount(headers amqp.Table) int {
	switch v := headers[RetryCountHeader].(type) {
	case int:
		return v
	case int8:
		return int(v)
	case int16:
		return int(v)
	case int32:
		return int(v)
	case int64:
		return int(v)
	case string:
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return 0
}
