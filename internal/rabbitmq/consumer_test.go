package rabbitmq

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/glimte/amqpkit/contracts"
	"github.com/glimte/amqpkit/internal/reliability"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestConsumer(t *testing.T) {
	t.Run("NewConsumer creates with defaults", func(t *testing.T) {
		opener, _ := newMockOpener()
		consumer := NewConsumer(opener)

		assert.Equal(t, 10, consumer.prefetchCount)
		assert.Equal(t, 1, consumer.concurrency)
		assert.Empty(t, consumer.consumerTag)
		assert.Equal(t, 30*time.Second, consumer.handlerTimeout)
		assert.NotNil(t, consumer.retryPolicy)
		assert.NotNil(t, consumer.logger)
	})

	t.Run("NewConsumer applies options", func(t *testing.T) {
		opener, _ := newMockOpener()
		logger := slog.Default()
		policy := reliability.NewFixedDelay(time.Second, 5)

		consumer := NewConsumer(
			opener,
			WithPrefetchCount(20),
			WithConcurrency(4),
			WithConsumerTag("test-consumer"),
			WithRetryPolicy(policy),
			WithHandlerTimeout(time.Second),
			WithConsumerLogger(logger),
		)

		assert.Equal(t, 20, consumer.prefetchCount)
		assert.Equal(t, 4, consumer.concurrency)
		assert.Equal(t, "test-consumer", consumer.consumerTag)
		assert.Equal(t, policy, consumer.retryPolicy)
		assert.Equal(t, time.Second, consumer.handlerTimeout)
		assert.Equal(t, logger, consumer.logger)
	})

	t.Run("WithConcurrency ignores non-positive values", func(t *testing.T) {
		opener, _ := newMockOpener()
		consumer := NewConsumer(opener, WithConcurrency(0))
		assert.Equal(t, 1, consumer.concurrency)
	})
}

func TestConsumerGet(t *testing.T) {
	ctx := context.Background()

	t.Run("empty queue yields nothing", func(t *testing.T) {
		opener, ch := newMockOpener()
		consumer := NewConsumer(opener)

		ch.On("Get", "orders", false).Return(amqp.Delivery{}, false, nil)

		pkg, ok, err := consumer.Get(ctx, "orders")
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Nil(t, pkg)
		ch.AssertCalled(t, "Close")
	})

	t.Run("channel stays open until the package is settled", func(t *testing.T) {
		ack := &mockAcknowledger{}
		ack.On("Ack", uint64(7), false).Return(nil)

		ch := &mockChannel{}
		ch.On("Get", "orders", false).Return(newTestDelivery(ack), true, nil)
		consumer := NewConsumer(&mockOpener{ch: ch})

		pkg, ok, err := consumer.Get(ctx, "orders")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "msg-1", pkg.ID())
		ch.AssertNotCalled(t, "Close")

		ch.On("Close").Return(nil).Once()
		require.NoError(t, pkg.Ack())
		ch.AssertExpectations(t)
		ack.AssertExpectations(t)
	})

	t.Run("broker error is a ConsumerError", func(t *testing.T) {
		opener, ch := newMockOpener()
		consumer := NewConsumer(opener)

		ch.On("Get", "missing", false).Return(amqp.Delivery{}, false, errBroker)

		_, ok, err := consumer.Get(ctx, "missing")
		assert.False(t, ok)

		var consumerErr *ConsumerError
		require.ErrorAs(t, err, &consumerErr)
		assert.Equal(t, "missing", consumerErr.Queue)
		assert.Equal(t, "get", consumerErr.Op)
		assert.ErrorIs(t, err, errBroker)
	})

	t.Run("canceled context", func(t *testing.T) {
		opener, _ := newMockOpener()
		consumer := NewConsumer(opener)

		canceled, cancel := context.WithCancel(ctx)
		cancel()

		_, _, err := consumer.Get(canceled, "orders")
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 0, opener.opened)
	})
}

// consumeFixture wires a consumer to a delivery stream the test controls
type consumeFixture struct {
	ch         *mockChannel
	ack        *mockAcknowledger
	deliveries chan amqp.Delivery
	consumer   *Consumer
}

func newConsumeFixture(options ...ConsumerOption) *consumeFixture {
	opener, ch := newMockOpener()
	deliveries := make(chan amqp.Delivery, 16)

	ch.On("Qos", 10, 0, false).Return(nil)
	ch.On("ConsumeWithContext", "orders", "test-consumer", false, false, false, false, amqp.Table(nil)).
		Return((<-chan amqp.Delivery)(deliveries), nil)

	options = append([]ConsumerOption{WithConsumerTag("test-consumer")}, options...)
	return &consumeFixture{
		ch:         ch,
		ack:        &mockAcknowledger{},
		deliveries: deliveries,
		consumer:   NewConsumer(opener, options...),
	}
}

func (f *consumeFixture) deliver(tag uint64, headers amqp.Table) {
	f.deliveries <- amqp.Delivery{
		Acknowledger: f.ack,
		DeliveryTag:  tag,
		Headers:      headers,
		Body:         []byte("payload"),
	}
}

func TestConsumerConsume(t *testing.T) {
	t.Run("settles every delivery in order", func(t *testing.T) {
		f := newConsumeFixture()
		f.ack.On("Ack", mock.Anything, false).Return(nil)

		var mu sync.Mutex
		var seen []string
		handler := func(ctx context.Context, pkg contracts.InboundPackage) contracts.AckMode {
			mu.Lock()
			seen = append(seen, pkg.ID())
			mu.Unlock()
			return contracts.Ack{}
		}

		for tag := uint64(1); tag <= 5; tag++ {
			f.deliver(tag, nil)
		}
		close(f.deliveries)

		err := f.consumer.Consume(context.Background(), "orders", handler)
		assert.ErrorIs(t, err, ErrDeliveriesClosed)

		assert.Equal(t, []string{"1", "2", "3", "4", "5"}, seen)
		f.ack.AssertNumberOfCalls(t, "Ack", 5)
	})

	t.Run("returns nil when context is canceled", func(t *testing.T) {
		f := newConsumeFixture()

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() {
			done <- f.consumer.Consume(ctx, "orders", func(context.Context, contracts.InboundPackage) contracts.AckMode {
				return contracts.Ack{}
			})
		}()

		cancel()

		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Fatal("Consume did not return after cancel")
		}
	})

	t.Run("Qos failure stops before consuming", func(t *testing.T) {
		opener, ch := newMockOpener()
		ch.On("Qos", 10, 0, false).Return(errBroker)

		err := NewConsumer(opener).Consume(context.Background(), "orders",
			func(context.Context, contracts.InboundPackage) contracts.AckMode { return contracts.Ack{} })

		assert.ErrorIs(t, err, errBroker)
		ch.AssertNotCalled(t, "ConsumeWithContext", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("nack policy reaches the broker", func(t *testing.T) {
		f := newConsumeFixture()
		f.ack.On("Nack", uint64(1), false, false).Return(nil).Once()

		f.deliver(1, nil)
		close(f.deliveries)

		_ = f.consumer.Consume(context.Background(), "orders", func(context.Context, contracts.InboundPackage) contracts.AckMode {
			return contracts.Nack{Policy: contracts.DontRequeue()}
		})
		f.ack.AssertExpectations(t)
	})

	t.Run("panicking handler is nacked without requeue", func(t *testing.T) {
		f := newConsumeFixture()
		f.ack.On("Nack", uint64(1), false, false).Return(nil).Once()

		f.deliver(1, nil)
		close(f.deliveries)

		_ = f.consumer.Consume(context.Background(), "orders", func(context.Context, contracts.InboundPackage) contracts.AckMode {
			panic("boom")
		})
		f.ack.AssertExpectations(t)
	})

	t.Run("nil ack mode requeues", func(t *testing.T) {
		f := newConsumeFixture()
		f.ack.On("Nack", uint64(1), false, true).Return(nil).Once()

		f.deliver(1, nil)
		close(f.deliveries)

		_ = f.consumer.Consume(context.Background(), "orders", func(context.Context, contracts.InboundPackage) contracts.AckMode {
			return nil
		})
		f.ack.AssertExpectations(t)
	})
}

func TestConsumerRetry(t *testing.T) {
	retryHandler := func(context.Context, contracts.InboundPackage) contracts.AckMode {
		return contracts.Retry{}
	}

	t.Run("republishes with incremented count and acks", func(t *testing.T) {
		f := newConsumeFixture(WithRetryPolicy(reliability.NewFixedDelay(0, 3)))
		f.ack.On("Ack", uint64(1), false).Return(nil).Once()
		f.ch.On("PublishWithContext", "", "orders", false, false,
			mock.MatchedBy(func(msg amqp.Publishing) bool {
				return msg.Headers[RetryCountHeader] == int64(2) &&
					msg.Headers["tenant"] == "acme" &&
					string(msg.Body) == "payload"
			})).Return(nil).Once()

		f.deliver(1, amqp.Table{RetryCountHeader: int32(1), "tenant": "acme"})
		close(f.deliveries)

		_ = f.consumer.Consume(context.Background(), "orders", retryHandler)

		f.ch.AssertExpectations(t)
		f.ack.AssertExpectations(t)
	})

	t.Run("exhausted retries dead-letter the message", func(t *testing.T) {
		f := newConsumeFixture(WithRetryPolicy(reliability.NewFixedDelay(0, 3)))
		f.ack.On("Nack", uint64(1), false, false).Return(nil).Once()

		f.deliver(1, amqp.Table{RetryCountHeader: int64(3)})
		close(f.deliveries)

		_ = f.consumer.Consume(context.Background(), "orders", retryHandler)

		f.ack.AssertExpectations(t)
		f.ch.AssertNotCalled(t, "PublishWithContext", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("republish failure requeues the original", func(t *testing.T) {
		f := newConsumeFixture(WithRetryPolicy(reliability.NewFixedDelay(0, 3)))
		f.ack.On("Nack", uint64(1), false, true).Return(nil).Once()
		f.ch.On("PublishWithContext", "", "orders", false, false, mock.Anything).Return(errBroker)

		f.deliver(1, nil)
		close(f.deliveries)

		_ = f.consumer.Consume(context.Background(), "orders", retryHandler)

		f.ack.AssertExpectations(t)
		f.ack.AssertNotCalled(t, "Ack", mock.Anything, mock.Anything)
	})

	t.Run("delayed retry goes through the delay queue", func(t *testing.T) {
		f := newConsumeFixture(WithRetryPolicy(reliability.NewFixedDelay(500*time.Millisecond, 3)))
		f.ack.On("Ack", uint64(1), false).Return(nil).Once()

		name := expectDelayTopology(f.ch, "orders", 500*time.Millisecond)
		f.ch.On("PublishWithContext", DefaultDelayExchange, name, false, false,
			mock.MatchedBy(func(msg amqp.Publishing) bool {
				return msg.Headers[RetryCountHeader] == int64(1)
			})).Return(nil).Once()

		f.deliver(1, nil)
		close(f.deliveries)

		_ = f.consumer.Consume(context.Background(), "orders", retryHandler)

		f.ch.AssertExpectations(t)
		f.ack.AssertExpectations(t)
	})

	t.Run("delayed retry does not hold the next delivery", func(t *testing.T) {
		f := newConsumeFixture(WithRetryPolicy(reliability.NewFixedDelay(500*time.Millisecond, 3)))
		f.ack.On("Ack", mock.Anything, false).Return(nil)

		expectDelayTopology(f.ch, "orders", 500*time.Millisecond)
		f.ch.On("PublishWithContext", DefaultDelayExchange, mock.Anything, false, false, mock.Anything).Return(nil)

		var mu sync.Mutex
		var retriedAt, nextAt time.Time
		handler := func(ctx context.Context, pkg contracts.InboundPackage) contracts.AckMode {
			mu.Lock()
			defer mu.Unlock()
			if pkg.ID() == "1" {
				retriedAt = time.Now()
				return contracts.Retry{}
			}
			nextAt = time.Now()
			return contracts.Ack{}
		}

		f.deliver(1, nil)
		f.deliver(2, nil)
		close(f.deliveries)

		_ = f.consumer.Consume(context.Background(), "orders", handler)

		require.False(t, nextAt.IsZero())
		assert.Less(t, nextAt.Sub(retriedAt), 250*time.Millisecond)
		f.ack.AssertNumberOfCalls(t, "Ack", 2)
	})

	t.Run("failed delay queue declaration requeues the original", func(t *testing.T) {
		f := newConsumeFixture(WithRetryPolicy(reliability.NewFixedDelay(time.Second, 3)))
		f.ack.On("Nack", uint64(1), false, true).Return(nil).Once()
		f.ch.On("QueueDeclare", mock.Anything, true, false, false, false, mock.Anything).Return(errBroker)

		f.deliver(1, nil)
		close(f.deliveries)

		_ = f.consumer.Consume(context.Background(), "orders", retryHandler)

		f.ack.AssertExpectations(t)
		f.ack.AssertNotCalled(t, "Ack", mock.Anything, mock.Anything)
		f.ch.AssertNotCalled(t, "PublishWithContext", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestRetryCount(t *testing.T) {
	tests := []struct {
		name    string
		headers amqp.Table
		want    int
	}{
		{"missing", nil, 0},
		{"int64", amqp.Table{RetryCountHeader: int64(4)}, 4},
		{"int32", amqp.Table{RetryCountHeader: int32(2)}, 2},
		{"string", amqp.Table{RetryCountHeader: "3"}, 3},
		{"malformed", amqp.Table{RetryCountHeader: "many"}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, retryCount(tt.headers))
		})
	}
}
