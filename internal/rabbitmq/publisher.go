package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/glimte/amqpkit/contracts"
	"github.com/glimte/amqpkit/internal/reliability"
	"github.com/glimte/amqpkit/messaging"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// MessageIDHeader lets a caller choose the message id of an outbound package. Packages
// without it get a random UUID.
const MessageIDHeader = "message-id"

// Publisher implements messaging.Producer on RabbitMQ.
//
// ProduceBatch is atomic: the batch is published inside an AMQP transaction and either
// every package is committed or none is.
type Publisher struct {
	opener         ChannelOpener
	confirms       bool
	confirmTimeout time.Duration
	publishTimeout time.Duration
	breaker        *reliability.CircuitBreaker
	logger         *slog.Logger
}

// PublisherOption configures the publisher
type PublisherOption func(*Publisher)

// WithConfirmMode makes ProduceOne wait for a broker confirmation
func WithConfirmMode(enabled bool) PublisherOption {
	return func(p *Publisher) {
		p.confirms = enabled
	}
}

// WithConfirmTimeout sets the confirmation timeout
func WithConfirmTimeout(timeout time.Duration) PublisherOption {
	return func(p *Publisher) {
		p.confirmTimeout = timeout
	}
}

// WithPublishTimeout bounds a publish call whose context has no deadline
func WithPublishTimeout(timeout time.Duration) PublisherOption {
	return func(p *Publisher) {
		p.publishTimeout = timeout
	}
}

// WithCircuitBreaker fails publishes fast while the broker keeps failing
func WithCircuitBreaker(breaker *reliability.CircuitBreaker) PublisherOption {
	return func(p *Publisher) {
		p.breaker = breaker
	}
}

// WithPublisherLogger sets the logger
func WithPublisherLogger(logger *slog.Logger) PublisherOption {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// NewPublisher creates a new publisher
func NewPublisher(opener ChannelOpener, options ...PublisherOption) *Publisher {
	p := &Publisher{
		opener:         opener,
		confirms:       false,
		confirmTimeout: 5 * time.Second,
		publishTimeout: 10 * time.Second,
		logger:         slog.Default(),
	}

	for _, opt := range options {
		opt(p)
	}

	return p
}

var _ messaging.Producer = (*Publisher)(nil)

// ProduceOne publishes pkg, waiting for the broker confirmation in confirm mode
func (p *Publisher) ProduceOne(ctx context.Context, pkg contracts.OutboundPackage) error {
	return p.guard(ctx, pkg, func() error {
		return p.produceOne(ctx, pkg)
	})
}

func (p *Publisher) produceOne(ctx context.Context, pkg contracts.OutboundPackage) error {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	ch, err := p.opener.Channel()
	if err != nil {
		return p.publishError(pkg, err)
	}
	defer ch.Close()

	if !p.confirms {
		if err := p.publish(ctx, ch, pkg); err != nil {
			return p.publishError(pkg, err)
		}
		return nil
	}

	if err := ch.Confirm(false); err != nil {
		return p.publishError(pkg, fmt.Errorf("failed to enable confirms: %w", err))
	}
	confirms := ch.NotifyPublish(make(chan amqp.Confirmation, 1))
	returns := ch.NotifyReturn(make(chan amqp.Return, 1))

	if err := p.publish(ctx, ch, pkg); err != nil {
		return p.publishError(pkg, err)
	}

	if err := p.awaitConfirm(ctx, confirms, returns); err != nil {
		return p.publishError(pkg, err)
	}
	return nil
}

// ProduceBatch publishes pkgs in order inside one transaction. The first failure rolls the
// transaction back and is returned.
func (p *Publisher) ProduceBatch(ctx context.Context, pkgs []contracts.OutboundPackage) error {
	if len(pkgs) == 0 {
		return nil
	}

	return p.guard(ctx, pkgs[0], func() error {
		return p.produceBatch(ctx, pkgs)
	})
}

func (p *Publisher) produceBatch(ctx context.Context, pkgs []contracts.OutboundPackage) error {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	ch, err := p.opener.Channel()
	if err != nil {
		return p.publishError(pkgs[0], err)
	}
	defer ch.Close()

	if err := ch.Tx(); err != nil {
		return p.publishError(pkgs[0], fmt.Errorf("failed to start transaction: %w", err))
	}

	for i, pkg := range pkgs {
		if err := p.publish(ctx, ch, pkg); err != nil {
			if rbErr := ch.TxRollback(); rbErr != nil {
				p.logger.Error("failed to roll back batch", "error", rbErr)
			}
			return p.publishError(pkg, fmt.Errorf("message %d: %w", i, err))
		}
	}

	if err := ch.TxCommit(); err != nil {
		return p.publishError(pkgs[len(pkgs)-1], fmt.Errorf("failed to commit batch: %w", err))
	}

	p.logger.Debug("batch published", "count", len(pkgs))
	return nil
}

// guard runs fn through the circuit breaker when one is configured. A returned mandatory
// message is a routing problem of the caller, so the breaker sees it as a healthy broker.
func (p *Publisher) guard(ctx context.Context, pkg contracts.OutboundPackage, fn func() error) error {
	if p.breaker == nil {
		return fn()
	}

	var returned error
	err := p.breaker.Execute(ctx, func() error {
		err := fn()
		if errors.Is(err, ErrMessageReturned) {
			returned = err
			return nil
		}
		return err
	})
	if returned != nil {
		return returned
	}
	if errors.Is(err, reliability.ErrCircuitOpen) {
		return p.publishError(pkg, err)
	}
	return err
}

func (p *Publisher) publish(ctx context.Context, ch Channel, pkg contracts.OutboundPackage) error {
	return ch.PublishWithContext(
		ctx,
		pkg.Destination.Exchange,
		pkg.Destination.RoutingKey,
		pkg.PublishFlags.Mandatory,
		pkg.PublishFlags.Immediate,
		toPublishing(pkg),
	)
}

func (p *Publisher) awaitConfirm(ctx context.Context, confirms <-chan amqp.Confirmation, returns <-chan amqp.Return) error {
	select {
	case confirm := <-confirms:
		if !confirm.Ack {
			return ErrPublishNotConfirmed
		}
		// A mandatory message that could not be routed is returned before it is confirmed
		select {
		case ret := <-returns:
			return fmt.Errorf("%w: %s", ErrMessageReturned, ret.ReplyText)
		default:
			return nil
		}

	case ret := <-returns:
		return fmt.Errorf("%w: %s", ErrMessageReturned, ret.ReplyText)

	case <-time.After(p.confirmTimeout):
		return ErrConfirmTimeout

	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Publisher) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, p.publishTimeout)
}

func (p *Publisher) publishError(pkg contracts.OutboundPackage, err error) error {
	return &PublishError{
		Exchange:   pkg.Destination.Exchange,
		RoutingKey: pkg.Destination.RoutingKey,
		Mandatory:  pkg.PublishFlags.Mandatory,
		Err:        err,
		Timestamp:  time.Now(),
	}
}

// toPublishing converts an outbound package to its AMQP form
func toPublishing(pkg contracts.OutboundPackage) amqp.Publishing {
	messageID := pkg.Headers[MessageIDHeader]
	if messageID == "" {
		messageID = uuid.New().String()
	}

	deliveryMode := amqp.Transient
	if pkg.PublishFlags.Persist {
		deliveryMode = amqp.Persistent
	}

	return amqp.Publishing{
		Headers:      stringTable(pkg.Headers),
		DeliveryMode: deliveryMode,
		MessageId:    messageID,
		Timestamp:    time.Now(),
		Body:         pkg.Content,
	}
}
