package rabbitmq

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/glimte/amqpkit/contracts"
	"github.com/glimte/amqpkit/routing"
)

// delayedTypeArgument names the exchange type a delayed exchange routes as once the delay
// has elapsed
const delayedTypeArgument = "x-delayed-type"

// TopologyOperator implements routing.Operator on RabbitMQ. Every call runs on its own
// channel: a failed declaration closes the channel it ran on.
type TopologyOperator struct {
	opener ChannelOpener
	logger *slog.Logger
}

// TopologyOption configures the TopologyOperator
type TopologyOption func(*TopologyOperator)

// WithTopologyLogger sets the logger
func WithTopologyLogger(logger *slog.Logger) TopologyOption {
	return func(o *TopologyOperator) {
		o.logger = logger
	}
}

// NewTopologyOperator creates an operator that opens channels through opener
func NewTopologyOperator(opener ChannelOpener, options ...TopologyOption) *TopologyOperator {
	o := &TopologyOperator{
		opener: opener,
		logger: slog.Default(),
	}

	for _, opt := range options {
		opt(o)
	}

	return o
}

var _ routing.Operator = (*TopologyOperator)(nil)

// DeclareQueue declares queue, or checks that it exists when queue.Passive is set
func (o *TopologyOperator) DeclareQueue(ctx context.Context, queue contracts.Queue) error {
	return o.execute(ctx, "declare", "queue", queue.Name, func(ch Channel) error {
		declare := ch.QueueDeclare
		if queue.Passive {
			declare = ch.QueueDeclarePassive
		}
		_, err := declare(
			queue.Name,
			queue.Durable,
			queue.AutoDelete,
			queue.Exclusive,
			false, // no-wait
			declareTable(queue.Arguments),
		)
		return err
	})
}

// DeclareExchange declares exchange, or checks that it exists when exchange.Passive is set
func (o *TopologyOperator) DeclareExchange(ctx context.Context, exchange contracts.Exchange) error {
	if exchange.Type == nil {
		return o.topologyError("declare", "exchange", exchange.Name,
			fmt.Errorf("%w: exchange type is required", ErrInvalidConfiguration))
	}

	return o.execute(ctx, "declare", "exchange", exchange.Name, func(ch Channel) error {
		declare := ch.ExchangeDeclare
		if exchange.Passive {
			declare = ch.ExchangeDeclarePassive
		}
		return declare(
			exchange.Name,
			exchange.Type.String(),
			exchange.Durable,
			exchange.AutoDelete,
			exchange.Internal,
			exchange.NoWait,
			declareTable(exchangeArguments(exchange)),
		)
	})
}

// BindQueue binds queue to exchange. For a headers exchange its match mapping is merged
// under the bind arguments.
func (o *TopologyOperator) BindQueue(ctx context.Context, queue contracts.Queue, exchange contracts.Exchange, args routing.BindArgs) error {
	name := fmt.Sprintf("%s->%s", exchange.Name, queue.Name)
	return o.execute(ctx, "create", "binding", name, func(ch Channel) error {
		return ch.QueueBind(
			queue.Name,
			args.RoutingKey,
			exchange.Name,
			args.NoWait,
			stringTable(bindArguments(exchange, args)),
		)
	})
}

// BindExchange routes messages published to source on to destination
func (o *TopologyOperator) BindExchange(ctx context.Context, source, destination contracts.Exchange, args routing.BindArgs) error {
	name := fmt.Sprintf("%s->%s", source.Name, destination.Name)
	return o.execute(ctx, "create", "binding", name, func(ch Channel) error {
		return ch.ExchangeBind(
			destination.Name,
			args.RoutingKey,
			source.Name,
			args.NoWait,
			stringTable(bindArguments(source, args)),
		)
	})
}

// execute runs fn on a fresh channel and wraps its failure in a TopologyError
func (o *TopologyOperator) execute(ctx context.Context, op, component, name string, fn func(Channel) error) error {
	if err := ctx.Err(); err != nil {
		return o.topologyError(op, component, name, err)
	}

	ch, err := o.opener.Channel()
	if err != nil {
		return o.topologyError(op, component, name, err)
	}
	defer ch.Close()

	if err := fn(ch); err != nil {
		return o.topologyError(op, component, name, err)
	}

	o.logger.Debug("topology updated", "op", op, "component", component, "name", name)
	return nil
}

func (o *TopologyOperator) topologyError(op, component, name string, err error) error {
	return &TopologyError{
		Component: component,
		Name:      name,
		Op:        op,
		Err:       err,
		Timestamp: time.Now(),
	}
}

// exchangeArguments adds the arguments an exchange type requires: a delayed exchange
// routes as direct unless told otherwise
func exchangeArguments(exchange contracts.Exchange) map[string]string {
	if _, ok := exchange.Type.(contracts.DelayedExchange); ok {
		if _, set := exchange.Arguments[delayedTypeArgument]; !set {
			return mergeArguments(exchange.Arguments, map[string]string{delayedTypeArgument: "direct"})
		}
	}
	return exchange.Arguments
}

// bindArguments returns the bind arguments, on top of the match mapping when the routing
// exchange is a headers exchange
func bindArguments(exchange contracts.Exchange, args routing.BindArgs) map[string]string {
	if headers, ok := exchange.Type.(contracts.HeadersExchange); ok && len(headers.Match) > 0 {
		return mergeArguments(headers.Match, args.Arguments)
	}
	return args.Arguments
}
