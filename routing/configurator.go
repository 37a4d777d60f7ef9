package routing

import (
	"context"
	"log/slog"

	"github.com/glimte/amqpkit/contracts"
)

// Configurator applies binding graphs through a single Operator
type Configurator struct {
	operator Operator
	logger   *slog.Logger
}

// ConfiguratorOption configures a Configurator
type ConfiguratorOption func(*Configurator)

// WithLogger sets the logger used for step tracing
func WithLogger(logger *slog.Logger) ConfiguratorOption {
	return func(c *Configurator) {
		c.logger = logger
	}
}

// NewConfigurator creates a configurator that drives operator
func NewConfigurator(operator Operator, options ...ConfiguratorOption) *Configurator {
	c := &Configurator{
		operator: operator,
		logger:   slog.Default(),
	}

	for _, opt := range options {
		opt(c)
	}

	return c
}

// BindQueue declares queue and then, in order, declares each binding's exchange and binds
// queue to it. It returns the first operator error as is; bindings made before the failure
// are left in place.
func (c *Configurator) BindQueue(ctx context.Context, queue contracts.Queue, bindings []contracts.QueueBind) error {
	if err := c.operator.DeclareQueue(ctx, queue); err != nil {
		return err
	}

	for _, binding := range bindings {
		if err := c.operator.DeclareExchange(ctx, binding.Exchange); err != nil {
			return err
		}

		args := BindArgs{
			RoutingKey: binding.RoutingKey,
			NoWait:     binding.NoWait,
			Arguments:  binding.Arguments,
		}
		if err := c.operator.BindQueue(ctx, queue, binding.Exchange, args); err != nil {
			return err
		}

		c.logger.Debug("queue bound",
			"queue", queue.Name,
			"exchange", binding.Exchange.Name,
			"routingKey", binding.RoutingKey)
	}

	return nil
}

// BindExchange declares exchange and then, in order, declares each binding's exchange and
// binds exchange to it. Failure handling is the same as BindQueue.
func (c *Configurator) BindExchange(ctx context.Context, exchange contracts.Exchange, bindings []contracts.ExchangeBind) error {
	if err := c.operator.DeclareExchange(ctx, exchange); err != nil {
		return err
	}

	for _, binding := range bindings {
		if err := c.operator.DeclareExchange(ctx, binding.Exchange); err != nil {
			return err
		}

		args := BindArgs{
			RoutingKey: binding.RoutingKey,
			NoWait:     binding.NoWait,
			Arguments:  binding.Arguments,
		}
		if err := c.operator.BindExchange(ctx, exchange, binding.Exchange, args); err != nil {
			return err
		}

		c.logger.Debug("exchange bound",
			"source", exchange.Name,
			"destination", binding.Exchange.Name,
			"routingKey", binding.RoutingKey)
	}

	return nil
}
