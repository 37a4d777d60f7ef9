package routing

import (
	"context"

	"github.com/glimte/amqpkit/contracts"
)

// BindArgs carries the per-call options of a single bind
type BindArgs struct {
	RoutingKey string
	NoWait     bool
	Arguments  map[string]string
}

// NewBindArgs creates bind arguments for routingKey with no-wait off and no arguments
func NewBindArgs(routingKey string) BindArgs {
	return BindArgs{
		RoutingKey: routingKey,
		NoWait:     false,
		Arguments:  map[string]string{},
	}
}

// Operator performs declare and bind calls against a broker. Implementations live with the
// transport; a Configurator only relies on this contract.
type Operator interface {
	// DeclareQueue asserts that queue exists with the given properties
	DeclareQueue(ctx context.Context, queue contracts.Queue) error

	// DeclareExchange asserts that exchange exists with the given properties
	DeclareExchange(ctx context.Context, exchange contracts.Exchange) error

	// BindQueue binds a declared queue to a declared exchange
	BindQueue(ctx context.Context, queue contracts.Queue, exchange contracts.Exchange, args BindArgs) error

	// BindExchange routes messages from source to destination
	BindExchange(ctx context.Context, source, destination contracts.Exchange, args BindArgs) error
}
