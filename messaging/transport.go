package messaging

import (
	"context"

	"github.com/glimte/amqpkit/contracts"
)

// Producer publishes outbound packages. Implementations document whether ProduceBatch is
// atomic or best-effort.
type Producer interface {
	// ProduceOne publishes a single package
	ProduceOne(ctx context.Context, pkg contracts.OutboundPackage) error

	// ProduceBatch publishes packages in order
	ProduceBatch(ctx context.Context, pkgs []contracts.OutboundPackage) error
}

// Handler decides what happens to one delivered package. It must not acknowledge the package
// itself; the consumer applies the returned mode.
type Handler func(ctx context.Context, pkg contracts.InboundPackage) contracts.AckMode

// Consumer receives inbound packages from named queues
type Consumer interface {
	// Get fetches one package without waiting. ok is false when the queue is empty.
	Get(ctx context.Context, queue string) (pkg contracts.InboundPackage, ok bool, err error)

	// Consume delivers packages from queue to handler until ctx is done or the transport
	// stops delivering
	Consume(ctx context.Context, queue string, handler Handler) error
}
