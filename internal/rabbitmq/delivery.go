package rabbitmq

import (
	"log/slog"
	"strconv"
	"sync/atomic"

	"github.com/glimte/amqpkit/contracts"
	amqp "github.com/rabbitmq/amqp091-go"
)

// inboundDelivery adapts an amqp.Delivery to contracts.InboundPackage. The first
// acknowledgment call settles it; later calls return contracts.ErrAlreadySettled.
type inboundDelivery struct {
	delivery  amqp.Delivery
	settled   atomic.Bool
	logger    *slog.Logger
	onSettled func()
}

var _ contracts.InboundPackage = (*inboundDelivery)(nil)

func newInboundDelivery(delivery amqp.Delivery, logger *slog.Logger, onSettled func()) *inboundDelivery {
	return &inboundDelivery{
		delivery:  delivery,
		logger:    logger,
		onSettled: onSettled,
	}
}

// ID returns the message id, or the delivery tag when the publisher set none
func (d *inboundDelivery) ID() string {
	if d.delivery.MessageId != "" {
		return d.delivery.MessageId
	}
	return strconv.FormatUint(d.delivery.DeliveryTag, 10)
}

func (d *inboundDelivery) Headers() map[string]string {
	return tableStrings(d.delivery.Headers)
}

func (d *inboundDelivery) Content() []byte {
	return d.delivery.Body
}

func (d *inboundDelivery) Ack() error {
	return d.settle(func() error {
		return d.delivery.Ack(false)
	})
}

func (d *inboundDelivery) Nack(policy contracts.NackPolicy) error {
	d.logPolicy("nack", policy)
	return d.settle(func() error {
		return d.delivery.Nack(false, policy.ShouldRequeue())
	})
}

func (d *inboundDelivery) Reject(policy contracts.NackPolicy) error {
	d.logPolicy("reject", policy)
	return d.settle(func() error {
		return d.delivery.Reject(policy.ShouldRequeue())
	})
}

func (d *inboundDelivery) settle(fn func() error) error {
	if !d.settled.CompareAndSwap(false, true) {
		return contracts.ErrAlreadySettled
	}
	if d.onSettled != nil {
		defer d.onSettled()
	}
	return fn()
}

func (d *inboundDelivery) logPolicy(op string, policy contracts.NackPolicy) {
	reason, ok := policy.Reason()
	if !ok {
		return
	}
	d.logger.Debug("negative acknowledgment",
		"op", op,
		"messageId", d.ID(),
		"requeue", policy.ShouldRequeue(),
		"reason", reason)
}
