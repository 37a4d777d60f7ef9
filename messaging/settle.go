package messaging

import (
	"errors"

	"github.com/glimte/amqpkit/contracts"
)

// ErrUnknownAckMode is returned by Settle for modes outside Ack, Nack and Retry
var ErrUnknownAckMode = errors.New("messaging: unknown ack mode")

// RetryFunc schedules pkg for redelivery and settles the original delivery
type RetryFunc func(pkg contracts.InboundPackage) error

// Settle applies mode to pkg with a single acknowledgment call. Retry is delegated to retry;
// without one the package is nacked with requeue.
func Settle(pkg contracts.InboundPackage, mode contracts.AckMode, retry RetryFunc) error {
	switch m := mode.(type) {
	case contracts.Ack:
		return pkg.Ack()
	case contracts.Nack:
		return pkg.Nack(m.Policy)
	case contracts.Retry:
		if retry == nil {
			return pkg.Nack(contracts.Requeue().WithReason("retry"))
		}
		return retry(pkg)
	}
	return ErrUnknownAckMode
}
