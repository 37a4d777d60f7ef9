package interceptors

import (
	"context"

	"github.com/glimte/amqpkit/contracts"
	"github.com/glimte/amqpkit/messaging"
)

// MessageFilter defines the interface for message filtering
type MessageFilter interface {
	// ShouldProcess returns true if the message should reach the handler
	ShouldProcess(pkg contracts.InboundPackage) bool
}

// MessageFilterFunc is a function adapter for MessageFilter
type MessageFilterFunc func(pkg contracts.InboundPackage) bool

// ShouldProcess implements MessageFilter
func (f MessageFilterFunc) ShouldProcess(pkg contracts.InboundPackage) bool {
	return f(pkg)
}

// HeaderFilter passes messages whose headers contain every key with the given value
type HeaderFilter map[string]string

// ShouldProcess implements MessageFilter
func (f HeaderFilter) ShouldProcess(pkg contracts.InboundPackage) bool {
	headers := pkg.Headers()
	for k, v := range f {
		if got, ok := headers[k]; !ok || got != v {
			return false
		}
	}
	return true
}

// SkipBehavior defines how a filtered-out message is settled
type SkipBehavior int

const (
	// SkipAck acknowledges the message, dropping it
	SkipAck SkipBehavior = iota
	// SkipRequeue puts the message back for another consumer
	SkipRequeue
	// SkipDeadLetter rejects the message without requeue
	SkipDeadLetter
)

// FilteringInterceptor filters messages based on conditions
type FilteringInterceptor struct {
	filter       MessageFilter
	skipBehavior SkipBehavior
}

// NewFilteringInterceptor creates a new filtering interceptor
func NewFilteringInterceptor(filter MessageFilter, skipBehavior SkipBehavior) *FilteringInterceptor {
	return &FilteringInterceptor{
		filter:       filter,
		skipBehavior: skipBehavior,
	}
}

// Intercept implements Interceptor
func (i *FilteringInterceptor) Intercept(ctx context.Context, pkg contracts.InboundPackage, next messaging.Handler) contracts.AckMode {
	if i.filter.ShouldProcess(pkg) {
		return next(ctx, pkg)
	}

	switch i.skipBehavior {
	case SkipRequeue:
		return contracts.Nack{Policy: contracts.Requeue().WithReason("filtered")}
	case SkipDeadLetter:
		return contracts.Nack{Policy: contracts.DontRequeue().WithReason("filtered")}
	default:
		return contracts.Ack{}
	}
}

// Name implements Interceptor
func (i *FilteringInterceptor) Name() string {
	return "FilteringInterceptor"
}
