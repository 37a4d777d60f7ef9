package interceptors

import (
	"context"
	"log/slog"
	"time"

	"github.com/glimte/amqpkit/contracts"
	"github.com/glimte/amqpkit/messaging"
)

// Interceptor runs around a handler and decides whether and how to call next
type Interceptor interface {
	// Intercept handles pkg, usually by calling next
	Intercept(ctx context.Context, pkg contracts.InboundPackage, next messaging.Handler) contracts.AckMode

	// Name returns the interceptor name for logging and debugging
	Name() string
}

// InterceptorFunc is a function adapter for Interceptor
type InterceptorFunc struct {
	name string
	fn   func(ctx context.Context, pkg contracts.InboundPackage, next messaging.Handler) contracts.AckMode
}

// NewInterceptorFunc creates a new function-based interceptor
func NewInterceptorFunc(name string, fn func(ctx context.Context, pkg contracts.InboundPackage, next messaging.Handler) contracts.AckMode) *InterceptorFunc {
	return &InterceptorFunc{name: name, fn: fn}
}

// Intercept implements Interceptor
func (i *InterceptorFunc) Intercept(ctx context.Context, pkg contracts.InboundPackage, next messaging.Handler) contracts.AckMode {
	return i.fn(ctx, pkg, next)
}

// Name implements Interceptor
func (i *InterceptorFunc) Name() string {
	return i.name
}

// InterceptorChain manages a chain of interceptors. The first one added runs outermost.
type InterceptorChain struct {
	interceptors []Interceptor
	logger       *slog.Logger
}

// NewInterceptorChain creates a new interceptor chain
func NewInterceptorChain(logger *slog.Logger) *InterceptorChain {
	if logger == nil {
		logger = slog.Default()
	}

	return &InterceptorChain{
		interceptors: make([]Interceptor, 0),
		logger:       logger,
	}
}

// Add adds an interceptor to the chain
func (c *InterceptorChain) Add(interceptor Interceptor) *InterceptorChain {
	c.interceptors = append(c.interceptors, interceptor)
	return c
}

// Wrap returns final wrapped in every interceptor of the chain
func (c *InterceptorChain) Wrap(final messaging.Handler) messaging.Handler {
	handler := final
	for i := len(c.interceptors) - 1; i >= 0; i-- {
		interceptor := c.interceptors[i]
		next := handler
		handler = func(ctx context.Context, pkg contracts.InboundPackage) contracts.AckMode {
			return interceptor.Intercept(ctx, pkg, next)
		}
	}

	names := make([]string, len(c.interceptors))
	for i, interceptor := range c.interceptors {
		names[i] = interceptor.Name()
	}
	c.logger.Debug("interceptor chain built", "interceptors", names)

	return handler
}

// LoggingInterceptor logs message processing
type LoggingInterceptor struct {
	logger *slog.Logger
}

// NewLoggingInterceptor creates a new logging interceptor
func NewLoggingInterceptor(logger *slog.Logger) *LoggingInterceptor {
	if logger == nil {
		logger = slog.Default()
	}

	return &LoggingInterceptor{logger: logger}
}

// Intercept implements Interceptor
func (i *LoggingInterceptor) Intercept(ctx context.Context, pkg contracts.InboundPackage, next messaging.Handler) contracts.AckMode {
	start := time.Now()

	i.logger.Debug("processing message",
		"messageId", pkg.ID(),
		"size", len(pkg.Content()),
	)

	mode := next(ctx, pkg)
	duration := time.Since(start)

	if _, ok := mode.(contracts.Ack); ok {
		i.logger.Info("message processed",
			"messageId", pkg.ID(),
			"duration", duration,
		)
	} else {
		i.logger.Warn("message not acknowledged",
			"messageId", pkg.ID(),
			"mode", mode,
			"duration", duration,
		)
	}

	return mode
}

// Name implements Interceptor
func (i *LoggingInterceptor) Name() string {
	return "LoggingInterceptor"
}
