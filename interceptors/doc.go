// Package interceptors wraps messaging.Handler functions with cross-cutting behavior.
//
// Built-in interceptors:
//   - LoggingInterceptor: Logs each delivery with its ack decision and timing
//   - FilteringInterceptor: Settles deliveries a MessageFilter rejects without calling the handler
//
// Example usage:
//
//	chain := interceptors.NewInterceptorChain(logger).
//		Add(interceptors.NewLoggingInterceptor(logger)).
//		Add(interceptors.NewFilteringInterceptor(interceptors.HeaderFilter{"tenant": "acme"}, interceptors.SkipAck))
//	err := consumer.Consume(ctx, "orders", chain.Wrap(handler))
package interceptors
