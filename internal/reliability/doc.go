// Package reliability provides the redelivery policies applied when a consumer handler
// answers with contracts.Retry, and the circuit breaker that guards publishing.
//
// A policy is consulted with the number of redeliveries already made:
//   - ExponentialBackoff: delay grows by Factor up to Cap, spread by Jitter
//   - FixedDelay: the same delay for every redelivery
//
// Once ShouldRetry returns false the transport gives up and dead-letters the message.
package reliability
