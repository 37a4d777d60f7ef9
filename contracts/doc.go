// Package contracts defines the value types shared by topology declaration and message
// transport.
//
// Broker objects:
//   - Exchange and ExchangeType: a declared exchange and its kind (direct, topic, fanout,
//     headers with a match mapping, x-delayed-message)
//   - Queue: a declared queue
//   - QueueBind and ExchangeBind: binding requests from a queue or an exchange to a target
//     exchange
//
// Message envelopes:
//   - Destination and PublishFlags: where and how an OutboundPackage is published
//   - InboundPackage: a delivered message together with its acknowledgment operations
//   - AckMode and NackPolicy: a consumer's decision for one delivered message
//
// Constructors fix a safe default configuration (durable, non-exclusive, non-auto-delete) and
// leave the public fields open for explicit override before use. None of the types hold a
// connection; they are scoped to the call that uses them.
package contracts
