// Package messaging defines the transport capabilities used to move message envelopes.
//
// A Producer publishes contracts.OutboundPackage values. A Consumer hands delivered
// contracts.InboundPackage values to a Handler, which answers with a contracts.AckMode; the
// consumer must apply that decision exactly once per delivery. Settle implements that
// mapping for transports.
//
// This package holds no broker code. The RabbitMQ implementation lives in
// transports/rabbitmq.
package messaging
