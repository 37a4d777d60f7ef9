// Package rabbitmq is the RabbitMQ transport behind the amqpkit routing and messaging
// contracts.
//
// This package includes:
//   - ConnectionManager: Dials and owns the AMQP connection and opens channels
//   - TopologyOperator: Declares exchanges and queues and creates bindings (routing.Operator)
//   - Publisher: Publishes outbound packages, one at a time or as a transactional batch
//   - Consumer: Pulls single messages or consumes continuously on a worker pool
//
// Every unit of work opens its own channel and closes it when done. Failures are reported as
// *TopologyError, *PublishError, *ConsumerError or *ConnectionError, all of which unwrap to
// the underlying broker error.
package rabbitmq
