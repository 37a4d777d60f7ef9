// Copyright 2024 Mmate Contributors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package amqpkit

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/glimte/amqpkit/config"
	"github.com/glimte/amqpkit/contracts"
	"github.com/glimte/amqpkit/messaging"
	"github.com/glimte/amqpkit/routing"
	rabbitmqTransport "github.com/glimte/amqpkit/transports/rabbitmq"
)

// Client provides the main entry point for amqpkit
type Client struct {
	transport *rabbitmqTransport.Transport
	logger    *slog.Logger
}

// NewClient creates a new client on the RabbitMQ broker at connectionString
func NewClient(ctx context.Context, connectionString string) (*Client, error) {
	return NewClientWithOptions(ctx, connectionString, WithDefaultLogger())
}

// NewClientWithOptions creates a new client with options. A topology given with
// WithTopology is applied before the client is returned.
func NewClientWithOptions(ctx context.Context, connectionString string, options ...ClientOption) (*Client, error) {
	cfg := &clientConfig{
		logger: slog.Default(),
	}

	for _, opt := range options {
		opt(cfg)
	}

	transport, err := rabbitmqTransport.NewTransport(ctx, connectionString, cfg.transportOptions()...)
	if err != nil {
		return nil, fmt.Errorf("failed to create transport: %w", err)
	}

	client := &Client{
		transport: transport,
		logger:    cfg.logger,
	}

	if cfg.topology != nil {
		if err := client.ApplyTopology(ctx, cfg.topology); err != nil {
			transport.Close()
			return nil, err
		}
	}

	return client, nil
}

// Configurator returns the binding configurator
func (c *Client) Configurator() *routing.Configurator {
	return c.transport.Configurator()
}

// Producer returns the message producer
func (c *Client) Producer() messaging.Producer {
	return c.transport.Producer()
}

// Consumer returns the message consumer
func (c *Client) Consumer() messaging.Consumer {
	return c.transport.Consumer()
}

// Transport returns the underlying transport
func (c *Client) Transport() *rabbitmqTransport.Transport {
	return c.transport
}

// ApplyTopology declares and binds everything described by topology
func (c *Client) ApplyTopology(ctx context.Context, topology *config.Topology) error {
	if err := topology.Apply(ctx, c.transport.Configurator()); err != nil {
		return fmt.Errorf("failed to apply topology: %w", err)
	}
	c.logger.Info("topology applied",
		"exchanges", len(topology.Exchanges),
		"queues", len(topology.Queues))
	return nil
}

// Publish sends body to exchange with routingKey
func (c *Client) Publish(ctx context.Context, exchange, routingKey string, body []byte, flags contracts.PublishFlags) error {
	pkg := contracts.NewOutboundPackage(body, contracts.NewDestination(exchange, routingKey))
	pkg.PublishFlags = flags
	return c.transport.Producer().ProduceOne(ctx, pkg)
}

// Consume blocks delivering messages from queue to handler until ctx is done
func (c *Client) Consume(ctx context.Context, queue string, handler messaging.Handler) error {
	return c.transport.Consumer().Consume(ctx, queue, handler)
}

// Close closes all resources
func (c *Client) Close() error {
	return c.transport.Close()
}

// clientConfig holds client configuration
type clientConfig struct {
	logger    *slog.Logger
	topology  *config.Topology
	transport []rabbitmqTransport.TransportOption
}

func (cfg *clientConfig) transportOptions() []rabbitmqTransport.TransportOption {
	return append([]rabbitmqTransport.TransportOption{rabbitmqTransport.WithLogger(cfg.logger)}, cfg.transport...)
}

// ClientOption configures the client
type ClientOption func(*clientConfig)

// WithLogger sets the logger for all components
func WithLogger(logger *slog.Logger) ClientOption {
	return func(cfg *clientConfig) {
		cfg.logger = logger
	}
}

// WithDefaultLogger uses the default logger
func WithDefaultLogger() ClientOption {
	return func(cfg *clientConfig) {
		cfg.logger = slog.Default()
	}
}

// WithTopology applies topology when the client connects
func WithTopology(topology *config.Topology) ClientOption {
	return func(cfg *clientConfig) {
		cfg.topology = topology
	}
}

// WithTransportOptions passes options through to the RabbitMQ transport
func WithTransportOptions(opts ...rabbitmqTransport.TransportOption) ClientOption {
	return func(cfg *clientConfig) {
		cfg.transport = append(cfg.transport, opts...)
	}
}
