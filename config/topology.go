package config

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/glimte/amqpkit/contracts"
	"github.com/glimte/amqpkit/routing"
	"gopkg.in/yaml.v3"
)

var (
	// ErrMissingName is returned for an exchange or queue entry without a name
	ErrMissingName = errors.New("config: name is required")

	// ErrNestedBindings is returned when a binding's target exchange carries bindings of
	// its own. Bind that exchange from the top-level exchanges list instead.
	ErrNestedBindings = errors.New("config: binding target cannot declare bindings")
)

// Topology is a file-level description of exchanges and queues with their bindings
type Topology struct {
	Exchanges []ExchangeSpec `yaml:"exchanges"`
	Queues    []QueueSpec    `yaml:"queues"`
}

// ExchangeSpec describes an exchange. Type is one of direct, topic, fanout, headers or
// x-delayed-message; Match only applies to headers exchanges.
type ExchangeSpec struct {
	Name       string            `yaml:"name"`
	Type       string            `yaml:"type"`
	Match      map[string]string `yaml:"match,omitempty"`
	Passive    bool              `yaml:"passive,omitempty"`
	Durable    *bool             `yaml:"durable,omitempty"`
	AutoDelete bool              `yaml:"auto_delete,omitempty"`
	Internal   bool              `yaml:"internal,omitempty"`
	NoWait     bool              `yaml:"no_wait,omitempty"`
	Arguments  map[string]string `yaml:"arguments,omitempty"`
	Bindings   []BindingSpec     `yaml:"bindings,omitempty"`
}

// QueueSpec describes a queue
type QueueSpec struct {
	Name       string            `yaml:"name"`
	Passive    bool              `yaml:"passive,omitempty"`
	Durable    *bool             `yaml:"durable,omitempty"`
	Exclusive  bool              `yaml:"exclusive,omitempty"`
	AutoDelete bool              `yaml:"auto_delete,omitempty"`
	Arguments  map[string]string `yaml:"arguments,omitempty"`
	Bindings   []BindingSpec     `yaml:"bindings,omitempty"`
}

// BindingSpec binds the enclosing entity to Exchange
type BindingSpec struct {
	Exchange   ExchangeSpec      `yaml:"exchange"`
	RoutingKey string            `yaml:"routing_key"`
	NoWait     bool              `yaml:"no_wait,omitempty"`
	Arguments  map[string]string `yaml:"arguments,omitempty"`
}

// Parse decodes a topology document
func Parse(r io.Reader) (*Topology, error) {
	var topology Topology

	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&topology); err != nil {
		if errors.Is(err, io.EOF) {
			return &topology, nil
		}
		return nil, fmt.Errorf("failed to parse topology: %w", err)
	}

	if err := topology.validate(); err != nil {
		return nil, err
	}
	return &topology, nil
}

// Load reads and parses the topology file at path
func Load(path string) (*Topology, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read topology: %w", err)
	}
	return Parse(bytes.NewReader(data))
}

// Apply binds every exchange and then every queue through configurator, in file order. It
// stops at the first failure.
func (t *Topology) Apply(ctx context.Context, configurator *routing.Configurator) error {
	for _, spec := range t.Exchanges {
		exchange, err := spec.Exchange()
		if err != nil {
			return err
		}
		bindings, err := exchangeBindings(spec.Bindings)
		if err != nil {
			return fmt.Errorf("exchange %s: %w", spec.Name, err)
		}
		if err := configurator.BindExchange(ctx, exchange, bindings); err != nil {
			return fmt.Errorf("exchange %s: %w", spec.Name, err)
		}
	}

	for _, spec := range t.Queues {
		bindings, err := queueBindings(spec.Bindings)
		if err != nil {
			return fmt.Errorf("queue %s: %w", spec.Name, err)
		}
		if err := configurator.BindQueue(ctx, spec.Queue(), bindings); err != nil {
			return fmt.Errorf("queue %s: %w", spec.Name, err)
		}
	}

	return nil
}

// Exchange converts the spec to a contracts.Exchange
func (s ExchangeSpec) Exchange() (contracts.Exchange, error) {
	kind, err := contracts.ParseExchangeType(s.Type)
	if err != nil {
		return contracts.Exchange{}, fmt.Errorf("exchange %s: %w", s.Name, err)
	}
	if headers, ok := kind.(contracts.HeadersExchange); ok && len(s.Match) > 0 {
		headers.Match = s.Match
		kind = headers
	}

	exchange := contracts.NewExchange(s.Name, kind)
	exchange.Passive = s.Passive
	exchange.Durable = boolOr(s.Durable, true)
	exchange.AutoDelete = s.AutoDelete
	exchange.Internal = s.Internal
	exchange.NoWait = s.NoWait
	for k, v := range s.Arguments {
		exchange.Arguments[k] = v
	}
	return exchange, nil
}

// Queue converts the spec to a contracts.Queue
func (s QueueSpec) Queue() contracts.Queue {
	queue := contracts.NewQueue(s.Name)
	queue.Passive = s.Passive
	queue.Durable = boolOr(s.Durable, true)
	queue.Exclusive = s.Exclusive
	queue.AutoDelete = s.AutoDelete
	for k, v := range s.Arguments {
		queue.Arguments[k] = v
	}
	return queue
}

func queueBindings(specs []BindingSpec) ([]contracts.QueueBind, error) {
	bindings := make([]contracts.QueueBind, 0, len(specs))
	for _, spec := range specs {
		exchange, err := spec.Exchange.Exchange()
		if err != nil {
			return nil, err
		}
		binding := contracts.NewQueueBind(exchange, spec.RoutingKey)
		binding.NoWait = spec.NoWait
		for k, v := range spec.Arguments {
			binding.Arguments[k] = v
		}
		bindings = append(bindings, binding)
	}
	return bindings, nil
}

func exchangeBindings(specs []BindingSpec) ([]contracts.ExchangeBind, error) {
	bindings := make([]contracts.ExchangeBind, 0, len(specs))
	for _, spec := range specs {
		exchange, err := spec.Exchange.Exchange()
		if err != nil {
			return nil, err
		}
		binding := contracts.NewExchangeBind(exchange, spec.RoutingKey)
		binding.NoWait = spec.NoWait
		for k, v := range spec.Arguments {
			binding.Arguments[k] = v
		}
		bindings = append(bindings, binding)
	}
	return bindings, nil
}

func (t *Topology) validate() error {
	for i, spec := range t.Exchanges {
		if err := spec.validate(); err != nil {
			return fmt.Errorf("exchanges[%d]: %w", i, err)
		}
	}
	for i, spec := range t.Queues {
		if spec.Name == "" {
			return fmt.Errorf("queues[%d]: %w", i, ErrMissingName)
		}
		for j, binding := range spec.Bindings {
			if err := binding.validate(); err != nil {
				return fmt.Errorf("queues[%d].bindings[%d]: %w", i, j, err)
			}
		}
	}
	return nil
}

func (s ExchangeSpec) validate() error {
	if s.Name == "" {
		return ErrMissingName
	}
	if _, err := contracts.ParseExchangeType(s.Type); err != nil {
		return fmt.Errorf("exchange %s: %w", s.Name, err)
	}
	for j, binding := range s.Bindings {
		if err := binding.validate(); err != nil {
			return fmt.Errorf("bindings[%d]: %w", j, err)
		}
	}
	return nil
}

func (b BindingSpec) validate() error {
	if len(b.Exchange.Bindings) > 0 {
		return fmt.Errorf("exchange %s: %w", b.Exchange.Name, ErrNestedBindings)
	}
	return b.Exchange.validate()
}

func boolOr(v *bool, fallback bool) bool {
	if v == nil {
		return fallback
	}
	return *v
}
