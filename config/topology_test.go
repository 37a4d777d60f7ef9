package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/glimte/amqpkit/contracts"
	"github.com/glimte/amqpkit/routing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleTopology = `
exchanges:
  - name: events
    type: topic
    bindings:
      - exchange: {name: audit, type: fanout}
        routing_key: "#"
queues:
  - name: orders
    arguments: {x-queue-type: quorum}
    bindings:
      - exchange: {name: events, type: topic}
        routing_key: order.created
  - name: scratch
    durable: false
    auto_delete: true
    bindings:
      - exchange:
          name: by-region
          type: headers
          match: {x-match: all, region: eu}
        routing_key: ""
`

// recordingOperator records every call and fails the one named in failOn
type recordingOperator struct {
	calls  []string
	failOn string
	err    error

	queues    []contracts.Queue
	exchanges []contracts.Exchange
}

func (r *recordingOperator) record(call string) error {
	r.calls = append(r.calls, call)
	if call == r.failOn {
		return r.err
	}
	return nil
}

func (r *recordingOperator) DeclareQueue(ctx context.Context, queue contracts.Queue) error {
	r.queues = append(r.queues, queue)
	return r.record("declare-queue:" + queue.Name)
}

func (r *recordingOperator) DeclareExchange(ctx context.Context, exchange contracts.Exchange) error {
	r.exchanges = append(r.exchanges, exchange)
	return r.record("declare-exchange:" + exchange.Name)
}

func (r *recordingOperator) BindQueue(ctx context.Context, queue contracts.Queue, exchange contracts.Exchange, args routing.BindArgs) error {
	return r.record("bind-queue:" + exchange.Name + "->" + queue.Name + ":" + args.RoutingKey)
}

func (r *recordingOperator) BindExchange(ctx context.Context, source, destination contracts.Exchange, args routing.BindArgs) error {
	return r.record("bind-exchange:" + source.Name + "->" + destination.Name + ":" + args.RoutingKey)
}

func TestParse(t *testing.T) {
	t.Run("decodes exchanges and queues", func(t *testing.T) {
		topology, err := Parse(strings.NewReader(sampleTopology))
		require.NoError(t, err)

		require.Len(t, topology.Exchanges, 1)
		require.Len(t, topology.Queues, 2)
		assert.Equal(t, "events", topology.Exchanges[0].Name)
		assert.Equal(t, "#", topology.Exchanges[0].Bindings[0].RoutingKey)
		assert.Equal(t, "quorum", topology.Queues[0].Arguments["x-queue-type"])
	})

	t.Run("empty document", func(t *testing.T) {
		topology, err := Parse(strings.NewReader(""))
		require.NoError(t, err)
		assert.Empty(t, topology.Exchanges)
		assert.Empty(t, topology.Queues)
	})

	t.Run("unknown exchange type is rejected", func(t *testing.T) {
		_, err := Parse(strings.NewReader("exchanges:\n  - name: x\n    type: bogus\n"))
		assert.ErrorIs(t, err, contracts.ErrUnknownExchangeType)
	})

	t.Run("unknown exchange type in a binding is rejected", func(t *testing.T) {
		doc := "queues:\n  - name: q\n    bindings:\n      - exchange: {name: x, type: bogus}\n"
		_, err := Parse(strings.NewReader(doc))
		assert.ErrorIs(t, err, contracts.ErrUnknownExchangeType)
	})

	t.Run("bindings nested under a binding target are rejected", func(t *testing.T) {
		doc := `queues:
  - name: q
    bindings:
      - exchange:
          name: x
          type: direct
          bindings:
            - exchange: {name: y, type: fanout}
`
		_, err := Parse(strings.NewReader(doc))
		assert.ErrorIs(t, err, ErrNestedBindings)

		doc = `exchanges:
  - name: a
    type: topic
    bindings:
      - exchange:
          name: b
          type: direct
          bindings:
            - exchange: {name: c, type: fanout}
`
		_, err = Parse(strings.NewReader(doc))
		assert.ErrorIs(t, err, ErrNestedBindings)
	})

	t.Run("missing name is rejected", func(t *testing.T) {
		_, err := Parse(strings.NewReader("queues:\n  - durable: true\n"))
		assert.ErrorIs(t, err, ErrMissingName)
	})

	t.Run("unknown fields are rejected", func(t *testing.T) {
		_, err := Parse(strings.NewReader("queues:\n  - name: q\n    durabel: true\n"))
		assert.Error(t, err)
	})
}

func TestSpecConversion(t *testing.T) {
	topology, err := Parse(strings.NewReader(sampleTopology))
	require.NoError(t, err)

	t.Run("durable defaults to true", func(t *testing.T) {
		queue := topology.Queues[0].Queue()
		assert.True(t, queue.Durable)
		assert.Equal(t, map[string]string{"x-queue-type": "quorum"}, queue.Arguments)
	})

	t.Run("explicit flags are kept", func(t *testing.T) {
		queue := topology.Queues[1].Queue()
		assert.False(t, queue.Durable)
		assert.True(t, queue.AutoDelete)
	})

	t.Run("headers match is carried by the type", func(t *testing.T) {
		exchange, err := topology.Queues[1].Bindings[0].Exchange.Exchange()
		require.NoError(t, err)

		headers, ok := exchange.Type.(contracts.HeadersExchange)
		require.True(t, ok)
		assert.Equal(t, map[string]string{"x-match": "all", "region": "eu"}, headers.Match)
	})
}

func TestApply(t *testing.T) {
	ctx := context.Background()

	t.Run("exchanges first then queues in file order", func(t *testing.T) {
		topology, err := Parse(strings.NewReader(sampleTopology))
		require.NoError(t, err)

		op := &recordingOperator{}
		require.NoError(t, topology.Apply(ctx, routing.NewConfigurator(op)))

		assert.Equal(t, []string{
			"declare-exchange:events",
			"declare-exchange:audit",
			"bind-exchange:events->audit:#",
			"declare-queue:orders",
			"declare-exchange:events",
			"bind-queue:events->orders:order.created",
			"declare-queue:scratch",
			"declare-exchange:by-region",
			"bind-queue:by-region->scratch:",
		}, op.calls)
	})

	t.Run("stops at the first failure", func(t *testing.T) {
		topology, err := Parse(strings.NewReader(sampleTopology))
		require.NoError(t, err)

		boom := errors.New("access refused")
		op := &recordingOperator{failOn: "declare-queue:orders", err: boom}

		err = topology.Apply(ctx, routing.NewConfigurator(op))
		require.ErrorIs(t, err, boom)
		assert.Contains(t, err.Error(), "queue orders")
		assert.Equal(t, "declare-queue:orders", op.calls[len(op.calls)-1])
	})
}

func TestLoad(t *testing.T) {
	t.Run("reads a file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "topology.yaml")
		require.NoError(t, os.WriteFile(path, []byte(sampleTopology), 0o600))

		topology, err := Load(path)
		require.NoError(t, err)
		assert.Len(t, topology.Queues, 2)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
		assert.ErrorIs(t, err, os.ErrNotExist)
	})
}

func TestBrokerURL(t *testing.T) {
	t.Run("default", func(t *testing.T) {
		t.Setenv(URLEnv, "")
		assert.Equal(t, DefaultURL, BrokerURL())
	})

	t.Run("environment wins", func(t *testing.T) {
		t.Setenv(URLEnv, "amqp://user:pw@rabbit:5672/vhost")
		assert.Equal(t, "amqp://user:pw@rabbit:5672/vhost", BrokerURL())
	})
}
