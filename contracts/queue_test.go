package contracts

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewQueue(t *testing.T) {
	t.Run("applies durable defaults", func(t *testing.T) {
		queue := NewQueue("test")

		assert.Equal(t, "test", queue.Name)
		assert.False(t, queue.Passive)
		assert.True(t, queue.Durable)
		assert.False(t, queue.Exclusive)
		assert.False(t, queue.AutoDelete)
		assert.NotNil(t, queue.Arguments)
		assert.Empty(t, queue.Arguments)
	})

	t.Run("fields can be overridden before use", func(t *testing.T) {
		queue := NewQueue("scratch")
		queue.Durable = false
		queue.Exclusive = true
		queue.Arguments["x-max-length"] = "100"

		assert.False(t, queue.Durable)
		assert.True(t, queue.Exclusive)
		assert.Equal(t, "100", queue.Arguments["x-max-length"])
		assert.Empty(t, NewQueue("scratch").Arguments)
	})
}

func TestNewQueueBind(t *testing.T) {
	target := NewExchange("test_exchange", TopicExchange{})
	bind := NewQueueBind(target, "test_routing_key")

	assert.Equal(t, "test_exchange", bind.Exchange.Name)
	assert.Equal(t, "test_routing_key", bind.RoutingKey)
	assert.False(t, bind.NoWait)
	assert.Empty(t, bind.Arguments)
}
