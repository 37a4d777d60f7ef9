package contracts

// Queue describes a queue to be declared
type Queue struct {
	Name       string
	Passive    bool
	Durable    bool
	Exclusive  bool
	AutoDelete bool
	Arguments  map[string]string
}

// NewQueue creates a durable, non-exclusive, non-auto-delete queue with no arguments
func NewQueue(name string) Queue {
	return Queue{
		Name:       name,
		Passive:    false,
		Durable:    true,
		Exclusive:  false,
		AutoDelete: false,
		Arguments:  map[string]string{},
	}
}

// QueueBind is a request to bind a queue to the target Exchange. The exchange is a full
// value because it is declared before the binding is made.
type QueueBind struct {
	Exchange   Exchange
	RoutingKey string
	NoWait     bool
	Arguments  map[string]string
}

// NewQueueBind creates a queue binding request towards exchange
func NewQueueBind(exchange Exchange, routingKey string) QueueBind {
	return QueueBind{
		Exchange:   exchange,
		RoutingKey: routingKey,
		NoWait:     false,
		Arguments:  map[string]string{},
	}
}
