package contracts

// Destination is a publish target: an exchange plus the routing key used on it
type Destination struct {
	Exchange   string
	RoutingKey string
}

// NewDestination creates a destination. Neither value is validated; an empty exchange
// addresses the broker's default exchange.
func NewDestination(exchange, routingKey string) Destination {
	return Destination{
		Exchange:   exchange,
		RoutingKey: routingKey,
	}
}
