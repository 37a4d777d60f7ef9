package contracts

import "fmt"

// ExchangeType identifies the kind of a broker exchange. It is a closed set: DirectExchange,
// TopicExchange, FanoutExchange, HeadersExchange and DelayedExchange are the only
// implementations.
//
// String returns the literal broker type token used when declaring the exchange.
type ExchangeType interface {
	fmt.Stringer
	exchangeType()
}

// DirectExchange routes on an exact routing key match
type DirectExchange struct{}

// TopicExchange routes on routing key patterns
type TopicExchange struct{}

// FanoutExchange routes to every bound target, ignoring the routing key
type FanoutExchange struct{}

// HeadersExchange routes on message headers. Match holds the header mapping bindings are
// matched against, including the optional "x-match" key ("all" or "any").
type HeadersExchange struct {
	Match map[string]string
}

// DelayedExchange is the x-delayed-message exchange provided by the delayed message plugin
type DelayedExchange struct{}

func (DirectExchange) exchangeType()  {}
func (TopicExchange) exchangeType()   {}
func (FanoutExchange) exchangeType()  {}
func (HeadersExchange) exchangeType() {}
func (DelayedExchange) exchangeType() {}

func (DirectExchange) String() string  { return "direct" }
func (TopicExchange) String() string   { return "topic" }
func (FanoutExchange) String() string  { return "fanout" }
func (HeadersExchange) String() string { return "headers" }
func (DelayedExchange) String() string { return "x-delayed-message" }

// ParseExchangeType maps a broker type token back to its ExchangeType. A parsed headers
// exchange carries an empty match mapping.
func ParseExchangeType(token string) (ExchangeType, error) {
	switch token {
	case "direct":
		return DirectExchange{}, nil
	case "topic":
		return TopicExchange{}, nil
	case "fanout":
		return FanoutExchange{}, nil
	case "headers":
		return HeadersExchange{Match: map[string]string{}}, nil
	case "x-delayed-message":
		return DelayedExchange{}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownExchangeType, token)
}

// Exchange describes an exchange to be declared
type Exchange struct {
	Name       string
	Type       ExchangeType
	Passive    bool
	Durable    bool
	AutoDelete bool
	Internal   bool
	NoWait     bool
	Arguments  map[string]string
}

// NewExchange creates a durable exchange with every other flag off and no arguments
func NewExchange(name string, exchangeType ExchangeType) Exchange {
	return Exchange{
		Name:       name,
		Type:       exchangeType,
		Passive:    false,
		Durable:    true,
		AutoDelete: false,
		Internal:   false,
		NoWait:     false,
		Arguments:  map[string]string{},
	}
}

// ExchangeBind is a request to bind an exchange to the target Exchange
type ExchangeBind struct {
	Exchange   Exchange
	RoutingKey string
	NoWait     bool
	Arguments  map[string]string
}

// NewExchangeBind creates an exchange-to-exchange binding request towards exchange
func NewExchangeBind(exchange Exchange, routingKey string) ExchangeBind {
	return ExchangeBind{
		Exchange:   exchange,
		RoutingKey: routingKey,
		NoWait:     false,
		Arguments:  map[string]string{},
	}
}
