package contracts

import "fmt"

// AckMode is a consumer's decision for one delivered message: Ack, Nack or Retry
type AckMode interface {
	fmt.Stringer
	ackMode()
}

// Ack acknowledges the message
type Ack struct{}

// Nack negatively acknowledges the message according to Policy
type Nack struct {
	Policy NackPolicy
}

// Retry asks the transport to redeliver the message later. How many times and with what
// delay is decided by the transport.
type Retry struct{}

func (Ack) ackMode()   {}
func (Nack) ackMode()  {}
func (Retry) ackMode() {}

func (Ack) String() string { return "ack" }

func (n Nack) String() string {
	if n.Policy.ShouldRequeue() {
		return "nack(requeue)"
	}
	return "nack(dont-requeue)"
}

func (Retry) String() string { return "retry" }
