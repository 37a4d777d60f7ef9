package reliability

import "errors"

var (
	// ErrMaxRetriesExceeded is reported when a retry policy refuses another redelivery
	ErrMaxRetriesExceeded = errors.New("retry: maximum attempts exceeded")

	// ErrCircuitOpen is returned without calling the broker while the circuit is open
	ErrCircuitOpen = errors.New("circuit breaker: circuit is open")
)
