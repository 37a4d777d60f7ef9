package contracts

import "errors"

var (
	// ErrUnknownExchangeType is returned when an exchange type token is not recognised
	ErrUnknownExchangeType = errors.New("contracts: unknown exchange type")

	// ErrAlreadySettled is returned when an inbound package is acknowledged more than once
	ErrAlreadySettled = errors.New("contracts: package already settled")
)
