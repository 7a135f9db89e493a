package x402

import "errors"

// Requirement construction errors
var (
	ErrInvalidPrice   = errors.New("x402: price does not resolve to an atomic amount")
	ErrInvalidAddress = errors.New("x402: payTo is not a well-formed address")
	ErrUnknownNetwork = errors.New("x402: network has no registered settlement asset")
)

// Gate errors
var (
	ErrNoRequirements = errors.New("x402: no payment requirements configured")
)
