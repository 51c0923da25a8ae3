package model

import (
	"errors"
	"fmt"
)

// Chain identifies one of the two ledger deployments served by the gateway.
type Chain string

const (
	// Mainnet is the primary production deployment.
	Mainnet Chain = "bitshares"

	// Testnet is the secondary test deployment.
	Testnet Chain = "bitshares_testnet"
)

// ErrInvalidChain is returned when a caller-supplied chain token is not one
// of the two supported deployments.
var ErrInvalidChain = errors.New("invalid chain")

// Chains returns both supported chains in a stable order.
func Chains() []Chain {
	return []Chain{Mainnet, Testnet}
}

// ParseChain validates a caller-supplied chain token.
func ParseChain(s string) (Chain, error) {
	switch Chain(s) {
	case Mainnet, Testnet:
		return Chain(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidChain, s)
}

// Token returns the short chain token used in deep-link payloads.
func (c Chain) Token() string {
	if c == Mainnet {
		return "BTS"
	}
	return "TEST"
}
