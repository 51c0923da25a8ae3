package nodepool

import (
	"errors"
	"fmt"
	"sync"

	"github.com/btslabs/chain-gateway/internal/model"
)

// Errors
var (
	// ErrEmptyPool indicates a chain was configured with no endpoints.
	// This is a configuration defect, not a runtime condition.
	ErrEmptyPool = errors.New("endpoint pool is empty")

	// ErrUnknownChain indicates the pool has no entry for the chain.
	ErrUnknownChain = errors.New("chain not present in pool")
)

// Endpoint is a connection target for one chain node. Liveness rank is
// implicit in its position within the pool; index 0 is preferred.
type Endpoint struct {
	URL string
}

// Pool owns the per-chain endpoint order. It is the only mutable shared
// state in the gateway; both operations hold a per-chain mutex so that
// concurrent demotions cannot corrupt the list. A double rotation from two
// racing callers is tolerated, it just skips an extra endpoint.
type Pool struct {
	chains map[model.Chain]*ring
}

type ring struct {
	mu        sync.Mutex
	endpoints []Endpoint
}

// New builds a pool from per-chain endpoint URLs. Every configured chain
// must have at least one endpoint.
func New(nodes map[model.Chain][]string) (*Pool, error) {
	p := &Pool{chains: make(map[model.Chain]*ring, len(nodes))}
	for chain, urls := range nodes {
		if len(urls) == 0 {
			return nil, fmt.Errorf("%w: chain %s", ErrEmptyPool, chain)
		}
		eps := make([]Endpoint, len(urls))
		for i, u := range urls {
			eps[i] = Endpoint{URL: u}
		}
		p.chains[chain] = &ring{endpoints: eps}
	}
	return p, nil
}

// Current returns the preferred endpoint for the chain.
func (p *Pool) Current(chain model.Chain) (Endpoint, error) {
	r, ok := p.chains[chain]
	if !ok {
		return Endpoint{}, fmt.Errorf("%w: %s", ErrUnknownChain, chain)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.endpoints[0], nil
}

// Demote moves the current head endpoint to the tail. It never removes an
// endpoint and never fails the caller's in-flight request; it only affects
// endpoint selection for the next call.
func (p *Pool) Demote(chain model.Chain) {
	r, ok := p.chains[chain]
	if !ok {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.endpoints) < 2 {
		return
	}
	head := r.endpoints[0]
	copy(r.endpoints, r.endpoints[1:])
	r.endpoints[len(r.endpoints)-1] = head
}

// Size reports the number of endpoints configured for the chain.
func (p *Pool) Size(chain model.Chain) int {
	r, ok := p.chains[chain]
	if !ok {
		return 0
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.endpoints)
}

// Endpoints returns a copy of the chain's current endpoint order.
func (p *Pool) Endpoints(chain model.Chain) []Endpoint {
	r, ok := p.chains[chain]
	if !ok {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Endpoint, len(r.endpoints))
	copy(out, r.endpoints)
	return out
}
