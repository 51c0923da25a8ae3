package config

import (
	"errors"
	"fmt"

	"github.com/btslabs/chain-gateway/internal/model"
)

// Validate checks that all required fields are set and values are valid.
func (c *GatewayConfig) Validate() error {
	if len(c.Chains.Bitshares.Nodes) == 0 {
		return errors.New("chains.bitshares.nodes is required")
	}
	if len(c.Chains.Testnet.Nodes) == 0 {
		return errors.New("chains.bitshares_testnet.nodes is required")
	}

	if c.Cache.FixturesDir == "" {
		return errors.New("cache.fixtures_dir is required")
	}

	if c.Fetch.ChunkSize < 1 {
		return errors.New("fetch.chunk_size must be >= 1")
	}
	if c.Fetch.MaxConcurrentChunks < 1 {
		return errors.New("fetch.max_concurrent_chunks must be >= 1")
	}

	if c.RPC.DialTimeout <= 0 {
		return errors.New("rpc.dial_timeout must be positive")
	}
	if c.RPC.CallTimeout <= 0 {
		return errors.New("rpc.call_timeout must be positive")
	}

	if c.Explorer.MaxRetries < 0 {
		return fmt.Errorf("explorer.max_retries must be >= 0, got %d", c.Explorer.MaxRetries)
	}

	if c.Server.ListenAddr == "" {
		return errors.New("server.listen_addr is required")
	}

	return nil
}

// NodeLists returns the per-chain node lists in the shape the node pool
// constructor expects.
func (c *GatewayConfig) NodeLists() map[model.Chain][]string {
	return map[model.Chain][]string{
		model.Mainnet: c.Chains.Bitshares.Nodes,
		model.Testnet: c.Chains.Testnet.Nodes,
	}
}
