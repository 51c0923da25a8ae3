package config

import (
	"time"

	"github.com/btslabs/chain-gateway/internal/explorer"
)

// Default values for optional configuration fields.
const (
	DefaultFixturesDir         = "fixtures"
	DefaultDialTimeout         = 4 * time.Second
	DefaultCallTimeout         = 4 * time.Second
	DefaultChunkSize           = 50
	DefaultMaxConcurrentChunks = 8
	DefaultExplorerTimeout     = 30 * time.Second
	DefaultExplorerMaxRetries  = 3
	DefaultListenAddr          = ":8080"
	DefaultReadTimeout         = 15 * time.Second
	DefaultWriteTimeout        = 30 * time.Second
	DefaultShutdownTimeout     = 10 * time.Second
	DefaultMetricsPath         = "/metrics"
)

func (c *GatewayConfig) applyDefaults() {
	if c.Cache.FixturesDir == "" {
		c.Cache.FixturesDir = DefaultFixturesDir
	}

	if c.RPC.DialTimeout == 0 {
		c.RPC.DialTimeout = DefaultDialTimeout
	}
	if c.RPC.CallTimeout == 0 {
		c.RPC.CallTimeout = DefaultCallTimeout
	}

	if c.Fetch.ChunkSize == 0 {
		c.Fetch.ChunkSize = DefaultChunkSize
	}
	if c.Fetch.MaxConcurrentChunks == 0 {
		c.Fetch.MaxConcurrentChunks = DefaultMaxConcurrentChunks
	}

	if c.Explorer.MainnetURL == "" {
		c.Explorer.MainnetURL = explorer.DefaultMainnetURL
	}
	if c.Explorer.TestnetURL == "" {
		c.Explorer.TestnetURL = explorer.DefaultTestnetURL
	}
	if c.Explorer.Timeout == 0 {
		c.Explorer.Timeout = DefaultExplorerTimeout
	}
	if c.Explorer.MaxRetries == 0 {
		c.Explorer.MaxRetries = DefaultExplorerMaxRetries
	}

	if c.Deeplink.AppName == "" {
		c.Deeplink.AppName = "Static Bitshares Astro web app"
	}
	if c.Deeplink.Browser == "" {
		c.Deeplink.Browser = "web browser"
	}
	if c.Deeplink.Origin == "" {
		c.Deeplink.Origin = "localhost"
	}

	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = DefaultListenAddr
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = DefaultReadTimeout
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = DefaultWriteTimeout
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = DefaultShutdownTimeout
	}

	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
}
