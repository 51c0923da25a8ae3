package config

import "time"

// GatewayConfig is the root configuration for a gateway instance.
type GatewayConfig struct {
	Chains   ChainsConfig   `yaml:"chains"`
	Cache    CacheConfig    `yaml:"cache"`
	RPC      RPCConfig      `yaml:"rpc"`
	Fetch    FetchConfig    `yaml:"fetch"`
	Explorer ExplorerConfig `yaml:"explorer"`
	Deeplink DeeplinkConfig `yaml:"deeplink"`
	Server   ServerConfig   `yaml:"server"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ChainsConfig lists the RPC nodes per supported chain.
type ChainsConfig struct {
	Bitshares ChainConfig `yaml:"bitshares"`
	Testnet   ChainConfig `yaml:"bitshares_testnet"`
}

// ChainConfig holds one chain's node list, ordered by preference.
type ChainConfig struct {
	Nodes []string `yaml:"nodes"`
}

// CacheConfig holds snapshot cache settings.
type CacheConfig struct {
	FixturesDir string `yaml:"fixtures_dir"`
}

// RPCConfig holds chain websocket session settings.
type RPCConfig struct {
	DialTimeout time.Duration `yaml:"dial_timeout"`
	CallTimeout time.Duration `yaml:"call_timeout"`
}

// FetchConfig holds batch retrieval settings.
type FetchConfig struct {
	ChunkSize           int `yaml:"chunk_size"`
	MaxConcurrentChunks int `yaml:"max_concurrent_chunks"`
}

// ExplorerConfig holds block explorer REST settings.
type ExplorerConfig struct {
	MainnetURL string        `yaml:"mainnet_url"`
	TestnetURL string        `yaml:"testnet_url"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
}

// DeeplinkConfig identifies the gateway to signing wallets.
type DeeplinkConfig struct {
	AppName string `yaml:"app_name"`
	Browser string `yaml:"browser"`
	Origin  string `yaml:"origin"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	ListenAddr      string        `yaml:"listen_addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Path string `yaml:"path"`
}
