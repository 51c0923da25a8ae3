package explorer

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/btslabs/chain-gateway/internal/model"
)

// Default explorer endpoints per chain.
const (
	DefaultMainnetURL = "https://api.bitshares.ws/openexplorer"
	DefaultTestnetURL = "https://api.testnet.bitshares.ws/openexplorer"
)

// Client provides access to the block explorer REST API.
type Client struct {
	baseURLs   map[model.Chain]string
	httpClient *http.Client
	logger     *slog.Logger

	maxRetries   int
	retryBackoff time.Duration
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// NewClient creates a new explorer client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		baseURLs: map[model.Chain]string{
			model.Mainnet: DefaultMainnetURL,
			model.Testnet: DefaultTestnetURL,
		},
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger:       slog.Default(),
		maxRetries:   3,
		retryBackoff: time.Second,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// WithBaseURL overrides one chain's explorer endpoint.
func WithBaseURL(chain model.Chain, url string) ClientOption {
	return func(c *Client) {
		c.baseURLs[chain] = url
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithRetries sets the retry configuration.
func WithRetries(max int, backoff time.Duration) ClientOption {
	return func(c *Client) {
		c.maxRetries = max
		c.retryBackoff = backoff
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}
