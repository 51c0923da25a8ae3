package deeplink

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/google/uuid"

	"github.com/btslabs/chain-gateway/internal/model"
)

// TransactionSource builds a signable transaction from operation
// descriptors: it resolves the current head block, prices the required
// fees and bounds the expiry, returning the serialized transaction.
type TransactionSource interface {
	BuildTransaction(ctx context.Context, chain model.Chain, opType string, operations []json.RawMessage) (json.RawMessage, error)
}

// Config identifies the requesting application to the signing wallet.
type Config struct {
	AppName string
	Browser string
	Origin  string
}

// DefaultConfig returns the gateway's wallet identity.
func DefaultConfig() Config {
	return Config{
		AppName: "Static Bitshares Astro web app",
		Browser: "web browser",
		Origin:  "localhost",
	}
}

// Generator produces URI-encoded wallet deep links.
type Generator struct {
	cfg    Config
	source TransactionSource
}

// New creates a Generator backed by the given transaction source.
func New(cfg Config, source TransactionSource) *Generator {
	if cfg.AppName == "" {
		cfg = DefaultConfig()
	}
	return &Generator{cfg: cfg, source: source}
}

// envelope is the request wrapper the signing wallet expects.
type envelope struct {
	Type    string  `json:"type"`
	ID      string  `json:"id"`
	Payload payload `json:"payload"`
}

type payload struct {
	Method  string `json:"method"`
	Params  [3]any `json:"params"`
	AppName string `json:"appName"`
	Chain   string `json:"chain"`
	Browser string `json:"browser"`
	Origin  string `json:"origin"`
}

// Generate builds the transaction for the given operations and wraps it in
// a URI-encoded injectedCall envelope.
func (g *Generator) Generate(ctx context.Context, chain model.Chain, opType string, operations []json.RawMessage) (string, error) {
	if len(operations) == 0 {
		return "", fmt.Errorf("deeplink: no operations")
	}

	tx, err := g.source.BuildTransaction(ctx, chain, opType, operations)
	if err != nil {
		return "", fmt.Errorf("build transaction: %w", err)
	}

	request := envelope{
		Type: "api",
		ID:   uuid.NewString(),
		Payload: payload{
			Method:  "injectedCall",
			Params:  [3]any{"signAndBroadcast", string(tx), []any{}},
			AppName: g.cfg.AppName,
			Chain:   chain.Token(),
			Browser: g.cfg.Browser,
			Origin:  g.cfg.Origin,
		},
	}

	encoded, err := json.Marshal(request)
	if err != nil {
		return "", fmt.Errorf("encode deeplink: %w", err)
	}
	return url.QueryEscape(string(encoded)), nil
}
