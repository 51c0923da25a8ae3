package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Errors
var (
	ErrConnection = errors.New("node connection failed")
	ErrTimeout    = errors.New("call timeout")
	ErrClosed     = errors.New("session closed")
)

// API names an upstream API group a session can call into. The login API is
// always id 1; other groups are registered during the handshake and mapped
// to node-assigned ids.
type API string

const (
	LoginAPI    API = "login"
	DatabaseAPI API = "database"
	HistoryAPI  API = "history"
)

// request is the wire form of a call: {"id":N,"method":"call",
// "params":[api-id, method, [args]]}.
type request struct {
	ID     uint64 `json:"id"`
	Method string `json:"method"`
	Params [3]any `json:"params"`
}

// response is the wire form of a call result.
type response struct {
	ID     uint64          `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *RemoteError    `json:"error"`
}

// RemoteError is a failure reported by the node for a single call.
type RemoteError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("node error %d: %s", e.Code, e.Message)
}

// Config holds session settings.
type Config struct {
	DialTimeout time.Duration // WebSocket handshake timeout
	CallTimeout time.Duration // Per-call timeout
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		DialTimeout: 4 * time.Second,
		CallTimeout: 4 * time.Second,
	}
}
