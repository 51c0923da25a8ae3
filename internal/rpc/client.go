package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// Session is an established connection to one chain node.
type Session interface {
	// Call executes one remote method against the named API group and
	// returns the raw result.
	Call(ctx context.Context, api API, method string, params []any) (json.RawMessage, error)

	// Close tears down the connection. Safe to call more than once.
	Close() error
}

// Dialer establishes sessions. It exists as an interface so the fetch and
// aggregate layers can be tested without a live node.
type Dialer interface {
	Dial(ctx context.Context, url string) (Session, error)
}

// WSDialer dials chain nodes over WebSocket.
type WSDialer struct {
	cfg    Config
	logger *slog.Logger
}

// NewDialer creates a WSDialer.
func NewDialer(cfg Config, logger *slog.Logger) *WSDialer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = DefaultConfig().DialTimeout
	}
	if cfg.CallTimeout == 0 {
		cfg.CallTimeout = DefaultConfig().CallTimeout
	}
	return &WSDialer{cfg: cfg, logger: logger}
}

// Dial connects to a node, performs the login handshake and registers the
// database API. Any failure is reported as ErrConnection.
func (d *WSDialer) Dial(ctx context.Context, url string) (Session, error) {
	dialer := websocket.Dialer{HandshakeTimeout: d.cfg.DialTimeout}

	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", ErrConnection, url, err)
	}

	s := &session{
		cfg:     d.cfg,
		logger:  d.logger.With("node", url),
		conn:    conn,
		pending: make(map[uint64]chan callResult),
		apiIDs:  map[API]int{LoginAPI: 1},
		done:    make(chan struct{}),
	}
	go s.readLoop()

	if err := s.handshake(ctx); err != nil {
		s.Close()
		return nil, fmt.Errorf("%w: handshake %s: %v", ErrConnection, url, err)
	}

	d.logger.Debug("node session established", "node", url)
	return s, nil
}

type callResult struct {
	data json.RawMessage
	err  error
}

// session implements Session over a gorilla/websocket connection.
type session struct {
	cfg    Config
	logger *slog.Logger

	conn *websocket.Conn

	// Write serialization
	writeMu sync.Mutex

	// Call/response correlation
	pendingMu sync.Mutex
	pending   map[uint64]chan callResult
	nextID    atomic.Uint64

	// API group registration
	apiMu  sync.Mutex
	apiIDs map[API]int

	closeOnce sync.Once
	done      chan struct{}
}

// handshake logs in and registers the database API group.
func (s *session) handshake(ctx context.Context) error {
	if _, err := s.call(ctx, 1, "login", []any{"", ""}); err != nil {
		return fmt.Errorf("login: %w", err)
	}
	if _, err := s.registerAPI(ctx, DatabaseAPI); err != nil {
		return fmt.Errorf("register database api: %w", err)
	}
	return nil
}

// registerAPI asks the login API for the node-assigned id of an API group.
func (s *session) registerAPI(ctx context.Context, api API) (int, error) {
	res, err := s.call(ctx, 1, string(api), []any{})
	if err != nil {
		return 0, err
	}

	var id int
	if err := json.Unmarshal(res, &id); err != nil {
		return 0, fmt.Errorf("parse api id: %w", err)
	}

	s.apiMu.Lock()
	s.apiIDs[api] = id
	s.apiMu.Unlock()
	return id, nil
}

// apiID resolves an API group to its node-assigned id, registering it on
// first use. The history API is only registered when a call needs it.
func (s *session) apiID(ctx context.Context, api API) (int, error) {
	s.apiMu.Lock()
	id, ok := s.apiIDs[api]
	s.apiMu.Unlock()
	if ok {
		return id, nil
	}
	return s.registerAPI(ctx, api)
}

// Call implements Session.
func (s *session) Call(ctx context.Context, api API, method string, params []any) (json.RawMessage, error) {
	id, err := s.apiID(ctx, api)
	if err != nil {
		return nil, err
	}
	return s.call(ctx, id, method, params)
}

func (s *session) call(ctx context.Context, apiID int, method string, params []any) (json.RawMessage, error) {
	select {
	case <-s.done:
		return nil, ErrClosed
	default:
	}

	id := s.nextID.Add(1)
	ch := make(chan callResult, 1)

	s.pendingMu.Lock()
	s.pending[id] = ch
	s.pendingMu.Unlock()

	defer func() {
		s.pendingMu.Lock()
		delete(s.pending, id)
		s.pendingMu.Unlock()
	}()

	if params == nil {
		params = []any{}
	}
	req := request{ID: id, Method: "call", Params: [3]any{apiID, method, params}}
	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	s.writeMu.Lock()
	s.conn.SetWriteDeadline(time.Now().Add(s.cfg.CallTimeout))
	err = s.conn.WriteMessage(websocket.TextMessage, data)
	s.writeMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("%w: write %s: %v", ErrConnection, method, err)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.done:
		return nil, ErrClosed
	case <-time.After(s.cfg.CallTimeout):
		return nil, fmt.Errorf("%w: %s", ErrTimeout, method)
	case res := <-ch:
		if res.err != nil {
			return nil, res.err
		}
		return res.data, nil
	}
}

// readLoop reads responses and routes them to waiting calls. Unsolicited
// messages (subscription notices) are dropped.
func (s *session) readLoop() {
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-s.done:
			default:
				s.logger.Debug("read loop terminated", "error", err)
			}
			s.failPending(fmt.Errorf("%w: read: %v", ErrConnection, err))
			return
		}

		var resp response
		if err := json.Unmarshal(data, &resp); err != nil || resp.ID == 0 {
			continue
		}

		s.pendingMu.Lock()
		ch, ok := s.pending[resp.ID]
		if ok {
			delete(s.pending, resp.ID)
		}
		s.pendingMu.Unlock()
		if !ok {
			continue
		}

		res := callResult{data: resp.Result}
		if resp.Error != nil {
			res = callResult{err: resp.Error}
		}
		select {
		case ch <- res:
		default:
		}
	}
}

// failPending delivers a terminal error to every waiting call so callers do
// not block until their timeout after the connection drops.
func (s *session) failPending(err error) {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	for id, ch := range s.pending {
		select {
		case ch <- callResult{err: err}:
		default:
		}
		delete(s.pending, id)
	}
}

// Close implements Session.
func (s *session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		s.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		err = s.conn.Close()
	})
	return err
}
