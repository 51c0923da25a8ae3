package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// fakeNode runs a WebSocket server that answers the login handshake and
// delegates database calls to handler.
func fakeNode(t *testing.T, handler func(method string, args []json.RawMessage) (any, *RemoteError)) *httptest.Server {
	t.Helper()

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		for {
			var req struct {
				ID     uint64            `json:"id"`
				Method string            `json:"method"`
				Params []json.RawMessage `json:"params"`
			}
			if err := conn.ReadJSON(&req); err != nil {
				return
			}

			var method string
			json.Unmarshal(req.Params[1], &method)
			var args []json.RawMessage
			json.Unmarshal(req.Params[2], &args)

			reply := map[string]any{"id": req.ID}
			switch method {
			case "login":
				reply["result"] = true
			case "database":
				reply["result"] = 2
			case "history":
				reply["result"] = 3
			default:
				result, remoteErr := handler(method, args)
				if remoteErr != nil {
					reply["error"] = remoteErr
				} else {
					reply["result"] = result
				}
			}
			if err := conn.WriteJSON(reply); err != nil {
				return
			}
		}
	}))
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestDial_HandshakeAndCall(t *testing.T) {
	srv := fakeNode(t, func(method string, args []json.RawMessage) (any, *RemoteError) {
		if method != "get_chain_id" {
			t.Errorf("method = %q, want get_chain_id", method)
		}
		return "abcd1234", nil
	})
	defer srv.Close()

	d := NewDialer(DefaultConfig(), nil)
	sess, err := d.Dial(context.Background(), wsURL(srv))
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer sess.Close()

	res, err := sess.Call(context.Background(), DatabaseAPI, "get_chain_id", nil)
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}

	var chainID string
	if err := json.Unmarshal(res, &chainID); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if chainID != "abcd1234" {
		t.Errorf("result = %q, want abcd1234", chainID)
	}
}

func TestDial_Unreachable(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DialTimeout = 200 * time.Millisecond

	d := NewDialer(cfg, nil)
	_, err := d.Dial(context.Background(), "ws://127.0.0.1:1")
	if err == nil {
		t.Fatal("expected dial error")
	}
	if !errors.Is(err, ErrConnection) {
		t.Errorf("error = %v, want ErrConnection", err)
	}
}

func TestCall_RemoteError(t *testing.T) {
	srv := fakeNode(t, func(method string, args []json.RawMessage) (any, *RemoteError) {
		return nil, &RemoteError{Code: 7, Message: "unknown method"}
	})
	defer srv.Close()

	d := NewDialer(DefaultConfig(), nil)
	sess, err := d.Dial(context.Background(), wsURL(srv))
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer sess.Close()

	_, err = sess.Call(context.Background(), DatabaseAPI, "bogus", nil)
	if err == nil {
		t.Fatal("expected remote error")
	}
	var remote *RemoteError
	if !errors.As(err, &remote) {
		t.Fatalf("error = %T, want *RemoteError", err)
	}
	if remote.Code != 7 {
		t.Errorf("Code = %d, want 7", remote.Code)
	}
}

func TestCall_LazyHistoryRegistration(t *testing.T) {
	srv := fakeNode(t, func(method string, args []json.RawMessage) (any, *RemoteError) {
		return []string{}, nil
	})
	defer srv.Close()

	d := NewDialer(DefaultConfig(), nil)
	sess, err := d.Dial(context.Background(), wsURL(srv))
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer sess.Close()

	// First history call triggers registration of the history API group.
	if _, err := sess.Call(context.Background(), HistoryAPI, "get_account_history_operations", []any{"1.2.0"}); err != nil {
		t.Fatalf("history Call failed: %v", err)
	}
}

func TestCall_AfterClose(t *testing.T) {
	srv := fakeNode(t, func(method string, args []json.RawMessage) (any, *RemoteError) {
		return nil, nil
	})
	defer srv.Close()

	d := NewDialer(DefaultConfig(), nil)
	sess, err := d.Dial(context.Background(), wsURL(srv))
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	sess.Close()

	if _, err := sess.Call(context.Background(), DatabaseAPI, "get_objects", nil); err == nil {
		t.Error("expected error calling a closed session")
	}
}
