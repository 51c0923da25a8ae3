package aggregate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/btslabs/chain-gateway/internal/metrics"
	"github.com/btslabs/chain-gateway/internal/model"
	"github.com/btslabs/chain-gateway/internal/nodepool"
	"github.com/btslabs/chain-gateway/internal/rpc"
)

// Errors
var (
	// ErrMissingRequired indicates a mandatory sub-query of a composite
	// call failed or returned nothing.
	ErrMissingRequired = errors.New("required sub-result missing")

	// ErrNotFound indicates a live lookup resolved to no record.
	ErrNotFound = errors.New("no matching record")
)

// Aggregator runs composite and one-shot live queries over pooled chain
// nodes.
type Aggregator struct {
	pool    *nodepool.Pool
	dialer  rpc.Dialer
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// New creates an Aggregator. metrics may be nil.
func New(pool *nodepool.Pool, dialer rpc.Dialer, m *metrics.Metrics, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{
		pool:    pool,
		dialer:  dialer,
		metrics: m,
		logger:  logger,
	}
}

// dial establishes a session against the chain's current head node.
// Connection-establishment failure demotes the node before propagating.
func (a *Aggregator) dial(ctx context.Context, chain model.Chain) (rpc.Session, error) {
	ep, err := a.pool.Current(chain)
	if err != nil {
		return nil, err
	}
	sess, err := a.dialer.Dial(ctx, ep.URL)
	if err != nil {
		a.logger.Warn("demoting unreachable node", "chain", chain, "node", ep.URL)
		a.pool.Demote(chain)
		if a.metrics != nil {
			a.metrics.NodeDemotions.WithLabelValues(string(chain)).Inc()
		}
		return nil, err
	}
	return sess, nil
}

// subQuery is one named remote call inside a composite request.
type subQuery struct {
	name      string
	api       rpc.API
	method    string
	params    []any
	mandatory bool

	res json.RawMessage
	err error
}

// fanout runs all sub-queries concurrently over one session and waits for
// every one to settle. It fails only when a mandatory sub-query failed or
// resolved to nothing; optional failures are left for the caller to
// default.
func (a *Aggregator) fanout(ctx context.Context, chain model.Chain, sess rpc.Session, queries []*subQuery) error {
	var wg sync.WaitGroup
	for _, q := range queries {
		wg.Add(1)
		go func(q *subQuery) {
			defer wg.Done()
			q.res, q.err = sess.Call(ctx, q.api, q.method, q.params)
			a.countCall(chain, q.method, q.err)
			if q.err != nil {
				a.logger.Warn("sub-query failed",
					"chain", chain,
					"query", q.name,
					"mandatory", q.mandatory,
					"error", q.err,
				)
			}
		}(q)
	}
	wg.Wait()

	for _, q := range queries {
		if !q.mandatory {
			continue
		}
		if q.err != nil {
			return fmt.Errorf("%w: %s: %v", ErrMissingRequired, q.name, q.err)
		}
		if isNull(q.res) {
			return fmt.Errorf("%w: %s", ErrMissingRequired, q.name)
		}
	}
	return nil
}

// call issues a single remote call over a freshly dialed session.
func (a *Aggregator) call(ctx context.Context, chain model.Chain, api rpc.API, method string, params []any) (json.RawMessage, error) {
	sess, err := a.dial(ctx, chain)
	if err != nil {
		return nil, err
	}
	defer sess.Close()

	res, err := sess.Call(ctx, api, method, params)
	a.countCall(chain, method, err)
	return res, err
}

func (a *Aggregator) countCall(chain model.Chain, method string, err error) {
	if a.metrics == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	a.metrics.RPCCalls.WithLabelValues(string(chain), method, outcome).Inc()
}

// isNull reports whether a settled sub-result carries no data at all.
// An empty list is a valid result, not an absent one.
func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// orElse returns raw unless it is absent, in which case it returns the
// documented default for the field.
func orElse(raw json.RawMessage, def string) json.RawMessage {
	if isNull(raw) {
		return json.RawMessage(def)
	}
	return raw
}
