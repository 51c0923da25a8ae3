package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/btslabs/chain-gateway/internal/metrics"
	"github.com/btslabs/chain-gateway/internal/model"
	"github.com/btslabs/chain-gateway/internal/nodepool"
	"github.com/btslabs/chain-gateway/internal/rpc"
)

// ErrObjectsNotFound indicates that a batch retrieval produced nothing at
// all: every chunk either failed or resolved to null objects.
var ErrObjectsNotFound = errors.New("couldn't retrieve objects")

// Config holds fetcher settings.
type Config struct {
	ChunkSize           int // IDs per get_objects call (default 50)
	MaxConcurrentChunks int // Semaphore bound on in-flight chunk calls (default 8)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		ChunkSize:           50,
		MaxConcurrentChunks: 8,
	}
}

// Fetcher retrieves remote objects in bounded, partially-fault-tolerant
// batches.
type Fetcher struct {
	cfg     Config
	pool    *nodepool.Pool
	dialer  rpc.Dialer
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// New creates a Fetcher. metrics may be nil.
func New(cfg Config, pool *nodepool.Pool, dialer rpc.Dialer, m *metrics.Metrics, logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultConfig().ChunkSize
	}
	if cfg.MaxConcurrentChunks <= 0 {
		cfg.MaxConcurrentChunks = DefaultConfig().MaxConcurrentChunks
	}
	return &Fetcher{
		cfg:     cfg,
		pool:    pool,
		dialer:  dialer,
		metrics: m,
		logger:  logger,
	}
}

type getOptions struct {
	endpoint string
}

// Option configures one GetObjects call.
type Option func(*getOptions)

// WithEndpoint bypasses the node pool and targets a specific endpoint.
// Used for endpoint-discovery bootstrapping before a pool exists; demotion
// does not apply on this path.
func WithEndpoint(url string) Option {
	return func(o *getOptions) { o.endpoint = url }
}

// GetObjects retrieves the objects named by ids from the chain. Duplicate
// IDs are preserved and fetched once each per their chunk. An empty input
// returns an empty result without any remote call.
func (f *Fetcher) GetObjects(ctx context.Context, chain model.Chain, ids []string, opts ...Option) ([]json.RawMessage, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var o getOptions
	for _, opt := range opts {
		opt(&o)
	}

	endpoint := o.endpoint
	if endpoint == "" {
		ep, err := f.pool.Current(chain)
		if err != nil {
			return nil, err
		}
		endpoint = ep.URL
	}

	sess, err := f.dialer.Dial(ctx, endpoint)
	if err != nil {
		// Connection establishment failed: demote before propagating,
		// unless the caller pinned an endpoint explicitly.
		if o.endpoint == "" {
			f.demote(chain, endpoint)
		}
		return nil, err
	}
	defer sess.Close()

	chunks := chunkIDs(ids, f.cfg.ChunkSize)
	results := make([][]json.RawMessage, len(chunks))

	sem := make(chan struct{}, f.cfg.MaxConcurrentChunks)
	var wg sync.WaitGroup
	for i, chunk := range chunks {
		wg.Add(1)
		go func(i int, chunk []string) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			res, err := sess.Call(ctx, rpc.DatabaseAPI, "get_objects", []any{chunk, false})
			f.countCall(chain, "get_objects", err)
			if err != nil {
				// Best-effort union: a failed chunk is skipped, not
				// retried, and does not abort sibling chunks.
				f.logger.Warn("chunk retrieval failed",
					"chain", chain,
					"chunk", i,
					"size", len(chunk),
					"error", err,
				)
				return
			}

			var objs []json.RawMessage
			if err := json.Unmarshal(res, &objs); err != nil {
				f.logger.Warn("malformed chunk response",
					"chain", chain,
					"chunk", i,
					"error", err,
				)
				return
			}
			results[i] = objs
		}(i, chunk)
	}
	wg.Wait()

	// Reassemble in chunk order, dropping deleted/unknown (null) entries.
	var retrieved []json.RawMessage
	for _, objs := range results {
		for _, obj := range objs {
			if isNull(obj) {
				continue
			}
			retrieved = append(retrieved, obj)
		}
	}

	if len(retrieved) == 0 {
		return nil, ErrObjectsNotFound
	}
	return retrieved, nil
}

// MaxObjectID reports the highest existing instance number for one object
// category on the chain. When the preferred node cannot be reached it falls
// back once to the next configured node; this is the only automatic retry
// in the gateway and exists for startup object-count discovery.
func (f *Fetcher) MaxObjectID(ctx context.Context, chain model.Chain, space, typ int) (int, error) {
	endpoints := f.pool.Endpoints(chain)
	if len(endpoints) == 0 {
		return 0, fmt.Errorf("%w: %s", nodepool.ErrUnknownChain, chain)
	}

	var lastErr error
	attempts := endpoints
	if len(attempts) > 2 {
		attempts = attempts[:2]
	}
	for _, ep := range attempts {
		id, err := f.nextObjectID(ctx, ep.URL, space, typ)
		if err != nil {
			f.logger.Warn("object id discovery failed, trying another node",
				"chain", chain,
				"node", ep.URL,
				"error", err,
			)
			lastErr = err
			continue
		}
		// The next object ID is the maximum plus one.
		return id.Instance - 1, nil
	}
	return 0, lastErr
}

func (f *Fetcher) nextObjectID(ctx context.Context, endpoint string, space, typ int) (model.ObjectID, error) {
	sess, err := f.dialer.Dial(ctx, endpoint)
	if err != nil {
		return model.ObjectID{}, err
	}
	defer sess.Close()

	res, err := sess.Call(ctx, rpc.DatabaseAPI, "get_next_object_id", []any{space, typ, false})
	if err != nil {
		return model.ObjectID{}, err
	}

	var next string
	if err := json.Unmarshal(res, &next); err != nil {
		return model.ObjectID{}, fmt.Errorf("parse next object id: %w", err)
	}
	return model.ParseObjectID(next)
}

func (f *Fetcher) demote(chain model.Chain, endpoint string) {
	f.logger.Warn("demoting unreachable node", "chain", chain, "node", endpoint)
	f.pool.Demote(chain)
	if f.metrics != nil {
		f.metrics.NodeDemotions.WithLabelValues(string(chain)).Inc()
	}
}

func (f *Fetcher) countCall(chain model.Chain, method string, err error) {
	if f.metrics == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	f.metrics.RPCCalls.WithLabelValues(string(chain), method, outcome).Inc()
}

// chunkIDs partitions ids into slices of at most size, preserving order.
func chunkIDs(ids []string, size int) [][]string {
	var chunks [][]string
	for i := 0; i < len(ids); i += size {
		end := i + size
		if end > len(ids) {
			end = len(ids)
		}
		chunks = append(chunks, ids[i:end])
	}
	return chunks
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// FilterDeadIDs removes instance numbers at or below floor from ids.
// Known-invalid placeholder ranges are pre-filtered upstream before a batch
// call is issued.
func FilterDeadIDs(ids []string, floor int) []string {
	out := ids[:0:0]
	for _, id := range ids {
		parts := strings.Split(id, ".")
		if len(parts) != 3 {
			out = append(out, id)
			continue
		}
		n, err := strconv.Atoi(parts[2])
		if err != nil || n > floor {
			out = append(out, id)
		}
	}
	return out
}
