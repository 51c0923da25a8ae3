package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/btslabs/chain-gateway/internal/aggregate"
	"github.com/btslabs/chain-gateway/internal/cache"
	"github.com/btslabs/chain-gateway/internal/explorer"
	"github.com/btslabs/chain-gateway/internal/fetch"
	"github.com/btslabs/chain-gateway/internal/metrics"
	"github.com/btslabs/chain-gateway/internal/model"
)

// Config holds HTTP server settings.
type Config struct {
	ListenAddr      string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	MetricsPath     string
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		ListenAddr:      ":8080",
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		MetricsPath:     "/metrics",
	}
}

// Snapshots serves the precompressed reference datasets.
type Snapshots interface {
	Blob(chain model.Chain, dataset cache.Dataset) ([]byte, error)
	BlobAll(dataset cache.Dataset) (map[model.Chain][]byte, error)
	Asset(chain model.Chain, idOrSymbol string) (model.Asset, error)
	Pool(chain model.Chain, id string) (model.PoolDetail, error)
	DynamicData(chain model.Chain, id string) (model.DynamicData, error)
}

// Querier runs live queries against chain nodes.
type Querier interface {
	Portfolio(ctx context.Context, chain model.Chain, accountID string) (*aggregate.Portfolio, error)
	MarketTrades(ctx context.Context, chain model.Chain, quote, base, accountID string) (*aggregate.MarketTrades, error)
	Smartcoin(ctx context.Context, chain model.Chain, assetID, accountID string) (*aggregate.Smartcoin, error)
	AccountSearch(ctx context.Context, chain model.Chain, nameOrID string) (json.RawMessage, error)
	FullAccount(ctx context.Context, chain model.Chain, accountID string) (json.RawMessage, error)
	AccountBalances(ctx context.Context, chain model.Chain, accountID string) (json.RawMessage, error)
	LimitOrders(ctx context.Context, chain model.Chain, accountID string, limit int, lastID string) (json.RawMessage, error)
	OrderBook(ctx context.Context, chain model.Chain, quote, base string) (json.RawMessage, error)
	MarketLimitOrders(ctx context.Context, chain model.Chain, quote, base string) (json.RawMessage, error)
	CreditDeals(ctx context.Context, chain model.Chain, nameOrID string) (*aggregate.CreditDeals, error)
	BlockedAccounts(ctx context.Context, chain model.Chain) (json.RawMessage, error)
}

// ObjectFetcher retrieves arbitrary chain objects in batches.
type ObjectFetcher interface {
	GetObjects(ctx context.Context, chain model.Chain, ids []string, opts ...fetch.Option) ([]json.RawMessage, error)
}

// Explorer serves block explorer passthroughs.
type Explorer interface {
	AccountHistory(ctx context.Context, chain model.Chain, accountID string, opts explorer.AccountHistoryOptions) (json.RawMessage, error)
	TopMarkets(ctx context.Context, chain model.Chain) (json.RawMessage, error)
}

// DeepLinker builds wallet deep links.
type DeepLinker interface {
	Generate(ctx context.Context, chain model.Chain, opType string, operations []json.RawMessage) (string, error)
}

// Server is the gateway's HTTP front end.
type Server struct {
	cfg       Config
	snapshots Snapshots
	querier   Querier
	fetcher   ObjectFetcher
	explorer  Explorer
	deeplink  DeepLinker
	metrics   *metrics.Metrics
	logger    *slog.Logger

	httpServer *http.Server
}

// New creates a Server. fetcher, explorer, deeplink and metrics may be nil
// when their routes are not wanted.
func New(cfg Config, snapshots Snapshots, querier Querier, fetcher ObjectFetcher, exp Explorer, dl DeepLinker, m *metrics.Metrics, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ListenAddr == "" {
		cfg = DefaultConfig()
	}
	return &Server{
		cfg:       cfg,
		snapshots: snapshots,
		querier:   querier,
		fetcher:   fetcher,
		explorer:  exp,
		deeplink:  dl,
		metrics:   m,
		logger:    logger,
	}
}

// Router assembles the REST routes.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()
	r.Use(s.instrument)

	r.HandleFunc("/healthz", s.healthHandler).Methods("GET")
	if s.metrics != nil {
		r.Handle(s.cfg.MetricsPath, s.metrics.Handler()).Methods("GET")
	}

	// Cached snapshots: combined first so {chain} cannot shadow it.
	r.HandleFunc("/cache/all/{dataset}", s.blobAllHandler).Methods("GET")
	r.HandleFunc("/cache/{chain}/asset/{id}", s.assetHandler).Methods("GET")
	r.HandleFunc("/cache/{chain}/pool/{id}", s.poolHandler).Methods("GET")
	r.HandleFunc("/cache/{chain}/dynamic/{id}", s.dynamicDataHandler).Methods("GET")
	r.HandleFunc("/cache/{chain}/{dataset}", s.blobHandler).Methods("GET")

	// Live queries.
	r.HandleFunc("/chain/{chain}/objects", s.objectsHandler).Methods("POST")
	r.HandleFunc("/chain/{chain}/accounts/{id}", s.accountSearchHandler).Methods("GET")
	r.HandleFunc("/chain/{chain}/accounts/{id}/full", s.fullAccountHandler).Methods("GET")
	r.HandleFunc("/chain/{chain}/accounts/{id}/balances", s.balancesHandler).Methods("GET")
	r.HandleFunc("/chain/{chain}/accounts/{id}/limitOrders", s.limitOrdersHandler).Methods("GET")
	r.HandleFunc("/chain/{chain}/accounts/{id}/creditDeals", s.creditDealsHandler).Methods("GET")
	r.HandleFunc("/chain/{chain}/blockedAccounts", s.blockedAccountsHandler).Methods("GET")
	r.HandleFunc("/chain/{chain}/orderBook/{quote}/{base}", s.orderBookHandler).Methods("GET")
	r.HandleFunc("/chain/{chain}/limitOrders/{quote}/{base}", s.marketLimitOrdersHandler).Methods("GET")

	// Composites.
	r.HandleFunc("/chain/{chain}/portfolio/{id}", s.portfolioHandler).Methods("GET")
	r.HandleFunc("/chain/{chain}/marketTrades/{quote}/{base}/{id}", s.marketTradesHandler).Methods("GET")
	r.HandleFunc("/chain/{chain}/smartcoin/{id}", s.smartcoinHandler).Methods("GET")

	// Explorer passthroughs.
	r.HandleFunc("/explorer/{chain}/accountHistory/{id}", s.accountHistoryHandler).Methods("GET")
	r.HandleFunc("/explorer/{chain}/topMarkets", s.topMarketsHandler).Methods("GET")

	// Deep links.
	r.HandleFunc("/beet", s.beetHandler).Methods("POST")

	return r
}

// instrument counts requests per matched route template and status.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		if s.metrics != nil {
			route := r.URL.Path
			if current := mux.CurrentRoute(r); current != nil {
				if tmpl, err := current.GetPathTemplate(); err == nil {
					route = tmpl
				}
			}
			s.metrics.HTTPRequests.WithLabelValues(route, httpStatusLabel(rec.status)).Inc()
		}
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Start begins serving in the background.
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         s.cfg.ListenAddr,
		Handler:      s.Router(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server failed", "error", err)
		}
	}()

	s.logger.Info("http server started", "addr", s.cfg.ListenAddr)
	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info("http server stopped")
	return nil
}
