package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/btslabs/chain-gateway/internal/cache"
	"github.com/btslabs/chain-gateway/internal/explorer"
	"github.com/btslabs/chain-gateway/internal/model"
)

// errBadRequest marks caller-supplied input rejected before any remote
// call.
var errBadRequest = errors.New("missing required fields")

// pathChain parses the {chain} route variable, rejecting anything but the
// two supported chain tokens.
func pathChain(r *http.Request) (model.Chain, error) {
	return model.ParseChain(mux.Vars(r)["chain"])
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// -----------------------------------------------------------------------------
// Cached snapshots
// -----------------------------------------------------------------------------

func (s *Server) blobHandler(w http.ResponseWriter, r *http.Request) {
	chain, err := pathChain(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	dataset := cache.Dataset(mux.Vars(r)["dataset"])

	blob, err := s.snapshots.Blob(chain, dataset)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.countCacheServe(dataset)
	// The blob is the stored gzip byte sequence, base64-wrapped by the
	// envelope. Decompression is the caller's responsibility.
	s.writeSuccess(w, blob)
}

func (s *Server) blobAllHandler(w http.ResponseWriter, r *http.Request) {
	dataset := cache.Dataset(mux.Vars(r)["dataset"])

	blobs, err := s.snapshots.BlobAll(dataset)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.countCacheServe(dataset)
	s.writeSuccess(w, blobs)
}

func (s *Server) assetHandler(w http.ResponseWriter, r *http.Request) {
	chain, err := pathChain(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	asset, err := s.snapshots.Asset(chain, mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeSuccess(w, asset)
}

func (s *Server) poolHandler(w http.ResponseWriter, r *http.Request) {
	chain, err := pathChain(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	pool, err := s.snapshots.Pool(chain, mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeSuccess(w, pool)
}

func (s *Server) dynamicDataHandler(w http.ResponseWriter, r *http.Request) {
	chain, err := pathChain(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	data, err := s.snapshots.DynamicData(chain, mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeSuccess(w, data)
}

func (s *Server) countCacheServe(dataset cache.Dataset) {
	if s.metrics != nil {
		s.metrics.CacheServes.WithLabelValues(string(dataset)).Inc()
	}
}

// -----------------------------------------------------------------------------
// Live queries
// -----------------------------------------------------------------------------

func (s *Server) objectsHandler(w http.ResponseWriter, r *http.Request) {
	chain, err := pathChain(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var req struct {
		IDs []string `json:"ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.IDs) == 0 {
		s.writeError(w, r, fmt.Errorf("%w: ids", errBadRequest))
		return
	}

	objs, err := s.fetcher.GetObjects(r.Context(), chain, req.IDs)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeSuccess(w, objs)
}

func (s *Server) accountSearchHandler(w http.ResponseWriter, r *http.Request) {
	chain, err := pathChain(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	account, err := s.querier.AccountSearch(r.Context(), chain, mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeSuccess(w, account)
}

func (s *Server) fullAccountHandler(w http.ResponseWriter, r *http.Request) {
	chain, err := pathChain(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	account, err := s.querier.FullAccount(r.Context(), chain, mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeSuccess(w, account)
}

func (s *Server) balancesHandler(w http.ResponseWriter, r *http.Request) {
	chain, err := pathChain(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	balances, err := s.querier.AccountBalances(r.Context(), chain, mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeSuccess(w, balances)
}

func (s *Server) limitOrdersHandler(w http.ResponseWriter, r *http.Request) {
	chain, err := pathChain(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err = strconv.Atoi(v)
		if err != nil || limit < 1 {
			s.writeError(w, r, fmt.Errorf("%w: limit", errBadRequest))
			return
		}
	}
	lastID := r.URL.Query().Get("lastID")

	orders, err := s.querier.LimitOrders(r.Context(), chain, mux.Vars(r)["id"], limit, lastID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeSuccess(w, orders)
}

func (s *Server) creditDealsHandler(w http.ResponseWriter, r *http.Request) {
	chain, err := pathChain(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	deals, err := s.querier.CreditDeals(r.Context(), chain, mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeSuccess(w, deals)
}

func (s *Server) blockedAccountsHandler(w http.ResponseWriter, r *http.Request) {
	chain, err := pathChain(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	accounts, err := s.querier.BlockedAccounts(r.Context(), chain)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeSuccess(w, accounts)
}

func (s *Server) orderBookHandler(w http.ResponseWriter, r *http.Request) {
	chain, err := pathChain(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	vars := mux.Vars(r)
	book, err := s.querier.OrderBook(r.Context(), chain, vars["quote"], vars["base"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeSuccess(w, book)
}

func (s *Server) marketLimitOrdersHandler(w http.ResponseWriter, r *http.Request) {
	chain, err := pathChain(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	vars := mux.Vars(r)
	orders, err := s.querier.MarketLimitOrders(r.Context(), chain, vars["quote"], vars["base"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeSuccess(w, orders)
}

// -----------------------------------------------------------------------------
// Composites
// -----------------------------------------------------------------------------

func (s *Server) portfolioHandler(w http.ResponseWriter, r *http.Request) {
	chain, err := pathChain(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	portfolio, err := s.querier.Portfolio(r.Context(), chain, mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeSuccess(w, portfolio)
}

func (s *Server) marketTradesHandler(w http.ResponseWriter, r *http.Request) {
	chain, err := pathChain(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	vars := mux.Vars(r)
	trades, err := s.querier.MarketTrades(r.Context(), chain, vars["quote"], vars["base"], vars["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeSuccess(w, trades)
}

func (s *Server) smartcoinHandler(w http.ResponseWriter, r *http.Request) {
	chain, err := pathChain(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	accountID := r.URL.Query().Get("account")
	sc, err := s.querier.Smartcoin(r.Context(), chain, mux.Vars(r)["id"], accountID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeSuccess(w, sc)
}

// -----------------------------------------------------------------------------
// Explorer passthroughs
// -----------------------------------------------------------------------------

func (s *Server) accountHistoryHandler(w http.ResponseWriter, r *http.Request) {
	chain, err := pathChain(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	q := r.URL.Query()
	opts := explorer.AccountHistoryOptions{
		FromDate: q.Get("from_date"),
		ToDate:   q.Get("to_date"),
		SortBy:   q.Get("sort_by"),
		Type:     q.Get("type"),
		AggField: q.Get("agg_field"),
	}
	if v := q.Get("from"); v != "" {
		opts.From, err = strconv.Atoi(v)
		if err != nil {
			s.writeError(w, r, fmt.Errorf("%w: from", errBadRequest))
			return
		}
	}
	if v := q.Get("size"); v != "" {
		opts.Size, err = strconv.Atoi(v)
		if err != nil {
			s.writeError(w, r, fmt.Errorf("%w: size", errBadRequest))
			return
		}
	}

	history, err := s.explorer.AccountHistory(r.Context(), chain, mux.Vars(r)["id"], opts)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeSuccess(w, history)
}

func (s *Server) topMarketsHandler(w http.ResponseWriter, r *http.Request) {
	chain, err := pathChain(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	markets, err := s.explorer.TopMarkets(r.Context(), chain)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeSuccess(w, markets)
}

// -----------------------------------------------------------------------------
// Deep links
// -----------------------------------------------------------------------------

func (s *Server) beetHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Chain      string            `json:"chain"`
		OpType     string            `json:"opType"`
		Operations []json.RawMessage `json:"operations"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, fmt.Errorf("%w: body", errBadRequest))
		return
	}
	if req.OpType == "" || len(req.Operations) == 0 {
		s.writeError(w, r, fmt.Errorf("%w: opType and operations", errBadRequest))
		return
	}
	chain, err := model.ParseChain(req.Chain)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	link, err := s.deeplink.Generate(r.Context(), chain, req.OpType, req.Operations)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeSuccess(w, map[string]string{"generatedDeepLink": link})
}
