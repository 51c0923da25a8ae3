package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/btslabs/chain-gateway/internal/aggregate"
	"github.com/btslabs/chain-gateway/internal/cache"
	"github.com/btslabs/chain-gateway/internal/explorer"
	"github.com/btslabs/chain-gateway/internal/fetch"
	"github.com/btslabs/chain-gateway/internal/metrics"
	"github.com/btslabs/chain-gateway/internal/model"
	"github.com/btslabs/chain-gateway/internal/rpc"
)

// fakeSnapshots serves canned blobs and records.
type fakeSnapshots struct {
	blob []byte
	err  error
}

func (f *fakeSnapshots) Blob(chain model.Chain, dataset cache.Dataset) ([]byte, error) {
	return f.blob, f.err
}

func (f *fakeSnapshots) BlobAll(dataset cache.Dataset) (map[model.Chain][]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	return map[model.Chain][]byte{model.Mainnet: f.blob, model.Testnet: f.blob}, nil
}

func (f *fakeSnapshots) Asset(chain model.Chain, idOrSymbol string) (model.Asset, error) {
	if f.err != nil {
		return model.Asset{}, f.err
	}
	return model.Asset{ID: "1.3.0", Symbol: "BTS", Precision: 5}, nil
}

func (f *fakeSnapshots) Pool(chain model.Chain, id string) (model.PoolDetail, error) {
	if f.err != nil {
		return model.PoolDetail{}, f.err
	}
	return model.PoolDetail{ID: id}, nil
}

func (f *fakeSnapshots) DynamicData(chain model.Chain, id string) (model.DynamicData, error) {
	if f.err != nil {
		return model.DynamicData{}, f.err
	}
	return model.DynamicData{ID: id}, nil
}

// fakeQuerier returns one canned payload for every live query.
type fakeQuerier struct {
	err error
}

func (f *fakeQuerier) payload() (json.RawMessage, error) {
	if f.err != nil {
		return nil, f.err
	}
	return json.RawMessage(`{"ok":true}`), nil
}

func (f *fakeQuerier) Portfolio(ctx context.Context, chain model.Chain, accountID string) (*aggregate.Portfolio, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &aggregate.Portfolio{
		Balances:    json.RawMessage(`[]`),
		LimitOrders: json.RawMessage(`[]`),
	}, nil
}

func (f *fakeQuerier) MarketTrades(ctx context.Context, chain model.Chain, quote, base, accountID string) (*aggregate.MarketTrades, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &aggregate.MarketTrades{Ticker: json.RawMessage(`{}`)}, nil
}

func (f *fakeQuerier) Smartcoin(ctx context.Context, chain model.Chain, assetID, accountID string) (*aggregate.Smartcoin, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &aggregate.Smartcoin{Asset: json.RawMessage(`{}`)}, nil
}

func (f *fakeQuerier) AccountSearch(ctx context.Context, chain model.Chain, nameOrID string) (json.RawMessage, error) {
	return f.payload()
}

func (f *fakeQuerier) FullAccount(ctx context.Context, chain model.Chain, accountID string) (json.RawMessage, error) {
	return f.payload()
}

func (f *fakeQuerier) AccountBalances(ctx context.Context, chain model.Chain, accountID string) (json.RawMessage, error) {
	return f.payload()
}

func (f *fakeQuerier) LimitOrders(ctx context.Context, chain model.Chain, accountID string, limit int, lastID string) (json.RawMessage, error) {
	return f.payload()
}

func (f *fakeQuerier) OrderBook(ctx context.Context, chain model.Chain, quote, base string) (json.RawMessage, error) {
	return f.payload()
}

func (f *fakeQuerier) MarketLimitOrders(ctx context.Context, chain model.Chain, quote, base string) (json.RawMessage, error) {
	return f.payload()
}

func (f *fakeQuerier) CreditDeals(ctx context.Context, chain model.Chain, nameOrID string) (*aggregate.CreditDeals, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &aggregate.CreditDeals{
		BorrowerDeals: json.RawMessage(`[]`),
		OwnerDeals:    json.RawMessage(`[]`),
	}, nil
}

func (f *fakeQuerier) BlockedAccounts(ctx context.Context, chain model.Chain) (json.RawMessage, error) {
	return f.payload()
}

type fakeFetcher struct {
	gotIDs []string
	err    error
}

func (f *fakeFetcher) GetObjects(ctx context.Context, chain model.Chain, ids []string, opts ...fetch.Option) ([]json.RawMessage, error) {
	f.gotIDs = ids
	if f.err != nil {
		return nil, f.err
	}
	out := make([]json.RawMessage, len(ids))
	for i, id := range ids {
		out[i] = json.RawMessage(fmt.Sprintf(`{"id":%q}`, id))
	}
	return out, nil
}

type fakeExplorer struct{ err error }

func (f *fakeExplorer) AccountHistory(ctx context.Context, chain model.Chain, accountID string, opts explorer.AccountHistoryOptions) (json.RawMessage, error) {
	if f.err != nil {
		return nil, f.err
	}
	return json.RawMessage(`[]`), nil
}

func (f *fakeExplorer) TopMarkets(ctx context.Context, chain model.Chain) (json.RawMessage, error) {
	if f.err != nil {
		return nil, f.err
	}
	return json.RawMessage(`{}`), nil
}

type fakeDeepLinker struct {
	gotOpType string
	err       error
}

func (f *fakeDeepLinker) Generate(ctx context.Context, chain model.Chain, opType string, operations []json.RawMessage) (string, error) {
	f.gotOpType = opType
	if f.err != nil {
		return "", f.err
	}
	return "encoded-link", nil
}

type testDeps struct {
	snapshots *fakeSnapshots
	querier   *fakeQuerier
	fetcher   *fakeFetcher
	explorer  *fakeExplorer
	deeplink  *fakeDeepLinker
}

func newTestServer(t *testing.T, deps testDeps) *Server {
	t.Helper()
	if deps.snapshots == nil {
		deps.snapshots = &fakeSnapshots{blob: []byte("gzipped")}
	}
	if deps.querier == nil {
		deps.querier = &fakeQuerier{}
	}
	if deps.fetcher == nil {
		deps.fetcher = &fakeFetcher{}
	}
	if deps.explorer == nil {
		deps.explorer = &fakeExplorer{}
	}
	if deps.deeplink == nil {
		deps.deeplink = &fakeDeepLinker{}
	}
	return New(DefaultConfig(), deps.snapshots, deps.querier, deps.fetcher, deps.explorer, deps.deeplink, nil, nil)
}

func do(t *testing.T, s *Server, method, path string, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body == "" {
		reader = bytes.NewReader(nil)
	} else {
		reader = bytes.NewReader([]byte(body))
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func decodeSuccess(t *testing.T, rec *httptest.ResponseRecorder) json.RawMessage {
	t.Helper()
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var env struct {
		Message string          `json:"message"`
		Result  json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if env.Message != "Success!" {
		t.Errorf("message = %q, want Success!", env.Message)
	}
	return env.Result
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder, wantStatus int, wantKind string) {
	t.Helper()
	if rec.Code != wantStatus {
		t.Fatalf("status = %d, want %d (body %s)", rec.Code, wantStatus, rec.Body.String())
	}
	var env struct {
		Message string `json:"message"`
		Error   struct {
			Kind string `json:"kind"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode error envelope: %v", err)
	}
	if env.Error.Kind != wantKind {
		t.Errorf("kind = %q, want %q", env.Error.Kind, wantKind)
	}
	if env.Message == "" {
		t.Error("error message empty")
	}
}

func TestHealthz(t *testing.T) {
	rec := do(t, newTestServer(t, testDeps{}), "GET", "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestBlob_ServedVerbatim(t *testing.T) {
	blob := []byte{0x1f, 0x8b, 0x08, 0x00, 0xff}
	s := newTestServer(t, testDeps{snapshots: &fakeSnapshots{blob: blob}})

	rec := do(t, s, "GET", "/cache/bitshares/allAssets", "")
	result := decodeSuccess(t, rec)

	var got []byte
	if err := json.Unmarshal(result, &got); err != nil {
		t.Fatalf("result is not base64 bytes: %v", err)
	}
	if !bytes.Equal(got, blob) {
		t.Errorf("blob = %x, want %x", got, blob)
	}
}

func TestBlobAll_BothChains(t *testing.T) {
	s := newTestServer(t, testDeps{snapshots: &fakeSnapshots{blob: []byte("x")}})

	rec := do(t, s, "GET", "/cache/all/minPools", "")
	result := decodeSuccess(t, rec)

	var got map[model.Chain]string
	if err := json.Unmarshal(result, &got); err != nil {
		t.Fatalf("decode combined result: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("chains = %d, want 2", len(got))
	}
	want := base64.StdEncoding.EncodeToString([]byte("x"))
	if got[model.Mainnet] != want {
		t.Errorf("mainnet blob = %q, want %q", got[model.Mainnet], want)
	}
}

func TestInvalidChainRejected(t *testing.T) {
	s := newTestServer(t, testDeps{})

	rec := do(t, s, "GET", "/cache/ethereum/allAssets", "")
	decodeError(t, rec, http.StatusBadRequest, kindValidation)
}

func TestAssetLookup_NotFound(t *testing.T) {
	s := newTestServer(t, testDeps{snapshots: &fakeSnapshots{
		err: fmt.Errorf("%w: asset GOLD", cache.ErrNotFound),
	}})

	rec := do(t, s, "GET", "/cache/bitshares/asset/GOLD", "")
	decodeError(t, rec, http.StatusNotFound, kindNotFound)
}

func TestPortfolio(t *testing.T) {
	s := newTestServer(t, testDeps{})

	rec := do(t, s, "GET", "/chain/bitshares/portfolio/1.2.100", "")
	result := decodeSuccess(t, rec)

	var p aggregate.Portfolio
	if err := json.Unmarshal(result, &p); err != nil {
		t.Fatalf("decode portfolio: %v", err)
	}
	if string(p.Balances) != "[]" {
		t.Errorf("balances = %s", p.Balances)
	}
}

func TestConnectionFailureMapsToBadGateway(t *testing.T) {
	s := newTestServer(t, testDeps{querier: &fakeQuerier{
		err: fmt.Errorf("%w: dial wss://a", rpc.ErrConnection),
	}})

	rec := do(t, s, "GET", "/chain/bitshares/portfolio/1.2.100", "")
	decodeError(t, rec, http.StatusBadGateway, kindConnection)
}

func TestMissingRequiredMapsToNotFound(t *testing.T) {
	s := newTestServer(t, testDeps{querier: &fakeQuerier{
		err: fmt.Errorf("%w: balances", aggregate.ErrMissingRequired),
	}})

	rec := do(t, s, "GET", "/chain/bitshares_testnet/portfolio/1.2.100", "")
	decodeError(t, rec, http.StatusNotFound, kindNotFound)
}

func TestObjects(t *testing.T) {
	fetcher := &fakeFetcher{}
	s := newTestServer(t, testDeps{fetcher: fetcher})

	rec := do(t, s, "POST", "/chain/bitshares/objects", `{"ids":["1.3.0","1.3.1"]}`)
	result := decodeSuccess(t, rec)

	var objs []json.RawMessage
	if err := json.Unmarshal(result, &objs); err != nil {
		t.Fatalf("decode objects: %v", err)
	}
	if len(objs) != 2 {
		t.Errorf("len(objs) = %d, want 2", len(objs))
	}
	if len(fetcher.gotIDs) != 2 || fetcher.gotIDs[0] != "1.3.0" {
		t.Errorf("fetcher saw %v", fetcher.gotIDs)
	}
}

func TestObjects_EmptyIDsRejected(t *testing.T) {
	s := newTestServer(t, testDeps{})

	rec := do(t, s, "POST", "/chain/bitshares/objects", `{"ids":[]}`)
	decodeError(t, rec, http.StatusBadRequest, kindValidation)
}

func TestBeet(t *testing.T) {
	dl := &fakeDeepLinker{}
	s := newTestServer(t, testDeps{deeplink: dl})

	body := `{"chain":"bitshares","opType":"liquidity_pool_exchange","operations":[{"account":"1.2.100"}]}`
	rec := do(t, s, "POST", "/beet", body)
	result := decodeSuccess(t, rec)

	var res map[string]string
	if err := json.Unmarshal(result, &res); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if res["generatedDeepLink"] != "encoded-link" {
		t.Errorf("link = %q", res["generatedDeepLink"])
	}
	if dl.gotOpType != "liquidity_pool_exchange" {
		t.Errorf("opType = %q", dl.gotOpType)
	}
}

func TestBeet_MissingFields(t *testing.T) {
	s := newTestServer(t, testDeps{})

	rec := do(t, s, "POST", "/beet", `{"chain":"bitshares"}`)
	decodeError(t, rec, http.StatusBadRequest, kindValidation)
}

func TestBeet_InvalidChain(t *testing.T) {
	s := newTestServer(t, testDeps{})

	body := `{"chain":"dogecoin","opType":"transfer","operations":[{}]}`
	rec := do(t, s, "POST", "/beet", body)
	decodeError(t, rec, http.StatusBadRequest, kindValidation)
}

func TestAccountHistory_QueryParams(t *testing.T) {
	s := newTestServer(t, testDeps{})

	rec := do(t, s, "GET", "/explorer/bitshares/accountHistory/1.2.100?from=10&size=20", "")
	decodeSuccess(t, rec)
}

func TestAccountHistory_BadFrom(t *testing.T) {
	s := newTestServer(t, testDeps{})

	rec := do(t, s, "GET", "/explorer/bitshares/accountHistory/1.2.100?from=abc", "")
	decodeError(t, rec, http.StatusBadRequest, kindValidation)
}

func TestMetricsRoute(t *testing.T) {
	m := metrics.New()
	s := New(DefaultConfig(), &fakeSnapshots{}, &fakeQuerier{}, &fakeFetcher{}, &fakeExplorer{}, &fakeDeepLinker{}, m, nil)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "go_goroutines") {
		t.Error("metrics output missing runtime collectors")
	}
}
