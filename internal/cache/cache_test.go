package cache

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"

	"github.com/btslabs/chain-gateway/internal/model"
)

const testAssets = `[
  {"id": "1.3.0", "symbol": "BTS", "precision": 5, "issuer": "1.2.3",
   "market_fee_percent": 0, "max_market_fee": "1000000000000000", "max_supply": "360057050210207"},
  {"id": "1.3.113", "symbol": "CNY", "precision": 4, "issuer": "1.2.0",
   "market_fee_percent": 0, "max_market_fee": "0", "max_supply": "1000000000000000",
   "bitasset_data_id": "2.4.13"},
  {"id": "1.3.150", "symbol": "", "precision": 0, "issuer": "1.2.0",
   "market_fee_percent": 0, "max_market_fee": "0", "max_supply": "0"}
]`

const testIssuers = `[
  {"id": "1.2.3", "name": "committee-account", "ltm": false},
  {"id": "1.2.0", "name": "lifetime-member", "ltm": true}
]`

const testPools = `[
  {"id": "1.19.0", "asset_a_id": "1.3.0", "asset_a_symbol": "BTS",
   "asset_b_id": "1.3.113", "asset_b_symbol": "CNY", "share_asset_symbol": "BTSCNY",
   "balance_a": "1000", "balance_b": "2000", "taker_fee_percent": 30}
]`

const testAllPools = `[
  {"id": "1.19.0", "asset_a": "1.3.0", "asset_b": "1.3.113",
   "balance_a": "1000", "balance_b": "2000", "share_asset": "1.3.200",
   "taker_fee_percent": 30, "withdrawal_fee_percent": 0}
]`

const testBitassets = `[
  {"id": "2.4.13", "asset_id": "1.3.113",
   "feeds": [["1.2.100", [ "2024-01-01T00:00:00", {"settlement_price": {}} ]]],
   "median_feed": {"maintenance_collateral_ratio": 1750, "maximum_short_squeeze_ratio": 1100,
     "initial_collateral_ratio": 1900},
   "options": {"short_backing_asset": "1.3.0", "feed_lifetime_sec": 86400, "minimum_feeds": 7},
   "is_prediction_market": false},
  {"id": "2.4.14", "asset_id": "1.3.114", "feeds": [],
   "median_feed": {"maintenance_collateral_ratio": 0, "maximum_short_squeeze_ratio": 0,
     "initial_collateral_ratio": 0},
   "options": {"short_backing_asset": "1.3.0", "feed_lifetime_sec": 0, "minimum_feeds": 0},
   "is_prediction_market": false},
  {"id": "2.4.15", "asset_id": "1.3.115",
   "feeds": [["1.2.100", [ "2024-01-01T00:00:00", {} ]]],
   "median_feed": {"maintenance_collateral_ratio": 0, "maximum_short_squeeze_ratio": 0,
     "initial_collateral_ratio": 0},
   "options": {"short_backing_asset": "1.3.0", "feed_lifetime_sec": 0, "minimum_feeds": 0},
   "is_prediction_market": true}
]`

const testOffers = `[
  {"id": "1.21.0", "owner_account": "1.2.10", "asset_type": "1.3.0",
   "total_balance": "100", "current_balance": "50", "fee_rate": 10000,
   "max_duration_seconds": 86400, "min_deal_amount": "1", "enabled": true,
   "auto_disable_time": "2030-01-01T00:00:00"},
  {"id": "1.21.1", "owner_account": "1.2.11", "asset_type": "1.3.0",
   "total_balance": "100", "current_balance": "50", "fee_rate": 10000,
   "max_duration_seconds": 86400, "min_deal_amount": "1", "enabled": false,
   "auto_disable_time": "2030-01-01T00:00:00"},
  {"id": "1.21.2", "owner_account": "1.2.12", "asset_type": "1.3.0",
   "total_balance": "100", "current_balance": "50", "fee_rate": 600000,
   "max_duration_seconds": 86400, "min_deal_amount": "1", "enabled": true,
   "auto_disable_time": "2030-01-01T00:00:00"}
]`

const testDynamic = `[
  {"id": "2.3.0", "current_supply": "299000000000000", "confidential_supply": "0",
   "accumulated_fees": "100", "fee_pool": "5000"}
]`

const testFees = `{"parameters": [[0, {"fee": 86869, "price_per_kbyte": 48232}]], "scale": 10000}`

func writeFixtures(t *testing.T) Config {
	t.Helper()
	dir := t.TempDir()

	files := map[string]string{
		"allAssets.json":    testAssets,
		"assetIssuers.json": testIssuers,
		"pools.json":        testPools,
		"allPools.json":     testAllPools,
		"bitassetData.json": testBitassets,
		"allOffers.json":    testOffers,
		"dynamicData.json":  testDynamic,
		"fees.json":         testFees,
	}
	for _, chain := range model.Chains() {
		chainDir := filepath.Join(dir, string(chain))
		if err := os.MkdirAll(chainDir, 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		for name, content := range files {
			if err := os.WriteFile(filepath.Join(chainDir, name), []byte(content), 0o644); err != nil {
				t.Fatalf("write %s: %v", name, err)
			}
		}
	}
	return Config{Dir: dir}
}

func buildStore(t *testing.T) *Store {
	t.Helper()
	s, err := Build(writeFixtures(t), nil)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	return s
}

func decompress(t *testing.T, blob []byte) []byte {
	t.Helper()
	zr, err := gzip.NewReader(bytes.NewReader(blob))
	if err != nil {
		t.Fatalf("gzip reader: %v", err)
	}
	defer zr.Close()
	data, err := io.ReadAll(zr)
	if err != nil {
		t.Fatalf("decompress: %v", err)
	}
	return data
}

func TestAsset_ByIDAndSymbol(t *testing.T) {
	s := buildStore(t)

	byID, err := s.Asset(model.Mainnet, "1.3.0")
	if err != nil {
		t.Fatalf("Asset by id failed: %v", err)
	}
	bySymbol, err := s.Asset(model.Mainnet, "BTS")
	if err != nil {
		t.Fatalf("Asset by symbol failed: %v", err)
	}
	if byID != bySymbol {
		t.Errorf("lookup by id and symbol diverge: %+v vs %+v", byID, bySymbol)
	}
	if byID.Precision != 5 {
		t.Errorf("Precision = %d, want 5", byID.Precision)
	}
}

func TestAsset_NotFound(t *testing.T) {
	s := buildStore(t)

	_, err := s.Asset(model.Mainnet, "NOSUCH")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestAsset_PlaceholderExcluded(t *testing.T) {
	s := buildStore(t)

	// 1.3.150 has no symbol and must not survive the build.
	if _, err := s.Asset(model.Mainnet, "1.3.150"); !errors.Is(err, ErrNotFound) {
		t.Errorf("placeholder asset retained: err = %v, want ErrNotFound", err)
	}
}

func TestPool_Lookup(t *testing.T) {
	s := buildStore(t)

	p, err := s.Pool(model.Mainnet, "1.19.0")
	if err != nil {
		t.Fatalf("Pool failed: %v", err)
	}
	if p.AssetA != "1.3.0" {
		t.Errorf("AssetA = %q, want 1.3.0", p.AssetA)
	}

	if _, err := s.Pool(model.Mainnet, "1.19.99"); !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound for absent pool", err)
	}
}

func TestDynamicData_Lookup(t *testing.T) {
	s := buildStore(t)

	d, err := s.DynamicData(model.Mainnet, "2.3.0")
	if err != nil {
		t.Fatalf("DynamicData failed: %v", err)
	}
	if d.CurrentSupply.String() != "299000000000000" {
		t.Errorf("CurrentSupply = %s, want 299000000000000", d.CurrentSupply)
	}

	if _, err := s.DynamicData(model.Mainnet, "2.3.99"); !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestBlob_CompressionRoundTrip(t *testing.T) {
	s := buildStore(t)

	blob, err := s.Blob(model.Mainnet, DatasetAssets)
	if err != nil {
		t.Fatalf("Blob failed: %v", err)
	}
	got := decompress(t, blob)

	// Decompression reproduces byte-for-byte the JSON serialization of the
	// filtered collection: the two real assets, not the placeholder.
	var assets []model.Asset
	if err := json.Unmarshal([]byte(testAssets), &assets); err != nil {
		t.Fatalf("unmarshal fixture: %v", err)
	}
	want, err := json.Marshal(filterAssets(assets))
	if err != nil {
		t.Fatalf("marshal want: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Errorf("round trip mismatch:\ngot  %s\nwant %s", got, want)
	}
}

func TestBlob_OfferFilter(t *testing.T) {
	s := buildStore(t)

	blob, err := s.Blob(model.Mainnet, DatasetOffers)
	if err != nil {
		t.Fatalf("Blob failed: %v", err)
	}

	var offers []model.CreditOffer
	if err := json.Unmarshal(decompress(t, blob), &offers); err != nil {
		t.Fatalf("unmarshal offers: %v", err)
	}
	// Disabled offer and 60%-fee offer are dropped.
	if len(offers) != 1 {
		t.Fatalf("len(offers) = %d, want 1", len(offers))
	}
	if offers[0].ID != "1.21.0" {
		t.Errorf("offer = %s, want 1.21.0", offers[0].ID)
	}
}

func TestBlob_BitassetFilter(t *testing.T) {
	s := buildStore(t)

	blob, err := s.Blob(model.Mainnet, DatasetMinBitassets)
	if err != nil {
		t.Fatalf("Blob failed: %v", err)
	}

	var records []model.MinBitasset
	if err := json.Unmarshal(decompress(t, blob), &records); err != nil {
		t.Fatalf("unmarshal bitassets: %v", err)
	}
	// Feedless record and prediction market are dropped.
	if len(records) != 1 {
		t.Fatalf("len(records) = %d, want 1", len(records))
	}
	r := records[0]
	if r.AssetID != "1.3.113" {
		t.Errorf("AssetID = %s, want 1.3.113", r.AssetID)
	}
	if len(r.Feeds) != 1 || r.Feeds[0] != "1.2.100" {
		t.Errorf("Feeds = %v, want [1.2.100]", r.Feeds)
	}
	if r.MCR != 1750 || r.MSSR != 1100 || r.ICR != 1900 {
		t.Errorf("ratios = %d/%d/%d, want 1750/1100/1900", r.MCR, r.MSSR, r.ICR)
	}
	if r.Issuer == nil || r.Issuer.Name != "lifetime-member" {
		t.Errorf("Issuer = %+v, want lifetime-member", r.Issuer)
	}
	if r.Collateral != "1.3.0" {
		t.Errorf("Collateral = %s, want 1.3.0", r.Collateral)
	}
}

func TestBlob_MarketSearchProjection(t *testing.T) {
	s := buildStore(t)

	blob, err := s.Blob(model.Mainnet, DatasetMarketSearch)
	if err != nil {
		t.Fatalf("Blob failed: %v", err)
	}

	var rows []model.MarketSearchRow
	if err := json.Unmarshal(decompress(t, blob), &rows); err != nil {
		t.Fatalf("unmarshal rows: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("len(rows) = %d, want 2", len(rows))
	}
	if rows[0].Issuer != "committee-account (1.2.3) " {
		t.Errorf("Issuer = %q, want %q", rows[0].Issuer, "committee-account (1.2.3) ")
	}
	if rows[1].Issuer != "lifetime-member (1.2.0) (LTM)" {
		t.Errorf("Issuer = %q, want %q", rows[1].Issuer, "lifetime-member (1.2.0) (LTM)")
	}
}

func TestBlobAll_CombinedMode(t *testing.T) {
	s := buildStore(t)

	all, err := s.BlobAll(DatasetMinPools)
	if err != nil {
		t.Fatalf("BlobAll failed: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("len(all) = %d, want 2", len(all))
	}
	for _, chain := range model.Chains() {
		blob, ok := all[chain]
		if !ok {
			t.Fatalf("missing chain %s in combined result", chain)
		}
		var pools []model.MinPool
		if err := json.Unmarshal(decompress(t, blob), &pools); err != nil {
			t.Fatalf("unmarshal %s pools: %v", chain, err)
		}
		if len(pools) != 1 || pools[0].ShareAsset != "BTSCNY" {
			t.Errorf("%s pools = %+v, want one BTSCNY entry", chain, pools)
		}
	}
}

func TestBuild_MissingFixture(t *testing.T) {
	cfg := writeFixtures(t)
	os.Remove(filepath.Join(cfg.Dir, string(model.Mainnet), "fees.json"))

	if _, err := Build(cfg, nil); err == nil {
		t.Error("expected error for missing fixture file")
	}
}
