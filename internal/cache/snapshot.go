package cache

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"

	"github.com/btslabs/chain-gateway/internal/model"
)

// Errors
var (
	// ErrNotFound is the single not-found condition for every point lookup.
	ErrNotFound = errors.New("not found in cache")

	// ErrUnknownChain indicates the store was built without the chain.
	ErrUnknownChain = errors.New("chain not present in cache")
)

// Filtering thresholds.
const (
	// maxOfferFeeRate caps retained credit offers at a 50% fee rate.
	maxOfferFeeRate = 500000
)

// Config holds snapshot build settings.
type Config struct {
	// Dir is the fixtures root; each chain has a subdirectory holding
	// allAssets.json, assetIssuers.json, allPools.json, pools.json,
	// bitassetData.json, allOffers.json, fees.json and dynamicData.json.
	Dir string
}

// Dataset names a cached reference dataset.
type Dataset string

const (
	DatasetAssets       Dataset = "allAssets"
	DatasetMinAssets    Dataset = "minAssets"
	DatasetMarketSearch Dataset = "marketSearch"
	DatasetPools        Dataset = "pools"
	DatasetMinPools     Dataset = "minPools"
	DatasetMinBitassets Dataset = "minBitassets"
	DatasetOffers       Dataset = "offers"
	DatasetFeeSchedule  Dataset = "feeSchedule"
)

// Store serves immutable compressed snapshots and point lookups.
type Store struct {
	chains map[model.Chain]*chainData
}

type chainData struct {
	// Uncompressed collections backing point lookups.
	assets  []model.Asset
	pools   []model.PoolDetail
	dynamic []model.DynamicData

	// Compressed blobs, built once.
	blobs map[Dataset][]byte
}

// Build ingests the fixture files for every supported chain and produces
// the compressed snapshots.
func Build(cfg Config, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Store{chains: make(map[model.Chain]*chainData)}
	for _, chain := range model.Chains() {
		cd, err := buildChain(filepath.Join(cfg.Dir, string(chain)))
		if err != nil {
			return nil, fmt.Errorf("build %s cache: %w", chain, err)
		}
		s.chains[chain] = cd
		logger.Info("snapshot cache built",
			"chain", chain,
			"assets", len(cd.assets),
			"pools", len(cd.pools),
		)
	}
	return s, nil
}

func buildChain(dir string) (*chainData, error) {
	var (
		assets   []model.Asset
		issuers  []model.AssetIssuer
		pools    []model.PoolDetail
		summary  []model.PoolSummary
		bitasset []model.BitassetData
		offers   []model.CreditOffer
		dynamic  []model.DynamicData
		fees     json.RawMessage
	)
	if err := loadJSON(dir, "allAssets.json", &assets); err != nil {
		return nil, err
	}
	if err := loadJSON(dir, "assetIssuers.json", &issuers); err != nil {
		return nil, err
	}
	if err := loadJSON(dir, "allPools.json", &pools); err != nil {
		return nil, err
	}
	if err := loadJSON(dir, "pools.json", &summary); err != nil {
		return nil, err
	}
	if err := loadJSON(dir, "bitassetData.json", &bitasset); err != nil {
		return nil, err
	}
	if err := loadJSON(dir, "allOffers.json", &offers); err != nil {
		return nil, err
	}
	if err := loadJSON(dir, "dynamicData.json", &dynamic); err != nil {
		return nil, err
	}
	if err := loadJSON(dir, "fees.json", &fees); err != nil {
		return nil, err
	}

	assets = filterAssets(assets)
	offers = filterOffers(offers)
	bitasset = filterBitassets(bitasset)

	cd := &chainData{
		assets:  assets,
		pools:   pools,
		dynamic: dynamic,
		blobs:   make(map[Dataset][]byte),
	}

	issuerByID := make(map[string]*model.AssetIssuer, len(issuers))
	for i := range issuers {
		issuerByID[issuers[i].ID] = &issuers[i]
	}

	datasets := map[Dataset]any{
		DatasetAssets:       assets,
		DatasetMinAssets:    minAssets(assets),
		DatasetMarketSearch: marketSearch(assets, issuerByID),
		DatasetPools:        summary,
		DatasetMinPools:     minPools(summary),
		DatasetMinBitassets: minBitassets(bitasset, assets, issuerByID),
		DatasetOffers:       offers,
		DatasetFeeSchedule:  fees,
	}
	for name, data := range datasets {
		blob, err := compress(data)
		if err != nil {
			return nil, fmt.Errorf("compress %s: %w", name, err)
		}
		cd.blobs[name] = blob
	}
	return cd, nil
}

func loadJSON(dir, name string, v any) error {
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return fmt.Errorf("read fixture %s: %w", name, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse fixture %s: %w", name, err)
	}
	return nil
}

// compress serializes v to JSON and gzips it. This runs once per dataset at
// build time; requests serve the byte sequence verbatim.
func compress(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	zw, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
	if err != nil {
		return nil, err
	}
	if _, err := zw.Write(data); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// -----------------------------------------------------------------------------
// Filters
// -----------------------------------------------------------------------------

// filterAssets drops placeholder records: entries with no symbol are dead
// objects left behind by deleted assets. Low-instance ranges known to be
// invalid are already pre-filtered by the fixture refresh job.
func filterAssets(assets []model.Asset) []model.Asset {
	out := assets[:0:0]
	for _, a := range assets {
		if a.Symbol == "" {
			continue
		}
		out = append(out, a)
	}
	return out
}

// filterOffers keeps enabled offers below the maximum fee rate.
func filterOffers(offers []model.CreditOffer) []model.CreditOffer {
	out := offers[:0:0]
	for _, o := range offers {
		if !o.Enabled || o.FeeRate >= maxOfferFeeRate {
			continue
		}
		out = append(out, o)
	}
	return out
}

// filterBitassets keeps records with at least one active price feed,
// excluding prediction markets.
func filterBitassets(records []model.BitassetData) []model.BitassetData {
	out := records[:0:0]
	for _, b := range records {
		if len(b.Feeds) == 0 || b.IsPredictionMarket {
			continue
		}
		out = append(out, b)
	}
	return out
}

// -----------------------------------------------------------------------------
// Projections
// -----------------------------------------------------------------------------

func minAssets(assets []model.Asset) []model.MinAsset {
	out := make([]model.MinAsset, 0, len(assets))
	for _, a := range assets {
		out = append(out, model.MinAsset{ID: a.ID, Symbol: a.Symbol, Precision: a.Precision})
	}
	return out
}

// marketSearch joins each asset with an issuer display string of the form
// "<name-or-???> (<issuer-id>) [(LTM)]".
func marketSearch(assets []model.Asset, issuers map[string]*model.AssetIssuer) []model.MarketSearchRow {
	out := make([]model.MarketSearchRow, 0, len(assets))
	for _, a := range assets {
		name := "???"
		ltm := ""
		if issuer, ok := issuers[a.Issuer]; ok {
			name = issuer.Name
			if issuer.LTM {
				ltm = "(LTM)"
			}
		}
		out = append(out, model.MarketSearchRow{
			ID:        a.ID,
			Symbol:    a.Symbol,
			Issuer:    fmt.Sprintf("%s (%s) %s", name, a.Issuer, ltm),
			Precision: a.Precision,
		})
	}
	return out
}

func minPools(summary []model.PoolSummary) []model.MinPool {
	out := make([]model.MinPool, 0, len(summary))
	for _, p := range summary {
		out = append(out, model.MinPool{
			ID:              p.ID,
			AssetASymbol:    p.AssetASymbol,
			AssetBSymbol:    p.AssetBSymbol,
			ShareAsset:      p.ShareAssetSymbol,
			TakerFeePercent: p.TakerFeePercent,
		})
	}
	return out
}

func minBitassets(records []model.BitassetData, assets []model.Asset, issuers map[string]*model.AssetIssuer) []model.MinBitasset {
	assetByID := make(map[string]*model.Asset, len(assets))
	for i := range assets {
		assetByID[assets[i].ID] = &assets[i]
	}

	out := make([]model.MinBitasset, 0, len(records))
	for _, b := range records {
		var issuer *model.AssetIssuer
		if a, ok := assetByID[b.AssetID]; ok {
			issuer = issuers[a.Issuer]
		}
		feeds := make([]string, 0, len(b.Feeds))
		for _, f := range b.Feeds {
			feeds = append(feeds, f.Publisher)
		}
		out = append(out, model.MinBitasset{
			ID:         b.ID,
			AssetID:    b.AssetID,
			Issuer:     issuer,
			Feeds:      feeds,
			Collateral: b.Options.ShortBackingAsset,
			MCR:        b.MedianFeed.MaintenanceCollateralRatio,
			MSSR:       b.MedianFeed.MaximumShortSqueezeRatio,
			ICR:        b.MedianFeed.InitialCollateralRatio,
		})
	}
	return out
}

// -----------------------------------------------------------------------------
// Retrieval
// -----------------------------------------------------------------------------

// Blob returns one chain's compressed snapshot for a dataset.
func (s *Store) Blob(chain model.Chain, dataset Dataset) ([]byte, error) {
	cd, ok := s.chains[chain]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownChain, chain)
	}
	blob, ok := cd.blobs[dataset]
	if !ok {
		return nil, fmt.Errorf("%w: dataset %s", ErrNotFound, dataset)
	}
	return blob, nil
}

// BlobAll returns the dataset's blobs for both chains keyed by chain
// identity, letting a caller fetch both in one round trip.
func (s *Store) BlobAll(dataset Dataset) (map[model.Chain][]byte, error) {
	out := make(map[model.Chain][]byte, len(s.chains))
	for chain := range s.chains {
		blob, err := s.Blob(chain, dataset)
		if err != nil {
			return nil, err
		}
		out[chain] = blob
	}
	return out, nil
}

// Asset scans the uncompressed asset collection and returns the first
// record matching by identifier or symbol.
func (s *Store) Asset(chain model.Chain, idOrSymbol string) (model.Asset, error) {
	cd, ok := s.chains[chain]
	if !ok {
		return model.Asset{}, fmt.Errorf("%w: %s", ErrUnknownChain, chain)
	}
	for _, a := range cd.assets {
		if a.ID == idOrSymbol || a.Symbol == idOrSymbol {
			return a, nil
		}
	}
	return model.Asset{}, fmt.Errorf("%w: asset %s", ErrNotFound, idOrSymbol)
}

// Pool returns the full pool record matching by identifier.
func (s *Store) Pool(chain model.Chain, id string) (model.PoolDetail, error) {
	cd, ok := s.chains[chain]
	if !ok {
		return model.PoolDetail{}, fmt.Errorf("%w: %s", ErrUnknownChain, chain)
	}
	for _, p := range cd.pools {
		if p.ID == id {
			return p, nil
		}
	}
	return model.PoolDetail{}, fmt.Errorf("%w: pool %s", ErrNotFound, id)
}

// DynamicData returns the asset dynamic-data record matching by identifier.
func (s *Store) DynamicData(chain model.Chain, id string) (model.DynamicData, error) {
	cd, ok := s.chains[chain]
	if !ok {
		return model.DynamicData{}, fmt.Errorf("%w: %s", ErrUnknownChain, chain)
	}
	for _, d := range cd.dynamic {
		if d.ID == id {
			return d, nil
		}
	}
	return model.DynamicData{}, fmt.Errorf("%w: dynamic data %s", ErrNotFound, id)
}
