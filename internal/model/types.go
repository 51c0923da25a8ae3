package model

import (
	"encoding/json"
	"fmt"
)

// -----------------------------------------------------------------------------
// Reference datasets (fixture-backed)
// -----------------------------------------------------------------------------

// Asset is one retained asset record from the allAssets fixture.
type Asset struct {
	ID               string      `json:"id"`
	Symbol           string      `json:"symbol"`
	Precision        int         `json:"precision"`
	Issuer           string      `json:"issuer"`
	MarketFeePercent int         `json:"market_fee_percent"`
	MaxMarketFee     json.Number `json:"max_market_fee"`
	MaxSupply        json.Number `json:"max_supply"`
	BitassetDataID   string      `json:"bitasset_data_id,omitempty"`
}

// MinAsset is the minimized asset projection (short keys to bound payload size).
type MinAsset struct {
	ID        string `json:"id"`
	Symbol    string `json:"s"`
	Precision int    `json:"p"`
}

// MarketSearchRow is the minimized asset projection joined with an issuer
// display string, used by client-side market search.
type MarketSearchRow struct {
	ID        string `json:"id"`
	Symbol    string `json:"s"`
	Issuer    string `json:"u"`
	Precision int    `json:"p"`
}

// AssetIssuer is one record from the assetIssuers fixture.
type AssetIssuer struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	LTM  bool   `json:"ltm"`
}

// PoolSummary is one record from the pools fixture (reduced per-pool view).
type PoolSummary struct {
	ID               string      `json:"id"`
	AssetAID         string      `json:"asset_a_id"`
	AssetASymbol     string      `json:"asset_a_symbol"`
	AssetBID         string      `json:"asset_b_id"`
	AssetBSymbol     string      `json:"asset_b_symbol"`
	ShareAssetSymbol string      `json:"share_asset_symbol"`
	BalanceA         json.Number `json:"balance_a"`
	BalanceB         json.Number `json:"balance_b"`
	TakerFeePercent  int         `json:"taker_fee_percent"`
}

// MinPool is the minimized pool projection.
type MinPool struct {
	ID              string `json:"id"`
	AssetASymbol    string `json:"a"`
	AssetBSymbol    string `json:"b"`
	ShareAsset      string `json:"sa"`
	TakerFeePercent int    `json:"tfp"`
}

// PoolDetail is one record from the allPools fixture (full on-chain shape).
type PoolDetail struct {
	ID                   string          `json:"id"`
	AssetA               string          `json:"asset_a"`
	AssetB               string          `json:"asset_b"`
	BalanceA             json.Number     `json:"balance_a"`
	BalanceB             json.Number     `json:"balance_b"`
	ShareAsset           string          `json:"share_asset"`
	TakerFeePercent      int             `json:"taker_fee_percent"`
	WithdrawalFeePercent int             `json:"withdrawal_fee_percent"`
	VirtualValue         json.Number     `json:"virtual_value,omitempty"`
	Details              json.RawMessage `json:"details,omitempty"`
}

// BitassetData is one price-feed record from the bitassetData fixture.
type BitassetData struct {
	ID                 string          `json:"id"`
	AssetID            string          `json:"asset_id"`
	Feeds              []Feed          `json:"feeds"`
	MedianFeed         MedianFeed      `json:"median_feed"`
	CurrentFeed        json.RawMessage `json:"current_feed,omitempty"`
	Options            BitassetOptions `json:"options"`
	IsPredictionMarket bool            `json:"is_prediction_market"`
	SettlementPrice    json.RawMessage `json:"settlement_price,omitempty"`
	SettlementFund     json.Number     `json:"settlement_fund,omitempty"`
}

// Feed is a single published price feed. On the wire it is a two-element
// array [publisher-account-id, feed-data].
type Feed struct {
	Publisher string
	Data      json.RawMessage
}

// UnmarshalJSON decodes the [publisher, data] array form.
func (f *Feed) UnmarshalJSON(b []byte) error {
	var arr []json.RawMessage
	if err := json.Unmarshal(b, &arr); err != nil {
		return err
	}
	if len(arr) != 2 {
		return fmt.Errorf("feed: expected 2 elements, got %d", len(arr))
	}
	if err := json.Unmarshal(arr[0], &f.Publisher); err != nil {
		return fmt.Errorf("feed publisher: %w", err)
	}
	f.Data = arr[1]
	return nil
}

// MarshalJSON re-emits the wire array form so cached blobs round-trip.
func (f Feed) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{f.Publisher, f.Data})
}

// MedianFeed carries the collateral ratios of the median price feed.
type MedianFeed struct {
	MaintenanceCollateralRatio int             `json:"maintenance_collateral_ratio"`
	MaximumShortSqueezeRatio   int             `json:"maximum_short_squeeze_ratio"`
	InitialCollateralRatio     int             `json:"initial_collateral_ratio"`
	SettlementPrice            json.RawMessage `json:"settlement_price,omitempty"`
	CoreExchangeRate           json.RawMessage `json:"core_exchange_rate,omitempty"`
}

// BitassetOptions is the subset of bitasset options the gateway inspects.
type BitassetOptions struct {
	ShortBackingAsset string `json:"short_backing_asset"`
	FeedLifetimeSec   int    `json:"feed_lifetime_sec"`
	MinimumFeeds      int    `json:"minimum_feeds"`
}

// MinBitasset is the minimized bitasset projection, joined with its asset's
// issuer record.
type MinBitasset struct {
	ID         string       `json:"id"`
	AssetID    string       `json:"assetID"`
	Issuer     *AssetIssuer `json:"issuer"`
	Feeds      []string     `json:"feeds"`
	Collateral string       `json:"collateral"`
	MCR        int          `json:"mcr"`
	MSSR       int          `json:"mssr"`
	ICR        int          `json:"icr"`
}

// CreditOffer is one lending offer from the allOffers fixture.
type CreditOffer struct {
	ID                   string          `json:"id"`
	OwnerAccount         string          `json:"owner_account"`
	AssetType            string          `json:"asset_type"`
	TotalBalance         json.Number     `json:"total_balance"`
	CurrentBalance       json.Number     `json:"current_balance"`
	FeeRate              int             `json:"fee_rate"`
	MaxDurationSeconds   int             `json:"max_duration_seconds"`
	MinDealAmount        json.Number     `json:"min_deal_amount"`
	Enabled              bool            `json:"enabled"`
	AutoDisableTime      string          `json:"auto_disable_time"`
	AcceptableCollateral json.RawMessage `json:"acceptable_collateral,omitempty"`
	AcceptableBorrowers  json.RawMessage `json:"acceptable_borrowers,omitempty"`
}

// DynamicData is one asset dynamic-data record (2.3.x objects).
type DynamicData struct {
	ID                 string      `json:"id"`
	CurrentSupply      json.Number `json:"current_supply"`
	ConfidentialSupply json.Number `json:"confidential_supply"`
	AccumulatedFees    json.Number `json:"accumulated_fees"`
	FeePool            json.Number `json:"fee_pool"`
}

// -----------------------------------------------------------------------------
// Transaction contract types
// -----------------------------------------------------------------------------

// Amount is an asset quantity in an operation descriptor.
type Amount struct {
	Amount  int64  `json:"amount"`
	AssetID string `json:"asset_id"`
}

// PoolExchange is the liquidity-pool swap operation descriptor accepted by
// the deep-link endpoint.
type PoolExchange struct {
	Account      string `json:"account"`
	Pool         string `json:"pool"`
	AmountToSell Amount `json:"amount_to_sell"`
	MinToReceive Amount `json:"min_to_receive"`
	Extensions   []any  `json:"extensions"`
}
