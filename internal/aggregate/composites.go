package aggregate

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/btslabs/chain-gateway/internal/model"
	"github.com/btslabs/chain-gateway/internal/rpc"
)

// Portfolio is an account's balances and open limit orders. Both fields
// are mandatory.
type Portfolio struct {
	Balances    json.RawMessage `json:"balances"`
	LimitOrders json.RawMessage `json:"limitOrders"`
}

// Portfolio fetches an account's balances and open limit orders over one
// session.
func (a *Aggregator) Portfolio(ctx context.Context, chain model.Chain, accountID string) (*Portfolio, error) {
	sess, err := a.dial(ctx, chain)
	if err != nil {
		return nil, err
	}
	defer sess.Close()

	balances := &subQuery{
		name:      "balances",
		api:       rpc.DatabaseAPI,
		method:    "get_account_balances",
		params:    []any{accountID, []string{}},
		mandatory: true,
	}
	limitOrders := &subQuery{
		name:      "limitOrders",
		api:       rpc.DatabaseAPI,
		method:    "get_limit_orders_by_account",
		params:    []any{accountID, 100},
		mandatory: true,
	}
	if err := a.fanout(ctx, chain, sess, []*subQuery{balances, limitOrders}); err != nil {
		return nil, err
	}

	return &Portfolio{
		Balances:    balances.res,
		LimitOrders: limitOrders.res,
	}, nil
}

// Trade is one reduced market-history row.
type Trade struct {
	Date   string      `json:"date"`
	Price  json.Number `json:"price"`
	Amount json.Number `json:"amount"`
	Value  json.Number `json:"value"`
	Type   string      `json:"type"`
}

// OpenOrder is the reduced shape of one of the account's open limit
// orders.
type OpenOrder struct {
	Expiration string          `json:"expiration"`
	ForSale    json.Number     `json:"for_sale"`
	SellPrice  json.RawMessage `json:"sell_price"`
}

// MarketTrades is the market-trade view of one trading pair for one
// account. Balances and the account record are mandatory; history rows,
// the account's fill operations and the ticker default to empty.
type MarketTrades struct {
	Balances           json.RawMessage   `json:"balances"`
	MarketHistory      []Trade           `json:"marketHistory"`
	AccountLimitOrders []OpenOrder       `json:"accountLimitOrders"`
	UsrTrades          []json.RawMessage `json:"usrTrades"`
	Ticker             json.RawMessage   `json:"ticker"`
}

// marketHistoryWindow bounds the recent-trade query.
const marketHistoryWindow = 30 * 24 * time.Hour

// chainTime is the second-resolution ISO form chain nodes expect.
func chainTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05")
}

// MarketTrades fetches a trading pair's recent trades, the account's
// balances, open orders and fill history, and the pair's ticker over one
// session.
func (a *Aggregator) MarketTrades(ctx context.Context, chain model.Chain, quote, base, accountID string) (*MarketTrades, error) {
	sess, err := a.dial(ctx, chain)
	if err != nil {
		return nil, err
	}
	defer sess.Close()

	now := time.Now()
	balances := &subQuery{
		name:      "balances",
		api:       rpc.DatabaseAPI,
		method:    "get_account_balances",
		params:    []any{accountID, []string{base, quote}},
		mandatory: true,
	}
	fullAccount := &subQuery{
		name:      "fullAccount",
		api:       rpc.DatabaseAPI,
		method:    "get_full_accounts",
		params:    []any{[]string{accountID}, false},
		mandatory: true,
	}
	history := &subQuery{
		name:   "marketHistory",
		api:    rpc.DatabaseAPI,
		method: "get_trade_history",
		params: []any{base, quote, chainTime(now), chainTime(now.Add(-marketHistoryWindow)), 100},
	}
	usrTrades := &subQuery{
		name:   "usrTrades",
		api:    rpc.HistoryAPI,
		method: "get_account_history_operations",
		params: []any{accountID, fillOrderOpType, "1.11.0", "1.11.0", 100},
	}
	ticker := &subQuery{
		name:   "ticker",
		api:    rpc.DatabaseAPI,
		method: "get_ticker",
		params: []any{base, quote},
	}
	queries := []*subQuery{balances, fullAccount, history, usrTrades, ticker}
	if err := a.fanout(ctx, chain, sess, queries); err != nil {
		return nil, err
	}

	trades, err := reduceTrades(orElse(history.res, "[]"))
	if err != nil {
		return nil, fmt.Errorf("parse market history: %w", err)
	}
	orders, err := reduceOpenOrders(fullAccount.res)
	if err != nil {
		return nil, fmt.Errorf("parse account orders: %w", err)
	}
	fills, err := filterFills(orElse(usrTrades.res, "[]"), base, quote)
	if err != nil {
		return nil, fmt.Errorf("parse fill history: %w", err)
	}

	return &MarketTrades{
		Balances:           balances.res,
		MarketHistory:      trades,
		AccountLimitOrders: orders,
		UsrTrades:          fills,
		Ticker:             orElse(ticker.res, "{}"),
	}, nil
}

// fillOrderOpType is the chain's operation type number for order fills.
const fillOrderOpType = 4

func reduceTrades(raw json.RawMessage) ([]Trade, error) {
	trades := []Trade{}
	if err := json.Unmarshal(raw, &trades); err != nil {
		return nil, err
	}
	return trades, nil
}

// reduceOpenOrders projects the limit orders out of a get_full_accounts
// response, dropping everything but expiry, size and price.
func reduceOpenOrders(raw json.RawMessage) ([]OpenOrder, error) {
	// Response shape: [[accountID, {account record}]].
	var pairs [][2]json.RawMessage
	if err := json.Unmarshal(raw, &pairs); err != nil {
		return nil, err
	}
	if len(pairs) == 0 {
		return []OpenOrder{}, nil
	}
	var record struct {
		LimitOrders []OpenOrder `json:"limit_orders"`
	}
	if err := json.Unmarshal(pairs[0][1], &record); err != nil {
		return nil, err
	}
	if record.LimitOrders == nil {
		record.LimitOrders = []OpenOrder{}
	}
	return record.LimitOrders, nil
}

// filterFills keeps the fill operations whose fill price references the
// requested trading pair. Entries that fail to parse are dropped.
func filterFills(raw json.RawMessage, base, quote string) ([]json.RawMessage, error) {
	var entries []json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, err
	}

	out := []json.RawMessage{}
	for _, entry := range entries {
		var op struct {
			Op [2]json.RawMessage `json:"op"`
		}
		if err := json.Unmarshal(entry, &op); err != nil {
			continue
		}
		var details struct {
			FillPrice struct {
				Base struct {
					AssetID string `json:"asset_id"`
				} `json:"base"`
				Quote struct {
					AssetID string `json:"asset_id"`
				} `json:"quote"`
			} `json:"fill_price"`
		}
		if err := json.Unmarshal(op.Op[1], &details); err != nil {
			continue
		}
		if details.FillPrice.Base.AssetID == base && details.FillPrice.Quote.AssetID == quote {
			out = append(out, entry)
		}
	}
	return out, nil
}

// Smartcoin is the full view of one collateral-backed asset. The asset and
// its bitasset record are mandatory; the rest defaults to empty.
type Smartcoin struct {
	Asset           json.RawMessage   `json:"asset"`
	Bitasset        json.RawMessage   `json:"bitasset"`
	MarginPositions []json.RawMessage `json:"marginPositions"`
	CallOrders      json.RawMessage   `json:"callOrders"`
	SettleOrders    json.RawMessage   `json:"settleOrders"`
	OrderBook       json.RawMessage   `json:"orderBook"`
}

// Smartcoin fetches a collateral-backed asset's core objects, its call and
// settle orders, the caller's margin positions in it, and its order book
// against the backing collateral. accountID may be empty, in which case no
// margin positions are returned.
func (a *Aggregator) Smartcoin(ctx context.Context, chain model.Chain, assetID, accountID string) (*Smartcoin, error) {
	sess, err := a.dial(ctx, chain)
	if err != nil {
		return nil, err
	}
	defer sess.Close()

	// The bitasset object ID only becomes known once the asset record is
	// in hand, so the asset fetch precedes the fan-out.
	assetRaw, err := sess.Call(ctx, rpc.DatabaseAPI, "get_objects", []any{[]string{assetID}, false})
	a.countCall(chain, "get_objects", err)
	if err != nil {
		return nil, fmt.Errorf("%w: asset: %v", ErrMissingRequired, err)
	}
	var assetObjs []json.RawMessage
	if err := json.Unmarshal(assetRaw, &assetObjs); err != nil {
		return nil, fmt.Errorf("parse asset: %w", err)
	}
	if len(assetObjs) == 0 || isNull(assetObjs[0]) {
		return nil, fmt.Errorf("%w: asset", ErrMissingRequired)
	}
	var assetRecord struct {
		BitassetDataID string `json:"bitasset_data_id"`
		Options        struct {
			ShortBackingAsset string `json:"short_backing_asset"`
		} `json:"options"`
	}
	if err := json.Unmarshal(assetObjs[0], &assetRecord); err != nil {
		return nil, fmt.Errorf("parse asset: %w", err)
	}
	if assetRecord.BitassetDataID == "" {
		return nil, fmt.Errorf("%w: bitasset: %s is not a smartcoin", ErrMissingRequired, assetID)
	}

	bitasset := &subQuery{
		name:      "bitasset",
		api:       rpc.DatabaseAPI,
		method:    "get_objects",
		params:    []any{[]string{assetRecord.BitassetDataID}, false},
		mandatory: true,
	}
	callOrders := &subQuery{
		name:   "callOrders",
		api:    rpc.DatabaseAPI,
		method: "get_call_orders",
		params: []any{assetID, 100},
	}
	settleOrders := &subQuery{
		name:   "settleOrders",
		api:    rpc.DatabaseAPI,
		method: "get_settle_orders",
		params: []any{assetID, 100},
	}
	queries := []*subQuery{bitasset, callOrders, settleOrders}

	var marginPositions *subQuery
	if accountID != "" {
		marginPositions = &subQuery{
			name:   "marginPositions",
			api:    rpc.DatabaseAPI,
			method: "get_margin_positions",
			params: []any{accountID},
		}
		queries = append(queries, marginPositions)
	}
	if err := a.fanout(ctx, chain, sess, queries); err != nil {
		return nil, err
	}

	var bitassetObjs []json.RawMessage
	if err := json.Unmarshal(bitasset.res, &bitassetObjs); err != nil {
		return nil, fmt.Errorf("parse bitasset: %w", err)
	}
	if len(bitassetObjs) == 0 || isNull(bitassetObjs[0]) {
		return nil, fmt.Errorf("%w: bitasset", ErrMissingRequired)
	}

	bitassetRaw, err := parseBitassetOptions(bitassetObjs[0])
	if err != nil {
		return nil, err
	}
	result := &Smartcoin{
		Bitasset:        bitassetObjs[0],
		MarginPositions: []json.RawMessage{},
		CallOrders:      orElse(callOrders.res, "[]"),
		SettleOrders:    orElse(settleOrders.res, "[]"),
		OrderBook:       json.RawMessage("{}"),
	}

	result.Asset, err = stripAssetOptions(assetObjs[0])
	if err != nil {
		return nil, fmt.Errorf("project asset: %w", err)
	}

	if marginPositions != nil && !isNull(marginPositions.res) {
		positions, err := filterDebtPositions(marginPositions.res, assetID)
		if err != nil {
			return nil, fmt.Errorf("parse margin positions: %w", err)
		}
		result.MarginPositions = positions
	}

	// The order book quotes the smartcoin against its backing collateral,
	// known only after the bitasset settles. Optional like the rest of
	// the market data.
	collateral := bitassetRaw.Options.ShortBackingAsset
	if collateral == "" {
		collateral = assetRecord.Options.ShortBackingAsset
	}
	if collateral != "" {
		book, err := sess.Call(ctx, rpc.DatabaseAPI, "get_order_book", []any{assetID, collateral, 50})
		a.countCall(chain, "get_order_book", err)
		if err != nil {
			a.logger.Warn("sub-query failed",
				"chain", chain,
				"query", "orderBook",
				"mandatory", false,
				"error", err,
			)
		} else {
			result.OrderBook = orElse(book, "{}")
		}
	}
	return result, nil
}

type bitassetRecord struct {
	Options struct {
		ShortBackingAsset string `json:"short_backing_asset"`
	} `json:"options"`
}

func parseBitassetOptions(raw json.RawMessage) (*bitassetRecord, error) {
	var rec bitassetRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("parse bitasset: %w", err)
	}
	return &rec, nil
}

// droppedOptionFields are the bulky asset-option sub-fields stripped from
// composite responses to bound payload size.
var droppedOptionFields = []string{
	"description",
	"whitelist_authorities",
	"blacklist_authorities",
	"whitelist_markets",
	"blacklist_markets",
}

// stripAssetOptions removes the long-form description and the allow/deny
// lists from an asset record's options.
func stripAssetOptions(raw json.RawMessage) (json.RawMessage, error) {
	var asset map[string]json.RawMessage
	if err := json.Unmarshal(raw, &asset); err != nil {
		return nil, err
	}
	optionsRaw, ok := asset["options"]
	if !ok {
		return raw, nil
	}
	var options map[string]json.RawMessage
	if err := json.Unmarshal(optionsRaw, &options); err != nil {
		return nil, err
	}
	for _, field := range droppedOptionFields {
		delete(options, field)
	}
	projected, err := json.Marshal(options)
	if err != nil {
		return nil, err
	}
	asset["options"] = projected
	return json.Marshal(asset)
}

// filterDebtPositions keeps the call orders whose debt is the requested
// asset.
func filterDebtPositions(raw json.RawMessage, assetID string) ([]json.RawMessage, error) {
	var entries []json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, err
	}

	out := []json.RawMessage{}
	for _, entry := range entries {
		var pos struct {
			CallPrice struct {
				Quote struct {
					AssetID string `json:"asset_id"`
				} `json:"quote"`
			} `json:"call_price"`
			Debt json.RawMessage `json:"debt"`
		}
		if err := json.Unmarshal(entry, &pos); err != nil {
			continue
		}
		if pos.CallPrice.Quote.AssetID == assetID {
			out = append(out, entry)
		}
	}
	return out, nil
}
