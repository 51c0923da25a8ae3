package explorer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/btslabs/chain-gateway/internal/model"
)

// AccountHistoryOptions narrows an account history query. Zero values take
// the upstream defaults.
type AccountHistoryOptions struct {
	From     int    // Result offset (default: 0)
	Size     int    // Page size (default: 100)
	FromDate string // Inclusive lower bound (default: "2015-10-10")
	ToDate   string // Inclusive upper bound (default: "now")
	SortBy   string // Sort field (default: "-operation_id_num")
	Type     string // Result type (default: "data")
	AggField string // Aggregation field (default: "operation_type")
}

// AccountHistory fetches an account's elasticsearch-indexed operation
// history from the explorer.
func (c *Client) AccountHistory(ctx context.Context, chain model.Chain, accountID string, opts AccountHistoryOptions) (json.RawMessage, error) {
	query := url.Values{}
	query.Set("account_id", accountID)
	query.Set("from_", strconv.Itoa(opts.From))

	size := opts.Size
	if size <= 0 {
		size = 100
	}
	query.Set("size", strconv.Itoa(size))

	fromDate := opts.FromDate
	if fromDate == "" {
		fromDate = "2015-10-10"
	}
	query.Set("from_date", fromDate)

	toDate := opts.ToDate
	if toDate == "" {
		toDate = "now"
	}
	query.Set("to_date", toDate)

	sortBy := opts.SortBy
	if sortBy == "" {
		sortBy = "-operation_id_num"
	}
	query.Set("sort_by", sortBy)

	typ := opts.Type
	if typ == "" {
		typ = "data"
	}
	query.Set("type", typ)

	aggField := opts.AggField
	if aggField == "" {
		aggField = "operation_type"
	}
	query.Set("agg_field", aggField)

	var history json.RawMessage
	if err := c.get(ctx, chain, "/es/account_history", query, &history); err != nil {
		return nil, fmt.Errorf("get account history: %w", err)
	}
	return history, nil
}

// TopMarkets fetches the explorer's highest-volume market pairs. Mainnet
// ranks the top 100, the quieter testnet the top 50.
func (c *Client) TopMarkets(ctx context.Context, chain model.Chain) (json.RawMessage, error) {
	topN := 100
	if chain == model.Testnet {
		topN = 50
	}

	query := url.Values{}
	query.Set("top_n", strconv.Itoa(topN))

	var markets json.RawMessage
	if err := c.get(ctx, chain, "/top_markets", query, &markets); err != nil {
		return nil, fmt.Errorf("get top markets: %w", err)
	}
	return markets, nil
}
