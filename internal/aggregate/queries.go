package aggregate

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/btslabs/chain-gateway/internal/model"
	"github.com/btslabs/chain-gateway/internal/rpc"
)

// blacklistManager is the committee account whose blacklist names the
// accounts users should be warned about.
const blacklistManager = "committee-blacklist-manager"

// AccountSearch resolves an account by name or 1.2.x identifier.
func (a *Aggregator) AccountSearch(ctx context.Context, chain model.Chain, nameOrID string) (json.RawMessage, error) {
	res, err := a.call(ctx, chain, rpc.DatabaseAPI, "get_accounts", []any{[]string{nameOrID}})
	if err != nil {
		return nil, err
	}

	var accounts []json.RawMessage
	if err := json.Unmarshal(res, &accounts); err != nil {
		return nil, fmt.Errorf("parse accounts: %w", err)
	}
	if len(accounts) == 0 || isNull(accounts[0]) {
		return nil, fmt.Errorf("%w: account %s", ErrNotFound, nameOrID)
	}
	return accounts[0], nil
}

// FullAccount fetches the full account record, including balances, open
// orders and statistics.
func (a *Aggregator) FullAccount(ctx context.Context, chain model.Chain, accountID string) (json.RawMessage, error) {
	res, err := a.call(ctx, chain, rpc.DatabaseAPI, "get_full_accounts", []any{[]string{accountID}, false})
	if err != nil {
		return nil, err
	}

	var pairs []json.RawMessage
	if err := json.Unmarshal(res, &pairs); err != nil {
		return nil, fmt.Errorf("parse full accounts: %w", err)
	}
	if len(pairs) == 0 {
		return nil, fmt.Errorf("%w: account %s", ErrNotFound, accountID)
	}
	return res, nil
}

// AccountBalances fetches all of an account's asset balances.
func (a *Aggregator) AccountBalances(ctx context.Context, chain model.Chain, accountID string) (json.RawMessage, error) {
	res, err := a.call(ctx, chain, rpc.DatabaseAPI, "get_account_balances", []any{accountID, []string{}})
	if err != nil {
		return nil, err
	}
	if isNull(res) {
		return nil, fmt.Errorf("%w: balances for %s", ErrNotFound, accountID)
	}
	return res, nil
}

// LimitOrders pages through an account's open limit orders. lastID may be
// empty to start from the first order.
func (a *Aggregator) LimitOrders(ctx context.Context, chain model.Chain, accountID string, limit int, lastID string) (json.RawMessage, error) {
	params := []any{accountID, limit}
	if lastID != "" {
		params = append(params, lastID)
	}
	res, err := a.call(ctx, chain, rpc.DatabaseAPI, "get_limit_orders_by_account", params)
	if err != nil {
		return nil, err
	}
	if isNull(res) {
		return nil, fmt.Errorf("%w: limit orders for %s", ErrNotFound, accountID)
	}
	return res, nil
}

// OrderBook fetches a market pair's aggregated order book.
func (a *Aggregator) OrderBook(ctx context.Context, chain model.Chain, quote, base string) (json.RawMessage, error) {
	res, err := a.call(ctx, chain, rpc.DatabaseAPI, "get_order_book", []any{base, quote, 50})
	if err != nil {
		return nil, err
	}
	if isNull(res) {
		return nil, fmt.Errorf("%w: order book %s/%s", ErrNotFound, base, quote)
	}
	return res, nil
}

// MarketLimitOrders fetches a market pair's open limit orders.
func (a *Aggregator) MarketLimitOrders(ctx context.Context, chain model.Chain, quote, base string) (json.RawMessage, error) {
	res, err := a.call(ctx, chain, rpc.DatabaseAPI, "get_limit_orders", []any{base, quote, 50})
	if err != nil {
		return nil, err
	}
	if isNull(res) {
		return nil, fmt.Errorf("%w: limit orders %s/%s", ErrNotFound, base, quote)
	}
	return res, nil
}

// CreditDeals is an account's lending activity from both sides of the
// market.
type CreditDeals struct {
	BorrowerDeals json.RawMessage `json:"borrowerDeals"`
	OwnerDeals    json.RawMessage `json:"ownerDeals"`
}

// CreditDeals fetches the credit deals an account participates in, as
// borrower and as offer owner, over one session.
func (a *Aggregator) CreditDeals(ctx context.Context, chain model.Chain, nameOrID string) (*CreditDeals, error) {
	sess, err := a.dial(ctx, chain)
	if err != nil {
		return nil, err
	}
	defer sess.Close()

	borrower := &subQuery{
		name:      "borrowerDeals",
		api:       rpc.DatabaseAPI,
		method:    "get_credit_deals_by_borrower",
		params:    []any{nameOrID},
		mandatory: true,
	}
	owner := &subQuery{
		name:      "ownerDeals",
		api:       rpc.DatabaseAPI,
		method:    "get_credit_deals_by_offer_owner",
		params:    []any{nameOrID},
		mandatory: true,
	}
	if err := a.fanout(ctx, chain, sess, []*subQuery{borrower, owner}); err != nil {
		return nil, err
	}

	return &CreditDeals{
		BorrowerDeals: borrower.res,
		OwnerDeals:    owner.res,
	}, nil
}

// BlockedAccounts fetches the committee-maintained blacklist account used
// to warn users away from known bad actors.
func (a *Aggregator) BlockedAccounts(ctx context.Context, chain model.Chain) (json.RawMessage, error) {
	res, err := a.call(ctx, chain, rpc.DatabaseAPI, "get_accounts", []any{[]string{blacklistManager}})
	if err != nil {
		return nil, err
	}

	var accounts []json.RawMessage
	if err := json.Unmarshal(res, &accounts); err != nil {
		return nil, fmt.Errorf("parse accounts: %w", err)
	}
	if len(accounts) == 0 || isNull(accounts[0]) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, blacklistManager)
	}
	return res, nil
}
