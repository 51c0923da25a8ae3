package aggregate

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/btslabs/chain-gateway/internal/model"
	"github.com/btslabs/chain-gateway/internal/rpc"
)

// ErrUnknownOperation indicates an operation type name with no protocol
// identifier.
var ErrUnknownOperation = errors.New("unknown operation type")

// txExpireSeconds bounds how long a generated transaction stays
// broadcastable.
const txExpireSeconds = 7200

// operationIDs maps protocol operation names onto their numeric
// identifiers. Only the operations the wallet surface actually submits
// are listed.
var operationIDs = map[string]int{
	"transfer":                 0,
	"limit_order_create":       1,
	"limit_order_cancel":       2,
	"call_order_update":        3,
	"account_upgrade":          8,
	"asset_settle":             17,
	"vesting_balance_withdraw": 33,
	"liquidity_pool_create":    59,
	"liquidity_pool_delete":    60,
	"liquidity_pool_deposit":   61,
	"liquidity_pool_withdraw":  62,
	"liquidity_pool_exchange":  63,
	"samet_fund_create":        64,
	"samet_fund_delete":        65,
	"samet_fund_update":        66,
	"samet_fund_borrow":        67,
	"samet_fund_repay":         68,
	"credit_offer_create":      69,
	"credit_offer_delete":      70,
	"credit_offer_update":      71,
	"credit_offer_accept":      72,
	"credit_deal_repay":        73,
	"limit_order_update":       77,
}

// dynamicGlobals is the slice of object 2.1.0 a transaction needs for its
// TaPoS reference fields.
type dynamicGlobals struct {
	HeadBlockNumber uint32 `json:"head_block_number"`
	HeadBlockID     string `json:"head_block_id"`
	Time            string `json:"time"`
}

type feeAmount struct {
	Amount  json.Number `json:"amount"`
	AssetID string      `json:"asset_id"`
}

type transaction struct {
	RefBlockNum    uint16            `json:"ref_block_num"`
	RefBlockPrefix uint32            `json:"ref_block_prefix"`
	Expiration     string            `json:"expiration"`
	Operations     [][2]any          `json:"operations"`
	Extensions     []any             `json:"extensions"`
	Signatures     []json.RawMessage `json:"signatures"`
}

// BuildTransaction assembles an unsigned transaction from operation
// descriptors: it anchors the reference block fields to the chain head,
// prices each operation's fee in the core asset and bounds the expiration.
// The result is the transaction JSON a wallet signs and broadcasts.
func (a *Aggregator) BuildTransaction(ctx context.Context, chain model.Chain, opType string, operations []json.RawMessage) (json.RawMessage, error) {
	opID, ok := operationIDs[opType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownOperation, opType)
	}
	if len(operations) == 0 {
		return nil, fmt.Errorf("%w: operations", ErrMissingRequired)
	}

	sess, err := a.dial(ctx, chain)
	if err != nil {
		return nil, err
	}
	defer sess.Close()

	res, err := sess.Call(ctx, rpc.DatabaseAPI, "get_objects", []any{[]string{"2.1.0"}, false})
	a.countCall(chain, "get_objects", err)
	if err != nil {
		return nil, err
	}
	var globals []dynamicGlobals
	if err := json.Unmarshal(res, &globals); err != nil || len(globals) == 0 {
		return nil, fmt.Errorf("%w: dynamic global properties", ErrMissingRequired)
	}
	refNum, refPrefix, err := refBlock(globals[0])
	if err != nil {
		return nil, err
	}
	headTime, err := time.Parse("2006-01-02T15:04:05", globals[0].Time)
	if err != nil {
		return nil, fmt.Errorf("parse head block time: %w", err)
	}

	packed := make([][2]any, len(operations))
	for i, op := range operations {
		packed[i] = [2]any{opID, op}
	}

	res, err = sess.Call(ctx, rpc.DatabaseAPI, "get_required_fees", []any{packed, "1.3.0"})
	a.countCall(chain, "get_required_fees", err)
	if err != nil {
		return nil, err
	}
	var fees []feeAmount
	if err := json.Unmarshal(res, &fees); err != nil || len(fees) != len(operations) {
		return nil, fmt.Errorf("%w: required fees", ErrMissingRequired)
	}

	priced := make([][2]any, len(operations))
	for i, op := range operations {
		withFee, err := setFee(op, fees[i])
		if err != nil {
			return nil, err
		}
		priced[i] = [2]any{opID, withFee}
	}

	tx := transaction{
		RefBlockNum:    refNum,
		RefBlockPrefix: refPrefix,
		Expiration:     chainTime(headTime.Add(txExpireSeconds * time.Second)),
		Operations:     priced,
		Extensions:     []any{},
		Signatures:     []json.RawMessage{},
	}
	return json.Marshal(tx)
}

// refBlock derives the TaPoS fields from the head block: the low 16 bits
// of the block number plus a little-endian prefix read from bytes 4..8 of
// the block id.
func refBlock(g dynamicGlobals) (uint16, uint32, error) {
	raw, err := hex.DecodeString(g.HeadBlockID)
	if err != nil || len(raw) < 8 {
		return 0, 0, fmt.Errorf("malformed head block id %q", g.HeadBlockID)
	}
	return uint16(g.HeadBlockNumber & 0xffff), binary.LittleEndian.Uint32(raw[4:8]), nil
}

// setFee writes the priced fee into the operation descriptor, replacing
// whatever placeholder the caller supplied.
func setFee(op json.RawMessage, fee feeAmount) (json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(op, &fields); err != nil {
		return nil, fmt.Errorf("operation is not an object: %w", err)
	}
	encoded, err := json.Marshal(fee)
	if err != nil {
		return nil, err
	}
	fields["fee"] = encoded
	return json.Marshal(fields)
}
