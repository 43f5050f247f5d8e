package models

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Coin is an amount of a denom in its smallest unit, as the chain encodes it.
type Coin struct {
	Denom  string `json:"denom"`
	Amount string `json:"amount"`
}

// Fee is the fee attached to a transaction: a gas limit and the coins paid.
type Fee struct {
	GasLimit uint64 `json:"gas_limit,string"`
	Amount   []Coin `json:"amount"`
}

// Msg is a chain message ready to be signed.
type Msg interface {
	TypeURL() string
}

// MsgExecuteContract calls a CosmWasm contract.
type MsgExecuteContract struct {
	Sender     string          `json:"sender"`
	Contract   string          `json:"contract"`
	ExecuteMsg json.RawMessage `json:"execute_msg"`
	Coins      []Coin          `json:"coins"`
}

func (MsgExecuteContract) TypeURL() string { return "/terra.wasm.v1beta1.MsgExecuteContract" }

// MarshalJSON adds the "@type" discriminator the signer expects.
func (m MsgExecuteContract) MarshalJSON() ([]byte, error) {
	type alias MsgExecuteContract
	return json.Marshal(struct {
		Type string `json:"@type"`
		alias
	}{Type: m.TypeURL(), alias: alias(m)})
}

// TxOptions is an unsigned transaction.
type TxOptions struct {
	Msgs          []Msg           `json:"msgs"`
	Fee           Fee             `json:"fee"`
	GasAdjustment decimal.Decimal `json:"gas_adjustment"`
	Memo          string          `json:"memo,omitempty"`
}

// TxResult is the node's answer to a broadcast.
type TxResult struct {
	TxHash string
	Code   uint32
	RawLog string
}

// TxInfo is an included transaction as returned by the node.
type TxInfo struct {
	TxHash    string
	Height    int64
	Code      uint32
	RawLog    string
	Logs      []TxLog
	GasWanted int64
	GasUsed   int64
}

// TxLog is the per-message log of a transaction.
type TxLog struct {
	MsgIndex int     `json:"msg_index"`
	Log      string  `json:"log"`
	Events   []Event `json:"events"`
}

// Event is a typed group of attributes emitted while executing a message.
type Event struct {
	Type       string      `json:"type"`
	Attributes []Attribute `json:"attributes"`
}

// Attribute is a key/value pair of an event.
type Attribute struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}
