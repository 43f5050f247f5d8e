// Package chain holds the collaborators the transaction pipeline talks to:
// a node client that broadcasts and looks up transactions, and a signer.
package chain

import (
	"context"
	"errors"
	"strconv"

	"github.com/manifest-network/txpipe/internal/models"
)

// ErrUserDenied is returned when the wallet refuses to sign.
var ErrUserDenied = errors.New("user denied the transaction")

// Client broadcasts transactions and looks them up by hash.
type Client interface {
	// Post signs and broadcasts opts.
	Post(ctx context.Context, opts *models.TxOptions) (*models.TxResult, error)

	// PollTxInfo returns the included transaction, or nil when the node does
	// not know the hash yet.
	PollTxInfo(ctx context.Context, txHash string) (*models.TxInfo, error)
}

// txResponse is cosmos.base.abci.v1beta1.TxResponse in its JSON form. The LCD
// and the gRPC client (marshaled with proto names) both produce it.
type txResponse struct {
	Height    string         `json:"height"`
	TxHash    string         `json:"txhash"`
	Code      uint32         `json:"code"`
	RawLog    string         `json:"raw_log"`
	Logs      []models.TxLog `json:"logs"`
	GasWanted string         `json:"gas_wanted"`
	GasUsed   string         `json:"gas_used"`
}

func (r *txResponse) toTxResult() *models.TxResult {
	return &models.TxResult{TxHash: r.TxHash, Code: r.Code, RawLog: r.RawLog}
}

func (r *txResponse) toTxInfo() (*models.TxInfo, error) {
	height, err := parseInt(r.Height)
	if err != nil {
		return nil, err
	}
	gasWanted, err := parseInt(r.GasWanted)
	if err != nil {
		return nil, err
	}
	gasUsed, err := parseInt(r.GasUsed)
	if err != nil {
		return nil, err
	}

	return &models.TxInfo{
		TxHash:    r.TxHash,
		Height:    height,
		Code:      r.Code,
		RawLog:    r.RawLog,
		Logs:      r.Logs,
		GasWanted: gasWanted,
		GasUsed:   gasUsed,
	}, nil
}

// parseInt reads an int64 the node encodes as a string; proto3 JSON leaves
// zero values out entirely.
func parseInt(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseInt(s, 10, 64)
}

type broadcastRequest struct {
	TxBytes []byte `json:"tx_bytes"`
	Mode    string `json:"mode"`
}

const broadcastModeSync = "BROADCAST_MODE_SYNC"
