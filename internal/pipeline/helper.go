package pipeline

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/manifest-network/txpipe/internal/format"
	"github.com/manifest-network/txpipe/internal/models"
	"github.com/manifest-network/txpipe/internal/units"
)

// Helper carries what result parsers need besides the transaction itself:
// the fee that was attached and the hash once known. Each pipeline run owns
// its own Helper.
type Helper struct {
	fee    models.Fee
	txHash string
}

func newHelper(fee models.Fee) *Helper {
	return &Helper{fee: fee}
}

func (h *Helper) saveTx(txHash string) { h.txHash = txHash }

// TxHash is the broadcast hash, empty before broadcast.
func (h *Helper) TxHash() string { return h.txHash }

// TxHashReceipt is nil until the transaction has been broadcast.
func (h *Helper) TxHashReceipt() *models.Receipt {
	if h.txHash == "" {
		return nil
	}
	return &models.Receipt{Name: "Tx Hash", Value: h.txHash}
}

// TxFeeReceipt shows the uusd part of the fee in UST, or nil when the fee
// has no uusd coin.
func (h *Helper) TxFeeReceipt() *models.Receipt {
	total := decimal.Zero
	found := false
	for _, coin := range h.fee.Amount {
		if coin.Denom != units.Denom[units.UST]() {
			continue
		}
		amount, err := units.ParseMicro[units.UST](coin.Amount)
		if err != nil {
			return nil
		}
		total = total.Add(amount.Decimal())
		found = true
	}
	if !found {
		return nil
	}

	fee := units.Demicrofy(units.NewMicro[units.UST](total))
	return &models.Receipt{Name: "Tx Fee", Value: format.FormatUSTWithPostfixUnits(fee) + " UST"}
}

func (h *Helper) FailedToFindRawLog() error {
	return &ParseError{Reason: "failed to find raw log"}
}

func (h *Helper) FailedToFindEvents(eventTypes ...string) error {
	return &ParseError{Reason: fmt.Sprintf("failed to find events: %s", strings.Join(eventTypes, ", "))}
}

func (h *Helper) FailedToFindAttributes(eventType string, positions ...int) error {
	return &ParseError{Reason: fmt.Sprintf("failed to find attributes %v of event %s", positions, eventType)}
}

func (h *Helper) FailedToParseTxResult(err error) error {
	return &ParseError{Reason: "failed to parse transaction result", Err: err}
}

// NewFee prices gasWanted at gasPrice (uusd per gas unit, rounded up) and
// adds a fixed surcharge.
func NewFee(gasWanted uint64, gasPrice decimal.Decimal, fixed units.Micro[units.UST]) models.Fee {
	amount := gasPrice.Mul(decimal.NewFromUint64(gasWanted)).Ceil().Add(fixed.Decimal())
	return models.Fee{
		GasLimit: gasWanted,
		Amount:   []models.Coin{{Denom: units.Denom[units.UST](), Amount: amount.String()}},
	}
}
