// Package bond builds the bLUNA mint transaction: LUNA is bonded to a
// validator through the hub contract, which mints bLUNA in return.
package bond

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/manifest-network/txpipe/internal/chain"
	"github.com/manifest-network/txpipe/internal/format"
	"github.com/manifest-network/txpipe/internal/models"
	"github.com/manifest-network/txpipe/internal/pipeline"
	"github.com/manifest-network/txpipe/internal/txlog"
	"github.com/manifest-network/txpipe/internal/units"
)

// Kind labels mint transactions in logs, metrics and history.
const Kind = "bond_mint"

const (
	mintEvent          = "from_contract"
	bondedAttrPosition = 3
	mintedAttrPosition = 4
)

// MintParams describe one mint transaction.
type MintParams struct {
	Sender      string
	Validator   string
	Amount      units.Amount[units.Luna]
	HubContract string

	GasWanted     uint64
	GasPrice      decimal.Decimal
	FixedGas      units.Micro[units.UST]
	GasAdjustment decimal.Decimal
	Memo          string

	Poll          pipeline.PollConfig
	ErrorReporter pipeline.ErrorReporter
	OnSucceed     func(models.TxResultRendering)
}

// MintResult is the value of a SUCCEED rendering.
type MintResult struct {
	Bonded units.Micro[units.Luna]
	Minted units.Micro[units.BLuna]
	// Rate is bonded / minted; HasRate is false when either side is zero.
	Rate    decimal.Decimal
	HasRate bool
}

type bondMsg struct {
	Bond struct {
		Validator string `json:"validator"`
	} `json:"bond"`
}

// FabricateBond returns the hub contract call bonding p.Amount to p.Validator.
func FabricateBond(p MintParams) ([]models.Msg, error) {
	switch {
	case strings.TrimSpace(p.Sender) == "":
		return nil, errors.New("sender address is empty")
	case strings.TrimSpace(p.HubContract) == "":
		return nil, errors.New("hub contract address is empty")
	case strings.TrimSpace(p.Validator) == "":
		return nil, errors.New("validator address is empty")
	case p.Amount.Decimal().IsNegative():
		return nil, fmt.Errorf("%w: %s", units.ErrNegativeAmount, p.Amount)
	}

	amount := units.Microfy(p.Amount)
	if amount.IsZero() {
		return nil, fmt.Errorf("bond amount %s LUNA is below one micro unit", p.Amount)
	}

	var msg bondMsg
	msg.Bond.Validator = p.Validator
	execute, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode bond message: %w", err)
	}

	return []models.Msg{
		models.MsgExecuteContract{
			Sender:     p.Sender,
			Contract:   p.HubContract,
			ExecuteMsg: execute,
			Coins:      []models.Coin{{Denom: units.Denom[units.Luna](), Amount: amount.String()}},
		},
	}, nil
}

// MintTx returns the pipeline for one mint. Every Stream call on it
// broadcasts a new transaction.
func MintTx(client chain.Client, p MintParams) *pipeline.Pipeline {
	return pipeline.New(pipeline.Options{
		Kind:          Kind,
		Fabricate:     func() ([]models.Msg, error) { return FabricateBond(p) },
		Fee:           pipeline.NewFee(p.GasWanted, p.GasPrice, p.FixedGas),
		GasAdjustment: p.GasAdjustment,
		Memo:          p.Memo,
		Client:        client,
		Parse:         ParseMintResult,
		Poll:          p.Poll,
		ErrorReporter: p.ErrorReporter,
		OnSucceed:     p.OnSucceed,
	})
}

// ParseMintResult reads the bonded and minted amounts from the hub's
// from_contract event of the first message.
func ParseMintResult(info *models.TxInfo, h *pipeline.Helper) ([]*models.Receipt, any, error) {
	log := txlog.PickRawLog(info, 0)
	if log == nil {
		return nil, nil, h.FailedToFindRawLog()
	}

	event := txlog.PickEvent(log, mintEvent)
	if event == nil {
		return nil, nil, h.FailedToFindEvents(mintEvent)
	}

	bondedRaw, okBonded := txlog.PickAttributeValue(event, bondedAttrPosition)
	mintedRaw, okMinted := txlog.PickAttributeValue(event, mintedAttrPosition)
	if !okBonded || !okMinted {
		return nil, nil, h.FailedToFindAttributes(mintEvent, bondedAttrPosition, mintedAttrPosition)
	}

	bonded, err := units.ParseMicro[units.Luna](bondedRaw)
	if err != nil {
		return nil, nil, h.FailedToParseTxResult(err)
	}
	minted, err := units.ParseMicro[units.BLuna](mintedRaw)
	if err != nil {
		return nil, nil, h.FailedToParseTxResult(err)
	}

	result := MintResult{Bonded: bonded, Minted: minted}
	result.Rate, result.HasRate = units.ExchangeRate(bonded, minted)

	receipts := []*models.Receipt{
		{Name: "Bonded Amount", Value: format.FormatLuna(units.Demicrofy(bonded)) + " " + units.Symbol[units.Luna]()},
		{Name: "Minted Amount", Value: format.FormatLuna(units.Demicrofy(minted)) + " " + units.Symbol[units.BLuna]()},
		exchangeRateReceipt(result),
	}
	return receipts, result, nil
}

func exchangeRateReceipt(r MintResult) *models.Receipt {
	if !r.HasRate {
		return nil
	}
	return &models.Receipt{
		Name:  "Exchange Rate",
		Value: format.FormatFluidDecimalPoints(r.Rate, format.LunaPreset.Points, true),
	}
}
