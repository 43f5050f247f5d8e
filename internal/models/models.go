package models

import "fmt"

// TxStreamPhase is the visible state of an in-flight transaction.
type TxStreamPhase int

const (
	PhaseBroadcast TxStreamPhase = iota
	PhasePending
	PhaseSucceed
	PhaseFail
)

func (p TxStreamPhase) String() string {
	switch p {
	case PhaseBroadcast:
		return "BROADCAST"
	case PhasePending:
		return "PENDING"
	case PhaseSucceed:
		return "SUCCEED"
	case PhaseFail:
		return "FAIL"
	default:
		return fmt.Sprintf("TxStreamPhase(%d)", int(p))
	}
}

// Terminal reports whether no further renderings follow this phase.
func (p TxStreamPhase) Terminal() bool {
	return p == PhaseSucceed || p == PhaseFail
}

// ParsePhase is the inverse of TxStreamPhase.String.
func ParsePhase(s string) (TxStreamPhase, error) {
	switch s {
	case "BROADCAST":
		return PhaseBroadcast, nil
	case "PENDING":
		return PhasePending, nil
	case "SUCCEED":
		return PhaseSucceed, nil
	case "FAIL":
		return PhaseFail, nil
	}
	return 0, fmt.Errorf("unknown phase %q", s)
}

// Receipt is a single labeled value shown after a transaction.
type Receipt struct {
	Name  string `json:"name" cbor:"name"`
	Value string `json:"value" cbor:"value"`
}

// TxResultRendering is one observed state of a transaction pipeline.
// A nil entry in Receipts is an absent item and is dropped by VisibleReceipts.
type TxResultRendering struct {
	Phase    TxStreamPhase
	Value    any
	Receipts []*Receipt
	// TxHash is set once the transaction has been broadcast.
	TxHash string
	// Message and Err are only set on PhaseFail.
	Message string
	Err     error
}

// VisibleReceipts returns the receipts without absent entries.
func (r TxResultRendering) VisibleReceipts() []Receipt {
	out := make([]Receipt, 0, len(r.Receipts))
	for _, receipt := range r.Receipts {
		if receipt != nil {
			out = append(out, *receipt)
		}
	}
	return out
}

// TxHistoryEntry is a terminal rendering as kept by an output handler.
type TxHistoryEntry struct {
	TxHash   string    `json:"tx_hash"`
	Address  string    `json:"address"`
	Kind     string    `json:"kind"`
	Phase    string    `json:"phase"`
	Message  string    `json:"message,omitempty"`
	Receipts []Receipt `json:"receipts"`
}
