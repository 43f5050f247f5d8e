package output

import (
	"context"

	"github.com/manifest-network/txpipe/internal/models"
)

// TxContext identifies the transaction a rendering belongs to.
type TxContext struct {
	Kind    string
	Address string
}

type OutputHandler interface {
	// WriteRendering writes one rendering of a transaction stream to the output.
	// Handlers may ignore non-terminal renderings.
	WriteRendering(ctx context.Context, tx TxContext, rendering models.TxResultRendering) error

	// Close closes the output handler.
	Close() error
}

// HistoryReader lists persisted terminal renderings.
type HistoryReader interface {
	// GetHistory returns the latest limit entries of address, newest first.
	GetHistory(ctx context.Context, address string, limit int) ([]models.TxHistoryEntry, error)
}

// Drain writes every rendering of stream to handler and returns the last one.
// A write error is returned once the stream is exhausted; the remaining
// renderings are still consumed so the producer is never blocked.
func Drain(ctx context.Context, handler OutputHandler, tx TxContext, stream <-chan models.TxResultRendering) (models.TxResultRendering, error) {
	var (
		last     models.TxResultRendering
		firstErr error
	)
	for rendering := range stream {
		last = rendering
		if firstErr != nil {
			continue
		}
		if err := handler.WriteRendering(ctx, tx, rendering); err != nil {
			firstErr = err
		}
	}
	return last, firstErr
}

// Entry converts a terminal rendering into its history form.
func Entry(tx TxContext, rendering models.TxResultRendering) models.TxHistoryEntry {
	return models.TxHistoryEntry{
		TxHash:   rendering.TxHash,
		Address:  tx.Address,
		Kind:     tx.Kind,
		Phase:    rendering.Phase.String(),
		Message:  rendering.Message,
		Receipts: rendering.VisibleReceipts(),
	}
}
