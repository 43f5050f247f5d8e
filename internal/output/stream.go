package output

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"text/tabwriter"

	"github.com/fxamacker/cbor/v2"

	"github.com/manifest-network/txpipe/internal/models"
)

// Format selects how a StreamOutputHandler encodes renderings.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatCBOR Format = "cbor"
)

func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatText, FormatJSON, FormatCBOR:
		return f, nil
	}
	return "", fmt.Errorf("unknown output format %q (want text, json or cbor)", s)
}

// record is the encoded form of one rendering.
type record struct {
	Kind     string           `json:"kind" cbor:"kind"`
	Address  string           `json:"address,omitempty" cbor:"address,omitempty"`
	Phase    string           `json:"phase" cbor:"phase"`
	TxHash   string           `json:"tx_hash,omitempty" cbor:"tx_hash,omitempty"`
	Message  string           `json:"message,omitempty" cbor:"message,omitempty"`
	Receipts []models.Receipt `json:"receipts,omitempty" cbor:"receipts,omitempty"`
}

// StreamOutputHandler writes renderings to w as text, newline-delimited JSON
// or a CBOR sequence.
type StreamOutputHandler struct {
	mu       sync.Mutex
	w        io.Writer
	format   Format
	terminal bool
	enc      *cbor.Encoder
}

// NewStreamOutputHandler returns a handler for w. With terminalOnly set,
// intermediate renderings are skipped.
func NewStreamOutputHandler(w io.Writer, format Format, terminalOnly bool) (*StreamOutputHandler, error) {
	h := &StreamOutputHandler{w: w, format: format, terminal: terminalOnly}
	if format == FormatCBOR {
		mode, err := cbor.CoreDetEncOptions().EncMode()
		if err != nil {
			return nil, fmt.Errorf("failed to create CBOR encoder: %w", err)
		}
		h.enc = mode.NewEncoder(w)
	}
	return h, nil
}

func (h *StreamOutputHandler) WriteRendering(_ context.Context, tx TxContext, rendering models.TxResultRendering) error {
	if h.terminal && !rendering.Phase.Terminal() {
		return nil
	}

	rec := record{
		Kind:     tx.Kind,
		Address:  tx.Address,
		Phase:    rendering.Phase.String(),
		TxHash:   rendering.TxHash,
		Message:  rendering.Message,
		Receipts: rendering.VisibleReceipts(),
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	switch h.format {
	case FormatJSON:
		b, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("failed to marshal rendering: %w", err)
		}
		if _, err := h.w.Write(append(b, '\n')); err != nil {
			return fmt.Errorf("failed to write rendering: %w", err)
		}
	case FormatCBOR:
		if err := h.enc.Encode(rec); err != nil {
			return fmt.Errorf("failed to encode rendering: %w", err)
		}
	default:
		if err := writeText(h.w, rec); err != nil {
			return fmt.Errorf("failed to write rendering: %w", err)
		}
	}
	return nil
}

// Close does not close the underlying writer; its owner does.
func (h *StreamOutputHandler) Close() error { return nil }

func writeText(w io.Writer, rec record) error {
	switch rec.Phase {
	case models.PhaseBroadcast.String():
		_, err := fmt.Fprintf(w, "[%s] broadcasting\n", rec.Kind)
		return err
	case models.PhasePending.String():
		_, err := fmt.Fprintf(w, "[%s] pending %s\n", rec.Kind, rec.TxHash)
		return err
	case models.PhaseFail.String():
		_, err := fmt.Fprintf(w, "[%s] failed: %s\n", rec.Kind, rec.Message)
		return err
	}

	if _, err := fmt.Fprintf(w, "[%s] succeeded\n", rec.Kind); err != nil {
		return err
	}
	return WriteReceipts(w, rec.Receipts)
}

// WriteReceipts prints receipts as an aligned two-column list.
func WriteReceipts(w io.Writer, receipts []models.Receipt) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, r := range receipts {
		if _, err := fmt.Fprintf(tw, "  %s\t%s\n", r.Name, r.Value); err != nil {
			return err
		}
	}
	return tw.Flush()
}

// MultiOutputHandler fans renderings out to several handlers.
type MultiOutputHandler []OutputHandler

func (m MultiOutputHandler) WriteRendering(ctx context.Context, tx TxContext, rendering models.TxResultRendering) error {
	for _, h := range m {
		if err := h.WriteRendering(ctx, tx, rendering); err != nil {
			return err
		}
	}
	return nil
}

func (m MultiOutputHandler) Close() error {
	var firstErr error
	for _, h := range m {
		if err := h.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
