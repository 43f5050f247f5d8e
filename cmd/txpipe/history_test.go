package txpipe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manifest-network/txpipe/internal/models"
)

type staticHistory struct {
	entries []models.TxHistoryEntry
	err     error

	address string
	limit   int
}

func (h *staticHistory) GetHistory(_ context.Context, address string, limit int) ([]models.TxHistoryEntry, error) {
	h.address, h.limit = address, limit
	return h.entries, h.err
}

func historyEntries() []models.TxHistoryEntry {
	return []models.TxHistoryEntry{{
		TxHash:  "ABC123",
		Address: "terra1sender",
		Kind:    "bond_mint",
		Phase:   "SUCCEED",
		Receipts: []models.Receipt{
			{Name: "Tx Hash", Value: "ABC123"},
			{Name: "Tx Fee", Value: "0.400 UST"},
		},
	}}
}

func TestPrintHistoryText(t *testing.T) {
	reader := &staticHistory{entries: historyEntries()}
	var buf bytes.Buffer

	require.NoError(t, printHistory(context.Background(), &buf, reader, "terra1sender", 5, "text"))
	assert.Equal(t, "terra1sender", reader.address)
	assert.Equal(t, 5, reader.limit)
	assert.Contains(t, buf.String(), "ABC123  bond_mint SUCCEED")
	assert.Contains(t, buf.String(), "  Tx Fee   0.400 UST\n")
}

func TestPrintHistoryJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printHistory(context.Background(), &buf, &staticHistory{entries: historyEntries()}, "terra1sender", 20, "json"))

	var got []models.TxHistoryEntry
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, historyEntries(), got)
}

func TestPrintHistoryError(t *testing.T) {
	var buf bytes.Buffer
	err := printHistory(context.Background(), &buf, &staticHistory{err: errors.New("connection refused")}, "terra1sender", 20, "text")
	assert.ErrorContains(t, err, "connection refused")
	assert.Empty(t, buf.String())
}
