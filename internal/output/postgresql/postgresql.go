// Package postgresql keeps terminal transaction renderings in PostgreSQL.
package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/manifest-network/txpipe/internal/models"
	"github.com/manifest-network/txpipe/internal/output"
)

const (
	upsertTxQuery = `INSERT INTO tx_history (tx_hash, address, kind, phase, message, receipts)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (tx_hash) DO UPDATE SET
    phase = EXCLUDED.phase,
    message = EXCLUDED.message,
    receipts = EXCLUDED.receipts,
    updated_at = now()`

	historyQuery = `SELECT tx_hash, address, kind, phase, message, receipts
FROM tx_history
WHERE address = $1
ORDER BY created_at DESC
LIMIT $2`
)

var (
	_ output.OutputHandler = (*PostgresOutputHandler)(nil)
	_ output.HistoryReader = (*PostgresOutputHandler)(nil)
)

// PostgresOutputHandler stores terminal renderings that carry a transaction
// hash, one row per hash. Renderings of transactions that never reached the
// chain are not stored.
type PostgresOutputHandler struct {
	db *sql.DB
}

// NewPostgresOutputHandler connects to connString, migrates the schema and
// returns the handler.
func NewPostgresOutputHandler(ctx context.Context, connString string) (*PostgresOutputHandler, error) {
	db, err := sql.Open("pgx", connString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := RunMigrations(connString); err != nil {
		_ = db.Close()
		return nil, err
	}

	slog.Info("Connected to PostgreSQL")
	return NewWithDB(db), nil
}

// NewWithDB wraps an open database whose schema is already migrated.
func NewWithDB(db *sql.DB) *PostgresOutputHandler {
	return &PostgresOutputHandler{db: db}
}

func (h *PostgresOutputHandler) WriteRendering(ctx context.Context, tx output.TxContext, rendering models.TxResultRendering) error {
	if !rendering.Phase.Terminal() || rendering.TxHash == "" {
		return nil
	}

	entry := output.Entry(tx, rendering)
	receipts, err := json.Marshal(entry.Receipts)
	if err != nil {
		return fmt.Errorf("failed to marshal receipts: %w", err)
	}

	_, err = h.db.ExecContext(ctx, upsertTxQuery,
		entry.TxHash, entry.Address, entry.Kind, entry.Phase, entry.Message, string(receipts))
	if err != nil {
		return fmt.Errorf("failed to write transaction %s: %w", entry.TxHash, err)
	}

	slog.Debug("Stored transaction", "hash", entry.TxHash, "phase", entry.Phase)
	return nil
}

func (h *PostgresOutputHandler) GetHistory(ctx context.Context, address string, limit int) ([]models.TxHistoryEntry, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := h.db.QueryContext(ctx, historyQuery, address, int64(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query history of %s: %w", address, err)
	}
	defer rows.Close()

	var entries []models.TxHistoryEntry
	for rows.Next() {
		var (
			entry    models.TxHistoryEntry
			receipts []byte
		)
		if err := rows.Scan(&entry.TxHash, &entry.Address, &entry.Kind, &entry.Phase, &entry.Message, &receipts); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		if err := json.Unmarshal(receipts, &entry.Receipts); err != nil {
			return nil, fmt.Errorf("failed to unmarshal receipts of %s: %w", entry.TxHash, err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read history of %s: %w", address, err)
	}
	return entries, nil
}

func (h *PostgresOutputHandler) Close() error {
	slog.Info("Closing PostgreSQL connection")
	return h.db.Close()
}
