package txpipe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/manifest-network/txpipe/internal/config"
	"github.com/manifest-network/txpipe/internal/output"
	"github.com/manifest-network/txpipe/internal/output/postgresql"
)

var historyCmd = &cobra.Command{
	Use:   "history [address]",
	Short: "List the stored transactions of an address",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		outputCfg := config.LoadOutputConfigFromCLI()
		if outputCfg.PostgresURL == "" {
			return errors.New("--postgres-url is required")
		}

		ctx, cancel := signalContext()
		defer cancel()

		store, err := postgresql.NewPostgresOutputHandler(ctx, outputCfg.PostgresURL)
		if err != nil {
			return err
		}
		defer func() {
			if err := store.Close(); err != nil {
				slog.Warn("Failed to close history", "error", err)
			}
		}()

		return printHistory(ctx, os.Stdout, store, args[0], viper.GetInt("limit"), outputCfg.Format)
	},
}

func printHistory(ctx context.Context, w io.Writer, reader output.HistoryReader, address string, limit int, format string) error {
	entries, err := reader.GetHistory(ctx, address, limit)
	if err != nil {
		return err
	}

	if format == string(output.FormatJSON) {
		return json.NewEncoder(w).Encode(entries)
	}
	for _, e := range entries {
		fmt.Fprintf(w, "%s  %-9s %-8s %s\n", e.TxHash, e.Kind, e.Phase, e.Message)
		if err := output.WriteReceipts(w, e.Receipts); err != nil {
			return err
		}
	}
	return nil
}

func init() {
	historyCmd.Flags().Int("limit", 20, "Maximum number of transactions to list")
}
