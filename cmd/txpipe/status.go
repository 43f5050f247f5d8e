package txpipe

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/manifest-network/txpipe/internal/client"
	"github.com/manifest-network/txpipe/internal/config"
	"github.com/manifest-network/txpipe/internal/runner"
	"github.com/manifest-network/txpipe/internal/utils"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the block heights served by the node",
	RunE: func(cmd *cobra.Command, args []string) error {
		clientCfg := config.LoadClientConfigFromCLI()

		ctx, cancel := signalContext()
		defer cancel()

		gRPCClient, err := client.NewGRPCClient(ctx, clientCfg.GRPCAddress, clientCfg.Insecure)
		if err != nil {
			return err
		}
		defer func() {
			if err := gRPCClient.Close(); err != nil {
				slog.Warn("Failed to close gRPC connection", "error", err)
			}
		}()

		earliest, err := utils.GetEarliestBlockHeight(gRPCClient, clientCfg.MaxRetries)
		if err != nil {
			return err
		}
		latest, err := utils.GetLatestBlockHeightWithRetry(gRPCClient, clientCfg.MaxRetries)
		if err != nil {
			return fmt.Errorf("failed to get latest block height: %w", err)
		}
		fmt.Printf("earliest height: %d\nlatest height:   %d\n", earliest, latest)

		if !viper.GetBool("follow") {
			return nil
		}
		return runner.FollowHeight(gRPCClient, latest, viper.GetDuration("interval"), clientCfg.MaxRetries, func(height uint64) error {
			fmt.Printf("latest height:   %d\n", height)
			return nil
		})
	},
}

func init() {
	statusCmd.Flags().BoolP("follow", "f", false, "Keep printing the latest height as blocks are produced")
	statusCmd.Flags().Duration("interval", 2*time.Second, "Delay between height lookups with --follow")
}
