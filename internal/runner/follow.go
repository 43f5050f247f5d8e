package runner

import (
	"fmt"
	"time"

	"github.com/manifest-network/txpipe/internal/client"
	"github.com/manifest-network/txpipe/internal/utils"
)

// FollowHeight calls onHeight every time the node reports a latest height
// above startHeight or the last one reported, until gRPCClient.Ctx is done.
func FollowHeight(gRPCClient *client.GRPCClient, startHeight uint64, interval time.Duration, maxRetries uint, onHeight func(uint64) error) error {
	currentHeight := startHeight
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		latestHeight, err := utils.GetLatestBlockHeightWithRetry(gRPCClient, maxRetries)
		if err != nil {
			if gRPCClient.Ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("failed to get latest block height: %w", err)
		}

		if latestHeight > currentHeight {
			if err := onHeight(latestHeight); err != nil {
				return err
			}
			currentHeight = latestHeight
		}

		select {
		case <-gRPCClient.Ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
