package utils

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/manifest-network/txpipe/internal/client"
)

const (
	statusMethod           = "cosmos.base.node.v1beta1.Service.Status"
	getBlockByHeightMethod = "cosmos.base.tendermint.v1beta1.Service.GetBlockByHeight"
)

var lowestHeightRe = regexp.MustCompile(`lowest height is (\d+)`)

// GetLatestBlockHeightWithRetry reads the node's current height from its Status endpoint.
func GetLatestBlockHeightWithRetry(gRPCClient *client.GRPCClient, maxRetries uint) (uint64, error) {
	return ExtractGRPCField(
		gRPCClient,
		statusMethod,
		maxRetries,
		"height",
		parseHeight,
	)
}

// GetEarliestBlockHeight returns the lowest height the node still serves:
// 1 on archive nodes, otherwise the height named in the pruning error.
func GetEarliestBlockHeight(gRPCClient *client.GRPCClient, maxRetries uint) (uint64, error) {
	inputParams := []byte(`{"height":"1"}`)
	_, err := InvokeGRPC(gRPCClient, getBlockByHeightMethod, 1, inputParams)
	if err == nil {
		return 1, nil
	}

	// "height 1 is not available, lowest height is 28566001"
	if lowest := parseLowestHeightFromError(err.Error()); lowest > 0 {
		return lowest, nil
	}

	// The first failure may have been transient.
	_, err = InvokeGRPC(gRPCClient, getBlockByHeightMethod, maxRetries, inputParams)
	if err == nil {
		return 1, nil
	}
	if lowest := parseLowestHeightFromError(err.Error()); lowest > 0 {
		return lowest, nil
	}

	return 0, fmt.Errorf("failed to determine earliest block height: %w", err)
}

func parseHeight(s string) (uint64, error) {
	height, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, errors.WithMessage(err, "error parsing height")
	}
	return height, nil
}

func parseLowestHeightFromError(errMsg string) uint64 {
	matches := lowestHeightRe.FindStringSubmatch(strings.ToLower(errMsg))
	if len(matches) < 2 {
		return 0
	}
	height, err := strconv.ParseUint(matches[1], 10, 64)
	if err != nil {
		return 0
	}
	return height
}
