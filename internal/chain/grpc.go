package chain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/manifest-network/txpipe/internal/client"
	"github.com/manifest-network/txpipe/internal/models"
	"github.com/manifest-network/txpipe/internal/utils"
)

const (
	broadcastTxMethod = "cosmos.tx.v1beta1.Service.BroadcastTx"
	getTxMethod       = "cosmos.tx.v1beta1.Service.GetTx"
)

// GRPCChain implements Client over the node's gRPC endpoint.
type GRPCChain struct {
	client     *client.GRPCClient
	signer     Signer
	maxRetries uint
}

func NewGRPCChain(gRPCClient *client.GRPCClient, signer Signer, maxRetries uint) *GRPCChain {
	return &GRPCChain{client: gRPCClient, signer: signer, maxRetries: maxRetries}
}

func (g *GRPCChain) Post(ctx context.Context, opts *models.TxOptions) (*models.TxResult, error) {
	if g.signer == nil {
		return nil, errors.New("no signer configured")
	}
	txBytes, err := g.signer.Sign(ctx, opts)
	if err != nil {
		return nil, err
	}

	params, err := json.Marshal(broadcastRequest{TxBytes: txBytes, Mode: broadcastModeSync})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal broadcast request: %w", err)
	}

	// One attempt only; a resent tx is rejected as already in the mempool.
	resp, err := g.invokeTxResponse(ctx, broadcastTxMethod, 1, params)
	if err != nil {
		return nil, fmt.Errorf("failed to broadcast transaction: %w", err)
	}
	return resp.toTxResult(), nil
}

func (g *GRPCChain) PollTxInfo(ctx context.Context, txHash string) (*models.TxInfo, error) {
	params, err := json.Marshal(map[string]string{"hash": txHash})
	if err != nil {
		return nil, err
	}

	resp, err := g.invokeTxResponse(ctx, getTxMethod, g.maxRetries, params)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get transaction %s: %w", txHash, err)
	}

	info, err := resp.toTxInfo()
	if err != nil {
		return nil, fmt.Errorf("failed to decode transaction %s: %w", txHash, err)
	}
	return info, nil
}

// invokeTxResponse calls a tx service method and decodes its tx_response.
// The embedded tx is an Any of chain specific messages and is left out.
func (g *GRPCChain) invokeTxResponse(ctx context.Context, method string, attempts uint, params []byte) (*txResponse, error) {
	c := g.client.WithContext(ctx)
	msg, err := utils.InvokeGRPC(c, method, attempts, params)
	if err != nil {
		return nil, err
	}

	body, err := utils.MarshalField(c, msg, "tx_response", "tx")
	if err != nil {
		return nil, err
	}

	var resp txResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode %s response: %w", method, err)
	}
	return &resp, nil
}
