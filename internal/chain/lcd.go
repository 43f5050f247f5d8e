package chain

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/manifest-network/txpipe/internal/models"
)

const (
	txsPath          = "/cosmos/tx/v1beta1/txs"
	txByHashPath     = "/cosmos/tx/v1beta1/txs/{hash}"
	balancesPath     = "/cosmos/bank/v1beta1/balances/{address}"
	contractSmartURL = "/cosmwasm/wasm/v1/contract/{contract}/smart/{query}"
)

// LCDClient talks to a node's REST (LCD) endpoint.
type LCDClient struct {
	rest     *resty.Client
	signer   Signer
	endpoint string
}

// lcdError is the grpc-gateway error body.
type lcdError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// NewLCDClient returns a client for endpoint. signer may be nil for read-only use.
func NewLCDClient(endpoint string, signer Signer, timeout time.Duration, maxRetries uint) *LCDClient {
	endpoint = strings.TrimRight(endpoint, "/")
	rest := resty.New().
		SetBaseURL(endpoint).
		SetTimeout(timeout).
		SetRetryCount(int(maxRetries)).
		SetRetryWaitTime(500 * time.Millisecond).
		SetHeader("Accept", "application/json").
		AddRetryCondition(retryReads)

	return &LCDClient{rest: rest, signer: signer, endpoint: endpoint}
}

// Endpoint is the base URL the client was created with.
func (c *LCDClient) Endpoint() string { return c.endpoint }

func (c *LCDClient) Post(ctx context.Context, opts *models.TxOptions) (*models.TxResult, error) {
	if c.signer == nil {
		return nil, fmt.Errorf("no signer configured")
	}
	txBytes, err := c.signer.Sign(ctx, opts)
	if err != nil {
		return nil, err
	}

	var out struct {
		TxResponse txResponse `json:"tx_response"`
	}
	resp, err := c.rest.R().
		SetContext(ctx).
		SetBody(broadcastRequest{TxBytes: txBytes, Mode: broadcastModeSync}).
		SetResult(&out).
		SetError(&lcdError{}).
		Post(txsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to broadcast transaction: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("broadcast rejected: %s", describe(resp))
	}

	return out.TxResponse.toTxResult(), nil
}

func (c *LCDClient) PollTxInfo(ctx context.Context, txHash string) (*models.TxInfo, error) {
	var out struct {
		TxResponse txResponse `json:"tx_response"`
	}
	resp, err := c.rest.R().
		SetContext(ctx).
		SetPathParam("hash", txHash).
		SetResult(&out).
		SetError(&lcdError{}).
		Get(txByHashPath)
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction %s: %w", txHash, err)
	}
	if resp.IsError() {
		if isNotFound(resp) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get transaction %s: %s", txHash, describe(resp))
	}

	info, err := out.TxResponse.toTxInfo()
	if err != nil {
		return nil, fmt.Errorf("failed to decode transaction %s: %w", txHash, err)
	}
	return info, nil
}

// Balances returns the native bank balances of address.
func (c *LCDClient) Balances(ctx context.Context, address string) ([]models.Coin, error) {
	var out struct {
		Balances []models.Coin `json:"balances"`
	}
	resp, err := c.rest.R().
		SetContext(ctx).
		SetPathParam("address", address).
		SetQueryParam("pagination.limit", "1000").
		SetResult(&out).
		SetError(&lcdError{}).
		Get(balancesPath)
	if err != nil {
		return nil, fmt.Errorf("failed to get balances of %s: %w", address, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("failed to get balances of %s: %s", address, describe(resp))
	}
	return out.Balances, nil
}

// ContractQuery runs a CosmWasm smart query and decodes its data into out.
func (c *LCDClient) ContractQuery(ctx context.Context, contract string, query, out any) error {
	msg, err := json.Marshal(query)
	if err != nil {
		return fmt.Errorf("failed to marshal contract query: %w", err)
	}

	var body struct {
		Data json.RawMessage `json:"data"`
	}
	resp, err := c.rest.R().
		SetContext(ctx).
		SetPathParam("contract", contract).
		SetPathParam("query", base64.StdEncoding.EncodeToString(msg)).
		SetResult(&body).
		SetError(&lcdError{}).
		Get(contractSmartURL)
	if err != nil {
		return fmt.Errorf("failed to query contract %s: %w", contract, err)
	}
	if resp.IsError() {
		return fmt.Errorf("failed to query contract %s: %s", contract, describe(resp))
	}

	if err := json.Unmarshal(body.Data, out); err != nil {
		return fmt.Errorf("failed to decode contract %s response: %w", contract, err)
	}
	return nil
}

// retryReads retries failed lookups. A broadcast is never sent twice: the
// node may already hold the first copy and would reject the second.
func retryReads(r *resty.Response, err error) bool {
	if r != nil && r.Request != nil && r.Request.Method == http.MethodPost {
		return false
	}
	return err != nil || (r != nil && r.StatusCode() >= http.StatusInternalServerError)
}

func isNotFound(resp *resty.Response) bool {
	if resp.StatusCode() == http.StatusNotFound {
		return true
	}
	if e, ok := resp.Error().(*lcdError); ok {
		return strings.Contains(strings.ToLower(e.Message), "not found")
	}
	return false
}

func describe(resp *resty.Response) string {
	if e, ok := resp.Error().(*lcdError); ok && e.Message != "" {
		return fmt.Sprintf("status %d: %s", resp.StatusCode(), e.Message)
	}
	return fmt.Sprintf("status %d: %s", resp.StatusCode(), strings.TrimSpace(resp.String()))
}
