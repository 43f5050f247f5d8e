package chain

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manifest-network/txpipe/internal/models"
)

type staticSigner struct {
	tx  []byte
	err error
}

func (s staticSigner) Sign(context.Context, *models.TxOptions) ([]byte, error) { return s.tx, s.err }

const includedTx = `{"tx_response":{
	"height":"123",
	"txhash":"ABC123",
	"code":0,
	"raw_log":"[]",
	"logs":[{"msg_index":0,"log":"","events":[{"type":"from_contract","attributes":[{"key":"bonded","value":"5000000"}]}]}],
	"gas_wanted":"1000000",
	"gas_used":"654321"
}}`

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func newTestLCD(t *testing.T, handler http.HandlerFunc, signer Signer) *LCDClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewLCDClient(srv.URL+"/", signer, 2*time.Second, 2)
}

func TestLCDPost(t *testing.T) {
	var body broadcastRequest
	lcd := newTestLCD(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/cosmos/tx/v1beta1/txs", r.URL.Path)
		raw, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(raw, &body))
		writeJSON(w, http.StatusOK, `{"tx_response":{"txhash":"ABC123","code":0,"raw_log":""}}`)
	}, staticSigner{tx: []byte("signed")})

	result, err := lcd.Post(context.Background(), &models.TxOptions{})
	require.NoError(t, err)
	assert.Equal(t, &models.TxResult{TxHash: "ABC123"}, result)
	assert.Equal(t, []byte("signed"), body.TxBytes)
	assert.Equal(t, "BROADCAST_MODE_SYNC", body.Mode)
}

func TestLCDPostErrors(t *testing.T) {
	lcd := newTestLCD(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, `{"code":3,"message":"tx parse error"}`)
	}, staticSigner{tx: []byte("signed")})

	_, err := lcd.Post(context.Background(), &models.TxOptions{})
	assert.ErrorContains(t, err, "status 400: tx parse error")

	denied := newTestLCD(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("nothing should be broadcast after a denial")
	}, staticSigner{err: ErrUserDenied})
	_, err = denied.Post(context.Background(), &models.TxOptions{})
	assert.ErrorIs(t, err, ErrUserDenied)

	readOnly := NewLCDClient("http://127.0.0.1:1", nil, time.Second, 1)
	_, err = readOnly.Post(context.Background(), &models.TxOptions{})
	assert.ErrorContains(t, err, "no signer configured")
}

func TestLCDPollTxInfo(t *testing.T) {
	var calls atomic.Int32
	lcd := newTestLCD(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/cosmos/tx/v1beta1/txs/ABC123", r.URL.Path)
		if calls.Add(1) == 1 {
			writeJSON(w, http.StatusNotFound, `{"code":5,"message":"tx not found: ABC123"}`)
			return
		}
		writeJSON(w, http.StatusOK, includedTx)
	}, nil)

	info, err := lcd.PollTxInfo(context.Background(), "ABC123")
	require.NoError(t, err)
	assert.Nil(t, info)

	info, err = lcd.PollTxInfo(context.Background(), "ABC123")
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, int64(123), info.Height)
	assert.Equal(t, int64(654321), info.GasUsed)
	require.Len(t, info.Logs, 1)
	assert.Equal(t, "from_contract", info.Logs[0].Events[0].Type)
}

func TestLCDPollTxInfoNotFoundMessage(t *testing.T) {
	lcd := newTestLCD(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, `{"code":2,"message":"rpc error: tx (ABC123) not found"}`)
	}, nil)

	info, err := lcd.PollTxInfo(context.Background(), "ABC123")
	assert.NoError(t, err)
	assert.Nil(t, info)
}

func TestLCDRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	lcd := newTestLCD(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		writeJSON(w, http.StatusOK, includedTx)
	}, nil)

	info, err := lcd.PollTxInfo(context.Background(), "ABC123")
	require.NoError(t, err)
	assert.NotNil(t, info)
	assert.EqualValues(t, 2, calls.Load())
}

func TestLCDDoesNotResendBroadcast(t *testing.T) {
	var posts atomic.Int32
	lcd := newTestLCD(t, func(w http.ResponseWriter, r *http.Request) {
		if posts.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		writeJSON(w, http.StatusOK, `{"tx_response":{"txhash":"ABC123","code":19,"raw_log":"tx already exists in cache"}}`)
	}, staticSigner{tx: []byte("signed")})

	result, err := lcd.Post(context.Background(), &models.TxOptions{})
	assert.ErrorContains(t, err, "status 502")
	assert.Nil(t, result)
	assert.EqualValues(t, 1, posts.Load())
}

func TestLCDBalances(t *testing.T) {
	lcd := newTestLCD(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/cosmos/bank/v1beta1/balances/terra1wallet", r.URL.Path)
		writeJSON(w, http.StatusOK, `{"balances":[{"denom":"uluna","amount":"5000000"}],"pagination":{}}`)
	}, nil)

	coins, err := lcd.Balances(context.Background(), "terra1wallet")
	require.NoError(t, err)
	assert.Equal(t, []models.Coin{{Denom: "uluna", Amount: "5000000"}}, coins)
}

func TestLCDContractQuery(t *testing.T) {
	lcd := newTestLCD(t, func(w http.ResponseWriter, r *http.Request) {
		const prefix = "/cosmwasm/wasm/v1/contract/terra1anc/smart/"
		query, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(r.URL.Path, prefix))
		assert.NoError(t, err)
		assert.JSONEq(t, `{"balance":{"address":"terra1wallet"}}`, string(query))
		writeJSON(w, http.StatusOK, `{"data":{"balance":"1234567"}}`)
	}, nil)

	var out struct {
		Balance string `json:"balance"`
	}
	err := lcd.ContractQuery(context.Background(), "terra1anc",
		map[string]any{"balance": map[string]string{"address": "terra1wallet"}}, &out)
	require.NoError(t, err)
	assert.Equal(t, "1234567", out.Balance)
	assert.False(t, strings.HasSuffix(lcd.Endpoint(), "/"))
}
