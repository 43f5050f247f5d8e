package query

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manifest-network/txpipe/internal/models"
)

type fakeFetcher struct {
	coins    []models.Coin
	tokens   map[string]string
	tokenErr error
	gate     chan struct{}

	bankCalls  atomic.Int32
	tokenCalls atomic.Int32
}

func (f *fakeFetcher) Balances(ctx context.Context, address string) ([]models.Coin, error) {
	f.bankCalls.Add(1)
	if f.gate != nil {
		<-f.gate
	}
	return f.coins, nil
}

func (f *fakeFetcher) ContractQuery(ctx context.Context, contract string, query, out any) error {
	f.tokenCalls.Add(1)
	if f.tokenErr != nil {
		return f.tokenErr
	}

	q, err := json.Marshal(query)
	if err != nil {
		return err
	}
	if string(q) != `{"balance":{"address":"terra1wallet"}}` {
		return errors.New("unexpected query " + string(q))
	}
	data, _ := json.Marshal(map[string]string{"balance": f.tokens[contract]})
	return json.Unmarshal(data, out)
}

func (f *fakeFetcher) Endpoint() string { return "https://lcd.example" }

func testKey() Key {
	return Key{
		Wallet: "terra1wallet",
		Assets: []AssetInfo{
			{NativeDenom: "uusd"},
			{TokenContract: "terra1anc"},
			{NativeDenom: "uluna"},
			{NativeDenom: "ukrw"},
		},
	}
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		coins: []models.Coin{
			{Denom: "uluna", Amount: "5000000"},
			{Denom: "uusd", Amount: "2500000000000"},
		},
		tokens: map[string]string{"terra1anc": "1234567"},
	}
}

func TestFetchBalances(t *testing.T) {
	f := newFakeFetcher()
	balances, err := FetchBalances(context.Background(), f, testKey())
	require.NoError(t, err)
	require.Len(t, balances, 4)

	want := []string{"2500000000000", "1234567", "5000000", "0"}
	for i, b := range balances {
		assert.Equal(t, testKey().Assets[i], b.Asset)
		assert.True(t, b.Amount.Equal(decimal.RequireFromString(want[i])), "asset %d: %s", i, b.Amount)
	}

	assert.Equal(t, "2,500,000.000", balances[0].Display())
	assert.Equal(t, "1.234567", balances[1].Display())
	assert.Equal(t, "5.000000", balances[2].Display())
	assert.EqualValues(t, 1, f.bankCalls.Load())
	assert.EqualValues(t, 1, f.tokenCalls.Load())
}

func TestFetchBalancesErrors(t *testing.T) {
	_, err := FetchBalances(context.Background(), newFakeFetcher(), Key{})
	assert.ErrorContains(t, err, "wallet address is empty")

	_, err = FetchBalances(context.Background(), newFakeFetcher(), Key{Wallet: "terra1wallet", Assets: []AssetInfo{{}}})
	assert.ErrorContains(t, err, "neither a denom nor a token contract")

	f := newFakeFetcher()
	f.tokenErr = errors.New("contract not found")
	_, err = FetchBalances(context.Background(), f, testKey())
	assert.ErrorContains(t, err, "contract not found")

	f = newFakeFetcher()
	f.tokens["terra1anc"] = "many"
	_, err = FetchBalances(context.Background(), f, testKey())
	assert.ErrorContains(t, err, `invalid balance "many"`)
}

func TestKeyStringIgnoresAssetOrder(t *testing.T) {
	a := Key{Wallet: "w", Endpoint: "e", Assets: []AssetInfo{{NativeDenom: "uusd"}, {TokenContract: "c"}}}
	b := Key{Wallet: "w", Endpoint: "e", Assets: []AssetInfo{{TokenContract: "c"}, {NativeDenom: "uusd"}}}
	assert.Equal(t, a.String(), b.String())

	c := a
	c.Endpoint = "other"
	assert.NotEqual(t, a.String(), c.String())
}

func TestCache(t *testing.T) {
	f := newFakeFetcher()
	cache := NewCache(f, time.Minute)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }

	_, err := cache.Balances(context.Background(), testKey())
	require.NoError(t, err)
	_, err = cache.Balances(context.Background(), testKey())
	require.NoError(t, err)
	assert.EqualValues(t, 1, f.bankCalls.Load())

	now = now.Add(2 * time.Minute)
	_, err = cache.Balances(context.Background(), testKey())
	require.NoError(t, err)
	assert.EqualValues(t, 2, f.bankCalls.Load())

	cache.Invalidate("terra1wallet")
	_, err = cache.Balances(context.Background(), testKey())
	require.NoError(t, err)
	assert.EqualValues(t, 3, f.bankCalls.Load())
}

func TestCacheDeduplicatesConcurrentQueries(t *testing.T) {
	f := newFakeFetcher()
	f.gate = make(chan struct{})
	cache := NewCache(f, time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			balances, err := cache.Balances(context.Background(), testKey())
			assert.NoError(t, err)
			assert.Len(t, balances, 4)
		}()
	}

	require.Eventually(t, func() bool { return f.bankCalls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(f.gate)
	wg.Wait()

	assert.EqualValues(t, 1, f.bankCalls.Load())
}
