// Package query fetches wallet balances for display. Query functions are pure
// given their Key; results are cached per key.
package query

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/manifest-network/txpipe/internal/format"
	"github.com/manifest-network/txpipe/internal/models"
	"github.com/manifest-network/txpipe/internal/units"
)

const maxConcurrentFetches = 8

// AssetInfo names an asset either by native denom or by CW20 token contract.
type AssetInfo struct {
	NativeDenom   string `json:"native_denom,omitempty"`
	TokenContract string `json:"token_contract,omitempty"`
}

func (a AssetInfo) String() string {
	if a.TokenContract != "" {
		return "cw20:" + a.TokenContract
	}
	return a.NativeDenom
}

func (a AssetInfo) validate() error {
	switch {
	case a.NativeDenom == "" && a.TokenContract == "":
		return errors.New("asset has neither a denom nor a token contract")
	case a.NativeDenom != "" && a.TokenContract != "":
		return fmt.Errorf("asset %s has both a denom and a token contract", a.NativeDenom)
	}
	return nil
}

// Key identifies a balance query.
type Key struct {
	Wallet   string
	Assets   []AssetInfo
	Endpoint string
}

// String is a canonical form of k: asset order does not matter.
func (k Key) String() string {
	assets := make([]string, len(k.Assets))
	for i, a := range k.Assets {
		assets[i] = a.String()
	}
	sort.Strings(assets)
	return k.Endpoint + "|" + k.Wallet + "|" + strings.Join(assets, ",")
}

// Fetcher is the node access a balance query needs. *chain.LCDClient
// implements it.
type Fetcher interface {
	Balances(ctx context.Context, address string) ([]models.Coin, error)
	ContractQuery(ctx context.Context, contract string, query, out any) error
	Endpoint() string
}

// Balance is the balance of one asset in micro units.
type Balance struct {
	Asset  AssetInfo
	Amount decimal.Decimal
}

// Display is the balance in display units at the asset's preset precision.
// Unknown denoms are shown with six decimal points.
func (b Balance) Display() string {
	amount := b.Amount.Shift(-units.MicroExponent)
	preset, err := format.PresetFor(b.Asset.NativeDenom)
	if err != nil {
		return format.FormatDecimal(amount, units.MicroExponent, true)
	}
	return preset.Format(amount)
}

type cw20BalanceQuery struct {
	Balance struct {
		Address string `json:"address"`
	} `json:"balance"`
}

type cw20BalanceResponse struct {
	Balance string `json:"balance"`
}

// FetchBalances returns the balance of every asset in key, in key order.
// Native balances come from one bank query, token balances from one smart
// query each, all run concurrently.
func FetchBalances(ctx context.Context, f Fetcher, key Key) ([]Balance, error) {
	if key.Wallet == "" {
		return nil, errors.New("wallet address is empty")
	}
	for _, a := range key.Assets {
		if err := a.validate(); err != nil {
			return nil, err
		}
	}

	out := make([]Balance, len(key.Assets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentFetches)

	var native []int
	for i, asset := range key.Assets {
		i, asset := i, asset // per-iteration copies (Go < 1.22 loop semantics)
		if asset.NativeDenom != "" {
			native = append(native, i)
			continue
		}
		g.Go(func() error {
			var q cw20BalanceQuery
			q.Balance.Address = key.Wallet

			var resp cw20BalanceResponse
			if err := f.ContractQuery(gctx, asset.TokenContract, q, &resp); err != nil {
				return err
			}
			amount, err := decimal.NewFromString(resp.Balance)
			if err != nil {
				return fmt.Errorf("invalid balance %q from token %s: %w", resp.Balance, asset.TokenContract, err)
			}
			out[i] = Balance{Asset: asset, Amount: amount}
			return nil
		})
	}

	if len(native) > 0 {
		g.Go(func() error {
			coins, err := f.Balances(gctx, key.Wallet)
			if err != nil {
				return err
			}
			byDenom := make(map[string]string, len(coins))
			for _, c := range coins {
				byDenom[c.Denom] = c.Amount
			}
			for _, i := range native {
				asset := key.Assets[i]
				amount := decimal.Zero
				if raw, ok := byDenom[asset.NativeDenom]; ok {
					amount, err = decimal.NewFromString(raw)
					if err != nil {
						return fmt.Errorf("invalid %s balance %q: %w", asset.NativeDenom, raw, err)
					}
				}
				out[i] = Balance{Asset: asset, Amount: amount}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to fetch balances of %s: %w", key.Wallet, err)
	}

	slog.Debug("Fetched balances", "wallet", key.Wallet, "assets", len(key.Assets), "endpoint", key.Endpoint)
	return out, nil
}
