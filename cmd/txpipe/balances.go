package txpipe

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/manifest-network/txpipe/internal/chain"
	"github.com/manifest-network/txpipe/internal/config"
	"github.com/manifest-network/txpipe/internal/query"
)

var balancesCmd = &cobra.Command{
	Use:   "balances [address]",
	Short: "Show the native and token balances of an address",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		clientCfg := config.LoadClientConfigFromCLI()
		if err := clientCfg.Validate(); err != nil {
			return fmt.Errorf("invalid client configuration: %w", err)
		}
		assets, err := parseAssets(viper.GetStringSlice("assets"))
		if err != nil {
			return err
		}

		ctx, cancel := signalContext()
		defer cancel()

		lcd := chain.NewLCDClient(clientCfg.LCDURL, nil, clientCfg.Timeout, clientCfg.MaxRetries)
		cache := query.NewCache(lcd, viper.GetDuration("cache-ttl"))
		balances, err := cache.Balances(ctx, query.Key{Wallet: args[0], Assets: assets})
		if err != nil {
			return err
		}

		if viper.GetString("output") == "json" {
			out := make(map[string]string, len(balances))
			for _, b := range balances {
				out[b.Asset.String()] = b.Amount.String()
			}
			return json.NewEncoder(os.Stdout).Encode(out)
		}

		tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		for _, b := range balances {
			fmt.Fprintf(tw, "%s\t%s\n", b.Asset, b.Display())
		}
		return tw.Flush()
	},
}

// parseAssets reads "uusd" style denoms and "cw20:<contract>" tokens.
func parseAssets(specs []string) ([]query.AssetInfo, error) {
	assets := make([]query.AssetInfo, 0, len(specs))
	for _, spec := range specs {
		spec = strings.TrimSpace(spec)
		switch {
		case spec == "":
			continue
		case strings.HasPrefix(spec, "cw20:"):
			contract := strings.TrimPrefix(spec, "cw20:")
			if contract == "" {
				return nil, fmt.Errorf("asset %q has no token contract", spec)
			}
			assets = append(assets, query.AssetInfo{TokenContract: contract})
		default:
			assets = append(assets, query.AssetInfo{NativeDenom: spec})
		}
	}
	if len(assets) == 0 {
		return nil, fmt.Errorf("no assets given")
	}
	return assets, nil
}

func init() {
	balancesCmd.Flags().StringSlice("assets", []string{"uusd", "uluna"}, "Assets to show: native denoms or cw20:<contract>")
	balancesCmd.Flags().Duration("cache-ttl", 0, "How long fetched balances are reused")
}
