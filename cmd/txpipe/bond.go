package txpipe

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/manifest-network/txpipe/internal/bond"
	"github.com/manifest-network/txpipe/internal/chain"
	"github.com/manifest-network/txpipe/internal/client"
	"github.com/manifest-network/txpipe/internal/config"
	"github.com/manifest-network/txpipe/internal/models"
	"github.com/manifest-network/txpipe/internal/output"
	"github.com/manifest-network/txpipe/internal/output/postgresql"
	"github.com/manifest-network/txpipe/internal/pipeline"
	"github.com/manifest-network/txpipe/internal/query"
	"github.com/manifest-network/txpipe/internal/runner"
	"github.com/manifest-network/txpipe/internal/units"
)

var bondCmd = &cobra.Command{
	Use:   "bond [amount]",
	Short: "Bond LUNA to a validator and mint bLUNA",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		clientCfg := config.LoadClientConfigFromCLI()
		if err := clientCfg.Validate(); err != nil {
			return fmt.Errorf("invalid client configuration: %w", err)
		}
		pipelineCfg, err := config.LoadPipelineConfigFromCLI()
		if err != nil {
			return err
		}
		if err := pipelineCfg.Validate(); err != nil {
			return fmt.Errorf("invalid pipeline configuration: %w", err)
		}
		contractsCfg := config.LoadContractsConfigFromCLI()
		if err := contractsCfg.Validate(); err != nil {
			return fmt.Errorf("invalid contracts configuration: %w", err)
		}
		outputCfg := config.LoadOutputConfigFromCLI()

		amount, err := units.ParseAmount[units.Luna](args[0])
		if err != nil {
			return fmt.Errorf("invalid bond amount: %w", err)
		}
		sender := viper.GetString("sender")

		ctx, cancel := signalContext()
		defer cancel()

		signer, err := chain.NewExecSigner(pipelineCfg.SignerCommand)
		if err != nil {
			return fmt.Errorf("a signer command is required to broadcast: %w", err)
		}
		txClient, closeClient, err := newTxClient(ctx, clientCfg, signer)
		if err != nil {
			return err
		}
		defer closeClient()

		handler, err := newOutputHandler(ctx, outputCfg)
		if err != nil {
			return err
		}
		defer func() {
			if err := handler.Close(); err != nil {
				slog.Warn("Failed to close output", "error", err)
			}
		}()

		var balances *bondBalances
		if viper.GetBool("show-balances") {
			lcd := chain.NewLCDClient(clientCfg.LCDURL, nil, clientCfg.Timeout, clientCfg.MaxRetries)
			balances = newBondBalances(lcd, sender, contractsCfg)
			balances.log(ctx, "before")
			defer balances.log(ctx, "after")
		}

		params := bond.MintParams{
			Sender:        sender,
			Validator:     viper.GetString("validator"),
			Amount:        amount,
			HubContract:   contractsCfg.BLunaHub,
			GasWanted:     pipelineCfg.GasWanted,
			GasPrice:      pipelineCfg.GasPrice,
			FixedGas:      pipelineCfg.FixedGas,
			GasAdjustment: pipelineCfg.GasAdjustment,
			Memo:          viper.GetString("memo"),
			Poll: pipeline.PollConfig{
				Interval: pipelineCfg.PollInterval,
				Attempts: pipelineCfg.PollAttempts,
				Timeout:  pipelineCfg.PollTimeout,
			},
			OnSucceed: func(r models.TxResultRendering) {
				slog.Info("Minted bLUNA", "hash", r.TxHash, "sender", sender)
				if balances != nil {
					balances.cache.Invalidate(sender)
				}
			},
		}
		tx := output.TxContext{Kind: bond.Kind, Address: sender}

		repeat := viper.GetUint("repeat")
		if repeat > 1 {
			return runBatch(ctx, txClient, params, tx, handler, repeat)
		}

		stream := bond.MintTx(txClient, params).Stream(ctx)
		if outputCfg.Format == string(output.FormatText) {
			stream = runner.NewSpinner("Broadcasting").Watch(stream)
		}
		last, err := output.Drain(ctx, handler, tx, stream)
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return fmt.Errorf("bond cancelled: %w", ctx.Err())
		}
		if last.Phase == models.PhaseFail {
			return fmt.Errorf("bond failed: %s", last.Message)
		}
		return nil
	},
}

func runBatch(ctx context.Context, txClient chain.Client, params bond.MintParams, tx output.TxContext, handler output.OutputHandler, repeat uint) error {
	jobs := make([]runner.Job, repeat)
	for i := range jobs {
		jobs[i] = runner.Job{Tx: tx, Pipeline: bond.MintTx(txClient, params)}
	}

	results, err := runner.RunAll(ctx, jobs, handler, runner.Config{
		MaxConcurrency: viper.GetUint("max-concurrency"),
		ShowProgress:   true,
	})
	if err != nil {
		return err
	}

	failed := 0
	for _, r := range results {
		if r.Phase == models.PhaseFail {
			failed++
		}
	}
	slog.Info("Batch finished", "transactions", len(results), "failed", failed)
	if failed > 0 {
		return fmt.Errorf("%d of %d transactions failed", failed, len(results))
	}
	return nil
}

// bondBalances logs the sender's LUNA and bLUNA balances around a bond. A
// SUCCEED rendering invalidates the cached ones.
type bondBalances struct {
	cache *query.Cache
	key   query.Key
}

func newBondBalances(fetcher query.Fetcher, sender string, contracts config.ContractsConfig) *bondBalances {
	assets := []query.AssetInfo{{NativeDenom: units.Luna{}.Denom()}}
	if contracts.BLunaToken != "" {
		assets = append(assets, query.AssetInfo{TokenContract: contracts.BLunaToken})
	}
	return &bondBalances{
		cache: query.NewCache(fetcher, time.Minute),
		key:   query.Key{Wallet: sender, Assets: assets},
	}
}

func (b *bondBalances) fetch(ctx context.Context) ([]query.Balance, error) {
	return b.cache.Balances(ctx, b.key)
}

func (b *bondBalances) log(ctx context.Context, when string) {
	balances, err := b.fetch(ctx)
	if err != nil {
		slog.Warn("Failed to fetch balances", "address", b.key.Wallet, "error", err)
		return
	}
	for _, bal := range balances {
		slog.Info("Balance", "when", when, "address", b.key.Wallet, "asset", bal.Asset.String(), "amount", bal.Display())
	}
}

// newTxClient returns the chain client selected by --transport and a
// function releasing it.
func newTxClient(ctx context.Context, cfg config.ClientConfig, signer chain.Signer) (chain.Client, func(), error) {
	switch transport := viper.GetString("transport"); transport {
	case "lcd":
		return chain.NewLCDClient(cfg.LCDURL, signer, cfg.Timeout, cfg.MaxRetries), func() {}, nil
	case "grpc":
		gRPCClient, err := client.NewGRPCClient(ctx, cfg.GRPCAddress, cfg.Insecure)
		if err != nil {
			return nil, nil, err
		}
		closeFn := func() {
			if err := gRPCClient.Close(); err != nil {
				slog.Warn("Failed to close gRPC connection", "error", err)
			}
		}
		return chain.NewGRPCChain(gRPCClient, signer, cfg.MaxRetries), closeFn, nil
	default:
		return nil, nil, fmt.Errorf("unknown transport %q (want lcd or grpc)", transport)
	}
}

// newOutputHandler writes renderings to stdout and, when a PostgreSQL URL is
// configured, stores terminal ones in the history table.
func newOutputHandler(ctx context.Context, cfg config.OutputConfig) (output.OutputHandler, error) {
	format, err := output.ParseFormat(cfg.Format)
	if err != nil {
		return nil, err
	}
	stdout, err := output.NewStreamOutputHandler(os.Stdout, format, false)
	if err != nil {
		return nil, err
	}
	if cfg.PostgresURL == "" {
		return stdout, nil
	}

	pg, err := postgresql.NewPostgresOutputHandler(ctx, cfg.PostgresURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open transaction history: %w", err)
	}
	return output.MultiOutputHandler{stdout, pg}, nil
}

func init() {
	bondCmd.Flags().String("sender", "", "Address signing the transaction")
	bondCmd.Flags().String("validator", "", "Validator to bond to")
	bondCmd.Flags().String("hub", "", "bLUNA hub contract address")
	bondCmd.Flags().String("memo", "", "Transaction memo")
	bondCmd.Flags().String("signer", "", "External signer command; reads the unsigned tx on stdin, writes base64 tx bytes")
	bondCmd.Flags().String("transport", "lcd", "Node transport used to broadcast and poll (lcd, grpc)")
	bondCmd.Flags().Uint64("gas-wanted", 1000000, "Gas limit of the transaction")
	bondCmd.Flags().String("gas-price", "0", "Gas price in uusd per unit of gas")
	bondCmd.Flags().String("fixed-gas", "250000", "Fixed fee in uusd added to the gas cost")
	bondCmd.Flags().String("gas-adjustment", "1.6", "Gas adjustment multiplier")
	bondCmd.Flags().Duration("poll-interval", pipeline.DefaultPollInterval, "Delay between inclusion lookups")
	bondCmd.Flags().Int("poll-attempts", pipeline.DefaultPollAttempts, "Maximum number of inclusion lookups")
	bondCmd.Flags().Duration("poll-timeout", time.Duration(0), "Wall-clock limit on inclusion lookups (0 for none)")
	bondCmd.Flags().Uint("repeat", 1, "Broadcast the same bond this many times")
	bondCmd.Flags().Uint("max-concurrency", 4, "Maximum number of transactions in flight with --repeat")
	bondCmd.Flags().Bool("show-balances", false, "Log the sender's LUNA and bLUNA balances before and after the bond")

	if err := viper.BindPFlag("contracts.bluna-hub", bondCmd.Flags().Lookup("hub")); err != nil {
		panic(err)
	}
}
