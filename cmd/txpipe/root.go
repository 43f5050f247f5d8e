package txpipe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var logLevels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

var rootCmd = &cobra.Command{
	Use:   "txpipe",
	Short: "Build, broadcast and track protocol transactions",
	Long:  `txpipe builds protocol transactions, broadcasts them, waits for inclusion and prints their receipts.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := viper.BindPFlags(cmd.Flags()); err != nil {
			return fmt.Errorf("failed to bind flags: %w", err)
		}
		if err := loadConfigFile(); err != nil {
			return err
		}
		if err := setupLogger(); err != nil {
			return err
		}
		startMetricsServer(viper.GetString("metrics-addr"))
		return nil
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to a config file (yaml, toml or json)")
	rootCmd.PersistentFlags().StringP("logLevel", "l", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("logJSON", false, "Log as JSON")
	rootCmd.PersistentFlags().String("lcd", "https://lcd.terra.dev", "LCD (REST) endpoint of the node")
	rootCmd.PersistentFlags().String("grpc", "localhost:9090", "gRPC address of the node")
	rootCmd.PersistentFlags().BoolP("insecure", "k", false, "Skip TLS on the gRPC connection")
	rootCmd.PersistentFlags().Duration("timeout", 30*time.Second, "Timeout of a single node request")
	rootCmd.PersistentFlags().UintP("max-retries", "r", 3, "Maximum number of attempts per node request")
	rootCmd.PersistentFlags().StringP("output", "o", "text", "Output format (text, json, cbor)")
	rootCmd.PersistentFlags().String("postgres-url", "", "PostgreSQL connection string for the transaction history")
	rootCmd.PersistentFlags().String("metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :2112")

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		slog.Error("Failed to bind persistent flags", "error", err)
		os.Exit(1)
	}
	viper.SetEnvPrefix("TXPIPE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()

	rootCmd.AddCommand(bondCmd)
	rootCmd.AddCommand(formatCmd)
	rootCmd.AddCommand(balancesCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(statusCmd)
}

func loadConfigFile() error {
	path := viper.GetString("config")
	if path == "" {
		return nil
	}
	viper.SetConfigFile(path)
	if err := viper.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	slog.Debug("Loaded config file", "path", viper.ConfigFileUsed())
	return nil
}

func setupLogger() error {
	level, ok := logLevels[strings.ToLower(viper.GetString("logLevel"))]
	if !ok {
		return fmt.Errorf("invalid log level %q", viper.GetString("logLevel"))
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler = slog.NewTextHandler(os.Stderr, opts)
	if viper.GetBool("logJSON") {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
	return nil
}

func startMetricsServer(addr string) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		slog.Info("Serving metrics", "address", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Metrics server failed", "error", err)
		}
	}()
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("An error occurred", "error", err)
		os.Exit(1)
	}
}
