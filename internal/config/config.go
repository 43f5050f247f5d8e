package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/manifest-network/txpipe/internal/units"
)

// ClientConfig locates the node.
type ClientConfig struct {
	LCDURL      string
	GRPCAddress string
	Insecure    bool
	Timeout     time.Duration
	MaxRetries  uint
}

func (c ClientConfig) Validate() error {
	if c.LCDURL == "" {
		return errors.New("lcd url must be set")
	}
	if c.Timeout <= 0 {
		return errors.New("timeout must be greater than zero")
	}
	if c.MaxRetries == 0 {
		return errors.New("max retries must be greater than zero")
	}
	return nil
}

func LoadClientConfigFromCLI() ClientConfig {
	return ClientConfig{
		LCDURL:      viper.GetString("lcd"),
		GRPCAddress: viper.GetString("grpc"),
		Insecure:    viper.GetBool("insecure"),
		Timeout:     viper.GetDuration("timeout"),
		MaxRetries:  viper.GetUint("max-retries"),
	}
}

// PipelineConfig holds the fee and polling parameters of transactions.
type PipelineConfig struct {
	GasWanted     uint64
	GasPrice      decimal.Decimal
	FixedGas      units.Micro[units.UST]
	GasAdjustment decimal.Decimal
	PollInterval  time.Duration
	PollAttempts  int
	PollTimeout   time.Duration
	SignerCommand string
}

func (c PipelineConfig) Validate() error {
	if c.GasWanted == 0 {
		return errors.New("gas wanted must be greater than zero")
	}
	if c.GasPrice.IsNegative() {
		return errors.New("gas price must not be negative")
	}
	if c.GasAdjustment.LessThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("gas adjustment must be at least 1, got %s", c.GasAdjustment)
	}
	if c.PollInterval <= 0 {
		return errors.New("poll interval must be greater than zero")
	}
	if c.PollAttempts <= 0 {
		return errors.New("poll attempts must be greater than zero")
	}
	if c.PollTimeout < 0 {
		return errors.New("poll timeout must not be negative")
	}
	return nil
}

func LoadPipelineConfigFromCLI() (PipelineConfig, error) {
	gasPrice, err := decimal.NewFromString(viper.GetString("gas-price"))
	if err != nil {
		return PipelineConfig{}, fmt.Errorf("invalid gas price: %w", err)
	}
	fixedGas, err := units.ParseMicro[units.UST](viper.GetString("fixed-gas"))
	if err != nil {
		return PipelineConfig{}, fmt.Errorf("invalid fixed gas: %w", err)
	}
	gasAdjustment, err := decimal.NewFromString(viper.GetString("gas-adjustment"))
	if err != nil {
		return PipelineConfig{}, fmt.Errorf("invalid gas adjustment: %w", err)
	}

	return PipelineConfig{
		GasWanted:     viper.GetUint64("gas-wanted"),
		GasPrice:      gasPrice,
		FixedGas:      fixedGas,
		GasAdjustment: gasAdjustment,
		PollInterval:  viper.GetDuration("poll-interval"),
		PollAttempts:  viper.GetInt("poll-attempts"),
		PollTimeout:   viper.GetDuration("poll-timeout"),
		SignerCommand: viper.GetString("signer"),
	}, nil
}

// ContractsConfig holds the contract addresses of the protocol.
type ContractsConfig struct {
	BLunaHub   string
	ANCToken   string
	BLunaToken string
}

func (c ContractsConfig) Validate() error {
	if c.BLunaHub == "" {
		return errors.New("bluna hub contract must be set")
	}
	return nil
}

func LoadContractsConfigFromCLI() ContractsConfig {
	return ContractsConfig{
		BLunaHub:   viper.GetString("contracts.bluna-hub"),
		ANCToken:   viper.GetString("contracts.anc-token"),
		BLunaToken: viper.GetString("contracts.bluna-token"),
	}
}

// OutputConfig selects where renderings go.
type OutputConfig struct {
	Format      string
	PostgresURL string
	MetricsAddr string
}

func LoadOutputConfigFromCLI() OutputConfig {
	return OutputConfig{
		Format:      viper.GetString("output"),
		PostgresURL: viper.GetString("postgres-url"),
		MetricsAddr: viper.GetString("metrics-addr"),
	}
}
