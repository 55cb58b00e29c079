// Package config loads lab settings from an optional YAML file, a .env file and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Config holds all runtime settings.
type Config struct {
	Chain    ChainConfig    `yaml:"chain"`
	Strategy StrategyConfig `yaml:"strategy"`
	Mempool  MempoolConfig  `yaml:"mempool"`
	Oracle   OracleConfig   `yaml:"oracle"`
	Storage  StorageConfig  `yaml:"storage"`
	Report   ReportConfig   `yaml:"report"`
	Logging  LoggingConfig  `yaml:"logging"`
	HTTPAddr string         `yaml:"http_addr"`
}

type ChainConfig struct {
	RPCURL          string `yaml:"rpc_url"`
	WSURL           string `yaml:"ws_url"`
	ChainID         uint64 `yaml:"chain_id"`
	ProtocolAddress string `yaml:"protocol_address"`
	TokenAddress    string `yaml:"token_address"`
	PrivateKey      string `yaml:"private_key"`
	RequestsPerSec  int    `yaml:"requests_per_sec"`
}

type StrategyConfig struct {
	MinProfitUSD    string `yaml:"min_profit_usd"`
	MaxGasPriceGwei uint64 `yaml:"max_gas_price_gwei"`
}

type MempoolConfig struct {
	// BatchSize is read from MEMPOOL_BATCH_SIZE so existing environments keep
	// loading. Pending transactions are processed one at a time; nothing batches them.
	BatchSize           int `yaml:"batch_size"`
	HealthCheckInterval int `yaml:"health_check_interval_ms"`
	QueueCapacity       int `yaml:"queue_capacity"`
	// WSBuffer is the capacity of the WebSocket subscription channel, ahead
	// of the pipeline queue.
	WSBuffer int `yaml:"ws_buffer"`
}

type OracleConfig struct {
	PriceUSD string `yaml:"price_usd"`
	RedisURL string `yaml:"redis_url"`
	Symbol   string `yaml:"symbol"`
}

type StorageConfig struct {
	PostgresDSN   string `yaml:"postgres_dsn"`
	ClickhouseDSN string `yaml:"clickhouse_dsn"`
	SQLitePath    string `yaml:"sqlite_path"`
}

type ReportConfig struct {
	Dir        string `yaml:"dir"`
	S3Bucket   string `yaml:"s3_bucket"`
	S3Region   string `yaml:"s3_region"`
	S3Endpoint string `yaml:"s3_endpoint"`
	S3Prefix   string `yaml:"s3_prefix"`
	// Static credentials; empty means the default AWS chain.
	S3AccessKeyID     string `yaml:"s3_access_key_id"`
	S3SecretAccessKey string `yaml:"s3_secret_access_key"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	MaxAge int    `yaml:"max_age_days"`
}

// Default returns the settings used against a local Anvil node.
func Default() *Config {
	return &Config{
		Chain: ChainConfig{
			RPCURL:         "http://127.0.0.1:8545",
			WSURL:          "ws://127.0.0.1:8545",
			ChainID:        31337,
			RequestsPerSec: 200,
		},
		Strategy: StrategyConfig{
			MinProfitUSD:    "10",
			MaxGasPriceGwei: 100,
		},
		Mempool: MempoolConfig{
			BatchSize:           100,
			HealthCheckInterval: 100,
			QueueCapacity:       1000,
			WSBuffer:            1000,
		},
		Oracle: OracleConfig{
			PriceUSD: "2000",
			Symbol:   "ETH",
		},
		Report: ReportConfig{
			Dir:      "reports",
			S3Prefix: "liquidation-lab",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		HTTPAddr: ":9100",
	}
}

// Load builds a Config from defaults, the YAML file at path (optional),
// a .env file in the working directory (optional) and the environment,
// in increasing precedence. The result is not validated.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func applyEnv(cfg *Config) error {
	setString(&cfg.Chain.RPCURL, "ANVIL_RPC_URL")
	setString(&cfg.Chain.WSURL, "ANVIL_WS_URL")
	setString(&cfg.Chain.ProtocolAddress, "LENDING_PROTOCOL_ADDRESS")
	setString(&cfg.Chain.TokenAddress, "MOCK_TOKEN_ADDRESS")
	setString(&cfg.Chain.PrivateKey, "LIQUIDATOR_PRIVATE_KEY")
	setString(&cfg.Strategy.MinProfitUSD, "MIN_PROFIT_THRESHOLD_USD")
	setString(&cfg.Oracle.PriceUSD, "PRICE_USD")
	setString(&cfg.Oracle.RedisURL, "REDIS_URL")
	setString(&cfg.Storage.PostgresDSN, "POSTGRES_DSN")
	setString(&cfg.Storage.ClickhouseDSN, "CLICKHOUSE_DSN")
	setString(&cfg.Storage.SQLitePath, "SQLITE_PATH")
	setString(&cfg.Report.S3Bucket, "S3_BUCKET")
	setString(&cfg.Report.S3Region, "S3_REGION")
	setString(&cfg.Report.S3Endpoint, "S3_ENDPOINT")
	setString(&cfg.Report.S3AccessKeyID, "S3_ACCESS_KEY_ID")
	setString(&cfg.Report.S3SecretAccessKey, "S3_SECRET_ACCESS_KEY")
	setString(&cfg.Logging.Level, "LOG_LEVEL")
	setString(&cfg.Logging.Format, "LOG_FORMAT")
	setString(&cfg.Logging.Output, "LOG_OUTPUT")
	setString(&cfg.HTTPAddr, "HTTP_ADDR")

	if v := os.Getenv("CHAIN_ID"); v != "" {
		n, err := strconv.ParseUint(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return fmt.Errorf("parse CHAIN_ID: %w", err)
		}
		cfg.Chain.ChainID = n
	}
	if v := os.Getenv("MAX_GAS_PRICE_GWEI"); v != "" {
		n, err := strconv.ParseUint(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return fmt.Errorf("parse MAX_GAS_PRICE_GWEI: %w", err)
		}
		cfg.Strategy.MaxGasPriceGwei = n
	}
	if v := os.Getenv("MEMPOOL_BATCH_SIZE"); v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("parse MEMPOOL_BATCH_SIZE: %w", err)
		}
		cfg.Mempool.BatchSize = n
	}
	if v := os.Getenv("MEMPOOL_WS_BUFFER"); v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("parse MEMPOOL_WS_BUFFER: %w", err)
		}
		cfg.Mempool.WSBuffer = n
	}
	if v := os.Getenv("HEALTH_CHECK_INTERVAL_MS"); v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("parse HEALTH_CHECK_INTERVAL_MS: %w", err)
		}
		cfg.Mempool.HealthCheckInterval = n
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = strings.TrimSpace(v)
	}
}

// Validate checks the settings the pipeline cannot run without.
func (c *Config) Validate() error {
	if err := validateAddress("chain.protocol_address", c.Chain.ProtocolAddress); err != nil {
		return err
	}
	if err := validateAddress("chain.token_address", c.Chain.TokenAddress); err != nil {
		return err
	}
	if c.Chain.ChainID == 0 {
		return fmt.Errorf("chain.chain_id must be greater than 0")
	}
	if c.Strategy.MaxGasPriceGwei == 0 {
		return fmt.Errorf("strategy.max_gas_price_gwei must be greater than 0")
	}
	if _, err := c.MinProfit(); err != nil {
		return err
	}
	if _, err := c.Price(); err != nil {
		return err
	}
	if c.Mempool.QueueCapacity <= 0 {
		return fmt.Errorf("mempool.queue_capacity must be greater than 0")
	}
	return nil
}

func validateAddress(name, value string) error {
	if value == "" {
		return fmt.Errorf("%s is required", name)
	}
	if !common.IsHexAddress(value) {
		return fmt.Errorf("%s '%s' is not a hex address", name, value)
	}
	if common.HexToAddress(value) == (common.Address{}) {
		return fmt.Errorf("%s must not be the zero address", name)
	}
	return nil
}

// ProtocolAddress returns the lending protocol contract address.
func (c *Config) ProtocolAddress() common.Address {
	return common.HexToAddress(c.Chain.ProtocolAddress)
}

// TokenAddress returns the collateral token address.
func (c *Config) TokenAddress() common.Address {
	return common.HexToAddress(c.Chain.TokenAddress)
}

// MinProfit parses the USD profit floor.
func (c *Config) MinProfit() (decimal.Decimal, error) {
	d, err := decimal.NewFromString(c.Strategy.MinProfitUSD)
	if err != nil {
		return decimal.Zero, fmt.Errorf("strategy.min_profit_usd '%s': %w", c.Strategy.MinProfitUSD, err)
	}
	return d, nil
}

// Price parses the static reference price.
func (c *Config) Price() (decimal.Decimal, error) {
	d, err := decimal.NewFromString(c.Oracle.PriceUSD)
	if err != nil {
		return decimal.Zero, fmt.Errorf("oracle.price_usd '%s': %w", c.Oracle.PriceUSD, err)
	}
	if !d.IsPositive() {
		return decimal.Zero, fmt.Errorf("oracle.price_usd must be positive")
	}
	return d, nil
}

// Redacted returns a copy safe to log.
func (c *Config) Redacted() Config {
	out := *c
	if out.Chain.PrivateKey != "" {
		out.Chain.PrivateKey = "***"
	}
	if out.Report.S3SecretAccessKey != "" {
		out.Report.S3SecretAccessKey = "***"
	}
	return out
}
