// Package config loads service configuration from TOML, .env and environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Duration wraps time.Duration for TOML string decoding ("3s", "250ms").
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

func dur(d time.Duration) Duration { return Duration{Duration: d} }

// Config is the full service configuration.
type Config struct {
	UserID    string `toml:"user_id"`
	HTTPPort  int    `toml:"http_port"`
	UseMemory bool   `toml:"use_memory"`

	Log          LogConfig          `toml:"log"`
	Solana       SolanaConfig       `toml:"solana"`
	Signer       SignerConfig       `toml:"signer"`
	Feed         FeedConfig         `toml:"feed"`
	Aggregator   ServiceConfig      `toml:"aggregator"`
	MarketData   ServiceConfig      `toml:"market_data"`
	WalletGraph  ServiceConfig      `toml:"wallet_graph"`
	Risk         RiskConfig         `toml:"risk"`
	Observation  ObservationConfig  `toml:"observation"`
	Execution    ExecutionConfig    `toml:"execution"`
	Orchestrator OrchestratorConfig `toml:"orchestrator"`
	Monitor      MonitorConfig      `toml:"monitor"`
	Postgres     PostgresConfig     `toml:"postgres"`
	ClickHouse   ClickHouseConfig   `toml:"clickhouse"`
	Redis        RedisConfig        `toml:"redis"`
	Notify       NotifyConfig       `toml:"notify"`
}

type LogConfig struct {
	Level      string `toml:"level"`
	Format     string `toml:"format"`
	File       string `toml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
}

type SolanaConfig struct {
	RPCURL     string   `toml:"rpc_url"`
	Timeout    Duration `toml:"timeout"`
	MaxRetries int      `toml:"max_retries"`
}

// SignerConfig selects the signing capability. Mode is "keypair" or "remote".
type SignerConfig struct {
	Mode          string `toml:"mode"`
	PrivateKey    string `toml:"-"` // base58, env only
	RemoteURL     string `toml:"remote_url"`
	RemoteAPIKey  string `toml:"-"`
	WalletAddress string `toml:"wallet_address"`
}

type FeedConfig struct {
	Enabled bool     `toml:"enabled"`
	URL     string   `toml:"url"`
	Venues  []string `toml:"venues"`
}

// ServiceConfig is shared by the HTTP data services.
type ServiceConfig struct {
	BaseURL    string   `toml:"base_url"`
	APIKey     string   `toml:"-"`
	Timeout    Duration `toml:"timeout"`
	RetryCount int      `toml:"retry_count"`
	RPS        float64  `toml:"rps"`
	Burst      int      `toml:"burst"`
}

type RiskConfig struct {
	Threshold              int      `toml:"threshold"`
	CheckTimeout           Duration `toml:"check_timeout"`
	DataUnavailablePenalty int      `toml:"data_unavailable_penalty"`

	ClusterMaxSharedFrac float64 `toml:"cluster_max_shared_fraction"`
	FreshWalletWarnFrac  float64 `toml:"fresh_wallet_warn_fraction"`
	FreshWalletBlockFrac float64 `toml:"fresh_wallet_block_fraction"`
	EarlyBuyers          int     `toml:"early_buyers"`

	DeployerMaxTokens24h   int      `toml:"deployer_max_tokens_24h"`
	DeployerMinLiqLifespan Duration `toml:"deployer_min_liquidity_lifespan"`
	DeployerMaxRugRatio    float64  `toml:"deployer_max_rug_ratio"`

	StressWithdrawFrac float64 `toml:"stress_withdraw_fraction"`
	StressBlockLoss    float64 `toml:"stress_block_loss"`
	StressWarnLoss     float64 `toml:"stress_warn_loss"`
	StressWarnPenalty  int     `toml:"stress_warn_penalty"`
	StressFeeFrac      float64 `toml:"stress_fee_fraction"`

	LiquidityHardMinUSD float64 `toml:"liquidity_hard_min_usd"`
	LiquiditySoftMinUSD float64 `toml:"liquidity_soft_min_usd"`
}

type ObservationConfig struct {
	Enabled            bool     `toml:"enabled"`
	Delay              Duration `toml:"delay"`
	HighLiquidityUSD   float64  `toml:"high_liquidity_usd"`
	MaxLiquidityChange float64  `toml:"max_liquidity_change"`
	MaxQuoteDeviation  float64  `toml:"max_quote_deviation"`
	AbortOnInstability bool     `toml:"abort_on_instability"`
}

type ExecutionConfig struct {
	BuyAmountSOL        string   `toml:"buy_amount_sol"` // decimal string
	SlippageBps         int      `toml:"slippage_bps"`
	PriorityFeeLamports uint64   `toml:"priority_fee_lamports"`
	MaxRetries          int      `toml:"max_retries"`
	TakeProfitPct       float64  `toml:"take_profit_pct"`
	StopLossPct         float64  `toml:"stop_loss_pct"`
	QuoteTTL            Duration `toml:"quote_ttl"`
	PollInterval        Duration `toml:"poll_interval"`
	MaxPollAttempts     int      `toml:"max_poll_attempts"`
	FeeReserveSOL       string   `toml:"fee_reserve_sol"`
}

type OrchestratorConfig struct {
	Cooldown    Duration `toml:"cooldown"`
	AutoExecute bool     `toml:"auto_execute"`
}

type CheckpointConfig struct {
	Offset       Duration `toml:"offset"`
	MaxDropPct   float64  `toml:"max_drop_pct"`
	MaxImpactPct float64  `toml:"max_impact_pct"`
}

type MonitorConfig struct {
	Enabled      bool               `toml:"enabled"`
	ProbeTimeout Duration           `toml:"probe_timeout"`
	Checkpoints  []CheckpointConfig `toml:"checkpoints"`
}

type PostgresConfig struct {
	DSN           string `toml:"-"`
	RunMigrations bool   `toml:"run_migrations"`
}

type ClickHouseConfig struct {
	DSN           string `toml:"-"`
	RunMigrations bool   `toml:"run_migrations"`
}

type RedisConfig struct {
	Addr      string `toml:"addr"`
	Password  string `toml:"-"`
	DB        int    `toml:"db"`
	KeyPrefix string `toml:"key_prefix"`
}

type NotifyConfig struct {
	TelegramToken  string `toml:"-"`
	TelegramChatID string `toml:"telegram_chat_id"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		UserID:   "default",
		HTTPPort: 8080,
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Solana: SolanaConfig{
			RPCURL:     "https://api.mainnet-beta.solana.com",
			Timeout:    dur(30 * time.Second),
			MaxRetries: 3,
		},
		Signer: SignerConfig{Mode: "keypair"},
		Feed:   FeedConfig{Enabled: true},
		Aggregator: ServiceConfig{
			BaseURL:    "https://quote-api.jup.ag/v6",
			Timeout:    dur(10 * time.Second),
			RetryCount: 2,
			RPS:        5,
			Burst:      5,
		},
		MarketData: ServiceConfig{
			BaseURL:    "https://api.dexscreener.com",
			Timeout:    dur(8 * time.Second),
			RetryCount: 2,
			RPS:        4,
			Burst:      4,
		},
		WalletGraph: ServiceConfig{
			Timeout:    dur(8 * time.Second),
			RetryCount: 2,
			RPS:        5,
			Burst:      5,
		},
		Risk: RiskConfig{
			Threshold:              65,
			CheckTimeout:           dur(8 * time.Second),
			DataUnavailablePenalty: 10,
			ClusterMaxSharedFrac:   0.40,
			FreshWalletWarnFrac:    0.50,
			FreshWalletBlockFrac:   0.80,
			EarlyBuyers:            10,
			DeployerMaxTokens24h:   3,
			DeployerMinLiqLifespan: dur(5 * time.Minute),
			DeployerMaxRugRatio:    0.50,
			StressWithdrawFrac:     0.50,
			StressBlockLoss:        0.40,
			StressWarnLoss:         0.25,
			StressWarnPenalty:      15,
			LiquidityHardMinUSD:    1_000,
			LiquiditySoftMinUSD:    5_000,
		},
		Observation: ObservationConfig{
			Enabled:            true,
			Delay:              dur(3 * time.Second),
			HighLiquidityUSD:   100_000,
			MaxLiquidityChange: 0.15,
			MaxQuoteDeviation:  0.10,
			AbortOnInstability: true,
		},
		Execution: ExecutionConfig{
			BuyAmountSOL:        "0.1",
			SlippageBps:         500,
			PriorityFeeLamports: 100_000,
			MaxRetries:          2,
			TakeProfitPct:       50,
			StopLossPct:         25,
			QuoteTTL:            dur(20 * time.Second),
			PollInterval:        dur(2 * time.Second),
			MaxPollAttempts:     20,
			FeeReserveSOL:       "0.01",
		},
		Orchestrator: OrchestratorConfig{
			Cooldown:    dur(10 * time.Second),
			AutoExecute: true,
		},
		Monitor: MonitorConfig{
			Enabled:      true,
			ProbeTimeout: dur(8 * time.Second),
			Checkpoints: []CheckpointConfig{
				{Offset: dur(15 * time.Second), MaxDropPct: 20, MaxImpactPct: 15},
				{Offset: dur(30 * time.Second), MaxDropPct: 30, MaxImpactPct: 25},
				{Offset: dur(60 * time.Second), MaxDropPct: 40, MaxImpactPct: 35},
			},
		},
		Postgres:   PostgresConfig{RunMigrations: true},
		ClickHouse: ClickHouseConfig{RunMigrations: true},
		Redis:      RedisConfig{KeyPrefix: "entrygate"},
	}
}

var validLogLevels = map[string]bool{"debug": true, "info": true, "warn": true, "warning": true, "error": true}

// Validate checks the configuration and returns all problems at once.
func (c *Config) Validate() error {
	var errs []string

	if c.UserID == "" {
		errs = append(errs, "user_id must not be empty")
	}
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		errs = append(errs, fmt.Sprintf("http_port out of range: %d", c.HTTPPort))
	}
	if !validLogLevels[strings.ToLower(c.Log.Level)] {
		errs = append(errs, fmt.Sprintf("log: unknown level %q", c.Log.Level))
	}
	if c.Solana.RPCURL == "" {
		errs = append(errs, "solana: rpc_url must not be empty")
	}

	switch c.Signer.Mode {
	case "keypair":
		if c.Signer.PrivateKey == "" {
			errs = append(errs, "signer: ENTRYGATE_SIGNER_PRIVATE_KEY is required for keypair mode")
		}
	case "remote":
		if c.Signer.RemoteURL == "" || c.Signer.WalletAddress == "" {
			errs = append(errs, "signer: remote_url and wallet_address are required for remote mode")
		}
	case "none":
	default:
		errs = append(errs, fmt.Sprintf("signer: unknown mode %q (valid: keypair, remote, none)", c.Signer.Mode))
	}

	if c.Feed.Enabled && c.Feed.URL == "" {
		errs = append(errs, "feed: url must be set when enabled")
	}
	if c.Aggregator.BaseURL == "" {
		errs = append(errs, "aggregator: base_url must not be empty")
	}
	if c.MarketData.BaseURL == "" {
		errs = append(errs, "market_data: base_url must not be empty")
	}
	if c.WalletGraph.BaseURL == "" {
		errs = append(errs, "wallet_graph: base_url must not be empty")
	}

	if c.Risk.Threshold <= 0 {
		errs = append(errs, "risk: threshold must be positive")
	}
	if c.Risk.StressWarnLoss >= c.Risk.StressBlockLoss {
		errs = append(errs, "risk: stress_warn_loss must be below stress_block_loss")
	}
	if c.Risk.LiquiditySoftMinUSD < c.Risk.LiquidityHardMinUSD {
		errs = append(errs, "risk: liquidity_soft_min_usd must not be below liquidity_hard_min_usd")
	}

	if c.Execution.SlippageBps <= 0 || c.Execution.SlippageBps > 5000 {
		errs = append(errs, fmt.Sprintf("execution: slippage_bps out of range: %d", c.Execution.SlippageBps))
	}
	if amt, err := decimal.NewFromString(c.Execution.BuyAmountSOL); err != nil || !amt.IsPositive() {
		errs = append(errs, fmt.Sprintf("execution: buy_amount_sol must be a positive decimal, got %q", c.Execution.BuyAmountSOL))
	}
	if _, err := decimal.NewFromString(c.Execution.FeeReserveSOL); err != nil {
		errs = append(errs, fmt.Sprintf("execution: fee_reserve_sol is not a decimal: %q", c.Execution.FeeReserveSOL))
	}
	if c.Execution.MaxPollAttempts <= 0 {
		errs = append(errs, "execution: max_poll_attempts must be positive")
	}

	for i := 1; i < len(c.Monitor.Checkpoints); i++ {
		prev, cur := c.Monitor.Checkpoints[i-1], c.Monitor.Checkpoints[i]
		if cur.Offset.Duration <= prev.Offset.Duration {
			errs = append(errs, "monitor: checkpoint offsets must increase")
		}
		if cur.MaxDropPct < prev.MaxDropPct || cur.MaxImpactPct < prev.MaxImpactPct {
			errs = append(errs, "monitor: earlier checkpoints must be at least as strict as later ones")
		}
	}

	if !c.UseMemory && c.Postgres.DSN == "" {
		errs = append(errs, "postgres: ENTRYGATE_POSTGRES_DSN is required unless use_memory is set")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
