package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

const envPrefix = "ENTRYGATE_"

// Load builds the configuration: defaults, then the TOML file at path (skipped
// when path is empty), then .env, then ENTRYGATE_* variables. The result is
// not validated.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
	}

	// missing .env is fine
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	setStr(&cfg.UserID, "USER_ID")
	setInt(&cfg.HTTPPort, "HTTP_PORT")
	setBool(&cfg.UseMemory, "USE_MEMORY")

	setStr(&cfg.Log.Level, "LOG_LEVEL")
	setStr(&cfg.Log.Format, "LOG_FORMAT")
	setStr(&cfg.Log.File, "LOG_FILE")

	setStr(&cfg.Solana.RPCURL, "SOLANA_RPC_URL")
	setDuration(&cfg.Solana.Timeout, "SOLANA_TIMEOUT")
	setInt(&cfg.Solana.MaxRetries, "SOLANA_MAX_RETRIES")

	setStr(&cfg.Signer.Mode, "SIGNER_MODE")
	setStr(&cfg.Signer.PrivateKey, "SIGNER_PRIVATE_KEY")
	setStr(&cfg.Signer.RemoteURL, "SIGNER_REMOTE_URL")
	setStr(&cfg.Signer.RemoteAPIKey, "SIGNER_REMOTE_API_KEY")
	setStr(&cfg.Signer.WalletAddress, "SIGNER_WALLET_ADDRESS")

	setBool(&cfg.Feed.Enabled, "FEED_ENABLED")
	setStr(&cfg.Feed.URL, "FEED_URL")
	setStringSlice(&cfg.Feed.Venues, "FEED_VENUES")

	setService(&cfg.Aggregator, "AGGREGATOR")
	setService(&cfg.MarketData, "MARKET_DATA")
	setService(&cfg.WalletGraph, "WALLET_GRAPH")

	setInt(&cfg.Risk.Threshold, "RISK_THRESHOLD")
	setDuration(&cfg.Risk.CheckTimeout, "RISK_CHECK_TIMEOUT")
	setInt(&cfg.Risk.DataUnavailablePenalty, "RISK_DATA_UNAVAILABLE_PENALTY")
	setFloat64(&cfg.Risk.LiquidityHardMinUSD, "RISK_LIQUIDITY_HARD_MIN_USD")
	setFloat64(&cfg.Risk.LiquiditySoftMinUSD, "RISK_LIQUIDITY_SOFT_MIN_USD")

	setBool(&cfg.Observation.Enabled, "OBSERVATION_ENABLED")
	setDuration(&cfg.Observation.Delay, "OBSERVATION_DELAY")
	setBool(&cfg.Observation.AbortOnInstability, "OBSERVATION_ABORT_ON_INSTABILITY")

	setStr(&cfg.Execution.BuyAmountSOL, "EXECUTION_BUY_AMOUNT_SOL")
	setInt(&cfg.Execution.SlippageBps, "EXECUTION_SLIPPAGE_BPS")
	setUint64(&cfg.Execution.PriorityFeeLamports, "EXECUTION_PRIORITY_FEE_LAMPORTS")
	setInt(&cfg.Execution.MaxRetries, "EXECUTION_MAX_RETRIES")
	setFloat64(&cfg.Execution.TakeProfitPct, "EXECUTION_TAKE_PROFIT_PCT")
	setFloat64(&cfg.Execution.StopLossPct, "EXECUTION_STOP_LOSS_PCT")
	setDuration(&cfg.Execution.PollInterval, "EXECUTION_POLL_INTERVAL")
	setInt(&cfg.Execution.MaxPollAttempts, "EXECUTION_MAX_POLL_ATTEMPTS")

	setDuration(&cfg.Orchestrator.Cooldown, "ORCHESTRATOR_COOLDOWN")
	setBool(&cfg.Orchestrator.AutoExecute, "ORCHESTRATOR_AUTO_EXECUTE")

	setBool(&cfg.Monitor.Enabled, "MONITOR_ENABLED")

	setStr(&cfg.Postgres.DSN, "POSTGRES_DSN")
	setBool(&cfg.Postgres.RunMigrations, "POSTGRES_RUN_MIGRATIONS")
	setStr(&cfg.ClickHouse.DSN, "CLICKHOUSE_DSN")
	setBool(&cfg.ClickHouse.RunMigrations, "CLICKHOUSE_RUN_MIGRATIONS")

	setStr(&cfg.Redis.Addr, "REDIS_ADDR")
	setStr(&cfg.Redis.Password, "REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "REDIS_DB")
	setStr(&cfg.Redis.KeyPrefix, "REDIS_KEY_PREFIX")

	setStr(&cfg.Notify.TelegramToken, "NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "NOTIFY_TELEGRAM_CHAT_ID")
}

func setService(dst *ServiceConfig, section string) {
	setStr(&dst.BaseURL, section+"_BASE_URL")
	setStr(&dst.APIKey, section+"_API_KEY")
	setDuration(&dst.Timeout, section+"_TIMEOUT")
	setInt(&dst.RetryCount, section+"_RETRY_COUNT")
	setFloat64(&dst.RPS, section+"_RPS")
}

// Each helper only writes when ENTRYGATE_<key> is set and parses.

func lookup(key string) string {
	return os.Getenv(envPrefix + key)
}

func setStr(dst *string, key string) {
	if v := lookup(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := lookup(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setUint64(dst *uint64, key string) {
	if v := lookup(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := lookup(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := lookup(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *Duration, key string) {
	if v := lookup(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := lookup(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				cleaned = append(cleaned, p)
			}
		}
		*dst = cleaned
	}
}
