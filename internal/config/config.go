// Package config loads environment-driven settings for the trading core,
// mirroring the teacher's pkg/config idiom (godotenv + os.Getenv helpers)
// but generalized from crypto-exchange toggles to the options/futures
// domain: strategy parameters, risk thresholds, the supervisor/worker
// process model, and broker credentials.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"optioncore/internal/risk"
)

// TradingPeriod is one HH:MM-HH:MM session window; Start > End denotes a
// period that wraps past midnight (e.g. night session 21:00-02:30).
type TradingPeriod struct {
	Start string
	End   string
}

// RestartPolicy bounds the supervisor's exponential-backoff restart
// behavior. Grounded on the original watchdog's RestartPolicy dataclass:
// delay = base_delay * 2^(restart_count-1), capped at max_delay; the
// restart counter resets once the child has been up for reset_after_hours.
type RestartPolicy struct {
	MaxRestarts     int
	BaseDelay       time.Duration
	MaxDelay        time.Duration
	ResetAfterHours float64
}

// StrategyConfig holds the per-strategy parameters the worker process
// wires into the strategy engine.
type StrategyConfig struct {
	StrategyName            string
	Products                []string
	RolloverTime            string
	RiskThresholds          risk.Thresholds
	HedgeInstrumentVtSymbol string
	UseScheduler            bool
	SchedulerBatchSize      int
	LiquidityMinVolume      float64
	LiquidityMinBidVolume   float64
	LiquidityMaxSpreadTicks float64
	AutoSaveInterval        time.Duration

	// CountManualOpensTowardDailyCap controls whether a manually-detected
	// broker-side open (internal/position.ReconcileExternalPosition) also
	// counts against the daily open-volume cap. Default false: the strategy
	// doesn't take ownership of externally-opened volume, so it doesn't
	// charge that volume against caps it enforces for its own opens.
	CountManualOpensTowardDailyCap bool
}

// BrokerCredentials are the CTP-style gateway connection parameters.
type BrokerCredentials struct {
	BrokerID  string
	UserID    string
	Password  string
	AppID     string
	AuthCode  string
	MDAddress string
	TDAddress string
}

// Config is the root of environment-driven settings for both the
// supervisor (C20) and worker (C21) processes.
type Config struct {
	LogLevel string
	LogDir   string
	LogName  string

	DBPath string

	TradingPeriods []TradingPeriod
	RestartPolicy  RestartPolicy

	Strategy StrategyConfig
	Broker   BrokerCredentials

	// Operational HTTP facade (C25)
	HTTPPort      string
	JWTSecret     string
	LicenseSecret string

	// Credential vault (C26)
	VaultPassphrase string

	// Monitor event write batching (C17/C18), see persistence.BatchWriter
	MonitorEventBatchSize     int
	MonitorEventFlushInterval time.Duration

	// Pluggable indicator/signal worker bridge (C3/C4 over gRPC)
	EnablePythonWorker bool
	PythonWorkerAddr   string
}

// Load reads environment variables (optionally via .env) into Config.
func Load() (*Config, error) {
	_ = godotenv.Load()

	dbPath := getEnv("DB_PATH", "")
	if dbPath == "" {
		dbPath = getEnv("DATABASE_PATH", "./data/optioncore.db")
	}

	return &Config{
		LogLevel: getEnv("LOG_LEVEL", "INFO"),
		LogDir:   getEnv("LOG_DIR", "logs"),
		LogName:  getEnv("LOG_NAME", "strategy.log"),

		DBPath: dbPath,

		TradingPeriods: parseTradingPeriods(getEnv("TRADING_PERIODS", "")),
		RestartPolicy: RestartPolicy{
			MaxRestarts:     getEnvInt("RESTART_MAX_COUNT", 10),
			BaseDelay:       time.Duration(getEnvFloat("RESTART_BASE_DELAY_SECONDS", 5.0) * float64(time.Second)),
			MaxDelay:        time.Duration(getEnvFloat("RESTART_MAX_DELAY_SECONDS", 300.0) * float64(time.Second)),
			ResetAfterHours: getEnvFloat("RESTART_RESET_AFTER_HOURS", 1.0),
		},

		Strategy: StrategyConfig{
			StrategyName: getEnv("STRATEGY_NAME", "VolStrategy"),
			Products:     splitAndTrim(getEnv("STRATEGY_PRODUCTS", "")),
			RolloverTime: getEnv("STRATEGY_ROLLOVER_TIME", "14:50"),
			RiskThresholds: risk.Thresholds{
				PositionDeltaLimit:  getEnvFloat("RISK_POSITION_DELTA_LIMIT", 0),
				PositionGammaLimit:  getEnvFloat("RISK_POSITION_GAMMA_LIMIT", 0),
				PositionVegaLimit:   getEnvFloat("RISK_POSITION_VEGA_LIMIT", 0),
				PortfolioDeltaLimit: getEnvFloat("RISK_PORTFOLIO_DELTA_LIMIT", 0),
				PortfolioGammaLimit: getEnvFloat("RISK_PORTFOLIO_GAMMA_LIMIT", 0),
				PortfolioVegaLimit:  getEnvFloat("RISK_PORTFOLIO_VEGA_LIMIT", 0),
			},
			HedgeInstrumentVtSymbol: getEnv("STRATEGY_HEDGE_INSTRUMENT", ""),
			UseScheduler:            getEnv("STRATEGY_USE_SCHEDULER", "false") == "true",
			SchedulerBatchSize:      getEnvInt("STRATEGY_SCHEDULER_BATCH_SIZE", 0),
			LiquidityMinVolume:      getEnvFloat("STRATEGY_LIQUIDITY_MIN_VOLUME", 0),
			LiquidityMinBidVolume:   getEnvFloat("STRATEGY_LIQUIDITY_MIN_BID_VOLUME", 0),
			LiquidityMaxSpreadTicks: getEnvFloat("STRATEGY_LIQUIDITY_MAX_SPREAD_TICKS", 0),
			AutoSaveInterval:        time.Duration(getEnvFloat("STRATEGY_AUTOSAVE_INTERVAL_SECONDS", 60.0) * float64(time.Second)),

			CountManualOpensTowardDailyCap: getEnv("STRATEGY_COUNT_MANUAL_OPENS_TOWARD_DAILY_CAP", "false") == "true",
		},

		Broker: BrokerCredentials{
			BrokerID:  os.Getenv("BROKER_ID"),
			UserID:    os.Getenv("BROKER_USER_ID"),
			Password:  os.Getenv("BROKER_PASSWORD"),
			AppID:     os.Getenv("BROKER_APP_ID"),
			AuthCode:  os.Getenv("BROKER_AUTH_CODE"),
			MDAddress: os.Getenv("BROKER_MD_ADDRESS"),
			TDAddress: os.Getenv("BROKER_TD_ADDRESS"),
		},

		HTTPPort:      getEnv("PORT", "8080"),
		JWTSecret:     getEnv("JWT_SECRET", "dev-secret"),
		LicenseSecret: getEnv("LICENSE_SECRET", "dev-license-secret"),

		VaultPassphrase: getEnv("VAULT_PASSPHRASE", "dev-vault-passphrase"),

		MonitorEventBatchSize:     getEnvInt("MONITOR_EVENT_BATCH_SIZE", 25),
		MonitorEventFlushInterval: time.Duration(getEnvFloat("MONITOR_EVENT_FLUSH_INTERVAL_SECONDS", 0.25) * float64(time.Second)),

		EnablePythonWorker: getEnv("ENABLE_PYTHON_WORKER", "false") == "true",
		PythonWorkerAddr:   getEnv("PYTHON_WORKER_ADDR", "localhost:50051"),
	}, nil
}

// parseTradingPeriods parses a "HH:MM-HH:MM,HH:MM-HH:MM" list. An empty
// string yields no configured periods, which callers treat as "trade all
// day" per the original watchdog's _is_trading_period default.
func parseTradingPeriods(val string) []TradingPeriod {
	if val == "" {
		return nil
	}
	var periods []TradingPeriod
	for _, raw := range strings.Split(val, ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		parts := strings.SplitN(raw, "-", 2)
		if len(parts) != 2 {
			continue
		}
		periods = append(periods, TradingPeriod{
			Start: strings.TrimSpace(parts[0]),
			End:   strings.TrimSpace(parts[1]),
		})
	}
	return periods
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitAndTrim(val string) []string {
	if val == "" {
		return nil
	}
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}
