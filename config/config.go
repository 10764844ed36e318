package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	// Trading mode
	PaperTrading      bool    // true: in-memory simulated broker
	PaperStartingCash float64 // initial cash for the paper account

	// Broker bridge
	BridgeURL      string // websocket URL of the local broker bridge
	AccountID      string
	AccountPass    string
	CertPass       string
	RequestTimeout time.Duration

	// Watch list
	WatchCodes []string // stock codes evaluated on every tick

	// Risk Parameters
	PositionSizePct   float64 // fraction of equity per entry (e.g., 0.10)
	StopLossPct       float64 // e.g., 0.02 for 2%
	TakeProfitPct     float64 // e.g., 0.05 for 5%
	DailyLossLimitPct float64 // halt entries when daily net loss exceeds this
	MaxOpenPositions  int

	// Fee model
	BuyFeeRate  float64
	SellFeeRate float64
	SellTaxRate float64

	// Strategy Parameters
	StrategyShortMAPeriod int     // e.g., 5
	StrategyLongMAPeriod  int     // e.g., 20
	StrategyRSIPeriod     int     // e.g., 14
	StrategyRSIOverbought float64 // e.g., 70.0
	StrategyRSIOversold   float64 // e.g., 30.0
	StrategyMACDFast      int     // e.g., 12
	StrategyMACDSlow      int     // e.g., 26
	StrategyMACDSignal    int     // e.g., 9
	NewsScoreThreshold    int     // |score| at or above this counts as strong news

	// Surge Detector
	SurgePollInterval   time.Duration
	SurgeTopN           int
	SurgeMinChangePct   float64 // e.g., 3.0 for +3%
	SurgeMinVolumeRatio float64 // e.g., 5.0 for 500% of average
	SurgeCooldown       time.Duration
	SurgeAutoApprove    bool

	// Order Throttle
	DailyCallBudget int
	QuoteBatchSize  int

	// Execution
	OrderTimeout           time.Duration
	MaxConsecutiveFailures int
	TickSnapshotInterval   time.Duration
	TickRetentionDays      int

	// Health
	HealthCheckInterval  time.Duration
	ReconnectDelay       time.Duration
	MaxReconnectAttempts int

	// Database
	DBPath string

	// Messaging
	NATSURL           string // empty disables the NATS notifier
	NATSSubjectPrefix string

	// Logging
	LogLevel      string
	LogFilePath   string // empty: stderr only
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int
	LogConsole    bool
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var err error
	var errs []string // Collect validation errors

	// Trading mode
	cfg.PaperTrading = getEnvAsBool("PAPER_TRADING", true) // Default to paper for safety
	cfg.PaperStartingCash, err = getEnvAsFloatRequired("PAPER_STARTING_CASH", 10_000_000)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid PAPER_STARTING_CASH: %v", err))
	} else if cfg.PaperTrading && cfg.PaperStartingCash <= 0 {
		errs = append(errs, "PAPER_STARTING_CASH must be positive")
	}

	// Broker bridge (only required outside paper mode)
	cfg.BridgeURL = getEnv("BRIDGE_URL", "ws://127.0.0.1:9443/bridge")
	cfg.AccountID = getEnv("ACCOUNT_ID", "")
	cfg.AccountPass = getEnv("ACCOUNT_PASS", "")
	cfg.CertPass = getEnv("CERT_PASS", "")
	if !cfg.PaperTrading {
		if cfg.BridgeURL == "" {
			errs = append(errs, "BRIDGE_URL must be set for live trading")
		}
		if cfg.AccountID == "" {
			errs = append(errs, "ACCOUNT_ID must be set for live trading")
		}
	}
	cfg.RequestTimeout = getEnvAsDuration("BRIDGE_REQUEST_TIMEOUT_SECONDS", 10)

	// Watch list
	cfg.WatchCodes = splitCodes(getEnv("WATCH_CODES", ""))
	if len(cfg.WatchCodes) == 0 {
		errs = append(errs, "WATCH_CODES must list at least one stock code (comma separated)")
	}

	// Risk Parameters
	cfg.PositionSizePct, err = getEnvAsFloatRequired("POSITION_SIZE_PCT", 0.10)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid POSITION_SIZE_PCT: %v", err))
	} else if cfg.PositionSizePct <= 0 || cfg.PositionSizePct >= 1.0 {
		errs = append(errs, "POSITION_SIZE_PCT must be between 0.0 and 1.0 (exclusive)")
	}

	cfg.StopLossPct, err = getEnvAsFloatRequired("STOP_LOSS_PCT", 0.02)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid STOP_LOSS_PCT: %v", err))
	} else if cfg.StopLossPct <= 0 || cfg.StopLossPct >= 1.0 {
		errs = append(errs, "STOP_LOSS_PCT must be between 0.0 and 1.0 (exclusive)")
	}

	cfg.TakeProfitPct, err = getEnvAsFloatRequired("TAKE_PROFIT_PCT", 0.05)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid TAKE_PROFIT_PCT: %v", err))
	} else if cfg.TakeProfitPct <= 0 || cfg.TakeProfitPct >= 1.0 {
		errs = append(errs, "TAKE_PROFIT_PCT must be between 0.0 and 1.0 (exclusive)")
	}

	cfg.DailyLossLimitPct, err = getEnvAsFloatRequired("DAILY_LOSS_LIMIT_PCT", 0.03)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid DAILY_LOSS_LIMIT_PCT: %v", err))
	} else if cfg.DailyLossLimitPct <= 0 || cfg.DailyLossLimitPct >= 1.0 {
		errs = append(errs, "DAILY_LOSS_LIMIT_PCT must be between 0.0 and 1.0 (exclusive)")
	}

	cfg.MaxOpenPositions, err = getEnvAsIntRequired("MAX_OPEN_POSITIONS", 5)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid MAX_OPEN_POSITIONS: %v", err))
	} else if cfg.MaxOpenPositions <= 0 {
		errs = append(errs, "MAX_OPEN_POSITIONS must be positive")
	}

	// Fee model
	cfg.BuyFeeRate = getEnvAsFloat("BUY_FEE_RATE", 0.00015)
	cfg.SellFeeRate = getEnvAsFloat("SELL_FEE_RATE", 0.00015)
	cfg.SellTaxRate = getEnvAsFloat("SELL_TAX_RATE", 0.0018)
	if cfg.BuyFeeRate < 0 || cfg.SellFeeRate < 0 || cfg.SellTaxRate < 0 {
		errs = append(errs, "fee and tax rates cannot be negative")
	}

	// Strategy Parameters (using defaults if not set)
	cfg.StrategyShortMAPeriod = getEnvAsInt("STRATEGY_SHORT_MA_PERIOD", 5)
	cfg.StrategyLongMAPeriod = getEnvAsInt("STRATEGY_LONG_MA_PERIOD", 20)
	cfg.StrategyRSIPeriod = getEnvAsInt("STRATEGY_RSI_PERIOD", 14)
	cfg.StrategyRSIOverbought = getEnvAsFloat("STRATEGY_RSI_OVERBOUGHT", 70.0)
	cfg.StrategyRSIOversold = getEnvAsFloat("STRATEGY_RSI_OVERSOLD", 30.0)
	cfg.StrategyMACDFast = getEnvAsInt("STRATEGY_MACD_FAST", 12)
	cfg.StrategyMACDSlow = getEnvAsInt("STRATEGY_MACD_SLOW", 26)
	cfg.StrategyMACDSignal = getEnvAsInt("STRATEGY_MACD_SIGNAL", 9)
	cfg.NewsScoreThreshold = getEnvAsInt("NEWS_SCORE_THRESHOLD", 30)

	if cfg.StrategyShortMAPeriod <= 0 || cfg.StrategyLongMAPeriod <= 0 || cfg.StrategyRSIPeriod <= 0 {
		errs = append(errs, "strategy periods (MA, RSI) must be positive")
	}
	if cfg.StrategyShortMAPeriod >= cfg.StrategyLongMAPeriod {
		errs = append(errs, "STRATEGY_SHORT_MA_PERIOD must be less than STRATEGY_LONG_MA_PERIOD")
	}
	if cfg.StrategyMACDFast <= 0 || cfg.StrategyMACDSlow <= 0 || cfg.StrategyMACDSignal <= 0 {
		errs = append(errs, "MACD periods must be positive")
	}
	if cfg.StrategyMACDFast >= cfg.StrategyMACDSlow {
		errs = append(errs, "STRATEGY_MACD_FAST must be less than STRATEGY_MACD_SLOW")
	}
	if cfg.StrategyRSIOverbought <= cfg.StrategyRSIOversold || cfg.StrategyRSIOverbought > 100 || cfg.StrategyRSIOversold < 0 {
		errs = append(errs, "invalid RSI thresholds (Overbought must be > Oversold, between 0-100)")
	}
	if cfg.NewsScoreThreshold < 0 || cfg.NewsScoreThreshold > 100 {
		errs = append(errs, "NEWS_SCORE_THRESHOLD must be between 0 and 100")
	}

	// Surge Detector
	cfg.SurgePollInterval = getEnvAsDuration("SURGE_POLL_INTERVAL_SECONDS", 5)
	cfg.SurgeTopN = getEnvAsInt("SURGE_TOP_N", 30)
	cfg.SurgeMinChangePct = getEnvAsFloat("SURGE_MIN_CHANGE_PCT", 3.0)
	cfg.SurgeMinVolumeRatio = getEnvAsFloat("SURGE_MIN_VOLUME_RATIO", 5.0)
	cfg.SurgeCooldown = getEnvAsDuration("SURGE_COOLDOWN_SECONDS", 600)
	cfg.SurgeAutoApprove = getEnvAsBool("SURGE_AUTO_APPROVE", false)
	if cfg.SurgeTopN <= 0 {
		errs = append(errs, "SURGE_TOP_N must be positive")
	}
	if cfg.SurgeMinChangePct <= 0 || cfg.SurgeMinVolumeRatio <= 0 {
		errs = append(errs, "surge thresholds must be positive")
	}

	// Order Throttle
	cfg.DailyCallBudget = getEnvAsInt("DAILY_CALL_BUDGET", 500)
	cfg.QuoteBatchSize = getEnvAsInt("QUOTE_BATCH_SIZE", 50)
	if cfg.DailyCallBudget <= 0 {
		errs = append(errs, "DAILY_CALL_BUDGET must be positive")
	}
	if cfg.QuoteBatchSize <= 0 {
		errs = append(errs, "QUOTE_BATCH_SIZE must be positive")
	}

	// Execution
	cfg.OrderTimeout = getEnvAsDuration("ORDER_TIMEOUT_SECONDS", 30)
	cfg.MaxConsecutiveFailures = getEnvAsInt("MAX_CONSECUTIVE_FAILURES", 5)
	cfg.TickSnapshotInterval = getEnvAsDuration("TICK_SNAPSHOT_INTERVAL_SECONDS", 60)
	cfg.TickRetentionDays = getEnvAsInt("TICK_RETENTION_DAYS", 7)
	if cfg.MaxConsecutiveFailures <= 0 {
		errs = append(errs, "MAX_CONSECUTIVE_FAILURES must be positive")
	}
	if cfg.TickRetentionDays <= 0 {
		errs = append(errs, "TICK_RETENTION_DAYS must be positive")
	}

	// Health
	cfg.HealthCheckInterval = getEnvAsDuration("HEALTH_CHECK_INTERVAL_SECONDS", 30)
	cfg.ReconnectDelay = getEnvAsDuration("RECONNECT_DELAY_SECONDS", 5)
	cfg.MaxReconnectAttempts = getEnvAsInt("MAX_RECONNECT_ATTEMPTS", 3)
	if cfg.MaxReconnectAttempts < 0 {
		errs = append(errs, "MAX_RECONNECT_ATTEMPTS cannot be negative")
	}

	// Database
	cfg.DBPath = getEnv("DB_PATH", "./data/stockbot.db")
	if cfg.DBPath == "" {
		errs = append(errs, "DB_PATH must be set")
	}

	// Messaging
	cfg.NATSURL = getEnv("NATS_URL", "")
	cfg.NATSSubjectPrefix = getEnv("NATS_SUBJECT_PREFIX", "stockbot.events")

	// Logging
	cfg.LogLevel = getEnv("LOG_LEVEL", "info")
	cfg.LogFilePath = getEnv("LOG_FILE_PATH", "")
	cfg.LogMaxSizeMB = getEnvAsInt("LOG_MAX_SIZE_MB", 50)
	cfg.LogMaxBackups = getEnvAsInt("LOG_MAX_BACKUPS", 5)
	cfg.LogMaxAgeDays = getEnvAsInt("LOG_MAX_AGE_DAYS", 14)
	cfg.LogConsole = getEnvAsBool("LOG_CONSOLE", true)

	// Combine validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return cfg, nil
}

// splitCodes parses a comma separated code list, trimming whitespace and
// dropping empty entries.
func splitCodes(raw string) []string {
	parts := strings.Split(raw, ",")
	codes := make([]string, 0, len(parts))
	for _, p := range parts {
		if code := strings.TrimSpace(p); code != "" {
			codes = append(codes, code)
		}
	}
	return codes
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsIntRequired(key string, defaultValue int) (int, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return 0, fmt.Errorf("invalid integer value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloatRequired(key string, defaultValue float64) (float64, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid float value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultSeconds int) time.Duration {
	return time.Duration(getEnvAsInt(key, defaultSeconds)) * time.Second
}
