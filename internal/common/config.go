package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string           `toml:"environment"` // "development" or "production"
	Timezone    string           `toml:"timezone" validate:"required"`
	Scheduler   SchedulerConfig  `toml:"scheduler"`
	Pipeline    PipelineConfig   `toml:"pipeline"`
	Sell        SellConfig       `toml:"sell"`
	Signals     SignalsConfig    `toml:"signals"`
	Strategies  StrategiesConfig `toml:"strategies"`
	Clients     ClientsConfig    `toml:"clients"`
	Gemini      GeminiConfig     `toml:"gemini"`
	Claude      ClaudeConfig     `toml:"claude"`
	Storage     StorageConfig    `toml:"storage"`
	Logging     LoggingConfig    `toml:"logging"`
}

// SchedulerConfig holds the weekday job times, interpreted in Config.Timezone.
type SchedulerConfig struct {
	CollectTimes []string `toml:"collect_times"` // "HH:MM", zero or more per day
	ExecuteTime  string   `toml:"execute_time" validate:"required"`
	EODTime      string   `toml:"eod_time" validate:"required"`
}

// PipelineConfig bounds the LLM pipeline.
type PipelineConfig struct {
	TimeoutSeconds int `toml:"timeout_seconds" validate:"gt=0"`
	MaxToolRounds  int `toml:"max_tool_rounds" validate:"gt=0"`
}

// SellConfig holds the sell-strategy thresholds.
type SellConfig struct {
	StopLossPct   float64 `toml:"stop_loss_pct" validate:"gt=0"`
	TakeProfitPct float64 `toml:"take_profit_pct" validate:"gt=0"`
	MaxHoldDays   int     `toml:"max_hold_days" validate:"gt=0"`
}

// SignalsConfig controls signal ingestion and the digest builder.
type SignalsConfig struct {
	InsiderLookbackDays       int     `toml:"insider_lookback_days" validate:"gt=0"`
	InsiderTopN               int     `toml:"insider_top_n" validate:"gt=0"`
	PoliticiansEnabled        bool    `toml:"politicians_enabled"`
	PoliticianTopN            int     `toml:"politician_top_n"`
	PoliticianReservedSlots   int     `toml:"politician_reserved_slots"`
	ResearchTopN              int     `toml:"research_top_n" validate:"gt=0"`
	MaxPicksPerRun            int     `toml:"max_picks_per_run" validate:"gt=0"`
	MinInsiderTickers         int     `toml:"min_insider_tickers"`
	CapitolTradesMaxMarketCap float64 `toml:"capitol_trades_max_market_cap"`
	RecentlyTradedDays        int     `toml:"recently_traded_days" validate:"gt=0"`
	NewsConcurrency           int     `toml:"news_concurrency"`
	NewsCooldown              string  `toml:"news_cooldown"` // circuit breaker cooldown, duration string
	MarketDataTickerLimit     int     `toml:"market_data_ticker_limit"`
}

// GetNewsCooldown parses the circuit breaker cooldown, minimum one hour.
func (c *SignalsConfig) GetNewsCooldown() time.Duration {
	d, err := time.ParseDuration(c.NewsCooldown)
	if err != nil || d < time.Hour {
		return time.Hour
	}
	return d
}

// StrategiesConfig holds the two pipeline strategies.
type StrategiesConfig struct {
	Conservative StrategyConfig `toml:"conservative"`
	Aggressive   StrategyConfig `toml:"aggressive"`
}

// StrategyConfig ties a model tier, budget and account to a strategy tag.
type StrategyConfig struct {
	Model     string  `toml:"model"`
	BudgetEUR float64 `toml:"budget_eur" validate:"gte=0"`
	Real      bool    `toml:"real"` // false = practice account
}

// ClientsConfig holds API client configurations
type ClientsConfig struct {
	StockData     StockDataConfig     `toml:"stockdata"`
	OpenInsider   OpenInsiderConfig   `toml:"openinsider"`
	CapitolTrades CapitolTradesConfig `toml:"capitoltrades"`
	News          NewsConfig          `toml:"news"`
	Broker        BrokerConfig        `toml:"broker"`
	Telegram      TelegramConfig      `toml:"telegram"`
}

// StockDataConfig holds the financial data provider configuration.
type StockDataConfig struct {
	BaseURL   string `toml:"base_url"`
	APIKey    string `toml:"api_key"`
	RateLimit int    `toml:"rate_limit"`
	Timeout   string `toml:"timeout"`
}

// GetTimeout parses and returns the timeout duration
func (c *StockDataConfig) GetTimeout() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 20 * time.Second
	}
	return d
}

// OpenInsiderConfig holds the insider-buys scraper configuration.
type OpenInsiderConfig struct {
	BaseURL string `toml:"base_url"`
	Timeout string `toml:"timeout"`
}

// GetTimeout parses and returns the timeout duration
func (c *OpenInsiderConfig) GetTimeout() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// CapitolTradesConfig holds the politician-trades API configuration.
type CapitolTradesConfig struct {
	BaseURL string `toml:"base_url"`
	Timeout string `toml:"timeout"`
}

// GetTimeout parses and returns the timeout duration
func (c *CapitolTradesConfig) GetTimeout() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// NewsConfig holds the rate-limited primary news provider configuration.
type NewsConfig struct {
	BaseURL   string `toml:"base_url"`
	APIKey    string `toml:"api_key"`
	RateLimit int    `toml:"rate_limit"`
	Timeout   string `toml:"timeout"`
}

// GetTimeout parses and returns the timeout duration
func (c *NewsConfig) GetTimeout() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 20 * time.Second
	}
	return d
}

// BrokerConfig holds broker API configuration. The real/practice base URL is
// selected per run by the strategy's account flag.
type BrokerConfig struct {
	BaseURL         string `toml:"base_url"`
	PracticeBaseURL string `toml:"practice_base_url"`
	APIKey          string `toml:"api_key" validate:"required"`
	Timeout         string `toml:"timeout"`
}

// GetTimeout parses and returns the timeout duration
func (c *BrokerConfig) GetTimeout() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// TelegramConfig holds notifier configuration.
type TelegramConfig struct {
	Enabled  bool   `toml:"enabled"`
	BotToken string `toml:"bot_token"`
	ChatID   string `toml:"chat_id"`
}

// GeminiConfig contains Google Gemini API configuration (primary LLM).
type GeminiConfig struct {
	APIKey      string  `toml:"api_key" validate:"required"`
	Model       string  `toml:"model"`
	Temperature float32 `toml:"temperature"`
}

// ClaudeConfig contains Anthropic Claude API configuration (alternate LLM).
type ClaudeConfig struct {
	APIKey      string  `toml:"api_key"`
	Model       string  `toml:"model"`
	MaxTokens   int     `toml:"max_tokens"`
	Temperature float32 `toml:"temperature"`
}

// StorageConfig holds persistence configuration.
type StorageConfig struct {
	Badger    BadgerConfig `toml:"badger"`
	Blacklist string       `toml:"blacklist"` // path of the blacklist JSON document
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`
	ResetOnStartup bool   `toml:"reset_on_startup"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string   `toml:"level"`  // "debug", "info", "warn", "error"
	Format string   `toml:"format"` // "json" or "text"
	Output []string `toml:"output"` // "stdout", "file"
}

// NewDefaultConfig returns a Config with sensible defaults
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Timezone:    "Europe/Amsterdam",
		Scheduler: SchedulerConfig{
			CollectTimes: []string{"10:00", "13:00"},
			ExecuteTime:  "15:30",
			EODTime:      "22:15",
		},
		Pipeline: PipelineConfig{
			TimeoutSeconds: 900,
			MaxToolRounds:  8,
		},
		Sell: SellConfig{
			StopLossPct:   10,
			TakeProfitPct: 20,
			MaxHoldDays:   30,
		},
		Signals: SignalsConfig{
			InsiderLookbackDays:       7,
			InsiderTopN:               15,
			PoliticiansEnabled:        true,
			PoliticianTopN:            10,
			PoliticianReservedSlots:   3,
			ResearchTopN:              10,
			MaxPicksPerRun:            5,
			MinInsiderTickers:         1,
			CapitolTradesMaxMarketCap: 1e12,
			RecentlyTradedDays:        14,
			NewsConcurrency:           5,
			NewsCooldown:              "1h",
			MarketDataTickerLimit:     12,
		},
		Strategies: StrategiesConfig{
			Conservative: StrategyConfig{Model: "gemini-2.5-pro", BudgetEUR: 100, Real: false},
			Aggressive:   StrategyConfig{Model: "gemini-2.5-flash", BudgetEUR: 50, Real: false},
		},
		Clients: ClientsConfig{
			StockData: StockDataConfig{
				BaseURL:   "https://eodhd.com/api",
				RateLimit: 10,
				Timeout:   "20s",
			},
			OpenInsider: OpenInsiderConfig{
				BaseURL: "http://openinsider.com",
				Timeout: "30s",
			},
			CapitolTrades: CapitolTradesConfig{
				BaseURL: "https://bff.capitoltrades.com",
				Timeout: "30s",
			},
			News: NewsConfig{
				BaseURL:   "https://newsapi.org/v2",
				RateLimit: 1,
				Timeout:   "20s",
			},
			Broker: BrokerConfig{
				BaseURL:         "https://live.trading212.com/api/v0",
				PracticeBaseURL: "https://demo.trading212.com/api/v0",
				Timeout:         "30s",
			},
		},
		Gemini: GeminiConfig{
			Model:       "gemini-2.5-flash",
			Temperature: 0.4,
		},
		Claude: ClaudeConfig{
			Model:       "claude-haiku-3-5-20241022",
			MaxTokens:   8192,
			Temperature: 0.4,
		},
		Storage: StorageConfig{
			Badger:    BadgerConfig{Path: "data/tradewind"},
			Blacklist: "data/blacklist.json",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: []string{"stdout", "file"},
		},
	}
}

// LoadConfig loads configuration from TOML files with environment overrides.
// Later files override earlier ones; missing files are skipped.
func LoadConfig(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for _, path := range paths {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks required fields. Missing broker or primary LLM credentials
// are fatal per the error design.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("TRADEWIND_ENV"); env != "" {
		config.Environment = env
	}
	if tz := os.Getenv("TRADEWIND_TIMEZONE"); tz != "" {
		config.Timezone = tz
	}
	if level := os.Getenv("TRADEWIND_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}

	// Provider-native key names take precedence over config file values
	if v := firstEnv("EODHD_API_KEY", "TRADEWIND_STOCKDATA_API_KEY"); v != "" {
		config.Clients.StockData.APIKey = v
	}
	if v := firstEnv("GEMINI_API_KEY", "GOOGLE_API_KEY"); v != "" {
		config.Gemini.APIKey = v
	}
	if v := firstEnv("ANTHROPIC_API_KEY"); v != "" {
		config.Claude.APIKey = v
	}
	if v := firstEnv("TRADING212_API_KEY", "TRADEWIND_BROKER_API_KEY"); v != "" {
		config.Clients.Broker.APIKey = v
	}
	if v := firstEnv("NEWSAPI_API_KEY"); v != "" {
		config.Clients.News.APIKey = v
	}
	if v := firstEnv("TELEGRAM_BOT_TOKEN"); v != "" {
		config.Clients.Telegram.BotToken = v
		config.Clients.Telegram.Enabled = true
	}
	if v := firstEnv("TELEGRAM_CHAT_ID"); v != "" {
		config.Clients.Telegram.ChatID = v
	}

	if v := os.Getenv("TRADEWIND_DAILY_BUDGET_EUR"); v != "" {
		if b, err := strconv.ParseFloat(v, 64); err == nil {
			config.Strategies.Conservative.BudgetEUR = b
		}
	}
	if v := os.Getenv("TRADEWIND_PRACTICE_DAILY_BUDGET_EUR"); v != "" {
		if b, err := strconv.ParseFloat(v, 64); err == nil {
			config.Strategies.Aggressive.BudgetEUR = b
		}
	}
	if v := os.Getenv("TRADEWIND_EXECUTE_TIME"); v != "" {
		config.Scheduler.ExecuteTime = v
	}
	if v := os.Getenv("TRADEWIND_EOD_TIME"); v != "" {
		config.Scheduler.EODTime = v
	}
	if v := os.Getenv("TRADEWIND_COLLECT_TIMES"); v != "" {
		parts := strings.Split(v, ",")
		times := make([]string, 0, len(parts))
		for _, p := range parts {
			if t := strings.TrimSpace(p); t != "" {
				times = append(times, t)
			}
		}
		config.Scheduler.CollectTimes = times
	}
	if v := os.Getenv("TRADEWIND_DATA_PATH"); v != "" {
		config.Storage.Badger.Path = v + "/tradewind"
		config.Storage.Blacklist = v + "/blacklist.json"
	}
}

func firstEnv(names ...string) string {
	for _, name := range names {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return ""
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}

// Location returns the configured IANA timezone. Validate guarantees it loads.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// StrategyFor returns the configuration for a strategy tag.
func (c *Config) StrategyFor(tag string) StrategyConfig {
	if tag == "aggressive" {
		return c.Strategies.Aggressive
	}
	return c.Strategies.Conservative
}
