// config/config.go
package config

import (
	"fmt"
	"os"
	"time"

	"nuanced_trader_go/signal"

	"gopkg.in/yaml.v2"
)

// GeneralConfig holds non-strategy runtime settings.
type GeneralConfig struct {
	DryRun        bool   `yaml:"dry_run"`
	LogDirectory  string `yaml:"log_directory"`
	DataDirectory string `yaml:"data_directory"`
	MaxCandles    int    `yaml:"max_candles"`
}

// LogConfig holds the configuration for logging.
type LogConfig struct {
	LogLevel   string `yaml:"log_level"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// ExchangeConfig describes the exchange connection and the traded universe.
type ExchangeConfig struct {
	Name          string   `yaml:"name"`
	PaperTrading  bool     `yaml:"paper_trading"`
	APIKeyEnv     string   `yaml:"api_key_env"`
	APISecretEnv  string   `yaml:"api_secret_env"`
	BaseURLEnv    string   `yaml:"base_url_env"`
	StreamURL     string   `yaml:"stream_url"`
	TradingPairs  []string `yaml:"trading_pairs"`
	Timeframe     string   `yaml:"timeframe"`
	QuoteCurrency string   `yaml:"quote_currency"`
}

// StrategyConfig selects the strategy and carries its numeric parameters.
type StrategyConfig struct {
	Name       string             `yaml:"name"`
	Parameters map[string]float64 `yaml:"parameters"`
}

// StopLossConfig controls automatic stop-loss attachment.
type StopLossConfig struct {
	Enabled       bool    `yaml:"enabled"`
	Type          string  `yaml:"type"` // fixed, atr, trailing
	Percentage    float64 `yaml:"percentage"`
	ATRMultiplier float64 `yaml:"atr_multiplier"`
}

// TakeProfitConfig controls automatic take-profit attachment.
type TakeProfitConfig struct {
	Enabled       bool      `yaml:"enabled"`
	Type          string    `yaml:"type"` // fixed, scaled, adaptive
	Percentage    float64   `yaml:"percentage"`
	ScaledLevels  []float64 `yaml:"scaled_levels"`
	ScaledAmounts []float64 `yaml:"scaled_amounts"`
}

// PositionSizingConfig selects the sizing method.
type PositionSizingConfig struct {
	Method string `yaml:"method"` // fixed, risk_based, kelly
}

// RiskConfig holds all risk-management policy knobs.
type RiskConfig struct {
	MaxRiskPerTrade      float64               `yaml:"max_risk_per_trade"`
	MaxPositionValue     float64               `yaml:"max_position_value"`
	MaxOpenTrades        int                   `yaml:"max_open_trades"`
	MaxPortfolioExposure float64               `yaml:"max_portfolio_exposure"`
	MaxPairExposure      float64               `yaml:"max_pair_exposure"`
	StopLoss             *StopLossConfig       `yaml:"stop_loss"`
	TakeProfit           *TakeProfitConfig     `yaml:"take_profit"`
	PositionSizing       *PositionSizingConfig `yaml:"position_sizing"`
}

// TelegramConfig configures the Telegram notification channel.
type TelegramConfig struct {
	Enabled     bool   `yaml:"enabled"`
	BotTokenEnv string `yaml:"bot_token_env"`
	ChatID      string `yaml:"chat_id"`
}

// EmailConfig configures the SMTP notification channel.
type EmailConfig struct {
	Enabled       bool   `yaml:"enabled"`
	SMTPServer    string `yaml:"smtp_server"`
	SMTPPort      int    `yaml:"smtp_port"`
	SenderEmail   string `yaml:"sender_email"`
	ReceiverEmail string `yaml:"receiver_email"`
	PasswordEnv   string `yaml:"password_env"`
}

// NotificationsConfig holds all notification channels.
type NotificationsConfig struct {
	Enabled  bool            `yaml:"enabled"`
	Telegram *TelegramConfig `yaml:"telegram"`
	Email    *EmailConfig    `yaml:"email"`
}

// MonitorConfig configures the HTTP status endpoint.
type MonitorConfig struct {
	Enabled       bool   `yaml:"enabled"`
	ListenAddress string `yaml:"listen_address"`
}

// Config is the top-level configuration structure.
type Config struct {
	General       *GeneralConfig       `yaml:"general"`
	Exchange      *ExchangeConfig      `yaml:"exchange"`
	Strategy      *StrategyConfig      `yaml:"strategy"`
	Risk          *RiskConfig          `yaml:"risk_management"`
	Notifications *NotificationsConfig `yaml:"notifications"`
	Monitor       *MonitorConfig       `yaml:"monitor"`
	Logs          *LogConfig           `yaml:"logs"`
}

// NewConfig creates a Config with the documented policy defaults.
// Critical connection settings still MUST be provided in the YAML file.
func NewConfig() *Config {
	return &Config{
		General: &GeneralConfig{
			DryRun:        true,
			LogDirectory:  "logs",
			DataDirectory: "data",
			MaxCandles:    1000,
		},
		Exchange: &ExchangeConfig{
			QuoteCurrency: "USDT",
		},
		Strategy: &StrategyConfig{
			Name:       "adaptive_momentum",
			Parameters: map[string]float64{},
		},
		Risk: &RiskConfig{
			MaxRiskPerTrade:      0.02,
			MaxPositionValue:     0.2,
			MaxOpenTrades:        5,
			MaxPortfolioExposure: 0.5,
			MaxPairExposure:      0.2,
			StopLoss: &StopLossConfig{
				Enabled:       true,
				Type:          "fixed",
				Percentage:    0.05,
				ATRMultiplier: 2,
			},
			TakeProfit: &TakeProfitConfig{
				Enabled:       true,
				Type:          "fixed",
				Percentage:    0.1,
				ScaledLevels:  []float64{0.05, 0.1, 0.2},
				ScaledAmounts: []float64{0.5, 0.3, 0.2},
			},
			PositionSizing: &PositionSizingConfig{Method: "risk_based"},
		},
		Notifications: &NotificationsConfig{},
		Monitor:       &MonitorConfig{},
		Logs:          &LogConfig{},
	}
}

// LoadConfig loads configuration from a given path, applies defaults,
// and validates it.
func LoadConfig(path string) (*Config, error) {
	cfg := NewConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("Error: Config file not found at %s. Program cannot run without a config file", path)
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal yaml: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

var validTimeframes = map[string]time.Duration{
	"1m":  time.Minute,
	"5m":  5 * time.Minute,
	"15m": 15 * time.Minute,
	"1h":  time.Hour,
	"4h":  4 * time.Hour,
	"1d":  24 * time.Hour,
}

// TimeframeDuration maps a timeframe token to its cycle interval.
func TimeframeDuration(timeframe string) (time.Duration, bool) {
	d, ok := validTimeframes[timeframe]
	return d, ok
}

// Validate checks the logical consistency and completeness of the
// entire configuration.
func (c *Config) Validate() error {
	if c.Exchange == nil {
		return fmt.Errorf("Critical config missing: 'exchange' configuration block must be provided")
	}
	if c.Exchange.Name == "" {
		return fmt.Errorf("Critical config missing: 'exchange.name' must be explicitly specified")
	}
	if len(c.Exchange.TradingPairs) == 0 {
		return fmt.Errorf("Critical config missing: 'exchange.trading_pairs' must list at least one pair")
	}
	if _, ok := TimeframeDuration(c.Exchange.Timeframe); !ok {
		return fmt.Errorf("Config error: unsupported timeframe '%s' (expected 1m, 5m, 15m, 1h, 4h, or 1d)", c.Exchange.Timeframe)
	}
	if !c.Exchange.PaperTrading && !c.General.DryRun {
		if c.Exchange.APIKeyEnv == "" || c.Exchange.APISecretEnv == "" {
			return fmt.Errorf("Critical config missing: live trading requires 'exchange.api_key_env' and 'exchange.api_secret_env'")
		}
	}
	if c.Exchange.QuoteCurrency == "" {
		return fmt.Errorf("Critical config missing: 'exchange.quote_currency' must be explicitly specified (e.g., 'USDT')")
	}

	if c.Strategy == nil || c.Strategy.Name == "" {
		return fmt.Errorf("Critical config missing: 'strategy.name' must be explicitly specified")
	}

	if c.Risk == nil {
		return fmt.Errorf("Critical config missing: 'risk_management' configuration block must be provided")
	}
	if c.Risk.MaxRiskPerTrade <= 0 || c.Risk.MaxRiskPerTrade >= 1 {
		return fmt.Errorf("Config error: 'risk_management.max_risk_per_trade' must be a fraction in (0, 1)")
	}
	if c.Risk.MaxPositionValue <= 0 || c.Risk.MaxPositionValue > 1 {
		return fmt.Errorf("Config error: 'risk_management.max_position_value' must be a fraction in (0, 1]")
	}
	if c.Risk.MaxOpenTrades <= 0 {
		return fmt.Errorf("Config error: 'risk_management.max_open_trades' must be positive")
	}
	if c.Risk.MaxPortfolioExposure <= 0 || c.Risk.MaxPortfolioExposure > 1 {
		return fmt.Errorf("Config error: 'risk_management.max_portfolio_exposure' must be a fraction in (0, 1]")
	}
	if c.Risk.MaxPairExposure <= 0 || c.Risk.MaxPairExposure > 1 {
		return fmt.Errorf("Config error: 'risk_management.max_pair_exposure' must be a fraction in (0, 1]")
	}

	switch c.Risk.PositionSizing.Method {
	case "fixed", "risk_based", "kelly":
	default:
		return fmt.Errorf("Config error: 'position_sizing.method' must be one of fixed, risk_based, kelly (got %q)", c.Risk.PositionSizing.Method)
	}
	switch c.Risk.StopLoss.Type {
	case "fixed", "atr", "trailing":
	default:
		return fmt.Errorf("Config error: 'stop_loss.type' must be one of fixed, atr, trailing (got %q)", c.Risk.StopLoss.Type)
	}
	if c.Risk.StopLoss.Enabled && c.Risk.StopLoss.Percentage <= 0 {
		return fmt.Errorf("Config error: 'stop_loss.percentage' must be positive when stop loss is enabled")
	}
	switch c.Risk.TakeProfit.Type {
	case "fixed", "scaled", "adaptive":
	default:
		return fmt.Errorf("Config error: 'take_profit.type' must be one of fixed, scaled, adaptive (got %q)", c.Risk.TakeProfit.Type)
	}
	if c.Risk.TakeProfit.Type == "scaled" {
		if len(c.Risk.TakeProfit.ScaledLevels) == 0 {
			return fmt.Errorf("Critical config missing: 'take_profit.scaled_levels' must be provided for scaled take profit")
		}
		if len(c.Risk.TakeProfit.ScaledAmounts) != len(c.Risk.TakeProfit.ScaledLevels) {
			return fmt.Errorf("Config error: 'take_profit.scaled_amounts' item count (%d) must equal scaled_levels count (%d)",
				len(c.Risk.TakeProfit.ScaledAmounts), len(c.Risk.TakeProfit.ScaledLevels))
		}
		if err := signal.ValidateScaledAmounts(c.Risk.TakeProfit.ScaledAmounts); err != nil {
			return fmt.Errorf("Config error: 'take_profit.scaled_amounts': %v", err)
		}
	}

	if c.Monitor != nil && c.Monitor.Enabled && c.Monitor.ListenAddress == "" {
		return fmt.Errorf("Critical config missing: 'monitor.listen_address' must be specified when the monitor is enabled")
	}

	if c.Logs == nil {
		return fmt.Errorf("Critical config missing: 'logs' configuration block must be provided")
	}
	if c.Logs.LogLevel == "" {
		return fmt.Errorf("Critical config missing: 'logs.log_level' must be explicitly specified (e.g., 'info', 'debug', 'warn', 'error')")
	}
	if c.Logs.MaxSizeMB <= 0 {
		return fmt.Errorf("Critical config missing: 'logs.max_size_mb' must be explicitly specified and be positive")
	}
	if c.Logs.MaxBackups <= 0 {
		return fmt.Errorf("Critical config missing: 'logs.max_backups' must be explicitly specified and be positive")
	}
	if c.Logs.MaxAgeDays <= 0 {
		return fmt.Errorf("Critical config missing: 'logs.max_age_days' must be explicitly specified and be positive")
	}

	return nil
}

// EnvConfig carries secrets resolved from the environment.
type EnvConfig struct {
	APIKey           string
	APISecret        string
	BaseURL          string
	TelegramBotToken string
	EmailPassword    string
}

// LoadEnvConfig resolves secret values using the env variable names
// declared in the config file.
func LoadEnvConfig(cfg *Config) *EnvConfig {
	env := &EnvConfig{}
	if cfg.Exchange != nil {
		env.APIKey = os.Getenv(cfg.Exchange.APIKeyEnv)
		env.APISecret = os.Getenv(cfg.Exchange.APISecretEnv)
		env.BaseURL = os.Getenv(cfg.Exchange.BaseURLEnv)
	}
	if cfg.Notifications != nil {
		if cfg.Notifications.Telegram != nil {
			env.TelegramBotToken = os.Getenv(cfg.Notifications.Telegram.BotTokenEnv)
		}
		if cfg.Notifications.Email != nil {
			env.EmailPassword = os.Getenv(cfg.Notifications.Email.PasswordEnv)
		}
	}
	return env
}
