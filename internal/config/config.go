package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Log      LoggingConfig  `yaml:"log"`
	HTTP     HTTPConfig     `yaml:"http"`
	Exchange ExchangeConfig `yaml:"exchange"`
	State    StateConfig    `yaml:"state"`
	History  HistoryConfig  `yaml:"history"`
	Strategy StrategyConfig `yaml:"strategy"`
	Symbols  []SymbolConfig `yaml:"symbols"`
	Telegram TelegramConfig `yaml:"telegram"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

type HTTPConfig struct {
	Address string `yaml:"address"`
}

type ExchangeConfig struct {
	BaseURL        string        `yaml:"base_url"`
	TestnetURL     string        `yaml:"testnet_url"`
	WSURL          string        `yaml:"ws_url"`
	TestnetWSURL   string        `yaml:"testnet_ws_url"`
	Timeout        time.Duration `yaml:"timeout"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
	PriceFeed      bool          `yaml:"price_feed"`
	PriceMaxAge    time.Duration `yaml:"price_max_age"`
}

type StateConfig struct {
	Backend    string `yaml:"backend"` // "file" or "sqlite"
	FilePath   string `yaml:"file_path"`
	SQLitePath string `yaml:"sqlite_path"`
	AuditPath  string `yaml:"audit_path"`
}

type HistoryConfig struct {
	PostgresDSN string `yaml:"postgres_dsn"`
	Schema      string `yaml:"schema"`
}

type StrategyConfig struct {
	CycleInterval  time.Duration `yaml:"cycle_interval"`
	ErrorBackoff   time.Duration `yaml:"error_backoff"`
	RSIPeriod      int           `yaml:"rsi_period"`
	CandleInterval string        `yaml:"candle_interval"`
	CandleLimit    int           `yaml:"candle_limit"`
	BudgetUSD      float64       `yaml:"budget_usd"`
	ExitPolicy     string        `yaml:"exit_policy"` // "trailing" or "band"
	TakeProfitPct  float64       `yaml:"take_profit_pct"`
	StopPct        float64       `yaml:"stop_pct"`
	CommissionPct  float64       `yaml:"commission_pct"`
	StopTimeout    time.Duration `yaml:"stop_timeout"`
}

type SymbolConfig struct {
	Symbol     string `yaml:"symbol"`
	Overbought int    `yaml:"overbought"`
	Oversold   int    `yaml:"oversold"`
}

type TelegramConfig struct {
	Enabled bool   `yaml:"enabled"`
	Token   string `yaml:"token"`
	ChatID  string `yaml:"chat_id"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// ErrMissingCredentials is returned when a start request lacks API credentials.
var ErrMissingCredentials = errors.New("api key and secret are required")

// Credentials are supplied per start request, never stored in the config file.
type Credentials struct {
	APIKey    string
	APISecret string
	Testnet   bool
}

func (c Credentials) Validate() error {
	if c.APIKey == "" || c.APISecret == "" {
		return ErrMissingCredentials
	}
	return nil
}

func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	return &cfg, validate(&cfg)
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.HTTP.Address == "" {
		cfg.HTTP.Address = "127.0.0.1:8080"
	}
	if cfg.Exchange.BaseURL == "" {
		cfg.Exchange.BaseURL = "https://api.binance.com"
	}
	if cfg.Exchange.TestnetURL == "" {
		cfg.Exchange.TestnetURL = "https://testnet.binance.vision"
	}
	if cfg.Exchange.WSURL == "" {
		cfg.Exchange.WSURL = "wss://stream.binance.com:9443/ws"
	}
	if cfg.Exchange.TestnetWSURL == "" {
		cfg.Exchange.TestnetWSURL = "wss://stream.testnet.binance.vision/ws"
	}
	if cfg.Exchange.Timeout == 0 {
		cfg.Exchange.Timeout = 10 * time.Second
	}
	if cfg.Exchange.ReconnectDelay == 0 {
		cfg.Exchange.ReconnectDelay = 3 * time.Second
	}
	if cfg.Exchange.PriceMaxAge == 0 {
		cfg.Exchange.PriceMaxAge = 10 * time.Second
	}
	if cfg.State.Backend == "" {
		cfg.State.Backend = "file"
	}
	if cfg.State.FilePath == "" {
		cfg.State.FilePath = "data/positions.json"
	}
	if cfg.State.SQLitePath == "" {
		cfg.State.SQLitePath = "data/rsibot.db"
	}
	if cfg.State.AuditPath == "" {
		cfg.State.AuditPath = "data/trades.csv"
	}
	if cfg.History.Schema == "" {
		cfg.History.Schema = "public"
	}
	if cfg.Strategy.CycleInterval == 0 {
		cfg.Strategy.CycleInterval = 60 * time.Second
	}
	if cfg.Strategy.ErrorBackoff == 0 {
		cfg.Strategy.ErrorBackoff = 10 * time.Second
	}
	if cfg.Strategy.RSIPeriod == 0 {
		cfg.Strategy.RSIPeriod = 14
	}
	if cfg.Strategy.CandleInterval == "" {
		cfg.Strategy.CandleInterval = "1m"
	}
	if cfg.Strategy.CandleLimit == 0 {
		cfg.Strategy.CandleLimit = 100
	}
	if cfg.Strategy.BudgetUSD == 0 {
		cfg.Strategy.BudgetUSD = 100
	}
	if cfg.Strategy.ExitPolicy == "" {
		cfg.Strategy.ExitPolicy = "trailing"
	}
	if cfg.Strategy.TakeProfitPct == 0 {
		cfg.Strategy.TakeProfitPct = 3.5
	}
	if cfg.Strategy.StopPct == 0 {
		cfg.Strategy.StopPct = 2.0
	}
	if cfg.Strategy.CommissionPct == 0 {
		cfg.Strategy.CommissionPct = 0.1
	}
	if cfg.Strategy.StopTimeout == 0 {
		cfg.Strategy.StopTimeout = 10 * time.Second
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
	if len(cfg.Symbols) == 0 {
		cfg.Symbols = DefaultSymbols()
	}
}

// DefaultSymbols is the watchlist used when the config file names none.
func DefaultSymbols() []SymbolConfig {
	return []SymbolConfig{
		{Symbol: "ETHUSDT", Overbought: 72, Oversold: 28},
		{Symbol: "ADAUSDT", Overbought: 70, Oversold: 30},
		{Symbol: "SOLUSDT", Overbought: 68, Oversold: 32},
		{Symbol: "BNBUSDT", Overbought: 75, Oversold: 25},
		{Symbol: "XRPUSDT", Overbought: 70, Oversold: 30},
		{Symbol: "TRXUSDT", Overbought: 70, Oversold: 30},
	}
}

func validate(cfg *Config) error {
	if cfg.Strategy.BudgetUSD <= 0 {
		return errors.New("strategy.budget_usd must be > 0")
	}
	if cfg.Strategy.RSIPeriod < 2 {
		return errors.New("strategy.rsi_period must be >= 2")
	}
	if cfg.Strategy.CandleLimit <= cfg.Strategy.RSIPeriod {
		return errors.New("strategy.candle_limit must exceed strategy.rsi_period")
	}
	switch cfg.Strategy.ExitPolicy {
	case "trailing", "band":
	default:
		return fmt.Errorf("strategy.exit_policy must be trailing or band, got %q", cfg.Strategy.ExitPolicy)
	}
	switch cfg.State.Backend {
	case "file", "sqlite":
	default:
		return fmt.Errorf("state.backend must be file or sqlite, got %q", cfg.State.Backend)
	}
	seen := make(map[string]struct{}, len(cfg.Symbols))
	for _, sym := range cfg.Symbols {
		if sym.Symbol == "" {
			return errors.New("symbols entries require a symbol id")
		}
		if _, dup := seen[sym.Symbol]; dup {
			return fmt.Errorf("duplicate symbol %s", sym.Symbol)
		}
		seen[sym.Symbol] = struct{}{}
		if sym.Oversold < 0 || sym.Oversold > 100 || sym.Overbought < 0 || sym.Overbought > 100 {
			return fmt.Errorf("symbol %s thresholds must be within 0-100", sym.Symbol)
		}
		if sym.Oversold >= sym.Overbought {
			return fmt.Errorf("symbol %s oversold must be below overbought", sym.Symbol)
		}
	}
	return nil
}
