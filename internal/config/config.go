package config

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Slugpotato/pi-trading-demo/internal/session"
)

// defaultWatchlist is the set of tickers polled when no config file
// overrides it.
var defaultWatchlist = []string{"NRZ", "GAIN", "NEWT", "ORI", "IRT", "SHOP", "PAYC", "AMD", "ABR"}

type Config struct {
	APIKey     string
	APISecret  string
	BaseURL    string
	DataKey    string
	DataSecret string

	Watchlist    []string
	ProfitTarget float64

	SessionZone  string
	SessionStart session.TimeOfDay
	SessionEnd   session.TimeOfDay

	OrderResultLimit int
	TickerCooldown   time.Duration
	OffHoursWait     time.Duration

	LedgerDBPath   string
	LedgerTextPath string
	EvalsPath      string
	FailureLogPath string

	KillSwitch bool
}

// fileConfig is the optional YAML overlay for non-secret settings.
type fileConfig struct {
	Watchlist    []string `yaml:"watchlist"`
	ProfitTarget *float64 `yaml:"profit_target"`
	Session      struct {
		Zone  string `yaml:"zone"`
		Start string `yaml:"start"`
		End   string `yaml:"end"`
	} `yaml:"session"`
	OrderResultLimit *int   `yaml:"order_result_limit"`
	TickerCooldown   string `yaml:"ticker_cooldown"`
	OffHoursWait     string `yaml:"off_hours_wait"`
	Ledger           struct {
		DBPath   string `yaml:"db_path"`
		TextPath string `yaml:"text_path"`
	} `yaml:"ledger"`
	EvalsPath      string `yaml:"evals_path"`
	FailureLogPath string `yaml:"failure_log_path"`
}

// Load reads flags, the environment (credentials only), and an optional
// YAML file. Precedence: flag defaults < file values < explicitly set
// flags; credentials always come from the environment (a .env file fills
// unset variables).
func Load() (Config, error) {
	var cfg Config
	var configPath string
	var watchlist string
	var sessionStart string
	var sessionEnd string

	loadDotEnvIfPresent(".env")

	flag.StringVar(&configPath, "config", "", "optional YAML config file")
	flag.StringVar(&watchlist, "watchlist", strings.Join(defaultWatchlist, ","), "comma-separated tickers to poll")
	flag.Float64Var(&cfg.ProfitTarget, "profit-target", 0.01, "sell when percent change since last buy meets this fraction")
	flag.StringVar(&cfg.SessionZone, "session-zone", "America/New_York", "trading session time zone")
	flag.StringVar(&sessionStart, "session-start", "09:30", "session open, HH:MM")
	flag.StringVar(&sessionEnd, "session-end", "16:00", "session close, HH:MM")
	flag.IntVar(&cfg.OrderResultLimit, "order-result-limit", 200, "max order-history results per query (broker caps at 500)")
	flag.DurationVar(&cfg.TickerCooldown, "ticker-cooldown", 5*time.Minute, "pause after evaluating each ticker")
	flag.DurationVar(&cfg.OffHoursWait, "off-hours-wait", 15*time.Minute, "pause between session checks outside trading hours")
	flag.StringVar(&cfg.LedgerDBPath, "ledger-db", "trades.db", "sqlite trade ledger path")
	flag.StringVar(&cfg.LedgerTextPath, "ledger-text", "trades.txt", "flat text mirror of the trade ledger")
	flag.StringVar(&cfg.EvalsPath, "evals-path", "evals.ndjson", "per-ticker evaluation log")
	flag.StringVar(&cfg.FailureLogPath, "failure-log", "log.txt", "append-only failure log")
	flag.BoolVar(&cfg.KillSwitch, "kill-switch", false, "if true, never place orders")
	flag.Parse()

	setFlags := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { setFlags[f.Name] = true })

	cfg.Watchlist = splitWatchlist(watchlist)
	cfg.APIKey = os.Getenv("APCA_API_KEY_ID")
	cfg.APISecret = os.Getenv("APCA_API_SECRET_KEY")
	cfg.BaseURL = os.Getenv("APCA_API_BASE_URL")
	cfg.DataKey = os.Getenv("MARKET_DATA_KEY_ID")
	cfg.DataSecret = os.Getenv("MARKET_DATA_SECRET_KEY")
	if cfg.DataKey == "" {
		cfg.DataKey = cfg.APIKey
		cfg.DataSecret = cfg.APISecret
	}

	if configPath != "" {
		if err := applyFile(&cfg, configPath, setFlags, &sessionStart, &sessionEnd); err != nil {
			return cfg, err
		}
	}

	var err error
	if cfg.SessionStart, err = session.ParseTimeOfDay(sessionStart); err != nil {
		return cfg, err
	}
	if cfg.SessionEnd, err = session.ParseTimeOfDay(sessionEnd); err != nil {
		return cfg, err
	}

	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// applyFile overlays YAML values onto cfg, leaving any field whose flag was
// set on the command line alone.
func applyFile(cfg *Config, path string, setFlags map[string]bool, sessionStart, sessionEnd *string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	if len(fc.Watchlist) > 0 && !setFlags["watchlist"] {
		cfg.Watchlist = fc.Watchlist
	}
	if fc.ProfitTarget != nil && !setFlags["profit-target"] {
		cfg.ProfitTarget = *fc.ProfitTarget
	}
	if fc.Session.Zone != "" && !setFlags["session-zone"] {
		cfg.SessionZone = fc.Session.Zone
	}
	if fc.Session.Start != "" && !setFlags["session-start"] {
		*sessionStart = fc.Session.Start
	}
	if fc.Session.End != "" && !setFlags["session-end"] {
		*sessionEnd = fc.Session.End
	}
	if fc.OrderResultLimit != nil && !setFlags["order-result-limit"] {
		cfg.OrderResultLimit = *fc.OrderResultLimit
	}
	if fc.TickerCooldown != "" && !setFlags["ticker-cooldown"] {
		if cfg.TickerCooldown, err = time.ParseDuration(fc.TickerCooldown); err != nil {
			return fmt.Errorf("parse ticker_cooldown: %w", err)
		}
	}
	if fc.OffHoursWait != "" && !setFlags["off-hours-wait"] {
		if cfg.OffHoursWait, err = time.ParseDuration(fc.OffHoursWait); err != nil {
			return fmt.Errorf("parse off_hours_wait: %w", err)
		}
	}
	if fc.Ledger.DBPath != "" && !setFlags["ledger-db"] {
		cfg.LedgerDBPath = fc.Ledger.DBPath
	}
	if fc.Ledger.TextPath != "" && !setFlags["ledger-text"] {
		cfg.LedgerTextPath = fc.Ledger.TextPath
	}
	if fc.EvalsPath != "" && !setFlags["evals-path"] {
		cfg.EvalsPath = fc.EvalsPath
	}
	if fc.FailureLogPath != "" && !setFlags["failure-log"] {
		cfg.FailureLogPath = fc.FailureLogPath
	}
	return nil
}

func splitWatchlist(value string) []string {
	parts := strings.Split(value, ",")
	tickers := make([]string, 0, len(parts))
	for _, part := range parts {
		if ticker := strings.TrimSpace(part); ticker != "" {
			tickers = append(tickers, strings.ToUpper(ticker))
		}
	}
	return tickers
}

func validate(cfg Config) error {
	if len(cfg.Watchlist) == 0 {
		return fmt.Errorf("watchlist must not be empty")
	}
	if cfg.ProfitTarget <= 0 {
		return fmt.Errorf("profit-target must be > 0")
	}
	if cfg.OrderResultLimit <= 0 || cfg.OrderResultLimit > 500 {
		return fmt.Errorf("order-result-limit must be in 1..500")
	}
	if cfg.TickerCooldown < 0 {
		return fmt.Errorf("ticker-cooldown must be >= 0")
	}
	if cfg.OffHoursWait <= 0 {
		return fmt.Errorf("off-hours-wait must be > 0")
	}
	if cfg.LedgerDBPath == "" || cfg.LedgerTextPath == "" {
		return fmt.Errorf("ledger paths must not be empty")
	}
	if !cfg.KillSwitch && (cfg.APIKey == "" || cfg.APISecret == "") {
		return fmt.Errorf("APCA_API_KEY_ID and APCA_API_SECRET_KEY are required unless kill-switch is set")
	}
	return nil
}
