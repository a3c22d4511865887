package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App    AppConfig    `mapstructure:"app"`
	Server ServerConfig `mapstructure:"server"`
	Log    LogConfig    `mapstructure:"log"`
	DB     DBConfig     `mapstructure:"db"`
	Cron   CronConfig   `mapstructure:"cron"`

	Market    MarketConfig    `mapstructure:"market"`
	Ledger    LedgerConfig    `mapstructure:"ledger"`
	State     StateConfig     `mapstructure:"state"`
	Dataset   DatasetConfig   `mapstructure:"dataset"`
	Backtest  BacktestConfig  `mapstructure:"backtest"`
	Promotion PromotionConfig `mapstructure:"promotion"`
	Notifier  NotifierConfig  `mapstructure:"notifier"`
}

type AppConfig struct {
	Env string `mapstructure:"env"`
}

type ServerConfig struct {
	HTTPAddr string `mapstructure:"http_addr"`
}

type LogConfig struct {
	Level             string `mapstructure:"level"`
	Encoding          string `mapstructure:"encoding"`
	OutputPath        string `mapstructure:"output_path"`
	Development       bool   `mapstructure:"development"`
	Sampling          bool   `mapstructure:"sampling"`
	DisableCaller     bool   `mapstructure:"disable_caller"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
}

type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Timezone        string        `mapstructure:"timezone"`
	LogQueries      bool          `mapstructure:"log_queries"`
}

type CronConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	DecisionCycle  string `mapstructure:"decision_cycle"`
	RiskSweep      string `mapstructure:"risk_sweep"`
	OutcomeResolve string `mapstructure:"outcome_resolve"`
	EquitySnapshot string `mapstructure:"equity_snapshot"`
}

// MarketConfig pins the (exchange, instrument, timeframe, horizon) key the
// engine trades. One engine process drives one key.
type MarketConfig struct {
	Exchange    string `mapstructure:"exchange"`
	Instrument  string `mapstructure:"instrument"`
	Timeframe   string `mapstructure:"timeframe"`
	HorizonBars int    `mapstructure:"horizon_bars"`
}

type LedgerConfig struct {
	Path        string  `mapstructure:"path"`
	InitialCash float64 `mapstructure:"initial_cash"`
	FeeRate     float64 `mapstructure:"fee_rate"`
}

// StateConfig points at the directory holding the hot-reloadable JSON
// documents: risk policy, trade guard, trailing stops.
type StateConfig struct {
	Dir string `mapstructure:"dir"`
}

type DatasetConfig struct {
	CSVPath string `mapstructure:"csv_path"`
}

type BacktestConfig struct {
	WindowTrain      int       `mapstructure:"window_train"`
	WindowTest       int       `mapstructure:"window_test"`
	Step             int       `mapstructure:"step"`
	ThresholdGrid    []float64 `mapstructure:"threshold_grid"`
	ValidationSplit  float64   `mapstructure:"validation_split"`
	MaxCurvePoints   int       `mapstructure:"max_curve_points"`
	MaxParallelFolds int       `mapstructure:"max_parallel_folds"`
}

type PromotionConfig struct {
	MinAUCGain         float64 `mapstructure:"min_auc_gain"`
	AUCTolerance       float64 `mapstructure:"auc_tolerance"`
	TailSize           int     `mapstructure:"tail_size"`
	PreferRiskAdjusted bool    `mapstructure:"prefer_risk_adjusted"`
	DryRun             bool    `mapstructure:"dry_run"`
	ArtifactDir        string  `mapstructure:"artifact_dir"`
}

type NotifierConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	WebhookURL string        `mapstructure:"webhook_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

func Load(path string, envOnly bool) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("AP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()

	v.SetDefault("app.env", "dev")
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.output_path", "stdout")
	v.SetDefault("log.development", true)
	v.SetDefault("log.sampling", false)
	v.SetDefault("log.disable_caller", false)
	v.SetDefault("log.disable_stacktrace", false)
	v.SetDefault("db.max_open_conns", 20)
	v.SetDefault("db.max_idle_conns", 5)
	v.SetDefault("db.conn_max_lifetime", "30m")
	v.SetDefault("db.conn_max_idle_time", "5m")
	v.SetDefault("db.timezone", "UTC")
	v.SetDefault("db.log_queries", false)

	v.SetDefault("cron.enabled", true)
	v.SetDefault("cron.decision_cycle", "0 */5 * * * *")
	v.SetDefault("cron.risk_sweep", "30 * * * * *")
	v.SetDefault("cron.outcome_resolve", "0 */15 * * * *")
	v.SetDefault("cron.equity_snapshot", "0 0 * * * *")

	v.SetDefault("market.exchange", "binance")
	v.SetDefault("market.instrument", "BTC/USDT")
	v.SetDefault("market.timeframe", "1h")
	v.SetDefault("market.horizon_bars", 4)

	v.SetDefault("ledger.path", "data/ledger.json")
	v.SetDefault("ledger.initial_cash", 10000)
	v.SetDefault("ledger.fee_rate", 0.001)

	v.SetDefault("state.dir", "data/state")
	v.SetDefault("dataset.csv_path", "data/features.csv")

	v.SetDefault("backtest.window_train", 1500)
	v.SetDefault("backtest.window_test", 250)
	v.SetDefault("backtest.step", 250)
	v.SetDefault("backtest.threshold_grid", []float64{0.50, 0.52, 0.55, 0.58, 0.60, 0.65})
	v.SetDefault("backtest.validation_split", 0.25)
	v.SetDefault("backtest.max_curve_points", 500)
	v.SetDefault("backtest.max_parallel_folds", 4)

	v.SetDefault("promotion.min_auc_gain", 0.02)
	v.SetDefault("promotion.auc_tolerance", 0.01)
	v.SetDefault("promotion.tail_size", 500)
	v.SetDefault("promotion.prefer_risk_adjusted", true)
	v.SetDefault("promotion.dry_run", false)
	v.SetDefault("promotion.artifact_dir", "data/models")

	v.SetDefault("notifier.enabled", false)
	v.SetDefault("notifier.webhook_url", "")
	v.SetDefault("notifier.timeout", "5s")

	if !envOnly {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
