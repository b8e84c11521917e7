package config

import (
	"log"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	LogLevel          string `env:"LOG_LEVEL"`
	Postgres          Postgres
	Telegram          Telegram
	Redis             Redis
	API               API
	Cache             Cache
	Jobs              Jobs
	GoogleDrive       GoogleDrive
	Market            Market
	Rebalance         Rebalance
	SessionExpiration time.Duration `env:"SESSION_EXPIRATION"`
}

type Postgres struct {
	Host            string `env:"PG_HOST"`
	Port            int    `env:"PG_PORT"`
	DbName          string `env:"PG_DB_NAME"`
	Password        string `env:"PG_PASSWORD"`
	User            string `env:"PG_USER"`
	MaxOpenConns    int    `env:"PG_MAX_OPEN_CONNS"`
	ConnMaxLifetime int    `env:"PG_CONN_MAX_LIFETIME"`
	MaxIdleConns    int    `env:"PG_MAX_IDLE_CONNS"`
	ConnMaxIdleTime int    `env:"PG_CONN_MAX_IDLE_TIME"`
	MigrationDir    string `env:"PG_MIGRATION_DIR"`
}

type Telegram struct {
	Token      string        `env:"TELEGRAM_TOKEN"`
	UpdTimeout time.Duration `env:"TELEGRAM_UPD_TIMEOUT"`
}

type Redis struct {
	Host     string `env:"REDIS_HOST"`
	Port     int    `env:"REDIS_PORT"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB"`
}

type API struct {
	Debug    bool          `env:"API_DEBUG"`
	Timeout  time.Duration `env:"API_TIMEOUT"`
	YahooApi YahooApi
}

type YahooApi struct {
	ChartUrl  string `env:"YAHOO_CHART_API_URL"`
	SearchUrl string `env:"YAHOO_SEARCH_API_URL"`
}

type Cache struct {
	LatestPriceTTL time.Duration `env:"CACHE_LATEST_PRICE_TTL" envDefault:"60s"`
	PrevCloseTTL   time.Duration `env:"CACHE_PREV_CLOSE_TTL" envDefault:"6h"`
	SessionOpenTTL time.Duration `env:"CACHE_SESSION_OPEN_TTL" envDefault:"1h"`
	HistoryTTL     time.Duration `env:"CACHE_HISTORY_TTL" envDefault:"1h"`
}

type Jobs struct {
	WarmPriceCachesInterval time.Duration `env:"WARM_PRICE_CACHES_JOB_INTERVAL"`
	CleanupReportsInterval  time.Duration `env:"CLEANUP_REPORTS_JOB_INTERVAL" envDefault:"24h"`
}

type GoogleDrive struct {
	CredentialsFile string        `env:"GOOGLE_DRIVE_CREDENTIALS_FILE"`
	FolderID        string        `env:"GOOGLE_DRIVE_FOLDER_ID"`
	ReportTTL       time.Duration `env:"GOOGLE_DRIVE_REPORT_TTL" envDefault:"168h"`
}

// Market describes the primary trading venue, used by the background price
// refresher to pick its polling interval.
type Market struct {
	Timezone         string        `env:"MARKET_TIMEZONE" envDefault:"Europe/Berlin"`
	OpenHour         int           `env:"MARKET_OPEN_HOUR" envDefault:"8"`
	CloseHour        int           `env:"MARKET_CLOSE_HOUR" envDefault:"22"`
	RefreshInterval  time.Duration `env:"MARKET_REFRESH_INTERVAL" envDefault:"30s"`
	OffHoursInterval time.Duration `env:"MARKET_OFF_HOURS_INTERVAL" envDefault:"5m"`
	HistoryYears     int           `env:"MARKET_HISTORY_YEARS" envDefault:"5"`
	IntradayWindow   time.Duration `env:"MARKET_INTRADAY_WINDOW" envDefault:"168h"`
}

type Rebalance struct {
	StockFeeEur  string `env:"REBALANCE_STOCK_FEE_EUR" envDefault:"1.0"`
	CryptoFeePct string `env:"REBALANCE_CRYPTO_FEE_PCT" envDefault:"0.29"`
}

func MustLoad() *Config {
	_ = godotenv.Load(".env")

	cfg := &Config{}

	opts := env.Options{RequiredIfNoDef: true}

	if err := env.ParseWithOptions(cfg, opts); err != nil {
		log.Fatalf("parse config error: %s", err)
	}

	return cfg
}
