package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Rates        RatesConfig
	Reservation  ReservationConfig
	RateLimit    RateLimitConfig
	Anchor       AnchorConfig
	Payment      PaymentVerifyConfig
	PubSub       PubSubConfig
	BigQuery     BigQueryConfig
	GCP          GCPConfig
	FeatureFlags FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"FRAXION_APP_ENV" required:"true"`
	Port         string `envconfig:"FRAXION_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"FRAXION_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"FRAXION_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"FRAXION_DB_DSN"`
	Driver string `envconfig:"FRAXION_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"FRAXION_DB_HOST"`
	Port     int    `envconfig:"FRAXION_DB_PORT" default:"5432"`
	User     string `envconfig:"FRAXION_DB_USER"`
	Password string `envconfig:"FRAXION_DB_PASSWORD"`
	Name     string `envconfig:"FRAXION_DB_NAME"`
	SSLMode  string `envconfig:"FRAXION_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"FRAXION_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"FRAXION_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"FRAXION_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"FRAXION_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"FRAXION_REDIS_URL"`
	Address      string        `envconfig:"FRAXION_REDIS_ADDRESS"`
	Password     string        `envconfig:"FRAXION_REDIS_PASSWORD"`
	DB           int           `envconfig:"FRAXION_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"FRAXION_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"FRAXION_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"FRAXION_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"FRAXION_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"FRAXION_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"FRAXION_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"FRAXION_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"FRAXION_JWT_EXPIRATION_MINUTES" default:"60"`
}

type RatesConfig struct {
	BaseURL  string        `envconfig:"FRAXION_RATES_BASE_URL" required:"true"`
	CacheTTL time.Duration `envconfig:"FRAXION_RATES_CACHE_TTL" default:"5m"`
	Timeout  time.Duration `envconfig:"FRAXION_RATES_TIMEOUT" default:"10s"`
}

type ReservationConfig struct {
	HoldWindow    time.Duration `envconfig:"FRAXION_RESERVATION_HOLD_WINDOW" default:"15m"`
	SweepInterval time.Duration `envconfig:"FRAXION_RESERVATION_SWEEP_INTERVAL" default:"1m"`
}

type RateLimitConfig struct {
	Window time.Duration `envconfig:"FRAXION_RATE_LIMIT_WINDOW" default:"1m"`
	Limit  int64         `envconfig:"FRAXION_RATE_LIMIT_MAX" default:"120"`
}

type AnchorConfig struct {
	Endpoint           string        `envconfig:"FRAXION_ANCHOR_ENDPOINT" required:"true"`
	APIKey             string        `envconfig:"FRAXION_ANCHOR_API_KEY"`
	SubmitTimeout      time.Duration `envconfig:"FRAXION_ANCHOR_SUBMIT_TIMEOUT" default:"15s"`
	BatchSize          int           `envconfig:"FRAXION_ANCHOR_BATCH_SIZE" default:"25"`
	PollIntervalMS     int           `envconfig:"FRAXION_ANCHOR_POLL_MS" default:"2000"`
	DegradedThreshold  int           `envconfig:"FRAXION_ANCHOR_DEGRADED_THRESHOLD" default:"3"`
	DegradedWindow     time.Duration `envconfig:"FRAXION_ANCHOR_DEGRADED_WINDOW" default:"10m"`
	FlagCacheTTL       time.Duration `envconfig:"FRAXION_ANCHOR_FLAG_CACHE_TTL" default:"5s"`
	NotificationsTopic string        `envconfig:"FRAXION_ANCHOR_NOTIFICATIONS_TOPIC" default:"fx-anchor-events"`
}

type PaymentVerifyConfig struct {
	BaseURL        string        `envconfig:"FRAXION_PAYMENT_BASE_URL" required:"true"`
	APIKey         string        `envconfig:"FRAXION_PAYMENT_API_KEY"`
	MaxAttempts    int           `envconfig:"FRAXION_PAYMENT_MAX_ATTEMPTS" default:"10"`
	InitialBackoff time.Duration `envconfig:"FRAXION_PAYMENT_INITIAL_BACKOFF" default:"3s"`
	RequestTimeout time.Duration `envconfig:"FRAXION_PAYMENT_REQUEST_TIMEOUT" default:"10s"`
	ToleranceBPS   int           `envconfig:"FRAXION_PAYMENT_TOLERANCE_BPS" default:"1"`
}

type PubSubConfig struct {
	AnchorTopic string `envconfig:"FRAXION_PUBSUB_ANCHOR_TOPIC" default:"fx-anchor-events"`
}

type BigQueryConfig struct {
	Dataset           string `envconfig:"FRAXION_BIGQUERY_DATASET" default:"fraxion"`
	LedgerExportTable string `envconfig:"FRAXION_BIGQUERY_LEDGER_TABLE" default:"ledger_records"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"FRAXION_AUTO_MIGRATE" default:"false"`
}

type GCPConfig struct {
	ProjectID       string `envconfig:"FRAXION_GCP_PROJECT_ID"`
	CredentialsJSON string `envconfig:"FRAXION_GCP_CREDENTIALS_JSON"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	values := map[string]string{
		EnvDBHost: db.Host,
		EnvDBUser: db.User,
		EnvDBName: db.Name,
	}
	for _, env := range fallbackDBEnvVars {
		if values[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.User)
	if db.Password != "" {
		userInfo = url.UserPassword(db.User, db.Password)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:   db.Name,
	}

	if db.SSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.SSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
