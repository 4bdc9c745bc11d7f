package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = "LEDGERZ"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvDBDSN  = "LEDGERZ_DB_DSN"
	EnvDBHost = "LEDGERZ_DB_HOST"
	EnvDBUser = "LEDGERZ_DB_USER"
	EnvDBName = "LEDGERZ_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	RateLimit    RateLimitConfig
	Idempotency  IdempotencyConfig
	Audit        AuditConfig
	Kafka        KafkaConfig
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
	Env          string `envconfig:"LEDGERZ_APP_ENV" required:"true"`
	Port         string `envconfig:"LEDGERZ_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"LEDGERZ_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"LEDGERZ_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"LEDGERZ_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"LEDGERZ_DB_DSN"`
	Driver string `envconfig:"LEDGERZ_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"LEDGERZ_DB_HOST"`
	LegacyPort     int    `envconfig:"LEDGERZ_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"LEDGERZ_DB_USER"`
	LegacyPassword string `envconfig:"LEDGERZ_DB_PASSWORD"`
	LegacyName     string `envconfig:"LEDGERZ_DB_NAME"`
	LegacySSLMode  string `envconfig:"LEDGERZ_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"LEDGERZ_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"LEDGERZ_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"LEDGERZ_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"LEDGERZ_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"LEDGERZ_REDIS_URL" required:"true"`
	Address      string        `envconfig:"LEDGERZ_REDIS_ADDR"`
	Password     string        `envconfig:"LEDGERZ_REDIS_PASSWORD"`
	DB           int           `envconfig:"LEDGERZ_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"LEDGERZ_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"LEDGERZ_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"LEDGERZ_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"LEDGERZ_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"LEDGERZ_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"LEDGERZ_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"LEDGERZ_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"LEDGERZ_JWT_EXPIRATION_MINUTES" default:"30"`
}

type RateLimitConfig struct {
	Window     time.Duration `envconfig:"LEDGERZ_RATE_LIMIT_WINDOW" default:"1m"`
	IPLimit    int           `envconfig:"LEDGERZ_RATE_LIMIT_IP_LIMIT" default:"120"`
	ActorLimit int           `envconfig:"LEDGERZ_RATE_LIMIT_ACTOR_LIMIT" default:"60"`
}

type IdempotencyConfig struct {
	TTL           time.Duration `envconfig:"LEDGERZ_IDEMPOTENCY_TTL" default:"168h"`
	SweepInterval time.Duration `envconfig:"LEDGERZ_IDEMPOTENCY_SWEEP_INTERVAL" default:"1h"`
}

type AuditConfig struct {
	Enabled     bool          `envconfig:"LEDGERZ_AUDIT_ENABLED" default:"true"`
	QueueSize   int           `envconfig:"LEDGERZ_AUDIT_QUEUE_SIZE" default:"256"`
	FlushWait   time.Duration `envconfig:"LEDGERZ_AUDIT_FLUSH_WAIT" default:"5s"`
	PublishSpan time.Duration `envconfig:"LEDGERZ_AUDIT_PUBLISH_TIMEOUT" default:"3s"`
	Retention   time.Duration `envconfig:"LEDGERZ_AUDIT_RETENTION" default:"2160h"`
}

type KafkaConfig struct {
	Brokers []string `envconfig:"LEDGERZ_KAFKA_BROKERS"`
	Topic   string   `envconfig:"LEDGERZ_KAFKA_TOPIC" default:"ledger.transaction.events"`
}

// Enabled reports whether kafka publishing is configured.
func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"LEDGERZ_AUTO_MIGRATE" default:"false"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
