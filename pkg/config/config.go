package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App      AppConfig
	DB       DBConfig
	Redis    RedisConfig
	JWT      JWTConfig
	Features FeatureFlagsConfig
	OTP      OTPConfig
	QRPay    QRPayConfig
	GCP      GCPConfig
	PubSub   PubSubConfig
	Delivery DeliveryConfig
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
	Env          string `envconfig:"TRENDORA_APP_ENV" required:"true"`
	Port         string `envconfig:"TRENDORA_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"TRENDORA_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"TRENDORA_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"TRENDORA_DB_DSN"`
	Driver string `envconfig:"TRENDORA_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"TRENDORA_DB_HOST"`
	LegacyPort     int    `envconfig:"TRENDORA_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"TRENDORA_DB_USER"`
	LegacyPassword string `envconfig:"TRENDORA_DB_PASSWORD"`
	LegacyName     string `envconfig:"TRENDORA_DB_NAME"`
	LegacySSLMode  string `envconfig:"TRENDORA_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"TRENDORA_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"TRENDORA_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"TRENDORA_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"TRENDORA_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"TRENDORA_REDIS_URL" required:"true"`
	Address      string        `envconfig:"TRENDORA_REDIS_ADDR"`
	Password     string        `envconfig:"TRENDORA_REDIS_PASSWORD"`
	DB           int           `envconfig:"TRENDORA_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"TRENDORA_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"TRENDORA_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"TRENDORA_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"TRENDORA_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"TRENDORA_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"TRENDORA_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"TRENDORA_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"TRENDORA_JWT_EXPIRATION_MINUTES" required:"true"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"TRENDORA_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"TRENDORA_AUTO_MIGRATE" default:"false"`
}

// OTPConfig configures the SMS one-time-code provider.
type OTPConfig struct {
	BaseURL     string        `envconfig:"TRENDORA_OTP_BASE_URL" required:"true"`
	APIKey      string        `envconfig:"TRENDORA_OTP_API_KEY" required:"true"`
	SenderID    string        `envconfig:"TRENDORA_OTP_SENDER_ID" default:"TRNDRA"`
	ExpiryMins  int           `envconfig:"TRENDORA_OTP_EXPIRY_MINUTES" default:"10"`
	HTTPTimeout time.Duration `envconfig:"TRENDORA_OTP_HTTP_TIMEOUT" default:"10s"`
}

// QRPayConfig configures the dynamic-QR payment gateway.
type QRPayConfig struct {
	BaseURL     string        `envconfig:"TRENDORA_QRPAY_BASE_URL" required:"true"`
	APIKey      string        `envconfig:"TRENDORA_QRPAY_API_KEY" required:"true"`
	APISecret   string        `envconfig:"TRENDORA_QRPAY_API_SECRET" required:"true"`
	HTTPTimeout time.Duration `envconfig:"TRENDORA_QRPAY_HTTP_TIMEOUT" default:"15s"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"TRENDORA_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	NotificationTopic string `envconfig:"TRENDORA_PUBSUB_NOTIFICATION_TOPIC" default:"trendora-notification-events"`
}

// DeliveryConfig carries delivery-domain tunables.
type DeliveryConfig struct {
	AgentFeeCents int `envconfig:"TRENDORA_DELIVERY_AGENT_FEE_CENTS" default:"4000"`
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
