package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Kafka      KafkaConfig      `mapstructure:"kafka"`
	Settlement SettlementConfig `mapstructure:"settlement"`
	Worker     WorkerConfig     `mapstructure:"worker"`
	Auth       AuthConfig       `mapstructure:"auth"`
	QR         QRConfig         `mapstructure:"qr"`
	LogLevel   string           `mapstructure:"log_level"`
}

type ServerConfig struct {
	Port         string        `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

type DatabaseConfig struct {
	// Driver is "postgres" in production; "sqlite" runs against a local file.
	Driver        string        `mapstructure:"driver"`
	DSN           string        `mapstructure:"dsn"`
	Host          string        `mapstructure:"host"`
	Port          string        `mapstructure:"port"`
	Username      string        `mapstructure:"username"`
	Password      string        `mapstructure:"password"`
	Database      string        `mapstructure:"name"`
	SSLMode       string        `mapstructure:"sslmode"`
	MaxOpenConns  int           `mapstructure:"max_open_conns"`
	MaxIdleConns  int           `mapstructure:"max_idle_conns"`
	MaxLifetime   time.Duration `mapstructure:"max_lifetime"`
	MigrationsDir string        `mapstructure:"migrations_dir"`
	AutoMigrate   bool          `mapstructure:"auto_migrate"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Brokers []string    `mapstructure:"brokers"`
	GroupID string      `mapstructure:"group_id"`
	Enabled bool        `mapstructure:"enabled"`
	Topics  TopicConfig `mapstructure:"topics"`
}

type TopicConfig struct {
	PaymentCompleted string `mapstructure:"payment_completed"`
	PaymentFailed    string `mapstructure:"payment_failed"`
	PaymentRefunded  string `mapstructure:"payment_refunded"`
	TicketCancelled  string `mapstructure:"ticket_cancelled"`
	TicketExpired    string `mapstructure:"ticket_expired"`
	PaymentRequests  string `mapstructure:"payment_requests"`
}

type SettlementConfig struct {
	// Gateway is "simulated" or "stripe".
	Gateway         string        `mapstructure:"gateway"`
	SimulatedDelay  time.Duration `mapstructure:"simulated_delay"`
	Currency        string        `mapstructure:"currency"`
	StripeSecretKey string        `mapstructure:"stripe_secret_key"`
	ReservationTTL  time.Duration `mapstructure:"reservation_ttl"`
	// LockBackend is "local" for a single instance or "redis" when several
	// instances settle against the same database.
	LockBackend string        `mapstructure:"lock_backend"`
	LockTTL     time.Duration `mapstructure:"lock_ttl"`
	LockWait    time.Duration `mapstructure:"lock_wait"`
}

type WorkerConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	ExpiryInterval time.Duration `mapstructure:"expiry_interval"`
	BatchSize      int           `mapstructure:"batch_size"`
}

type AuthConfig struct {
	OIDCIssuer string `mapstructure:"oidc_issuer"`
	JWTSecret  string `mapstructure:"jwt_secret"`
}

type QRConfig struct {
	Secret string `mapstructure:"secret"`
}

// envBindings keeps the flat environment names the deployment already uses.
var envBindings = map[string]string{
	"server.port":                  "PORT",
	"database.driver":              "DB_DRIVER",
	"database.dsn":                 "POSTGRES_DSN",
	"database.host":                "DB_HOST",
	"database.port":                "DB_PORT",
	"database.username":            "DB_USERNAME",
	"database.password":            "DB_PASSWORD",
	"database.name":                "DB_NAME",
	"database.sslmode":             "DB_SSLMODE",
	"database.max_open_conns":      "DB_MAX_OPEN_CONNS",
	"database.max_idle_conns":      "DB_MAX_IDLE_CONNS",
	"database.max_lifetime":        "DB_MAX_LIFETIME",
	"database.migrations_dir":      "MIGRATIONS_DIR",
	"database.auto_migrate":        "DB_AUTO_MIGRATE",
	"redis.addr":                   "REDIS_ADDR",
	"redis.password":               "REDIS_PASSWORD",
	"redis.db":                     "REDIS_DB",
	"kafka.brokers":                "KAFKA_BROKERS",
	"kafka.group_id":               "KAFKA_GROUP_ID",
	"kafka.enabled":                "KAFKA_ENABLED",
	"settlement.gateway":           "PAYMENT_GATEWAY",
	"settlement.simulated_delay":   "SIMULATED_GATEWAY_DELAY",
	"settlement.currency":          "PAYMENT_CURRENCY",
	"settlement.stripe_secret_key": "STRIPE_SECRET_KEY",
	"settlement.reservation_ttl":   "RESERVATION_TTL",
	"settlement.lock_backend":      "ZONE_LOCK_BACKEND",
	"settlement.lock_ttl":          "ZONE_LOCK_TTL",
	"settlement.lock_wait":         "ZONE_LOCK_WAIT",
	"worker.enabled":               "WORKER_ENABLED",
	"worker.expiry_interval":       "WORKER_EXPIRY_INTERVAL",
	"worker.batch_size":            "WORKER_BATCH_SIZE",
	"auth.oidc_issuer":             "OIDC_ISSUER",
	"auth.jwt_secret":              "JWT_SECRET",
	"qr.secret":                    "QR_SECRET_KEY",
	"log_level":                    "LOG_LEVEL",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", ":8080")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.username", "ticketing")
	v.SetDefault("database.password", "ticketing")
	v.SetDefault("database.name", "ticketing")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 25)
	v.SetDefault("database.max_lifetime", 5*time.Minute)
	v.SetDefault("database.migrations_dir", "./migrations")
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)

	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.group_id", "settlement-service")
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.topics.payment_completed", "settlement.payment.completed")
	v.SetDefault("kafka.topics.payment_failed", "settlement.payment.failed")
	v.SetDefault("kafka.topics.payment_refunded", "settlement.payment.refunded")
	v.SetDefault("kafka.topics.ticket_cancelled", "settlement.ticket.cancelled")
	v.SetDefault("kafka.topics.ticket_expired", "settlement.ticket.expired")
	v.SetDefault("kafka.topics.payment_requests", "settlement.payment.requests")

	v.SetDefault("settlement.gateway", "simulated")
	v.SetDefault("settlement.simulated_delay", time.Second)
	v.SetDefault("settlement.currency", "usd")
	v.SetDefault("settlement.reservation_ttl", 15*time.Minute)
	v.SetDefault("settlement.lock_backend", "local")
	v.SetDefault("settlement.lock_ttl", 30*time.Second)
	v.SetDefault("settlement.lock_wait", 10*time.Second)

	v.SetDefault("worker.enabled", true)
	v.SetDefault("worker.expiry_interval", time.Minute)
	v.SetDefault("worker.batch_size", 100)

	v.SetDefault("log_level", "info")
}

// Load reads defaults, then an optional config.yaml (./ or ./config), then
// the environment. Later sources win.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind %s: %w", env, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	// KAFKA_BROKERS arrives as one comma separated string.
	if len(cfg.Kafka.Brokers) == 1 && strings.Contains(cfg.Kafka.Brokers[0], ",") {
		cfg.Kafka.Brokers = strings.Split(cfg.Kafka.Brokers[0], ",")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	switch c.Settlement.Gateway {
	case "simulated":
	case "stripe":
		if c.Settlement.StripeSecretKey == "" {
			return errors.New("STRIPE_SECRET_KEY is required for the stripe gateway")
		}
	default:
		return fmt.Errorf("unsupported payment gateway %q", c.Settlement.Gateway)
	}
	switch c.Settlement.LockBackend {
	case "local", "redis":
	default:
		return fmt.Errorf("unsupported zone lock backend %q", c.Settlement.LockBackend)
	}
	if c.Settlement.ReservationTTL <= 0 {
		return errors.New("reservation ttl must be positive")
	}
	return nil
}

// PostgresDSN returns the explicit DSN when set, otherwise one assembled from
// the individual fields.
func (d DatabaseConfig) PostgresDSN() string {
	if d.DSN != "" {
		return d.DSN
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		d.Username, d.Password, d.Host, d.Port, d.Database, d.SSLMode)
}
