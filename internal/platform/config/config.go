package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	platformstrings "idverify/pkg/platform/strings"
)

// Server captures process-wide configuration.
type Server struct {
	Addr            string        `env:"IDV_ADDR" envDefault:":8080"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT" envDefault:"60s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	AdminAPIToken   string        `env:"ADMIN_API_TOKEN"`
	SeedConfigDir   string        `env:"SEED_CONFIG_DIR"`
	CORSOrigins     []string      `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`

	JWT      JWTConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Cache    CacheConfig
	Events   EventsConfig
}

// JWTConfig configures the default bearer validator.
type JWTConfig struct {
	// development default; override in every real deployment
	SigningKey string `env:"JWT_SIGNING_KEY" envDefault:"dev-secret-key-change-in-production"`
	Issuer     string `env:"JWT_ISSUER"`
	Audience   string `env:"JWT_AUDIENCE"`
}

// DatabaseConfig selects PostgreSQL storage. An empty URL keeps everything in memory.
type DatabaseConfig struct {
	URL             string        `env:"DATABASE_URL"`
	MaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS" envDefault:"20"`
	MaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS" envDefault:"5"`
	ConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"30m"`
	AutoMigrate     bool          `env:"DB_AUTO_MIGRATE" envDefault:"true"`
}

// RedisConfig configures the shared Redis client. An empty URL disables Redis.
type RedisConfig struct {
	URL          string        `env:"REDIS_URL"`
	PoolSize     int           `env:"REDIS_POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"REDIS_MIN_IDLE_CONNS" envDefault:"2"`
	DialTimeout  time.Duration `env:"REDIS_DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"REDIS_READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"REDIS_WRITE_TIMEOUT" envDefault:"3s"`
}

// CacheConfig bounds how long a verification configuration may be served from cache.
type CacheConfig struct {
	ConfigTTL time.Duration `env:"CONFIG_CACHE_TTL" envDefault:"5m"`
}

// EventsConfig selects the security event sink.
type EventsConfig struct {
	Broker       string   `env:"EVENTS_BROKER"`
	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaTopic   string   `env:"KAFKA_TOPIC" envDefault:"identity-verification-events"`
	AMQPURL      string   `env:"AMQP_URL"`
	AMQPExchange string   `env:"AMQP_EXCHANGE" envDefault:"identity-verification"`
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() (Server, error) {
	var cfg Server
	if err := env.Parse(&cfg); err != nil {
		return Server{}, fmt.Errorf("parse environment: %w", err)
	}
	cfg.CORSOrigins = platformstrings.DedupeAndTrim(cfg.CORSOrigins)
	cfg.Events.KafkaBrokers = platformstrings.DedupeAndTrim(cfg.Events.KafkaBrokers)
	if err := cfg.Validate(); err != nil {
		return Server{}, err
	}
	return cfg, nil
}

// Validate rejects combinations the server cannot start with.
func (s Server) Validate() error {
	switch strings.ToLower(s.Events.Broker) {
	case "":
	case "kafka":
		if len(s.Events.KafkaBrokers) == 0 {
			return fmt.Errorf("EVENTS_BROKER=kafka requires KAFKA_BROKERS")
		}
	case "amqp":
		if s.Events.AMQPURL == "" {
			return fmt.Errorf("EVENTS_BROKER=amqp requires AMQP_URL")
		}
	default:
		return fmt.Errorf("unsupported EVENTS_BROKER %q", s.Events.Broker)
	}
	if s.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive")
	}
	return nil
}
