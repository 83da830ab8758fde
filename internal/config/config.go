package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StoreBackendMemory = "memory"
	StoreBackendRedis  = "redis"
	StoreBackendScylla = "scylla"
)

type Config struct {
	Environment string
	Server      ServerConfig
	Logging     LoggingConfig
	Auth        AuthConfig
	Store       StoreConfig
	Redis       RedisConfig
	Scylla      ScyllaConfig
	RateLimit   RateLimitConfig
	Ingress     IngressConfig
	Kafka       KafkaConfig
	Clickhouse  ClickhouseConfig
	CORS        CORSConfig
}

type ServerConfig struct {
	Port           int
	TLSPort        int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	RequestTimeout time.Duration
	EnableTLS      bool
	AutoCert       bool
	Domain         string
	CertFile       string
	KeyFile        string
	AutoCertDir    string
	Email          string
}

type LoggingConfig struct {
	Level  string
	Format string
}

// AuthConfig lists the accepted bearer tokens. Empty means any well-formed
// bearer token is an identity.
type AuthConfig struct {
	Tokens []string
}

type StoreConfig struct {
	Backend         string
	BalloonPrefix   string
	UserStatsPrefix string
	OpTimeout       time.Duration
}

type RedisConfig struct {
	URL      string
	Password string
	DB       int
	PoolSize int
}

type ScyllaConfig struct {
	Nodes    []string
	Keyspace string
	Username string
	Password string
	Table    string
}

// RateLimitConfig parameterizes the adaptive per-user limiter.
type RateLimitConfig struct {
	RatePerMinute        float64
	FactorIncrement      float64
	FactorDecrement      float64
	MinViolationFactor   float64
	MaxEffectiveInterval time.Duration
}

// IngressConfig controls the optional per-client token bucket in front of
// every route.
type IngressConfig struct {
	Enabled            bool
	RPS                float64
	Burst              int
	TrustXForwardedFor bool
	IdleTTL            time.Duration
	CleanupEvery       time.Duration
}

type KafkaConfig struct {
	Enabled bool
	Brokers []string
	Topic   string
}

type ClickhouseConfig struct {
	Enabled  bool
	URL      string
	Username string
	Password string
	Database string
	Table    string
}

type CORSConfig struct {
	AllowedOrigins []string
}

// LoadConfig reads an optional .env file and the process environment.
func LoadConfig() *Config {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Port:           getEnvInt("PORT", 8080),
			TLSPort:        getEnvInt("TLS_PORT", 8443),
			ReadTimeout:    getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:   getEnvDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:    getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			RequestTimeout: getEnvDuration("SERVER_REQUEST_TIMEOUT", 30*time.Second),
			EnableTLS:      getEnvBool("ENABLE_TLS", false),
			AutoCert:       getEnvBool("TLS_AUTOCERT", false),
			Domain:         getEnv("TLS_DOMAIN", "localhost"),
			CertFile:       getEnv("TLS_CERT_FILE", ""),
			KeyFile:        getEnv("TLS_KEY_FILE", ""),
			AutoCertDir:    getEnv("TLS_AUTOCERT_DIR", "./certs"),
			Email:          getEnv("TLS_EMAIL", ""),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "console"),
		},
		Auth: AuthConfig{
			Tokens: append(getEnvList("AUTH_TOKENS", nil), getEnvList("AUTH_TOKEN", nil)...),
		},
		Store: StoreConfig{
			Backend:         strings.ToLower(getEnv("STORE_BACKEND", StoreBackendMemory)),
			BalloonPrefix:   getEnv("BALLOON_STATE_PREFIX", "balloon_state:"),
			UserStatsPrefix: getEnv("USER_STATS_PREFIX", "user_stats:"),
			OpTimeout:       getEnvDuration("STORE_OP_TIMEOUT", 5*time.Second),
		},
		Redis: RedisConfig{
			URL:      getEnv("REDIS_URL", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			PoolSize: getEnvInt("REDIS_POOL_SIZE", 20),
		},
		Scylla: ScyllaConfig{
			Nodes:    getEnvList("SCYLLA_NODES", []string{"127.0.0.1"}),
			Keyspace: getEnv("SCYLLA_KEYSPACE", "balloon"),
			Username: getEnv("SCYLLA_USERNAME", ""),
			Password: getEnv("SCYLLA_PASSWORD", ""),
			Table:    getEnv("SCYLLA_TABLE", "kv"),
		},
		RateLimit: RateLimitConfig{
			RatePerMinute:        getEnvFloat("RATE_LIMIT_PER_MINUTE", 48),
			FactorIncrement:      getEnvFloat("RATE_LIMIT_FACTOR_INCREMENT", 0.01),
			FactorDecrement:      getEnvFloat("RATE_LIMIT_FACTOR_DECREMENT", 0.01),
			MinViolationFactor:   getEnvFloat("RATE_LIMIT_MIN_FACTOR", 1.0),
			MaxEffectiveInterval: getEnvDuration("RATE_LIMIT_MAX_INTERVAL", 60*time.Second),
		},
		Ingress: IngressConfig{
			Enabled:            getEnvBool("INGRESS_RATE_ENABLED", false),
			RPS:                getEnvFloat("INGRESS_RATE_RPS", 20),
			Burst:              getEnvInt("INGRESS_RATE_BURST", 40),
			TrustXForwardedFor: getEnvBool("TRUST_XFF", false),
			IdleTTL:            getEnvDuration("INGRESS_IDLE_TTL", 15*time.Minute),
			CleanupEvery:       getEnvDuration("INGRESS_CLEANUP_EVERY", 2*time.Minute),
		},
		Kafka: KafkaConfig{
			Enabled: getEnvBool("AUDIT_KAFKA_ENABLED", false),
			Brokers: getEnvList("KAFKA_BROKERS", []string{"localhost:9092"}),
			Topic:   getEnv("AUDIT_KAFKA_TOPIC", "balloon.attempts"),
		},
		Clickhouse: ClickhouseConfig{
			Enabled:  getEnvBool("AUDIT_CLICKHOUSE_ENABLED", false),
			URL:      getEnv("CLICKHOUSE_URL", "localhost:9000"),
			Username: getEnv("CLICKHOUSE_USERNAME", "default"),
			Password: getEnv("CLICKHOUSE_PASSWORD", ""),
			Database: getEnv("CLICKHOUSE_DATABASE", "default"),
			Table:    getEnv("AUDIT_CLICKHOUSE_TABLE", "balloon_attempts"),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		},
	}

	return cfg
}

// Validate reports settings that cannot work together.
func (c *Config) Validate() error {
	var errs []error

	switch c.Store.Backend {
	case StoreBackendMemory:
	case StoreBackendRedis:
		if strings.TrimSpace(c.Redis.URL) == "" {
			errs = append(errs, errors.New("REDIS_URL is required when STORE_BACKEND=redis"))
		}
	case StoreBackendScylla:
		if len(c.Scylla.Nodes) == 0 {
			errs = append(errs, errors.New("SCYLLA_NODES is required when STORE_BACKEND=scylla"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_BACKEND %q", c.Store.Backend))
	}

	if c.RateLimit.RatePerMinute <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_PER_MINUTE must be > 0"))
	}
	if c.RateLimit.MinViolationFactor < 1 {
		errs = append(errs, errors.New("RATE_LIMIT_MIN_FACTOR must be >= 1"))
	}
	if c.RateLimit.FactorIncrement < 0 || c.RateLimit.FactorDecrement < 0 {
		errs = append(errs, errors.New("rate limit factor steps must be >= 0"))
	}
	if c.RateLimit.MaxEffectiveInterval <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_MAX_INTERVAL must be > 0"))
	}
	if c.Ingress.Enabled && (c.Ingress.RPS <= 0 || c.Ingress.Burst <= 0) {
		errs = append(errs, errors.New("INGRESS_RATE_RPS and INGRESS_RATE_BURST must be > 0"))
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		errs = append(errs, errors.New("KAFKA_BROKERS is required when AUDIT_KAFKA_ENABLED=true"))
	}
	if c.Server.EnableTLS && !c.Server.AutoCert && c.IsProduction() && (c.Server.CertFile == "" || c.Server.KeyFile == "") {
		errs = append(errs, errors.New("TLS_CERT_FILE and TLS_KEY_FILE are required in production when ENABLE_TLS=true without autocert"))
	}

	return errors.Join(errs...)
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) GetServerAddress() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func getEnvFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func getEnvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func getEnvList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
