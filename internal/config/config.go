package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all runtime configuration, loaded once from the environment.
type Config struct {
	Environment string

	Server        ServerConfig
	Logging       LoggingConfig
	Auth          AuthConfig
	OTP           OTPConfig
	Redis         RedisConfig
	Cache         CacheConfig
	Scylla        ScyllaConfig
	Kafka         KafkaConfig
	Clickhouse    ClickhouseConfig
	Elasticsearch ElasticsearchConfig
	KMS           KMSConfig
	Hashing       HashingConfig
	Bucketing     BucketingConfig
	Quotes        QuotesConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	TLSPort      int
	EnableTLS    bool
	AutoCert     bool
	Domain       string
	CertFile     string
	KeyFile      string
	AutoCertDir  string
	Email        string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type LoggingConfig struct {
	Level  string
	Format string
}

type AuthConfig struct {
	// SigningSecret is used directly unless KMS is enabled, in which case
	// SigningSecretCiphertext is decrypted at boot and used instead.
	SigningSecret           string
	SigningSecretCiphertext string
	TokenTTL                time.Duration
	Issuer                  string
}

type OTPConfig struct {
	TTL           time.Duration
	SweepInterval time.Duration
}

type RedisConfig struct {
	// URL empty means no cache backend is configured; the cache layer
	// degrades to a no-op.
	URL      string
	Password string
	DB       int
	PoolSize int
}

type CacheConfig struct {
	DefaultTTL       time.Duration
	RetryAttempts    int
	RetryBackoffBase time.Duration
	RetryBackoffMax  time.Duration
}

type ScyllaConfig struct {
	Nodes    []string
	Keyspace string
	Username string
	Password string
}

type KafkaConfig struct {
	Brokers       []string
	OTPTopic      string
	ActivityTopic string
}

type ClickhouseConfig struct {
	URL           string
	Database      string
	Username      string
	Password      string
	BatchSize     int
	FlushInterval time.Duration
}

type ElasticsearchConfig struct {
	URL             string
	Username        string
	Password        string
	InstrumentIndex string
}

type KMSConfig struct {
	Enabled bool
	KeyID   string
}

type HashingConfig struct {
	Argon2MemoryCost  int
	Argon2TimeCost    int
	Argon2Parallelism int
	Pepper            string
}

type BucketingConfig struct {
	UserBuckets     int
	ActivityBuckets int
}

type QuotesConfig struct {
	Endpoint    string
	APIKey      string
	Timeout     time.Duration
	WarmSymbols []string
}

var (
	globalConfig *Config
	loadOnce     sync.Once
)

// LoadConfig reads configuration from the environment. In non-production
// environments a .env file is loaded first if present.
func LoadConfig() *Config {
	loadOnce.Do(func() {
		environment := GetEnv("ENVIRONMENT", "development")
		if environment != "production" {
			_ = godotenv.Load()
			environment = GetEnv("ENVIRONMENT", environment)
		}

		globalConfig = &Config{
			Environment: environment,
			Server: ServerConfig{
				Host:         GetEnv("SERVER_HOST", "0.0.0.0"),
				Port:         GetEnvInt("SERVER_PORT", 8080),
				TLSPort:      GetEnvInt("SERVER_TLS_PORT", 8443),
				EnableTLS:    GetEnvBool("SERVER_ENABLE_TLS", false),
				AutoCert:     GetEnvBool("SERVER_AUTOCERT", false),
				Domain:       GetEnv("SERVER_DOMAIN", "localhost"),
				CertFile:     GetEnv("SERVER_CERT_FILE", ""),
				KeyFile:      GetEnv("SERVER_KEY_FILE", ""),
				AutoCertDir:  GetEnv("SERVER_AUTOCERT_DIR", "/var/lib/finboard/autocert"),
				Email:        GetEnv("SERVER_ACME_EMAIL", ""),
				ReadTimeout:  GetEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
				WriteTimeout: GetEnvDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
				IdleTimeout:  GetEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			},
			Logging: LoggingConfig{
				Level:  GetEnv("LOG_LEVEL", "info"),
				Format: GetEnv("LOG_FORMAT", "json"),
			},
			Auth: AuthConfig{
				SigningSecret:           GetEnv("AUTH_SIGNING_SECRET", ""),
				SigningSecretCiphertext: GetEnv("AUTH_SIGNING_SECRET_CIPHERTEXT", ""),
				TokenTTL:                GetEnvDuration("AUTH_TOKEN_TTL", 24*time.Hour),
				Issuer:                  GetEnv("AUTH_ISSUER", "finboard"),
			},
			OTP: OTPConfig{
				TTL:           GetEnvDuration("OTP_TTL", 5*time.Minute),
				SweepInterval: GetEnvDuration("OTP_SWEEP_INTERVAL", time.Minute),
			},
			Redis: RedisConfig{
				URL:      GetEnv("REDIS_URL", ""),
				Password: GetEnv("REDIS_PASSWORD", ""),
				DB:       GetEnvInt("REDIS_DB", 0),
				PoolSize: GetEnvInt("REDIS_POOL_SIZE", 50),
			},
			Cache: CacheConfig{
				DefaultTTL:       GetEnvDuration("CACHE_DEFAULT_TTL", 60*time.Second),
				RetryAttempts:    GetEnvInt("CACHE_RETRY_ATTEMPTS", 3),
				RetryBackoffBase: GetEnvDuration("CACHE_RETRY_BACKOFF_BASE", 100*time.Millisecond),
				RetryBackoffMax:  GetEnvDuration("CACHE_RETRY_BACKOFF_MAX", 2*time.Second),
			},
			Scylla: ScyllaConfig{
				Nodes:    GetEnvSlice("SCYLLA_NODES", []string{"127.0.0.1:9042"}),
				Keyspace: GetEnv("SCYLLA_KEYSPACE", "finboard"),
				Username: GetEnv("SCYLLA_USERNAME", ""),
				Password: GetEnv("SCYLLA_PASSWORD", ""),
			},
			Kafka: KafkaConfig{
				Brokers:       GetEnvSlice("KAFKA_BROKERS", nil),
				OTPTopic:      GetEnv("KAFKA_OTP_TOPIC", "finboard.otp-deliveries"),
				ActivityTopic: GetEnv("KAFKA_ACTIVITY_TOPIC", "finboard.activity-events"),
			},
			Clickhouse: ClickhouseConfig{
				URL:           GetEnv("CLICKHOUSE_URL", ""),
				Database:      GetEnv("CLICKHOUSE_DATABASE", "finboard"),
				Username:      GetEnv("CLICKHOUSE_USERNAME", "default"),
				Password:      GetEnv("CLICKHOUSE_PASSWORD", ""),
				BatchSize:     GetEnvInt("CLICKHOUSE_BATCH_SIZE", 200),
				FlushInterval: GetEnvDuration("CLICKHOUSE_FLUSH_INTERVAL", 5*time.Second),
			},
			Elasticsearch: ElasticsearchConfig{
				URL:             GetEnv("ELASTICSEARCH_URL", ""),
				Username:        GetEnv("ELASTICSEARCH_USERNAME", ""),
				Password:        GetEnv("ELASTICSEARCH_PASSWORD", ""),
				InstrumentIndex: GetEnv("ELASTICSEARCH_INSTRUMENT_INDEX", "instruments"),
			},
			KMS: KMSConfig{
				Enabled: GetEnvBool("KMS_ENABLED", false),
				KeyID:   GetEnv("KMS_KEY_ID", ""),
			},
			Hashing: HashingConfig{
				Argon2MemoryCost:  GetEnvInt("HASHING_ARGON2_MEMORY_KB", 64*1024),
				Argon2TimeCost:    GetEnvInt("HASHING_ARGON2_ITERATIONS", 3),
				Argon2Parallelism: GetEnvInt("HASHING_ARGON2_PARALLELISM", 2),
				Pepper:            GetEnv("HASHING_PEPPER", ""),
			},
			Bucketing: BucketingConfig{
				UserBuckets:     GetEnvInt("BUCKETING_USER_BUCKETS", 100),
				ActivityBuckets: GetEnvInt("BUCKETING_ACTIVITY_BUCKETS", 16),
			},
			Quotes: QuotesConfig{
				Endpoint:    GetEnv("QUOTES_ENDPOINT", ""),
				APIKey:      GetEnv("QUOTES_API_KEY", ""),
				Timeout:     GetEnvDuration("QUOTES_TIMEOUT", 5*time.Second),
				WarmSymbols: GetEnvSlice("QUOTES_WARM_SYMBOLS", nil),
			},
		}
	})

	return globalConfig
}

// Get returns the loaded configuration, loading it on first use.
func Get() *Config {
	if globalConfig == nil {
		return LoadConfig()
	}
	return globalConfig
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func (c *Config) GetServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// Env helpers shared by the clients for optional one-off overrides.

func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func GetEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func GetEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func GetEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func GetEnvSlice(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
