package app

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// StorageDriver выбирает реализацию хранилища.
type StorageDriver string

const (
	StorageDriverMemory   StorageDriver = "memory"
	StorageDriverPostgres StorageDriver = "postgres"
)

// EnvPrefix — префикс переменных окружения сервиса (SHOP_HTTP_ADDR и т.д.).
const EnvPrefix = "SHOP"

// Config описывает настройки запуска приложения.
type Config struct {
	HTTPAddr       string
	GRPCAddr       string
	MetricsAddr    string
	PublicBaseURL  string
	AllowedOrigins []string
	RequestTimeout time.Duration
	LogLevel       string

	StorageDriver       StorageDriver
	PostgresDSN         string
	PostgresAutoMigrate bool

	KafkaBrokers  []string
	KafkaClientID string
	KafkaTopic    string
	KafkaDLQTopic string

	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxMaxAttempts  int
	OutboxRetryDelay   time.Duration
	OutboxMaxPending   int
	OutboxMaxAge       time.Duration

	IdempotencyTTL              time.Duration
	IdempotencyCleanupInterval  time.Duration
	IdempotencyCleanupBatchSize int

	TracingEndpoint    string
	TracingInsecure    bool
	TracingSampleRatio float64
}

// DefaultConfig возвращает настройки для локального запуска без внешних зависимостей.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:       ":8080",
		GRPCAddr:       ":50051",
		MetricsAddr:    ":9090",
		PublicBaseURL:  "http://localhost:8080",
		AllowedOrigins: []string{"*"},
		RequestTimeout: 15 * time.Second,
		LogLevel:       "info",

		StorageDriver:       StorageDriverMemory,
		PostgresAutoMigrate: true,

		KafkaClientID: "shop-service",
		KafkaTopic:    "shop.order.events",
		KafkaDLQTopic: "shop.dlq",

		OutboxPollInterval: time.Second,
		OutboxBatchSize:    100,
		OutboxMaxAttempts:  3,
		OutboxRetryDelay:   50 * time.Millisecond,
		OutboxMaxPending:   1000,
		OutboxMaxAge:       5 * time.Minute,

		IdempotencyTTL:              24 * time.Hour,
		IdempotencyCleanupInterval:  10 * time.Minute,
		IdempotencyCleanupBatchSize: 500,

		TracingInsecure:    true,
		TracingSampleRatio: 1,
	}
}

// LoadConfig собирает конфигурацию: значения по умолчанию, затем YAML-файл (если path не пуст),
// затем переменные SHOP_*. Перед чтением окружения подхватывается .env из рабочего каталога.
func LoadConfig(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, DefaultConfig())

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := Config{
		HTTPAddr:       v.GetString("http_addr"),
		GRPCAddr:       v.GetString("grpc_addr"),
		MetricsAddr:    v.GetString("metrics_addr"),
		PublicBaseURL:  strings.TrimRight(strings.TrimSpace(v.GetString("public_base_url")), "/"),
		AllowedOrigins: stringList(v, "allowed_origins"),
		RequestTimeout: v.GetDuration("request_timeout"),
		LogLevel:       strings.ToLower(strings.TrimSpace(v.GetString("log_level"))),

		StorageDriver:       StorageDriver(strings.ToLower(strings.TrimSpace(v.GetString("storage_driver")))),
		PostgresDSN:         strings.TrimSpace(v.GetString("postgres_dsn")),
		PostgresAutoMigrate: v.GetBool("postgres_auto_migrate"),

		KafkaBrokers:  stringList(v, "kafka_brokers"),
		KafkaClientID: v.GetString("kafka_client_id"),
		KafkaTopic:    v.GetString("kafka_topic"),
		KafkaDLQTopic: v.GetString("kafka_dlq_topic"),

		OutboxPollInterval: v.GetDuration("outbox_poll_interval"),
		OutboxBatchSize:    v.GetInt("outbox_batch_size"),
		OutboxMaxAttempts:  v.GetInt("outbox_max_attempts"),
		OutboxRetryDelay:   v.GetDuration("outbox_retry_delay"),
		OutboxMaxPending:   v.GetInt("outbox_max_pending"),
		OutboxMaxAge:       v.GetDuration("outbox_max_age"),

		IdempotencyTTL:              v.GetDuration("idempotency_ttl"),
		IdempotencyCleanupInterval:  v.GetDuration("idempotency_cleanup_interval"),
		IdempotencyCleanupBatchSize: v.GetInt("idempotency_cleanup_batch_size"),

		TracingEndpoint:    strings.TrimSpace(v.GetString("tracing_endpoint")),
		TracingInsecure:    v.GetBool("tracing_insecure"),
		TracingSampleRatio: v.GetFloat64("tracing_sample_ratio"),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, cfg Config) {
	v.SetDefault("http_addr", cfg.HTTPAddr)
	v.SetDefault("grpc_addr", cfg.GRPCAddr)
	v.SetDefault("metrics_addr", cfg.MetricsAddr)
	v.SetDefault("public_base_url", cfg.PublicBaseURL)
	v.SetDefault("allowed_origins", strings.Join(cfg.AllowedOrigins, ","))
	v.SetDefault("request_timeout", cfg.RequestTimeout)
	v.SetDefault("log_level", cfg.LogLevel)
	v.SetDefault("storage_driver", string(cfg.StorageDriver))
	v.SetDefault("postgres_dsn", cfg.PostgresDSN)
	v.SetDefault("postgres_auto_migrate", cfg.PostgresAutoMigrate)
	v.SetDefault("kafka_brokers", "")
	v.SetDefault("kafka_client_id", cfg.KafkaClientID)
	v.SetDefault("kafka_topic", cfg.KafkaTopic)
	v.SetDefault("kafka_dlq_topic", cfg.KafkaDLQTopic)
	v.SetDefault("outbox_poll_interval", cfg.OutboxPollInterval)
	v.SetDefault("outbox_batch_size", cfg.OutboxBatchSize)
	v.SetDefault("outbox_max_attempts", cfg.OutboxMaxAttempts)
	v.SetDefault("outbox_retry_delay", cfg.OutboxRetryDelay)
	v.SetDefault("outbox_max_pending", cfg.OutboxMaxPending)
	v.SetDefault("outbox_max_age", cfg.OutboxMaxAge)
	v.SetDefault("idempotency_ttl", cfg.IdempotencyTTL)
	v.SetDefault("idempotency_cleanup_interval", cfg.IdempotencyCleanupInterval)
	v.SetDefault("idempotency_cleanup_batch_size", cfg.IdempotencyCleanupBatchSize)
	v.SetDefault("tracing_endpoint", cfg.TracingEndpoint)
	v.SetDefault("tracing_insecure", cfg.TracingInsecure)
	v.SetDefault("tracing_sample_ratio", cfg.TracingSampleRatio)
}

// stringList принимает и YAML-список, и строку через запятую из окружения.
func stringList(v *viper.Viper, key string) []string {
	raw, ok := v.Get(key).(string)
	if !ok {
		return splitList(strings.Join(v.GetStringSlice(key), ","))
	}
	return splitList(raw)
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate проверяет согласованность настроек.
func (c Config) Validate() error {
	var errs []error

	switch c.StorageDriver {
	case StorageDriverMemory:
	case StorageDriverPostgres:
		if c.PostgresDSN == "" {
			errs = append(errs, fmt.Errorf("postgres_dsn is required for storage driver %q", c.StorageDriver))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported storage driver %q", c.StorageDriver))
	}

	if c.HTTPAddr == "" {
		errs = append(errs, errors.New("http_addr is required"))
	}
	if u, err := url.Parse(c.PublicBaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("public_base_url %q must be an absolute http(s) URL", c.PublicBaseURL))
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log_level: %w", err))
	}
	if c.RequestTimeout <= 0 {
		errs = append(errs, errors.New("request_timeout must be > 0"))
	}
	if c.OutboxPollInterval <= 0 {
		errs = append(errs, errors.New("outbox_poll_interval must be > 0"))
	}
	if c.OutboxBatchSize <= 0 {
		errs = append(errs, errors.New("outbox_batch_size must be > 0"))
	}
	if c.OutboxMaxAttempts <= 0 {
		errs = append(errs, errors.New("outbox_max_attempts must be > 0"))
	}
	if c.OutboxRetryDelay < 0 {
		errs = append(errs, errors.New("outbox_retry_delay must be >= 0"))
	}
	if c.OutboxMaxPending < 0 {
		errs = append(errs, errors.New("outbox_max_pending must be >= 0"))
	}
	if c.IdempotencyTTL <= 0 {
		errs = append(errs, errors.New("idempotency_ttl must be > 0"))
	}
	if c.IdempotencyCleanupInterval <= 0 {
		errs = append(errs, errors.New("idempotency_cleanup_interval must be > 0"))
	}
	if c.IdempotencyCleanupBatchSize <= 0 {
		errs = append(errs, errors.New("idempotency_cleanup_batch_size must be > 0"))
	}
	if c.TracingSampleRatio < 0 || c.TracingSampleRatio > 1 {
		errs = append(errs, errors.New("tracing_sample_ratio must be within [0, 1]"))
	}
	if len(c.KafkaBrokers) > 0 && c.KafkaTopic == "" {
		errs = append(errs, errors.New("kafka_topic is required when kafka_brokers is set"))
	}

	return errors.Join(errs...)
}
