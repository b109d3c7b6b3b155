package app

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	StorageDriverMemory   = "memory"
	StorageDriverPostgres = "postgres"

	envPrefix = "OMS"
)

// Ключи конфигурации. Переменная окружения — OMS_<КЛЮЧ> в верхнем регистре.
const (
	keyGRPCAddr                    = "grpc_addr"
	keyHTTPAddr                    = "http_addr"
	keyMetricsAddr                 = "metrics_addr"
	keyLogLevel                    = "log_level"
	keyStorageDriver               = "storage_driver"
	keyPostgresDSN                 = "postgres_dsn"
	keyPostgresAutoMigrate         = "postgres_auto_migrate"
	keyUserServiceURL              = "user_service_url"
	keyUserServiceTimeout          = "user_service_timeout"
	keyBreakerErrorThreshold       = "breaker_error_threshold"
	keyBreakerSuccessThreshold     = "breaker_success_threshold"
	keyBreakerOpenTimeout          = "breaker_open_timeout"
	keyEnrichmentConcurrency       = "enrichment_concurrency"
	keyJaegerEndpoint              = "jaeger_endpoint"
	keyCORSAllowedOrigins          = "cors_allowed_origins"
	keyIdempotencyTTL              = "idempotency_ttl"
	keyIdempotencyCleanupInterval  = "idempotency_cleanup_interval"
	keyIdempotencyCleanupBatchSize = "idempotency_cleanup_batch_size"
)

// Config описывает настройки запуска приложения.
type Config struct {
	GRPCAddr    string
	HTTPAddr    string
	MetricsAddr string
	LogLevel    string

	StorageDriver       string
	PostgresDSN         string
	PostgresAutoMigrate bool

	// UserServiceURL пустой — используется встроенная заглушка справочника.
	UserServiceURL          string
	UserServiceTimeout      time.Duration
	BreakerErrorThreshold   int
	BreakerSuccessThreshold int
	BreakerOpenTimeout      time.Duration

	EnrichmentConcurrency int
	JaegerEndpoint        string
	CORSAllowedOrigins    []string

	IdempotencyTTL              time.Duration
	IdempotencyCleanupInterval  time.Duration
	IdempotencyCleanupBatchSize int
}

// DefaultConfig возвращает настройки для локального запуска на памяти.
func DefaultConfig() Config {
	return Config{
		GRPCAddr:    ":50051",
		HTTPAddr:    ":8080",
		MetricsAddr: ":9090",
		LogLevel:    "info",

		StorageDriver:       StorageDriverMemory,
		PostgresAutoMigrate: true,

		UserServiceTimeout:      2 * time.Second,
		BreakerErrorThreshold:   5,
		BreakerSuccessThreshold: 2,
		BreakerOpenTimeout:      10 * time.Second,

		EnrichmentConcurrency: 8,
		CORSAllowedOrigins:    []string{"*"},

		IdempotencyTTL:              24 * time.Hour,
		IdempotencyCleanupInterval:  10 * time.Minute,
		IdempotencyCleanupBatchSize: 500,
	}
}

// LoadConfig собирает конфигурацию: значения по умолчанию, затем config.yaml
// (или файл configFile), затем переменные окружения OMS_*. Файл .env в
// рабочем каталоге, если есть, загружается в окружение до чтения.
func LoadConfig(configFile string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	setDefaults(v, DefaultConfig())

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", configFile, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/ordersvc")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := Config{
		GRPCAddr:    v.GetString(keyGRPCAddr),
		HTTPAddr:    v.GetString(keyHTTPAddr),
		MetricsAddr: v.GetString(keyMetricsAddr),
		LogLevel:    v.GetString(keyLogLevel),

		StorageDriver:       strings.ToLower(strings.TrimSpace(v.GetString(keyStorageDriver))),
		PostgresDSN:         strings.TrimSpace(v.GetString(keyPostgresDSN)),
		PostgresAutoMigrate: v.GetBool(keyPostgresAutoMigrate),

		UserServiceURL:          strings.TrimSpace(v.GetString(keyUserServiceURL)),
		UserServiceTimeout:      v.GetDuration(keyUserServiceTimeout),
		BreakerErrorThreshold:   v.GetInt(keyBreakerErrorThreshold),
		BreakerSuccessThreshold: v.GetInt(keyBreakerSuccessThreshold),
		BreakerOpenTimeout:      v.GetDuration(keyBreakerOpenTimeout),

		EnrichmentConcurrency: v.GetInt(keyEnrichmentConcurrency),
		JaegerEndpoint:        strings.TrimSpace(v.GetString(keyJaegerEndpoint)),
		CORSAllowedOrigins:    stringList(v, keyCORSAllowedOrigins),

		IdempotencyTTL:              v.GetDuration(keyIdempotencyTTL),
		IdempotencyCleanupInterval:  v.GetDuration(keyIdempotencyCleanupInterval),
		IdempotencyCleanupBatchSize: v.GetInt(keyIdempotencyCleanupBatchSize),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, def Config) {
	v.SetDefault(keyGRPCAddr, def.GRPCAddr)
	v.SetDefault(keyHTTPAddr, def.HTTPAddr)
	v.SetDefault(keyMetricsAddr, def.MetricsAddr)
	v.SetDefault(keyLogLevel, def.LogLevel)
	v.SetDefault(keyStorageDriver, def.StorageDriver)
	v.SetDefault(keyPostgresDSN, def.PostgresDSN)
	v.SetDefault(keyPostgresAutoMigrate, def.PostgresAutoMigrate)
	v.SetDefault(keyUserServiceURL, def.UserServiceURL)
	v.SetDefault(keyUserServiceTimeout, def.UserServiceTimeout)
	v.SetDefault(keyBreakerErrorThreshold, def.BreakerErrorThreshold)
	v.SetDefault(keyBreakerSuccessThreshold, def.BreakerSuccessThreshold)
	v.SetDefault(keyBreakerOpenTimeout, def.BreakerOpenTimeout)
	v.SetDefault(keyEnrichmentConcurrency, def.EnrichmentConcurrency)
	v.SetDefault(keyJaegerEndpoint, def.JaegerEndpoint)
	v.SetDefault(keyCORSAllowedOrigins, def.CORSAllowedOrigins)
	v.SetDefault(keyIdempotencyTTL, def.IdempotencyTTL)
	v.SetDefault(keyIdempotencyCleanupInterval, def.IdempotencyCleanupInterval)
	v.SetDefault(keyIdempotencyCleanupBatchSize, def.IdempotencyCleanupBatchSize)
}

// stringList принимает как YAML-список, так и строку "a,b" из окружения.
func stringList(v *viper.Viper, key string) []string {
	raw, ok := v.Get(key).(string)
	if !ok {
		return v.GetStringSlice(key)
	}

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
			errs = append(errs, errors.New("postgres storage requires OMS_POSTGRES_DSN"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported storage driver %q", c.StorageDriver))
	}

	if c.GRPCAddr == "" || c.HTTPAddr == "" || c.MetricsAddr == "" {
		errs = append(errs, errors.New("grpc, http and metrics addresses are required"))
	}
	if c.UserServiceTimeout <= 0 {
		errs = append(errs, errors.New("user service timeout must be positive"))
	}
	if c.BreakerErrorThreshold <= 0 || c.BreakerSuccessThreshold <= 0 || c.BreakerOpenTimeout <= 0 {
		errs = append(errs, errors.New("breaker thresholds and open timeout must be positive"))
	}
	if c.EnrichmentConcurrency <= 0 {
		errs = append(errs, errors.New("enrichment concurrency must be positive"))
	}
	if c.IdempotencyTTL <= 0 || c.IdempotencyCleanupInterval <= 0 || c.IdempotencyCleanupBatchSize <= 0 {
		errs = append(errs, errors.New("idempotency ttl, cleanup interval and batch size must be positive"))
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
