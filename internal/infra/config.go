package infra

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config — корневая структура конфигурации релея и клиента.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Upstream  UpstreamConfig  `mapstructure:"upstream"`
	Engine    EngineConfig    `mapstructure:"engine"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Media     MediaConfig     `mapstructure:"media"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Logger    LoggerConfig    `mapstructure:"logger"`
	Dashboard DashboardConfig `mapstructure:"dashboard"`
	Twin      TwinConfig      `mapstructure:"twin"`
}

// ServerConfig описывает настройки HTTP-сервера релея.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// MetricsConfig — отдельный листенер для Prometheus.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"` // пусто — метрики не публикуются
}

// UpstreamConfig — адреса внешних сервисов.
type UpstreamConfig struct {
	ScoreURL  string        `mapstructure:"score_url"`  // Remote Score Service
	LedgerURL string        `mapstructure:"ledger_url"` // Remote Ledger Service
	Timeout   time.Duration `mapstructure:"timeout"`
}

// EngineConfig — надежность исходящих вызовов.
type EngineConfig struct {
	RateLimit float64 `mapstructure:"rate_limit"` // запросов в секунду на апстрим
	RateBurst int     `mapstructure:"rate_burst"`

	// Настройки Circuit Breaker для внешних сервисов
	CBMaxRequests  uint32        `mapstructure:"cb_max_requests"`
	CBInterval     time.Duration `mapstructure:"cb_interval"`
	CBTimeout      time.Duration `mapstructure:"cb_timeout"`
	CBMaxFailures  uint32        `mapstructure:"cb_max_failures"`
	RetryAttempts  uint          `mapstructure:"retry_attempts"` // только для идемпотентных чтений
	InflightTTL    time.Duration `mapstructure:"inflight_ttl"`
	JournalBuffer  int           `mapstructure:"journal_buffer"`
	JournalBatch   int           `mapstructure:"journal_batch"`
	JournalFlushIn time.Duration `mapstructure:"journal_flush_interval"`
}

// RedisConfig описывает подключение к Redis (in-flight блокировки, Pub/Sub, клиентский кэш).
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// DatabaseConfig — PostgreSQL для журнала вызовов. Пустой URL отключает журнал в БД.
type DatabaseConfig struct {
	URL      string `mapstructure:"url"`
	MaxConns int    `mapstructure:"max_conns"`
}

// MediaConfig — объектное хранилище для фото блюд и селфи.
type MediaConfig struct {
	Bucket     string        `mapstructure:"bucket"` // пусто — /media/presign не монтируется
	Region     string        `mapstructure:"region"`
	Endpoint   string        `mapstructure:"endpoint"` // например, http://localstack:4566
	KeyPrefix  string        `mapstructure:"key_prefix"`
	PresignTTL time.Duration `mapstructure:"presign_ttl"`
}

// AuthConfig — опциональная проверка RS256 токенов на маршрутах релея.
type AuthConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	PublicKeyPath string `mapstructure:"public_key_path"`
	Issuer        string `mapstructure:"issuer"` // пусто — iss не проверяется
	PublicKey     []byte
}

// LoggerConfig настраивает поведение zap логгера.
type LoggerConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, console
}

// DashboardConfig — настройки CLI клиента.
type DashboardConfig struct {
	RelayURL  string        `mapstructure:"relay_url"`
	Store     string        `mapstructure:"store"` // file, redis
	StorePath string        `mapstructure:"store_path"`
	Timeout   time.Duration `mapstructure:"timeout"`
	Token     string        `mapstructure:"token"` // Bearer для релея с auth.enabled
}

// TwinConfig — локальный двойник внешних сервисов для разработки.
type TwinConfig struct {
	Addr string `mapstructure:"addr"`
}

// LoadConfig инициализирует конфигурацию, объединяя значения из файла и ENV.
func LoadConfig() (*Config, error) {
	v := viper.New()

	// 1. Настройка поиска файла
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")

	// 2. ENV перекрывает файл: SERVER_PORT=9000 перекроет server.port
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// 3. Дефолты
	setDefaults(v)

	// 4. Чтение файла
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Если файла нет — работаем на ENV и дефолтах
	}

	return decode(v)
}

// LoadConfigFile читает конфигурацию из явно указанного файла (флаг --config у CLI).
func LoadConfigFile(path string) (*Config, error) {
	if path == "" {
		return LoadConfig()
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}
	return decode(v)
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	// PEM-ключ может лежать прямо в ENV (Docker/K8s), иначе читаем файл
	cfg.Auth.PublicKey = loadKeyResource(cfg.Auth.PublicKeyPath, "AUTH_PUBLIC_KEY_DATA")

	if cfg.Upstream.ScoreURL == "" || cfg.Upstream.LedgerURL == "" {
		return nil, errors.New("upstream.score_url and upstream.ledger_url are required")
	}
	if cfg.Auth.Enabled && len(cfg.Auth.PublicKey) == 0 {
		return nil, errors.New("auth.enabled requires a public key")
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.read_timeout", 5*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 5*time.Second)

	v.SetDefault("metrics.addr", ":9090")

	v.SetDefault("upstream.score_url", "http://localhost:8090/score")
	v.SetDefault("upstream.ledger_url", "http://localhost:8090/ledger")
	v.SetDefault("upstream.timeout", 10*time.Second)

	v.SetDefault("engine.rate_limit", 100.0)
	v.SetDefault("engine.rate_burst", 20)
	v.SetDefault("engine.cb_max_requests", 3)
	v.SetDefault("engine.cb_interval", 5*time.Second)
	v.SetDefault("engine.cb_timeout", 30*time.Second)
	v.SetDefault("engine.cb_max_failures", 5)
	v.SetDefault("engine.retry_attempts", 3)
	v.SetDefault("engine.inflight_ttl", 30*time.Second)
	v.SetDefault("engine.journal_buffer", 10000)
	v.SetDefault("engine.journal_batch", 100)
	v.SetDefault("engine.journal_flush_interval", 500*time.Millisecond)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("database.url", "")
	v.SetDefault("database.max_conns", 10)

	v.SetDefault("media.bucket", "")
	v.SetDefault("media.endpoint", "")
	v.SetDefault("media.region", "us-east-1")
	v.SetDefault("media.key_prefix", "food_uploads/")
	v.SetDefault("media.presign_ttl", 5*time.Minute)

	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.public_key_path", "")
	v.SetDefault("auth.issuer", "")

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")

	v.SetDefault("dashboard.relay_url", "http://localhost:3000")
	v.SetDefault("dashboard.store", "file")
	v.SetDefault("dashboard.store_path", "vitalpolicy-store.json")
	v.SetDefault("dashboard.timeout", 15*time.Second)
	v.SetDefault("dashboard.token", "")

	v.SetDefault("twin.addr", ":8090")
}

// loadKeyResource — ключ из ENV (PEM) или из файла по пути из конфига
func loadKeyResource(path string, envDataKey string) []byte {
	if data := os.Getenv(envDataKey); data != "" {
		return []byte(data)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			return data
		}
	}
	return nil
}
