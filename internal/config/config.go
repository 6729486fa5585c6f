package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Backend    BackendConfig    `mapstructure:"backend"`
	OpenRouter OpenRouterConfig `mapstructure:"openrouter"`
	Image      ImageConfig      `mapstructure:"image"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Cache      CacheConfig      `mapstructure:"cache"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
	Session    SessionConfig    `mapstructure:"session"`
	Speech     SpeechConfig     `mapstructure:"speech"`
	Telegram   TelegramConfig   `mapstructure:"telegram"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
	I18n       I18nConfig       `mapstructure:"i18n"`
	Knowledge  KnowledgeConfig  `mapstructure:"knowledge"`
}

type ServerConfig struct {
	Addr           string        `mapstructure:"addr"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
}

// BackendConfig points at the primary chat-completion service.
type BackendConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	BaseURL      string        `mapstructure:"base_url"`
	APIPrefix    string        `mapstructure:"api_prefix"`
	Timeout      time.Duration `mapstructure:"timeout"`
	ProbeTimeout time.Duration `mapstructure:"probe_timeout"`
}

// OpenRouterConfig configures the direct completion path used when the backend is down.
type OpenRouterConfig struct {
	BaseURL    string        `mapstructure:"base_url"`
	APIKey     string        `mapstructure:"api_key"`
	SiteURL    string        `mapstructure:"site_url"`
	SiteName   string        `mapstructure:"site_name"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRetries int           `mapstructure:"max_retries"`
}

type ImageConfig struct {
	BaseURL string `mapstructure:"base_url"`
	Width   int    `mapstructure:"width"`
	Height  int    `mapstructure:"height"`
}

type StorageConfig struct {
	Type     string         `mapstructure:"type"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Memory   MemoryConfig   `mapstructure:"memory"`
	SQLite   SQLiteConfig   `mapstructure:"sqlite"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

type MemoryConfig struct {
	DefaultExpiration time.Duration `mapstructure:"default_expiration"`
	CleanupInterval   time.Duration `mapstructure:"cleanup_interval"`
}

type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

type PostgresConfig struct {
	URL      string `mapstructure:"url"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

type CacheConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	TTL     time.Duration `mapstructure:"ttl"`
	MaxSize int           `mapstructure:"max_size"`
}

type RateLimitConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	RequestsPerMinute int  `mapstructure:"requests_per_minute"`
	Burst             int  `mapstructure:"burst"`
}

type SessionConfig struct {
	PersistDebounce  time.Duration `mapstructure:"persist_debounce"`
	MaxMessageLength int           `mapstructure:"max_message_length"`
	IdleTimeout      time.Duration `mapstructure:"idle_timeout"`
}

type SpeechConfig struct {
	Language string  `mapstructure:"language"`
	Voice    string  `mapstructure:"voice"`
	Rate     float64 `mapstructure:"rate"`
	Pitch    float64 `mapstructure:"pitch"`
}

type TelegramConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	Token         string `mapstructure:"token"`
	UpdateTimeout int    `mapstructure:"update_timeout"`
}

type LoggingConfig struct {
	Level  string     `mapstructure:"level"`
	Format string     `mapstructure:"format"`
	Output string     `mapstructure:"output"`
	File   FileConfig `mapstructure:"file"`
}

type FileConfig struct {
	Path       string `mapstructure:"path"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
}

type MonitoringConfig struct {
	Metrics MetricsConfig `mapstructure:"metrics"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

type I18nConfig struct {
	DefaultLanguage string   `mapstructure:"default_language"`
	Languages       []string `mapstructure:"languages"`
	Directory       string   `mapstructure:"directory"`
}

type KnowledgeConfig struct {
	Directory string `mapstructure:"directory"`
}

// Loader owns the viper instance so the file can be watched after the first load.
type Loader struct {
	v *viper.Viper
}

func NewLoader() *Loader {
	v := viper.New()
	setDefaults(v)
	return &Loader{v: v}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 90*time.Second)

	v.SetDefault("backend.enabled", true)
	v.SetDefault("backend.base_url", "http://localhost:8000")
	v.SetDefault("backend.api_prefix", "/api")
	v.SetDefault("backend.timeout", 60*time.Second)
	v.SetDefault("backend.probe_timeout", 3*time.Second)

	v.SetDefault("openrouter.base_url", "https://openrouter.ai/api/v1")
	v.SetDefault("openrouter.site_name", "CampusMate")
	v.SetDefault("openrouter.timeout", 30*time.Second)
	v.SetDefault("openrouter.max_retries", 3)

	v.SetDefault("image.base_url", "https://image.pollinations.ai/prompt")
	v.SetDefault("image.width", 1024)
	v.SetDefault("image.height", 1024)

	v.SetDefault("storage.type", "memory")
	v.SetDefault("storage.redis.addr", "localhost:6379")
	v.SetDefault("storage.redis.prefix", "tutor")
	v.SetDefault("storage.sqlite.path", "data/tutor.db")
	v.SetDefault("storage.postgres.max_conns", 10)
	v.SetDefault("storage.postgres.min_conns", 1)

	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.ttl", time.Hour)
	v.SetDefault("cache.max_size", 1000)

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests_per_minute", 20)
	v.SetDefault("rate_limit.burst", 5)

	v.SetDefault("session.persist_debounce", time.Second)
	v.SetDefault("session.max_message_length", 4096)
	v.SetDefault("session.idle_timeout", time.Hour)

	v.SetDefault("speech.language", "en-IN")
	v.SetDefault("speech.rate", 1.0)
	v.SetDefault("speech.pitch", 1.0)

	v.SetDefault("telegram.update_timeout", 60)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.output", "stdout")

	v.SetDefault("monitoring.metrics.enabled", true)
	v.SetDefault("monitoring.metrics.path", "/metrics")

	v.SetDefault("i18n.default_language", "en")
	v.SetDefault("i18n.languages", []string{"en"})
}

// Load reads configuration from file and environment variables.
// An empty path loads defaults and environment only.
func (l *Loader) Load(configPath string) (*Config, error) {
	v := l.v
	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.BindEnv("openrouter.api_key", "OPENROUTER_API_KEY")
	v.BindEnv("backend.base_url", "BACKEND_URL")
	v.BindEnv("telegram.token", "TELEGRAM_TOKEN")
	v.BindEnv("storage.redis.addr", "REDIS_ADDR")
	v.BindEnv("storage.redis.password", "REDIS_PASSWORD")
	v.BindEnv("storage.postgres.url", "DATABASE_URL")
	v.BindEnv("logging.level", "LOG_LEVEL")

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// Watch re-reads the config file on change and hands the new value to fn.
// Invalid edits are reported through onErr and otherwise ignored.
func (l *Loader) Watch(fn func(*Config), onErr func(error)) {
	l.v.OnConfigChange(func(e fsnotify.Event) {
		var config Config
		if err := l.v.Unmarshal(&config); err != nil {
			onErr(fmt.Errorf("reload %s: %w", e.Name, err))
			return
		}
		if err := validateConfig(&config); err != nil {
			onErr(fmt.Errorf("reload %s: %w", e.Name, err))
			return
		}
		fn(&config)
	})
	l.v.WatchConfig()
}

// LoadConfig loads configuration without watching for changes.
func LoadConfig(configPath string) (*Config, error) {
	return NewLoader().Load(configPath)
}

func validateConfig(cfg *Config) error {
	if !cfg.Backend.Enabled && cfg.OpenRouter.APIKey == "" {
		return fmt.Errorf("either backend.enabled or openrouter.api_key is required")
	}
	if cfg.Telegram.Enabled && cfg.Telegram.Token == "" {
		return fmt.Errorf("telegram token is required when telegram is enabled")
	}
	switch cfg.Storage.Type {
	case "memory", "redis", "sqlite":
	case "postgres":
		if cfg.Storage.Postgres.URL == "" {
			return fmt.Errorf("storage.postgres.url is required for postgres storage")
		}
	default:
		return fmt.Errorf("unknown storage type %q", cfg.Storage.Type)
	}
	if cfg.Session.PersistDebounce < 0 {
		return fmt.Errorf("session.persist_debounce must not be negative")
	}
	return nil
}
