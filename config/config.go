package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config stores the application configuration.
// Defaults are applied first, then the optional YAML file, then environment variables.
type Config struct {
	HTTPPort string `yaml:"http_port"`

	// 日志配置
	LogLevel      string `yaml:"log_level"`
	LogFile       string `yaml:"log_file"`
	LogMaxSizeMB  int    `yaml:"log_max_size_mb"`
	LogMaxBackups int    `yaml:"log_max_backups"`
	LogMaxAgeDays int    `yaml:"log_max_age_days"`

	// 数据库配置
	DBHost     string `yaml:"db_host"`
	DBPort     string `yaml:"db_port"`
	DBUser     string `yaml:"db_user"`
	DBPassword string `yaml:"-"`
	DBName     string `yaml:"db_name"`

	// Redis配置
	RedisHost     string `yaml:"redis_host"`
	RedisPort     string `yaml:"redis_port"`
	RedisPassword string `yaml:"-"`
	RedisDB       int    `yaml:"redis_db"`

	Cache    CacheConfig    `yaml:"cache"`
	Index    IndexConfig    `yaml:"index"`
	Resolver ResolverConfig `yaml:"resolver"`
	Payment  PaymentConfig  `yaml:"payment"`
}

// CacheConfig 解析缓存配置
type CacheConfig struct {
	// Backend is one of "memory", "redis" or "database".
	Backend     string        `yaml:"backend"`
	ItemTTL     time.Duration `yaml:"item_ttl"`
	PlaylistTTL time.Duration `yaml:"playlist_ttl"`
}

// IndexConfig Podcast Index API 配置
type IndexConfig struct {
	BaseURL     string        `yaml:"base_url"`
	APIKey      string        `yaml:"-"`
	APISecret   string        `yaml:"-"`
	UserAgent   string        `yaml:"user_agent"`
	Timeout     time.Duration `yaml:"timeout"`
	MinInterval time.Duration `yaml:"min_interval"`
	RetryDelay  time.Duration `yaml:"retry_delay"`
}

// ResolverConfig 远程条目解析配置
type ResolverConfig struct {
	FeedTimeout      time.Duration `yaml:"feed_timeout"`
	ItemTimeout      time.Duration `yaml:"item_timeout"`
	Concurrency      int           `yaml:"concurrency"`
	InterBatchDelay  time.Duration `yaml:"inter_batch_delay"`
	FeedURLTemplates []string      `yaml:"feed_url_templates"`
}

// PaymentConfig 支付配置
type PaymentConfig struct {
	PlatformFeePercent float64       `yaml:"platform_fee_percent"`
	PlatformFeeName    string        `yaml:"platform_fee_name"`
	PlatformFeeType    string        `yaml:"platform_fee_type"`
	PlatformFeeAddress string        `yaml:"platform_fee_address"`
	InvoiceTimeout     time.Duration `yaml:"invoice_timeout"`
	KafkaBrokers       string        `yaml:"kafka_brokers"`
	KafkaTopic         string        `yaml:"kafka_topic"`
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvInt gets an environment variable as int or returns a default value.
func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return fallback
}

// getEnvDuration accepts Go duration strings ("45m", "500ms").
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		HTTPPort:      "8080",
		LogLevel:      "info",
		LogMaxSizeMB:  100,
		LogMaxBackups: 5,
		LogMaxAgeDays: 30,
		DBHost:        "127.0.0.1",
		DBPort:        "3306",
		DBUser:        "root",
		DBName:        "v4v",
		RedisHost:     "127.0.0.1",
		RedisPort:     "6379",
		Cache: CacheConfig{
			Backend:     "memory",
			ItemTTL:     45 * time.Minute,
			PlaylistTTL: 30 * time.Minute,
		},
		Index: IndexConfig{
			BaseURL:     "https://api.podcastindex.org/api/1.0",
			UserAgent:   "v4vfm/1.0",
			Timeout:     12 * time.Second,
			MinInterval: 250 * time.Millisecond,
			RetryDelay:  2 * time.Second,
		},
		Resolver: ResolverConfig{
			FeedTimeout:      12 * time.Second,
			ItemTimeout:      30 * time.Second,
			Concurrency:      8,
			InterBatchDelay:  500 * time.Millisecond,
			FeedURLTemplates: []string{"https://wavlake.com/feed/music/{feedGuid}"},
		},
		Payment: PaymentConfig{
			PlatformFeeName: "Platform Fee",
			PlatformFeeType: "node",
			InvoiceTimeout:  15 * time.Second,
			KafkaTopic:      "v4v.payments",
		},
	}
}

// Load loads configuration from environment variables (via .env file) or defaults.
func Load() *Config {
	// godotenv.Load() will not override existing env vars.
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found or error loading .env, relying on existing environment variables and defaults.")
	}
	cfg := Default()
	applyEnv(cfg)
	return cfg
}

// LoadFile loads the YAML file at path on top of the defaults, then applies
// environment overrides. An empty path behaves like Load.
func LoadFile(path string) (*Config, error) {
	if path == "" {
		return Load(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	_ = godotenv.Load()
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}
	applyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	switch c.Cache.Backend {
	case "memory", "redis", "database":
	default:
		return fmt.Errorf("unknown cache backend %q", c.Cache.Backend)
	}
	if c.Payment.PlatformFeePercent < 0 || c.Payment.PlatformFeePercent > 100 {
		return fmt.Errorf("platform fee percent must be within 0..100, got %v", c.Payment.PlatformFeePercent)
	}
	if c.Resolver.Concurrency <= 0 {
		return fmt.Errorf("resolver concurrency must be positive, got %d", c.Resolver.Concurrency)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.HTTPPort = getEnv("HTTP_PORT", cfg.HTTPPort)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFile = getEnv("LOG_FILE", cfg.LogFile)

	cfg.DBHost = getEnv("DB_HOST", cfg.DBHost)
	cfg.DBPort = getEnv("DB_PORT", cfg.DBPort)
	cfg.DBUser = getEnv("DB_USER", cfg.DBUser)
	cfg.DBPassword = getEnv("DB_PASSWORD", cfg.DBPassword) // no default for passwords
	cfg.DBName = getEnv("DB_NAME", cfg.DBName)

	cfg.RedisHost = getEnv("REDIS_HOST", cfg.RedisHost)
	cfg.RedisPort = getEnv("REDIS_PORT", cfg.RedisPort)
	cfg.RedisPassword = getEnv("REDIS_PASSWORD", cfg.RedisPassword)
	cfg.RedisDB = getEnvInt("REDIS_DB", cfg.RedisDB)

	cfg.Cache.Backend = getEnv("CACHE_BACKEND", cfg.Cache.Backend)
	cfg.Cache.ItemTTL = getEnvDuration("CACHE_ITEM_TTL", cfg.Cache.ItemTTL)
	cfg.Cache.PlaylistTTL = getEnvDuration("CACHE_PLAYLIST_TTL", cfg.Cache.PlaylistTTL)

	cfg.Index.BaseURL = getEnv("PODCAST_INDEX_BASE_URL", cfg.Index.BaseURL)
	cfg.Index.APIKey = getEnv("PODCAST_INDEX_API_KEY", cfg.Index.APIKey)
	cfg.Index.APISecret = getEnv("PODCAST_INDEX_API_SECRET", cfg.Index.APISecret)
	cfg.Index.Timeout = getEnvDuration("PODCAST_INDEX_TIMEOUT", cfg.Index.Timeout)
	cfg.Index.MinInterval = getEnvDuration("PODCAST_INDEX_MIN_INTERVAL", cfg.Index.MinInterval)
	cfg.Index.RetryDelay = getEnvDuration("PODCAST_INDEX_RETRY_DELAY", cfg.Index.RetryDelay)

	cfg.Resolver.FeedTimeout = getEnvDuration("FEED_FETCH_TIMEOUT", cfg.Resolver.FeedTimeout)
	cfg.Resolver.ItemTimeout = getEnvDuration("RESOLVE_ITEM_TIMEOUT", cfg.Resolver.ItemTimeout)
	cfg.Resolver.Concurrency = getEnvInt("RESOLVE_CONCURRENCY", cfg.Resolver.Concurrency)
	cfg.Resolver.InterBatchDelay = getEnvDuration("RESOLVE_INTER_BATCH_DELAY", cfg.Resolver.InterBatchDelay)
	cfg.Resolver.FeedURLTemplates = getEnvList("FEED_URL_TEMPLATES", cfg.Resolver.FeedURLTemplates)

	cfg.Payment.PlatformFeePercent = getEnvFloat("PLATFORM_FEE_PERCENT", cfg.Payment.PlatformFeePercent)
	cfg.Payment.PlatformFeeName = getEnv("PLATFORM_FEE_NAME", cfg.Payment.PlatformFeeName)
	cfg.Payment.PlatformFeeType = getEnv("PLATFORM_FEE_TYPE", cfg.Payment.PlatformFeeType)
	cfg.Payment.PlatformFeeAddress = getEnv("PLATFORM_FEE_ADDRESS", cfg.Payment.PlatformFeeAddress)
	cfg.Payment.InvoiceTimeout = getEnvDuration("LNURL_INVOICE_TIMEOUT", cfg.Payment.InvoiceTimeout)
	cfg.Payment.KafkaBrokers = getEnv("KAFKA_BROKERS", cfg.Payment.KafkaBrokers)
	cfg.Payment.KafkaTopic = getEnv("KAFKA_PAYMENT_TOPIC", cfg.Payment.KafkaTopic)
}
