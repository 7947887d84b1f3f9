package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Debug     bool            `mapstructure:"debug"`
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Feed      FeedConfig      `mapstructure:"feed"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Security  SecurityConfig  `mapstructure:"security"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	RequestTimeout int    `mapstructure:"request_timeout"` // total request budget (seconds)
}

type DatabaseConfig struct {
	Driver          string `mapstructure:"driver"` // postgres, mysql, sqlite
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	DBName          string `mapstructure:"dbname"`
	SSLMode         string `mapstructure:"sslmode"`
	Path            string `mapstructure:"path"`              // sqlite file
	AutoMigrate     bool   `mapstructure:"auto_migrate"`      // use gorm AutoMigrate instead of SQL migrations
	MaxOpenConns    int    `mapstructure:"max_open_conns"`    // API pool
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`    // API pool
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"` // minutes
	JobMaxOpenConns int    `mapstructure:"job_max_open_conns"`
}

// CacheConfig response cache settings. An empty URL selects the in-process store.
type CacheConfig struct {
	URL       string `mapstructure:"url"`
	Prefix    string `mapstructure:"prefix"`
	ListTTL   int    `mapstructure:"list_ttl"`   // seconds
	DetailTTL int    `mapstructure:"detail_ttl"` // seconds
}

type FeedConfig struct {
	URL          string `mapstructure:"url"`
	Proxy        string `mapstructure:"proxy"`
	UserAgent    string `mapstructure:"user_agent"`
	Timeout      int    `mapstructure:"timeout"` // seconds
	SnapshotPath string `mapstructure:"snapshot_path"`
}

type SchedulerConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	FetchSpec  string `mapstructure:"fetch_spec"`
	ApplySpec  string `mapstructure:"apply_spec"`
	RunOnStart bool   `mapstructure:"run_on_start"`
}

// KafkaConfig rate change events. Publishing is disabled when Brokers is empty.
type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// JWTConfig guards the job trigger endpoints. An empty secret leaves them open.
type JWTConfig struct {
	Secret            string `mapstructure:"secret"`
	AdminUser         string `mapstructure:"admin_user"`
	AdminPasswordHash string `mapstructure:"admin_password_hash"` // bcrypt, see -hash-password
	ExpireHours       int    `mapstructure:"expire_hours"`
}

type SecurityConfig struct {
	CORSAllowOrigins  []string `mapstructure:"cors_allow_origins"`
	RateLimitAPI      float64  `mapstructure:"rate_limit_api"` // requests per second per client, 0 disables
	RateLimitAPIBurst int      `mapstructure:"rate_limit_api_burst"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`        // debug, info, warn, error
	DBLogLevel string `mapstructure:"db_log_level"` // silent, error, warn, info
	FilePath   string `mapstructure:"file_path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
}

var cfg *Config

// getExeDir returns the directory of the running binary
func getExeDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exe)
}

// Load reads .env, the yaml config file and environment overrides.
// An empty path searches the default locations and writes a default
// config file when none is found.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)
	bindEnv(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(getExeDir())
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/currency-api")

		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
			configPath := filepath.Join(getExeDir(), "config.yaml")
			if err := os.WriteFile(configPath, []byte(defaultConfig), 0644); err != nil {
				return nil, fmt.Errorf("failed to create default config: %w", err)
			}
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	c := &Config{}
	if err := v.Unmarshal(c); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	c.normalize()
	if err := c.Validate(); err != nil {
		return nil, err
	}

	cfg = c
	return c, nil
}

func Get() *Config {
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("debug", false)

	// Server
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.request_timeout", 5)

	// Database
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "127.0.0.1")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "currency")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.path", "currency.db")
	v.SetDefault("database.auto_migrate", false)
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.conn_max_lifetime", 60)
	v.SetDefault("database.job_max_open_conns", 2)

	// Cache
	v.SetDefault("cache.url", "")
	v.SetDefault("cache.prefix", "currency-api:")
	v.SetDefault("cache.list_ttl", 300)
	v.SetDefault("cache.detail_ttl", 60)

	// Feed
	v.SetDefault("feed.url", "https://cbr.ru/scripts/XML_daily.asp")
	v.SetDefault("feed.proxy", "")
	v.SetDefault("feed.user_agent", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36")
	v.SetDefault("feed.timeout", 30)
	v.SetDefault("feed.snapshot_path", "config/data.json")

	// Scheduler
	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.fetch_spec", "@every 24h")
	v.SetDefault("scheduler.apply_spec", "@every 12h")
	v.SetDefault("scheduler.run_on_start", true)

	// Kafka
	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "currency-rates")

	// JWT
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.admin_user", "admin")
	v.SetDefault("jwt.admin_password_hash", "")
	v.SetDefault("jwt.expire_hours", 24)

	// Security
	v.SetDefault("security.cors_allow_origins", []string{})
	v.SetDefault("security.rate_limit_api", 0)
	v.SetDefault("security.rate_limit_api_burst", 50)

	// Log
	v.SetDefault("log.level", "info")
	v.SetDefault("log.db_log_level", "warn")
	v.SetDefault("log.file_path", "")
	v.SetDefault("log.max_size_mb", 50)
	v.SetDefault("log.max_backups", 5)
}

// bindEnv maps the variable names used by existing deployments onto config keys.
func bindEnv(v *viper.Viper) {
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("CURRENCY_API")
	v.AutomaticEnv()

	_ = v.BindEnv("debug", "CURRENCY_API_DEBUG", "DEBUG")
	_ = v.BindEnv("security.cors_allow_origins", "CURRENCY_API_SECURITY_CORS_ALLOW_ORIGINS", "ALLOWED_ORIGINS")
	_ = v.BindEnv("log.file_path", "CURRENCY_API_LOG_FILE_PATH", "LOG_FILE_PATH")
	_ = v.BindEnv("feed.proxy", "CURRENCY_API_FEED_PROXY", "PROXY")
	_ = v.BindEnv("database.host", "CURRENCY_API_DATABASE_HOST", "POSTGRES_HOST")
	_ = v.BindEnv("database.port", "CURRENCY_API_DATABASE_PORT", "POSTGRES_PORT")
	_ = v.BindEnv("database.user", "CURRENCY_API_DATABASE_USER", "POSTGRES_USER")
	_ = v.BindEnv("database.password", "CURRENCY_API_DATABASE_PASSWORD", "POSTGRES_PASSWORD")
	_ = v.BindEnv("database.dbname", "CURRENCY_API_DATABASE_DBNAME", "POSTGRES_DB")
	_ = v.BindEnv("cache.url", "CURRENCY_API_CACHE_URL", "REDIS_URL")
	_ = v.BindEnv("kafka.brokers", "CURRENCY_API_KAFKA_BROKERS", "KAFKA_BROKERS")
}

// normalize applies derived settings after unmarshalling
func (c *Config) normalize() {
	if c.Debug {
		c.Database.Driver = "sqlite"
		c.Database.AutoMigrate = true
	}

	if c.Feed.Proxy != "" {
		proxy, ok := ValidateProxy(c.Feed.Proxy)
		if !ok {
			slog.Warn("discarding invalid proxy, expected http://user:pass@ip:port")
		}
		c.Feed.Proxy = proxy
	}
}

// Validate checks required settings
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server.port out of range: %d", c.Server.Port)
	}
	if c.Server.RequestTimeout <= 0 {
		return fmt.Errorf("config: server.request_timeout must be positive")
	}
	switch c.Database.Driver {
	case "postgres", "mysql":
		if c.Database.Host == "" || c.Database.DBName == "" {
			return fmt.Errorf("config: database.host and database.dbname are required for %s", c.Database.Driver)
		}
	case "sqlite":
		if c.Database.Path == "" {
			return fmt.Errorf("config: database.path is required for sqlite")
		}
	default:
		return fmt.Errorf("config: unsupported database.driver %q", c.Database.Driver)
	}
	if c.Cache.ListTTL < 0 || c.Cache.DetailTTL < 0 {
		return fmt.Errorf("config: cache ttl must not be negative")
	}
	if c.Feed.URL == "" {
		return fmt.Errorf("config: feed.url is required")
	}
	if c.Feed.SnapshotPath == "" {
		return fmt.Errorf("config: feed.snapshot_path is required")
	}
	if c.JWT.Secret != "" && c.JWT.ExpireHours <= 0 {
		return fmt.Errorf("config: jwt.expire_hours must be positive")
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		return fmt.Errorf("config: kafka.topic is required when brokers are set")
	}
	return nil
}

// DSN builds the driver specific connection string
func (c *DatabaseConfig) DSN() string {
	switch c.Driver {
	case "mysql":
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
			c.User, c.Password, c.Host, c.Port, c.DBName)
	case "sqlite":
		return c.Path + "?_foreign_keys=on"
	default:
		return c.URL()
	}
}

// URL returns the postgres connection URL, also used by the migrator
func (c *DatabaseConfig) URL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + c.DBName,
		RawQuery: "sslmode=" + url.QueryEscape(c.SSLMode),
	}
	return u.String()
}

const defaultConfig = `# currency-api configuration
# every key can be overridden with CURRENCY_API_<SECTION>_<KEY>

debug: false

server:
  host: "0.0.0.0"
  port: 8000
  request_timeout: 5

database:
  driver: "postgres"
  host: "127.0.0.1"
  port: 5432
  user: "postgres"
  password: "postgres"
  dbname: "currency"
  sslmode: "disable"
  max_open_conns: 20
  max_idle_conns: 10
  conn_max_lifetime: 60
  job_max_open_conns: 2

cache:
  url: ""
  prefix: "currency-api:"
  list_ttl: 300
  detail_ttl: 60

feed:
  url: "https://cbr.ru/scripts/XML_daily.asp"
  proxy: ""
  timeout: 30
  snapshot_path: "config/data.json"

scheduler:
  enabled: true
  fetch_spec: "@every 24h"
  apply_spec: "@every 12h"
  run_on_start: true

kafka:
  brokers: []
  topic: "currency-rates"

jwt:
  secret: ""
  admin_user: "admin"
  admin_password_hash: ""
  expire_hours: 24

security:
  cors_allow_origins: []
  rate_limit_api: 0
  rate_limit_api_burst: 50

log:
  level: "info"
  db_log_level: "warn"
  file_path: ""
`
