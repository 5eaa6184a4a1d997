// Package config 提供配置管理
//
// 加载顺序：内置默认值 -> .env 文件 -> LOADPLAN_CONFIG 指向的 YAML 文件 -> 环境变量。
// 后面的来源覆盖前面的来源。
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/paiban/loadplan/pkg/model"
)

// 快照存储驱动
const (
	DriverMemory   = "memory"
	DriverFile     = "file"
	DriverPostgres = "postgres"
)

// Config 应用配置
type Config struct {
	App      AppConfig      `yaml:"app"`
	Store    StoreConfig    `yaml:"store"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	API      APIConfig      `yaml:"api"`
	Ledger   LedgerConfig   `yaml:"ledger"`
	Planner  PlannerConfig  `yaml:"planner"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Trailer  TrailerConfig  `yaml:"trailer"`
}

// AppConfig 应用基础配置
type AppConfig struct {
	Name      string `yaml:"name"`
	Env       string `yaml:"env"`
	Port      int    `yaml:"port"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"` // json/console
	Version   string `yaml:"version"`
}

// StoreConfig 状态存储配置
type StoreConfig struct {
	Driver         string        `yaml:"driver"` // memory/file/postgres
	Path           string        `yaml:"path"`
	OrgID          string        `yaml:"org_id"`
	PersistRetries int           `yaml:"persist_retries"`
	RetryBackoff   time.Duration `yaml:"retry_backoff"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	URL             string        `yaml:"url"` // 设置时优先于分字段配置
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Name            string        `yaml:"name"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"ssl_mode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// DSN 返回数据库连接字符串
func (c *DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// RedisConfig Redis配置
type RedisConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Host          string `yaml:"host"`
	Port          int    `yaml:"port"`
	Password      string `yaml:"password"`
	DB            int    `yaml:"db"`
	PoolSize      int    `yaml:"pool_size"`
	ChannelPrefix string `yaml:"channel_prefix"`
}

// Addr 返回Redis地址
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// APIConfig API配置
type APIConfig struct {
	RateLimit      float64       `yaml:"rate_limit"` // 每个客户端每秒请求数
	Burst          int           `yaml:"burst"`
	Timeout        time.Duration `yaml:"timeout"`
	MaxUploadBytes int64         `yaml:"max_upload_bytes"`
	APIKeys        []string      `yaml:"api_keys"` // 为空时不校验
	CORS           CORSConfig    `yaml:"cors"`
}

// CORSConfig 跨域配置
type CORSConfig struct {
	Enabled bool     `yaml:"enabled"`
	Origins []string `yaml:"origins"`
}

// LedgerConfig 事件账本配置
type LedgerConfig struct {
	MaxEvents int `yaml:"max_events"`
}

// PlannerConfig 装载规划配置
type PlannerConfig struct {
	DefaultStrategy string `yaml:"default_strategy"`
	ParallelSuggest bool   `yaml:"parallel_suggest"`
	Workers         int    `yaml:"workers"`
}

// MetricsConfig 监控配置
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// TrailerConfig 挂车配置，仅在没有已保存状态时作为初始值
type TrailerConfig struct {
	Defaults *model.TrailerSpecPatch `yaml:"defaults"`
	Trailers []*model.Trailer        `yaml:"trailers"`
}

// Default 返回内置默认配置
func Default() *Config {
	return &Config{
		App: AppConfig{
			Name:      "loadplan",
			Env:       "development",
			Port:      7012,
			LogLevel:  "info",
			LogFormat: "console",
			Version:   "dev",
		},
		Store: StoreConfig{
			Driver:         DriverFile,
			Path:           "data/loadplan.json",
			OrgID:          "default",
			PersistRetries: 2,
			RetryBackoff:   100 * time.Millisecond,
		},
		Database: DatabaseConfig{
			Host:            "localhost",
			Port:            5432,
			Name:            "loadplan",
			User:            "loadplan",
			Password:        "",
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Redis: RedisConfig{
			Enabled:       false,
			Host:          "localhost",
			Port:          6379,
			PoolSize:      10,
			ChannelPrefix: "loadplan",
		},
		API: APIConfig{
			RateLimit:      20,
			Burst:          40,
			Timeout:        30 * time.Second,
			MaxUploadBytes: 10 << 20,
			CORS: CORSConfig{
				Enabled: true,
				Origins: []string{"*"},
			},
		},
		Ledger: LedgerConfig{
			MaxEvents: 5000,
		},
		Planner: PlannerConfig{
			DefaultStrategy: "weight_desc",
			ParallelSuggest: true,
			Workers:         4,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

// Load 按顺序加载配置
func Load() (*Config, error) {
	envFile := getEnv("LOADPLAN_ENV_FILE", ".env")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("加载 %s 失败: %w", envFile, err)
	}

	cfg := Default()
	if path := os.Getenv("LOADPLAN_CONFIG"); path != "" {
		if err := cfg.loadYAML(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadYAML 用 YAML 文件覆盖当前值，文件中没有的字段保持不变
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("读取配置文件 %s 失败: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("解析配置文件 %s 失败: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.App.Name = getEnv("APP_NAME", c.App.Name)
	c.App.Env = getEnv("APP_ENV", c.App.Env)
	c.App.Port = getEnvInt("APP_PORT", c.App.Port)
	c.App.LogLevel = getEnv("APP_LOG_LEVEL", c.App.LogLevel)
	c.App.LogFormat = getEnv("APP_LOG_FORMAT", c.App.LogFormat)
	c.App.Version = getEnv("APP_VERSION", c.App.Version)

	c.Store.Driver = getEnv("STORE_DRIVER", c.Store.Driver)
	c.Store.Path = getEnv("STORE_PATH", c.Store.Path)
	c.Store.OrgID = getEnv("STORE_ORG_ID", c.Store.OrgID)
	c.Store.PersistRetries = getEnvInt("STORE_PERSIST_RETRIES", c.Store.PersistRetries)
	c.Store.RetryBackoff = getEnvDuration("STORE_RETRY_BACKOFF", c.Store.RetryBackoff)

	c.Database.URL = getEnv("DATABASE_URL", c.Database.URL)
	c.Database.Host = getEnv("DB_HOST", c.Database.Host)
	c.Database.Port = getEnvInt("DB_PORT", c.Database.Port)
	c.Database.Name = getEnv("DB_NAME", c.Database.Name)
	c.Database.User = getEnv("DB_USER", c.Database.User)
	c.Database.Password = getEnv("DB_PASSWORD", c.Database.Password)
	c.Database.SSLMode = getEnv("DB_SSL_MODE", c.Database.SSLMode)
	c.Database.MaxOpenConns = getEnvInt("DB_MAX_OPEN_CONNS", c.Database.MaxOpenConns)
	c.Database.MaxIdleConns = getEnvInt("DB_MAX_IDLE_CONNS", c.Database.MaxIdleConns)
	c.Database.ConnMaxLifetime = getEnvDuration("DB_CONN_MAX_LIFETIME", c.Database.ConnMaxLifetime)

	c.Redis.Enabled = getEnvBool("REDIS_ENABLED", c.Redis.Enabled)
	c.Redis.Host = getEnv("REDIS_HOST", c.Redis.Host)
	c.Redis.Port = getEnvInt("REDIS_PORT", c.Redis.Port)
	c.Redis.Password = getEnv("REDIS_PASSWORD", c.Redis.Password)
	c.Redis.DB = getEnvInt("REDIS_DB", c.Redis.DB)
	c.Redis.PoolSize = getEnvInt("REDIS_POOL_SIZE", c.Redis.PoolSize)
	c.Redis.ChannelPrefix = getEnv("REDIS_CHANNEL_PREFIX", c.Redis.ChannelPrefix)

	c.API.RateLimit = getEnvFloat("API_RATE_LIMIT", c.API.RateLimit)
	c.API.Burst = getEnvInt("API_RATE_BURST", c.API.Burst)
	c.API.Timeout = getEnvDuration("API_TIMEOUT", c.API.Timeout)
	c.API.MaxUploadBytes = int64(getEnvInt("API_MAX_UPLOAD_BYTES", int(c.API.MaxUploadBytes)))
	c.API.APIKeys = getEnvList("API_KEYS", c.API.APIKeys)
	c.API.CORS.Enabled = getEnvBool("API_CORS_ENABLED", c.API.CORS.Enabled)
	c.API.CORS.Origins = getEnvList("API_CORS_ORIGINS", c.API.CORS.Origins)

	c.Ledger.MaxEvents = getEnvInt("LEDGER_MAX_EVENTS", c.Ledger.MaxEvents)

	c.Planner.DefaultStrategy = getEnv("PLANNER_DEFAULT_STRATEGY", c.Planner.DefaultStrategy)
	c.Planner.ParallelSuggest = getEnvBool("PLANNER_PARALLEL_SUGGEST", c.Planner.ParallelSuggest)
	c.Planner.Workers = getEnvInt("PLANNER_WORKERS", c.Planner.Workers)

	c.Metrics.Enabled = getEnvBool("METRICS_ENABLED", c.Metrics.Enabled)
	c.Metrics.Path = getEnv("METRICS_PATH", c.Metrics.Path)
}

// Validate 校验配置
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case DriverMemory, DriverFile, DriverPostgres:
	default:
		return fmt.Errorf("不支持的存储驱动: %q", c.Store.Driver)
	}
	if c.Store.Driver == DriverFile && strings.TrimSpace(c.Store.Path) == "" {
		return fmt.Errorf("file 存储需要配置 store.path")
	}
	if strings.TrimSpace(c.Store.OrgID) == "" {
		return fmt.Errorf("store.org_id 不能为空")
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		return fmt.Errorf("无效端口: %d", c.App.Port)
	}
	if c.Ledger.MaxEvents <= 0 {
		return fmt.Errorf("ledger.max_events 必须大于0")
	}
	for i, t := range c.Trailer.Trailers {
		if t == nil || strings.TrimSpace(t.ID) == "" {
			return fmt.Errorf("trailer.trailers[%d] 缺少 id", i)
		}
	}
	return nil
}

// IsDevelopment 检查是否为开发环境
func (c *Config) IsDevelopment() bool {
	return c.App.Env == "development"
}

// IsProduction 检查是否为生产环境
func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}

// 辅助函数
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvList 逗号分隔的列表
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
