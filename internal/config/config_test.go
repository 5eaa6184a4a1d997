package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("写入 %s 失败: %v", name, err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("LOADPLAN_ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	t.Setenv("LOADPLAN_CONFIG", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Store.Driver != DriverFile {
		t.Errorf("store.driver = %q, expected file", cfg.Store.Driver)
	}
	if cfg.Ledger.MaxEvents != 5000 {
		t.Errorf("ledger.max_events = %d, expected 5000", cfg.Ledger.MaxEvents)
	}
	if cfg.Planner.DefaultStrategy != "weight_desc" {
		t.Errorf("planner.default_strategy = %q", cfg.Planner.DefaultStrategy)
	}
}

func TestLoad_Layering(t *testing.T) {
	dir := t.TempDir()
	yamlPath := writeFile(t, dir, "loadplan.yaml", `
app:
  port: 9000
store:
  driver: memory
  org_id: yard-7
  retry_backoff: 250ms
api:
  api_keys: ["k1"]
trailer:
  defaults:
    lane_count: 3
    slot_count: 27
    segregated_lanes: [2]
  trailers:
    - id: T1
      unit: "53-1001"
      name: Reefer
`)
	envPath := writeFile(t, dir, "test.env", "APP_LOG_LEVEL=debug\nAPP_PORT=9100\n")

	t.Setenv("LOADPLAN_ENV_FILE", envPath)
	t.Setenv("LOADPLAN_CONFIG", yamlPath)
	t.Setenv("API_KEYS", "a, b ,")
	// godotenv 不覆盖已存在的环境变量，测试结束时清理
	t.Setenv("APP_LOG_LEVEL", "")
	t.Setenv("APP_PORT", "")
	os.Unsetenv("APP_LOG_LEVEL")
	os.Unsetenv("APP_PORT")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.App.Port != 9100 {
		t.Errorf("app.port = %d, expected 9100 (env over yaml)", cfg.App.Port)
	}
	if cfg.App.LogLevel != "debug" {
		t.Errorf("app.log_level = %q, expected debug", cfg.App.LogLevel)
	}
	if cfg.Store.Driver != DriverMemory || cfg.Store.OrgID != "yard-7" {
		t.Errorf("store = %+v", cfg.Store)
	}
	if cfg.Store.RetryBackoff != 250*time.Millisecond {
		t.Errorf("retry_backoff = %v, expected 250ms", cfg.Store.RetryBackoff)
	}
	if cfg.Store.PersistRetries != 2 {
		t.Errorf("persist_retries = %d, expected default 2", cfg.Store.PersistRetries)
	}
	if len(cfg.API.APIKeys) != 2 || cfg.API.APIKeys[0] != "a" || cfg.API.APIKeys[1] != "b" {
		t.Errorf("api_keys = %v, expected [a b]", cfg.API.APIKeys)
	}
	if cfg.Trailer.Defaults == nil || *cfg.Trailer.Defaults.LaneCount != 3 {
		t.Errorf("trailer.defaults = %+v", cfg.Trailer.Defaults)
	}
	if len(cfg.Trailer.Trailers) != 1 || cfg.Trailer.Trailers[0].Unit != "53-1001" {
		t.Errorf("trailer.trailers = %+v", cfg.Trailer.Trailers)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"默认配置", func(*Config) {}, false},
		{"未知驱动", func(c *Config) { c.Store.Driver = "mongo" }, true},
		{"file缺少路径", func(c *Config) { c.Store.Path = "" }, true},
		{"org为空", func(c *Config) { c.Store.OrgID = " " }, true},
		{"端口无效", func(c *Config) { c.App.Port = 0 }, true},
		{"账本上限无效", func(c *Config) { c.Ledger.MaxEvents = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDatabaseConfig_DSN(t *testing.T) {
	c := Default().Database
	if got := c.DSN(); got != "host=localhost port=5432 user=loadplan password= dbname=loadplan sslmode=disable" {
		t.Errorf("DSN() = %q", got)
	}
	c.URL = "postgres://u@h/db"
	if got := c.DSN(); got != c.URL {
		t.Errorf("DSN() = %q, expected URL", got)
	}
}
