// LoadPlan 挂车装载规划服务
// 主程序入口

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/paiban/loadplan/internal/config"
	"github.com/paiban/loadplan/internal/database"
	"github.com/paiban/loadplan/internal/handler"
	"github.com/paiban/loadplan/internal/metrics"
	"github.com/paiban/loadplan/internal/middleware"
	"github.com/paiban/loadplan/internal/notify"
	"github.com/paiban/loadplan/internal/security"
	"github.com/paiban/loadplan/internal/service"
	"github.com/paiban/loadplan/internal/store"
	"github.com/paiban/loadplan/pkg/logger"
	"github.com/paiban/loadplan/pkg/model"
	"github.com/paiban/loadplan/pkg/planner/geometry"
)

// 构建信息（通过 ldflags 注入）
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}
	if cfg.App.Version == "" || cfg.App.Version == "dev" {
		cfg.App.Version = Version
	}

	// 初始化日志
	logger.Init(logger.Config{
		Level:  cfg.App.LogLevel,
		Format: cfg.App.LogFormat,
	})

	fmt.Printf("LoadPlan 装载规划 v%s\n", cfg.App.Version)
	fmt.Printf("Build: %s (%s)\n", BuildTime, GitCommit)
	fmt.Println()

	if err := run(cfg); err != nil {
		logger.Fatal().Err(err).Msg("服务异常退出")
	}
}

func run(cfg *config.Config) error {
	ctx := context.Background()

	// 持久化后端
	snap, db, err := openSnapshotter(ctx, cfg)
	if err != nil {
		return err
	}
	if db != nil {
		defer func() {
			if err := db.Close(); err != nil {
				logger.Warn().Err(err).Msg("关闭数据库失败")
			}
		}()
	}

	var defaults *model.TrailerSpec
	if cfg.Trailer.Defaults != nil {
		spec := geometry.Normalize(cfg.Trailer.Defaults)
		defaults = &spec
	}

	st, err := store.Open(ctx, store.Options{
		OrgID:          cfg.Store.OrgID,
		Snapshotter:    snap,
		Defaults:       defaults,
		Trailers:       cfg.Trailer.Trailers,
		MaxEvents:      cfg.Ledger.MaxEvents,
		PersistRetries: cfg.Store.PersistRetries,
		RetryBackoff:   cfg.Store.RetryBackoff,
	})
	if err != nil {
		return fmt.Errorf("打开存储失败: %w", err)
	}

	// 事件发布
	var publisher notify.Publisher = notify.NopPublisher{}
	if cfg.Redis.Enabled {
		rp, err := notify.NewRedisPublisher(ctx, cfg.Redis)
		if err != nil {
			return fmt.Errorf("连接 Redis 失败: %w", err)
		}
		publisher = rp
		logger.Info().Str("addr", cfg.Redis.Addr()).Msg("已启用 Redis 事件发布")
	}
	defer publisher.Close()

	engine := service.New(st, publisher, cfg.Planner)

	h := handler.NewHandler(engine, handler.BuildInfo{
		Version:   cfg.App.Version,
		BuildTime: BuildTime,
		GitCommit: GitCommit,
	}, cfg.API.MaxUploadBytes)
	if db != nil {
		h.WithCheck("database", db.Health)
	}
	if rp, ok := publisher.(*notify.RedisPublisher); ok {
		h.WithCheck("redis", rp.Ping)
	}

	mux := http.NewServeMux()
	h.Register(mux)

	if cfg.Metrics.Enabled {
		metrics.Register()
		mux.Handle(cfg.Metrics.Path, metrics.Handler())
	}

	keys := security.NewStaticKeyManager(cfg.API.APIKeys)
	limiter := security.NewRateLimiter(cfg.API.RateLimit, cfg.API.Burst)

	root := middleware.Chain(mux,
		middleware.RecoveryMiddleware,
		middleware.RequestIDMiddleware,
		middleware.OrgMiddleware(cfg.Store.OrgID),
		middleware.LoggingMiddleware,
		middleware.SecurityHeadersMiddleware,
		middleware.CORSMiddleware(cfg.API.CORS),
		middleware.RateLimitMiddleware(limiter),
		middleware.AuthMiddleware(&middleware.AuthConfig{
			APIKeyManager: keys,
			SkipPaths:     []string{"/health", "/version", cfg.Metrics.Path},
		}),
		middleware.TimeoutMiddleware(cfg.API.Timeout),
		middleware.BodyLimitMiddleware(cfg.API.MaxUploadBytes),
	)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.App.Port),
		Handler:      root,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.API.Timeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// 空闲限流条目定期清理
	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	if limiter.Enabled() {
		go sweepLimiter(sweepCtx, limiter)
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info().
			Int("port", cfg.App.Port).
			Str("backend", st.Backend()).
			Str("org_id", cfg.Store.OrgID).
			Int("api_keys", keys.Len()).
			Msg("服务启动")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	// 优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		return fmt.Errorf("服务启动失败: %w", err)
	case sig := <-quit:
		logger.Info().Str("signal", sig.String()).Msg("正在关闭服务...")
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("服务关闭失败")
		return err
	}

	logger.Info().Msg("服务已关闭")
	return nil
}

// openSnapshotter 按配置选择持久化后端，仅 postgres 驱动返回数据库连接
func openSnapshotter(ctx context.Context, cfg *config.Config) (store.Snapshotter, *database.DB, error) {
	switch cfg.Store.Driver {
	case config.DriverMemory:
		logger.Warn().Msg("使用内存存储，重启后状态丢失")
		return store.NewMemorySnapshotter(), nil, nil

	case config.DriverFile:
		fs, err := store.NewFileSnapshotter(cfg.Store.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("初始化文件存储失败: %w", err)
		}
		return fs, nil, nil

	case config.DriverPostgres:
		db, err := database.New(&cfg.Database)
		if err != nil {
			return nil, nil, fmt.Errorf("连接数据库失败: %w", err)
		}
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("数据库迁移失败: %w", err)
		}
		return store.NewPostgresSnapshotter(db, cfg.Store.OrgID), db, nil

	default:
		return nil, nil, fmt.Errorf("未知存储驱动: %s", cfg.Store.Driver)
	}
}

func sweepLimiter(ctx context.Context, limiter *security.RateLimiter) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := limiter.Sweep(now); n > 0 {
				logger.Debug().Int("removed", n).Msg("已清理空闲限流条目")
			}
		}
	}
}
