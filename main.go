package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"stockengine/config"
	qhttp "stockengine/http"
	"stockengine/logger"
	"stockengine/market"
	"stockengine/market/providers"
)

func main() {
	cfg, err := config.Load("config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zl, err := logger.Init(logger.Options{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
	})
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer zl.Sync()

	// 数据源：东财为主，新浪降级
	manager := providers.NewManager()
	manager.AddProvider(providers.NewEastmoneyProvider(cfg.UpstreamTimeout()))
	manager.AddProvider(providers.NewSinaProvider(cfg.UpstreamTimeout()))
	if cfg.Upstream.Primary != "" {
		if err := manager.SetPrimary(cfg.Upstream.Primary); err != nil {
			zap.L().Warn("unknown primary provider, keeping default",
				zap.String("primary", cfg.Upstream.Primary))
		}
	}
	manager.StartHealthChecks()
	defer manager.StopHealthChecks()

	cache := market.NewSnapshotCache(manager.FetchSpot, cfg.CacheTTL())
	infoCache := market.NewInfoCache(manager.FetchInfo, 512, time.Hour)

	retry := market.RetryPolicy{
		MaxAttempts: cfg.Retry.MaxAttempts,
		Delay:       cfg.RetryDelay(),
	}

	handlers := &qhttp.Handlers{
		Cache: cache,
		Data:  manager,
		Info:  infoCache,
		Retry: retry,
	}

	server := qhttp.NewServer(qhttp.ServerConfig{
		Port:           cfg.HTTP.Port,
		Timeout:        cfg.HTTPTimeout(),
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		PulseInterval:  10 * time.Second,
	}, handlers)

	go func() {
		if err := server.Start(); err != nil {
			zap.L().Fatal("http server failed", zap.Error(err))
		}
	}()

	// 配置热加载：日志级别与缓存TTL即时生效
	watcher, err := config.NewWatcher("config.yaml", func(next *config.Config) {
		if err := logger.SetLevel(next.Log.Level); err != nil {
			zap.L().Warn("invalid log level in reloaded config",
				zap.String("level", next.Log.Level))
		}
		cache.SetTTL(next.CacheTTL())
	})
	if err != nil {
		zap.L().Warn("config watcher unavailable", zap.Error(err))
	} else {
		defer watcher.Close()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zap.L().Info("shutting down")

	if err := server.Stop(); err != nil {
		zap.L().Error("server forced to shutdown", zap.Error(err))
	}
	zap.L().Info("exiting")
}
