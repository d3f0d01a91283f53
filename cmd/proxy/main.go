package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/alextby/cacheproxy/internal/api"
	"github.com/alextby/cacheproxy/internal/cache"
	"github.com/alextby/cacheproxy/internal/config"
	"github.com/alextby/cacheproxy/internal/health"
	"github.com/alextby/cacheproxy/internal/proxy"
	"github.com/alextby/cacheproxy/internal/workerpool"
)

func main() {
	setupLogger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	fs := flag.NewFlagSet("proxy", flag.ExitOnError)
	config.RegisterFlags(fs, cfg)
	if err := fs.Parse(os.Args[1:]); err != nil {
		log.Fatal().Err(err).Msg("failed to parse flags")
	}

	// Positional args (port, cached, verbose) override named flags,
	// matching the source's bare CLI contract.
	if err := cfg.ApplyCLIArgs(fs.Args()); err != nil {
		log.Fatal().Err(err).Msg("invalid command-line arguments")
	}

	if cfg.Proxy.Verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	logStartupConfig(cfg)

	lruCache := cache.New(cfg.Cache.MaxItemSize, cfg.Cache.MaxTotalSize)
	pool := workerpool.New(cfg.WorkerPool.Size)
	engine := proxy.New(cfg.Proxy.Port, pool, lruCache, cfg.Proxy.Cached, cfg.Network.IOTimeout)

	if err := engine.Start(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("failed to start proxy dispatcher")
	}

	var adminCleanup func()
	if cfg.Admin.Port > 0 {
		adminCleanup = startAdminAPI(cfg, lruCache, pool, engine)
	}

	waitForShutdown(engine, pool, adminCleanup)
}

func setupLogger() {
	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

func logStartupConfig(cfg *config.Config) {
	log.Info().
		Int("proxy_port", cfg.Proxy.Port).
		Bool("proxy_cached", cfg.Proxy.Cached).
		Bool("proxy_verbose", cfg.Proxy.Verbose).
		Int64("cache_max_item_size", cfg.Cache.MaxItemSize).
		Int64("cache_max_total_size", cfg.Cache.MaxTotalSize).
		Int("worker_pool_size", cfg.WorkerPool.Size).
		Dur("io_timeout", cfg.Network.IOTimeout).
		Int("admin_port", cfg.Admin.Port).
		Msg("configuration loaded")
}

func startAdminAPI(cfg *config.Config, lruCache *cache.LRUCache, pool *workerpool.Pool, engine *proxy.Engine) func() {
	healthChecker := health.NewSystemHealthChecker(lruCache, pool, engine.IsListening)

	result := api.SetupRouter(api.RouterDependencies{
		Cache:         lruCache,
		WorkerPool:    pool,
		Connections:   engine,
		HealthChecker: healthChecker,
		StartedAt:     time.Now(),
	}, api.RouterConfig{
		RateLimitRPS:   100,
		RateLimitBurst: 200,
	})

	addr := fmt.Sprintf(":%d", cfg.Admin.Port)
	go func() {
		log.Info().Str("addr", addr).Msg("starting admin API")
		if err := result.App.Listen(addr); err != nil {
			log.Error().Err(err).Msg("admin API stopped")
		}
	}()

	return func() {
		result.Cleanup()
		_ = result.App.ShutdownWithTimeout(5 * time.Second)
	}
}

func waitForShutdown(engine *proxy.Engine, pool *workerpool.Pool, adminCleanup func()) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	<-ctx.Done()
	stop()

	log.Info().Msg("received shutdown signal, initiating graceful shutdown")

	if adminCleanup != nil {
		adminCleanup()
	}

	engine.Shutdown()
	pool.Shutdown()

	log.Info().Msg("graceful shutdown completed")
}
