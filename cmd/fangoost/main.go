// Command fangoost 运行 COS 欧式期权报价 HTTP 服务。
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/wyfcoding/fangoost/app"
	"github.com/wyfcoding/fangoost/bootstrap"
	"github.com/wyfcoding/fangoost/cache"
	"github.com/wyfcoding/fangoost/config"
	"github.com/wyfcoding/fangoost/health"
	"github.com/wyfcoding/fangoost/idgen"
	"github.com/wyfcoding/fangoost/limiter"
	"github.com/wyfcoding/fangoost/metrics"
	"github.com/wyfcoding/fangoost/middleware"
	"github.com/wyfcoding/fangoost/pricing"
	"github.com/wyfcoding/fangoost/server"
)

const (
	healthzPath = "/healthz"
	// 超过该大小的报价结果不进入缓存。
	maxCachedQuoteBytes = 4 << 20
)

func main() {
	configPath := flag.String("config", "", "path to config file (toml/yaml/json)")
	flag.Parse()

	if err := run(context.Background(), *configPath); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string) error {
	cfg, err := config.LoadAndWatch(configPath)
	if err != nil {
		return err
	}

	infra, err := bootstrap.Initialize(ctx, cfg)
	if err != nil {
		return err
	}
	logger := infra.Logger.Logger
	config.PrintWithMask(cfg)

	if err := idgen.Init(cfg.Snowflake); err != nil {
		return err
	}

	opts := []pricing.ServiceOption{
		pricing.WithServiceLogger(logger),
		pricing.WithMetrics(metrics.NewPricing(infra.Metrics)),
		pricing.WithConcurrencyLimit(limiter.NewSemaphoreLimiter(cfg.Pricing.MaxConcurrent)),
	}
	checks := health.NewRegistry(0)

	var quoteCache *cache.BigCache
	if cfg.Cache.Enabled {
		entryBytes := min(pricing.ResponseSizeHint(cfg.Pricing.MaxStrikes), maxCachedQuoteBytes)
		quoteCache, err = cache.NewBigCache(ctx, cfg.Cache.TTL, cfg.Cache.MaxMB, cache.WithMaxEntryBytes(entryBytes))
		if err != nil {
			return err
		}
		opts = append(opts, pricing.WithCache(quoteCache))
		checks.Register("quote_cache", health.CacheChecker(quoteCache))
	}

	svc := pricing.NewService(cfg.Pricing, opts...)
	config.RegisterReloadHook(func(next *config.Config) {
		svc.Apply(next.Pricing)
	})

	skip := []string{healthzPath, cfg.Metrics.Path}
	if cfg.Server.Environment != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := server.NewDefaultGinEngine(
		middleware.Recovery(logger),
		middleware.RequestID(),
		middleware.TracingMiddleware(cfg.Server.Name, skip...),
		middleware.TraceIDHeader(),
		middleware.Logger(logger, skip...),
		middleware.HTTPMetricsMiddlewareWithOptions(infra.Metrics, middleware.MetricsOptions{SkipPaths: skip}),
		middleware.MaxBodyBytes(8<<20),
		middleware.TimeoutMiddleware(cfg.Server.WriteTimeout),
		middleware.HTTPErrorHandler(),
	)
	engine.GET(healthzPath, checks.Handler())
	if cfg.Metrics.Enabled {
		engine.GET(cfg.Metrics.Path, gin.WrapH(infra.Metrics.Handler()))
	}

	api := engine.Group("")
	if cfg.RateLimit.Enabled {
		api.Use(middleware.NewLocalRateLimitMiddleware(cfg.RateLimit.Rate, cfg.RateLimit.Burst))
	}
	pricing.NewHandler(svc).RegisterRoutes(api)

	srv := server.NewGinServer(engine, cfg.Server.Addr, logger,
		server.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout),
		server.WithShutdownTimeout(cfg.Server.ShutdownTimeout),
	)

	application := app.New(cfg.Server.Name, logger,
		app.WithServer(srv),
		app.WithShutdownTimeout(cfg.Server.ShutdownTimeout),
		app.WithCleanup(func() { infra.Shutdown(context.Background()) }),
		app.WithCleanup(func() {
			if quoteCache != nil {
				_ = quoteCache.Close()
			}
		}),
	)
	return application.Run(ctx)
}
