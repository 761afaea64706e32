// Package bootstrap 根据配置初始化进程级基础设施：日志、指标与链路追踪。
package bootstrap

import (
	"context"

	"github.com/wyfcoding/fangoost/config"
	"github.com/wyfcoding/fangoost/logging"
	"github.com/wyfcoding/fangoost/metrics"
	"github.com/wyfcoding/fangoost/tracing"
)

// Bootstrapper 持有已初始化的基础设施组件。
type Bootstrapper struct {
	ServiceName string
	Version     string
	Logger      *logging.Logger
	Metrics     *metrics.Metrics

	shutdownTracer func(context.Context) error
}

// LogConfig 将配置文件中的日志段转换为 logging.Config。
func LogConfig(service, module string, c config.LogConfig) logging.Config {
	return logging.Config{
		Service:    service,
		Module:     module,
		Level:      c.Level,
		Format:     c.Format,
		File:       c.File,
		MaxSize:    c.MaxSize,
		MaxBackups: c.MaxBackups,
		MaxAge:     c.MaxAge,
		Compress:   c.Compress,
		Stdout:     c.Stdout,
	}
}

// Initialize 按配置初始化全局日志、指标注册表与追踪器。
func Initialize(ctx context.Context, cfg *config.Config) (*Bootstrapper, error) {
	b := &Bootstrapper{
		ServiceName: cfg.Server.Name,
		Version:     cfg.Version,
	}

	b.Logger = logging.InitFromConfig(LogConfig(cfg.Server.Name, "server", cfg.Log))

	b.Metrics = metrics.NewMetrics(cfg.Server.Name)
	b.Metrics.RegisterBuildInfo(cfg.Server.Name, cfg.Version)

	shutdown, err := tracing.InitTracer(ctx, cfg.Tracing, cfg.Version)
	if err != nil {
		b.Logger.Error("failed to init tracer", "error", err)
		return nil, err
	}
	b.shutdownTracer = shutdown

	b.Logger.Info("infrastructure initialized",
		"environment", cfg.Server.Environment,
		"tracing", cfg.Tracing.Enabled,
		"metrics", cfg.Metrics.Enabled,
	)
	return b, nil
}

// Shutdown 刷新并关闭追踪导出器。
func (b *Bootstrapper) Shutdown(ctx context.Context) {
	if b.shutdownTracer == nil {
		return
	}
	if err := b.shutdownTracer(ctx); err != nil {
		b.Logger.Error("failed to shutdown tracer", "error", err)
	}
}
