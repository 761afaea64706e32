// Package app 管理进程生命周期：启动服务器、等待退出信号、优雅关闭并释放资源。
package app

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
)

// App 是应用程序的核心容器。
type App struct {
	name   string
	logger *slog.Logger
	opts   options
}

// New 创建一个新的应用程序实例。
func New(name string, logger *slog.Logger, opts ...Option) *App {
	o := options{shutdownTimeout: 10 * time.Second}
	for _, opt := range opts {
		opt(&o)
	}
	return &App{name: name, logger: logger, opts: o}
}

// Run 启动所有服务器并阻塞，直到 ctx 取消、收到 SIGINT/SIGTERM 或任一服务器失败。
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("application starting", "name", a.name, "pid", os.Getpid())

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	for _, srv := range a.opts.servers {
		g.Go(func() error {
			return srv.Start(gctx)
		})
	}

	<-gctx.Done()
	a.logger.Info("shutting down application", "name", a.name)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.opts.shutdownTimeout)
	defer cancel()

	var errs []error
	for _, srv := range a.opts.servers {
		if err := srv.Stop(shutdownCtx); err != nil {
			a.logger.Error("server failed to stop", "error", err)
			errs = append(errs, err)
		}
	}
	if err := g.Wait(); err != nil {
		a.logger.Error("server exited with error", "error", err)
		errs = append(errs, err)
	}

	for i := len(a.opts.cleanups) - 1; i >= 0; i-- {
		a.opts.cleanups[i]()
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	a.logger.Info("application shut down gracefully")
	return nil
}
