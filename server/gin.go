// Package server 提供 HTTP 服务器的启动与优雅关闭封装。
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const defaultShutdownTimeout = 5 * time.Second

// GinOption 配置 GinServer。
type GinOption func(*GinServer)

// WithTimeouts 设置读写超时。
func WithTimeouts(read, write time.Duration) GinOption {
	return func(s *GinServer) {
		s.server.ReadTimeout = read
		s.server.WriteTimeout = write
	}
}

// WithShutdownTimeout 设置优雅关闭的最长等待时间。
func WithShutdownTimeout(d time.Duration) GinOption {
	return func(s *GinServer) {
		if d > 0 {
			s.shutdownTimeout = d
		}
	}
}

// GinServer 封装了标准的 http.Server，专门用于运行 Gin 引擎，并提供优雅的启动和关闭。
type GinServer struct {
	server          *http.Server
	addr            string
	logger          *slog.Logger
	shutdownTimeout time.Duration
}

// NewGinServer 创建一个新的Gin服务器实例。
func NewGinServer(engine *gin.Engine, addr string, logger *slog.Logger, opts ...GinOption) *GinServer {
	s := &GinServer{
		server: &http.Server{
			Addr:              addr,
			Handler:           engine,
			ReadHeaderTimeout: 5 * time.Second,
		},
		addr:            addr,
		logger:          logger,
		shutdownTimeout: defaultShutdownTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start 启动Gin HTTP服务器。
// 阻塞直到上下文被取消（随后优雅关闭）或监听失败。
func (s *GinServer) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve 在给定监听器上提供服务，语义同 Start。
func (s *GinServer) Serve(ctx context.Context, ln net.Listener) error {
	s.logger.Info("Starting Gin server", "addr", ln.Addr().String())

	errChan := make(chan error, 1)
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
		close(errChan)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("Gin server stopping due to context cancellation")
		return s.Stop(context.Background())
	case err := <-errChan:
		return err
	}
}

// Stop 优雅地停止Gin服务器，等待现有请求在超时时间内完成。
func (s *GinServer) Stop(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.shutdownTimeout)
	defer cancel()
	return s.server.Shutdown(ctx)
}
