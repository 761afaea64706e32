package server

import "context"

// Server 定义了服务器生命周期契约。
type Server interface {
	// Start 阻塞运行直到 ctx 取消或发生错误。
	Start(ctx context.Context) error
	// Stop 优雅停止，等待正在处理的请求完成。
	Stop(ctx context.Context) error
}

var _ Server = (*GinServer)(nil)
