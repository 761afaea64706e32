// Package middleware 提供 Gin HTTP 服务的通用中间件实现.
package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/wyfcoding/fangoost/contextx"
	"github.com/wyfcoding/fangoost/idgen"
)

const (
	HeaderXRequestID = "X-Request-ID"
)

// RequestID 返回一个用于生成或传递请求 ID 的 Gin 中间件。
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(HeaderXRequestID)
		if requestID == "" {
			requestID = idgen.GenIDString()
		}

		ctx := contextx.WithRequestID(c.Request.Context(), requestID)
		ctx = contextx.WithIP(ctx, c.ClientIP())
		c.Request = c.Request.WithContext(ctx)

		c.Header(HeaderXRequestID, requestID)

		c.Next()
	}
}
