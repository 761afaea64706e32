package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/wyfcoding/fangoost/response"
)

// HTTPErrorHandler 返回一个 Gin 中间件，将处理器通过 c.Error 登记的最后一个错误统一输出。
func HTTPErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() || len(c.Errors) == 0 {
			return
		}

		response.Error(c, c.Errors.Last().Err)
	}
}
