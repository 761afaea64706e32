// Package response 提供统一的 HTTP 响应封装，支持业务错误码到 HTTP 状态码的映射。
package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/wyfcoding/fangoost/xerrors"
)

// HTTPStatusProvider 定义了能够提供 HTTP 状态码的错误接口。
type HTTPStatusProvider interface {
	HTTPStatus() int
}

// Body 统一响应结构。
type Body struct {
	Code   int    `json:"code"`
	Msg    string `json:"msg"`
	Data   any    `json:"data,omitempty"`
	Detail string `json:"detail,omitempty"`
}

// Success 发送一个标准的成功响应。
// 默认：HTTP 200，业务码 0，消息 "success"。
func Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, Body{Code: 0, Msg: "success", Data: data})
}

// Error 发送错误响应。
// 优先识别 xerrors 业务错误并使用其业务码与 HTTP 状态码；
// 无法识别时兜底返回 500。
func Error(c *gin.Context, err error) {
	if err == nil {
		Success(c, nil)
		return
	}

	if xe, ok := xerrors.FromError(err); ok {
		c.JSON(xe.HTTPStatus(), Body{Code: xe.Code, Msg: xe.Message, Detail: xe.Detail})
		return
	}

	statusCode := http.StatusInternalServerError
	var sp HTTPStatusProvider
	if errors.As(err, &sp) {
		statusCode = sp.HTTPStatus()
	}
	c.JSON(statusCode, Body{Code: statusCode, Msg: err.Error()})
}

// ErrorWithStatus 发送一个带有指定 HTTP 状态码、消息和详情的错误响应。
func ErrorWithStatus(c *gin.Context, status int, msg string, detail string) {
	c.JSON(status, Body{Code: status, Msg: msg, Detail: detail})
}
