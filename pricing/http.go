package pricing

import (
	"github.com/gin-gonic/gin"
	"github.com/wyfcoding/fangoost/response"
	"github.com/wyfcoding/fangoost/xerrors"
)

// Handler 报价服务的 HTTP 适配层。错误通过 c.Error 交给 middleware.HTTPErrorHandler 输出。
type Handler struct {
	svc *Service
}

// NewHandler 创建 HTTP 处理器。
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes 注册 /v1 下的报价路由。
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	v1 := r.Group("/v1")
	v1.POST("/quotes", h.Quote)
	v1.GET("/models", h.Models)
}

// Quote 处理 POST /v1/quotes。
func (h *Handler) Quote(c *gin.Context) {
	var req QuoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(xerrors.InvalidArg("malformed request body").WithDetail("%v", err))
		return
	}

	resp, err := h.svc.Quote(c.Request.Context(), req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	response.Success(c, resp)
}

// Models 处理 GET /v1/models。
func (h *Handler) Models(c *gin.Context) {
	response.Success(c, Models())
}
