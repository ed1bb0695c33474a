package gatewayapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Remex-Wangkhem/Aix-Studio/internal/gateway"
	"github.com/Remex-Wangkhem/Aix-Studio/pkg/modeladapter"
)

// Handler 网关执行 Handler
type Handler struct {
	engine *gateway.Engine
}

// NewHandler 创建 Handler
func NewHandler(engine *gateway.Engine) *Handler {
	return &Handler{engine: engine}
}

// executeRequest 网关调用请求体，input 与 message 等价（message 为旧字段）
type executeRequest struct {
	Input   string `json:"input"`
	Message string `json:"message"`
	Stream  bool   `json:"stream"`
}

// Execute 执行受管端点
// @Summary 调用受管端点
// @Tags gateway
// @Accept json
// @Produce json
// @Param x-api-key header string true "API 密钥"
// @Param route path string true "端点路由"
// @Success 200 {object} gateway.Result
// @Failure 401 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Failure 429 {object} map[string]string
// @Failure 500 {object} map[string]string
// @Router /api/x/{route} [post]
func (h *Handler) Execute(c *gin.Context) {
	secret := c.GetHeader("x-api-key")
	route := strings.TrimPrefix(c.Param("route"), "/")

	var req executeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "请求体不是合法 JSON"})
		return
	}

	input := req.Input
	if input == "" {
		input = req.Message
	}

	if req.Stream {
		h.executeStream(c, secret, route, input)
		return
	}

	result, err := h.engine.Execute(c.Request.Context(), secret, route, input)
	if err != nil {
		status, msg := mapError(err)
		c.JSON(status, gin.H{"error": msg})
		return
	}

	c.JSON(http.StatusOK, result)
}

// executeStream 流式执行，SSE 逐块下发
func (h *Handler) executeStream(c *gin.Context, secret, route, input string) {
	chunkChan, errChan, err := h.engine.ExecuteStream(c.Request.Context(), secret, route, input)
	if err != nil {
		status, msg := mapError(err)
		c.JSON(status, gin.H{"error": msg})
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	c.Stream(func(w io.Writer) bool {
		select {
		case chunk, ok := <-chunkChan:
			if !ok {
				return false
			}
			writeChunk(w, chunk)
			return !chunk.Done
		case err, ok := <-errChan:
			if ok && err != nil {
				// 流中途失败：直接断开，不发 done
				return false
			}
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

// writeChunk 按 data: {content,done} 的形式写一个 SSE 块
func writeChunk(w io.Writer, chunk modeladapter.StreamChunk) {
	payload, err := json.Marshal(chunk)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", payload)
}

// mapError 网关错误 → HTTP 状态码
func mapError(err error) (int, string) {
	switch {
	case errors.Is(err, gateway.ErrUnauthorized):
		return http.StatusUnauthorized, err.Error()
	case errors.Is(err, gateway.ErrNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, gateway.ErrQuotaExceeded), errors.Is(err, gateway.ErrRateLimited):
		return http.StatusTooManyRequests, err.Error()
	}

	// 上游失败与其他内部错误一样归入 500，调用方只需处理 401/404/429/500
	var upstreamErr *modeladapter.UpstreamError
	if errors.As(err, &upstreamErr) {
		return http.StatusInternalServerError, upstreamErr.Error()
	}

	return http.StatusInternalServerError, err.Error()
}
