package chat

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Remex-Wangkhem/Aix-Studio/internal/gateway"
	"github.com/Remex-Wangkhem/Aix-Studio/pkg/modeladapter"
)

// Handler 调试台对话 Handler
type Handler struct {
	engine *gateway.Engine
}

// NewHandler 创建 Handler
func NewHandler(engine *gateway.Engine) *Handler {
	return &Handler{engine: engine}
}

// streamRequest 流式对话请求体
type streamRequest struct {
	ConnectorID string                 `json:"connectorId" binding:"required"`
	Messages    []modeladapter.Message `json:"messages" binding:"required"`
	Temperature float64                `json:"temperature"`
	MaxTokens   int                    `json:"max_tokens"`
	TopP        float64                `json:"top_p"`
}

// Stream 直连连接器的流式对话
// @Summary 调试台流式对话
// @Tags chat
// @Accept json
// @Produce text/event-stream
// @Param request body streamRequest true "对话请求"
// @Success 200 {string} string "SSE Stream"
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /api/chat/stream [post]
func (h *Handler) Stream(c *gin.Context) {
	var req streamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "请求参数错误: " + err.Error()})
		return
	}

	modelReq := &modeladapter.ModelRequest{
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		TopP:        req.TopP,
	}

	chunkChan, errChan, err := h.engine.StreamChat(c.Request.Context(), req.ConnectorID, modelReq)
	if err != nil {
		if errors.Is(err, gateway.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "连接器不存在"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
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
			if payload, err := json.Marshal(chunk); err == nil {
				fmt.Fprintf(w, "data: %s\n\n", payload)
			}
			return !chunk.Done
		case err, ok := <-errChan:
			if ok && err != nil {
				// 中途出错直接断流，客户端以未收到 done 判定异常
				return false
			}
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}
