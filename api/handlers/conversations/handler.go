package conversations

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Remex-Wangkhem/Aix-Studio/internal/models"
	"github.com/Remex-Wangkhem/Aix-Studio/internal/store"
)

// Handler 调试台会话 Handler
type Handler struct {
	service *store.ConversationService
}

// NewHandler 创建 Handler
func NewHandler(service *store.ConversationService) *Handler {
	return &Handler{service: service}
}

// createRequest 创建会话请求体
type createRequest struct {
	Title            string `json:"title"`
	ModelConnectorID string `json:"modelConnectorId"`
}

// messageRequest 追加消息请求体
type messageRequest struct {
	Role    string `json:"role" binding:"required"`
	Content string `json:"content" binding:"required"`
	Tokens  *int   `json:"tokens"`
}

// List 列出当前用户的会话
func (h *Handler) List(c *gin.Context) {
	convs, err := h.service.List(c.Request.Context(), c.GetString("user_id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, convs)
}

// Create 创建会话
func (h *Handler) Create(c *gin.Context) {
	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "请求参数错误: " + err.Error()})
		return
	}

	conv := &models.Conversation{
		Title:            req.Title,
		UserID:           c.GetString("user_id"),
		ModelConnectorID: req.ModelConnectorID,
	}

	if err := h.service.Create(c.Request.Context(), conv); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, conv)
}

// Update 修改标题或收藏状态
func (h *Handler) Update(c *gin.Context) {
	var req struct {
		Title    *string `json:"title"`
		Favorite *bool   `json:"favorite"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "请求参数错误: " + err.Error()})
		return
	}

	updates := map[string]interface{}{}
	if req.Title != nil {
		updates["title"] = *req.Title
	}
	if req.Favorite != nil {
		updates["favorite"] = *req.Favorite
	}

	conv, err := h.service.Update(c.Request.Context(), c.Param("id"), c.GetString("user_id"), updates)
	if err != nil {
		if errors.Is(err, store.ErrConversationNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, conv)
}

// Delete 删除会话与消息
func (h *Handler) Delete(c *gin.Context) {
	err := h.service.Delete(c.Request.Context(), c.Param("id"), c.GetString("user_id"))
	if err != nil {
		if errors.Is(err, store.ErrConversationNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// ListMessages 列出会话消息
func (h *Handler) ListMessages(c *gin.Context) {
	// 先确认会话归属
	if _, err := h.service.Get(c.Request.Context(), c.Param("id"), c.GetString("user_id")); err != nil {
		if errors.Is(err, store.ErrConversationNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	messages, err := h.service.ListMessages(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, messages)
}

// AppendMessage 追加会话消息
func (h *Handler) AppendMessage(c *gin.Context) {
	var req messageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "请求参数错误: " + err.Error()})
		return
	}

	if _, err := h.service.Get(c.Request.Context(), c.Param("id"), c.GetString("user_id")); err != nil {
		if errors.Is(err, store.ErrConversationNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	msg := &models.Message{
		ConversationID: c.Param("id"),
		Role:           req.Role,
		Content:        req.Content,
		Tokens:         req.Tokens,
	}

	if err := h.service.AppendMessage(c.Request.Context(), msg); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, msg)
}
