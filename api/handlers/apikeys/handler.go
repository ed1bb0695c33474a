package apikeys

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Remex-Wangkhem/Aix-Studio/api/handlers/common"
	"github.com/Remex-Wangkhem/Aix-Studio/internal/auth"
	"github.com/Remex-Wangkhem/Aix-Studio/internal/gateway"
)

// Handler API 密钥管理 Handler
type Handler struct {
	service *auth.APIKeyService
	store   gateway.Store
}

// NewHandler 创建 Handler
func NewHandler(service *auth.APIKeyService, gwStore gateway.Store) *Handler {
	return &Handler{service: service, store: gwStore}
}

// List 列出密钥（打码）
// @Summary 列出 API 密钥
// @Tags apikeys
// @Produce json
// @Success 200 {array} models.APIKey
// @Router /api/api-keys [get]
func (h *Handler) List(c *gin.Context) {
	keys, err := h.service.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, keys)
}

// Create 创建密钥，完整密钥只在响应里出现一次
// @Summary 创建 API 密钥
// @Tags apikeys
// @Accept json
// @Produce json
// @Success 201 {object} models.APIKey
// @Failure 400 {object} map[string]string
// @Router /api/api-keys [post]
func (h *Handler) Create(c *gin.Context) {
	var req auth.CreateAPIKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "请求参数错误: " + err.Error()})
		return
	}
	if req.UserID == "" {
		req.UserID = c.GetString("user_id")
	}

	key, err := h.service.Create(c.Request.Context(), &req)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	common.RecordAudit(c, h.store, "create", "api_key", key.ID, gin.H{"name": key.Name})
	c.JSON(http.StatusCreated, key)
}

// Delete 删除密钥
func (h *Handler) Delete(c *gin.Context) {
	id := c.Param("id")
	if err := h.service.Delete(c.Request.Context(), id); err != nil {
		if errors.Is(err, auth.ErrAPIKeyNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	common.RecordAudit(c, h.store, "delete", "api_key", id, nil)
	c.JSON(http.StatusOK, gin.H{"success": true})
}
