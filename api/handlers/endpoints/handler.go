package endpoints

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Remex-Wangkhem/Aix-Studio/api/handlers/common"
	"github.com/Remex-Wangkhem/Aix-Studio/internal/gateway"
	"github.com/Remex-Wangkhem/Aix-Studio/internal/models"
	"github.com/Remex-Wangkhem/Aix-Studio/internal/store"
)

// Handler 端点管理 Handler
type Handler struct {
	service *store.EndpointService
	store   gateway.Store
}

// NewHandler 创建 Handler
func NewHandler(service *store.EndpointService, gwStore gateway.Store) *Handler {
	return &Handler{service: service, store: gwStore}
}

// endpointRequest 创建端点请求体
type endpointRequest struct {
	Name                 string   `json:"name" binding:"required"`
	Route                string   `json:"route" binding:"required"`
	ModelConnectorID     string   `json:"modelConnectorId" binding:"required"`
	SystemPrompt         string   `json:"systemPrompt"`
	Temperature          *float64 `json:"temperature"`
	MaxTokens            *int     `json:"maxTokens"`
	TopP                 *float64 `json:"topP"`
	TokenLimitPerRequest *int     `json:"tokenLimitPerRequest"`
	RateLimitPerMinute   int      `json:"rateLimitPerMinute"`
	AccessType           string   `json:"accessType"`
	Frozen               bool     `json:"frozen"`
}

// updateRequest 更新端点请求体，指针字段区分 "没传" 与显式置空
type updateRequest struct {
	Name                 *string  `json:"name"`
	Route                *string  `json:"route"`
	ModelConnectorID     *string  `json:"modelConnectorId"`
	SystemPrompt         *string  `json:"systemPrompt"`
	Temperature          *float64 `json:"temperature"`
	MaxTokens            *int     `json:"maxTokens"`
	TopP                 *float64 `json:"topP"`
	TokenLimitPerRequest *int     `json:"tokenLimitPerRequest"`
	RateLimitPerMinute   *int     `json:"rateLimitPerMinute"`
	AccessType           *string  `json:"accessType"`
	Frozen               *bool    `json:"frozen"`
}

// List 列出端点
// @Summary 列出端点
// @Tags endpoints
// @Produce json
// @Success 200 {array} models.Endpoint
// @Router /api/endpoints [get]
func (h *Handler) List(c *gin.Context) {
	endpoints, err := h.service.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, endpoints)
}

// Get 查询端点
func (h *Handler) Get(c *gin.Context) {
	endpoint, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, store.ErrEndpointNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, endpoint)
}

// Create 创建端点
// @Summary 创建端点
// @Tags endpoints
// @Accept json
// @Produce json
// @Success 201 {object} models.Endpoint
// @Failure 400 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /api/endpoints [post]
func (h *Handler) Create(c *gin.Context) {
	var req endpointRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "请求参数错误: " + err.Error()})
		return
	}

	endpoint := &models.Endpoint{
		Name:                 req.Name,
		Route:                req.Route,
		ModelConnectorID:     req.ModelConnectorID,
		SystemPrompt:         req.SystemPrompt,
		Temperature:          req.Temperature,
		MaxTokens:            req.MaxTokens,
		TopP:                 req.TopP,
		TokenLimitPerRequest: req.TokenLimitPerRequest,
		RateLimitPerMinute:   req.RateLimitPerMinute,
		AccessType:           req.AccessType,
		Frozen:               req.Frozen,
		CreatedBy:            c.GetString("user_id"),
	}

	if err := h.service.Create(c.Request.Context(), endpoint); err != nil {
		switch {
		case errors.Is(err, store.ErrRouteConflict):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case errors.Is(err, store.ErrEndpointInvalid), errors.Is(err, store.ErrConnectorNotFound):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	common.RecordAudit(c, h.store, "create", "endpoint", endpoint.ID, gin.H{"route": endpoint.Route})
	c.JSON(http.StatusCreated, endpoint)
}

// Update 更新端点
func (h *Handler) Update(c *gin.Context) {
	var req updateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "请求参数错误: " + err.Error()})
		return
	}

	updates := map[string]interface{}{}
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.Route != nil {
		updates["route"] = *req.Route
	}
	if req.ModelConnectorID != nil {
		updates["model_connector_id"] = *req.ModelConnectorID
	}
	if req.SystemPrompt != nil {
		updates["system_prompt"] = *req.SystemPrompt
	}
	if req.Temperature != nil {
		updates["temperature"] = *req.Temperature
	}
	if req.MaxTokens != nil {
		updates["max_tokens"] = *req.MaxTokens
	}
	if req.TopP != nil {
		updates["top_p"] = *req.TopP
	}
	if req.TokenLimitPerRequest != nil {
		updates["token_limit_per_request"] = *req.TokenLimitPerRequest
	}
	if req.RateLimitPerMinute != nil {
		updates["rate_limit_per_minute"] = *req.RateLimitPerMinute
	}
	if req.AccessType != nil {
		updates["access_type"] = *req.AccessType
	}
	if req.Frozen != nil {
		updates["frozen"] = *req.Frozen
	}

	endpoint, err := h.service.Update(c.Request.Context(), c.Param("id"), updates)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrEndpointNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		case errors.Is(err, store.ErrEndpointFrozen):
			c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
		case errors.Is(err, store.ErrRouteConflict):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case errors.Is(err, store.ErrEndpointInvalid):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	common.RecordAudit(c, h.store, "update", "endpoint", endpoint.ID, gin.H{"route": endpoint.Route})
	c.JSON(http.StatusOK, endpoint)
}

// Delete 删除端点
func (h *Handler) Delete(c *gin.Context) {
	id := c.Param("id")
	if err := h.service.Delete(c.Request.Context(), id); err != nil {
		switch {
		case errors.Is(err, store.ErrEndpointNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		case errors.Is(err, store.ErrEndpointFrozen):
			c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	common.RecordAudit(c, h.store, "delete", "endpoint", id, nil)
	c.JSON(http.StatusOK, gin.H{"success": true})
}
