package connectors

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Remex-Wangkhem/Aix-Studio/api/handlers/common"
	"github.com/Remex-Wangkhem/Aix-Studio/internal/adapters"
	"github.com/Remex-Wangkhem/Aix-Studio/internal/gateway"
	"github.com/Remex-Wangkhem/Aix-Studio/internal/models"
	"github.com/Remex-Wangkhem/Aix-Studio/internal/store"
)

// Handler 连接器管理 Handler
type Handler struct {
	service *store.ConnectorService
	factory *adapters.Factory
	store   gateway.Store
}

// NewHandler 创建 Handler
func NewHandler(service *store.ConnectorService, factory *adapters.Factory, gwStore gateway.Store) *Handler {
	return &Handler{service: service, factory: factory, store: gwStore}
}

// connectorRequest 创建/更新连接器请求体
type connectorRequest struct {
	Name            string                    `json:"name"`
	Protocol        string                    `json:"protocol"`
	BaseURL         string                    `json:"baseUrl"`
	AuthType        string                    `json:"authType"`
	AuthToken       string                    `json:"authToken"`
	DefaultSettings *models.ConnectorSettings `json:"defaultSettings"`
}

// List 列出连接器
// @Summary 列出连接器
// @Tags connectors
// @Produce json
// @Success 200 {array} models.ModelConnector
// @Router /api/model-connectors [get]
func (h *Handler) List(c *gin.Context) {
	connectors, err := h.service.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, connectors)
}

// Get 查询连接器
func (h *Handler) Get(c *gin.Context) {
	connector, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, store.ErrConnectorNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, connector)
}

// Create 创建连接器
// @Summary 创建连接器
// @Tags connectors
// @Accept json
// @Produce json
// @Success 201 {object} models.ModelConnector
// @Failure 400 {object} map[string]string
// @Router /api/model-connectors [post]
func (h *Handler) Create(c *gin.Context) {
	var req connectorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "请求参数错误: " + err.Error()})
		return
	}

	connector := &models.ModelConnector{
		Name:            req.Name,
		Protocol:        req.Protocol,
		BaseURL:         req.BaseURL,
		AuthType:        req.AuthType,
		AuthToken:       req.AuthToken,
		DefaultSettings: req.DefaultSettings,
		CreatedBy:       c.GetString("user_id"),
	}

	if err := h.service.Create(c.Request.Context(), connector); err != nil {
		if errors.Is(err, store.ErrConnectorInvalid) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	common.RecordAudit(c, h.store, "create", "model_connector", connector.ID, gin.H{"name": connector.Name})
	c.JSON(http.StatusCreated, connector)
}

// Update 更新连接器
func (h *Handler) Update(c *gin.Context) {
	var req connectorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "请求参数错误: " + err.Error()})
		return
	}

	updates := &models.ModelConnector{
		Name:            req.Name,
		Protocol:        req.Protocol,
		BaseURL:         req.BaseURL,
		AuthType:        req.AuthType,
		AuthToken:       req.AuthToken,
		DefaultSettings: req.DefaultSettings,
	}

	connector, err := h.service.Update(c.Request.Context(), c.Param("id"), updates)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrConnectorNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		case errors.Is(err, store.ErrConnectorInvalid):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	// 配置变了，缓存的适配器作废
	h.factory.ClearCache()

	common.RecordAudit(c, h.store, "update", "model_connector", connector.ID, gin.H{"name": connector.Name})
	c.JSON(http.StatusOK, connector)
}

// Delete 删除连接器
func (h *Handler) Delete(c *gin.Context) {
	id := c.Param("id")
	if err := h.service.Delete(c.Request.Context(), id); err != nil {
		if errors.Is(err, store.ErrConnectorNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.factory.ClearCache()
	common.RecordAudit(c, h.store, "delete", "model_connector", id, nil)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// HealthCheck 即时健康探测并落库
// @Summary 探测连接器健康状态
// @Tags connectors
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /api/model-connectors/{id}/health [post]
func (h *Handler) HealthCheck(c *gin.Context) {
	connector, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, store.ErrConnectorNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	probeCtx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	healthy := h.factory.ForConnector(connector).HealthCheck(probeCtx)

	if err := h.service.SetHealthStatus(c.Request.Context(), connector.ID, healthy); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	status := "unhealthy"
	if healthy {
		status = "healthy"
	}

	common.RecordAudit(c, h.store, "health_check", "model_connector", connector.ID, gin.H{"status": status})
	c.JSON(http.StatusOK, gin.H{"healthy": healthy, "status": status})
}
