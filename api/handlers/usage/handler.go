package usage

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/Remex-Wangkhem/Aix-Studio/internal/store"
)

// Handler 用量与审计查询 Handler
type Handler struct {
	service *store.UsageService
}

// NewHandler 创建 Handler
func NewHandler(service *store.UsageService) *Handler {
	return &Handler{service: service}
}

// ListUsage 查询用量记录
// @Summary 查询用量记录
// @Tags usage
// @Produce json
// @Param apiKeyId query string false "按密钥过滤"
// @Param limit query int false "返回条数"
// @Success 200 {array} models.UsageRecord
// @Router /api/usage-records [get]
func (h *Handler) ListUsage(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))

	records, err := h.service.ListUsage(c.Request.Context(), c.Query("apiKeyId"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, records)
}

// Summary 用量汇总
// @Summary 用量汇总
// @Tags usage
// @Produce json
// @Success 200 {object} store.UsageSummary
// @Router /api/usage-records/summary [get]
func (h *Handler) Summary(c *gin.Context) {
	summary, err := h.service.Summarize(c.Request.Context(), c.Query("apiKeyId"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, summary)
}

// ListAuditLogs 查询审计日志
// @Summary 查询审计日志
// @Tags usage
// @Produce json
// @Param limit query int false "返回条数"
// @Success 200 {array} models.AuditLog
// @Router /api/audit-logs [get]
func (h *Handler) ListAuditLogs(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))

	logs, err := h.service.ListAuditLogs(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, logs)
}
