package common

import (
	"encoding/json"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/Remex-Wangkhem/Aix-Studio/internal/gateway"
	"github.com/Remex-Wangkhem/Aix-Studio/internal/logger"
	"github.com/Remex-Wangkhem/Aix-Studio/internal/models"
)

// RecordAudit 追加一条审计日志
// 旁路写入：失败只记日志，绝不影响业务响应
func RecordAudit(c *gin.Context, store gateway.Store, action, resourceType, resourceID string, details map[string]any) {
	var detailsJSON datatypes.JSON
	if len(details) > 0 {
		if raw, err := json.Marshal(details); err == nil {
			detailsJSON = raw
		}
	}

	entry := &models.AuditLog{
		UserID:       c.GetString("user_id"),
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Details:      detailsJSON,
		IPAddress:    c.ClientIP(),
	}

	if err := store.AppendAuditLog(c.Request.Context(), entry); err != nil {
		logger.Warn("写入审计日志失败",
			zap.String("action", action),
			zap.String("resource_type", resourceType),
			zap.Error(err),
		)
	}
}
