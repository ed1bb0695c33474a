package gateway

import (
	"context"

	"github.com/Remex-Wangkhem/Aix-Studio/internal/models"
)

// Store 网关执行所需的最小存储面
// 管理端 CRUD 走各自的 Service，这里只保留热路径
type Store interface {
	// GetConnector 按 ID 查询连接器
	GetConnector(ctx context.Context, id string) (*models.ModelConnector, error)

	// GetEndpointByRoute 按路由精确匹配端点
	GetEndpointByRoute(ctx context.Context, route string) (*models.Endpoint, error)

	// GetAPIKeyBySecret 按密钥明文查询
	GetAPIKeyBySecret(ctx context.Context, secret string) (*models.APIKey, error)

	// AppendUsage 追加一条用量记录
	AppendUsage(ctx context.Context, record *models.UsageRecord) error

	// AddUsedTokens 原子累加密钥已用量并更新最后使用时间
	AddUsedTokens(ctx context.Context, keyID string, tokens int) error

	// AppendAuditLog 追加审计日志
	AppendAuditLog(ctx context.Context, entry *models.AuditLog) error
}
