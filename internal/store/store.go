package store

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/Remex-Wangkhem/Aix-Studio/internal/models"
)

// GormStore 网关热路径的 GORM 实现
type GormStore struct {
	db *gorm.DB
}

// NewGormStore 创建存储
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// GetConnector 按 ID 查询连接器
func (s *GormStore) GetConnector(ctx context.Context, id string) (*models.ModelConnector, error) {
	var connector models.ModelConnector
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&connector).Error; err != nil {
		return nil, err
	}
	return &connector, nil
}

// GetEndpointByRoute 按路由精确匹配端点
func (s *GormStore) GetEndpointByRoute(ctx context.Context, route string) (*models.Endpoint, error) {
	var endpoint models.Endpoint
	if err := s.db.WithContext(ctx).Where("route = ?", route).First(&endpoint).Error; err != nil {
		return nil, err
	}
	return &endpoint, nil
}

// GetAPIKeyBySecret 按密钥明文查询
func (s *GormStore) GetAPIKeyBySecret(ctx context.Context, secret string) (*models.APIKey, error) {
	var key models.APIKey
	if err := s.db.WithContext(ctx).Where("key = ?", secret).First(&key).Error; err != nil {
		return nil, err
	}
	return &key, nil
}

// AppendUsage 追加用量记录
func (s *GormStore) AppendUsage(ctx context.Context, record *models.UsageRecord) error {
	if record.ID == "" {
		record.ID = newID()
	}
	return s.db.WithContext(ctx).Create(record).Error
}

// AddUsedTokens 原子累加已用量，同时刷新最后使用时间
// SQL 级自增保证并发请求的计数不互相覆盖
func (s *GormStore) AddUsedTokens(ctx context.Context, keyID string, tokens int) error {
	now := time.Now()
	return s.db.WithContext(ctx).Model(&models.APIKey{}).
		Where("id = ?", keyID).
		Updates(map[string]interface{}{
			"used_tokens":  gorm.Expr("used_tokens + ?", tokens),
			"last_used_at": now,
		}).Error
}

// AppendAuditLog 追加审计日志
func (s *GormStore) AppendAuditLog(ctx context.Context, entry *models.AuditLog) error {
	if entry.ID == "" {
		entry.ID = newID()
	}
	return s.db.WithContext(ctx).Create(entry).Error
}
