package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Remex-Wangkhem/Aix-Studio/internal/models"
)

var (
	ErrConnectorNotFound = errors.New("连接器不存在")
	ErrConnectorInvalid  = errors.New("连接器配置无效")
)

// newID 生成实体主键
func newID() string {
	return uuid.New().String()
}

// ConnectorService 连接器管理服务
type ConnectorService struct {
	db *gorm.DB
}

// NewConnectorService 创建服务
func NewConnectorService(db *gorm.DB) *ConnectorService {
	return &ConnectorService{db: db}
}

// validateConnector 配置约束检查
func validateConnector(c *models.ModelConnector) error {
	if c.Name == "" || c.BaseURL == "" {
		return ErrConnectorInvalid
	}
	if c.AuthType == "" {
		c.AuthType = "none"
	}
	// none 认证不允许携带令牌，其他认证方式必须有令牌
	if c.AuthType == "none" && c.AuthToken != "" {
		return ErrConnectorInvalid
	}
	if c.AuthType != "none" && c.AuthToken == "" {
		return ErrConnectorInvalid
	}
	return nil
}

// Create 创建连接器
func (s *ConnectorService) Create(ctx context.Context, connector *models.ModelConnector) error {
	if err := validateConnector(connector); err != nil {
		return err
	}
	if connector.ID == "" {
		connector.ID = newID()
	}
	if connector.HealthStatus == "" {
		connector.HealthStatus = "unknown"
	}
	return s.db.WithContext(ctx).Create(connector).Error
}

// Get 按 ID 查询
func (s *ConnectorService) Get(ctx context.Context, id string) (*models.ModelConnector, error) {
	var connector models.ModelConnector
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&connector).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrConnectorNotFound
		}
		return nil, err
	}
	return &connector, nil
}

// List 列出全部连接器
func (s *ConnectorService) List(ctx context.Context) ([]models.ModelConnector, error) {
	var connectors []models.ModelConnector
	err := s.db.WithContext(ctx).Order("created_at DESC").Find(&connectors).Error
	return connectors, err
}

// Update 更新连接器
func (s *ConnectorService) Update(ctx context.Context, id string, updates *models.ModelConnector) (*models.ModelConnector, error) {
	connector, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if updates.Name != "" {
		connector.Name = updates.Name
	}
	if updates.Protocol != "" {
		connector.Protocol = updates.Protocol
	}
	if updates.BaseURL != "" {
		connector.BaseURL = updates.BaseURL
	}
	if updates.AuthType != "" {
		connector.AuthType = updates.AuthType
		connector.AuthToken = updates.AuthToken
	} else if updates.AuthToken != "" {
		connector.AuthToken = updates.AuthToken
	}
	if updates.DefaultSettings != nil {
		connector.DefaultSettings = updates.DefaultSettings
	}

	if err := validateConnector(connector); err != nil {
		return nil, err
	}

	if err := s.db.WithContext(ctx).Save(connector).Error; err != nil {
		return nil, err
	}
	return connector, nil
}

// Delete 删除连接器（仍被端点引用时拒绝）
func (s *ConnectorService) Delete(ctx context.Context, id string) error {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Endpoint{}).
		Where("model_connector_id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return errors.New("连接器仍被端点引用，无法删除")
	}

	result := s.db.WithContext(ctx).Where("id = ?", id).Delete(&models.ModelConnector{})
	if result.RowsAffected == 0 {
		return ErrConnectorNotFound
	}
	return result.Error
}

// SetHealthStatus 写入健康探测结果
func (s *ConnectorService) SetHealthStatus(ctx context.Context, id string, healthy bool) error {
	status := "unhealthy"
	if healthy {
		status = "healthy"
	}
	now := time.Now()

	result := s.db.WithContext(ctx).Model(&models.ModelConnector{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"health_status":     status,
			"last_health_check": now,
		})
	if result.RowsAffected == 0 {
		return ErrConnectorNotFound
	}
	return result.Error
}
