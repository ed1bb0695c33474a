package store

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/Remex-Wangkhem/Aix-Studio/internal/models"
)

var (
	ErrEndpointNotFound = errors.New("端点不存在")
	ErrEndpointFrozen   = errors.New("端点已冻结，禁止修改")
	ErrRouteConflict    = errors.New("路由已被占用")
	ErrEndpointInvalid  = errors.New("端点配置无效")
)

// EndpointService 端点管理服务
type EndpointService struct {
	db             *gorm.DB
	defaultRateRPM int
}

// NewEndpointService 创建服务
// defaultRateRPM 是未显式限流的端点的每分钟调用上限
func NewEndpointService(db *gorm.DB, defaultRateRPM int) *EndpointService {
	if defaultRateRPM <= 0 {
		defaultRateRPM = 60
	}
	return &EndpointService{db: db, defaultRateRPM: defaultRateRPM}
}

// normalizeRoute 统一路由形式：去首尾空白、去掉开头斜杠
func normalizeRoute(route string) string {
	return strings.TrimPrefix(strings.TrimSpace(route), "/")
}

// Create 创建端点
func (s *EndpointService) Create(ctx context.Context, endpoint *models.Endpoint) error {
	endpoint.Route = normalizeRoute(endpoint.Route)
	if endpoint.Name == "" || endpoint.Route == "" || endpoint.ModelConnectorID == "" {
		return ErrEndpointInvalid
	}

	// 引用的连接器必须存在
	var connectorCount int64
	if err := s.db.WithContext(ctx).Model(&models.ModelConnector{}).
		Where("id = ?", endpoint.ModelConnectorID).Count(&connectorCount).Error; err != nil {
		return err
	}
	if connectorCount == 0 {
		return ErrConnectorNotFound
	}

	var routeCount int64
	if err := s.db.WithContext(ctx).Model(&models.Endpoint{}).
		Where("route = ?", endpoint.Route).Count(&routeCount).Error; err != nil {
		return err
	}
	if routeCount > 0 {
		return ErrRouteConflict
	}

	if endpoint.ID == "" {
		endpoint.ID = newID()
	}
	if endpoint.AccessType == "" {
		endpoint.AccessType = "private"
	}
	if endpoint.RateLimitPerMinute == 0 {
		endpoint.RateLimitPerMinute = s.defaultRateRPM
	}

	return s.db.WithContext(ctx).Create(endpoint).Error
}

// Get 按 ID 查询
func (s *EndpointService) Get(ctx context.Context, id string) (*models.Endpoint, error) {
	var endpoint models.Endpoint
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&endpoint).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEndpointNotFound
		}
		return nil, err
	}
	return &endpoint, nil
}

// List 列出全部端点
func (s *EndpointService) List(ctx context.Context) ([]models.Endpoint, error) {
	var endpoints []models.Endpoint
	err := s.db.WithContext(ctx).Order("created_at DESC").Find(&endpoints).Error
	return endpoints, err
}

// Update 更新端点，冻结端点拒绝修改（解冻除外）
func (s *EndpointService) Update(ctx context.Context, id string, updates map[string]interface{}) (*models.Endpoint, error) {
	endpoint, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	// 冻结端点只允许 frozen=false 这一项变更
	if endpoint.Frozen {
		if frozen, ok := updates["frozen"].(bool); !ok || frozen || len(updates) != 1 {
			return nil, ErrEndpointFrozen
		}
	}

	if route, ok := updates["route"].(string); ok {
		route = normalizeRoute(route)
		if route == "" {
			return nil, ErrEndpointInvalid
		}
		var count int64
		if err := s.db.WithContext(ctx).Model(&models.Endpoint{}).
			Where("route = ? AND id <> ?", route, id).Count(&count).Error; err != nil {
			return nil, err
		}
		if count > 0 {
			return nil, ErrRouteConflict
		}
		updates["route"] = route
	}

	if err := s.db.WithContext(ctx).Model(endpoint).Updates(updates).Error; err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// Delete 删除端点，冻结端点拒绝删除
func (s *EndpointService) Delete(ctx context.Context, id string) error {
	endpoint, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if endpoint.Frozen {
		return ErrEndpointFrozen
	}
	return s.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Endpoint{}).Error
}
