package store

import (
	"context"

	"gorm.io/gorm"

	"github.com/Remex-Wangkhem/Aix-Studio/internal/models"
)

// UsageService 用量与审计查询服务
type UsageService struct {
	db *gorm.DB
}

// NewUsageService 创建服务
func NewUsageService(db *gorm.DB) *UsageService {
	return &UsageService{db: db}
}

// ListUsage 按时间倒序查询用量记录
func (s *UsageService) ListUsage(ctx context.Context, apiKeyID string, limit int) ([]models.UsageRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	query := s.db.WithContext(ctx).Order("created_at DESC").Limit(limit)
	if apiKeyID != "" {
		query = query.Where("api_key_id = ?", apiKeyID)
	}

	var records []models.UsageRecord
	err := query.Find(&records).Error
	return records, err
}

// UsageSummary 用量汇总
type UsageSummary struct {
	TotalTokens int64   `json:"totalTokens"`
	TotalCost   float64 `json:"totalCost"`
	Records     int64   `json:"records"`
}

// Summarize 汇总指定密钥（或全部）的用量
func (s *UsageService) Summarize(ctx context.Context, apiKeyID string) (*UsageSummary, error) {
	query := s.db.WithContext(ctx).Model(&models.UsageRecord{})
	if apiKeyID != "" {
		query = query.Where("api_key_id = ?", apiKeyID)
	}

	var summary UsageSummary
	err := query.Select(
		"COALESCE(SUM(tokens), 0) AS total_tokens, COALESCE(SUM(cost), 0) AS total_cost, COUNT(*) AS records",
	).Scan(&summary).Error
	return &summary, err
}

// ListAuditLogs 按时间倒序查询审计日志
func (s *UsageService) ListAuditLogs(ctx context.Context, limit int) ([]models.AuditLog, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	var logs []models.AuditLog
	err := s.db.WithContext(ctx).Order("created_at DESC").Limit(limit).Find(&logs).Error
	return logs, err
}
