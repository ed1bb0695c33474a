package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Remex-Wangkhem/Aix-Studio/internal/models"
)

var ErrAPIKeyNotFound = errors.New("API 密钥不存在")

// APIKeyService API 密钥管理服务
// 密钥明文入库并加唯一索引，网关按明文直接查找
type APIKeyService struct {
	db *gorm.DB
}

// NewAPIKeyService 创建服务
func NewAPIKeyService(db *gorm.DB) *APIKeyService {
	return &APIKeyService{db: db}
}

// CreateAPIKeyRequest 创建密钥请求
type CreateAPIKeyRequest struct {
	Name        string   `json:"name" binding:"required"`
	UserID      string   `json:"userId"`
	Scopes      []string `json:"scopes"`
	QuotaTokens *int     `json:"quotaTokens"`
	RateLimit   int      `json:"rateLimit"`
	ExpiresIn   int      `json:"expiresIn"` // 有效期（天），0 表示永久
}

// Create 创建 API 密钥，完整密钥仅在此返回一次
func (s *APIKeyService) Create(ctx context.Context, req *CreateAPIKeyRequest) (*models.APIKey, error) {
	keyBytes := make([]byte, 32)
	if _, err := rand.Read(keyBytes); err != nil {
		return nil, err
	}
	rawKey := "sk_" + hex.EncodeToString(keyBytes)

	var expiresAt *time.Time
	if req.ExpiresIn > 0 {
		t := time.Now().AddDate(0, 0, req.ExpiresIn)
		expiresAt = &t
	}

	rateLimit := req.RateLimit
	if rateLimit <= 0 {
		rateLimit = 100
	}

	scopes := req.Scopes
	if len(scopes) == 0 {
		scopes = []string{"read"}
	}

	apiKey := &models.APIKey{
		ID:          uuid.New().String(),
		Key:         rawKey,
		Name:        req.Name,
		UserID:      req.UserID,
		Scopes:      scopes,
		QuotaTokens: req.QuotaTokens,
		RateLimit:   rateLimit,
		ExpiresAt:   expiresAt,
	}

	if err := s.db.WithContext(ctx).Create(apiKey).Error; err != nil {
		return nil, err
	}
	return apiKey, nil
}

// List 列出密钥，返回前打码
func (s *APIKeyService) List(ctx context.Context) ([]models.APIKey, error) {
	var keys []models.APIKey
	if err := s.db.WithContext(ctx).Order("created_at DESC").Find(&keys).Error; err != nil {
		return nil, err
	}
	for i := range keys {
		keys[i].Key = MaskKey(keys[i].Key)
	}
	return keys, nil
}

// Get 按 ID 查询（打码）
func (s *APIKeyService) Get(ctx context.Context, id string) (*models.APIKey, error) {
	var key models.APIKey
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&key).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAPIKeyNotFound
		}
		return nil, err
	}
	key.Key = MaskKey(key.Key)
	return &key, nil
}

// Delete 删除密钥
func (s *APIKeyService) Delete(ctx context.Context, id string) error {
	result := s.db.WithContext(ctx).Where("id = ?", id).Delete(&models.APIKey{})
	if result.RowsAffected == 0 {
		return ErrAPIKeyNotFound
	}
	return result.Error
}

// MaskKey 打码：保留前缀与前 8 位
func MaskKey(rawKey string) string {
	if len(rawKey) <= 11 {
		return rawKey
	}
	return rawKey[:11] + "..."
}
