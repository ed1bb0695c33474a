package store

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/Remex-Wangkhem/Aix-Studio/internal/models"
)

var ErrConversationNotFound = errors.New("会话不存在")

// ConversationService 调试台会话服务
type ConversationService struct {
	db *gorm.DB
}

// NewConversationService 创建服务
func NewConversationService(db *gorm.DB) *ConversationService {
	return &ConversationService{db: db}
}

// Create 创建会话
func (s *ConversationService) Create(ctx context.Context, conv *models.Conversation) error {
	if conv.ID == "" {
		conv.ID = newID()
	}
	if conv.Title == "" {
		conv.Title = "新会话"
	}
	return s.db.WithContext(ctx).Create(conv).Error
}

// Get 按 ID 查询会话（校验归属）
func (s *ConversationService) Get(ctx context.Context, id, userID string) (*models.Conversation, error) {
	var conv models.Conversation
	if err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&conv).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, err
	}
	return &conv, nil
}

// List 列出用户的会话
func (s *ConversationService) List(ctx context.Context, userID string) ([]models.Conversation, error) {
	var convs []models.Conversation
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("updated_at DESC").
		Find(&convs).Error
	return convs, err
}

// Update 更新标题或收藏状态
func (s *ConversationService) Update(ctx context.Context, id, userID string, updates map[string]interface{}) (*models.Conversation, error) {
	conv, err := s.Get(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Model(conv).Updates(updates).Error; err != nil {
		return nil, err
	}
	return s.Get(ctx, id, userID)
}

// Delete 删除会话及其消息
func (s *ConversationService) Delete(ctx context.Context, id, userID string) error {
	if _, err := s.Get(ctx, id, userID); err != nil {
		return err
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("conversation_id = ?", id).Delete(&models.Message{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&models.Conversation{}).Error
	})
}

// AppendMessage 追加会话消息并刷新会话更新时间
func (s *ConversationService) AppendMessage(ctx context.Context, msg *models.Message) error {
	if msg.ID == "" {
		msg.ID = newID()
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(msg).Error; err != nil {
			return err
		}
		return tx.Model(&models.Conversation{}).
			Where("id = ?", msg.ConversationID).
			Update("updated_at", gorm.Expr("CURRENT_TIMESTAMP")).Error
	})
}

// ListMessages 按时间顺序列出会话消息
func (s *ConversationService) ListMessages(ctx context.Context, conversationID string) ([]models.Message, error) {
	var messages []models.Message
	err := s.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at ASC").
		Find(&messages).Error
	return messages, err
}
