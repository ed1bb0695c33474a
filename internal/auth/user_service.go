package auth

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/Remex-Wangkhem/Aix-Studio/internal/models"
)

var (
	ErrUserExists         = errors.New("用户名或邮箱已被注册")
	ErrInvalidCredentials = errors.New("用户名或密码错误")
)

// UserService 用户注册与登录服务
type UserService struct {
	db  *gorm.DB
	jwt *JWTService
}

// NewUserService 创建服务
func NewUserService(db *gorm.DB, jwt *JWTService) *UserService {
	return &UserService{db: db, jwt: jwt}
}

// Register 注册新用户
func (s *UserService) Register(ctx context.Context, username, email, password string) (*models.User, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).
		Where("username = ? OR email = ?", username, email).Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, ErrUserExists
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		ID:           uuid.New().String(),
		Username:     username,
		Email:        email,
		PasswordHash: string(hash),
		Role:         "user",
	}

	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		return nil, err
	}
	return user, nil
}

// Login 校验凭证并签发令牌
func (s *UserService) Login(ctx context.Context, username, password string) (*models.User, string, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where("username = ?", username).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, "", ErrInvalidCredentials
		}
		return nil, "", err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, "", ErrInvalidCredentials
	}

	token, err := s.jwt.GenerateToken(user.ID, user.Role)
	if err != nil {
		return nil, "", err
	}
	return &user, token, nil
}
