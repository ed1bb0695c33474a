package models

import (
	"time"

	"gorm.io/datatypes"
)

// User 用户（RBAC）
type User struct {
	ID           string    `json:"id" gorm:"primaryKey;type:uuid"`
	Username     string    `json:"username" gorm:"size:100;not null;uniqueIndex"`
	Email        string    `json:"email" gorm:"size:255;not null;uniqueIndex"`
	PasswordHash string    `json:"-" gorm:"column:password;size:255;not null"` // bcrypt
	Role         string    `json:"role" gorm:"size:50;not null;default:user"`  // user, admin
	CreatedAt    time.Time `json:"createdAt" gorm:"not null;autoCreateTime"`
	UpdatedAt    time.Time `json:"updatedAt" gorm:"not null;autoUpdateTime"`
}

// ConnectorSettings 连接器默认推理参数
// 指针字段区分 "未设置" 与显式零值，合并逻辑依赖这一点
type ConnectorSettings struct {
	Temperature *float64 `json:"temperature,omitempty"`
	MaxTokens   *int     `json:"maxTokens,omitempty"`
	TopP        *float64 `json:"topP,omitempty"`
	StopTokens  []string `json:"stopTokens,omitempty"`
}

// ModelConnector 模型连接器（外部 LLM 服务地址）
type ModelConnector struct {
	ID       string `json:"id" gorm:"primaryKey;type:uuid"`
	Name     string `json:"name" gorm:"size:100;not null"`
	Protocol string `json:"protocol" gorm:"size:50;not null"` // mock, rest, openai
	BaseURL  string `json:"baseUrl" gorm:"size:500;not null"`

	// 认证方式：none 时 authToken 必须为空
	AuthType  string `json:"authType" gorm:"size:50;not null;default:none"` // none, bearer, api_key
	AuthToken string `json:"-" gorm:"size:500"`

	DefaultSettings *ConnectorSettings `json:"defaultSettings" gorm:"type:jsonb;serializer:json"`

	HealthStatus    string     `json:"healthStatus" gorm:"size:32;default:unknown"` // unknown, healthy, unhealthy
	LastHealthCheck *time.Time `json:"lastHealthCheck"`

	CreatedBy string    `json:"createdBy" gorm:"type:uuid;index"`
	CreatedAt time.Time `json:"createdAt" gorm:"not null;autoCreateTime"`
	UpdatedAt time.Time `json:"updatedAt" gorm:"not null;autoUpdateTime"`
}

// Endpoint 受管端点（路由 → 连接器 + 参数覆盖）
type Endpoint struct {
	ID               string `json:"id" gorm:"primaryKey;type:uuid"`
	Name             string `json:"name" gorm:"size:100;not null;uniqueIndex"`
	Route            string `json:"route" gorm:"size:255;not null;uniqueIndex"`
	ModelConnectorID string `json:"modelConnectorId" gorm:"type:uuid;not null;index"`

	// 参数覆盖：nil 表示继承连接器默认值
	SystemPrompt string   `json:"systemPrompt" gorm:"type:text"`
	Temperature  *float64 `json:"temperature" gorm:"type:decimal(3,2)"`
	MaxTokens    *int     `json:"maxTokens"`
	TopP         *float64 `json:"topP" gorm:"type:decimal(3,2)"`

	TokenLimitPerRequest *int   `json:"tokenLimitPerRequest"`
	RateLimitPerMinute   int    `json:"rateLimitPerMinute" gorm:"default:60"`
	AccessType           string `json:"accessType" gorm:"size:50;not null;default:private"` // private, public
	Frozen               bool   `json:"frozen" gorm:"default:false"`                        // 冻结后拒绝修改与删除

	CreatedBy string    `json:"createdBy" gorm:"type:uuid;index"`
	CreatedAt time.Time `json:"createdAt" gorm:"not null;autoCreateTime"`
	UpdatedAt time.Time `json:"updatedAt" gorm:"not null;autoUpdateTime"`
}

// APIKey 对外访问密钥
// Key 明文存储并加唯一索引，按密钥查找是网关鉴权的热路径
type APIKey struct {
	ID     string `json:"id" gorm:"primaryKey;type:uuid"`
	Key    string `json:"key" gorm:"size:128;not null;uniqueIndex"` // sk_ 前缀
	Name   string `json:"name" gorm:"size:100;not null"`
	UserID string `json:"userId" gorm:"type:uuid;index"`

	Scopes []string `json:"scopes" gorm:"type:jsonb;serializer:json"`

	// 配额：QuotaTokens 为 nil 表示不限量
	QuotaTokens *int `json:"quotaTokens"`
	UsedTokens  int  `json:"usedTokens" gorm:"default:0"`
	RateLimit   int  `json:"rateLimit" gorm:"default:100"` // 每分钟请求数

	ExpiresAt  *time.Time `json:"expiresAt"`
	LastUsedAt *time.Time `json:"lastUsedAt"`
	CreatedAt  time.Time  `json:"createdAt" gorm:"not null;autoCreateTime"`
}

// Conversation 会话（调试台聊天记录）
type Conversation struct {
	ID               string    `json:"id" gorm:"primaryKey;type:uuid"`
	Title            string    `json:"title" gorm:"size:255;not null"`
	UserID           string    `json:"userId" gorm:"type:uuid;not null;index"`
	ModelConnectorID string    `json:"modelConnectorId" gorm:"type:uuid;index"`
	Favorite         bool      `json:"favorite" gorm:"default:false"`
	CreatedAt        time.Time `json:"createdAt" gorm:"not null;autoCreateTime"`
	UpdatedAt        time.Time `json:"updatedAt" gorm:"not null;autoUpdateTime"`
}

// Message 会话消息
type Message struct {
	ID             string    `json:"id" gorm:"primaryKey;type:uuid"`
	ConversationID string    `json:"conversationId" gorm:"type:uuid;not null;index"`
	Role           string    `json:"role" gorm:"size:50;not null"` // user, assistant, system
	Content        string    `json:"content" gorm:"type:text;not null"`
	Tokens         *int      `json:"tokens"`
	CreatedAt      time.Time `json:"createdAt" gorm:"not null;autoCreateTime"`
}

// AuditLog 管理操作审计日志
type AuditLog struct {
	ID           string         `json:"id" gorm:"primaryKey;type:uuid"`
	UserID       string         `json:"userId" gorm:"type:uuid;index"`
	Action       string         `json:"action" gorm:"size:100;not null"` // create, update, delete, health_check
	ResourceType string         `json:"resourceType" gorm:"size:100;not null"`
	ResourceID   string         `json:"resourceId" gorm:"size:100"`
	Details      datatypes.JSON `json:"details" gorm:"type:jsonb"`
	IPAddress    string         `json:"ipAddress" gorm:"size:64"`
	CreatedAt    time.Time      `json:"createdAt" gorm:"not null;autoCreateTime;index"`
}

// UsageRecord 用量记录（计费依据，只增不改）
type UsageRecord struct {
	ID         string    `json:"id" gorm:"primaryKey;type:uuid"`
	UserID     string    `json:"userId" gorm:"type:uuid;index"`
	APIKeyID   string    `json:"apiKeyId" gorm:"type:uuid;index"`
	EndpointID string    `json:"endpointId" gorm:"type:uuid;index"`
	Tokens     int       `json:"tokens" gorm:"not null"`
	Cost       float64   `json:"cost" gorm:"type:decimal(10,6)"`
	CreatedAt  time.Time `json:"createdAt" gorm:"not null;autoCreateTime;index"`
}

// AllModels 自动迁移使用的实体清单
func AllModels() []interface{} {
	return []interface{}{
		&User{},
		&ModelConnector{},
		&Endpoint{},
		&APIKey{},
		&Conversation{},
		&Message{},
		&AuditLog{},
		&UsageRecord{},
	}
}
