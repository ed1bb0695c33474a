package gateway

import (
	"github.com/Remex-Wangkhem/Aix-Studio/internal/models"
	"github.com/Remex-Wangkhem/Aix-Studio/pkg/modeladapter"
)

// 参数兜底值，端点与连接器都未设置时生效
const (
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 2048
	DefaultTopP        = 1.0
)

// MergedSettings 合并后的推理参数，随响应一起返回便于调试
type MergedSettings struct {
	SystemPrompt string   `json:"-"`
	Temperature  float64  `json:"temperature"`
	MaxTokens    int      `json:"max_tokens"`
	TopP         float64  `json:"top_p"`
	Stop         []string `json:"stop,omitempty"`
}

// MergeSettings 按字段三级合并：端点覆盖 → 连接器默认 → 兜底值
func MergeSettings(endpoint *models.Endpoint, connector *models.ModelConnector) MergedSettings {
	merged := MergedSettings{
		SystemPrompt: endpoint.SystemPrompt,
		Temperature:  DefaultTemperature,
		MaxTokens:    DefaultMaxTokens,
		TopP:         DefaultTopP,
	}

	if defaults := connector.DefaultSettings; defaults != nil {
		if defaults.Temperature != nil {
			merged.Temperature = *defaults.Temperature
		}
		if defaults.MaxTokens != nil {
			merged.MaxTokens = *defaults.MaxTokens
		}
		if defaults.TopP != nil {
			merged.TopP = *defaults.TopP
		}
		merged.Stop = defaults.StopTokens
	}

	if endpoint.Temperature != nil {
		merged.Temperature = *endpoint.Temperature
	}
	if endpoint.MaxTokens != nil {
		merged.MaxTokens = *endpoint.MaxTokens
	}
	if endpoint.TopP != nil {
		merged.TopP = *endpoint.TopP
	}

	// 端点级单次请求上限压低 maxTokens
	if endpoint.TokenLimitPerRequest != nil && *endpoint.TokenLimitPerRequest > 0 && merged.MaxTokens > *endpoint.TokenLimitPerRequest {
		merged.MaxTokens = *endpoint.TokenLimitPerRequest
	}

	return merged
}

// BuildRequest 组装上游请求：可选系统消息在前，用户输入在后
func BuildRequest(settings MergedSettings, input string) *modeladapter.ModelRequest {
	var messages []modeladapter.Message
	if settings.SystemPrompt != "" {
		messages = append(messages, modeladapter.Message{Role: "system", Content: settings.SystemPrompt})
	}
	messages = append(messages, modeladapter.Message{Role: "user", Content: input})

	return &modeladapter.ModelRequest{
		Messages:    messages,
		Temperature: settings.Temperature,
		MaxTokens:   settings.MaxTokens,
		TopP:        settings.TopP,
		Stop:        settings.Stop,
	}
}

// EstimateTokens 上游未报用量时按字符数估算，4 字符折 1 token，向上取整
func EstimateTokens(content string) int {
	if content == "" {
		return 0
	}
	return (len(content) + 3) / 4
}
