package modeladapter

import "context"

// Message 归一化消息
type Message struct {
	Role    string `json:"role"`    // system, user, assistant
	Content string `json:"content"` // 消息内容
}

// ModelRequest 归一化模型请求
// 与上游协议无关，由各适配器翻译为具体的线上格式
type ModelRequest struct {
	Messages    []Message `json:"messages"`              // 有序消息列表
	Temperature float64   `json:"temperature,omitempty"` // 温度参数
	MaxTokens   int       `json:"max_tokens,omitempty"`  // 最大输出 Token 数
	TopP        float64   `json:"top_p,omitempty"`       // Top P 采样
	Stop        []string  `json:"stop,omitempty"`        // 停止序列
}

// ModelResponse 归一化模型响应
type ModelResponse struct {
	Content      string `json:"content"`       // 生成的文本
	Tokens       int    `json:"tokens"`        // 上游上报的 Token 数，0 表示未上报
	FinishReason string `json:"finish_reason"` // 结束原因
}

// StreamChunk 流式响应块
// 终止块 Done=true 且 Content 为空
type StreamChunk struct {
	Content string `json:"content"`
	Done    bool   `json:"done"`
}

// Adapter 上游模型适配器统一接口
// 执行引擎只依赖此接口，新增上游协议仅需实现本接口
type Adapter interface {
	// Execute 阻塞式调用
	Execute(ctx context.Context, req *ModelRequest) (*ModelResponse, error)

	// ExecuteStream 流式调用
	// 返回的 channel 持续发送响应块直到完成或出错；
	// 消费者取消 ctx 即关闭底层传输，适配器不再发送后续块，也不报错
	ExecuteStream(ctx context.Context, req *ModelRequest) (<-chan StreamChunk, <-chan error)

	// HealthCheck 尽力而为的存活探测
	// 任何传输层失败都解析为 false，永不返回错误
	HealthCheck(ctx context.Context) bool
}

// FindContent 按角色查找第一条消息的内容，未找到返回 fallback
func (r *ModelRequest) FindContent(role, fallback string) string {
	for _, m := range r.Messages {
		if m.Role == role {
			return m.Content
		}
	}
	return fallback
}
