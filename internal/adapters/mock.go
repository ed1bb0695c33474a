package adapters

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Remex-Wangkhem/Aix-Studio/pkg/modeladapter"
)

// MockAdapter 模拟适配器，用于本地开发与端到端调试
// 回显合并后的系统提示词与推理参数，便于验证端点覆盖是否生效
type MockAdapter struct {
	baseURL string
}

// NewMockAdapter 创建模拟适配器
func NewMockAdapter(baseURL string) *MockAdapter {
	return &MockAdapter{baseURL: baseURL}
}

// Execute 非流式调用（模拟 500ms 延迟）
func (a *MockAdapter) Execute(ctx context.Context, req *modeladapter.ModelRequest) (*modeladapter.ModelResponse, error) {
	select {
	case <-time.After(500 * time.Millisecond):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	systemPrompt := req.FindContent("system", "No system prompt")
	userMessage := req.FindContent("user", "")

	content := fmt.Sprintf(`[Mock Response]
System Prompt: %q
Temperature: %v
Max Tokens: %v

Response to: %q

This is a simulated response from the mock adapter. The settings above demonstrate that system prompt and temperature overrides are working correctly.`,
		systemPrompt, orFloat(req.Temperature, 0.7), orInt(req.MaxTokens, 2048), userMessage)

	return &modeladapter.ModelResponse{
		Content:      content,
		Tokens:       len(content) / 4,
		FinishReason: "stop",
	}, nil
}

// ExecuteStream 流式调用，按词切分并每 50ms 推送一块
func (a *MockAdapter) ExecuteStream(ctx context.Context, req *modeladapter.ModelRequest) (<-chan modeladapter.StreamChunk, <-chan error) {
	chunkChan := make(chan modeladapter.StreamChunk, 10)
	errChan := make(chan error, 1)

	go func() {
		defer close(chunkChan)
		defer close(errChan)

		systemPrompt := req.FindContent("system", "No system prompt")

		content := fmt.Sprintf(`[Mock Streaming Response]
System Prompt: %q
Temperature: %v

This is a simulated streaming response. `,
			systemPrompt, orFloat(req.Temperature, 0.7))

		for _, word := range strings.Split(content, " ") {
			select {
			case <-time.After(50 * time.Millisecond):
			case <-ctx.Done():
				return
			}

			select {
			case chunkChan <- modeladapter.StreamChunk{Content: word + " "}:
			case <-ctx.Done():
				return
			}
		}

		select {
		case chunkChan <- modeladapter.StreamChunk{Done: true}:
		case <-ctx.Done():
		}
	}()

	return chunkChan, errChan
}

// HealthCheck 模拟适配器永远健康
func (a *MockAdapter) HealthCheck(ctx context.Context) bool {
	return true
}

func orFloat(v, fallback float64) float64 {
	if v == 0 {
		return fallback
	}
	return v
}

func orInt(v, fallback int) int {
	if v == 0 {
		return fallback
	}
	return v
}
