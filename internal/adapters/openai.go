package adapters

import (
	"context"
	"errors"
	"io"

	openai "github.com/sashabaranov/go-openai"

	"github.com/Remex-Wangkhem/Aix-Studio/pkg/modeladapter"
)

// OpenAIAdapter 官方 OpenAI 协议适配器（基于 go-openai SDK）
// 与 RestAdapter 的区别：交给 SDK 处理流式解析、重试与组织头
type OpenAIAdapter struct {
	client *openai.Client
	model  string
}

// NewOpenAIAdapter 创建 OpenAI 适配器
// model 为空时默认 gpt-4o-mini
func NewOpenAIAdapter(baseURL, authToken, model string) *OpenAIAdapter {
	clientConfig := openai.DefaultConfig(authToken)
	if baseURL != "" {
		clientConfig.BaseURL = baseURL
	}
	if model == "" {
		model = openai.GPT4oMini
	}

	return &OpenAIAdapter{
		client: openai.NewClientWithConfig(clientConfig),
		model:  model,
	}
}

func (a *OpenAIAdapter) buildRequest(req *modeladapter.ModelRequest, stream bool) openai.ChatCompletionRequest {
	messages := make([]openai.ChatCompletionMessage, len(req.Messages))
	for i, msg := range req.Messages {
		messages[i] = openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		}
	}

	return openai.ChatCompletionRequest{
		Model:       a.model,
		Messages:    messages,
		Temperature: float32(req.Temperature),
		MaxTokens:   req.MaxTokens,
		TopP:        float32(req.TopP),
		Stop:        req.Stop,
		Stream:      stream,
	}
}

// Execute 非流式调用
func (a *OpenAIAdapter) Execute(ctx context.Context, req *modeladapter.ModelRequest) (*modeladapter.ModelResponse, error) {
	resp, err := a.client.CreateChatCompletion(ctx, a.buildRequest(req, false))
	if err != nil {
		return nil, wrapOpenAIError(err)
	}

	if len(resp.Choices) == 0 {
		return nil, &modeladapter.UpstreamError{
			StatusCode: 502,
			Message:    "API 返回空响应",
		}
	}

	return &modeladapter.ModelResponse{
		Content:      resp.Choices[0].Message.Content,
		Tokens:       resp.Usage.TotalTokens,
		FinishReason: string(resp.Choices[0].FinishReason),
	}, nil
}

// ExecuteStream 流式调用
func (a *OpenAIAdapter) ExecuteStream(ctx context.Context, req *modeladapter.ModelRequest) (<-chan modeladapter.StreamChunk, <-chan error) {
	chunkChan := make(chan modeladapter.StreamChunk, 10)
	errChan := make(chan error, 1)

	go func() {
		defer close(chunkChan)
		defer close(errChan)

		stream, err := a.client.CreateChatCompletionStream(ctx, a.buildRequest(req, true))
		if err != nil {
			errChan <- wrapOpenAIError(err)
			return
		}
		defer stream.Close()

		for {
			response, err := stream.Recv()
			if err != nil {
				// EOF 表示正常结束
				if errors.Is(err, io.EOF) {
					select {
					case chunkChan <- modeladapter.StreamChunk{Done: true}:
					case <-ctx.Done():
					}
					return
				}
				if ctx.Err() != nil {
					return
				}
				errChan <- wrapOpenAIError(err)
				return
			}

			if len(response.Choices) == 0 || response.Choices[0].Delta.Content == "" {
				continue
			}

			select {
			case chunkChan <- modeladapter.StreamChunk{Content: response.Choices[0].Delta.Content}:
			case <-ctx.Done():
				return
			}
		}
	}()

	return chunkChan, errChan
}

// HealthCheck 拉取模型列表确认服务可达
func (a *OpenAIAdapter) HealthCheck(ctx context.Context) bool {
	_, err := a.client.ListModels(ctx)
	return err == nil
}

// wrapOpenAIError 把 SDK 错误转换为统一的上游错误
func wrapOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &modeladapter.UpstreamError{
			StatusCode: apiErr.HTTPStatusCode,
			Message:    apiErr.Message,
			Err:        err,
		}
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &modeladapter.UpstreamError{
			StatusCode: reqErr.HTTPStatusCode,
			Message:    reqErr.Error(),
			Err:        err,
		}
	}

	return err
}
