package adapters

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Remex-Wangkhem/Aix-Studio/pkg/modeladapter"
)

// RestAdapter 通用 REST 适配器
// 目标服务需暴露 OpenAI 兼容的 /v1/chat/completions 接口
type RestAdapter struct {
	baseURL    string
	authToken  string
	httpClient *http.Client
}

// NewRestAdapter 创建 REST 适配器
func NewRestAdapter(baseURL, authToken string, timeout time.Duration) *RestAdapter {
	if timeout == 0 {
		timeout = 120 * time.Second
	}
	return &RestAdapter{
		baseURL:   strings.TrimRight(baseURL, "/"),
		authToken: authToken,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// chatRequest OpenAI 兼容请求体
type chatRequest struct {
	Messages    []modeladapter.Message `json:"messages"`
	Temperature float64                `json:"temperature,omitempty"`
	MaxTokens   int                    `json:"max_tokens,omitempty"`
	TopP        float64                `json:"top_p,omitempty"`
	Stop        []string               `json:"stop,omitempty"`
	Stream      bool                   `json:"stream,omitempty"`
}

// chatResponse OpenAI 兼容响应体
type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

// streamChunk OpenAI 兼容流式响应块
type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// Execute 非流式调用
func (a *RestAdapter) Execute(ctx context.Context, req *modeladapter.ModelRequest) (*modeladapter.ModelResponse, error) {
	resp, err := a.post(ctx, req, false)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, &modeladapter.UpstreamError{
			StatusCode: resp.StatusCode,
			Message:    string(bodyBytes),
		}
	}

	var data chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, &modeladapter.UpstreamError{
			StatusCode: resp.StatusCode,
			Message:    "响应体不是合法 JSON",
			Err:        err,
		}
	}

	result := &modeladapter.ModelResponse{
		Tokens: data.Usage.TotalTokens,
	}
	if len(data.Choices) > 0 {
		result.Content = data.Choices[0].Message.Content
		result.FinishReason = data.Choices[0].FinishReason
	}
	return result, nil
}

// ExecuteStream 流式调用，解析 SSE 并处理跨读取块的半行
func (a *RestAdapter) ExecuteStream(ctx context.Context, req *modeladapter.ModelRequest) (<-chan modeladapter.StreamChunk, <-chan error) {
	chunkChan := make(chan modeladapter.StreamChunk, 10)
	errChan := make(chan error, 1)

	go func() {
		defer close(chunkChan)
		defer close(errChan)

		resp, err := a.post(ctx, req, true)
		if err != nil {
			errChan <- err
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			bodyBytes, _ := io.ReadAll(resp.Body)
			errChan <- &modeladapter.UpstreamError{
				StatusCode: resp.StatusCode,
				Message:    string(bodyBytes),
			}
			return
		}

		// bufio.Scanner 按行缓冲，半行会等到下一次读取补齐
		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data: ") {
				continue
			}

			data := strings.TrimPrefix(line, "data: ")
			if data == "[DONE]" {
				select {
				case chunkChan <- modeladapter.StreamChunk{Done: true}:
				case <-ctx.Done():
				}
				return
			}

			var parsed streamChunk
			if err := json.Unmarshal([]byte(data), &parsed); err != nil {
				// 不完整的 JSON 片段直接跳过
				continue
			}

			if len(parsed.Choices) == 0 || parsed.Choices[0].Delta.Content == "" {
				continue
			}

			select {
			case chunkChan <- modeladapter.StreamChunk{Content: parsed.Choices[0].Delta.Content}:
			case <-ctx.Done():
				return
			}
		}

		if err := scanner.Err(); err != nil {
			// 调用方取消时静默收尾，不视为上游错误
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return
			}
			errChan <- fmt.Errorf("读取流式响应失败: %w", err)
			return
		}

		// 上游没发 [DONE] 就断开，按正常结束处理
		select {
		case chunkChan <- modeladapter.StreamChunk{Done: true}:
		case <-ctx.Done():
		}
	}()

	return chunkChan, errChan
}

// HealthCheck 探测 {baseUrl}/health，只看传输层是否可达
func (a *RestAdapter) HealthCheck(ctx context.Context) bool {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	if a.authToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+a.authToken)
	}

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode < 400
}

func (a *RestAdapter) post(ctx context.Context, req *modeladapter.ModelRequest, stream bool) (*http.Response, error) {
	body, err := json.Marshal(chatRequest{
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		TopP:        req.TopP,
		Stop:        req.Stop,
		Stream:      stream,
	})
	if err != nil {
		return nil, fmt.Errorf("序列化请求失败: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("创建 HTTP 请求失败: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	if a.authToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+a.authToken)
	}

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("上游调用失败: %w", err)
	}
	return resp, nil
}
