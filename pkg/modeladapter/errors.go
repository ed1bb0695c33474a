package modeladapter

import "fmt"

// UpstreamError 上游调用错误
// 携带上游返回的状态码与响应体，供网关层透传给调用方
type UpstreamError struct {
	StatusCode int    // 上游 HTTP 状态码，0 表示传输层失败
	Message    string // 错误消息（含上游响应体摘要）
	Err        error  // 原始错误
}

// Error 实现 error 接口
func (e *UpstreamError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("上游返回 %d: %s", e.StatusCode, e.Message)
	}
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

// Unwrap 返回原始错误
func (e *UpstreamError) Unwrap() error {
	return e.Err
}
