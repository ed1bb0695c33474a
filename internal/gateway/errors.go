package gateway

import "errors"

// 网关错误分类，handler 据此映射 HTTP 状态码
var (
	// ErrUnauthorized 密钥缺失、不存在或已过期
	ErrUnauthorized = errors.New("无效的 API 密钥")

	// ErrQuotaExceeded 密钥用量达到配额
	ErrQuotaExceeded = errors.New("token 配额已用尽")

	// ErrNotFound 路由没有匹配的端点
	ErrNotFound = errors.New("端点不存在")

	// ErrRateLimited 密钥或端点的分钟级限流触发
	ErrRateLimited = errors.New("请求过于频繁")
)
