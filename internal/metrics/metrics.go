package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// 网关与 HTTP 层指标
var (
	// GatewayRequests 网关调用计数，按路由与结果分类
	GatewayRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_requests_total",
		Help: "网关调用总数",
	}, []string{"route", "status"})

	// GatewayTokens 计费 token 总量
	GatewayTokens = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_tokens_total",
		Help: "网关计费 token 总量",
	}, []string{"route"})

	// UpstreamDuration 上游调用耗时
	UpstreamDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gateway_upstream_duration_seconds",
		Help:    "上游模型调用耗时",
		Buckets: prometheus.DefBuckets,
	}, []string{"protocol"})

	// HTTPRequests HTTP 请求计数
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "HTTP 请求总数",
	}, []string{"method", "path", "status"})

	// HTTPDuration HTTP 请求耗时
	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP 请求耗时",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})
)
