package gateway

import (
	"context"
	"math"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Remex-Wangkhem/Aix-Studio/internal/logger"
	"github.com/Remex-Wangkhem/Aix-Studio/internal/metrics"
	"github.com/Remex-Wangkhem/Aix-Studio/internal/models"
	"github.com/Remex-Wangkhem/Aix-Studio/pkg/modeladapter"
)

// AdapterSelector 适配器选择器（internal/adapters.Factory 实现）
type AdapterSelector interface {
	ForConnector(connector *models.ModelConnector) modeladapter.Adapter
}

// Limiter 分钟级限流器（internal/middleware 提供 Redis 与内存实现）
type Limiter interface {
	Allow(ctx context.Context, key string, limitPerMinute int) bool
}

// Engine 网关执行引擎
// 串起鉴权、配额、端点解析、参数合并、上游调用与计费
type Engine struct {
	store         Store
	selector      AdapterSelector
	limiter       Limiter
	pricePerToken float64
	tracer        trace.Tracer
}

// Result 网关调用结果
type Result struct {
	Output   string         `json:"output"`
	Tokens   int            `json:"tokens"`
	Settings MergedSettings `json:"settings"`
}

// NewEngine 创建执行引擎
// limiter 可为 nil，表示不做分钟级限流
func NewEngine(store Store, selector AdapterSelector, limiter Limiter, pricePerToken float64) *Engine {
	if pricePerToken <= 0 {
		pricePerToken = 0.00002
	}
	return &Engine{
		store:         store,
		selector:      selector,
		limiter:       limiter,
		pricePerToken: pricePerToken,
		tracer:        otel.Tracer("gateway"),
	}
}

// checkRateLimits 密钥与端点两级分钟限流
func (e *Engine) checkRateLimits(ctx context.Context, key *models.APIKey, endpoint *models.Endpoint) error {
	if e.limiter == nil {
		return nil
	}
	if !e.limiter.Allow(ctx, "key:"+key.ID, key.RateLimit) {
		return ErrRateLimited
	}
	if !e.limiter.Allow(ctx, "route:"+endpoint.Route, endpoint.RateLimitPerMinute) {
		return ErrRateLimited
	}
	return nil
}

// Authenticate 校验 API 密钥
// 鉴权失败统一返回 ErrUnauthorized，不向调用方区分原因
func (e *Engine) Authenticate(ctx context.Context, secret string) (*models.APIKey, error) {
	if secret == "" {
		return nil, ErrUnauthorized
	}

	key, err := e.store.GetAPIKeyBySecret(ctx, secret)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrUnauthorized
		}
		return nil, err
	}

	if key.ExpiresAt != nil && key.ExpiresAt.Before(time.Now()) {
		return nil, ErrUnauthorized
	}

	return key, nil
}

// Execute 非流式网关调用
func (e *Engine) Execute(ctx context.Context, secret, route, input string) (*Result, error) {
	key, err := e.Authenticate(ctx, secret)
	if err != nil {
		metrics.GatewayRequests.WithLabelValues(route, "unauthorized").Inc()
		return nil, err
	}

	// 配额检查在上游调用之前，只做判断不做预留
	// 并发请求可能同时通过检查导致轻微超卖，计数本身由原子累加保证不丢
	if key.QuotaTokens != nil && key.UsedTokens >= *key.QuotaTokens {
		metrics.GatewayRequests.WithLabelValues(route, "quota_exceeded").Inc()
		return nil, ErrQuotaExceeded
	}

	endpoint, connector, err := e.resolve(ctx, route)
	if err != nil {
		metrics.GatewayRequests.WithLabelValues(route, "not_found").Inc()
		return nil, err
	}

	if err := e.checkRateLimits(ctx, key, endpoint); err != nil {
		metrics.GatewayRequests.WithLabelValues(route, "rate_limited").Inc()
		return nil, err
	}

	settings := MergeSettings(endpoint, connector)
	req := BuildRequest(settings, input)

	resp, err := e.invoke(ctx, connector, req)
	if err != nil {
		metrics.GatewayRequests.WithLabelValues(route, "upstream_error").Inc()
		return nil, err
	}

	tokens := e.bill(ctx, key, endpoint, resp.Content, resp.Tokens)
	metrics.GatewayRequests.WithLabelValues(route, "ok").Inc()
	metrics.GatewayTokens.WithLabelValues(route).Add(float64(tokens))

	return &Result{
		Output:   resp.Content,
		Tokens:   tokens,
		Settings: settings,
	}, nil
}

// ExecuteStream 流式网关调用
// 块不做缓冲原样转发；收到 done 块后才计费，中途取消不产生用量
func (e *Engine) ExecuteStream(ctx context.Context, secret, route, input string) (<-chan modeladapter.StreamChunk, <-chan error, error) {
	key, err := e.Authenticate(ctx, secret)
	if err != nil {
		metrics.GatewayRequests.WithLabelValues(route, "unauthorized").Inc()
		return nil, nil, err
	}

	if key.QuotaTokens != nil && key.UsedTokens >= *key.QuotaTokens {
		metrics.GatewayRequests.WithLabelValues(route, "quota_exceeded").Inc()
		return nil, nil, ErrQuotaExceeded
	}

	endpoint, connector, err := e.resolve(ctx, route)
	if err != nil {
		metrics.GatewayRequests.WithLabelValues(route, "not_found").Inc()
		return nil, nil, err
	}

	if err := e.checkRateLimits(ctx, key, endpoint); err != nil {
		metrics.GatewayRequests.WithLabelValues(route, "rate_limited").Inc()
		return nil, nil, err
	}

	settings := MergeSettings(endpoint, connector)
	req := BuildRequest(settings, input)

	adapter := e.selector.ForConnector(connector)
	upstream, upstreamErr := adapter.ExecuteStream(ctx, req)

	chunkChan := make(chan modeladapter.StreamChunk, 10)
	errChan := make(chan error, 1)

	go func() {
		defer close(chunkChan)
		defer close(errChan)

		var accumulated string
		completed := false

		for chunk := range upstream {
			accumulated += chunk.Content
			if chunk.Done {
				completed = true
			}

			select {
			case chunkChan <- chunk:
			case <-ctx.Done():
				return
			}
		}

		if err, ok := <-upstreamErr; ok && err != nil {
			metrics.GatewayRequests.WithLabelValues(route, "upstream_error").Inc()
			errChan <- err
			return
		}

		if !completed {
			return
		}

		// 计费用独立上下文，调用方断开不影响落账
		billCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		tokens := e.bill(billCtx, key, endpoint, accumulated, 0)
		metrics.GatewayRequests.WithLabelValues(route, "ok").Inc()
		metrics.GatewayTokens.WithLabelValues(route).Add(float64(tokens))
	}()

	return chunkChan, errChan, nil
}

// StreamChat 调试台直连连接器的流式对话，不鉴权不计费
func (e *Engine) StreamChat(ctx context.Context, connectorID string, req *modeladapter.ModelRequest) (<-chan modeladapter.StreamChunk, <-chan error, error) {
	connector, err := e.store.GetConnector(ctx, connectorID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil, ErrNotFound
		}
		return nil, nil, err
	}

	if req.Temperature == 0 {
		req.Temperature = DefaultTemperature
	}
	if req.MaxTokens == 0 {
		req.MaxTokens = DefaultMaxTokens
	}
	if req.TopP == 0 {
		req.TopP = DefaultTopP
	}

	adapter := e.selector.ForConnector(connector)
	chunkChan, errChan := adapter.ExecuteStream(ctx, req)
	return chunkChan, errChan, nil
}

// resolve 路由 → 端点 → 连接器
func (e *Engine) resolve(ctx context.Context, route string) (*models.Endpoint, *models.ModelConnector, error) {
	endpoint, err := e.store.GetEndpointByRoute(ctx, route)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil, ErrNotFound
		}
		return nil, nil, err
	}

	connector, err := e.store.GetConnector(ctx, endpoint.ModelConnectorID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil, ErrNotFound
		}
		return nil, nil, err
	}

	return endpoint, connector, nil
}

// invoke 调用上游，带 otel span 与耗时指标
func (e *Engine) invoke(ctx context.Context, connector *models.ModelConnector, req *modeladapter.ModelRequest) (*modeladapter.ModelResponse, error) {
	ctx, span := e.tracer.Start(ctx, "gateway.upstream",
		trace.WithAttributes(
			attribute.String("connector.id", connector.ID),
			attribute.String("connector.protocol", connector.Protocol),
		),
	)
	defer span.End()

	adapter := e.selector.ForConnector(connector)

	start := time.Now()
	resp, err := adapter.Execute(ctx, req)
	metrics.UpstreamDuration.WithLabelValues(connector.Protocol).Observe(time.Since(start).Seconds())

	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return resp, nil
}

// bill 计费：上游报了用量用上游的，否则按字符估算
// 写库失败只记日志，调用结果不受影响
func (e *Engine) bill(ctx context.Context, key *models.APIKey, endpoint *models.Endpoint, content string, upstreamTokens int) int {
	tokens := upstreamTokens
	if tokens <= 0 {
		tokens = EstimateTokens(content)
	}

	cost := math.Round(float64(tokens)*e.pricePerToken*1e6) / 1e6

	record := &models.UsageRecord{
		UserID:     key.UserID,
		APIKeyID:   key.ID,
		EndpointID: endpoint.ID,
		Tokens:     tokens,
		Cost:       cost,
	}

	if err := e.store.AppendUsage(ctx, record); err != nil {
		logger.Error("写入用量记录失败",
			zap.String("api_key_id", key.ID),
			zap.Int("tokens", tokens),
			zap.Error(err),
		)
	}

	if err := e.store.AddUsedTokens(ctx, key.ID, tokens); err != nil {
		logger.Error("累加密钥用量失败",
			zap.String("api_key_id", key.ID),
			zap.Error(err),
		)
	}

	return tokens
}
