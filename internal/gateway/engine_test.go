package gateway

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/Remex-Wangkhem/Aix-Studio/internal/models"
	"github.com/Remex-Wangkhem/Aix-Studio/internal/store"
	"github.com/Remex-Wangkhem/Aix-Studio/pkg/modeladapter"
)

// stubAdapter 固定返回结果并记录调用次数
type stubAdapter struct {
	response *modeladapter.ModelResponse
	err      error
	calls    int
}

func (a *stubAdapter) Execute(ctx context.Context, req *modeladapter.ModelRequest) (*modeladapter.ModelResponse, error) {
	a.calls++
	if a.err != nil {
		return nil, a.err
	}
	return a.response, nil
}

func (a *stubAdapter) ExecuteStream(ctx context.Context, req *modeladapter.ModelRequest) (<-chan modeladapter.StreamChunk, <-chan error) {
	a.calls++
	chunkChan := make(chan modeladapter.StreamChunk, 4)
	errChan := make(chan error, 1)
	go func() {
		defer close(chunkChan)
		defer close(errChan)
		if a.err != nil {
			errChan <- a.err
			return
		}
		chunkChan <- modeladapter.StreamChunk{Content: a.response.Content}
		chunkChan <- modeladapter.StreamChunk{Done: true}
	}()
	return chunkChan, errChan
}

func (a *stubAdapter) HealthCheck(ctx context.Context) bool { return true }

// stubSelector 所有连接器返回同一个适配器
type stubSelector struct {
	adapter modeladapter.Adapter
}

func (s *stubSelector) ForConnector(connector *models.ModelConnector) modeladapter.Adapter {
	return s.adapter
}

// denyLimiter 永远拒绝
type denyLimiter struct{}

func (denyLimiter) Allow(ctx context.Context, key string, limitPerMinute int) bool {
	return limitPerMinute <= 0
}

func setupEngineTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:engine_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(models.AllModels()...))
	return db
}

// seedGateway 建一套连接器+端点+密钥
func seedGateway(t *testing.T, db *gorm.DB, quota *int, used int) (*models.ModelConnector, *models.Endpoint, *models.APIKey) {
	t.Helper()

	connector := &models.ModelConnector{
		ID:       uuid.New().String(),
		Name:     "测试连接器",
		Protocol: "mock",
		BaseURL:  "http://localhost:9999",
		AuthType: "none",
	}
	require.NoError(t, db.Create(connector).Error)

	endpoint := &models.Endpoint{
		ID:               uuid.New().String(),
		Name:             "摘要端点",
		Route:            "summarize",
		ModelConnectorID: connector.ID,
		SystemPrompt:     "You are a doctor",
	}
	require.NoError(t, db.Create(endpoint).Error)

	key := &models.APIKey{
		ID:          uuid.New().String(),
		Key:         "sk_" + uuid.New().String(),
		Name:        "测试密钥",
		QuotaTokens: quota,
		UsedTokens:  used,
	}
	require.NoError(t, db.Create(key).Error)

	return connector, endpoint, key
}

func TestExecuteUnauthorized(t *testing.T) {
	db := setupEngineTestDB(t)
	adapter := &stubAdapter{response: &modeladapter.ModelResponse{Content: "ok"}}
	engine := NewEngine(store.NewGormStore(db), &stubSelector{adapter: adapter}, nil, 0.00002)

	_, err := engine.Execute(context.Background(), "sk_不存在的密钥", "summarize", "hello")
	require.ErrorIs(t, err, ErrUnauthorized)

	_, err = engine.Execute(context.Background(), "", "summarize", "hello")
	require.ErrorIs(t, err, ErrUnauthorized, "缺失密钥等同于无效密钥")
	require.Zero(t, adapter.calls, "鉴权失败不应触达上游")
}

func TestExecuteExpiredKeyUnauthorized(t *testing.T) {
	db := setupEngineTestDB(t)
	_, _, key := seedGateway(t, db, nil, 0)

	expired := time.Now().Add(-time.Hour)
	require.NoError(t, db.Model(&models.APIKey{}).Where("id = ?", key.ID).Update("expires_at", expired).Error)

	engine := NewEngine(store.NewGormStore(db), &stubSelector{adapter: &stubAdapter{}}, nil, 0.00002)
	_, err := engine.Execute(context.Background(), key.Key, "summarize", "hello")
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestExecuteQuotaExceededBeforeUpstream(t *testing.T) {
	db := setupEngineTestDB(t)
	quota := 1000
	_, _, key := seedGateway(t, db, &quota, 1000) // 已用量恰好到达配额

	adapter := &stubAdapter{response: &modeladapter.ModelResponse{Content: "ok"}}
	engine := NewEngine(store.NewGormStore(db), &stubSelector{adapter: adapter}, nil, 0.00002)

	_, err := engine.Execute(context.Background(), key.Key, "summarize", "hello")
	require.ErrorIs(t, err, ErrQuotaExceeded)
	require.Zero(t, adapter.calls, "配额拒绝应发生在上游调用之前")

	var count int64
	require.NoError(t, db.Model(&models.UsageRecord{}).Count(&count).Error)
	require.Zero(t, count, "被拒绝的请求不应产生用量记录")
}

func TestExecuteRouteNotFound(t *testing.T) {
	db := setupEngineTestDB(t)
	_, _, key := seedGateway(t, db, nil, 0)

	engine := NewEngine(store.NewGormStore(db), &stubSelector{adapter: &stubAdapter{}}, nil, 0.00002)
	_, err := engine.Execute(context.Background(), key.Key, "不存在的路由", "hello")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestExecuteBillsUpstreamTokens(t *testing.T) {
	db := setupEngineTestDB(t)
	_, endpoint, key := seedGateway(t, db, nil, 0)

	adapter := &stubAdapter{response: &modeladapter.ModelResponse{
		Content:      "诊断结果",
		Tokens:       500,
		FinishReason: "stop",
	}}
	engine := NewEngine(store.NewGormStore(db), &stubSelector{adapter: adapter}, nil, 0.00002)

	result, err := engine.Execute(context.Background(), key.Key, "summarize", "flu symptoms")
	require.NoError(t, err)
	require.Equal(t, "诊断结果", result.Output)
	require.Equal(t, 500, result.Tokens, "上游报了用量就用上游的")
	require.Equal(t, 0.7, result.Settings.Temperature, "端点未覆盖时返回兜底参数")

	var record models.UsageRecord
	require.NoError(t, db.Where("api_key_id = ?", key.ID).First(&record).Error)
	require.Equal(t, 500, record.Tokens)
	require.Equal(t, endpoint.ID, record.EndpointID)
	require.InDelta(t, 0.01, record.Cost, 1e-9, "成本应为 500 × 0.00002")

	var updated models.APIKey
	require.NoError(t, db.Where("id = ?", key.ID).First(&updated).Error)
	require.Equal(t, 500, updated.UsedTokens, "密钥已用量应累加")
	require.NotNil(t, updated.LastUsedAt)
}

func TestExecuteEstimatesTokensWhenUnreported(t *testing.T) {
	db := setupEngineTestDB(t)
	_, _, key := seedGateway(t, db, nil, 0)

	// 10 个 ASCII 字符 → ceil(10/4) = 3 tokens
	adapter := &stubAdapter{response: &modeladapter.ModelResponse{Content: "abcdefghij"}}
	engine := NewEngine(store.NewGormStore(db), &stubSelector{adapter: adapter}, nil, 0.00002)

	result, err := engine.Execute(context.Background(), key.Key, "summarize", "hello")
	require.NoError(t, err)
	require.Equal(t, 3, result.Tokens, "上游未报用量时按字符数估算")
}

func TestExecuteUpstreamErrorPassthrough(t *testing.T) {
	db := setupEngineTestDB(t)
	_, _, key := seedGateway(t, db, nil, 0)

	upstreamErr := &modeladapter.UpstreamError{StatusCode: 503, Message: "service unavailable"}
	engine := NewEngine(store.NewGormStore(db), &stubSelector{adapter: &stubAdapter{err: upstreamErr}}, nil, 0.00002)

	_, err := engine.Execute(context.Background(), key.Key, "summarize", "hello")
	var ue *modeladapter.UpstreamError
	require.ErrorAs(t, err, &ue, "上游错误应原样透传")
	require.Equal(t, 503, ue.StatusCode)

	var count int64
	require.NoError(t, db.Model(&models.UsageRecord{}).Count(&count).Error)
	require.Zero(t, count, "上游失败不计费")
}

func TestExecuteRateLimited(t *testing.T) {
	db := setupEngineTestDB(t)
	_, _, key := seedGateway(t, db, nil, 0)

	adapter := &stubAdapter{response: &modeladapter.ModelResponse{Content: "ok"}}
	engine := NewEngine(store.NewGormStore(db), &stubSelector{adapter: adapter}, denyLimiter{}, 0.00002)

	_, err := engine.Execute(context.Background(), key.Key, "summarize", "hello")
	require.ErrorIs(t, err, ErrRateLimited)
	require.Zero(t, adapter.calls)
}

func TestExecuteStreamBillsAfterDone(t *testing.T) {
	db := setupEngineTestDB(t)
	_, _, key := seedGateway(t, db, nil, 0)

	adapter := &stubAdapter{response: &modeladapter.ModelResponse{Content: "abcdefgh"}}
	engine := NewEngine(store.NewGormStore(db), &stubSelector{adapter: adapter}, nil, 0.00002)

	chunkChan, errChan, err := engine.ExecuteStream(context.Background(), key.Key, "summarize", "hello")
	require.NoError(t, err)

	var got string
	sawDone := false
	for chunk := range chunkChan {
		got += chunk.Content
		if chunk.Done {
			sawDone = true
		}
	}
	require.NoError(t, <-errChan)
	require.True(t, sawDone, "流应以 done 块收尾")
	require.Equal(t, "abcdefgh", got)

	// 计费是异步落账的，轮询等待
	require.Eventually(t, func() bool {
		var count int64
		db.Model(&models.UsageRecord{}).Where("api_key_id = ?", key.ID).Count(&count)
		return count == 1
	}, 2*time.Second, 20*time.Millisecond, "完整消费的流应产生一条用量记录")

	var record models.UsageRecord
	require.NoError(t, db.Where("api_key_id = ?", key.ID).First(&record).Error)
	require.Equal(t, 2, record.Tokens, "8 字符按 2 token 估算")
}

func TestExecuteStreamCancelledBillsNothing(t *testing.T) {
	db := setupEngineTestDB(t)
	_, _, key := seedGateway(t, db, nil, 0)

	// 永不结束的流，靠调用方取消收尾
	engine := NewEngine(store.NewGormStore(db), &cancelSelector{}, nil, 0.00002)

	ctx, cancel := context.WithCancel(context.Background())
	chunkChan, _, err := engine.ExecuteStream(ctx, key.Key, "summarize", "hello")
	require.NoError(t, err)

	// 收到第一块后取消
	<-chunkChan
	cancel()

	time.Sleep(100 * time.Millisecond)

	var count int64
	require.NoError(t, db.Model(&models.UsageRecord{}).Count(&count).Error)
	require.Zero(t, count, "未完成的流不应计费")
}

// cancelSelector 返回一个永不结束的流式适配器
type cancelSelector struct{}

func (s *cancelSelector) ForConnector(connector *models.ModelConnector) modeladapter.Adapter {
	return &endlessAdapter{}
}

type endlessAdapter struct{}

func (a *endlessAdapter) Execute(ctx context.Context, req *modeladapter.ModelRequest) (*modeladapter.ModelResponse, error) {
	return nil, context.Canceled
}

func (a *endlessAdapter) ExecuteStream(ctx context.Context, req *modeladapter.ModelRequest) (<-chan modeladapter.StreamChunk, <-chan error) {
	chunkChan := make(chan modeladapter.StreamChunk)
	errChan := make(chan error, 1)
	go func() {
		defer close(chunkChan)
		defer close(errChan)
		for {
			select {
			case chunkChan <- modeladapter.StreamChunk{Content: "x"}:
				time.Sleep(10 * time.Millisecond)
			case <-ctx.Done():
				return
			}
		}
	}()
	return chunkChan, errChan
}

func (a *endlessAdapter) HealthCheck(ctx context.Context) bool { return true }

func TestStreamChatConnectorNotFound(t *testing.T) {
	db := setupEngineTestDB(t)
	engine := NewEngine(store.NewGormStore(db), &stubSelector{adapter: &stubAdapter{}}, nil, 0.00002)

	_, _, err := engine.StreamChat(context.Background(), uuid.New().String(), &modeladapter.ModelRequest{
		Messages: []modeladapter.Message{{Role: "user", Content: "hi"}},
	})
	require.ErrorIs(t, err, ErrNotFound)
}
