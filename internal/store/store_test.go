package store

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/Remex-Wangkhem/Aix-Studio/internal/models"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:store_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(models.AllModels()...))
	return db
}

func TestGormStoreAddUsedTokens(t *testing.T) {
	db := setupTestDB(t)
	store := NewGormStore(db)
	ctx := context.Background()

	key := &models.APIKey{ID: newID(), Key: "sk_test", Name: "测试密钥", UsedTokens: 10, RateLimit: 100}
	require.NoError(t, db.Create(key).Error)

	require.NoError(t, store.AddUsedTokens(ctx, key.ID, 90))

	var got models.APIKey
	require.NoError(t, db.First(&got, "id = ?", key.ID).Error)
	require.Equal(t, 100, got.UsedTokens, "应在原值基础上累加")
	require.NotNil(t, got.LastUsedAt, "累加时应刷新最后使用时间")
}

func TestGormStoreAddUsedTokensConcurrent(t *testing.T) {
	db := setupTestDB(t)
	store := NewGormStore(db)
	ctx := context.Background()

	key := &models.APIKey{ID: newID(), Key: "sk_concurrent", Name: "并发测试", RateLimit: 100}
	require.NoError(t, db.Create(key).Error)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = store.AddUsedTokens(ctx, key.ID, 5)
		}()
	}
	wg.Wait()

	var got models.APIKey
	require.NoError(t, db.First(&got, "id = ?", key.ID).Error)
	require.Equal(t, 50, got.UsedTokens, "并发累加不应互相覆盖")
}

func TestGormStoreGetAPIKeyBySecret(t *testing.T) {
	db := setupTestDB(t)
	store := NewGormStore(db)
	ctx := context.Background()

	key := &models.APIKey{ID: newID(), Key: "sk_lookup", Name: "查询测试", RateLimit: 100}
	require.NoError(t, db.Create(key).Error)

	got, err := store.GetAPIKeyBySecret(ctx, "sk_lookup")
	require.NoError(t, err)
	require.Equal(t, key.ID, got.ID)

	_, err = store.GetAPIKeyBySecret(ctx, "sk_missing")
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestConnectorServiceValidation(t *testing.T) {
	db := setupTestDB(t)
	svc := NewConnectorService(db)
	ctx := context.Background()

	// 缺 baseUrl
	err := svc.Create(ctx, &models.ModelConnector{Name: "无地址"})
	require.ErrorIs(t, err, ErrConnectorInvalid)

	// none 认证不允许携带令牌
	err = svc.Create(ctx, &models.ModelConnector{
		Name: "多余令牌", BaseURL: "http://localhost:8080", AuthType: "none", AuthToken: "token",
	})
	require.ErrorIs(t, err, ErrConnectorInvalid)

	// bearer 认证必须有令牌
	err = svc.Create(ctx, &models.ModelConnector{
		Name: "缺令牌", BaseURL: "https://api.example.com", AuthType: "bearer",
	})
	require.ErrorIs(t, err, ErrConnectorInvalid)

	// 合法配置
	connector := &models.ModelConnector{Name: "合法", BaseURL: "http://localhost:8080"}
	require.NoError(t, svc.Create(ctx, connector))
	require.NotEmpty(t, connector.ID, "应自动生成主键")
	require.Equal(t, "none", connector.AuthType, "认证方式应默认为 none")
	require.Equal(t, "unknown", connector.HealthStatus, "健康状态应默认为 unknown")
}

func TestConnectorServiceDeleteRefusesWhenReferenced(t *testing.T) {
	db := setupTestDB(t)
	connectors := NewConnectorService(db)
	endpoints := NewEndpointService(db, 60)
	ctx := context.Background()

	connector := &models.ModelConnector{Name: "被引用", BaseURL: "http://localhost:8080"}
	require.NoError(t, connectors.Create(ctx, connector))

	endpoint := &models.Endpoint{Name: "摘要", Route: "summarize", ModelConnectorID: connector.ID}
	require.NoError(t, endpoints.Create(ctx, endpoint))

	err := connectors.Delete(ctx, connector.ID)
	require.Error(t, err, "仍被端点引用时应拒绝删除")

	require.NoError(t, endpoints.Delete(ctx, endpoint.ID))
	require.NoError(t, connectors.Delete(ctx, connector.ID), "解除引用后应可删除")
}

func TestConnectorServiceSetHealthStatus(t *testing.T) {
	db := setupTestDB(t)
	svc := NewConnectorService(db)
	ctx := context.Background()

	connector := &models.ModelConnector{Name: "探测", BaseURL: "http://localhost:8080"}
	require.NoError(t, svc.Create(ctx, connector))

	require.NoError(t, svc.SetHealthStatus(ctx, connector.ID, true))
	got, err := svc.Get(ctx, connector.ID)
	require.NoError(t, err)
	require.Equal(t, "healthy", got.HealthStatus)
	require.NotNil(t, got.LastHealthCheck)

	require.NoError(t, svc.SetHealthStatus(ctx, connector.ID, false))
	got, err = svc.Get(ctx, connector.ID)
	require.NoError(t, err)
	require.Equal(t, "unhealthy", got.HealthStatus)

	require.ErrorIs(t, svc.SetHealthStatus(ctx, "missing", true), ErrConnectorNotFound)
}

func seedConnector(t *testing.T, db *gorm.DB) *models.ModelConnector {
	t.Helper()
	connector := &models.ModelConnector{Name: "基础连接器", BaseURL: "http://localhost:8080"}
	require.NoError(t, NewConnectorService(db).Create(context.Background(), connector))
	return connector
}

func TestEndpointServiceNormalizesRoute(t *testing.T) {
	db := setupTestDB(t)
	svc := NewEndpointService(db, 60)
	ctx := context.Background()
	connector := seedConnector(t, db)

	endpoint := &models.Endpoint{Name: "摘要", Route: "/summarize", ModelConnectorID: connector.ID}
	require.NoError(t, svc.Create(ctx, endpoint))
	require.Equal(t, "summarize", endpoint.Route, "路由应去掉开头斜杠")
	require.Equal(t, "private", endpoint.AccessType, "访问类型应默认为 private")
	require.Equal(t, 60, endpoint.RateLimitPerMinute, "限流应默认为每分钟 60 次")
}

func TestEndpointServiceConfiguredRateDefault(t *testing.T) {
	db := setupTestDB(t)
	svc := NewEndpointService(db, 30)
	ctx := context.Background()
	connector := seedConnector(t, db)

	endpoint := &models.Endpoint{Name: "低配额", Route: "slow", ModelConnectorID: connector.ID}
	require.NoError(t, svc.Create(ctx, endpoint))
	require.Equal(t, 30, endpoint.RateLimitPerMinute, "未显式限流时应采用配置的默认值")

	// 显式限流不受默认值影响
	explicit := &models.Endpoint{Name: "高配额", Route: "fast", ModelConnectorID: connector.ID, RateLimitPerMinute: 200}
	require.NoError(t, svc.Create(ctx, explicit))
	require.Equal(t, 200, explicit.RateLimitPerMinute)

	// 非法默认值回落到 60
	fallback := NewEndpointService(db, 0)
	zeroed := &models.Endpoint{Name: "回落", Route: "fallback", ModelConnectorID: connector.ID}
	require.NoError(t, fallback.Create(ctx, zeroed))
	require.Equal(t, 60, zeroed.RateLimitPerMinute)
}

func TestEndpointServiceRouteConflict(t *testing.T) {
	db := setupTestDB(t)
	svc := NewEndpointService(db, 60)
	ctx := context.Background()
	connector := seedConnector(t, db)

	require.NoError(t, svc.Create(ctx, &models.Endpoint{
		Name: "摘要", Route: "summarize", ModelConnectorID: connector.ID,
	}))

	// 归一化后路由相同，应冲突
	err := svc.Create(ctx, &models.Endpoint{
		Name: "摘要2", Route: "/summarize", ModelConnectorID: connector.ID,
	})
	require.ErrorIs(t, err, ErrRouteConflict)
}

func TestEndpointServiceCreateRequiresConnector(t *testing.T) {
	db := setupTestDB(t)
	svc := NewEndpointService(db, 60)

	err := svc.Create(context.Background(), &models.Endpoint{
		Name: "孤儿端点", Route: "orphan", ModelConnectorID: "missing",
	})
	require.ErrorIs(t, err, ErrConnectorNotFound)
}

func TestEndpointServiceFrozenGuard(t *testing.T) {
	db := setupTestDB(t)
	svc := NewEndpointService(db, 60)
	ctx := context.Background()
	connector := seedConnector(t, db)

	endpoint := &models.Endpoint{Name: "冻结", Route: "frozen", ModelConnectorID: connector.ID}
	require.NoError(t, svc.Create(ctx, endpoint))

	_, err := svc.Update(ctx, endpoint.ID, map[string]interface{}{"frozen": true})
	require.NoError(t, err)

	// 冻结后普通更新被拒绝
	_, err = svc.Update(ctx, endpoint.ID, map[string]interface{}{"name": "改名"})
	require.ErrorIs(t, err, ErrEndpointFrozen)

	// 解冻和其他字段混在一起也被拒绝
	_, err = svc.Update(ctx, endpoint.ID, map[string]interface{}{"frozen": false, "name": "改名"})
	require.ErrorIs(t, err, ErrEndpointFrozen)

	// 冻结端点拒绝删除
	require.ErrorIs(t, svc.Delete(ctx, endpoint.ID), ErrEndpointFrozen)

	// 单独解冻是允许的
	updated, err := svc.Update(ctx, endpoint.ID, map[string]interface{}{"frozen": false})
	require.NoError(t, err)
	require.False(t, updated.Frozen)

	require.NoError(t, svc.Delete(ctx, endpoint.ID), "解冻后应可删除")
}

func TestUsageServiceSummary(t *testing.T) {
	db := setupTestDB(t)
	store := NewGormStore(db)
	usage := NewUsageService(db)
	ctx := context.Background()

	key := &models.APIKey{ID: newID(), Key: "sk_usage", Name: "用量测试", RateLimit: 100}
	require.NoError(t, db.Create(key).Error)

	for i := 0; i < 3; i++ {
		require.NoError(t, store.AppendUsage(ctx, &models.UsageRecord{
			APIKeyID:   key.ID,
			EndpointID: "ep-1",
			Tokens:     100,
			Cost:       0.002,
		}))
	}

	summary, err := usage.Summarize(ctx, "")
	require.NoError(t, err)
	require.Equal(t, int64(300), summary.TotalTokens)
	require.InDelta(t, 0.006, summary.TotalCost, 1e-9)
	require.Equal(t, int64(3), summary.Records)

	records, err := usage.ListUsage(ctx, key.ID, 2)
	require.NoError(t, err)
	require.Len(t, records, 2, "应遵守条数上限")
}
