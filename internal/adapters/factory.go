package adapters

import (
	"strings"
	"sync"
	"time"

	"github.com/Remex-Wangkhem/Aix-Studio/internal/models"
	"github.com/Remex-Wangkhem/Aix-Studio/pkg/modeladapter"
)

// Factory 适配器工厂
// 按连接器声明的协议分发，空协议时回退到地址嗅探（旧数据迁移路径）
type Factory struct {
	timeout  time.Duration
	mu       sync.RWMutex
	adapters map[string]modeladapter.Adapter // 按连接器缓存
}

// NewFactory 创建适配器工厂
// timeout 为上游调用超时，0 表示使用默认值
func NewFactory(timeout time.Duration) *Factory {
	return &Factory{
		timeout:  timeout,
		adapters: make(map[string]modeladapter.Adapter),
	}
}

// ForConnector 获取连接器对应的适配器
func (f *Factory) ForConnector(connector *models.ModelConnector) modeladapter.Adapter {
	cacheKey := connector.ID + ":" + connector.Protocol + ":" + connector.BaseURL + ":" + connector.AuthToken

	f.mu.RLock()
	if adapter, ok := f.adapters[cacheKey]; ok {
		f.mu.RUnlock()
		return adapter
	}
	f.mu.RUnlock()

	adapter := f.create(connector)

	f.mu.Lock()
	f.adapters[cacheKey] = adapter
	f.mu.Unlock()

	return adapter
}

// create 按协议创建适配器
func (f *Factory) create(connector *models.ModelConnector) modeladapter.Adapter {
	switch strings.ToLower(connector.Protocol) {
	case "mock":
		return NewMockAdapter(connector.BaseURL)
	case "rest", "http":
		return NewRestAdapter(connector.BaseURL, connector.AuthToken, f.timeout)
	case "openai":
		return NewOpenAIAdapter(connector.BaseURL, connector.AuthToken, "")
	default:
		// 旧数据没有协议字段，按地址特征猜测
		if isMockAddress(connector.BaseURL) {
			return NewMockAdapter(connector.BaseURL)
		}
		return NewRestAdapter(connector.BaseURL, connector.AuthToken, f.timeout)
	}
}

// ClearCache 清除适配器缓存（连接器配置变更后调用）
func (f *Factory) ClearCache() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.adapters = make(map[string]modeladapter.Adapter)
}

// isMockAddress 本地/模拟地址特征
func isMockAddress(baseURL string) bool {
	lower := strings.ToLower(baseURL)
	for _, marker := range []string{"mock", "localhost", "127.0.0.1", "192.168"} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
