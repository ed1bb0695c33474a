package adapters

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Remex-Wangkhem/Aix-Studio/internal/models"
)

func TestFactoryDispatchByProtocol(t *testing.T) {
	factory := NewFactory(5 * time.Second)

	tests := []struct {
		name      string
		connector *models.ModelConnector
		wantType  interface{}
	}{
		{
			name:      "mock 协议",
			connector: &models.ModelConnector{ID: "c1", Protocol: "mock", BaseURL: "http://example.com"},
			wantType:  &MockAdapter{},
		},
		{
			name:      "rest 协议",
			connector: &models.ModelConnector{ID: "c2", Protocol: "rest", BaseURL: "https://api.example.com"},
			wantType:  &RestAdapter{},
		},
		{
			name:      "http 别名",
			connector: &models.ModelConnector{ID: "c3", Protocol: "http", BaseURL: "https://api.example.com"},
			wantType:  &RestAdapter{},
		},
		{
			name:      "openai 协议",
			connector: &models.ModelConnector{ID: "c4", Protocol: "openai", BaseURL: "https://api.openai.com/v1", AuthToken: "sk-test"},
			wantType:  &OpenAIAdapter{},
		},
		{
			name:      "协议大小写不敏感",
			connector: &models.ModelConnector{ID: "c5", Protocol: "OpenAI", BaseURL: "https://api.openai.com/v1"},
			wantType:  &OpenAIAdapter{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adapter := factory.ForConnector(tt.connector)
			require.IsType(t, tt.wantType, adapter)
		})
	}
}

func TestFactorySniffsAddressWhenProtocolMissing(t *testing.T) {
	factory := NewFactory(5 * time.Second)

	mockByAddr := factory.ForConnector(&models.ModelConnector{ID: "m1", BaseURL: "http://localhost:8080"})
	require.IsType(t, &MockAdapter{}, mockByAddr, "本地地址应回退为模拟适配器")

	mockByName := factory.ForConnector(&models.ModelConnector{ID: "m2", BaseURL: "http://mock-server.internal"})
	require.IsType(t, &MockAdapter{}, mockByName, "地址含 mock 应回退为模拟适配器")

	rest := factory.ForConnector(&models.ModelConnector{ID: "m3", BaseURL: "https://api.example.com"})
	require.IsType(t, &RestAdapter{}, rest, "公网地址应回退为 REST 适配器")
}

func TestFactoryCachesAndInvalidates(t *testing.T) {
	factory := NewFactory(5 * time.Second)
	connector := &models.ModelConnector{ID: "c1", Protocol: "rest", BaseURL: "https://api.example.com"}

	first := factory.ForConnector(connector)
	second := factory.ForConnector(connector)
	require.Same(t, first, second, "同一连接器应命中缓存")

	// 配置变更后缓存键不同，创建新实例
	connector.BaseURL = "https://api2.example.com"
	third := factory.ForConnector(connector)
	require.NotSame(t, first, third, "地址变更后应创建新适配器")

	factory.ClearCache()
	fourth := factory.ForConnector(connector)
	require.NotSame(t, third, fourth, "清缓存后应重新创建")
}
