package gateway

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Remex-Wangkhem/Aix-Studio/internal/models"
)

func floatPtr(v float64) *float64 { return &v }
func intPtr(v int) *int           { return &v }

func TestMergeSettingsFallbacks(t *testing.T) {
	endpoint := &models.Endpoint{}
	connector := &models.ModelConnector{}

	merged := MergeSettings(endpoint, connector)
	require.Equal(t, 0.7, merged.Temperature, "无任何配置时温度应取兜底值")
	require.Equal(t, 2048, merged.MaxTokens, "无任何配置时 maxTokens 应取兜底值")
	require.Equal(t, 1.0, merged.TopP, "无任何配置时 topP 应取兜底值")
}

func TestMergeSettingsConnectorDefaults(t *testing.T) {
	endpoint := &models.Endpoint{}
	connector := &models.ModelConnector{
		DefaultSettings: &models.ConnectorSettings{
			Temperature: floatPtr(0.3),
			MaxTokens:   intPtr(1024),
			StopTokens:  []string{"END"},
		},
	}

	merged := MergeSettings(endpoint, connector)
	require.Equal(t, 0.3, merged.Temperature, "应使用连接器默认温度")
	require.Equal(t, 1024, merged.MaxTokens)
	require.Equal(t, 1.0, merged.TopP, "连接器未设置的字段仍取兜底值")
	require.Equal(t, []string{"END"}, merged.Stop)
}

func TestMergeSettingsEndpointOverridesWin(t *testing.T) {
	endpoint := &models.Endpoint{
		SystemPrompt: "You are a doctor",
		Temperature:  floatPtr(0.9),
		MaxTokens:    intPtr(512),
	}
	connector := &models.ModelConnector{
		DefaultSettings: &models.ConnectorSettings{
			Temperature: floatPtr(0.3),
			MaxTokens:   intPtr(1024),
			TopP:        floatPtr(0.8),
		},
	}

	merged := MergeSettings(endpoint, connector)
	require.Equal(t, 0.9, merged.Temperature, "端点覆盖应优先于连接器默认值")
	require.Equal(t, 512, merged.MaxTokens)
	require.Equal(t, 0.8, merged.TopP, "端点未覆盖的字段回落到连接器默认值")
	require.Equal(t, "You are a doctor", merged.SystemPrompt)
}

func TestMergeSettingsTokenLimitCapsMaxTokens(t *testing.T) {
	endpoint := &models.Endpoint{
		MaxTokens:            intPtr(4096),
		TokenLimitPerRequest: intPtr(1000),
	}
	merged := MergeSettings(endpoint, &models.ModelConnector{})
	require.Equal(t, 1000, merged.MaxTokens, "单次请求上限应压低 maxTokens")
}

func TestBuildRequestMessageOrder(t *testing.T) {
	settings := MergedSettings{
		SystemPrompt: "You are a doctor",
		Temperature:  0.9,
		MaxTokens:    512,
		TopP:         1.0,
	}

	req := BuildRequest(settings, "flu symptoms")
	require.Len(t, req.Messages, 2)
	require.Equal(t, "system", req.Messages[0].Role, "系统消息应在最前")
	require.Equal(t, "You are a doctor", req.Messages[0].Content)
	require.Equal(t, "user", req.Messages[1].Role)
	require.Equal(t, "flu symptoms", req.Messages[1].Content)
	require.Equal(t, 0.9, req.Temperature)
}

func TestBuildRequestWithoutSystemPrompt(t *testing.T) {
	req := BuildRequest(MergedSettings{Temperature: 0.7, MaxTokens: 2048, TopP: 1.0}, "hello")
	require.Len(t, req.Messages, 1, "没有系统提示词时只有用户消息")
	require.Equal(t, "user", req.Messages[0].Role)
}

func TestEstimateTokens(t *testing.T) {
	require.Equal(t, 0, EstimateTokens(""))
	require.Equal(t, 1, EstimateTokens("ab"), "不足 4 字符按 1 token 计")
	require.Equal(t, 1, EstimateTokens("abcd"))
	require.Equal(t, 2, EstimateTokens("abcde"), "4 字符折 1 token，向上取整")
	require.Equal(t, 25, EstimateTokens(string(make([]byte, 100))))
}
