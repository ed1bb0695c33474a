package worker

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

// 任务类型
const (
	// TypeProbeConnector 探测单个连接器
	TypeProbeConnector = "connector:health_probe"
	// TypeProbeAll 探测全部连接器（由调度器周期触发）
	TypeProbeAll = "connector:health_probe_all"
)

// ProbeConnectorPayload 单连接器探测任务载荷
type ProbeConnectorPayload struct {
	ConnectorID string `json:"connector_id"`
}

// NewProbeConnectorTask 构造单连接器探测任务
func NewProbeConnectorTask(connectorID string) (*asynq.Task, error) {
	payload, err := json.Marshal(ProbeConnectorPayload{ConnectorID: connectorID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeProbeConnector, payload), nil
}
