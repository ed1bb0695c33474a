package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/Remex-Wangkhem/Aix-Studio/internal/adapters"
	"github.com/Remex-Wangkhem/Aix-Studio/internal/store"
)

// Enqueuer 任务入队接口（asynq.Client 实现）
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// HealthProbeHandler 连接器健康探测处理器
type HealthProbeHandler struct {
	connectors *store.ConnectorService
	factory    *adapters.Factory
	enqueuer   Enqueuer
	logger     *zap.Logger
}

// NewHealthProbeHandler 创建处理器
// 入队客户端由任务服务器在启动时注入
func NewHealthProbeHandler(connectors *store.ConnectorService, factory *adapters.Factory, logger *zap.Logger) *HealthProbeHandler {
	return &HealthProbeHandler{
		connectors: connectors,
		factory:    factory,
		logger:     logger,
	}
}

// HandleProbeConnector 探测单个连接器并落库
func (h *HealthProbeHandler) HandleProbeConnector(ctx context.Context, task *asynq.Task) error {
	var payload ProbeConnectorPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("解析任务载荷失败: %w", err)
	}

	connector, err := h.connectors.Get(ctx, payload.ConnectorID)
	if err != nil {
		return fmt.Errorf("查询连接器失败: %w", err)
	}

	probeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	healthy := h.factory.ForConnector(connector).HealthCheck(probeCtx)

	if err := h.connectors.SetHealthStatus(ctx, connector.ID, healthy); err != nil {
		return fmt.Errorf("写入健康状态失败: %w", err)
	}

	h.logger.Info("连接器健康探测完成",
		zap.String("connector_id", connector.ID),
		zap.String("name", connector.Name),
		zap.Bool("healthy", healthy),
	)
	return nil
}

// HandleProbeAll 为每个连接器入队一个独立的探测任务
// 慢探测互不拖累，单个失败由 asynq 自行重试
func (h *HealthProbeHandler) HandleProbeAll(ctx context.Context, task *asynq.Task) error {
	connectors, err := h.connectors.List(ctx)
	if err != nil {
		return fmt.Errorf("查询连接器列表失败: %w", err)
	}

	enqueued := 0
	for i := range connectors {
		probeTask, err := NewProbeConnectorTask(connectors[i].ID)
		if err != nil {
			h.logger.Error("构造探测任务失败",
				zap.String("connector_id", connectors[i].ID),
				zap.Error(err),
			)
			continue
		}

		if _, err := h.enqueuer.EnqueueContext(ctx, probeTask); err != nil {
			h.logger.Error("探测任务入队失败",
				zap.String("connector_id", connectors[i].ID),
				zap.Error(err),
			)
			continue
		}
		enqueued++
	}

	h.logger.Info("连接器探测任务已分发",
		zap.Int("total", len(connectors)),
		zap.Int("enqueued", enqueued),
	)
	return nil
}
