package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Remex-Wangkhem/Aix-Studio/internal/adapters"
	"github.com/Remex-Wangkhem/Aix-Studio/internal/models"
	"github.com/Remex-Wangkhem/Aix-Studio/internal/store"
)

// stubEnqueuer 记录入队的任务
type stubEnqueuer struct {
	tasks []*asynq.Task
	err   error
}

func (s *stubEnqueuer) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.tasks = append(s.tasks, task)
	return &asynq.TaskInfo{}, nil
}

func setupWorkerTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:worker_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(models.AllModels()...))
	return db
}

func seedMockConnector(t *testing.T, db *gorm.DB, name string) *models.ModelConnector {
	t.Helper()
	connector := &models.ModelConnector{
		Name:     name,
		Protocol: "mock",
		BaseURL:  "http://localhost:9999",
	}
	require.NoError(t, store.NewConnectorService(db).Create(context.Background(), connector))
	return connector
}

func TestHandleProbeConnectorUpdatesHealthStatus(t *testing.T) {
	db := setupWorkerTestDB(t)
	connectors := store.NewConnectorService(db)
	connector := seedMockConnector(t, db, "探测目标")

	handler := NewHealthProbeHandler(connectors, adapters.NewFactory(5*time.Second), zap.NewNop())

	task, err := NewProbeConnectorTask(connector.ID)
	require.NoError(t, err)
	require.Equal(t, TypeProbeConnector, task.Type())

	require.NoError(t, handler.HandleProbeConnector(context.Background(), task))

	got, err := connectors.Get(context.Background(), connector.ID)
	require.NoError(t, err)
	require.Equal(t, "healthy", got.HealthStatus, "模拟适配器探测应判定为健康")
	require.NotNil(t, got.LastHealthCheck)
}

func TestHandleProbeAllEnqueuesPerConnectorTasks(t *testing.T) {
	db := setupWorkerTestDB(t)
	connectors := store.NewConnectorService(db)
	first := seedMockConnector(t, db, "连接器一")
	second := seedMockConnector(t, db, "连接器二")

	handler := NewHealthProbeHandler(connectors, adapters.NewFactory(5*time.Second), zap.NewNop())
	enqueuer := &stubEnqueuer{}
	handler.enqueuer = enqueuer

	require.NoError(t, handler.HandleProbeAll(context.Background(), asynq.NewTask(TypeProbeAll, nil)))
	require.Len(t, enqueuer.tasks, 2, "每个连接器应各入队一个探测任务")

	wantIDs := map[string]bool{first.ID: true, second.ID: true}
	for _, task := range enqueuer.tasks {
		require.Equal(t, TypeProbeConnector, task.Type())

		var payload ProbeConnectorPayload
		require.NoError(t, json.Unmarshal(task.Payload(), &payload))
		require.True(t, wantIDs[payload.ConnectorID], "载荷应指向已有连接器")
		delete(wantIDs, payload.ConnectorID)
	}
}

func TestHandleProbeAllToleratesEnqueueFailure(t *testing.T) {
	db := setupWorkerTestDB(t)
	connectors := store.NewConnectorService(db)
	seedMockConnector(t, db, "连接器一")

	handler := NewHealthProbeHandler(connectors, adapters.NewFactory(5*time.Second), zap.NewNop())
	handler.enqueuer = &stubEnqueuer{err: fmt.Errorf("队列不可用")}

	// 入队失败只记日志，不让调度任务整体失败
	require.NoError(t, handler.HandleProbeAll(context.Background(), asynq.NewTask(TypeProbeAll, nil)))
}
