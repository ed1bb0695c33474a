package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/Remex-Wangkhem/Aix-Studio/internal/config"
)

// Server 后台任务服务器（asynq）
type Server struct {
	server    *asynq.Server
	scheduler *asynq.Scheduler
	client    *asynq.Client
	mux       *asynq.ServeMux
	logger    *zap.Logger
}

// NewServer 创建任务服务器并注册周期性健康探测
func NewServer(cfg *config.Config, handler *HealthProbeHandler, logger *zap.Logger) (*Server, error) {
	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}

	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: cfg.Worker.Concurrency,
		Queues: map[string]int{
			"default": 1,
		},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			logger.Error("任务执行失败",
				zap.String("type", task.Type()),
				zap.Error(err),
			)
		}),
	})

	// 探测全量任务通过 client 拆成单连接器任务
	client := asynq.NewClient(redisOpt)
	handler.enqueuer = client

	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeProbeConnector, handler.HandleProbeConnector)
	mux.HandleFunc(TypeProbeAll, handler.HandleProbeAll)

	interval, err := time.ParseDuration(cfg.Worker.HealthProbeInterval)
	if err != nil || interval < time.Minute {
		interval = 5 * time.Minute
	}

	scheduler := asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{})
	if _, err := scheduler.Register(
		fmt.Sprintf("@every %s", interval),
		asynq.NewTask(TypeProbeAll, nil),
	); err != nil {
		return nil, fmt.Errorf("注册周期探测任务失败: %w", err)
	}

	return &Server{
		server:    srv,
		scheduler: scheduler,
		client:    client,
		mux:       mux,
		logger:    logger,
	}, nil
}

// Start 非阻塞启动 worker 与调度器
func (s *Server) Start() error {
	s.logger.Info("Worker 服务器启动中...")
	if err := s.server.Start(s.mux); err != nil {
		return err
	}
	return s.scheduler.Start()
}

// Shutdown 停止 worker 与调度器
func (s *Server) Shutdown() {
	s.logger.Info("Worker 服务器停止中...")
	s.scheduler.Shutdown()
	s.server.Shutdown()
	if err := s.client.Close(); err != nil {
		s.logger.Error("关闭任务客户端失败", zap.Error(err))
	}
}
