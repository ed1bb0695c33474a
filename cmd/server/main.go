package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/Remex-Wangkhem/Aix-Studio/api"
	"github.com/Remex-Wangkhem/Aix-Studio/internal/config"
	"github.com/Remex-Wangkhem/Aix-Studio/internal/infra"
	"github.com/Remex-Wangkhem/Aix-Studio/internal/logger"
	"github.com/Remex-Wangkhem/Aix-Studio/internal/models"
)

// @title Aix Studio LLM Gateway API
// @version 1.0
// @description 模型连接器、受管端点与 API 密钥的管理面与执行网关
// @BasePath /
func main() {
	// .env 可选，生产环境直接用环境变量
	_ = godotenv.Load()

	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "dev"
	}

	cfg, err := config.Load(env, os.Getenv("APP_CONFIG_FILE"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(&cfg.Log); err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	gin.SetMode(cfg.Server.Mode)

	db, err := infra.InitDatabase(&cfg.Database, cfg.Server.Mode)
	if err != nil {
		logger.Fatal("初始化数据库失败", zap.Error(err))
	}
	defer infra.CloseDatabase()

	if cfg.Database.AutoMigrate {
		if err := infra.AutoMigrate(db, models.AllModels()...); err != nil {
			logger.Fatal("数据库迁移失败", zap.Error(err))
		}
	}

	// Redis 不可用时降级：限流退回内存实现，后台探测停用
	if _, err := infra.InitRedis(&cfg.Redis); err != nil {
		logger.Warn("Redis 不可用，限流退回内存实现，后台任务停用", zap.Error(err))
		cfg.Worker.Enabled = false
	}
	defer infra.CloseRedis()

	router, workerServer := api.SetupRouter(db, cfg)

	if workerServer != nil {
		if err := workerServer.Start(); err != nil {
			logger.Error("启动 Worker 失败", zap.Error(err))
		} else {
			defer workerServer.Shutdown()
		}
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("HTTP 服务器启动", zap.Int("port", cfg.Server.Port), zap.String("mode", cfg.Server.Mode))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP 服务器异常退出", zap.Error(err))
		}
	}()

	// 优雅退出
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("收到退出信号，开始关闭")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("HTTP 服务器关闭失败", zap.Error(err))
	}

	logger.Info("服务已退出")
}
