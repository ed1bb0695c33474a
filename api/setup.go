package api

import (
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Remex-Wangkhem/Aix-Studio/api/handlers/apikeys"
	"github.com/Remex-Wangkhem/Aix-Studio/api/handlers/authapi"
	"github.com/Remex-Wangkhem/Aix-Studio/api/handlers/chat"
	"github.com/Remex-Wangkhem/Aix-Studio/api/handlers/connectors"
	"github.com/Remex-Wangkhem/Aix-Studio/api/handlers/conversations"
	"github.com/Remex-Wangkhem/Aix-Studio/api/handlers/endpoints"
	"github.com/Remex-Wangkhem/Aix-Studio/api/handlers/gatewayapi"
	"github.com/Remex-Wangkhem/Aix-Studio/api/handlers/usage"
	"github.com/Remex-Wangkhem/Aix-Studio/internal/adapters"
	"github.com/Remex-Wangkhem/Aix-Studio/internal/auth"
	"github.com/Remex-Wangkhem/Aix-Studio/internal/config"
	"github.com/Remex-Wangkhem/Aix-Studio/internal/gateway"
	"github.com/Remex-Wangkhem/Aix-Studio/internal/infra"
	"github.com/Remex-Wangkhem/Aix-Studio/internal/logger"
	"github.com/Remex-Wangkhem/Aix-Studio/internal/middleware"
	"github.com/Remex-Wangkhem/Aix-Studio/internal/store"
	"github.com/Remex-Wangkhem/Aix-Studio/internal/worker"
)

// SetupRouter 组装路由与后台任务服务器
func SetupRouter(db *gorm.DB, cfg *config.Config) (*gin.Engine, *worker.Server) {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.AccessLogMiddleware())
	router.Use(middleware.MetricsMiddleware())

	// JWT 密钥：生产模式必须显式配置
	jwtSecretKey := strings.TrimSpace(os.Getenv("JWT_SECRET_KEY"))
	if jwtSecretKey == "" {
		if strings.EqualFold(cfg.Server.Mode, "release") {
			logger.Fatal("JWT_SECRET_KEY 未配置，生产环境禁止使用默认密钥")
		}
		jwtSecretKey = "default_jwt_secret_key_change_in_production"
		logger.Warn("JWT_SECRET_KEY 未配置，已回退为开发默认值")
	}

	jwtService := auth.NewJWTService(jwtSecretKey, "Aix-Studio")
	userService := auth.NewUserService(db, jwtService)
	apiKeyService := auth.NewAPIKeyService(db)

	connectorService := store.NewConnectorService(db)
	endpointService := store.NewEndpointService(db, cfg.Gateway.DefaultRateRPM)
	usageService := store.NewUsageService(db)
	conversationService := store.NewConversationService(db)
	gwStore := store.NewGormStore(db)

	factory := adapters.NewFactory(time.Duration(cfg.Gateway.UpstreamTimeout) * time.Second)
	limiter := middleware.NewLimiter(infra.GetRedis())
	engine := gateway.NewEngine(gwStore, factory, limiter, cfg.Gateway.PricePerToken)

	gatewayHandler := gatewayapi.NewHandler(engine)
	chatHandler := chat.NewHandler(engine)
	connectorHandler := connectors.NewHandler(connectorService, factory, gwStore)
	endpointHandler := endpoints.NewHandler(endpointService, gwStore)
	apiKeyHandler := apikeys.NewHandler(apiKeyService, gwStore)
	authHandler := authapi.NewHandler(userService)
	usageHandler := usage.NewHandler(usageService)
	conversationHandler := conversations.NewHandler(conversationService)

	// 健康检查与可观测
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/ready", func(c *gin.Context) {
		if err := infra.HealthCheck(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// 对外网关：x-api-key 鉴权在引擎内完成
	router.POST("/api/x/*route", gatewayHandler.Execute)

	// 认证
	authGroup := router.Group("/api/auth")
	{
		authGroup.POST("/register", authHandler.Register)
		authGroup.POST("/login", authHandler.Login)
	}

	// 管理端（JWT）
	admin := router.Group("/api")
	admin.Use(auth.JWTAuthMiddleware(jwtService))
	{
		admin.POST("/chat/stream", chatHandler.Stream)

		admin.GET("/model-connectors", connectorHandler.List)
		admin.POST("/model-connectors", connectorHandler.Create)
		admin.GET("/model-connectors/:id", connectorHandler.Get)
		admin.PATCH("/model-connectors/:id", connectorHandler.Update)
		admin.DELETE("/model-connectors/:id", connectorHandler.Delete)
		admin.POST("/model-connectors/:id/health", connectorHandler.HealthCheck)

		admin.GET("/endpoints", endpointHandler.List)
		admin.POST("/endpoints", endpointHandler.Create)
		admin.GET("/endpoints/:id", endpointHandler.Get)
		admin.PATCH("/endpoints/:id", endpointHandler.Update)
		admin.DELETE("/endpoints/:id", endpointHandler.Delete)

		admin.GET("/api-keys", apiKeyHandler.List)
		admin.POST("/api-keys", apiKeyHandler.Create)
		admin.DELETE("/api-keys/:id", apiKeyHandler.Delete)

		admin.GET("/usage-records", usageHandler.ListUsage)
		admin.GET("/usage-records/summary", usageHandler.Summary)
		admin.GET("/audit-logs", usageHandler.ListAuditLogs)

		admin.GET("/conversations", conversationHandler.List)
		admin.POST("/conversations", conversationHandler.Create)
		admin.PATCH("/conversations/:id", conversationHandler.Update)
		admin.DELETE("/conversations/:id", conversationHandler.Delete)
		admin.GET("/conversations/:id/messages", conversationHandler.ListMessages)
		admin.POST("/conversations/:id/messages", conversationHandler.AppendMessage)
	}

	// 后台任务：周期性连接器健康探测
	var workerServer *worker.Server
	if cfg.Worker.Enabled {
		handler := worker.NewHealthProbeHandler(connectorService, factory, logger.Get())
		srv, err := worker.NewServer(cfg, handler, logger.Get())
		if err != nil {
			logger.Error("创建 Worker 服务器失败，后台探测不可用", zap.Error(err))
		} else {
			workerServer = srv
		}
	}

	return router, workerServer
}
