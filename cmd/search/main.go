package main

import (
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/pensionos/search-go/internal/config"
	"github.com/pensionos/search-go/internal/database"
	"github.com/pensionos/search-go/internal/di"
	"github.com/pensionos/search-go/internal/logger"
	"github.com/pensionos/search-go/internal/metrics"
	"github.com/pensionos/search-go/internal/retrieval"
	"github.com/pensionos/search-go/internal/services"
)

func main() {
	// .env缺失不致命
	_ = godotenv.Load()

	if err := config.LoadConfig(); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := logger.InitLogger(); err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync()

	container := di.InitContainer()
	if err := di.RegisterProviders(container); err != nil {
		logger.Fatal("依赖注册失败", zap.Error(err))
	}

	err := di.Invoke(func(
		vectors retrieval.VectorStore,
		graph retrieval.GraphStore,
		embedder retrieval.Embedder,
		documents *services.DocumentService,
		plans *services.PlanService,
		clients *services.ClientService,
		chat *services.ChatService,
		graphQA *services.GraphService,
	) {
		logger.Info("检索核心已就绪",
			zap.Bool("vector_store_ready", vectors.Ready()),
			zap.Bool("graph_store_ready", graph.Ready()),
			zap.Bool("embedder_ready", embedder.Ready()),
			zap.String("vector_provider", config.GetAppConfig().Retrieval.VectorStore.Provider),
			zap.String("graph_provider", config.GetAppConfig().Retrieval.GraphStore.Provider))
	})
	if err != nil {
		logger.Fatal("依赖解析失败", zap.Error(err))
	}

	// 指标端点
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		addr := ":" + config.GetAppConfig().Server.Port
		logger.Info("指标服务启动", zap.String("addr", addr))
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Error("指标服务退出", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("收到退出信号，开始关闭")
	if err := database.CloseRedis(); err != nil {
		logger.Error("Redis关闭失败", zap.Error(err))
	}
	if err := database.CloseDB(); err != nil {
		logger.Error("数据库关闭失败", zap.Error(err))
	}
}
