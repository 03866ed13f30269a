package di

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/dig"
	"gorm.io/gorm"

	"github.com/pensionos/search-go/internal/config"
	"github.com/pensionos/search-go/internal/database"
	"github.com/pensionos/search-go/internal/retrieval"
	"github.com/pensionos/search-go/internal/services"
)

// Container 进程级注入容器，启动时初始化一次
var Container *dig.Container

// InitContainer 构建注入容器
func InitContainer() *dig.Container {
	Container = dig.New()
	return Container
}

// Invoke 从容器解析依赖并执行函数
func Invoke(function interface{}, opts ...dig.InvokeOption) error {
	return Container.Invoke(function, opts...)
}

// RegisterProviders 注册所有依赖提供者
func RegisterProviders(container *dig.Container) error {
	// 配置
	if err := container.Provide(func() (*config.Config, error) {
		cfg := config.GetAppConfig()
		if cfg == nil {
			return nil, fmt.Errorf("config not loaded")
		}
		return cfg, nil
	}); err != nil {
		return err
	}

	// 数据库
	if err := container.Provide(func(cfg *config.Config) (*gorm.DB, error) {
		return database.InitDB()
	}); err != nil {
		return err
	}

	// Redis
	if err := container.Provide(func(cfg *config.Config) (*redis.Client, error) {
		return database.InitRedis()
	}); err != nil {
		return err
	}

	// 向量化
	if err := container.Provide(func(cfg *config.Config) retrieval.Embedder {
		return retrieval.NewOpenAIEmbedder(cfg.AI.OpenAIAPIKey, cfg.Retrieval.Embedding.Model)
	}); err != nil {
		return err
	}

	// 大模型
	if err := container.Provide(func(cfg *config.Config) retrieval.LLM {
		return retrieval.NewOpenAILLM(cfg.AI.OpenAIAPIKey, cfg.AI.ChatModel)
	}); err != nil {
		return err
	}

	// 向量存储，按provider切换
	if err := container.Provide(func(cfg *config.Config) (retrieval.VectorStore, error) {
		switch cfg.Retrieval.VectorStore.Provider {
		case "milvus":
			m := cfg.Retrieval.VectorStore.Milvus
			return retrieval.NewMilvusVectorStore(retrieval.MilvusOptions{
				Address:    m.Address,
				Username:   m.Username,
				Password:   m.Password,
				Collection: m.Collection,
				VectorSize: m.VectorSize,
				Distance:   m.Distance,
				Database:   m.Database,
				UseTLS:     m.TLS,
			})
		case "memory", "":
			return retrieval.NewMemoryVectorStore(), nil
		default:
			return nil, fmt.Errorf("unknown vector store provider: %s", cfg.Retrieval.VectorStore.Provider)
		}
	}); err != nil {
		return err
	}

	// 图谱存储，按provider切换
	if err := container.Provide(func(cfg *config.Config) (retrieval.GraphStore, error) {
		switch cfg.Retrieval.GraphStore.Provider {
		case "neo4j":
			n := cfg.Retrieval.GraphStore.Neo4j
			store, err := retrieval.NewNeo4jGraphStore(retrieval.Neo4jOptions{
				URI:      n.URI,
				Username: n.Username,
				Password: n.Password,
			})
			if err != nil {
				return nil, err
			}
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := store.EnsureConstraints(ctx); err != nil {
				return nil, err
			}
			return store, nil
		case "memory", "":
			return retrieval.NewMemoryGraphStore(), nil
		default:
			return nil, fmt.Errorf("unknown graph store provider: %s", cfg.Retrieval.GraphStore.Provider)
		}
	}); err != nil {
		return err
	}

	// 融合引擎，阈值与top-k从配置取
	if err := container.Provide(func(cfg *config.Config, embedder retrieval.Embedder, graph retrieval.GraphStore) *retrieval.FusionEngine {
		return retrieval.NewFusionEngine(embedder, graph, cfg.Retrieval.RelevanceThreshold, cfg.Retrieval.TopK)
	}); err != nil {
		return err
	}

	// 业务服务
	if err := container.Provide(services.NewDocumentService); err != nil {
		return err
	}
	if err := container.Provide(services.NewPlanService); err != nil {
		return err
	}
	if err := container.Provide(services.NewClientService); err != nil {
		return err
	}
	if err := container.Provide(func(db *gorm.DB, redisClient *redis.Client, fusion *retrieval.FusionEngine, llm retrieval.LLM, cfg *config.Config) *services.ChatService {
		ttl := time.Duration(cfg.Redis.TTL) * time.Second
		chatDefaults := retrieval.ChatOptions{
			Temperature: float32(cfg.AI.Temperature),
			MaxTokens:   cfg.AI.MaxTokens,
		}
		return services.NewChatService(db, redisClient, fusion, llm, cfg.Retrieval.HistoryWindow, ttl, chatDefaults)
	}); err != nil {
		return err
	}
	if err := container.Provide(services.NewGraphService); err != nil {
		return err
	}

	return nil
}
