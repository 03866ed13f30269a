package config

import (
	"os"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	viper.Reset()
	require.NoError(t, LoadConfig())

	assert.Equal(t, "8000", AppConfig.Server.Port)
	assert.Equal(t, 0.7, AppConfig.Retrieval.RelevanceThreshold)
	assert.Equal(t, 10, AppConfig.Retrieval.TopK)
	assert.Equal(t, 10, AppConfig.Retrieval.HistoryWindow)
	assert.Equal(t, 1536, AppConfig.Retrieval.Embedding.Dimensions)
	assert.Equal(t, "memory", AppConfig.Retrieval.VectorStore.Provider)
	assert.Equal(t, "memory", AppConfig.Retrieval.GraphStore.Provider)
}

func TestLoadConfigEnvOverride(t *testing.T) {
	viper.Reset()
	os.Setenv("MILVUS_ADDRESS", "milvus.internal:19530")
	os.Setenv("NEO4J_URI", "bolt://graph.internal:7687")
	defer func() {
		os.Unsetenv("MILVUS_ADDRESS")
		os.Unsetenv("NEO4J_URI")
	}()

	require.NoError(t, LoadConfig())

	// 配置了外部存储地址时，provider自动切换
	assert.Equal(t, "milvus", AppConfig.Retrieval.VectorStore.Provider)
	assert.Equal(t, "milvus.internal:19530", AppConfig.Retrieval.VectorStore.Milvus.Address)
	assert.Equal(t, "neo4j", AppConfig.Retrieval.GraphStore.Provider)
	assert.Equal(t, "bolt://graph.internal:7687", AppConfig.Retrieval.GraphStore.Neo4j.URI)
}

func TestGetAppConfigLazyLoad(t *testing.T) {
	viper.Reset()
	AppConfig = nil
	cfg := GetAppConfig()
	require.NotNil(t, cfg)
	assert.Equal(t, 0.7, cfg.Retrieval.RelevanceThreshold)
}
