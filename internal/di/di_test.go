package di

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/dig"

	"github.com/pensionos/search-go/internal/config"
	"github.com/pensionos/search-go/internal/retrieval"
)

func TestDependencyInjectionContainer(t *testing.T) {
	container := InitContainer()
	assert.NotNil(t, container)
	assert.NotNil(t, Container)
}

func TestRetrievalProvidersResolve(t *testing.T) {
	require.NoError(t, config.LoadConfig())

	container := dig.New()
	require.NoError(t, container.Provide(func() *config.Config { return config.GetAppConfig() }))
	require.NoError(t, container.Provide(func(cfg *config.Config) retrieval.Embedder {
		return retrieval.NewOpenAIEmbedder(cfg.AI.OpenAIAPIKey, cfg.Retrieval.Embedding.Model)
	}))
	require.NoError(t, container.Provide(func() retrieval.VectorStore { return retrieval.NewMemoryVectorStore() }))
	require.NoError(t, container.Provide(func() retrieval.GraphStore { return retrieval.NewMemoryGraphStore() }))
	require.NoError(t, container.Provide(func(cfg *config.Config, embedder retrieval.Embedder, graph retrieval.GraphStore) *retrieval.FusionEngine {
		return retrieval.NewFusionEngine(embedder, graph, cfg.Retrieval.RelevanceThreshold, cfg.Retrieval.TopK)
	}))

	err := container.Invoke(func(fusion *retrieval.FusionEngine, vectors retrieval.VectorStore, graph retrieval.GraphStore) {
		assert.NotNil(t, fusion)
		assert.True(t, vectors.Ready())
		assert.True(t, graph.Ready())
	})
	require.NoError(t, err)
}
