package services

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pensionos/search-go/internal/retrieval"
)

func newGraphService(t *testing.T) (*GraphService, sqlmock.Sqlmock, retrieval.GraphStore, *fakeLLM) {
	t.Helper()

	db, mock := newMockDB(t)
	graph := retrieval.NewMemoryGraphStore()
	embedder := &fakeEmbedder{vector: []float32{1, 0}}
	fusion := retrieval.NewFusionEngine(embedder, graph, 0.7, 10)
	llm := &fakeLLM{answer: "The plan vests after five years."}
	return NewGraphService(db, fusion, graph, llm), mock, graph, llm
}

func expectAllDocuments(mock sqlmock.Sqlmock) {
	mock.ExpectQuery(`SELECT \* FROM "documents"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "doc_id", "filename", "summary", "key_information", "embedding", "created_at"}).
			AddRow(1, "doc-1", "terms.pdf", "vesting summary", "vests after 5 years", `[1,0]`, time.Now()).
			AddRow(2, "doc-2", "other.pdf", "unrelated", "n/a", `[0,1]`, time.Now()))
}

func TestGraphService_Query(t *testing.T) {
	service, mock, graph, llm := newGraphService(t)
	ctx := context.Background()

	require.NoError(t, graph.UpsertDocumentNode(ctx, "doc-1", "terms.pdf", "c", nil))
	require.NoError(t, graph.UpsertDocumentNode(ctx, "doc-2", "other.pdf", "c", nil))
	require.NoError(t, graph.UpsertEntityNode(ctx, "Acme Corp", "organization", nil))
	require.NoError(t, graph.UpsertRelationship(ctx, "doc-1", "Acme Corp", "mentioned_in", nil))
	require.NoError(t, graph.UpsertRelationship(ctx, "doc-2", "Acme Corp", "mentioned_in", nil))

	expectAllDocuments(mock)

	result, err := service.Query(ctx, "when does the plan vest")
	require.NoError(t, err)
	assert.Equal(t, "The plan vests after five years.", result.Answer)
	assert.Contains(t, llm.lastContext, "Relevant Documents:")

	// 来源只含通过阈值的文档
	assert.Equal(t, []string{"doc-1"}, result.Sources)

	// 子图：命中文档、其实体、实体反向关联的其他文档
	nodeIDs := make(map[string]string)
	for _, node := range result.Subgraph.Nodes {
		nodeIDs[node.ID] = node.Kind
	}
	assert.Equal(t, "document", nodeIDs["doc-1"])
	assert.Equal(t, "entity", nodeIDs["entity:Acme Corp"])
	assert.Equal(t, "document", nodeIDs["doc-2"])
	assert.Len(t, result.Subgraph.Edges, 2)

	meta := result.Subgraph.Metadata
	assert.Equal(t, true, meta["threshold_met"])
	assert.Equal(t, 3, meta["total_nodes"])
	assert.Equal(t, 2, meta["total_edges"])
}

func TestGraphService_Query_FallbackFlagInMetadata(t *testing.T) {
	service, mock, graph, _ := newGraphService(t)
	ctx := context.Background()

	require.NoError(t, graph.UpsertDocumentNode(ctx, "doc-1", "terms.pdf", "c", nil))

	// 所有文档低于阈值，兜底路径生效
	mock.ExpectQuery(`SELECT \* FROM "documents"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "doc_id", "filename", "summary", "key_information", "embedding", "created_at"}).
			AddRow(1, "doc-1", "terms.pdf", "s", "k", `[0.3,0.95]`, time.Now()))

	result, err := service.Query(ctx, "unrelated question")
	require.NoError(t, err)
	assert.Equal(t, false, result.Subgraph.Metadata["threshold_met"])
	assert.Equal(t, []string{"doc-1"}, result.Sources)
}

func TestGraphService_Query_NoDocuments(t *testing.T) {
	service, mock, _, llm := newGraphService(t)

	mock.ExpectQuery(`SELECT \* FROM "documents"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "doc_id"}))

	result, err := service.Query(context.Background(), "anything")
	require.NoError(t, err)
	assert.Empty(t, result.Sources)
	assert.Empty(t, result.Subgraph.Nodes)
	assert.Empty(t, llm.lastContext)
}

func TestGraphService_Query_EmptyQuery(t *testing.T) {
	service, _, _, _ := newGraphService(t)

	_, err := service.Query(context.Background(), " ")
	assert.Error(t, err)
}
