package retrieval

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixedEmbedder 测试桩，对任意文本返回固定查询向量
type fixedEmbedder struct {
	vector []float32
	err    error
}

func (f *fixedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return f.vector, f.err
}

func (f *fixedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = f.vector
	}
	return vectors, nil
}

func (f *fixedEmbedder) Dimensions() int { return len(f.vector) }

func (f *fixedEmbedder) Ready() bool { return f.err == nil }

// vectorWithSimilarity 构造与查询向量[1,0]余弦相似度恰为s的单位向量
func vectorWithSimilarity(s float64) []float32 {
	return []float32{float32(s), float32(math.Sqrt(1 - s*s))}
}

func newTestEngine(graph GraphStore) *FusionEngine {
	if graph == nil {
		graph = NewMemoryGraphStore()
	}
	return NewFusionEngine(&fixedEmbedder{vector: []float32{1, 0}}, graph, 0.7, 10)
}

func TestFusionEngine_ThresholdFilter(t *testing.T) {
	engine := newTestEngine(nil)

	sims := []float64{0.9, 0.75, 0.5, 0.3}
	docs := make([]DocumentCandidate, len(sims))
	for i, s := range sims {
		docs[i] = DocumentCandidate{
			DocID:     string(rune('a' + i)),
			Filename:  "f",
			Embedding: vectorWithSimilarity(s),
			CreatedAt: time.Now(),
		}
	}

	bundle, err := engine.BuildContext(context.Background(), ContextRequest{
		Query:     "retirement terms",
		Documents: docs,
	})
	require.NoError(t, err)
	assert.True(t, bundle.ThresholdMet)
	require.Len(t, bundle.Documents, 2)
	assert.Equal(t, "a", bundle.Documents[0].DocID)
	assert.Equal(t, "b", bundle.Documents[1].DocID)
	assert.InDelta(t, 0.9, bundle.Documents[0].Similarity, 1e-3)
	assert.InDelta(t, 0.75, bundle.Documents[1].Similarity, 1e-3)
}

func TestFusionEngine_FallbackBelowThreshold(t *testing.T) {
	engine := newTestEngine(nil)

	docs := []DocumentCandidate{
		{DocID: "low", Embedding: vectorWithSimilarity(0.3), CreatedAt: time.Now()},
		{DocID: "best", Embedding: vectorWithSimilarity(0.6), CreatedAt: time.Now()},
		{DocID: "lower", Embedding: vectorWithSimilarity(0.1), CreatedAt: time.Now()},
	}

	bundle, err := engine.BuildContext(context.Background(), ContextRequest{
		Query:     "unrelated query",
		Documents: docs,
	})
	require.NoError(t, err)
	// 兜底只保留最高分一条，并标记阈值未达成
	assert.False(t, bundle.ThresholdMet)
	require.Len(t, bundle.Documents, 1)
	assert.Equal(t, "best", bundle.Documents[0].DocID)
}

func TestFusionEngine_PlansOnlyScope(t *testing.T) {
	engine := newTestEngine(nil)

	plans := []PlanCandidate{
		{ID: 1, CompanyName: "Acme", Embedding: vectorWithSimilarity(0.82), CreatedAt: time.Now()},
		{ID: 2, CompanyName: "Globex", Embedding: vectorWithSimilarity(0.4), CreatedAt: time.Now()},
	}

	bundle, err := engine.BuildContext(context.Background(), ContextRequest{
		Query: "retirement age",
		Plans: plans,
		Limit: 10,
	})
	require.NoError(t, err)
	assert.True(t, bundle.ThresholdMet)
	require.Len(t, bundle.Plans, 1)
	assert.Equal(t, uint(1), bundle.Plans[0].ID)
	assert.Empty(t, bundle.Documents)
}

func TestFusionEngine_TieBreakEarlierCreated(t *testing.T) {
	engine := newTestEngine(nil)

	earlier := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	later := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	docs := []DocumentCandidate{
		{DocID: "newer", Embedding: vectorWithSimilarity(0.9), CreatedAt: later},
		{DocID: "older", Embedding: vectorWithSimilarity(0.9), CreatedAt: earlier},
	}

	bundle, err := engine.BuildContext(context.Background(), ContextRequest{
		Query:     "q",
		Documents: docs,
	})
	require.NoError(t, err)
	require.Len(t, bundle.Documents, 2)
	assert.Equal(t, "older", bundle.Documents[0].DocID)
	assert.Equal(t, "newer", bundle.Documents[1].DocID)
}

func TestFusionEngine_EmptyCandidates(t *testing.T) {
	engine := newTestEngine(nil)

	bundle, err := engine.BuildContext(context.Background(), ContextRequest{Query: "q"})
	require.NoError(t, err)
	assert.True(t, bundle.ThresholdMet)
	assert.Empty(t, bundle.Plans)
	assert.Empty(t, bundle.Documents)
	assert.Empty(t, bundle.Text)
}

func TestFusionEngine_Limit(t *testing.T) {
	engine := newTestEngine(nil)

	docs := make([]DocumentCandidate, 5)
	for i := range docs {
		docs[i] = DocumentCandidate{
			DocID:     string(rune('a' + i)),
			Embedding: vectorWithSimilarity(0.95 - float64(i)*0.01),
			CreatedAt: time.Now(),
		}
	}

	bundle, err := engine.BuildContext(context.Background(), ContextRequest{
		Query:     "q",
		Documents: docs,
		Limit:     3,
	})
	require.NoError(t, err)
	assert.Len(t, bundle.Documents, 3)
}

func TestFusionEngine_DeduplicatesCandidates(t *testing.T) {
	engine := newTestEngine(nil)

	docs := []DocumentCandidate{
		{DocID: "dup", Embedding: vectorWithSimilarity(0.9), CreatedAt: time.Now()},
		{DocID: "dup", Embedding: vectorWithSimilarity(0.8), CreatedAt: time.Now()},
	}

	bundle, err := engine.BuildContext(context.Background(), ContextRequest{
		Query:     "q",
		Documents: docs,
	})
	require.NoError(t, err)
	assert.Len(t, bundle.Documents, 1)
}

func TestFusionEngine_EntityAttachment(t *testing.T) {
	graph := NewMemoryGraphStore()
	ctx := context.Background()
	require.NoError(t, graph.UpsertDocumentNode(ctx, "doc-1", "Terms", "content", nil))
	require.NoError(t, graph.UpsertEntityNode(ctx, "Acme Corp", "organization", nil))
	require.NoError(t, graph.UpsertRelationship(ctx, "doc-1", "Acme Corp", "mentioned_in", nil))

	engine := newTestEngine(graph)
	bundle, err := engine.BuildContext(ctx, ContextRequest{
		Query: "q",
		Documents: []DocumentCandidate{
			{DocID: "doc-1", Filename: "terms.pdf", PlanCompany: "Acme", Summary: "s", KeyInformation: "k",
				Embedding: vectorWithSimilarity(0.9), CreatedAt: time.Now()},
		},
	})
	require.NoError(t, err)
	require.Len(t, bundle.Documents, 1)
	require.Len(t, bundle.Documents[0].Entities, 1)
	assert.Equal(t, "Acme Corp", bundle.Documents[0].Entities[0].Name)
	require.Len(t, bundle.Entities, 1)
	assert.Contains(t, bundle.Text, "Related Entities: Acme Corp")
}

func TestFusionEngine_RenderedContextGrouping(t *testing.T) {
	engine := newTestEngine(nil)

	bundle, err := engine.BuildContext(context.Background(), ContextRequest{
		Query: "q",
		Plans: []PlanCandidate{
			{ID: 1, CompanyName: "Acme", PlanType: "defined_benefit", Description: "d",
				MainContact: "Jane", ParticipantsCount: 120,
				Embedding: vectorWithSimilarity(0.85), CreatedAt: time.Now()},
		},
		Documents: []DocumentCandidate{
			{DocID: "doc-1", Filename: "terms.pdf", PlanCompany: "Acme", Summary: "s", KeyInformation: "k",
				Embedding: vectorWithSimilarity(0.8), CreatedAt: time.Now()},
		},
	})
	require.NoError(t, err)
	assert.Contains(t, bundle.Text, "Relevant Pension Plans:")
	assert.Contains(t, bundle.Text, "Pension Plan: Acme")
	assert.Contains(t, bundle.Text, "Participants: 120")
	assert.Contains(t, bundle.Text, "Relevant Documents:")
	assert.Contains(t, bundle.Text, "Document 'terms.pdf' from plan 'Acme'")
}

func TestFusionEngine_EmbedErrorPropagates(t *testing.T) {
	engine := NewFusionEngine(&fixedEmbedder{err: errors.New("api down")}, NewMemoryGraphStore(), 0.7, 10)

	_, err := engine.BuildContext(context.Background(), ContextRequest{
		Query:     "q",
		Documents: []DocumentCandidate{{DocID: "a", Embedding: vectorWithSimilarity(0.9)}},
	})
	assert.Error(t, err)
}

func TestFusionEngine_ZeroNormCandidateScoresZero(t *testing.T) {
	engine := newTestEngine(nil)

	bundle, err := engine.BuildContext(context.Background(), ContextRequest{
		Query: "q",
		Documents: []DocumentCandidate{
			{DocID: "degenerate", Embedding: []float32{0, 0}, CreatedAt: time.Now()},
			{DocID: "good", Embedding: vectorWithSimilarity(0.9), CreatedAt: time.Now()},
		},
	})
	require.NoError(t, err)
	require.Len(t, bundle.Documents, 1)
	assert.Equal(t, "good", bundle.Documents[0].DocID)
}
