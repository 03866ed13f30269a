package retrieval

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCosineSimilarity_Identity(t *testing.T) {
	v := []float32{0.3, 0.5, 0.8}
	assert.InDelta(t, 1.0, CosineSimilarity(v, v), 1e-9)
}

func TestCosineSimilarity_Orthogonal(t *testing.T) {
	a := []float32{1, 0}
	b := []float32{0, 1}
	assert.InDelta(t, 0.0, CosineSimilarity(a, b), 1e-9)
}

func TestCosineSimilarity_Opposite(t *testing.T) {
	a := []float32{1, 2, 3}
	b := []float32{-1, -2, -3}
	assert.InDelta(t, -1.0, CosineSimilarity(a, b), 1e-9)
}

func TestCosineSimilarity_ZeroVector(t *testing.T) {
	// 零范数向量必须得0分，不能产生NaN
	query := []float32{1, 2, 3}
	zero := []float32{0, 0, 0}
	assert.Equal(t, 0.0, CosineSimilarity(query, zero))
	assert.Equal(t, 0.0, CosineSimilarity(zero, query))
	assert.Equal(t, 0.0, CosineSimilarity(zero, zero))
}

func TestCosineSimilarity_DimensionMismatch(t *testing.T) {
	a := []float32{1, 2, 3}
	b := []float32{1, 2}
	assert.Equal(t, 0.0, CosineSimilarity(a, b))
	assert.Equal(t, 0.0, CosineSimilarity(nil, b))
}

func TestCosineSimilarity_Bounds(t *testing.T) {
	vectors := [][]float32{
		{0.1, 0.9, 0.4},
		{-0.7, 0.2, 0.5},
		{100, -200, 300},
	}
	query := []float32{0.5, 0.5, 0.5}
	for _, v := range vectors {
		score := CosineSimilarity(query, v)
		assert.GreaterOrEqual(t, score, -1.0)
		assert.LessOrEqual(t, score, 1.0)
	}
}

func TestCosineSimilarityBatch(t *testing.T) {
	query := []float32{1, 0}
	candidates := [][]float32{
		{1, 0},
		{0, 1},
		{0, 0},
	}
	scores := CosineSimilarityBatch(query, candidates)
	assert.Len(t, scores, 3)
	assert.InDelta(t, 1.0, scores[0], 1e-9)
	assert.InDelta(t, 0.0, scores[1], 1e-9)
	assert.Equal(t, 0.0, scores[2])
}
