package retrieval

import "math"

// CosineSimilarity 计算两个向量的余弦相似度，范围[-1,1]。
// 任一向量范数为零时返回0，退化向量不得破坏排序。
func CosineSimilarity(query, candidate []float32) float64 {
	if len(query) == 0 || len(query) != len(candidate) {
		return 0
	}

	var dot, queryNorm, candidateNorm float64
	for i := range query {
		q := float64(query[i])
		c := float64(candidate[i])
		dot += q * c
		queryNorm += q * q
		candidateNorm += c * c
	}

	if queryNorm == 0 || candidateNorm == 0 {
		return 0
	}

	return dot / (math.Sqrt(queryNorm) * math.Sqrt(candidateNorm))
}

// CosineSimilarityBatch 计算查询向量与一批候选向量的余弦相似度
func CosineSimilarityBatch(query []float32, candidates [][]float32) []float64 {
	scores := make([]float64, len(candidates))
	for i, candidate := range candidates {
		scores[i] = CosineSimilarity(query, candidate)
	}
	return scores
}
