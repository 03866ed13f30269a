package retrieval

import "context"

// DocumentRecord 向量存储中的一条记录
type DocumentRecord struct {
	ID        string
	Text      string
	Embedding []float32
	Metadata  map[string]string
}

// VectorHit 向量检索命中，按距离升序返回
type VectorHit struct {
	ID         string
	Text       string
	Metadata   map[string]string
	Distance   float64
	Similarity float64 // 1 - Distance（余弦距离度量）
}

// VectorStore 向量存储抽象，业务逻辑不下沉到适配器
type VectorStore interface {
	Upsert(ctx context.Context, record DocumentRecord) error
	// Query 返回不超过k条结果，距离升序
	Query(ctx context.Context, embedding []float32, k int) ([]VectorHit, error)
	// Get 未找到时返回nil，不视为错误
	Get(ctx context.Context, id string) (*DocumentRecord, error)
	Delete(ctx context.Context, id string) error
	Ready() bool
}
