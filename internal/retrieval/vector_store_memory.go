package retrieval

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// memoryVectorStore 进程内向量存储，默认provider，也用于测试
type memoryVectorStore struct {
	mu      sync.RWMutex
	records map[string]*memoryRecord
	seq     uint64
}

type memoryRecord struct {
	DocumentRecord
	insertOrder uint64
}

// NewMemoryVectorStore 创建内存向量存储
func NewMemoryVectorStore() VectorStore {
	return &memoryVectorStore{
		records: make(map[string]*memoryRecord),
	}
}

func (s *memoryVectorStore) Upsert(ctx context.Context, record DocumentRecord) error {
	if record.ID == "" {
		return fmt.Errorf("record id is empty")
	}
	if len(record.Embedding) == 0 {
		return fmt.Errorf("embedding is empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.records[record.ID]; ok {
		existing.DocumentRecord = record
		return nil
	}
	s.seq++
	s.records[record.ID] = &memoryRecord{DocumentRecord: record, insertOrder: s.seq}
	return nil
}

func (s *memoryVectorStore) Query(ctx context.Context, embedding []float32, k int) ([]VectorHit, error) {
	if len(embedding) == 0 {
		return nil, nil
	}
	if k <= 0 {
		k = 10
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	type scored struct {
		hit   VectorHit
		order uint64
	}
	results := make([]scored, 0, len(s.records))
	for _, record := range s.records {
		similarity := CosineSimilarity(embedding, record.Embedding)
		results = append(results, scored{
			hit: VectorHit{
				ID:         record.ID,
				Text:       record.Text,
				Metadata:   copyMetadata(record.Metadata),
				Distance:   1 - similarity,
				Similarity: similarity,
			},
			order: record.insertOrder,
		})
	}

	// 距离升序，同分按插入顺序保证确定性
	sort.Slice(results, func(i, j int) bool {
		if results[i].hit.Distance == results[j].hit.Distance {
			return results[i].order < results[j].order
		}
		return results[i].hit.Distance < results[j].hit.Distance
	})

	if len(results) > k {
		results = results[:k]
	}
	hits := make([]VectorHit, len(results))
	for i, r := range results {
		hits[i] = r.hit
	}
	return hits, nil
}

func (s *memoryVectorStore) Get(ctx context.Context, id string) (*DocumentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[id]
	if !ok {
		return nil, nil
	}
	copied := record.DocumentRecord
	copied.Metadata = copyMetadata(record.Metadata)
	return &copied, nil
}

func (s *memoryVectorStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, id)
	return nil
}

func (s *memoryVectorStore) Ready() bool {
	return true
}

func copyMetadata(metadata map[string]string) map[string]string {
	if metadata == nil {
		return nil
	}
	copied := make(map[string]string, len(metadata))
	for k, v := range metadata {
		copied[k] = v
	}
	return copied
}
