package retrieval

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
)

// MilvusOptions Milvus客户端配置
type MilvusOptions struct {
	Address    string
	Username   string
	Password   string
	Collection string
	VectorSize int
	Distance   string
	Database   string
	UseTLS     bool
	Timeout    time.Duration
}

type milvusVectorStore struct {
	milvusClient client.Client
	collection   string
	vectorSize   int
	distance     string
}

// NewMilvusVectorStore 创建Milvus向量存储
func NewMilvusVectorStore(opts MilvusOptions) (VectorStore, error) {
	if opts.Address == "" {
		opts.Address = "localhost:19530"
	}
	if opts.Collection == "" {
		opts.Collection = "pension_documents"
	}
	if opts.VectorSize == 0 {
		opts.VectorSize = 1536
	}
	if opts.Database == "" {
		opts.Database = "default"
	}

	milvusClient, err := client.NewClient(
		context.Background(),
		client.Config{
			Address:       opts.Address,
			DBName:        opts.Database,
			Username:      opts.Username,
			Password:      opts.Password,
			EnableTLSAuth: opts.UseTLS,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create milvus client: %w", err)
	}

	return &milvusVectorStore{
		milvusClient: milvusClient,
		collection:   opts.Collection,
		vectorSize:   opts.VectorSize,
		distance:     formatMilvusDistance(opts.Distance),
	}, nil
}

func formatMilvusDistance(value string) string {
	switch strings.ToUpper(value) {
	case "DOT", "IP", "INNER_PRODUCT":
		return "IP"
	case "L2", "EUCLIDEAN":
		return "L2"
	default:
		return "COSINE"
	}
}

func (s *milvusVectorStore) ensureCollection(ctx context.Context) error {
	hasCollection, err := s.milvusClient.HasCollection(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}
	if hasCollection {
		return nil
	}

	schema := &entity.Schema{
		CollectionName: s.collection,
		Description:    "Pension document embeddings",
		Fields: []*entity.Field{
			{
				Name:       "id",
				DataType:   entity.FieldTypeVarChar,
				PrimaryKey: true,
				TypeParams: map[string]string{
					"max_length": "64",
				},
			},
			{
				Name:     "content",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "65535",
				},
			},
			{
				Name:     "metadata",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "65535",
				},
			},
			{
				Name:     "vector",
				DataType: entity.FieldTypeFloatVector,
				TypeParams: map[string]string{
					"dim": fmt.Sprintf("%d", s.vectorSize),
				},
			},
		},
	}

	if err := s.milvusClient.CreateCollection(ctx, schema, entity.DefaultShardNumber); err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	var index entity.Index
	var indexErr error
	switch s.distance {
	case "IP":
		index, indexErr = entity.NewIndexHNSW(entity.IP, 8, 64)
	case "L2":
		index, indexErr = entity.NewIndexHNSW(entity.L2, 8, 64)
	default:
		index, indexErr = entity.NewIndexHNSW(entity.COSINE, 8, 64)
	}
	if indexErr != nil {
		return fmt.Errorf("failed to create index: %w", indexErr)
	}
	if err := s.milvusClient.CreateIndex(ctx, s.collection, "vector", index, false); err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	return nil
}

func (s *milvusVectorStore) Upsert(ctx context.Context, record DocumentRecord) error {
	if record.ID == "" {
		return fmt.Errorf("record id is empty")
	}
	if len(record.Embedding) != s.vectorSize {
		return fmt.Errorf("embedding dimension mismatch: got %d, want %d", len(record.Embedding), s.vectorSize)
	}
	if err := s.ensureCollection(ctx); err != nil {
		return err
	}

	// Milvus主键插入不覆盖旧值，先删再插实现upsert语义
	expr := fmt.Sprintf("id == %q", record.ID)
	if err := s.milvusClient.Delete(ctx, s.collection, "", expr); err != nil {
		return fmt.Errorf("milvus delete before upsert failed: %w", err)
	}

	metadataJSON := "{}"
	if record.Metadata != nil {
		data, err := json.Marshal(record.Metadata)
		if err != nil {
			return fmt.Errorf("failed to encode metadata: %w", err)
		}
		metadataJSON = string(data)
	}

	idColumn := entity.NewColumnVarChar("id", []string{record.ID})
	contentColumn := entity.NewColumnVarChar("content", []string{record.Text})
	metadataColumn := entity.NewColumnVarChar("metadata", []string{metadataJSON})
	vectorColumn := entity.NewColumnFloatVector("vector", s.vectorSize, [][]float32{record.Embedding})

	if _, err := s.milvusClient.Insert(ctx, s.collection, "", idColumn, contentColumn, metadataColumn, vectorColumn); err != nil {
		return fmt.Errorf("milvus insert failed: %w", err)
	}

	if err := s.milvusClient.Flush(ctx, s.collection, false); err != nil {
		return fmt.Errorf("milvus flush failed: %w", err)
	}

	return nil
}

func (s *milvusVectorStore) Query(ctx context.Context, embedding []float32, k int) ([]VectorHit, error) {
	if len(embedding) == 0 {
		return nil, nil
	}
	if k <= 0 {
		k = 10
	}
	if err := s.ensureCollection(ctx); err != nil {
		return nil, err
	}

	sp, _ := entity.NewIndexHNSWSearchParam(64)
	queryVector := entity.FloatVector(embedding)
	searchResults, err := s.milvusClient.Search(
		ctx,
		s.collection,
		[]string{},
		"",
		[]string{"id", "content", "metadata"},
		[]entity.Vector{queryVector},
		"vector",
		entity.MetricType(s.distance),
		k,
		sp,
	)
	if err != nil {
		return nil, fmt.Errorf("milvus search failed: %w", err)
	}

	if len(searchResults) == 0 {
		return []VectorHit{}, nil
	}
	result := searchResults[0]
	if result.Err != nil {
		return nil, fmt.Errorf("milvus search error: %w", result.Err)
	}
	if result.ResultCount == 0 {
		return []VectorHit{}, nil
	}

	var ids, contents, metadatas []string
	if idCol, ok := result.IDs.(*entity.ColumnVarChar); ok {
		ids = idCol.Data()
	}
	for _, field := range result.Fields {
		col, ok := field.(*entity.ColumnVarChar)
		if !ok {
			continue
		}
		switch field.Name() {
		case "content":
			contents = col.Data()
		case "metadata":
			metadatas = col.Data()
		}
	}

	hits := make([]VectorHit, 0, result.ResultCount)
	for i := 0; i < result.ResultCount; i++ {
		hit := VectorHit{}
		if i < len(ids) {
			hit.ID = ids[i]
		}
		if i < len(contents) {
			hit.Text = contents[i]
		}
		if i < len(metadatas) {
			var metadata map[string]string
			if err := json.Unmarshal([]byte(metadatas[i]), &metadata); err == nil {
				hit.Metadata = metadata
			}
		}
		if i < len(result.Scores) {
			// COSINE/IP度量下score即相似度
			hit.Similarity = float64(result.Scores[i])
			hit.Distance = 1 - hit.Similarity
		}
		hits = append(hits, hit)
	}

	return hits, nil
}

func (s *milvusVectorStore) Get(ctx context.Context, id string) (*DocumentRecord, error) {
	if err := s.ensureCollection(ctx); err != nil {
		return nil, err
	}

	expr := fmt.Sprintf("id == %q", id)
	columns, err := s.milvusClient.Query(ctx, s.collection, []string{}, expr, []string{"id", "content", "metadata", "vector"})
	if err != nil {
		return nil, fmt.Errorf("milvus query failed: %w", err)
	}

	record := &DocumentRecord{}
	found := false
	for _, column := range columns {
		switch col := column.(type) {
		case *entity.ColumnVarChar:
			if len(col.Data()) == 0 {
				continue
			}
			value := col.Data()[0]
			switch column.Name() {
			case "id":
				record.ID = value
				found = true
			case "content":
				record.Text = value
			case "metadata":
				var metadata map[string]string
				if err := json.Unmarshal([]byte(value), &metadata); err == nil {
					record.Metadata = metadata
				}
			}
		case *entity.ColumnFloatVector:
			if len(col.Data()) > 0 {
				record.Embedding = col.Data()[0]
			}
		}
	}
	if !found {
		return nil, nil
	}
	return record, nil
}

func (s *milvusVectorStore) Delete(ctx context.Context, id string) error {
	if err := s.ensureCollection(ctx); err != nil {
		return err
	}

	expr := fmt.Sprintf("id == %q", id)
	if err := s.milvusClient.Delete(ctx, s.collection, "", expr); err != nil {
		return fmt.Errorf("milvus delete failed: %w", err)
	}
	if err := s.milvusClient.Flush(ctx, s.collection, false); err != nil {
		return fmt.Errorf("milvus flush after delete failed: %w", err)
	}
	return nil
}

func (s *milvusVectorStore) Ready() bool {
	if s.milvusClient == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := s.milvusClient.ListCollections(ctx)
	return err == nil
}
