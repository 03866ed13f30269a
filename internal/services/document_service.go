package services

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/pensionos/search-go/internal/errors"
	"github.com/pensionos/search-go/internal/logger"
	"github.com/pensionos/search-go/internal/metrics"
	"github.com/pensionos/search-go/internal/models"
	"github.com/pensionos/search-go/internal/retrieval"
)

// 摄取流水线阶段，失败时写入错误的Stage字段
const (
	StageEmbedding   = "embedding"
	StageLLM         = "llm"
	StageVectorStore = "vector_store"
	StageGraphStore  = "graph_store"
	StageDatabase    = "database"
)

// DocumentService 文档服务：摄取流水线、向量检索、查询与删除
type DocumentService struct {
	db       *gorm.DB
	vectors  retrieval.VectorStore
	graph    retrieval.GraphStore
	embedder retrieval.Embedder
	llm      retrieval.LLM
}

// NewDocumentService 创建文档服务
func NewDocumentService(db *gorm.DB, vectors retrieval.VectorStore, graph retrieval.GraphStore, embedder retrieval.Embedder, llm retrieval.LLM) *DocumentService {
	return &DocumentService{
		db:       db,
		vectors:  vectors,
		graph:    graph,
		embedder: embedder,
		llm:      llm,
	}
}

// IngestDocumentRequest 文档摄取请求
type IngestDocumentRequest struct {
	Filename      string `json:"filename"`
	FileType      string `json:"file_type,omitempty"`
	Content       string `json:"content"`
	PensionPlanID *uint  `json:"pension_plan_id,omitempty"`
}

// IngestDocumentResult 摄取结果
type IngestDocumentResult struct {
	DocumentID string                `json:"document_id"`
	Summary    string                `json:"summary"`
	Entities   []retrieval.RawEntity `json:"entities"`
	// EntitiesDegraded 实体抽取输出不可解析时为true，摄取仍算成功
	EntitiesDegraded bool `json:"entities_degraded"`
}

// Ingest 执行摄取流水线：向量化、摘要、实体抽取、双存储写入、元数据落库。
// 两个存储之间没有回滚：图谱写入失败时向量条目成为孤儿，
// 错误的Stage字段供运维核对。每次调用生成全新文档ID，重试会产生新条目。
func (s *DocumentService) Ingest(ctx context.Context, req IngestDocumentRequest) (*IngestDocumentResult, error) {
	if strings.TrimSpace(req.Content) == "" {
		return nil, errors.NewValidationError("document content is empty")
	}
	if strings.TrimSpace(req.Filename) == "" {
		return nil, errors.NewValidationError("filename is empty")
	}

	docID := uuid.NewString()
	logger.Info("开始文档摄取", zap.String("doc_id", docID), zap.String("filename", req.Filename))

	embedding, err := s.embedder.Embed(ctx, req.Content)
	if err != nil {
		s.recordFailure(StageEmbedding)
		return nil, errors.NewEmbeddingError(err).WithStage(StageEmbedding)
	}

	summary, err := s.llm.Summarize(ctx, req.Content)
	if err != nil {
		s.recordFailure(StageLLM)
		return nil, errors.NewBusinessError(errors.ErrCodeExternalService, "summary generation failed").
			WithStage(StageLLM).WithCause(err)
	}

	rawEntities, err := s.llm.ExtractEntities(ctx, req.Content)
	if err != nil {
		s.recordFailure(StageLLM)
		return nil, errors.NewBusinessError(errors.ErrCodeExternalService, "entity extraction failed").
			WithStage(StageLLM).WithCause(err)
	}

	// 解析失败降级为空实体，不中断摄取
	entities, parseErr := retrieval.ParseEntities(rawEntities)
	degraded := false
	if parseErr != nil {
		degraded = true
		entities = []retrieval.RawEntity{}
		metrics.IngestStageFailures.WithLabelValues("extraction_parse").Inc()
		logger.Warn("实体抽取输出解析失败，降级为空实体",
			zap.String("doc_id", docID), zap.Error(parseErr))
	}

	metadata := map[string]string{"filename": req.Filename}
	if req.PensionPlanID != nil {
		metadata["pension_plan_id"] = strconv.FormatUint(uint64(*req.PensionPlanID), 10)
	}
	if err := s.vectors.Upsert(ctx, retrieval.DocumentRecord{
		ID:        docID,
		Text:      req.Content,
		Embedding: embedding,
		Metadata:  metadata,
	}); err != nil {
		s.recordFailure(StageVectorStore)
		return nil, errors.NewStoreWriteError(StageVectorStore, err)
	}

	graphMeta := map[string]interface{}{"filename": req.Filename}
	if req.PensionPlanID != nil {
		graphMeta["pension_plan_id"] = int64(*req.PensionPlanID)
	}
	if err := s.graph.UpsertDocumentNode(ctx, docID, req.Filename, req.Content, graphMeta); err != nil {
		s.recordFailure(StageGraphStore)
		return nil, errors.NewStoreWriteError(StageGraphStore, err)
	}
	for _, entity := range entities {
		if err := s.graph.UpsertEntityNode(ctx, entity.Name, entity.Type, entity.Properties); err != nil {
			s.recordFailure(StageGraphStore)
			return nil, errors.NewStoreWriteError(StageGraphStore, err)
		}
		if err := s.graph.UpsertRelationship(ctx, docID, entity.Name, entity.Relationship, nil); err != nil {
			s.recordFailure(StageGraphStore)
			return nil, errors.NewStoreWriteError(StageGraphStore, err)
		}
	}

	doc := &models.Document{
		DocID:         docID,
		PensionPlanID: req.PensionPlanID,
		Filename:      req.Filename,
		Content:       req.Content,
		Embedding:     models.Vector(embedding),
		Summary:       summary,
	}
	if err := s.db.WithContext(ctx).Create(doc).Error; err != nil {
		s.recordFailure(StageDatabase)
		return nil, errors.NewStoreWriteError(StageDatabase, err)
	}

	metrics.IngestTotal.WithLabelValues("success").Inc()
	logger.Info("文档摄取完成",
		zap.String("doc_id", docID),
		zap.Int("entity_count", len(entities)),
		zap.Bool("entities_degraded", degraded))

	return &IngestDocumentResult{
		DocumentID:       docID,
		Summary:          summary,
		Entities:         entities,
		EntitiesDegraded: degraded,
	}, nil
}

// IngestForClient 以上传记录跟踪摄取：先落pending，成功置processed并回填文档ID，
// 失败置failed并记录失败阶段。
func (s *DocumentService) IngestForClient(ctx context.Context, clientID uint, req IngestDocumentRequest) (*IngestDocumentResult, error) {
	upload := &models.Upload{
		ClientID: clientID,
		Filename: req.Filename,
		FileType: req.FileType,
		Status:   models.UploadStatusPending,
	}
	if err := s.db.WithContext(ctx).Create(upload).Error; err != nil {
		return nil, errors.NewStoreWriteError(StageDatabase, err)
	}

	result, err := s.Ingest(ctx, req)
	if err != nil {
		upload.Status = models.UploadStatusFailed
		if appErr := errors.GetAppError(err); appErr.Stage != "" {
			upload.FailStage = appErr.Stage
		}
		if saveErr := s.db.WithContext(ctx).Save(upload).Error; saveErr != nil {
			logger.Error("上传状态更新失败", zap.Uint("upload_id", upload.ID), zap.Error(saveErr))
		}
		return nil, err
	}

	var doc models.Document
	if findErr := s.db.WithContext(ctx).Where("doc_id = ?", result.DocumentID).First(&doc).Error; findErr == nil {
		upload.DocumentID = &doc.ID
	}
	upload.Status = models.UploadStatusProcessed
	if saveErr := s.db.WithContext(ctx).Save(upload).Error; saveErr != nil {
		logger.Error("上传状态更新失败", zap.Uint("upload_id", upload.ID), zap.Error(saveErr))
	}
	return result, nil
}

func (s *DocumentService) recordFailure(stage string) {
	metrics.IngestTotal.WithLabelValues("failure").Inc()
	metrics.IngestStageFailures.WithLabelValues(stage).Inc()
}

// DocumentHit 检索命中
type DocumentHit struct {
	ID         string                     `json:"id"`
	Content    string                     `json:"content"`
	Metadata   map[string]string          `json:"metadata,omitempty"`
	Distance   float64                    `json:"distance"`
	Similarity float64                    `json:"similarity"`
	Entities   []retrieval.DocumentEntity `json:"entities,omitempty"`
}

// Search 向量检索并附带图谱实体
func (s *DocumentService) Search(ctx context.Context, query string, limit int) ([]DocumentHit, error) {
	if strings.TrimSpace(query) == "" {
		return nil, errors.NewValidationError("query is empty")
	}

	start := time.Now()
	defer func() {
		metrics.SearchDuration.Observe(time.Since(start).Seconds())
	}()

	embedding, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, errors.NewEmbeddingError(err).WithStage(StageEmbedding)
	}

	vectorHits, err := s.vectors.Query(ctx, embedding, limit)
	if err != nil {
		return nil, errors.NewStoreReadError(StageVectorStore, err)
	}

	hits := make([]DocumentHit, 0, len(vectorHits))
	for _, hit := range vectorHits {
		docHit := DocumentHit{
			ID:         hit.ID,
			Content:    hit.Text,
			Metadata:   hit.Metadata,
			Distance:   hit.Distance,
			Similarity: hit.Similarity,
		}
		entities, err := s.graph.GetDocumentEntities(ctx, hit.ID)
		if err != nil {
			// 图谱不可用退化为纯向量结果
			logger.Warn("图谱实体查询失败", zap.String("doc_id", hit.ID), zap.Error(err))
		} else {
			docHit.Entities = entities
		}
		hits = append(hits, docHit)
	}
	return hits, nil
}

// DocumentDetail 文档详情
type DocumentDetail struct {
	DocID          string                     `json:"doc_id"`
	Filename       string                     `json:"filename"`
	Content        string                     `json:"content"`
	Summary        string                     `json:"summary"`
	KeyInformation string                     `json:"key_information,omitempty"`
	PensionPlanID  *uint                      `json:"pension_plan_id,omitempty"`
	Entities       []retrieval.DocumentEntity `json:"entities"`
	CreatedAt      time.Time                  `json:"created_at"`
}

// Get 按文档ID取详情，附带图谱实体
func (s *DocumentService) Get(ctx context.Context, docID string) (*DocumentDetail, error) {
	var doc models.Document
	if err := s.db.WithContext(ctx).Where("doc_id = ?", docID).First(&doc).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errors.NewNotFoundError("document")
		}
		return nil, errors.NewStoreReadError(StageDatabase, err)
	}

	entities, err := s.graph.GetDocumentEntities(ctx, docID)
	if err != nil {
		return nil, errors.NewStoreReadError(StageGraphStore, err)
	}

	return &DocumentDetail{
		DocID:          doc.DocID,
		Filename:       doc.Filename,
		Content:        doc.Content,
		Summary:        doc.Summary,
		KeyInformation: doc.KeyInformation,
		PensionPlanID:  doc.PensionPlanID,
		Entities:       entities,
		CreatedAt:      doc.CreatedAt,
	}, nil
}

// Delete 删除文档：向量条目、图谱文档节点及其关系、元数据行。
// 实体节点可能被其他文档引用，永不随删。
func (s *DocumentService) Delete(ctx context.Context, docID string) error {
	var doc models.Document
	if err := s.db.WithContext(ctx).Where("doc_id = ?", docID).First(&doc).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return errors.NewNotFoundError("document")
		}
		return errors.NewStoreReadError(StageDatabase, err)
	}

	if err := s.vectors.Delete(ctx, docID); err != nil {
		return errors.NewStoreWriteError(StageVectorStore, err)
	}
	if err := s.graph.DeleteDocument(ctx, docID); err != nil {
		return errors.NewStoreWriteError(StageGraphStore, err)
	}
	if err := s.db.WithContext(ctx).Delete(&doc).Error; err != nil {
		return errors.NewStoreWriteError(StageDatabase, err)
	}

	logger.Info("文档已删除", zap.String("doc_id", docID))
	return nil
}
