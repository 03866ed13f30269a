package retrieval

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/pensionos/search-go/internal/logger"
	"go.uber.org/zap"
)

// PlanCandidate 参与排序的养老金计划候选，向量取存量值不重算
type PlanCandidate struct {
	ID                uint
	CompanyName       string
	PlanType          string
	Description       string
	MainContact       string
	ParticipantsCount int
	Embedding         []float32
	CreatedAt         time.Time
}

// DocumentCandidate 参与排序的文档候选
type DocumentCandidate struct {
	DocID          string
	Filename       string
	PlanCompany    string
	Summary        string
	KeyInformation string
	Embedding      []float32
	CreatedAt      time.Time
}

// ContextRequest 上下文构建请求
type ContextRequest struct {
	Query     string
	Plans     []PlanCandidate
	Documents []DocumentCandidate
	// Limit 保留条目上限，<=0取引擎默认值
	Limit int
	// Threshold 相关性阈值，<=0取引擎默认值
	Threshold float64
}

// ScoredPlan 带相似度的计划
type ScoredPlan struct {
	PlanCandidate
	Similarity float64
}

// ScoredDocument 带相似度与图谱实体的文档
type ScoredDocument struct {
	DocumentCandidate
	Similarity float64
	Entities   []DocumentEntity
}

// ContextBundle 融合结果。
// ThresholdMet=false表示所有候选低于阈值，结果来自兜底路径。
type ContextBundle struct {
	Text         string
	Plans        []ScoredPlan
	Documents    []ScoredDocument
	Entities     []DocumentEntity
	ThresholdMet bool
}

// FusionEngine 向量检索与图谱关系的上下文融合引擎
type FusionEngine struct {
	embedder  Embedder
	graph     GraphStore
	threshold float64
	limit     int
}

// NewFusionEngine 创建融合引擎，threshold与limit来自配置
func NewFusionEngine(embedder Embedder, graph GraphStore, threshold float64, limit int) *FusionEngine {
	if threshold <= 0 {
		threshold = 0.7
	}
	if limit <= 0 {
		limit = 10
	}
	return &FusionEngine{
		embedder:  embedder,
		graph:     graph,
		threshold: threshold,
		limit:     limit,
	}
}

type scoredCandidate struct {
	kind       string // "plan" or "document"
	planIdx    int
	docIdx     int
	similarity float64
	createdAt  time.Time
}

// BuildContext 一次性嵌入查询，用存量向量打分，过滤排序后渲染上下文文本。
// 全部候选低于阈值时只保留最高分一条并置ThresholdMet=false，
// 让调用方能区分"无结果"与"有结果但低于阈值"。
func (f *FusionEngine) BuildContext(ctx context.Context, req ContextRequest) (*ContextBundle, error) {
	bundle := &ContextBundle{ThresholdMet: true}
	if len(req.Plans) == 0 && len(req.Documents) == 0 {
		return bundle, nil
	}

	threshold := req.Threshold
	if threshold <= 0 {
		threshold = f.threshold
	}
	limit := req.Limit
	if limit <= 0 {
		limit = f.limit
	}

	queryVector, err := f.embedder.Embed(ctx, req.Query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	scored := make([]scoredCandidate, 0, len(req.Plans)+len(req.Documents))
	seenPlans := make(map[uint]bool)
	for i, plan := range req.Plans {
		if seenPlans[plan.ID] {
			continue
		}
		seenPlans[plan.ID] = true
		scored = append(scored, scoredCandidate{
			kind:       "plan",
			planIdx:    i,
			similarity: CosineSimilarity(queryVector, plan.Embedding),
			createdAt:  plan.CreatedAt,
		})
	}
	seenDocs := make(map[string]bool)
	for i, doc := range req.Documents {
		if seenDocs[doc.DocID] {
			continue
		}
		seenDocs[doc.DocID] = true
		scored = append(scored, scoredCandidate{
			kind:       "document",
			docIdx:     i,
			similarity: CosineSimilarity(queryVector, doc.Embedding),
			createdAt:  doc.CreatedAt,
		})
	}

	// 得分相同先创建者优先，保证排序确定
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].similarity != scored[j].similarity {
			return scored[i].similarity > scored[j].similarity
		}
		return scored[i].createdAt.Before(scored[j].createdAt)
	})

	retained := make([]scoredCandidate, 0, len(scored))
	for _, candidate := range scored {
		if candidate.similarity > threshold {
			retained = append(retained, candidate)
		}
	}
	if len(retained) == 0 && len(scored) > 0 {
		// 兜底只取最高分一条
		retained = scored[:1]
		bundle.ThresholdMet = false
	}
	if len(retained) > limit {
		retained = retained[:limit]
	}

	entitySeen := make(map[string]bool)
	for _, candidate := range retained {
		switch candidate.kind {
		case "plan":
			bundle.Plans = append(bundle.Plans, ScoredPlan{
				PlanCandidate: req.Plans[candidate.planIdx],
				Similarity:    candidate.similarity,
			})
		case "document":
			doc := ScoredDocument{
				DocumentCandidate: req.Documents[candidate.docIdx],
				Similarity:        candidate.similarity,
			}
			entities, err := f.graph.GetDocumentEntities(ctx, doc.DocID)
			if err != nil {
				// 图谱不可用不阻断上下文，退化为纯向量结果
				logger.Warn("图谱实体查询失败", zap.String("doc_id", doc.DocID), zap.Error(err))
			} else {
				doc.Entities = entities
				for _, entity := range entities {
					if !entitySeen[entity.Name] {
						entitySeen[entity.Name] = true
						bundle.Entities = append(bundle.Entities, entity)
					}
				}
			}
			bundle.Documents = append(bundle.Documents, doc)
		}
	}

	bundle.Text = renderContext(bundle.Plans, bundle.Documents)
	return bundle, nil
}

// renderContext 按原有文本结构分组渲染计划与文档
func renderContext(plans []ScoredPlan, documents []ScoredDocument) string {
	var planBlocks []string
	for _, plan := range plans {
		planBlocks = append(planBlocks, fmt.Sprintf(
			"Pension Plan: %s\nType: %s\nDescription: %s\nContact: %s\nParticipants: %d",
			plan.CompanyName, plan.PlanType, plan.Description, plan.MainContact, plan.ParticipantsCount))
	}

	var docBlocks []string
	for _, doc := range documents {
		block := fmt.Sprintf(
			"Document '%s' from plan '%s':\nSummary: %s\nKey Information: %s",
			doc.Filename, doc.PlanCompany, doc.Summary, doc.KeyInformation)
		if len(doc.Entities) > 0 {
			names := make([]string, 0, len(doc.Entities))
			for _, entity := range doc.Entities {
				names = append(names, entity.Name)
			}
			block += "\nRelated Entities: " + strings.Join(names, ", ")
		}
		docBlocks = append(docBlocks, block)
	}

	var parts []string
	if len(planBlocks) > 0 {
		parts = append(parts, "Relevant Pension Plans:\n"+strings.Join(planBlocks, "\n\n"))
	}
	if len(docBlocks) > 0 {
		parts = append(parts, "Relevant Documents:\n"+strings.Join(docBlocks, "\n\n"))
	}
	return strings.Join(parts, "\n\n")
}
