package services

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/pensionos/search-go/internal/errors"
	"github.com/pensionos/search-go/internal/logger"
	"github.com/pensionos/search-go/internal/models"
	"github.com/pensionos/search-go/internal/retrieval"
)

// GraphService 图谱问答服务：答案、相关子图、来源文档
type GraphService struct {
	db       *gorm.DB
	fusion   *retrieval.FusionEngine
	graph    retrieval.GraphStore
	llm      retrieval.LLM
	maxNodes int
}

// NewGraphService 创建图谱问答服务
func NewGraphService(db *gorm.DB, fusion *retrieval.FusionEngine, graph retrieval.GraphStore, llm retrieval.LLM) *GraphService {
	return &GraphService{
		db:       db,
		fusion:   fusion,
		graph:    graph,
		llm:      llm,
		maxNodes: 20,
	}
}

// GraphNode 子图节点
type GraphNode struct {
	ID        string  `json:"id"`
	Label     string  `json:"label"`
	Kind      string  `json:"kind"` // document, entity
	Relevance float64 `json:"relevance"`
	Degree    int     `json:"degree"`
}

// GraphEdge 子图边
type GraphEdge struct {
	ID     string `json:"id"`
	Source string `json:"source"`
	Target string `json:"target"`
	Label  string `json:"label"`
}

// Subgraph 与查询相关的子图
type Subgraph struct {
	Nodes    []GraphNode            `json:"nodes"`
	Edges    []GraphEdge            `json:"edges"`
	Metadata map[string]interface{} `json:"metadata"`
}

// GraphQueryResult 图谱问答结果
type GraphQueryResult struct {
	Answer   string   `json:"answer"`
	Subgraph Subgraph `json:"subgraph"`
	Sources  []string `json:"sources"`
}

// Query 基于全量文档检索回答问题，并构建以命中文档为中心的子图。
// 子图含命中文档、其实体、以及实体反向关联的其他文档。
func (s *GraphService) Query(ctx context.Context, query string) (*GraphQueryResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, errors.NewValidationError("query is empty")
	}

	var documents []models.Document
	if err := s.db.WithContext(ctx).Find(&documents).Error; err != nil {
		return nil, errors.NewStoreReadError(StageDatabase, err)
	}

	req := retrieval.ContextRequest{Query: query}
	for _, doc := range documents {
		if len(doc.Embedding) == 0 {
			continue
		}
		req.Documents = append(req.Documents, retrieval.DocumentCandidate{
			DocID:          doc.DocID,
			Filename:       doc.Filename,
			Summary:        doc.Summary,
			KeyInformation: doc.KeyInformation,
			Embedding:      doc.Embedding,
			CreatedAt:      doc.CreatedAt,
		})
	}

	bundle, err := s.fusion.BuildContext(ctx, req)
	if err != nil {
		return nil, err
	}

	answer, err := s.llm.Answer(ctx, query, bundle.Text)
	if err != nil {
		return nil, errors.NewBusinessError(errors.ErrCodeExternalService, "graph answer failed").
			WithStage(StageLLM).WithCause(err)
	}

	subgraph := s.buildSubgraph(ctx, query, bundle)

	sources := make([]string, 0, len(bundle.Documents))
	for _, doc := range bundle.Documents {
		sources = append(sources, doc.DocID)
	}

	return &GraphQueryResult{
		Answer:   answer,
		Subgraph: subgraph,
		Sources:  sources,
	}, nil
}

func (s *GraphService) buildSubgraph(ctx context.Context, query string, bundle *retrieval.ContextBundle) Subgraph {
	nodeIndex := make(map[string]*GraphNode)
	var nodes []*GraphNode
	var edges []GraphEdge
	edgeSeen := make(map[string]bool)

	addNode := func(id, label, kind string, relevance float64) *GraphNode {
		if existing, ok := nodeIndex[id]; ok {
			if relevance > existing.Relevance {
				existing.Relevance = relevance
			}
			return existing
		}
		node := &GraphNode{ID: id, Label: label, Kind: kind, Relevance: relevance}
		nodeIndex[id] = node
		nodes = append(nodes, node)
		return node
	}
	addEdge := func(source, target, label string) {
		id := fmt.Sprintf("e%s-%s", source, target)
		if edgeSeen[id] {
			return
		}
		edgeSeen[id] = true
		edges = append(edges, GraphEdge{ID: id, Source: source, Target: target, Label: label})
		nodeIndex[source].Degree++
		nodeIndex[target].Degree++
	}

	var relevanceSum float64
	for _, doc := range bundle.Documents {
		docNode := addNode(doc.DocID, doc.Filename, "document", doc.Similarity)
		relevanceSum += doc.Similarity

		for _, entity := range doc.Entities {
			entityID := "entity:" + entity.Name
			addNode(entityID, entity.Name, "entity", 0)
			addEdge(docNode.ID, entityID, strings.ToLower(entity.RelationshipType))

			if len(nodeIndex) >= s.maxNodes {
				continue
			}
			// 实体反向展开到其他文档，呈现跨文档关联
			related, err := s.graph.GetEntityDocuments(ctx, entity.Name)
			if err != nil {
				logger.Warn("实体反查文档失败", zap.String("entity", entity.Name), zap.Error(err))
				continue
			}
			for _, relDoc := range related {
				if relDoc.ID == doc.DocID || len(nodeIndex) >= s.maxNodes {
					continue
				}
				addNode(relDoc.ID, relDoc.Title, "document", 0)
				addEdge(relDoc.ID, entityID, strings.ToLower(relDoc.RelationshipType))
			}
		}
	}

	averageRelevance := 0.0
	if len(bundle.Documents) > 0 {
		averageRelevance = relevanceSum / float64(len(bundle.Documents))
	}

	result := Subgraph{
		Nodes: make([]GraphNode, len(nodes)),
		Edges: edges,
		Metadata: map[string]interface{}{
			"query":             query,
			"total_nodes":       len(nodes),
			"total_edges":       len(edges),
			"average_relevance": averageRelevance,
			"threshold_met":     bundle.ThresholdMet,
		},
	}
	for i, node := range nodes {
		result.Nodes[i] = *node
	}
	if result.Edges == nil {
		result.Edges = []GraphEdge{}
	}
	return result
}
