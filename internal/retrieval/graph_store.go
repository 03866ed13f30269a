package retrieval

import "context"

// Entity 图谱实体节点，name为大小写敏感的唯一键
type Entity struct {
	Name       string                 `json:"name"`
	Type       string                 `json:"type"`
	Properties map[string]interface{} `json:"properties,omitempty"`
}

// DocumentEntity 文档关联的实体及关系类型
type DocumentEntity struct {
	Name             string                 `json:"name"`
	Type             string                 `json:"type"`
	Properties       map[string]interface{} `json:"properties,omitempty"`
	RelationshipType string                 `json:"relationship_type"`
}

// EntityDocument 实体反向关联的文档
type EntityDocument struct {
	ID               string `json:"id"`
	Title            string `json:"title"`
	RelationshipType string `json:"relationship_type"`
}

// GraphStore 知识图谱存储抽象。
// 文档删除只级联关系，实体节点可能被其他文档引用，永不随删。
type GraphStore interface {
	// EnsureConstraints 建立Document.id与Entity.name唯一约束，幂等
	EnsureConstraints(ctx context.Context) error
	UpsertDocumentNode(ctx context.Context, id, title, content string, metadata map[string]interface{}) error
	// UpsertEntityNode 合并语义：非空入参覆盖既有属性，不清除其余属性
	UpsertEntityNode(ctx context.Context, name, entityType string, properties map[string]interface{}) error
	UpsertRelationship(ctx context.Context, docID, entityName, relationshipType string, properties map[string]interface{}) error
	GetDocumentEntities(ctx context.Context, docID string) ([]DocumentEntity, error)
	GetEntityDocuments(ctx context.Context, entityName string) ([]EntityDocument, error)
	DeleteDocument(ctx context.Context, docID string) error
	Ready() bool
}
