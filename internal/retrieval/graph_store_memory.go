package retrieval

import (
	"context"
	"sort"
	"sync"
)

type memoryDocumentNode struct {
	id       string
	title    string
	content  string
	metadata map[string]interface{}
}

type memoryEntityNode struct {
	name       string
	entityType string
	properties map[string]interface{}
}

type memoryRelationship struct {
	docID            string
	entityName       string
	relationshipType string
	properties       map[string]interface{}
}

// memoryGraphStore 内存实现，测试与无Neo4j环境下使用
type memoryGraphStore struct {
	mu            sync.RWMutex
	documents     map[string]*memoryDocumentNode
	entities      map[string]*memoryEntityNode
	relationships []*memoryRelationship
}

// NewMemoryGraphStore 创建内存图谱存储
func NewMemoryGraphStore() GraphStore {
	return &memoryGraphStore{
		documents: make(map[string]*memoryDocumentNode),
		entities:  make(map[string]*memoryEntityNode),
	}
}

func (s *memoryGraphStore) EnsureConstraints(ctx context.Context) error {
	// map键天然唯一，无需额外约束
	return nil
}

func (s *memoryGraphStore) UpsertDocumentNode(ctx context.Context, id, title, content string, metadata map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	node, ok := s.documents[id]
	if !ok {
		node = &memoryDocumentNode{id: id, metadata: make(map[string]interface{})}
		s.documents[id] = node
	}
	node.title = title
	node.content = content
	for key, value := range metadata {
		if value == nil {
			continue
		}
		node.metadata[key] = value
	}
	return nil
}

func (s *memoryGraphStore) UpsertEntityNode(ctx context.Context, name, entityType string, properties map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	node, ok := s.entities[name]
	if !ok {
		node = &memoryEntityNode{name: name, properties: make(map[string]interface{})}
		s.entities[name] = node
	}
	// 合并语义：非空覆盖，空值不清除既有属性
	if entityType != "" {
		node.entityType = entityType
	}
	for key, value := range properties {
		if value == nil {
			continue
		}
		node.properties[key] = value
	}
	return nil
}

func (s *memoryGraphStore) UpsertRelationship(ctx context.Context, docID, entityName, relationshipType string, properties map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	relType := sanitizeRelationshipType(relationshipType)
	for _, rel := range s.relationships {
		if rel.docID == docID && rel.entityName == entityName && rel.relationshipType == relType {
			for key, value := range properties {
				if value == nil {
					continue
				}
				rel.properties[key] = value
			}
			return nil
		}
	}

	rel := &memoryRelationship{
		docID:            docID,
		entityName:       entityName,
		relationshipType: relType,
		properties:       make(map[string]interface{}),
	}
	for key, value := range properties {
		if value == nil {
			continue
		}
		rel.properties[key] = value
	}
	s.relationships = append(s.relationships, rel)
	return nil
}

func (s *memoryGraphStore) GetDocumentEntities(ctx context.Context, docID string) ([]DocumentEntity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entities := []DocumentEntity{}
	for _, rel := range s.relationships {
		if rel.docID != docID {
			continue
		}
		entity := DocumentEntity{
			Name:             rel.entityName,
			RelationshipType: rel.relationshipType,
		}
		if node, ok := s.entities[rel.entityName]; ok {
			entity.Type = node.entityType
			entity.Properties = copyProperties(node.properties)
		}
		entities = append(entities, entity)
	}
	sort.Slice(entities, func(i, j int) bool { return entities[i].Name < entities[j].Name })
	return entities, nil
}

func (s *memoryGraphStore) GetEntityDocuments(ctx context.Context, entityName string) ([]EntityDocument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	documents := []EntityDocument{}
	for _, rel := range s.relationships {
		if rel.entityName != entityName {
			continue
		}
		doc := EntityDocument{
			ID:               rel.docID,
			RelationshipType: rel.relationshipType,
		}
		if node, ok := s.documents[rel.docID]; ok {
			doc.Title = node.title
		}
		documents = append(documents, doc)
	}
	sort.Slice(documents, func(i, j int) bool { return documents[i].ID < documents[j].ID })
	return documents, nil
}

func (s *memoryGraphStore) DeleteDocument(ctx context.Context, docID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.documents, docID)
	// 只删关系，实体节点保留
	kept := s.relationships[:0]
	for _, rel := range s.relationships {
		if rel.docID != docID {
			kept = append(kept, rel)
		}
	}
	s.relationships = kept
	return nil
}

func (s *memoryGraphStore) Ready() bool {
	return true
}

func copyProperties(properties map[string]interface{}) map[string]interface{} {
	if len(properties) == 0 {
		return nil
	}
	copied := make(map[string]interface{}, len(properties))
	for key, value := range properties {
		copied[key] = value
	}
	return copied
}
