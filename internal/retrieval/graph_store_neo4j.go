package retrieval

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Neo4jOptions Neo4j连接配置
type Neo4jOptions struct {
	URI      string
	Username string
	Password string
}

type neo4jGraphStore struct {
	driver neo4j.DriverWithContext
}

// NewNeo4jGraphStore 创建Neo4j图谱存储
func NewNeo4jGraphStore(opts Neo4jOptions) (GraphStore, error) {
	if opts.URI == "" {
		opts.URI = "bolt://localhost:7687"
	}

	driver, err := neo4j.NewDriverWithContext(opts.URI, neo4j.BasicAuth(opts.Username, opts.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}

	return &neo4jGraphStore{driver: driver}, nil
}

// relationshipTypePattern 关系类型不能参数化，只允许白名单字符进入Cypher
var relationshipTypePattern = regexp.MustCompile(`[^A-Za-z0-9_]+`)

// sanitizeRelationshipType 清洗LLM产出的关系类型，防止注入Cypher
func sanitizeRelationshipType(relationshipType string) string {
	cleaned := relationshipTypePattern.ReplaceAllString(strings.TrimSpace(relationshipType), "_")
	cleaned = strings.Trim(cleaned, "_")
	if cleaned == "" {
		return "RELATED_TO"
	}
	return strings.ToUpper(cleaned)
}

func (s *neo4jGraphStore) EnsureConstraints(ctx context.Context) error {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	constraints := []string{
		`CREATE CONSTRAINT document_id IF NOT EXISTS
		 FOR (d:Document) REQUIRE d.id IS UNIQUE`,
		`CREATE CONSTRAINT entity_name IF NOT EXISTS
		 FOR (e:Entity) REQUIRE e.name IS UNIQUE`,
	}
	for _, constraint := range constraints {
		if _, err := session.Run(ctx, constraint, nil); err != nil {
			return fmt.Errorf("failed to create constraint: %w", err)
		}
	}
	return nil
}

func (s *neo4jGraphStore) UpsertDocumentNode(ctx context.Context, id, title, content string, metadata map[string]interface{}) error {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	query := `
		MERGE (d:Document {id: $id})
		SET d.title = $title,
		    d.content = $content,
		    d += $metadata
	`
	_, err := session.Run(ctx, query, map[string]interface{}{
		"id":       id,
		"title":    title,
		"content":  content,
		"metadata": flattenProperties(metadata),
	})
	if err != nil {
		return fmt.Errorf("failed to upsert document node: %w", err)
	}
	return nil
}

func (s *neo4jGraphStore) UpsertEntityNode(ctx context.Context, name, entityType string, properties map[string]interface{}) error {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	// MERGE + `+=` 保留既有属性，入参只覆盖非空字段
	query := `
		MERGE (e:Entity {name: $name})
		SET e.type = CASE WHEN $type <> '' THEN $type ELSE e.type END,
		    e += $properties
	`
	_, err := session.Run(ctx, query, map[string]interface{}{
		"name":       name,
		"type":       entityType,
		"properties": flattenProperties(properties),
	})
	if err != nil {
		return fmt.Errorf("failed to upsert entity node: %w", err)
	}
	return nil
}

func (s *neo4jGraphStore) UpsertRelationship(ctx context.Context, docID, entityName, relationshipType string, properties map[string]interface{}) error {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	relType := sanitizeRelationshipType(relationshipType)
	query := fmt.Sprintf(`
		MATCH (d:Document {id: $docID})
		MATCH (e:Entity {name: $entityName})
		MERGE (d)-[r:%s]->(e)
		SET r += $properties
	`, relType)
	_, err := session.Run(ctx, query, map[string]interface{}{
		"docID":      docID,
		"entityName": entityName,
		"properties": flattenProperties(properties),
	})
	if err != nil {
		return fmt.Errorf("failed to upsert relationship: %w", err)
	}
	return nil
}

func (s *neo4jGraphStore) GetDocumentEntities(ctx context.Context, docID string) ([]DocumentEntity, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	query := `
		MATCH (d:Document {id: $docID})-[r]->(e:Entity)
		RETURN e.name as name, e.type as type, properties(e) as properties, type(r) as relationship_type
	`
	result, err := session.Run(ctx, query, map[string]interface{}{"docID": docID})
	if err != nil {
		return nil, fmt.Errorf("failed to get document entities: %w", err)
	}

	entities := []DocumentEntity{}
	for result.Next(ctx) {
		record := result.Record()
		entity := DocumentEntity{
			Name:             recordString(record, "name"),
			Type:             recordString(record, "type"),
			RelationshipType: recordString(record, "relationship_type"),
		}
		if props, ok := record.Get("properties"); ok {
			if propMap, ok := props.(map[string]interface{}); ok {
				delete(propMap, "name")
				delete(propMap, "type")
				entity.Properties = propMap
			}
		}
		entities = append(entities, entity)
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("failed to read document entities: %w", err)
	}
	return entities, nil
}

func (s *neo4jGraphStore) GetEntityDocuments(ctx context.Context, entityName string) ([]EntityDocument, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	query := `
		MATCH (d:Document)-[r]->(e:Entity {name: $name})
		RETURN d.id as id, d.title as title, type(r) as relationship_type
	`
	result, err := session.Run(ctx, query, map[string]interface{}{"name": entityName})
	if err != nil {
		return nil, fmt.Errorf("failed to get entity documents: %w", err)
	}

	documents := []EntityDocument{}
	for result.Next(ctx) {
		record := result.Record()
		documents = append(documents, EntityDocument{
			ID:               recordString(record, "id"),
			Title:            recordString(record, "title"),
			RelationshipType: recordString(record, "relationship_type"),
		})
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("failed to read entity documents: %w", err)
	}
	return documents, nil
}

func (s *neo4jGraphStore) DeleteDocument(ctx context.Context, docID string) error {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	// DETACH DELETE只删文档节点及其关系，实体节点保留
	query := `
		MATCH (d:Document {id: $docID})
		DETACH DELETE d
	`
	if _, err := session.Run(ctx, query, map[string]interface{}{"docID": docID}); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return nil
}

func (s *neo4jGraphStore) Ready() bool {
	ctx := context.Background()
	return s.driver.VerifyConnectivity(ctx) == nil
}

// Close 关闭底层驱动连接
func (s *neo4jGraphStore) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

// flattenProperties 过滤nil值，Neo4j属性只接受标量
func flattenProperties(properties map[string]interface{}) map[string]interface{} {
	flattened := make(map[string]interface{}, len(properties))
	for key, value := range properties {
		if value == nil {
			continue
		}
		switch value.(type) {
		case string, bool, int, int64, float64, float32:
			flattened[key] = value
		default:
			flattened[key] = fmt.Sprintf("%v", value)
		}
	}
	return flattened
}

func recordString(record *neo4j.Record, key string) string {
	value, ok := record.Get(key)
	if !ok || value == nil {
		return ""
	}
	if s, ok := value.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", value)
}
