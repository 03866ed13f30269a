package retrieval

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// RawEntity LLM抽取的实体，name必填
type RawEntity struct {
	Name         string                 `json:"name" validate:"required"`
	Type         string                 `json:"type"`
	Relationship string                 `json:"relationship"`
	Properties   map[string]interface{} `json:"properties"`
}

var entityValidator = validator.New()

// ParseEntities 宽容解析LLM的实体输出。
// 模型可能带Markdown围栏或前后缀文本，先定位JSON数组再解码。
// 解析失败由调用方降级为空实体列表，不中断入库。
func ParseEntities(raw string) ([]RawEntity, error) {
	payload := extractJSONArray(raw)
	if payload == "" {
		return nil, fmt.Errorf("no JSON array found in entity output")
	}

	var decoded []RawEntity
	if err := json.Unmarshal([]byte(payload), &decoded); err != nil {
		return nil, fmt.Errorf("failed to decode entity output: %w", err)
	}

	entities := make([]RawEntity, 0, len(decoded))
	for _, entity := range decoded {
		entity.Name = strings.TrimSpace(entity.Name)
		if err := entityValidator.Struct(entity); err != nil {
			// 缺名实体丢弃，不拖垮整批
			continue
		}
		if entity.Relationship == "" {
			entity.Relationship = "mentioned_in"
		}
		entities = append(entities, entity)
	}
	return entities, nil
}

// extractJSONArray 剥离围栏并截取首个完整JSON数组
func extractJSONArray(raw string) string {
	cleaned := strings.TrimSpace(raw)
	if strings.HasPrefix(cleaned, "```") {
		cleaned = strings.TrimPrefix(cleaned, "```json")
		cleaned = strings.TrimPrefix(cleaned, "```")
		if idx := strings.LastIndex(cleaned, "```"); idx >= 0 {
			cleaned = cleaned[:idx]
		}
		cleaned = strings.TrimSpace(cleaned)
	}

	start := strings.Index(cleaned, "[")
	end := strings.LastIndex(cleaned, "]")
	if start < 0 || end < start {
		return ""
	}
	return cleaned[start : end+1]
}
