package retrieval

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEntities_CleanJSON(t *testing.T) {
	raw := `[{"name": "Acme Corp", "type": "organization", "relationship": "mentioned_in", "properties": {"industry": "manufacturing"}}]`

	entities, err := ParseEntities(raw)
	require.NoError(t, err)
	require.Len(t, entities, 1)
	assert.Equal(t, "Acme Corp", entities[0].Name)
	assert.Equal(t, "organization", entities[0].Type)
	assert.Equal(t, "mentioned_in", entities[0].Relationship)
	assert.Equal(t, "manufacturing", entities[0].Properties["industry"])
}

func TestParseEntities_MarkdownFence(t *testing.T) {
	raw := "Here are the extracted entities:\n```json\n[{\"name\": \"John Smith\", \"type\": \"person\", \"relationship\": \"author_of\"}]\n```\nLet me know if you need more."

	entities, err := ParseEntities(raw)
	require.NoError(t, err)
	require.Len(t, entities, 1)
	assert.Equal(t, "John Smith", entities[0].Name)
}

func TestParseEntities_SurroundingProse(t *testing.T) {
	raw := `Entities (JSON format): [{"name": "Berlin", "type": "location"}] That is all.`

	entities, err := ParseEntities(raw)
	require.NoError(t, err)
	require.Len(t, entities, 1)
	assert.Equal(t, "Berlin", entities[0].Name)
	// 缺省关系补mentioned_in
	assert.Equal(t, "mentioned_in", entities[0].Relationship)
}

func TestParseEntities_Malformed(t *testing.T) {
	cases := []string{
		"I could not find any entities in this text.",
		`{"name": "not an array"}`,
		`[{"name": "broken"`,
		"",
	}
	for _, raw := range cases {
		_, err := ParseEntities(raw)
		assert.Error(t, err, "input: %q", raw)
	}
}

func TestParseEntities_SkipsNamelessEntity(t *testing.T) {
	raw := `[{"name": "", "type": "person"}, {"name": "   ", "type": "person"}, {"name": "Valid", "type": "concept"}]`

	entities, err := ParseEntities(raw)
	require.NoError(t, err)
	require.Len(t, entities, 1)
	assert.Equal(t, "Valid", entities[0].Name)
}

func TestParseEntities_EmptyArray(t *testing.T) {
	entities, err := ParseEntities("[]")
	require.NoError(t, err)
	assert.Empty(t, entities)
}
