package indexer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/denest"
	"github.com/Ramsey-B/fern/pkg/graph"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/schema"
)

func resolve(t *testing.T, m schema.PointerMap) *schema.Resolution {
	t.Helper()
	res, err := schema.Resolve(m, models.DefaultSchemaExtensions())
	require.NoError(t, err)
	return res
}

func content(t *testing.T, raw string) any {
	t.Helper()
	tree, err := denest.Decode([]byte(raw))
	require.NoError(t, err)
	return tree
}

func TestNodeKey(t *testing.T) {
	assert.Equal(t, "d/1", NodeKey("d/1", ""))
	assert.Equal(t, "d/1:/pets/0", NodeKey("d/1", "/pets/0"))
	assert.NotEqual(t, NodeKey("a", "/x"), NodeKey("b", "/x"))
}

func TestDeriveExternalReferences(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		schema   schema.PointerMap
		expected map[string][]models.ExternalReference
	}{
		{
			name:    "single reference on the root",
			content: `{"owner":"d/2"}`,
			schema:  schema.PointerMap{"/owner": sub(`{"x-graph":{"reference":true}}`)},
			expected: map[string][]models.ExternalReference{
				"": {{SourcePointer: "", Relationship: "owner", TargetID: "d/2"}},
			},
		},
		{
			name:    "array elements level up to the array property",
			content: `{"tags":["d/2","d/3"]}`,
			schema: schema.PointerMap{
				"/tags/0": sub(`{"x-graph":{"reference":true}}`),
				"/tags/1": sub(`{"x-graph":{"reference":true}}`),
			},
			expected: map[string][]models.ExternalReference{
				"": {
					{SourcePointer: "", Relationship: "tags", TargetID: "d/2"},
					{SourcePointer: "", Relationship: "tags", TargetID: "d/3"},
				},
			},
		},
		{
			name:    "element override wins over array override",
			content: `{"tags":["d/2","d/3"]}`,
			schema: schema.PointerMap{
				"/tags":   sub(`{"x-graph":{"relationshipType":"TAGGED"}}`),
				"/tags/0": sub(`{"x-graph":{"reference":true,"relationshipType":"FIRST"}}`),
				"/tags/1": sub(`{"x-graph":{"reference":true}}`),
			},
			expected: map[string][]models.ExternalReference{
				"": {
					{SourcePointer: "", Relationship: "FIRST", TargetID: "d/2"},
					{SourcePointer: "", Relationship: "TAGGED", TargetID: "d/3"},
				},
			},
		},
		{
			name:    "nested parent and non-string ids",
			content: `{"a":{"b":42,"c":true}}`,
			schema: schema.PointerMap{
				"/a/b": sub(`{"x-graph":{"reference":true}}`),
				"/a/c": sub(`{"x-graph":{"reference":true}}`),
			},
			expected: map[string][]models.ExternalReference{
				"/a": {
					{SourcePointer: "/a", Relationship: "b", TargetID: "42"},
					{SourcePointer: "/a", Relationship: "c", TargetID: "true"},
				},
			},
		},
		{
			name:    "null, missing, object and unflagged values are skipped",
			content: `{"n":null,"o":{"x":1},"plain":"d/9"}`,
			schema: schema.PointerMap{
				"/n":       sub(`{"x-graph":{"reference":true}}`),
				"/o":       sub(`{"x-graph":{"reference":true}}`),
				"/missing": sub(`{"x-graph":{"reference":true}}`),
				"/plain":   sub(`{"type":"string"}`),
				"":         sub(`{"x-graph":{"reference":true}}`),
			},
			expected: map[string][]models.ExternalReference{},
		},
		{
			name:     "reference flag set to false",
			content:  `{"owner":"d/2"}`,
			schema:   schema.PointerMap{"/owner": sub(`{"x-graph":{"reference":false}}`)},
			expected: map[string][]models.ExternalReference{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DeriveExternalReferences(content(t, tt.content), resolve(t, tt.schema))
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestBuildMutation(t *testing.T) {
	d := doc("d/1", "Foo", `{"name":"Ann","pets":[{"name":"Rex"},"tagOnly"],"home":{"city":"X"},"owner":"d/2"}`)
	res := resolve(t, schema.PointerMap{
		"/home":  sub(`{"x-graph":{"nodeLabel":"Address","relationshipType":"LIVES_AT"}}`),
		"/owner": sub(`{"x-graph":{"reference":true}}`),
	})
	cfg := models.DefaultGraphConfig()

	m := BuildMutation(graph.MutationUpdate, d, content(t, string(d.Content)), res, cfg, true)

	assert.Equal(t, graph.MutationUpdate, m.Kind)
	assert.Equal(t, "d/1", m.RootKey)
	assert.Equal(t, graph.Node{
		Key:   "d/1",
		Label: "Foo",
		Properties: map[string]any{
			"_id": "d/1", "_type": "Foo", "name": "Ann", "owner": "d/2", "pets": []any{"tagOnly"},
		},
	}, m.Root)
	assert.Equal(t, []graph.Node{
		{Key: "d/1:/home", Label: "Address", Properties: map[string]any{"_id": "d/1:/home", "_type": "Address", "city": "X"}},
		{Key: "d/1:/pets/0", Properties: map[string]any{"_id": "d/1:/pets/0", "name": "Rex"}},
	}, m.Children)
	assert.Equal(t, []graph.Edge{
		{From: "d/1", To: "d/1:/home", Type: "LIVES_AT"},
		{From: "d/1", To: "d/1:/pets/0", Type: "pets"},
	}, m.Containment)
	assert.Equal(t, []graph.Edge{{From: "d/1", To: "d/2", Type: "owner"}}, m.External)

	t.Run("external references skipped when excluded", func(t *testing.T) {
		m := BuildMutation(graph.MutationUpdate, d, content(t, string(d.Content)), res, cfg, false)
		assert.Empty(t, m.External)
	})

	t.Run("mutation renders", func(t *testing.T) {
		_, err := graph.Render(m, graph.DialectNeo4j)
		assert.NoError(t, err)
	})
}
