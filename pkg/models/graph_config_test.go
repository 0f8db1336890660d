package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGraphConfig_ShouldIndexType(t *testing.T) {
	tests := []struct {
		name    string
		config  GraphConfig
		docType string
		want    bool
	}{
		{name: "no lists indexes everything", config: GraphConfig{}, docType: "Foo", want: true},
		{name: "excluded type", config: GraphConfig{ExcludeTypes: []string{"Foo"}}, docType: "Foo", want: false},
		{name: "not excluded", config: GraphConfig{ExcludeTypes: []string{"Bar"}}, docType: "Foo", want: true},
		{name: "included type", config: GraphConfig{IncludeTypes: []string{"Foo"}}, docType: "Foo", want: true},
		{name: "not in include list", config: GraphConfig{IncludeTypes: []string{"Bar"}}, docType: "Foo", want: false},
		{
			name:    "exclude wins over include",
			config:  GraphConfig{IncludeTypes: []string{"Foo"}, ExcludeTypes: []string{"Foo"}},
			docType: "Foo",
			want:    false,
		},
		{name: "empty include list indexes nothing", config: GraphConfig{IncludeTypes: []string{}}, docType: "Foo", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.config.ShouldIndexType(tt.docType))
		})
	}
}

func TestGraphConfig_Decode(t *testing.T) {
	t.Run("absent include list stays nil", func(t *testing.T) {
		var cfg GraphConfig
		require.NoError(t, json.Unmarshal([]byte(`{"uri":"bolt://graph:7687","excludeTypes":["Schema"]}`), &cfg))
		assert.Nil(t, cfg.IncludeTypes)
		assert.True(t, cfg.ShouldIndexType("Person"))
		assert.False(t, cfg.ShouldIndexType("Schema"))
	})

	t.Run("normalize fills defaults", func(t *testing.T) {
		cfg := GraphConfig{URI: "bolt://graph:7687", SchemaExtensions: SchemaExtensions{NodeLabel: "/graph/label"}}.Normalize()
		assert.Equal(t, PropertyNamingTopLevel, cfg.PropertyNamingMode)
		assert.Equal(t, "/graph/label", cfg.SchemaExtensions.NodeLabel)
		assert.Equal(t, "/x-graph/relationshipType", cfg.SchemaExtensions.RelationshipType)
		assert.Equal(t, "/x-graph/reference", cfg.SchemaExtensions.Reference)
	})

	t.Run("defaults", func(t *testing.T) {
		cfg := DefaultGraphConfig()
		assert.Equal(t, "bolt://localhost:7687", cfg.URI)
		assert.Equal(t, "neo4j", cfg.Username)
		assert.Equal(t, "***", cfg.Redacted().Password)
		assert.Equal(t, "password", cfg.Password)
	})
}
