package models

import "slices"

const (
	// PropertyNamingTopLevel stores record properties under their own names
	PropertyNamingTopLevel = "topLevel"
	// PropertyNamingJSONPointer prefixes each property with its record's pointer
	PropertyNamingJSONPointer = "jsonPointer"
)

const (
	DefaultGraphURI      = "bolt://localhost:7687"
	DefaultGraphUsername = "neo4j"
	DefaultGraphPassword = "password"
)

// SchemaExtensions are the pointers, inside each sub-schema, where graph
// overrides are read from
type SchemaExtensions struct {
	NodeLabel        string `json:"nodeLabel,omitempty"`
	RelationshipType string `json:"relationshipType,omitempty"`
	Reference        string `json:"reference,omitempty"`
}

// DefaultSchemaExtensions returns the extension pointers used when the
// configuration does not name its own.
func DefaultSchemaExtensions() SchemaExtensions {
	return SchemaExtensions{
		NodeLabel:        "/x-graph/nodeLabel",
		RelationshipType: "/x-graph/relationshipType",
		Reference:        "/x-graph/reference",
	}
}

// WithDefaults fills any unset extension pointer
func (e SchemaExtensions) WithDefaults() SchemaExtensions {
	defaults := DefaultSchemaExtensions()
	if e.NodeLabel == "" {
		e.NodeLabel = defaults.NodeLabel
	}
	if e.RelationshipType == "" {
		e.RelationshipType = defaults.RelationshipType
	}
	if e.Reference == "" {
		e.Reference = defaults.Reference
	}
	return e
}

// GraphConfig is the synchronization configuration, stored as a payload on a
// well-known host object
type GraphConfig struct {
	URI                string           `json:"uri" validate:"required"`
	Username           string           `json:"username"`
	Password           string           `json:"password"`
	DatabaseName       string           `json:"databaseName,omitempty"`
	Dialect            string           `json:"dialect,omitempty" validate:"omitempty,oneof=neo4j memgraph"`
	IncludeTypes       []string         `json:"includeTypes,omitempty"`
	ExcludeTypes       []string         `json:"excludeTypes,omitempty"`
	PropertyNamingMode string           `json:"propertyNamingMode,omitempty" validate:"omitempty,oneof=topLevel jsonPointer"`
	Verbose            bool             `json:"verbose"`
	SchemaExtensions   SchemaExtensions `json:"schemaExtensions"`
}

// DefaultGraphConfig is used when the host holds no configuration payload
func DefaultGraphConfig() GraphConfig {
	return GraphConfig{
		URI:                DefaultGraphURI,
		Username:           DefaultGraphUsername,
		Password:           DefaultGraphPassword,
		PropertyNamingMode: PropertyNamingTopLevel,
		SchemaExtensions:   DefaultSchemaExtensions(),
	}
}

// Normalize fills optional fields with their defaults
func (c GraphConfig) Normalize() GraphConfig {
	if c.PropertyNamingMode == "" {
		c.PropertyNamingMode = PropertyNamingTopLevel
	}
	c.SchemaExtensions = c.SchemaExtensions.WithDefaults()
	return c
}

// ShouldIndexType applies the exclude list first, then the include list when
// one is present. A nil include list indexes every type.
func (c GraphConfig) ShouldIndexType(docType string) bool {
	if slices.Contains(c.ExcludeTypes, docType) {
		return false
	}
	if c.IncludeTypes != nil {
		return slices.Contains(c.IncludeTypes, docType)
	}
	return true
}

// Redacted returns a copy safe to return from remote operations
func (c GraphConfig) Redacted() GraphConfig {
	if c.Password != "" {
		c.Password = "***"
	}
	return c
}
