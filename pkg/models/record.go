package models

// PointerRecord is the flat set of properties extracted at one object-valued
// location in a document. Property values are scalars (string, bool, int64,
// float64, nil) or []any of scalars, never nested objects.
type PointerRecord struct {
	Pointer    string
	Properties map[string]any
}

// ContainmentEdge links a record to a nested record extracted from it.
// Relationship starts as the property name that held the nested value.
type ContainmentEdge struct {
	SourcePointer string
	TargetPointer string
	Relationship  string
}

// ExternalReference is an edge from a record to another document's root
type ExternalReference struct {
	SourcePointer string
	Relationship  string
	TargetID      string
}

// GraphNode is a node returned by the graph store after a sync
type GraphNode struct {
	ID         string         `json:"id"`
	Labels     []string       `json:"labels"`
	Properties map[string]any `json:"properties"`
}

// ReindexResult reports how many documents a reindex pass synchronized
type ReindexResult struct {
	Count int64 `json:"reindexCount"`
}
