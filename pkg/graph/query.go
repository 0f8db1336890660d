package graph

import (
	"context"
	"fmt"

	"github.com/Gobusters/ectologger"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/Ramsey-B/fern/pkg/tracing"
)

// QueryService runs read-only Cypher against the mirror. Searches never
// write, so they go through read transactions.
type QueryService struct {
	client *Client
	logger ectologger.Logger
}

func NewQueryService(client *Client, logger ectologger.Logger) *QueryService {
	return &QueryService{client: client, logger: logger}
}

// QueryResult holds every distinct node and relationship a search touched.
// Rows refer to them by id.
type QueryResult struct {
	Nodes         []NodeResult `json:"nodes"`
	Relationships []RelResult  `json:"relationships"`
	Rows          []any        `json:"rows"`
}

// NodeResult is a mirrored document. ID is its document id when it has one.
type NodeResult struct {
	ID         string         `json:"id"`
	Labels     []string       `json:"labels"`
	Properties map[string]any `json:"properties"`
}

type RelResult struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	StartNode  string         `json:"start_node"`
	EndNode    string         `json:"end_node"`
	Properties map[string]any `json:"properties"`
}

func (s *QueryService) ExecuteQuery(ctx context.Context, cypher string, params map[string]any) (*QueryResult, error) {
	ctx, span := tracing.StartSpan(ctx, "graph.QueryService.ExecuteQuery")
	defer span.End()

	if s.client.Verbose() {
		s.logger.WithContext(ctx).WithField("cypher", cypher).Info("Running graph search")
	}
	if params == nil {
		params = map[string]any{}
	}

	out, err := s.client.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		cursor, err := tx.Run(ctx, cypher, params)
		if err != nil {
			return nil, err
		}

		b := newResultBuilder()
		for cursor.Next(ctx) {
			b.addRecord(cursor.Record())
		}
		if err := cursor.Err(); err != nil {
			return nil, err
		}
		return b.finish(), nil
	})
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"query_len": len(cypher),
		}).Error("Graph search failed")
		return nil, fmt.Errorf("failed to execute graph query: %w", err)
	}
	return out.(*QueryResult), nil
}

// resultBuilder flattens driver records into a QueryResult
type resultBuilder struct {
	result *QueryResult
	// nodes maps element ids to the id the node was emitted under
	nodes map[string]string
	rels  map[string]struct{}
}

func newResultBuilder() *resultBuilder {
	return &resultBuilder{
		result: &QueryResult{
			Nodes:         []NodeResult{},
			Relationships: []RelResult{},
			Rows:          []any{},
		},
		nodes: map[string]string{},
		rels:  map[string]struct{}{},
	}
}

func (b *resultBuilder) addRecord(record *neo4j.Record) {
	row := make(map[string]any, len(record.Keys))
	for i, key := range record.Keys {
		row[key] = b.convert(record.Values[i])
	}
	b.result.Rows = append(b.result.Rows, row)
}

// convert returns a JSON friendly form of a driver value. Graph entities
// are registered once and replaced by their id.
func (b *resultBuilder) convert(val any) any {
	switch v := val.(type) {
	case neo4j.Node:
		return b.addNode(v)
	case neo4j.Relationship:
		return b.addRel(v)
	case neo4j.Path:
		for _, n := range v.Nodes {
			b.addNode(n)
		}
		for _, r := range v.Relationships {
			b.addRel(r)
		}
		return map[string]any{
			"node_count": len(v.Nodes),
			"rel_count":  len(v.Relationships),
		}
	case []any:
		list := make([]any, len(v))
		for i := range v {
			list[i] = b.convert(v[i])
		}
		return list
	case map[string]any:
		m := make(map[string]any, len(v))
		for k := range v {
			m[k] = b.convert(v[k])
		}
		return m
	default:
		return v
	}
}

func (b *resultBuilder) addNode(n neo4j.Node) string {
	if id, seen := b.nodes[n.ElementId]; seen {
		return id
	}
	id := nodeID(n)
	b.nodes[n.ElementId] = id
	b.result.Nodes = append(b.result.Nodes, NodeResult{ID: id, Labels: n.Labels, Properties: n.Props})
	return id
}

func (b *resultBuilder) addRel(r neo4j.Relationship) string {
	if _, seen := b.rels[r.ElementId]; !seen {
		b.rels[r.ElementId] = struct{}{}
		b.result.Relationships = append(b.result.Relationships, RelResult{
			ID:         r.ElementId,
			Type:       r.Type,
			StartNode:  r.StartElementId,
			EndNode:    r.EndElementId,
			Properties: r.Props,
		})
	}
	return r.ElementId
}

// finish points relationships at the ids their endpoints were emitted
// under. An endpoint the search did not return keeps its element id.
func (b *resultBuilder) finish() *QueryResult {
	for i := range b.result.Relationships {
		rel := &b.result.Relationships[i]
		if id, ok := b.nodes[rel.StartNode]; ok {
			rel.StartNode = id
		}
		if id, ok := b.nodes[rel.EndNode]; ok {
			rel.EndNode = id
		}
	}
	return b.result
}

// nodeID is the document id of a mirrored node, or its element id for nodes
// that carry none
func nodeID(n neo4j.Node) string {
	if id, ok := n.Props[IDProperty].(string); ok && id != "" {
		return id
	}
	return n.ElementId
}
