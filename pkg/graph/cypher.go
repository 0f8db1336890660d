package graph

import (
	"fmt"
	"strings"
)

// Statement is one parameterized Cypher statement
type Statement struct {
	Cypher string
	Params map[string]any
}

// Dialect selects the store-specific Cypher used for subtree traversal
type Dialect string

const (
	// DialectNeo4j needs Neo4j 5.9 or later for quantified path patterns
	DialectNeo4j    Dialect = "neo4j"
	DialectMemgraph Dialect = "memgraph"
)

// ParseDialect maps a configured name to a Dialect. Empty means Neo4j.
func ParseDialect(name string) (Dialect, error) {
	switch d := Dialect(strings.ToLower(name)); d {
	case "", DialectNeo4j:
		return DialectNeo4j, nil
	case DialectMemgraph:
		return d, nil
	default:
		return "", fmt.Errorf("unknown graph dialect %q", name)
	}
}

// internalSubtreeMatch binds internal to every _Internal node reachable from
// root through _Internal nodes only. The label test is part of the expansion,
// so a path stops at the first external Document instead of walking into
// other documents' subtrees.
func internalSubtreeMatch(d Dialect) string {
	if d == DialectMemgraph {
		return "OPTIONAL MATCH (root)-[* (e, n | n:" + InternalLabel + ")]->(internal)\n"
	}
	return "OPTIONAL MATCH (root) (()-->(:" + InternalLabel + "))+ (internal)\n"
}

// Render builds the Cypher statement for m
func Render(m *Mutation, d Dialect) (Statement, error) {
	switch m.Kind {
	case MutationCreate:
		return renderUpsert(m, d, false)
	case MutationUpdate:
		return renderUpsert(m, d, true)
	case MutationDelete:
		return renderDelete(m, d), nil
	default:
		return Statement{}, fmt.Errorf("mutation kind %s renders as multiple statements", m.Kind)
	}
}

// DeleteAllStatements removes every document and internal node
func DeleteAllStatements() []Statement {
	return []Statement{
		{Cypher: "MATCH (n:" + DocumentLabel + ") DETACH DELETE n"},
		{Cypher: "MATCH (n:" + InternalLabel + ") DETACH DELETE n"},
	}
}

func renderDelete(m *Mutation, d Dialect) Statement {
	var b strings.Builder
	b.WriteString("MATCH (root:" + DocumentLabel + " {" + IDProperty + ": $root_id})\n")
	b.WriteString(internalSubtreeMatch(d))
	b.WriteString("DETACH DELETE internal\n")
	b.WriteString("WITH DISTINCT root\n")
	b.WriteString("DETACH DELETE root")

	return Statement{
		Cypher: b.String(),
		Params: map[string]any{"root_id": m.RootKey},
	}
}

func renderUpsert(m *Mutation, d Dialect, replace bool) (Statement, error) {
	var b strings.Builder
	params := map[string]any{
		"root_id":    m.RootKey,
		"root_props": m.Root.Properties,
	}
	vars := map[string]string{m.RootKey: "root"}

	b.WriteString("MERGE (root:" + DocumentLabel + " {" + IDProperty + ": $root_id})\n")
	if replace {
		b.WriteString("WITH root\n")
		b.WriteString(internalSubtreeMatch(d))
		b.WriteString("DETACH DELETE internal\n")
		b.WriteString("WITH DISTINCT root\n")
		b.WriteString("OPTIONAL MATCH (root)-[ext]->(:" + DocumentLabel + ")\n")
		b.WriteString("DELETE ext\n")
		b.WriteString("WITH DISTINCT root\n")
	}
	b.WriteString("SET root = $root_props\n")
	if m.Root.Label != "" {
		b.WriteString("SET root:" + QuoteName(m.Root.Label) + "\n")
	}

	for i, child := range m.Children {
		v := fmt.Sprintf("n%d", i)
		vars[child.Key] = v
		params[v+"_id"] = child.Key
		params[v+"_props"] = child.Properties

		fmt.Fprintf(&b, "MERGE (%s:%s {%s: $%s_id})\n", v, InternalLabel, IDProperty, v)
		fmt.Fprintf(&b, "SET %s = $%s_props\n", v, v)
		if child.Label != "" {
			fmt.Fprintf(&b, "SET %s:%s\n", v, QuoteName(child.Label))
		}
	}

	for _, e := range m.Containment {
		from, ok := vars[e.From]
		if !ok {
			return Statement{}, fmt.Errorf("containment edge from unknown node %q", e.From)
		}
		to, ok := vars[e.To]
		if !ok {
			return Statement{}, fmt.Errorf("containment edge to unknown node %q", e.To)
		}
		fmt.Fprintf(&b, "MERGE (%s)-[:%s]->(%s)\n", from, QuoteName(e.Type), to)
	}

	targets := make(map[string]string)
	for i, key := range m.ExternalTargets() {
		v := fmt.Sprintf("x%d", i)
		targets[key] = v
		params[v+"_id"] = key
		fmt.Fprintf(&b, "MERGE (%s:%s {%s: $%s_id})\n", v, DocumentLabel, IDProperty, v)
	}
	for _, e := range m.External {
		from, ok := vars[e.From]
		if !ok {
			return Statement{}, fmt.Errorf("external edge from unknown node %q", e.From)
		}
		fmt.Fprintf(&b, "MERGE (%s)-[:%s]->(%s)\n", from, QuoteName(e.Type), targets[e.To])
	}

	b.WriteString("RETURN root")
	return Statement{Cypher: b.String(), Params: params}, nil
}

// QuoteName escapes a label or relationship type for direct interpolation
func QuoteName(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}
