package indexer

import (
	"fmt"
	"sort"

	"github.com/Ramsey-B/fern/pkg/denest"
	"github.com/Ramsey-B/fern/pkg/graph"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/pointer"
	"github.com/Ramsey-B/fern/pkg/schema"
)

// NodeKey is the identity of the node at ptr inside document docID. The
// content root is keyed by the document id itself.
func NodeKey(docID, ptr string) string {
	if ptr == pointer.Root {
		return docID
	}
	return docID + ":" + ptr
}

// BuildMutation assembles the complete node and edge set for doc. Only
// Create and Update kinds are meaningful here.
func BuildMutation(kind graph.MutationKind, doc *models.Document, content any, res *schema.Resolution, cfg models.GraphConfig, includeExternal bool) *graph.Mutation {
	flat := denest.Flatten(content)
	m := &graph.Mutation{
		Kind:    kind,
		RootKey: doc.ID,
	}

	for _, rec := range flat.Records {
		key := NodeKey(doc.ID, rec.Pointer)
		props := nodeProperties(rec, cfg.PropertyNamingMode)
		props[graph.IDProperty] = key

		if rec.Pointer == pointer.Root {
			props[graph.TypeProperty] = doc.Type
			m.Root = graph.Node{Key: key, Label: doc.Type, Properties: props}
			continue
		}

		node := graph.Node{Key: key, Properties: props}
		if label, ok := res.Label(rec.Pointer); ok {
			node.Label = label
			props[graph.TypeProperty] = label
		}
		m.Children = append(m.Children, node)
	}

	for _, e := range flat.Edges {
		m.Containment = append(m.Containment, graph.Edge{
			From: NodeKey(doc.ID, e.SourcePointer),
			To:   NodeKey(doc.ID, e.TargetPointer),
			Type: res.RelationshipName(pointer.Join(e.SourcePointer, e.Relationship), e.Relationship),
		})
	}

	if !includeExternal {
		return m
	}

	refs := DeriveExternalReferences(content, res)
	parents := make([]string, 0, len(refs))
	for parent := range refs {
		parents = append(parents, parent)
	}
	sort.Strings(parents)

	for _, parent := range parents {
		// references inside nested arrays have no record to hang from
		if _, ok := flat.Record(parent); !ok {
			continue
		}
		for _, ref := range refs[parent] {
			m.External = append(m.External, graph.Edge{
				From: NodeKey(doc.ID, ref.SourcePointer),
				To:   ref.TargetID,
				Type: ref.Relationship,
			})
		}
	}
	return m
}

// nodeProperties copies the record's properties, renaming them in
// jsonPointer mode
func nodeProperties(rec *models.PointerRecord, namingMode string) map[string]any {
	props := make(map[string]any, len(rec.Properties)+2)
	for name, value := range rec.Properties {
		if namingMode == models.PropertyNamingJSONPointer {
			name = pointer.Join(rec.Pointer, name)
		}
		props[name] = value
	}
	return props
}

// DeriveExternalReferences finds every flagged scalar in content and groups
// the resulting references by the pointer of the record that holds them.
// Array elements are leveled up to their array property, so every element of
// a reference list hangs from the record owning the list.
func DeriveExternalReferences(content any, res *schema.Resolution) map[string][]models.ExternalReference {
	refs := make(map[string][]models.ExternalReference)

	for _, p := range res.Pointers() {
		if p == pointer.Root || !res.IsReference(p) {
			continue
		}

		value, ok := pointer.Lookup(content, p)
		if !ok || !isScalar(value) {
			continue
		}

		prop := p
		if pointer.IsIndex(pointer.Last(p)) {
			prop = pointer.Parent(p)
		}
		if prop == pointer.Root {
			continue
		}

		parent := pointer.Parent(prop)
		refs[parent] = append(refs[parent], models.ExternalReference{
			SourcePointer: parent,
			Relationship:  res.RelationshipName(p, res.RelationshipName(prop, pointer.Last(prop))),
			TargetID:      scalarID(value),
		})
	}
	return refs
}

func isScalar(value any) bool {
	switch value.(type) {
	case string, bool, int64, float64:
		return true
	default:
		return false
	}
}

func scalarID(value any) string {
	if s, ok := value.(string); ok {
		return s
	}
	return fmt.Sprint(value)
}
