// Package denest flattens nested document content into one flat record per
// object-valued location plus the containment edges between them.
package denest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/pointer"
)

// Result is the output of one flatten pass. Records are in pre-order: the
// root comes first and every parent precedes its children.
type Result struct {
	Records []*models.PointerRecord
	Edges   []models.ContainmentEdge

	byPointer map[string]*models.PointerRecord
}

// Record returns the record registered at p
func (r *Result) Record(p string) (*models.PointerRecord, bool) {
	rec, ok := r.byPointer[p]
	return rec, ok
}

// Root returns the record for the document content root
func (r *Result) Root() *models.PointerRecord {
	return r.byPointer[pointer.Root]
}

// Decode parses raw content keeping integers exact: integral numbers become
// int64, anything else float64.
func Decode(raw []byte) (any, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return map[string]any{}, nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var tree any
	if err := dec.Decode(&tree); err != nil {
		return nil, fmt.Errorf("failed to decode document content: %w", err)
	}
	return normalizeNumbers(tree), nil
}

func normalizeNumbers(value any) any {
	switch v := value.(type) {
	case map[string]any:
		for key, item := range v {
			v[key] = normalizeNumbers(item)
		}
		return v
	case []any:
		for i, item := range v {
			v[i] = normalizeNumbers(item)
		}
		return v
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n
		}
		if f, err := v.Float64(); err == nil {
			return f
		}
		return v.String()
	default:
		return v
	}
}

// Flatten walks the content tree depth-first. A non-object root still gets an
// empty root record.
func Flatten(tree any) *Result {
	r := &Result{byPointer: make(map[string]*models.PointerRecord)}

	root, ok := tree.(map[string]any)
	if !ok {
		root = map[string]any{}
	}
	r.visitObject(root, pointer.Root)
	return r
}

func (r *Result) visitObject(obj map[string]any, ptr string) {
	rec := &models.PointerRecord{Pointer: ptr, Properties: make(map[string]any, len(obj))}
	r.Records = append(r.Records, rec)
	r.byPointer[ptr] = rec

	keys := make([]string, 0, len(obj))
	for key := range obj {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		switch v := obj[key].(type) {
		case map[string]any:
			child := pointer.Join(ptr, key)
			r.addEdge(ptr, child, key)
			r.visitObject(v, child)
		case []any:
			// all-object arrays leave no property behind
			if scalars := r.visitArray(v, ptr, key); len(scalars) > 0 {
				rec.Properties[key] = scalars
			}
		default:
			rec.Properties[key] = v
		}
	}
}

func (r *Result) visitArray(items []any, ptr, key string) []any {
	arrayPointer := pointer.Join(ptr, key)
	scalars := make([]any, 0, len(items))

	for i, item := range items {
		switch v := item.(type) {
		case map[string]any:
			child := pointer.JoinIndex(arrayPointer, i)
			r.addEdge(ptr, child, key)
			r.visitObject(v, child)
		case []any, nil:
			// list properties cannot hold nested lists or nulls
		default:
			scalars = append(scalars, v)
		}
	}
	return scalars
}

func (r *Result) addEdge(source, target, relationship string) {
	r.Edges = append(r.Edges, models.ContainmentEdge{
		SourcePointer: source,
		TargetPointer: target,
		Relationship:  relationship,
	})
}
