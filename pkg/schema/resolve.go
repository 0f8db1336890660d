// Package schema resolves graph naming overrides from the per-pointer
// sub-schemas of a document and builds that pointer map from a type schema.
package schema

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/pointer"
)

// PointerMap maps a content pointer to the sub-schema that governs it
type PointerMap map[string]json.RawMessage

// Overrides are the graph settings one sub-schema declares
type Overrides struct {
	Label            string
	RelationshipType string
	Reference        bool
}

// Resolution is a typed view of a PointerMap, decoded once per sync.
// A nil Resolution resolves nothing.
type Resolution struct {
	overrides map[string]Overrides
	pointers  []string
}

// Resolve reads the extension values out of every sub-schema in m
func Resolve(m PointerMap, ext models.SchemaExtensions) (*Resolution, error) {
	ext = ext.WithDefaults()
	r := &Resolution{
		overrides: make(map[string]Overrides, len(m)),
		pointers:  make([]string, 0, len(m)),
	}

	for p, raw := range m {
		r.pointers = append(r.pointers, p)
		if len(raw) == 0 {
			continue
		}

		var subSchema any
		if err := json.Unmarshal(raw, &subSchema); err != nil {
			return nil, fmt.Errorf("failed to decode sub-schema at %q: %w", p, err)
		}
		if _, ok := subSchema.(map[string]any); !ok {
			continue
		}

		var o Overrides
		if value, ok := pointer.Lookup(subSchema, ext.NodeLabel); ok {
			o.Label = scalarText(value)
		}
		if value, ok := pointer.Lookup(subSchema, ext.RelationshipType); ok {
			o.RelationshipType = scalarText(value)
		}
		if value, ok := pointer.Lookup(subSchema, ext.Reference); ok {
			o.Reference = value != nil && value != false
		}
		if o != (Overrides{}) {
			r.overrides[p] = o
		}
	}

	sort.Strings(r.pointers)
	return r, nil
}

// Pointers returns every pointer in the map, sorted
func (r *Resolution) Pointers() []string {
	if r == nil {
		return nil
	}
	return r.pointers
}

// Label returns the node label override at p
func (r *Resolution) Label(p string) (string, bool) {
	if r == nil {
		return "", false
	}
	o := r.overrides[p]
	return o.Label, o.Label != ""
}

// RelationshipType returns the relationship type override at p
func (r *Resolution) RelationshipType(p string) (string, bool) {
	if r == nil {
		return "", false
	}
	o := r.overrides[p]
	return o.RelationshipType, o.RelationshipType != ""
}

// RelationshipName is the override at p, or fallback when there is none
func (r *Resolution) RelationshipName(p, fallback string) string {
	if name, ok := r.RelationshipType(p); ok {
		return name
	}
	return fallback
}

// IsReference reports whether the value at p names another document
func (r *Resolution) IsReference(p string) bool {
	if r == nil {
		return false
	}
	return r.overrides[p].Reference
}

func scalarText(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case float64, bool:
		return fmt.Sprint(v)
	default:
		return ""
	}
}
