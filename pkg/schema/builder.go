package schema

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Ramsey-B/fern/pkg/pointer"
)

// maxRefHops bounds $ref chains so a self-referencing definition cannot loop
const maxRefHops = 32

// Compiled is a parsed type schema, safe for concurrent use
type Compiled struct {
	root map[string]any
}

// Compile parses a type schema once for repeated pointer map builds
func Compile(typeSchema json.RawMessage) (*Compiled, error) {
	if len(typeSchema) == 0 {
		return &Compiled{}, nil
	}
	var root map[string]any
	if err := json.Unmarshal(typeSchema, &root); err != nil {
		return nil, fmt.Errorf("failed to parse type schema: %w", err)
	}
	return &Compiled{root: root}, nil
}

// BuildPointerMap walks content alongside its type schema and records the
// sub-schema governing every content location that has one. It follows
// properties, additionalProperties, items (single or tuple form),
// prefixItems, allOf and local $ref pointers.
func BuildPointerMap(typeSchema json.RawMessage, content any) (PointerMap, error) {
	c, err := Compile(typeSchema)
	if err != nil {
		return nil, err
	}
	return c.PointerMap(content)
}

// PointerMap builds the pointer map for one document's content
func (c *Compiled) PointerMap(content any) (PointerMap, error) {
	out := PointerMap{}
	if c.root == nil {
		return out, nil
	}
	b := &builder{root: c.root, out: out}
	if err := b.walk(c.root, content, pointer.Root); err != nil {
		return nil, err
	}
	return out, nil
}

type builder struct {
	root map[string]any
	out  PointerMap
}

func (b *builder) walk(node map[string]any, value any, ptr string) error {
	resolved, err := b.resolve(node)
	if err != nil {
		return fmt.Errorf("failed to resolve schema at %q: %w", ptr, err)
	}

	raw, err := json.Marshal(resolved)
	if err != nil {
		return fmt.Errorf("failed to encode schema at %q: %w", ptr, err)
	}
	b.out[ptr] = raw

	switch v := value.(type) {
	case map[string]any:
		properties, _ := resolved["properties"].(map[string]any)
		additional, _ := resolved["additionalProperties"].(map[string]any)
		for key, item := range v {
			child, ok := properties[key].(map[string]any)
			if !ok {
				child = additional
			}
			if child == nil {
				continue
			}
			if err := b.walk(child, item, pointer.Join(ptr, key)); err != nil {
				return err
			}
		}
	case []any:
		for i, item := range v {
			child := itemSchema(resolved, i)
			if child == nil {
				continue
			}
			if err := b.walk(child, item, pointer.JoinIndex(ptr, i)); err != nil {
				return err
			}
		}
	}
	return nil
}

// resolve follows $ref and folds allOf members into one schema. Keys set
// directly on a node win over keys pulled in from its references.
func (b *builder) resolve(node map[string]any) (map[string]any, error) {
	current := node
	for hops := 0; ; hops++ {
		ref, ok := current["$ref"].(string)
		if !ok {
			break
		}
		if hops >= maxRefHops {
			return nil, fmt.Errorf("$ref chain exceeds %d hops at %q", maxRefHops, ref)
		}
		target, err := b.lookupRef(ref)
		if err != nil {
			return nil, err
		}
		next := overlay(target, current)
		if targetRef, chained := target["$ref"]; chained {
			next["$ref"] = targetRef
		} else {
			delete(next, "$ref")
		}
		current = next
	}

	members, ok := current["allOf"].([]any)
	if !ok {
		return current, nil
	}

	merged := make(map[string]any, len(current))
	for k, v := range current {
		if k != "allOf" {
			merged[k] = v
		}
	}
	for _, member := range members {
		m, ok := member.(map[string]any)
		if !ok {
			continue
		}
		m, err := b.resolve(m)
		if err != nil {
			return nil, err
		}
		for k, v := range m {
			if k == "properties" {
				merged["properties"] = overlay(asMap(v), asMap(merged["properties"]))
				continue
			}
			if _, exists := merged[k]; !exists {
				merged[k] = v
			}
		}
	}
	return merged, nil
}

func (b *builder) lookupRef(ref string) (map[string]any, error) {
	if !strings.HasPrefix(ref, "#") {
		return nil, fmt.Errorf("unsupported non-local $ref %q", ref)
	}

	var current any = b.root
	for _, segment := range pointer.Segments(strings.TrimPrefix(ref, "#")) {
		segment = strings.ReplaceAll(strings.ReplaceAll(segment, "~1", "/"), "~0", "~")
		m, ok := current.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("$ref %q does not resolve", ref)
		}
		if current, ok = m[segment]; !ok {
			return nil, fmt.Errorf("$ref %q does not resolve", ref)
		}
	}

	target, ok := current.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("$ref %q is not a schema object", ref)
	}
	return target, nil
}

func itemSchema(node map[string]any, index int) map[string]any {
	if prefix, ok := node["prefixItems"].([]any); ok && index < len(prefix) {
		m, _ := prefix[index].(map[string]any)
		return m
	}
	switch items := node["items"].(type) {
	case map[string]any:
		return items
	case []any:
		if index < len(items) {
			m, _ := items[index].(map[string]any)
			return m
		}
		additional, _ := node["additionalItems"].(map[string]any)
		return additional
	}
	return nil
}

// overlay returns a copy of base with every key of top applied over it
func overlay(base, top map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(top))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range top {
		out[k] = v
	}
	return out
}

func asMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}
