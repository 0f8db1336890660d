// Package pointer handles the slash-joined location paths used to address
// values inside document content.
//
// Segments are literal property names or array indices. No ~0/~1 escaping is
// applied: the host guarantees its pointers are already in this form.
package pointer

import (
	"strconv"
	"strings"
)

// Root addresses the document content itself.
const Root = ""

// Join appends a property segment.
func Join(p, segment string) string {
	return p + "/" + segment
}

// JoinIndex appends an array index segment.
func JoinIndex(p string, index int) string {
	return p + "/" + strconv.Itoa(index)
}

// Parent drops the last segment. The parent of a top-level pointer is Root.
func Parent(p string) string {
	i := strings.LastIndex(p, "/")
	if i < 0 {
		return Root
	}
	return p[:i]
}

// Last returns the final segment, or "" for Root.
func Last(p string) string {
	i := strings.LastIndex(p, "/")
	if i < 0 {
		return p
	}
	return p[i+1:]
}

// IsIndex reports whether a segment is a canonical non-negative integer
// ("0", "7", "12" but not "01" or "-1").
func IsIndex(segment string) bool {
	if segment == "" {
		return false
	}
	if segment == "0" {
		return true
	}
	if segment[0] < '1' || segment[0] > '9' {
		return false
	}
	for i := 1; i < len(segment); i++ {
		if segment[i] < '0' || segment[i] > '9' {
			return false
		}
	}
	return true
}

// Segments splits a pointer into its segments. Root has none.
func Segments(p string) []string {
	if p == Root {
		return nil
	}
	return strings.Split(strings.TrimPrefix(p, "/"), "/")
}

// Lookup walks a decoded JSON tree (map[string]any / []any) and returns the
// value at p.
func Lookup(tree any, p string) (any, bool) {
	current := tree
	for _, segment := range Segments(p) {
		switch node := current.(type) {
		case map[string]any:
			value, ok := node[segment]
			if !ok {
				return nil, false
			}
			current = value
		case []any:
			if !IsIndex(segment) {
				return nil, false
			}
			index, err := strconv.Atoi(segment)
			if err != nil || index >= len(node) {
				return nil, false
			}
			current = node[index]
		default:
			return nil, false
		}
	}
	return current, true
}
