package document

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/Ramsey-B/fern/pkg/database"
)

const (
	matchAll      = "*:*"
	fieldID       = "id"
	fieldType     = "type"
	fieldPointsAt = "internal.pointsAt"
)

// Term is one field:value condition of a search query
type Term struct {
	Field string
	Value string
}

// ParseQuery splits a search query into terms. Terms are separated by
// whitespace and ANDed; quoted values use Go string syntax. "*:*" matches
// every document and yields no terms.
func ParseQuery(query string) ([]Term, error) {
	rest := strings.TrimSpace(query)
	if rest == "" {
		return nil, fmt.Errorf("empty query")
	}

	var terms []Term
	for rest != "" {
		token := rest
		if i := strings.IndexFunc(rest, unicode.IsSpace); i >= 0 {
			token = rest[:i]
		}
		if token == matchAll {
			rest = strings.TrimLeftFunc(rest[len(token):], unicode.IsSpace)
			continue
		}

		field, value, ok := strings.Cut(rest, ":")
		if !ok || field == "" || strings.IndexFunc(field, unicode.IsSpace) >= 0 {
			return nil, fmt.Errorf("malformed query term %q", token)
		}

		var consumed string
		if strings.HasPrefix(value, `"`) {
			quoted, err := strconv.QuotedPrefix(value)
			if err != nil {
				return nil, fmt.Errorf("malformed quoted value for %s: %w", field, err)
			}
			unquoted, err := strconv.Unquote(quoted)
			if err != nil {
				return nil, fmt.Errorf("malformed quoted value for %s: %w", field, err)
			}
			consumed, value = quoted, unquoted
		} else {
			if i := strings.IndexFunc(value, unicode.IsSpace); i >= 0 {
				value = value[:i]
			}
			if value == "" {
				return nil, fmt.Errorf("missing value for %s", field)
			}
			consumed = value
		}

		terms = append(terms, Term{Field: field, Value: value})
		rest = strings.TrimLeftFunc(rest[len(field)+1+len(consumed):], unicode.IsSpace)
	}
	return terms, nil
}

// buildSearch renders a query as a select over documents, ordered by id
func buildSearch(query string, columns ...string) (string, []any, error) {
	terms, err := ParseQuery(query)
	if err != nil {
		return "", nil, err
	}

	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(documentsTable)

	conds := make([]string, 0, len(terms))
	for _, t := range terms {
		switch t.Field {
		case fieldID:
			conds = append(conds, sb.Equal("id", t.Value))
		case fieldType:
			conds = append(conds, sb.Equal("type", t.Value))
		case fieldPointsAt:
			sub := database.NewSelectBuilder()
			sub.Select("source_id")
			sub.From(referencesTable)
			sub.Where(sub.Equal("target_id", t.Value))
			conds = append(conds, sb.InSubquery("id", sub))
		default:
			return "", nil, fmt.Errorf("unsupported query field %q", t.Field)
		}
	}
	if len(conds) > 0 {
		sb.Where(conds...)
	}
	sb.OrderBy("id")

	sql, args := sb.Build()
	return sql, args, nil
}
