package indexer

import "strconv"

// Host search queries are whitespace-separated field:value terms, ANDed.
// Values containing whitespace or quotes are Go-quoted.
const (
	MatchAllQuery = "*:*"
	FieldID       = "id"
	FieldType     = "type"
	FieldPointsAt = "internal.pointsAt"
)

// Term renders one field:value search term
func Term(field, value string) string {
	return field + ":" + quoteValue(value)
}

// TypeQuery matches every document of docType
func TypeQuery(docType string) string {
	return Term(FieldType, docType)
}

// PointsAtQuery matches every document holding a reference to id
func PointsAtQuery(id string) string {
	return Term(FieldPointsAt, id)
}

func quoteValue(value string) string {
	if value == "" {
		return `""`
	}
	for _, r := range value {
		if r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '"' {
			return strconv.Quote(value)
		}
	}
	return value
}
