package database

import (
	"github.com/huandu/go-sqlbuilder"
)

type SelectBuilder struct {
	*sqlbuilder.SelectBuilder
}

func NewSelectBuilder() *SelectBuilder {
	return &SelectBuilder{sqlbuilder.PostgreSQL.NewSelectBuilder()}
}

// InSubquery renders "column IN (subquery)" with the subquery's arguments
// carried into the outer builder
func (b *SelectBuilder) InSubquery(column string, sub *SelectBuilder) string {
	return b.In(column, sub.SelectBuilder)
}
