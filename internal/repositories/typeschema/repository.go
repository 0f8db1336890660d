package typeschema

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const tableName = "type_schemas"

type typeSchemaRow struct {
	Type      string                          `db:"type"`
	Schema    database.JSONB[json.RawMessage] `db:"schema"`
	Version   int                             `db:"version"`
	UpdatedAt time.Time                       `db:"updated_at"`
}

// Repository reads the JSON schemas the host registers per document type
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new type schema repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// GetByType returns the schema registered for docType, or nil when none is
func (r *Repository) GetByType(ctx context.Context, docType string) (*models.TypeSchema, error) {
	ctx, span := tracing.StartSpan(ctx, "TypeSchemaRepository.GetByType")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select("type", "schema", "version", "updated_at")
	sb.From(tableName)
	sb.Where(sb.Equal("type", docType))

	query, args := sb.Build()

	var row typeSchemaRow
	if err := r.db.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithField("document_type", docType).Error("failed to get type schema")
		return nil, fmt.Errorf("failed to get type schema: %w", err)
	}

	return &models.TypeSchema{
		Type:      row.Type,
		Schema:    row.Schema.GetValue(),
		Version:   row.Version,
		UpdatedAt: row.UpdatedAt,
	}, nil
}
