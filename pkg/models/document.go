package models

import (
	"encoding/json"
	"time"
)

// Document is a JSON-bearing record owned by the host repository
type Document struct {
	ID        string          `json:"id" db:"id" validate:"required"`
	Type      string          `json:"type" db:"type" validate:"required"`
	Content   json.RawMessage `json:"content" db:"content"`
	CreatedAt time.Time       `json:"created_at,omitempty" db:"created_at"`
	UpdatedAt time.Time       `json:"updated_at,omitempty" db:"updated_at"`
}

// TypeSchema is the JSON schema registered for a document type
type TypeSchema struct {
	Type      string          `json:"type" db:"type"`
	Schema    json.RawMessage `json:"schema" db:"schema"`
	Version   int             `json:"version" db:"version"`
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"`
}

// DocumentCursor iterates search results from the host repository.
// Callers must Close it.
type DocumentCursor interface {
	Next() bool
	Document() (*Document, error)
	Err() error
	Close() error
}

// IDCursor iterates document ids from the host repository
type IDCursor interface {
	Next() bool
	ID() (string, error)
	Err() error
	Close() error
}
