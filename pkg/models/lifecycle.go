package models

import (
	"encoding/json"
	"time"
)

// LifecycleEventType names a host document lifecycle notification
type LifecycleEventType string

const (
	LifecycleAfterCreateOrUpdate LifecycleEventType = "after_create_or_update"
	LifecycleAfterDelete         LifecycleEventType = "after_delete"
)

// LifecycleEvent is published by the host after a document write.
// SchemaMap is optional; when absent it is computed from the type schema.
type LifecycleEvent struct {
	Event      LifecycleEventType         `json:"event" validate:"required,oneof=after_create_or_update after_delete"`
	Document   Document                   `json:"document" validate:"required"`
	IsNew      bool                       `json:"is_new"`
	SchemaMap  map[string]json.RawMessage `json:"schema_map,omitempty"`
	OccurredAt time.Time                  `json:"occurred_at,omitempty"`
}
