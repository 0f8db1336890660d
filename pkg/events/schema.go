package events

// EventType defines the type of event
type EventType string

const (
	// Document events
	EventTypeDocumentSynced  EventType = "document.synced"
	EventTypeDocumentRemoved EventType = "document.removed"
)
