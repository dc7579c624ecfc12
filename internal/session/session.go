package session

import (
	"context"
	"time"
)

// Turn roles
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// AttachmentMeta is the displayable remnant of an attachment. Binary
// content is not persisted, so restored turns carry metadata only.
type AttachmentMeta struct {
	Name     string `json:"name"`
	MIMEType string `json:"mime_type"`
}

// Turn represents a single exchange unit in the conversation
type Turn struct {
	Role        string           `json:"role"`
	Content     string           `json:"content,omitempty"`
	Attachments []AttachmentMeta `json:"attachments,omitempty"`
	Timestamp   time.Time        `json:"timestamp"`
}

// Record is the serialized form of a session written to the history store
type Record struct {
	ID      string    `json:"id"`
	SavedAt time.Time `json:"saved_at"`
	Turns   []Turn    `json:"turns"`
}

// Store defines the interface for history persistence operations.
type Store interface {
	// Save writes the record, replacing any prior record with the same ID.
	Save(ctx context.Context, rec *Record) error

	// Load retrieves a record by ID.
	// Returns nil if no record exists (not an error).
	Load(ctx context.Context, id string) (*Record, error)

	// Close closes the store and releases any resources.
	Close() error
}
