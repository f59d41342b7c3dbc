// Package model defines the records synchronized between the local store
// and the sync gateway: conversations, projects, and the per-user sync
// preference.
//
// The structures are flat and last-write-wins friendly: each record carries
// updated_at, a server-assigned version, and an optional deleted_at
// tombstone so that independent devices can reconcile without merging
// individual fields.
package model

import (
	"fmt"
	"time"
)

// Turn is a single question/answer exchange within a conversation.
// History order is append-significant: when a turn has no explicit ID,
// its index in the history is used as the fallback identifier on the wire.
type Turn struct {
	ID            string   `json:"id,omitempty"`
	Question      string   `json:"question"`
	Answer        string   `json:"answer"`
	SourceFiles   []string `json:"source_files,omitempty"`
	MemoryUpdated bool     `json:"memory_updated,omitempty"`
	Cancelled     bool     `json:"cancelled,omitempty"`
}

// Conversation is a locally persisted chat conversation.
type Conversation struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Model     string `json:"model,omitempty"`
	ProjectID string `json:"project_id,omitempty"`

	History []Turn `json:"history,omitempty"`

	Summary  string            `json:"summary,omitempty"`
	Tags     []string          `json:"tags,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`

	// Sync metadata. Version is bumped server-side on each accepted write;
	// UpdatedBy records which device/user made the last change.
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	Version   int64      `json:"version"`
	UpdatedBy string     `json:"updated_by,omitempty"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// Validate checks that the conversation has the fields the sync protocol
// requires.
func (c *Conversation) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("id is required")
	}
	if c.Name == "" {
		return fmt.Errorf("name is required")
	}
	if c.UpdatedAt.IsZero() {
		return fmt.Errorf("updated_at is required")
	}
	return nil
}

// SetDefaults applies default values for optional fields.
func (c *Conversation) SetDefaults() {
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = now
	}
}
