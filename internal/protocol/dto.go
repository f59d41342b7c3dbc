// Package protocol implements the request/response contract with the sync
// gateway: the conversation-sync preference endpoints and the paginated
// sync exchange.
package protocol

import "time"

// PayloadVersion is the fixed payload-version constant carried in every
// sync request. Bump only when the wire shape changes incompatibly.
const PayloadVersion = 1

// TurnDTO is the wire representation of a conversation turn.
type TurnDTO struct {
	ID            string   `json:"id"`
	Question      string   `json:"question"`
	Answer        string   `json:"answer"`
	SourceFiles   []string `json:"sourceFiles,omitempty"`
	MemoryUpdated bool     `json:"memoryUpdated,omitempty"`
	Cancelled     bool     `json:"cancelled,omitempty"`
}

// ConversationRecordDTO is the wire representation of a conversation.
type ConversationRecordDTO struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Model     string            `json:"model,omitempty"`
	ProjectID string            `json:"projectId,omitempty"`
	History   []TurnDTO         `json:"history,omitempty"`
	Summary   string            `json:"summary,omitempty"`
	Tags      []string          `json:"tags,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
	UpdatedAt time.Time         `json:"updatedAt"`
	Version   int64             `json:"version"`
	UpdatedBy string            `json:"updatedBy,omitempty"`
	DeletedAt *time.Time        `json:"deletedAt,omitempty"`
}

// ProjectRecordDTO is the wire representation of a project.
type ProjectRecordDTO struct {
	ID                string            `json:"id"`
	Name              string            `json:"name"`
	Description       string            `json:"description,omitempty"`
	Color             string            `json:"color,omitempty"`
	Order             int               `json:"order"`
	ConversationCount int               `json:"conversationCount"`
	LastActivityAt    *time.Time        `json:"lastActivityAt,omitempty"`
	Summary           string            `json:"summary,omitempty"`
	Metadata          map[string]string `json:"metadata,omitempty"`
	CreatedAt         time.Time         `json:"createdAt"`
	UpdatedAt         time.Time         `json:"updatedAt"`
	Version           int64             `json:"version"`
	UpdatedBy         string            `json:"updatedBy,omitempty"`
	DeletedAt         *time.Time        `json:"deletedAt,omitempty"`
}

// SyncPreferenceDTO is the preference shape echoed by the gateway.
// The server is authoritative; responses may carry adjusted values,
// including a LastDeviceID naming a different device.
type SyncPreferenceDTO struct {
	SyncEnabled                     bool       `json:"syncEnabled"`
	LastSyncAt                      *time.Time `json:"lastSyncAt,omitempty"`
	Cursor                          *string    `json:"cursor,omitempty"`
	LastDeviceID                    string     `json:"lastDeviceId,omitempty"`
	KeepLocalOnly                   bool       `json:"keepLocalOnly"`
	IsAdvancedVectorFeaturesEnabled bool       `json:"isAdvancedVectorFeaturesEnabled"`
}

// PreferenceUpdate is the body of PUT /v1/preferences/conversation-sync.
type PreferenceUpdate struct {
	SyncEnabled                     bool   `json:"syncEnabled"`
	DeviceID                        string `json:"deviceId"`
	KeepLocalOnly                   bool   `json:"keepLocalOnly"`
	IsAdvancedVectorFeaturesEnabled bool   `json:"isAdvancedVectorFeaturesEnabled"`
}

// ConversationChanges carries the client's pending conversation changes.
type ConversationChanges struct {
	Upserts []ConversationRecordDTO `json:"upserts"`
	Deletes []string                `json:"deletes"`
}

// ProjectChanges carries the client's pending project changes.
type ProjectChanges struct {
	Upserts []ProjectRecordDTO `json:"upserts"`
	Deletes []string           `json:"deletes"`
}

// Changes is the combined change payload of a sync request.
type Changes struct {
	Conversations ConversationChanges `json:"conversations"`
	Projects      ProjectChanges      `json:"projects"`
}

// SyncRequest is the body of POST /v1/conversations/sync.
type SyncRequest struct {
	DeviceID       string  `json:"deviceId"`
	Cursor         *string `json:"cursor,omitempty"`
	Timezone       string  `json:"timezone"`
	PayloadVersion int     `json:"payloadVersion"`
	Changes        Changes `json:"changes"`
}

// Cursor is the opaque pagination token minted by the server.
// ExpiresAt is carried but never interpreted client-side.
type Cursor struct {
	Token     string     `json:"token"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

// ConversationBatch is the server's conversation delta for one page.
type ConversationBatch struct {
	Upserts    []ConversationRecordDTO `json:"upserts"`
	Deletes    []string                `json:"deletes"`
	TotalCount int                     `json:"totalCount"`
}

// ProjectBatch is the server's project delta for one page.
type ProjectBatch struct {
	Upserts    []ProjectRecordDTO `json:"upserts"`
	Deletes    []string           `json:"deletes"`
	TotalCount int                `json:"totalCount"`
}

// ConflictRecord describes a server-side conflict resolution for one entity.
type ConflictRecord struct {
	EntityID      string    `json:"entityId"`
	Name          string    `json:"name,omitempty"`
	LocalVersion  int64     `json:"localVersion"`
	ServerVersion int64     `json:"serverVersion"`
	Resolution    string    `json:"resolution,omitempty"`
	ResolvedAt    time.Time `json:"resolvedAt,omitempty"`
}

// Conflicts is the per-exchange conflict report, replaced wholesale each
// sync.
type Conflicts struct {
	ConversationConflicts []ConflictRecord `json:"conversationConflicts"`
	ProjectConflicts      []ConflictRecord `json:"projectConflicts"`
}

// SyncResponse is the body returned by POST /v1/conversations/sync.
type SyncResponse struct {
	NextCursor    *Cursor           `json:"nextCursor,omitempty"`
	Conversations ConversationBatch `json:"conversations"`
	Projects      ProjectBatch      `json:"projects"`
	Conflicts     Conflicts         `json:"conflicts"`
	HasMore       bool              `json:"hasMore"`
}
