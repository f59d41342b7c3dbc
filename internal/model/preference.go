package model

import "time"

// SyncPreference is the per-user sync preference as persisted locally.
//
// The server copy is authoritative: preference fetch/update responses are
// applied over the local copy. The one exception is a LastDeviceID naming a
// different device, in which case the cursor and LastSyncAt are reset to
// their zero values because an opaque cursor minted for another device
// cannot be trusted to resume correctly here.
type SyncPreference struct {
	SyncEnabled   bool       `json:"sync_enabled"`
	LastSyncAt    *time.Time `json:"last_sync_at,omitempty"`
	Cursor        string     `json:"cursor,omitempty"`
	LastDeviceID  string     `json:"last_device_id,omitempty"`
	KeepLocalOnly bool       `json:"keep_local_only"`

	// AdvancedVectorFeaturesEnabled gates whether vector-backed memory and
	// knowledge features participate in sync.
	AdvancedVectorFeaturesEnabled bool `json:"advanced_vector_features_enabled"`
}
