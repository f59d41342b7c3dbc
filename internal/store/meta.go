package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Meta is the single persisted sync-metadata record: device identity plus
// the local copy of the server preference and sync progress.
type Meta struct {
	DeviceID                      string
	Cursor                        string
	LastSyncAt                    *time.Time
	LastDeviceID                  string
	SyncEnabled                   bool
	KeepLocalOnly                 bool
	AdvancedVectorFeaturesEnabled bool
	InitialUploadDone             bool
}

// LoadMeta reads the sync metadata row.
func (s *Store) LoadMeta(ctx context.Context) (Meta, error) {
	var m Meta
	var lastSyncAt sql.NullString
	err := s.conn.QueryRowContext(ctx, `
		SELECT device_id, cursor, last_sync_at, last_device_id,
		       sync_enabled, keep_local_only, advanced_vector_features,
		       initial_upload_done
		FROM sync_meta WHERE id = 1`).Scan(
		&m.DeviceID, &m.Cursor, &lastSyncAt, &m.LastDeviceID,
		&m.SyncEnabled, &m.KeepLocalOnly, &m.AdvancedVectorFeaturesEnabled,
		&m.InitialUploadDone)
	if err != nil {
		return Meta{}, fmt.Errorf("failed to load sync metadata: %w", err)
	}
	m.LastSyncAt = parseTimePtr(lastSyncAt)
	return m, nil
}

// SaveMeta writes the sync metadata row.
func (s *Store) SaveMeta(ctx context.Context, m Meta) error {
	_, err := s.conn.ExecContext(ctx, `
		UPDATE sync_meta SET
			device_id = ?, cursor = ?, last_sync_at = ?, last_device_id = ?,
			sync_enabled = ?, keep_local_only = ?, advanced_vector_features = ?,
			initial_upload_done = ?
		WHERE id = 1`,
		m.DeviceID, m.Cursor, formatTimePtr(m.LastSyncAt), m.LastDeviceID,
		m.SyncEnabled, m.KeepLocalOnly, m.AdvancedVectorFeaturesEnabled,
		m.InitialUploadDone)
	if err != nil {
		return fmt.Errorf("failed to save sync metadata: %w", err)
	}
	return nil
}

// EnsureDeviceID returns the persisted device identifier, generating and
// persisting one on first use. When persistence is inaccessible it returns
// a fresh volatile UUID and logs a warning; it never fails, because device
// identity must not block initialization.
func (s *Store) EnsureDeviceID(ctx context.Context) string {
	m, err := s.LoadMeta(ctx)
	if err != nil {
		id := uuid.NewString()
		s.logger.Warn("device id storage unavailable, using volatile id", "error", err)
		return id
	}
	if m.DeviceID != "" {
		return m.DeviceID
	}
	m.DeviceID = uuid.NewString()
	if err := s.SaveMeta(ctx, m); err != nil {
		s.logger.Warn("failed to persist device id, using volatile id", "error", err)
	}
	return m.DeviceID
}
