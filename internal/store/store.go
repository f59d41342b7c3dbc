// Package store provides the local persisted state for the sync engine:
// conversations, projects, and the single-row sync metadata record.
//
// The store is an embedded SQLite database opened in WAL mode for
// concurrent reads. It is observable: subscribers registered with
// SubscribeConversations/SubscribeProjects are invoked synchronously after
// every mutation with a full snapshot of the affected collection, which is
// what the change tracker diffs against its previous snapshot.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Burtson-Labs/bandit-sync/internal/model"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// Store owns the local conversations and projects collections.
type Store struct {
	conn   *sql.DB
	path   string
	logger *slog.Logger

	subMu    sync.Mutex
	convSubs []func([]model.Conversation)
	projSubs []func([]model.Project)

	hydrated     chan struct{}
	hydratedOnce sync.Once
}

// Open creates or opens the store database at path.
// The caller must call Close when done.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("failed to open store database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping store database: %w", err)
	}

	conn.SetMaxOpenConns(10)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(5 * time.Minute)

	s := &Store{
		conn:     conn,
		path:     path,
		logger:   logger,
		hydrated: make(chan struct{}),
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := conn.Exec(pragma); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	if err := s.initSchema(context.Background()); err != nil {
		_ = s.Close()
		return nil, err
	}

	return s, nil
}

// Close closes the database connection after a WAL checkpoint.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}
	if _, err := s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		s.logger.Warn("failed to checkpoint WAL", "error", err)
	}
	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("failed to close store database: %w", err)
	}
	s.conn = nil
	return nil
}

func (s *Store) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		model TEXT,
		project_id TEXT,
		history TEXT NOT NULL DEFAULT '[]',  -- JSON array of turns
		summary TEXT,
		tags TEXT,      -- JSON array
		metadata TEXT,  -- JSON object
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		version INTEGER NOT NULL DEFAULT 0,
		updated_by TEXT,
		deleted_at TEXT
	);

	CREATE TABLE IF NOT EXISTS projects (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT,
		color TEXT,
		sort_order INTEGER NOT NULL DEFAULT 0,
		conversation_count INTEGER NOT NULL DEFAULT 0,
		last_activity_at TEXT,
		summary TEXT,
		metadata TEXT,  -- JSON object
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		version INTEGER NOT NULL DEFAULT 0,
		updated_by TEXT,
		deleted_at TEXT
	);

	-- Single-row sync metadata (device identity, cursor, preference copy)
	CREATE TABLE IF NOT EXISTS sync_meta (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		device_id TEXT NOT NULL DEFAULT '',
		cursor TEXT NOT NULL DEFAULT '',
		last_sync_at TEXT,
		last_device_id TEXT NOT NULL DEFAULT '',
		sync_enabled INTEGER NOT NULL DEFAULT 0,
		keep_local_only INTEGER NOT NULL DEFAULT 0,
		advanced_vector_features INTEGER NOT NULL DEFAULT 0,
		initial_upload_done INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_conversations_project ON conversations(project_id);
	CREATE INDEX IF NOT EXISTS idx_conversations_updated ON conversations(updated_at);
	CREATE INDEX IF NOT EXISTS idx_projects_order ON projects(sort_order);
	`

	if _, err := s.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	if _, err := s.conn.ExecContext(ctx,
		`INSERT OR IGNORE INTO sync_meta (id) VALUES (1)`); err != nil {
		return fmt.Errorf("failed to seed sync_meta: %w", err)
	}
	return nil
}

// Hydrate emits an initial snapshot to all subscribers and then signals
// hydration-complete. Emissions before the signal are baseline data, not
// user actions; the tracker treats them accordingly.
func (s *Store) Hydrate(ctx context.Context) error {
	convs, err := s.ListConversations(ctx)
	if err != nil {
		return fmt.Errorf("failed to hydrate conversations: %w", err)
	}
	projs, err := s.ListProjects(ctx)
	if err != nil {
		return fmt.Errorf("failed to hydrate projects: %w", err)
	}
	s.emitConversations(convs)
	s.emitProjects(projs)
	s.hydratedOnce.Do(func() { close(s.hydrated) })
	return nil
}

// Hydrated returns a channel closed once Hydrate has completed.
func (s *Store) Hydrated() <-chan struct{} {
	return s.hydrated
}

// SubscribeConversations registers a callback invoked synchronously with
// the full conversation snapshot after every conversation mutation.
func (s *Store) SubscribeConversations(fn func([]model.Conversation)) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	s.convSubs = append(s.convSubs, fn)
}

// SubscribeProjects registers a callback invoked synchronously with the
// full project snapshot after every project mutation.
func (s *Store) SubscribeProjects(fn func([]model.Project)) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	s.projSubs = append(s.projSubs, fn)
}

func (s *Store) emitConversations(convs []model.Conversation) {
	s.subMu.Lock()
	subs := append(([]func([]model.Conversation))(nil), s.convSubs...)
	s.subMu.Unlock()
	for _, fn := range subs {
		fn(convs)
	}
}

func (s *Store) emitProjects(projs []model.Project) {
	s.subMu.Lock()
	subs := append(([]func([]model.Project))(nil), s.projSubs...)
	s.subMu.Unlock()
	for _, fn := range subs {
		fn(projs)
	}
}

func (s *Store) notifyConversations(ctx context.Context) error {
	convs, err := s.ListConversations(ctx)
	if err != nil {
		return err
	}
	s.emitConversations(convs)
	return nil
}

func (s *Store) notifyProjects(ctx context.Context) error {
	projs, err := s.ListProjects(ctx)
	if err != nil {
		return err
	}
	s.emitProjects(projs)
	return nil
}

// PutConversation inserts or updates a conversation as a local mutation.
// Subscribers are notified after the write commits.
func (s *Store) PutConversation(ctx context.Context, c model.Conversation) error {
	c.SetDefaults()
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid conversation: %w", err)
	}
	if err := s.upsertConversation(ctx, s.conn, c); err != nil {
		return err
	}
	return s.notifyConversations(ctx)
}

// PutProject inserts or updates a project as a local mutation.
func (s *Store) PutProject(ctx context.Context, p model.Project) error {
	p.SetDefaults()
	if err := p.Validate(); err != nil {
		return fmt.Errorf("invalid project: %w", err)
	}
	if err := s.upsertProject(ctx, s.conn, p); err != nil {
		return err
	}
	return s.notifyProjects(ctx)
}

// DeleteConversation removes a conversation as a local mutation. The
// tracker picks the removal up from the snapshot diff; call sites that
// need lower latency additionally flag the delete on the engine directly.
func (s *Store) DeleteConversation(ctx context.Context, id string) error {
	if _, err := s.conn.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete conversation %s: %w", id, err)
	}
	return s.notifyConversations(ctx)
}

// DeleteProject removes a project as a local mutation.
func (s *Store) DeleteProject(ctx context.Context, id string) error {
	if _, err := s.conn.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete project %s: %w", id, err)
	}
	return s.notifyProjects(ctx)
}

// ApplyRemoteConversations upserts a server batch in one transaction.
// The engine suppresses change tracking around this call.
func (s *Store) ApplyRemoteConversations(ctx context.Context, convs []model.Conversation) error {
	if len(convs) == 0 {
		return nil
	}
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()
	for _, c := range convs {
		if err := s.upsertConversation(ctx, tx, c); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit remote conversations: %w", err)
	}
	return s.notifyConversations(ctx)
}

// ApplyRemoteProjects upserts a server batch in one transaction.
func (s *Store) ApplyRemoteProjects(ctx context.Context, projs []model.Project) error {
	if len(projs) == 0 {
		return nil
	}
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()
	for _, p := range projs {
		if err := s.upsertProject(ctx, tx, p); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit remote projects: %w", err)
	}
	return s.notifyProjects(ctx)
}

// RemoveConversationsByID applies server tombstones.
func (s *Store) RemoveConversationsByID(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	for _, id := range ids {
		if _, err := s.conn.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id); err != nil {
			return fmt.Errorf("failed to remove conversation %s: %w", id, err)
		}
	}
	return s.notifyConversations(ctx)
}

// RemoveProjectsByID applies server tombstones.
func (s *Store) RemoveProjectsByID(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	for _, id := range ids {
		if _, err := s.conn.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, id); err != nil {
			return fmt.Errorf("failed to remove project %s: %w", id, err)
		}
	}
	return s.notifyProjects(ctx)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) upsertConversation(ctx context.Context, db execer, c model.Conversation) error {
	history, err := json.Marshal(c.History)
	if err != nil {
		return fmt.Errorf("failed to marshal history for %s: %w", c.ID, err)
	}
	tags, err := json.Marshal(c.Tags)
	if err != nil {
		return fmt.Errorf("failed to marshal tags for %s: %w", c.ID, err)
	}
	metadata, err := json.Marshal(c.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata for %s: %w", c.ID, err)
	}

	query := `
	INSERT INTO conversations (
		id, name, model, project_id, history, summary, tags, metadata,
		created_at, updated_at, version, updated_by, deleted_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		name = excluded.name,
		model = excluded.model,
		project_id = excluded.project_id,
		history = excluded.history,
		summary = excluded.summary,
		tags = excluded.tags,
		metadata = excluded.metadata,
		updated_at = excluded.updated_at,
		version = excluded.version,
		updated_by = excluded.updated_by,
		deleted_at = excluded.deleted_at
	`
	_, err = db.ExecContext(ctx, query,
		c.ID, c.Name, c.Model, c.ProjectID, string(history), c.Summary,
		string(tags), string(metadata), formatTime(c.CreatedAt),
		formatTime(c.UpdatedAt), c.Version, c.UpdatedBy, formatTimePtr(c.DeletedAt))
	if err != nil {
		return fmt.Errorf("failed to upsert conversation %s: %w", c.ID, err)
	}
	return nil
}

func (s *Store) upsertProject(ctx context.Context, db execer, p model.Project) error {
	metadata, err := json.Marshal(p.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata for %s: %w", p.ID, err)
	}

	query := `
	INSERT INTO projects (
		id, name, description, color, sort_order, conversation_count,
		last_activity_at, summary, metadata, created_at, updated_at,
		version, updated_by, deleted_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		name = excluded.name,
		description = excluded.description,
		color = excluded.color,
		sort_order = excluded.sort_order,
		conversation_count = excluded.conversation_count,
		last_activity_at = excluded.last_activity_at,
		summary = excluded.summary,
		metadata = excluded.metadata,
		updated_at = excluded.updated_at,
		version = excluded.version,
		updated_by = excluded.updated_by,
		deleted_at = excluded.deleted_at
	`
	_, err = db.ExecContext(ctx, query,
		p.ID, p.Name, p.Description, p.Color, p.Order, p.ConversationCount,
		formatTimePtr(p.LastActivityAt), p.Summary, string(metadata),
		formatTime(p.CreatedAt), formatTime(p.UpdatedAt), p.Version,
		p.UpdatedBy, formatTimePtr(p.DeletedAt))
	if err != nil {
		return fmt.Errorf("failed to upsert project %s: %w", p.ID, err)
	}
	return nil
}

// GetConversation returns a conversation by id, or sql.ErrNoRows.
func (s *Store) GetConversation(ctx context.Context, id string) (model.Conversation, error) {
	row := s.conn.QueryRowContext(ctx, `
		SELECT id, name, model, project_id, history, summary, tags, metadata,
		       created_at, updated_at, version, updated_by, deleted_at
		FROM conversations WHERE id = ?`, id)
	return scanConversation(row)
}

// ListConversations returns all conversations ordered by id.
func (s *Store) ListConversations(ctx context.Context) ([]model.Conversation, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT id, name, model, project_id, history, summary, tags, metadata,
		       created_at, updated_at, version, updated_by, deleted_at
		FROM conversations ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	var out []model.Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ListProjects returns all projects ordered by their display order.
func (s *Store) ListProjects(ctx context.Context) ([]model.Project, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT id, name, description, color, sort_order, conversation_count,
		       last_activity_at, summary, metadata, created_at, updated_at,
		       version, updated_by, deleted_at
		FROM projects ORDER BY sort_order, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	var out []model.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// CountConversations returns the number of stored conversations.
func (s *Store) CountConversations(ctx context.Context) (int, error) {
	var n int
	err := s.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM conversations`).Scan(&n)
	return n, err
}

// CountProjects returns the number of stored projects.
func (s *Store) CountProjects(ctx context.Context) (int, error) {
	var n int
	err := s.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM projects`).Scan(&n)
	return n, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner) (model.Conversation, error) {
	var c model.Conversation
	var modelName, projectID, summary sql.NullString
	var history, tags, metadata, updatedBy sql.NullString
	var createdAt, updatedAt, deletedAt sql.NullString
	err := row.Scan(&c.ID, &c.Name, &modelName, &projectID, &history, &summary,
		&tags, &metadata, &createdAt, &updatedAt, &c.Version, &updatedBy, &deletedAt)
	if err != nil {
		return model.Conversation{}, err
	}
	c.Model = modelName.String
	c.ProjectID = projectID.String
	c.Summary = summary.String
	c.UpdatedBy = updatedBy.String
	if history.Valid && history.String != "" {
		if err := json.Unmarshal([]byte(history.String), &c.History); err != nil {
			return model.Conversation{}, fmt.Errorf("failed to parse history for %s: %w", c.ID, err)
		}
	}
	if tags.Valid && tags.String != "" && tags.String != "null" {
		if err := json.Unmarshal([]byte(tags.String), &c.Tags); err != nil {
			return model.Conversation{}, fmt.Errorf("failed to parse tags for %s: %w", c.ID, err)
		}
	}
	if metadata.Valid && metadata.String != "" && metadata.String != "null" {
		if err := json.Unmarshal([]byte(metadata.String), &c.Metadata); err != nil {
			return model.Conversation{}, fmt.Errorf("failed to parse metadata for %s: %w", c.ID, err)
		}
	}
	c.CreatedAt = parseTime(createdAt.String)
	c.UpdatedAt = parseTime(updatedAt.String)
	c.DeletedAt = parseTimePtr(deletedAt)
	return c, nil
}

func scanProject(row rowScanner) (model.Project, error) {
	var p model.Project
	var description, color, summary sql.NullString
	var lastActivityAt, metadata sql.NullString
	var updatedBy, createdAt, updatedAt, deletedAt sql.NullString
	err := row.Scan(&p.ID, &p.Name, &description, &color, &p.Order,
		&p.ConversationCount, &lastActivityAt, &summary, &metadata,
		&createdAt, &updatedAt, &p.Version, &updatedBy, &deletedAt)
	if err != nil {
		return model.Project{}, err
	}
	p.Description = description.String
	p.Color = color.String
	p.Summary = summary.String
	p.UpdatedBy = updatedBy.String
	if metadata.Valid && metadata.String != "" && metadata.String != "null" {
		if err := json.Unmarshal([]byte(metadata.String), &p.Metadata); err != nil {
			return model.Project{}, fmt.Errorf("failed to parse metadata for %s: %w", p.ID, err)
		}
	}
	p.LastActivityAt = parseTimePtr(lastActivityAt)
	p.CreatedAt = parseTime(createdAt.String)
	p.UpdatedAt = parseTime(updatedAt.String)
	p.DeletedAt = parseTimePtr(deletedAt)
	return p, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func parseTimePtr(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t := parseTime(s.String)
	if t.IsZero() {
		return nil
	}
	return &t
}
