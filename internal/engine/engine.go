package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/Burtson-Labs/bandit-sync/internal/model"
	"github.com/Burtson-Labs/bandit-sync/internal/protocol"
	"github.com/Burtson-Labs/bandit-sync/internal/store"
)

// Status is the engine's sync state.
type Status string

const (
	// StatusDisabled means no gateway is configured, no auth token is
	// present, or the user turned sync off.
	StatusDisabled Status = "disabled"
	// StatusIdle means the engine is ready with no operation in progress.
	StatusIdle Status = "idle"
	// StatusSyncing means a sync exchange is in flight.
	StatusSyncing Status = "syncing"
	// StatusError means the last attempt failed or an oversized
	// conversation blocks sync.
	StatusError Status = "error"
)

var (
	errNoGateway = errors.New("sync gateway URL is not configured")
	errNoToken   = errors.New("not signed in: missing auth token")
)

// Gateway is the protocol surface the engine needs. *protocol.Client
// satisfies it; tests substitute stubs.
type Gateway interface {
	FetchPreference(ctx context.Context) (*protocol.SyncPreferenceDTO, error)
	UpdatePreference(ctx context.Context, update protocol.PreferenceUpdate) (*protocol.SyncPreferenceDTO, error)
	Sync(ctx context.Context, req protocol.SyncRequest) (*protocol.SyncResponse, error)
}

// Options configures an Engine.
type Options struct {
	// GatewayURL and Token are the sync preconditions; with either absent
	// the engine settles in StatusDisabled without error.
	GatewayURL string
	Token      string

	// Client overrides the gateway client built from GatewayURL/Token.
	Client Gateway

	// Timezone is the IANA timezone string sent with each sync request.
	// Defaults to the host timezone.
	Timezone string

	DebounceInterval time.Duration
	PriorityInterval time.Duration

	Logger *slog.Logger
}

// State is a read-only snapshot of the engine for status surfaces.
type State struct {
	Status     Status     `json:"status"`
	LastError  string     `json:"lastError,omitempty"`
	DeviceID   string     `json:"deviceId"`
	Cursor     string     `json:"cursor,omitempty"`
	LastSyncAt *time.Time `json:"lastSyncAt,omitempty"`

	SyncEnabled                   bool `json:"syncEnabled"`
	KeepLocalOnly                 bool `json:"keepLocalOnly"`
	AdvancedVectorFeaturesEnabled bool `json:"advancedVectorFeaturesEnabled"`
	HasCompletedInitialUpload     bool `json:"hasCompletedInitialUpload"`

	PendingConversationUpserts int `json:"pendingConversationUpserts"`
	PendingConversationDeletes int `json:"pendingConversationDeletes"`
	PendingProjectUpserts      int `json:"pendingProjectUpserts"`
	PendingProjectDeletes      int `json:"pendingProjectDeletes"`

	Conflicts              protocol.Conflicts `json:"conflicts"`
	WarningConversations   []string           `json:"warningConversations,omitempty"`
	OversizedConversations []string           `json:"oversizedConversations,omitempty"`

	ServerConversationCount int `json:"serverConversationCount"`
	ServerProjectCount      int `json:"serverProjectCount"`
}

// Engine owns the sync state machine and coordinates the tracker,
// scheduler, size guard, local store, and gateway client. All mutable
// state lives on the struct; there is no package-level state.
type Engine struct {
	store    *store.Store
	client   Gateway
	logger   *slog.Logger
	tracker  *Tracker
	sched    *scheduler
	timezone string

	gatewayURL string
	token      string

	mu          sync.Mutex
	initialized bool
	deviceID    string
	status      Status
	lastError   string
	cursor      string
	lastSyncAt  *time.Time
	pref        model.SyncPreference
	conflicts   protocol.Conflicts
	warnings    []string
	oversized   []string

	initialUploadDone bool
	serverConvTotal   int
	serverProjTotal   int

	onChange func(State)
}

// New creates an Engine over the given store and subscribes to its change
// streams. Call Initialize before relying on sync behavior.
func New(st *store.Store, opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	client := opts.Client
	if client == nil {
		client = protocol.NewClient(nil, opts.GatewayURL, opts.Token)
	}
	tz := opts.Timezone
	if tz == "" {
		tz = localTimezone()
	}

	e := &Engine{
		store:      st,
		client:     client,
		logger:     logger,
		timezone:   tz,
		gatewayURL: strings.TrimSpace(opts.GatewayURL),
		token:      strings.TrimSpace(opts.Token),
		status:     StatusDisabled,
	}
	e.sched = newScheduler(opts.DebounceInterval, opts.PriorityInterval,
		e.syncEnabled, e.syncing, e.scheduledRun)
	e.tracker = NewTracker(e.sched.Schedule)

	st.SubscribeConversations(e.tracker.ObserveConversations)
	st.SubscribeProjects(e.tracker.ObserveProjects)

	return e
}

// Close stops the auto-sync scheduler. In-flight exchanges are not
// aborted; they settle on their own.
func (e *Engine) Close() {
	e.sched.Stop()
}

// SetOnChange registers a callback invoked with a state snapshot after
// each status transition. Used by the dashboard.
func (e *Engine) SetOnChange(fn func(State)) {
	e.mu.Lock()
	e.onChange = fn
	e.mu.Unlock()
}

// FlagConversationUpsert queues a conversation for upload immediately,
// without waiting for the store's change emission.
func (e *Engine) FlagConversationUpsert(id string) { e.tracker.FlagConversationUpsert(id) }

// FlagConversationDelete queues a conversation delete immediately.
func (e *Engine) FlagConversationDelete(id string) { e.tracker.FlagConversationDelete(id) }

// FlagProjectUpsert queues a project for upload immediately.
func (e *Engine) FlagProjectUpsert(id string) { e.tracker.FlagProjectUpsert(id) }

// FlagProjectDelete queues a project delete immediately.
func (e *Engine) FlagProjectDelete(id string) { e.tracker.FlagProjectDelete(id) }

// State returns a snapshot of the engine state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stateLocked()
}

func (e *Engine) stateLocked() State {
	pending := e.tracker.Pending()
	return State{
		Status:                        e.status,
		LastError:                     e.lastError,
		DeviceID:                      e.deviceID,
		Cursor:                        e.cursor,
		LastSyncAt:                    e.lastSyncAt,
		SyncEnabled:                   e.pref.SyncEnabled,
		KeepLocalOnly:                 e.pref.KeepLocalOnly,
		AdvancedVectorFeaturesEnabled: e.pref.AdvancedVectorFeaturesEnabled,
		HasCompletedInitialUpload:     e.initialUploadDone,
		PendingConversationUpserts:    len(pending.ConversationUpserts),
		PendingConversationDeletes:    len(pending.ConversationDeletes),
		PendingProjectUpserts:         len(pending.ProjectUpserts),
		PendingProjectDeletes:         len(pending.ProjectDeletes),
		Conflicts:                     e.conflicts,
		WarningConversations:          append([]string(nil), e.warnings...),
		OversizedConversations:        append([]string(nil), e.oversized...),
		ServerConversationCount:       e.serverConvTotal,
		ServerProjectCount:            e.serverProjTotal,
	}
}

func (e *Engine) syncEnabled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pref.SyncEnabled
}

func (e *Engine) syncing() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status == StatusSyncing
}

func (e *Engine) scheduledRun() {
	if err := e.RunSync(context.Background(), false); err != nil {
		e.logger.Warn("scheduled sync failed", "error", err)
	}
}

func (e *Engine) notifyChange() {
	e.mu.Lock()
	fn := e.onChange
	var snap State
	if fn != nil {
		snap = e.stateLocked()
	}
	e.mu.Unlock()
	if fn != nil {
		fn(snap)
	}
}

func (e *Engine) setError(msg string) {
	e.mu.Lock()
	e.status = StatusError
	e.lastError = msg
	e.mu.Unlock()
	e.notifyChange()
}

// Initialize prepares the engine for syncing: waits for local hydration,
// loads persisted sync metadata and device identity, fetches the remote
// preference, applies the new-device cursor reset when needed, and runs a
// forced sync when the preference says sync is on.
//
// Idempotent; the second and later calls return immediately. Failures are
// recorded as engine state, not returned: a client must come up even when
// the gateway is unreachable.
func (e *Engine) Initialize(ctx context.Context) error {
	e.mu.Lock()
	if e.initialized {
		e.mu.Unlock()
		return nil
	}
	e.initialized = true
	gateway, token := e.gatewayURL, e.token
	e.mu.Unlock()

	if gateway == "" || token == "" {
		e.mu.Lock()
		e.status = StatusDisabled
		e.mu.Unlock()
		e.notifyChange()
		return nil
	}

	if err := e.waitHydration(ctx); err != nil {
		return err
	}

	// Seed engine state from the persisted metadata.
	meta, err := e.store.LoadMeta(ctx)
	if err != nil {
		e.setError(err.Error())
		return nil
	}
	deviceID := e.store.EnsureDeviceID(ctx)

	e.mu.Lock()
	e.deviceID = deviceID
	e.cursor = meta.Cursor
	e.lastSyncAt = meta.LastSyncAt
	e.initialUploadDone = meta.InitialUploadDone
	e.pref = model.SyncPreference{
		SyncEnabled:                   meta.SyncEnabled,
		LastSyncAt:                    meta.LastSyncAt,
		Cursor:                        meta.Cursor,
		LastDeviceID:                  meta.LastDeviceID,
		KeepLocalOnly:                 meta.KeepLocalOnly,
		AdvancedVectorFeaturesEnabled: meta.AdvancedVectorFeaturesEnabled,
	}
	e.mu.Unlock()

	// Establish the tracker baseline before tracking turns on.
	if err := e.resnapshotTracker(ctx); err != nil {
		e.setError(err.Error())
		return nil
	}
	e.tracker.SetHydrated(true)

	pref, err := e.client.FetchPreference(ctx)
	if err != nil {
		e.setError(err.Error())
		return nil
	}
	if err := e.applyPreference(ctx, pref); err != nil {
		e.setError(err.Error())
		return nil
	}

	if e.syncEnabled() {
		if err := e.RunSync(ctx, true); err != nil {
			e.logger.Warn("initial sync failed", "error", err)
		}
	}
	return nil
}

// waitHydration blocks until the store signals hydration-complete.
// Checked eagerly in case hydration already finished.
func (e *Engine) waitHydration(ctx context.Context) error {
	select {
	case <-e.store.Hydrated():
		return nil
	default:
	}
	select {
	case <-e.store.Hydrated():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// applyPreference applies an authoritative preference response. When the
// response's lastDeviceId names a different device, the cursor and
// lastSyncAt are reset regardless of what the preference carried: an
// opaque cursor minted for another device cannot be trusted to resume
// correctly here.
func (e *Engine) applyPreference(ctx context.Context, dto *protocol.SyncPreferenceDTO) error {
	e.mu.Lock()
	cursor := ""
	if dto.Cursor != nil {
		cursor = *dto.Cursor
	}
	lastSyncAt := dto.LastSyncAt

	if dto.LastDeviceID != "" && dto.LastDeviceID != e.deviceID {
		e.logger.Info("preference cursor minted by another device, forcing full re-pull",
			"lastDeviceId", dto.LastDeviceID, "deviceId", e.deviceID)
		cursor = ""
		lastSyncAt = nil
	}

	e.cursor = cursor
	e.lastSyncAt = lastSyncAt
	e.pref = model.SyncPreference{
		SyncEnabled:                   dto.SyncEnabled,
		LastSyncAt:                    lastSyncAt,
		Cursor:                        cursor,
		LastDeviceID:                  dto.LastDeviceID,
		KeepLocalOnly:                 dto.KeepLocalOnly,
		AdvancedVectorFeaturesEnabled: dto.IsAdvancedVectorFeaturesEnabled,
	}
	switch {
	case !dto.SyncEnabled:
		e.status = StatusDisabled
	case e.status == StatusDisabled:
		e.status = StatusIdle
	}
	err := e.persistMetaLocked(ctx)
	e.mu.Unlock()
	e.notifyChange()
	return err
}

// persistMetaLocked writes the current engine state into sync_meta.
// Caller holds e.mu.
func (e *Engine) persistMetaLocked(ctx context.Context) error {
	return e.store.SaveMeta(ctx, store.Meta{
		DeviceID:                      e.deviceID,
		Cursor:                        e.cursor,
		LastSyncAt:                    e.lastSyncAt,
		LastDeviceID:                  e.pref.LastDeviceID,
		SyncEnabled:                   e.pref.SyncEnabled,
		KeepLocalOnly:                 e.pref.KeepLocalOnly,
		AdvancedVectorFeaturesEnabled: e.pref.AdvancedVectorFeaturesEnabled,
		InitialUploadDone:             e.initialUploadDone,
	})
}

// SetSyncEnabled pushes the new preference to the server, applies the echo
// (including new-device handling), and, when turning sync on, clears the
// initial-upload marker so the next sync bootstraps a full snapshot.
func (e *Engine) SetSyncEnabled(ctx context.Context, enabled bool) error {
	e.mu.Lock()
	gateway, token, deviceID := e.gatewayURL, e.token, e.deviceID
	update := protocol.PreferenceUpdate{
		SyncEnabled:                     enabled,
		DeviceID:                        deviceID,
		KeepLocalOnly:                   e.pref.KeepLocalOnly,
		IsAdvancedVectorFeaturesEnabled: e.pref.AdvancedVectorFeaturesEnabled,
	}
	e.mu.Unlock()

	if gateway == "" {
		e.setError(errNoGateway.Error())
		return errNoGateway
	}
	if token == "" {
		e.setError(errNoToken.Error())
		return errNoToken
	}

	pref, err := e.client.UpdatePreference(ctx, update)
	if err != nil {
		e.setError(err.Error())
		return err
	}

	if enabled {
		e.mu.Lock()
		e.initialUploadDone = false
		e.mu.Unlock()
	}
	if err := e.applyPreference(ctx, pref); err != nil {
		e.setError(err.Error())
		return err
	}

	if enabled && e.syncEnabled() {
		return e.RunSync(ctx, true)
	}
	return nil
}

// SetAdvancedVectorFeaturesEnabled toggles whether vector-backed memory
// and knowledge features participate in sync. The error is recorded as
// engine state and also returned so callers can surface it directly.
func (e *Engine) SetAdvancedVectorFeaturesEnabled(ctx context.Context, enabled bool) error {
	e.mu.Lock()
	gateway, token := e.gatewayURL, e.token
	update := protocol.PreferenceUpdate{
		SyncEnabled:                     e.pref.SyncEnabled,
		DeviceID:                        e.deviceID,
		KeepLocalOnly:                   e.pref.KeepLocalOnly,
		IsAdvancedVectorFeaturesEnabled: enabled,
	}
	e.mu.Unlock()

	if gateway == "" {
		e.setError(errNoGateway.Error())
		return errNoGateway
	}
	if token == "" {
		e.setError(errNoToken.Error())
		return errNoToken
	}

	pref, err := e.client.UpdatePreference(ctx, update)
	if err != nil {
		e.setError(err.Error())
		return err
	}
	if err := e.applyPreference(ctx, pref); err != nil {
		e.setError(err.Error())
		return err
	}

	if e.syncEnabled() && enabled {
		return e.RunSync(ctx, true)
	}
	return nil
}

// RunSync performs one full sync exchange with the gateway, including the
// pagination follow-up loop. Aborts silently when sync is disabled and not
// forced, or when another exchange is already in flight. Pending sets are
// left intact on failure so the next attempt resends the same changes.
func (e *Engine) RunSync(ctx context.Context, force bool) error {
	if err := e.waitHydration(ctx); err != nil {
		return err
	}

	e.mu.Lock()
	if (!e.pref.SyncEnabled && !force) || e.status == StatusSyncing {
		e.mu.Unlock()
		return nil
	}
	if e.gatewayURL == "" {
		e.status = StatusError
		e.lastError = errNoGateway.Error()
		e.mu.Unlock()
		e.notifyChange()
		return errNoGateway
	}
	if e.token == "" {
		e.status = StatusError
		e.lastError = errNoToken.Error()
		e.mu.Unlock()
		e.notifyChange()
		return errNoToken
	}
	cursor := e.cursor
	initialUploadDone := e.initialUploadDone
	deviceID := e.deviceID
	e.mu.Unlock()

	// Snapshot the pending sets; changes queued during the exchange stay
	// pending for the next cycle.
	pending := e.tracker.Pending()

	convs, err := e.store.ListConversations(ctx)
	if err != nil {
		e.setError(err.Error())
		return err
	}
	projs, err := e.store.ListProjects(ctx)
	if err != nil {
		e.setError(err.Error())
		return err
	}
	convByID := make(map[string]model.Conversation, len(convs))
	for _, c := range convs {
		convByID[c.ID] = c
	}
	projByID := make(map[string]model.Project, len(projs))
	for _, p := range projs {
		projByID[p.ID] = p
	}

	// Resolve pending ids to current objects. Ids whose objects vanished
	// are dropped; they were deleted and now sit in the delete set.
	var candidates []model.Conversation
	for id := range pending.ConversationUpserts {
		if c, ok := convByID[id]; ok {
			candidates = append(candidates, c)
		}
	}
	var projUpserts []model.Project
	for id := range pending.ProjectUpserts {
		if p, ok := projByID[id]; ok {
			projUpserts = append(projUpserts, p)
		}
	}

	report := AnalyzeConversations(candidates)

	sent := PendingSets{
		ConversationUpserts: make(map[string]struct{}),
		ConversationDeletes: copySet(pending.ConversationDeletes),
		ProjectUpserts:      make(map[string]struct{}),
		ProjectDeletes:      copySet(pending.ProjectDeletes),
	}

	allowed := report.Allowed
	// Bootstrap: a device that enables sync with pre-existing local-only
	// data must upload it once even though nothing is pending.
	if (cursor == "" || !initialUploadDone) && pending.Empty() {
		report = AnalyzeConversations(convs)
		allowed = report.Allowed
		projUpserts = projs
	}

	for _, c := range allowed {
		sent.ConversationUpserts[c.ID] = struct{}{}
	}
	for _, p := range projUpserts {
		sent.ProjectUpserts[p.ID] = struct{}{}
	}

	warnings := report.WarningNames()
	oversized := report.OversizedNames()

	nothingToSend := len(allowed) == 0 && len(projUpserts) == 0 &&
		len(sent.ConversationDeletes) == 0 && len(sent.ProjectDeletes) == 0
	if nothingToSend && !force && cursor == "" {
		e.mu.Lock()
		e.warnings = warnings
		e.oversized = oversized
		if len(oversized) > 0 {
			e.status = StatusError
			e.lastError = oversizedMessage(oversized)
		}
		e.mu.Unlock()
		e.notifyChange()
		return nil
	}

	// Claim the syncing state. Re-checked because another call may have
	// claimed it while the payload was being built.
	e.mu.Lock()
	if e.status == StatusSyncing {
		e.mu.Unlock()
		return nil
	}
	e.status = StatusSyncing
	e.mu.Unlock()
	e.notifyChange()

	req := protocol.SyncRequest{
		DeviceID:       deviceID,
		Timezone:       e.timezone,
		PayloadVersion: protocol.PayloadVersion,
		Changes: protocol.Changes{
			Conversations: protocol.ConversationChanges{
				Upserts: conversationDTOs(allowed),
				Deletes: setToSlice(sent.ConversationDeletes),
			},
			Projects: protocol.ProjectChanges{
				Upserts: projectDTOs(projUpserts),
				Deletes: setToSlice(sent.ProjectDeletes),
			},
		},
	}
	if cursor != "" {
		req.Cursor = &cursor
	}

	resp, err := e.client.Sync(ctx, req)
	if err != nil {
		e.setError(err.Error())
		return err
	}

	conflicts := resp.Conflicts
	if err := e.applyServerResults(ctx, resp); err != nil {
		e.setError(err.Error())
		return err
	}
	latestCursor := cursorToken(resp.NextCursor, cursor)

	// Pagination: follow-up pages carry no new changes, only the cursor.
	// A later page failing keeps earlier pages applied; partial progress
	// beats all-or-nothing here because upserts are idempotent.
	for resp.HasMore {
		pageReq := protocol.SyncRequest{
			DeviceID:       deviceID,
			Timezone:       e.timezone,
			PayloadVersion: protocol.PayloadVersion,
		}
		if latestCursor != "" {
			cur := latestCursor
			pageReq.Cursor = &cur
		}
		resp, err = e.client.Sync(ctx, pageReq)
		if err != nil {
			e.setError(err.Error())
			return err
		}
		if err := e.applyServerResults(ctx, resp); err != nil {
			e.setError(err.Error())
			return err
		}
		conflicts.ConversationConflicts = append(conflicts.ConversationConflicts, resp.Conflicts.ConversationConflicts...)
		conflicts.ProjectConflicts = append(conflicts.ProjectConflicts, resp.Conflicts.ProjectConflicts...)
		latestCursor = cursorToken(resp.NextCursor, latestCursor)
	}

	// Only ids actually included in the sent payload are pruned.
	e.tracker.RemoveSent(sent)

	now := time.Now().UTC()
	e.mu.Lock()
	e.cursor = latestCursor
	e.lastSyncAt = &now
	e.pref.LastSyncAt = &now
	e.pref.LastDeviceID = deviceID
	e.conflicts = conflicts
	e.warnings = warnings
	e.oversized = oversized
	e.serverConvTotal = resp.Conversations.TotalCount
	e.serverProjTotal = resp.Projects.TotalCount
	e.initialUploadDone = true
	if len(oversized) > 0 {
		e.status = StatusError
		e.lastError = oversizedMessage(oversized)
	} else {
		e.status = StatusIdle
		e.lastError = ""
	}
	persistErr := e.persistMetaLocked(ctx)
	e.mu.Unlock()
	e.notifyChange()

	if persistErr != nil {
		e.logger.Warn("failed to persist sync metadata", "error", persistErr)
	}
	e.logger.Info("sync complete",
		"conversationsSent", len(sent.ConversationUpserts),
		"conversationDeletes", len(sent.ConversationDeletes),
		"projectsSent", len(sent.ProjectUpserts),
		"projectDeletes", len(sent.ProjectDeletes),
		"oversized", len(oversized))
	return nil
}

// applyServerResults applies one response page to the local store with
// tracking suppressed. Order matters: projects land before the
// conversations that reference them, and upserts land before deletes.
func (e *Engine) applyServerResults(ctx context.Context, resp *protocol.SyncResponse) error {
	e.tracker.SetSuppressed(true)
	defer e.tracker.SetSuppressed(false)

	if len(resp.Projects.Upserts) > 0 {
		projs := make([]model.Project, len(resp.Projects.Upserts))
		for i, dto := range resp.Projects.Upserts {
			projs[i] = protocol.ProjectFromDTO(dto)
		}
		if err := e.store.ApplyRemoteProjects(ctx, projs); err != nil {
			return fmt.Errorf("failed to apply project upserts: %w", err)
		}
	}
	if len(resp.Conversations.Upserts) > 0 {
		convs := make([]model.Conversation, len(resp.Conversations.Upserts))
		for i, dto := range resp.Conversations.Upserts {
			convs[i] = protocol.ConversationFromDTO(dto)
		}
		if err := e.store.ApplyRemoteConversations(ctx, convs); err != nil {
			return fmt.Errorf("failed to apply conversation upserts: %w", err)
		}
	}
	if err := e.store.RemoveProjectsByID(ctx, resp.Projects.Deletes); err != nil {
		return fmt.Errorf("failed to apply project deletes: %w", err)
	}
	if err := e.store.RemoveConversationsByID(ctx, resp.Conversations.Deletes); err != nil {
		return fmt.Errorf("failed to apply conversation deletes: %w", err)
	}

	return e.resnapshotTracker(ctx)
}

func (e *Engine) resnapshotTracker(ctx context.Context) error {
	convs, err := e.store.ListConversations(ctx)
	if err != nil {
		return err
	}
	projs, err := e.store.ListProjects(ctx)
	if err != nil {
		return err
	}
	e.tracker.Resnapshot(convs, projs)
	return nil
}

func oversizedMessage(names []string) string {
	return fmt.Sprintf("conversations too large to sync: %s", strings.Join(names, ", "))
}

func cursorToken(next *protocol.Cursor, fallback string) string {
	if next == nil || next.Token == "" {
		return fallback
	}
	return next.Token
}

func conversationDTOs(convs []model.Conversation) []protocol.ConversationRecordDTO {
	out := make([]protocol.ConversationRecordDTO, len(convs))
	for i, c := range convs {
		out[i] = protocol.ConversationToDTO(c)
	}
	return out
}

func projectDTOs(projs []model.Project) []protocol.ProjectRecordDTO {
	out := make([]protocol.ProjectRecordDTO, len(projs))
	for i, p := range projs {
		out[i] = protocol.ProjectToDTO(p)
	}
	return out
}

func setToSlice(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}

func localTimezone() string {
	if tz := os.Getenv("TZ"); tz != "" {
		return tz
	}
	if name := time.Local.String(); name != "" && name != "Local" {
		return name
	}
	return "UTC"
}
