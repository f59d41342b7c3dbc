package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Burtson-Labs/bandit-sync/internal/model"
	"github.com/Burtson-Labs/bandit-sync/internal/protocol"
	"github.com/Burtson-Labs/bandit-sync/internal/store"
)

// fakeGateway is an in-memory Gateway with scriptable responses.
type fakeGateway struct {
	mu sync.Mutex

	pref      protocol.SyncPreferenceDTO
	prefErr   error
	updateErr error

	syncFn func(req protocol.SyncRequest) (*protocol.SyncResponse, error)

	fetchCalls  int
	updateCalls int
	syncReqs    []protocol.SyncRequest
}

func (g *fakeGateway) FetchPreference(ctx context.Context) (*protocol.SyncPreferenceDTO, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.fetchCalls++
	if g.prefErr != nil {
		return nil, g.prefErr
	}
	pref := g.pref
	return &pref, nil
}

func (g *fakeGateway) UpdatePreference(ctx context.Context, update protocol.PreferenceUpdate) (*protocol.SyncPreferenceDTO, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.updateCalls++
	if g.updateErr != nil {
		return nil, g.updateErr
	}
	g.pref.SyncEnabled = update.SyncEnabled
	g.pref.KeepLocalOnly = update.KeepLocalOnly
	g.pref.IsAdvancedVectorFeaturesEnabled = update.IsAdvancedVectorFeaturesEnabled
	pref := g.pref
	return &pref, nil
}

func (g *fakeGateway) Sync(ctx context.Context, req protocol.SyncRequest) (*protocol.SyncResponse, error) {
	g.mu.Lock()
	fn := g.syncFn
	g.syncReqs = append(g.syncReqs, req)
	g.mu.Unlock()
	if fn != nil {
		return fn(req)
	}
	return &protocol.SyncResponse{
		NextCursor: &protocol.Cursor{Token: "cursor-1"},
	}, nil
}

func (g *fakeGateway) requests() []protocol.SyncRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]protocol.SyncRequest(nil), g.syncReqs...)
}

func (g *fakeGateway) totalCalls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.fetchCalls + g.updateCalls + len(g.syncReqs)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestEngine opens a fresh store and builds an engine over it. The
// debounce interval is huge so background timers never interfere.
func newTestEngine(t *testing.T, gw Gateway, gatewayURL string) (*Engine, *store.Store) {
	t.Helper()

	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"), testLogger())
	if err != nil {
		t.Fatalf("failed to open test store: %v", err)
	}

	eng := New(st, Options{
		GatewayURL:       gatewayURL,
		Token:            "test-token",
		Client:           gw,
		Timezone:         "UTC",
		DebounceInterval: time.Hour,
		PriorityInterval: time.Hour,
		Logger:           testLogger(),
	})
	t.Cleanup(func() {
		eng.Close()
		if err := st.Close(); err != nil {
			t.Errorf("failed to close store: %v", err)
		}
	})

	if err := st.Hydrate(context.Background()); err != nil {
		t.Fatalf("failed to hydrate store: %v", err)
	}
	return eng, st
}

func putConversation(t *testing.T, st *store.Store, id, name string) {
	t.Helper()
	err := st.PutConversation(context.Background(), model.Conversation{ID: id, Name: name})
	if err != nil {
		t.Fatalf("failed to put conversation %s: %v", id, err)
	}
}

func TestInitializeWithoutGatewayStaysDisabled(t *testing.T) {
	gw := &fakeGateway{pref: protocol.SyncPreferenceDTO{SyncEnabled: true}}
	eng, _ := newTestEngine(t, gw, "")

	if err := eng.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize failed: %v", err)
	}

	state := eng.State()
	if state.Status != StatusDisabled {
		t.Fatalf("expected disabled, got %s", state.Status)
	}
	if gw.totalCalls() != 0 {
		t.Fatalf("disabled engine made %d network calls", gw.totalCalls())
	}
}

func TestInitializeBootstrapsFullUpload(t *testing.T) {
	gw := &fakeGateway{pref: protocol.SyncPreferenceDTO{SyncEnabled: true}}
	eng, st := newTestEngine(t, gw, "https://gw.example")
	ctx := context.Background()

	putConversation(t, st, "c1", "first")
	putConversation(t, st, "c2", "second")
	if err := st.PutProject(ctx, model.Project{ID: "p1", Name: "work"}); err != nil {
		t.Fatalf("failed to put project: %v", err)
	}

	if err := eng.Initialize(ctx); err != nil {
		t.Fatalf("initialize failed: %v", err)
	}

	reqs := gw.requests()
	if len(reqs) != 1 {
		t.Fatalf("expected 1 sync request, got %d", len(reqs))
	}
	req := reqs[0]
	if req.Cursor != nil {
		t.Fatalf("first sync should carry no cursor, got %q", *req.Cursor)
	}
	if len(req.Changes.Conversations.Upserts) != 2 {
		t.Fatalf("expected full conversation upload, got %d upserts", len(req.Changes.Conversations.Upserts))
	}
	if len(req.Changes.Projects.Upserts) != 1 {
		t.Fatalf("expected full project upload, got %d upserts", len(req.Changes.Projects.Upserts))
	}
	if req.PayloadVersion != protocol.PayloadVersion {
		t.Fatalf("wrong payload version %d", req.PayloadVersion)
	}
	if req.DeviceID == "" {
		t.Fatal("sync request missing device id")
	}

	state := eng.State()
	if state.Status != StatusIdle {
		t.Fatalf("expected idle after sync, got %s (%s)", state.Status, state.LastError)
	}
	if state.Cursor != "cursor-1" {
		t.Fatalf("cursor not advanced: %q", state.Cursor)
	}
	if !state.HasCompletedInitialUpload {
		t.Fatal("initial upload not marked complete")
	}
	if state.PendingConversationUpserts != 0 {
		t.Fatalf("%d upserts still pending after successful sync", state.PendingConversationUpserts)
	}

	meta, err := st.LoadMeta(ctx)
	if err != nil {
		t.Fatalf("failed to load meta: %v", err)
	}
	if meta.Cursor != "cursor-1" || !meta.InitialUploadDone {
		t.Fatalf("meta not persisted: %+v", meta)
	}
}

func TestInitializeResetsCursorForNewDevice(t *testing.T) {
	staleCursor := "stale-cursor"
	gw := &fakeGateway{pref: protocol.SyncPreferenceDTO{
		SyncEnabled:  true,
		Cursor:       &staleCursor,
		LastDeviceID: "some-other-device",
	}}
	eng, st := newTestEngine(t, gw, "https://gw.example")
	ctx := context.Background()

	if err := eng.Initialize(ctx); err != nil {
		t.Fatalf("initialize failed: %v", err)
	}

	reqs := gw.requests()
	if len(reqs) != 1 {
		t.Fatalf("expected 1 sync request, got %d", len(reqs))
	}
	if reqs[0].Cursor != nil {
		t.Fatalf("new device must start without a cursor, got %q", *reqs[0].Cursor)
	}

	meta, err := st.LoadMeta(ctx)
	if err != nil {
		t.Fatalf("failed to load meta: %v", err)
	}
	if meta.DeviceID == "some-other-device" {
		t.Fatal("device id was overwritten by the preference")
	}
}

func TestRunSyncAppliesServerChanges(t *testing.T) {
	gw := &fakeGateway{pref: protocol.SyncPreferenceDTO{SyncEnabled: true}}
	eng, st := newTestEngine(t, gw, "https://gw.example")
	ctx := context.Background()

	putConversation(t, st, "local-1", "to be deleted remotely")

	now := time.Now().UTC()
	gw.syncFn = func(req protocol.SyncRequest) (*protocol.SyncResponse, error) {
		return &protocol.SyncResponse{
			NextCursor: &protocol.Cursor{Token: "cursor-2"},
			Conversations: protocol.ConversationBatch{
				Upserts: []protocol.ConversationRecordDTO{{
					ID: "remote-1", Name: "from server", CreatedAt: now, UpdatedAt: now,
				}},
				Deletes:    []string{"local-1"},
				TotalCount: 1,
			},
			Projects: protocol.ProjectBatch{
				Upserts: []protocol.ProjectRecordDTO{{
					ID: "remote-p", Name: "server project", CreatedAt: now, UpdatedAt: now,
				}},
				TotalCount: 1,
			},
		}, nil
	}

	if err := eng.Initialize(ctx); err != nil {
		t.Fatalf("initialize failed: %v", err)
	}

	if _, err := st.GetConversation(ctx, "remote-1"); err != nil {
		t.Fatalf("server upsert not applied: %v", err)
	}
	if _, err := st.GetConversation(ctx, "local-1"); err == nil {
		t.Fatal("server delete not applied")
	}

	// Server writes must not boomerang back into the pending sets.
	state := eng.State()
	if state.PendingConversationUpserts != 0 || state.PendingConversationDeletes != 0 ||
		state.PendingProjectUpserts != 0 || state.PendingProjectDeletes != 0 {
		t.Fatalf("server writes re-queued for upload: %+v", state)
	}
	if state.ServerConversationCount != 1 || state.ServerProjectCount != 1 {
		t.Fatalf("server totals not recorded: %+v", state)
	}
}

func TestRunSyncFollowsPagination(t *testing.T) {
	gw := &fakeGateway{pref: protocol.SyncPreferenceDTO{SyncEnabled: true}}
	eng, st := newTestEngine(t, gw, "https://gw.example")
	ctx := context.Background()

	now := time.Now().UTC()
	page := 0
	gw.syncFn = func(req protocol.SyncRequest) (*protocol.SyncResponse, error) {
		page++
		switch page {
		case 1:
			return &protocol.SyncResponse{
				NextCursor: &protocol.Cursor{Token: "page-1"},
				Conversations: protocol.ConversationBatch{
					Upserts:    []protocol.ConversationRecordDTO{{ID: "r1", Name: "one", CreatedAt: now, UpdatedAt: now}},
					TotalCount: 2,
				},
				HasMore: true,
			}, nil
		default:
			return &protocol.SyncResponse{
				NextCursor: &protocol.Cursor{Token: "page-2"},
				Conversations: protocol.ConversationBatch{
					Upserts:    []protocol.ConversationRecordDTO{{ID: "r2", Name: "two", CreatedAt: now, UpdatedAt: now}},
					TotalCount: 2,
				},
			}, nil
		}
	}

	if err := eng.Initialize(ctx); err != nil {
		t.Fatalf("initialize failed: %v", err)
	}

	reqs := gw.requests()
	if len(reqs) != 2 {
		t.Fatalf("expected 2 sync requests, got %d", len(reqs))
	}
	if reqs[1].Cursor == nil || *reqs[1].Cursor != "page-1" {
		t.Fatalf("follow-up page did not carry the intermediate cursor: %+v", reqs[1].Cursor)
	}
	if len(reqs[1].Changes.Conversations.Upserts) != 0 || len(reqs[1].Changes.Conversations.Deletes) != 0 {
		t.Fatal("follow-up page must carry empty change sets")
	}

	for _, id := range []string{"r1", "r2"} {
		if _, err := st.GetConversation(ctx, id); err != nil {
			t.Fatalf("page record %s not applied: %v", id, err)
		}
	}
	if state := eng.State(); state.Cursor != "page-2" {
		t.Fatalf("cursor should end at the last page token, got %q", state.Cursor)
	}
}

func TestRunSyncErrorKeepsPendingChanges(t *testing.T) {
	gw := &fakeGateway{pref: protocol.SyncPreferenceDTO{SyncEnabled: true}}
	eng, st := newTestEngine(t, gw, "https://gw.example")
	ctx := context.Background()

	if err := eng.Initialize(ctx); err != nil {
		t.Fatalf("initialize failed: %v", err)
	}

	putConversation(t, st, "pending-1", "queued change")

	gw.syncFn = func(req protocol.SyncRequest) (*protocol.SyncResponse, error) {
		return nil, errors.New("gateway unavailable")
	}
	if err := eng.RunSync(ctx, true); err == nil {
		t.Fatal("expected sync error")
	}

	state := eng.State()
	if state.Status != StatusError {
		t.Fatalf("expected error status, got %s", state.Status)
	}
	if state.PendingConversationUpserts != 1 {
		t.Fatalf("pending change lost on failure: %+v", state)
	}

	// The retry delivers it (at-least-once).
	gw.syncFn = nil
	if err := eng.RunSync(ctx, true); err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	state = eng.State()
	if state.Status != StatusIdle || state.PendingConversationUpserts != 0 {
		t.Fatalf("retry did not clear pending state: %+v", state)
	}
}

func TestRunSyncRetainsChangesQueuedDuringExchange(t *testing.T) {
	gw := &fakeGateway{pref: protocol.SyncPreferenceDTO{SyncEnabled: true}}
	var eng *Engine
	var st *store.Store
	ctx := context.Background()

	queuedLate := false
	gw.syncFn = func(req protocol.SyncRequest) (*protocol.SyncResponse, error) {
		if !queuedLate {
			queuedLate = true
			putConversation(t, st, "late-1", "edited mid-sync")
		}
		return &protocol.SyncResponse{NextCursor: &protocol.Cursor{Token: "c"}}, nil
	}

	eng, st = newTestEngine(t, gw, "https://gw.example")
	if err := eng.Initialize(ctx); err != nil {
		t.Fatalf("initialize failed: %v", err)
	}

	state := eng.State()
	if state.PendingConversationUpserts != 1 {
		t.Fatalf("change queued during sync was lost: %+v", state)
	}
}

func TestSetSyncEnabledPushesPreferenceAndBootstraps(t *testing.T) {
	gw := &fakeGateway{pref: protocol.SyncPreferenceDTO{SyncEnabled: false}}
	eng, st := newTestEngine(t, gw, "https://gw.example")
	ctx := context.Background()

	putConversation(t, st, "c1", "pre-existing")

	if err := eng.Initialize(ctx); err != nil {
		t.Fatalf("initialize failed: %v", err)
	}
	if len(gw.requests()) != 0 {
		t.Fatal("engine synced while the preference says disabled")
	}

	if err := eng.SetSyncEnabled(ctx, true); err != nil {
		t.Fatalf("enable failed: %v", err)
	}
	if gw.updateCalls != 1 {
		t.Fatalf("expected 1 preference update, got %d", gw.updateCalls)
	}

	reqs := gw.requests()
	if len(reqs) != 1 {
		t.Fatalf("expected bootstrap sync after enable, got %d requests", len(reqs))
	}
	if len(reqs[0].Changes.Conversations.Upserts) != 1 {
		t.Fatal("bootstrap sync did not upload local data")
	}
}

func TestSetAdvancedVectorFeaturesPushesPreference(t *testing.T) {
	gw := &fakeGateway{pref: protocol.SyncPreferenceDTO{SyncEnabled: false}}
	eng, _ := newTestEngine(t, gw, "https://gw.example")
	ctx := context.Background()

	if err := eng.Initialize(ctx); err != nil {
		t.Fatalf("initialize failed: %v", err)
	}

	if err := eng.SetAdvancedVectorFeaturesEnabled(ctx, true); err != nil {
		t.Fatalf("enable failed: %v", err)
	}
	if gw.updateCalls != 1 {
		t.Fatalf("expected 1 preference update, got %d", gw.updateCalls)
	}
	if !gw.pref.IsAdvancedVectorFeaturesEnabled {
		t.Fatal("flag not pushed to the gateway")
	}
	if gw.pref.SyncEnabled {
		t.Fatal("toggling the flag must not flip sync on")
	}
	if len(gw.requests()) != 0 {
		t.Fatal("flag change triggered a sync while sync is disabled")
	}
	if state := eng.State(); state.Status == StatusError {
		t.Fatalf("unexpected error state: %s", state.LastError)
	}
}

func TestSetAdvancedVectorFeaturesSyncsWhenBothEnabled(t *testing.T) {
	gw := &fakeGateway{pref: protocol.SyncPreferenceDTO{SyncEnabled: true}}
	eng, _ := newTestEngine(t, gw, "https://gw.example")
	ctx := context.Background()

	if err := eng.Initialize(ctx); err != nil {
		t.Fatalf("initialize failed: %v", err)
	}
	before := len(gw.requests())

	if err := eng.SetAdvancedVectorFeaturesEnabled(ctx, true); err != nil {
		t.Fatalf("enable failed: %v", err)
	}
	if got := len(gw.requests()) - before; got != 1 {
		t.Fatalf("expected exactly one sync after enabling the flag, got %d", got)
	}

	// Turning it off pushes the preference but does not resync.
	before = len(gw.requests())
	if err := eng.SetAdvancedVectorFeaturesEnabled(ctx, false); err != nil {
		t.Fatalf("disable failed: %v", err)
	}
	if gw.updateCalls != 2 {
		t.Fatalf("expected 2 preference updates, got %d", gw.updateCalls)
	}
	if got := len(gw.requests()) - before; got != 0 {
		t.Fatalf("disabling the flag triggered %d syncs", got)
	}
}

func TestSetAdvancedVectorFeaturesErrorRecorded(t *testing.T) {
	gw := &fakeGateway{
		pref:      protocol.SyncPreferenceDTO{SyncEnabled: true},
		updateErr: errors.New("gateway unavailable"),
	}
	eng, _ := newTestEngine(t, gw, "https://gw.example")
	ctx := context.Background()

	err := eng.SetAdvancedVectorFeaturesEnabled(ctx, true)
	if err == nil {
		t.Fatal("expected error from failed preference update")
	}
	state := eng.State()
	if state.Status != StatusError {
		t.Fatalf("expected error status, got %s", state.Status)
	}
	if !strings.Contains(state.LastError, "gateway unavailable") {
		t.Fatalf("error not recorded in state: %q", state.LastError)
	}
	if len(gw.requests()) != 0 {
		t.Fatal("sync ran despite the failed preference update")
	}
}

func TestSetAdvancedVectorFeaturesRequiresGateway(t *testing.T) {
	gw := &fakeGateway{}
	eng, _ := newTestEngine(t, gw, "")
	ctx := context.Background()

	err := eng.SetAdvancedVectorFeaturesEnabled(ctx, true)
	if !errors.Is(err, errNoGateway) {
		t.Fatalf("expected missing-gateway error, got %v", err)
	}
	if gw.updateCalls != 0 {
		t.Fatal("preference update attempted without a gateway")
	}
	if state := eng.State(); state.Status != StatusError {
		t.Fatalf("expected error status, got %s", state.Status)
	}
}

func TestRunSyncSkipsWhenDisabledAndNotForced(t *testing.T) {
	gw := &fakeGateway{pref: protocol.SyncPreferenceDTO{SyncEnabled: false}}
	eng, _ := newTestEngine(t, gw, "https://gw.example")
	ctx := context.Background()

	if err := eng.Initialize(ctx); err != nil {
		t.Fatalf("initialize failed: %v", err)
	}
	if err := eng.RunSync(ctx, false); err != nil {
		t.Fatalf("unforced sync errored: %v", err)
	}
	if len(gw.requests()) != 0 {
		t.Fatal("unforced sync ran while disabled")
	}
}

func TestOversizedConversationBlocksItselfOnly(t *testing.T) {
	gw := &fakeGateway{pref: protocol.SyncPreferenceDTO{SyncEnabled: true}}
	eng, st := newTestEngine(t, gw, "https://gw.example")
	ctx := context.Background()

	big := conversationOfSize(t, "giant", HardSizeLimit)
	if err := st.PutConversation(ctx, big); err != nil {
		t.Fatalf("failed to put oversized conversation: %v", err)
	}
	putConversation(t, st, "small-1", "small")

	if err := eng.Initialize(ctx); err != nil {
		t.Fatalf("initialize failed: %v", err)
	}

	reqs := gw.requests()
	if len(reqs) != 1 {
		t.Fatalf("expected 1 sync request, got %d", len(reqs))
	}
	for _, dto := range reqs[0].Changes.Conversations.Upserts {
		if dto.ID == big.ID {
			t.Fatal("oversized conversation was uploaded")
		}
	}
	if len(reqs[0].Changes.Conversations.Upserts) != 1 {
		t.Fatalf("small conversation should still sync, got %d upserts", len(reqs[0].Changes.Conversations.Upserts))
	}

	state := eng.State()
	if state.Status != StatusError {
		t.Fatalf("oversized conversation should surface as error, got %s", state.Status)
	}
	if !strings.Contains(state.LastError, "giant") {
		t.Fatalf("error does not name the blocked conversation: %q", state.LastError)
	}
	if len(state.OversizedConversations) != 1 || state.OversizedConversations[0] != "giant" {
		t.Fatalf("oversized list wrong: %v", state.OversizedConversations)
	}
}

func TestInitializeIsIdempotent(t *testing.T) {
	gw := &fakeGateway{pref: protocol.SyncPreferenceDTO{SyncEnabled: true}}
	eng, _ := newTestEngine(t, gw, "https://gw.example")
	ctx := context.Background()

	if err := eng.Initialize(ctx); err != nil {
		t.Fatalf("initialize failed: %v", err)
	}
	fetches := gw.fetchCalls
	if err := eng.Initialize(ctx); err != nil {
		t.Fatalf("second initialize failed: %v", err)
	}
	if gw.fetchCalls != fetches {
		t.Fatal("second initialize hit the network")
	}
}
