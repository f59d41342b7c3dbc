// Package engine implements the conversation/project synchronization
// engine: change tracking over the local store, debounced auto-sync
// scheduling, payload size policing, and the cursor-based sync exchange
// with the gateway.
package engine

import (
	"sync"

	"github.com/Burtson-Labs/bandit-sync/internal/model"
)

// fingerprint is the per-record identity used to diff successive store
// snapshots. updated_at alone is not a reliable change signal across all
// mutation paths, so version and a structural length (history length for
// conversations, display order for projects) act as fallback fields.
type fingerprint struct {
	updatedAtMs int64
	version     int64
	length      int
}

func conversationFingerprint(c model.Conversation) fingerprint {
	return fingerprint{
		updatedAtMs: c.UpdatedAt.UnixMilli(),
		version:     c.Version,
		length:      len(c.History),
	}
}

func projectFingerprint(p model.Project) fingerprint {
	return fingerprint{
		updatedAtMs: p.UpdatedAt.UnixMilli(),
		version:     p.Version,
		length:      p.Order,
	}
}

// PendingSets is a point-in-time copy of the four pending-id sets.
type PendingSets struct {
	ConversationUpserts map[string]struct{}
	ConversationDeletes map[string]struct{}
	ProjectUpserts      map[string]struct{}
	ProjectDeletes      map[string]struct{}
}

// Empty reports whether no change is pending in any set.
func (p PendingSets) Empty() bool {
	return len(p.ConversationUpserts) == 0 && len(p.ConversationDeletes) == 0 &&
		len(p.ProjectUpserts) == 0 && len(p.ProjectDeletes) == 0
}

// Tracker converts store change emissions into precise upsert/delete
// intents. It holds the four pending-id sets with the invariant that an id
// is never simultaneously pending upsert and pending delete for the same
// entity type: queuing one evicts the other.
type Tracker struct {
	mu sync.Mutex

	hydrated   bool
	suppressed bool

	convMeta map[string]fingerprint
	projMeta map[string]fingerprint

	convUpserts map[string]struct{}
	convDeletes map[string]struct{}
	projUpserts map[string]struct{}
	projDeletes map[string]struct{}

	// onQueue is invoked (outside the lock) whenever a change is queued.
	// prioritized is true for deletes.
	onQueue func(prioritized bool)
}

// NewTracker creates a tracker. onQueue may be nil.
func NewTracker(onQueue func(prioritized bool)) *Tracker {
	return &Tracker{
		convMeta:    make(map[string]fingerprint),
		projMeta:    make(map[string]fingerprint),
		convUpserts: make(map[string]struct{}),
		convDeletes: make(map[string]struct{}),
		projUpserts: make(map[string]struct{}),
		projDeletes: make(map[string]struct{}),
		onQueue:     onQueue,
	}
}

// SetHydrated marks the local store as hydrated. Emissions observed before
// this point replace the snapshot silently; they are baseline data, not
// user actions.
func (t *Tracker) SetHydrated(hydrated bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.hydrated = hydrated
}

// SetSuppressed toggles tracking suppression. The engine suppresses
// tracking while applying server-originated writes so they are not
// re-queued as if the user made them.
func (t *Tracker) SetSuppressed(suppressed bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.suppressed = suppressed
}

// ObserveConversations diffs a conversation snapshot against the previous
// one and queues upserts for new or changed records and deletes for
// vanished ones.
func (t *Tracker) ObserveConversations(convs []model.Conversation) {
	next := make(map[string]fingerprint, len(convs))
	for _, c := range convs {
		next[c.ID] = conversationFingerprint(c)
	}

	t.mu.Lock()
	if !t.hydrated || t.suppressed {
		t.convMeta = next
		t.mu.Unlock()
		return
	}

	var upserts, deletes []string
	for id, fp := range next {
		prev, ok := t.convMeta[id]
		if !ok || prev != fp {
			upserts = append(upserts, id)
		}
	}
	for id := range t.convMeta {
		if _, ok := next[id]; !ok {
			deletes = append(deletes, id)
		}
	}
	t.convMeta = next

	for _, id := range upserts {
		t.queueLocked(t.convUpserts, t.convDeletes, id)
	}
	for _, id := range deletes {
		t.queueLocked(t.convDeletes, t.convUpserts, id)
	}
	t.mu.Unlock()

	t.fire(len(upserts) > 0, len(deletes) > 0)
}

// ObserveProjects diffs a project snapshot against the previous one.
func (t *Tracker) ObserveProjects(projs []model.Project) {
	next := make(map[string]fingerprint, len(projs))
	for _, p := range projs {
		next[p.ID] = projectFingerprint(p)
	}

	t.mu.Lock()
	if !t.hydrated || t.suppressed {
		t.projMeta = next
		t.mu.Unlock()
		return
	}

	var upserts, deletes []string
	for id, fp := range next {
		prev, ok := t.projMeta[id]
		if !ok || prev != fp {
			upserts = append(upserts, id)
		}
	}
	for id := range t.projMeta {
		if _, ok := next[id]; !ok {
			deletes = append(deletes, id)
		}
	}
	t.projMeta = next

	for _, id := range upserts {
		t.queueLocked(t.projUpserts, t.projDeletes, id)
	}
	for _, id := range deletes {
		t.queueLocked(t.projDeletes, t.projUpserts, id)
	}
	t.mu.Unlock()

	t.fire(len(upserts) > 0, len(deletes) > 0)
}

// queueLocked adds id to the target set and evicts it from the opposite
// set. Sets make double-queuing idempotent.
func (t *Tracker) queueLocked(target, opposite map[string]struct{}, id string) {
	delete(opposite, id)
	target[id] = struct{}{}
}

func (t *Tracker) fire(hasUpserts, hasDeletes bool) {
	if t.onQueue == nil {
		return
	}
	if hasDeletes {
		t.onQueue(true)
	} else if hasUpserts {
		t.onQueue(false)
	}
}

// FlagConversationUpsert queues a conversation upsert directly, bypassing
// snapshot diffing. Used by mutation call sites that want the change
// queued before the store's own emission fires.
func (t *Tracker) FlagConversationUpsert(id string) {
	t.mu.Lock()
	t.queueLocked(t.convUpserts, t.convDeletes, id)
	t.mu.Unlock()
	t.fire(true, false)
}

// FlagConversationDelete queues a conversation delete directly.
func (t *Tracker) FlagConversationDelete(id string) {
	t.mu.Lock()
	t.queueLocked(t.convDeletes, t.convUpserts, id)
	t.mu.Unlock()
	t.fire(false, true)
}

// FlagProjectUpsert queues a project upsert directly.
func (t *Tracker) FlagProjectUpsert(id string) {
	t.mu.Lock()
	t.queueLocked(t.projUpserts, t.projDeletes, id)
	t.mu.Unlock()
	t.fire(true, false)
}

// FlagProjectDelete queues a project delete directly.
func (t *Tracker) FlagProjectDelete(id string) {
	t.mu.Lock()
	t.queueLocked(t.projDeletes, t.projUpserts, id)
	t.mu.Unlock()
	t.fire(false, true)
}

// Pending returns a copy of the four pending sets.
func (t *Tracker) Pending() PendingSets {
	t.mu.Lock()
	defer t.mu.Unlock()
	return PendingSets{
		ConversationUpserts: copySet(t.convUpserts),
		ConversationDeletes: copySet(t.convDeletes),
		ProjectUpserts:      copySet(t.projUpserts),
		ProjectDeletes:      copySet(t.projDeletes),
	}
}

// RemoveSent prunes ids that were included in a sync request that
// succeeded. Changes queued after the request payload was built stay
// pending for the next cycle.
func (t *Tracker) RemoveSent(sent PendingSets) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id := range sent.ConversationUpserts {
		delete(t.convUpserts, id)
	}
	for id := range sent.ConversationDeletes {
		delete(t.convDeletes, id)
	}
	for id := range sent.ProjectUpserts {
		delete(t.projUpserts, id)
	}
	for id := range sent.ProjectDeletes {
		delete(t.projDeletes, id)
	}
}

// Resnapshot replaces both fingerprint maps from fresh store snapshots.
// Called after server results are applied so the next diff cycle has a
// correct baseline.
func (t *Tracker) Resnapshot(convs []model.Conversation, projs []model.Project) {
	convMeta := make(map[string]fingerprint, len(convs))
	for _, c := range convs {
		convMeta[c.ID] = conversationFingerprint(c)
	}
	projMeta := make(map[string]fingerprint, len(projs))
	for _, p := range projs {
		projMeta[p.ID] = projectFingerprint(p)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.convMeta = convMeta
	t.projMeta = projMeta
}

func copySet(src map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{}, len(src))
	for id := range src {
		out[id] = struct{}{}
	}
	return out
}
