// Package importer ingests conversation JSON exports dropped into a
// watched inbox directory. Imported records go through the normal local
// store write path, so they are picked up by change tracking and queued
// for sync like any other local edit. Imports are additive: removing a
// file from the inbox never deletes the conversation it carried.
package importer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Burtson-Labs/bandit-sync/internal/protocol"
	"github.com/Burtson-Labs/bandit-sync/internal/store"
)

// settleDelay is how long the importer waits after the last write event
// for a file before reading it. Exports are often written in several
// chunks; reading too early yields truncated JSON.
const settleDelay = 500 * time.Millisecond

// Importer watches an inbox directory for conversation exports.
type Importer struct {
	store  *store.Store
	logger *slog.Logger
	dir    string

	watcher *fsnotify.Watcher
	done    chan struct{}
	wg      sync.WaitGroup

	mu      sync.Mutex
	running bool
	timers  map[string]*time.Timer
}

// New creates an Importer for the given inbox directory. Start must be
// called before events are processed.
func New(st *store.Store, dir string, logger *slog.Logger) *Importer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Importer{
		store:  st,
		logger: logger,
		dir:    dir,
		timers: make(map[string]*time.Timer),
	}
}

// Start creates the inbox directory if needed, imports any files already
// sitting in it, and begins watching for new ones.
func (im *Importer) Start(ctx context.Context) error {
	im.mu.Lock()
	defer im.mu.Unlock()
	if im.running {
		return fmt.Errorf("importer already running")
	}

	if err := os.MkdirAll(im.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create import directory %s: %w", im.dir, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	if err := watcher.Add(im.dir); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch import directory %s: %w", im.dir, err)
	}

	im.watcher = watcher
	im.done = make(chan struct{})
	im.running = true

	// Catch up on files dropped while the importer was not running.
	entries, err := os.ReadDir(im.dir)
	if err == nil {
		for _, entry := range entries {
			if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
				continue
			}
			path := filepath.Join(im.dir, entry.Name())
			if err := im.ImportFile(ctx, path); err != nil {
				im.logger.Warn("failed to import existing file", "path", path, "error", err)
			}
		}
	}

	im.wg.Add(1)
	go im.processEvents(ctx)
	return nil
}

// Stop stops watching and waits for the event loop to exit.
func (im *Importer) Stop() error {
	im.mu.Lock()
	if !im.running {
		im.mu.Unlock()
		return nil
	}
	im.running = false
	for path, timer := range im.timers {
		timer.Stop()
		delete(im.timers, path)
	}
	im.mu.Unlock()

	close(im.done)
	if err := im.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}
	im.wg.Wait()
	return nil
}

func (im *Importer) processEvents(ctx context.Context) {
	defer im.wg.Done()
	for {
		select {
		case <-im.done:
			return

		case event, ok := <-im.watcher.Events:
			if !ok {
				return
			}
			if !strings.HasSuffix(event.Name, ".json") {
				continue
			}
			if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) {
				im.scheduleImport(ctx, event.Name)
			}

		case err, ok := <-im.watcher.Errors:
			if !ok {
				return
			}
			im.logger.Warn("import watcher error", "error", err)
		}
	}
}

// scheduleImport (re)arms a per-file settle timer so a file still being
// written is read once, after its last write event.
func (im *Importer) scheduleImport(ctx context.Context, path string) {
	im.mu.Lock()
	defer im.mu.Unlock()
	if !im.running {
		return
	}
	if timer, ok := im.timers[path]; ok {
		timer.Stop()
	}
	im.timers[path] = time.AfterFunc(settleDelay, func() {
		im.mu.Lock()
		delete(im.timers, path)
		im.mu.Unlock()

		if err := im.ImportFile(ctx, path); err != nil {
			im.logger.Warn("import failed", "path", path, "error", err)
		}
	})
}

// ImportFile reads one export file and upserts its contents into the
// local store. The file may hold a single conversation object or an
// array of them, in wire DTO form.
func (im *Importer) ImportFile(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	dtos, err := decodeExport(data)
	if err != nil {
		return fmt.Errorf("invalid export %s: %w", path, err)
	}

	for _, dto := range dtos {
		conv := protocol.ConversationFromDTO(dto)
		if err := im.store.PutConversation(ctx, conv); err != nil {
			return fmt.Errorf("failed to import conversation %s: %w", dto.ID, err)
		}
		im.logger.Info("imported conversation", "id", conv.ID, "name", conv.Name, "file", filepath.Base(path))
	}
	return nil
}

// decodeExport accepts either a single conversation DTO or an array.
func decodeExport(data []byte) ([]protocol.ConversationRecordDTO, error) {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		var dtos []protocol.ConversationRecordDTO
		if err := json.Unmarshal(data, &dtos); err != nil {
			return nil, err
		}
		return dtos, nil
	}
	var dto protocol.ConversationRecordDTO
	if err := json.Unmarshal(data, &dto); err != nil {
		return nil, err
	}
	if dto.ID == "" {
		return nil, fmt.Errorf("conversation export missing id")
	}
	return []protocol.ConversationRecordDTO{dto}, nil
}
