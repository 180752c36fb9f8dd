// Package daemon keeps a workspace continuously reconciled.
//
// The daemon:
//  1. Runs an initial full sync pass
//  2. Watches the workspace mirror directory for markdown edits
//  3. Feeds debounced changes into the workspace store
//  4. Runs periodic sync passes and tracks sync activity
//  5. Handles graceful shutdown
package daemon

import (
	"context"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/SamTV12345/stackedit/internal/dashboard"
	"github.com/SamTV12345/stackedit/internal/item"
	"github.com/SamTV12345/stackedit/internal/localdb"
	"github.com/SamTV12345/stackedit/internal/provider"
	wsync "github.com/SamTV12345/stackedit/internal/sync"
	"github.com/SamTV12345/stackedit/internal/workspace"
)

// Publisher triggers background publish passes for edited files.
type Publisher interface {
	RequestPublish(ctx context.Context, fileID string)
}

// Config holds configuration for the daemon.
type Config struct {
	// SyncInterval is how often a periodic sync pass runs.
	SyncInterval time.Duration

	// DebounceInterval is how long to wait before processing mirror
	// file changes. This batches rapid editor saves together.
	DebounceInterval time.Duration

	// Events optionally receives dashboard broadcasts.
	Events *dashboard.Server

	// Publisher optionally receives a publish request whenever a mirror
	// edit updates a tracked file. Its offline policy should be fed
	// from Offline.
	Publisher Publisher

	// Logger for daemon activity.
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		SyncInterval:     60 * time.Second,
		DebounceInterval: 100 * time.Millisecond,
		Logger:           log.New(os.Stderr, "[daemon] ", log.LstdFlags),
	}
}

// Daemon orchestrates mirror watching and workspace reconciliation.
type Daemon struct {
	store       *workspace.Store
	engine      *wsync.Engine
	manager     *localdb.Manager
	workspaceID string
	mirrorDir   string
	config      *Config

	watcher       *fsnotify.Watcher
	changeQueue   map[string]time.Time
	changeQueueMu sync.Mutex

	offline atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a daemon for one workspace.
//
// The mirror directory holds the on-disk copy of the workspace files;
// edits there flow into the store and out to the remote on the next
// pass. Use Start() to begin watching and syncing.
func New(store *workspace.Store, engine *wsync.Engine, manager *localdb.Manager, workspaceID, mirrorDir string, config *Config) (*Daemon, error) {
	if store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if engine == nil {
		return nil, fmt.Errorf("engine cannot be nil")
	}
	if mirrorDir == "" {
		return nil, fmt.Errorf("mirrorDir cannot be empty")
	}
	if config == nil {
		config = DefaultConfig()
	}
	defaults := DefaultConfig()
	if config.SyncInterval <= 0 {
		config.SyncInterval = defaults.SyncInterval
	}
	if config.DebounceInterval <= 0 {
		config.DebounceInterval = defaults.DebounceInterval
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Daemon{
		store:       store,
		engine:      engine,
		manager:     manager,
		workspaceID: workspaceID,
		mirrorDir:   mirrorDir,
		config:      config,
		watcher:     watcher,
		changeQueue: make(map[string]time.Time),
		ctx:         ctx,
		cancel:      cancel,
	}, nil
}

// Start begins the daemon's operation.
//
// This blocks until ctx is cancelled or the daemon is stopped.
func (d *Daemon) Start(ctx context.Context) error {
	d.config.Logger.Println("Starting daemon")

	d.runSyncPass()

	if err := d.watchTree(d.mirrorDir); err != nil {
		return fmt.Errorf("failed to watch mirror directory: %w", err)
	}
	d.config.Logger.Printf("Watching: %s", d.mirrorDir)

	d.wg.Add(3)
	go d.watchFileEvents()
	go d.processChangeQueue()
	go d.periodicSync()

	select {
	case <-ctx.Done():
		d.config.Logger.Println("Shutdown signal received")
		return d.Stop()
	case <-d.ctx.Done():
		return nil
	}
}

// Stop gracefully shuts down the daemon.
func (d *Daemon) Stop() error {
	d.config.Logger.Println("Stopping daemon")

	d.cancel()
	if err := d.watcher.Close(); err != nil {
		d.config.Logger.Printf("Error closing watcher: %v", err)
	}
	d.wg.Wait()

	d.config.Logger.Println("Daemon stopped")
	return nil
}

// Offline reports whether the last sync pass failed to reach the
// backend. Publishing policy flips to fail-fast while offline.
func (d *Daemon) Offline() bool {
	return d.offline.Load()
}

// watchTree adds the directory and all its subdirectories to the
// watcher.
func (d *Daemon) watchTree(root string) error {
	return filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			return d.watcher.Add(path)
		}
		return nil
	})
}

// runSyncPass runs one full reconciliation pass and updates offline
// state, activity tracking, and the dashboard.
func (d *Daemon) runSyncPass() {
	report, err := d.engine.SyncWorkspace(d.ctx)
	if err != nil {
		if d.offline.CompareAndSwap(false, true) {
			d.config.Logger.Printf("Backend unreachable, going offline: %v", err)
		} else {
			d.config.Logger.Printf("Sync pass failed: %v", err)
		}
		return
	}

	if d.offline.CompareAndSwap(true, false) {
		d.config.Logger.Println("Backend reachable again")
	}

	if d.manager != nil {
		if err := d.manager.SetLastSyncActivity(d.workspaceID, time.Now()); err != nil {
			d.config.Logger.Printf("Failed to record sync activity: %v", err)
		}
	}
	if d.config.Events != nil {
		d.config.Events.BroadcastSyncUpdate(dashboard.SyncUpdateData{
			WorkspaceID: d.workspaceID,
			Pulled:      report.Pulled,
			Pushed:      report.Pushed,
			Created:     report.Created,
			Deleted:     report.Deleted,
			Conflicts:   report.Conflicts,
			Failed:      report.Failed,
		})
	}
}

// watchFileEvents monitors filesystem events and queues changes.
func (d *Daemon) watchFileEvents() {
	defer d.wg.Done()

	for {
		select {
		case <-d.ctx.Done():
			return

		case event, ok := <-d.watcher.Events:
			if !ok {
				return
			}

			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := d.watcher.Add(event.Name); err != nil {
						d.config.Logger.Printf("Failed to watch %s: %v", event.Name, err)
					}
					continue
				}
			}

			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if filepath.Ext(event.Name) != ".md" {
				continue
			}

			d.queueChange(event.Name)

		case err, ok := <-d.watcher.Errors:
			if !ok {
				return
			}
			d.config.Logger.Printf("Watcher error: %v", err)
		}
	}
}

// queueChange adds a file to the change queue with debouncing.
func (d *Daemon) queueChange(path string) {
	d.changeQueueMu.Lock()
	defer d.changeQueueMu.Unlock()
	d.changeQueue[path] = time.Now()
}

// processChangeQueue processes queued file changes with debouncing.
func (d *Daemon) processChangeQueue() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.DebounceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			d.processPendingChanges()
		}
	}
}

// processPendingChanges applies mirror files that have been queued for
// long enough to the store.
func (d *Daemon) processPendingChanges() {
	d.changeQueueMu.Lock()
	defer d.changeQueueMu.Unlock()

	now := time.Now()
	for path, queuedAt := range d.changeQueue {
		if now.Sub(queuedAt) < d.config.DebounceInterval {
			continue
		}
		if err := d.applyMirrorFile(path); err != nil {
			d.config.Logger.Printf("Error applying %s: %v", path, err)
		}
		delete(d.changeQueue, path)
	}
}

// applyMirrorFile reflects one mirror file change into the store: edits
// update the content record, new files create an item, deletions move
// the item to the trash.
func (d *Daemon) applyMirrorFile(path string) error {
	rel, err := filepath.Rel(d.mirrorDir, path)
	if err != nil {
		return fmt.Errorf("failed to relativize %s: %w", path, err)
	}
	rel = filepath.ToSlash(rel)

	ids := d.store.ItemsByPath(rel)

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		for _, id := range ids {
			it := d.store.Item(id)
			if it == nil || it.IsFolder() {
				continue
			}
			d.config.Logger.Printf("Mirror file removed, trashing %s", rel)
			it.ParentID = item.TrashID
			d.store.SetOrPatchItem(it)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	content := provider.ParseContent(string(data))
	if len(ids) > 0 {
		d.store.SetContent(ids[0], content.Text, content.Properties)
		if d.config.Publisher != nil {
			d.config.Publisher.RequestPublish(d.ctx, ids[0])
		}
		return nil
	}

	parentID, err := d.ensureFolders(filepath.ToSlash(filepath.Dir(rel)))
	if err != nil {
		return err
	}
	_, err = d.store.CreateFile(d.ctx, workspace.CreateFileOptions{
		Name:       filepath.Base(rel),
		ParentID:   parentID,
		Text:       content.Text,
		Properties: content.Properties,
		Background: true,
	})
	return err
}

// ensureFolders creates the folder chain for a mirror directory path
// and returns the id of the deepest folder ("" for the root).
func (d *Daemon) ensureFolders(dir string) (string, error) {
	if dir == "." || dir == "" {
		return "", nil
	}

	parentID := ""
	prefix := ""
	for _, segment := range strings.Split(dir, "/") {
		if segment == "" {
			continue
		}
		prefix += segment + "/"
		if ids := d.store.ItemsByPath(prefix); len(ids) > 0 {
			parentID = ids[0]
			continue
		}
		folder, err := d.store.StoreItem(d.ctx, &item.Item{
			Type:     item.TypeFolder,
			Name:     segment,
			ParentID: parentID,
		}, true)
		if err != nil {
			return "", err
		}
		parentID = folder.ID
	}
	return parentID, nil
}

// periodicSync runs sync passes on the configured interval.
func (d *Daemon) periodicSync() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.SyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			d.runSyncPass()
		}
	}
}
