package sync

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path"
	"strings"

	"github.com/SamTV12345/stackedit/internal/item"
	"github.com/SamTV12345/stackedit/internal/localdb"
	"github.com/SamTV12345/stackedit/internal/notify"
	"github.com/SamTV12345/stackedit/internal/provider"
	"github.com/SamTV12345/stackedit/internal/queue"
	"github.com/SamTV12345/stackedit/internal/workspace"
)

// Config holds collaborators for an Engine.
type Config struct {
	// DB persists the store after each successful pass. Nil disables
	// persistence.
	DB *localdb.DB

	// Notifier receives conflict and summary notifications.
	// Nil discards them.
	Notifier notify.Notifier

	// Logger for engine activity. Nil uses a default stderr logger.
	Logger *log.Logger
}

// Engine reconciles one workspace store against one provider.
type Engine struct {
	store *workspace.Store
	prov  provider.Provider
	sched *queue.Scheduler

	db       *localdb.DB
	notifier notify.Notifier
	logger   *log.Logger

	token *provider.Token
}

// New creates a reconciliation engine.
func New(store *workspace.Store, prov provider.Provider, sched *queue.Scheduler, cfg *Config) *Engine {
	if cfg == nil {
		cfg = &Config{}
	}
	notifier := cfg.Notifier
	if notifier == nil {
		notifier = notify.Discard{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}
	return &Engine{
		store:    store,
		prov:     prov,
		sched:    sched,
		db:       cfg.DB,
		notifier: notifier,
		logger:   logger,
	}
}

// Report summarizes the result of a single workspace pass.
type Report struct {
	Pulled    int
	Pushed    int
	Created   int
	Deleted   int
	Conflicts int
	Skipped   int
	Failed    int
}

// authenticate obtains the provider token once per engine lifetime.
func (e *Engine) authenticate(ctx context.Context) (*provider.Token, error) {
	if e.token != nil {
		return e.token, nil
	}
	token, err := e.prov.Authenticate(ctx, e.store.Workspace())
	if err != nil {
		return nil, fmt.Errorf("failed to authenticate against %s: %w", e.prov.Name(), err)
	}
	e.token = token
	return token, nil
}

// SyncWorkspace runs one full reconciliation pass:
//
//  1. List remote changes.
//  2. For each tracked sync location, decide and apply pull/push/
//     conflict under the location's scheduler slot.
//  3. Pull remote files with no local counterpart; push local files
//     with no sync location.
//  4. Re-assert every workspace invariant, keeping ids touched by the
//     pass authoritative.
//
// Individual location failures are counted and do not abort the pass.
func (e *Engine) SyncWorkspace(ctx context.Context) (*Report, error) {
	token, err := e.authenticate(ctx)
	if err != nil {
		return nil, err
	}

	entries, err := e.prov.ListChanges(ctx, token, e.store.Workspace())
	if err != nil {
		return nil, fmt.Errorf("failed to list remote changes: %w", err)
	}
	byPath := make(map[string]provider.TreeEntry, len(entries))
	for _, entry := range entries {
		if entry.Type == provider.EntryBlob {
			byPath[entry.Path] = entry
		}
	}

	report := &Report{}
	keep := make(map[string]bool)
	trackedPaths := make(map[string]bool)

	for _, loc := range e.store.Locations(item.KindSync) {
		if loc.ProviderID != e.prov.ID() {
			continue
		}
		trackedPaths[loc.Path] = true
		keep[loc.ID] = true
		keep[loc.FileID] = true

		if err := e.syncLocation(ctx, token, loc, byPath, report); err != nil {
			report.Failed++
			e.logger.Printf("WARNING: failed to sync location %s (%s): %v", loc.ID, loc.Path, err)
		}
	}

	// Remote files nothing local tracks yet.
	for remotePath, entry := range byPath {
		if trackedPaths[remotePath] {
			continue
		}
		fileID, err := e.pullNewFile(ctx, token, entry)
		if err != nil {
			report.Failed++
			e.logger.Printf("WARNING: failed to pull new remote file %s: %v", remotePath, err)
			continue
		}
		keep[fileID] = true
		report.Created++
	}

	// Local files not yet tracked by this provider.
	for _, it := range e.store.Items() {
		if it.IsFolder() || e.store.InSpecialFolder(it.ID) {
			continue
		}
		if len(e.locationsForProvider(it.ID)) > 0 {
			continue
		}
		if err := e.pushNewFile(ctx, token, it); err != nil {
			report.Failed++
			e.logger.Printf("WARNING: failed to push new local file %s: %v", it.Name, err)
			continue
		}
		keep[it.ID] = true
		report.Pushed++
	}

	e.store.Sanitize(keep)

	if e.db != nil {
		if err := Persist(e.db, e.store); err != nil {
			e.logger.Printf("WARNING: failed to persist store: %v", err)
		}
	}

	e.logger.Printf("Sync pass complete: pulled=%d pushed=%d created=%d deleted=%d conflicts=%d skipped=%d failed=%d",
		report.Pulled, report.Pushed, report.Created, report.Deleted,
		report.Conflicts, report.Skipped, report.Failed)
	return report, nil
}

func (e *Engine) locationsForProvider(fileID string) []*item.Location {
	var out []*item.Location
	for _, loc := range e.store.LocationsByFile(fileID, item.KindSync) {
		if loc.ProviderID == e.prov.ID() {
			out = append(out, loc)
		}
	}
	return out
}

// syncLocation decides and applies the reconciliation action for one
// tracked location.
func (e *Engine) syncLocation(ctx context.Context, token *provider.Token, loc *item.Location, byPath map[string]provider.TreeEntry, report *Report) error {
	content := e.store.Content(loc.FileID)
	if content == nil {
		// The file is gone locally; drop the tracking record.
		e.store.RemoveLocation(loc.ID)
		return nil
	}

	synced := e.store.SyncedContent(loc.FileID)
	localChanged := content.Hash != synced.SyncedHashes[loc.ID]

	entry, remoteExists := byPath[loc.Path]
	var decision Decision
	if remoteExists {
		decision = Decide(localChanged, entry.ID != loc.Revision)
	} else {
		decision = DecideMissing(localChanged)
	}

	switch decision {
	case DecisionSkip:
		report.Skipped++
		return nil

	case DecisionPull:
		return e.sched.Do(ctx, loc.RemoteKey(), func(ctx context.Context) error {
			if err := e.pull(ctx, token, loc); err != nil {
				return err
			}
			report.Pulled++
			return nil
		})

	case DecisionPush, DecisionRestoreRemote:
		return e.sched.Do(ctx, loc.RemoteKey(), func(ctx context.Context) error {
			if err := e.push(ctx, token, content, loc); err != nil {
				return err
			}
			report.Pushed++
			return nil
		})

	case DecisionDeleteLocal:
		e.store.DeleteFile(loc.FileID)
		report.Deleted++
		return nil

	case DecisionConflict:
		report.Conflicts++
		it := e.store.Item(loc.FileID)
		name := loc.FileID
		if it != nil {
			name = it.Name
		}
		e.notifier.Info(fmt.Sprintf("Conflict on %q: both local and remote content changed. Choose a side to keep.", name))
		return nil
	}
	return nil
}

// pull downloads the remote content and overwrites local state.
func (e *Engine) pull(ctx context.Context, token *provider.Token, loc *item.Location) error {
	content, revision, err := e.prov.DownloadContent(ctx, token, loc)
	if err != nil {
		return fmt.Errorf("failed to download %s: %w", loc.Path, err)
	}

	updated := e.store.SetContent(loc.FileID, content.Text, content.Properties)
	e.store.SetSyncedHash(loc.FileID, loc.ID, updated.Hash)

	patched := *loc
	patched.Hash = updated.Hash
	patched.Revision = revision
	e.store.PatchLocation(&patched)
	return nil
}

// push uploads local content; the provider conditions the write on the
// last known remote revision.
func (e *Engine) push(ctx context.Context, token *provider.Token, content *item.Content, loc *item.Location) error {
	newLoc, err := e.prov.UploadContent(ctx, token, content, loc)
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", loc.Path, err)
	}
	e.store.PatchLocation(newLoc)
	e.store.SetSyncedHash(loc.FileID, loc.ID, content.Hash)
	return nil
}

// pullNewFile materializes a remote file that has no local counterpart.
// Parent folders are created along the way so the canonical path of the
// new file matches its remote path.
func (e *Engine) pullNewFile(ctx context.Context, token *provider.Token, entry provider.TreeEntry) (string, error) {
	probe := &item.Location{
		Kind:       item.KindSync,
		ProviderID: e.prov.ID(),
		Path:       entry.Path,
		Revision:   entry.ID,
	}
	content, revision, err := e.prov.DownloadContent(ctx, token, probe)
	if err != nil {
		return "", fmt.Errorf("failed to download %s: %w", entry.Path, err)
	}

	parentID, err := e.ensureFolders(ctx, path.Dir(entry.Path))
	if err != nil {
		return "", err
	}

	created, err := e.store.CreateFile(ctx, workspace.CreateFileOptions{
		Name:       path.Base(entry.Path),
		ParentID:   parentID,
		Text:       content.Text,
		Properties: content.Properties,
		Background: true,
	})
	if err != nil {
		return "", fmt.Errorf("failed to create local file for %s: %w", entry.Path, err)
	}

	stored := e.store.Content(created.ID)
	loc := e.store.AddSyncLocation(item.Location{
		FileID:     created.ID,
		ProviderID: e.prov.ID(),
		Hash:       stored.Hash,
		Path:       entry.Path,
		Revision:   revision,
		Sub:        token.Sub,
	})
	if loc != nil {
		e.store.SetSyncedHash(created.ID, loc.ID, stored.Hash)
	}
	return created.ID, nil
}

// pushNewFile uploads a local file that no sync location tracks yet and
// records the resulting location.
func (e *Engine) pushNewFile(ctx context.Context, token *provider.Token, it *item.Item) error {
	content := e.store.Content(it.ID)
	if content == nil {
		return nil
	}

	remotePath := strings.TrimSuffix(e.store.PathOf(it.ID), "/")
	loc := &item.Location{
		Kind:       item.KindSync,
		FileID:     it.ID,
		ProviderID: e.prov.ID(),
		Path:       remotePath,
		Sub:        token.Sub,
	}

	var newLoc *item.Location
	err := e.sched.Do(ctx, loc.RemoteKey(), func(ctx context.Context) error {
		var uploadErr error
		newLoc, uploadErr = e.prov.UploadContent(ctx, token, content, loc)
		return uploadErr
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", remotePath, err)
	}

	stored := e.store.AddSyncLocation(*newLoc)
	if stored != nil {
		e.store.SetSyncedHash(it.ID, stored.ID, content.Hash)
	}
	return nil
}

// ensureFolders creates the folder chain for a remote directory path and
// returns the id of the deepest folder ("" for the root).
func (e *Engine) ensureFolders(ctx context.Context, dir string) (string, error) {
	if dir == "." || dir == "/" || dir == "" {
		return "", nil
	}

	parentID := ""
	prefix := ""
	for _, segment := range strings.Split(dir, "/") {
		if segment == "" {
			continue
		}
		prefix += segment + "/"
		if ids := e.store.ItemsByPath(prefix); len(ids) > 0 {
			parentID = ids[0]
			continue
		}
		folder, err := e.store.StoreItem(ctx, &item.Item{
			Type:     item.TypeFolder,
			Name:     segment,
			ParentID: parentID,
		}, true)
		if err != nil {
			if errors.Is(err, workspace.ErrInvalidName) {
				return "", fmt.Errorf("remote folder %q: %w", segment, err)
			}
			return "", err
		}
		parentID = folder.ID
	}
	return parentID, nil
}
