// Package workspace is the authoritative in-memory store for one
// workspace: the item tree, content records, and sync/publish locations.
//
// The store enforces the structural invariants of the workspace after
// every mutation:
//
//  1. Every non-root item's parent chain is acyclic.
//  2. In unique-paths mode no two items resolve to the same canonical
//     path; collisions are renamed away with a numeric suffix.
//  3. Forbidden folder names are rejected before an item is stored.
//  4. Among locations of the same file and kind, none share a content
//     hash unless they also share remote identity.
//
// Each Store instance is an isolated workspace session: there is no
// process-wide singleton. All state is guarded by a mutex so stores can
// be shared between the daemon, the scheduler, and the CLI.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sort"
	"sync"

	"github.com/SamTV12345/stackedit/internal/confirm"
	"github.com/SamTV12345/stackedit/internal/item"
	"github.com/SamTV12345/stackedit/internal/notify"
)

// ErrInvalidName is returned when a folder name collides with reserved
// internal names or suffixes.
var ErrInvalidName = errors.New("unauthorized name")

// Config holds collaborators for a Store.
type Config struct {
	// Confirmer gates operations needing user consent. Nil auto-approves.
	Confirmer confirm.Confirmer

	// Badges receives one-shot achievement signals. Nil disables them.
	Badges *notify.Badges

	// Logger for store activity. Nil uses a default stderr logger.
	Logger *log.Logger
}

// Store holds the items, contents, and locations of one workspace.
type Store struct {
	mu sync.Mutex

	ws        *item.Workspace
	items     map[string]*item.Item
	contents  map[string]*item.Content
	synced    map[string]*item.SyncedContent
	states    map[string]*item.ContentState
	locations map[string]*item.Location
	locSeq    int64

	confirmer confirm.Confirmer
	badges    *notify.Badges
	logger    *log.Logger
}

// New creates a store for the given workspace.
func New(ws *item.Workspace, cfg *Config) *Store {
	if cfg == nil {
		cfg = &Config{}
	}
	confirmer := cfg.Confirmer
	if confirmer == nil {
		confirmer = confirm.AutoApprove{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[workspace] ", log.LstdFlags)
	}
	return &Store{
		ws:        ws,
		items:     make(map[string]*item.Item),
		contents:  make(map[string]*item.Content),
		synced:    make(map[string]*item.SyncedContent),
		states:    make(map[string]*item.ContentState),
		locations: make(map[string]*item.Location),
		confirmer: confirmer,
		badges:    cfg.Badges,
		logger:    logger,
	}
}

// Workspace returns the workspace record the store is bound to.
func (s *Store) Workspace() *item.Workspace {
	return s.ws
}

// CreateFileOptions configures CreateFile.
type CreateFileOptions struct {
	Name        string
	ParentID    string
	Text        string
	Properties  string
	Discussions map[string]string
	Comments    map[string]string

	// Background skips the confirmation gates; used when files are
	// created by a provider download rather than by the user.
	Background bool
}

// CreateFile creates a file and its content record.
//
// The name is sanitized; in unique-paths mode a colliding path is
// confirmed with the user and then renamed away. A declined confirmation
// returns confirm.ErrCancelled before anything is stored.
func (s *Store) CreateFile(ctx context.Context, opts CreateFileOptions) (*item.Item, error) {
	id := item.NewID()
	it := &item.Item{
		ID:       id,
		Type:     item.TypeFile,
		Name:     item.SanitizeName(opts.Name),
		ParentID: opts.ParentID,
	}

	if !opts.Background {
		if err := s.confirmCreate(ctx, it, opts.Name); err != nil {
			return nil, err
		}
	}

	content := &item.Content{
		ID:          item.ContentID(id),
		Text:        opts.Text,
		Properties:  opts.Properties,
		Discussions: opts.Discussions,
		Comments:    opts.Comments,
	}
	content.Hash = item.HashContent(content)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.contents[content.ID] = content
	s.items[id] = it
	if s.ws.UniquePaths {
		s.makePathUniqueLocked(id)
	}
	return s.items[id], nil
}

// confirmCreate runs the strip-name and path-conflict gates for a new item.
func (s *Store) confirmCreate(ctx context.Context, it *item.Item, originalName string) error {
	if it.Name != item.DefaultName && it.Name != originalName {
		if err := s.gate(ctx, confirm.Request{Type: confirm.TypeStripName, ItemName: it.Name}); err != nil {
			return err
		}
	}
	if s.ws.UniquePaths {
		s.mu.Lock()
		byItem, byPath := s.pathsLocked()
		parentPath := byItem[it.ParentID]
		conflict := len(byPath[parentPath+it.Name]) > 0
		s.mu.Unlock()
		if conflict {
			if err := s.gate(ctx, confirm.Request{Type: confirm.TypePathConflict, ItemName: it.Name}); err != nil {
				return err
			}
		}
	}
	return nil
}

// StoreItem makes sanity checks and then creates or updates the item.
//
// Folder names colliding with reserved internal names are rejected with
// ErrInvalidName. A declined confirmation returns confirm.ErrCancelled.
func (s *Store) StoreItem(ctx context.Context, it *item.Item, background bool) (*item.Item, error) {
	if it.ID == "" {
		it.ID = item.NewID()
	}
	sanitized := item.SanitizeName(it.Name)

	if it.Type == item.TypeFolder && item.IsForbiddenFolderName(sanitized) {
		return nil, fmt.Errorf("folder name %q: %w", sanitized, ErrInvalidName)
	}

	if !background {
		if sanitized != item.DefaultName && sanitized != it.Name {
			if err := s.gate(ctx, confirm.Request{Type: confirm.TypeStripName, ItemName: sanitized}); err != nil {
				return nil, err
			}
		}
		if s.ws.UniquePaths {
			s.mu.Lock()
			byItem, byPath := s.pathsLocked()
			parentPath := byItem[it.ParentID]
			path := parentPath + sanitized
			if it.Type == item.TypeFolder {
				path += "/"
			}
			conflict := false
			for _, otherID := range byPath[path] {
				if otherID != it.ID {
					conflict = true
				}
			}
			s.mu.Unlock()
			if conflict {
				if err := s.gate(ctx, confirm.Request{Type: confirm.TypePathConflict, ItemName: sanitized}); err != nil {
					return nil, err
				}
			}
		}
	}

	stored := s.SetOrPatchItem(&item.Item{
		ID:       it.ID,
		Type:     it.Type,
		Name:     it.Name,
		ParentID: it.ParentID,
		Hash:     it.Hash,
	})
	return stored, nil
}

// SetOrPatchItem creates or patches the item, then re-asserts the
// circular-reference and path-uniqueness invariants scoped to it.
// Returns nil when the patch has no id.
//
// Zero-valued patch fields leave the stored field unchanged; a move to
// the workspace root is expressed with item.RootID.
func (s *Store) SetOrPatchItem(patch *item.Item) *item.Item {
	if patch == nil || patch.ID == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.items[patch.ID]
	var it item.Item
	if ok {
		it = *existing
	} else {
		if patch.Type == "" {
			return nil
		}
		it = item.Item{ID: patch.ID, Type: patch.Type}
	}

	switch patch.ParentID {
	case "":
		// Partial patch, parent unchanged.
	case item.RootID:
		it.ParentID = ""
	default:
		it.ParentID = patch.ParentID
	}
	if patch.Name != "" {
		sanitized := item.SanitizeName(patch.Name)
		// Forbidden folder renames are silently dropped; the old name wins.
		if it.Type != item.TypeFolder || !item.IsForbiddenFolderName(sanitized) {
			it.Name = sanitized
		}
	}
	if patch.Hash != 0 {
		it.Hash = patch.Hash
	}

	s.items[it.ID] = &it

	s.removeCircularReferenceLocked(&it)
	if s.ws.UniquePaths {
		s.makePathUniqueLocked(it.ID)
	}
	return s.items[it.ID]
}

// DeleteFile deletes a file and all its dependent records: content,
// synced content, content state, and every sync/publish location.
// It is idempotent: deleting an unknown id is a no-op.
func (s *Store) DeleteFile(fileID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteFileLocked(fileID)
}

func (s *Store) deleteFileLocked(fileID string) {
	delete(s.items, fileID)
	delete(s.contents, item.ContentID(fileID))
	delete(s.synced, item.SyncedContentID(fileID))
	delete(s.states, item.ContentStateID(fileID))
	for id, loc := range s.locations {
		if loc.FileID == fileID {
			delete(s.locations, id)
		}
	}
}

// DeleteFolder deletes a folder subtree: child folders are visited first,
// every contained file is moved to the trash or removed outright, then
// the folder record itself is deleted. The confirmation step governing
// moveToTrash happened before this call; the store treats it as a
// precondition. Idempotent on an unknown id.
func (s *Store) DeleteFolder(folderID string, moveToTrash bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[folderID]; !ok {
		return
	}
	s.deleteFolderLocked(folderID, moveToTrash)
	if s.badges != nil {
		s.badges.Add(notify.BadgeRemoveFolder)
	}
}

func (s *Store) deleteFolderLocked(folderID string, moveToTrash bool) {
	var childFolders, childFiles []string
	for id, it := range s.items {
		if it.ParentID != folderID {
			continue
		}
		if it.IsFolder() {
			childFolders = append(childFolders, id)
		} else {
			childFiles = append(childFiles, id)
		}
	}
	sort.Strings(childFolders)
	sort.Strings(childFiles)

	for _, id := range childFolders {
		s.deleteFolderLocked(id, moveToTrash)
	}
	for _, id := range childFiles {
		if moveToTrash {
			s.items[id].ParentID = item.TrashID
		} else {
			s.deleteFileLocked(id)
		}
	}
	delete(s.items, folderID)
}

// Item returns the item with the given id, or nil.
func (s *Store) Item(id string) *item.Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	if it, ok := s.items[id]; ok {
		copied := *it
		return &copied
	}
	return nil
}

// Items returns a snapshot of all items.
func (s *Store) Items() []*item.Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*item.Item, 0, len(s.items))
	for _, it := range s.items {
		copied := *it
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Content returns the content record of a file, or nil.
func (s *Store) Content(fileID string) *item.Content {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.contents[item.ContentID(fileID)]; ok {
		copied := *c
		return &copied
	}
	return nil
}

// SetContent replaces a file's text and properties and recomputes the
// content hash. Unknown file ids get a fresh content record, matching
// the load-or-create behavior of content loading.
func (s *Store) SetContent(fileID, text, properties string) *item.Content {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := item.ContentID(fileID)
	c, ok := s.contents[id]
	if !ok {
		c = &item.Content{ID: id}
		s.contents[id] = c
	}
	c.Text = text
	c.Properties = properties
	c.Hash = item.HashContent(c)
	copied := *c
	return &copied
}

// SyncedContent returns the synced-content record for a file, creating
// an empty one if absent.
func (s *Store) SyncedContent(fileID string) *item.SyncedContent {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := item.SyncedContentID(fileID)
	sc, ok := s.synced[id]
	if !ok {
		sc = &item.SyncedContent{ID: id, SyncedHashes: make(map[string]uint32)}
		s.synced[id] = sc
	}
	copied := *sc
	copied.SyncedHashes = make(map[string]uint32, len(sc.SyncedHashes))
	for k, v := range sc.SyncedHashes {
		copied.SyncedHashes[k] = v
	}
	return &copied
}

// SetSyncedHash records that locationID is in sync with the given
// content hash.
func (s *Store) SetSyncedHash(fileID, locationID string, hash uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := item.SyncedContentID(fileID)
	sc, ok := s.synced[id]
	if !ok {
		sc = &item.SyncedContent{ID: id, SyncedHashes: make(map[string]uint32)}
		s.synced[id] = sc
	}
	sc.SyncedHashes[locationID] = hash
	sc.Hash = hash
}

// Sanitize re-asserts every workspace invariant: circular references are
// removed for all folders, then paths and locations are deduplicated.
// Ids in keep are authoritative and never renamed or removed.
func (s *Store) Sanitize(keep map[string]bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, it := range s.items {
		if it.IsFolder() {
			s.removeCircularReferenceLocked(it)
		}
	}
	s.ensureUniquePathsLocked(keep)
	s.ensureUniqueLocationsLocked(keep)
}

// RemoveCircularReference detaches the item from its parent if the item
// is its own ancestor. Idempotent: a second pass is a no-op.
func (s *Store) RemoveCircularReference(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if it, ok := s.items[id]; ok {
		s.removeCircularReferenceLocked(it)
	}
}

func (s *Store) removeCircularReferenceLocked(it *item.Item) {
	for parent := s.items[it.ParentID]; parent != nil; parent = s.items[parent.ParentID] {
		if parent.ID == it.ID {
			s.items[it.ID].ParentID = ""
			break
		}
	}
}

// gate runs a confirmation request and maps a decline to ErrCancelled.
func (s *Store) gate(ctx context.Context, req confirm.Request) error {
	res, err := s.confirmer.Confirm(ctx, req)
	if err != nil {
		return fmt.Errorf("confirmation failed: %w", err)
	}
	if !res.Confirmed {
		return confirm.ErrCancelled
	}
	return nil
}
