package workspace

import (
	"github.com/SamTV12345/stackedit/internal/item"
)

// Snapshot is the serializable state of a store, used for persistence
// in the local database.
type Snapshot struct {
	Items     []*item.Item          `json:"items"`
	Contents  []*item.Content       `json:"contents"`
	Synced    []*item.SyncedContent `json:"synced"`
	Locations []*item.Location      `json:"locations"`
}

// Export copies the current store state into a snapshot.
func (s *Store) Export() *Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := &Snapshot{}
	for _, it := range s.items {
		copied := *it
		snap.Items = append(snap.Items, &copied)
	}
	for _, c := range s.contents {
		copied := *c
		snap.Contents = append(snap.Contents, &copied)
	}
	for _, sc := range s.synced {
		copied := *sc
		copied.SyncedHashes = make(map[string]uint32, len(sc.SyncedHashes))
		for k, v := range sc.SyncedHashes {
			copied.SyncedHashes[k] = v
		}
		snap.Synced = append(snap.Synced, &copied)
	}
	for _, loc := range s.locations {
		copied := *loc
		snap.Locations = append(snap.Locations, &copied)
	}
	return snap
}

// Import replaces the store state with the snapshot's, then re-asserts
// every invariant. Records with empty ids are dropped.
func (s *Store) Import(snap *Snapshot) {
	s.mu.Lock()
	s.items = make(map[string]*item.Item, len(snap.Items))
	for _, it := range snap.Items {
		if it.ID == "" {
			continue
		}
		copied := *it
		s.items[it.ID] = &copied
	}
	s.contents = make(map[string]*item.Content, len(snap.Contents))
	for _, c := range snap.Contents {
		if c.ID == "" {
			continue
		}
		copied := *c
		s.contents[c.ID] = &copied
	}
	s.synced = make(map[string]*item.SyncedContent, len(snap.Synced))
	for _, sc := range snap.Synced {
		if sc.ID == "" {
			continue
		}
		copied := *sc
		copied.SyncedHashes = make(map[string]uint32, len(sc.SyncedHashes))
		for k, v := range sc.SyncedHashes {
			copied.SyncedHashes[k] = v
		}
		s.synced[sc.ID] = &copied
	}
	s.locations = make(map[string]*item.Location, len(snap.Locations))
	s.locSeq = 0
	for _, loc := range snap.Locations {
		if loc.ID == "" {
			continue
		}
		copied := *loc
		s.locations[loc.ID] = &copied
		if loc.Seq > s.locSeq {
			s.locSeq = loc.Seq
		}
	}
	s.mu.Unlock()

	s.Sanitize(nil)
}
