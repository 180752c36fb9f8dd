package workspace

import (
	"sort"

	"github.com/SamTV12345/stackedit/internal/item"
	"github.com/SamTV12345/stackedit/internal/notify"
)

// AddSyncLocation stores a sync location for a file, allocating its id,
// then deduplicates locations. A file acquiring more than one sync
// location earns a one-shot badge.
func (s *Store) AddSyncLocation(loc item.Location) *item.Location {
	return s.addLocation(loc, item.KindSync, notify.BadgeSyncMultipleLocations)
}

// AddPublishLocation stores a publish location for a file, allocating
// its id, then deduplicates locations. A file acquiring more than one
// publish location earns a one-shot badge.
func (s *Store) AddPublishLocation(loc item.Location) *item.Location {
	return s.addLocation(loc, item.KindPublish, notify.BadgePublishMultipleLocations)
}

func (s *Store) addLocation(loc item.Location, kind item.LocationKind, badge string) *item.Location {
	s.mu.Lock()
	defer s.mu.Unlock()

	loc.ID = item.NewID()
	loc.Kind = kind
	s.locSeq++
	loc.Seq = s.locSeq
	s.locations[loc.ID] = &loc

	s.ensureUniqueLocationsLocked(nil)

	if s.badges != nil {
		count := 0
		for _, l := range s.locations {
			if l.FileID == loc.FileID && l.Kind == kind {
				count++
			}
		}
		if count > 1 {
			s.badges.Add(badge)
		}
	}

	if stored, ok := s.locations[loc.ID]; ok {
		copied := *stored
		return &copied
	}
	// The new location was itself the duplicate and got removed.
	return nil
}

// PatchLocation updates a stored location in place, then deduplicates.
// Unknown ids are ignored.
func (s *Store) PatchLocation(loc *item.Location) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.locations[loc.ID]
	if !ok {
		return
	}
	updated := *loc
	updated.Kind = existing.Kind
	updated.Seq = existing.Seq
	s.locations[loc.ID] = &updated
	s.ensureUniqueLocationsLocked(map[string]bool{loc.ID: true})
}

// RemoveLocation deletes a location by id. Idempotent.
func (s *Store) RemoveLocation(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.locations, id)
}

// Location returns the location with the given id, or nil.
func (s *Store) Location(id string) *item.Location {
	s.mu.Lock()
	defer s.mu.Unlock()
	if loc, ok := s.locations[id]; ok {
		copied := *loc
		return &copied
	}
	return nil
}

// LocationsByFile returns the locations of a file with the given kind,
// ordered by creation.
func (s *Store) LocationsByFile(fileID string, kind item.LocationKind) []*item.Location {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*item.Location
	for _, loc := range s.locations {
		if loc.FileID == fileID && loc.Kind == kind {
			copied := *loc
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

// Locations returns all locations of the given kind, ordered by creation.
func (s *Store) Locations(kind item.LocationKind) []*item.Location {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*item.Location
	for _, loc := range s.locations {
		if loc.Kind == kind {
			copied := *loc
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

// EnsureUniqueLocations removes redundant locations: within each
// (kind, fileID, hash) group only one survives. Kept ids win; otherwise
// the earliest location survives and later redundant ones are removed.
func (s *Store) EnsureUniqueLocations(keep map[string]bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureUniqueLocationsLocked(keep)
}

type locationGroup struct {
	kind   item.LocationKind
	fileID string
	hash   uint32
}

func (s *Store) ensureUniqueLocationsLocked(keep map[string]bool) {
	groups := make(map[locationGroup][]*item.Location)
	for _, loc := range s.locations {
		key := locationGroup{loc.Kind, loc.FileID, loc.Hash}
		groups[key] = append(groups[key], loc)
	}

	for _, members := range groups {
		if len(members) <= 1 {
			continue
		}
		sort.Slice(members, func(i, j int) bool { return members[i].Seq < members[j].Seq })

		survivor := members[0]
		for _, loc := range members {
			if keep[loc.ID] {
				survivor = loc
				break
			}
		}
		for _, loc := range members {
			if loc.ID != survivor.ID {
				delete(s.locations, loc.ID)
			}
		}
	}
}
