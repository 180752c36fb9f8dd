package workspace

import (
	"fmt"
	"sort"
	"strings"

	"github.com/SamTV12345/stackedit/internal/item"
)

// PathOf returns the canonical slash-path of an item: ancestor names
// joined root-to-leaf, folders suffixed with a slash. Returns the empty
// string for unknown ids.
func (s *Store) PathOf(id string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	byItem, _ := s.pathsLocked()
	return byItem[id]
}

// ItemsByPath returns the ids of items resolving to the given canonical
// path. In unique-paths mode the result has at most one element once the
// invariants hold.
func (s *Store) ItemsByPath(path string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, byPath := s.pathsLocked()
	return append([]string(nil), byPath[path]...)
}

// InSpecialFolder reports whether the item or one of its ancestors lives
// in the trash or temp folder. Such items are excluded from sync and
// publish passes.
func (s *Store) InSpecialFolder(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]bool)
	for it := s.items[id]; it != nil && !seen[it.ID]; {
		seen[it.ID] = true
		if it.ParentID == item.TrashID || it.ParentID == item.TempID {
			return true
		}
		it = s.items[it.ParentID]
	}
	return false
}

// pathsLocked computes the canonical path of every item. Cycles cannot
// occur here once removeCircularReference has run, but the walk guards
// against them anyway so a half-sanitized store can't hang.
func (s *Store) pathsLocked() (byItem map[string]string, byPath map[string][]string) {
	byItem = make(map[string]string, len(s.items))
	byPath = make(map[string][]string, len(s.items))

	var resolve func(id string, seen map[string]bool) string
	resolve = func(id string, seen map[string]bool) string {
		if path, ok := byItem[id]; ok {
			return path
		}
		it, ok := s.items[id]
		if !ok || seen[id] {
			return ""
		}
		seen[id] = true
		path := resolve(it.ParentID, seen) + it.Name
		if it.IsFolder() {
			path += "/"
		}
		byItem[id] = path
		return path
	}

	ids := make([]string, 0, len(s.items))
	for id := range s.items {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		resolve(id, make(map[string]bool))
	}
	for _, id := range ids {
		path := byItem[id]
		byPath[path] = append(byPath[path], id)
	}
	return byItem, byPath
}

// EnsureUniquePaths renames items until no two resolve to the same
// canonical path. Ids in keep are authoritative and never renamed. The
// scan restarts after every rename; each rename strictly shrinks the
// collision set, so the pass terminates within O(items) rounds.
// No-op when the workspace does not require unique paths.
func (s *Store) EnsureUniquePaths(keep map[string]bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureUniquePathsLocked(keep)
}

func (s *Store) ensureUniquePathsLocked(keep map[string]bool) {
	if !s.ws.UniquePaths {
		return
	}
	for {
		byItem, _ := s.pathsLocked()
		ids := make([]string, 0, len(byItem))
		for id := range byItem {
			ids = append(ids, id)
		}
		sort.Strings(ids)

		changed := false
		for _, id := range ids {
			if keep[id] {
				continue
			}
			if s.makePathUniqueLocked(id) {
				changed = true
				break
			}
		}
		if !changed {
			return
		}
	}
}

// MakePathUnique renames the item if its path collides with another
// item's, choosing the smallest positive suffix that yields a free path.
// Returns true if the item was renamed.
func (s *Store) MakePathUnique(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.makePathUniqueLocked(id)
}

func (s *Store) makePathUniqueLocked(id string) bool {
	it, ok := s.items[id]
	if !ok {
		return false
	}
	byItem, byPath := s.pathsLocked()
	path := byItem[id]
	if len(byPath[path]) <= 1 {
		return false
	}

	isFolder := it.IsFolder()
	if isFolder {
		path = strings.TrimSuffix(path, "/")
	}

	// Files keep their extension: "Report.md" becomes "Report.1.md".
	var pathBase, pathExt, nameBase, nameExt string
	pathBase, pathExt = path, ""
	nameBase, nameExt = it.Name, ""
	if !isFolder {
		if dot := strings.LastIndex(it.Name, "."); dot > 0 {
			nameBase, nameExt = it.Name[:dot], it.Name[dot:]
			pathBase, pathExt = path[:len(path)-len(nameExt)], nameExt
		}
	}

	for suffix := 1; ; suffix++ {
		candidate := fmt.Sprintf("%s.%d%s", pathBase, suffix, pathExt)
		if isFolder {
			candidate += "/"
		}
		if len(byPath[candidate]) == 0 {
			it.Name = fmt.Sprintf("%s.%d%s", nameBase, suffix, nameExt)
			return true
		}
	}
}
