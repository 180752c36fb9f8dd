package workspace

import (
	"testing"

	"github.com/SamTV12345/stackedit/internal/item"
	"github.com/SamTV12345/stackedit/internal/notify"
)

func TestEnsureUniqueLocationsKeepsOneSurvivor(t *testing.T) {
	s := newTestStore(t)
	f := mustCreateFile(t, s, "Doc", "")

	a := s.AddSyncLocation(item.Location{FileID: f.ID, ProviderID: "gitlab", Hash: 100, Path: "a"})
	if b := s.AddSyncLocation(item.Location{FileID: f.ID, ProviderID: "gitlab", Hash: 100, Path: "b"}); b != nil {
		t.Errorf("redundant addition should be removed, survived as %s", b.ID)
	}

	locs := s.LocationsByFile(f.ID, item.KindSync)
	if len(locs) != 1 {
		t.Fatalf("expected exactly one survivor, got %d", len(locs))
	}
	// The redundant addition is removed; the existing location survives.
	if locs[0].ID != a.ID {
		t.Errorf("survivor = %s, want existing %s", locs[0].ID, a.ID)
	}
}

func TestEnsureUniqueLocationsPrefersKeptIDs(t *testing.T) {
	s := newTestStore(t)
	f := mustCreateFile(t, s, "Doc", "")

	a := s.AddSyncLocation(item.Location{FileID: f.ID, ProviderID: "gitlab", Hash: 7, Path: "a"})

	// Insert a duplicate directly so both exist when dedup runs.
	s.mu.Lock()
	s.locSeq++
	dup := &item.Location{ID: "dup", Kind: item.KindSync, FileID: f.ID, ProviderID: "gitlab", Hash: 7, Path: "b", Seq: s.locSeq}
	s.locations[dup.ID] = dup
	s.mu.Unlock()

	s.EnsureUniqueLocations(map[string]bool{a.ID: true})

	if s.Location(a.ID) == nil {
		t.Error("kept location was removed")
	}
	if s.Location("dup") != nil {
		t.Error("duplicate should have been removed despite being newer")
	}
}

func TestLocationsWithDistinctHashesCoexist(t *testing.T) {
	s := newTestStore(t)
	f := mustCreateFile(t, s, "Doc", "")

	s.AddSyncLocation(item.Location{FileID: f.ID, ProviderID: "gitlab", Hash: 1, Path: "a"})
	s.AddSyncLocation(item.Location{FileID: f.ID, ProviderID: "s3", Hash: 2, Path: "a"})

	if got := len(s.LocationsByFile(f.ID, item.KindSync)); got != 2 {
		t.Errorf("distinct hashes must coexist, got %d locations", got)
	}
}

func TestSyncAndPublishDedupIndependently(t *testing.T) {
	s := newTestStore(t)
	f := mustCreateFile(t, s, "Doc", "")

	s.AddSyncLocation(item.Location{FileID: f.ID, ProviderID: "gitlab", Hash: 5, Path: "a"})
	s.AddPublishLocation(item.Location{FileID: f.ID, ProviderID: "gitlab", Hash: 5, Path: "a"})

	if got := len(s.LocationsByFile(f.ID, item.KindSync)); got != 1 {
		t.Errorf("sync location missing, got %d", got)
	}
	if got := len(s.LocationsByFile(f.ID, item.KindPublish)); got != 1 {
		t.Errorf("publish location missing, got %d", got)
	}
}

func TestMultipleLocationBadge(t *testing.T) {
	badges := notify.NewBadges(notify.Discard{})
	ws := &item.Workspace{ID: "ws-test", UniquePaths: true}
	s := New(ws, &Config{Badges: badges})

	f, err := s.CreateFile(t.Context(), CreateFileOptions{Name: "Doc", Background: true})
	if err != nil {
		t.Fatalf("CreateFile failed: %v", err)
	}

	s.AddSyncLocation(item.Location{FileID: f.ID, ProviderID: "gitlab", Hash: 1, Path: "a"})
	if badges.Earned(notify.BadgeSyncMultipleLocations) {
		t.Error("badge must not be earned with a single location")
	}

	s.AddSyncLocation(item.Location{FileID: f.ID, ProviderID: "s3", Hash: 2, Path: "b"})
	if !badges.Earned(notify.BadgeSyncMultipleLocations) {
		t.Error("badge should be earned when a second location is added")
	}
}

func TestPatchLocationDedupsAfterHashChange(t *testing.T) {
	s := newTestStore(t)
	f := mustCreateFile(t, s, "Doc", "")

	a := s.AddSyncLocation(item.Location{FileID: f.ID, ProviderID: "gitlab", Hash: 10, Path: "a"})
	b := s.AddSyncLocation(item.Location{FileID: f.ID, ProviderID: "gitlab", Hash: 11, Path: "b"})

	// An upload reports b's content hash converging on a's.
	patched := *b
	patched.Hash = 10
	s.PatchLocation(&patched)

	locs := s.LocationsByFile(f.ID, item.KindSync)
	if len(locs) != 1 {
		t.Fatalf("expected one survivor after hash convergence, got %d", len(locs))
	}
	if locs[0].ID != b.ID {
		t.Errorf("patched location should win, got %s (a was %s)", locs[0].ID, a.ID)
	}
}
