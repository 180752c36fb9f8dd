package sync

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/SamTV12345/stackedit/internal/localdb"
	"github.com/SamTV12345/stackedit/internal/workspace"
)

const storeKey = "store"

// Persist writes the store snapshot into the workspace database.
func Persist(db *localdb.DB, store *workspace.Store) error {
	data, err := json.Marshal(store.Export())
	if err != nil {
		return fmt.Errorf("failed to encode store snapshot: %w", err)
	}
	if err := db.SaveItem(storeKey, data); err != nil {
		return fmt.Errorf("failed to save store snapshot: %w", err)
	}
	return nil
}

// Load restores the store from the workspace database. A database with
// no snapshot yet leaves the store empty.
func Load(db *localdb.DB, store *workspace.Store) error {
	data, err := db.LoadItem(storeKey)
	if err != nil {
		if errors.Is(err, localdb.ErrItemNotFound) {
			return nil
		}
		return fmt.Errorf("failed to load store snapshot: %w", err)
	}
	var snap workspace.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("failed to decode store snapshot: %w", err)
	}
	store.Import(&snap)
	return nil
}
