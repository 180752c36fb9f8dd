package localdb

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Flag keys stored per workspace id in the shared flags database.
const (
	flagLastSyncActivity = "lastSyncActivity"
	flagLastWindowFocus  = "lastWindowFocus"
)

// workspaceDBPrefix prefixes workspace database file names.
const workspaceDBPrefix = "workspace-"

// Manager enumerates and opens the per-workspace databases under a data
// directory, and owns the shared flags database.
type Manager struct {
	dataDir string
	flags   *DB
}

// NewManager opens a manager rooted at dataDir.
func NewManager(dataDir string) (*Manager, error) {
	flags, err := open(filepath.Join(dataDir, "flags.db"))
	if err != nil {
		return nil, fmt.Errorf("failed to open flags database: %w", err)
	}
	return &Manager{dataDir: dataDir, flags: flags}, nil
}

// Close closes the shared flags database.
func (m *Manager) Close() error {
	return m.flags.Close()
}

// OpenWorkspace opens (creating if needed) the database for a workspace.
// The caller must Close it when done.
func (m *Manager) OpenWorkspace(workspaceID string) (*DB, error) {
	return open(m.workspacePath(workspaceID))
}

func (m *Manager) workspacePath(workspaceID string) string {
	return filepath.Join(m.dataDir, workspaceDBPrefix+workspaceID+".db")
}

// ListWorkspaceIDs enumerates the workspace ids that have a database
// under the data directory.
func (m *Manager) ListWorkspaceIDs() ([]string, error) {
	entries, err := os.ReadDir(m.dataDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read data directory: %w", err)
	}

	var ids []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, workspaceDBPrefix) || !strings.HasSuffix(name, ".db") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(strings.TrimPrefix(name, workspaceDBPrefix), ".db"))
	}
	return ids, nil
}

// RemoveWorkspace drops the entire backing store for a workspace id and
// clears its local flags. Idempotent: removing an unknown workspace is a
// no-op.
func (m *Manager) RemoveWorkspace(workspaceID string) error {
	base := m.workspacePath(workspaceID)
	for _, path := range []string{base, base + "-wal", base + "-shm"} {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove %s: %w", path, err)
		}
	}

	for _, flag := range []string{flagLastSyncActivity, flagLastWindowFocus} {
		if err := m.flags.DeleteItem(workspaceID + "/" + flag); err != nil {
			return err
		}
	}
	return nil
}

// SetLastSyncActivity records the time of the last sync activity for a
// workspace.
func (m *Manager) SetLastSyncActivity(workspaceID string, t time.Time) error {
	return m.setFlag(workspaceID, flagLastSyncActivity, t)
}

// LastSyncActivity returns the recorded last sync activity, or a zero
// time when none is recorded.
func (m *Manager) LastSyncActivity(workspaceID string) (time.Time, error) {
	return m.flag(workspaceID, flagLastSyncActivity)
}

// SetLastWindowFocus records the time the workspace window was last
// focused.
func (m *Manager) SetLastWindowFocus(workspaceID string, t time.Time) error {
	return m.setFlag(workspaceID, flagLastWindowFocus, t)
}

// LastWindowFocus returns the recorded last window focus, or a zero time
// when none is recorded.
func (m *Manager) LastWindowFocus(workspaceID string) (time.Time, error) {
	return m.flag(workspaceID, flagLastWindowFocus)
}

func (m *Manager) setFlag(workspaceID, flag string, t time.Time) error {
	return m.flags.SaveItem(workspaceID+"/"+flag, []byte(fmt.Sprintf("%d", t.UnixMilli())))
}

func (m *Manager) flag(workspaceID, flag string) (time.Time, error) {
	value, err := m.flags.LoadItem(workspaceID + "/" + flag)
	if err != nil {
		if isNotFound(err) {
			return time.Time{}, nil
		}
		return time.Time{}, err
	}
	var millis int64
	if _, err := fmt.Sscanf(string(value), "%d", &millis); err != nil {
		return time.Time{}, fmt.Errorf("corrupt flag %s/%s: %w", workspaceID, flag, err)
	}
	return time.UnixMilli(millis), nil
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrItemNotFound)
}
