// Package item defines the workspace data model: files, folders, their
// content records, and the sync/publish location records that bind files
// to remote backends.
//
// Items form a tree through ParentID. Files additionally own a Content
// record whose id is always "<fileID>/content", plus auxiliary
// SyncedContent and ContentState records with the same id convention.
// The item package carries no storage or network knowledge; ownership and
// invariants live in internal/workspace.
package item

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// Type discriminates files from folders.
type Type string

const (
	// TypeFile is a leaf item owning a Content record.
	TypeFile Type = "file"

	// TypeFolder is an interior item that may contain other items.
	TypeFolder Type = "folder"
)

// String returns the string representation of the item type.
func (t Type) String() string {
	return string(t)
}

// Well-known folder ids. They exist implicitly in every workspace and are
// never stored as regular folder records.
const (
	// TrashID is the folder files are moved to on soft delete.
	TrashID = "trash"

	// TempID is the folder holding temporary files.
	TempID = "temp"

	// RootID is the explicit ParentID for a patch moving an item to the
	// workspace root. Stored items use the empty string for the root
	// parent; in a patch the empty string means "leave unchanged".
	RootID = "root"
)

// DefaultName is used when sanitization strips a name down to nothing.
const DefaultName = "Untitled"

// maxNameLength bounds item names after sanitization.
const maxNameLength = 250

// forbiddenFolderName matches folder names reserved for internal metadata
// folders and sync/publish suffixes.
var forbiddenFolderName = regexp.MustCompile(
	`^\.stackedit-data$|^\.stackedit-trash$|\.md$|\.sync$|\.publish$`)

// controlChars matches characters stripped from names: path separators and
// control characters.
var controlChars = regexp.MustCompile(`[/\\<>:"|?*\x00-\x1f]`)

// Item is a file or folder in the workspace tree.
type Item struct {
	ID       string `json:"id"`
	Type     Type   `json:"type"`
	Name     string `json:"name"`
	ParentID string `json:"parentId,omitempty"`
	Hash     uint32 `json:"hash,omitempty"`
}

// IsFolder reports whether the item is a folder.
func (it *Item) IsFolder() bool {
	return it.Type == TypeFolder
}

// Content is the text payload owned by a file.
type Content struct {
	ID          string            `json:"id"`
	Text        string            `json:"text"`
	Properties  string            `json:"properties,omitempty"`
	Discussions map[string]string `json:"discussions,omitempty"`
	Comments    map[string]string `json:"comments,omitempty"`
	Hash        uint32            `json:"hash"`
}

// SyncedContent caches, per sync location, the content hash last known to
// be in sync with that location.
type SyncedContent struct {
	ID           string            `json:"id"`
	SyncedHashes map[string]uint32 `json:"syncedHashes"`
	Hash         uint32            `json:"hash"`
}

// ContentState holds per-file conflict resolution state.
type ContentState struct {
	ID   string `json:"id"`
	Hash uint32 `json:"hash"`
}

// ContentID returns the content record id for a file id.
func ContentID(fileID string) string {
	return fileID + "/content"
}

// SyncedContentID returns the synced-content record id for a file id.
func SyncedContentID(fileID string) string {
	return fileID + "/syncedContent"
}

// ContentStateID returns the content-state record id for a file id.
func ContentStateID(fileID string) string {
	return fileID + "/contentState"
}

// NewID allocates a new item or location id.
func NewID() string {
	return uuid.NewString()
}

// SanitizeName strips path separators and control characters from a name,
// trims surrounding whitespace and dots, and bounds its length. An empty
// result falls back to DefaultName.
func SanitizeName(name string) string {
	s := controlChars.ReplaceAllString(name, "")
	s = strings.Trim(s, " \t.")
	if len(s) > maxNameLength {
		s = s[:maxNameLength]
	}
	if s == "" {
		return DefaultName
	}
	return s
}

// IsForbiddenFolderName reports whether a folder name collides with
// internal metadata folders or reserved suffixes.
func IsForbiddenFolderName(name string) bool {
	return forbiddenFolderName.MatchString(name)
}

// Hash computes the 32-bit content hash used for divergence detection.
// It is the classic 31-multiplier string hash, chosen because it is stable
// across sessions and cheap to recompute on every edit.
func Hash(s string) uint32 {
	var h int32
	for _, r := range s {
		h = h*31 + int32(r)
	}
	return uint32(h)
}

// HashContent hashes the parts of a content record that matter for sync:
// text and properties. Discussions and comments ride along with the text
// but do not participate in divergence detection.
func HashContent(c *Content) uint32 {
	return Hash(c.Text + "\x00" + c.Properties)
}
