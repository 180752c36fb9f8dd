// Package provider defines the capability interface implemented once per
// remote storage backend.
//
// A provider knows how to list remote changes, download and upload
// content and item data, remove remote objects, and enumerate revision
// history. Backends plug in by implementing Provider and registering a
// constructor; the engine never dispatches on provider id strings beyond
// the initial registry lookup.
//
// # Architecture
//
// The interface covers the operations the sync and publish engines need:
//   - Authentication and token refresh
//   - Remote tree listing with per-entry content identifiers
//   - Content/data transfer conditioned on the last known remote revision
//   - Revision history for the file history view
//
// # Implementations
//
//   - internal/provider/gitlab: git-based repositories over the REST API
//   - internal/provider/s3: S3-compatible object stores
package provider

import (
	"context"
	"time"

	"golang.org/x/oauth2"

	"github.com/SamTV12345/stackedit/internal/item"
)

// Token carries the credentials for one remote account.
type Token struct {
	// Sub uniquely identifies the account within the provider.
	Sub string

	// Name is the account display name.
	Name string

	// OAuth holds the bearer credentials when the backend uses OAuth.
	OAuth *oauth2.Token

	// ServerURL is the backend base URL for self-hosted backends.
	ServerURL string

	// AccessKey and SecretKey authenticate against object stores.
	AccessKey string
	SecretKey string
}

// EntryType discriminates remote tree entries.
type EntryType string

const (
	// EntryBlob is a remote file entry.
	EntryBlob EntryType = "blob"

	// EntryTree is a remote directory entry.
	EntryTree EntryType = "tree"
)

// TreeEntry is one entry of a remote file tree listing.
type TreeEntry struct {
	// Path is the entry path relative to the workspace root.
	Path string

	// Type is blob or tree.
	Type EntryType

	// ID is the backend's content identifier for the entry: a blob sha
	// for git-based backends, an ETag for object stores. Two listings
	// reporting the same ID are guaranteed to have the same content.
	ID string
}

// Revision describes one historical version of a remote object.
type Revision struct {
	// ID identifies the revision (commit sha, version id).
	ID string

	// Sub identifies the author account.
	Sub string

	// Name is the author display name, when the backend reports one.
	Name string

	// Created is the revision timestamp.
	Created time.Time
}

// Provider is the capability set implemented once per remote backend.
//
// Upload operations must be safe to retry: given the same {path, hash}
// pair they are idempotent, and providers condition their writes on the
// last known remote revision so concurrent remote changes are never
// silently overwritten (such a mismatch surfaces as ErrRemoteConflict).
type Provider interface {
	// ID returns the stable provider identifier used in location records.
	ID() string

	// Name returns the human-readable backend name.
	Name() string

	// Authenticate obtains or validates a credential token for the
	// workspace. It may require interactive user consent and therefore
	// suspends until resolved; a declined consent is reported as
	// confirm.ErrCancelled.
	Authenticate(ctx context.Context, ws *item.Workspace) (*Token, error)

	// ListChanges lists the remote file tree with per-entry content
	// identifiers.
	ListChanges(ctx context.Context, token *Token, ws *item.Workspace) ([]TreeEntry, error)

	// DownloadContent fetches and deserializes the remote content blob
	// at the location. Returns the content and the remote revision it
	// was read at.
	DownloadContent(ctx context.Context, token *Token, loc *item.Location) (*item.Content, string, error)

	// DownloadData fetches and deserializes a remote item record.
	DownloadData(ctx context.Context, token *Token, loc *item.Location) (*item.Item, string, error)

	// UploadContent persists the content at the location and returns the
	// updated location (new hash and remote revision).
	UploadContent(ctx context.Context, token *Token, content *item.Content, loc *item.Location) (*item.Location, error)

	// UploadData persists an item record at the location and returns the
	// updated location.
	UploadData(ctx context.Context, token *Token, it *item.Item, loc *item.Location) (*item.Location, error)

	// Remove deletes the remote object at the location.
	Remove(ctx context.Context, token *Token, loc *item.Location) error

	// ListRevisions returns the ordered revision history of the remote
	// object, newest first. The sequence is finite and is not
	// restartable across provider sessions.
	ListRevisions(ctx context.Context, token *Token, loc *item.Location) ([]Revision, error)

	// LoadRevisionContent fetches the content as of a given revision.
	LoadRevisionContent(ctx context.Context, token *Token, revisionID string, loc *item.Location) (*item.Content, error)
}
