package item

// LocationKind discriminates sync locations from publish locations.
type LocationKind string

const (
	// KindSync marks a location used for bidirectional synchronization.
	KindSync LocationKind = "sync"

	// KindPublish marks a location used for one-way publishing.
	KindPublish LocationKind = "publish"
)

// Location binds a local file to one destination in one remote backend,
// annotated with the content hash last known at that destination.
//
// The provider-specific identity fields are a union over the supported
// backends; a provider reads and writes only the fields it understands.
type Location struct {
	ID         string       `json:"id"`
	Kind       LocationKind `json:"kind"`
	FileID     string       `json:"fileId"`
	ProviderID string       `json:"providerId"`
	Hash       uint32       `json:"hash"`

	// Seq orders locations by creation; dedup keeps the newest.
	Seq int64 `json:"seq,omitempty"`

	// Sub identifies the remote account the location belongs to.
	Sub string `json:"sub,omitempty"`

	// Path is the remote path (git-based and drive backends).
	Path string `json:"path,omitempty"`

	// Revision is the last known remote revision at this location:
	// a blob sha for git-based backends, an ETag for object stores.
	// Providers condition their writes on it.
	Revision string `json:"revision,omitempty"`

	// ProjectID and Branch locate the destination in git-based backends.
	ProjectID string `json:"projectId,omitempty"`
	Branch    string `json:"branch,omitempty"`

	// Bucket locates the destination in object-store backends.
	Bucket string `json:"bucket,omitempty"`

	// TemplateID selects the export template for publish locations.
	TemplateID string `json:"templateId,omitempty"`
}

// RemoteKey returns the logical location key used by the operation
// scheduler to serialize operations against the same remote target.
func (l *Location) RemoteKey() string {
	key := l.ProviderID
	if l.Bucket != "" {
		key += "/" + l.Bucket
	}
	if l.ProjectID != "" {
		key += "/" + l.ProjectID
	}
	return key + "/" + l.Path
}

// Workspace is the root binding of a local item tree to one remote
// account or repository. Exactly one workspace exists per local database
// instance.
type Workspace struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	ProviderID string `json:"providerId"`

	// Sub identifies the remote account the workspace is bound to.
	Sub string `json:"sub,omitempty"`

	// Git-based backend connection parameters.
	ServerURL   string `json:"serverUrl,omitempty"`
	ProjectPath string `json:"projectPath,omitempty"`
	ProjectID   string `json:"projectId,omitempty"`
	Branch      string `json:"branch,omitempty"`

	// Object-store backend connection parameters.
	Bucket   string `json:"bucket,omitempty"`
	Endpoint string `json:"endpoint,omitempty"`

	// Path is the remote directory prefix the workspace is rooted at.
	// Either empty or ends with a slash.
	Path string `json:"path,omitempty"`

	// UniquePaths declares that no two items may resolve to the same
	// canonical path; collisions are renamed away.
	UniquePaths bool `json:"uniquePaths,omitempty"`
}
