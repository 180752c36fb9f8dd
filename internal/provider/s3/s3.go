// Package s3 implements the provider backend for S3-compatible object
// stores via the MinIO client. A workspace maps to one bucket with an
// optional key prefix; object ETags serve as revisions and versioned
// buckets expose their version ids as revision history.
package s3

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/url"
	"os"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/SamTV12345/stackedit/internal/item"
	"github.com/SamTV12345/stackedit/internal/provider"
)

// ProviderID identifies this backend in workspace and location records.
const ProviderID = "s3"

func init() {
	provider.Register(ProviderID, func() (provider.Provider, error) {
		return New(nil), nil
	})
}

// Config holds credentials for the object-store backend.
type Config struct {
	// AccessKey and SecretKey authenticate against the store. Without
	// them Authenticate fails with ErrAuthRequired.
	AccessKey string
	SecretKey string

	// Insecure disables TLS, for local stores.
	Insecure bool

	// Logger for backend activity. Nil uses a default stderr logger.
	Logger *log.Logger
}

// Provider talks to S3-compatible object stores.
type Provider struct {
	accessKey string
	secretKey string
	insecure  bool
	logger    *log.Logger

	mu      sync.Mutex
	clients map[string]*minio.Client
}

// New creates an object-store backend.
func New(cfg *Config) *Provider {
	if cfg == nil {
		cfg = &Config{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[s3] ", log.LstdFlags)
	}
	return &Provider{
		accessKey: cfg.AccessKey,
		secretKey: cfg.SecretKey,
		insecure:  cfg.Insecure,
		logger:    logger,
		clients:   make(map[string]*minio.Client),
	}
}

// ID implements provider.Provider.
func (p *Provider) ID() string { return ProviderID }

// Name implements provider.Provider.
func (p *Provider) Name() string { return "S3" }

// client returns the cached client for an endpoint, creating it on
// first use.
func (p *Provider) client(endpoint string) (*minio.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.clients[endpoint]; ok {
		return c, nil
	}
	c, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(p.accessKey, p.secretKey, ""),
		Secure: !p.insecure,
	})
	if err != nil {
		return nil, fmt.Errorf("s3: failed to create client for %s: %w", endpoint, err)
	}
	p.clients[endpoint] = c
	return c, nil
}

// Authenticate validates the configured credentials against the
// workspace bucket.
func (p *Provider) Authenticate(ctx context.Context, ws *item.Workspace) (*provider.Token, error) {
	if p.accessKey == "" || p.secretKey == "" {
		return nil, fmt.Errorf("s3: no credentials configured: %w", provider.ErrAuthRequired)
	}
	c, err := p.client(ws.Endpoint)
	if err != nil {
		return nil, err
	}
	exists, err := c.BucketExists(ctx, ws.Bucket)
	if err != nil {
		return nil, fmt.Errorf("s3: failed to check bucket %s: %w", ws.Bucket, classifyError(err))
	}
	if !exists {
		return nil, fmt.Errorf("s3: bucket %s: %w", ws.Bucket, provider.ErrNotFound)
	}
	return &provider.Token{
		Sub:       p.accessKey + "@" + ws.Endpoint,
		ServerURL: ws.Endpoint,
		AccessKey: p.accessKey,
		SecretKey: p.secretKey,
	}, nil
}

// ListChanges lists the bucket objects under the workspace prefix.
// Entry ids are ETags.
func (p *Provider) ListChanges(ctx context.Context, token *provider.Token, ws *item.Workspace) ([]provider.TreeEntry, error) {
	c, err := p.client(ws.Endpoint)
	if err != nil {
		return nil, err
	}

	var entries []provider.TreeEntry
	for obj := range c.ListObjects(ctx, ws.Bucket, minio.ListObjectsOptions{
		Prefix:    ws.Path,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("s3: failed to list bucket %s: %w", ws.Bucket, classifyError(obj.Err))
		}
		if strings.HasSuffix(obj.Key, "/") {
			continue
		}
		entries = append(entries, provider.TreeEntry{
			Path: strings.TrimPrefix(obj.Key, ws.Path),
			Type: provider.EntryBlob,
			ID:   trimETag(obj.ETag),
		})
	}
	return entries, nil
}

// DownloadContent fetches the object at the location. The returned
// revision is the object ETag.
func (p *Provider) DownloadContent(ctx context.Context, token *provider.Token, loc *item.Location) (*item.Content, string, error) {
	data, etag, err := p.getObject(ctx, token, loc, "")
	if err != nil {
		return nil, "", err
	}
	content := provider.ParseContent(string(data))
	content.ID = item.ContentID(loc.FileID)
	return content, etag, nil
}

// DownloadData fetches a serialized item record.
func (p *Provider) DownloadData(ctx context.Context, token *provider.Token, loc *item.Location) (*item.Item, string, error) {
	data, etag, err := p.getObject(ctx, token, loc, "")
	if err != nil {
		return nil, "", err
	}
	var it item.Item
	if err := json.Unmarshal(data, &it); err != nil {
		return nil, "", fmt.Errorf("s3: failed to decode item record %s: %w", loc.Path, err)
	}
	return &it, etag, nil
}

// UploadContent writes the serialized content to the object key. The
// write is conditioned on the last known ETag: if the object moved
// since, ErrRemoteConflict is returned and nothing is written.
func (p *Provider) UploadContent(ctx context.Context, token *provider.Token, content *item.Content, loc *item.Location) (*item.Location, error) {
	return p.putObject(ctx, token, loc, []byte(provider.SerializeContent(content)), content.Hash)
}

// UploadData writes a serialized item record to the object key.
func (p *Provider) UploadData(ctx context.Context, token *provider.Token, it *item.Item, loc *item.Location) (*item.Location, error) {
	data, err := json.Marshal(it)
	if err != nil {
		return nil, fmt.Errorf("s3: failed to encode item record: %w", err)
	}
	return p.putObject(ctx, token, loc, data, it.Hash)
}

func (p *Provider) putObject(ctx context.Context, token *provider.Token, loc *item.Location, data []byte, hash uint32) (*item.Location, error) {
	c, err := p.client(token.ServerURL)
	if err != nil {
		return nil, err
	}

	if loc.Revision != "" {
		stat, err := c.StatObject(ctx, loc.Bucket, loc.Path, minio.StatObjectOptions{})
		if err != nil && !provider.IsNotFound(classifyError(err)) {
			return nil, fmt.Errorf("s3: failed to stat %s: %w", loc.Path, classifyError(err))
		}
		if err == nil && trimETag(stat.ETag) != loc.Revision {
			return nil, fmt.Errorf("s3: object %s moved to etag %s: %w", loc.Path, trimETag(stat.ETag), provider.ErrRemoteConflict)
		}
	}

	info, err := c.PutObject(ctx, loc.Bucket, loc.Path, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "text/markdown",
	})
	if err != nil {
		return nil, fmt.Errorf("s3: failed to upload %s: %w", loc.Path, classifyError(err))
	}

	updated := *loc
	updated.Hash = hash
	updated.Revision = trimETag(info.ETag)
	return &updated, nil
}

// Remove deletes the remote object.
func (p *Provider) Remove(ctx context.Context, token *provider.Token, loc *item.Location) error {
	c, err := p.client(token.ServerURL)
	if err != nil {
		return err
	}
	if err := c.RemoveObject(ctx, loc.Bucket, loc.Path, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("s3: failed to remove %s: %w", loc.Path, classifyError(err))
	}
	return nil
}

// ListRevisions lists object versions, newest first. Unversioned
// buckets yield the single current version.
func (p *Provider) ListRevisions(ctx context.Context, token *provider.Token, loc *item.Location) ([]provider.Revision, error) {
	c, err := p.client(token.ServerURL)
	if err != nil {
		return nil, err
	}

	var revisions []provider.Revision
	for obj := range c.ListObjects(ctx, loc.Bucket, minio.ListObjectsOptions{
		Prefix:       loc.Path,
		WithVersions: true,
	}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("s3: failed to list versions of %s: %w", loc.Path, classifyError(obj.Err))
		}
		if obj.Key != loc.Path {
			continue
		}
		id := obj.VersionID
		if id == "" {
			id = trimETag(obj.ETag)
		}
		revisions = append(revisions, provider.Revision{
			ID:      id,
			Sub:     obj.Owner.ID,
			Name:    obj.Owner.DisplayName,
			Created: obj.LastModified,
		})
	}
	return revisions, nil
}

// LoadRevisionContent fetches the object content as of a version id.
func (p *Provider) LoadRevisionContent(ctx context.Context, token *provider.Token, revisionID string, loc *item.Location) (*item.Content, error) {
	data, _, err := p.getObject(ctx, token, loc, revisionID)
	if err != nil {
		return nil, err
	}
	content := provider.ParseContent(string(data))
	content.ID = item.ContentID(loc.FileID)
	return content, nil
}

func (p *Provider) getObject(ctx context.Context, token *provider.Token, loc *item.Location, versionID string) ([]byte, string, error) {
	c, err := p.client(token.ServerURL)
	if err != nil {
		return nil, "", err
	}

	opts := minio.GetObjectOptions{}
	if versionID != "" {
		opts.VersionID = versionID
	}
	obj, err := c.GetObject(ctx, loc.Bucket, loc.Path, opts)
	if err != nil {
		return nil, "", fmt.Errorf("s3: failed to get %s: %w", loc.Path, classifyError(err))
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, "", fmt.Errorf("s3: failed to read %s: %w", loc.Path, classifyError(err))
	}
	stat, err := obj.Stat()
	if err != nil {
		return nil, "", fmt.Errorf("s3: failed to stat %s: %w", loc.Path, classifyError(err))
	}
	return data, trimETag(stat.ETag), nil
}

// trimETag strips the quotes S3 wraps ETags in.
func trimETag(etag string) string {
	return strings.Trim(etag, `"`)
}

// classifyError maps MinIO and network errors to the provider error
// kinds.
func classifyError(err error) error {
	if err == nil {
		return nil
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return fmt.Errorf("%v: %w", err, provider.ErrTransient)
	}

	resp := minio.ToErrorResponse(err)
	switch resp.Code {
	case "NoSuchKey", "NoSuchBucket", "NoSuchVersion":
		return fmt.Errorf("%v: %w", err, provider.ErrNotFound)
	case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch":
		return fmt.Errorf("%v: %w", err, provider.ErrAuthRequired)
	case "PreconditionFailed":
		return fmt.Errorf("%v: %w", err, provider.ErrRemoteConflict)
	case "SlowDown":
		return fmt.Errorf("%v: %w", err, provider.ErrTransient)
	}
	if resp.StatusCode == 429 || resp.StatusCode >= 500 {
		return fmt.Errorf("%v: %w", err, provider.ErrTransient)
	}
	return err
}
