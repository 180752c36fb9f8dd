// Package gitlab implements the provider backend for GitLab projects
// over the REST API. A workspace maps to one branch of one project,
// optionally rooted at a directory prefix; items and content live as
// regular repository files.
package gitlab

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/SamTV12345/stackedit/internal/confirm"
	"github.com/SamTV12345/stackedit/internal/item"
	"github.com/SamTV12345/stackedit/internal/notify"
	"github.com/SamTV12345/stackedit/internal/provider"
)

// ProviderID identifies this backend in workspace and location records.
const ProviderID = "gitlab"

// dataFolder holds serialized item records inside the repository.
const dataFolder = ".stackedit-data"

const commitMessage = "Update from StackEdit"

func init() {
	provider.Register(ProviderID, func() (provider.Provider, error) {
		return New(nil), nil
	})
}

// Config holds collaborators and credentials for the GitLab backend.
type Config struct {
	// HTTPClient overrides the client used for API calls.
	HTTPClient *http.Client

	// Token is the static OAuth token used for every request. Without
	// one Authenticate fails with ErrAuthRequired.
	Token *oauth2.Token

	// Confirmer gates first-time consent for a workspace. Nil skips the
	// consent gate.
	Confirmer confirm.Confirmer

	// Badges receives one-shot achievement signals. Nil disables them.
	Badges *notify.Badges

	// Logger for backend activity. Nil uses a default stderr logger.
	Logger *log.Logger
}

// Provider talks to one GitLab server.
type Provider struct {
	client    *http.Client
	token     *oauth2.Token
	confirmer confirm.Confirmer
	badges    *notify.Badges
	logger    *log.Logger

	consented map[string]bool
}

// New creates a GitLab backend.
func New(cfg *Config) *Provider {
	if cfg == nil {
		cfg = &Config{}
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[gitlab] ", log.LstdFlags)
	}
	return &Provider{
		client:    client,
		token:     cfg.Token,
		confirmer: cfg.Confirmer,
		badges:    cfg.Badges,
		logger:    logger,
		consented: make(map[string]bool),
	}
}

// ID implements provider.Provider.
func (p *Provider) ID() string { return ProviderID }

// Name implements provider.Provider.
func (p *Provider) Name() string { return "GitLab" }

// Authenticate validates the configured token against the server and
// gates first-time access to a workspace on user consent.
func (p *Provider) Authenticate(ctx context.Context, ws *item.Workspace) (*provider.Token, error) {
	if p.token == nil || p.token.AccessToken == "" {
		return nil, fmt.Errorf("gitlab: no access token configured: %w", provider.ErrAuthRequired)
	}

	if p.confirmer != nil && !p.consented[ws.ID] {
		result, err := p.confirmer.Confirm(ctx, confirm.Request{
			Type:     confirm.TypeProviderConsent,
			ItemName: ws.ProjectPath,
		})
		if err != nil {
			return nil, err
		}
		if !result.Confirmed {
			return nil, confirm.ErrCancelled
		}
		p.consented[ws.ID] = true
		if p.badges != nil {
			p.badges.Add(notify.BadgeAddGitlabWorkspace)
		}
	}

	token := &provider.Token{
		OAuth:     p.token,
		ServerURL: strings.TrimSuffix(ws.ServerURL, "/"),
	}

	var user struct {
		ID       int    `json:"id"`
		Username string `json:"username"`
		Name     string `json:"name"`
	}
	if err := p.get(ctx, token, "/user", nil, &user); err != nil {
		return nil, fmt.Errorf("gitlab: failed to identify user: %w", err)
	}
	token.Sub = fmt.Sprintf("%d", user.ID)
	token.Name = user.Name
	return token, nil
}

type treeEntry struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
	Path string `json:"path"`
}

// ListChanges lists the repository tree of the workspace branch,
// restricted to the workspace path prefix. Entry ids are blob shas.
func (p *Provider) ListChanges(ctx context.Context, token *provider.Token, ws *item.Workspace) ([]provider.TreeEntry, error) {
	var entries []provider.TreeEntry
	page := "1"
	for page != "" {
		query := url.Values{
			"ref":       {ws.Branch},
			"recursive": {"true"},
			"per_page":  {"100"},
			"page":      {page},
		}
		if ws.Path != "" {
			query.Set("path", strings.TrimSuffix(ws.Path, "/"))
		}

		var batch []treeEntry
		next, err := p.getPaged(ctx, token, "/projects/"+url.PathEscape(ws.ProjectID)+"/repository/tree", query, &batch)
		if err != nil {
			return nil, fmt.Errorf("gitlab: failed to list repository tree: %w", err)
		}
		for _, entry := range batch {
			entryType := provider.EntryTree
			if entry.Type == "blob" {
				entryType = provider.EntryBlob
			}
			entries = append(entries, provider.TreeEntry{
				Path: strings.TrimPrefix(entry.Path, ws.Path),
				Type: entryType,
				ID:   entry.ID,
			})
		}
		page = next
	}
	return entries, nil
}

type fileResponse struct {
	BlobID       string `json:"blob_id"`
	LastCommitID string `json:"last_commit_id"`
	Content      string `json:"content"`
	Encoding     string `json:"encoding"`
}

// DownloadContent fetches the file at the location and splits it into a
// content record. The returned revision is the blob sha.
func (p *Provider) DownloadContent(ctx context.Context, token *provider.Token, loc *item.Location) (*item.Content, string, error) {
	file, err := p.getFile(ctx, token, loc)
	if err != nil {
		return nil, "", err
	}
	data, err := decodeFileContent(file)
	if err != nil {
		return nil, "", fmt.Errorf("gitlab: file %s: %w", loc.Path, err)
	}
	content := provider.ParseContent(string(data))
	content.ID = item.ContentID(loc.FileID)
	return content, file.BlobID, nil
}

// DownloadData fetches a serialized item record from the data folder.
func (p *Provider) DownloadData(ctx context.Context, token *provider.Token, loc *item.Location) (*item.Item, string, error) {
	file, err := p.getFile(ctx, token, loc)
	if err != nil {
		return nil, "", err
	}
	data, err := decodeFileContent(file)
	if err != nil {
		return nil, "", fmt.Errorf("gitlab: file %s: %w", loc.Path, err)
	}
	var it item.Item
	if err := json.Unmarshal(data, &it); err != nil {
		return nil, "", fmt.Errorf("gitlab: failed to decode item record %s: %w", loc.Path, err)
	}
	return &it, file.BlobID, nil
}

// UploadContent writes the serialized content to the location path. The
// write is conditioned on the last known blob sha: if the remote blob
// moved since, ErrRemoteConflict is returned and nothing is written.
func (p *Provider) UploadContent(ctx context.Context, token *provider.Token, content *item.Content, loc *item.Location) (*item.Location, error) {
	return p.uploadFile(ctx, token, loc, []byte(provider.SerializeContent(content)), content.Hash)
}

// UploadData writes a serialized item record into the data folder.
func (p *Provider) UploadData(ctx context.Context, token *provider.Token, it *item.Item, loc *item.Location) (*item.Location, error) {
	data, err := json.Marshal(it)
	if err != nil {
		return nil, fmt.Errorf("gitlab: failed to encode item record: %w", err)
	}
	if loc.Path == "" {
		loc = cloneLocation(loc)
		loc.Path = path.Join(dataFolder, it.ID+".json")
	}
	return p.uploadFile(ctx, token, loc, data, it.Hash)
}

func (p *Provider) uploadFile(ctx context.Context, token *provider.Token, loc *item.Location, data []byte, hash uint32) (*item.Location, error) {
	exists := true
	current, err := p.getFile(ctx, token, loc)
	if err != nil {
		if !provider.IsNotFound(err) {
			return nil, err
		}
		exists = false
	}

	if exists && loc.Revision != "" && current.BlobID != loc.Revision {
		return nil, fmt.Errorf("gitlab: file %s moved to blob %s: %w", loc.Path, current.BlobID, provider.ErrRemoteConflict)
	}

	method := http.MethodPost
	if exists {
		method = http.MethodPut
	}
	body := map[string]string{
		"branch":         loc.Branch,
		"content":        base64.StdEncoding.EncodeToString(data),
		"encoding":       "base64",
		"commit_message": commitMessage,
	}
	if err := p.do(ctx, token, method, p.filePath(loc), nil, body, nil); err != nil {
		return nil, fmt.Errorf("gitlab: failed to upload %s: %w", loc.Path, err)
	}

	// Re-read the metadata for the new blob sha.
	updatedFile, err := p.getFile(ctx, token, loc)
	if err != nil {
		return nil, fmt.Errorf("gitlab: failed to read back %s: %w", loc.Path, err)
	}

	updated := cloneLocation(loc)
	updated.Hash = hash
	updated.Revision = updatedFile.BlobID
	return updated, nil
}

// Remove deletes the remote file.
func (p *Provider) Remove(ctx context.Context, token *provider.Token, loc *item.Location) error {
	body := map[string]string{
		"branch":         loc.Branch,
		"commit_message": commitMessage,
	}
	if err := p.do(ctx, token, http.MethodDelete, p.filePath(loc), nil, body, nil); err != nil {
		return fmt.Errorf("gitlab: failed to remove %s: %w", loc.Path, err)
	}
	return nil
}

type commit struct {
	ID          string    `json:"id"`
	AuthorName  string    `json:"author_name"`
	AuthorEmail string    `json:"author_email"`
	CreatedAt   time.Time `json:"created_at"`
}

// ListRevisions lists the commits touching the location path, newest
// first.
func (p *Provider) ListRevisions(ctx context.Context, token *provider.Token, loc *item.Location) ([]provider.Revision, error) {
	query := url.Values{
		"ref_name": {loc.Branch},
		"path":     {loc.Path},
		"per_page": {"100"},
	}
	var commits []commit
	if err := p.get(ctx, token, "/projects/"+url.PathEscape(loc.ProjectID)+"/repository/commits", query, &commits); err != nil {
		return nil, fmt.Errorf("gitlab: failed to list commits for %s: %w", loc.Path, err)
	}

	revisions := make([]provider.Revision, 0, len(commits))
	for _, c := range commits {
		revisions = append(revisions, provider.Revision{
			ID:      c.ID,
			Sub:     c.AuthorEmail,
			Name:    c.AuthorName,
			Created: c.CreatedAt,
		})
	}
	return revisions, nil
}

// LoadRevisionContent fetches the file content as of a commit.
func (p *Provider) LoadRevisionContent(ctx context.Context, token *provider.Token, revisionID string, loc *item.Location) (*item.Content, error) {
	query := url.Values{"ref": {revisionID}}
	data, err := p.raw(ctx, token, p.filePath(loc)+"/raw", query)
	if err != nil {
		return nil, fmt.Errorf("gitlab: failed to load %s at %s: %w", loc.Path, revisionID, err)
	}
	content := provider.ParseContent(string(data))
	content.ID = item.ContentID(loc.FileID)
	return content, nil
}

func (p *Provider) getFile(ctx context.Context, token *provider.Token, loc *item.Location) (*fileResponse, error) {
	query := url.Values{"ref": {loc.Branch}}
	var file fileResponse
	if err := p.get(ctx, token, p.filePath(loc), query, &file); err != nil {
		return nil, err
	}
	return &file, nil
}

func (p *Provider) filePath(loc *item.Location) string {
	return "/projects/" + url.PathEscape(loc.ProjectID) + "/repository/files/" + url.PathEscape(loc.Path)
}

func decodeFileContent(file *fileResponse) ([]byte, error) {
	if file.Encoding == "base64" {
		data, err := base64.StdEncoding.DecodeString(file.Content)
		if err != nil {
			return nil, fmt.Errorf("failed to decode base64 content: %w", err)
		}
		return data, nil
	}
	return []byte(file.Content), nil
}

func cloneLocation(loc *item.Location) *item.Location {
	copied := *loc
	return &copied
}

// get performs a GET request and decodes the JSON response into out.
func (p *Provider) get(ctx context.Context, token *provider.Token, apiPath string, query url.Values, out any) error {
	return p.do(ctx, token, http.MethodGet, apiPath, query, nil, out)
}

// getPaged performs a GET request and returns the next page number from
// the pagination headers, or "" on the last page.
func (p *Provider) getPaged(ctx context.Context, token *provider.Token, apiPath string, query url.Values, out any) (string, error) {
	resp, err := p.send(ctx, token, http.MethodGet, apiPath, query, nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if err := decodeResponse(resp, out); err != nil {
		return "", err
	}
	return resp.Header.Get("X-Next-Page"), nil
}

// raw performs a GET request and returns the response body verbatim.
func (p *Provider) raw(ctx context.Context, token *provider.Token, apiPath string, query url.Values) ([]byte, error) {
	resp, err := p.send(ctx, token, http.MethodGet, apiPath, query, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp); err != nil {
		return nil, err
	}
	return io.ReadAll(resp.Body)
}

func (p *Provider) do(ctx context.Context, token *provider.Token, method, apiPath string, query url.Values, body map[string]string, out any) error {
	resp, err := p.send(ctx, token, method, apiPath, query, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decodeResponse(resp, out)
}

func (p *Provider) send(ctx context.Context, token *provider.Token, method, apiPath string, query url.Values, body map[string]string) (*http.Response, error) {
	endpoint := token.ServerURL + "/api/v4" + apiPath
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token.OAuth.AccessToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s %s: %v: %w", method, apiPath, err, provider.ErrTransient)
	}
	return resp, nil
}

func decodeResponse(resp *http.Response, out any) error {
	if err := classifyStatus(resp); err != nil {
		return err
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// classifyStatus maps HTTP status codes to the provider error kinds.
func classifyStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("status %d: %w", resp.StatusCode, provider.ErrAuthRequired)
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("status %d: %w", resp.StatusCode, provider.ErrNotFound)
	case resp.StatusCode == http.StatusConflict:
		return fmt.Errorf("status %d: %w", resp.StatusCode, provider.ErrRemoteConflict)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return fmt.Errorf("status %d: %w", resp.StatusCode, provider.ErrTransient)
	default:
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
}
