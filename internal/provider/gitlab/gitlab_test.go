package gitlab

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"sync"
	"testing"

	"golang.org/x/oauth2"

	"github.com/SamTV12345/stackedit/internal/confirm"
	"github.com/SamTV12345/stackedit/internal/item"
	"github.com/SamTV12345/stackedit/internal/provider"
)

type fakeFile struct {
	content string
	blobID  string
}

// fakeGitLab serves the API subset the backend uses.
type fakeGitLab struct {
	mu      sync.Mutex
	files   map[string]*fakeFile
	blobSeq int

	unauthorized bool
	failures     int
}

func newFakeGitLab() *fakeGitLab {
	return &fakeGitLab{files: make(map[string]*fakeFile)}
}

func (g *fakeGitLab) put(path, content string) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.blobSeq++
	blobID := fmt.Sprintf("blob-%d", g.blobSeq)
	g.files[path] = &fakeFile{content: content, blobID: blobID}
	return blobID
}

func (g *fakeGitLab) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/v4/user", func(w http.ResponseWriter, r *http.Request) {
		if g.unauthorized {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"id": 7, "username": "alice", "name": "Alice"})
	})

	mux.HandleFunc("/api/v4/projects/42/repository/tree", func(w http.ResponseWriter, r *http.Request) {
		g.mu.Lock()
		defer g.mu.Unlock()

		paths := make([]string, 0, len(g.files))
		for path := range g.files {
			paths = append(paths, path)
		}
		sort.Strings(paths)

		var entries []map[string]string
		for _, path := range paths {
			f := g.files[path]
			entries = append(entries, map[string]string{
				"id": f.blobID, "name": path, "type": "blob", "path": path,
			})
		}

		// Serve one entry per page to exercise pagination.
		page := r.URL.Query().Get("page")
		idx := 0
		fmt.Sscanf(page, "%d", &idx)
		if idx < 1 {
			idx = 1
		}
		if idx <= len(entries) {
			if idx < len(entries) {
				w.Header().Set("X-Next-Page", fmt.Sprintf("%d", idx+1))
			}
			json.NewEncoder(w).Encode(entries[idx-1 : idx])
			return
		}
		json.NewEncoder(w).Encode([]any{})
	})

	mux.HandleFunc("/api/v4/projects/42/repository/commits", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]map[string]any{
			{"id": "c2", "author_name": "Alice", "author_email": "alice@example.com", "created_at": "2024-03-02T10:00:00Z"},
			{"id": "c1", "author_name": "Bob", "author_email": "bob@example.com", "created_at": "2024-03-01T10:00:00Z"},
		})
	})

	mux.HandleFunc("/api/v4/projects/42/repository/files/", func(w http.ResponseWriter, r *http.Request) {
		g.mu.Lock()
		defer g.mu.Unlock()

		if g.failures > 0 {
			g.failures--
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}

		rawPath := strings.TrimPrefix(r.URL.EscapedPath(), "/api/v4/projects/42/repository/files/")
		raw := strings.TrimSuffix(rawPath, "/raw")
		path, err := url.PathUnescape(raw)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		switch r.Method {
		case http.MethodGet:
			f, ok := g.files[path]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			if strings.HasSuffix(rawPath, "/raw") {
				w.Write([]byte(f.content))
				return
			}
			json.NewEncoder(w).Encode(map[string]string{
				"blob_id":  f.blobID,
				"content":  base64.StdEncoding.EncodeToString([]byte(f.content)),
				"encoding": "base64",
			})

		case http.MethodPost:
			if _, exists := g.files[path]; exists {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			g.storeUpload(w, r, path)

		case http.MethodPut:
			if _, exists := g.files[path]; !exists {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			g.storeUpload(w, r, path)

		case http.MethodDelete:
			delete(g.files, path)
			w.WriteHeader(http.StatusNoContent)
		}
	})

	return mux
}

// storeUpload is called with the mutex held.
func (g *fakeGitLab) storeUpload(w http.ResponseWriter, r *http.Request, path string) {
	var body struct {
		Content  string `json:"content"`
		Encoding string `json:"encoding"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	content := body.Content
	if body.Encoding == "base64" {
		data, err := base64.StdEncoding.DecodeString(body.Content)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		content = string(data)
	}
	g.blobSeq++
	g.files[path] = &fakeFile{content: content, blobID: fmt.Sprintf("blob-%d", g.blobSeq)}
	json.NewEncoder(w).Encode(map[string]string{"file_path": path})
}

func setupProvider(t *testing.T, cfg *Config) (*Provider, *fakeGitLab, *item.Workspace) {
	t.Helper()
	fake := newFakeGitLab()
	server := httptest.NewServer(fake.handler())
	t.Cleanup(server.Close)

	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Token == nil {
		cfg.Token = &oauth2.Token{AccessToken: "secret"}
	}
	prov := New(cfg)

	ws := &item.Workspace{
		ID:         "ws1",
		ProviderID: ProviderID,
		ServerURL:  server.URL,
		ProjectID:  "42",
		Branch:     "main",
	}
	return prov, fake, ws
}

func mustAuthenticate(t *testing.T, prov *Provider, ws *item.Workspace) *provider.Token {
	t.Helper()
	token, err := prov.Authenticate(t.Context(), ws)
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	return token
}

func TestAuthenticate(t *testing.T) {
	prov, _, ws := setupProvider(t, nil)
	token := mustAuthenticate(t, prov, ws)
	if token.Sub != "7" || token.Name != "Alice" {
		t.Errorf("unexpected token identity: %+v", token)
	}
}

func TestAuthenticateWithoutToken(t *testing.T) {
	prov, _, ws := setupProvider(t, &Config{Token: &oauth2.Token{}})
	_, err := prov.Authenticate(t.Context(), ws)
	if !errors.Is(err, provider.ErrAuthRequired) {
		t.Fatalf("expected ErrAuthRequired, got %v", err)
	}
}

func TestAuthenticateDeclinedConsent(t *testing.T) {
	prov, _, ws := setupProvider(t, &Config{Confirmer: confirm.AutoDecline{}})
	_, err := prov.Authenticate(t.Context(), ws)
	if !errors.Is(err, confirm.ErrCancelled) {
		t.Fatalf("expected ErrCancelled, got %v", err)
	}
}

func TestListChangesPaginates(t *testing.T) {
	prov, fake, ws := setupProvider(t, nil)
	fake.put("a.md", "alpha")
	fake.put("b.md", "beta")
	fake.put("c.md", "gamma")

	token := mustAuthenticate(t, prov, ws)
	entries, err := prov.ListChanges(t.Context(), token, ws)
	if err != nil {
		t.Fatalf("ListChanges failed: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries across pages, got %d", len(entries))
	}
	for _, entry := range entries {
		if entry.Type != provider.EntryBlob || entry.ID == "" {
			t.Errorf("unexpected entry %+v", entry)
		}
	}
}

func TestDownloadContentSplitsFrontMatter(t *testing.T) {
	prov, fake, ws := setupProvider(t, nil)
	blobID := fake.put("post.md", "---\ntitle: Hello\n---\nbody text")

	token := mustAuthenticate(t, prov, ws)
	loc := &item.Location{FileID: "f1", ProjectID: "42", Branch: "main", Path: "post.md"}
	content, revision, err := prov.DownloadContent(t.Context(), token, loc)
	if err != nil {
		t.Fatalf("DownloadContent failed: %v", err)
	}
	if revision != blobID {
		t.Errorf("revision = %q, want %q", revision, blobID)
	}
	if content.Text != "body text" {
		t.Errorf("Text = %q", content.Text)
	}
	if content.Properties != "title: Hello\n" {
		t.Errorf("Properties = %q", content.Properties)
	}
	if content.ID != item.ContentID("f1") {
		t.Errorf("ID = %q", content.ID)
	}
}

func TestDownloadContentNotFound(t *testing.T) {
	prov, _, ws := setupProvider(t, nil)
	token := mustAuthenticate(t, prov, ws)
	loc := &item.Location{ProjectID: "42", Branch: "main", Path: "missing.md"}
	_, _, err := prov.DownloadContent(t.Context(), token, loc)
	if !errors.Is(err, provider.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUploadContentCreatesNewFile(t *testing.T) {
	prov, fake, ws := setupProvider(t, nil)
	token := mustAuthenticate(t, prov, ws)

	content := &item.Content{Text: "fresh", Hash: 99}
	loc := &item.Location{FileID: "f1", ProjectID: "42", Branch: "main", Path: "new.md"}
	updated, err := prov.UploadContent(t.Context(), token, content, loc)
	if err != nil {
		t.Fatalf("UploadContent failed: %v", err)
	}
	if updated.Revision == "" || updated.Hash != 99 {
		t.Errorf("unexpected location %+v", updated)
	}
	fake.mu.Lock()
	stored := fake.files["new.md"]
	fake.mu.Unlock()
	if stored == nil || stored.content != "fresh" {
		t.Errorf("expected file stored remotely, got %+v", stored)
	}
}

func TestUploadContentConditionedOnBlob(t *testing.T) {
	prov, fake, ws := setupProvider(t, nil)
	blobID := fake.put("post.md", "v1")
	token := mustAuthenticate(t, prov, ws)

	// A write with the current blob sha succeeds.
	loc := &item.Location{FileID: "f1", ProjectID: "42", Branch: "main", Path: "post.md", Revision: blobID}
	updated, err := prov.UploadContent(t.Context(), token, &item.Content{Text: "v2"}, loc)
	if err != nil {
		t.Fatalf("UploadContent failed: %v", err)
	}
	if updated.Revision == blobID {
		t.Error("expected a new blob sha after upload")
	}

	// A write with a stale blob sha is rejected without touching the file.
	stale := &item.Location{FileID: "f1", ProjectID: "42", Branch: "main", Path: "post.md", Revision: blobID}
	_, err = prov.UploadContent(t.Context(), token, &item.Content{Text: "v3"}, stale)
	if !errors.Is(err, provider.ErrRemoteConflict) {
		t.Fatalf("expected ErrRemoteConflict, got %v", err)
	}
	fake.mu.Lock()
	text := fake.files["post.md"].content
	fake.mu.Unlock()
	if text != "v2" {
		t.Errorf("conflicting write modified the file: %q", text)
	}
}

func TestRemove(t *testing.T) {
	prov, fake, ws := setupProvider(t, nil)
	fake.put("doomed.md", "bye")
	token := mustAuthenticate(t, prov, ws)

	loc := &item.Location{ProjectID: "42", Branch: "main", Path: "doomed.md"}
	if err := prov.Remove(t.Context(), token, loc); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	fake.mu.Lock()
	_, exists := fake.files["doomed.md"]
	fake.mu.Unlock()
	if exists {
		t.Error("expected file removed remotely")
	}
}

func TestListRevisions(t *testing.T) {
	prov, _, ws := setupProvider(t, nil)
	token := mustAuthenticate(t, prov, ws)

	loc := &item.Location{ProjectID: "42", Branch: "main", Path: "post.md"}
	revisions, err := prov.ListRevisions(t.Context(), token, loc)
	if err != nil {
		t.Fatalf("ListRevisions failed: %v", err)
	}
	if len(revisions) != 2 || revisions[0].ID != "c2" || revisions[1].ID != "c1" {
		t.Errorf("unexpected revisions %+v", revisions)
	}
	if revisions[0].Name != "Alice" {
		t.Errorf("unexpected author %q", revisions[0].Name)
	}
}

func TestLoadRevisionContent(t *testing.T) {
	prov, fake, ws := setupProvider(t, nil)
	fake.put("post.md", "historic body")
	token := mustAuthenticate(t, prov, ws)

	loc := &item.Location{FileID: "f1", ProjectID: "42", Branch: "main", Path: "post.md"}
	content, err := prov.LoadRevisionContent(t.Context(), token, "c1", loc)
	if err != nil {
		t.Fatalf("LoadRevisionContent failed: %v", err)
	}
	if content.Text != "historic body" {
		t.Errorf("Text = %q", content.Text)
	}
}

func TestServerErrorsAreTransient(t *testing.T) {
	prov, fake, ws := setupProvider(t, nil)
	fake.put("post.md", "v1")
	fake.failures = 1
	token := mustAuthenticate(t, prov, ws)

	loc := &item.Location{ProjectID: "42", Branch: "main", Path: "post.md"}
	_, _, err := prov.DownloadContent(t.Context(), token, loc)
	if !provider.IsRetryable(err) {
		t.Fatalf("expected a retryable error, got %v", err)
	}
}

func TestUnauthorizedIsAuthRequired(t *testing.T) {
	prov, fake, ws := setupProvider(t, nil)
	fake.unauthorized = true
	_, err := prov.Authenticate(context.Background(), ws)
	if !errors.Is(err, provider.ErrAuthRequired) {
		t.Fatalf("expected ErrAuthRequired, got %v", err)
	}
}
