package provider

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/SamTV12345/stackedit/internal/item"
)

// mockProvider is a minimal Provider for registry tests.
type mockProvider struct {
	id string
}

func (m *mockProvider) ID() string   { return m.id }
func (m *mockProvider) Name() string { return "Mock" }
func (m *mockProvider) Authenticate(ctx context.Context, ws *item.Workspace) (*Token, error) {
	return &Token{Sub: "mock:user"}, nil
}
func (m *mockProvider) ListChanges(ctx context.Context, token *Token, ws *item.Workspace) ([]TreeEntry, error) {
	return nil, nil
}
func (m *mockProvider) DownloadContent(ctx context.Context, token *Token, loc *item.Location) (*item.Content, string, error) {
	return nil, "", ErrNotFound
}
func (m *mockProvider) DownloadData(ctx context.Context, token *Token, loc *item.Location) (*item.Item, string, error) {
	return nil, "", ErrNotFound
}
func (m *mockProvider) UploadContent(ctx context.Context, token *Token, content *item.Content, loc *item.Location) (*item.Location, error) {
	return loc, nil
}
func (m *mockProvider) UploadData(ctx context.Context, token *Token, it *item.Item, loc *item.Location) (*item.Location, error) {
	return loc, nil
}
func (m *mockProvider) Remove(ctx context.Context, token *Token, loc *item.Location) error {
	return nil
}
func (m *mockProvider) ListRevisions(ctx context.Context, token *Token, loc *item.Location) ([]Revision, error) {
	return nil, nil
}
func (m *mockProvider) LoadRevisionContent(ctx context.Context, token *Token, revisionID string, loc *item.Location) (*item.Content, error) {
	return nil, ErrNotFound
}

// testIDCounter generates unique provider ids per test.
var testIDCounter int64

func uniqueTestID(prefix string) string {
	n := atomic.AddInt64(&testIDCounter, 1)
	return fmt.Sprintf("%s-%d", prefix, n)
}

func TestRegisterAndResolve(t *testing.T) {
	id := uniqueTestID("registry-test")
	Register(id, func() (Provider, error) {
		return &mockProvider{id: id}, nil
	})

	if !IsRegistered(id) {
		t.Error("expected id to be registered")
	}

	p, err := Resolve(id)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if p.ID() != id {
		t.Errorf("resolved provider id = %q, want %q", p.ID(), id)
	}
}

func TestResolveUnknown(t *testing.T) {
	_, err := Resolve("no-such-provider")
	if !errors.Is(err, ErrNotRegistered) {
		t.Errorf("expected ErrNotRegistered, got %v", err)
	}
}

func TestRegisterDuplicatePanics(t *testing.T) {
	id := uniqueTestID("dup-test")
	ctor := func() (Provider, error) { return &mockProvider{id: id}, nil }
	Register(id, ctor)

	defer func() {
		if recover() == nil {
			t.Error("expected panic on duplicate registration")
		}
	}()
	Register(id, ctor)
}

func TestSetResolvesOnce(t *testing.T) {
	id := uniqueTestID("set-test")
	var calls int64
	Register(id, func() (Provider, error) {
		atomic.AddInt64(&calls, 1)
		return &mockProvider{id: id}, nil
	})

	set, err := NewSet(id)
	if err != nil {
		t.Fatalf("NewSet failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		if _, err := set.Get(id); err != nil {
			t.Fatalf("Get failed: %v", err)
		}
	}
	if calls != 1 {
		t.Errorf("constructor called %d times, want once", calls)
	}

	if _, err := set.Get("missing"); !errors.Is(err, ErrNotRegistered) {
		t.Errorf("expected ErrNotRegistered for id outside the set, got %v", err)
	}
}

func TestErrorClassification(t *testing.T) {
	wrapped := fmt.Errorf("PUT /file: %w", ErrTransient)
	if !IsRetryable(wrapped) {
		t.Error("wrapped transient error should be retryable")
	}
	if IsRetryable(ErrRemoteConflict) {
		t.Error("conflict must not be blanket-retried")
	}
	if !IsUserActionRequired(ErrRemoteConflict) {
		t.Error("conflict requires user action")
	}
	if !IsUserActionRequired(ErrAuthRequired) {
		t.Error("auth failure requires user action")
	}
	if IsRetryable(nil) || IsUserActionRequired(nil) || IsFatal(nil) {
		t.Error("nil error should classify as nothing")
	}
}
