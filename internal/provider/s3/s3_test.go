package s3

import (
	"errors"
	"testing"

	"github.com/minio/minio-go/v7"

	"github.com/SamTV12345/stackedit/internal/item"
	"github.com/SamTV12345/stackedit/internal/provider"
)

func TestAuthenticateWithoutCredentials(t *testing.T) {
	prov := New(nil)
	_, err := prov.Authenticate(t.Context(), &item.Workspace{Bucket: "docs", Endpoint: "localhost:9000"})
	if !errors.Is(err, provider.ErrAuthRequired) {
		t.Fatalf("expected ErrAuthRequired, got %v", err)
	}
}

func TestRegistered(t *testing.T) {
	if !provider.IsRegistered(ProviderID) {
		t.Fatal("expected the s3 backend to self-register")
	}
	p, err := provider.Resolve(ProviderID)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if p.ID() != ProviderID {
		t.Errorf("ID() = %q", p.ID())
	}
}

func TestClassifyError(t *testing.T) {
	cases := []struct {
		code   string
		status int
		want   error
	}{
		{"NoSuchKey", 404, provider.ErrNotFound},
		{"NoSuchBucket", 404, provider.ErrNotFound},
		{"AccessDenied", 403, provider.ErrAuthRequired},
		{"InvalidAccessKeyId", 403, provider.ErrAuthRequired},
		{"PreconditionFailed", 412, provider.ErrRemoteConflict},
		{"SlowDown", 503, provider.ErrTransient},
		{"InternalError", 500, provider.ErrTransient},
	}
	for _, tc := range cases {
		err := classifyError(minio.ErrorResponse{Code: tc.code, StatusCode: tc.status})
		if !errors.Is(err, tc.want) {
			t.Errorf("classifyError(%s) = %v, want %v", tc.code, err, tc.want)
		}
	}

	if got := classifyError(nil); got != nil {
		t.Errorf("classifyError(nil) = %v", got)
	}
	plain := errors.New("something else")
	if got := classifyError(plain); !errors.Is(got, plain) {
		t.Errorf("expected unknown errors to pass through, got %v", got)
	}
}

func TestTrimETag(t *testing.T) {
	if got := trimETag(`"abc123"`); got != "abc123" {
		t.Errorf("trimETag = %q", got)
	}
	if got := trimETag("abc123"); got != "abc123" {
		t.Errorf("trimETag = %q", got)
	}
}
