package blob

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// TestFileStore_Upload verifies the object lands on disk and the URL
// points at it.
func TestFileStore_Upload(t *testing.T) {
	root := t.TempDir()
	store, err := NewFileStore(root)
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}

	url, err := store.Upload(context.Background(), "sample_000.png", []byte("png-bytes"))
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}

	if !strings.HasPrefix(url, "file://") {
		t.Errorf("Expected file URL, got %q", url)
	}
	if !strings.HasSuffix(url, "sample_000.png") {
		t.Errorf("Expected URL to end with blob key, got %q", url)
	}

	data, err := os.ReadFile(filepath.Join(root, "sample_000.png"))
	if err != nil {
		t.Fatalf("Blob not written: %v", err)
	}
	if string(data) != "png-bytes" {
		t.Errorf("Blob content mismatch: %q", data)
	}
}

// TestAzureStore_Upload drives the SAS PUT against a test server.
func TestAzureStore_Upload(t *testing.T) {
	var gotPath, gotBlobType string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotBlobType = r.Header.Get("x-ms-blob-type")
		if r.URL.RawQuery != "sv=test&sig=abc" {
			http.Error(w, "missing sas", http.StatusForbidden)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	store := &AzureStore{
		account:   "testacct",
		container: "figures",
		sasToken:  "sv=test&sig=abc",
		http:      server.Client(),
	}
	// Point the request at the test server instead of Azure.
	store.http.Transport = rewriteTransport{base: http.DefaultTransport, target: server.URL}

	url, err := store.Upload(context.Background(), "sample_000.png", []byte("png-bytes"))
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}

	if gotPath != "/figures/sample_000.png" {
		t.Errorf("Expected path /figures/sample_000.png, got %q", gotPath)
	}
	if gotBlobType != "BlockBlob" {
		t.Errorf("Expected BlockBlob header, got %q", gotBlobType)
	}
	// The recorded URL must be the unsigned blob location.
	expected := "https://testacct.blob.core.windows.net/figures/sample_000.png"
	if url != expected {
		t.Errorf("Expected %q, got %q", expected, url)
	}
}

// rewriteTransport redirects requests to the test server while keeping
// the original path and query.
type rewriteTransport struct {
	base   http.RoundTripper
	target string
}

func (t rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	rewritten := t.target + req.URL.Path + "?" + req.URL.RawQuery
	clone := req.Clone(req.Context())
	u, err := clone.URL.Parse(rewritten)
	if err != nil {
		return nil, err
	}
	clone.URL = u
	return t.base.RoundTrip(clone)
}
