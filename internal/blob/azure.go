package blob

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// AzureStore uploads block blobs to an Azure storage container using a
// SAS token. Put Blob is a single authenticated PUT, so no SDK is needed.
type AzureStore struct {
	account   string
	container string
	sasToken  string
	http      *http.Client
}

// NewAzureStore creates a store for the given account, container and SAS
// token (query-string form, without the leading "?").
func NewAzureStore(account, container, sasToken string) (*AzureStore, error) {
	if account == "" || container == "" {
		return nil, fmt.Errorf("blob account and container are required")
	}
	if sasToken == "" {
		return nil, fmt.Errorf("blob SAS token is required")
	}
	return &AzureStore{
		account:   account,
		container: container,
		sasToken:  sasToken,
		http:      &http.Client{Timeout: 60 * time.Second},
	}, nil
}

// Upload puts the object and returns the unsigned blob URL, the form
// recorded in index documents.
func (s *AzureStore) Upload(ctx context.Context, key string, data []byte) (string, error) {
	blobURL := fmt.Sprintf("https://%s.blob.core.windows.net/%s/%s",
		s.account, s.container, url.PathEscape(key))

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, blobURL+"?"+s.sasToken, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("x-ms-blob-type", "BlockBlob")
	req.Header.Set("Content-Type", "image/png")

	resp, err := s.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload blob %q: %w", key, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("upload blob %q: status %d: %s", key, resp.StatusCode, body)
	}

	return blobURL, nil
}
