package source

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/gofri/go-github-ratelimit/github_ratelimit"
	"github.com/google/go-github/v81/github"
)

// GitHubSource serves PDF documents from a repository directory. Useful
// when architecture decks live in a docs repo rather than on disk.
type GitHubSource struct {
	client   *github.Client
	owner    string
	repo     string
	basePath string
}

// NewGitHubSource creates a source with rate limiting and optional
// authentication. If GITHUB_TOKEN is set, the client is authenticated
// for higher rate limits.
func NewGitHubSource(owner, repo, basePath string) (*GitHubSource, error) {
	// Handles both primary rate limits and secondary (abuse detection)
	// limits with automatic retry.
	rateLimiter, err := github_ratelimit.NewRateLimitWaiterClient(nil)
	if err != nil {
		return nil, err
	}

	ghClient := github.NewClient(rateLimiter)
	if token := os.Getenv("GITHUB_TOKEN"); token != "" {
		ghClient = ghClient.WithAuthToken(token)
	}

	return &GitHubSource{
		client:   ghClient,
		owner:    owner,
		repo:     repo,
		basePath: basePath,
	}, nil
}

// List recursively collects all .pdf files under the base path.
func (s *GitHubSource) List(ctx context.Context) ([]string, error) {
	return s.listRecursive(ctx, s.basePath, "")
}

func (s *GitHubSource) listRecursive(ctx context.Context, fullPath, relativePath string) ([]string, error) {
	var docs []string

	_, dirContents, _, err := s.client.Repositories.GetContents(
		ctx,
		s.owner,
		s.repo,
		fullPath,
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get contents of %s: %w", fullPath, err)
	}

	for _, item := range dirContents {
		if item.Type == nil || item.Name == nil {
			continue
		}

		itemRelPath := path.Join(relativePath, *item.Name)

		switch *item.Type {
		case "file":
			if strings.HasSuffix(strings.ToLower(*item.Name), ".pdf") {
				docs = append(docs, itemRelPath)
			}

		case "dir":
			itemFullPath := path.Join(fullPath, *item.Name)
			subDocs, err := s.listRecursive(ctx, itemFullPath, itemRelPath)
			if err != nil {
				return nil, err
			}
			docs = append(docs, subDocs...)
		}
	}

	return docs, nil
}

// Fetch downloads one PDF blob. PDFs exceed the contents-API size cap,
// so the download endpoint is used instead of base64 content.
func (s *GitHubSource) Fetch(ctx context.Context, name string) (*Document, error) {
	fullPath := path.Join(s.basePath, name)

	reader, _, err := s.client.Repositories.DownloadContents(
		ctx,
		s.owner,
		s.repo,
		fullPath,
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", fullPath, err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", fullPath, err)
	}

	return &Document{
		Name: path.Base(name),
		Stem: stem(path.Base(name)),
		Data: data,
	}, nil
}
