package source

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// DirSource serves the .pdf files of a local data directory.
type DirSource struct {
	dir string
}

// NewDirSource validates that the directory exists.
func NewDirSource(dir string) (*DirSource, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("data directory %q: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("data directory %q is not a directory", dir)
	}
	return &DirSource{dir: dir}, nil
}

// List returns the directory's PDF file names in sorted order.
func (s *DirSource) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read data directory: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.HasSuffix(strings.ToLower(entry.Name()), ".pdf") {
			names = append(names, entry.Name())
		}
	}

	sort.Strings(names)
	return names, nil
}

// Fetch reads one PDF into memory.
func (s *DirSource) Fetch(ctx context.Context, name string) (*Document, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		return nil, fmt.Errorf("read document %q: %w", name, err)
	}
	return &Document{
		Name: name,
		Stem: stem(name),
		Data: data,
	}, nil
}
