// Package source provides the PDF documents fed into the ingestion
// pipeline, from a local directory or a GitHub repository path.
package source

import (
	"context"
	"path"
	"strings"
)

// Document is one source PDF, read once at pipeline start and immutable
// afterwards.
type Document struct {
	Name string // file name, e.g. "reference-architectures.pdf"
	Stem string // file name without extension, used for crop keys
	Data []byte
}

// Source lists and fetches PDF documents.
type Source interface {
	List(ctx context.Context) ([]string, error)
	Fetch(ctx context.Context, name string) (*Document, error)
}

// stem strips the .pdf extension from a document name, whatever its case.
func stem(name string) string {
	ext := path.Ext(name)
	if strings.EqualFold(ext, ".pdf") {
		return strings.TrimSuffix(name, ext)
	}
	return name
}
