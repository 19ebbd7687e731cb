// Package blob stores rendered diagram crops and returns their public
// locations for the index records.
package blob

import "context"

// Store uploads a named object and returns its accessible URL.
type Store interface {
	Upload(ctx context.Context, key string, data []byte) (string, error)
}
