// Package storage abstracts where generated media bytes are persisted.
// The pipeline streams provider artifacts into a MediaStore and records
// only the resulting URL on the task.
package storage

import (
	"context"
	"io"
)

// MediaStore persists generated media. Implementations must consume the
// reader as a stream; the pipeline never buffers whole payloads in
// memory.
type MediaStore interface {
	// Save streams one artifact to storage and returns a URL for it.
	Save(ctx context.Context, taskID, name string, r io.Reader) (string, error)
}
