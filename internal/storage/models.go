// Package storage persists collection snapshots (vector index plus chunk
// list) and stores the raw uploaded documents.
package storage

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/mike-a-ellis/docqa/internal/chunker"
	"github.com/mike-a-ellis/docqa/internal/index"
)

// DefaultCollectionID is used when a caller names no collection.
const DefaultCollectionID = "default"

var collectionIDRe = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// ValidCollectionID reports whether id is safe to use as a path component
// and as part of a Qdrant collection name.
func ValidCollectionID(id string) bool {
	return collectionIDRe.MatchString(id)
}

// Provenance describes where a collection's contents came from.
type Provenance struct {
	CollectionID string    `json:"collection_id"`
	Generation   string    `json:"generation"`   // uuid of the ingestion that built it
	Filename     string    `json:"filename"`     // Original upload filename
	DocumentKey  string    `json:"document_key"` // Key of the stored upload
	Pages        int       `json:"pages"`
	Chunks       int       `json:"chunks"`
	IngestedAt   time.Time `json:"ingested_at"`
}

// Snapshot is one immutable generation of a collection. Row i of Index is
// the embedding of Chunks[i].
type Snapshot struct {
	Index      *index.Index
	Chunks     []chunker.Chunk
	Provenance Provenance
}

// Validate checks the row/chunk correspondence.
func (s *Snapshot) Validate() error {
	if s.Index == nil {
		return fmt.Errorf("%w: no index", ErrSnapshotCorrupt)
	}
	if s.Index.Rows() != len(s.Chunks) {
		return fmt.Errorf("%w: %d rows for %d chunks", ErrSnapshotCorrupt, s.Index.Rows(), len(s.Chunks))
	}
	return nil
}

// SnapshotStore persists snapshots, one per collection. Save replaces the
// previous snapshot only once the new one is complete.
type SnapshotStore interface {
	Save(ctx context.Context, snap *Snapshot) error
	Load(ctx context.Context, collectionID string) (*Snapshot, error)
	List(ctx context.Context) ([]Provenance, error)
}

// UploadStore keeps the raw bytes of ingested documents.
type UploadStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Delete(ctx context.Context, key string) error
}
