package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mike-a-ellis/docqa/internal/chunker"
	"github.com/mike-a-ellis/docqa/internal/index"
)

const (
	indexFile  = "index.bin"
	chunksFile = "chunks.json"
	metaFile   = "meta.json"
)

// FSSnapshotStore keeps each collection in DIR/<id>/ as index.bin,
// chunks.json and meta.json.
type FSSnapshotStore struct {
	dir string
}

// NewFSSnapshotStore creates the store, creating dir if needed.
func NewFSSnapshotStore(dir string) (*FSSnapshotStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create index dir: %w", err)
	}
	return &FSSnapshotStore{dir: dir}, nil
}

// Save writes the snapshot into a temporary directory and renames it over
// the collection directory. On failure the previous artifacts stay in place.
func (s *FSSnapshotStore) Save(ctx context.Context, snap *Snapshot) error {
	id := snap.Provenance.CollectionID
	if !ValidCollectionID(id) {
		return fmt.Errorf("%w: collection id %q", ErrInvalidKey, id)
	}
	if err := snap.Validate(); err != nil {
		return err
	}

	tmp, err := os.MkdirTemp(s.dir, "."+id+"-new-")
	if err != nil {
		return fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tmp)

	if err := writeSnapshot(tmp, snap); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	final := filepath.Join(s.dir, id)
	old := ""
	if _, err := os.Stat(final); err == nil {
		old = filepath.Join(s.dir, "."+id+"-old-"+snap.Provenance.Generation)
		if err := os.Rename(final, old); err != nil {
			return fmt.Errorf("failed to move previous snapshot aside: %w", err)
		}
	}
	if err := os.Rename(tmp, final); err != nil {
		if old != "" {
			_ = os.Rename(old, final)
		}
		return fmt.Errorf("failed to install snapshot: %w", err)
	}
	if old != "" {
		_ = os.RemoveAll(old)
	}
	return nil
}

func writeSnapshot(dir string, snap *Snapshot) error {
	f, err := os.Create(filepath.Join(dir, indexFile))
	if err != nil {
		return fmt.Errorf("failed to create index file: %w", err)
	}
	if _, err := snap.Index.WriteTo(f); err != nil {
		f.Close()
		return fmt.Errorf("failed to write index: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to write index: %w", err)
	}

	if err := writeJSON(filepath.Join(dir, chunksFile), snap.Chunks); err != nil {
		return fmt.Errorf("failed to write chunks: %w", err)
	}
	if err := writeJSON(filepath.Join(dir, metaFile), snap.Provenance); err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}
	return nil
}

func writeJSON(path string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Load reads a collection's artifacts. A missing collection returns
// ErrSnapshotNotFound; artifacts that do not agree return ErrSnapshotCorrupt.
func (s *FSSnapshotStore) Load(ctx context.Context, collectionID string) (*Snapshot, error) {
	if !ValidCollectionID(collectionID) {
		return nil, fmt.Errorf("%w: collection id %q", ErrInvalidKey, collectionID)
	}
	dir := filepath.Join(s.dir, collectionID)

	f, err := os.Open(filepath.Join(dir, indexFile))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrSnapshotNotFound, collectionID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open index: %w", err)
	}
	idx, err := index.ReadFrom(f)
	f.Close()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSnapshotCorrupt, err)
	}

	var chunks []chunker.Chunk
	if err := readJSON(filepath.Join(dir, chunksFile), &chunks); err != nil {
		return nil, fmt.Errorf("%w: chunks: %v", ErrSnapshotCorrupt, err)
	}

	var prov Provenance
	if err := readJSON(filepath.Join(dir, metaFile), &prov); err != nil {
		return nil, fmt.Errorf("%w: metadata: %v", ErrSnapshotCorrupt, err)
	}
	prov.CollectionID = collectionID

	snap := &Snapshot{Index: idx, Chunks: chunks, Provenance: prov}
	if err := snap.Validate(); err != nil {
		return nil, err
	}
	return snap, nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// List returns the provenance of every readable collection, sorted by id.
func (s *FSSnapshotStore) List(ctx context.Context) ([]Provenance, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list index dir: %w", err)
	}

	var out []Provenance
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") || !ValidCollectionID(e.Name()) {
			continue
		}
		var prov Provenance
		if err := readJSON(filepath.Join(s.dir, e.Name(), metaFile), &prov); err != nil {
			continue // half-written or foreign directory
		}
		prov.CollectionID = e.Name()
		out = append(out, prov)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].CollectionID < out[j].CollectionID })
	return out, nil
}
