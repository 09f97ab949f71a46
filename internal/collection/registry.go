// Package collection tracks the in-memory snapshot of every collection and
// which collection is active.
package collection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/mike-a-ellis/docqa/internal/rag"
	"github.com/mike-a-ellis/docqa/internal/storage"
)

type entry struct {
	snapshot atomic.Pointer[storage.Snapshot]
	ingest   sync.Mutex // serializes ingestion of this collection
}

// Registry maps collection ids to their current snapshot. Readers get a
// whole snapshot; ingestion replaces it with a single pointer swap.
type Registry struct {
	store  storage.SnapshotStore
	logger *slog.Logger

	mu      sync.RWMutex
	entries map[string]*entry
	active  string

	loads singleflight.Group
}

// NewRegistry creates a registry backed by store. store may be nil, in which
// case nothing is loaded lazily.
func NewRegistry(store storage.SnapshotStore, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		store:   store,
		logger:  logger,
		entries: make(map[string]*entry),
	}
}

func (r *Registry) entry(id string) *entry {
	r.mu.RLock()
	e, ok := r.entries[id]
	r.mu.RUnlock()
	if ok {
		return e
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[id]; ok {
		return e
	}
	e = &entry{}
	r.entries[id] = e
	return e
}

// LockIngest blocks until no other ingestion of id is in progress. The
// returned function releases the lock.
func (r *Registry) LockIngest(id string) func() {
	e := r.entry(id)
	e.ingest.Lock()
	return e.ingest.Unlock
}

// Swap installs snap as the current snapshot of its collection and makes the
// collection active.
func (r *Registry) Swap(snap *storage.Snapshot) {
	id := snap.Provenance.CollectionID
	r.entry(id).snapshot.Store(snap)

	r.mu.Lock()
	r.active = id
	r.mu.Unlock()

	r.logger.Info("collection swapped", "collection", id, "generation", snap.Provenance.Generation,
		"chunks", len(snap.Chunks))
}

// Active returns the active collection id, or "" if nothing has been ingested.
func (r *Registry) Active() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active
}

// SetActive marks an already known collection as active.
func (r *Registry) SetActive(id string) {
	r.mu.Lock()
	r.active = id
	r.mu.Unlock()
}

// Resolve returns the snapshot for id, or for the active collection when id
// is empty. A collection not in memory is loaded from the store once, even
// under concurrent callers. Failure is reported as rag.ErrIndexUnavailable.
func (r *Registry) Resolve(ctx context.Context, id string) (*storage.Snapshot, error) {
	if id == "" {
		id = r.Active()
		if id == "" {
			id = storage.DefaultCollectionID
		}
	}
	if !storage.ValidCollectionID(id) {
		return nil, rag.Errorf(rag.ErrInvalidInput, "resolve", "invalid collection id %q", id)
	}

	if snap := r.Current(id); snap != nil {
		return snap, nil
	}
	if r.store == nil {
		return nil, rag.Errorf(rag.ErrIndexUnavailable, "resolve", "collection %q has no documents", id)
	}

	v, err, _ := r.loads.Do(id, func() (any, error) {
		if snap := r.Current(id); snap != nil {
			return snap, nil
		}
		snap, err := r.store.Load(ctx, id)
		if err != nil {
			return nil, err
		}
		// an ingestion may have finished while we were loading
		if r.entry(id).snapshot.CompareAndSwap(nil, snap) {
			r.logger.Info("collection loaded", "collection", id, "generation", snap.Provenance.Generation)
			return snap, nil
		}
		return r.Current(id), nil
	})
	if err != nil {
		if !errors.Is(err, storage.ErrSnapshotNotFound) {
			r.logger.Warn("collection load failed", "collection", id, "error", err)
		}
		return nil, rag.NewError(rag.ErrIndexUnavailable, "resolve", fmt.Errorf("collection %q: %w", id, err))
	}
	return v.(*storage.Snapshot), nil
}

// Current returns the in-memory snapshot of id without loading, or nil.
func (r *Registry) Current(id string) *storage.Snapshot {
	r.mu.RLock()
	e, ok := r.entries[id]
	r.mu.RUnlock()
	if !ok {
		return nil
	}
	return e.snapshot.Load()
}

// CollectionStatus describes one known collection.
type CollectionStatus struct {
	storage.Provenance
	Loaded bool `json:"loaded"`
	Active bool `json:"active"`
}

// List reports every collection in memory or in the store, sorted by id.
func (r *Registry) List(ctx context.Context) ([]CollectionStatus, error) {
	byID := map[string]CollectionStatus{}

	if r.store != nil {
		stored, err := r.store.List(ctx)
		if err != nil {
			return nil, rag.NewError(rag.ErrIndexUnavailable, "list", err)
		}
		for _, p := range stored {
			byID[p.CollectionID] = CollectionStatus{Provenance: p}
		}
	}

	r.mu.RLock()
	active := r.active
	for id, e := range r.entries {
		if snap := e.snapshot.Load(); snap != nil {
			byID[id] = CollectionStatus{Provenance: snap.Provenance, Loaded: true}
		}
	}
	r.mu.RUnlock()

	out := make([]CollectionStatus, 0, len(byID))
	for id, s := range byID {
		s.Active = id == active
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CollectionID < out[j].CollectionID })
	return out, nil
}
