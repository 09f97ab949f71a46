package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/qdrant/go-client/qdrant"

	"github.com/mike-a-ellis/docqa/internal/chunker"
	"github.com/mike-a-ellis/docqa/internal/index"
)

const (
	// collectionPrefix namespaces docqa collections in a shared Qdrant.
	collectionPrefix = "docqa_"

	// generationSep separates the collection id from the generation. Generations
	// are uuids and never contain an underscore.
	generationSep = "__"

	upsertBatchSize = 100
	scrollBatchSize = uint32(256)
)

// QdrantSnapshotStore keeps each generation of a collection in its own Qdrant
// collection named docqa_<id>__<generation>. A new generation is fully
// written before older ones are dropped, so a failed save leaves the previous
// generation loadable.
type QdrantSnapshotStore struct {
	client *qdrant.Client
	host   string
	port   int
}

// NewQdrantSnapshotStore creates a new Qdrant client with health validation.
// It performs health check with retry on startup and fails fast if Qdrant is unreachable.
func NewQdrantSnapshotStore(ctx context.Context, host string, port int) (*QdrantSnapshotStore, error) {
	// Create Qdrant client using gRPC
	client, err := qdrant.NewClient(&qdrant.Config{
		Host: host,
		Port: port,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	s := &QdrantSnapshotStore{
		client: client,
		host:   host,
		port:   port,
	}

	if err := s.healthCheckWithRetry(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %v", ErrQdrantUnreachable, err)
	}

	return s, nil
}

func newBackoff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second
	return b
}

// healthCheckWithRetry performs health check with exponential backoff.
func (s *QdrantSnapshotStore) healthCheckWithRetry(ctx context.Context) error {
	return backoff.Retry(func() error { return s.Health(ctx) }, backoff.WithContext(newBackoff(), ctx))
}

// Health performs a single health check against Qdrant.
func (s *QdrantSnapshotStore) Health(ctx context.Context) error {
	result, err := s.client.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if result == nil || result.Title == "" {
		return fmt.Errorf("health check returned invalid response")
	}
	return nil
}

// Close closes the Qdrant client connection.
func (s *QdrantSnapshotStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// CollectionName returns the Qdrant collection holding one generation.
func CollectionName(collectionID, generation string) string {
	return collectionPrefix + collectionID + generationSep + generation
}

// parseCollectionName is the inverse of CollectionName.
func parseCollectionName(name string) (collectionID, generation string, ok bool) {
	rest, found := strings.CutPrefix(name, collectionPrefix)
	if !found {
		return "", "", false
	}
	i := strings.LastIndex(rest, generationSep)
	if i <= 0 {
		return "", "", false
	}
	collectionID, generation = rest[:i], rest[i+len(generationSep):]
	if generation == "" || strings.Contains(generation, "_") || !ValidCollectionID(collectionID) {
		return "", "", false
	}
	return collectionID, generation, true
}

// generations lists the stored generations of one collection.
func (s *QdrantSnapshotStore) generations(ctx context.Context, collectionID string) ([]string, error) {
	names, err := s.client.ListCollections(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list collections: %w", err)
	}
	var out []string
	for _, name := range names {
		if id, _, ok := parseCollectionName(name); ok && id == collectionID {
			out = append(out, name)
		}
	}
	return out, nil
}

// Save writes all rows into a fresh collection, then drops older generations.
func (s *QdrantSnapshotStore) Save(ctx context.Context, snap *Snapshot) error {
	prov := snap.Provenance
	if !ValidCollectionID(prov.CollectionID) {
		return fmt.Errorf("%w: collection id %q", ErrInvalidKey, prov.CollectionID)
	}
	if prov.Generation == "" || strings.Contains(prov.Generation, "_") {
		return fmt.Errorf("%w: generation %q", ErrInvalidKey, prov.Generation)
	}
	if err := snap.Validate(); err != nil {
		return err
	}

	previous, err := s.generations(ctx, prov.CollectionID)
	if err != nil {
		return err
	}

	name := CollectionName(prov.CollectionID, prov.Generation)
	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(snap.Index.Dim()),
			Distance: qdrant.Distance_Dot,
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	if err := s.upsertRows(ctx, name, snap); err != nil {
		_ = s.client.DeleteCollection(context.WithoutCancel(ctx), name)
		return err
	}

	for _, old := range previous {
		if old == name {
			continue
		}
		if err := s.client.DeleteCollection(ctx, old); err != nil {
			return fmt.Errorf("failed to drop previous generation %s: %w", old, err)
		}
	}
	return nil
}

func (s *QdrantSnapshotStore) upsertRows(ctx context.Context, name string, snap *Snapshot) error {
	prov := snap.Provenance
	for i := 0; i < len(snap.Chunks); i += upsertBatchSize {
		end := min(i+upsertBatchSize, len(snap.Chunks))

		points := make([]*qdrant.PointStruct, 0, end-i)
		for row := i; row < end; row++ {
			c := snap.Chunks[row]
			points = append(points, &qdrant.PointStruct{
				Id:      qdrant.NewIDNum(uint64(row)),
				Vectors: qdrant.NewVectors(snap.Index.Vector(row)...),
				Payload: qdrant.NewValueMap(map[string]any{
					"chunk_index":  c.Index,
					"page":         c.Page,
					"body":         c.Body,
					"generation":   prov.Generation,
					"filename":     prov.Filename,
					"document_key": prov.DocumentKey,
					"pages":        prov.Pages,
					"chunks":       prov.Chunks,
					"ingested_at":  prov.IngestedAt.UTC().Format(time.RFC3339Nano),
				}),
			})
		}

		if err := s.upsertWithRetry(ctx, name, points); err != nil {
			return fmt.Errorf("failed to upsert batch %d-%d: %w", i, end, err)
		}
	}
	return nil
}

// upsertWithRetry performs upsert operation with exponential backoff retry.
func (s *QdrantSnapshotStore) upsertWithRetry(ctx context.Context, name string, points []*qdrant.PointStruct) error {
	operation := func() error {
		_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: name,
			Wait:           qdrant.PtrOf(true),
			Points:         points,
		})
		return err
	}
	return backoff.Retry(operation, backoff.WithContext(newBackoff(), ctx))
}

// Load scrolls every point of the newest generation and rebuilds the exact index.
func (s *QdrantSnapshotStore) Load(ctx context.Context, collectionID string) (*Snapshot, error) {
	if !ValidCollectionID(collectionID) {
		return nil, fmt.Errorf("%w: collection id %q", ErrInvalidKey, collectionID)
	}
	names, err := s.generations(ctx, collectionID)
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrSnapshotNotFound, collectionID)
	}

	// Normally one; more only if a save died before dropping the old one.
	var newest *Snapshot
	for _, name := range names {
		snap, err := s.loadCollection(ctx, collectionID, name)
		if err != nil {
			continue
		}
		if newest == nil || snap.Provenance.IngestedAt.After(newest.Provenance.IngestedAt) {
			newest = snap
		}
	}
	if newest == nil {
		return nil, fmt.Errorf("%w: no readable generation of %s", ErrSnapshotCorrupt, collectionID)
	}
	return newest, nil
}

func (s *QdrantSnapshotStore) loadCollection(ctx context.Context, collectionID, name string) (*Snapshot, error) {
	rows := map[uint64]*qdrant.RetrievedPoint{}
	var offset *qdrant.PointId

	for {
		results, err := s.client.Scroll(ctx, &qdrant.ScrollPoints{
			CollectionName: name,
			Limit:          qdrant.PtrOf(scrollBatchSize),
			Offset:         offset,
			WithPayload:    qdrant.NewWithPayload(true),
			WithVectors:    qdrant.NewWithVectors(true),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to scroll %s: %w", name, err)
		}
		for _, p := range results {
			rows[p.GetId().GetNum()] = p
		}
		if uint32(len(results)) < scrollBatchSize {
			break
		}
		// offsets are inclusive; ids are dense row numbers
		offset = qdrant.NewIDNum(results[len(results)-1].GetId().GetNum() + 1)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", ErrSnapshotCorrupt, name)
	}

	vectors := make([][]float32, len(rows))
	chunks := make([]chunker.Chunk, len(rows))
	for row := range vectors {
		p, ok := rows[uint64(row)]
		if !ok {
			return nil, fmt.Errorf("%w: %s is missing row %d", ErrSnapshotCorrupt, name, row)
		}
		vectors[row] = pointVector(p)
		payload := p.GetPayload()
		chunks[row] = chunker.Chunk{
			Index: int(payload["chunk_index"].GetIntegerValue()),
			Page:  int(payload["page"].GetIntegerValue()),
			Body:  payload["body"].GetStringValue(),
		}
	}

	idx, err := index.Build(vectors)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSnapshotCorrupt, err)
	}

	payload := rows[0].GetPayload()
	ingestedAt, err := time.Parse(time.RFC3339Nano, payload["ingested_at"].GetStringValue())
	if err != nil {
		ingestedAt = time.Time{} // Use zero time if parse fails
	}
	return &Snapshot{
		Index:  idx,
		Chunks: chunks,
		Provenance: Provenance{
			CollectionID: collectionID,
			Generation:   payload["generation"].GetStringValue(),
			Filename:     payload["filename"].GetStringValue(),
			DocumentKey:  payload["document_key"].GetStringValue(),
			Pages:        int(payload["pages"].GetIntegerValue()),
			Chunks:       len(chunks),
			IngestedAt:   ingestedAt,
		},
	}, nil
}

func pointVector(p *qdrant.RetrievedPoint) []float32 {
	v := p.GetVectors().GetVector()
	if dense := v.GetDense(); dense != nil {
		return dense.GetData()
	}
	return v.GetData()
}

// List returns the provenance of the newest generation of every collection.
func (s *QdrantSnapshotStore) List(ctx context.Context) ([]Provenance, error) {
	names, err := s.client.ListCollections(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list collections: %w", err)
	}

	latest := map[string]Provenance{}
	for _, name := range names {
		id, generation, ok := parseCollectionName(name)
		if !ok {
			continue
		}
		results, err := s.client.Scroll(ctx, &qdrant.ScrollPoints{
			CollectionName: name,
			Limit:          qdrant.PtrOf(uint32(1)),
			WithPayload:    qdrant.NewWithPayload(true),
		})
		if err != nil || len(results) == 0 {
			continue
		}
		payload := results[0].GetPayload()
		ingestedAt, _ := time.Parse(time.RFC3339Nano, payload["ingested_at"].GetStringValue())
		prov := Provenance{
			CollectionID: id,
			Generation:   generation,
			Filename:     payload["filename"].GetStringValue(),
			DocumentKey:  payload["document_key"].GetStringValue(),
			Pages:        int(payload["pages"].GetIntegerValue()),
			Chunks:       int(payload["chunks"].GetIntegerValue()),
			IngestedAt:   ingestedAt,
		}
		if cur, ok := latest[id]; !ok || prov.IngestedAt.After(cur.IngestedAt) {
			latest[id] = prov
		}
	}

	out := make([]Provenance, 0, len(latest))
	for _, p := range latest {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CollectionID < out[j].CollectionID })
	return out, nil
}
