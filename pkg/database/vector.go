package database

import (
	"strings"

	"github.com/strata-systems/strata/pkg/store"
	"github.com/strata-systems/strata/pkg/types"
	"github.com/strata-systems/strata/pkg/vector"
)

// Vector chains share the vector primitive's keyspace: collection
// descriptors under "c\x00<name>", entries under "e\x00<name>\x00<key>".
// The NUL separator cannot appear in a collection name.
const (
	vectorCollPrefix  = "c\x00"
	vectorEntryPrefix = "e\x00"
)

func collKey(name string) string {
	return vectorCollPrefix + name
}

func entryKey(collection, key string) string {
	return vectorEntryPrefix + collection + "\x00" + key
}

// VectorCreateCollection registers a collection with an immutable
// dimension and metric.
func (s *Session) VectorCreateCollection(branchOverride, name string, dim int, metric types.DistanceMetric) (uint64, error) {
	if name == "" {
		return 0, types.InvalidArgumentf("collection name must not be empty")
	}
	if strings.ContainsRune(name, 0) {
		return 0, types.InvalidArgumentf("collection name contains NUL")
	}
	if dim < 1 {
		return 0, types.InvalidArgumentf("collection dimension must be at least 1, got %d", dim)
	}
	if !metric.Valid() {
		return 0, types.InvalidArgumentf("unknown distance metric %q", metric)
	}
	b := s.resolveBranch(branchOverride)
	if !s.db.branches.Exists(b) {
		return 0, types.NotFoundf("branch %q", b)
	}
	if _, err := s.collection(b, name); err == nil {
		return 0, types.AlreadyExistsf("collection %q", name)
	}
	return s.writeThrough(b, store.Mutation{
		Op:        store.OpPut,
		Primitive: types.PrimitiveVector,
		Key:       collKey(name),
		Value: types.NewObject(map[string]types.Value{
			"name":   types.NewString(name),
			"dim":    types.NewInt(int64(dim)),
			"metric": types.NewString(string(metric)),
		}),
	})
}

// collection resolves a collection descriptor visible to the session.
func (s *Session) collection(b, name string) (types.VectorCollection, error) {
	rec, found := s.readOverlay(b, types.PrimitiveVector, collKey(name))
	if !found || rec.Tombstone || rec.Value.Kind != types.KindObject {
		return types.VectorCollection{}, types.NotFoundf("collection %q", name)
	}
	return types.VectorCollection{
		Name:      name,
		Dimension: int(rec.Value.Object["dim"].Int),
		Metric:    types.DistanceMetric(rec.Value.Object["metric"].Str),
	}, nil
}

// VectorUpsert stores (or overwrites) one embedding with optional
// metadata. The embedding length must equal the collection dimension.
func (s *Session) VectorUpsert(branchOverride, collection, key string, embedding []float32, metadata map[string]types.Value) (uint64, error) {
	if key == "" {
		return 0, types.InvalidArgumentf("vector key must not be empty")
	}
	b := s.resolveBranch(branchOverride)
	if !s.db.branches.Exists(b) {
		return 0, types.NotFoundf("branch %q", b)
	}
	coll, err := s.collection(b, collection)
	if err != nil {
		return 0, err
	}
	if len(embedding) != coll.Dimension {
		return 0, types.InvalidArgumentf("embedding has %d dimensions, collection %q wants %d",
			len(embedding), collection, coll.Dimension)
	}

	emb := make([]types.Value, len(embedding))
	for i, f := range embedding {
		emb[i] = types.NewFloat(float64(f))
	}
	fields := map[string]types.Value{
		"emb": types.NewArray(emb...),
	}
	if metadata != nil {
		meta := make(map[string]types.Value, len(metadata))
		for k, v := range metadata {
			meta[k] = v.Clone()
		}
		fields["meta"] = types.NewObject(meta)
	}
	return s.writeThrough(b, store.Mutation{
		Op:        store.OpPut,
		Primitive: types.PrimitiveVector,
		Key:       entryKey(collection, key),
		Value:     types.NewObject(fields),
	})
}

// VectorGet returns one entry, or nil if the collection or key is
// absent.
func (s *Session) VectorGet(branchOverride, collection, key string) (*types.VectorEntry, error) {
	b := s.resolveBranch(branchOverride)
	if !s.db.branches.Exists(b) {
		return nil, types.NotFoundf("branch %q", b)
	}
	if _, err := s.collection(b, collection); err != nil {
		return nil, err
	}
	rec, found := s.readOverlay(b, types.PrimitiveVector, entryKey(collection, key))
	if !found || rec.Tombstone {
		return nil, nil
	}
	entry, err := decodeVectorEntry(key, rec.Value)
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// VectorSearch returns the top-k keys by the collection's metric, best
// first, ties by key ascending.
func (s *Session) VectorSearch(branchOverride, collection string, query []float32, k int) ([]types.SearchResult, error) {
	b := s.resolveBranch(branchOverride)
	if !s.db.branches.Exists(b) {
		return nil, types.NotFoundf("branch %q", b)
	}
	coll, err := s.collection(b, collection)
	if err != nil {
		return nil, err
	}
	if len(query) != coll.Dimension {
		return nil, types.InvalidArgumentf("query has %d dimensions, collection %q wants %d",
			len(query), collection, coll.Dimension)
	}
	if k < 0 {
		return nil, types.InvalidArgumentf("k must not be negative")
	}

	prefix := vectorEntryPrefix + collection + "\x00"
	var entries []types.VectorEntry
	for _, chainKey := range s.listOverlay(b, types.PrimitiveVector, prefix) {
		rec, found := s.readOverlay(b, types.PrimitiveVector, chainKey)
		if !found || rec.Tombstone {
			continue
		}
		entry, err := decodeVectorEntry(strings.TrimPrefix(chainKey, prefix), rec.Value)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return vector.Search(coll.Metric, entries, query, k), nil
}

func decodeVectorEntry(key string, v types.Value) (types.VectorEntry, error) {
	if v.Kind != types.KindObject {
		return types.VectorEntry{}, types.Corruptionf("vector entry %q is %s, want object", key, v.Kind)
	}
	embVal := v.Object["emb"]
	if embVal.Kind != types.KindArray {
		return types.VectorEntry{}, types.Corruptionf("vector entry %q embedding is %s, want array", key, embVal.Kind)
	}
	entry := types.VectorEntry{Key: key, Embedding: make([]float32, len(embVal.Array))}
	for i, f := range embVal.Array {
		entry.Embedding[i] = float32(f.Float)
	}
	if meta, ok := v.Object["meta"]; ok && meta.Kind == types.KindObject {
		entry.Metadata = make(map[string]types.Value, len(meta.Object))
		for k, mv := range meta.Object {
			entry.Metadata[k] = mv.Clone()
		}
	}
	return entry, nil
}
