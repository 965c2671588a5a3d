package checkpoint

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/strata-systems/strata/pkg/codec"
	"github.com/strata-systems/strata/pkg/store"
	"github.com/strata-systems/strata/pkg/types"
	bolt "go.etcd.io/bbolt"
)

// FileName is the checkpoint database inside a database directory.
const FileName = "segments.db"

const formatVersion uint64 = 1

var (
	// Bucket names
	bucketMeta     = []byte("meta")
	bucketBranches = []byte("branches")
	bucketChains   = []byte("chains")
	bucketEvents   = []byte("events")

	keyCommitVersion = []byte("commit_version")
	keyFormat        = []byte("format")
)

// Checkpoint persists the committed multi-version state into a BoltDB
// file so open can load it and replay only the WAL tail written after it.
type Checkpoint struct {
	db *bolt.DB
}

// Open opens (creating if needed) the checkpoint store inside dir.
func Open(dir string) (*Checkpoint, error) {
	dbPath := filepath.Join(dir, FileName)

	db, err := bolt.Open(dbPath, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open checkpoint database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		buckets := [][]byte{bucketMeta, bucketBranches, bucketChains, bucketEvents}
		for _, bucket := range buckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Checkpoint{db: db}, nil
}

// Close closes the checkpoint database.
func (c *Checkpoint) Close() error {
	return c.db.Close()
}

// Save replaces the stored checkpoint with the given state in one
// transaction. The caller holds the commit token so the dump is a
// consistent cut.
func (c *Checkpoint) Save(branches []types.BranchInfo, dump store.Dump) error {
	return c.db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketBranches, bucketChains, bucketEvents} {
			if err := tx.DeleteBucket(name); err != nil && err != bolt.ErrBucketNotFound {
				return err
			}
			if _, err := tx.CreateBucket(name); err != nil {
				return err
			}
		}

		meta := tx.Bucket(bucketMeta)
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], dump.Version)
		if err := meta.Put(keyCommitVersion, append([]byte(nil), buf[:]...)); err != nil {
			return err
		}
		binary.BigEndian.PutUint64(buf[:], formatVersion)
		if err := meta.Put(keyFormat, append([]byte(nil), buf[:]...)); err != nil {
			return err
		}

		bb := tx.Bucket(bucketBranches)
		for _, info := range branches {
			data, err := json.Marshal(info)
			if err != nil {
				return err
			}
			if err := bb.Put([]byte(info.Name), data); err != nil {
				return err
			}
		}

		cb := tx.Bucket(bucketChains)
		for k, chain := range dump.Chains {
			if err := cb.Put(chainBucketKey(k), encodeChain(chain)); err != nil {
				return err
			}
		}

		eb := tx.Bucket(bucketEvents)
		for branch, ed := range dump.Events {
			data, err := json.Marshal(ed)
			if err != nil {
				return err
			}
			if err := eb.Put([]byte(branch), data); err != nil {
				return err
			}
		}
		return nil
	})
}

// Load reads the stored checkpoint. found is false when no checkpoint
// has ever been saved.
func (c *Checkpoint) Load() (branches []types.BranchInfo, dump store.Dump, found bool, err error) {
	dump.Chains = make(map[store.Key][]types.VersionedValue)
	dump.Events = make(map[string]store.EventDump)

	err = c.db.View(func(tx *bolt.Tx) error {
		meta := tx.Bucket(bucketMeta)
		raw := meta.Get(keyCommitVersion)
		if raw == nil {
			return nil
		}
		if len(raw) != 8 {
			return types.Corruptionf("checkpoint commit version has %d bytes", len(raw))
		}
		format := meta.Get(keyFormat)
		if len(format) != 8 || binary.BigEndian.Uint64(format) != formatVersion {
			return types.Corruptionf("unsupported checkpoint format")
		}
		found = true
		dump.Version = binary.BigEndian.Uint64(raw)

		bb := tx.Bucket(bucketBranches)
		if err := bb.ForEach(func(k, v []byte) error {
			var info types.BranchInfo
			if err := json.Unmarshal(v, &info); err != nil {
				return types.Corruptionf("checkpoint branch %q: %v", k, err)
			}
			branches = append(branches, info)
			return nil
		}); err != nil {
			return err
		}

		cb := tx.Bucket(bucketChains)
		if err := cb.ForEach(func(k, v []byte) error {
			key, err := parseChainBucketKey(k)
			if err != nil {
				return err
			}
			chain, err := decodeChain(v)
			if err != nil {
				return err
			}
			dump.Chains[key] = chain
			return nil
		}); err != nil {
			return err
		}

		eb := tx.Bucket(bucketEvents)
		return eb.ForEach(func(k, v []byte) error {
			var ed store.EventDump
			if err := json.Unmarshal(v, &ed); err != nil {
				return types.Corruptionf("checkpoint event index %q: %v", k, err)
			}
			dump.Events[string(k)] = ed
			return nil
		})
	})
	if err != nil {
		return nil, store.Dump{}, false, err
	}
	return branches, dump, found, nil
}

// chainBucketKey joins branch, primitive, and key with NUL separators.
// Branch and primitive names never contain NUL; the trailing key segment
// may, so parsing splits on the first two separators only.
func chainBucketKey(k store.Key) []byte {
	buf := make([]byte, 0, len(k.Branch)+len(k.Primitive)+len(k.Key)+2)
	buf = append(buf, k.Branch...)
	buf = append(buf, 0)
	buf = append(buf, k.Primitive...)
	buf = append(buf, 0)
	return append(buf, k.Key...)
}

func parseChainBucketKey(raw []byte) (store.Key, error) {
	first := bytes.IndexByte(raw, 0)
	if first < 0 {
		return store.Key{}, types.Corruptionf("malformed chain key")
	}
	rest := raw[first+1:]
	second := bytes.IndexByte(rest, 0)
	if second < 0 {
		return store.Key{}, types.Corruptionf("malformed chain key")
	}
	return store.Key{
		Branch:    string(raw[:first]),
		Primitive: types.Primitive(rest[:second]),
		Key:       string(rest[second+1:]),
	}, nil
}

// Chains serialize through the value codec so floats (including NaN)
// survive and every stored chain carries a checksum.
func encodeChain(chain []types.VersionedValue) []byte {
	items := make([]types.Value, 0, len(chain))
	for _, rec := range chain {
		items = append(items, types.NewObject(map[string]types.Value{
			"v":    types.NewInt(int64(rec.Version)),
			"ts":   types.NewInt(rec.Timestamp),
			"tomb": types.NewBool(rec.Tombstone),
			"val":  rec.Value,
		}))
	}
	return codec.Encode(types.NewArray(items...))
}

func decodeChain(raw []byte) ([]types.VersionedValue, error) {
	v, err := codec.Decode(raw)
	if err != nil {
		return nil, err
	}
	if v.Kind != types.KindArray {
		return nil, types.Corruptionf("checkpoint chain is %s, want array", v.Kind)
	}
	chain := make([]types.VersionedValue, 0, len(v.Array))
	for _, item := range v.Array {
		if item.Kind != types.KindObject {
			return nil, types.Corruptionf("checkpoint record is %s, want object", item.Kind)
		}
		chain = append(chain, types.VersionedValue{
			Version:   uint64(item.Object["v"].Int),
			Timestamp: item.Object["ts"].Int,
			Tombstone: item.Object["tomb"].Bool,
			Value:     item.Object["val"],
		})
	}
	return chain, nil
}
