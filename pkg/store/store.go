package store

import (
	"sort"
	"strings"
	"sync"

	"github.com/strata-systems/strata/pkg/types"
)

// Key addresses one version chain.
type Key struct {
	Branch    string
	Primitive types.Primitive
	Key       string
}

// Store is the in-memory multi-version store. Every chain is a
// newest-first, append-only list of versioned records; committed state is
// only ever mutated under the commit token (the database's commit mutex)
// while s.mu guards the maps against concurrent readers.
//
// Readers pass the version they are allowed to see and get a consistent
// snapshot: records committed after that version are invisible.
type Store struct {
	mu      sync.RWMutex
	chains  map[Key][]types.VersionedValue
	events  map[string]*eventIndex
	version uint64 // commit version watermark
}

// eventIndex is the per-branch bookkeeping for the event log: the commit
// version of every sequence number (dense, 1-indexed) and the secondary
// index from event type to ascending sequence numbers.
type eventIndex struct {
	seqVersions []uint64
	byType      map[string][]uint64
}

func newEventIndex() *eventIndex {
	return &eventIndex{byType: make(map[string][]uint64)}
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		chains: make(map[Key][]types.VersionedValue),
		events: make(map[string]*eventIndex),
	}
}

// CurrentVersion returns the commit version watermark.
func (s *Store) CurrentVersion() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Apply installs one committed transaction's mutations at the given
// version. The caller holds the commit token; version must be greater
// than the watermark except during replay, where skipped duplicates are
// tolerated (idempotent recovery).
func (s *Store) Apply(version uint64, timestamp int64, branch string, muts []Mutation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if version <= s.version {
		return
	}
	for _, m := range muts {
		switch m.Op {
		case OpPut:
			s.appendLocked(Key{branch, m.Primitive, m.Key}, types.VersionedValue{
				Version:   version,
				Timestamp: timestamp,
				Value:     m.Value,
			})
		case OpDelete:
			s.appendLocked(Key{branch, m.Primitive, m.Key}, types.VersionedValue{
				Version:   version,
				Timestamp: timestamp,
				Tombstone: true,
			})
		case OpEventAppend:
			idx := s.events[branch]
			if idx == nil {
				idx = newEventIndex()
				s.events[branch] = idx
			}
			// Replay hands back the sequence assigned at the original
			// commit; live commits assign the next dense sequence.
			for uint64(len(idx.seqVersions)) < m.Sequence {
				idx.seqVersions = append(idx.seqVersions, version)
			}
			idx.byType[m.EventType] = append(idx.byType[m.EventType], m.Sequence)
			s.appendLocked(Key{branch, types.PrimitiveEvent, EventKey(m.Sequence)}, types.VersionedValue{
				Version:   version,
				Timestamp: timestamp,
				Value: types.NewObject(map[string]types.Value{
					"type":    types.NewString(m.EventType),
					"payload": m.Value,
				}),
			})
		}
	}
	s.version = version
}

// AdvanceVersion moves the watermark without applying writes. Used for
// commits that touch only branch metadata.
func (s *Store) AdvanceVersion(version uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if version > s.version {
		s.version = version
	}
}

func (s *Store) appendLocked(k Key, rec types.VersionedValue) {
	// Newest first.
	s.chains[k] = append([]types.VersionedValue{rec}, s.chains[k]...)
}

// Get returns the newest record visible at atVersion, or false if the
// key has no visible record. Tombstones are returned; presence is the
// caller's call.
func (s *Store) Get(branch string, prim types.Primitive, key string, atVersion uint64) (types.VersionedValue, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, rec := range s.chains[Key{branch, prim, key}] {
		if rec.Version <= atVersion {
			return rec, true
		}
	}
	return types.VersionedValue{}, false
}

// GetChain returns a copy of the full version chain visible at atVersion
// (newest first), or nil if the key never existed at that version.
func (s *Store) GetChain(branch string, prim types.Primitive, key string, atVersion uint64) []types.VersionedValue {
	s.mu.RLock()
	defer s.mu.RUnlock()
	chain := s.chains[Key{branch, prim, key}]
	var out []types.VersionedValue
	for _, rec := range chain {
		if rec.Version <= atVersion {
			out = append(out, rec)
		}
	}
	return out
}

// ListKeys returns the keys present (newest visible record is not a
// tombstone) under branch/prim whose name starts with prefix. Order is
// unspecified.
func (s *Store) ListKeys(branch string, prim types.Primitive, prefix string, atVersion uint64) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var keys []string
	for k, chain := range s.chains {
		if k.Branch != branch || k.Primitive != prim || !strings.HasPrefix(k.Key, prefix) {
			continue
		}
		for _, rec := range chain {
			if rec.Version <= atVersion {
				if !rec.Tombstone {
					keys = append(keys, k.Key)
				}
				break
			}
		}
	}
	return keys
}

// EventLen returns the number of event records visible at atVersion.
func (s *Store) EventLen(branch string, atVersion uint64) uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx := s.events[branch]
	if idx == nil {
		return 0
	}
	// seqVersions is non-decreasing; count the prefix <= atVersion.
	n := sort.Search(len(idx.seqVersions), func(i int) bool {
		return idx.seqVersions[i] > atVersion
	})
	return uint64(n)
}

// EventSeqsByType returns the sequence numbers of the given type visible
// at atVersion, ascending.
func (s *Store) EventSeqsByType(branch, eventType string, atVersion uint64) []uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx := s.events[branch]
	if idx == nil {
		return nil
	}
	var out []uint64
	for _, seq := range idx.byType[eventType] {
		if seq == 0 || int(seq) > len(idx.seqVersions) {
			continue
		}
		if idx.seqVersions[seq-1] <= atVersion {
			out = append(out, seq)
		}
	}
	return out
}

// NextEventSeq returns the sequence number the next append on branch
// will receive. Callers hold the commit token when they rely on it.
func (s *Store) NextEventSeq(branch string) uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx := s.events[branch]
	if idx == nil {
		return 1
	}
	return uint64(len(idx.seqVersions)) + 1
}

// DropBranch removes every chain and event index of the branch.
func (s *Store) DropBranch(branch string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k := range s.chains {
		if k.Branch == branch {
			delete(s.chains, k)
		}
	}
	delete(s.events, branch)
}

// BranchKeys returns every chain key of the branch for the given
// primitive, sorted ascending, tombstoned or not. Used by bundle export,
// which walks historical state.
func (s *Store) BranchKeys(branch string, prim types.Primitive) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var keys []string
	for k := range s.chains {
		if k.Branch == branch && k.Primitive == prim {
			keys = append(keys, k.Key)
		}
	}
	sort.Strings(keys)
	return keys
}
