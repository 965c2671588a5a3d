package store

import "github.com/strata-systems/strata/pkg/types"

// EventDump is the serializable form of a branch's event index.
type EventDump struct {
	SeqVersions []uint64            `json:"seq_versions"`
	ByType      map[string][]uint64 `json:"by_type"`
}

// Dump is a deep copy of the committed state, taken for checkpointing.
type Dump struct {
	Version uint64
	Chains  map[Key][]types.VersionedValue
	Events  map[string]EventDump
}

// Export copies the committed state. Safe to call concurrently with
// readers; commits are excluded for the duration of the copy by the
// caller holding the commit token.
func (s *Store) Export() Dump {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d := Dump{
		Version: s.version,
		Chains:  make(map[Key][]types.VersionedValue, len(s.chains)),
		Events:  make(map[string]EventDump, len(s.events)),
	}
	for k, chain := range s.chains {
		d.Chains[k] = append([]types.VersionedValue(nil), chain...)
	}
	for branch, idx := range s.events {
		ed := EventDump{
			SeqVersions: append([]uint64(nil), idx.seqVersions...),
			ByType:      make(map[string][]uint64, len(idx.byType)),
		}
		for t, seqs := range idx.byType {
			ed.ByType[t] = append([]uint64(nil), seqs...)
		}
		d.Events[branch] = ed
	}
	return d
}

// Restore replaces the store's state with a dump. Only called during
// open, before any session exists.
func (s *Store) Restore(d Dump) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.version = d.Version
	s.chains = make(map[Key][]types.VersionedValue, len(d.Chains))
	for k, chain := range d.Chains {
		s.chains[k] = append([]types.VersionedValue(nil), chain...)
	}
	s.events = make(map[string]*eventIndex, len(d.Events))
	for branch, ed := range d.Events {
		idx := newEventIndex()
		idx.seqVersions = append([]uint64(nil), ed.SeqVersions...)
		for t, seqs := range ed.ByType {
			idx.byType[t] = append([]uint64(nil), seqs...)
		}
		s.events[branch] = idx
	}
}
