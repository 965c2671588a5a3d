package database

import (
	"github.com/strata-systems/strata/pkg/store"
	"github.com/strata-systems/strata/pkg/types"
)

// EventAppend appends one record to the branch's event log and returns
// its sequence number. Inside a transaction the sequence is provisional:
// the dense number is assigned under the commit token, preserving the
// per-transaction append order.
func (s *Session) EventAppend(branchOverride, eventType string, payload types.Value) (uint64, error) {
	if eventType == "" {
		return 0, types.InvalidArgumentf("event type must not be empty")
	}
	b := s.resolveBranch(branchOverride)
	if err := s.checkWriteBranch(b); err != nil {
		return 0, err
	}
	if !s.db.branches.Exists(b) {
		return 0, types.NotFoundf("branch %q", b)
	}

	m := store.Mutation{
		Op:        store.OpEventAppend,
		Primitive: types.PrimitiveEvent,
		EventType: eventType,
		Value:     payload.Clone(),
	}
	if s.txn != nil {
		seq := s.db.store.NextEventSeq(b) + uint64(s.bufferedEventCount())
		s.stage(m)
		return seq, nil
	}

	// Auto-commit: the sequence is assigned inside commit; read it back
	// from the store at the assigned version.
	version, err := s.db.commit(b, []store.Mutation{m}, "auto_commit")
	if err != nil {
		return 0, err
	}
	return s.db.store.EventLen(b, version), nil
}

// EventRead returns the record at the 1-indexed sequence, or nil when
// out of range.
func (s *Session) EventRead(branchOverride string, seq uint64) (*types.EventRecord, error) {
	b := s.resolveBranch(branchOverride)
	if !s.db.branches.Exists(b) {
		return nil, types.NotFoundf("branch %q", b)
	}
	if seq == 0 {
		return nil, nil
	}

	committed := s.db.store.EventLen(b, s.visibleVersion())
	if seq <= committed {
		return s.eventFromStore(b, seq)
	}

	// Buffered preview: sequences past the committed tail address the
	// transaction's own appends in order.
	if s.txn != nil && b == s.txn.branch {
		var n uint64
		for _, m := range s.txn.muts {
			if m.Op != store.OpEventAppend {
				continue
			}
			n++
			if committed+n == seq {
				return &types.EventRecord{
					Sequence:  seq,
					Type:      m.EventType,
					Payload:   m.Value.Clone(),
					Timestamp: nowMs(),
					Version:   s.provisionalVersion(),
				}, nil
			}
		}
	}
	return nil, nil
}

// EventReadByType returns the records of the given type in ascending
// sequence order, merging any buffered appends.
func (s *Session) EventReadByType(branchOverride, eventType string) ([]types.EventRecord, error) {
	b := s.resolveBranch(branchOverride)
	if !s.db.branches.Exists(b) {
		return nil, types.NotFoundf("branch %q", b)
	}

	var records []types.EventRecord
	for _, seq := range s.db.store.EventSeqsByType(b, eventType, s.visibleVersion()) {
		rec, err := s.eventFromStore(b, seq)
		if err != nil {
			return nil, err
		}
		if rec != nil {
			records = append(records, *rec)
		}
	}

	if s.txn != nil && b == s.txn.branch {
		committed := s.db.store.EventLen(b, s.visibleVersion())
		var n uint64
		for _, m := range s.txn.muts {
			if m.Op != store.OpEventAppend {
				continue
			}
			n++
			if m.EventType == eventType {
				records = append(records, types.EventRecord{
					Sequence:  committed + n,
					Type:      m.EventType,
					Payload:   m.Value.Clone(),
					Timestamp: nowMs(),
					Version:   s.provisionalVersion(),
				})
			}
		}
	}
	return records, nil
}

// EventLen returns the number of records in the branch's event log,
// counting buffered appends.
func (s *Session) EventLen(branchOverride string) (uint64, error) {
	b := s.resolveBranch(branchOverride)
	if !s.db.branches.Exists(b) {
		return 0, types.NotFoundf("branch %q", b)
	}
	n := s.db.store.EventLen(b, s.visibleVersion())
	if s.txn != nil && b == s.txn.branch {
		n += uint64(s.bufferedEventCount())
	}
	return n, nil
}

func (s *Session) bufferedEventCount() int {
	var n int
	for _, m := range s.txn.muts {
		if m.Op == store.OpEventAppend {
			n++
		}
	}
	return n
}

// eventFromStore decodes the chain record of one committed event.
func (s *Session) eventFromStore(b string, seq uint64) (*types.EventRecord, error) {
	rec, found := s.db.store.Get(b, types.PrimitiveEvent, store.EventKey(seq), s.visibleVersion())
	if !found || rec.Tombstone {
		return nil, nil
	}
	if rec.Value.Kind != types.KindObject {
		return nil, types.Corruptionf("event %d is %s, want object", seq, rec.Value.Kind)
	}
	return &types.EventRecord{
		Sequence:  seq,
		Type:      rec.Value.Object["type"].Str,
		Payload:   rec.Value.Object["payload"].Clone(),
		Timestamp: rec.Timestamp,
		Version:   rec.Version,
	}, nil
}
