package database

import (
	"github.com/strata-systems/strata/pkg/store"
	"github.com/strata-systems/strata/pkg/types"
)

// StateSet writes a cell unconditionally and returns its new version.
//
// StateSet bypasses any active transaction: it commits immediately in
// its own micro-transaction, and the surrounding transaction's snapshot
// does not observe it. This asymmetry with StateInit/StateCas is
// intentional and load-bearing for existing callers.
func (s *Session) StateSet(branchOverride, cell string, value types.Value) (uint64, error) {
	if cell == "" {
		return 0, types.InvalidArgumentf("state cell name must not be empty")
	}
	b := s.resolveBranch(branchOverride)
	return s.db.commit(b, []store.Mutation{{
		Op:        store.OpPut,
		Primitive: types.PrimitiveState,
		Key:       cell,
		Value:     value.Clone(),
	}}, "auto_commit")
}

// StateRead returns the cell's current value, or nil if absent.
func (s *Session) StateRead(branchOverride, cell string) (*types.Value, error) {
	b := s.resolveBranch(branchOverride)
	if !s.db.branches.Exists(b) {
		return nil, types.NotFoundf("branch %q", b)
	}
	rec, found := s.readOverlay(b, types.PrimitiveState, cell)
	if !found || rec.Tombstone {
		return nil, nil
	}
	v := rec.Value.Clone()
	return &v, nil
}

// StateReadv returns the cell's full history, newest first, or nil if
// the cell never existed.
func (s *Session) StateReadv(branchOverride, cell string) ([]types.VersionedValue, error) {
	b := s.resolveBranch(branchOverride)
	if !s.db.branches.Exists(b) {
		return nil, types.NotFoundf("branch %q", b)
	}
	return s.chainOverlay(b, types.PrimitiveState, cell), nil
}

// StateInit creates the cell if absent and returns the new version; if
// the cell exists its current version is returned and the value is left
// unchanged. Idempotent.
func (s *Session) StateInit(branchOverride, cell string, value types.Value) (uint64, error) {
	if cell == "" {
		return 0, types.InvalidArgumentf("state cell name must not be empty")
	}
	b := s.resolveBranch(branchOverride)
	if !s.db.branches.Exists(b) {
		return 0, types.NotFoundf("branch %q", b)
	}
	rec, found := s.readOverlay(b, types.PrimitiveState, cell)
	if found && !rec.Tombstone {
		return rec.Version, nil
	}
	if s.txn != nil {
		if err := s.checkWriteBranch(b); err != nil {
			return 0, err
		}
		s.stage(store.Mutation{
			Op:        store.OpPut,
			Primitive: types.PrimitiveState,
			Key:       cell,
			Value:     value.Clone(),
		})
		return s.provisionalVersion(), nil
	}
	// Auto-commit init races with concurrent creators; the conditional
	// commit path makes "create if absent" atomic. A lost race means the
	// cell exists now, which is init's success case.
	version, ok, err := s.db.commitCAS(b, store.Mutation{
		Op:              store.OpPut,
		Primitive:       types.PrimitiveState,
		Key:             cell,
		Value:           value.Clone(),
		Conditional:     true,
		ExpectedVersion: 0,
	})
	if err != nil {
		return 0, err
	}
	if !ok {
		rec, found := s.db.store.Get(b, types.PrimitiveState, cell, s.db.store.CurrentVersion())
		if found && !rec.Tombstone {
			return rec.Version, nil
		}
		return 0, types.InvalidStatef("state init lost a race with a concurrent delete of %q", cell)
	}
	return version, nil
}

// StateCas writes the cell only if its current version matches the
// expectation: expected == nil requires the cell to be absent (create),
// expected == &v requires the current version to equal v. On conflict
// it returns nil with no error and no write.
func (s *Session) StateCas(branchOverride, cell string, expected *uint64, value types.Value) (*uint64, error) {
	if cell == "" {
		return nil, types.InvalidArgumentf("state cell name must not be empty")
	}
	b := s.resolveBranch(branchOverride)
	if !s.db.branches.Exists(b) {
		return nil, types.NotFoundf("branch %q", b)
	}

	m := store.Mutation{
		Op:          store.OpPut,
		Primitive:   types.PrimitiveState,
		Key:         cell,
		Value:       value.Clone(),
		Conditional: true,
	}
	if expected != nil {
		if *expected == 0 {
			return nil, types.InvalidArgumentf("expected version 0 is reserved")
		}
		m.ExpectedVersion = *expected
	}

	if s.txn != nil {
		if err := s.checkWriteBranch(b); err != nil {
			return nil, err
		}
		rec, found := s.readOverlay(b, types.PrimitiveState, cell)
		if expected == nil {
			if found && !rec.Tombstone {
				return nil, nil
			}
		} else {
			if !found || rec.Tombstone || rec.Version != *expected {
				return nil, nil
			}
		}
		s.stage(m)
		v := s.provisionalVersion()
		return &v, nil
	}

	version, ok, err := s.db.commitCAS(b, m)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return &version, nil
}
