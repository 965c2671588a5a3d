package database

import (
	"github.com/strata-systems/strata/pkg/store"
	"github.com/strata-systems/strata/pkg/types"
)

// KvPut inserts or overwrites a key and returns the commit version.
// Empty keys are rejected.
func (s *Session) KvPut(branchOverride, key string, value types.Value) (uint64, error) {
	if key == "" {
		return 0, types.InvalidArgumentf("kv key must not be empty")
	}
	b := s.resolveBranch(branchOverride)
	return s.writeThrough(b, store.Mutation{
		Op:        store.OpPut,
		Primitive: types.PrimitiveKV,
		Key:       key,
		Value:     value.Clone(),
	})
}

// KvGet returns the current value, or nil if the key is absent or
// tombstoned.
func (s *Session) KvGet(branchOverride, key string) (*types.Value, error) {
	b := s.resolveBranch(branchOverride)
	if !s.db.branches.Exists(b) {
		return nil, types.NotFoundf("branch %q", b)
	}
	rec, found := s.readOverlay(b, types.PrimitiveKV, key)
	if !found || rec.Tombstone {
		return nil, nil
	}
	v := rec.Value.Clone()
	return &v, nil
}

// KvDelete appends a tombstone and reports whether the key was present.
func (s *Session) KvDelete(branchOverride, key string) (bool, error) {
	if key == "" {
		return false, types.InvalidArgumentf("kv key must not be empty")
	}
	b := s.resolveBranch(branchOverride)
	if !s.db.branches.Exists(b) {
		return false, types.NotFoundf("branch %q", b)
	}
	rec, found := s.readOverlay(b, types.PrimitiveKV, key)
	if !found || rec.Tombstone {
		return false, nil
	}
	_, err := s.writeThrough(b, store.Mutation{
		Op:        store.OpDelete,
		Primitive: types.PrimitiveKV,
		Key:       key,
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

// KvGetv returns the full version chain, newest first, or nil if the
// key never existed. Tombstones appear as chain entries.
func (s *Session) KvGetv(branchOverride, key string) ([]types.VersionedValue, error) {
	b := s.resolveBranch(branchOverride)
	if !s.db.branches.Exists(b) {
		return nil, types.NotFoundf("branch %q", b)
	}
	return s.chainOverlay(b, types.PrimitiveKV, key), nil
}

// KvList returns the present keys with the given prefix. Order is
// unspecified.
func (s *Session) KvList(branchOverride, prefix string) ([]string, error) {
	b := s.resolveBranch(branchOverride)
	if !s.db.branches.Exists(b) {
		return nil, types.NotFoundf("branch %q", b)
	}
	return s.listOverlay(b, types.PrimitiveKV, prefix), nil
}
