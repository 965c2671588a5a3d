package database

import (
	"sort"

	"github.com/strata-systems/strata/pkg/bundle"
	"github.com/strata-systems/strata/pkg/store"
	"github.com/strata-systems/strata/pkg/types"
)

// ExportBranch writes one branch's complete contents (current and
// historical versions) to a bundle at path. The cut is consistent: the
// commit token is held while the store is walked.
func (d *Database) ExportBranch(name, path string) (types.ExportResult, error) {
	info, err := d.branches.Get(name)
	if err != nil {
		return types.ExportResult{}, err
	}

	d.commitMu.Lock()
	var entries []bundle.Entry
	atVersion := d.store.CurrentVersion()
	for _, prim := range types.Primitives {
		for _, key := range d.store.BranchKeys(name, prim) {
			chain := d.store.GetChain(name, prim, key, atVersion)
			// Chains are newest first; bundles hold oldest first so import
			// replays in commit order.
			for i := len(chain) - 1; i >= 0; i-- {
				rec := chain[i]
				entries = append(entries, bundle.Entry{
					Primitive: prim,
					Key:       key,
					Version:   rec.Version,
					Timestamp: rec.Timestamp,
					Tombstone: rec.Tombstone,
					Value:     rec.Value,
				})
			}
		}
	}
	d.commitMu.Unlock()

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Version < entries[j].Version
	})
	return bundle.Write(path, info, entries)
}

// ValidateBundle checks a bundle's format, checksums, and version
// ordering.
func (d *Database) ValidateBundle(path string) (types.ValidateResult, error) {
	return bundle.Validate(path)
}

// ImportBranch creates the bundle's branch in this database and commits
// its entries as real transactions, one per original commit version, so
// the imported data participates in recovery like any other write.
// Fails with AlreadyExists if the branch name is taken.
func (d *Database) ImportBranch(path string) (types.ImportResult, error) {
	manifest, entries, err := bundle.Read(path)
	if err != nil {
		return types.ImportResult{}, err
	}
	name := manifest.BranchInfo.Name
	if d.branches.Exists(name) {
		return types.ImportResult{}, types.AlreadyExistsf("branch %q", name)
	}
	info, err := d.CreateBranch(name)
	if err != nil {
		return types.ImportResult{}, err
	}

	var (
		txns int
		keys = make(map[store.Key]bool)
	)
	for start := 0; start < len(entries); {
		end := start
		for end < len(entries) && entries[end].Version == entries[start].Version {
			end++
		}
		group := entries[start:end]
		muts, err := importMutations(name, group, keys)
		if err != nil {
			return types.ImportResult{}, err
		}
		if len(muts) > 0 {
			if _, err := d.commit(name, muts, "import"); err != nil {
				return types.ImportResult{}, err
			}
			txns++
		}
		start = end
	}

	d.lg.Info().
		Str("branch", name).
		Int("transactions", txns).
		Int("keys", len(keys)).
		Msg("bundle imported")
	return types.ImportResult{
		BranchID:            info.ID,
		TransactionsApplied: txns,
		KeysWritten:         len(keys),
	}, nil
}

// importMutations turns one original transaction's entries back into
// mutations. Event entries become appends ordered by their original
// sequence; the fresh branch re-assigns the same dense numbers.
func importMutations(branchName string, group []bundle.Entry, keys map[store.Key]bool) ([]store.Mutation, error) {
	ordered := append([]bundle.Entry(nil), group...)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Primitive != ordered[j].Primitive {
			return ordered[i].Primitive == types.PrimitiveEvent && ordered[j].Primitive != types.PrimitiveEvent
		}
		return ordered[i].Key < ordered[j].Key
	})

	var muts []store.Mutation
	for _, e := range ordered {
		keys[store.Key{Branch: branchName, Primitive: e.Primitive, Key: e.Key}] = true
		switch {
		case e.Primitive == types.PrimitiveEvent:
			if e.Value.Kind != types.KindObject {
				return nil, types.Corruptionf("bundle event %q is %s, want object", e.Key, e.Value.Kind)
			}
			muts = append(muts, store.Mutation{
				Op:        store.OpEventAppend,
				Primitive: types.PrimitiveEvent,
				EventType: e.Value.Object["type"].Str,
				Value:     e.Value.Object["payload"],
			})
		case e.Tombstone:
			muts = append(muts, store.Mutation{
				Op:        store.OpDelete,
				Primitive: e.Primitive,
				Key:       e.Key,
			})
		default:
			muts = append(muts, store.Mutation{
				Op:        store.OpPut,
				Primitive: e.Primitive,
				Key:       e.Key,
				Value:     e.Value,
			})
		}
	}
	return muts, nil
}

// Session wrappers for the bundle commands.

func (s *Session) BranchExport(branchOverride, path string) (types.ExportResult, error) {
	b := s.resolveBranch(branchOverride)
	return s.db.ExportBranch(b, path)
}

func (s *Session) BranchImport(path string) (types.ImportResult, error) {
	return s.db.ImportBranch(path)
}

func (s *Session) BranchValidateBundle(path string) (types.ValidateResult, error) {
	return s.db.ValidateBundle(path)
}
