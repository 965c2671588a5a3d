package database

import (
	"github.com/google/uuid"
	"github.com/strata-systems/strata/pkg/branch"
	"github.com/strata-systems/strata/pkg/store"
	"github.com/strata-systems/strata/pkg/types"
	"github.com/strata-systems/strata/pkg/wal"
)

// CreateBranch registers a new empty branch. The creation is a commit:
// it takes a version, is logged to the WAL, and survives recovery.
func (d *Database) CreateBranch(name string) (types.BranchInfo, error) {
	if err := branch.ValidateName(name); err != nil {
		return types.BranchInfo{}, err
	}
	d.commitMu.Lock()
	defer d.commitMu.Unlock()
	if d.closed {
		return types.BranchInfo{}, types.InvalidStatef("database is closed")
	}
	if d.branches.Exists(name) {
		return types.BranchInfo{}, types.AlreadyExistsf("branch %q", name)
	}

	version := d.store.CurrentVersion() + 1
	ts := nowMs()
	info := types.BranchInfo{
		ID:        uuid.NewString(),
		Name:      name,
		CreatedAt: ts,
		UpdatedAt: ts,
		Version:   version,
	}
	muts := []store.Mutation{{
		Op:  store.OpBranchCreate,
		Key: name,
		Value: types.NewObject(map[string]types.Value{
			"id":         types.NewString(info.ID),
			"created_at": types.NewInt(ts),
		}),
	}}
	if err := d.wal.Append(wal.Record{
		CommitVersion: version,
		Timestamp:     ts,
		BranchID:      name,
		Payload:       store.EncodeMutations(muts),
	}); err != nil {
		return types.BranchInfo{}, err
	}
	d.branches.Put(info)
	d.store.AdvanceVersion(version)
	return info, nil
}

// DeleteBranch drops a branch and all its primitive state. Deleting
// default or an unknown branch fails.
func (d *Database) DeleteBranch(name string) error {
	if name == types.DefaultBranch {
		return types.InvalidArgumentf("the %q branch cannot be deleted", types.DefaultBranch)
	}
	d.commitMu.Lock()
	defer d.commitMu.Unlock()
	if d.closed {
		return types.InvalidStatef("database is closed")
	}
	if !d.branches.Exists(name) {
		return types.NotFoundf("branch %q", name)
	}

	version := d.store.CurrentVersion() + 1
	ts := nowMs()
	muts := []store.Mutation{{
		Op:    store.OpBranchDelete,
		Key:   name,
		Value: types.NewNull(),
	}}
	if err := d.wal.Append(wal.Record{
		CommitVersion: version,
		Timestamp:     ts,
		BranchID:      name,
		Payload:       store.EncodeMutations(muts),
	}); err != nil {
		return err
	}
	if _, err := d.branches.Delete(name); err != nil {
		return err
	}
	d.store.DropBranch(name)
	d.store.AdvanceVersion(version)
	return nil
}

// GetBranch returns a branch's metadata.
func (d *Database) GetBranch(name string) (types.BranchInfo, error) {
	return d.branches.Get(name)
}

// BranchExists reports whether the branch is registered.
func (d *Database) BranchExists(name string) bool {
	return d.branches.Exists(name)
}

// ListBranches returns branches ordered by creation time ascending.
func (d *Database) ListBranches(limit, offset int) []types.BranchInfo {
	return d.branches.List(limit, offset)
}

// ForkBranch would copy a branch's state under a new name; the disjoint
// keyspace design defers it.
func (d *Database) ForkBranch(src, dst string) error {
	return types.NotImplemented("branch_fork")
}

// DiffBranch would compare two branches' contents.
func (d *Database) DiffBranch(a, b string) error {
	return types.NotImplemented("branch_diff")
}

// Session wrappers so every branch operation is reachable from the
// command surface.

func (s *Session) BranchCreate(name string) (types.BranchInfo, error) {
	return s.db.CreateBranch(name)
}

func (s *Session) BranchDelete(name string) error {
	err := s.db.DeleteBranch(name)
	if err == nil && s.branch == name {
		s.branch = types.DefaultBranch
	}
	return err
}

func (s *Session) BranchGet(name string) (types.BranchInfo, error) {
	if name == "" {
		name = s.branch
	}
	return s.db.GetBranch(name)
}

func (s *Session) BranchExists(name string) bool {
	return s.db.BranchExists(name)
}

func (s *Session) BranchList(limit, offset int) []types.BranchInfo {
	return s.db.ListBranches(limit, offset)
}
