package branch

import (
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/strata-systems/strata/pkg/metrics"
	"github.com/strata-systems/strata/pkg/types"
)

// Registry maps branch names to their metadata. Branches start empty and
// stay disjoint, so creation is a constant-time metadata operation; the
// per-primitive contents live in the multi-version store keyed by branch.
type Registry struct {
	mu       sync.RWMutex
	branches map[string]types.BranchInfo
}

// NewRegistry returns a registry holding only the default branch,
// created at the given wall-clock milliseconds.
func NewRegistry(nowMs int64) *Registry {
	r := &Registry{branches: make(map[string]types.BranchInfo)}
	r.branches[types.DefaultBranch] = types.BranchInfo{
		ID:        uuid.NewString(),
		Name:      types.DefaultBranch,
		CreatedAt: nowMs,
		UpdatedAt: nowMs,
	}
	metrics.BranchesTotal.Set(1)
	return r
}

// ValidateName rejects names the registry will not accept.
func ValidateName(name string) error {
	if name == "" {
		return types.InvalidArgumentf("branch name must not be empty")
	}
	if len(name) > 255 {
		return types.InvalidArgumentf("branch name exceeds 255 bytes")
	}
	if strings.ContainsAny(name, "\x00/") {
		return types.InvalidArgumentf("branch name %q contains reserved characters", name)
	}
	return nil
}

// Create registers a new branch. Fails with AlreadyExists if the name is
// taken.
func (r *Registry) Create(name string, nowMs int64) (types.BranchInfo, error) {
	if err := ValidateName(name); err != nil {
		return types.BranchInfo{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.branches[name]; ok {
		return types.BranchInfo{}, types.AlreadyExistsf("branch %q", name)
	}
	info := types.BranchInfo{
		ID:        uuid.NewString(),
		Name:      name,
		CreatedAt: nowMs,
		UpdatedAt: nowMs,
	}
	r.branches[name] = info
	metrics.BranchesTotal.Set(float64(len(r.branches)))
	return info, nil
}

// Put installs branch metadata verbatim. Used by WAL replay, checkpoint
// load, and bundle import, which carry their own ids and timestamps.
func (r *Registry) Put(info types.BranchInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.branches[info.Name] = info
	metrics.BranchesTotal.Set(float64(len(r.branches)))
}

// Exists reports whether the branch is registered.
func (r *Registry) Exists(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.branches[name]
	return ok
}

// Get returns the branch metadata.
func (r *Registry) Get(name string) (types.BranchInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.branches[name]
	if !ok {
		return types.BranchInfo{}, types.NotFoundf("branch %q", name)
	}
	return info, nil
}

// List returns branches ordered by creation time ascending (name as the
// tie-break). Offset and limit page the result; limit <= 0 means all.
func (r *Registry) List(limit, offset int) []types.BranchInfo {
	r.mu.RLock()
	infos := make([]types.BranchInfo, 0, len(r.branches))
	for _, info := range r.branches {
		infos = append(infos, info)
	}
	r.mu.RUnlock()

	sort.Slice(infos, func(i, j int) bool {
		if infos[i].CreatedAt != infos[j].CreatedAt {
			return infos[i].CreatedAt < infos[j].CreatedAt
		}
		return infos[i].Name < infos[j].Name
	})
	if offset > 0 {
		if offset >= len(infos) {
			return nil
		}
		infos = infos[offset:]
	}
	if limit > 0 && limit < len(infos) {
		infos = infos[:limit]
	}
	return infos
}

// Delete removes a branch. The default branch and unknown branches are
// rejected.
func (r *Registry) Delete(name string) (types.BranchInfo, error) {
	if name == types.DefaultBranch {
		return types.BranchInfo{}, types.InvalidArgumentf("the %q branch cannot be deleted", types.DefaultBranch)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	info, ok := r.branches[name]
	if !ok {
		return types.BranchInfo{}, types.NotFoundf("branch %q", name)
	}
	delete(r.branches, name)
	metrics.BranchesTotal.Set(float64(len(r.branches)))
	return info, nil
}

// Touch records that a commit modified the branch.
func (r *Registry) Touch(name string, version uint64, nowMs int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	info, ok := r.branches[name]
	if !ok {
		return
	}
	info.Version = version
	info.UpdatedAt = nowMs
	r.branches[name] = info
}

// Count returns the number of registered branches.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.branches)
}

// All returns every branch, unordered. Used by checkpointing.
func (r *Registry) All() []types.BranchInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	infos := make([]types.BranchInfo, 0, len(r.branches))
	for _, info := range r.branches {
		infos = append(infos, info)
	}
	return infos
}
