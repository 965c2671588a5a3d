package database

import (
	"github.com/google/uuid"
	"github.com/strata-systems/strata/pkg/store"
	"github.com/strata-systems/strata/pkg/types"
)

// Session is a caller-owned handle on a database: the current branch
// pointer plus the optional active transaction. Sessions are cheap to
// create, one per goroutine; a Session itself is not safe for
// concurrent use.
type Session struct {
	db     *Database
	branch string
	txn    *txnState
}

// txnState is the Active half of the session state machine: the staged
// write buffer plus the snapshot version reads fall back to.
type txnState struct {
	id           string
	branch       string
	startVersion uint64
	muts         []store.Mutation
	// overlay maps a chain key to the index in muts of its latest staged
	// write, for read-your-writes and list merging. Event appends are
	// not in overlay; they are previewed by position.
	overlay map[store.Key]int
}

// DB returns the underlying database.
func (s *Session) DB() *Database {
	return s.db
}

// Branch returns the session's current branch.
func (s *Session) Branch() string {
	return s.branch
}

// SetBranch points the session at another branch.
func (s *Session) SetBranch(name string) error {
	if !s.db.branches.Exists(name) {
		return types.NotFoundf("branch %q", name)
	}
	s.branch = name
	return nil
}

// TxnBegin opens a transaction. The branch override, when set, selects
// the transaction's branch; otherwise the session's current branch is
// used. Fails with InvalidState if a transaction is already active.
func (s *Session) TxnBegin(branchOverride string) error {
	if s.txn != nil {
		return types.InvalidStatef("transaction %s already active", s.txn.id)
	}
	b := s.branch
	if branchOverride != "" {
		b = branchOverride
	}
	if !s.db.branches.Exists(b) {
		return types.NotFoundf("branch %q", b)
	}
	s.txn = &txnState{
		id:           uuid.NewString(),
		branch:       b,
		startVersion: s.db.store.CurrentVersion(),
		overlay:      make(map[store.Key]int),
	}
	return nil
}

// TxnCommit applies the buffered writes atomically and returns the
// assigned commit version. Fails with InvalidState while Idle.
func (s *Session) TxnCommit() (uint64, error) {
	if s.txn == nil {
		return 0, types.InvalidStatef("no active transaction")
	}
	txn := s.txn
	s.txn = nil
	version, err := s.db.commit(txn.branch, txn.muts, "explicit")
	if err != nil {
		// The buffer is gone either way; a failed durable commit left no
		// visible state.
		return 0, err
	}
	return version, nil
}

// TxnRollback discards the buffered writes. Fails with InvalidState
// while Idle.
func (s *Session) TxnRollback() error {
	if s.txn == nil {
		return types.InvalidStatef("no active transaction")
	}
	s.txn = nil
	return nil
}

// TxnIsActive reports whether a transaction is open.
func (s *Session) TxnIsActive() bool {
	return s.txn != nil
}

// TxnInfo describes the active transaction, or nil while Idle.
func (s *Session) TxnInfo() *types.TxnInfo {
	if s.txn == nil {
		return nil
	}
	return &types.TxnInfo{
		ID:           s.txn.id,
		Branch:       s.txn.branch,
		StartVersion: s.txn.startVersion,
		PendingOps:   len(s.txn.muts),
	}
}

// Close rolls back any active transaction. Dropping a session while
// Active must not leak staged writes.
func (s *Session) Close() {
	s.txn = nil
}

// Ping answers the liveness probe.
func (s *Session) Ping() string {
	return "pong"
}

// resolveBranch applies the per-command branch override. While a
// transaction is active, writes must target the transaction's branch.
func (s *Session) resolveBranch(override string) string {
	if override != "" {
		return override
	}
	if s.txn != nil {
		return s.txn.branch
	}
	return s.branch
}

// checkWriteBranch rejects writes that would escape the active
// transaction's branch.
func (s *Session) checkWriteBranch(b string) error {
	if s.txn != nil && b != s.txn.branch {
		return types.InvalidArgumentf("write targets branch %q but the active transaction is on %q", b, s.txn.branch)
	}
	return nil
}

// visibleVersion is the snapshot reads observe: the transaction's start
// version while Active, the current watermark otherwise.
func (s *Session) visibleVersion() uint64 {
	if s.txn != nil {
		return s.txn.startVersion
	}
	return s.db.store.CurrentVersion()
}

// provisionalVersion is the version reported for writes staged in an
// active transaction; the real version is assigned at commit.
func (s *Session) provisionalVersion() uint64 {
	return s.txn.startVersion + 1
}

// stage buffers one mutation in the active transaction.
func (s *Session) stage(m store.Mutation) {
	s.txn.muts = append(s.txn.muts, m)
	if m.Op != store.OpEventAppend {
		s.txn.overlay[store.Key{Branch: s.txn.branch, Primitive: m.Primitive, Key: m.Key}] = len(s.txn.muts) - 1
	}
}

// readOverlay consults the write buffer first, then the committed store
// at the snapshot version. The returned record is provisional for
// buffered writes.
func (s *Session) readOverlay(b string, prim types.Primitive, key string) (types.VersionedValue, bool) {
	if s.txn != nil && b == s.txn.branch {
		if idx, ok := s.txn.overlay[store.Key{Branch: b, Primitive: prim, Key: key}]; ok {
			m := s.txn.muts[idx]
			return types.VersionedValue{
				Version:   s.provisionalVersion(),
				Timestamp: nowMs(),
				Value:     m.Value,
				Tombstone: m.Op == store.OpDelete,
			}, true
		}
	}
	return s.db.store.Get(b, prim, key, s.visibleVersion())
}

// listOverlay merges the committed key listing with buffered inserts,
// overwrites, and deletes.
func (s *Session) listOverlay(b string, prim types.Primitive, prefix string) []string {
	keys := s.db.store.ListKeys(b, prim, prefix, s.visibleVersion())
	if s.txn == nil || b != s.txn.branch {
		return keys
	}
	present := make(map[string]bool, len(keys))
	for _, k := range keys {
		present[k] = true
	}
	for key, idx := range s.txn.overlay {
		if key.Primitive != prim || len(key.Key) < len(prefix) || key.Key[:len(prefix)] != prefix {
			continue
		}
		if s.txn.muts[idx].Op == store.OpDelete {
			delete(present, key.Key)
		} else {
			present[key.Key] = true
		}
	}
	merged := make([]string, 0, len(present))
	for k := range present {
		merged = append(merged, k)
	}
	return merged
}

// chainOverlay returns the visible version chain with any buffered write
// prepended as a provisional newest record.
func (s *Session) chainOverlay(b string, prim types.Primitive, key string) []types.VersionedValue {
	chain := s.db.store.GetChain(b, prim, key, s.visibleVersion())
	if s.txn != nil && b == s.txn.branch {
		if idx, ok := s.txn.overlay[store.Key{Branch: b, Primitive: prim, Key: key}]; ok {
			m := s.txn.muts[idx]
			chain = append([]types.VersionedValue{{
				Version:   s.provisionalVersion(),
				Timestamp: nowMs(),
				Value:     m.Value,
				Tombstone: m.Op == store.OpDelete,
			}}, chain...)
		}
	}
	return chain
}

// writeThrough stages the mutation in an active transaction or commits
// it immediately as an implicit one-command transaction. It returns the
// version the write is (or will be) visible at.
func (s *Session) writeThrough(b string, m store.Mutation) (uint64, error) {
	if err := s.checkWriteBranch(b); err != nil {
		return 0, err
	}
	if s.txn != nil {
		s.stage(m)
		return s.provisionalVersion(), nil
	}
	return s.db.commit(b, []store.Mutation{m}, "auto_commit")
}
