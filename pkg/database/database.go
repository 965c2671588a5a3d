package database

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/strata-systems/strata/pkg/branch"
	"github.com/strata-systems/strata/pkg/checkpoint"
	"github.com/strata-systems/strata/pkg/config"
	"github.com/strata-systems/strata/pkg/log"
	"github.com/strata-systems/strata/pkg/metrics"
	"github.com/strata-systems/strata/pkg/store"
	"github.com/strata-systems/strata/pkg/types"
	"github.com/strata-systems/strata/pkg/wal"
)

// openDatabases is the per-process registry: opening the same on-disk
// path twice returns the same instance. Cache databases are never
// registered.
var (
	openMu        sync.Mutex
	openDatabases = make(map[string]*Database)
)

// Database is one embedded StrataDB instance: the multi-version store,
// the branch registry, and the durability controller behind a single
// commit token.
type Database struct {
	path string // empty for cache databases
	cfg  config.StrataConfig
	lg   zerolog.Logger

	store    *store.Store
	branches *branch.Registry
	wal      *wal.Writer
	ckpt     *checkpoint.Checkpoint // nil in cache mode

	// commitMu is the exclusive mutation token: commits serialize here,
	// readers never take it.
	commitMu sync.Mutex
	closed   bool
}

// Cache constructs a pure in-memory database: no WAL, no recovery, no
// files. Every call returns an independent instance.
func Cache() (*Database, error) {
	d := &Database{
		cfg:      config.StrataConfig{Durability: types.DurabilityCache},
		lg:       log.WithComponent("database"),
		store:    store.NewStore(),
		branches: branch.NewRegistry(nowMs()),
	}
	w, err := wal.OpenWriter("", types.DurabilityCache, 0, wal.Options{})
	if err != nil {
		return nil, err
	}
	d.wal = w
	return d, nil
}

// Open opens (or creates) the database at dir, loading strata.toml,
// the checkpoint, and replaying the WAL tail. Opening an already-open
// path returns the existing instance.
func Open(dir string) (*Database, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, types.InvalidArgumentf("resolve path %q: %v", dir, err)
	}

	openMu.Lock()
	defer openMu.Unlock()
	if existing, ok := openDatabases[abs]; ok {
		return existing, nil
	}

	if err := os.MkdirAll(abs, 0o700); err != nil {
		return nil, types.Durabilityf("create database dir: %v", err)
	}
	cfg, err := config.Load(abs)
	if err != nil {
		return nil, err
	}

	d := &Database{
		path:     abs,
		cfg:      cfg,
		lg:       log.WithComponent("database"),
		store:    store.NewStore(),
		branches: branch.NewRegistry(nowMs()),
	}

	if cfg.Durability == types.DurabilityCache {
		// An on-disk dir configured for cache mode behaves like Cache()
		// but still participates in the open registry.
		w, err := wal.OpenWriter("", types.DurabilityCache, 0, wal.Options{})
		if err != nil {
			return nil, err
		}
		d.wal = w
		openDatabases[abs] = d
		return d, nil
	}

	ckpt, err := checkpoint.Open(abs)
	if err != nil {
		return nil, err
	}
	d.ckpt = ckpt

	if err := d.recover(); err != nil {
		ckpt.Close()
		return nil, err
	}

	openDatabases[abs] = d
	d.lg.Info().
		Str("path", abs).
		Str("durability", string(cfg.Durability)).
		Uint64("commit_version", d.store.CurrentVersion()).
		Msg("database open")
	return d, nil
}

// OpenTemp opens a standard-durability database in a fresh temporary
// directory.
func OpenTemp() (*Database, error) {
	dir, err := os.MkdirTemp("", "strata-*")
	if err != nil {
		return nil, types.Durabilityf("create temp dir: %v", err)
	}
	return Open(dir)
}

// recover loads the checkpoint, replays WAL records committed after its
// watermark, and opens the writer truncated past any torn tail.
func (d *Database) recover() error {
	branches, dump, found, err := d.ckpt.Load()
	if err != nil {
		return err
	}
	if found {
		d.store.Restore(dump)
		for _, info := range branches {
			d.branches.Put(info)
		}
		d.lg.Info().Uint64("watermark", dump.Version).Msg("checkpoint loaded")
	}

	watermark := d.store.CurrentVersion()
	validSize, err := wal.Replay(d.path, func(rec wal.Record) error {
		if rec.CommitVersion <= watermark {
			return nil // already covered by the checkpoint
		}
		muts, err := store.DecodeMutations(rec.Payload)
		if err != nil {
			return err
		}
		d.applyRecord(rec, muts)
		metrics.RecoveryRecordsTotal.Inc()
		return nil
	})
	if err != nil {
		return err
	}

	w, err := wal.OpenWriter(d.path, d.cfg.Durability, validSize, wal.Options{
		SyncInterval: d.cfg.SyncInterval(),
		SyncBatch:    d.cfg.SyncBatch,
	})
	if err != nil {
		return err
	}
	d.wal = w
	return nil
}

// applyRecord applies one replayed WAL record: branch lifecycle routes to
// the registry, everything else to the store.
func (d *Database) applyRecord(rec wal.Record, muts []store.Mutation) {
	var dataMuts []store.Mutation
	for _, m := range muts {
		switch m.Op {
		case store.OpBranchCreate:
			d.branches.Put(types.BranchInfo{
				ID:        m.Value.Object["id"].Str,
				Name:      m.Key,
				CreatedAt: m.Value.Object["created_at"].Int,
				UpdatedAt: m.Value.Object["created_at"].Int,
				Version:   rec.CommitVersion,
			})
		case store.OpBranchDelete:
			d.store.DropBranch(m.Key)
			if _, err := d.branches.Delete(m.Key); err != nil {
				d.lg.Warn().Str("branch", m.Key).Err(err).Msg("replayed delete of unknown branch")
			}
		default:
			dataMuts = append(dataMuts, m)
		}
	}
	if len(dataMuts) > 0 {
		d.store.Apply(rec.CommitVersion, rec.Timestamp, rec.BranchID, dataMuts)
		d.branches.Touch(rec.BranchID, rec.CommitVersion, rec.Timestamp)
	} else {
		d.store.AdvanceVersion(rec.CommitVersion)
	}
}

// NewSession returns a lightweight handle positioned on the default
// branch with no active transaction.
func (d *Database) NewSession() *Session {
	return &Session{db: d, branch: types.DefaultBranch}
}

// DurabilityCounters snapshots the durability controller's activity.
func (d *Database) DurabilityCounters() types.DurabilityCounters {
	return d.wal.Counters()
}

// Info describes the database.
func (d *Database) Info() types.DatabaseInfo {
	return types.DatabaseInfo{
		Path:          d.path,
		Durability:    d.cfg.Durability,
		CommitVersion: d.store.CurrentVersion(),
		BranchCount:   d.branches.Count(),
	}
}

// Flush forces the WAL to disk now. No-op in cache mode.
func (d *Database) Flush() error {
	return d.wal.Flush()
}

// Compact checkpoints the committed state into segments.db and truncates
// the WAL. No-op in cache mode.
func (d *Database) Compact() error {
	if d.ckpt == nil {
		return nil
	}
	d.commitMu.Lock()
	defer d.commitMu.Unlock()
	if d.closed {
		return types.InvalidStatef("database is closed")
	}
	if err := d.wal.Flush(); err != nil {
		return err
	}
	dump := d.store.Export()
	if err := d.ckpt.Save(d.branches.All(), dump); err != nil {
		return types.Durabilityf("save checkpoint: %v", err)
	}
	if err := d.wal.Reset(); err != nil {
		return err
	}
	d.lg.Info().Uint64("watermark", dump.Version).Msg("compacted")
	return nil
}

// Shutdown flushes and closes the database. Further commits fail with
// InvalidState. The path can be opened again afterwards.
func (d *Database) Shutdown() error {
	d.commitMu.Lock()
	if d.closed {
		d.commitMu.Unlock()
		return nil
	}
	d.closed = true
	d.commitMu.Unlock()

	if d.path != "" {
		openMu.Lock()
		delete(openDatabases, d.path)
		openMu.Unlock()
	}

	walErr := d.wal.Close()
	var ckptErr error
	if d.ckpt != nil {
		ckptErr = d.ckpt.Close()
	}
	if walErr != nil {
		return walErr
	}
	if ckptErr != nil {
		return types.Durabilityf("close checkpoint: %v", ckptErr)
	}
	return nil
}

// commit runs one transaction through the durability controller and the
// store under the mutation token. Conditional mutations are re-validated
// here; stale ones are dropped (the CAS contract: no write, no error).
// Event appends receive their dense sequence numbers here.
//
// Returns the assigned commit version, or the current watermark when
// every mutation was dropped (nothing was written).
func (d *Database) commit(branchName string, muts []store.Mutation, origin string) (uint64, error) {
	timer := metrics.NewTimer()
	d.commitMu.Lock()
	defer d.commitMu.Unlock()
	if d.closed {
		return 0, types.InvalidStatef("database is closed")
	}
	if !d.branches.Exists(branchName) {
		return 0, types.NotFoundf("branch %q", branchName)
	}

	current := d.store.CurrentVersion()
	kept := d.validateConditionals(branchName, muts, current)
	if len(kept) == 0 {
		return current, nil
	}

	nextSeq := d.store.NextEventSeq(branchName)
	for i := range kept {
		if kept[i].Op == store.OpEventAppend && kept[i].Sequence == 0 {
			kept[i].Sequence = nextSeq
			nextSeq++
		}
	}

	version := current + 1
	ts := nowMs()
	if err := d.wal.Append(wal.Record{
		CommitVersion: version,
		Timestamp:     ts,
		BranchID:      branchName,
		Payload:       store.EncodeMutations(kept),
	}); err != nil {
		return 0, err
	}
	d.store.Apply(version, ts, branchName, kept)
	d.branches.Touch(branchName, version, ts)

	metrics.CommitsTotal.WithLabelValues(origin).Inc()
	timer.ObserveDuration(metrics.CommitDuration)
	return version, nil
}

// validateConditionals re-checks CAS mutations against the state visible
// at commit time. A cell already written earlier in the same transaction
// passes (the session validated it against its own buffer); otherwise
// the cell's current version must match the expectation.
func (d *Database) validateConditionals(branchName string, muts []store.Mutation, atVersion uint64) []store.Mutation {
	kept := muts[:0:0]
	written := make(map[string]bool)
	for _, m := range muts {
		if m.Conditional && !written[m.Key] {
			rec, found := d.store.Get(branchName, types.PrimitiveState, m.Key, atVersion)
			switch {
			case m.ExpectedVersion == 0 && found && !rec.Tombstone:
				continue // expected absent, cell exists: stale
			case m.ExpectedVersion != 0 && (!found || rec.Tombstone || rec.Version != m.ExpectedVersion):
				continue // version moved: stale
			}
		}
		if m.Primitive == types.PrimitiveState && (m.Op == store.OpPut) {
			written[m.Key] = true
		}
		kept = append(kept, m)
	}
	return kept
}

// commitCAS is the auto-commit path for a single conditional write: the
// check and the commit share one critical section so at most one
// concurrent CAS with the same expectation can succeed.
func (d *Database) commitCAS(branchName string, m store.Mutation) (uint64, bool, error) {
	d.commitMu.Lock()
	defer d.commitMu.Unlock()
	if d.closed {
		return 0, false, types.InvalidStatef("database is closed")
	}
	if !d.branches.Exists(branchName) {
		return 0, false, types.NotFoundf("branch %q", branchName)
	}

	current := d.store.CurrentVersion()
	rec, found := d.store.Get(branchName, types.PrimitiveState, m.Key, current)
	if m.ExpectedVersion == 0 {
		if found && !rec.Tombstone {
			return 0, false, nil
		}
	} else {
		if !found || rec.Tombstone || rec.Version != m.ExpectedVersion {
			return 0, false, nil
		}
	}

	version := current + 1
	ts := nowMs()
	if err := d.wal.Append(wal.Record{
		CommitVersion: version,
		Timestamp:     ts,
		BranchID:      branchName,
		Payload:       store.EncodeMutations([]store.Mutation{m}),
	}); err != nil {
		return 0, false, err
	}
	d.store.Apply(version, ts, branchName, []store.Mutation{m})
	d.branches.Touch(branchName, version, ts)
	metrics.CommitsTotal.WithLabelValues("auto_commit").Inc()
	return version, true, nil
}

func nowMs() int64 {
	return time.Now().UnixMilli()
}
