package database

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/strata-systems/strata/pkg/config"
	"github.com/strata-systems/strata/pkg/types"
	"github.com/strata-systems/strata/pkg/wal"
)

// crashDB simulates a process crash: the instance disappears from the
// open registry and its files close without any graceful flush.
func crashDB(d *Database) {
	if d.path != "" {
		openMu.Lock()
		delete(openDatabases, d.path)
		openMu.Unlock()
	}
	d.commitMu.Lock()
	d.closed = true
	d.commitMu.Unlock()
	d.wal.Abort()
	if d.ckpt != nil {
		d.ckpt.Close()
	}
}

func openWithDurability(t *testing.T, dir string, mode types.DurabilityMode) *Database {
	t.Helper()
	if err := os.MkdirAll(dir, 0o700); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	contents := "durability = \"" + string(mode) + "\"\n"
	if err := os.WriteFile(filepath.Join(dir, config.FileName), []byte(contents), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	d, err := Open(dir)
	if err != nil {
		t.Fatalf("Open(%s) error: %v", mode, err)
	}
	return d
}

// TestAlwaysModeSurvivesCrash tests the headline durability guarantee:
// a committed write with durability=always is present after a crash
// with no explicit flush.
func TestAlwaysModeSurvivesCrash(t *testing.T) {
	dir := t.TempDir()
	d := openWithDurability(t, dir, types.DurabilityAlways)
	s := d.NewSession()
	if _, err := s.KvPut("", "k", types.NewString("v")); err != nil {
		t.Fatalf("KvPut() error: %v", err)
	}
	crashDB(d)

	d2 := openWithDurability(t, dir, types.DurabilityAlways)
	defer d2.Shutdown()
	v, err := d2.NewSession().KvGet("", "k")
	if err != nil {
		t.Fatalf("KvGet() after reopen error: %v", err)
	}
	if v == nil || v.Str != "v" {
		t.Errorf("KvGet() after crash = %v, want v", v)
	}
}

// TestStandardModeFlushThenCrash tests that an explicit flush makes
// standard-mode writes crash-safe
func TestStandardModeFlushThenCrash(t *testing.T) {
	dir := t.TempDir()
	d := openWithDurability(t, dir, types.DurabilityStandard)
	s := d.NewSession()
	if _, err := s.KvPut("", "k", types.NewInt(7)); err != nil {
		t.Fatalf("KvPut() error: %v", err)
	}
	if err := d.Flush(); err != nil {
		t.Fatalf("Flush() error: %v", err)
	}
	crashDB(d)

	d2 := openWithDurability(t, dir, types.DurabilityStandard)
	defer d2.Shutdown()
	v, _ := d2.NewSession().KvGet("", "k")
	if v == nil || v.Int != 7 {
		t.Errorf("flushed standard-mode write lost: %v", v)
	}
}

// TestRecoveryRestoresEverything tests all primitives plus branch
// lifecycle across a crash
func TestRecoveryRestoresEverything(t *testing.T) {
	dir := t.TempDir()
	d := openWithDurability(t, dir, types.DurabilityAlways)
	s := d.NewSession()

	d.CreateBranch("feature")
	d.CreateBranch("doomed")
	d.DeleteBranch("doomed")

	s.KvPut("", "kv", types.NewString("x"))
	s.KvPut("", "gone", types.NewInt(1))
	s.KvDelete("", "gone")
	s.StateSet("", "cell", types.NewInt(5))
	s.EventAppend("", "a", types.NewInt(1))
	s.EventAppend("", "b", types.NewInt(2))
	s.JsonSet("", "doc", "$", types.NewObject(map[string]types.Value{"n": types.NewInt(9)}))
	s.VectorCreateCollection("", "vecs", 2, types.MetricCosine)
	s.VectorUpsert("", "vecs", "v1", []float32{1, 0}, nil)
	s.KvPut("feature", "only-here", types.NewBool(true))

	wantVersion := d.store.CurrentVersion()
	crashDB(d)

	d2 := openWithDurability(t, dir, types.DurabilityAlways)
	defer d2.Shutdown()
	s2 := d2.NewSession()

	if got := d2.store.CurrentVersion(); got != wantVersion {
		t.Errorf("recovered commit version = %d, want %d", got, wantVersion)
	}
	if !d2.BranchExists("feature") {
		t.Error("branch create lost in recovery")
	}
	if d2.BranchExists("doomed") {
		t.Error("branch delete lost in recovery")
	}
	if v, _ := s2.KvGet("", "kv"); v == nil || v.Str != "x" {
		t.Errorf("kv lost: %v", v)
	}
	if v, _ := s2.KvGet("", "gone"); v != nil {
		t.Errorf("tombstone lost: %v", v)
	}
	if chain, _ := s2.KvGetv("", "gone"); len(chain) != 2 {
		t.Errorf("deleted key history = %d records, want 2", len(chain))
	}
	if v, _ := s2.StateRead("", "cell"); v == nil || v.Int != 5 {
		t.Errorf("state lost: %v", v)
	}
	if n, _ := s2.EventLen(""); n != 2 {
		t.Errorf("events lost: len = %d, want 2", n)
	}
	if recs, _ := s2.EventReadByType("", "a"); len(recs) != 1 || recs[0].Sequence != 1 {
		t.Errorf("event type index lost: %+v", recs)
	}
	if seq, _ := s2.EventAppend("", "c", types.NewInt(3)); seq != 3 {
		t.Errorf("post-recovery append seq = %d, want 3 (dense)", seq)
	}
	if v, _ := s2.JsonGet("", "doc", "n"); v == nil || v.Int != 9 {
		t.Errorf("json lost: %v", v)
	}
	if entry, _ := s2.VectorGet("", "vecs", "v1"); entry == nil {
		t.Error("vector lost")
	}
	if v, _ := s2.KvGet("feature", "only-here"); v == nil {
		t.Error("non-default branch data lost")
	}
}

// TestRecoveryIdempotent tests repeated crash/open convergence
func TestRecoveryIdempotent(t *testing.T) {
	dir := t.TempDir()
	d := openWithDurability(t, dir, types.DurabilityAlways)
	d.NewSession().KvPut("", "k", types.NewString("stable"))
	crashDB(d)

	for i := 0; i < 3; i++ {
		d = openWithDurability(t, dir, types.DurabilityAlways)
		v, err := d.NewSession().KvGet("", "k")
		if err != nil || v == nil || v.Str != "stable" {
			t.Fatalf("cycle %d: KvGet = %v, %v", i, v, err)
		}
		if chain, _ := d.NewSession().KvGetv("", "k"); len(chain) != 1 {
			t.Fatalf("cycle %d: chain grew to %d records", i, len(chain))
		}
		crashDB(d)
	}
}

// TestCompactThenCrash tests that checkpoint plus WAL tail recovers
func TestCompactThenCrash(t *testing.T) {
	dir := t.TempDir()
	d := openWithDurability(t, dir, types.DurabilityAlways)
	s := d.NewSession()

	s.KvPut("", "before", types.NewInt(1))
	s.EventAppend("", "t", types.NewInt(1))
	if err := d.Compact(); err != nil {
		t.Fatalf("Compact() error: %v", err)
	}
	s.KvPut("", "after", types.NewInt(2))
	s.EventAppend("", "t", types.NewInt(2))
	crashDB(d)

	d2 := openWithDurability(t, dir, types.DurabilityAlways)
	defer d2.Shutdown()
	s2 := d2.NewSession()
	if v, _ := s2.KvGet("", "before"); v == nil {
		t.Error("checkpointed write lost")
	}
	if v, _ := s2.KvGet("", "after"); v == nil {
		t.Error("post-checkpoint write lost")
	}
	if n, _ := s2.EventLen(""); n != 2 {
		t.Errorf("EventLen after compact+crash = %d, want 2", n)
	}
}

// TestCacheModeLosesStateOnReopen tests the cache-mode contract
func TestCacheModeLosesStateOnReopen(t *testing.T) {
	dir := t.TempDir()
	d := openWithDurability(t, dir, types.DurabilityCache)
	d.NewSession().KvPut("", "k", types.NewInt(1))
	counters := d.DurabilityCounters()
	if counters.WalAppends != 0 || counters.SyncCalls != 0 {
		t.Errorf("cache mode produced WAL activity: %+v", counters)
	}
	if _, err := os.Stat(filepath.Join(dir, wal.FileName)); !errors.Is(err, os.ErrNotExist) {
		t.Error("cache mode created a WAL file")
	}
	crashDB(d)

	d2 := openWithDurability(t, dir, types.DurabilityCache)
	defer d2.Shutdown()
	if v, _ := d2.NewSession().KvGet("", "k"); v != nil {
		t.Errorf("cache mode kept state across reopen: %v", v)
	}
}

// TestOpenRegistrySameInstance tests single-open-per-path
func TestOpenRegistrySameInstance(t *testing.T) {
	dir := t.TempDir()
	d1, err := Open(dir)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	d2, err := Open(dir)
	if err != nil {
		t.Fatalf("second Open() error: %v", err)
	}
	if d1 != d2 {
		t.Error("opening the same path twice returned different instances")
	}
	if err := d1.Shutdown(); err != nil {
		t.Fatalf("Shutdown() error: %v", err)
	}

	d3, err := Open(dir)
	if err != nil {
		t.Fatalf("Open() after shutdown error: %v", err)
	}
	defer d3.Shutdown()
	if d3 == d1 {
		t.Error("shutdown instance returned from the registry")
	}

	// Cache databases are always independent.
	c1 := cacheDB(t)
	c2 := cacheDB(t)
	c1.NewSession().KvPut("", "k", types.NewInt(1))
	if v, _ := c2.NewSession().KvGet("", "k"); v != nil {
		t.Error("cache databases share state")
	}
}

// TestShutdownRejectsFurtherCommits tests the closed guard
func TestShutdownRejectsFurtherCommits(t *testing.T) {
	d, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	s := d.NewSession()
	if err := d.Shutdown(); err != nil {
		t.Fatalf("Shutdown() error: %v", err)
	}
	if _, err := s.KvPut("", "k", types.NewInt(1)); !errors.Is(err, types.ErrInvalidState) {
		t.Errorf("commit after shutdown = %v, want ErrInvalidState", err)
	}
	// Shutdown twice is fine.
	if err := d.Shutdown(); err != nil {
		t.Errorf("second Shutdown() = %v, want nil", err)
	}
}

// TestDurabilityCountersPerMode tests the counter contract per mode
func TestDurabilityCountersPerMode(t *testing.T) {
	t.Run("always", func(t *testing.T) {
		d := openWithDurability(t, t.TempDir(), types.DurabilityAlways)
		defer d.Shutdown()
		s := d.NewSession()
		for i := 0; i < 3; i++ {
			s.KvPut("", "k", types.NewInt(int64(i)))
		}
		c := d.DurabilityCounters()
		if c.WalAppends != 3 || c.SyncCalls != 3 {
			t.Errorf("always counters = %+v, want 3 appends and 3 syncs", c)
		}
		if c.BytesWritten == 0 || c.SyncNanos == 0 {
			t.Errorf("always counters missing bytes/nanos: %+v", c)
		}
	})
	t.Run("standard", func(t *testing.T) {
		d := openWithDurability(t, t.TempDir(), types.DurabilityStandard)
		defer d.Shutdown()
		s := d.NewSession()
		for i := 0; i < 3; i++ {
			s.KvPut("", "k", types.NewInt(int64(i)))
		}
		c := d.DurabilityCounters()
		if c.WalAppends != 3 {
			t.Errorf("standard WalAppends = %d, want 3", c.WalAppends)
		}
		if c.SyncCalls > c.WalAppends {
			t.Errorf("standard SyncCalls = %d exceeds appends", c.SyncCalls)
		}
	})
}
