package database

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/strata-systems/strata/pkg/bundle"
	"github.com/strata-systems/strata/pkg/types"
)

func bundlePath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "branch"+bundle.Extension)
}

// populateBranch writes a representative mix to one branch.
func populateBranch(t *testing.T, d *Database, branchName string) {
	t.Helper()
	s := d.NewSession()
	if _, err := s.KvPut(branchName, "kv:a", types.NewString("one")); err != nil {
		t.Fatalf("KvPut() error: %v", err)
	}
	s.KvPut(branchName, "kv:a", types.NewString("two")) // history
	s.KvPut(branchName, "kv:b", types.NewInt(5))
	s.KvDelete(branchName, "kv:b") // tombstone
	s.StateSet(branchName, "cell", types.NewFloat(2.5))
	s.EventAppend(branchName, "x", types.NewInt(1))
	s.EventAppend(branchName, "y", types.NewInt(2))
	s.JsonSet(branchName, "doc", "$", types.NewObject(map[string]types.Value{
		"nested": types.NewObject(map[string]types.Value{"deep": types.NewBool(true)}),
	}))
	s.VectorCreateCollection(branchName, "vecs", 2, types.MetricEuclidean)
	s.VectorUpsert(branchName, "vecs", "v1", []float32{1, 2}, map[string]types.Value{
		"label": types.NewString("sample"),
	})
}

// TestBundleRoundTrip tests export -> validate -> import reproducing state
func TestBundleRoundTrip(t *testing.T) {
	src := cacheDB(t)
	if _, err := src.CreateBranch("payload"); err != nil {
		t.Fatalf("CreateBranch() error: %v", err)
	}
	populateBranch(t, src, "payload")
	path := bundlePath(t)

	export, err := src.ExportBranch("payload", path)
	if err != nil {
		t.Fatalf("ExportBranch() error: %v", err)
	}
	if export.EntryCount == 0 || export.BundleSize == 0 || export.BranchID == "" {
		t.Errorf("ExportBranch() = %+v", export)
	}

	validate, err := src.ValidateBundle(path)
	if err != nil {
		t.Fatalf("ValidateBundle() error: %v", err)
	}
	if !validate.ChecksumsValid || validate.EntryCount != export.EntryCount {
		t.Errorf("ValidateBundle() = %+v, export had %d entries", validate, export.EntryCount)
	}

	dst := cacheDB(t)
	imported, err := dst.ImportBranch(path)
	if err != nil {
		t.Fatalf("ImportBranch() error: %v", err)
	}
	if imported.TransactionsApplied == 0 || imported.KeysWritten == 0 {
		t.Errorf("ImportBranch() = %+v", imported)
	}

	s := dst.NewSession()
	if v, _ := s.KvGet("payload", "kv:a"); v == nil || v.Str != "two" {
		t.Errorf("imported kv:a = %v, want two", v)
	}
	if chain, _ := s.KvGetv("payload", "kv:a"); len(chain) != 2 {
		t.Errorf("imported kv:a history = %d records, want 2", len(chain))
	}
	if v, _ := s.KvGet("payload", "kv:b"); v != nil {
		t.Errorf("imported tombstone not honored: %v", v)
	}
	if chain, _ := s.KvGetv("payload", "kv:b"); len(chain) != 2 || !chain[0].Tombstone {
		t.Errorf("imported kv:b chain = %+v", chain)
	}
	if v, _ := s.StateRead("payload", "cell"); v == nil || v.Float != 2.5 {
		t.Errorf("imported state = %v", v)
	}
	if n, _ := s.EventLen("payload"); n != 2 {
		t.Errorf("imported events = %d, want 2", n)
	}
	if recs, _ := s.EventReadByType("payload", "y"); len(recs) != 1 || recs[0].Sequence != 2 {
		t.Errorf("imported type index = %+v", recs)
	}
	if v, _ := s.JsonGet("payload", "doc", "nested.deep"); v == nil || !v.Bool {
		t.Errorf("imported json = %v", v)
	}
	if entry, _ := s.VectorGet("payload", "vecs", "v1"); entry == nil || entry.Metadata["label"].Str != "sample" {
		t.Errorf("imported vector = %+v", entry)
	}

	// Imported commits are real: they advanced the destination's version.
	if dst.store.CurrentVersion() == 0 {
		t.Error("import did not commit")
	}
}

// TestBundleImportDuplicateBranch tests the AlreadyExists contract
func TestBundleImportDuplicateBranch(t *testing.T) {
	src := cacheDB(t)
	src.CreateBranch("dup")
	path := bundlePath(t)
	if _, err := src.ExportBranch("dup", path); err != nil {
		t.Fatalf("ExportBranch() error: %v", err)
	}
	if _, err := src.ImportBranch(path); !errors.Is(err, types.ErrAlreadyExists) {
		t.Errorf("ImportBranch(existing) = %v, want ErrAlreadyExists", err)
	}
}

// TestBundleEmptyBranch tests entry_count zero for a data-less branch
func TestBundleEmptyBranch(t *testing.T) {
	src := cacheDB(t)
	src.CreateBranch("empty")
	path := bundlePath(t)

	export, err := src.ExportBranch("empty", path)
	if err != nil {
		t.Fatalf("ExportBranch() error: %v", err)
	}
	if export.EntryCount != 0 {
		t.Errorf("empty branch EntryCount = %d, want 0", export.EntryCount)
	}

	dst := cacheDB(t)
	imported, err := dst.ImportBranch(path)
	if err != nil {
		t.Fatalf("ImportBranch() error: %v", err)
	}
	if imported.TransactionsApplied != 0 || imported.KeysWritten != 0 {
		t.Errorf("empty import = %+v", imported)
	}
	if !dst.BranchExists("empty") {
		t.Error("empty branch not created on import")
	}
}

// TestBundleExportUnknownBranch tests NotFound on export
func TestBundleExportUnknownBranch(t *testing.T) {
	d := cacheDB(t)
	if _, err := d.ExportBranch("ghost", bundlePath(t)); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("ExportBranch(ghost) = %v, want ErrNotFound", err)
	}
}

// TestBundleImportSurvivesRecovery tests that imports are WAL-logged
func TestBundleImportSurvivesRecovery(t *testing.T) {
	src := cacheDB(t)
	src.CreateBranch("mig")
	src.NewSession().KvPut("mig", "k", types.NewString("v"))
	path := bundlePath(t)
	if _, err := src.ExportBranch("mig", path); err != nil {
		t.Fatalf("ExportBranch() error: %v", err)
	}

	dir := t.TempDir()
	dst := openWithDurability(t, dir, types.DurabilityAlways)
	if _, err := dst.ImportBranch(path); err != nil {
		t.Fatalf("ImportBranch() error: %v", err)
	}
	crashDB(dst)

	reopened := openWithDurability(t, dir, types.DurabilityAlways)
	defer reopened.Shutdown()
	v, _ := reopened.NewSession().KvGet("mig", "k")
	if v == nil || v.Str != "v" {
		t.Errorf("imported data lost in recovery: %v", v)
	}
}
