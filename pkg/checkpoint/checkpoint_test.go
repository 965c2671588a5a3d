package checkpoint

import (
	"math"
	"testing"

	"github.com/strata-systems/strata/pkg/store"
	"github.com/strata-systems/strata/pkg/types"
)

func sampleDump() store.Dump {
	return store.Dump{
		Version: 42,
		Chains: map[store.Key][]types.VersionedValue{
			{Branch: "default", Primitive: types.PrimitiveKV, Key: "k"}: {
				{Version: 42, Timestamp: 2000, Value: types.NewString("new")},
				{Version: 7, Timestamp: 1000, Value: types.NewString("old")},
			},
			{Branch: "default", Primitive: types.PrimitiveState, Key: "cell"}: {
				{Version: 9, Timestamp: 1500, Value: types.NewFloat(math.NaN())},
			},
			{Branch: "feature", Primitive: types.PrimitiveKV, Key: "a\x00b"}: {
				{Version: 11, Timestamp: 1600, Tombstone: true},
			},
		},
		Events: map[string]store.EventDump{
			"default": {
				SeqVersions: []uint64{3, 8},
				ByType:      map[string][]uint64{"audit": {1, 2}},
			},
		},
	}
}

// TestSaveLoadRoundTrip tests the full checkpoint cycle
func TestSaveLoadRoundTrip(t *testing.T) {
	ckpt, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	defer ckpt.Close()

	branches := []types.BranchInfo{
		{ID: "b-0", Name: "default", CreatedAt: 100, UpdatedAt: 2000, Version: 42},
		{ID: "b-1", Name: "feature", CreatedAt: 500, UpdatedAt: 1600, Version: 11},
	}
	if err := ckpt.Save(branches, sampleDump()); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	gotBranches, dump, found, err := ckpt.Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if !found {
		t.Fatal("Load() found = false after Save")
	}
	if dump.Version != 42 {
		t.Errorf("watermark = %d, want 42", dump.Version)
	}
	if len(gotBranches) != 2 {
		t.Errorf("loaded %d branches, want 2", len(gotBranches))
	}

	chain := dump.Chains[store.Key{Branch: "default", Primitive: types.PrimitiveKV, Key: "k"}]
	if len(chain) != 2 || chain[0].Value.Str != "new" || chain[1].Value.Str != "old" {
		t.Errorf("kv chain = %+v", chain)
	}

	// NaN survives the value codec (it would not survive encoding/json).
	cell := dump.Chains[store.Key{Branch: "default", Primitive: types.PrimitiveState, Key: "cell"}]
	if len(cell) != 1 || !math.IsNaN(cell[0].Value.Float) {
		t.Errorf("state chain = %+v, want NaN value", cell)
	}

	// A key containing the separator byte round-trips.
	tomb := dump.Chains[store.Key{Branch: "feature", Primitive: types.PrimitiveKV, Key: "a\x00b"}]
	if len(tomb) != 1 || !tomb[0].Tombstone {
		t.Errorf("nul-key chain = %+v, want one tombstone", tomb)
	}

	ed := dump.Events["default"]
	if len(ed.SeqVersions) != 2 || len(ed.ByType["audit"]) != 2 {
		t.Errorf("event dump = %+v", ed)
	}
}

// TestLoadEmpty tests a checkpoint that was never saved
func TestLoadEmpty(t *testing.T) {
	ckpt, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	defer ckpt.Close()

	_, _, found, err := ckpt.Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if found {
		t.Error("Load() found = true on a fresh checkpoint")
	}
}

// TestSaveReplacesPrevious tests that Save overwrites, not merges
func TestSaveReplacesPrevious(t *testing.T) {
	dir := t.TempDir()
	ckpt, err := Open(dir)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	if err := ckpt.Save(nil, sampleDump()); err != nil {
		t.Fatalf("first Save() error: %v", err)
	}

	smaller := store.Dump{
		Version: 50,
		Chains: map[store.Key][]types.VersionedValue{
			{Branch: "default", Primitive: types.PrimitiveKV, Key: "only"}: {
				{Version: 50, Timestamp: 3000, Value: types.NewInt(1)},
			},
		},
		Events: map[string]store.EventDump{},
	}
	if err := ckpt.Save(nil, smaller); err != nil {
		t.Fatalf("second Save() error: %v", err)
	}
	ckpt.Close()

	// Reopen from disk to prove persistence.
	reopened, err := Open(dir)
	if err != nil {
		t.Fatalf("reopen error: %v", err)
	}
	defer reopened.Close()
	_, dump, found, err := reopened.Load()
	if err != nil || !found {
		t.Fatalf("Load() after reopen = %v, found=%v", err, found)
	}
	if dump.Version != 50 || len(dump.Chains) != 1 {
		t.Errorf("second checkpoint not authoritative: version=%d chains=%d", dump.Version, len(dump.Chains))
	}
}
