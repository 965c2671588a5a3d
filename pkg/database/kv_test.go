package database

import (
	"errors"
	"sort"
	"testing"

	"github.com/strata-systems/strata/pkg/types"
)

// TestKvPutGetOverwrite tests the three-write scenario
func TestKvPutGetOverwrite(t *testing.T) {
	s := cacheDB(t).NewSession()
	for _, v := range []string{"a", "b", "c"} {
		if _, err := s.KvPut("", "k", types.NewString(v)); err != nil {
			t.Fatalf("KvPut(%q) error: %v", v, err)
		}
	}

	v, err := s.KvGet("", "k")
	if err != nil {
		t.Fatalf("KvGet() error: %v", err)
	}
	if v == nil || v.Str != "c" {
		t.Errorf("KvGet() = %v, want c", v)
	}

	chain, err := s.KvGetv("", "k")
	if err != nil {
		t.Fatalf("KvGetv() error: %v", err)
	}
	if len(chain) != 3 {
		t.Fatalf("chain length = %d, want 3", len(chain))
	}
	for i, want := range []string{"c", "b", "a"} {
		if chain[i].Value.Str != want {
			t.Errorf("chain[%d] = %q, want %q", i, chain[i].Value.Str, want)
		}
	}
	for i := 1; i < 3; i++ {
		if chain[i].Version >= chain[i-1].Version {
			t.Error("chain versions not strictly decreasing")
		}
	}
}

// TestKvEmptyKeyRejected tests the InvalidArgument boundary
func TestKvEmptyKeyRejected(t *testing.T) {
	s := cacheDB(t).NewSession()
	if _, err := s.KvPut("", "", types.NewInt(1)); !errors.Is(err, types.ErrInvalidArgument) {
		t.Errorf("KvPut empty key = %v, want ErrInvalidArgument", err)
	}
	if _, err := s.KvDelete("", ""); !errors.Is(err, types.ErrInvalidArgument) {
		t.Errorf("KvDelete empty key = %v, want ErrInvalidArgument", err)
	}
}

// TestKvDeleteSemantics tests delete returns and tombstone chains
func TestKvDeleteSemantics(t *testing.T) {
	s := cacheDB(t).NewSession()

	deleted, err := s.KvDelete("", "missing")
	if err != nil {
		t.Fatalf("KvDelete(missing) error: %v", err)
	}
	if deleted {
		t.Error("KvDelete(missing) = true, want false")
	}

	s.KvPut("", "k", types.NewString("v"))
	deleted, err = s.KvDelete("", "k")
	if err != nil || !deleted {
		t.Fatalf("KvDelete(k) = %v, %v; want true", deleted, err)
	}
	if v, _ := s.KvGet("", "k"); v != nil {
		t.Errorf("KvGet after delete = %v, want nil", v)
	}

	// delete then put: chain grows by exactly two (tombstone + record).
	if _, err := s.KvPut("", "k", types.NewString("again")); err != nil {
		t.Fatalf("KvPut() error: %v", err)
	}
	v, _ := s.KvGet("", "k")
	if v == nil || v.Str != "again" {
		t.Errorf("KvGet after re-put = %v, want again", v)
	}
	chain, _ := s.KvGetv("", "k")
	if len(chain) != 3 {
		t.Fatalf("chain length = %d, want 3 (put, tombstone, put)", len(chain))
	}
	if chain[1].Tombstone != true || chain[0].Tombstone || chain[2].Tombstone {
		t.Errorf("tombstone placement wrong: %+v", chain)
	}

	// Deleting twice in a row reports absent the second time.
	s.KvDelete("", "k")
	deleted, _ = s.KvDelete("", "k")
	if deleted {
		t.Error("second delete = true, want false")
	}
}

// TestKvGetvNeverExisted tests the nil chain contract
func TestKvGetvNeverExisted(t *testing.T) {
	s := cacheDB(t).NewSession()
	chain, err := s.KvGetv("", "never")
	if err != nil {
		t.Fatalf("KvGetv() error: %v", err)
	}
	if chain != nil {
		t.Errorf("KvGetv(never) = %v, want nil", chain)
	}
}

// TestKvListPrefix tests prefix filtering and tombstone exclusion
func TestKvListPrefix(t *testing.T) {
	s := cacheDB(t).NewSession()
	for _, k := range []string{"user:1", "user:2", "post:1"} {
		s.KvPut("", k, types.NewInt(1))
	}
	s.KvDelete("", "user:2")

	keys, err := s.KvList("", "user:")
	if err != nil {
		t.Fatalf("KvList() error: %v", err)
	}
	sort.Strings(keys)
	if len(keys) != 1 || keys[0] != "user:1" {
		t.Errorf("KvList(user:) = %v, want [user:1]", keys)
	}

	all, _ := s.KvList("", "")
	sort.Strings(all)
	if len(all) != 2 {
		t.Errorf("KvList() = %v, want 2 keys", all)
	}
}

// TestKvListMergesBuffer tests list overlay inside a transaction
func TestKvListMergesBuffer(t *testing.T) {
	d := cacheDB(t)
	s := d.NewSession()
	s.KvPut("", "committed", types.NewInt(1))
	s.KvPut("", "doomed", types.NewInt(2))

	s.TxnBegin("")
	s.KvPut("", "staged", types.NewInt(3))
	s.KvDelete("", "doomed")

	keys, err := s.KvList("", "")
	if err != nil {
		t.Fatalf("KvList() error: %v", err)
	}
	sort.Strings(keys)
	want := []string{"committed", "staged"}
	if len(keys) != 2 || keys[0] != want[0] || keys[1] != want[1] {
		t.Errorf("in-txn KvList = %v, want %v", keys, want)
	}

	// The other session still sees the pre-txn state.
	other, _ := d.NewSession().KvList("", "")
	sort.Strings(other)
	if len(other) != 2 || other[0] != "committed" || other[1] != "doomed" {
		t.Errorf("other session KvList = %v", other)
	}
}
