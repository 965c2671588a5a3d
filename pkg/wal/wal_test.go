package wal

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/strata-systems/strata/pkg/types"
)

func appendRecords(t *testing.T, w *Writer, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		err := w.Append(Record{
			CommitVersion: uint64(i + 1),
			Timestamp:     time.Now().UnixMilli(),
			BranchID:      "default",
			Payload:       []byte("payload"),
		})
		if err != nil {
			t.Fatalf("Append(%d) error: %v", i, err)
		}
	}
}

func replayAll(t *testing.T, dir string) ([]Record, int64) {
	t.Helper()
	var recs []Record
	valid, err := Replay(dir, func(r Record) error {
		recs = append(recs, r)
		return nil
	})
	if err != nil {
		t.Fatalf("Replay() error: %v", err)
	}
	return recs, valid
}

// TestAppendReplayRoundTrip tests that appended records replay intact
func TestAppendReplayRoundTrip(t *testing.T) {
	dir := t.TempDir()
	w, err := OpenWriter(dir, types.DurabilityAlways, 0, Options{})
	if err != nil {
		t.Fatalf("OpenWriter() error: %v", err)
	}
	appendRecords(t, w, 3)
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	recs, _ := replayAll(t, dir)
	if len(recs) != 3 {
		t.Fatalf("replayed %d records, want 3", len(recs))
	}
	for i, r := range recs {
		if r.CommitVersion != uint64(i+1) {
			t.Errorf("record %d has version %d, want %d", i, r.CommitVersion, i+1)
		}
		if r.BranchID != "default" || string(r.Payload) != "payload" {
			t.Errorf("record %d content mismatch: %+v", i, r)
		}
	}
}

// TestReplayMissingFile tests that a fresh directory replays nothing
func TestReplayMissingFile(t *testing.T) {
	recs, valid := replayAll(t, t.TempDir())
	if len(recs) != 0 || valid != 0 {
		t.Errorf("Replay on empty dir = %d records, %d bytes; want 0, 0", len(recs), valid)
	}
}

// TestReplayStopsAtTornTail tests crash-tail detection
func TestReplayStopsAtTornTail(t *testing.T) {
	dir := t.TempDir()
	w, err := OpenWriter(dir, types.DurabilityAlways, 0, Options{})
	if err != nil {
		t.Fatalf("OpenWriter() error: %v", err)
	}
	appendRecords(t, w, 2)
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	path := filepath.Join(dir, FileName)
	st, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat() error: %v", err)
	}

	// Truncate mid-record to simulate a torn write.
	if err := os.Truncate(path, st.Size()-3); err != nil {
		t.Fatalf("Truncate() error: %v", err)
	}
	recs, valid := replayAll(t, dir)
	if len(recs) != 1 {
		t.Fatalf("replayed %d records after torn tail, want 1", len(recs))
	}

	// Reopening with the valid size truncates the tail away; appending
	// then yields a clean two-record log.
	w2, err := OpenWriter(dir, types.DurabilityAlways, valid, Options{})
	if err != nil {
		t.Fatalf("reopen error: %v", err)
	}
	if err := w2.Append(Record{CommitVersion: 9, BranchID: "default", Payload: []byte("x")}); err != nil {
		t.Fatalf("Append() after truncation error: %v", err)
	}
	if err := w2.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	recs, _ = replayAll(t, dir)
	if len(recs) != 2 || recs[1].CommitVersion != 9 {
		t.Errorf("after truncate+append replay = %+v, want versions [1 9]", recs)
	}
}

// TestReplayStopsAtCorruptRecord tests checksum-based tail detection
func TestReplayStopsAtCorruptRecord(t *testing.T) {
	dir := t.TempDir()
	w, err := OpenWriter(dir, types.DurabilityAlways, 0, Options{})
	if err != nil {
		t.Fatalf("OpenWriter() error: %v", err)
	}
	appendRecords(t, w, 3)
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	// Flip one byte inside the last record's payload.
	path := filepath.Join(dir, FileName)
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error: %v", err)
	}
	raw[len(raw)-1] ^= 0xFF
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}

	recs, _ := replayAll(t, dir)
	if len(recs) != 2 {
		t.Errorf("replayed %d records past corruption, want 2", len(recs))
	}
}

// TestCountersAlwaysMode tests that always mode syncs every append
func TestCountersAlwaysMode(t *testing.T) {
	w, err := OpenWriter(t.TempDir(), types.DurabilityAlways, 0, Options{})
	if err != nil {
		t.Fatalf("OpenWriter() error: %v", err)
	}
	defer w.Close()
	appendRecords(t, w, 5)

	c := w.Counters()
	if c.WalAppends != 5 {
		t.Errorf("WalAppends = %d, want 5", c.WalAppends)
	}
	if c.SyncCalls != 5 {
		t.Errorf("SyncCalls = %d, want 5 (one per append in always mode)", c.SyncCalls)
	}
	if c.BytesWritten == 0 {
		t.Error("BytesWritten should be non-zero")
	}
	if c.SyncNanos == 0 {
		t.Error("SyncNanos should be non-zero")
	}
}

// TestCountersCacheMode tests that cache mode never touches disk
func TestCountersCacheMode(t *testing.T) {
	w, err := OpenWriter("", types.DurabilityCache, 0, Options{})
	if err != nil {
		t.Fatalf("OpenWriter() error: %v", err)
	}
	appendRecords(t, w, 10)
	if err := w.Flush(); err != nil {
		t.Fatalf("Flush() error: %v", err)
	}
	if c := w.Counters(); c != (types.DurabilityCounters{}) {
		t.Errorf("cache mode counters = %+v, want all zero", c)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
}

// TestStandardModeBatchSync tests the batch threshold path
func TestStandardModeBatchSync(t *testing.T) {
	w, err := OpenWriter(t.TempDir(), types.DurabilityStandard, 0, Options{
		SyncInterval: time.Hour, // keep the ticker out of the way
		SyncBatch:    4,
	})
	if err != nil {
		t.Fatalf("OpenWriter() error: %v", err)
	}
	defer w.Close()

	appendRecords(t, w, 3)
	if c := w.Counters(); c.SyncCalls != 0 {
		t.Errorf("SyncCalls = %d before batch threshold, want 0", c.SyncCalls)
	}
	appendRecords(t, w, 1)
	if c := w.Counters(); c.SyncCalls != 1 {
		t.Errorf("SyncCalls = %d after batch threshold, want 1", c.SyncCalls)
	}
}

// TestStandardModeIntervalSync tests the group-sync ticker
func TestStandardModeIntervalSync(t *testing.T) {
	w, err := OpenWriter(t.TempDir(), types.DurabilityStandard, 0, Options{
		SyncInterval: 10 * time.Millisecond,
		SyncBatch:    1000,
	})
	if err != nil {
		t.Fatalf("OpenWriter() error: %v", err)
	}
	defer w.Close()

	appendRecords(t, w, 2)
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if w.Counters().SyncCalls > 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Error("background sync never ran")
}

// TestFlushForcesSync tests the explicit flush path
func TestFlushForcesSync(t *testing.T) {
	w, err := OpenWriter(t.TempDir(), types.DurabilityStandard, 0, Options{
		SyncInterval: time.Hour,
		SyncBatch:    1000,
	})
	if err != nil {
		t.Fatalf("OpenWriter() error: %v", err)
	}
	defer w.Close()
	appendRecords(t, w, 1)
	if err := w.Flush(); err != nil {
		t.Fatalf("Flush() error: %v", err)
	}
	if c := w.Counters(); c.SyncCalls != 1 {
		t.Errorf("SyncCalls = %d after Flush, want 1", c.SyncCalls)
	}
}

// TestReset tests WAL truncation after a checkpoint
func TestReset(t *testing.T) {
	dir := t.TempDir()
	w, err := OpenWriter(dir, types.DurabilityAlways, 0, Options{})
	if err != nil {
		t.Fatalf("OpenWriter() error: %v", err)
	}
	appendRecords(t, w, 4)
	if err := w.Reset(); err != nil {
		t.Fatalf("Reset() error: %v", err)
	}
	if err := w.Append(Record{CommitVersion: 5, BranchID: "default", Payload: []byte("x")}); err != nil {
		t.Fatalf("Append() after reset error: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	recs, _ := replayAll(t, dir)
	if len(recs) != 1 || recs[0].CommitVersion != 5 {
		t.Errorf("after Reset replay = %+v, want just version 5", recs)
	}
}
