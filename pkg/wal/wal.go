package wal

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog"
	"github.com/strata-systems/strata/pkg/log"
	"github.com/strata-systems/strata/pkg/metrics"
	"github.com/strata-systems/strata/pkg/types"
)

// FileName is the write-ahead log file inside a database directory.
const FileName = "wal.log"

const (
	// DefaultSyncInterval bounds how stale a standard-mode commit can be.
	DefaultSyncInterval = 100 * time.Millisecond
	// DefaultSyncBatch forces a sync once this many appends are buffered.
	DefaultSyncBatch = 1000
)

// Record is one committed transaction as it appears on disk.
type Record struct {
	CommitVersion uint64
	Timestamp     int64
	BranchID      string
	Payload       []byte
}

// Options tunes the durability controller.
type Options struct {
	SyncInterval time.Duration
	SyncBatch    int
}

func (o Options) withDefaults() Options {
	if o.SyncInterval <= 0 {
		o.SyncInterval = DefaultSyncInterval
	}
	if o.SyncBatch <= 0 {
		o.SyncBatch = DefaultSyncBatch
	}
	return o
}

// Writer is the durability controller: it owns the WAL file and applies
// the configured fsync policy. In cache mode every method is a no-op.
//
// Concurrent commits are funneled through the store's commit token, so
// Append is never called concurrently; the internal mutex only guards
// against the background sync loop.
type Writer struct {
	mode types.DurabilityMode
	opts Options
	lg   zerolog.Logger

	mu          sync.Mutex
	f           *os.File
	pendingSync int
	syncErr     error // latched async sync failure, returned by the next Append

	walAppends   uint64
	syncCalls    uint64
	bytesWritten uint64
	syncNanos    uint64

	stopCh chan struct{}
	doneCh chan struct{}
}

// OpenWriter opens (creating if needed) the WAL inside dir, truncates any
// torn tail past validSize, and starts the group-sync loop for standard
// mode. For cache mode it touches nothing on disk.
func OpenWriter(dir string, mode types.DurabilityMode, validSize int64, opts Options) (*Writer, error) {
	w := &Writer{
		mode: mode,
		opts: opts.withDefaults(),
		lg:   log.WithComponent("wal"),
	}
	if mode == types.DurabilityCache {
		return w, nil
	}

	path := filepath.Join(dir, FileName)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, types.Durabilityf("open wal: %v", err)
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, types.Durabilityf("stat wal: %v", err)
	}
	if validSize >= 0 && st.Size() > validSize {
		w.lg.Warn().
			Int64("file_size", st.Size()).
			Int64("valid_size", validSize).
			Msg("truncating torn WAL tail")
		if err := f.Truncate(validSize); err != nil {
			f.Close()
			return nil, types.Durabilityf("truncate wal tail: %v", err)
		}
	}
	if _, err := f.Seek(0, 2); err != nil {
		f.Close()
		return nil, types.Durabilityf("seek wal: %v", err)
	}
	w.f = f

	if mode == types.DurabilityStandard {
		w.stopCh = make(chan struct{})
		w.doneCh = make(chan struct{})
		go w.syncLoop()
	}
	return w, nil
}

// Append encodes and writes one record, then applies the fsync policy:
// inline fsync for always, buffered for standard, nothing for cache.
func (w *Writer) Append(rec Record) error {
	if w.mode == types.DurabilityCache {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.syncErr != nil {
		err := w.syncErr
		w.syncErr = nil
		return types.Durabilityf("deferred sync failed: %v", err)
	}

	frame := encodeFrame(rec)
	if _, err := w.f.Write(frame); err != nil {
		return types.Durabilityf("wal append: %v", err)
	}
	w.walAppends++
	w.bytesWritten += uint64(len(frame))
	metrics.WALAppendsTotal.Inc()
	metrics.WALBytesWrittenTotal.Add(float64(len(frame)))

	switch w.mode {
	case types.DurabilityAlways:
		if err := w.syncLocked(); err != nil {
			return types.Durabilityf("wal sync: %v", err)
		}
	case types.DurabilityStandard:
		w.pendingSync++
		if w.pendingSync >= w.opts.SyncBatch {
			if err := w.syncLocked(); err != nil {
				return types.Durabilityf("wal sync: %v", err)
			}
		}
	}
	return nil
}

// Flush forces a sync of everything appended so far. No-op in cache mode.
func (w *Writer) Flush() error {
	if w.mode == types.DurabilityCache {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.syncErr != nil {
		err := w.syncErr
		w.syncErr = nil
		return types.Durabilityf("deferred sync failed: %v", err)
	}
	if err := w.syncLocked(); err != nil {
		return types.Durabilityf("wal sync: %v", err)
	}
	return nil
}

// Reset truncates the WAL to empty. Called after a checkpoint has made the
// logged prefix redundant.
func (w *Writer) Reset() error {
	if w.mode == types.DurabilityCache {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.f.Truncate(0); err != nil {
		return types.Durabilityf("truncate wal: %v", err)
	}
	if _, err := w.f.Seek(0, 0); err != nil {
		return types.Durabilityf("seek wal: %v", err)
	}
	w.pendingSync = 0
	return w.syncLocked()
}

// Counters returns a snapshot of the controller's activity.
func (w *Writer) Counters() types.DurabilityCounters {
	w.mu.Lock()
	defer w.mu.Unlock()
	return types.DurabilityCounters{
		WalAppends:   w.walAppends,
		SyncCalls:    w.syncCalls,
		BytesWritten: w.bytesWritten,
		SyncNanos:    w.syncNanos,
	}
}

// Close flushes outstanding writes, stops the sync loop, and closes the file.
func (w *Writer) Close() error {
	if w.mode == types.DurabilityCache {
		return nil
	}
	if w.stopCh != nil {
		close(w.stopCh)
		<-w.doneCh
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	syncErr := w.syncLocked()
	closeErr := w.f.Close()
	if syncErr != nil {
		return types.Durabilityf("final sync: %v", syncErr)
	}
	if closeErr != nil {
		return types.Durabilityf("close wal: %v", closeErr)
	}
	return nil
}

// Abort closes the WAL file without a final sync, abandoning whatever
// the OS has not flushed. Crash simulations use it; recovery treats any
// unsynced tail like a crash loss.
func (w *Writer) Abort() {
	if w.mode == types.DurabilityCache {
		return
	}
	if w.stopCh != nil {
		close(w.stopCh)
		<-w.doneCh
		w.stopCh = nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.f.Close()
}

// syncLocked fsyncs under w.mu and updates counters.
func (w *Writer) syncLocked() error {
	start := time.Now()
	err := w.f.Sync()
	elapsed := time.Since(start)
	w.syncCalls++
	w.syncNanos += uint64(elapsed.Nanoseconds())
	w.pendingSync = 0
	metrics.WALSyncCallsTotal.Inc()
	metrics.WALSyncSeconds.Observe(elapsed.Seconds())
	return err
}

// syncLoop is the standard-mode group-sync goroutine. A failed background
// sync is latched and surfaced on the next commit.
func (w *Writer) syncLoop() {
	defer close(w.doneCh)
	ticker := time.NewTicker(w.opts.SyncInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			w.mu.Lock()
			if w.pendingSync > 0 {
				if err := w.syncLocked(); err != nil {
					w.lg.Error().Err(err).Msg("background sync failed")
					w.syncErr = err
				}
			}
			w.mu.Unlock()
		case <-w.stopCh:
			return
		}
	}
}

// Frame layout:
//
//	length   u32  (bytes after this field)
//	checksum u64  (xxhash64 over everything after this field)
//	version  u64
//	ts       i64
//	blen     u16
//	branch   blen bytes
//	payload  remainder
const frameHeaderSize = 4 + 8

func encodeFrame(rec Record) []byte {
	body := make([]byte, 0, 8+8+2+len(rec.BranchID)+len(rec.Payload))
	body = binary.LittleEndian.AppendUint64(body, rec.CommitVersion)
	body = binary.LittleEndian.AppendUint64(body, uint64(rec.Timestamp))
	body = binary.LittleEndian.AppendUint16(body, uint16(len(rec.BranchID)))
	body = append(body, rec.BranchID...)
	body = append(body, rec.Payload...)

	frame := make([]byte, 0, frameHeaderSize+len(body))
	frame = binary.LittleEndian.AppendUint32(frame, uint32(8+len(body)))
	frame = binary.LittleEndian.AppendUint64(frame, xxhash.Sum64(body))
	return append(frame, body...)
}

func decodeFrame(body []byte) (Record, error) {
	if len(body) < 8+8+2 {
		return Record{}, types.Corruptionf("wal record body too short: %d bytes", len(body))
	}
	rec := Record{
		CommitVersion: binary.LittleEndian.Uint64(body[0:8]),
		Timestamp:     int64(binary.LittleEndian.Uint64(body[8:16])),
	}
	blen := int(binary.LittleEndian.Uint16(body[16:18]))
	rest := body[18:]
	if len(rest) < blen {
		return Record{}, types.Corruptionf("wal record branch id truncated")
	}
	rec.BranchID = string(rest[:blen])
	rec.Payload = append([]byte(nil), rest[blen:]...)
	return rec, nil
}
