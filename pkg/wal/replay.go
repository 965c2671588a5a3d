package wal

import (
	"encoding/binary"
	"errors"
	"io"
	"os"
	"path/filepath"

	"github.com/cespare/xxhash/v2"
	"github.com/strata-systems/strata/pkg/log"
	"github.com/strata-systems/strata/pkg/types"
)

// Replay reads the WAL inside dir from the beginning and invokes fn for
// every record whose length and checksum verify. It stops at the first
// invalid or partial record (the crash tail) and returns the byte length
// of the valid prefix so the writer can truncate it away.
//
// A missing WAL file is not an error: Replay returns (0, nil).
// Errors returned by fn abort the replay; they indicate corrupt committed
// state and are fatal to open.
func Replay(dir string, fn func(Record) error) (int64, error) {
	path := filepath.Join(dir, FileName)
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, types.Durabilityf("open wal for replay: %v", err)
	}
	defer f.Close()

	lg := log.WithComponent("recovery")
	var (
		valid   int64
		records int
		header  [frameHeaderSize]byte
	)
	for {
		if _, err := io.ReadFull(f, header[:]); err != nil {
			if err != io.EOF && err != io.ErrUnexpectedEOF {
				return 0, types.Durabilityf("read wal: %v", err)
			}
			break // clean end or torn header
		}
		length := binary.LittleEndian.Uint32(header[0:4])
		checksum := binary.LittleEndian.Uint64(header[4:12])
		if length < 8 {
			lg.Warn().Int64("offset", valid).Msg("invalid record length, treating as crash tail")
			break
		}
		body := make([]byte, length-8)
		if _, err := io.ReadFull(f, body); err != nil {
			if err != io.EOF && err != io.ErrUnexpectedEOF {
				return 0, types.Durabilityf("read wal: %v", err)
			}
			lg.Warn().Int64("offset", valid).Msg("torn record at WAL tail")
			break
		}
		if xxhash.Sum64(body) != checksum {
			lg.Warn().Int64("offset", valid).Msg("checksum mismatch, treating as crash tail")
			break
		}
		rec, err := decodeFrame(body)
		if err != nil {
			lg.Warn().Int64("offset", valid).Err(err).Msg("undecodable record, treating as crash tail")
			break
		}
		if err := fn(rec); err != nil {
			return 0, err
		}
		valid += int64(frameHeaderSize) + int64(len(body))
		records++
	}
	if records > 0 {
		lg.Info().Int("records", records).Int64("bytes", valid).Msg("WAL replay complete")
	}
	return valid, nil
}
