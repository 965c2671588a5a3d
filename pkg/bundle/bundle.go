package bundle

import (
	"archive/tar"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/cespare/xxhash/v2"
	"github.com/klauspost/compress/zstd"
	"github.com/strata-systems/strata/pkg/codec"
	"github.com/strata-systems/strata/pkg/log"
	"github.com/strata-systems/strata/pkg/types"
)

// Extension is the conventional bundle file suffix.
const Extension = ".runbundle.tar.zst"

// FormatVersion of the archive layout.
const FormatVersion = 1

const manifestName = "manifest.json"

// Manifest is the archive's top-level descriptor.
type Manifest struct {
	FormatVersion int              `json:"format_version"`
	BranchInfo    types.BranchInfo `json:"branch_info"`
	EntryCount    int              `json:"entry_count"`
	Checksum      string           `json:"checksum"`
}

// Entry is one versioned record of the exported branch. Event records
// carry their chain key (the zero-padded sequence) like everything else;
// the importer reconstructs sequences from it.
type Entry struct {
	Primitive types.Primitive
	Key       string
	Version   uint64
	Timestamp int64
	Tombstone bool
	Value     types.Value
}

func encodeEntry(e Entry) []byte {
	return codec.Encode(types.NewObject(map[string]types.Value{
		"prim": types.NewString(string(e.Primitive)),
		"key":  types.NewString(e.Key),
		"v":    types.NewInt(int64(e.Version)),
		"ts":   types.NewInt(e.Timestamp),
		"tomb": types.NewBool(e.Tombstone),
		"val":  e.Value,
	}))
}

func decodeEntry(raw []byte) (Entry, error) {
	v, err := codec.Decode(raw)
	if err != nil {
		return Entry{}, err
	}
	if v.Kind != types.KindObject {
		return Entry{}, types.Corruptionf("bundle entry is %s, want object", v.Kind)
	}
	return Entry{
		Primitive: types.Primitive(v.Object["prim"].Str),
		Key:       v.Object["key"].Str,
		Version:   uint64(v.Object["v"].Int),
		Timestamp: v.Object["ts"].Int,
		Tombstone: v.Object["tomb"].Bool,
		Value:     v.Object["val"],
	}, nil
}

// digestChecksum folds the per-entry digests into the manifest checksum.
func digestChecksum(digests []uint64) string {
	buf := make([]byte, 0, len(digests)*8)
	for _, d := range digests {
		buf = binary.LittleEndian.AppendUint64(buf, d)
	}
	return hex.EncodeToString(binary.BigEndian.AppendUint64(nil, xxhash.Sum64(buf)))
}

// Write produces a bundle at path: a zstd-compressed tar holding the
// manifest and one checksummed record per entry. Entries must be sorted
// by ascending version; Write preserves their order.
func Write(path string, info types.BranchInfo, entries []Entry) (types.ExportResult, error) {
	f, err := os.Create(path)
	if err != nil {
		return types.ExportResult{}, types.Durabilityf("create bundle: %v", err)
	}
	defer f.Close()

	zw, err := zstd.NewWriter(f)
	if err != nil {
		return types.ExportResult{}, types.Durabilityf("zstd writer: %v", err)
	}
	tw := tar.NewWriter(zw)

	encoded := make([][]byte, len(entries))
	digests := make([]uint64, len(entries))
	for i, e := range entries {
		encoded[i] = encodeEntry(e)
		digests[i] = xxhash.Sum64(encoded[i])
	}

	manifest := Manifest{
		FormatVersion: FormatVersion,
		BranchInfo:    info,
		EntryCount:    len(entries),
		Checksum:      digestChecksum(digests),
	}
	manifestRaw, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return types.ExportResult{}, types.Durabilityf("encode manifest: %v", err)
	}
	if err := writeTarFile(tw, manifestName, manifestRaw); err != nil {
		return types.ExportResult{}, err
	}
	for i, raw := range encoded {
		if err := writeTarFile(tw, fmt.Sprintf("records/%08d.bin", i), raw); err != nil {
			return types.ExportResult{}, err
		}
	}

	if err := tw.Close(); err != nil {
		return types.ExportResult{}, types.Durabilityf("close tar: %v", err)
	}
	if err := zw.Close(); err != nil {
		return types.ExportResult{}, types.Durabilityf("close zstd: %v", err)
	}
	if err := f.Sync(); err != nil {
		return types.ExportResult{}, types.Durabilityf("sync bundle: %v", err)
	}
	st, err := f.Stat()
	if err != nil {
		return types.ExportResult{}, types.Durabilityf("stat bundle: %v", err)
	}

	blog := log.WithComponent("bundle")
	blog.Info().
		Str("path", path).
		Str("branch", info.Name).
		Int("entries", len(entries)).
		Int64("bytes", st.Size()).
		Msg("bundle exported")
	return types.ExportResult{
		BranchID:   info.ID,
		EntryCount: len(entries),
		BundleSize: st.Size(),
	}, nil
}

func writeTarFile(tw *tar.Writer, name string, data []byte) error {
	hdr := &tar.Header{
		Name: name,
		Mode: 0o600,
		Size: int64(len(data)),
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return types.Durabilityf("tar header %s: %v", name, err)
	}
	if _, err := tw.Write(data); err != nil {
		return types.Durabilityf("tar write %s: %v", name, err)
	}
	return nil
}

// Read parses a bundle, verifying the manifest, every entry checksum,
// and the ascending version order.
func Read(path string) (Manifest, []Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return Manifest{}, nil, types.NotFoundf("bundle %q: %v", path, err)
	}
	defer f.Close()

	zr, err := zstd.NewReader(f)
	if err != nil {
		return Manifest{}, nil, types.Corruptionf("bundle %q is not zstd: %v", path, err)
	}
	defer zr.Close()
	tr := tar.NewReader(zr)

	var (
		manifest    Manifest
		hasManifest bool
		entries     []Entry
		digests     []uint64
	)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Manifest{}, nil, types.Corruptionf("bundle %q: bad tar: %v", path, err)
		}
		data, err := io.ReadAll(tr)
		if err != nil {
			return Manifest{}, nil, types.Corruptionf("bundle %q: read %s: %v", path, hdr.Name, err)
		}
		if hdr.Name == manifestName {
			if err := json.Unmarshal(data, &manifest); err != nil {
				return Manifest{}, nil, types.Corruptionf("bundle %q: bad manifest: %v", path, err)
			}
			hasManifest = true
			continue
		}
		entry, err := decodeEntry(data)
		if err != nil {
			return Manifest{}, nil, fmt.Errorf("bundle %q: entry %s: %w", path, hdr.Name, err)
		}
		entries = append(entries, entry)
		digests = append(digests, xxhash.Sum64(data))
	}

	if !hasManifest {
		return Manifest{}, nil, types.Corruptionf("bundle %q has no manifest", path)
	}
	if manifest.FormatVersion != FormatVersion {
		return Manifest{}, nil, types.Corruptionf("bundle %q has format version %d, want %d",
			path, manifest.FormatVersion, FormatVersion)
	}
	if manifest.EntryCount != len(entries) {
		return Manifest{}, nil, types.Corruptionf("bundle %q manifest says %d entries, found %d",
			path, manifest.EntryCount, len(entries))
	}
	if manifest.Checksum != digestChecksum(digests) {
		return Manifest{}, nil, types.Corruptionf("bundle %q checksum mismatch", path)
	}
	for i := 1; i < len(entries); i++ {
		if entries[i].Version < entries[i-1].Version {
			return Manifest{}, nil, types.Corruptionf("bundle %q entries out of version order at %d", path, i)
		}
	}
	return manifest, entries, nil
}

// Validate checks a bundle without materializing its contents for the
// caller.
func Validate(path string) (types.ValidateResult, error) {
	_, entries, err := Read(path)
	if err != nil {
		return types.ValidateResult{ChecksumsValid: false}, err
	}
	return types.ValidateResult{
		ChecksumsValid: true,
		EntryCount:     len(entries),
	}, nil
}
