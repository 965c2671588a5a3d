package strata

import (
	"github.com/strata-systems/strata/pkg/database"
	"github.com/strata-systems/strata/pkg/types"
)

// Strata is the convenience facade: one database plus one session,
// exposing every primitive as a flat method set. Handles are cheap;
// create one per goroutine with NewHandle.
type Strata struct {
	db      *database.Database
	session *database.Session
}

// Open opens (or creates) the database at dir.
func Open(dir string) (*Strata, error) {
	db, err := database.Open(dir)
	if err != nil {
		return nil, err
	}
	return &Strata{db: db, session: db.NewSession()}, nil
}

// OpenTemp opens a standard-durability database in a fresh temporary
// directory.
func OpenTemp() (*Strata, error) {
	db, err := database.OpenTemp()
	if err != nil {
		return nil, err
	}
	return &Strata{db: db, session: db.NewSession()}, nil
}

// Cache constructs a pure in-memory database.
func Cache() (*Strata, error) {
	db, err := database.Cache()
	if err != nil {
		return nil, err
	}
	return &Strata{db: db, session: db.NewSession()}, nil
}

// NewHandle returns an independent session over the same database, for
// use from another goroutine.
func (s *Strata) NewHandle() *Strata {
	return &Strata{db: s.db, session: s.db.NewSession()}
}

// DB exposes the underlying database.
func (s *Strata) DB() *database.Database {
	return s.db
}

// Session exposes the facade's session for transactional use.
func (s *Strata) Session() *database.Session {
	return s.session
}

// Execute runs one typed command.
func (s *Strata) Execute(cmd database.Command) (database.Output, error) {
	return s.session.Execute(cmd)
}

// Close shuts the database down.
func (s *Strata) Close() error {
	s.session.Close()
	return s.db.Shutdown()
}

// DurabilityCounters snapshots the durability controller's activity.
func (s *Strata) DurabilityCounters() types.DurabilityCounters {
	return s.db.DurabilityCounters()
}

// Flush forces the WAL to disk.
func (s *Strata) Flush() error {
	return s.db.Flush()
}

// Compact checkpoints committed state and truncates the WAL.
func (s *Strata) Compact() error {
	return s.db.Compact()
}

// Branches

func (s *Strata) CreateBranch(name string) (types.BranchInfo, error) {
	return s.db.CreateBranch(name)
}

func (s *Strata) DeleteBranch(name string) error {
	return s.session.BranchDelete(name)
}

func (s *Strata) SetBranch(name string) error {
	return s.session.SetBranch(name)
}

func (s *Strata) Branch() string {
	return s.session.Branch()
}

func (s *Strata) BranchGet(name string) (types.BranchInfo, error) {
	return s.db.GetBranch(name)
}

func (s *Strata) BranchExists(name string) bool {
	return s.db.BranchExists(name)
}

func (s *Strata) BranchList(limit, offset int) []types.BranchInfo {
	return s.db.ListBranches(limit, offset)
}

// KV

func (s *Strata) KvPut(key string, value types.Value) (uint64, error) {
	return s.session.KvPut("", key, value)
}

func (s *Strata) KvGet(key string) (*types.Value, error) {
	return s.session.KvGet("", key)
}

func (s *Strata) KvGetv(key string) ([]types.VersionedValue, error) {
	return s.session.KvGetv("", key)
}

func (s *Strata) KvDelete(key string) (bool, error) {
	return s.session.KvDelete("", key)
}

func (s *Strata) KvList(prefix string) ([]string, error) {
	return s.session.KvList("", prefix)
}

// State

func (s *Strata) StateSet(cell string, value types.Value) (uint64, error) {
	return s.session.StateSet("", cell, value)
}

func (s *Strata) StateRead(cell string) (*types.Value, error) {
	return s.session.StateRead("", cell)
}

func (s *Strata) StateReadv(cell string) ([]types.VersionedValue, error) {
	return s.session.StateReadv("", cell)
}

func (s *Strata) StateInit(cell string, value types.Value) (uint64, error) {
	return s.session.StateInit("", cell, value)
}

func (s *Strata) StateCas(cell string, expected *uint64, value types.Value) (*uint64, error) {
	return s.session.StateCas("", cell, expected, value)
}

// Event

func (s *Strata) EventAppend(eventType string, payload types.Value) (uint64, error) {
	return s.session.EventAppend("", eventType, payload)
}

func (s *Strata) EventRead(seq uint64) (*types.EventRecord, error) {
	return s.session.EventRead("", seq)
}

func (s *Strata) EventReadByType(eventType string) ([]types.EventRecord, error) {
	return s.session.EventReadByType("", eventType)
}

func (s *Strata) EventLen() (uint64, error) {
	return s.session.EventLen("")
}

// JSON

func (s *Strata) JsonSet(key, path string, value types.Value) (uint64, error) {
	return s.session.JsonSet("", key, path, value)
}

func (s *Strata) JsonGet(key, path string) (*types.Value, error) {
	return s.session.JsonGet("", key, path)
}

func (s *Strata) JsonGetv(key string) ([]types.VersionedValue, error) {
	return s.session.JsonGetv("", key)
}

func (s *Strata) JsonDelete(key, path string) (bool, error) {
	return s.session.JsonDelete("", key, path)
}

func (s *Strata) JsonList(prefix, cursor string, limit int) ([]string, string, error) {
	return s.session.JsonList("", prefix, cursor, limit)
}

// Vector

func (s *Strata) VectorCreateCollection(name string, dim int, metric types.DistanceMetric) (uint64, error) {
	return s.session.VectorCreateCollection("", name, dim, metric)
}

func (s *Strata) VectorUpsert(collection, key string, embedding []float32, metadata map[string]types.Value) (uint64, error) {
	return s.session.VectorUpsert("", collection, key, embedding, metadata)
}

func (s *Strata) VectorGet(collection, key string) (*types.VectorEntry, error) {
	return s.session.VectorGet("", collection, key)
}

func (s *Strata) VectorSearch(collection string, query []float32, k int) ([]types.SearchResult, error) {
	return s.session.VectorSearch("", collection, query, k)
}

// Bundles

func (s *Strata) BranchExport(branchName, path string) (types.ExportResult, error) {
	return s.db.ExportBranch(branchName, path)
}

func (s *Strata) BranchImport(path string) (types.ImportResult, error) {
	return s.db.ImportBranch(path)
}

func (s *Strata) BranchValidateBundle(path string) (types.ValidateResult, error) {
	return s.db.ValidateBundle(path)
}
