package database

import (
	"github.com/strata-systems/strata/pkg/types"
)

// CommandOp enumerates every command a Session accepts.
type CommandOp string

const (
	// Lifecycle
	OpTxnBegin    CommandOp = "txn_begin"
	OpTxnCommit   CommandOp = "txn_commit"
	OpTxnRollback CommandOp = "txn_rollback"
	OpTxnIsActive CommandOp = "txn_is_active"
	OpTxnInfo     CommandOp = "txn_info"

	// Database
	OpPing     CommandOp = "ping"
	OpInfo     CommandOp = "info"
	OpFlush    CommandOp = "flush"
	OpCompact  CommandOp = "compact"
	OpShutdown CommandOp = "shutdown"

	// Branch
	OpBranchCreate         CommandOp = "branch_create"
	OpBranchDelete         CommandOp = "branch_delete"
	OpBranchGet            CommandOp = "branch_get"
	OpBranchExists         CommandOp = "branch_exists"
	OpBranchList           CommandOp = "branch_list"
	OpBranchSet            CommandOp = "branch_set"
	OpBranchFork           CommandOp = "branch_fork"
	OpBranchDiff           CommandOp = "branch_diff"
	OpBranchExport         CommandOp = "branch_export"
	OpBranchImport         CommandOp = "branch_import"
	OpBranchValidateBundle CommandOp = "branch_validate_bundle"

	// KV
	OpKvPut    CommandOp = "kv_put"
	OpKvGet    CommandOp = "kv_get"
	OpKvGetv   CommandOp = "kv_getv"
	OpKvDelete CommandOp = "kv_delete"
	OpKvList   CommandOp = "kv_list"

	// State
	OpStateSet   CommandOp = "state_set"
	OpStateRead  CommandOp = "state_read"
	OpStateReadv CommandOp = "state_readv"
	OpStateInit  CommandOp = "state_init"
	OpStateCas   CommandOp = "state_cas"

	// Event
	OpEventAppend     CommandOp = "event_append"
	OpEventRead       CommandOp = "event_read"
	OpEventReadByType CommandOp = "event_read_by_type"
	OpEventLen        CommandOp = "event_len"

	// JSON
	OpJsonSet    CommandOp = "json_set"
	OpJsonGet    CommandOp = "json_get"
	OpJsonGetv   CommandOp = "json_getv"
	OpJsonDelete CommandOp = "json_delete"
	OpJsonList   CommandOp = "json_list"

	// Vector
	OpVectorCreateCollection CommandOp = "vector_create_collection"
	OpVectorUpsert           CommandOp = "vector_upsert"
	OpVectorGet              CommandOp = "vector_get"
	OpVectorSearch           CommandOp = "vector_search"
)

// Command is one typed operation against a Session. Branch, when set,
// overrides the session's current branch for this command only. Fields
// beyond Op are read per-operation; unused ones are ignored.
type Command struct {
	Op     CommandOp `yaml:"op" json:"op"`
	Branch string    `yaml:"branch,omitempty" json:"branch,omitempty"`

	Key   string       `yaml:"key,omitempty" json:"key,omitempty"`
	Value *types.Value `yaml:"-" json:"-"`
	Path  string       `yaml:"path,omitempty" json:"path,omitempty"`

	Expected *uint64 `yaml:"expected,omitempty" json:"expected,omitempty"`

	EventType string `yaml:"event_type,omitempty" json:"event_type,omitempty"`
	Sequence  uint64 `yaml:"sequence,omitempty" json:"sequence,omitempty"`

	Collection string                 `yaml:"collection,omitempty" json:"collection,omitempty"`
	Dimension  int                    `yaml:"dimension,omitempty" json:"dimension,omitempty"`
	Metric     types.DistanceMetric   `yaml:"metric,omitempty" json:"metric,omitempty"`
	Embedding  []float32              `yaml:"embedding,omitempty" json:"embedding,omitempty"`
	Metadata   map[string]types.Value `yaml:"-" json:"-"`
	K          int                    `yaml:"k,omitempty" json:"k,omitempty"`

	Prefix string `yaml:"prefix,omitempty" json:"prefix,omitempty"`
	Cursor string `yaml:"cursor,omitempty" json:"cursor,omitempty"`
	Limit  int    `yaml:"limit,omitempty" json:"limit,omitempty"`
	Offset int    `yaml:"offset,omitempty" json:"offset,omitempty"`

	FilePath string `yaml:"file_path,omitempty" json:"file_path,omitempty"`
}

// Output carries a command's result. Only the fields relevant to the
// executed Op are populated.
type Output struct {
	Version    uint64
	NewVersion *uint64 // CAS: nil means conflict, no write
	Value      *types.Value
	Bool       bool
	Keys       []string
	Cursor     string
	Chain      []types.VersionedValue
	Event      *types.EventRecord
	Events     []types.EventRecord
	Count      uint64
	Sequence   uint64
	Branch     *types.BranchInfo
	Branches   []types.BranchInfo
	Entry      *types.VectorEntry
	Results    []types.SearchResult
	Export     *types.ExportResult
	Validate   *types.ValidateResult
	Import     *types.ImportResult
	Txn        *types.TxnInfo
	Info       *types.DatabaseInfo
	Message    string
}

func valueOrNull(v *types.Value) types.Value {
	if v == nil {
		return types.NewNull()
	}
	return *v
}

// Execute dispatches one command. Non-lifecycle commands executed while
// Idle run in an implicit one-command transaction (auto-commit).
func (s *Session) Execute(cmd Command) (Output, error) {
	switch cmd.Op {
	// Lifecycle
	case OpTxnBegin:
		return Output{}, s.TxnBegin(cmd.Branch)
	case OpTxnCommit:
		v, err := s.TxnCommit()
		return Output{Version: v}, err
	case OpTxnRollback:
		return Output{}, s.TxnRollback()
	case OpTxnIsActive:
		return Output{Bool: s.TxnIsActive()}, nil
	case OpTxnInfo:
		return Output{Txn: s.TxnInfo()}, nil

	// Database
	case OpPing:
		return Output{Message: s.Ping()}, nil
	case OpInfo:
		info := s.db.Info()
		return Output{Info: &info}, nil
	case OpFlush:
		return Output{}, s.db.Flush()
	case OpCompact:
		return Output{}, s.db.Compact()
	case OpShutdown:
		return Output{}, s.db.Shutdown()

	// Branch
	case OpBranchCreate:
		info, err := s.BranchCreate(cmd.Key)
		if err != nil {
			return Output{}, err
		}
		return Output{Branch: &info}, nil
	case OpBranchDelete:
		return Output{}, s.BranchDelete(cmd.Key)
	case OpBranchGet:
		info, err := s.BranchGet(cmd.Key)
		if err != nil {
			return Output{}, err
		}
		return Output{Branch: &info}, nil
	case OpBranchExists:
		return Output{Bool: s.BranchExists(cmd.Key)}, nil
	case OpBranchList:
		return Output{Branches: s.BranchList(cmd.Limit, cmd.Offset)}, nil
	case OpBranchSet:
		return Output{}, s.SetBranch(cmd.Key)
	case OpBranchFork:
		return Output{}, s.db.ForkBranch(cmd.Key, cmd.Path)
	case OpBranchDiff:
		return Output{}, s.db.DiffBranch(cmd.Key, cmd.Path)
	case OpBranchExport:
		res, err := s.BranchExport(cmd.Branch, cmd.FilePath)
		if err != nil {
			return Output{}, err
		}
		return Output{Export: &res}, nil
	case OpBranchImport:
		res, err := s.BranchImport(cmd.FilePath)
		if err != nil {
			return Output{}, err
		}
		return Output{Import: &res}, nil
	case OpBranchValidateBundle:
		res, err := s.BranchValidateBundle(cmd.FilePath)
		if err != nil {
			return Output{Validate: &res}, err
		}
		return Output{Validate: &res}, nil

	// KV
	case OpKvPut:
		v, err := s.KvPut(cmd.Branch, cmd.Key, valueOrNull(cmd.Value))
		return Output{Version: v}, err
	case OpKvGet:
		v, err := s.KvGet(cmd.Branch, cmd.Key)
		return Output{Value: v}, err
	case OpKvGetv:
		chain, err := s.KvGetv(cmd.Branch, cmd.Key)
		return Output{Chain: chain}, err
	case OpKvDelete:
		deleted, err := s.KvDelete(cmd.Branch, cmd.Key)
		return Output{Bool: deleted}, err
	case OpKvList:
		keys, err := s.KvList(cmd.Branch, cmd.Prefix)
		return Output{Keys: keys}, err

	// State
	case OpStateSet:
		v, err := s.StateSet(cmd.Branch, cmd.Key, valueOrNull(cmd.Value))
		return Output{Version: v}, err
	case OpStateRead:
		v, err := s.StateRead(cmd.Branch, cmd.Key)
		return Output{Value: v}, err
	case OpStateReadv:
		chain, err := s.StateReadv(cmd.Branch, cmd.Key)
		return Output{Chain: chain}, err
	case OpStateInit:
		v, err := s.StateInit(cmd.Branch, cmd.Key, valueOrNull(cmd.Value))
		return Output{Version: v}, err
	case OpStateCas:
		nv, err := s.StateCas(cmd.Branch, cmd.Key, cmd.Expected, valueOrNull(cmd.Value))
		return Output{NewVersion: nv}, err

	// Event
	case OpEventAppend:
		seq, err := s.EventAppend(cmd.Branch, cmd.EventType, valueOrNull(cmd.Value))
		return Output{Sequence: seq}, err
	case OpEventRead:
		rec, err := s.EventRead(cmd.Branch, cmd.Sequence)
		return Output{Event: rec}, err
	case OpEventReadByType:
		recs, err := s.EventReadByType(cmd.Branch, cmd.EventType)
		return Output{Events: recs}, err
	case OpEventLen:
		n, err := s.EventLen(cmd.Branch)
		return Output{Count: n}, err

	// JSON
	case OpJsonSet:
		v, err := s.JsonSet(cmd.Branch, cmd.Key, cmd.Path, valueOrNull(cmd.Value))
		return Output{Version: v}, err
	case OpJsonGet:
		v, err := s.JsonGet(cmd.Branch, cmd.Key, cmd.Path)
		return Output{Value: v}, err
	case OpJsonGetv:
		chain, err := s.JsonGetv(cmd.Branch, cmd.Key)
		return Output{Chain: chain}, err
	case OpJsonDelete:
		deleted, err := s.JsonDelete(cmd.Branch, cmd.Key, cmd.Path)
		return Output{Bool: deleted}, err
	case OpJsonList:
		keys, cursor, err := s.JsonList(cmd.Branch, cmd.Prefix, cmd.Cursor, cmd.Limit)
		return Output{Keys: keys, Cursor: cursor}, err

	// Vector
	case OpVectorCreateCollection:
		v, err := s.VectorCreateCollection(cmd.Branch, cmd.Collection, cmd.Dimension, cmd.Metric)
		return Output{Version: v}, err
	case OpVectorUpsert:
		v, err := s.VectorUpsert(cmd.Branch, cmd.Collection, cmd.Key, cmd.Embedding, cmd.Metadata)
		return Output{Version: v}, err
	case OpVectorGet:
		entry, err := s.VectorGet(cmd.Branch, cmd.Collection, cmd.Key)
		return Output{Entry: entry}, err
	case OpVectorSearch:
		results, err := s.VectorSearch(cmd.Branch, cmd.Collection, cmd.Embedding, cmd.K)
		return Output{Results: results}, err

	default:
		return Output{}, types.InvalidArgumentf("unknown command %q", cmd.Op)
	}
}
