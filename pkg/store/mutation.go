package store

import (
	"fmt"

	"github.com/strata-systems/strata/pkg/codec"
	"github.com/strata-systems/strata/pkg/types"
)

// Op is one kind of staged mutation.
type Op string

const (
	// OpPut appends a new value record to a chain.
	OpPut Op = "put"
	// OpDelete appends a tombstone record to a chain.
	OpDelete Op = "delete"
	// OpEventAppend appends one event-log record.
	OpEventAppend Op = "event_append"
	// OpBranchCreate and OpBranchDelete carry branch lifecycle through the
	// WAL; the store ignores them, the database routes them to the registry.
	OpBranchCreate Op = "branch_create"
	OpBranchDelete Op = "branch_delete"
)

// Mutation is one staged write of a transaction: the unit buffered by
// sessions, encoded into WAL payloads, and applied to chains at commit.
type Mutation struct {
	Op        Op
	Primitive types.Primitive
	Key       string
	Value     types.Value

	// Event fields, set only for OpEventAppend. Sequence is zero while
	// buffered and assigned under the commit token.
	EventType string
	Sequence  uint64

	// CAS fields, set only for conditional state writes. Conditional
	// mutations are re-validated under the commit token and dropped when
	// stale.
	Conditional     bool
	ExpectedVersion uint64 // 0 means "cell must not exist"
}

// EventKey is the chain key of an event record. Zero-padded so
// lexicographic order equals numeric order.
func EventKey(seq uint64) string {
	return fmt.Sprintf("%020d", seq)
}

// EncodeMutations serializes a transaction's mutations into a WAL payload
// using the value codec, so the payload inherits its checksum and
// corruption detection.
func EncodeMutations(muts []Mutation) []byte {
	items := make([]types.Value, 0, len(muts))
	for _, m := range muts {
		fields := map[string]types.Value{
			"op":   types.NewString(string(m.Op)),
			"prim": types.NewString(string(m.Primitive)),
			"key":  types.NewString(m.Key),
		}
		if m.Op != OpDelete {
			fields["value"] = m.Value
		}
		if m.Op == OpEventAppend {
			fields["etype"] = types.NewString(m.EventType)
			fields["seq"] = types.NewInt(int64(m.Sequence))
		}
		items = append(items, types.NewObject(fields))
	}
	return codec.Encode(types.NewArray(items...))
}

// DecodeMutations parses a WAL payload back into mutations.
func DecodeMutations(payload []byte) ([]Mutation, error) {
	v, err := codec.Decode(payload)
	if err != nil {
		return nil, err
	}
	if v.Kind != types.KindArray {
		return nil, types.Corruptionf("wal payload is %s, want array", v.Kind)
	}
	muts := make([]Mutation, 0, len(v.Array))
	for _, item := range v.Array {
		if item.Kind != types.KindObject {
			return nil, types.Corruptionf("wal mutation is %s, want object", item.Kind)
		}
		m := Mutation{
			Op:        Op(item.Object["op"].Str),
			Primitive: types.Primitive(item.Object["prim"].Str),
			Key:       item.Object["key"].Str,
		}
		if val, ok := item.Object["value"]; ok {
			m.Value = val
		}
		switch m.Op {
		case OpPut, OpDelete, OpBranchCreate, OpBranchDelete:
		case OpEventAppend:
			m.EventType = item.Object["etype"].Str
			seq := item.Object["seq"].Int
			if seq < 1 {
				return nil, types.Corruptionf("event sequence %d out of range", seq)
			}
			m.Sequence = uint64(seq)
		default:
			return nil, types.Corruptionf("unknown mutation op %q", m.Op)
		}
		muts = append(muts, m)
	}
	return muts, nil
}
