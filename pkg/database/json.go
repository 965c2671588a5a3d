package database

import (
	"sort"
	"strings"

	"github.com/strata-systems/strata/pkg/store"
	"github.com/strata-systems/strata/pkg/types"
)

// RootPath addresses the whole document.
const RootPath = "$"

// parsePath splits a dot path into segments. "$" yields nil segments;
// empty segments are rejected. Array indexing is not supported.
func parsePath(path string) ([]string, error) {
	if path == RootPath {
		return nil, nil
	}
	if path == "" {
		return nil, types.InvalidArgumentf("json path must not be empty")
	}
	segments := strings.Split(path, ".")
	for _, seg := range segments {
		if seg == "" {
			return nil, types.InvalidArgumentf("json path %q has an empty segment", path)
		}
	}
	return segments, nil
}

// JsonSet writes the document (path "$") or a nested field. Missing
// intermediate keys are created as objects; addressing through an
// existing non-object fails with NotFound. Every set appends a new
// full-document version.
func (s *Session) JsonSet(branchOverride, key, path string, value types.Value) (uint64, error) {
	if key == "" {
		return 0, types.InvalidArgumentf("json document key must not be empty")
	}
	segments, err := parsePath(path)
	if err != nil {
		return 0, err
	}
	b := s.resolveBranch(branchOverride)
	if !s.db.branches.Exists(b) {
		return 0, types.NotFoundf("branch %q", b)
	}

	var doc types.Value
	if segments == nil {
		if value.Kind != types.KindObject {
			return 0, types.InvalidArgumentf("json document root must be an object, got %s", value.Kind)
		}
		doc = value.Clone()
	} else {
		rec, found := s.readOverlay(b, types.PrimitiveJSON, key)
		if found && !rec.Tombstone {
			doc = rec.Value.Clone()
		} else {
			doc = types.NewObject(nil)
		}
		doc, err = setAtPath(doc, segments, value.Clone())
		if err != nil {
			return 0, err
		}
	}
	return s.writeThrough(b, store.Mutation{
		Op:        store.OpPut,
		Primitive: types.PrimitiveJSON,
		Key:       key,
		Value:     doc,
	})
}

// setAtPath assigns the leaf addressed by segments, creating missing
// intermediates as empty objects. doc is owned by the caller (already
// cloned), so maps mutate in place.
func setAtPath(doc types.Value, segments []string, value types.Value) (types.Value, error) {
	if len(segments) == 0 {
		return value, nil
	}
	if doc.Kind != types.KindObject {
		return doc, types.NotFoundf("json path addresses a %s, want object", doc.Kind)
	}
	child, ok := doc.Object[segments[0]]
	if !ok {
		child = types.NewObject(nil)
	}
	newChild, err := setAtPath(child, segments[1:], value)
	if err != nil {
		return doc, err
	}
	doc.Object[segments[0]] = newChild
	return doc, nil
}

// JsonGet returns the addressed sub-value, or nil if the document or
// path is absent.
func (s *Session) JsonGet(branchOverride, key, path string) (*types.Value, error) {
	segments, err := parsePath(path)
	if err != nil {
		return nil, err
	}
	b := s.resolveBranch(branchOverride)
	if !s.db.branches.Exists(b) {
		return nil, types.NotFoundf("branch %q", b)
	}
	rec, found := s.readOverlay(b, types.PrimitiveJSON, key)
	if !found || rec.Tombstone {
		return nil, nil
	}
	cur := rec.Value
	for _, seg := range segments {
		if cur.Kind != types.KindObject {
			return nil, nil
		}
		child, ok := cur.Object[seg]
		if !ok {
			return nil, nil
		}
		cur = child
	}
	out := cur.Clone()
	return &out, nil
}

// JsonDelete removes the document (path "$", a tombstone) or one field
// (a new version without it). Returns whether anything was removed.
func (s *Session) JsonDelete(branchOverride, key, path string) (bool, error) {
	if key == "" {
		return false, types.InvalidArgumentf("json document key must not be empty")
	}
	segments, err := parsePath(path)
	if err != nil {
		return false, err
	}
	b := s.resolveBranch(branchOverride)
	if !s.db.branches.Exists(b) {
		return false, types.NotFoundf("branch %q", b)
	}
	rec, found := s.readOverlay(b, types.PrimitiveJSON, key)
	if !found || rec.Tombstone {
		return false, nil
	}

	if segments == nil {
		if _, err := s.writeThrough(b, store.Mutation{
			Op:        store.OpDelete,
			Primitive: types.PrimitiveJSON,
			Key:       key,
		}); err != nil {
			return false, err
		}
		return true, nil
	}

	doc := rec.Value.Clone()
	doc, removed := deleteAtPath(doc, segments)
	if !removed {
		return false, nil
	}
	if _, err := s.writeThrough(b, store.Mutation{
		Op:        store.OpPut,
		Primitive: types.PrimitiveJSON,
		Key:       key,
		Value:     doc,
	}); err != nil {
		return false, err
	}
	return true, nil
}

// deleteAtPath removes the addressed field. Missing documents, paths,
// or non-object hops remove nothing.
func deleteAtPath(doc types.Value, segments []string) (types.Value, bool) {
	if doc.Kind != types.KindObject {
		return doc, false
	}
	seg := segments[0]
	if len(segments) == 1 {
		if _, ok := doc.Object[seg]; !ok {
			return doc, false
		}
		delete(doc.Object, seg)
		return doc, true
	}
	child, ok := doc.Object[seg]
	if !ok {
		return doc, false
	}
	newChild, removed := deleteAtPath(child, segments[1:])
	if removed {
		doc.Object[seg] = newChild
	}
	return doc, removed
}

// JsonGetv returns the document's version history, newest first, or nil
// if it never existed.
func (s *Session) JsonGetv(branchOverride, key string) ([]types.VersionedValue, error) {
	b := s.resolveBranch(branchOverride)
	if !s.db.branches.Exists(b) {
		return nil, types.NotFoundf("branch %q", b)
	}
	return s.chainOverlay(b, types.PrimitiveJSON, key), nil
}

// JsonList pages through document keys in ascending lexicographic order.
// cursor is the last key of the previous page; an empty returned cursor
// means the listing is exhausted. limit <= 0 returns everything.
func (s *Session) JsonList(branchOverride, prefix, cursor string, limit int) ([]string, string, error) {
	b := s.resolveBranch(branchOverride)
	if !s.db.branches.Exists(b) {
		return nil, "", types.NotFoundf("branch %q", b)
	}
	keys := s.listOverlay(b, types.PrimitiveJSON, prefix)
	sort.Strings(keys)
	if cursor != "" {
		i := sort.SearchStrings(keys, cursor)
		if i < len(keys) && keys[i] == cursor {
			i++
		}
		keys = keys[i:]
	}
	next := ""
	if limit > 0 && len(keys) > limit {
		keys = keys[:limit]
		next = keys[len(keys)-1]
	}
	return keys, next, nil
}
