/*
Package store implements the multi-version value store shared by every
primitive.

Each (branch, primitive, key) maps to a version chain: a newest-first,
append-only list of (version, timestamp, value) records where deletes are
tombstone records. Readers pass the commit version they are allowed to
observe and get snapshot-consistent answers; writers apply whole
transactions atomically under the database's commit token.

The store also owns the event log's derived state (dense per-branch
sequence counters and the type index) because both are committed state
that must survive replay and checkpointing.
*/
package store
