/*
Package database implements the transactional core of StrataDB: the
Database (durability controller, multi-version store, branch registry
behind one commit token) and the Session (current branch, transaction
machine, and the per-primitive controllers).

# Commit path

Every commit is serialized through the mutation token: the transaction
is encoded into one WAL record, the configured fsync policy runs, the
store applies all writes under a single critical section, and the
monotonically increasing commit version is returned. Readers never take
the token; they read snapshots bounded by the version visible to them.

# Sessions

A Session is Idle or Active. While Active, writes stage into a buffer
keyed like the store and reads consult that buffer first
(read-your-writes), falling through to the snapshot at the
transaction's start version. Non-lifecycle commands executed while Idle
auto-commit as implicit one-command transactions. Dropping a session
(Close) rolls back.

One deliberate asymmetry: StateSet bypasses the active transaction and
commits immediately in its own micro-transaction, while StateInit and
StateCas stage like every other write. Callers relying on StateSet as a
cross-transaction signal depend on this.

# Branches

Branches are disjoint keyspaces over all primitives; creation is a
metadata-only commit and deletion drops the branch's chains. The
default branch always exists. Fork and diff are declared but not
implemented and fail with NotImplemented.
*/
package database
