/*
Package bundle reads and writes portable branch archives
(*.runbundle.tar.zst): a zstd-compressed tar holding a JSON manifest and
one codec-encoded record per versioned entry.

Every entry carries the codec's own checksum; the manifest folds the
per-entry digests into an archive-level checksum and pins the entry
count and format version. Validation verifies all three plus ascending
version order.

The package is deliberately ignorant of the database: export walks the
store and hands entries in, import reads entries out and the database
commits them as real transactions.
*/
package bundle
