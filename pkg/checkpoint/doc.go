/*
Package checkpoint persists the committed multi-version state into a
BoltDB file (segments.db) inside the database directory.

Compact takes a consistent cut of the store under the commit token,
writes it here in one Bolt transaction, and truncates the WAL; open
loads the checkpoint and replays only records committed after its
watermark. The file survives crashes with Bolt's own guarantees.

Bucket layout:

	meta     — commit_version watermark, format version
	branches — branch name -> BranchInfo (JSON)
	chains   — branch|primitive|key -> version chain (value codec)
	events   — branch name -> event index dump (JSON)
*/
package checkpoint
