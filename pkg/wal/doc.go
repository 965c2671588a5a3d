/*
Package wal implements the write-ahead log and the durability
controller.

Every committed transaction becomes one length-prefixed, checksummed
record. The fsync policy is the only thing the three durability modes
change: cache never touches disk, standard appends on every commit and
group-syncs on a background interval or batch threshold, always syncs
before a commit returns.

Recovery replays verified records from the beginning and stops at the
first invalid or partial one, treating it as the crash tail; the writer
truncates that tail on open. The controller counts appends, sync calls,
bytes, and sync time for observability.
*/
package wal
