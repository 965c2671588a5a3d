/*
Package types defines the shared data model of StrataDB: the tagged Value
union stored by every primitive, branch metadata, version-chain records,
vector collection descriptors, durability modes and counters, and the
closed error taxonomy.

All other packages depend on types; types depends on nothing but the
standard library.
*/
package types
