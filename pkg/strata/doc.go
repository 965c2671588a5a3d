/*
Package strata is the embedding facade: a database handle plus a default
session behind one flat method set covering all five primitives.

	db, err := strata.Cache()
	// or strata.Open("/var/lib/myapp/strata")
	defer db.Close()

	db.KvPut("greeting", types.NewString("hello"))
	v, _ := db.KvGet("greeting")

Each goroutine should hold its own handle:

	worker := db.NewHandle()

Transactions run through the session:

	sess := db.Session()
	sess.TxnBegin("")
	sess.KvPut("", "a", types.NewInt(1))
	sess.EventAppend("", "audit", types.NewString("wrote a"))
	version, err := sess.TxnCommit()
*/
package strata
