/*
Package metrics exposes Prometheus collectors for StrataDB's durability
controller and commit path, plus a Timer helper for latency histograms.

The authoritative per-database counters live on the WAL writer
(DurabilityCounters); these collectors mirror them process-wide so an
embedding application can scrape them alongside its own metrics.

Usage:

	http.Handle("/metrics", metrics.Handler())

	timer := metrics.NewTimer()
	// ... commit ...
	timer.ObserveDuration(metrics.CommitDuration)
*/
package metrics
