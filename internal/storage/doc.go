// Package storage provides the time-bucketed usage stats database.
//
// Snapshots are kept at four granularities, one file per bucket:
//
//	<root>/version
//	<root>/daily/<beginTimeMillis>[-c]
//	<root>/weekly/...
//	<root>/monthly/...
//	<root>/yearly/...
//
// Each granularity has an in-memory index from begin time to file, rebuilt
// from the file contents on Init and after every operation that rewrites
// the tree (time changes, pruning, restore). The "-c" suffix marks a daily
// bucket as checked in.
//
// Buckets are written through a temp file and a rename, so a crash leaves
// either the old or the new content. Errors confined to a single bucket are
// logged and the bucket skipped; they never abort a multi-bucket operation.
package storage
