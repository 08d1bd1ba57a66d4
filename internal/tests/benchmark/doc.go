// Package benchmark provides performance benchmarks for the usage stats
// store.
//
// Run benchmarks with:
//
//	go test -bench=. -benchmem ./internal/tests/benchmark/...
//
// Run with specific bucket counts:
//
//	go test -bench=BenchmarkQueryRange -benchmem -benchtime=10s ./internal/tests/benchmark/...
//
// Compare results:
//
//	benchstat old.txt new.txt
package benchmark
