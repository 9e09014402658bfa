// Package runner contains the concurrent execution core: a single-threaded
// coordinator that walks the dependency graph's frontier, a bounded worker
// pool that invokes the external TestRunner, an adaptive concurrency
// controller fed by resource sampling, per-node and whole-run deadline
// tracking, and the result aggregation and progress streaming that turn
// individual outcomes into a complete TestReport.
//
// All graph state is owned by the coordinator goroutine. Workers communicate
// exclusively through the pool's completion channel and never mutate shared
// node state.
package runner
