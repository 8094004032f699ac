// Package dag resolves and runs the stage graph.
//
// It is split into:
//   - Catalog: the fixed, validated set of stages
//   - Graph: the immutable stage-instance DAG resolved for one target, with a
//     stable GraphHash
//   - ExecutionState: the mutable per-run node states
//   - Engine: the fail-fast driver that plans, probes, and executes nodes
package dag
