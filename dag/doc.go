// Package dag executes task graphs: typed nodes (model calls, tool calls and
// parameter guards) connected by data dependencies.
//
// A Graph is built once from nodes and edges, validated (cycles, dangling
// edges, duplicate ids, unknown references) and never mutated. A Scheduler
// runs it: entry nodes start immediately, nodes with several predecessors
// wait on a JoinBarrier until every predecessor has reported, and each node
// is dispatched through the Executor registered for its Kind. Progress is
// published as Events to any number of subscribers.
//
// Replay re-executes only the nodes affected by an override map and copies
// every other node's recorded result from the prior run.
package dag
