// Package runstore persists the artifacts of finished runs: the graph
// document, the event trace and the final state. Stored runs can be
// listed, inspected and used as the prior run of a replay.
//
// Backends:
//   - FileStore: one directory per run holding graph.json, workflow.json
//     (the event trace) and result.json.
//   - SQLiteStore: a single runs table with JSON columns.
//   - MemoryStore: process-local, for tests and ephemeral servers.
package runstore
