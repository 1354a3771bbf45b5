// Package tool is the tool-call capability: a registry of named tools that
// tool-call nodes invoke with structured arguments.
//
// Tools are either Go functions ([Func]) or external commands ([NewCommand])
// run through the process package. The [Registry] implements
// dag.ToolCapability and bounds the number of concurrent tool calls with a
// bulkhead.
package tool
