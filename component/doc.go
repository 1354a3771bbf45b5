// Package component defines the lifecycle contract for the long-running
// pieces of a taskflow server (the SSE hub, the HTTP server, the run
// store) and a registry that starts them in order and stops them in
// reverse.
package component
