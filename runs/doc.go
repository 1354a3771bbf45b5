// Package runs tracks the runs of one taskflow process. A Manager starts
// graphs and replays on a shared scheduler, fans their events out to the
// SSE hub, and saves every finished run to the run store. Lookups fall
// through from in-flight runs to stored ones.
package runs
