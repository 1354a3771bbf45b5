// Package api exposes runs over HTTP under /api/v1: submitting graph
// documents, inspecting, cancelling and replaying runs, streaming run
// events as Server-Sent Events, and validating or laying out graphs.
package api
