// Package sse delivers run progress to browsers and CLI followers over
// Server-Sent Events.
//
// A Hub routes frames to connected clients by topic. Each client
// subscribes to one topic (for example "run:<id>") and a broadcast
// reaches every client whose topic matches a glob pattern.
//
//	hub := sse.NewHub()
//	go hub.Run()
//	hub.BroadcastToPattern("run:*", data)
//
// ServeSSE streams a client's frames over an HTTP response with an
// optional backlog, used to replay history to late subscribers.
package sse
