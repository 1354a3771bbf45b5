// Package server provides the taskflow HTTP server: Gin routing served
// over HTTP/1.1 and h2c, a handler-level middleware stack, the standard
// probe endpoints, and response helpers that render AppErrors.
//
// # Middleware
//
// Built-in middleware (server/middleware):
//
//   - Recovery: panic recovery with structured logging
//   - RequestID: request id generation and propagation into log context
//   - CORS: cross-origin resource sharing
//   - BodySizeLimit: request body size limits
//   - RequestLogger: request logging with duration
//   - RateLimit: per-client sliding window for expensive routes
//
// # Endpoints
//
// Built-in endpoints (server/endpoint): /health, /alive, /ready, /info
// and /metrics.
package server
