// Package server hosts the VidPress REST API behind a single HTTP server.
//
// The server builds a consistent middleware chain of request IDs, logging,
// audit, security headers, CORS, metrics, rate limiting, and auth so handlers
// all share common protections and instrumentation.
package server
