// Package api hosts the HTTP handlers that front the VidPress REST API.
//
// The handlers assembled by Handler coordinate request validation, session
// awareness, and response shaping while delegating persistence to
// storage.Repository implementations injected at construction time.
// Authentication and session lifecycle management are provided by
// auth.SessionManager instances passed into the handler; the package does not
// reach for globals or singletons and expects callers to supply fully
// configured dependencies.
//
// The YouTube manager and uploader, together with the notification queue, are
// also injected so OAuth flows, publishes, and event fan-out can be exercised
// without coupling the package to specific runtime wiring. This keeps endpoint
// behaviour testable and aligned with the wider service architecture.
//
// Handler implementations assume upstream middleware from internal/server has
// already enforced authentication, rate limiting, and logging concerns. New
// routes should preserve that contract by avoiding duplicate validation and by
// leaning on the middleware guarantees established in the server stack.
package api
