// Package sparkfeed is a social feed service with optimistic client-side
// caching and realtime updates.
//
// The server and terminal client live in cmd/sparkfeed. The packages are:
//
// - internal/window: virtualized list windowing over variable-height items
// - internal/feed: client feed cache with optimistic writes and rollback
// - internal/realtime: change events, streams and the store bridge
// - internal/client: HTTP SDK for the API
// - internal/handlers: HTTP request handlers for all API endpoints
// - internal/repository: Postgres/SQLite persistence
// - internal/websocket: realtime fan-out hub
// - internal/events: change event publishing and relaying
// - internal/storage: media storage (S3 or memory)
// - internal/seed: development and test data
//
// See the individual package documentation for detailed API reference.
package sparkfeed
