// Package registry maps channel names to listeners.
//
// A Registry is populated during bootstrap, sealed, and then shared read-only by
// the dispatcher and the WebSocket handler.
package registry
