// Package app wires the listeners and data bindings the server exposes.
//
// Bootstrap is the only place channels are registered. It returns a sealed
// registry that the dispatcher and the HTTP layer share.
package app
