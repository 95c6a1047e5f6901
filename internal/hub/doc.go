// Package hub owns live WebSocket connections and group membership.
//
// Each Conn has one writer goroutine that owns the socket for writes. The
// Directory is an actor: a single goroutine owns the group map and processes
// join, leave and deliver commands in order, so a broadcast always iterates a
// consistent member set.
package hub
