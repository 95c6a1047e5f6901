package domain

import "context"

// Session is the handler-facing view of one live connection.
type Session interface {
	ID() string
	Identity() Identity
	// Send enqueues an encoded frame. Returns false when the frame was dropped.
	Send(frame []byte) bool
}

// GroupBroadcaster fans a broadcast envelope out to every member of a group.
type GroupBroadcaster interface {
	Broadcast(ctx context.Context, group Group, msg Broadcast) error
}
