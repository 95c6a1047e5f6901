package domain

import "encoding/json"

// Request is the client-to-server envelope.
type Request struct {
	Channel Channel           `json:"channel"`
	Payload []json.RawMessage `json:"payload"`
	ReplyTo *string           `json:"replyTo,omitempty"`
	ErrorTo *string           `json:"errorTo,omitempty"`
}

// Reply is sent only to the originating connection. ReplyTo is encoded as null when unset.
type Reply struct {
	ReplyTo *string `json:"replyTo"`
	Payload any     `json:"payload"`
}

// Broadcast is the stream-multiplexed envelope fanned out to groups.
type Broadcast struct {
	Stream  Channel `json:"stream"`
	Payload any     `json:"payload"`
	Close   bool    `json:"close,omitempty"`
}
