package domain

import "time"

// Message is a raw payload received from the broker on one channel, before decoding.
type Message struct {
	Channel    Channel
	Payload    []byte
	ReceivedAt time.Time
}
