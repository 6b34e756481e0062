package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Frame types of the client wire protocol.
const (
	FrameConnection   = "connection"
	FrameSubscribe    = "subscribe"
	FrameUnsubscribe  = "unsubscribe"
	FrameSubscription = "subscription"
	FramePing         = "ping"
	FramePong         = "pong"
	FrameError        = "error"

	StatusConnected = "connected"
	StatusSuccess   = "success"

	MessageInvalidFormat = "Invalid message format"
	MessageUnknownType   = "Unknown message type"
)

// InboundFrame is any frame a client may send. Channels is only meaningful for
// subscribe and unsubscribe; a nil slice means the field was absent.
type InboundFrame struct {
	Type     string    `json:"type"`
	Channels []Channel `json:"channels,omitempty"`
}

type ConnectionFrame struct {
	Type   string `json:"type"`
	Status string `json:"status"`
}

type SubscriptionFrame struct {
	Type     string    `json:"type"`
	Status   string    `json:"status"`
	Channels []Channel `json:"channels"`
}

type ControlFrame struct {
	Type string `json:"type"`
}

type ErrorFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// ParseInboundFrame decodes and validates a client frame.
func ParseInboundFrame(data []byte) (InboundFrame, error) {
	var frame InboundFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return InboundFrame{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	frame.Type = strings.ToLower(strings.TrimSpace(frame.Type))
	switch frame.Type {
	case FrameSubscribe, FrameUnsubscribe:
		if frame.Channels == nil {
			return InboundFrame{}, fmt.Errorf("%w: %s without channels", ErrMalformedFrame, frame.Type)
		}
		for i, ch := range frame.Channels {
			ch = Channel(strings.TrimSpace(string(ch)))
			if !IsKnownChannel(ch) {
				return InboundFrame{}, &UnknownChannelError{Channel: ch}
			}
			frame.Channels[i] = ch
		}
	case FramePing, FramePong:
	default:
		return InboundFrame{}, fmt.Errorf("%w: %q", ErrUnknownFrameType, frame.Type)
	}
	return frame, nil
}

// UnknownChannelError names the channel a client asked for. It matches ErrUnknownChannel.
type UnknownChannelError struct {
	Channel Channel
}

func (e *UnknownChannelError) Error() string {
	return fmt.Sprintf("%s: %s", ErrUnknownChannel, e.Channel)
}

func (e *UnknownChannelError) Is(target error) bool { return target == ErrUnknownChannel }

// ErrorMessageFor maps a frame parsing error to the message sent back to the client.
func ErrorMessageFor(err error) string {
	var unknown *UnknownChannelError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &unknown):
		return "Unknown channel: " + string(unknown.Channel)
	case errors.Is(err, ErrUnknownFrameType):
		return MessageUnknownType
	default:
		return MessageInvalidFormat
	}
}

func NewConnectionFrame() ConnectionFrame {
	return ConnectionFrame{Type: FrameConnection, Status: StatusConnected}
}

func NewSubscriptionFrame(channels []Channel) SubscriptionFrame {
	if channels == nil {
		channels = []Channel{}
	}
	return SubscriptionFrame{Type: FrameSubscription, Status: StatusSuccess, Channels: channels}
}

func NewPingFrame() ControlFrame { return ControlFrame{Type: FramePing} }

func NewPongFrame() ControlFrame { return ControlFrame{Type: FramePong} }

func NewErrorFrame(message string) ErrorFrame {
	return ErrorFrame{Type: FrameError, Message: message}
}
