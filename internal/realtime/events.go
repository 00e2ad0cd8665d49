package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"go-dm/internal/chat"

	"github.com/go-playground/validator/v10"
)

// Event names on the wire.
const (
	EventMessageSent           = "message-sent"
	EventFriendRequestReceived = "friend-request-received"
	EventFriendRequestAccepted = "friend-request-accepted"

	// Gateway control events, never published through the broker.
	EventSubscribed        = "subscription-succeeded"
	EventSubscriptionError = "subscription-error"
)

// Envelope is the frame every event travels in, through the broker and over the socket.
type Envelope struct {
	Channel string          `json:"channel"`
	Event   string          `json:"event"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Payload is one of the tagged event variants below.
type Payload interface {
	isPayload()
}

// MessageSent is published on the conversation channel.
type MessageSent struct {
	chat.Message
}

// SidebarMessage is published on the recipient's chats channel so a client can
// render who wrote without a lookup.
type SidebarMessage struct {
	chat.Message
	SenderName string `json:"senderName"`
	SenderImg  string `json:"senderImg"`
}

// FriendRequest carries the other party of a friend request event.
type FriendRequest struct {
	SenderID    string `json:"senderId" validate:"required"`
	SenderName  string `json:"senderName"`
	SenderEmail string `json:"senderEmail" validate:"omitempty,email"`
	SenderImg   string `json:"senderImg"`
}

// FriendAccepted is published when a request is accepted.
type FriendAccepted struct {
	FriendRequest
}

func (MessageSent) isPayload()    {}
func (SidebarMessage) isPayload() {}
func (FriendRequest) isPayload()  {}
func (FriendAccepted) isPayload() {}

// Event is a decoded, validated envelope.
type Event struct {
	Channel string
	Name    string
	Payload Payload
}

var ErrUnknownEvent = errors.New("unknown event")

var validate = validator.New(validator.WithRequiredStructEnabled())

// Decode picks the payload variant from the event name and channel scope and
// validates it. Nothing from the wire is handed to a handler without passing here.
func Decode(env Envelope) (Event, error) {
	scope, id, err := ParseChannel(env.Channel)
	if err != nil {
		return Event{}, err
	}

	var p Payload
	switch {
	case env.Event == EventMessageSent && scope == ScopeConversation:
		var m MessageSent
		if err := decodeInto(env.Data, &m); err != nil {
			return Event{}, err
		}
		if err := m.Validate(); err != nil {
			return Event{}, err
		}
		if err := m.BelongsTo(id); err != nil {
			return Event{}, err
		}
		p = m
	case env.Event == EventMessageSent && scope == ScopeUserChats:
		var m SidebarMessage
		if err := decodeInto(env.Data, &m); err != nil {
			return Event{}, err
		}
		if err := m.Validate(); err != nil {
			return Event{}, err
		}
		if m.ReceiverID != id {
			return Event{}, &chat.ValidationError{Reason: "message is not addressed to " + id}
		}
		p = m
	case env.Event == EventFriendRequestReceived && scope == ScopeFriendRequests:
		var f FriendRequest
		if err := decodeInto(env.Data, &f); err != nil {
			return Event{}, err
		}
		if err := validate.Struct(f); err != nil {
			return Event{}, fmt.Errorf("%s payload: %w", env.Event, err)
		}
		p = f
	case env.Event == EventFriendRequestAccepted && scope == ScopeFriendRequests:
		var f FriendAccepted
		if err := decodeInto(env.Data, &f); err != nil {
			return Event{}, err
		}
		if err := validate.Struct(f); err != nil {
			return Event{}, fmt.Errorf("%s payload: %w", env.Event, err)
		}
		p = f
	default:
		return Event{}, fmt.Errorf("%w: %q on %s", ErrUnknownEvent, env.Event, env.Channel)
	}

	return Event{Channel: env.Channel, Name: env.Event, Payload: p}, nil
}

func decodeInto(data json.RawMessage, dst any) error {
	if len(data) == 0 {
		return &chat.ValidationError{Reason: "empty payload"}
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return &chat.ValidationError{Reason: "decode payload", Err: err}
	}
	return nil
}

func encode(channel, event string, payload Payload) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Channel: channel, Event: event, Data: data})
}
