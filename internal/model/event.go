package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventKind identifies the kind of push event received on a topic.
type EventKind string

const (
	EventUnknown               EventKind = "unknown"
	EventPostUpdated           EventKind = "post_updated"
	EventMessageReceived       EventKind = "message"
	EventFriendRequestCreated  EventKind = "friend_request"
	EventFriendRequestAccepted EventKind = "friend_accept"
)

// Event is a decoded push event. Exactly one payload field is non-nil,
// selected by Kind; EventUnknown carries only the raw payload.
type Event struct {
	Kind       EventKind
	Topic      string
	ReceivedAt time.Time

	Post          *PostSnapshot
	Message       *Message
	FriendRequest *FriendRequest

	// Raw is the undecoded payload, retained for unknown kinds.
	Raw json.RawMessage
}

// eventEnvelope is the wire format of a push frame.
type eventEnvelope struct {
	Topic   string          `json:"topic"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// DecodeEvent parses a raw push frame into a typed Event. Unknown event
// types decode to EventUnknown rather than an error, so callers can log
// and drop them without treating protocol evolution as a failure.
func DecodeEvent(data []byte, receivedAt time.Time) (Event, error) {
	var env eventEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Event{}, fmt.Errorf("decode event envelope: %w", err)
	}
	if env.Topic == "" {
		return Event{}, fmt.Errorf("event envelope missing topic")
	}

	ev := Event{
		Topic:      env.Topic,
		ReceivedAt: receivedAt,
		Raw:        env.Payload,
	}

	switch EventKind(env.Type) {
	case EventPostUpdated:
		var p PostSnapshot
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return Event{}, fmt.Errorf("decode post snapshot: %w", err)
		}
		ev.Kind = EventPostUpdated
		ev.Post = &p

	case EventMessageReceived:
		var m Message
		if err := json.Unmarshal(env.Payload, &m); err != nil {
			return Event{}, fmt.Errorf("decode message: %w", err)
		}
		ev.Kind = EventMessageReceived
		ev.Message = &m

	case EventFriendRequestCreated, EventFriendRequestAccepted:
		var fr FriendRequest
		if err := json.Unmarshal(env.Payload, &fr); err != nil {
			return Event{}, fmt.Errorf("decode friend request: %w", err)
		}
		ev.Kind = EventKind(env.Type)
		ev.FriendRequest = &fr

	default:
		ev.Kind = EventUnknown
	}

	return ev, nil
}
