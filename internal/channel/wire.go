// Package channel speaks the push channel protocol: join/leave frames out,
// topic envelopes in.
package channel

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Bui-Thanh-Liem/social-fe-sub000/internal/model"
)

// Op is a subscription frame operation
type Op string

const (
	OpJoin  Op = "join"
	OpLeave Op = "leave"
)

// Frame is an outbound join or leave message
type Frame struct {
	Op     Op       `json:"op"`
	Topics []string `json:"topics"`
}

// Envelope is an inbound event on a topic
type Envelope struct {
	Topic   string          `json:"topic"`
	Kind    model.EventKind `json:"kind"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	// EventID identifies a delivery for at-least-once dedupe
	EventID string    `json:"event_id,omitempty"`
	At      time.Time `json:"at,omitempty"`
}

// ParseEnvelope decodes one wire message
func ParseEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", model.ErrMalformedPayload, err)
	}
	if env.Topic == "" {
		return Envelope{}, fmt.Errorf("%w: envelope without topic", model.ErrMalformedPayload)
	}
	return env, nil
}

// ParseEnvelopeOn decodes a wire message delivered on a known topic, as with
// pub/sub channels and keyed records. The delivery topic wins over the body.
func ParseEnvelopeOn(data []byte, topic string) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", model.ErrMalformedPayload, err)
	}
	env.Topic = topic
	return env, nil
}

// Decode turns the envelope into a list event
func (e Envelope) Decode() (model.Event, error) {
	var ev model.Event
	switch e.Kind {
	case model.EventInsert:
		var item model.Item
		if err := json.Unmarshal(e.Payload, &item); err != nil {
			return ev, fmt.Errorf("%w: insert on %s: %v", model.ErrMalformedPayload, e.Topic, err)
		}
		ev = model.Insert(&item)
	case model.EventUpdate:
		var patch model.Patch
		if len(e.Payload) > 0 {
			if err := json.Unmarshal(e.Payload, &patch); err != nil {
				return ev, fmt.Errorf("%w: update on %s: %v", model.ErrMalformedPayload, e.Topic, err)
			}
		}
		ev = model.Update(e.targetID(patch), patch)
	case model.EventRemove:
		var ref map[string]any
		if len(e.Payload) > 0 {
			if err := json.Unmarshal(e.Payload, &ref); err != nil {
				return ev, fmt.Errorf("%w: remove on %s: %v", model.ErrMalformedPayload, e.Topic, err)
			}
		}
		ev = model.Remove(e.targetID(ref))
	default:
		return ev, fmt.Errorf("%w: unknown kind %q on %s", model.ErrMalformedPayload, e.Kind, e.Topic)
	}
	return ev, ev.Validate()
}

func (e Envelope) targetID(payload map[string]any) string {
	if e.ID != "" {
		return e.ID
	}
	for _, k := range []string{"id", "_id"} {
		if s, ok := payload[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// Presence is a decoded presence envelope
type Presence struct {
	UserID string
	Online bool
	At     time.Time
}

type presencePayload struct {
	UserID string `json:"user_id"`
	Online *bool  `json:"online"`
}

// DecodePresence reads a presence envelope. Insert means online, remove means
// offline, update carries an explicit "online" flag.
func (e Envelope) DecodePresence() (Presence, error) {
	var p presencePayload
	if len(e.Payload) > 0 {
		if err := json.Unmarshal(e.Payload, &p); err != nil {
			return Presence{}, fmt.Errorf("%w: presence: %v", model.ErrMalformedPayload, err)
		}
	}
	userID := p.UserID
	if userID == "" {
		userID = e.ID
	}
	if userID == "" {
		return Presence{}, fmt.Errorf("%w: presence without user", model.ErrMalformedPayload)
	}

	out := Presence{UserID: userID, At: e.At}
	switch e.Kind {
	case model.EventInsert:
		out.Online = true
	case model.EventRemove:
		out.Online = false
	case model.EventUpdate:
		if p.Online == nil {
			return Presence{}, fmt.Errorf("%w: presence update without online flag", model.ErrMalformedPayload)
		}
		out.Online = *p.Online
	default:
		return Presence{}, fmt.Errorf("%w: unknown kind %q", model.ErrMalformedPayload, e.Kind)
	}
	return out, nil
}
