package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Kind discriminates list items
type Kind string

const (
	KindTweet           Kind = "tweet"
	KindComment         Kind = "comment"
	KindMessage         Kind = "message"
	KindNotification    Kind = "notification"
	KindConversation    Kind = "conversation"
	KindCommunity       Kind = "community"
	KindSuggestionBlock Kind = "suggestion-block"
)

// Valid reports whether k is a known kind
func (k Kind) Valid() bool {
	switch k {
	case KindTweet, KindComment, KindMessage, KindNotification,
		KindConversation, KindCommunity, KindSuggestionBlock:
		return true
	}
	return false
}

// PinRecord marks a conversation or community as pinned by its owner
type PinRecord struct {
	OwnerID  string    `json:"owner_id,omitempty"`
	TargetID string    `json:"target_id,omitempty"`
	PinnedAt time.Time `json:"pinned_at"`
}

// Item is one entry of a synchronized list. Apart from identity, timestamps
// and pin state, the payload is opaque.
type Item struct {
	ID        string
	Type      Kind
	AuthorID  string
	CreatedAt time.Time
	UpdatedAt time.Time
	Pin       *PinRecord
	Payload   map[string]any
}

// Pinned reports whether the item carries a pin record
func (it *Item) Pinned() bool {
	return it.Pin != nil
}

// Clone returns a deep copy of the item
func (it *Item) Clone() *Item {
	if it == nil {
		return nil
	}
	out := *it
	if it.Pin != nil {
		pin := *it.Pin
		out.Pin = &pin
	}
	if it.Payload != nil {
		out.Payload = cloneValue(it.Payload).(map[string]any)
	}
	return &out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(val))
		for k, inner := range val {
			m[k] = cloneValue(inner)
		}
		return m
	case []any:
		s := make([]any, len(val))
		for i, inner := range val {
			s[i] = cloneValue(inner)
		}
		return s
	default:
		return v
	}
}

// Get returns a payload value
func (it *Item) Get(key string) (any, bool) {
	v, ok := it.Payload[key]
	return v, ok
}

// Set writes a payload value
func (it *Item) Set(key string, value any) {
	if it.Payload == nil {
		it.Payload = make(map[string]any)
	}
	it.Payload[key] = value
}

// Bool reads a boolean payload flag; missing or non-bool values read as false
func (it *Item) Bool(key string) bool {
	b, _ := it.Payload[key].(bool)
	return b
}

// Int reads a numeric payload counter
func (it *Item) Int(key string) int {
	switch n := it.Payload[key].(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	case json.Number:
		i, _ := n.Int64()
		return int(i)
	}
	return 0
}

type itemHeader struct {
	ID        string     `json:"id,omitempty"`
	MongoID   string     `json:"_id,omitempty"`
	Type      Kind       `json:"type"`
	AuthorID  string     `json:"author_id,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	Pin       *PinRecord `json:"pin,omitempty"`
}

var headerKeys = []string{"id", "_id", "type", "author_id", "created_at", "updated_at", "pin"}

// UnmarshalJSON accepts either "id" or "_id" as identity. Keys other than the
// header fields are kept in Payload.
func (it *Item) UnmarshalJSON(data []byte) error {
	var hdr itemHeader
	if err := json.Unmarshal(data, &hdr); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	var rest map[string]any
	if err := json.Unmarshal(data, &rest); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	id := hdr.ID
	if id == "" {
		id = hdr.MongoID
	}
	if id == "" {
		return fmt.Errorf("%w: item without id", ErrMalformedPayload)
	}
	for _, k := range headerKeys {
		delete(rest, k)
	}
	if len(rest) == 0 {
		rest = nil
	}

	*it = Item{
		ID:        id,
		Type:      hdr.Type,
		AuthorID:  hdr.AuthorID,
		CreatedAt: hdr.CreatedAt,
		UpdatedAt: hdr.UpdatedAt,
		Pin:       hdr.Pin,
		Payload:   rest,
	}
	return nil
}

// MarshalJSON flattens the payload next to the header fields
func (it Item) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(it.Payload)+6)
	for k, v := range it.Payload {
		out[k] = v
	}
	out["id"] = it.ID
	out["type"] = it.Type
	if it.AuthorID != "" {
		out["author_id"] = it.AuthorID
	}
	if !it.CreatedAt.IsZero() {
		out["created_at"] = it.CreatedAt
	}
	if !it.UpdatedAt.IsZero() {
		out["updated_at"] = it.UpdatedAt
	}
	if it.Pin != nil {
		out["pin"] = it.Pin
	}
	return json.Marshal(out)
}
