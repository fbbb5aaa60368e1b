package model

import "fmt"

// EventKind is the operation carried by a live event
type EventKind string

const (
	EventInsert EventKind = "insert"
	EventUpdate EventKind = "update"
	EventRemove EventKind = "remove"
)

// Event is a single live change to a list: Insert(item), Update(id, patch)
// or Remove(id).
type Event struct {
	Kind  EventKind
	ID    string
	Item  *Item
	Patch Patch
}

// Insert builds an insert event
func Insert(item *Item) Event {
	return Event{Kind: EventInsert, ID: item.ID, Item: item}
}

// Update builds an update event
func Update(id string, patch Patch) Event {
	return Event{Kind: EventUpdate, ID: id, Patch: patch}
}

// Remove builds a remove event
func Remove(id string) Event {
	return Event{Kind: EventRemove, ID: id}
}

// AuthorID returns the author of an inserted item, if any
func (e Event) AuthorID() string {
	if e.Item == nil {
		return ""
	}
	return e.Item.AuthorID
}

// Validate checks the event shape
func (e Event) Validate() error {
	switch e.Kind {
	case EventInsert:
		if e.Item == nil || e.Item.ID == "" {
			return fmt.Errorf("%w: insert without item", ErrMalformedPayload)
		}
	case EventUpdate:
		if e.ID == "" {
			return fmt.Errorf("%w: update without id", ErrMalformedPayload)
		}
	case EventRemove:
		if e.ID == "" {
			return fmt.Errorf("%w: remove without id", ErrMalformedPayload)
		}
	default:
		return fmt.Errorf("%w: unknown event kind %q", ErrMalformedPayload, e.Kind)
	}
	return nil
}
