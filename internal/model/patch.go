package model

import (
	"fmt"
	"time"
)

// Patch is a partial update for an item. The keys "updated_at" and
// "pinned_at" address the header; every other key addresses the payload. A nil
// value deletes the payload key, or unpins for "pinned_at".
type Patch map[string]any

// ApplyTo merges the patch into item in place
func (p Patch) ApplyTo(item *Item) error {
	for key, value := range p {
		switch key {
		case "id", "_id", "type":
			// identity and kind are immutable
		case "updated_at":
			ts, err := parseTime(value)
			if err != nil {
				return fmt.Errorf("%w: updated_at: %v", ErrMalformedPayload, err)
			}
			item.UpdatedAt = ts
		case "pinned_at":
			if value == nil {
				item.Pin = nil
				continue
			}
			ts, err := parseTime(value)
			if err != nil {
				return fmt.Errorf("%w: pinned_at: %v", ErrMalformedPayload, err)
			}
			if item.Pin == nil {
				item.Pin = &PinRecord{TargetID: item.ID}
			}
			item.Pin.PinnedAt = ts
		default:
			if value == nil {
				delete(item.Payload, key)
				continue
			}
			item.Set(key, value)
		}
	}
	return nil
}

func parseTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t, nil
	case string:
		return time.Parse(time.RFC3339Nano, t)
	default:
		return time.Time{}, fmt.Errorf("unexpected timestamp type %T", v)
	}
}
