package domain

import "github.com/bytedance/sonic"

// Push event types carried on the per-kind board topics.
const (
	ItemCreated      = "item-created"
	ItemUpdated      = "item-updated"
	ItemStateChanged = "item-state-changed"
	ItemDeleted      = "item-deleted"
)

// Event is one push notification describing a mutation made elsewhere.
// Delivery is at-least-once and unordered; consumers must tolerate duplicates
// and stale same-id events.
type Event struct {
	ID     string `json:"id"`
	Kind   Kind   `json:"kind"`
	Type   string `json:"type"`
	ItemID string `json:"itemId"`
	// Item carries the full snapshot for created/updated/state-changed events
	// and is absent for deletions.
	Item *Item `json:"item,omitempty"`
	// PreviousState is informational only; reconciliation locates the old
	// column by scanning, not by trusting this field.
	PreviousState State `json:"previousState,omitempty"`
	Timestamp     int64 `json:"time"`
}

// EventEnvelope is the shape produced by upstream services onto the domain
// events queue before the relay republishes it per kind.
type EventEnvelope struct {
	Kind    Kind                   `json:"kind"`
	Payload sonic.NoCopyRawMessage `json:"payload"`
}
