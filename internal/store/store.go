// Package store defines the domain document store that agents and rule
// effects write to.
package store

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("document not found")

// Document is a JSON object addressed by collection and id.
type Document struct {
	Collection string         `json:"collection"`
	ID         string         `json:"id"`
	Fields     map[string]any `json:"fields"`
	UpdatedAt  time.Time      `json:"updatedAt"`
}

// Activity is one line of the audit trail kept by the activity-log agent.
type Activity struct {
	EventID   string    `json:"eventId"`
	EventType string    `json:"eventType"`
	Source    string    `json:"source,omitempty"`
	UserID    string    `json:"userId,omitempty"`
	Summary   string    `json:"summary,omitempty"`
	At        time.Time `json:"at"`
}

// Store persists domain documents.
type Store interface {
	// Get returns ErrNotFound when the document does not exist.
	Get(ctx context.Context, collection, id string) (Document, error)
	// Merge creates the document or overwrites the given top-level fields,
	// leaving the others untouched.
	Merge(ctx context.Context, collection, id string, fields map[string]any) error
	// Increment adds delta to a numeric field. A non-empty dedupKey that has
	// already been applied makes the call a no-op reporting applied=false.
	Increment(ctx context.Context, collection, id, field string, delta float64, dedupKey string) (applied bool, err error)
	AppendActivity(ctx context.Context, a Activity) error
	// RecentActivity is newest first.
	RecentActivity(ctx context.Context, limit int) ([]Activity, error)
	Close() error
}
