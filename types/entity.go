// Package types provides common types used across streampass.
package types

import "time"

// Entity carries record timestamps for persisted streampass entities.
// Embed it in domain types to get consistent created/updated handling.
type Entity struct {
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewEntity creates an Entity stamped at t (in UTC).
func NewEntity(t time.Time) Entity {
	t = t.UTC()
	return Entity{
		CreatedAt: t,
		UpdatedAt: t,
	}
}

// Touch moves UpdatedAt to t.
func (e *Entity) Touch(t time.Time) {
	e.UpdatedAt = t.UTC()
}

// Age returns how long before now the entity was created.
func (e Entity) Age(now time.Time) time.Duration {
	return now.Sub(e.CreatedAt)
}

// IsStale reports whether the entity has not been touched within d of now.
func (e Entity) IsStale(now time.Time, d time.Duration) bool {
	return now.Sub(e.UpdatedAt) > d
}
