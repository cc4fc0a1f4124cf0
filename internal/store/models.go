package store

import "time"

// ItemRecord is one catalogue item as archived in Postgres. The in-memory
// pool remains authoritative during a run; the archive exists so studies
// survive process loss and stay queryable afterward.
type ItemRecord struct {
	ID         string
	Text       string
	Categories []string
	CreatedAt  time.Time
}

// UserRecord is one annotator known to the archive.
type UserRecord struct {
	ID        string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// AnnotationEvent is one append-only audit entry: a single label or span
// value submitted by one user for one item. Events are never updated or
// deleted; the latest event per (user, item, kind, schema, name) is the
// current value.
type AnnotationEvent struct {
	ID     string
	UserID string
	ItemID string
	// Kind is "label" or "span".
	Kind   string
	Schema string
	Name   string
	Value  string
	// Span-only fields; zero for labels.
	Title     string
	StartPos  int
	EndPos    int
	CreatedAt time.Time
}

// EventFilter narrows ListAnnotationEvents.
type EventFilter struct {
	UserID string
	ItemID string
	Kind   string
	Limit  int
}
