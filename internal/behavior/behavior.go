// Package behavior records the append-only interaction telemetry one
// session produces per item: raw events, AI-assistance exchanges,
// annotation-change and navigation logs, and focus/scroll aggregates.
package behavior

import (
	"time"

	"github.com/google/uuid"
)

// Event is one client interaction. Timestamp is assigned server-side;
// ClientTime carries the browser clock when the client reports one.
type Event struct {
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	Timestamp  time.Time         `json:"timestamp"`
	Target     string            `json:"target,omitempty"`
	ClientTime string            `json:"clientTime,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// AssistExchange is one AI-assistance request/response pair.
type AssistExchange struct {
	Request   string    `json:"request"`
	Response  string    `json:"response"`
	Timestamp time.Time `json:"timestamp"`
}

// ChangeEntry records one annotation mutation on the item.
type ChangeEntry struct {
	Description string    `json:"description"`
	Timestamp   time.Time `json:"timestamp"`
}

// NavEntry records one arrival at or departure from the item.
type NavEntry struct {
	Direction string    `json:"direction"`
	FromIndex int       `json:"fromIndex"`
	ToIndex   int       `json:"toIndex"`
	Timestamp time.Time `json:"timestamp"`
}

// Log is the telemetry for one (session, item) pair. Owned exclusively by
// one session; never shared, so it carries no locking of its own.
type Log struct {
	ItemID         string
	Events         []Event
	Assists        []AssistExchange
	Changes        []ChangeEntry
	Navigation     []NavEntry
	FocusTime      map[string]time.Duration
	MaxScrollDepth float64
}

func NewLog(itemID string) *Log {
	return &Log{
		ItemID:    itemID,
		FocusTime: make(map[string]time.Duration),
	}
}

// RecordEvent appends an interaction event and returns its generated id.
func (l *Log) RecordEvent(eventType, target, clientTime string, metadata map[string]string) string {
	event := Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		Target:     target,
		ClientTime: clientTime,
		Metadata:   metadata,
	}
	l.Events = append(l.Events, event)
	return event.ID
}

func (l *Log) RecordAssist(request, response string) {
	l.Assists = append(l.Assists, AssistExchange{
		Request:   request,
		Response:  response,
		Timestamp: time.Now().UTC(),
	})
}

func (l *Log) RecordChange(description string) {
	l.Changes = append(l.Changes, ChangeEntry{
		Description: description,
		Timestamp:   time.Now().UTC(),
	})
}

func (l *Log) RecordNavigation(direction string, fromIndex, toIndex int) {
	l.Navigation = append(l.Navigation, NavEntry{
		Direction: direction,
		FromIndex: fromIndex,
		ToIndex:   toIndex,
		Timestamp: time.Now().UTC(),
	})
}

// AddFocusTime accumulates time spent on one UI element.
func (l *Log) AddFocusTime(element string, d time.Duration) {
	if d <= 0 {
		return
	}
	l.FocusTime[element] += d
}

// ObserveScrollDepth keeps the maximum reported scroll depth. Values are
// clamped to [0, 1].
func (l *Log) ObserveScrollDepth(depth float64) {
	if depth < 0 {
		return
	}
	if depth > 1 {
		depth = 1
	}
	if depth > l.MaxScrollDepth {
		l.MaxScrollDepth = depth
	}
}
