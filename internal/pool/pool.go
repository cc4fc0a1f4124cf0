// Package pool holds the shared item catalogue: the immutable items under
// annotation, the category index derived at load time, and the mutable
// per-item counters contended by concurrent annotators.
package pool

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// Uncategorized is the bucket for items whose configured category field is
// absent or empty.
const Uncategorized = "uncategorized"

// Item is one unit of data to be annotated. Immutable once loaded.
type Item struct {
	ID         string            `json:"id"`
	Text       string            `json:"text"`
	Categories []string          `json:"categories,omitempty"`
	Properties map[string]string `json:"properties,omitempty"`
}

type itemCounters struct {
	// annotators holds distinct user ids; count mirrors its size and is
	// read without the pool lock on the assignment hot path.
	annotators map[string]struct{}
	count      atomic.Int64
	// labelValues tracks distinct observed values per label key, the
	// disagreement signal for max-diversity assignment.
	labelValues map[string]map[string]struct{}
}

// Pool is the shared catalogue. Items and the category index are immutable
// after load; the per-item counters are the only mutable state and are
// guarded by mu. Reads of the annotation count go through an atomic so the
// assignment decision never takes the pool lock.
type Pool struct {
	mu         sync.Mutex
	items      map[string]*Item
	order      []string
	byCategory map[string]map[string]struct{}
	counters   map[string]*itemCounters
}

func New() *Pool {
	return &Pool{
		items:      make(map[string]*Item),
		byCategory: make(map[string]map[string]struct{}),
		counters:   make(map[string]*itemCounters),
	}
}

// AddItem ingests one item from its raw property bag. categoryField names
// the property holding the category tag(s): a string value becomes a
// singleton set, a list becomes that set verbatim, anything else lands in
// the uncategorized bucket. textField names the display-text property.
// Duplicate ids are rejected.
func (p *Pool) AddItem(id string, properties map[string]any, textField, categoryField string) error {
	if id == "" {
		return fmt.Errorf("item id must not be empty")
	}

	categories := extractCategories(properties, categoryField)
	item := &Item{
		ID:         id,
		Categories: categories,
		Properties: make(map[string]string, len(properties)),
	}
	for key, value := range properties {
		if text, ok := value.(string); ok {
			item.Properties[key] = text
		} else {
			item.Properties[key] = fmt.Sprint(value)
		}
	}
	if textField != "" {
		item.Text = item.Properties[textField]
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.items[id]; exists {
		return fmt.Errorf("duplicate item id %q", id)
	}
	p.items[id] = item
	p.order = append(p.order, id)
	p.counters[id] = &itemCounters{
		annotators:  make(map[string]struct{}),
		labelValues: make(map[string]map[string]struct{}),
	}
	for _, category := range categories {
		if p.byCategory[category] == nil {
			p.byCategory[category] = make(map[string]struct{})
		}
		p.byCategory[category][id] = struct{}{}
	}
	return nil
}

func extractCategories(properties map[string]any, categoryField string) []string {
	if categoryField == "" {
		return []string{Uncategorized}
	}
	switch value := properties[categoryField].(type) {
	case string:
		if value == "" {
			return []string{Uncategorized}
		}
		return []string{value}
	case []string:
		if len(value) == 0 {
			return []string{Uncategorized}
		}
		copied := make([]string, len(value))
		copy(copied, value)
		return copied
	case []any:
		var categories []string
		for _, entry := range value {
			if tag, ok := entry.(string); ok && tag != "" {
				categories = append(categories, tag)
			}
		}
		if len(categories) == 0 {
			return []string{Uncategorized}
		}
		return categories
	default:
		return []string{Uncategorized}
	}
}

// Get returns the item for an id, nil when unknown.
func (p *Pool) Get(id string) *Item {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.items[id]
}

// Len is the number of loaded items.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.order)
}

// Order returns the item ids in load order. The fixed-order strategy
// depends on this being deterministic across processes for the same input.
func (p *Pool) Order() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	copied := make([]string, len(p.order))
	copy(copied, p.order)
	return copied
}

// Categories lists every category bucket present in the pool.
func (p *Pool) Categories() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	categories := make([]string, 0, len(p.byCategory))
	for category := range p.byCategory {
		categories = append(categories, category)
	}
	return categories
}

// ItemsByCategories returns the union of membership across the given
// categories (OR semantics).
func (p *Pool) ItemsByCategories(categories []string) map[string]struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	union := make(map[string]struct{})
	for _, category := range categories {
		for id := range p.byCategory[category] {
			union[id] = struct{}{}
		}
	}
	return union
}

// RecordAnnotator registers userID as an annotator of itemID. Returns true
// only the first time that pair is seen; the public count increments
// exactly once per distinct annotator. Unknown items are ignored.
func (p *Pool) RecordAnnotator(itemID, userID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	counters, ok := p.counters[itemID]
	if !ok {
		return false
	}
	if _, seen := counters.annotators[userID]; seen {
		return false
	}
	counters.annotators[userID] = struct{}{}
	counters.count.Add(1)
	return true
}

// AnnotationCount is the number of distinct annotators seen for an item.
// The counters map lookup takes the pool lock briefly; the count itself is
// an atomic load, so the lock never covers the annotator set.
func (p *Pool) AnnotationCount(itemID string) int {
	p.mu.Lock()
	counters, ok := p.counters[itemID]
	p.mu.Unlock()
	if !ok {
		return 0
	}
	return int(counters.count.Load())
}

// ObserveLabelValue feeds the disagreement signal: it records that some
// annotator chose value for labelKey on itemID.
func (p *Pool) ObserveLabelValue(itemID, labelKey, value string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	counters, ok := p.counters[itemID]
	if !ok {
		return
	}
	if counters.labelValues[labelKey] == nil {
		counters.labelValues[labelKey] = make(map[string]struct{})
	}
	counters.labelValues[labelKey][value] = struct{}{}
}

// HasDisagreement reports whether any label on the item has seen at least
// two distinct values across annotators.
func (p *Pool) HasDisagreement(itemID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	counters, ok := p.counters[itemID]
	if !ok {
		return false
	}
	for _, values := range counters.labelValues {
		if len(values) >= 2 {
			return true
		}
	}
	return false
}
