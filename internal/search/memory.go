package search

import (
	"sort"
	"strings"
	"sync"
)

// Memory is the fallback index used when Meilisearch is not configured or
// unreachable. Case-insensitive substring match over item text, category
// filter, deterministic id order.
type Memory struct {
	mu    sync.RWMutex
	items map[string]ItemRecord
}

func NewMemory() *Memory {
	return &Memory{items: make(map[string]ItemRecord)}
}

// IndexItems adds or replaces items in the index.
func (m *Memory) IndexItems(items []ItemRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, item := range items {
		m.items[item.ID] = item
	}
	return nil
}

// Search scans the whole index. Fine for in-memory pools; Meilisearch takes
// over for anything where this would matter.
func (m *Memory) Search(q Query) ([]Result, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	needle := strings.ToLower(strings.TrimSpace(q.Text))

	ids := make([]string, 0, len(m.items))
	for id := range m.items {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var matched []Result
	for _, id := range ids {
		item := m.items[id]
		if needle != "" && !strings.Contains(strings.ToLower(item.Text), needle) {
			continue
		}
		if q.Category != "" && !containsCategory(item.Categories, q.Category) {
			continue
		}
		matched = append(matched, Result{ID: item.ID, Text: item.Text, Categories: item.Categories})
	}

	total := len(matched)
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}
	if offset > total {
		offset = total
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return matched[offset:end], total, nil
}

func containsCategory(categories []string, want string) bool {
	for _, c := range categories {
		if c == want {
			return true
		}
	}
	return false
}
