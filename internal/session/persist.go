package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/davidjurgens/potato-sub004/internal/annotation"
	"github.com/davidjurgens/potato-sub004/internal/phase"
	"github.com/davidjurgens/potato-sub004/internal/training"
)

// ErrStateNotFound is returned when a user has no persisted state on disk.
var ErrStateNotFound = errors.New("session state not found")

const stateFileName = "state.json"

// labelEntry serializes one label identity with its stored value.
type labelEntry struct {
	Schema string `json:"schema"`
	Name   string `json:"name"`
	Value  string `json:"value"`
}

// spanEntry serializes one span identity with its stored value.
type spanEntry struct {
	Schema string `json:"schema"`
	Name   string `json:"name"`
	Title  string `json:"title,omitempty"`
	Start  int    `json:"start"`
	End    int    `json:"end"`
	Value  string `json:"value"`
}

type positionDoc struct {
	Phase string `json:"phase"`
	Page  string `json:"page,omitempty"`
}

type responseDoc struct {
	Phase  string       `json:"phase"`
	Page   string       `json:"page,omitempty"`
	Labels []labelEntry `json:"labels,omitempty"`
	Spans  []spanEntry  `json:"spans,omitempty"`
}

// stateDoc is the single JSON document persisted per user. Round-tripping
// it reproduces an operationally identical session.
type stateDoc struct {
	UserID         string                  `json:"userId"`
	Ordering       []string                `json:"ordering"`
	CurrentIndex   int                     `json:"currentIndex"`
	Phase          string                  `json:"phase"`
	Page           string                  `json:"page,omitempty"`
	Completed      []positionDoc           `json:"completed,omitempty"`
	MaxAssignments int                     `json:"maxAssignments"`
	Labels         map[string][]labelEntry `json:"labels,omitempty"`
	Spans          map[string][]spanEntry  `json:"spans,omitempty"`
	Responses      []responseDoc           `json:"responses,omitempty"`
	Training       training.State          `json:"training"`
}

// Snapshot renders the session as its persistence document.
func (s *UserSession) Snapshot() ([]byte, error) {
	s.mu.Lock()
	doc := stateDoc{
		UserID:         s.id,
		Ordering:       append([]string(nil), s.ordering...),
		CurrentIndex:   s.currentIndex,
		Phase:          string(s.position.Phase),
		Page:           s.position.Page,
		MaxAssignments: s.maxAssignments,
		Labels:         make(map[string][]labelEntry),
		Spans:          make(map[string][]spanEntry),
		Training:       s.training.Snapshot(),
	}
	for _, pos := range s.completed {
		doc.Completed = append(doc.Completed, positionDoc{Phase: string(pos.Phase), Page: pos.Page})
	}

	for _, itemID := range s.annotations.ItemIDsWithLabels() {
		doc.Labels[itemID] = labelEntries(s.annotations.Labels(itemID))
	}
	for _, itemID := range s.annotations.ItemIDsWithSpans() {
		doc.Spans[itemID] = spanEntries(s.annotations.Spans(itemID))
	}

	positions := s.annotations.ResponsePositions()
	sort.Slice(positions, func(i, j int) bool {
		if positions[i].Phase != positions[j].Phase {
			return positions[i].Phase < positions[j].Phase
		}
		return positions[i].Page < positions[j].Page
	})
	for _, pos := range positions {
		doc.Responses = append(doc.Responses, responseDoc{
			Phase:  string(pos.Phase),
			Page:   pos.Page,
			Labels: labelEntries(s.annotations.Responses(pos)),
			Spans:  spanEntries(s.annotations.SpanResponses(pos)),
		})
	}
	s.mu.Unlock()

	return json.MarshalIndent(doc, "", "  ")
}

// Save writes the session document into its per-user directory under
// baseDir.
func (s *UserSession) Save(baseDir string) error {
	payload, err := s.Snapshot()
	if err != nil {
		return fmt.Errorf("marshal session %s: %w", s.id, err)
	}
	return WriteSnapshot(baseDir, s.id, payload)
}

// WriteSnapshot persists an already-marshaled session document. Callers
// that mirror the snapshot to other backends marshal exactly once and hand
// every backend the same bytes.
func WriteSnapshot(baseDir, userID string, payload []byte) error {
	dir := filepath.Join(baseDir, userID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, stateFileName), append(payload, '\n'), 0o644); err != nil {
		return fmt.Errorf("write session state: %w", err)
	}
	return nil
}

// Load reads a persisted session document from the user's directory.
// A missing file is reported as ErrStateNotFound.
func Load(baseDir, userID string, model *phase.Model, settings Settings) (*UserSession, error) {
	payload, err := os.ReadFile(filepath.Join(baseDir, userID, stateFileName))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("session %s: %w", userID, ErrStateNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read session state: %w", err)
	}
	return Restore(payload, model, settings)
}

// Restore rebuilds a session from its persistence document.
func Restore(payload []byte, model *phase.Model, settings Settings) (*UserSession, error) {
	var doc stateDoc
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, fmt.Errorf("decode session state: %w", err)
	}
	if doc.UserID == "" {
		return nil, fmt.Errorf("decode session state: missing userId")
	}

	s := New(doc.UserID, model, settings)
	s.mu.Lock()
	defer s.mu.Unlock()

	s.maxAssignments = doc.MaxAssignments
	s.ordering = append([]string(nil), doc.Ordering...)
	for _, itemID := range s.ordering {
		s.assigned[itemID] = struct{}{}
	}
	// Clamp a corrupt cursor instead of carrying the violation forward.
	s.currentIndex = doc.CurrentIndex
	if s.currentIndex < -1 || s.currentIndex >= len(s.ordering) {
		s.currentIndex = len(s.ordering) - 1
	}
	if len(s.ordering) == 0 {
		s.currentIndex = -1
	}

	s.position = phase.Position{Phase: phase.Normalize(doc.Phase), Page: doc.Page}
	for _, pos := range doc.Completed {
		s.completed = append(s.completed, phase.Position{Phase: phase.Normalize(pos.Phase), Page: pos.Page})
	}

	annotating := phase.Position{Phase: phase.Annotation}
	for itemID, entries := range doc.Labels {
		for _, entry := range entries {
			s.annotations.AddLabel(annotating, itemID, annotation.Label{Schema: entry.Schema, Name: entry.Name}, entry.Value)
		}
	}
	for itemID, entries := range doc.Spans {
		for _, entry := range entries {
			s.annotations.AddSpan(annotating, itemID, annotation.Span{
				Schema: entry.Schema,
				Name:   entry.Name,
				Title:  entry.Title,
				Start:  entry.Start,
				End:    entry.End,
			}, entry.Value)
		}
	}
	for _, response := range doc.Responses {
		pos := phase.Position{Phase: phase.Normalize(response.Phase), Page: response.Page}
		for _, entry := range response.Labels {
			s.annotations.AddLabel(pos, "", annotation.Label{Schema: entry.Schema, Name: entry.Name}, entry.Value)
		}
		for _, entry := range response.Spans {
			s.annotations.AddSpan(pos, "", annotation.Span{
				Schema: entry.Schema,
				Name:   entry.Name,
				Title:  entry.Title,
				Start:  entry.Start,
				End:    entry.End,
			}, entry.Value)
		}
	}

	s.training.Restore(doc.Training)
	return s, nil
}

func labelEntries(labels map[annotation.Label]string) []labelEntry {
	if len(labels) == 0 {
		return nil
	}
	entries := make([]labelEntry, 0, len(labels))
	for label, value := range labels {
		entries = append(entries, labelEntry{Schema: label.Schema, Name: label.Name, Value: value})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Schema != entries[j].Schema {
			return entries[i].Schema < entries[j].Schema
		}
		return entries[i].Name < entries[j].Name
	})
	return entries
}

func spanEntries(spans map[annotation.Span]string) []spanEntry {
	if len(spans) == 0 {
		return nil
	}
	entries := make([]spanEntry, 0, len(spans))
	for span, value := range spans {
		entries = append(entries, spanEntry{
			Schema: span.Schema,
			Name:   span.Name,
			Title:  span.Title,
			Start:  span.Start,
			End:    span.End,
			Value:  value,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Schema != entries[j].Schema {
			return entries[i].Schema < entries[j].Schema
		}
		if entries[i].Name != entries[j].Name {
			return entries[i].Name < entries[j].Name
		}
		return entries[i].Start < entries[j].Start
	})
	return entries
}
