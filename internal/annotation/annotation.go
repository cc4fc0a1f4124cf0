// Package annotation holds the typed label and span identities collected
// during a study, plus the per-user store that keeps item annotations
// separate from phase-scoped responses (consent answers, training answers).
package annotation

import (
	"github.com/davidjurgens/potato-sub004/internal/phase"
)

// Label identifies one selectable value slot inside an annotation schema.
// It is value-less: the stored value lives beside it in the store maps.
// Equality (and therefore map-key identity) is (Schema, Name).
type Label struct {
	Schema string
	Name   string
}

// Span identifies a labeled character range over an item's text. Start and
// End are character offsets with Start <= End. Title is a display attribute
// and participates in identity together with the offsets.
type Span struct {
	Schema string
	Name   string
	Title  string
	Start  int
	End    int
}

// Valid reports whether the span offsets are usable: non-negative and not
// inverted.
func (s Span) Valid() bool {
	return s.Start >= 0 && s.Start <= s.End
}

// Store keeps the labels and spans one user has produced. During the
// annotation phase writes land in the item-indexed maps; in every other
// phase they land in the (phase, page)-indexed response maps, so consent
// and training answers reuse the same machinery without polluting the
// annotation data.
//
// Store is not safe for concurrent use; the owning session serializes
// access.
type Store struct {
	labels    map[string]map[Label]string
	spans     map[string]map[Span]string
	responses map[phase.Position]map[Label]string
	spanResps map[phase.Position]map[Span]string
}

func NewStore() *Store {
	return &Store{
		labels:    make(map[string]map[Label]string),
		spans:     make(map[string]map[Span]string),
		responses: make(map[phase.Position]map[Label]string),
		spanResps: make(map[phase.Position]map[Span]string),
	}
}

// AddLabel records a single label value. pos decides the routing: annotation
// phase writes go to the item maps, everything else to the response maps.
func (s *Store) AddLabel(pos phase.Position, itemID string, label Label, value string) {
	if pos.Phase == phase.Annotation {
		if s.labels[itemID] == nil {
			s.labels[itemID] = make(map[Label]string)
		}
		s.labels[itemID][label] = value
		return
	}
	if s.responses[pos] == nil {
		s.responses[pos] = make(map[Label]string)
	}
	s.responses[pos][label] = value
}

// AddSpan records a single span value with the same routing rule as
// AddLabel.
func (s *Store) AddSpan(pos phase.Position, itemID string, span Span, value string) {
	if pos.Phase == phase.Annotation {
		if s.spans[itemID] == nil {
			s.spans[itemID] = make(map[Span]string)
		}
		s.spans[itemID][span] = value
		return
	}
	if s.spanResps[pos] == nil {
		s.spanResps[pos] = make(map[Span]string)
	}
	s.spanResps[pos][span] = value
}

// SetAnnotation replaces the full label and span set for one item. An empty
// incoming label map deletes the stored entry rather than leaving an empty
// map behind, so "has any annotation" checks stay exact; spans behave the
// same way. Returns whether the stored state changed.
func (s *Store) SetAnnotation(itemID string, labels map[Label]string, spans map[Span]string) bool {
	changed := false

	if len(labels) == 0 {
		if _, had := s.labels[itemID]; had {
			delete(s.labels, itemID)
			changed = true
		}
	} else if !labelMapsEqual(s.labels[itemID], labels) {
		replacement := make(map[Label]string, len(labels))
		for label, value := range labels {
			replacement[label] = value
		}
		s.labels[itemID] = replacement
		changed = true
	}

	if len(spans) == 0 {
		if _, had := s.spans[itemID]; had {
			delete(s.spans, itemID)
			changed = true
		}
	} else if !spanMapsEqual(s.spans[itemID], spans) {
		replacement := make(map[Span]string, len(spans))
		for span, value := range spans {
			replacement[span] = value
		}
		s.spans[itemID] = replacement
		changed = true
	}

	return changed
}

// HasAnnotated reports whether the item carries any label or any span. The
// union, not either alone, defines "annotated".
func (s *Store) HasAnnotated(itemID string) bool {
	return len(s.labels[itemID]) > 0 || len(s.spans[itemID]) > 0
}

// AnnotatedIDs returns the union of label-annotated and span-annotated item
// ids.
func (s *Store) AnnotatedIDs() map[string]struct{} {
	ids := make(map[string]struct{}, len(s.labels))
	for itemID, labels := range s.labels {
		if len(labels) > 0 {
			ids[itemID] = struct{}{}
		}
	}
	for itemID, spans := range s.spans {
		if len(spans) > 0 {
			ids[itemID] = struct{}{}
		}
	}
	return ids
}

// Count is the number of distinct annotated items; an item carrying both a
// label and a span counts once.
func (s *Store) Count() int {
	return len(s.AnnotatedIDs())
}

// Labels returns a copy of the label map for one item, nil when absent.
func (s *Store) Labels(itemID string) map[Label]string {
	stored, ok := s.labels[itemID]
	if !ok {
		return nil
	}
	copied := make(map[Label]string, len(stored))
	for label, value := range stored {
		copied[label] = value
	}
	return copied
}

// Spans returns a copy of the span map for one item, nil when absent.
func (s *Store) Spans(itemID string) map[Span]string {
	stored, ok := s.spans[itemID]
	if !ok {
		return nil
	}
	copied := make(map[Span]string, len(stored))
	for span, value := range stored {
		copied[span] = value
	}
	return copied
}

// Responses returns a copy of the label responses recorded at a phase/page.
func (s *Store) Responses(pos phase.Position) map[Label]string {
	stored, ok := s.responses[pos]
	if !ok {
		return nil
	}
	copied := make(map[Label]string, len(stored))
	for label, value := range stored {
		copied[label] = value
	}
	return copied
}

// SpanResponses returns a copy of the span responses recorded at a
// phase/page.
func (s *Store) SpanResponses(pos phase.Position) map[Span]string {
	stored, ok := s.spanResps[pos]
	if !ok {
		return nil
	}
	copied := make(map[Span]string, len(stored))
	for span, value := range stored {
		copied[span] = value
	}
	return copied
}

// ItemIDsWithLabels lists every item id with a stored label map, for
// serialization.
func (s *Store) ItemIDsWithLabels() []string {
	ids := make([]string, 0, len(s.labels))
	for itemID := range s.labels {
		ids = append(ids, itemID)
	}
	return ids
}

// ItemIDsWithSpans lists every item id with a stored span map, for
// serialization.
func (s *Store) ItemIDsWithSpans() []string {
	ids := make([]string, 0, len(s.spans))
	for itemID := range s.spans {
		ids = append(ids, itemID)
	}
	return ids
}

// ResponsePositions lists every phase/page that recorded label or span
// responses, for serialization.
func (s *Store) ResponsePositions() []phase.Position {
	seen := make(map[phase.Position]struct{}, len(s.responses))
	positions := make([]phase.Position, 0, len(s.responses))
	for pos := range s.responses {
		seen[pos] = struct{}{}
		positions = append(positions, pos)
	}
	for pos := range s.spanResps {
		if _, ok := seen[pos]; !ok {
			positions = append(positions, pos)
		}
	}
	return positions
}

func labelMapsEqual(a, b map[Label]string) bool {
	if len(a) != len(b) {
		return false
	}
	for label, value := range a {
		if other, ok := b[label]; !ok || other != value {
			return false
		}
	}
	return true
}

func spanMapsEqual(a, b map[Span]string) bool {
	if len(a) != len(b) {
		return false
	}
	for span, value := range a {
		if other, ok := b[span]; !ok || other != value {
			return false
		}
	}
	return true
}
