// Package session owns the per-user state of a study: phase position,
// assigned-item navigation, the annotation store, training state, and
// behavioral telemetry. It also provides the process-wide registry and the
// persistence backends (one JSON document per user, optionally mirrored to
// Redis).
package session

import (
	"sync"

	"github.com/davidjurgens/potato-sub004/internal/annotation"
	"github.com/davidjurgens/potato-sub004/internal/behavior"
	"github.com/davidjurgens/potato-sub004/internal/phase"
	"github.com/davidjurgens/potato-sub004/internal/training"
)

// Settings carries the per-session configuration applied at creation.
type Settings struct {
	// MaxAssignments caps how many items this user may be assigned;
	// -1 means unlimited.
	MaxAssignments int
	// Training mistake ceilings; <= 0 disables each.
	MaxMistakes         int
	MaxQuestionMistakes int
}

// UserSession is the state of one annotator. All exported methods take the
// session lock; each session is only ever driven by its own conversation,
// so the lock never contends across users.
//
// Invariants: currentIndex stays within [-1, len(ordering)); -1 only before
// the first assignment. ordering is append-only except for the explicit
// Rebalance operation, which never touches annotated items.
type UserSession struct {
	mu sync.Mutex

	id       string
	model    *phase.Model
	position phase.Position
	// completed records every phase/page the user has advanced past.
	completed []phase.Position

	ordering     []string
	assigned     map[string]struct{}
	currentIndex int

	maxAssignments int

	annotations *annotation.Store
	training    *training.Tracker
	behavior    map[string]*behavior.Log
}

// New creates a fresh session positioned at the study's first phase.
func New(id string, model *phase.Model, settings Settings) *UserSession {
	return &UserSession{
		id:             id,
		model:          model,
		position:       model.First(),
		assigned:       make(map[string]struct{}),
		currentIndex:   -1,
		maxAssignments: settings.MaxAssignments,
		annotations:    annotation.NewStore(),
		training:       training.NewTracker(settings.MaxMistakes, settings.MaxQuestionMistakes),
		behavior:       make(map[string]*behavior.Log),
	}
}

func (s *UserSession) ID() string { return s.id }

// Position returns the current (phase, page).
func (s *UserSession) Position() phase.Position {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.position
}

// AdvancePhase moves to the next configured phase/page and records the one
// left behind. Advancing from DONE is a no-op.
func (s *UserSession) AdvancePhase() phase.Position {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.position.Phase == phase.Done {
		return s.position
	}
	s.completed = append(s.completed, s.position)
	s.position = s.model.Next(s.position)
	return s.position
}

// CompletedPositions returns the phase/page history in completion order.
func (s *UserSession) CompletedPositions() []phase.Position {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := make([]phase.Position, len(s.completed))
	copy(copied, s.completed)
	return copied
}

// AssignInstance appends an item to the navigation ordering. Idempotent:
// an id already present leaves the ordering untouched. The very first
// assignment moves the cursor from -1 to 0.
func (s *UserSession) AssignInstance(itemID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.assigned[itemID]; ok {
		return false
	}
	s.assigned[itemID] = struct{}{}
	s.ordering = append(s.ordering, itemID)
	if s.currentIndex == -1 {
		s.currentIndex = 0
	}
	return true
}

// HasAssigned reports membership in the ordering via the O(1) set mirror.
func (s *UserSession) HasAssigned(itemID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.assigned[itemID]
	return ok
}

// Ordering returns a copy of the assigned-item ordering.
func (s *UserSession) Ordering() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := make([]string, len(s.ordering))
	copy(copied, s.ordering)
	return copied
}

func (s *UserSession) CurrentIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentIndex
}

// CurrentItemID returns the item under the cursor, false when nothing has
// been assigned yet.
func (s *UserSession) CurrentItemID() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.currentIndex < 0 || s.currentIndex >= len(s.ordering) {
		return "", false
	}
	return s.ordering[s.currentIndex], true
}

// GoForward steps the cursor ahead by one. Returns false at the end without
// mutating the index; plain steps never wrap.
func (s *UserSession) GoForward() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.currentIndex+1 >= len(s.ordering) {
		return false
	}
	s.currentIndex++
	return true
}

// GoBack steps the cursor back by one with the same bounds rule.
func (s *UserSession) GoBack() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.currentIndex <= 0 {
		return false
	}
	s.currentIndex--
	return true
}

// GoToIndex jumps to an absolute index. Out-of-range input is ignored
// rather than corrupting the cursor.
func (s *UserSession) GoToIndex(i int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i < 0 || i >= len(s.ordering) {
		return false
	}
	s.currentIndex = i
	return true
}

// FindNextUnannotatedIndex scans forward from the cursor, wraps to the
// start, and finally checks the cursor itself, returning the first index
// whose item has no annotation. The wrap and the final self-check are both
// required: without the wrap, unannotated items behind the cursor are
// missed; without the self-check, a cursor sitting on the only unannotated
// item reports completion that hasn't happened.
func (s *UserSession) FindNextUnannotatedIndex() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scanUnannotated(+1)
}

// FindPrevUnannotatedIndex scans backward with the same wrap rule.
func (s *UserSession) FindPrevUnannotatedIndex() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scanUnannotated(-1)
}

func (s *UserSession) scanUnannotated(step int) (int, bool) {
	total := len(s.ordering)
	if total == 0 {
		return 0, false
	}
	start := s.currentIndex
	if start < 0 {
		start = 0
	}
	// Walk the full ring, ending on the cursor itself.
	for offset := 1; offset <= total; offset++ {
		index := ((start+step*offset)%total + total) % total
		if !s.annotations.HasAnnotated(s.ordering[index]) {
			return index, true
		}
	}
	return 0, false
}

// HasRemainingAssignments reports whether the per-user cap leaves room for
// more items; a cap of -1 means unlimited.
func (s *UserSession) HasRemainingAssignments() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxAssignments < 0 || len(s.ordering) < s.maxAssignments
}

// RemainingAssignments returns how many more items may be assigned, -1 for
// unlimited.
func (s *UserSession) RemainingAssignments() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.maxAssignments < 0 {
		return -1
	}
	remaining := s.maxAssignments - len(s.ordering)
	if remaining < 0 {
		return 0
	}
	return remaining
}

func (s *UserSession) MaxAssignments() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxAssignments
}

// Rebalance drops unannotated items from the tail of the ordering until at
// most target items remain. Annotated items and the item under the cursor
// are never removed, and the relative order of survivors is preserved.
func (s *UserSession) Rebalance(target int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if target < 0 {
		return 0
	}
	removed := 0
	for i := len(s.ordering) - 1; i >= 0 && len(s.ordering) > target; i-- {
		itemID := s.ordering[i]
		if i == s.currentIndex || s.annotations.HasAnnotated(itemID) {
			continue
		}
		s.ordering = append(s.ordering[:i], s.ordering[i+1:]...)
		delete(s.assigned, itemID)
		if i < s.currentIndex {
			s.currentIndex--
		}
		removed++
	}
	if len(s.ordering) == 0 {
		s.currentIndex = -1
	} else if s.currentIndex >= len(s.ordering) {
		s.currentIndex = len(s.ordering) - 1
	}
	return removed
}

// AddLabel records one label value, routed by the current phase.
func (s *UserSession) AddLabel(itemID string, label annotation.Label, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.annotations.AddLabel(s.position, itemID, label, value)
}

// AddSpan records one span value, routed by the current phase. Invalid
// spans are rejected at this boundary.
func (s *UserSession) AddSpan(itemID string, span annotation.Span, value string) bool {
	if !span.Valid() {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.annotations.AddSpan(s.position, itemID, span, value)
	return true
}

// SetAnnotation replaces one item's full annotation; see
// annotation.Store.SetAnnotation for the empty-map deletion rule. Spans
// with inverted or negative offsets are dropped before storing.
func (s *UserSession) SetAnnotation(itemID string, labels map[annotation.Label]string, spans map[annotation.Span]string) bool {
	validSpans := spans
	for span := range spans {
		if !span.Valid() {
			validSpans = make(map[annotation.Span]string, len(spans))
			for candidate, value := range spans {
				if candidate.Valid() {
					validSpans[candidate] = value
				}
			}
			break
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.annotations.SetAnnotation(itemID, labels, validSpans)
}

func (s *UserSession) HasAnnotated(itemID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.annotations.HasAnnotated(itemID)
}

func (s *UserSession) AnnotatedIDs() map[string]struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.annotations.AnnotatedIDs()
}

func (s *UserSession) AnnotationCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.annotations.Count()
}

func (s *UserSession) Labels(itemID string) map[annotation.Label]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.annotations.Labels(itemID)
}

func (s *UserSession) Spans(itemID string) map[annotation.Span]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.annotations.Spans(itemID)
}

func (s *UserSession) Responses(pos phase.Position) map[annotation.Label]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.annotations.Responses(pos)
}

// RecordTrainingAnswer forwards to the training tracker.
func (s *UserSession) RecordTrainingAnswer(questionID string, correct bool, attempts int, explanation string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.training.RecordAnswer(questionID, correct, attempts, explanation)
}

// RecordTrainingCategoryAnswer forwards to the training tracker.
func (s *UserSession) RecordTrainingCategoryAnswer(categories []string, correct bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.training.RecordCategoryAnswer(categories, correct)
}

func (s *UserSession) ShouldFailTraining() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.training.ShouldFailDueToMistakes()
}

func (s *UserSession) ShouldFailTrainingQuestion(questionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.training.ShouldFailQuestionDueToMistakes(questionID)
}

// QualifiedCategories derives the user's category qualifications from
// training accuracy.
func (s *UserSession) QualifiedCategories(threshold float64, minQuestions int) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.training.QualifiedCategories(threshold, minQuestions)
}

// TrainingSnapshot copies the training state for persistence.
func (s *UserSession) TrainingSnapshot() training.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.training.Snapshot()
}

// Behavior returns the telemetry log for an item, creating it on first
// touch. Callers stay within this session's conversation; the log itself
// is unlocked.
func (s *UserSession) Behavior(itemID string) *behavior.Log {
	s.mu.Lock()
	defer s.mu.Unlock()
	log, ok := s.behavior[itemID]
	if !ok {
		log = behavior.NewLog(itemID)
		s.behavior[itemID] = log
	}
	return log
}
