package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/davidjurgens/potato-sub004/internal/annotation"
	"github.com/davidjurgens/potato-sub004/internal/assign"
	"github.com/davidjurgens/potato-sub004/internal/config"
	"github.com/davidjurgens/potato-sub004/internal/export"
	"github.com/davidjurgens/potato-sub004/internal/history"
	"github.com/davidjurgens/potato-sub004/internal/phase"
	"github.com/davidjurgens/potato-sub004/internal/pool"
	"github.com/davidjurgens/potato-sub004/internal/search"
	"github.com/davidjurgens/potato-sub004/internal/session"
	"github.com/davidjurgens/potato-sub004/internal/store"
	"github.com/davidjurgens/potato-sub004/internal/util"
)

// Archive is the durable backend the service writes through to. Event and
// user writes are best-effort; the in-memory core never waits on them. The
// read side backs the audit endpoints.
type Archive interface {
	Ping(ctx context.Context) error
	EnsureUser(ctx context.Context, userID string) (store.UserRecord, error)
	InsertAnnotationEvent(ctx context.Context, event store.AnnotationEvent) error
	UpsertItem(ctx context.Context, item store.ItemRecord) error
	ListItems(ctx context.Context) ([]store.ItemRecord, error)
	ListAnnotationEvents(ctx context.Context, filter store.EventFilter) ([]store.AnnotationEvent, error)
	SummaryCounts(ctx context.Context) (int, int, int, error)
}

// UserState is the read-model for one annotator.
type UserState struct {
	UserID       string   `json:"userId"`
	Phase        string   `json:"phase"`
	Page         string   `json:"page,omitempty"`
	Ordering     []string `json:"ordering"`
	CurrentIndex int      `json:"currentIndex"`
	Assigned     int      `json:"assigned"`
	Annotated    int      `json:"annotated"`
	Remaining    int      `json:"remaining"`
}

// ItemView is the item payload handed to clients.
type ItemView struct {
	ID         string   `json:"id"`
	Text       string   `json:"text"`
	Categories []string `json:"categories"`
	Index      int      `json:"index"`
}

type Service struct {
	task     *config.Task
	manager  *session.Manager
	pool     *pool.Pool
	engine   *assign.Engine
	stateDir string

	// Optional collaborators, each nil when not configured.
	archive   Archive
	search    *search.Service
	history   *history.Service
	snapshots *session.RedisStore
}

// Options carries the optional backends.
type Options struct {
	Archive   Archive
	Search    *search.Service
	History   *history.Service
	Snapshots *session.RedisStore
}

func NewService(task *config.Task, manager *session.Manager, itemPool *pool.Pool, engine *assign.Engine, stateDir string, opts Options) *Service {
	svc := &Service{
		task:      task,
		manager:   manager,
		pool:      itemPool,
		engine:    engine,
		stateDir:  stateDir,
		search:    opts.Search,
		history:   opts.History,
		snapshots: opts.Snapshots,
		archive:   opts.Archive,
	}
	return svc
}

// Ping reports archive connectivity for readiness checks. Without an
// archive the in-memory core is always ready.
func (s *Service) Ping(ctx context.Context) error {
	if s.archive == nil {
		return nil
	}
	return s.archive.Ping(ctx)
}

// GetOrCreateSession returns the one session object for a user, creating
// it on first sight.
func (s *Service) GetOrCreateSession(ctx context.Context, userID string) (*session.UserSession, error) {
	if userID == "" {
		return nil, validationError("user id is required")
	}
	sess := s.manager.GetOrCreate(userID)
	metricActiveSessions.Set(float64(s.manager.Count()))

	if s.archive != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if _, err := s.archive.EnsureUser(ctx, userID); err != nil {
				log.Printf("app: ensure user %s in archive: %v", userID, err)
			}
		}()
	}
	return sess, nil
}

// AdvancePhase moves the user one step through the phase model and returns
// the new position.
func (s *Service) AdvancePhase(userID string) (phase.Position, error) {
	sess, ok := s.manager.Get(userID)
	if !ok {
		return phase.Position{}, notFoundError("unknown user")
	}
	pos := sess.AdvancePhase()
	metricPhaseAdvances.Inc()
	return pos, nil
}

// SubmitAnnotation is the sole write path for annotation content. It
// replaces the item's labels and spans, bumps the item's global annotator
// count exactly once per new distinct annotator, and archives the event
// log without blocking the caller. Returns whether stored state changed.
func (s *Service) SubmitAnnotation(ctx context.Context, userID, itemID string, labels map[annotation.Label]string, spans map[annotation.Span]string) (bool, error) {
	sess, ok := s.manager.Get(userID)
	if !ok {
		return false, notFoundError("unknown user")
	}
	if s.pool.Get(itemID) == nil {
		return false, notFoundError(fmt.Sprintf("unknown item %q", itemID))
	}
	if !sess.HasAssigned(itemID) {
		return false, validationError(fmt.Sprintf("item %q is not assigned to user %q", itemID, userID))
	}

	changed := sess.SetAnnotation(itemID, labels, spans)
	if changed {
		sess.Behavior(itemID).RecordChange(fmt.Sprintf("set %d labels, %d spans", len(labels), len(spans)))
	}

	if sess.HasAnnotated(itemID) {
		if s.pool.RecordAnnotator(itemID, userID) {
			log.Printf("app: item %s gained annotator %s (count %d)", itemID, userID, s.pool.AnnotationCount(itemID))
		}
		for label, value := range labels {
			s.pool.ObserveLabelValue(itemID, label.Schema+"/"+label.Name, value)
		}
	}

	metricSubmissions.Inc()

	if changed && s.archive != nil {
		events := annotationEvents(userID, itemID, labels, spans)
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			for _, event := range events {
				if err := s.archive.InsertAnnotationEvent(ctx, event); err != nil {
					log.Printf("app: archive annotation event for %s/%s: %v", userID, itemID, err)
				}
			}
		}()
	}
	return changed, nil
}

func annotationEvents(userID, itemID string, labels map[annotation.Label]string, spans map[annotation.Span]string) []store.AnnotationEvent {
	events := make([]store.AnnotationEvent, 0, len(labels)+len(spans))
	now := time.Now().UTC()
	for label, value := range labels {
		events = append(events, store.AnnotationEvent{
			ID:        util.NewID("evt"),
			UserID:    userID,
			ItemID:    itemID,
			Kind:      "label",
			Schema:    label.Schema,
			Name:      label.Name,
			Value:     value,
			CreatedAt: now,
		})
	}
	for span, value := range spans {
		events = append(events, store.AnnotationEvent{
			ID:        util.NewID("evt"),
			UserID:    userID,
			ItemID:    itemID,
			Kind:      "span",
			Schema:    span.Schema,
			Name:      span.Name,
			Value:     value,
			Title:     span.Title,
			StartPos:  span.Start,
			EndPos:    span.End,
			CreatedAt: now,
		})
	}
	return events
}

// NextItem returns what the user should work on: the next unannotated item
// already assigned to them, or a freshly assigned one. Returns nil when
// every reachable item is done.
func (s *Service) NextItem(userID string) (*ItemView, error) {
	sess, ok := s.manager.Get(userID)
	if !ok {
		return nil, notFoundError("unknown user")
	}

	if idx, found := sess.FindNextUnannotatedIndex(); found {
		s.moveTo(sess, idx, "next")
		return s.itemAt(sess, idx), nil
	}

	assigned := s.engine.AssignInstancesToUser(sess)
	if assigned > 0 {
		metricAssignments.Add(float64(assigned))
		if idx, found := sess.FindNextUnannotatedIndex(); found {
			s.moveTo(sess, idx, "assign")
			return s.itemAt(sess, idx), nil
		}
	}
	return nil, nil
}

// moveTo repositions the session and logs the arrival on the destination
// item's navigation trail.
func (s *Service) moveTo(sess *session.UserSession, idx int, direction string) {
	from := sess.CurrentIndex()
	if !sess.GoToIndex(idx) || from == idx {
		return
	}
	ordering := sess.Ordering()
	if idx >= 0 && idx < len(ordering) {
		sess.Behavior(ordering[idx]).RecordNavigation(direction, from, idx)
	}
}

func (s *Service) itemAt(sess *session.UserSession, idx int) *ItemView {
	ordering := sess.Ordering()
	if idx < 0 || idx >= len(ordering) {
		return nil
	}
	item := s.pool.Get(ordering[idx])
	if item == nil {
		return nil
	}
	return &ItemView{
		ID:         item.ID,
		Text:       item.Text,
		Categories: item.Categories,
		Index:      idx,
	}
}

// GetUserState returns the user's current standing. Unknown users get an
// empty state, not an error.
func (s *Service) GetUserState(userID string) UserState {
	sess, ok := s.manager.Get(userID)
	if !ok {
		return UserState{UserID: userID, CurrentIndex: -1, Ordering: []string{}}
	}
	pos := sess.Position()
	ordering := sess.Ordering()
	return UserState{
		UserID:       userID,
		Phase:        string(pos.Phase),
		Page:         pos.Page,
		Ordering:     ordering,
		CurrentIndex: sess.CurrentIndex(),
		Assigned:     len(ordering),
		Annotated:    sess.AnnotationCount(),
		Remaining:    sess.RemainingAssignments(),
	}
}

// SubmitTrainingAnswer records one training verdict and reports whether
// the user has crossed a mistake ceiling.
func (s *Service) SubmitTrainingAnswer(userID, questionID string, correct bool, attempts int, explanation string, categories []string) (failedTraining, failedQuestion bool, err error) {
	sess, ok := s.manager.Get(userID)
	if !ok {
		return false, false, notFoundError("unknown user")
	}
	if questionID == "" {
		return false, false, validationError("question id is required")
	}
	sess.RecordTrainingAnswer(questionID, correct, attempts, explanation)
	if len(categories) > 0 {
		sess.RecordTrainingCategoryAnswer(categories, correct)
	}
	return sess.ShouldFailTraining(), sess.ShouldFailTrainingQuestion(questionID), nil
}

// RecordBehavior appends one interaction event to the user's telemetry for
// an item and returns the event id.
func (s *Service) RecordBehavior(userID, itemID, eventType, target, clientTime string, metadata map[string]string) (string, error) {
	sess, ok := s.manager.Get(userID)
	if !ok {
		return "", notFoundError("unknown user")
	}
	if eventType == "" {
		return "", validationError("event type is required")
	}
	return sess.Behavior(itemID).RecordEvent(eventType, target, clientTime, metadata), nil
}

// RecordAssist logs one AI-assistance request/response exchange against
// the item's telemetry.
func (s *Service) RecordAssist(userID, itemID, request, response string) error {
	sess, ok := s.manager.Get(userID)
	if !ok {
		return notFoundError("unknown user")
	}
	if request == "" {
		return validationError("assist request is required")
	}
	sess.Behavior(itemID).RecordAssist(request, response)
	return nil
}

// ArchiveCatalog writes the item pool through to the archive so the study
// stays queryable after the process exits. Runs synchronously at startup.
func (s *Service) ArchiveCatalog(ctx context.Context) (int, error) {
	if s.archive == nil {
		return 0, unavailableError("archive is not configured")
	}
	archived := 0
	for _, id := range s.pool.Order() {
		item := s.pool.Get(id)
		if item == nil {
			continue
		}
		record := store.ItemRecord{ID: item.ID, Text: item.Text, Categories: item.Categories}
		if err := s.archive.UpsertItem(ctx, record); err != nil {
			return archived, fmt.Errorf("archive item %s: %w", item.ID, err)
		}
		archived++
	}
	return archived, nil
}

// ArchiveSummary reports the archive totals.
type ArchiveSummary struct {
	Items  int `json:"items"`
	Users  int `json:"users"`
	Events int `json:"events"`
}

func (s *Service) ArchiveSummary(ctx context.Context) (ArchiveSummary, error) {
	if s.archive == nil {
		return ArchiveSummary{}, unavailableError("archive is not configured")
	}
	items, users, events, err := s.archive.SummaryCounts(ctx)
	if err != nil {
		return ArchiveSummary{}, fmt.Errorf("archive summary: %w", err)
	}
	return ArchiveSummary{Items: items, Users: users, Events: events}, nil
}

// ArchiveEvents reads the append-only annotation audit trail.
func (s *Service) ArchiveEvents(ctx context.Context, filter store.EventFilter) ([]store.AnnotationEvent, error) {
	if s.archive == nil {
		return nil, unavailableError("archive is not configured")
	}
	events, err := s.archive.ListAnnotationEvents(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("archive events: %w", err)
	}
	return events, nil
}

// ArchiveItems reads the archived item catalogue.
func (s *Service) ArchiveItems(ctx context.Context) ([]store.ItemRecord, error) {
	if s.archive == nil {
		return nil, unavailableError("archive is not configured")
	}
	items, err := s.archive.ListItems(ctx)
	if err != nil {
		return nil, fmt.Errorf("archive items: %w", err)
	}
	return items, nil
}

// SaveSession persists the user's state document to disk and mirrors it to
// the optional snapshot and history backends.
func (s *Service) SaveSession(ctx context.Context, userID string) error {
	sess, ok := s.manager.Get(userID)
	if !ok {
		return notFoundError("unknown user")
	}
	payload, err := sess.Snapshot()
	if err != nil {
		return fmt.Errorf("snapshot session %s: %w", userID, err)
	}
	if err := session.WriteSnapshot(s.stateDir, userID, payload); err != nil {
		return fmt.Errorf("save session %s: %w", userID, err)
	}
	if s.snapshots != nil {
		if err := s.snapshots.SaveSnapshot(ctx, userID, payload); err != nil {
			log.Printf("app: redis snapshot for %s: %v", userID, err)
		}
	}
	if s.history != nil {
		if _, err := s.history.Record(userID, payload, "Save session state"); err != nil {
			log.Printf("app: history record for %s: %v", userID, err)
		}
	}
	return nil
}

// SessionHistory lists the recorded states for a user, newest first.
func (s *Service) SessionHistory(userID string, limit int) ([]history.CommitInfo, error) {
	if s.history == nil {
		return nil, unavailableError("session history is not configured")
	}
	if _, ok := s.manager.Get(userID); !ok {
		return nil, notFoundError("unknown user")
	}
	commits, err := s.history.History(userID, limit)
	if err != nil {
		return nil, fmt.Errorf("session history %s: %w", userID, err)
	}
	return commits, nil
}

// SearchItems queries the item index.
func (s *Service) SearchItems(q search.Query) (search.Response, error) {
	if s.search == nil {
		return search.Response{}, unavailableError("search is not configured")
	}
	return s.search.Search(q), nil
}

// TaskName implements export.Source.
func (s *Service) TaskName() string { return s.task.Name }

// AnnotationRows implements export.Source: every stored label and span
// across every session, flattened.
func (s *Service) AnnotationRows() []export.AnnotationRow {
	var rows []export.AnnotationRow
	for _, sess := range s.manager.Sessions() {
		userID := sess.ID()
		for _, itemID := range sess.Ordering() {
			for label, value := range sess.Labels(itemID) {
				rows = append(rows, export.AnnotationRow{
					UserID: userID,
					ItemID: itemID,
					Kind:   "label",
					Schema: label.Schema,
					Name:   label.Name,
					Value:  value,
				})
			}
			for span, value := range sess.Spans(itemID) {
				rows = append(rows, export.AnnotationRow{
					UserID: userID,
					ItemID: itemID,
					Kind:   "span",
					Schema: span.Schema,
					Name:   span.Name,
					Value:  value,
					Title:  span.Title,
					Start:  span.Start,
					End:    span.End,
				})
			}
		}
	}
	return rows
}

// UserProgress implements export.Source.
func (s *Service) UserProgress() []export.UserProgress {
	var users []export.UserProgress
	for _, sess := range s.manager.Sessions() {
		pos := sess.Position()
		users = append(users, export.UserProgress{
			UserID:    sess.ID(),
			Phase:     string(pos.Phase),
			Page:      pos.Page,
			Assigned:  len(sess.Ordering()),
			Annotated: sess.AnnotationCount(),
		})
	}
	return users
}

// ResetSession removes a user's session from the registry. Their state
// document on disk is untouched; the next GetOrCreateSession resumes it.
func (s *Service) ResetSession(userID string) error {
	if !s.manager.Delete(userID) {
		return notFoundError("unknown user")
	}
	metricActiveSessions.Set(float64(s.manager.Count()))
	return nil
}
