package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PostgresStore is the durable archive behind the in-memory core: the item
// catalogue, the annotator directory, and the append-only annotation event
// log. All writes are fire-and-forget from the hot path's point of view;
// nothing here is consulted during assignment or navigation.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// UpsertItem archives one catalogue item. Items are immutable in the pool,
// so a conflict only refreshes the archived copy after a reload.
func (s *PostgresStore) UpsertItem(ctx context.Context, item ItemRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO items (id, text, categories)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET text = EXCLUDED.text, categories = EXCLUDED.categories
	`, item.ID, item.Text, strings.Join(item.Categories, ","))
	if err != nil {
		return fmt.Errorf("upsert item %s: %w", item.ID, err)
	}
	return nil
}

// ListItems returns the archived catalogue in insertion order.
func (s *PostgresStore) ListItems(ctx context.Context) ([]ItemRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, text, categories, created_at FROM items ORDER BY created_at, id
	`)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	var items []ItemRecord
	for rows.Next() {
		var item ItemRecord
		var categories string
		if err := rows.Scan(&item.ID, &item.Text, &categories, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		if categories != "" {
			item.Categories = strings.Split(categories, ",")
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// EnsureUser records an annotator on first sight and bumps updated_at on
// every later call.
func (s *PostgresStore) EnsureUser(ctx context.Context, userID string) (UserRecord, error) {
	var user UserRecord
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO users (id)
		VALUES ($1)
		ON CONFLICT (id) DO UPDATE SET updated_at = NOW()
		RETURNING id, created_at, updated_at
	`, userID).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return UserRecord{}, fmt.Errorf("ensure user %s: %w", userID, err)
	}
	return user, nil
}

// InsertAnnotationEvent appends one audit entry. The log is append-only;
// there is no update or delete path.
func (s *PostgresStore) InsertAnnotationEvent(ctx context.Context, event AnnotationEvent) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO annotation_events (id, user_id, item_id, kind, schema_name, label_name, value, title, start_pos, end_pos)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, event.ID, event.UserID, event.ItemID, event.Kind, event.Schema, event.Name,
		event.Value, event.Title, event.StartPos, event.EndPos)
	if err != nil {
		return fmt.Errorf("insert annotation event: %w", err)
	}
	return nil
}

// ListAnnotationEvents reads the audit log, newest first, honoring the
// filter's optional narrowing fields.
func (s *PostgresStore) ListAnnotationEvents(ctx context.Context, filter EventFilter) ([]AnnotationEvent, error) {
	query := `
		SELECT id, user_id, item_id, kind, schema_name, label_name, value, title, start_pos, end_pos, created_at
		FROM annotation_events
	`
	var clauses []string
	var args []any
	if filter.UserID != "" {
		args = append(args, filter.UserID)
		clauses = append(clauses, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if filter.ItemID != "" {
		args = append(args, filter.ItemID)
		clauses = append(clauses, fmt.Sprintf("item_id = $%d", len(args)))
	}
	if filter.Kind != "" {
		args = append(args, filter.Kind)
		clauses = append(clauses, fmt.Sprintf("kind = $%d", len(args)))
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at DESC"
	limit := filter.Limit
	if limit <= 0 || limit > 1000 {
		limit = 1000
	}
	args = append(args, limit)
	query += fmt.Sprintf(" LIMIT $%d", len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list annotation events: %w", err)
	}
	defer rows.Close()

	var events []AnnotationEvent
	for rows.Next() {
		var event AnnotationEvent
		if err := rows.Scan(&event.ID, &event.UserID, &event.ItemID, &event.Kind,
			&event.Schema, &event.Name, &event.Value, &event.Title,
			&event.StartPos, &event.EndPos, &event.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan annotation event: %w", err)
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

// SummaryCounts reports archive totals: items, users, annotation events.
func (s *PostgresStore) SummaryCounts(ctx context.Context) (int, int, int, error) {
	var items, users, events int
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM items),
			(SELECT COUNT(*) FROM users),
			(SELECT COUNT(*) FROM annotation_events)
	`).Scan(&items, &users, &events)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("summary counts: %w", err)
	}
	return items, users, events, nil
}
