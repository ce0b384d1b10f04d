package task

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"taskmate/app/core/orchestrator/db"
	"taskmate/app/pkg/vector"
)

const selectColumns = `id, username, title, description, priority, status, COALESCE(due_date, ''), COALESCE(category, ''), tags, embedding, created_at, updated_at`

// SQLiteStore is the Store backed by the tasks table.
type SQLiteStore struct {
	db  *db.DB
	now func() time.Time
}

func NewStore(database *db.DB) *SQLiteStore {
	return &SQLiteStore{db: database, now: time.Now}
}

func (s *SQLiteStore) Create(ctx context.Context, in NewTask) (Task, error) {
	username := strings.TrimSpace(in.Username)
	if username == "" {
		return Task{}, fmt.Errorf("%w: username is required", ErrInvalid)
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return Task{}, fmt.Errorf("%w: title is required", ErrInvalid)
	}
	priority := in.Priority
	if priority == "" {
		priority = PriorityMedium
	}
	if _, ok := ParsePriority(string(priority)); !ok {
		return Task{}, fmt.Errorf("%w: priority %q", ErrInvalid, priority)
	}
	tags := in.Tags
	if tags == nil {
		tags = []string{}
	}

	now := s.now().Unix()
	t := Task{
		ID:          uuid.NewString(),
		Username:    username,
		Title:       title,
		Description: in.Description,
		Priority:    priority,
		Status:      StatusTodo,
		DueDate:     strings.TrimSpace(in.DueDate),
		Category:    strings.TrimSpace(in.Category),
		Tags:        tags,
		Embedding:   in.Embedding,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	tagsJSON, embeddingJSON, err := encodeJSONColumns(t.Tags, t.Embedding)
	if err != nil {
		return Task{}, err
	}
	query := `INSERT INTO tasks (id, username, title, description, priority, status, due_date, category, tags, embedding, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := s.db.Conn().ExecContext(ctx, query,
		t.ID, t.Username, t.Title, t.Description, string(t.Priority), string(t.Status),
		nullable(t.DueDate), nullable(t.Category), tagsJSON, embeddingJSON, t.CreatedAt, t.UpdatedAt,
	); err != nil {
		return Task{}, fmt.Errorf("insert task: %w", err)
	}
	return t, nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string, username string) (Task, error) {
	query := `SELECT ` + selectColumns + ` FROM tasks WHERE id = ? AND username = ?`
	t, err := scanTask(s.db.Conn().QueryRowContext(ctx, query, id, username))
	if errors.Is(err, sql.ErrNoRows) {
		return Task{}, ErrNotFound
	}
	if err != nil {
		return Task{}, err
	}
	return t, nil
}

func (s *SQLiteStore) List(ctx context.Context, username string) ([]Task, error) {
	return s.Search(ctx, username, Filter{})
}

func (s *SQLiteStore) Update(ctx context.Context, id string, username string, patch Patch) (Task, error) {
	tx, err := s.db.Conn().BeginTx(ctx, nil)
	if err != nil {
		return Task{}, err
	}
	defer tx.Rollback()

	current, err := scanTask(tx.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM tasks WHERE id = ? AND username = ?`, id, username))
	if errors.Is(err, sql.ErrNoRows) {
		return Task{}, ErrNotFound
	}
	if err != nil {
		return Task{}, err
	}

	updated, err := applyPatch(current, patch)
	if err != nil {
		return Task{}, err
	}
	updated.UpdatedAt = s.now().Unix()

	tagsJSON, embeddingJSON, err := encodeJSONColumns(updated.Tags, updated.Embedding)
	if err != nil {
		return Task{}, err
	}
	query := `UPDATE tasks SET title = ?, description = ?, priority = ?, status = ?, due_date = ?, category = ?, tags = ?, embedding = ?, updated_at = ? WHERE id = ? AND username = ?`
	if _, err := tx.ExecContext(ctx, query,
		updated.Title, updated.Description, string(updated.Priority), string(updated.Status),
		nullable(updated.DueDate), nullable(updated.Category), tagsJSON, embeddingJSON, updated.UpdatedAt,
		id, username,
	); err != nil {
		return Task{}, fmt.Errorf("update task: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Task{}, err
	}
	return updated, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, id string, username string) error {
	res, err := s.db.Conn().ExecContext(ctx, `DELETE FROM tasks WHERE id = ? AND username = ?`, id, username)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) Search(ctx context.Context, username string, filter Filter) ([]Task, error) {
	var (
		clauses = []string{"username = ?"}
		args    = []interface{}{username}
	)
	if filter.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.Priority != "" {
		clauses = append(clauses, "priority = ?")
		args = append(args, string(filter.Priority))
	}
	if strings.TrimSpace(filter.Category) != "" {
		clauses = append(clauses, "category = ?")
		args = append(args, strings.TrimSpace(filter.Category))
	}
	query := `SELECT ` + selectColumns + ` FROM tasks WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY created_at ASC, rowid ASC`

	items, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	needle := strings.ToLower(strings.TrimSpace(filter.Query))
	if needle == "" {
		return items, nil
	}
	matched := make([]Task, 0, len(items))
	for _, t := range items {
		if strings.Contains(strings.ToLower(t.Title), needle) || strings.Contains(strings.ToLower(t.Description), needle) {
			matched = append(matched, t)
		}
	}
	return matched, nil
}

func (s *SQLiteStore) SemanticSearch(ctx context.Context, embedding []float64, username string, topK int, threshold float64) ([]Task, error) {
	query := `SELECT ` + selectColumns + ` FROM tasks WHERE username = ? AND embedding IS NOT NULL ORDER BY created_at ASC, rowid ASC`
	items, err := s.query(ctx, query, username)
	if err != nil {
		return nil, err
	}
	ranked := vector.TopK(embedding, items, func(t Task) []float64 { return t.Embedding }, topK, threshold)
	out := make([]Task, 0, len(ranked))
	for _, r := range ranked {
		out = append(out, r.Item)
	}
	return out, nil
}

// MissingEmbeddings returns up to limit tasks of any user that were stored
// without a vector, oldest first.
func (s *SQLiteStore) MissingEmbeddings(ctx context.Context, limit int) ([]Task, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + selectColumns + ` FROM tasks WHERE embedding IS NULL ORDER BY created_at ASC, rowid ASC LIMIT ?`
	return s.query(ctx, query, limit)
}

// Stats counts the user's tasks per status. CompletionRate is a percentage
// rounded to one decimal.
func (s *SQLiteStore) Stats(ctx context.Context, username string) (Stats, error) {
	rows, err := s.db.Conn().QueryContext(ctx, `SELECT status, COUNT(1) FROM tasks WHERE username = ? GROUP BY status`, username)
	if err != nil {
		return Stats{}, err
	}
	defer rows.Close()

	var stats Stats
	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return Stats{}, err
		}
		stats.Total += count
		switch Status(status) {
		case StatusTodo:
			stats.Todo = count
		case StatusInProgress:
			stats.InProgress = count
		case StatusCompleted:
			stats.Completed = count
		}
	}
	if err := rows.Err(); err != nil {
		return Stats{}, err
	}
	if stats.Total > 0 {
		stats.CompletionRate = math.Round(float64(stats.Completed)*1000/float64(stats.Total)) / 10
	}
	return stats, nil
}

func (s *SQLiteStore) query(ctx context.Context, query string, args ...interface{}) ([]Task, error) {
	rows, err := s.db.Conn().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]Task, 0)
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, t)
	}
	return items, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTask(row rowScanner) (Task, error) {
	var (
		t             Task
		priority      string
		status        string
		tagsJSON      sql.NullString
		embeddingJSON sql.NullString
	)
	if err := row.Scan(&t.ID, &t.Username, &t.Title, &t.Description, &priority, &status, &t.DueDate, &t.Category,
		&tagsJSON, &embeddingJSON, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return Task{}, err
	}
	t.Priority = Priority(priority)
	t.Status = Status(status)
	t.Tags = []string{}
	if tagsJSON.Valid && tagsJSON.String != "" {
		if err := json.Unmarshal([]byte(tagsJSON.String), &t.Tags); err != nil {
			return Task{}, fmt.Errorf("decode tags for %s: %w", t.ID, err)
		}
	}
	if embeddingJSON.Valid && embeddingJSON.String != "" {
		if err := json.Unmarshal([]byte(embeddingJSON.String), &t.Embedding); err != nil {
			return Task{}, fmt.Errorf("decode embedding for %s: %w", t.ID, err)
		}
	}
	return t, nil
}

func applyPatch(t Task, patch Patch) (Task, error) {
	if patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		if title == "" {
			return Task{}, fmt.Errorf("%w: title cannot be empty", ErrInvalid)
		}
		t.Title = title
	}
	if patch.Description != nil {
		t.Description = *patch.Description
	}
	if patch.Priority != nil {
		p, ok := ParsePriority(string(*patch.Priority))
		if !ok {
			return Task{}, fmt.Errorf("%w: priority %q", ErrInvalid, *patch.Priority)
		}
		t.Priority = p
	}
	if patch.Status != nil {
		st, ok := ParseStatus(string(*patch.Status))
		if !ok {
			return Task{}, fmt.Errorf("%w: status %q", ErrInvalid, *patch.Status)
		}
		t.Status = st
	}
	if patch.DueDate != nil {
		t.DueDate = strings.TrimSpace(*patch.DueDate)
	}
	if patch.Category != nil {
		t.Category = strings.TrimSpace(*patch.Category)
	}
	if patch.Tags != nil {
		t.Tags = patch.Tags
	}
	if patch.Embedding != nil {
		t.Embedding = patch.Embedding
	}
	return t, nil
}

func encodeJSONColumns(tags []string, embedding []float64) (string, interface{}, error) {
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return "", nil, err
	}
	if len(embedding) == 0 {
		return string(tagsJSON), nil, nil
	}
	embeddingJSON, err := json.Marshal(embedding)
	if err != nil {
		return "", nil, fmt.Errorf("encode embedding: %w", err)
	}
	return string(tagsJSON), string(embeddingJSON), nil
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
