package task

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var ErrTaskNotFound = errors.New("task not found")

// Store is the task persistence contract. Every operation is scoped to an
// owner; a task id belonging to another user behaves exactly like a missing
// one.
type Store interface {
	ListByUser(ctx context.Context, userID string) ([]Task, error)
	Create(ctx context.Context, userID string, input Input) (Task, error)
	Update(ctx context.Context, id, userID string, patch Patch) (Task, error)
	Delete(ctx context.Context, id, userID string) error
	PurgeCompleted(ctx context.Context, cutoff time.Time, batchSize int) (int64, error)
}

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) ListByUser(ctx context.Context, userID string) ([]Task, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, title, description, due_date, priority, tags, completed, created_at, updated_at
		FROM tasks
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	tasks := make([]Task, 0)
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}

	return tasks, nil
}

func (r *Repository) Create(ctx context.Context, userID string, input Input) (Task, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return Task{}, fmt.Errorf("generate uuid v7: %w", err)
	}

	now := time.Now().UTC()
	t := Task{
		ID:          id.String(),
		UserID:      userID,
		Title:       input.Title,
		Description: input.Description,
		DueDate:     input.DueDate,
		Priority:    input.Priority,
		Tags:        input.Tags,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if t.Tags == nil {
		t.Tags = []string{}
	}

	tags, err := json.Marshal(t.Tags)
	if err != nil {
		return Task{}, fmt.Errorf("encode tags: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO tasks (id, user_id, title, description, due_date, priority, tags, completed, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, FALSE, $8, $8)
	`, t.ID, t.UserID, t.Title, t.Description, t.DueDate, t.Priority, tags, now)
	if err != nil {
		return Task{}, fmt.Errorf("insert task: %w", err)
	}

	return t, nil
}

func (r *Repository) Update(ctx context.Context, id, userID string, patch Patch) (Task, error) {
	var tags []byte
	if patch.Tags != nil {
		encoded, err := json.Marshal(*patch.Tags)
		if err != nil {
			return Task{}, fmt.Errorf("encode tags: %w", err)
		}
		tags = encoded
	}

	row := r.db.QueryRowContext(ctx, `
		UPDATE tasks
		SET
			title = COALESCE($3, title),
			description = COALESCE($4, description),
			due_date = COALESCE($5, due_date),
			priority = COALESCE($6, priority),
			tags = COALESCE($7, tags),
			completed = COALESCE($8, completed),
			updated_at = $9
		WHERE id = $1 AND user_id = $2
		RETURNING id, user_id, title, description, due_date, priority, tags, completed, created_at, updated_at
	`, id, userID, patch.Title, patch.Description, patch.DueDate, patch.Priority, tags, patch.Completed, time.Now().UTC())

	t, err := scanTask(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Task{}, ErrTaskNotFound
		}
		return Task{}, err
	}

	return t, nil
}

func (r *Repository) Delete(ctx context.Context, id, userID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return ErrTaskNotFound
	}

	return nil
}

// PurgeCompleted deletes completed tasks not touched since cutoff, in
// bounded batches so a cron invocation never runs away.
func (r *Repository) PurgeCompleted(ctx context.Context, cutoff time.Time, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = 500
	}

	res, err := r.db.ExecContext(ctx, `
		WITH stale AS (
			SELECT id
			FROM tasks
			WHERE completed AND updated_at < $1
			ORDER BY updated_at ASC
			LIMIT $2
		)
		DELETE FROM tasks t
		USING stale
		WHERE t.id = stale.id
	`, cutoff.UTC(), batchSize)
	if err != nil {
		return 0, fmt.Errorf("delete stale completed tasks: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("stale tasks rows affected: %w", err)
	}

	return affected, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (Task, error) {
	var t Task
	var dueDate sql.NullTime
	var tags []byte
	if err := row.Scan(&t.ID, &t.UserID, &t.Title, &t.Description, &dueDate, &t.Priority, &tags, &t.Completed, &t.CreatedAt, &t.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Task{}, err
		}
		return Task{}, fmt.Errorf("scan task: %w", err)
	}

	if dueDate.Valid {
		value := dueDate.Time.UTC()
		t.DueDate = &value
	}

	t.Tags = []string{}
	if len(tags) > 0 {
		if err := json.Unmarshal(tags, &t.Tags); err != nil {
			return Task{}, fmt.Errorf("decode tags: %w", err)
		}
	}

	return t, nil
}
