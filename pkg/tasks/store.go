package tasks

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
)

const taskColumns = "id, user_id, title, description, completed, priority, due_date, created_at, updated_at"

// DB is the slice of pgxpool.Pool the store needs. Every operation runs in
// its own transaction: commit on success, rollback on any error.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store performs ownership-filtered CRUD against the tasks table. Every
// id-addressed query carries the owner in its predicate; there is no path
// that looks a task up by id alone.
type Store struct {
	db DB
}

func NewStore(db DB) *Store {
	return &Store{db: db}
}

func (s *Store) withTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Create validates the input, persists a new task owned by owner and returns
// it with its assigned id. New tasks always start incomplete with both
// timestamps equal.
func (s *Store) Create(ctx context.Context, owner string, in CreateInput) (Task, error) {
	in, err := in.validate()
	if err != nil {
		return Task{}, err
	}
	now := time.Now().UTC()
	task := Task{
		UserID:      owner,
		Title:       in.Title,
		Description: in.Description,
		Completed:   false,
		Priority:    in.Priority,
		DueDate:     in.DueDate,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err = s.withTx(ctx, func(tx pgx.Tx) error {
		return tx.QueryRow(ctx, `
			INSERT INTO tasks (user_id, title, description, completed, priority, due_date, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
			RETURNING id
		`, task.UserID, task.Title, task.Description, task.Completed, task.Priority, dueDateValue(task.DueDate), task.CreatedAt, task.UpdatedAt).Scan(&task.ID)
	})
	if err != nil {
		return Task{}, err
	}
	return task, nil
}

// List returns all tasks owned by owner, most recently created first.
func (s *Store) List(ctx context.Context, owner string) ([]Task, error) {
	out := []Task{}
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			SELECT `+taskColumns+`
			FROM tasks WHERE user_id=$1
			ORDER BY created_at DESC
		`, owner)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			task, err := scanTask(rows)
			if err != nil {
				return err
			}
			out = append(out, task)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Get returns the task under the owner+id predicate, or ErrNotFound.
func (s *Store) Get(ctx context.Context, owner string, id int64) (Task, error) {
	var task Task
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		var err error
		task, err = getForOwner(ctx, tx, owner, id, "")
		return err
	})
	if err != nil {
		return Task{}, err
	}
	return task, nil
}

// Replace overwrites every mutable field of the task and refreshes
// updated_at. Validation happens before any storage access.
func (s *Store) Replace(ctx context.Context, owner string, id int64, in ReplaceInput) (Task, error) {
	in, err := in.validate()
	if err != nil {
		return Task{}, err
	}
	var task Task
	err = s.withTx(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			UPDATE tasks
			SET title=$1, description=$2, completed=$3, priority=$4, due_date=$5, updated_at=$6
			WHERE id=$7 AND user_id=$8
			RETURNING `+taskColumns+`
		`, *in.Title, in.Description, *in.Completed, *in.Priority, dueDateValue(in.DueDate), time.Now().UTC(), id, owner)
		var err error
		task, err = scanTask(row)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return err
	})
	if err != nil {
		return Task{}, err
	}
	return task, nil
}

// Patch applies only the supplied fields and refreshes updated_at regardless
// of which fields changed. Omitted fields are left untouched; an explicit
// null clears description or due_date.
func (s *Store) Patch(ctx context.Context, owner string, id int64, in PatchInput) (Task, error) {
	in, err := in.validate()
	if err != nil {
		return Task{}, err
	}
	var task Task
	err = s.withTx(ctx, func(tx pgx.Tx) error {
		current, err := getForOwner(ctx, tx, owner, id, " FOR UPDATE")
		if err != nil {
			return err
		}
		if in.HasTitle {
			current.Title = *in.Title
		}
		if in.HasDescription {
			current.Description = in.Description
		}
		if in.HasCompleted {
			current.Completed = *in.Completed
		}
		if in.HasPriority {
			current.Priority = *in.Priority
		}
		if in.HasDueDate {
			current.DueDate = in.DueDate
		}
		current.UpdatedAt = time.Now().UTC()
		row := tx.QueryRow(ctx, `
			UPDATE tasks
			SET title=$1, description=$2, completed=$3, priority=$4, due_date=$5, updated_at=$6
			WHERE id=$7 AND user_id=$8
			RETURNING `+taskColumns+`
		`, current.Title, current.Description, current.Completed, current.Priority, dueDateValue(current.DueDate), current.UpdatedAt, id, owner)
		task, err = scanTask(row)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return err
	})
	if err != nil {
		return Task{}, err
	}
	return task, nil
}

// Delete removes the row permanently under the owner+id predicate.
func (s *Store) Delete(ctx context.Context, owner string, id int64) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM tasks WHERE id=$1 AND user_id=$2`, id, owner)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func getForOwner(ctx context.Context, tx pgx.Tx, owner string, id int64, suffix string) (Task, error) {
	row := tx.QueryRow(ctx, `
		SELECT `+taskColumns+`
		FROM tasks WHERE id=$1 AND user_id=$2`+suffix, id, owner)
	task, err := scanTask(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Task{}, ErrNotFound
	}
	return task, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (Task, error) {
	var task Task
	var due *time.Time
	err := row.Scan(&task.ID, &task.UserID, &task.Title, &task.Description, &task.Completed, &task.Priority, &due, &task.CreatedAt, &task.UpdatedAt)
	if err != nil {
		return Task{}, err
	}
	task.DueDate = dueDateFrom(due)
	return task, nil
}

func dueDateValue(d *Date) *time.Time {
	if d == nil {
		return nil
	}
	t := d.Time
	return &t
}

func dueDateFrom(t *time.Time) *Date {
	if t == nil {
		return nil
	}
	return &Date{Time: t.UTC()}
}
