package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/phrazzld/relay-api/internal/domain"
	"github.com/phrazzld/relay-api/internal/platform/logger"
	"github.com/phrazzld/relay-api/internal/task"
)

// TaskStore implements the task.Store interface using PostgreSQL.
// Per-task linearization comes from row-level locking: every transition
// reads the row FOR UPDATE, checks the state machine, then writes.
type TaskStore struct {
	db *sql.DB
}

// NewTaskStore creates a new TaskStore.
func NewTaskStore(db *sql.DB) *TaskStore {
	return &TaskStore{db: db}
}

// Create registers a new task in the pending state with a fresh id.
func (s *TaskStore) Create(ctx context.Context, taskType domain.TaskType, metadata map[string]any, maxRetries int) (*domain.GenerationTask, error) {
	log := logger.FromContext(ctx)

	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal task metadata: %w", err)
	}

	t := &domain.GenerationTask{
		ID:         uuid.New(),
		Type:       taskType,
		State:      domain.TaskStatePending,
		CreatedAt:  time.Now().UTC(),
		UpdatedAt:  time.Now().UTC(),
		MaxRetries: maxRetries,
		Metadata:   metadata,
	}

	query := `
		INSERT INTO generation_tasks
			(id, type, state, progress_percent, created_at, updated_at, retry_count, max_retries, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err = s.db.ExecContext(ctx, query,
		t.ID, t.Type, t.State, t.ProgressPercent,
		t.CreatedAt, t.UpdatedAt, t.RetryCount, t.MaxRetries, metadataJSON,
	)
	if err != nil {
		log.Error("failed to create task",
			"task_type", taskType,
			"error", err)
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	return t, nil
}

// Get returns a snapshot of the task, or task.ErrTaskNotFound.
func (s *TaskStore) Get(ctx context.Context, id uuid.UUID) (*domain.GenerationTask, error) {
	return s.get(ctx, s.db, id, false)
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *TaskStore) get(ctx context.Context, q queryer, id uuid.UUID, forUpdate bool) (*domain.GenerationTask, error) {
	query := `
		SELECT id, type, state, progress_percent, created_at, updated_at, completed_at,
		       retry_count, max_retries, metadata, result, error_message
		FROM generation_tasks
		WHERE id = $1
	`
	if forUpdate {
		query += " FOR UPDATE"
	}

	var (
		t            domain.GenerationTask
		completedAt  sql.NullTime
		metadataJSON []byte
		resultJSON   []byte
		errorMsg     sql.NullString
	)
	err := q.QueryRowContext(ctx, query, id).Scan(
		&t.ID, &t.Type, &t.State, &t.ProgressPercent, &t.CreatedAt, &t.UpdatedAt, &completedAt,
		&t.RetryCount, &t.MaxRetries, &metadataJSON, &resultJSON, &errorMsg,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", task.ErrTaskNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}

	if completedAt.Valid {
		t.CompletedAt = &completedAt.Time
	}
	if errorMsg.Valid {
		t.Error = errorMsg.String
	}
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &t.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal task metadata: %w", err)
		}
	}
	if len(resultJSON) > 0 {
		var res domain.TaskResult
		if err := json.Unmarshal(resultJSON, &res); err != nil {
			return nil, fmt.Errorf("failed to unmarshal task result: %w", err)
		}
		t.Result = &res
	}

	return &t, nil
}

// UpdateState applies a state transition under row-level locking.
func (s *TaskStore) UpdateState(ctx context.Context, id uuid.UUID, next domain.TaskState, upd task.StateUpdate) (*domain.GenerationTask, error) {
	log := logger.FromContext(ctx)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	t, err := s.get(ctx, tx, id, true)
	if err != nil {
		return nil, err
	}

	if !t.State.CanTransitionTo(next) {
		return nil, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, t.State, next)
	}

	now := time.Now().UTC()
	t.State = next
	t.UpdatedAt = now
	if next.IsTerminal() {
		t.CompletedAt = &now
	} else {
		t.CompletedAt = nil
	}
	if upd.Progress != nil {
		t.ProgressPercent = clampPercent(*upd.Progress)
	}
	if upd.Result != nil {
		res := *upd.Result
		t.Result = &res
	}
	if upd.Error != "" {
		t.Error = upd.Error
	}
	if upd.IncrementRetry {
		t.RetryCount++
	}

	var resultJSON []byte
	if t.Result != nil {
		resultJSON, err = json.Marshal(t.Result)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal task result: %w", err)
		}
	}

	var completedAt any
	if t.CompletedAt != nil {
		completedAt = *t.CompletedAt
	}

	query := `
		UPDATE generation_tasks
		SET state = $1, progress_percent = $2, updated_at = $3, completed_at = $4,
		    retry_count = $5, result = $6, error_message = $7
		WHERE id = $8
	`
	if _, err := tx.ExecContext(ctx, query,
		t.State, t.ProgressPercent, t.UpdatedAt, completedAt,
		t.RetryCount, resultJSON, t.Error, id,
	); err != nil {
		log.Error("failed to update task state",
			"task_id", id,
			"state", next,
			"error", err)
		return nil, fmt.Errorf("failed to update task state: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit task update: %w", err)
	}

	return t, nil
}

// UpdateProgress records a progress estimate without changing state.
func (s *TaskStore) UpdateProgress(ctx context.Context, id uuid.UUID, percent int, message string) error {
	query := `
		UPDATE generation_tasks
		SET progress_percent = $1, updated_at = $2
		WHERE id = $3
	`
	result, err := s.db.ExecContext(ctx, query, clampPercent(percent), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update task progress: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check progress update: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", task.ErrTaskNotFound, id)
	}
	return nil
}

// Cancel moves the task to the cancelled state; a no-op when terminal.
func (s *TaskStore) Cancel(ctx context.Context, id uuid.UUID) error {
	_, err := s.UpdateState(ctx, id, domain.TaskStateCancelled, task.StateUpdate{Error: "cancelled"})
	if errors.Is(err, domain.ErrInvalidTransition) {
		return nil
	}
	return err
}

// Cleanup removes terminal tasks whose updated_at precedes the cutoff.
func (s *TaskStore) Cleanup(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-olderThan)

	query := `
		DELETE FROM generation_tasks
		WHERE state IN ($1, $2, $3, $4) AND updated_at < $5
	`
	result, err := s.db.ExecContext(ctx, query,
		domain.TaskStateCompleted, domain.TaskStateFailed,
		domain.TaskStateCancelled, domain.TaskStateTimedOut, cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to clean up tasks: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count cleaned up tasks: %w", err)
	}
	return int(rows), nil
}

func clampPercent(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

var _ task.Store = (*TaskStore)(nil)
