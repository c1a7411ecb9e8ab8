package postgres

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/google/uuid"
	"github.com/phrazzld/relay-api/internal/domain"
	"github.com/phrazzld/relay-api/internal/task"
	"github.com/phrazzld/relay-api/migrations"
)

// testDB connects to the database named by DATABASE_URL and applies
// migrations. Integration tests are skipped when the variable is unset.
func testDB(t *testing.T) *sql.DB {
	t.Helper()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skip("Skipping integration test - requires DATABASE_URL environment variable")
	}

	db, err := sql.Open("pgx", dbURL)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, db.Ping())

	goose.SetBaseFS(migrations.FS)
	require.NoError(t, goose.SetDialect("postgres"))
	require.NoError(t, goose.Up(db, "."))

	return db
}

func TestTaskStoreLifecycle(t *testing.T) {
	db := testDB(t)
	store := NewTaskStore(db)
	ctx := context.Background()

	created, err := store.Create(ctx, domain.TaskTypeImage, map[string]any{"model": "img-model"}, 3)
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = db.Exec("DELETE FROM generation_tasks WHERE id = $1", created.ID)
	})

	got, err := store.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, domain.TaskStatePending, got.State)
	assert.Equal(t, "img-model", got.Metadata["model"])
	assert.Equal(t, 3, got.MaxRetries)

	// pending -> processing -> completed
	updated, err := store.UpdateState(ctx, created.ID, domain.TaskStateProcessing, task.StateUpdate{})
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStateProcessing, updated.State)

	progress := 100
	updated, err = store.UpdateState(ctx, created.ID, domain.TaskStateCompleted, task.StateUpdate{
		Progress: &progress,
		Result:   &domain.TaskResult{URL: "https://cdn.example.com/out.png", DurationMs: 1200, Units: 1},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStateCompleted, updated.State)
	assert.NotNil(t, updated.CompletedAt)

	got, err = store.Get(ctx, created.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Result)
	assert.Equal(t, "https://cdn.example.com/out.png", got.Result.URL)
	assert.Equal(t, 100, got.ProgressPercent)

	// Terminal states are absorbing.
	_, err = store.UpdateState(ctx, created.ID, domain.TaskStateProcessing, task.StateUpdate{})
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestTaskStoreRetryRequeue(t *testing.T) {
	db := testDB(t)
	store := NewTaskStore(db)
	ctx := context.Background()

	created, err := store.Create(ctx, domain.TaskTypeImage, nil, 2)
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = db.Exec("DELETE FROM generation_tasks WHERE id = $1", created.ID)
	})

	_, err = store.UpdateState(ctx, created.ID, domain.TaskStateProcessing, task.StateUpdate{})
	require.NoError(t, err)
	_, err = store.UpdateState(ctx, created.ID, domain.TaskStateFailed, task.StateUpdate{Error: "boom"})
	require.NoError(t, err)

	updated, err := store.UpdateState(ctx, created.ID, domain.TaskStatePending, task.StateUpdate{IncrementRetry: true})
	require.NoError(t, err)
	assert.Equal(t, 1, updated.RetryCount)
	assert.Nil(t, updated.CompletedAt)
}

func TestTaskStoreCancel(t *testing.T) {
	db := testDB(t)
	store := NewTaskStore(db)
	ctx := context.Background()

	created, err := store.Create(ctx, domain.TaskTypeImage, nil, 0)
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = db.Exec("DELETE FROM generation_tasks WHERE id = $1", created.ID)
	})

	require.NoError(t, store.Cancel(ctx, created.ID))
	got, err := store.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStateCancelled, got.State)
	assert.Equal(t, "cancelled", got.Error)

	// Cancelling a terminal task is a no-op.
	require.NoError(t, store.Cancel(ctx, created.ID))
}

func TestTaskStoreNotFound(t *testing.T) {
	db := testDB(t)
	store := NewTaskStore(db)
	ctx := context.Background()

	_, err := store.Get(ctx, uuid.New())
	assert.ErrorIs(t, err, task.ErrTaskNotFound)

	err = store.UpdateProgress(ctx, uuid.New(), 50, "")
	assert.ErrorIs(t, err, task.ErrTaskNotFound)
}

func TestTaskStoreCleanup(t *testing.T) {
	db := testDB(t)
	store := NewTaskStore(db)
	ctx := context.Background()

	created, err := store.Create(ctx, domain.TaskTypeImage, nil, 0)
	require.NoError(t, err)
	require.NoError(t, store.Cancel(ctx, created.ID))

	// Age the row past the cutoff.
	_, err = db.Exec("UPDATE generation_tasks SET updated_at = $1 WHERE id = $2",
		time.Now().UTC().Add(-48*time.Hour), created.ID)
	require.NoError(t, err)

	removed, err := store.Cleanup(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, removed, 1)

	_, err = store.Get(ctx, created.ID)
	assert.ErrorIs(t, err, task.ErrTaskNotFound)
}
