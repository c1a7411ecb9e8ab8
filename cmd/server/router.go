package main

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/phrazzld/relay-api/internal/domain"
	"github.com/phrazzld/relay-api/internal/events"
	"github.com/phrazzld/relay-api/internal/task"
)

// CreateGenerationRequest is the request body for submitting a generation
// job.
type CreateGenerationRequest struct {
	Model          string            `json:"model" validate:"required"`
	Prompt         string            `json:"prompt" validate:"required,min=1"`
	Type           string            `json:"type" validate:"omitempty,oneof=image video"`
	Parameters     map[string]any    `json:"parameters,omitempty"`
	WebhookURL     string            `json:"webhook_url,omitempty" validate:"omitempty,url"`
	WebhookHeaders map[string]string `json:"webhook_headers,omitempty"`
	VirtualKey     string            `json:"virtual_key" validate:"required"`
}

// GenerationResponse is returned on submission and cancel requests.
type GenerationResponse struct {
	TaskID string `json:"task_id"`
	State  string `json:"state"`
}

// TaskStatusResponse is the status projection returned for a task.
type TaskStatusResponse struct {
	TaskID          string             `json:"task_id"`
	Type            string             `json:"type"`
	State           string             `json:"state"`
	ProgressPercent int                `json:"progress_percent"`
	RetryCount      int                `json:"retry_count"`
	MaxRetries      int                `json:"max_retries"`
	CreatedAt       time.Time          `json:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
	CompletedAt     *time.Time         `json:"completed_at,omitempty"`
	Result          *domain.TaskResult `json:"result,omitempty"`
	Error           string             `json:"error,omitempty"`
}

// setupRouter configures the HTTP surface: generation submission and
// cancellation, task status, and the provider health snapshot.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	v := validator.New()

	r.Route("/api", func(r chi.Router) {
		r.Post("/generations", app.handleCreateGeneration(v))
		r.Get("/tasks/{id}", app.handleGetTask)
		r.Post("/tasks/{id}/cancel", app.handleCancelTask)
		r.Get("/providers/health", app.handleProviderHealth)
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			app.logger.Error("failed to write health check response", "error", err)
		}
	})

	return r
}

// handleCreateGeneration handles POST /api/generations. It creates a
// pending task and emits the generation request onto the event bus; the
// runner picks it up asynchronously.
func (app *application) handleCreateGeneration(v *validator.Validate) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateGenerationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondWithError(w, app.logger, http.StatusBadRequest, "invalid request format")
			return
		}
		if err := v.Struct(req); err != nil {
			respondWithError(w, app.logger, http.StatusBadRequest, "validation error: "+err.Error())
			return
		}

		taskType := domain.TaskTypeImage
		if req.Type == string(domain.TaskTypeVideo) {
			taskType = domain.TaskTypeVideo
		}

		created, err := app.store.Create(r.Context(), taskType, map[string]any{
			"model": req.Model,
		}, app.config.Pipeline.MaxRetries)
		if err != nil {
			app.logger.Error("failed to create task", "error", err)
			respondWithError(w, app.logger, http.StatusInternalServerError, "failed to create task")
			return
		}

		payload := events.GenerationRequested{
			TaskID:         created.ID,
			Model:          req.Model,
			Prompt:         req.Prompt,
			Parameters:     req.Parameters,
			IsAsync:        true,
			WebhookURL:     req.WebhookURL,
			WebhookHeaders: req.WebhookHeaders,
			VirtualKeyID:   req.VirtualKey,
		}
		event, err := events.NewEnvelope(events.TypeGenerationRequested, middleware.GetReqID(r.Context()), payload)
		if err != nil {
			app.logger.Error("failed to build generation event", "error", err, "task_id", created.ID)
			respondWithError(w, app.logger, http.StatusInternalServerError, "failed to enqueue task")
			return
		}
		if err := app.emitter.EmitEvent(r.Context(), event); err != nil {
			app.logger.Error("failed to enqueue generation task", "error", err, "task_id", created.ID)
			respondWithError(w, app.logger, http.StatusInternalServerError, "failed to enqueue task")
			return
		}

		respondWithJSON(w, app.logger, http.StatusAccepted, GenerationResponse{
			TaskID: created.ID.String(),
			State:  string(created.State),
		})
	}
}

// handleGetTask handles GET /api/tasks/{id}.
func (app *application) handleGetTask(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondWithError(w, app.logger, http.StatusBadRequest, "invalid task id")
		return
	}

	t, err := app.store.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, task.ErrTaskNotFound) {
			respondWithError(w, app.logger, http.StatusNotFound, "task not found")
			return
		}
		app.logger.Error("failed to load task", "error", err, "task_id", id)
		respondWithError(w, app.logger, http.StatusInternalServerError, "failed to load task")
		return
	}

	respondWithJSON(w, app.logger, http.StatusOK, TaskStatusResponse{
		TaskID:          t.ID.String(),
		Type:            string(t.Type),
		State:           string(t.State),
		ProgressPercent: t.ProgressPercent,
		RetryCount:      t.RetryCount,
		MaxRetries:      t.MaxRetries,
		CreatedAt:       t.CreatedAt,
		UpdatedAt:       t.UpdatedAt,
		CompletedAt:     t.CompletedAt,
		Result:          t.Result,
		Error:           t.Error,
	})
}

// handleCancelTask handles POST /api/tasks/{id}/cancel. Pending tasks are
// cancelled directly in the store; a task already processing is cancelled
// by its own worker once the cancel event reaches the cancellation
// registry, so the store write is left to that worker.
func (app *application) handleCancelTask(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondWithError(w, app.logger, http.StatusBadRequest, "invalid task id")
		return
	}

	t, err := app.store.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, task.ErrTaskNotFound) {
			respondWithError(w, app.logger, http.StatusNotFound, "task not found")
			return
		}
		app.logger.Error("failed to load task", "error", err, "task_id", id)
		respondWithError(w, app.logger, http.StatusInternalServerError, "failed to cancel task")
		return
	}

	if t.State.IsTerminal() {
		respondWithJSON(w, app.logger, http.StatusOK, GenerationResponse{
			TaskID: id.String(),
			State:  string(t.State),
		})
		return
	}

	if t.State == domain.TaskStatePending {
		if err := app.store.Cancel(r.Context(), id); err != nil {
			app.logger.Error("failed to cancel task", "error", err, "task_id", id)
			respondWithError(w, app.logger, http.StatusInternalServerError, "failed to cancel task")
			return
		}
	}

	payload := events.GenerationCancelled{TaskID: id, CancelledAt: time.Now().UTC()}
	event, err := events.NewEnvelope(events.TypeGenerationCancelled, middleware.GetReqID(r.Context()), payload)
	if err == nil {
		err = app.emitter.EmitEvent(r.Context(), event)
	}
	if err != nil {
		app.logger.Warn("failed to deliver cancel request to workers", "error", err, "task_id", id)
	}

	respondWithJSON(w, app.logger, http.StatusAccepted, GenerationResponse{
		TaskID: id.String(),
		State:  string(domain.TaskStateCancelled),
	})
}

// handleProviderHealth handles GET /api/providers/health.
func (app *application) handleProviderHealth(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, app.logger, http.StatusOK, map[string]any{
		"providers": app.tracker.SnapshotAll(),
	})
}

func respondWithJSON(w http.ResponseWriter, logger *slog.Logger, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Error("failed to write response", "error", err)
	}
}

func respondWithError(w http.ResponseWriter, logger *slog.Logger, status int, message string) {
	respondWithJSON(w, logger, status, map[string]string{"error": message})
}
