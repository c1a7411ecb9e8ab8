package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/phrazzld/relay-api/internal/billing"
	"github.com/phrazzld/relay-api/internal/config"
	"github.com/phrazzld/relay-api/internal/events"
	"github.com/phrazzld/relay-api/internal/platform/gemini"
	"github.com/phrazzld/relay-api/internal/platform/postgres"
	"github.com/phrazzld/relay-api/internal/provider"
	"github.com/phrazzld/relay-api/internal/provider/failover"
	"github.com/phrazzld/relay-api/internal/provider/health"
	"github.com/phrazzld/relay-api/internal/service/keys"
	"github.com/phrazzld/relay-api/internal/storage"
	"github.com/phrazzld/relay-api/internal/task"
	"github.com/phrazzld/relay-api/internal/webhook"
)

// application bundles the wired components of the generation pipeline.
type application struct {
	config   *config.Config
	logger   *slog.Logger
	db       *sql.DB
	store    task.Store
	registry *provider.Registry
	tracker  *health.Tracker
	emitter  *events.InMemoryEmitter
	runner   *task.Runner
}

// newApplication wires the pipeline together: store, provider registry,
// health tracker, failover manager, event bus, task factory and runner.
func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*application, error) {
	app := &application{
		config: cfg,
		logger: logger,
	}

	if cfg.Database.URL != "" {
		db, err := setupDatabase(cfg, logger)
		if err != nil {
			return nil, err
		}
		app.db = db
		app.store = postgres.NewTaskStore(db)
	} else {
		logger.Info("no database configured, using in-memory task store")
		app.store = task.NewMemoryStore()
	}

	app.registry = provider.NewRegistry()
	app.emitter = events.NewInMemoryEmitter(logger)

	app.tracker = health.NewTracker(health.Config{
		ConsecutiveFailureLimit: cfg.Health.ConsecutiveFailureLimit,
		MinHealthScore:          cfg.Health.MinHealthScore,
		SuccessNudge:            cfg.Health.SuccessNudge,
		FailurePenalty:          cfg.Health.FailurePenalty,
		LatencyPenalty:          cfg.Health.LatencyPenalty,
		LatencyBaseline:         time.Duration(cfg.Health.LatencyBaselineSeconds) * time.Second,
	}, app.emitter, app.registry, logger)

	failoverManager := failover.NewManager(app.registry, app.tracker, app.emitter, logger)

	keyService, err := keys.NewService(cfg.Auth.JWTSecret, nil, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create key service: %w", err)
	}

	mediaStore, err := storage.NewFileStore(cfg.Storage.MediaDir, cfg.Storage.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create media store: %w", err)
	}

	if err := app.registerProviders(ctx); err != nil {
		return nil, err
	}

	webhookSender := webhook.NewHTTPSender(nil, cfg.Webhook.SigningSecret,
		time.Duration(cfg.Webhook.TimeoutSeconds)*time.Second, logger)

	cancellations := task.NewCancellationRegistry()
	deps := task.GenerationDeps{
		Store:         app.store,
		Resolver:      app.registry,
		Keys:          keyService,
		Health:        app.tracker,
		Failover:      failoverManager,
		Emitter:       app.emitter,
		Webhooks:      webhookSender,
		Media:         mediaStore,
		Costs:         billing.NewTableCostCalculator(defaultCostTable(), 0.01),
		Ledger:        billing.NewMemoryLedger(),
		Cancellations: cancellations,
		Config: task.PipelineConfig{
			RetryBaseDelay:          time.Duration(cfg.Pipeline.RetryBaseDelaySeconds) * time.Second,
			RetryMaxDelay:           time.Duration(cfg.Pipeline.RetryMaxDelaySeconds) * time.Second,
			ProgressInterval:        time.Duration(cfg.Pipeline.ProgressIntervalSeconds) * time.Second,
			BatchConcurrency:        int64(cfg.Pipeline.BatchConcurrency),
			DefaultEstimatedSeconds: cfg.Pipeline.DefaultEstimatedSeconds,
		},
		Logger: logger,
	}

	factory, err := task.NewMediaGenerationTaskFactory(deps)
	if err != nil {
		return nil, fmt.Errorf("failed to create task factory: %w", err)
	}

	app.runner = task.NewRunner(task.RunnerConfig{
		WorkerCount: cfg.Pipeline.WorkerCount,
		QueueSize:   cfg.Pipeline.QueueSize,
	}, logger)

	app.emitter.RegisterHandler(task.NewGenerationEventHandler(factory, app.runner, cancellations, logger))

	return app, nil
}

// registerProviders wires the configured provider adapters into the
// registry.
func (app *application) registerProviders(ctx context.Context) error {
	if app.config.LLM.GeminiAPIKey == "" {
		app.logger.Warn("no providers configured, generation requests will fail to resolve")
		return nil
	}

	generator, err := gemini.NewImageGenerator(ctx, app.logger, app.config.LLM)
	if err != nil {
		return fmt.Errorf("failed to create gemini adapter: %w", err)
	}

	app.registry.RegisterProvider(provider.Provider{
		ID:           "gemini",
		Name:         "Google Gemini",
		Enabled:      true,
		Capabilities: []provider.Capability{provider.CapabilityImage},
	}, generator)
	app.registry.AddMapping(provider.ModelMapping{
		Model:            app.config.LLM.ModelName,
		ProviderID:       "gemini",
		Capability:       provider.CapabilityImage,
		EstimatedSeconds: 30,
	})

	app.logger.Info("registered provider", "provider_id", "gemini", "model", app.config.LLM.ModelName)
	return nil
}

// defaultCostTable returns the per-unit prices charged for known models.
func defaultCostTable() map[string]float64 {
	return map[string]float64{
		"gemini-2.0-flash-exp": 0.02,
	}
}

// close releases the application's resources.
func (app *application) close() {
	if app.db != nil {
		_ = app.db.Close()
	}
}
