package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"PersonaCollector/internal/collector"
	"PersonaCollector/internal/config"
	"PersonaCollector/internal/domain"
	"PersonaCollector/internal/fetch"
	"PersonaCollector/internal/infrastructure/events"
	"PersonaCollector/internal/infrastructure/httpapi"
	"PersonaCollector/internal/infrastructure/llm"
	"PersonaCollector/internal/infrastructure/ml"
	"PersonaCollector/internal/infrastructure/reviews"
	"PersonaCollector/internal/infrastructure/scheduler"
	"PersonaCollector/internal/infrastructure/social"
	"PersonaCollector/internal/infrastructure/storage"
	"PersonaCollector/internal/infrastructure/synthesis"
	"PersonaCollector/internal/infrastructure/telegram"
	"PersonaCollector/internal/infrastructure/video"
	"PersonaCollector/internal/infrastructure/website"
	"PersonaCollector/internal/logging"
	"PersonaCollector/internal/ports"
	"PersonaCollector/internal/quality"
	"PersonaCollector/internal/usecase"
)

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg          config.Config
	logger       *slog.Logger
	orchestrator *usecase.Orchestrator
	scheduler    *usecase.Scheduler
	cancel       context.CancelFunc
	closers      []func() error
}

// New builds every adapter once and injects them into the orchestrator.
// Cancelling ctx cancels every job the application runs.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	a := &Application{cfg: cfg, logger: baseLogger}

	store, closeStore, err := storage.Open(ctx, cfg.Database, baseLogger.With("component", "storage"))
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	a.closers = append(a.closers, closeStore)

	var publisher ports.EventPublisher = events.Noop{}
	if cfg.Events.NATSURL != "" {
		p, err := events.Connect(cfg.Events.NATSURL, cfg.Events.Subject, baseLogger.With("component", "events"))
		if err != nil {
			_ = a.Close(ctx)
			return nil, err
		}
		a.closers = append(a.closers, func() error { p.Close(); return nil })
		publisher = p
	}

	var notifier ports.Notifier
	if tg := telegram.NewNotifier(cfg.Notifications.Telegram.BotToken, cfg.Notifications.Telegram.ChatID); tg.Configured() {
		notifier = tg
	}

	registry := buildRegistry(cfg, baseLogger)
	scorer := quality.NewScorer(cfg.Collection.MinimumItems)
	scorer.Expected = evidenceSources(registry)

	// Jobs stop when the caller's context ends, not only at their deadline.
	base, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.orchestrator = usecase.NewOrchestrator(usecase.OrchestratorDeps{
		Store:       store,
		Registry:    registry,
		Events:      publisher,
		Notifier:    notifier,
		Scorer:      scorer,
		JobDeadline: cfg.Collection.JobDeadline,
		Parallel:    cfg.Collection.Parallel,
		BaseContext: base,
		Logger:      baseLogger.With("component", "orchestrator"),
	})
	a.scheduler = usecase.NewScheduler(
		scheduler.NewTickerScheduler(cfg.Collection.ResumeInterval),
		a.orchestrator,
		baseLogger.With("component", "resume"),
	)

	baseLogger.Info("application ready",
		"sources", registry.Sources(),
		"store", cfg.Database.Driver,
		"video_mode", cfg.Video.Mode,
		"parallel", cfg.Collection.Parallel,
	)
	return a, nil
}

func buildRegistry(cfg config.Config, logger *slog.Logger) *collector.Registry {
	fetcher := fetch.New(nil, fetch.Policy{
		MaxAttempts:    cfg.Fetch.MaxAttempts,
		BaseBackoff:    cfg.Fetch.BaseBackoff,
		RetryDelay:     cfg.Fetch.RetryDelay,
		PerSourceDelay: cfg.Fetch.PerSourceDelay,
		Timeout:        cfg.Fetch.Timeout,
		UserAgent:      cfg.Fetch.UserAgent,
	}, logger.With("component", "fetch"))

	model := llm.NewChatGPTClient(cfg.ChatGPT)

	var classifier ports.TextClassifier = ml.NewLexiconClassifier()
	if cfg.ML.InferenceURL != "" {
		classifier = ml.NewClient(cfg.ML.InferenceURL, cfg.ML.APIKey)
	}

	registry := collector.NewRegistry()
	registry.Register(website.NewWorker(fetcher, model, website.Options{
		MaxLinkedPages: cfg.Website.MaxLinkedPages,
		MaxPageChars:   cfg.Website.MaxPageChars,
	}, logger.With("component", "worker.website")))
	registry.Register(reviews.NewWorker(fetcher, classifier, reviews.Options{
		Endpoint:        cfg.Reviews.Endpoint,
		PerPage:         cfg.Reviews.PerPage,
		SkipCompetitors: cfg.Reviews.SkipCompetitors,
	}, logger.With("component", "worker.reviews")))
	registry.Register(social.NewWorker(fetcher, social.Options{
		BaseURL: cfg.Social.BaseURL,
		Limit:   cfg.Social.Limit,
	}, logger.With("component", "worker.social")))

	switch cfg.Video.Mode {
	case config.VideoLive:
		var details ports.VideoDetails
		if cfg.Video.EnrichDetails {
			details = video.NewDetails()
		}
		registry.Register(video.NewWorker(fetcher, details, video.Options{
			Endpoint:         cfg.Video.Endpoint,
			APIKey:           cfg.Video.APIKey,
			VideosPerKeyword: cfg.Video.VideosPerKeyword,
			CommentsPerVideo: cfg.Video.CommentsPerVideo,
		}, logger.With("component", "worker.video")))
	case config.VideoStub:
		registry.Register(video.StubWorker{})
	}

	registry.Register(synthesis.NewWorker(model, synthesis.Options{
		MinimumItems: cfg.Collection.MinimumItems,
	}, logger.With("component", "worker.synthesis")))
	return registry
}

func evidenceSources(registry *collector.Registry) []domain.SourceName {
	var out []domain.SourceName
	for _, src := range registry.Sources() {
		if src != domain.SourceSynthesis {
			out = append(out, src)
		}
	}
	return out
}

// Orchestrator exposes the collection use case for one-shot runs.
func (a *Application) Orchestrator() *usecase.Orchestrator {
	return a.orchestrator
}

// Serve runs the HTTP API and the resume sweep until ctx is cancelled.
func (a *Application) Serve(ctx context.Context) error {
	if err := a.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("start resume scheduler: %w", err)
	}

	srv := &http.Server{
		Addr:              a.cfg.HTTP.Addr,
		Handler:           httpapi.New(a.orchestrator, a.logger.With("component", "http")).Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	a.logger.Info("listening", "addr", a.cfg.HTTP.Addr)

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("http shutdown", "error", err)
	}
	return nil
}

// Close stops the sweep, cancels running jobs, waits for them and releases adapters.
func (a *Application) Close(ctx context.Context) error {
	if a.scheduler != nil {
		if err := a.scheduler.Stop(ctx); err != nil {
			a.logger.Warn("stop resume scheduler", "error", err)
		}
	}
	if a.cancel != nil {
		a.cancel()
	}
	if a.orchestrator != nil {
		a.orchestrator.Wait()
	}

	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
