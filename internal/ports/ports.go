package ports

import (
	"context"
	"time"

	"PersonaCollector/internal/domain"
)

// Store persists jobs and the per-source results written as workers finish.
type Store interface {
	CreateJob(ctx context.Context, job domain.Job) error
	GetJob(ctx context.Context, id string) (domain.Job, error)
	SetJobStatus(ctx context.Context, id string, status domain.JobStatus, errMsg string) error
	PutSourceResult(ctx context.Context, jobID string, source domain.SourceName, result domain.SourceResult) error
	// GetSourceResult returns nil without error when the source has not reported.
	GetSourceResult(ctx context.Context, jobID string, source domain.SourceName) (*domain.SourceResult, error)
	ListJobsByStatus(ctx context.Context, statuses []domain.JobStatus, limit int) ([]domain.Job, error)
}

// LanguageModel runs one blocking completion.
type LanguageModel interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	Configured() bool
}

// TextClassifier tags free text, e.g. a review, with labels such as pain_point.
type TextClassifier interface {
	Classify(ctx context.Context, text string) ([]string, error)
}

// VideoDetails looks up metadata for a single video.
type VideoDetails interface {
	Lookup(ctx context.Context, videoID string) (domain.Video, error)
}

// EventPublisher emits job lifecycle events to other services.
type EventPublisher interface {
	Publish(ctx context.Context, event domain.CollectionEvent) error
}

// Notifier sends a human-readable job summary to Telegram or other channels.
type Notifier interface {
	PublishSummary(ctx context.Context, summary string) error
}

// Scheduler controls when recurring sweeps execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
