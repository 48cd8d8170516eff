package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"PersonaCollector/internal/collector"
	"PersonaCollector/internal/domain"
	"PersonaCollector/internal/ports"
	"PersonaCollector/internal/quality"
	"PersonaCollector/internal/status"
)

// DefaultJobDeadline bounds a single job run when no deadline is configured.
const DefaultJobDeadline = 10 * time.Minute

// OrchestratorDeps wires the driven adapters into the collection use case.
type OrchestratorDeps struct {
	Store    ports.Store
	Registry *collector.Registry
	Events   ports.EventPublisher
	Notifier ports.Notifier
	Scorer   quality.Scorer

	JobDeadline time.Duration
	Parallel    bool
	// BaseContext parents every job run; cancelling it stops in-flight jobs.
	BaseContext context.Context
	Logger      *slog.Logger
}

// Orchestrator runs collection jobs and reports on them.
type Orchestrator struct {
	store    ports.Store
	registry *collector.Registry
	events   ports.EventPublisher
	notifier ports.Notifier
	scorer   quality.Scorer
	deadline time.Duration
	parallel bool
	base     context.Context
	logger   *slog.Logger
	now      func() time.Time

	mu     sync.Mutex
	active map[string]struct{}
	wg     sync.WaitGroup
}

// NewOrchestrator constructs the collection use case.
func NewOrchestrator(deps OrchestratorDeps) *Orchestrator {
	registry := deps.Registry
	if registry == nil {
		registry = collector.NewRegistry()
	}
	deadline := deps.JobDeadline
	if deadline <= 0 {
		deadline = DefaultJobDeadline
	}
	base := deps.BaseContext
	if base == nil {
		base = context.Background()
	}
	return &Orchestrator{
		store:    deps.Store,
		registry: registry,
		events:   deps.Events,
		notifier: deps.Notifier,
		scorer:   deps.Scorer,
		deadline: deadline,
		parallel: deps.Parallel,
		base:     base,
		logger:   deps.Logger,
		now:      func() time.Time { return time.Now().UTC() },
		active:   map[string]struct{}{},
	}
}

// StartCollection validates and stores a pending job, then runs it in the background.
func (o *Orchestrator) StartCollection(ctx context.Context, req domain.CollectionRequest) (string, error) {
	if o.store == nil {
		return "", errors.New("orchestrator has no store")
	}
	req, err := req.Normalize()
	if err != nil {
		return "", err
	}

	now := o.now()
	job := domain.Job{
		ID:             uuid.NewString(),
		TargetURL:      req.TargetURL,
		Keywords:       req.Keywords,
		SecondaryURL:   req.SecondaryURL,
		CompetitorURLs: req.CompetitorURLs,
		Tier:           req.Tier,
		Status:         domain.JobPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := o.store.CreateJob(ctx, job); err != nil {
		return "", fmt.Errorf("create job: %w", err)
	}

	o.launch(job)
	return job.ID, nil
}

// ResumePending relaunches pending or processing jobs that are not running in this process.
func (o *Orchestrator) ResumePending(ctx context.Context) (int, error) {
	jobs, err := o.store.ListJobsByStatus(ctx, []domain.JobStatus{domain.JobPending, domain.JobProcessing}, 0)
	if err != nil {
		return 0, fmt.Errorf("list open jobs: %w", err)
	}
	resumed := 0
	for _, job := range jobs {
		if o.launch(job) {
			resumed++
			o.info("job resumed", "job_id", job.ID, "status", job.Status)
		}
	}
	return resumed, nil
}

// Wait blocks until every launched run has returned.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

func (o *Orchestrator) launch(job domain.Job) bool {
	o.mu.Lock()
	if _, ok := o.active[job.ID]; ok {
		o.mu.Unlock()
		return false
	}
	o.active[job.ID] = struct{}{}
	o.wg.Add(1)
	o.mu.Unlock()

	go func() {
		defer o.wg.Done()
		defer func() {
			o.mu.Lock()
			delete(o.active, job.ID)
			o.mu.Unlock()
		}()

		ctx, cancel := context.WithTimeout(o.base, o.deadline)
		defer cancel()
		o.run(ctx, job)
	}()
	return true
}

// abort is returned inside errgroup when a worker reports a configuration failure.
type abort struct {
	result domain.SourceResult
}

func (a abort) Error() string {
	return fmt.Sprintf("%s: %s", a.result.Source, a.result.ErrorMessage())
}

func (o *Orchestrator) run(ctx context.Context, job domain.Job) {
	// Results and statuses must be written even after the job deadline fires.
	persist := context.WithoutCancel(ctx)
	started := time.Now()

	if err := o.store.SetJobStatus(persist, job.ID, domain.JobProcessing, ""); err != nil {
		o.warn("mark processing failed", "job_id", job.ID, "error", err)
		return
	}
	job.Status = domain.JobProcessing
	o.publish(persist, domain.CollectionEvent{Type: domain.EventJobStarted, JobID: job.ID, JobStatus: job.Status})
	o.info("job started", "job_id", job.ID, "sources", len(o.registry.Ordered()))

	var evidence []collector.Worker
	var synthesis collector.Worker
	for _, w := range o.registry.Ordered() {
		if w.Name() == domain.SourceSynthesis {
			synthesis = w
			continue
		}
		evidence = append(evidence, w)
	}

	for _, w := range o.registry.Ordered() {
		p, ok := w.(collector.Preflighter)
		if !ok {
			continue
		}
		if err := p.Preflight(); err != nil {
			res := collector.FailedFrom(w.Name(), err, domain.Metadata{})
			o.record(persist, job.ID, res)
			o.finish(persist, job, domain.JobFailed, abort{result: res}.Error(), started)
			return
		}
	}

	results, err := o.collect(ctx, persist, job, evidence)
	var stop abort
	if errors.As(err, &stop) {
		o.finish(persist, job, domain.JobFailed, stop.Error(), started)
		return
	}

	anyOK := false
	for _, r := range results {
		if r.IsOK() {
			anyOK = true
		}
	}

	if synthesis != nil {
		upstream, err := o.loadUpstream(persist, job.ID, evidence)
		if err != nil {
			o.warn("reload upstream failed, using live results", "job_id", job.ID, "error", err)
			upstream = results
		}
		res := collector.Run(ctx, synthesis, collector.Params{Job: job, Upstream: upstream})
		o.record(persist, job.ID, res)
		if res.ErrorKind() == domain.KindConfiguration {
			o.finish(persist, job, domain.JobFailed, abort{result: res}.Error(), started)
			return
		}
		if len(evidence) == 0 && res.IsOK() {
			anyOK = true
		}
	}

	if anyOK {
		o.finish(persist, job, domain.JobCompleted, "", started)
		return
	}
	o.finish(persist, job, domain.JobFailed, "no source completed", started)
}

// collect runs the evidence workers and persists each result as soon as it is ready.
func (o *Orchestrator) collect(ctx, persist context.Context, job domain.Job, workers []collector.Worker) ([]domain.SourceResult, error) {
	params := collector.Params{Job: job}
	results := make([]domain.SourceResult, len(workers))

	if !o.parallel {
		for i, w := range workers {
			res := collector.Run(ctx, w, params)
			o.record(persist, job.ID, res)
			results[i] = res
			if res.ErrorKind() == domain.KindConfiguration {
				return results[:i+1], abort{result: res}
			}
		}
		return results, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, w := range workers {
		g.Go(func() error {
			res := collector.Run(gctx, w, params)
			o.record(persist, job.ID, res)
			results[i] = res
			if res.ErrorKind() == domain.KindConfiguration {
				return abort{result: res}
			}
			return nil
		})
	}
	err := g.Wait()
	return results, err
}

func (o *Orchestrator) loadUpstream(ctx context.Context, jobID string, workers []collector.Worker) ([]domain.SourceResult, error) {
	var out []domain.SourceResult
	for _, w := range workers {
		res, err := o.store.GetSourceResult(ctx, jobID, w.Name())
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", w.Name(), err)
		}
		if res != nil {
			out = append(out, *res)
		}
	}
	return out, nil
}

func (o *Orchestrator) record(ctx context.Context, jobID string, res domain.SourceResult) {
	st := status.Classify(&res)
	if err := o.store.PutSourceResult(ctx, jobID, res.Source, res); err != nil {
		o.warn("persist result failed", "job_id", jobID, "source", res.Source, "error", err)
	}
	o.info("source finished", "job_id", jobID, "source", res.Source, "status", st,
		"items", res.ItemCount(), "attempts", res.Metadata.Attempts, "error", res.ErrorMessage())
	o.publish(ctx, domain.CollectionEvent{
		Type:      domain.EventSourceFinished,
		JobID:     jobID,
		Source:    res.Source,
		Status:    st,
		ItemCount: res.ItemCount(),
		Error:     res.ErrorMessage(),
	})
}

func (o *Orchestrator) finish(ctx context.Context, job domain.Job, final domain.JobStatus, errMsg string, started time.Time) {
	if err := o.store.SetJobStatus(ctx, job.ID, final, errMsg); err != nil {
		o.warn("persist job status failed", "job_id", job.ID, "status", final, "error", err)
	}
	o.info("job finished", "job_id", job.ID, "status", final, "error", errMsg, "elapsed", time.Since(started))
	o.publish(ctx, domain.CollectionEvent{Type: domain.EventJobFinished, JobID: job.ID, JobStatus: final, Error: errMsg})

	if o.notifier == nil {
		return
	}
	info, err := o.GetDebugInfo(ctx, job.ID)
	if err != nil {
		o.warn("build summary failed", "job_id", job.ID, "error", err)
		return
	}
	if err := o.notifier.PublishSummary(ctx, info.Summary()); err != nil {
		o.warn("notify failed", "job_id", job.ID, "error", err)
	}
}

func (o *Orchestrator) publish(ctx context.Context, event domain.CollectionEvent) {
	if o.events == nil {
		return
	}
	if event.At.IsZero() {
		event.At = o.now()
	}
	if err := o.events.Publish(ctx, event); err != nil {
		o.warn("publish event failed", "type", event.Type, "job_id", event.JobID, "error", err)
	}
}

func (o *Orchestrator) info(msg string, args ...interface{}) {
	if o.logger == nil {
		return
	}
	o.logger.Info(msg, args...)
}

func (o *Orchestrator) warn(msg string, args ...interface{}) {
	if o.logger == nil {
		return
	}
	o.logger.Warn(msg, args...)
}
