package usecase

import (
	"context"
	"fmt"
	"strings"

	"PersonaCollector/internal/domain"
	"PersonaCollector/internal/status"
)

// SourceDebug is the operator view of one source of a job.
type SourceDebug struct {
	Status           domain.ProcessingStatus `json:"status"`
	ItemCount        int                     `json:"item_count"`
	ExtractionMethod string                  `json:"extraction_method,omitempty"`
	ErrorKind        domain.ErrorKind        `json:"error_kind,omitempty"`
	ErrorMessage     string                  `json:"error_message,omitempty"`
	Attempts         int                     `json:"attempts,omitempty"`
	Counters         map[string]int          `json:"counters,omitempty"`
}

// DebugInfo reports the job status alongside every configured source.
// A completed job may still carry failed or empty sources.
type DebugInfo struct {
	JobID         string                            `json:"job_id"`
	OverallStatus domain.JobStatus                  `json:"overall_status"`
	Error         string                            `json:"error,omitempty"`
	PerSource     map[domain.SourceName]SourceDebug `json:"per_source"`
	Quality       domain.QualityScore               `json:"quality"`
	order         []domain.SourceName
}

// GetDebugInfo builds the report from stored results only.
func (o *Orchestrator) GetDebugInfo(ctx context.Context, jobID string) (DebugInfo, error) {
	job, err := o.store.GetJob(ctx, jobID)
	if err != nil {
		return DebugInfo{}, fmt.Errorf("get job %s: %w", jobID, err)
	}

	sources := o.registry.Sources()
	info := DebugInfo{
		JobID:         job.ID,
		OverallStatus: job.Status,
		Error:         job.Error,
		PerSource:     make(map[domain.SourceName]SourceDebug, len(sources)),
		order:         sources,
	}

	var stored []domain.SourceResult
	for _, src := range sources {
		res, err := o.store.GetSourceResult(ctx, jobID, src)
		if err != nil {
			return DebugInfo{}, fmt.Errorf("load %s result: %w", src, err)
		}
		entry := SourceDebug{Status: status.Classify(res)}
		if res != nil {
			stored = append(stored, *res)
			entry.ItemCount = res.ItemCount()
			entry.ExtractionMethod = res.Metadata.ExtractionMethod
			entry.ErrorKind = res.ErrorKind()
			entry.ErrorMessage = res.ErrorMessage()
			entry.Attempts = res.Metadata.Attempts
			entry.Counters = res.Metadata.Counters
		}
		info.PerSource[src] = entry
	}
	info.Quality = o.scorer.Score(stored)
	return info, nil
}

// Quality scores the stored results of a job.
func (o *Orchestrator) Quality(ctx context.Context, jobID string) (domain.QualityScore, error) {
	info, err := o.GetDebugInfo(ctx, jobID)
	if err != nil {
		return domain.QualityScore{}, err
	}
	return info.Quality, nil
}

// GetJob returns the stored job.
func (o *Orchestrator) GetJob(ctx context.Context, jobID string) (domain.Job, error) {
	job, err := o.store.GetJob(ctx, jobID)
	if err != nil {
		return domain.Job{}, fmt.Errorf("get job %s: %w", jobID, err)
	}
	return job, nil
}

// Summary renders a short plain-text report for chat notifications.
func (d DebugInfo) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Persona collection %s: %s\n", d.JobID, d.OverallStatus)
	if d.Error != "" {
		fmt.Fprintf(&b, "Error: %s\n", d.Error)
	}

	order := d.order
	if len(order) == 0 {
		order = domain.CollectionOrder
	}
	for _, src := range order {
		entry, ok := d.PerSource[src]
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "- %s: %s (%d items)", src, entry.Status, entry.ItemCount)
		if entry.ErrorMessage != "" {
			fmt.Fprintf(&b, " %s", entry.ErrorMessage)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "Quality: %d/100, %d items", d.Quality.Score, d.Quality.TotalItemCount)
	for _, w := range d.Quality.Warnings {
		fmt.Fprintf(&b, "\n%s", w)
	}
	return b.String()
}
