package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"PersonaCollector/internal/domain"
	"PersonaCollector/internal/ports"
)

type memoryRow struct {
	hasData bool
	raw     []byte
}

// MemoryStore keeps everything in process. Results are held serialized so a
// reload goes through the same checks as the SQL store.
type MemoryStore struct {
	mu      sync.RWMutex
	jobs    map[string]domain.Job
	results map[string]map[domain.SourceName]memoryRow
}

var _ ports.Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs:    map[string]domain.Job{},
		results: map[string]map[domain.SourceName]memoryRow{},
	}
}

func (m *MemoryStore) CreateJob(_ context.Context, job domain.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[job.ID]; ok {
		return fmt.Errorf("job %s already exists", job.ID)
	}
	m.jobs[job.ID] = cloneJob(job)
	return nil
}

func (m *MemoryStore) GetJob(_ context.Context, id string) (domain.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[id]
	if !ok {
		return domain.Job{}, fmt.Errorf("job %s: %w", id, domain.ErrNotFound)
	}
	return cloneJob(job), nil
}

func (m *MemoryStore) SetJobStatus(_ context.Context, id string, status domain.JobStatus, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return fmt.Errorf("job %s: %w", id, domain.ErrNotFound)
	}
	job.Status = status
	job.Error = errMsg
	job.UpdatedAt = time.Now().UTC()
	m.jobs[id] = job
	return nil
}

func (m *MemoryStore) PutSourceResult(_ context.Context, jobID string, source domain.SourceName, result domain.SourceResult) error {
	raw, err := encodeResult(source, result)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[jobID]; !ok {
		return fmt.Errorf("job %s: %w", jobID, domain.ErrNotFound)
	}
	if m.results[jobID] == nil {
		m.results[jobID] = map[domain.SourceName]memoryRow{}
	}
	m.results[jobID][source] = memoryRow{hasData: result.HasData(), raw: raw}
	return nil
}

func (m *MemoryStore) GetSourceResult(_ context.Context, jobID string, source domain.SourceName) (*domain.SourceResult, error) {
	m.mu.RLock()
	row, ok := m.results[jobID][source]
	m.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return decodeResult(source, row.hasData, row.raw)
}

func (m *MemoryStore) ListJobsByStatus(_ context.Context, statuses []domain.JobStatus, limit int) ([]domain.Job, error) {
	want := map[domain.JobStatus]struct{}{}
	for _, s := range statuses {
		want[s] = struct{}{}
	}

	m.mu.RLock()
	var jobs []domain.Job
	for _, job := range m.jobs {
		if _, ok := want[job.Status]; ok {
			jobs = append(jobs, cloneJob(job))
		}
	}
	m.mu.RUnlock()

	sort.Slice(jobs, func(i, j int) bool {
		if !jobs[i].CreatedAt.Equal(jobs[j].CreatedAt) {
			return jobs[i].CreatedAt.Before(jobs[j].CreatedAt)
		}
		return jobs[i].ID < jobs[j].ID
	})
	if limit > 0 && len(jobs) > limit {
		jobs = jobs[:limit]
	}
	return jobs, nil
}

func cloneJob(job domain.Job) domain.Job {
	job.Keywords = append([]string(nil), job.Keywords...)
	if job.CompetitorURLs != nil {
		job.CompetitorURLs = append([]string(nil), job.CompetitorURLs...)
	}
	return job
}
