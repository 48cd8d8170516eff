package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"PersonaCollector/internal/domain"
	"PersonaCollector/internal/ports"
)

var jobColumns = []string{
	"id", "target_url", "keywords", "secondary_url", "competitor_urls",
	"tier", "status", "error", "created_at", "updated_at",
}

// SQLStore persists jobs and source results in Postgres or SQLite.
type SQLStore struct {
	db  *sql.DB
	sb  sq.StatementBuilderType
	now func() time.Time
}

var _ ports.Store = (*SQLStore)(nil)

// NewSQLStore wraps an already migrated database.
func NewSQLStore(db *sql.DB, dialect string) *SQLStore {
	var placeholder sq.PlaceholderFormat = sq.Question
	if dialect == DialectPostgres {
		placeholder = sq.Dollar
	}
	return &SQLStore{
		db:  db,
		sb:  sq.StatementBuilder.PlaceholderFormat(placeholder),
		now: func() time.Time { return time.Now().UTC() },
	}
}

// CreateJob inserts a new job row.
func (s *SQLStore) CreateJob(ctx context.Context, job domain.Job) error {
	keywords, err := json.Marshal(job.Keywords)
	if err != nil {
		return fmt.Errorf("encode keywords: %w", err)
	}
	competitors, err := json.Marshal(nonNil(job.CompetitorURLs))
	if err != nil {
		return fmt.Errorf("encode competitors: %w", err)
	}

	query, args, err := s.sb.Insert("jobs").
		Columns(jobColumns...).
		Values(job.ID, job.TargetURL, string(keywords), job.SecondaryURL, string(competitors),
			string(job.Tier), string(job.Status), job.Error, job.CreatedAt.UnixMilli(), job.UpdatedAt.UnixMilli()).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert job: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert job %s: %w", job.ID, err)
	}
	return nil
}

// GetJob returns domain.ErrNotFound for unknown ids.
func (s *SQLStore) GetJob(ctx context.Context, id string) (domain.Job, error) {
	query, args, err := s.sb.Select(jobColumns...).From("jobs").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return domain.Job{}, fmt.Errorf("build select job: %w", err)
	}

	job, err := scanJob(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Job{}, fmt.Errorf("job %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Job{}, fmt.Errorf("select job %s: %w", id, err)
	}
	return job, nil
}

// SetJobStatus updates the lifecycle state and abort reason.
func (s *SQLStore) SetJobStatus(ctx context.Context, id string, status domain.JobStatus, errMsg string) error {
	query, args, err := s.sb.Update("jobs").
		Set("status", string(status)).
		Set("error", errMsg).
		Set("updated_at", s.now().UnixMilli()).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update job: %w", err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update job %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("job %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// PutSourceResult upserts one result; hasData and the item count are stored as
// columns next to the serialized result.
func (s *SQLStore) PutSourceResult(ctx context.Context, jobID string, source domain.SourceName, result domain.SourceResult) error {
	raw, err := encodeResult(source, result)
	if err != nil {
		return err
	}

	query, args, err := s.sb.Insert("source_results").
		Columns("job_id", "source", "outcome", "has_data", "item_count", "result", "updated_at").
		Values(jobID, string(source), string(result.Outcome), result.HasData(), result.ItemCount(), string(raw), s.now().UnixMilli()).
		Suffix("ON CONFLICT (job_id, source) DO UPDATE SET " +
			"outcome = excluded.outcome, has_data = excluded.has_data, item_count = excluded.item_count, " +
			"result = excluded.result, updated_at = excluded.updated_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("build upsert result: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert %s result for job %s: %w", source, jobID, err)
	}
	return nil
}

// GetSourceResult reloads a result and re-checks it against the stored flag.
func (s *SQLStore) GetSourceResult(ctx context.Context, jobID string, source domain.SourceName) (*domain.SourceResult, error) {
	query, args, err := s.sb.Select("has_data", "result").
		From("source_results").
		Where(sq.Eq{"job_id": jobID, "source": string(source)}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select result: %w", err)
	}

	var (
		hasData bool
		raw     string
	)
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&hasData, &raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select %s result for job %s: %w", source, jobID, err)
	}
	return decodeResult(source, hasData, []byte(raw))
}

// ListJobsByStatus returns the oldest jobs first.
func (s *SQLStore) ListJobsByStatus(ctx context.Context, statuses []domain.JobStatus, limit int) ([]domain.Job, error) {
	values := make([]string, 0, len(statuses))
	for _, st := range statuses {
		values = append(values, string(st))
	}

	builder := s.sb.Select(jobColumns...).From("jobs").Where(sq.Eq{"status": values}).OrderBy("created_at ASC", "id ASC")
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list jobs: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}

	var jobs []domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("rows iteration: %w", rowsErr)
	}

	if closeErr := rows.Close(); closeErr != nil {
		return nil, fmt.Errorf("close rows: %w", closeErr)
	}

	return jobs, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (domain.Job, error) {
	var (
		job                   domain.Job
		keywords, competitors string
		tier, status          string
		created, updated      int64
	)
	if err := row.Scan(&job.ID, &job.TargetURL, &keywords, &job.SecondaryURL, &competitors,
		&tier, &status, &job.Error, &created, &updated); err != nil {
		return domain.Job{}, err
	}
	if err := json.Unmarshal([]byte(keywords), &job.Keywords); err != nil {
		return domain.Job{}, fmt.Errorf("decode keywords: %w", err)
	}
	if err := json.Unmarshal([]byte(competitors), &job.CompetitorURLs); err != nil {
		return domain.Job{}, fmt.Errorf("decode competitors: %w", err)
	}
	if len(job.CompetitorURLs) == 0 {
		job.CompetitorURLs = nil
	}
	job.Tier = domain.Tier(tier)
	job.Status = domain.JobStatus(status)
	job.CreatedAt = time.UnixMilli(created).UTC()
	job.UpdatedAt = time.UnixMilli(updated).UTC()
	return job, nil
}

func nonNil(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}
