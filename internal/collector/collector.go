package collector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"PersonaCollector/internal/domain"
	"PersonaCollector/internal/fetch"
	"PersonaCollector/internal/llmjson"
)

// Params carries all inputs a worker needs for one job.
type Params struct {
	Job domain.Job
	// Upstream holds the persisted results of earlier workers; only synthesis reads it.
	Upstream []domain.SourceResult
}

// Worker wraps one external source behind a uniform contract.
// Run reports every failure as a Failed result instead of returning an error.
type Worker interface {
	Name() domain.SourceName
	Run(ctx context.Context, p Params) domain.SourceResult
}

// Preflighter is implemented by workers that need credentials before a job starts.
type Preflighter interface {
	Preflight() error
}

// Run calls the worker, turning panics and malformed results into Failed.
func Run(ctx context.Context, w Worker, p Params) (res domain.SourceResult) {
	start := time.Now()
	name := w.Name()

	defer func() {
		if rec := recover(); rec != nil {
			res = domain.Failed(name, domain.KindInternal, fmt.Sprintf("worker panicked: %v", rec), domain.Metadata{})
		}
		if err := res.Validate(); err != nil {
			res = domain.Failed(name, domain.KindInternal, err.Error(), res.Metadata)
		}
		if res.Source != name {
			res = domain.Failed(name, domain.KindInternal,
				fmt.Sprintf("worker returned result for %q", res.Source), res.Metadata)
		}
		res.Metadata.Elapsed = time.Since(start)
	}()

	return w.Run(ctx, p)
}

// FailedFrom maps an error to the matching failure kind.
func FailedFrom(source domain.SourceName, err error, md domain.Metadata) domain.SourceResult {
	return domain.Failed(source, KindOf(err), err.Error(), md)
}

// KindOf classifies err into the error taxonomy.
func KindOf(err error) domain.ErrorKind {
	if kind, _, ok := fetch.KindOf(err); ok {
		return kind
	}
	switch {
	case errors.Is(err, domain.ErrNotConfigured):
		return domain.KindConfiguration
	case errors.Is(err, llmjson.ErrParse), errors.Is(err, fetch.ErrDecode):
		return domain.KindParseFailure
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return domain.KindTransport
	default:
		return domain.KindInternal
	}
}
