// Package reviews collects customer reviews from a Judge.me-compatible review API.
package reviews

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"PersonaCollector/internal/collector"
	"PersonaCollector/internal/domain"
	"PersonaCollector/internal/fetch"
	"PersonaCollector/internal/ports"
)

const (
	basicCap  = 20
	higherCap = 200
)

// TierCap is the number of reviews a tier may collect per site.
func TierCap(t domain.Tier) int {
	switch t {
	case domain.TierPremium, domain.TierPro, domain.TierEnterprise:
		return higherCap
	default:
		return basicCap
	}
}

// Options configures the review API.
type Options struct {
	Endpoint        string
	PerPage         int
	SkipCompetitors bool
}

// Worker paginates the review API for the job's shop and its competitors.
type Worker struct {
	fetcher    *fetch.Fetcher
	classifier ports.TextClassifier
	opts       Options
	logger     *slog.Logger
}

var _ collector.Worker = (*Worker)(nil)

// NewWorker wires the fetcher and an optional text classifier for tagging.
func NewWorker(f *fetch.Fetcher, classifier ports.TextClassifier, opts Options, logger *slog.Logger) *Worker {
	if opts.PerPage <= 0 {
		opts.PerPage = 50
	}
	return &Worker{fetcher: f, classifier: classifier, opts: opts, logger: logger}
}

// Name identifies the worker inside the registry.
func (w *Worker) Name() domain.SourceName { return domain.SourceReviews }

// Run collects up to the tier cap per site. Zero reviews is a successful, empty run.
func (w *Worker) Run(ctx context.Context, p collector.Params) domain.SourceResult {
	session := w.fetcher.Session()
	md := domain.Metadata{ExtractionMethod: "judgeme_api"}
	limit := TierCap(p.Job.Tier)

	primary := p.Job.SecondaryURL
	if primary == "" {
		primary = p.Job.TargetURL
	}
	shop, err := shopDomain(primary)
	if err != nil {
		return domain.Failed(domain.SourceReviews, domain.KindParseFailure, err.Error(), md)
	}

	collected, err := w.collectSite(ctx, session, shop, limit, &md)
	md.Attempts = session.Attempts()
	if err != nil {
		return collector.FailedFrom(domain.SourceReviews, fmt.Errorf("shop %s: %w", shop, err), md)
	}
	md.Count("primary_reviews", len(collected))

	if !w.opts.SkipCompetitors {
		for _, raw := range p.Job.CompetitorURLs {
			competitor, err := shopDomain(raw)
			if err != nil || competitor == shop {
				continue
			}
			found, err := w.collectSite(ctx, session, competitor, limit, &md)
			md.Attempts = session.Attempts()
			if err != nil {
				w.warn("competitor reviews failed", "job_id", p.Job.ID, "shop", competitor, "error", err)
				md.Count("competitor_failures", 1)
				continue
			}
			for i := range found {
				found[i].Competitor = true
			}
			md.Count("competitor_reviews", len(found))
			collected = append(collected, found...)
		}
	}

	collected = dedupe(collected)
	w.tag(ctx, collected, &md)

	verified := 0
	for i := range collected {
		collected[i].ID = fmt.Sprintf("R%03d", i+1)
		if collected[i].Verified {
			verified++
		}
	}
	if len(collected) > 0 {
		rate := float64(verified) / float64(len(collected))
		md.VerificationRate = &rate
	}
	md.Count("tier_limit", limit)

	return domain.Ok(domain.NewReviewCollection(collected), md)
}

type apiReview struct {
	Title    string   `json:"title"`
	Body     string   `json:"body"`
	Rating   float64  `json:"rating"`
	Verified flexBool `json:"verified"`
	Reviewer struct {
		Name string `json:"name"`
	} `json:"reviewer"`
	CreatedAt string `json:"created_at"`
}

type apiPage struct {
	Reviews []apiReview `json:"reviews"`
}

func (w *Worker) collectSite(ctx context.Context, session *fetch.Session, shop string, limit int, md *domain.Metadata) ([]domain.Review, error) {
	perPage := w.opts.PerPage
	if perPage > limit {
		perPage = limit
	}

	var out []domain.Review
	for page := 1; len(out) < limit; page++ {
		decoded, err := w.fetchPage(ctx, session, shop, page, perPage)
		if err != nil {
			if page == 1 {
				return nil, err
			}
			// Later pages are best effort; keep what earlier pages returned.
			md.Count("page_failures", 1)
			w.warn("reviews page failed", "shop", shop, "page", page, "kept", len(out), "error", err)
			break
		}
		md.Count("pages", 1)

		for _, r := range decoded.Reviews {
			body := strings.TrimSpace(r.Body)
			if body == "" {
				continue
			}
			out = append(out, domain.Review{
				Site:      shop,
				Title:     strings.TrimSpace(r.Title),
				Body:      body,
				Rating:    r.Rating,
				Verified:  bool(r.Verified),
				Author:    strings.TrimSpace(r.Reviewer.Name),
				CreatedAt: parseTime(r.CreatedAt),
			})
			if len(out) >= limit {
				break
			}
		}

		if len(decoded.Reviews) < perPage {
			break
		}
	}
	return out, nil
}

func (w *Worker) fetchPage(ctx context.Context, session *fetch.Session, shop string, page, perPage int) (apiPage, error) {
	var decoded apiPage
	resp, err := session.Get(ctx, w.pageURL(shop, page, perPage), nil)
	if err != nil {
		return decoded, err
	}
	if err := resp.JSON(&decoded); err != nil {
		return decoded, fmt.Errorf("page %d: %w", page, err)
	}
	return decoded, nil
}

func (w *Worker) pageURL(shop string, page, perPage int) string {
	q := url.Values{}
	q.Set("shop_domain", shop)
	q.Set("page", strconv.Itoa(page))
	q.Set("per_page", strconv.Itoa(perPage))

	sep := "?"
	if strings.Contains(w.opts.Endpoint, "?") {
		sep = "&"
	}
	return w.opts.Endpoint + sep + q.Encode()
}

func (w *Worker) tag(ctx context.Context, reviews []domain.Review, md *domain.Metadata) {
	if w.classifier == nil {
		return
	}
	for i := range reviews {
		text := reviews[i].Body
		if reviews[i].Title != "" {
			text = reviews[i].Title + ". " + text
		}
		tags, err := w.classifier.Classify(ctx, text)
		if err != nil {
			md.Count("tagging_failures", 1)
			continue
		}
		reviews[i].Tags = tags
		for _, tag := range tags {
			md.Count("tag_"+tag, 1)
		}
	}
}

func dedupe(reviews []domain.Review) []domain.Review {
	seen := make(map[string]struct{}, len(reviews))
	out := reviews[:0]
	for _, r := range reviews {
		key := strings.ToLower(r.Body)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, r)
	}
	return out
}

func shopDomain(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Hostname() == "" {
		return "", fmt.Errorf("cannot derive shop domain from %q", raw)
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www."), nil
}

func parseTime(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// flexBool accepts true/false as well as the API's string markers such as "buyer".
type flexBool bool

func (b *flexBool) UnmarshalJSON(data []byte) error {
	var v bool
	if err := json.Unmarshal(data, &v); err == nil {
		*b = flexBool(v)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		*b = false
		return nil
	}
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "nothing", "false", "no", "unverified":
		*b = false
	default:
		*b = true
	}
	return nil
}

func (w *Worker) warn(msg string, args ...interface{}) {
	if w.logger != nil {
		w.logger.Warn(msg, args...)
	}
}
