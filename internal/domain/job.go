package domain

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// JobStatus enumerates the lifecycle of a collection job.
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// Tier selects how much review volume a job is entitled to.
type Tier string

const (
	TierBasic      Tier = "basic"
	TierPremium    Tier = "premium"
	TierPro        Tier = "pro"
	TierEnterprise Tier = "enterprise"
)

// MaxCompetitors bounds CompetitorURLs on a job.
const MaxCompetitors = 5

// Job is one analysis run over a target product or company.
type Job struct {
	ID             string    `json:"id"`
	TargetURL      string    `json:"target_url"`
	Keywords       []string  `json:"keywords"`
	SecondaryURL   string    `json:"secondary_url,omitempty"`
	CompetitorURLs []string  `json:"competitor_urls,omitempty"`
	Tier           Tier      `json:"tier"`
	Status         JobStatus `json:"status"`
	Error          string    `json:"error,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Phrase joins the keywords into the primary search phrase.
func (j Job) Phrase() string {
	return strings.Join(j.Keywords, " ")
}

// CollectionRequest is what callers submit to start a job.
type CollectionRequest struct {
	TargetURL      string   `json:"target_url"`
	Keywords       []string `json:"keywords"`
	SecondaryURL   string   `json:"secondary_url,omitempty"`
	CompetitorURLs []string `json:"competitor_urls,omitempty"`
	Tier           Tier     `json:"tier,omitempty"`
}

// Normalize trims inputs, drops blanks and duplicates, and validates the request.
func (r CollectionRequest) Normalize() (CollectionRequest, error) {
	out := CollectionRequest{
		TargetURL:    strings.TrimSpace(r.TargetURL),
		SecondaryURL: strings.TrimSpace(r.SecondaryURL),
		Tier:         Tier(strings.ToLower(strings.TrimSpace(string(r.Tier)))),
	}
	if out.Tier == "" {
		out.Tier = TierBasic
	}

	if err := checkURL(out.TargetURL); err != nil {
		return CollectionRequest{}, fmt.Errorf("%w: target_url: %v", ErrInvalidRequest, err)
	}
	if out.SecondaryURL != "" {
		if err := checkURL(out.SecondaryURL); err != nil {
			return CollectionRequest{}, fmt.Errorf("%w: secondary_url: %v", ErrInvalidRequest, err)
		}
	}

	for _, kw := range r.Keywords {
		if kw = strings.TrimSpace(kw); kw != "" {
			out.Keywords = append(out.Keywords, kw)
		}
	}
	if len(out.Keywords) == 0 {
		return CollectionRequest{}, fmt.Errorf("%w: at least one keyword is required", ErrInvalidRequest)
	}

	seen := map[string]struct{}{}
	for _, raw := range r.CompetitorURLs {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if _, ok := seen[raw]; ok {
			continue
		}
		if err := checkURL(raw); err != nil {
			return CollectionRequest{}, fmt.Errorf("%w: competitor_urls: %v", ErrInvalidRequest, err)
		}
		seen[raw] = struct{}{}
		out.CompetitorURLs = append(out.CompetitorURLs, raw)
	}
	if len(out.CompetitorURLs) > MaxCompetitors {
		return CollectionRequest{}, fmt.Errorf("%w: at most %d competitor urls", ErrInvalidRequest, MaxCompetitors)
	}

	return out, nil
}

func checkURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%q is not an http(s) url", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("%q has no host", raw)
	}
	return nil
}
