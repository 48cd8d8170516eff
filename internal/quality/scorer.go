// Package quality scores the evidence gathered for a job.
package quality

import (
	"fmt"

	"PersonaCollector/internal/domain"
)

const (
	// DefaultMinimum is the item count below which evidence is considered thin.
	DefaultMinimum = 20

	belowMinimumPenalty  = 30
	missingSourcePenalty = 10
	verificationPenalty  = 20
	verificationFloor    = 0.5
)

var labels = map[domain.SourceName]string{
	domain.SourceWebsite:   "Website",
	domain.SourceReviews:   "Customer review",
	domain.SourceVideo:     "Video comment",
	domain.SourceSocial:    "Social discussion",
	domain.SourceSynthesis: "Synthesis",
}

// Scorer turns a set of source results into a QualityScore.
type Scorer struct {
	Minimum  int
	Expected []domain.SourceName
}

// NewScorer returns a scorer over the evidence sources with the given minimum.
func NewScorer(minimum int) Scorer {
	if minimum <= 0 {
		minimum = DefaultMinimum
	}
	return Scorer{Minimum: minimum, Expected: domain.EvidenceSources}
}

// Score is deterministic and independent of the order of results.
func (s Scorer) Score(results []domain.SourceResult) domain.QualityScore {
	minimum := s.Minimum
	if minimum <= 0 {
		minimum = DefaultMinimum
	}
	expected := s.Expected
	if expected == nil {
		expected = domain.EvidenceSources
	}

	best := pickBest(results)

	var total int
	for _, src := range expected {
		if r, ok := best[src]; ok && r.IsOK() {
			total += r.ItemCount()
		}
	}

	score := 100
	out := domain.QualityScore{
		TotalItemCount: total,
		MeetsMinimum:   total >= minimum,
		MissingSources: []domain.SourceName{},
		Warnings:       []string{},
	}

	if !out.MeetsMinimum {
		score -= belowMinimumPenalty
		out.Warnings = append(out.Warnings, fmt.Sprintf(
			"WARNING: Sample size below recommended minimum (%d items). Current: %d items.", minimum, total))
	}

	for _, src := range expected {
		if r, ok := best[src]; ok && r.IsOK() {
			continue
		}
		score -= missingSourcePenalty
		out.MissingSources = append(out.MissingSources, src)
		out.Warnings = append(out.Warnings, fmt.Sprintf("DATA LIMITATION: %s data not available for analysis.", label(src)))
	}

	if r, ok := best[domain.SourceReviews]; ok && r.IsOK() && r.Metadata.VerificationRate != nil {
		rate := *r.Metadata.VerificationRate
		out.VerificationRate = &rate
		if rate < verificationFloor {
			score -= verificationPenalty
			out.Warnings = append(out.Warnings, fmt.Sprintf(
				"WARNING: Verified purchase rate %.0f%% is below %.0f%%.", rate*100, verificationFloor*100))
		}
	}

	if score < 0 {
		score = 0
	}
	out.Score = score
	return out
}

// pickBest keeps one result per source: Ok over Failed, then the larger item count.
func pickBest(results []domain.SourceResult) map[domain.SourceName]domain.SourceResult {
	best := make(map[domain.SourceName]domain.SourceResult, len(results))
	for _, r := range results {
		cur, ok := best[r.Source]
		if !ok || better(r, cur) {
			best[r.Source] = r
		}
	}
	return best
}

func better(a, b domain.SourceResult) bool {
	if a.IsOK() != b.IsOK() {
		return a.IsOK()
	}
	if a.ItemCount() != b.ItemCount() {
		return a.ItemCount() > b.ItemCount()
	}
	return rateOf(a) > rateOf(b)
}

func rateOf(r domain.SourceResult) float64 {
	if r.Metadata.VerificationRate == nil {
		return -1
	}
	return *r.Metadata.VerificationRate
}

func label(src domain.SourceName) string {
	if l, ok := labels[src]; ok {
		return l
	}
	return string(src)
}
