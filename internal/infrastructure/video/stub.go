package video

import (
	"context"
	"fmt"
	"strings"

	"PersonaCollector/internal/collector"
	"PersonaCollector/internal/domain"
)

// stubTemplates are filled with the keyword; %s is replaced verbatim.
var stubTemplates = []string{
	"I was so frustrated with my old %s, it was broken within a month and useless after that.",
	"Finally found a %s that actually works, what a relief after years of bad sleep.",
	"Honestly this %s is amazing, I love it and my partner is excited to try it too.",
	"Not sure the %s is worth it, a bit worried about the price and hesitant to order.",
	"first",
	"Check out my channel for the best %s deals, click here!",
}

// StubWorker returns canned comments for tests and offline demos.
// It scores them with the same filters as the live worker.
type StubWorker struct{}

var _ collector.Worker = StubWorker{}

// Name identifies the worker inside the registry.
func (StubWorker) Name() domain.SourceName { return domain.SourceVideo }

// Run never fails and makes no network calls.
func (StubWorker) Run(ctx context.Context, p collector.Params) domain.SourceResult {
	md := domain.Metadata{ExtractionMethod: "stub"}
	var out domain.VideoCollection

	for k, keyword := range p.Job.Keywords {
		keyword = strings.TrimSpace(keyword)
		if keyword == "" {
			continue
		}
		v := domain.Video{
			ID:      fmt.Sprintf("stub-%d", k+1),
			Title:   fmt.Sprintf("%s honest review", keyword),
			Channel: "Stub Channel",
			Keyword: keyword,
		}
		out.Videos = append(out.Videos, v)

		for i, tpl := range stubTemplates {
			c := domain.VideoComment{
				ID:         fmt.Sprintf("YT_stub-%d-%d", k+1, i+1),
				VideoID:    v.ID,
				VideoTitle: v.Title,
				Text:       strings.ReplaceAll(tpl, "%s", keyword),
				Author:     fmt.Sprintf("viewer%d", i+1),
				Likes:      len(stubTemplates) - i,
			}
			if score(&c, keyword) {
				out.Comments = append(out.Comments, c)
			}
		}
	}

	md.Count("videos", len(out.Videos))
	return domain.Ok(out, md)
}
