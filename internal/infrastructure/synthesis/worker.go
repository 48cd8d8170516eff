// Package synthesis turns collected evidence into a single customer persona.
package synthesis

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"PersonaCollector/internal/collector"
	"PersonaCollector/internal/domain"
	"PersonaCollector/internal/llmjson"
	"PersonaCollector/internal/ports"
	"PersonaCollector/internal/quality"
)

const (
	defaultExcerpts    = 15
	defaultExcerptSize = 200
)

const systemPrompt = `You are a customer-research analyst building one buyer persona strictly from the evidence given.
Respond with a single JSON object with the keys name, demographics (age_range, gender, location, income,
education, occupation), psychographics, pain_points, motivations (arrays of strings), quotes (array of
{text, reference, theme} where reference is an evidence tag such as R001-Reviews), narrative (string) and
confidence (0..1). Never invent quotes. If the evidence is too thin, start the narrative with INSUFFICIENT_DATA.`

var platforms = map[domain.SourceName]string{
	domain.SourceWebsite: "Website",
	domain.SourceReviews: "Reviews",
	domain.SourceVideo:   "YouTube",
	domain.SourceSocial:  "Reddit",
}

// Options bounds the prompt size.
type Options struct {
	ExcerptsPerSource int
	ExcerptChars      int
	MinimumItems      int
}

// Worker runs once per job after every evidence source has been persisted.
type Worker struct {
	model  ports.LanguageModel
	opts   Options
	logger *slog.Logger
}

var (
	_ collector.Worker      = (*Worker)(nil)
	_ collector.Preflighter = (*Worker)(nil)
)

// NewWorker wires the language model.
func NewWorker(model ports.LanguageModel, opts Options, logger *slog.Logger) *Worker {
	if opts.ExcerptsPerSource <= 0 {
		opts.ExcerptsPerSource = defaultExcerpts
	}
	if opts.ExcerptChars <= 0 {
		opts.ExcerptChars = defaultExcerptSize
	}
	if opts.MinimumItems <= 0 {
		opts.MinimumItems = quality.DefaultMinimum
	}
	return &Worker{model: model, opts: opts, logger: logger}
}

// Name identifies the worker inside the registry.
func (w *Worker) Name() domain.SourceName { return domain.SourceSynthesis }

// Preflight fails without a configured language model.
func (w *Worker) Preflight() error {
	if w.model == nil || !w.model.Configured() {
		return fmt.Errorf("synthesis: %w: language model", domain.ErrNotConfigured)
	}
	return nil
}

// Run skips the model when no upstream source produced data.
func (w *Worker) Run(ctx context.Context, p collector.Params) domain.SourceResult {
	md := domain.Metadata{ExtractionMethod: "llm_persona"}
	ev := Gather(p.Upstream, w.opts.ExcerptsPerSource, w.opts.ExcerptChars)
	for _, src := range domain.EvidenceSources {
		md.Count("excerpts_"+string(src), len(ev.bySource[src]))
	}

	if !ev.anyData {
		md.ExtractionMethod = "skipped"
		narrative := InsufficientNarrative(ev.Counts)
		return domain.Ok(domain.SynthesisResult{Persona: domain.Persona{Narrative: narrative}, SourceCounts: ev.Counts}, md)
	}

	if err := w.Preflight(); err != nil {
		return collector.FailedFrom(domain.SourceSynthesis, err, md)
	}

	prompt := BuildPrompt(p.Job, p.Upstream, ev, w.opts.MinimumItems)
	raw, err := w.model.Complete(ctx, systemPrompt, prompt)
	if err != nil {
		kind := collector.KindOf(err)
		if kind == domain.KindInternal {
			kind = domain.KindTransport
		}
		return domain.Failed(domain.SourceSynthesis, kind, err.Error(), md)
	}

	var persona domain.Persona
	if err := llmjson.Decode(raw, &persona); err != nil {
		return collector.FailedFrom(domain.SourceSynthesis, err, md)
	}

	persona.Narrative = strings.TrimSpace(persona.Narrative)
	if persona.Confidence < 0 {
		persona.Confidence = 0
	} else if persona.Confidence > 1 {
		persona.Confidence = 1
	}

	quotes := persona.Quotes[:0]
	for _, q := range persona.Quotes {
		if _, ok := ev.tags[q.Reference]; ok && strings.TrimSpace(q.Text) != "" {
			quotes = append(quotes, q)
			continue
		}
		md.Count("unreferenced_quotes", 1)
	}
	persona.Quotes = quotes

	w.debug("persona generated", "job_id", p.Job.ID, "quotes", len(quotes), "narrative_len", len(persona.Narrative))
	return domain.Ok(domain.SynthesisResult{Persona: persona, Raw: raw, SourceCounts: ev.Counts}, md)
}

// InsufficientNarrative explains why no persona was generated.
func InsufficientNarrative(counts map[domain.SourceName]int) string {
	parts := make([]string, 0, len(domain.EvidenceSources))
	for _, src := range domain.EvidenceSources {
		parts = append(parts, fmt.Sprintf("%s=%d", src, counts[src]))
	}
	return fmt.Sprintf("%s: no source returned usable evidence (%s).", domain.MarkerInsufficientData, strings.Join(parts, ", "))
}

func (w *Worker) debug(msg string, args ...interface{}) {
	if w.logger != nil {
		w.logger.Debug(msg, args...)
	}
}
