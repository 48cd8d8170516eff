package synthesis

import (
	"fmt"
	"strings"

	"PersonaCollector/internal/domain"
	"PersonaCollector/internal/quality"
)

// Excerpt is one tagged piece of evidence shown to the model.
type Excerpt struct {
	Tag    string
	Source domain.SourceName
	Text   string
}

// Evidence is the prompt-ready view of the upstream results.
type Evidence struct {
	Excerpts []Excerpt
	Counts   map[domain.SourceName]int

	bySource map[domain.SourceName][]Excerpt
	tags     map[string]struct{}
	anyData  bool
}

// Gather tags up to perSource excerpts per evidence source with a running
// R%03d-<Platform> reference, in collection order.
func Gather(upstream []domain.SourceResult, perSource, maxChars int) Evidence {
	ev := Evidence{
		Counts:   map[domain.SourceName]int{},
		bySource: map[domain.SourceName][]Excerpt{},
		tags:     map[string]struct{}{},
	}

	chosen := map[domain.SourceName]domain.SourceResult{}
	for _, r := range upstream {
		if !r.IsOK() {
			continue
		}
		if cur, ok := chosen[r.Source]; !ok || r.ItemCount() > cur.ItemCount() {
			chosen[r.Source] = r
		}
	}

	n := 0
	for _, src := range domain.EvidenceSources {
		r, ok := chosen[src]
		if !ok {
			continue
		}
		ev.Counts[src] = r.ItemCount()
		if r.HasData() {
			ev.anyData = true
		}

		for _, text := range texts(r.Payload) {
			if len(ev.bySource[src]) == perSource {
				break
			}
			text = clip(strings.Join(strings.Fields(text), " "), maxChars)
			if text == "" {
				continue
			}
			n++
			ex := Excerpt{Tag: fmt.Sprintf("R%03d-%s", n, platforms[src]), Source: src, Text: text}
			ev.Excerpts = append(ev.Excerpts, ex)
			ev.bySource[src] = append(ev.bySource[src], ex)
			ev.tags[ex.Tag] = struct{}{}
		}
	}
	return ev
}

func texts(p domain.Payload) []string {
	switch v := p.(type) {
	case domain.WebsiteExtraction:
		var out []string
		out = append(out, v.Testimonials...)
		out = append(out, v.Reviews...)
		out = append(out, v.CustomerLanguage...)
		out = append(out, v.PainPoints...)
		out = append(out, v.ValuePropositions...)
		out = append(out, v.Features...)
		if v.BrandMessaging != "" {
			out = append(out, "Brand messaging: "+v.BrandMessaging)
		}
		return out
	case domain.ReviewCollection:
		out := make([]string, 0, len(v.Reviews))
		for _, r := range v.Reviews {
			text := r.Body
			if r.Title != "" {
				text = r.Title + ". " + r.Body
			}
			if r.Rating > 0 {
				text = fmt.Sprintf("(%g/5) %s", r.Rating, text)
			}
			out = append(out, text)
		}
		return out
	case domain.VideoCollection:
		out := make([]string, 0, len(v.Comments))
		for _, c := range v.Comments {
			out = append(out, c.Text)
		}
		return out
	case domain.SocialCollection:
		out := make([]string, 0, len(v.Posts)+len(v.Comments))
		for _, post := range v.Posts {
			text := post.Text
			if post.Title != "" && post.Title != post.Text {
				text = post.Title + ": " + post.Text
			}
			out = append(out, text)
		}
		for _, c := range v.Comments {
			out = append(out, c.Text)
		}
		return out
	default:
		return nil
	}
}

func clip(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	if max <= 3 {
		return string(r[:max])
	}
	return strings.TrimSpace(string(r[:max-3])) + "..."
}

// BuildPrompt lays out counts, data limitations and the tagged excerpts.
func BuildPrompt(job domain.Job, upstream []domain.SourceResult, ev Evidence, minimum int) string {
	score := quality.NewScorer(minimum).Score(upstream)

	var b strings.Builder
	fmt.Fprintf(&b, "Product keywords: %s\n", strings.Join(job.Keywords, ", "))
	fmt.Fprintf(&b, "Target website: %s\n\n", job.TargetURL)

	b.WriteString("Evidence counts:\n")
	for _, src := range domain.EvidenceSources {
		fmt.Fprintf(&b, "- %s: %d items\n", platforms[src], ev.Counts[src])
	}
	fmt.Fprintf(&b, "Total: %d items\n\n", score.TotalItemCount)

	for _, w := range score.Warnings {
		b.WriteString(w)
		b.WriteByte('\n')
	}
	for _, src := range domain.EvidenceSources {
		if n, ok := ev.Counts[src]; ok && n == 0 {
			fmt.Fprintf(&b, "DATA LIMITATION: %s returned no items.\n", platforms[src])
		}
	}

	b.WriteString("\nEvidence (cite the tag in brackets for every quote):\n")
	for _, ex := range ev.Excerpts {
		fmt.Fprintf(&b, "[%s] %s\n", ex.Tag, ex.Text)
	}
	return b.String()
}
