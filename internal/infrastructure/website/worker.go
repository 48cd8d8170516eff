// Package website extracts customer-facing claims and language from a brand site.
package website

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/publicsuffix"

	"PersonaCollector/internal/collector"
	"PersonaCollector/internal/domain"
	"PersonaCollector/internal/fetch"
	"PersonaCollector/internal/llmjson"
	"PersonaCollector/internal/ports"
)

const (
	defaultLinkedPages = 3
	defaultPageChars   = 8000
)

const systemPrompt = `You analyse marketing websites for customer research.
Respond with a single JSON object with the keys reviews, features, value_propositions,
pain_points, testimonials, customer_language (arrays of short strings) and brand_messaging (string).
Only use text that appears on the pages. Use empty arrays when nothing fits.`

// linkPatterns rank candidate pages; earlier patterns win.
var linkPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)reviews?`),
	regexp.MustCompile(`(?i)testimonials?`),
	regexp.MustCompile(`(?i)faqs?|questions`),
	regexp.MustCompile(`(?i)customers?|stories`),
	regexp.MustCompile(`(?i)products?|shop|collections?`),
	regexp.MustCompile(`(?i)features?|benefits|how-it-works`),
	regexp.MustCompile(`(?i)pricing|plans`),
	regexp.MustCompile(`(?i)about|our-story`),
	regexp.MustCompile(`(?i)careers?|jobs`),
}

var spaces = regexp.MustCompile(`\s+`)

// Options bounds the crawl.
type Options struct {
	MaxLinkedPages int
	MaxPageChars   int
}

// Worker crawls the landing page plus a few ranked same-site pages.
type Worker struct {
	fetcher *fetch.Fetcher
	model   ports.LanguageModel
	opts    Options
	logger  *slog.Logger
}

var (
	_ collector.Worker      = (*Worker)(nil)
	_ collector.Preflighter = (*Worker)(nil)
)

// NewWorker wires the fetcher and the model used for extraction.
func NewWorker(f *fetch.Fetcher, model ports.LanguageModel, opts Options, logger *slog.Logger) *Worker {
	if opts.MaxLinkedPages < 0 {
		opts.MaxLinkedPages = 0
	} else if opts.MaxLinkedPages == 0 {
		opts.MaxLinkedPages = defaultLinkedPages
	}
	if opts.MaxPageChars <= 0 {
		opts.MaxPageChars = defaultPageChars
	}
	return &Worker{fetcher: f, model: model, opts: opts, logger: logger}
}

// Name identifies the worker inside the registry.
func (w *Worker) Name() domain.SourceName { return domain.SourceWebsite }

// Preflight fails without a configured language model.
func (w *Worker) Preflight() error {
	if w.model == nil || !w.model.Configured() {
		return fmt.Errorf("website source: %w: language model", domain.ErrNotConfigured)
	}
	return nil
}

type page struct {
	url  string
	text string
}

// Run fails when the landing page or the extraction fails; secondary pages are best effort.
func (w *Worker) Run(ctx context.Context, p collector.Params) domain.SourceResult {
	md := domain.Metadata{ExtractionMethod: "html_llm"}
	if err := w.Preflight(); err != nil {
		return collector.FailedFrom(domain.SourceWebsite, err, md)
	}

	base, err := url.Parse(strings.TrimSpace(p.Job.TargetURL))
	if err != nil || base.Host == "" {
		return domain.Failed(domain.SourceWebsite, domain.KindParseFailure, fmt.Sprintf("invalid target url %q", p.Job.TargetURL), md)
	}

	session := w.fetcher.Session()

	doc, err := w.document(ctx, session, base.String())
	if err != nil {
		md.Attempts = session.Attempts()
		return collector.FailedFrom(domain.SourceWebsite, err, md)
	}

	pages := []page{{url: base.String(), text: w.pageText(doc)}}
	for _, link := range RankLinks(doc, base, w.opts.MaxLinkedPages) {
		linked, err := w.document(ctx, session, link)
		if err != nil {
			md.Count("page_failures", 1)
			w.debug("linked page skipped", "job_id", p.Job.ID, "url", link, "error", err)
			continue
		}
		pages = append(pages, page{url: link, text: w.pageText(linked)})
	}
	md.Count("pages", len(pages))

	raw, err := w.model.Complete(ctx, systemPrompt, buildPrompt(p.Job, pages))
	md.Attempts = session.Attempts()
	if err != nil {
		return collector.FailedFrom(domain.SourceWebsite, err, md)
	}

	var out domain.WebsiteExtraction
	if err := llmjson.Decode(raw, &out); err != nil {
		return collector.FailedFrom(domain.SourceWebsite, err, md)
	}

	out.Reviews = dedupe(out.Reviews)
	out.Features = dedupe(out.Features)
	out.ValuePropositions = dedupe(out.ValuePropositions)
	out.PainPoints = dedupe(out.PainPoints)
	out.Testimonials = dedupe(out.Testimonials)
	out.CustomerLanguage = dedupe(out.CustomerLanguage)
	out.BrandMessaging = strings.TrimSpace(out.BrandMessaging)
	out.Pages = make([]string, 0, len(pages))
	for _, pg := range pages {
		out.Pages = append(out.Pages, pg.url)
	}

	return domain.Ok(out, md)
}

func (w *Worker) document(ctx context.Context, s *fetch.Session, pageURL string) (*goquery.Document, error) {
	resp, err := s.Get(ctx, pageURL, nil)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", fetch.ErrDecode, pageURL, err)
	}
	return doc, nil
}

func (w *Worker) pageText(doc *goquery.Document) string {
	doc.Find("script, style, nav, footer, noscript, svg").Remove()
	text := strings.TrimSpace(spaces.ReplaceAllString(doc.Find("body").Text(), " "))
	if text == "" {
		text = strings.TrimSpace(spaces.ReplaceAllString(doc.Text(), " "))
	}
	if r := []rune(text); len(r) > w.opts.MaxPageChars {
		text = string(r[:w.opts.MaxPageChars])
	}
	return text
}

// RankLinks returns up to limit same-site links ordered by pattern priority.
// Links that match no pattern are dropped.
func RankLinks(doc *goquery.Document, base *url.URL, limit int) []string {
	site := registrable(base.Hostname())

	type candidate struct {
		url  string
		rank int
	}
	var (
		found []candidate
		seen  = map[string]struct{}{strings.TrimRight(base.String(), "/"): {}}
	)

	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			return
		}
		abs := base.ResolveReference(ref)
		if abs.Scheme != "http" && abs.Scheme != "https" {
			return
		}
		if registrable(abs.Hostname()) != site {
			return
		}
		abs.Fragment = ""
		key := strings.TrimRight(abs.String(), "/")
		if _, ok := seen[key]; ok {
			return
		}

		rank := -1
		label := abs.Path + " " + strings.TrimSpace(a.Text())
		for j, re := range linkPatterns {
			if re.MatchString(label) {
				rank = j
				break
			}
		}
		if rank < 0 {
			return
		}
		seen[key] = struct{}{}
		found = append(found, candidate{url: abs.String(), rank: rank})
	})

	sort.SliceStable(found, func(i, j int) bool { return found[i].rank < found[j].rank })
	if len(found) > limit {
		found = found[:limit]
	}
	out := make([]string, 0, len(found))
	for _, c := range found {
		out = append(out, c.url)
	}
	return out
}

func registrable(host string) string {
	host = strings.ToLower(host)
	if net.ParseIP(host) != nil {
		return host
	}
	site, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return site
}

func buildPrompt(job domain.Job, pages []page) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Product keywords: %s\n", job.Phrase())
	fmt.Fprintf(&b, "Website: %s\n\n", job.TargetURL)
	for i, pg := range pages {
		fmt.Fprintf(&b, "--- PAGE %d: %s ---\n%s\n\n", i+1, pg.url, pg.text)
	}
	return b.String()
}

func dedupe(items []string) []string {
	out := make([]string, 0, len(items))
	seen := map[string]struct{}{}
	for _, item := range items {
		item = strings.TrimSpace(item)
		key := strings.ToLower(item)
		if item == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, item)
	}
	return out
}

func (w *Worker) debug(msg string, args ...interface{}) {
	if w.logger != nil {
		w.logger.Debug(msg, args...)
	}
}
