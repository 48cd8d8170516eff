package website

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"

	"PersonaCollector/internal/collector"
	"PersonaCollector/internal/domain"
	"PersonaCollector/internal/fetch"
	"PersonaCollector/internal/status"
)

type fakeModel struct {
	mu         sync.Mutex
	configured bool
	reply      string
	err        error
	prompts    []string
}

func (m *fakeModel) Configured() bool { return m.configured }

func (m *fakeModel) Complete(_ context.Context, _, user string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prompts = append(m.prompts, user)
	return m.reply, m.err
}

func testFetcher(server *httptest.Server) *fetch.Fetcher {
	return fetch.New(server.Client(), fetch.Policy{
		MaxAttempts: 2,
		BaseBackoff: time.Millisecond,
		RetryDelay:  time.Millisecond,
		Timeout:     2 * time.Second,
	}, nil)
}

const landing = `<html><head><script>var x = "tracking";</script><style>body{}</style></head><body>
<nav><a href="/cart">Cart</a></nav>
<h1>Sleep grounded</h1>
<p>Our grounding sheet helps you sleep deeper.</p>
<a href="/pages/about-us">About</a>
<a href="/careers">Join us</a>
<a href="/pages/faq">FAQ</a>
<a href="/products/sheet">Shop the sheet</a>
<a href="/reviews#top">Reviews</a>
<a href="https://elsewhere.example/reviews">Partner reviews</a>
<a href="mailto:hi@shop.example">Mail</a>
<a href="/random">Random</a>
<footer>Copyright footer text</footer>
</body></html>`

func newSite(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/":
			_, _ = w.Write([]byte(landing))
		case "/reviews":
			_, _ = w.Write([]byte(`<html><body><p>"Best sleep in years" - Dana</p></body></html>`))
		case "/pages/faq":
			w.WriteHeader(http.StatusInternalServerError)
		case "/products/sheet":
			_, _ = w.Write([]byte(`<html><body><p>Conductive silver thread.</p></body></html>`))
		default:
			t.Errorf("unexpected page %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func TestRunExtractsFromRankedPages(t *testing.T) {
	t.Parallel()

	server := newSite(t)
	defer server.Close()

	model := &fakeModel{configured: true, reply: "```json\n" + `{
		"reviews": ["Best sleep in years", "best sleep in years"],
		"features": ["Conductive silver thread"],
		"value_propositions": [],
		"pain_points": ["poor sleep"],
		"testimonials": ["Dana: Best sleep in years"],
		"customer_language": ["sleep deeper"],
		"brand_messaging": "Sleep grounded, wake restored."
	}` + "\n```"}

	w := NewWorker(testFetcher(server), model, Options{}, nil)
	res := collector.Run(context.Background(), w, collector.Params{Job: domain.Job{ID: "job-1", TargetURL: server.URL + "/", Keywords: []string{"grounding sheet"}}})

	if !res.IsOK() || !res.HasData() {
		t.Fatalf("expected ok with data, got %+v", res)
	}
	out := res.Payload.(domain.WebsiteExtraction)
	if len(out.Reviews) != 1 {
		t.Fatalf("reviews must be deduplicated case-insensitively, got %q", out.Reviews)
	}
	// 1 review + 1 feature + 1 pain point + 1 testimonial + 1 phrase + brand messaging
	if res.ItemCount() != 6 {
		t.Fatalf("expected item count 6, got %d", res.ItemCount())
	}
	if len(out.Pages) != 3 {
		t.Fatalf("expected landing page plus two readable linked pages, got %q", out.Pages)
	}
	if res.Metadata.Counters["page_failures"] != 1 {
		t.Fatalf("expected the faq failure to be counted, got %v", res.Metadata.Counters)
	}
	if status.Classify(&res) != domain.StatusCompleted {
		t.Fatalf("expected completed")
	}

	prompt := model.prompts[0]
	for _, want := range []string{"grounding sheet", "sleep deeper", "Conductive silver thread", "Best sleep in years"} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("prompt missing %q", want)
		}
	}
	for _, unwanted := range []string{"tracking", "Copyright footer", "Cart"} {
		if strings.Contains(prompt, unwanted) {
			t.Fatalf("prompt must not contain %q", unwanted)
		}
	}
}

func TestRunEmptyExtractionIsNoData(t *testing.T) {
	t.Parallel()

	server := newSite(t)
	defer server.Close()

	model := &fakeModel{configured: true, reply: `{"reviews":[],"features":[],"brand_messaging":"Short"}`}
	w := NewWorker(testFetcher(server), model, Options{MaxLinkedPages: -1}, nil)
	res := collector.Run(context.Background(), w, collector.Params{Job: domain.Job{TargetURL: server.URL}})

	if status.Classify(&res) != domain.StatusCompletedNoData {
		t.Fatalf("expected completed_no_data, got %s (%+v)", status.Classify(&res), res)
	}
	if len(res.Payload.(domain.WebsiteExtraction).Pages) != 1 {
		t.Fatalf("negative link budget must crawl only the landing page")
	}
}

func TestRunFailures(t *testing.T) {
	t.Parallel()

	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(down.Close)
	site := newSite(t)
	t.Cleanup(site.Close)

	cases := []struct {
		name   string
		target string
		model  *fakeModel
		kind   domain.ErrorKind
	}{
		{"unconfigured model", site.URL, &fakeModel{}, domain.KindConfiguration},
		{"landing page missing", down.URL, &fakeModel{configured: true}, domain.KindHTTP},
		{"model garbage", site.URL, &fakeModel{configured: true, reply: "I cannot help with that."}, domain.KindParseFailure},
		{"model reply shape", site.URL, &fakeModel{configured: true, err: fmt.Errorf("chatgpt response: %w: no choices", fetch.ErrDecode)}, domain.KindParseFailure},
		{"model outage", site.URL, &fakeModel{configured: true, err: &fetch.FetchError{Kind: domain.KindRateLimited}}, domain.KindRateLimited},
		{"bad target", "::not a url", &fakeModel{configured: true}, domain.KindParseFailure},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			server := site
			if tc.target == down.URL {
				server = down
			}
			w := NewWorker(testFetcher(server), tc.model, Options{MaxLinkedPages: -1}, nil)
			res := collector.Run(context.Background(), w, collector.Params{Job: domain.Job{TargetURL: tc.target}})
			if !res.IsFailed() || res.ErrorKind() != tc.kind {
				t.Fatalf("expected %s failure, got %+v", tc.kind, res)
			}
		})
	}
}

func TestPreflight(t *testing.T) {
	t.Parallel()

	if err := NewWorker(nil, nil, Options{}, nil).Preflight(); !errors.Is(err, domain.ErrNotConfigured) {
		t.Fatalf("expected not configured, got %v", err)
	}
	if err := NewWorker(nil, &fakeModel{configured: true}, Options{}, nil).Preflight(); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestRankLinks(t *testing.T) {
	t.Parallel()

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(landing))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	base, _ := url.Parse("https://www.shop.example/")

	got := RankLinks(doc, base, 10)
	want := []string{
		"https://www.shop.example/reviews",
		"https://www.shop.example/pages/faq",
		"https://www.shop.example/products/sheet",
		"https://www.shop.example/pages/about-us",
		"https://www.shop.example/careers",
	}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("unexpected ranking:\n got %q\nwant %q", got, want)
	}

	sub, _ := url.Parse("https://blog.shop.example/")
	doc2, _ := goquery.NewDocumentFromReader(strings.NewReader(`<a href="https://www.shop.example/reviews">r</a><a href="https://shop.other.example/reviews">x</a>`))
	if links := RankLinks(doc2, sub, 3); len(links) != 1 || links[0] != "https://www.shop.example/reviews" {
		t.Fatalf("subdomains of the same site must be kept, got %q", links)
	}
}
