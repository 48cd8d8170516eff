package synthesis

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"PersonaCollector/internal/collector"
	"PersonaCollector/internal/config"
	"PersonaCollector/internal/domain"
	"PersonaCollector/internal/fetch"
	"PersonaCollector/internal/infrastructure/llm"
	"PersonaCollector/internal/status"
)

type fakeModel struct {
	configured bool
	reply      string
	err        error
	calls      int
	system     string
	prompt     string
}

func (m *fakeModel) Configured() bool { return m.configured }

func (m *fakeModel) Complete(_ context.Context, system, user string) (string, error) {
	m.calls++
	m.system, m.prompt = system, user
	return m.reply, m.err
}

func reviewsResult(n int) domain.SourceResult {
	reviews := make([]domain.Review, n)
	for i := range reviews {
		reviews[i] = domain.Review{ID: fmt.Sprintf("R%03d", i+1), Body: fmt.Sprintf("review %d about sleeping better", i+1), Rating: 4.5}
	}
	return domain.Ok(domain.NewReviewCollection(reviews), domain.Metadata{})
}

func socialResult() domain.SourceResult {
	return domain.Ok(domain.SocialCollection{
		Posts:    []domain.SocialItem{{ID: "RP_a", Kind: "post", Title: "Does it work?", Text: "Tried it for a month " + strings.Repeat("and more ", 40)}},
		Comments: []domain.SocialItem{{ID: "RC_b", Kind: "comment", Text: "It did nothing for me"}},
	}, domain.Metadata{})
}

const personaJSON = `{
	"name": "Restless Rachel",
	"demographics": {"age_range": "35-50", "gender": "female"},
	"pain_points": ["poor sleep"],
	"quotes": [
		{"text": "review 1 about sleeping better", "reference": "R001-Reviews"},
		{"text": "made up", "reference": "R999-Reviews"}
	],
	"narrative": "Rachel is a busy professional who has struggled with sleep for years and looks for natural, drug-free fixes she can trust.",
	"confidence": 1.4
}`

func TestRunWithoutUpstreamDataSkipsModel(t *testing.T) {
	t.Parallel()

	model := &fakeModel{configured: true}
	w := NewWorker(model, Options{}, nil)

	upstream := []domain.SourceResult{
		domain.Failed(domain.SourceWebsite, domain.KindHTTP, "404", domain.Metadata{}),
		domain.Ok(domain.NewReviewCollection(nil), domain.Metadata{}),
	}
	for name, up := range map[string][]domain.SourceResult{"none": nil, "empty or failed": upstream} {
		res := collector.Run(context.Background(), w, collector.Params{Upstream: up})
		if !res.IsOK() || res.HasData() {
			t.Fatalf("%s: expected ok without data, got %+v", name, res)
		}
		narrative := res.Payload.(domain.SynthesisResult).Persona.Narrative
		if !strings.Contains(narrative, domain.MarkerInsufficientData) {
			t.Fatalf("%s: missing marker in %q", name, narrative)
		}
		if status.Classify(&res) != domain.StatusCompletedNoData {
			t.Fatalf("%s: expected completed_no_data", name)
		}
	}
	if model.calls != 0 {
		t.Fatalf("model must not be called, got %d calls", model.calls)
	}
}

func TestRunGeneratesPersona(t *testing.T) {
	t.Parallel()

	model := &fakeModel{configured: true, reply: "Here you go:\n" + personaJSON}
	w := NewWorker(model, Options{}, nil)

	upstream := []domain.SourceResult{
		reviewsResult(3),
		socialResult(),
		domain.Failed(domain.SourceVideo, domain.KindConfiguration, "no key", domain.Metadata{}),
	}
	res := collector.Run(context.Background(), w, collector.Params{
		Job:      domain.Job{ID: "job-1", TargetURL: "https://shop.example", Keywords: []string{"grounding sheet"}},
		Upstream: upstream,
	})

	if !res.IsOK() || !res.HasData() {
		t.Fatalf("expected ok with data, got %+v", res)
	}
	out := res.Payload.(domain.SynthesisResult)
	if out.Persona.Confidence != 1 {
		t.Fatalf("confidence must be clamped, got %v", out.Persona.Confidence)
	}
	if len(out.Persona.Quotes) != 1 || res.Metadata.Counters["unreferenced_quotes"] != 1 {
		t.Fatalf("quotes citing unknown tags must be dropped: %+v", out.Persona.Quotes)
	}
	if out.SourceCounts[domain.SourceReviews] != 3 || out.SourceCounts[domain.SourceSocial] != 2 {
		t.Fatalf("unexpected source counts %v", out.SourceCounts)
	}

	for _, want := range []string{
		"grounding sheet",
		"[R001-Reviews] (4.5/5) review 1 about sleeping better",
		"[R004-Reddit] Does it work?: Tried it",
		"[R005-Reddit] It did nothing for me",
		"DATA LIMITATION: Website data not available for analysis.",
		"DATA LIMITATION: Video comment data not available for analysis.",
		"WARNING: Sample size below recommended minimum (20 items). Current: 5 items.",
	} {
		if !strings.Contains(model.prompt, want) {
			t.Fatalf("prompt missing %q:\n%s", want, model.prompt)
		}
	}
	if model.system == "" {
		t.Fatalf("system prompt not sent")
	}
}

func TestRunFailures(t *testing.T) {
	t.Parallel()

	upstream := []domain.SourceResult{reviewsResult(2)}
	cases := []struct {
		name  string
		model *fakeModel
		kind  domain.ErrorKind
	}{
		{"unconfigured", &fakeModel{}, domain.KindConfiguration},
		{"rate limited", &fakeModel{configured: true, err: &fetch.FetchError{Kind: domain.KindRateLimited, Attempts: 3}}, domain.KindRateLimited},
		{"opaque error", &fakeModel{configured: true, err: errors.New("connection reset")}, domain.KindTransport},
		{"not json", &fakeModel{configured: true, reply: "Sorry, I can't."}, domain.KindParseFailure},
		{"empty choices", &fakeModel{configured: true, err: fmt.Errorf("chatgpt response: %w: no choices", fetch.ErrDecode)}, domain.KindParseFailure},
	}
	for _, tc := range cases {
		res := collector.Run(context.Background(), NewWorker(tc.model, Options{}, nil), collector.Params{Upstream: upstream})
		if !res.IsFailed() || res.ErrorKind() != tc.kind {
			t.Fatalf("%s: expected %s, got %+v", tc.name, tc.kind, res)
		}
		if status.Classify(&res) != domain.StatusFailed {
			t.Fatalf("%s: expected failed", tc.name)
		}
	}
}

func TestRunMarkerInReplyIsNoData(t *testing.T) {
	t.Parallel()

	model := &fakeModel{configured: true, reply: `{"narrative":"INSUFFICIENT_DATA: only two reviews were available, which is not enough to describe a buyer with any confidence at all."}`}
	res := collector.Run(context.Background(), NewWorker(model, Options{}, nil), collector.Params{Upstream: []domain.SourceResult{reviewsResult(2)}})
	if !res.IsOK() || res.HasData() {
		t.Fatalf("marker must downgrade to no data, got %+v", res)
	}
}

func TestGatherCapsExcerpts(t *testing.T) {
	t.Parallel()

	ev := Gather([]domain.SourceResult{reviewsResult(30), socialResult()}, 15, 50)
	if len(ev.Excerpts) != 17 {
		t.Fatalf("expected 15 review and 2 social excerpts, got %d", len(ev.Excerpts))
	}
	if ev.Excerpts[14].Tag != "R015-Reviews" || ev.Excerpts[15].Tag != "R016-Reddit" {
		t.Fatalf("tags must run globally: %s, %s", ev.Excerpts[14].Tag, ev.Excerpts[15].Tag)
	}
	for _, ex := range ev.Excerpts {
		if len([]rune(ex.Text)) > 50 {
			t.Fatalf("excerpt not clipped: %q", ex.Text)
		}
	}
	if !strings.HasSuffix(ev.Excerpts[15].Text, "...") {
		t.Fatalf("long excerpt must end with an ellipsis: %q", ev.Excerpts[15].Text)
	}
	if ev.Counts[domain.SourceReviews] != 30 {
		t.Fatalf("counts must reflect all items, got %d", ev.Counts[domain.SourceReviews])
	}
}

func TestRunEmptyModelReplyIsParseFailure(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer server.Close()

	model := llm.NewChatGPTClient(config.ChatGPTConfig{Endpoint: server.URL, Model: "m", APIKey: "k"})
	res := collector.Run(context.Background(), NewWorker(model, Options{}, nil), collector.Params{Upstream: []domain.SourceResult{reviewsResult(3)}})
	if !res.IsFailed() || res.ErrorKind() != domain.KindParseFailure {
		t.Fatalf("expected parse_failure, got %+v", res)
	}
}
