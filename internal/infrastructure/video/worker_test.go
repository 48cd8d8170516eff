package video

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"PersonaCollector/internal/collector"
	"PersonaCollector/internal/domain"
	"PersonaCollector/internal/fetch"
	"PersonaCollector/internal/status"
)

func testFetcher(server *httptest.Server) *fetch.Fetcher {
	return fetch.New(server.Client(), fetch.Policy{
		MaxAttempts: 2,
		BaseBackoff: time.Millisecond,
		RetryDelay:  time.Millisecond,
		Timeout:     2 * time.Second,
	}, nil)
}

type fakeDetails struct{}

func (fakeDetails) Lookup(_ context.Context, id string) (domain.Video, error) {
	if id == "v2" {
		return domain.Video{}, errors.New("unavailable")
	}
	return domain.Video{ID: id, Duration: 5 * time.Minute, Views: 1200, Channel: "from details"}, nil
}

const threads = `{"items":[
	{"id":"t1","snippet":{"totalReplyCount":2,"topLevelComment":{"id":"c1","snippet":{"textOriginal":"My grounding sheet is amazing, I love how I sleep now.","authorDisplayName":"Ann","likeCount":9,"publishedAt":"2025-01-02T03:04:05Z"}}}},
	{"id":"t2","snippet":{"topLevelComment":{"id":"c2","snippet":{"textOriginal":"nice"}}}},
	{"id":"t3","snippet":{"topLevelComment":{"id":"c3","snippet":{"textOriginal":"Subscribe to my channel for grounding sheet giveaways!"}}}},
	{"id":"t4","snippet":{"topLevelComment":{"id":"c4","snippet":{"textOriginal":"Completely unrelated cooking question about pasta."}}}}
]}`

func TestRunCollectsScoredComments(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("key") != "secret" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		switch r.URL.Path {
		case "/search":
			if r.URL.Query().Get("maxResults") != "3" {
				t.Errorf("unexpected maxResults %q", r.URL.Query().Get("maxResults"))
			}
			_, _ = w.Write([]byte(`{"items":[
				{"id":{"videoId":"v1"},"snippet":{"title":"Grounding sheet review","channelTitle":"Sleep Lab"}},
				{"id":{"videoId":"v2"},"snippet":{"title":"Earthing explained"}}]}`))
		case "/commentThreads":
			if r.URL.Query().Get("videoId") == "v2" {
				w.WriteHeader(http.StatusForbidden)
				return
			}
			_, _ = w.Write([]byte(threads))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	w := NewWorker(testFetcher(server), fakeDetails{}, Options{Endpoint: server.URL, APIKey: "secret", VideosPerKeyword: 10}, nil)
	res := collector.Run(context.Background(), w, collector.Params{Job: domain.Job{ID: "job-1", Keywords: []string{"grounding sheet"}}})

	if !res.IsOK() || !res.HasData() {
		t.Fatalf("expected ok with data, got %+v", res)
	}
	payload := res.Payload.(domain.VideoCollection)
	if len(payload.Comments) != 1 {
		t.Fatalf("expected one surviving comment, got %+v", payload.Comments)
	}
	c := payload.Comments[0]
	if c.ID != "YT_c1" || c.VideoTitle != "Grounding sheet review" || c.Replies != 2 || c.Likes != 9 {
		t.Fatalf("unexpected comment %+v", c)
	}
	if c.Relevance != 1 || c.Emotion != "excitement" || c.Keyword != "grounding sheet" {
		t.Fatalf("unexpected scoring %+v", c)
	}

	if len(payload.Videos) != 2 {
		t.Fatalf("expected both videos listed, got %d", len(payload.Videos))
	}
	if payload.Videos[0].Views != 1200 || payload.Videos[0].Channel != "Sleep Lab" {
		t.Fatalf("enrichment not applied: %+v", payload.Videos[0])
	}
	if payload.Videos[1].Views != 0 || payload.Videos[1].Channel != "" {
		t.Fatalf("failed enrichment must leave the video untouched: %+v", payload.Videos[1])
	}

	counters := res.Metadata.Counters
	if counters["quota_units"] != 102 || counters["comment_failures"] != 1 {
		t.Fatalf("unexpected counters %v", counters)
	}
	if status.Classify(&res) != domain.StatusCompleted {
		t.Fatalf("expected completed")
	}
}

func TestNewWorkerClampsVideosPerKeyword(t *testing.T) {
	t.Parallel()

	cases := map[int]int{-1: 3, 0: 3, 1: 2, 2: 2, 3: 3, 9: 3}
	for in, want := range cases {
		w := NewWorker(nil, nil, Options{VideosPerKeyword: in}, nil)
		if w.opts.VideosPerKeyword != want {
			t.Fatalf("VideosPerKeyword %d: expected %d, got %d", in, want, w.opts.VideosPerKeyword)
		}
	}
}

func TestRunWithoutKeyIsConfigurationFailure(t *testing.T) {
	t.Parallel()

	w := NewWorker(fetch.New(nil, fetch.DefaultPolicy(), nil), nil, Options{Endpoint: "http://127.0.0.1:1"}, nil)
	if err := w.Preflight(); !errors.Is(err, domain.ErrNotConfigured) {
		t.Fatalf("expected preflight to report missing key, got %v", err)
	}
	res := collector.Run(context.Background(), w, collector.Params{Job: domain.Job{Keywords: []string{"x"}}})
	if !res.IsFailed() || res.ErrorKind() != domain.KindConfiguration {
		t.Fatalf("expected configuration failure, got %+v", res)
	}
}

func TestRunSearchFailuresAreFailed(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	w := NewWorker(testFetcher(server), nil, Options{Endpoint: server.URL, APIKey: "k"}, nil)
	res := collector.Run(context.Background(), w, collector.Params{Job: domain.Job{Keywords: []string{"a", "b"}}})
	if !res.IsFailed() || res.ErrorKind() != domain.KindRateLimited {
		t.Fatalf("expected rate limited failure, got %+v", res)
	}
	if res.Metadata.Attempts != 4 {
		t.Fatalf("expected two attempts per keyword, got %d", res.Metadata.Attempts)
	}
}

func TestRunNoCommentsIsNoData(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"items":[]}`))
	}))
	defer server.Close()

	w := NewWorker(testFetcher(server), nil, Options{Endpoint: server.URL, APIKey: "k"}, nil)
	res := collector.Run(context.Background(), w, collector.Params{Job: domain.Job{Keywords: []string{"grounding"}}})
	if status.Classify(&res) != domain.StatusCompletedNoData {
		t.Fatalf("expected completed_no_data, got %s (%+v)", status.Classify(&res), res)
	}
}

func TestStubWorkerIsDeterministic(t *testing.T) {
	t.Parallel()

	p := collector.Params{Job: domain.Job{Keywords: []string{"grounding sheet"}}}
	first := collector.Run(context.Background(), StubWorker{}, p)
	second := collector.Run(context.Background(), StubWorker{}, p)

	if first.Metadata.ExtractionMethod != "stub" {
		t.Fatalf("stub must be identifiable, got %q", first.Metadata.ExtractionMethod)
	}
	if first.ItemCount() != 4 || second.ItemCount() != 4 {
		t.Fatalf("expected the four usable canned comments, got %d and %d", first.ItemCount(), second.ItemCount())
	}

	emotions := map[string]bool{}
	for _, c := range first.Payload.(domain.VideoCollection).Comments {
		emotions[c.Emotion] = true
	}
	for _, want := range []string{"frustration", "relief", "excitement", "anxiety"} {
		if !emotions[want] {
			t.Fatalf("missing %s among %v", want, emotions)
		}
	}

	empty := collector.Run(context.Background(), StubWorker{}, collector.Params{})
	if !empty.IsOK() || empty.HasData() {
		t.Fatalf("no keywords must be an empty success")
	}
}
