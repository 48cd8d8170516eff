package reviews

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"PersonaCollector/internal/collector"
	"PersonaCollector/internal/domain"
	"PersonaCollector/internal/fetch"
	"PersonaCollector/internal/infrastructure/ml"
	"PersonaCollector/internal/status"
)

func testFetcher(server *httptest.Server) *fetch.Fetcher {
	return fetch.New(server.Client(), fetch.Policy{
		MaxAttempts: 3,
		BaseBackoff: time.Millisecond,
		RetryDelay:  time.Millisecond,
		Timeout:     2 * time.Second,
	}, nil)
}

func reviewsJSON(n, offset int, verified func(i int) bool) string {
	items := make([]string, n)
	for i := 0; i < n; i++ {
		items[i] = fmt.Sprintf(`{"title":"T%d","body":"review body number %d","rating":5,"verified":%t,"reviewer":{"name":"buyer %d"},"created_at":"2025-03-01T10:00:00Z"}`,
			offset+i, offset+i, verified(offset+i), offset+i)
	}
	return `{"reviews":[` + strings.Join(items, ",") + `]}`
}

func job(tier domain.Tier) domain.Job {
	return domain.Job{ID: "job-1", TargetURL: "https://www.shop.example/products/sheet", Keywords: []string{"grounding sheet"}, Tier: tier}
}

func TestRunRateLimitedThenSucceeds(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) <= 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		if r.URL.Query().Get("shop_domain") != "shop.example" {
			t.Errorf("unexpected shop domain %q", r.URL.Query().Get("shop_domain"))
		}
		_, _ = w.Write([]byte(reviewsJSON(15, 0, func(i int) bool { return i%3 != 0 })))
	}))
	defer server.Close()

	w := NewWorker(testFetcher(server), nil, Options{Endpoint: server.URL + "/api/v1/reviews"}, nil)
	res := collector.Run(context.Background(), w, collector.Params{Job: job(domain.TierBasic)})

	if !res.IsOK() || !res.HasData() {
		t.Fatalf("expected ok with data, got %+v", res)
	}
	if res.ItemCount() != 15 {
		t.Fatalf("expected 15 reviews, got %d", res.ItemCount())
	}
	if res.Metadata.Attempts != 3 {
		t.Fatalf("expected 3 attempts recorded, got %d", res.Metadata.Attempts)
	}
	if status.Classify(&res) != domain.StatusCompleted {
		t.Fatalf("expected completed, got %s", status.Classify(&res))
	}
	if res.Metadata.VerificationRate == nil || *res.Metadata.VerificationRate != 10.0/15.0 {
		t.Fatalf("unexpected verification rate %v", res.Metadata.VerificationRate)
	}

	payload := res.Payload.(domain.ReviewCollection)
	if payload.Reviews[0].ID != "R001" || payload.Reviews[14].ID != "R015" {
		t.Fatalf("unexpected review ids %s..%s", payload.Reviews[0].ID, payload.Reviews[14].ID)
	}
}

func TestRunNoReviewsIsEmptySuccess(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"reviews":[]}`))
	}))
	defer server.Close()

	w := NewWorker(testFetcher(server), nil, Options{Endpoint: server.URL}, nil)
	res := collector.Run(context.Background(), w, collector.Params{Job: job(domain.TierBasic)})

	if !res.IsOK() || res.HasData() {
		t.Fatalf("expected ok without data, got %+v", res)
	}
	if res.Payload.(domain.ReviewCollection).Status != domain.ExtractionNoReviews {
		t.Fatalf("expected no_reviews_found status")
	}
	if status.Classify(&res) != domain.StatusCompletedNoData {
		t.Fatalf("expected completed_no_data, got %s", status.Classify(&res))
	}
	if res.Metadata.VerificationRate != nil {
		t.Fatalf("no reviews means no verification rate")
	}
}

func TestRunPaginatesUpToTierCap(t *testing.T) {
	t.Parallel()

	var pages atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pages.Add(1)
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
		_, _ = w.Write([]byte(reviewsJSON(perPage, (page-1)*perPage, func(int) bool { return true })))
	}))
	defer server.Close()

	w := NewWorker(testFetcher(server), nil, Options{Endpoint: server.URL, PerPage: 50, SkipCompetitors: true}, nil)

	basic := collector.Run(context.Background(), w, collector.Params{Job: job(domain.TierBasic)})
	if basic.ItemCount() != 20 {
		t.Fatalf("basic tier must stop at 20, got %d", basic.ItemCount())
	}

	premium := collector.Run(context.Background(), w, collector.Params{Job: job(domain.TierPremium)})
	if premium.ItemCount() != 200 {
		t.Fatalf("premium tier must stop at 200, got %d", premium.ItemCount())
	}
	// one page for basic, four pages of 50 for premium
	if pages.Load() != 5 {
		t.Fatalf("expected 5 page requests, got %d", pages.Load())
	}
}

func TestRunLaterPageFailureKeepsEarlierPages(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") != "1" {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(reviewsJSON(10, 0, func(int) bool { return true })))
	}))
	defer server.Close()

	w := NewWorker(testFetcher(server), nil, Options{Endpoint: server.URL, PerPage: 10, SkipCompetitors: true}, nil)
	res := collector.Run(context.Background(), w, collector.Params{Job: job(domain.TierPremium)})

	if !res.IsOK() || res.ItemCount() != 10 {
		t.Fatalf("expected ok with the first page, got %+v", res)
	}
	if res.Metadata.Counters["page_failures"] != 1 {
		t.Fatalf("expected one page failure, got %v", res.Metadata.Counters)
	}
	if res.Metadata.Counters["pages"] != 1 {
		t.Fatalf("expected one good page, got %v", res.Metadata.Counters)
	}
}

func TestRunPrimaryFailureIsFailed(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	w := NewWorker(testFetcher(server), nil, Options{Endpoint: server.URL}, nil)
	res := collector.Run(context.Background(), w, collector.Params{Job: job(domain.TierBasic)})
	if !res.IsFailed() || res.ErrorKind() != domain.KindHTTP {
		t.Fatalf("expected http failure, got %+v", res)
	}
	if status.Classify(&res) != domain.StatusFailed {
		t.Fatalf("expected failed status")
	}
}

func TestRunCompetitorsTaggedAndDeduplicated(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("shop_domain") {
		case "shop.example":
			_, _ = w.Write([]byte(`{"reviews":[
				{"body":"I love it, sleeping better","verified":"buyer"},
				{"body":"Strap broke after a week","verified":"nothing"}]}`))
		case "rival.example":
			_, _ = w.Write([]byte(`{"reviews":[{"body":"i love it, sleeping better","verified":true}]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	j := job(domain.TierBasic)
	j.CompetitorURLs = []string{"https://rival.example", "https://gone.example"}

	w := NewWorker(testFetcher(server), ml.NewLexiconClassifier(), Options{Endpoint: server.URL}, nil)
	res := collector.Run(context.Background(), w, collector.Params{Job: j})
	if !res.IsOK() {
		t.Fatalf("competitor failures must not fail the worker: %+v", res)
	}

	payload := res.Payload.(domain.ReviewCollection)
	if len(payload.Reviews) != 2 {
		t.Fatalf("expected duplicate competitor review to be dropped, got %d", len(payload.Reviews))
	}
	if res.Metadata.Counters["competitor_failures"] != 1 {
		t.Fatalf("expected one competitor failure, got %v", res.Metadata.Counters)
	}
	if len(payload.Reviews[1].Tags) == 0 || payload.Reviews[1].Tags[0] != ml.TagPainPoint {
		t.Fatalf("expected pain point tag, got %v", payload.Reviews[1].Tags)
	}
	if *res.Metadata.VerificationRate != 0.5 {
		t.Fatalf("expected verification rate 0.5, got %v", *res.Metadata.VerificationRate)
	}
}

func TestTierCap(t *testing.T) {
	t.Parallel()

	if TierCap(domain.TierBasic) != 20 || TierCap("unknown") != 20 {
		t.Fatalf("basic and unknown tiers must cap at 20")
	}
	for _, tier := range []domain.Tier{domain.TierPremium, domain.TierPro, domain.TierEnterprise} {
		if TierCap(tier) != 200 {
			t.Fatalf("%s must cap at 200", tier)
		}
	}
}
