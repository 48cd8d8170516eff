package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"PersonaCollector/internal/config"
	"PersonaCollector/internal/domain"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	t.Setenv("PERSONA_COLLECTOR_CONFIG", "")
	cfg := config.Load("")
	cfg.Database = config.DatabaseConfig{Driver: config.DriverMemory}
	cfg.Video.Mode = config.VideoStub
	cfg.ChatGPT.APIKey = ""
	cfg.Events.NATSURL = ""
	cfg.Notifications.Telegram = config.TelegramConfig{}
	return cfg
}

func TestNewWiresRegistry(t *testing.T) {
	ctx := context.Background()
	application, err := New(ctx, testConfig(t), nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer application.Close(ctx)

	id, err := application.Orchestrator().StartCollection(ctx, domain.CollectionRequest{
		TargetURL: "https://shop.example",
		Keywords:  []string{"grounding sheet"},
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	application.Orchestrator().Wait()

	info, err := application.Orchestrator().GetDebugInfo(ctx, id)
	if err != nil {
		t.Fatalf("debug: %v", err)
	}
	if len(info.PerSource) != 5 {
		t.Fatalf("expected five registered sources, got %d", len(info.PerSource))
	}
	// Without a model key the website preflight stops the job before any fetch.
	if info.OverallStatus != domain.JobFailed || !strings.Contains(info.Error, "website") {
		t.Fatalf("expected configuration failure, got %s (%s)", info.OverallStatus, info.Error)
	}
	if info.PerSource[domain.SourceWebsite].ErrorKind != domain.KindConfiguration {
		t.Fatalf("unexpected website entry %+v", info.PerSource[domain.SourceWebsite])
	}
	if info.PerSource[domain.SourceVideo].Status != domain.StatusNotStarted {
		t.Fatalf("video must not run, got %s", info.PerSource[domain.SourceVideo].Status)
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Video.Mode = config.VideoLive
	cfg.Video.APIKey = ""
	if _, err := New(context.Background(), cfg, nil); err == nil {
		t.Fatalf("live video without key must be rejected")
	}
}

func TestCancelStopsRunningJobs(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(10 * time.Second):
		}
	}))
	defer slow.Close()

	cfg := testConfig(t)
	cfg.Video.Mode = config.VideoDisabled
	cfg.ChatGPT.APIKey = "k"
	cfg.ChatGPT.Endpoint = slow.URL
	cfg.Reviews.Endpoint = slow.URL
	cfg.Social.BaseURL = slow.URL
	cfg.Fetch.Timeout = 10 * time.Second
	cfg.Collection.JobDeadline = 30 * time.Second

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	application, err := New(ctx, cfg, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer application.Close(context.Background())

	id, err := application.Orchestrator().StartCollection(context.Background(), domain.CollectionRequest{
		TargetURL: slow.URL,
		Keywords:  []string{"grounding sheet"},
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	time.Sleep(100 * time.Millisecond)
	cancel()

	done := make(chan struct{})
	go func() {
		application.Orchestrator().Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatalf("Wait did not return after the context was cancelled")
	}

	info, err := application.Orchestrator().GetDebugInfo(context.Background(), id)
	if err != nil {
		t.Fatalf("debug: %v", err)
	}
	if entry := info.PerSource[domain.SourceWebsite]; entry.Status != domain.StatusFailed || entry.ErrorKind != domain.KindTransport {
		t.Fatalf("expected website transport failure, got %+v", entry)
	}
}
