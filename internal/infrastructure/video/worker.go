// Package video collects scored comments from a video platform.
package video

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"PersonaCollector/internal/collector"
	"PersonaCollector/internal/domain"
	"PersonaCollector/internal/fetch"
	"PersonaCollector/internal/ports"
)

const (
	minVideosPerKeyword = 2
	maxVideosPerKeyword = 3
	maxCommentsPerVideo = 100
	defaultComments     = 20

	searchQuotaCost  = 100
	commentQuotaCost = 1
)

// Options configures the video data API.
type Options struct {
	Endpoint         string
	APIKey           string
	VideosPerKeyword int
	CommentsPerVideo int
}

// Worker searches videos per keyword and keeps relevant top-level comments.
type Worker struct {
	fetcher *fetch.Fetcher
	details ports.VideoDetails
	opts    Options
	logger  *slog.Logger
}

var (
	_ collector.Worker      = (*Worker)(nil)
	_ collector.Preflighter = (*Worker)(nil)
)

// NewWorker wires the fetcher; details may be nil to skip enrichment.
func NewWorker(f *fetch.Fetcher, details ports.VideoDetails, opts Options, logger *slog.Logger) *Worker {
	opts.Endpoint = strings.TrimRight(opts.Endpoint, "/")
	switch {
	case opts.VideosPerKeyword <= 0 || opts.VideosPerKeyword > maxVideosPerKeyword:
		opts.VideosPerKeyword = maxVideosPerKeyword
	case opts.VideosPerKeyword < minVideosPerKeyword:
		opts.VideosPerKeyword = minVideosPerKeyword
	}
	if opts.CommentsPerVideo <= 0 {
		opts.CommentsPerVideo = defaultComments
	}
	if opts.CommentsPerVideo > maxCommentsPerVideo {
		opts.CommentsPerVideo = maxCommentsPerVideo
	}
	return &Worker{fetcher: f, details: details, opts: opts, logger: logger}
}

// Name identifies the worker inside the registry.
func (w *Worker) Name() domain.SourceName { return domain.SourceVideo }

// Preflight fails when no API key is configured.
func (w *Worker) Preflight() error {
	if strings.TrimSpace(w.opts.APIKey) == "" {
		return fmt.Errorf("video source: %w: api key is empty", domain.ErrNotConfigured)
	}
	return nil
}

// Run fails only on missing credentials or when every request failed.
func (w *Worker) Run(ctx context.Context, p collector.Params) domain.SourceResult {
	md := domain.Metadata{ExtractionMethod: "youtube_data_api"}
	if err := w.Preflight(); err != nil {
		return collector.FailedFrom(domain.SourceVideo, err, md)
	}

	session := w.fetcher.Session()
	var (
		out      domain.VideoCollection
		seen     = map[string]struct{}{}
		requests int
		failures int
		lastErr  error
	)
	record := func(err error) {
		requests++
		if err != nil {
			failures++
			lastErr = err
		}
	}

	for _, keyword := range p.Job.Keywords {
		keyword = strings.TrimSpace(keyword)
		if keyword == "" || ctx.Err() != nil {
			continue
		}

		videos, err := w.search(ctx, session, keyword)
		record(err)
		md.Count("quota_units", searchQuotaCost)
		if err != nil {
			w.debug("video search failed", "job_id", p.Job.ID, "keyword", keyword, "error", err)
			continue
		}

		for _, v := range videos {
			if _, ok := seen[v.ID]; ok || ctx.Err() != nil {
				continue
			}
			seen[v.ID] = struct{}{}

			comments, err := w.comments(ctx, session, v)
			record(err)
			md.Count("quota_units", commentQuotaCost)
			if err != nil {
				md.Count("comment_failures", 1)
				w.debug("comment fetch failed", "job_id", p.Job.ID, "video", v.ID, "error", err)
			}

			kept := 0
			for i := range comments {
				if score(&comments[i], keyword) {
					out.Comments = append(out.Comments, comments[i])
					kept++
				}
			}
			md.Count("comments_dropped", len(comments)-kept)

			out.Videos = append(out.Videos, w.enrich(ctx, v))
		}
	}

	md.Attempts = session.Attempts()
	md.Count("requests", requests)
	md.Count("videos", len(out.Videos))

	if requests > 0 && failures == requests {
		return collector.FailedFrom(domain.SourceVideo, lastErr, md)
	}
	if requests == 0 && ctx.Err() != nil {
		return collector.FailedFrom(domain.SourceVideo, ctx.Err(), md)
	}
	return domain.Ok(out, md)
}

type searchResponse struct {
	Items []struct {
		ID struct {
			VideoID string `json:"videoId"`
		} `json:"id"`
		Snippet struct {
			Title        string `json:"title"`
			ChannelTitle string `json:"channelTitle"`
		} `json:"snippet"`
	} `json:"items"`
}

type threadsResponse struct {
	Items []struct {
		ID      string `json:"id"`
		Snippet struct {
			TopLevelComment struct {
				ID      string `json:"id"`
				Snippet struct {
					TextOriginal      string    `json:"textOriginal"`
					TextDisplay       string    `json:"textDisplay"`
					AuthorDisplayName string    `json:"authorDisplayName"`
					LikeCount         int       `json:"likeCount"`
					PublishedAt       time.Time `json:"publishedAt"`
				} `json:"snippet"`
			} `json:"topLevelComment"`
			TotalReplyCount int `json:"totalReplyCount"`
		} `json:"snippet"`
	} `json:"items"`
}

func (w *Worker) search(ctx context.Context, s *fetch.Session, keyword string) ([]domain.Video, error) {
	q := url.Values{}
	q.Set("part", "snippet")
	q.Set("type", "video")
	q.Set("q", keyword)
	q.Set("maxResults", strconv.Itoa(w.opts.VideosPerKeyword))
	q.Set("key", w.opts.APIKey)

	resp, err := s.Get(ctx, w.opts.Endpoint+"/search?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	var decoded searchResponse
	if err := resp.JSON(&decoded); err != nil {
		return nil, err
	}

	videos := make([]domain.Video, 0, len(decoded.Items))
	for _, item := range decoded.Items {
		if item.ID.VideoID == "" {
			continue
		}
		videos = append(videos, domain.Video{
			ID:      item.ID.VideoID,
			Title:   item.Snippet.Title,
			Channel: item.Snippet.ChannelTitle,
			Keyword: keyword,
		})
		if len(videos) == w.opts.VideosPerKeyword {
			break
		}
	}
	return videos, nil
}

func (w *Worker) comments(ctx context.Context, s *fetch.Session, v domain.Video) ([]domain.VideoComment, error) {
	q := url.Values{}
	q.Set("part", "snippet")
	q.Set("videoId", v.ID)
	q.Set("maxResults", strconv.Itoa(w.opts.CommentsPerVideo))
	q.Set("order", "relevance")
	q.Set("textFormat", "plainText")
	q.Set("key", w.opts.APIKey)

	resp, err := s.Get(ctx, w.opts.Endpoint+"/commentThreads?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	var decoded threadsResponse
	if err := resp.JSON(&decoded); err != nil {
		return nil, err
	}

	out := make([]domain.VideoComment, 0, len(decoded.Items))
	for _, item := range decoded.Items {
		top := item.Snippet.TopLevelComment
		text := top.Snippet.TextOriginal
		if text == "" {
			text = top.Snippet.TextDisplay
		}
		id := top.ID
		if id == "" {
			id = item.ID
		}
		out = append(out, domain.VideoComment{
			ID:          "YT_" + id,
			VideoID:     v.ID,
			VideoTitle:  v.Title,
			Text:        strings.TrimSpace(text),
			Author:      top.Snippet.AuthorDisplayName,
			Likes:       top.Snippet.LikeCount,
			Replies:     item.Snippet.TotalReplyCount,
			PublishedAt: top.Snippet.PublishedAt,
		})
	}
	return out, nil
}

func (w *Worker) enrich(ctx context.Context, v domain.Video) domain.Video {
	if w.details == nil {
		return v
	}
	d, err := w.details.Lookup(ctx, v.ID)
	if err != nil {
		w.debug("video details unavailable", "video", v.ID, "error", err)
		return v
	}
	v.Duration = d.Duration
	v.Views = d.Views
	if v.Channel == "" {
		v.Channel = d.Channel
	}
	return v
}

func (w *Worker) debug(msg string, args ...interface{}) {
	if w.logger != nil {
		w.logger.Debug(msg, args...)
	}
}
