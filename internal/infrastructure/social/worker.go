// Package social collects discussion posts and comments from a Reddit-compatible JSON API.
package social

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"PersonaCollector/internal/collector"
	"PersonaCollector/internal/domain"
	"PersonaCollector/internal/fetch"
)

const (
	queriesPerForum    = 2
	commentedPosts     = 3
	commentsPerPost    = 3
	minCommentLength   = 20
	searchPageSize     = 10
	defaultSocialLimit = 50
)

// Options configures the discussion API.
type Options struct {
	BaseURL string
	Limit   int
}

// Worker searches topic forums, pulls top comments and falls back to a global search.
type Worker struct {
	fetcher *fetch.Fetcher
	opts    Options
	logger  *slog.Logger
}

var _ collector.Worker = (*Worker)(nil)

// NewWorker wires the fetcher with API options.
func NewWorker(f *fetch.Fetcher, opts Options, logger *slog.Logger) *Worker {
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	if opts.Limit <= 0 {
		opts.Limit = defaultSocialLimit
	}
	return &Worker{fetcher: f, opts: opts, logger: logger}
}

// Name identifies the worker inside the registry.
func (w *Worker) Name() domain.SourceName { return domain.SourceSocial }

type run struct {
	session  *fetch.Session
	keywords []string
	posts    []domain.SocialItem
	comments []domain.SocialItem
	seen     map[string]struct{}
	requests int
	failures int
	lastErr  error
}

func (r *run) total() int { return len(r.posts) + len(r.comments) }

func (r *run) record(err error) {
	r.requests++
	if err != nil {
		r.failures++
		r.lastErr = err
	}
}

// Run produces Failed only when every request failed.
func (w *Worker) Run(ctx context.Context, p collector.Params) domain.SourceResult {
	md := domain.Metadata{ExtractionMethod: "reddit_json"}
	queries := Queries(p.Job.Keywords)
	forums := Forums(p.Job.Keywords)

	r := &run{session: w.fetcher.Session(), keywords: p.Job.Keywords, seen: map[string]struct{}{}}

	for _, forum := range forums {
		if ctx.Err() != nil {
			break
		}
		for i := 0; i < queriesPerForum && i < len(queries); i++ {
			found, err := w.search(ctx, r, forum, queries[i])
			r.record(err)
			if err != nil {
				w.debug("forum search failed", "job_id", p.Job.ID, "forum", forum, "error", err)
				continue
			}
			if found > 0 {
				break
			}
		}
	}
	md.Count("forums_searched", len(forums))

	for _, post := range topScored(r.posts, commentedPosts) {
		if ctx.Err() != nil {
			break
		}
		err := w.fetchComments(ctx, r, post)
		r.record(err)
		if err != nil {
			w.debug("comments fetch failed", "job_id", p.Job.ID, "post", post.ID, "error", err)
		}
	}

	if r.total() < w.opts.Limit/2 {
		md.Count("global_fallback", 1)
		for _, q := range queries {
			if r.total() >= w.opts.Limit || ctx.Err() != nil {
				break
			}
			_, err := w.search(ctx, r, "", q)
			r.record(err)
		}
	}

	md.Attempts = r.session.Attempts()
	md.Count("requests", r.requests)
	md.Count("request_failures", r.failures)

	if r.requests > 0 && r.failures == r.requests {
		return collector.FailedFrom(domain.SourceSocial, r.lastErr, md)
	}
	if r.requests == 0 && ctx.Err() != nil {
		return collector.FailedFrom(domain.SourceSocial, ctx.Err(), md)
	}

	posts, comments := trim(r.posts, r.comments, w.opts.Limit)
	md.Count("posts", len(posts))
	md.Count("comments", len(comments))

	return domain.Ok(domain.SocialCollection{Posts: posts, Comments: comments}, md)
}

type listing struct {
	Data struct {
		Children []struct {
			Kind string    `json:"kind"`
			Data thingData `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type thingData struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Selftext    string  `json:"selftext"`
	Body        string  `json:"body"`
	Author      string  `json:"author"`
	Subreddit   string  `json:"subreddit"`
	Score       int     `json:"score"`
	NumComments int     `json:"num_comments"`
	Permalink   string  `json:"permalink"`
	URL         string  `json:"url"`
	CreatedUTC  float64 `json:"created_utc"`
}

// search queries one forum, or the whole site when forum is empty, and returns how many new posts were added.
func (w *Worker) search(ctx context.Context, r *run, forum, query string) (int, error) {
	q := url.Values{}
	q.Set("q", query)
	q.Set("sort", "relevance")
	q.Set("limit", strconv.Itoa(searchPageSize))

	path := "/search.json"
	if forum != "" {
		path = "/r/" + url.PathEscape(forum) + "/search.json"
		q.Set("restrict_sr", "1")
	}

	resp, err := r.session.Get(ctx, w.opts.BaseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return 0, err
	}

	var decoded listing
	if err := resp.JSON(&decoded); err != nil {
		return 0, err
	}

	added := 0
	for _, child := range decoded.Data.Children {
		if child.Kind != "t3" || child.Data.ID == "" {
			continue
		}
		d := child.Data
		id := "RP_" + d.ID
		if _, ok := r.seen[id]; ok {
			continue
		}
		r.seen[id] = struct{}{}

		text := strings.TrimSpace(d.Selftext)
		if text == "" {
			text = d.Title
		}
		r.posts = append(r.posts, domain.SocialItem{
			ID:        id,
			Kind:      "post",
			Forum:     d.Subreddit,
			Title:     d.Title,
			Text:      text,
			Author:    author(d.Author),
			Score:     d.Score,
			Comments:  d.NumComments,
			URL:       w.permalink(d.Permalink),
			Query:     query,
			Relevance: Relevance(d.Title+" "+d.Selftext, r.keywords),
			CreatedAt: unix(d.CreatedUTC),
		})
		added++
	}
	return added, nil
}

func (w *Worker) fetchComments(ctx context.Context, r *run, post domain.SocialItem) error {
	id := strings.TrimPrefix(post.ID, "RP_")
	q := url.Values{}
	q.Set("limit", strconv.Itoa(commentsPerPost*3))
	q.Set("sort", "top")
	q.Set("depth", "1")

	resp, err := r.session.Get(ctx, w.opts.BaseURL+"/comments/"+url.PathEscape(id)+".json?"+q.Encode(), nil)
	if err != nil {
		return err
	}

	var listings []listing
	if err := resp.JSON(&listings); err != nil {
		return fmt.Errorf("comments for %s: %w", post.ID, err)
	}
	if len(listings) < 2 {
		return nil
	}

	kept := 0
	for _, child := range listings[1].Data.Children {
		if kept >= commentsPerPost {
			break
		}
		d := child.Data
		body := strings.TrimSpace(d.Body)
		if child.Kind != "t1" || len(body) <= minCommentLength || body == "[deleted]" || body == "[removed]" {
			continue
		}
		cid := "RC_" + d.ID
		if _, ok := r.seen[cid]; ok {
			continue
		}
		r.seen[cid] = struct{}{}

		link := post.URL
		if d.Permalink != "" {
			link = w.permalink(d.Permalink)
		}
		r.comments = append(r.comments, domain.SocialItem{
			ID:        cid,
			Kind:      "comment",
			Forum:     post.Forum,
			Text:      body,
			Author:    author(d.Author),
			Score:     d.Score,
			URL:       link,
			Query:     post.Query,
			Relevance: Relevance(body, r.keywords),
			CreatedAt: unix(d.CreatedUTC),
		})
		kept++
	}
	return nil
}

func (w *Worker) permalink(p string) string {
	if p == "" || strings.HasPrefix(p, "http") {
		return p
	}
	return "https://reddit.com" + p
}

func topScored(posts []domain.SocialItem, n int) []domain.SocialItem {
	ranked := make([]domain.SocialItem, 0, len(posts))
	for _, p := range posts {
		if p.Comments > 0 {
			ranked = append(ranked, p)
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}

// trim keeps the most relevant items up to limit, preserving discovery order among equals.
func trim(posts, comments []domain.SocialItem, limit int) ([]domain.SocialItem, []domain.SocialItem) {
	if len(posts)+len(comments) <= limit {
		return posts, comments
	}
	all := append(append([]domain.SocialItem{}, posts...), comments...)
	sort.SliceStable(all, func(i, j int) bool { return all[i].Relevance > all[j].Relevance })
	all = all[:limit]

	var keptPosts, keptComments []domain.SocialItem
	for _, item := range all {
		if item.Kind == "comment" {
			keptComments = append(keptComments, item)
		} else {
			keptPosts = append(keptPosts, item)
		}
	}
	return keptPosts, keptComments
}

func author(name string) string {
	if name == "" {
		return "deleted"
	}
	return name
}

func unix(sec float64) time.Time {
	if sec <= 0 {
		return time.Time{}
	}
	return time.Unix(int64(sec), 0).UTC()
}

func (w *Worker) debug(msg string, args ...interface{}) {
	if w.logger != nil {
		w.logger.Debug(msg, args...)
	}
}
