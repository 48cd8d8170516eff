// Package fetch performs HTTP calls against rate-limited public endpoints
// with bounded retries and per-source throttling.
package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"PersonaCollector/internal/domain"
)

const maxBodyBytes = 5 << 20

// ErrDecode marks a 2xx response whose body did not have the expected shape.
var ErrDecode = errors.New("unexpected response shape")

// Policy bounds retries and pacing for one source.
type Policy struct {
	MaxAttempts    int
	BaseBackoff    time.Duration
	RetryDelay     time.Duration
	PerSourceDelay time.Duration
	Timeout        time.Duration
	UserAgent      string
}

// DefaultPolicy mirrors the limits public endpoints tolerate without credentials.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:    3,
		BaseBackoff:    time.Second,
		RetryDelay:     250 * time.Millisecond,
		PerSourceDelay: 500 * time.Millisecond,
		Timeout:        15 * time.Second,
		UserAgent:      "PersonaCollector/1.0 (customer research)",
	}
}

func (p Policy) normalized() Policy {
	def := DefaultPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.BaseBackoff < 0 {
		p.BaseBackoff = 0
	}
	if p.RetryDelay < 0 {
		p.RetryDelay = 0
	}
	if p.Timeout <= 0 {
		p.Timeout = def.Timeout
	}
	if p.UserAgent == "" {
		p.UserAgent = def.UserAgent
	}
	return p
}

// Request describes one outbound call.
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

// Response is a successful (2xx) reply with the body fully read.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Attempts   int
}

// JSON decodes the body into v.
func (r *Response) JSON(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return nil
}

// FetchError is returned once a call gives up.
type FetchError struct {
	Kind       domain.ErrorKind
	Attempts   int
	StatusCode int
	URL        string
	Err        error
}

func (e *FetchError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "fetch %s: %s after %d attempt(s)", e.URL, e.Kind, e.Attempts)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *FetchError) Unwrap() error { return e.Err }

// Fetcher is safe to share; all per-run state lives in a Session.
type Fetcher struct {
	client *http.Client
	policy Policy
	logger *slog.Logger
}

// New builds a fetcher; a nil client gets a plain http.Client.
func New(client *http.Client, policy Policy, logger *slog.Logger) *Fetcher {
	if client == nil {
		client = &http.Client{}
	}
	return &Fetcher{client: client, policy: policy.normalized(), logger: logger}
}

// Policy returns the effective policy.
func (f *Fetcher) Policy() Policy { return f.policy }

// Session starts a throttled sequence of calls for one worker run.
func (f *Fetcher) Session() *Session {
	return &Session{fetcher: f}
}

// Session paces independent calls by PerSourceDelay. Not safe for concurrent use.
type Session struct {
	fetcher  *Fetcher
	calls    int
	attempts int
}

// Attempts is the total number of HTTP attempts made through the session.
func (s *Session) Attempts() int { return s.attempts }

// Calls is the number of Fetch calls issued through the session.
func (s *Session) Calls() int { return s.calls }

// Get is a GET with optional headers.
func (s *Session) Get(ctx context.Context, url string, header http.Header) (*Response, error) {
	return s.Fetch(ctx, Request{Method: http.MethodGet, URL: url, Header: header})
}

// Fetch issues req, retrying 429s with linear backoff and transport errors or 5xx
// with a fixed delay. Other 4xx responses fail immediately.
func (s *Session) Fetch(ctx context.Context, req Request) (*Response, error) {
	policy := s.fetcher.policy

	if s.calls > 0 {
		if err := sleep(ctx, policy.PerSourceDelay); err != nil {
			return nil, &FetchError{Kind: domain.KindTransport, URL: req.URL, Err: err}
		}
	}
	s.calls++

	ctx, cancel := context.WithTimeout(ctx, policy.Timeout)
	defer cancel()

	var (
		kind       domain.ErrorKind
		lastErr    error
		lastStatus int
	)

	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		s.attempts++
		resp, err := s.fetcher.do(ctx, req)

		var delay time.Duration
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return nil, &FetchError{Kind: domain.KindTransport, Attempts: attempt, URL: req.URL, Err: err}
			}
			kind, lastErr, lastStatus = domain.KindTransport, err, 0
			delay = policy.RetryDelay
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			resp.Attempts = attempt
			return resp, nil
		case resp.StatusCode == http.StatusTooManyRequests:
			kind, lastErr, lastStatus = domain.KindRateLimited, statusError(resp), resp.StatusCode
			delay = time.Duration(attempt) * policy.BaseBackoff
		case resp.StatusCode >= 500:
			kind, lastErr, lastStatus = domain.KindHTTP, statusError(resp), resp.StatusCode
			delay = policy.RetryDelay
		default:
			return nil, &FetchError{Kind: domain.KindHTTP, Attempts: attempt, StatusCode: resp.StatusCode, URL: req.URL, Err: statusError(resp)}
		}

		if attempt == policy.MaxAttempts {
			break
		}

		s.fetcher.debug("retrying request", "url", req.URL, "attempt", attempt, "kind", kind, "delay", delay)
		if err := sleep(ctx, delay); err != nil {
			return nil, &FetchError{Kind: domain.KindTransport, Attempts: attempt, StatusCode: lastStatus, URL: req.URL, Err: err}
		}
	}

	return nil, &FetchError{Kind: kind, Attempts: policy.MaxAttempts, StatusCode: lastStatus, URL: req.URL, Err: lastErr}
}

func (f *Fetcher) do(ctx context.Context, r Request) (*Response, error) {
	method := r.Method
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if r.Body != nil {
		body = bytes.NewReader(r.Body)
	}

	req, err := http.NewRequestWithContext(ctx, method, r.URL, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, vs := range r.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", f.policy.UserAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: payload}, nil
}

func statusError(resp *Response) error {
	snippet := resp.Body
	if len(snippet) > 1024 {
		snippet = snippet[:1024]
	}
	msg := strings.TrimSpace(string(snippet))
	if msg == "" {
		return fmt.Errorf("status %d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}
	return fmt.Errorf("status %d %s: %s", resp.StatusCode, http.StatusText(resp.StatusCode), msg)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (f *Fetcher) debug(msg string, args ...interface{}) {
	if f.logger != nil {
		f.logger.Debug(msg, args...)
	}
}

// KindOf extracts the failure kind from err, if it came from a fetch.
func KindOf(err error) (domain.ErrorKind, int, bool) {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind, fe.Attempts, true
	}
	return "", 0, false
}
